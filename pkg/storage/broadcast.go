package storage

import (
	"context"
	"log/slog"
)

// Broadcasting wraps next so that every successful write or removal is
// announced through pub. Publish failures are logged and never fail the
// write: the item is already stored.
func Broadcasting(next Storage, pub Publisher, source string) Storage {
	return &broadcasting{
		Storage: next,
		pub:     pub,
		source:  source,
		logger:  slog.Default(),
	}
}

type broadcasting struct {
	Storage
	pub    Publisher
	source string
	logger *slog.Logger
}

func (b *broadcasting) SetItem(ctx context.Context, key, value string) error {
	if err := b.Storage.SetItem(ctx, key, value); err != nil {
		return err
	}
	b.publish(ctx, Event{Key: key, Value: value, Source: b.source})
	return nil
}

func (b *broadcasting) RemoveItem(ctx context.Context, key string) error {
	if err := b.Storage.RemoveItem(ctx, key); err != nil {
		return err
	}
	b.publish(ctx, Event{Key: key, Removed: true, Source: b.source})
	return nil
}

func (b *broadcasting) publish(ctx context.Context, ev Event) {
	if err := b.pub.Publish(ctx, ev); err != nil {
		b.logger.Warn("storage: publish failed", "key", ev.Key, "error", err)
	}
}
