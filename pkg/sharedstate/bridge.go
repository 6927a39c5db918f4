package sharedstate

import (
	"context"
	"log/slog"

	"github.com/vango-dev/sharedstate/pkg/storage"
)

// Bridge replays changes made by other contexts into the local store.
// Changes are applied through KeyStore.Set and KeyStore.Delete only: a
// replayed change is never written back to storage.
type Bridge struct {
	store   *KeyStore
	persist *Persistence
	logger  *slog.Logger
}

// Apply replays one event. It returns false for events outside the
// namespace and for values that cannot be decoded.
func (b *Bridge) Apply(ev storage.Event) bool {
	key, ok := b.persist.LogicalKey(ev.Key)
	if !ok {
		b.logger.Debug("sharedstate: ignoring foreign key", "storage_key", ev.Key)
		return false
	}

	if ev.Removed {
		b.store.Delete(key)
		return true
	}

	raw, err := b.persist.decode(ev.Value)
	if err != nil {
		b.logger.Warn("sharedstate: dropping undecodable change", "key", key, "source", ev.Source, "error", err)
		return false
	}
	b.store.Set(key, raw)
	return true
}

// Run applies events until ctx is done or events is closed.
func (b *Bridge) Run(ctx context.Context, events <-chan storage.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			b.Apply(ev)
		}
	}
}
