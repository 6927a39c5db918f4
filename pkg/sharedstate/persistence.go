package sharedstate

import (
	"context"
	"log/slog"
	"sort"

	"github.com/vango-dev/sharedstate/internal/errors"
	"github.com/vango-dev/sharedstate/pkg/storage"
)

// Persistence maps durable keys to records in a storage medium.
//
// Load never fails: a missing, unreadable or undecodable record is reported
// and treated as absent. Save and Remove return their errors, and also
// report them, so callers that cannot act on a failure may ignore it.
type Persistence struct {
	storage   storage.Storage
	namespace string
	codec     Codec
	logger    *slog.Logger
	onError   func(key string, err error)
}

// IsDurable reports whether key is persisted.
func (p *Persistence) IsDurable(key string) bool {
	return IsDurable(key)
}

// Namespace returns the prefix of every storage key this adapter writes.
func (p *Persistence) Namespace() string {
	return p.namespace
}

// StorageKey returns the storage key of a durable key.
func (p *Persistence) StorageKey(key string) string {
	return storageKey(p.namespace, key)
}

// LogicalKey maps a storage key back to its durable key.
// Returns false for keys outside the namespace.
func (p *Persistence) LogicalKey(skey string) (string, bool) {
	return logicalKey(p.namespace, skey)
}

// Load returns the durable record of key as a Raw value.
func (p *Persistence) Load(ctx context.Context, key string) (any, bool) {
	mustKey(key)
	if !IsDurable(key) {
		return nil, false
	}

	text, ok, err := p.storage.GetItem(ctx, p.StorageKey(key))
	if err != nil {
		p.report(key, errors.New("E104").Wrap(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	raw, err := p.decode(text)
	if err != nil {
		p.report(key, err)
		return nil, false
	}
	return raw, true
}

// Save writes v as the durable record of key. Volatile keys are ignored.
func (p *Persistence) Save(ctx context.Context, key string, v any) error {
	mustKey(key)
	if !IsDurable(key) {
		return nil
	}

	data, err := p.encode(v)
	if err != nil {
		err = errors.New("E101").WithDetailf("key %q", key).Wrap(err)
		p.report(key, err)
		return err
	}

	if err := p.storage.SetItem(ctx, p.StorageKey(key), string(data)); err != nil {
		e := errors.New("E103").WithDetailf("key %q", key).Wrap(err)
		p.report(key, e)
		return e
	}
	return nil
}

// Remove deletes the durable record of key. Volatile keys are ignored.
func (p *Persistence) Remove(ctx context.Context, key string) error {
	mustKey(key)
	if !IsDurable(key) {
		return nil
	}

	if err := p.storage.RemoveItem(ctx, p.StorageKey(key)); err != nil {
		e := errors.New("E105").WithDetailf("key %q", key).Wrap(err)
		p.report(key, e)
		return e
	}
	return nil
}

// ListDurableKeys returns the durable keys of every record in the
// namespace, sorted. Records written by other systems sharing the medium
// are skipped.
func (p *Persistence) ListDurableKeys(ctx context.Context) ([]string, error) {
	skeys, err := p.storage.Keys(ctx)
	if err != nil {
		return nil, errors.New("E104").WithDetail("listing keys").Wrap(err)
	}

	keys := make([]string, 0, len(skeys))
	for _, skey := range skeys {
		if key, ok := p.LogicalKey(skey); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (p *Persistence) encode(v any) ([]byte, error) {
	if raw, ok := v.(Raw); ok && raw.codec.Name() == p.codec.Name() {
		return raw.data, nil
	}
	return p.codec.Marshal(v)
}

// decode checks that text is a well-formed record and wraps it as Raw.
func (p *Persistence) decode(text string) (Raw, error) {
	var check any
	if err := p.codec.Unmarshal([]byte(text), &check); err != nil {
		return Raw{}, errors.New("E102").WithDetailf("%s record", p.codec.Name()).Wrap(err)
	}
	return Raw{data: []byte(text), codec: p.codec}, nil
}

func (p *Persistence) report(key string, err error) {
	p.logger.Warn("sharedstate: persistence failed", "key", key, "error", err)
	if p.onError != nil {
		p.onError(key, err)
	}
}
