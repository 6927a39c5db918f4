package sharedstate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-dev/sharedstate/pkg/storage"
)

// Option configures a Runtime.
type Option func(*options)

type options struct {
	storage   storage.Storage
	namespace string
	codec     Codec
	logger    *slog.Logger
	onError   func(key string, err error)
	timeout   time.Duration
}

// WithStorage sets the medium durable keys are persisted to.
// Default: a private in-process origin, so durable records live as long as
// the runtime.
func WithStorage(s storage.Storage) Option {
	return func(o *options) {
		o.storage = s
	}
}

// WithNamespace sets the storage key prefix.
// Default: DefaultNamespace.
func WithNamespace(ns string) Option {
	return func(o *options) {
		if ns != "" {
			o.namespace = ns
		}
	}
}

// WithCodec sets the record codec.
// Default: JSONCodec.
func WithCodec(c Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithLogger sets the logger for persistence and sync reports.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// OnPersistError registers a hook called for every persistence failure,
// in addition to the Warn log.
func OnPersistError(fn func(key string, err error)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// WithStorageTimeout bounds each storage operation issued by bindings and
// utilities. Zero means no timeout.
func WithStorageTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// Runtime ties a KeyStore to its persistence and cross-context bridge.
type Runtime struct {
	store   *KeyStore
	persist *Persistence
	bridge  *Bridge
	logger  *slog.Logger
	timeout time.Duration
}

// New creates a runtime with an empty store.
func New(opts ...Option) *Runtime {
	o := options{
		namespace: DefaultNamespace,
		codec:     JSONCodec{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.storage == nil {
		o.storage = storage.NewOrigin(storage.WithOriginLogger(o.logger)).Open()
	}

	store := NewKeyStore()
	persist := &Persistence{
		storage:   o.storage,
		namespace: o.namespace,
		codec:     o.codec,
		logger:    o.logger,
		onError:   o.onError,
	}
	return &Runtime{
		store:   store,
		persist: persist,
		bridge:  &Bridge{store: store, persist: persist, logger: o.logger},
		logger:  o.logger,
		timeout: o.timeout,
	}
}

// Store returns the runtime's key store.
func (rt *Runtime) Store() *KeyStore { return rt.store }

// Persistence returns the runtime's persistence adapter.
func (rt *Runtime) Persistence() *Persistence { return rt.persist }

// Bridge returns the runtime's cross-context bridge.
func (rt *Runtime) Bridge() *Bridge { return rt.bridge }

// Utils returns the administrative facade of the runtime.
func (rt *Runtime) Utils() *Facade { return &Facade{rt: rt} }

// Listen replays the notifier's events into the store until ctx is done
// or the notifier shuts down.
func (rt *Runtime) Listen(ctx context.Context, n storage.Notifier) error {
	return rt.bridge.Run(ctx, n.Events())
}

// Set writes v under key and, for durable keys, saves it. Persistence
// failures are reported, not returned.
func (rt *Runtime) Set(key string, v any) {
	rt.store.Set(key, v)
	rt.save(key, v)
}

func (rt *Runtime) save(key string, v any) {
	if !IsDurable(key) {
		return
	}
	ctx, cancel := rt.opContext()
	defer cancel()
	rt.persist.Save(ctx, key, v)
}

// load reads the durable record of key.
func (rt *Runtime) load(key string) (any, bool) {
	if !IsDurable(key) {
		return nil, false
	}
	ctx, cancel := rt.opContext()
	defer cancel()
	return rt.persist.Load(ctx, key)
}

func (rt *Runtime) opContext() (context.Context, context.CancelFunc) {
	if rt.timeout > 0 {
		return context.WithTimeout(context.Background(), rt.timeout)
	}
	return context.WithCancel(context.Background())
}

var (
	defaultMu      sync.Mutex
	defaultRuntime *Runtime
)

// Default returns the process-wide runtime, creating it with no options on
// first use.
func Default() *Runtime {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRuntime == nil {
		defaultRuntime = New()
	}
	return defaultRuntime
}

// SetDefault replaces the process-wide runtime. Passing nil makes the next
// Default call create a fresh one. Bindings created earlier keep their
// runtime.
func SetDefault(rt *Runtime) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRuntime = rt
}

// Hydrate loads every durable record of the namespace into the store.
// Keys that already hold a value are left alone, and nothing is written
// back. It returns the number of keys loaded.
func (rt *Runtime) Hydrate(ctx context.Context) (int, error) {
	keys, err := rt.persist.ListDurableKeys(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, key := range keys {
		raw, ok := rt.persist.Load(ctx, key)
		if !ok {
			continue
		}
		if _, seeded := rt.store.SeedIfAbsent(key, raw); seeded {
			n++
		}
	}
	return n, nil
}
