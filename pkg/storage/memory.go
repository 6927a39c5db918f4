package storage

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// DefaultQueueSize is the number of undelivered events a context buffers
// before pending events for the same key are coalesced.
const DefaultQueueSize = 256

// Origin is an in-process origin shared by several contexts. It behaves like
// one browser origin's localStorage: every context sees the same items, and
// changes are announced to every context except the writer.
type Origin struct {
	mu       sync.RWMutex
	items    map[string]string
	contexts map[string]*Memory

	queueSize int
	logger    *slog.Logger
}

// OriginOption configures an Origin.
type OriginOption func(*Origin)

// WithQueueSize sets how many events each context buffers.
// Default: DefaultQueueSize.
func WithQueueSize(n int) OriginOption {
	return func(o *Origin) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithOriginLogger sets the logger used for event delivery diagnostics.
func WithOriginLogger(logger *slog.Logger) OriginOption {
	return func(o *Origin) {
		o.logger = logger
	}
}

// NewOrigin creates an empty in-process origin.
func NewOrigin(opts ...OriginOption) *Origin {
	o := &Origin{
		items:     make(map[string]string),
		contexts:  make(map[string]*Memory),
		queueSize: DefaultQueueSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open attaches a new context to the origin.
func (o *Origin) Open() *Memory {
	m := &Memory{
		origin: o,
		id:     uuid.NewString(),
		queue:  newEventQueue(o.queueSize, o.logger),
	}

	o.mu.Lock()
	o.contexts[m.id] = m
	o.mu.Unlock()
	return m
}

// Len returns the number of items in the origin.
func (o *Origin) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.items)
}

// announce delivers ev to every open context except the writer.
// Must be called without holding o.mu.
func (o *Origin) announce(writer string, ev Event) {
	o.mu.RLock()
	targets := make([]*Memory, 0, len(o.contexts))
	for id, m := range o.contexts {
		if id != writer {
			targets = append(targets, m)
		}
	}
	o.mu.RUnlock()

	for _, m := range targets {
		m.deliver(ev)
	}
}

// Memory is one context's handle on an Origin.
type Memory struct {
	origin *Origin
	id     string

	mu     sync.Mutex
	queue  *eventQueue
	closed bool
}

// ID returns the context identifier stamped on events this context causes.
func (m *Memory) ID() string {
	return m.id
}

// Events returns the channel of changes made by other contexts.
func (m *Memory) Events() <-chan Event {
	return m.queue.out
}

// GetItem returns the value stored under key.
func (m *Memory) GetItem(_ context.Context, key string) (string, bool, error) {
	if m.isClosed() {
		return "", false, ErrClosed
	}

	m.origin.mu.RLock()
	defer m.origin.mu.RUnlock()
	v, ok := m.origin.items[key]
	return v, ok, nil
}

// SetItem stores value and announces the change if the value differs.
func (m *Memory) SetItem(_ context.Context, key, value string) error {
	if m.isClosed() {
		return ErrClosed
	}

	m.origin.mu.Lock()
	old, existed := m.origin.items[key]
	m.origin.items[key] = value
	m.origin.mu.Unlock()

	if existed && old == value {
		return nil
	}
	m.origin.announce(m.id, Event{Key: key, Value: value, Source: m.id})
	return nil
}

// RemoveItem deletes key and announces the removal if it existed.
func (m *Memory) RemoveItem(_ context.Context, key string) error {
	if m.isClosed() {
		return ErrClosed
	}

	m.origin.mu.Lock()
	_, existed := m.origin.items[key]
	delete(m.origin.items, key)
	m.origin.mu.Unlock()

	if existed {
		m.origin.announce(m.id, Event{Key: key, Removed: true, Source: m.id})
	}
	return nil
}

// Keys lists every key of the origin in sorted order.
func (m *Memory) Keys(_ context.Context) ([]string, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}

	m.origin.mu.RLock()
	keys := make([]string, 0, len(m.origin.items))
	for k := range m.origin.items {
		keys = append(keys, k)
	}
	m.origin.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}

// Close detaches the context from its origin and closes its event channel.
// Items written through it stay in the origin.
func (m *Memory) Close() error {
	m.origin.mu.Lock()
	delete(m.origin.contexts, m.id)
	m.origin.mu.Unlock()

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.queue.close()
	return nil
}

func (m *Memory) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// deliver queues ev without blocking the writer.
func (m *Memory) deliver(ev Event) {
	m.queue.push(ev)
}
