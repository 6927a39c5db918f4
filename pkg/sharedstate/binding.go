package sharedstate

import (
	"sync"
)

// Setter writes a shared value.
type Setter[T any] interface {
	// Set stores v.
	Set(v T)

	// Update stores fn(current). fn is called exactly once.
	Update(fn func(T) T)
}

// Binding connects one component to one key.
//
// The value is shared with every other binding of the key. A binding only
// reports changes to its own key, and only when the value differs from the
// last one it reported.
type Binding[T any] struct {
	rt      *Runtime
	key     string
	initial T

	mu       sync.Mutex
	last     T
	onChange func(T)

	unsubscribe func()
}

// UseSharedState binds key on the default runtime.
func UseSharedState[T any](key string, initial T) *Binding[T] {
	return Bind(Default(), key, initial)
}

// Bind binds key on rt.
//
// If the key has no value yet, it is seeded from its durable record (for
// "@" keys) or from initial. A value that already exists always wins over
// initial. Seeding never writes to storage.
func Bind[T any](rt *Runtime, key string, initial T) *Binding[T] {
	mustKey(key)
	b := &Binding[T]{
		rt:      rt,
		key:     key,
		initial: initial,
	}

	if !rt.store.Has(key) {
		var seed any = initial
		if raw, ok := rt.load(key); ok {
			if v, ok := decodeAs[T](raw); ok {
				seed = v
			}
		}
		rt.store.SeedIfAbsent(key, seed)
	}

	b.unsubscribe = rt.store.Subscribe(key, b.changed)
	b.mu.Lock()
	b.last = b.Get()
	b.mu.Unlock()
	return b
}

// Key returns the bound key.
func (b *Binding[T]) Key() string {
	return b.key
}

// Get returns the current value. A deleted key, or a value that cannot be
// decoded to T, reads as the initial value.
func (b *Binding[T]) Get() T {
	if v, ok := b.rt.store.Get(b.key); ok {
		if t, ok := decodeAs[T](v); ok {
			return t
		}
	}
	return b.initial
}

// Set stores v and saves it when the key is durable.
func (b *Binding[T]) Set(v T) {
	b.rt.Set(b.key, v)
}

// Update stores fn(current) and saves it when the key is durable.
func (b *Binding[T]) Update(fn func(T) T) {
	next := b.rt.store.Update(b.key, func(prev any, ok bool) any {
		cur := b.initial
		if ok {
			if t, ok := decodeAs[T](prev); ok {
				cur = t
			}
		}
		return fn(cur)
	})
	b.rt.save(b.key, next)
}

// State returns the current value with its setter.
func (b *Binding[T]) State() (T, Setter[T]) {
	return b.Get(), b
}

// OnChange sets the function called when the key's value changes.
// It runs on the goroutine that made the change.
func (b *Binding[T]) OnChange(fn func(T)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// Close removes the binding's subscription. The shared value is kept.
// Close is idempotent.
func (b *Binding[T]) Close() {
	b.unsubscribe()
}

func (b *Binding[T]) changed(v any, ok bool) {
	next := b.initial
	if ok {
		if t, decoded := decodeAs[T](v); decoded {
			next = t
		}
	}

	b.mu.Lock()
	if defaultEquals(b.last, next) {
		b.mu.Unlock()
		return
	}
	b.last = next
	fn := b.onChange
	b.mu.Unlock()

	if fn != nil {
		fn(next)
	}
}

// Get returns the value of key on rt decoded to T.
func Get[T any](rt *Runtime, key string) (T, bool) {
	v, ok := rt.store.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	return decodeAs[T](v)
}
