package sharedstate

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Subscriber is called after a key's value changes. ok is false when the
// key was deleted.
type Subscriber func(value any, ok bool)

type subscription struct {
	fn     Subscriber
	active atomic.Bool
}

// KeyStore maps keys to values and notifies subscribers of each key.
// It does no I/O.
//
// Subscriptions are kept apart from values: a key may have subscribers and
// no value (before the first write, or after Delete), and Delete keeps the
// subscribers of the key so they see the next write.
//
// Notifications run synchronously on the writing goroutine, after the lock
// is released, and each carries the value committed by its own call. Writes
// from one goroutine are therefore observed in call order.
type KeyStore struct {
	mu     sync.RWMutex
	values map[string]any
	subs   map[string][]*subscription
}

// NewKeyStore creates an empty store.
func NewKeyStore() *KeyStore {
	return &KeyStore{
		values: make(map[string]any),
		subs:   make(map[string][]*subscription),
	}
}

// Get returns the value of key. It never creates a cell.
func (s *KeyStore) Get(key string) (any, bool) {
	mustKey(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Has reports whether key holds a value.
func (s *KeyStore) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Set stores v under key and notifies the key's subscribers.
func (s *KeyStore) Set(key string, v any) {
	mustKey(key)
	s.mu.Lock()
	s.values[key] = v
	subs := s.snapshot(key)
	s.mu.Unlock()

	notify(subs, v, true)
}

// Update replaces the value of key with fn(prev, ok) and returns it.
// fn is called exactly once, under the store lock, so it must not call
// back into the store.
func (s *KeyStore) Update(key string, fn func(prev any, ok bool) any) any {
	mustKey(key)
	s.mu.Lock()
	prev, ok := s.values[key]
	next := fn(prev, ok)
	s.values[key] = next
	subs := s.snapshot(key)
	s.mu.Unlock()

	notify(subs, next, true)
	return next
}

// SeedIfAbsent stores v only if key has no value. It returns the value the
// key holds afterwards and whether v was stored.
func (s *KeyStore) SeedIfAbsent(key string, v any) (any, bool) {
	mustKey(key)
	s.mu.Lock()
	if cur, ok := s.values[key]; ok {
		s.mu.Unlock()
		return cur, false
	}
	s.values[key] = v
	subs := s.snapshot(key)
	s.mu.Unlock()

	notify(subs, v, true)
	return v, true
}

// Delete removes the value of key and notifies its subscribers with an
// absent value. Deleting a missing key does nothing.
func (s *KeyStore) Delete(key string) bool {
	mustKey(key)
	s.mu.Lock()
	if _, ok := s.values[key]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.values, key)
	subs := s.snapshot(key)
	s.mu.Unlock()

	notify(subs, nil, false)
	return true
}

// Clear deletes every value.
func (s *KeyStore) Clear() {
	s.DeleteFunc(func(string) bool { return true })
}

// DeleteFunc deletes every key for which del returns true and reports how
// many were removed. Subscribers of removed keys are notified after the
// lock is released.
func (s *KeyStore) DeleteFunc(del func(key string) bool) int {
	s.mu.Lock()
	var pending [][]*subscription
	n := 0
	for key := range s.values {
		if !del(key) {
			continue
		}
		delete(s.values, key)
		n++
		if subs := s.snapshot(key); len(subs) > 0 {
			pending = append(pending, subs)
		}
	}
	s.mu.Unlock()

	for _, subs := range pending {
		notify(subs, nil, false)
	}
	return n
}

// Subscribe registers fn for changes to key. The returned function removes
// exactly this subscription; calling it again does nothing.
func (s *KeyStore) Subscribe(key string, fn Subscriber) (unsubscribe func()) {
	mustKey(key)
	sub := &subscription{fn: fn}
	sub.active.Store(true)

	s.mu.Lock()
	s.subs[key] = append(s.subs[key], sub)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			s.unsubscribe(key, sub)
		})
	}
}

func (s *KeyStore) unsubscribe(key string, sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.subs[key]
	for i, x := range subs {
		if x == sub {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(s.subs, key)
		return
	}
	s.subs[key] = subs
}

// Subscribers returns the number of subscriptions for key.
func (s *KeyStore) Subscribers(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[key])
}

// Keys returns the keys holding a value, sorted.
func (s *KeyStore) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Size returns the number of keys holding a value.
func (s *KeyStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// snapshot copies the subscribers of key. Caller holds s.mu.
func (s *KeyStore) snapshot(key string) []*subscription {
	subs := s.subs[key]
	if len(subs) == 0 {
		return nil
	}
	out := make([]*subscription, len(subs))
	copy(out, subs)
	return out
}

func notify(subs []*subscription, v any, ok bool) {
	for _, sub := range subs {
		// Skip handles removed after the snapshot was taken.
		if sub.active.Load() {
			sub.fn(v, ok)
		}
	}
}
