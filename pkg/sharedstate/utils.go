package sharedstate

import (
	"sort"
)

// Facade holds the administrative operations of a runtime.
type Facade struct {
	rt *Runtime
}

// Utils returns the facade of the default runtime.
func Utils() *Facade {
	return Default().Utils()
}

// Keys returns the keys holding a value, sorted.
func (f *Facade) Keys() []string {
	return f.rt.store.Keys()
}

// Size returns the number of keys holding a value.
func (f *Facade) Size() int {
	return f.rt.store.Size()
}

// Delete removes key and, for durable keys, its record. Unknown keys are
// ignored.
func (f *Facade) Delete(key string) {
	f.rt.store.Delete(key)
	if IsDurable(key) {
		ctx, cancel := f.rt.opContext()
		defer cancel()
		f.rt.persist.Remove(ctx, key)
	}
}

// Clear removes every non-durable value. With includePersistent, durable
// values are removed too, along with every durable record in the
// namespace, including records with no live value.
func (f *Facade) Clear(includePersistent bool) {
	if !includePersistent {
		f.rt.store.DeleteFunc(func(key string) bool { return !IsDurable(key) })
		return
	}

	ctx, cancel := f.rt.opContext()
	defer cancel()
	for _, key := range f.PersistentKeys() {
		f.rt.persist.Remove(ctx, key)
	}
	f.rt.store.Clear()
}

// PersistentKeys returns the durable keys that hold a live value or have a
// record in storage, sorted.
func (f *Facade) PersistentKeys() []string {
	seen := make(map[string]struct{})
	for _, key := range f.rt.store.Keys() {
		if IsDurable(key) {
			seen[key] = struct{}{}
		}
	}

	ctx, cancel := f.rt.opContext()
	defer cancel()
	stored, err := f.rt.persist.ListDurableKeys(ctx)
	if err != nil {
		f.rt.persist.report("", err)
	}
	for _, key := range stored {
		seen[key] = struct{}{}
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
