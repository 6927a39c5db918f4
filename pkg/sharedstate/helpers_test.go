package sharedstate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/sharedstate/pkg/storage"
)

// countingStorage records the writes that reach the wrapped medium.
type countingStorage struct {
	storage.Storage

	mu      sync.Mutex
	sets    []string
	removes []string
}

func (c *countingStorage) SetItem(ctx context.Context, key, value string) error {
	c.mu.Lock()
	c.sets = append(c.sets, key)
	c.mu.Unlock()
	return c.Storage.SetItem(ctx, key, value)
}

func (c *countingStorage) RemoveItem(ctx context.Context, key string) error {
	c.mu.Lock()
	c.removes = append(c.removes, key)
	c.mu.Unlock()
	return c.Storage.RemoveItem(ctx, key)
}

func (c *countingStorage) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sets)
}

var errDiskFull = errors.New("no space left on device")

// failingStorage fails every write.
type failingStorage struct {
	storage.Storage
}

func (failingStorage) SetItem(context.Context, string, string) error { return errDiskFull }

// persistErrors collects OnPersistError reports.
type persistErrors struct {
	mu   sync.Mutex
	keys []string
	errs []error
}

func (p *persistErrors) hook(key string, err error) {
	p.mu.Lock()
	p.keys = append(p.keys, key)
	p.errs = append(p.errs, err)
	p.mu.Unlock()
}

func (p *persistErrors) last() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.errs) == 0 {
		return nil
	}
	return p.errs[len(p.errs)-1]
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("%s: expected panic", name)
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrEmptyKey) {
			t.Fatalf("%s: panic value = %v, want ErrEmptyKey", name, r)
		}
	}()
	fn()
}
