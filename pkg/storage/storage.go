package storage

import (
	"context"

	"github.com/vango-dev/sharedstate/internal/errors"
)

// Storage is an origin-scoped key/value store of text values.
// Implementations must be safe for concurrent use.
type Storage interface {
	// GetItem returns the value stored under key.
	// Returns ("", false, nil) if the key does not exist.
	GetItem(ctx context.Context, key string) (string, bool, error)

	// SetItem stores value under key, overwriting any previous value.
	SetItem(ctx context.Context, key, value string) error

	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(ctx context.Context, key string) error

	// Keys lists every key in the origin, including keys written by
	// other systems sharing it.
	Keys(ctx context.Context) ([]string, error)
}

// Event announces a change made by another context of the same origin.
type Event struct {
	// Key is the storage key that changed.
	Key string `json:"key"`

	// Value is the new value. Empty when Removed is set.
	Value string `json:"value,omitempty"`

	// Removed reports that the key was deleted.
	Removed bool `json:"removed,omitempty"`

	// Source identifies the writing context.
	Source string `json:"source,omitempty"`
}

// Notifier delivers change events originating in other contexts.
// The channel is closed when the notifier shuts down.
type Notifier interface {
	Events() <-chan Event
}

// Publisher forwards locally originated changes to other contexts.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// ErrClosed is returned when operations are attempted on a closed storage.
var ErrClosed = errors.New("E106")
