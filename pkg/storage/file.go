package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

const (
	recordExt = ".rec"
	tmpPrefix = ".tmp-"
)

// record is the on-disk envelope of one item.
type record struct {
	Source string `json:"source"`
	Value  string `json:"value"`
}

// File stores one origin in a directory, one record file per key. Several
// processes may open the same directory; each one that runs Watch receives
// the changes made by the others.
type File struct {
	dir    string
	id     string
	logger *slog.Logger

	queueSize int
	queue     *eventQueue

	mu      sync.Mutex
	closed  bool
	seen    map[string]string
	removes map[string]int
}

// FileOption configures a File storage.
type FileOption func(*File)

// WithFileLogger sets the logger used by the watcher.
func WithFileLogger(logger *slog.Logger) FileOption {
	return func(f *File) {
		f.logger = logger
	}
}

// WithContextID overrides the generated context identifier.
func WithContextID(id string) FileOption {
	return func(f *File) {
		if id != "" {
			f.id = id
		}
	}
}

// WithFileQueueSize sets how many events are buffered before pending
// events for the same key are coalesced.
func WithFileQueueSize(n int) FileOption {
	return func(f *File) {
		if n > 0 {
			f.queueSize = n
		}
	}
}

// NewFile opens (creating if needed) a directory-backed origin.
func NewFile(dir string, opts ...FileOption) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}

	f := &File{
		dir:       dir,
		id:        uuid.NewString(),
		logger:    slog.Default(),
		seen:      make(map[string]string),
		removes:   make(map[string]int),
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.queue = newEventQueue(f.queueSize, f.logger)
	return f, nil
}

// ID returns the context identifier written into every record.
func (f *File) ID() string {
	return f.id
}

// Dir returns the origin directory.
func (f *File) Dir() string {
	return f.dir
}

// Events returns the channel of changes made by other processes.
// Events only flow while Watch is running.
func (f *File) Events() <-chan Event {
	return f.queue.out
}

// GetItem reads the record for key.
func (f *File) GetItem(_ context.Context, key string) (string, bool, error) {
	if f.isClosed() {
		return "", false, ErrClosed
	}

	rec, err := readRecord(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: read %q: %w", key, err)
	}
	return rec.Value, true, nil
}

// SetItem atomically replaces the record for key.
func (f *File) SetItem(_ context.Context, key, value string) error {
	if f.isClosed() {
		return ErrClosed
	}

	data, err := json.Marshal(record{Source: f.id, Value: value})
	if err != nil {
		return fmt.Errorf("storage: encode %q: %w", key, err)
	}

	tmp, err := os.CreateTemp(f.dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: write %q: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("storage: write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: write %q: %w", key, err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: write %q: %w", key, err)
	}

	f.mu.Lock()
	f.seen[key] = value
	f.mu.Unlock()
	return nil
}

// RemoveItem deletes the record for key.
func (f *File) RemoveItem(_ context.Context, key string) error {
	if f.isClosed() {
		return ErrClosed
	}

	f.mu.Lock()
	f.removes[key]++
	f.mu.Unlock()

	err := os.Remove(f.path(key))
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		f.mu.Lock()
		if err != nil {
			f.forgetRemoval(key)
		}
		delete(f.seen, key)
		f.mu.Unlock()
		return nil
	}

	f.mu.Lock()
	f.forgetRemoval(key)
	f.mu.Unlock()
	return fmt.Errorf("storage: remove %q: %w", key, err)
}

// Keys lists every key with a record in the directory.
func (f *File) Keys(_ context.Context) ([]string, error) {
	if f.isClosed() {
		return nil, ErrClosed
	}

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", f.dir, err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if key, ok := decodeName(entry.Name()); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Watch converts filesystem notifications on the directory into Events
// until ctx is done. Changes written by this context are not reported.
func (f *File) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("storage: watch %s: %w", f.dir, err)
	}
	defer w.Close()

	if err := w.Add(f.dir); err != nil {
		return fmt.Errorf("storage: watch %s: %w", f.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			f.handle(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("storage: watcher error", "dir", f.dir, "error", err)
		}
	}
}

// Close stops event delivery. Records stay on disk.
func (f *File) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	f.queue.close()
	return nil
}

func (f *File) handle(ev fsnotify.Event) {
	key, ok := decodeName(filepath.Base(ev.Name))
	if !ok {
		return
	}

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		rec, err := readRecord(ev.Name)
		if err != nil {
			// Partially written or already replaced; the final write
			// produces its own notification.
			return
		}

		f.mu.Lock()
		last, known := f.seen[key]
		f.seen[key] = rec.Value
		f.mu.Unlock()

		if rec.Source == f.id || (known && last == rec.Value) {
			return
		}
		f.emit(Event{Key: key, Value: rec.Value, Source: rec.Source})

	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		if _, err := os.Stat(ev.Name); err == nil {
			return
		}

		f.mu.Lock()
		own := f.removes[key] > 0
		if own {
			f.forgetRemoval(key)
		}
		delete(f.seen, key)
		f.mu.Unlock()

		if !own {
			f.emit(Event{Key: key, Removed: true})
		}
	}
}

func (f *File) emit(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	f.queue.push(ev)
}

// forgetRemoval must be called with f.mu held.
func (f *File) forgetRemoval(key string) {
	if f.removes[key] <= 1 {
		delete(f.removes, key)
		return
	}
	f.removes[key]--
}

func (f *File) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, encodeName(key))
}

func readRecord(path string) (record, error) {
	var rec record
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// encodeName maps an arbitrary key to a portable file name.
func encodeName(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key)) + recordExt
}

func decodeName(name string) (string, bool) {
	if strings.HasPrefix(name, tmpPrefix) || !strings.HasSuffix(name, recordExt) {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, recordExt))
	if err != nil {
		return "", false
	}
	return string(raw), true
}
