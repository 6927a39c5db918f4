package storage

import (
	"log/slog"
	"sync"
)

// eventQueue feeds a buffered channel from a backlog keyed by storage key.
// While the consumer keeps up, events pass through in order. Once the
// channel is full, a newer event for a key replaces the pending one for the
// same key, so a slow consumer skips intermediate values but always
// receives the latest change of every key.
type eventQueue struct {
	out    chan Event
	logger *slog.Logger

	mu      sync.Mutex
	order   []string
	pending map[string]Event
	closed  bool

	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

func newEventQueue(size int, logger *slog.Logger) *eventQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &eventQueue{
		out:     make(chan Event, size),
		logger:  logger,
		pending: make(map[string]Event),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go q.pump()
	return q
}

// push queues ev without blocking. It returns false once the queue is
// closed.
func (q *eventQueue) push(ev Event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if _, ok := q.pending[ev.Key]; ok {
		q.logger.Debug("storage: coalescing pending event", "key", ev.Key)
	} else {
		q.order = append(q.order, ev.Key)
	}
	q.pending[ev.Key] = ev
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *eventQueue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return Event{}, false
	}
	key := q.order[0]
	q.order = q.order[1:]
	ev := q.pending[key]
	delete(q.pending, key)
	return ev, true
}

func (q *eventQueue) pump() {
	defer close(q.stopped)
	defer close(q.out)
	for {
		ev, ok := q.pop()
		if !ok {
			select {
			case <-q.wake:
				continue
			case <-q.done:
				return
			}
		}
		select {
		case q.out <- ev:
		case <-q.done:
			return
		}
	}
}

// close discards the backlog, stops the pump and closes the channel.
// It is idempotent and returns once the channel is closed.
func (q *eventQueue) close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.order = nil
		q.pending = nil
		close(q.done)
	}
	q.mu.Unlock()
	<-q.stopped
}
