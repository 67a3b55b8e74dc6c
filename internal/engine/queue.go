package engine

import (
	"sync"

	"github.com/roach88/callrecon/internal/call"
	"github.com/roach88/callrecon/internal/delivery"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeObservation carries one snapshot of source rows.
	EventTypeObservation EventType = iota + 1
	// EventTypeDeliveryResult carries the outcome of a delivery.
	EventTypeDeliveryResult
	// EventTypeSweep requests an eviction pass.
	EventTypeSweep
	// EventTypeAcknowledge marks a record as called back.
	EventTypeAcknowledge
)

func (t EventType) String() string {
	switch t {
	case EventTypeObservation:
		return "observation"
	case EventTypeDeliveryResult:
		return "delivery_result"
	case EventTypeSweep:
		return "sweep"
	case EventTypeAcknowledge:
		return "acknowledge"
	default:
		return "unknown"
	}
}

// Event is one unit of work for the Run loop.
type Event struct {
	Type      EventType
	Rows      []call.Row
	Result    *delivery.Result
	RecordKey call.RecordKey

	// Generation is the engine generation at submission. Observations and
	// sweeps from an earlier generation are dropped.
	Generation uint64
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so that delivery goroutines and the monitor's
// trigger loop never block on a busy engine.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Nil out the slot so the backing array does not retain row slices.
	q.events[0] = Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// The channel is closed when the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close signals that no more events will be enqueued.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
