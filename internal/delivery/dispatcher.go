package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultConcurrency bounds simultaneous sink requests.
const DefaultConcurrency = 4

// Result is the outcome of one delivery attempt.
type Result struct {
	Delivery Delivery
	Err      error
	Duration time.Duration
}

// Dispatcher sends deliveries asynchronously so the engine loop never waits
// on the network. Results are reported through the onResult callback.
//
// In-flight deliveries are tracked in a pending set. Reset clears the set;
// a result whose delivery is no longer pending is dropped without calling
// onResult. Reset does not cancel requests already on the wire.
type Dispatcher struct {
	sink        Sink
	onResult    func(Result)
	timeout     time.Duration
	concurrency int

	sem     chan struct{}
	mu      sync.Mutex
	pending map[string]Delivery
	wg      sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) DispatcherOption {
	return func(x *Dispatcher) {
		if d > 0 {
			x.timeout = d
		}
	}
}

// WithConcurrency sets the maximum number of requests in flight.
func WithConcurrency(n int) DispatcherOption {
	return func(x *Dispatcher) {
		if n > 0 {
			x.concurrency = n
		}
	}
}

// NewDispatcher creates a dispatcher for sink. onResult is called from the
// sending goroutine and must not block for long.
func NewDispatcher(sink Sink, onResult func(Result), opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sink:        sink,
		onResult:    onResult,
		timeout:     DefaultTimeout,
		concurrency: DefaultConcurrency,
		pending:     make(map[string]Delivery),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.sem = make(chan struct{}, d.concurrency)
	return d
}

// Dispatch queues del for sending and returns immediately. Cancelling ctx
// does not abort the request; only the per-request timeout does.
func (d *Dispatcher) Dispatch(ctx context.Context, del Delivery) {
	d.mu.Lock()
	d.pending[del.ID] = del
	d.mu.Unlock()

	base := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		d.sem <- struct{}{}
		defer func() { <-d.sem }()

		reqCtx, cancel := context.WithTimeout(base, d.timeout)
		defer cancel()

		start := time.Now()
		err := d.sink.Send(reqCtx, del)
		res := Result{Delivery: del, Err: err, Duration: time.Since(start)}

		if !d.complete(del.ID) {
			slog.Debug("discarding result of abandoned delivery",
				"delivery_id", del.ID,
				"kind", del.Kind,
			)
			return
		}
		if d.onResult != nil {
			d.onResult(res)
		}
	}()
}

// complete removes id from the pending set, reporting whether it was there.
func (d *Dispatcher) complete(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pending[id]; !ok {
		return false
	}
	delete(d.pending, id)
	return true
}

// Pending returns the number of deliveries awaiting a result.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Reset abandons every pending delivery.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = make(map[string]Delivery)
}

// Wait blocks until every dispatched goroutine has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
