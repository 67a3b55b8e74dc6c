package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/callrecon/internal/call"
	"github.com/roach88/callrecon/internal/classify"
	"github.com/roach88/callrecon/internal/delivery"
	"github.com/roach88/callrecon/internal/ledger"
	"github.com/roach88/callrecon/internal/store"
	"github.com/roach88/callrecon/internal/window"
)

// Defaults for the reconciliation parameters.
const (
	DefaultMatchWindow   = time.Hour
	DefaultMaxCandidates = 3
)

// Deliverer accepts deliveries without blocking. Implemented by
// delivery.Dispatcher, which reports results back through Report.
type Deliverer interface {
	Dispatch(ctx context.Context, d delivery.Delivery)
}

// Engine is the single-writer reconciliation loop.
//
// Thread-safety model:
//   - Observe, Report, RequestSweep, Acknowledge, Stop, Status: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - Load and the Handle*/Sweep methods: only from the Run goroutine, or
//     before Run starts
//
// An Engine lives for one monitoring session. Stop advances the generation
// and, once Run returns, the session-scoped ledger, window and processed
// answers are cleared and persisted. Records and stats survive.
type Engine struct {
	store      *store.Store
	deliverer  Deliverer
	classifier *classify.Classifier
	builder    delivery.Builder
	generation *Generation
	now        func() time.Time
	loc        *time.Location

	matchWindow   time.Duration
	maxCandidates int
	limits        store.Limits
	windowHorizon time.Duration
	windowCap     int

	records *store.RecordSet
	ledger  *ledger.Ledger
	window  *window.Window
	stats   store.Stats

	parseFailures  int
	lastErr        *Failure
	lastObservedAt time.Time

	queue    *eventQueue
	stopOnce sync.Once

	statusMu sync.Mutex
	status   Status
}

// Status is a point-in-time view of the engine for status lines.
type Status struct {
	Generation     uint64
	Records        int
	Pending        int
	Delivered      int
	Updated        int
	Failed         int
	ParseFailures  int
	LastError      string
	LastObservedAt time.Time
	LastDeliveryAt time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source. The classifier, window and eviction all
// read it.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLocation sets the zone used to resolve row times and format payloads.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithClassifier replaces the default classifier.
func WithClassifier(c *classify.Classifier) Option {
	return func(e *Engine) {
		e.classifier = c
	}
}

// WithIDGenerator sets the delivery ID generator.
func WithIDGenerator(g delivery.IDGenerator) Option {
	return func(e *Engine) {
		e.builder.IDs = g
	}
}

// WithSource sets the payload source label.
func WithSource(name string) Option {
	return func(e *Engine) {
		e.builder.Source = name
	}
}

// WithMatchWindow sets how far before an answer a missed call may be
// reclassified.
func WithMatchWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.matchWindow = d
		}
	}
}

// WithMaxCandidates caps how many records one answer may reclassify.
func WithMaxCandidates(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxCandidates = n
		}
	}
}

// WithLimits sets the persisted-state caps.
func WithLimits(l store.Limits) Option {
	return func(e *Engine) {
		e.limits = l
	}
}

// WithWindow sets the recent-call window horizon and per-phone capacity.
func WithWindow(horizon time.Duration, capacity int) Option {
	return func(e *Engine) {
		e.windowHorizon = horizon
		e.windowCap = capacity
	}
}

// WithGeneration shares a generation counter across engines.
func WithGeneration(g *Generation) Option {
	return func(e *Engine) {
		if g != nil {
			e.generation = g
		}
	}
}

// New creates an Engine that persists to s and hands deliveries to d.
// Call Load before Run to pick up persisted state.
func New(s *store.Store, d Deliverer, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		deliverer:     d,
		generation:    NewGeneration(),
		now:           time.Now,
		loc:           time.Local,
		matchWindow:   DefaultMatchWindow,
		maxCandidates: DefaultMaxCandidates,
		limits:        store.DefaultLimits(),
		windowHorizon: window.DefaultHorizon,
		windowCap:     window.DefaultCapacity,
		queue:         newEventQueue(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.classifier == nil {
		e.classifier = classify.New(classify.WithNow(e.now), classify.WithLocation(e.loc))
	}
	e.builder.Location = e.loc
	e.records = store.NewRecordSet(e.limits.Records)
	e.ledger = ledger.New(e.limits.Ledger(), e.matchWindow)
	e.window = window.New(e.windowHorizon, e.windowCap, e.now)
	e.publish()

	return e
}

// Load restores persisted state. Unreadable sections are reported as
// StateCorruption and start empty.
func (e *Engine) Load(ctx context.Context) store.LoadReport {
	st, report := e.store.Load(ctx)

	e.records.Load(st.Records)
	e.records.SetWatermark(st.Watermark)
	e.ledger.Restore(st.Ledger)
	e.window.Restore(st.Recent)
	e.stats = st.Stats

	for _, section := range report.Corrupt {
		e.lastErr = &Failure{
			Kind:    StateCorruption,
			Message: fmt.Sprintf("section %q unreadable, started empty", section),
		}
	}

	idx, sent, answers := e.ledger.Len()
	slog.Info("engine state loaded",
		"records", e.records.Len(),
		"indices", idx,
		"sent", sent,
		"answers", answers,
		"corrupt_sections", len(report.Corrupt),
	)

	e.publish()
	return report
}

// Observe submits one snapshot of source rows.
// Returns false if the engine has been stopped.
func (e *Engine) Observe(rows []call.Row) bool {
	return e.queue.Enqueue(Event{
		Type:       EventTypeObservation,
		Rows:       rows,
		Generation: e.generation.Current(),
	})
}

// Report submits a delivery result. It has the signature of a
// delivery.Dispatcher result callback.
func (e *Engine) Report(res delivery.Result) {
	if !e.queue.Enqueue(Event{Type: EventTypeDeliveryResult, Result: &res}) {
		slog.Debug("delivery result after stop dropped",
			"delivery_id", res.Delivery.ID,
			"record_key", res.Delivery.RecordKey.String(),
		)
	}
}

// RequestSweep submits an eviction pass.
func (e *Engine) RequestSweep() bool {
	return e.queue.Enqueue(Event{Type: EventTypeSweep, Generation: e.generation.Current()})
}

// Acknowledge submits a called-back acknowledgment for a record.
func (e *Engine) Acknowledge(key call.RecordKey) bool {
	return e.queue.Enqueue(Event{Type: EventTypeAcknowledge, RecordKey: key})
}

// QueueLen returns the number of events waiting for the loop.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Generation returns the engine's generation counter.
func (e *Engine) Generation() *Generation {
	return e.generation
}

// Run starts the single-writer event loop.
// Blocks until ctx is cancelled or Stop is called, then ends the session.
//
// Event handling never fails the loop: every problem is logged and the
// loop moves on to the next event.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "generation", e.generation.Current())
	defer e.endSession(context.WithoutCancel(ctx))

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processEvent(ctx, event); err != nil {
				slog.Error("event processing failed",
					"event_type", event.Type.String(),
					"error", err,
				)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.Stop()
			return ctx.Err()

		case _, open := <-e.queue.Wait():
			if !open && e.queue.Len() == 0 {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop advances the generation and closes the queue, causing Run to
// return once queued events are drained. Observations and sweeps still
// queued are dropped, and results of deliveries still in flight are
// discarded.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		g := e.generation.Advance()
		slog.Info("engine stop requested", "generation", g)
		e.queue.Close()
	})
}

// Status returns the latest published status.
func (e *Engine) Status() Status {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return e.status
}

func (e *Engine) processEvent(ctx context.Context, event Event) error {
	if e.staleWork(event) {
		slog.Debug("event from previous generation dropped",
			"event_type", event.Type.String(),
			"event_generation", event.Generation,
			"generation", e.generation.Current(),
		)
		return nil
	}

	switch event.Type {
	case EventTypeObservation:
		e.HandleObservation(ctx, event.Rows)
		return nil

	case EventTypeDeliveryResult:
		if event.Result == nil {
			return fmt.Errorf("delivery result event missing result")
		}
		e.HandleResult(ctx, *event.Result)
		return nil

	case EventTypeSweep:
		e.Sweep(ctx)
		return nil

	case EventTypeAcknowledge:
		return e.HandleAcknowledge(ctx, event.RecordKey)

	default:
		return fmt.Errorf("unknown event type: %d", event.Type)
	}
}

// staleWork reports whether event is an observation or sweep submitted
// before the last Stop. Results and acknowledgments are always applied.
func (e *Engine) staleWork(event Event) bool {
	switch event.Type {
	case EventTypeObservation, EventTypeSweep:
		return event.Generation != e.generation.Current()
	default:
		return false
	}
}

// endSession clears session-scoped state and persists what remains.
func (e *Engine) endSession(ctx context.Context) {
	e.ledger.Reset()
	e.window.Reset()
	e.persist(ctx)
	e.publish()
	slog.Info("engine stopped",
		"generation", e.generation.Current(),
		"records", e.records.Len(),
		"delivered", e.stats.Delivered,
	)
}

// fail logs f and remembers it for the status line.
func (e *Engine) fail(f *Failure) {
	logFailure(f)
	e.lastErr = f
}

// publish refreshes the status snapshot read by other goroutines.
func (e *Engine) publish() {
	st := Status{
		Generation:     e.generation.Current(),
		Delivered:      e.stats.Delivered,
		Updated:        e.stats.Updated,
		Failed:         e.stats.Failed,
		ParseFailures:  e.parseFailures,
		LastObservedAt: e.lastObservedAt,
		LastDeliveryAt: e.stats.LastDeliveryAt,
	}
	if e.records != nil {
		st.Records = e.records.Len()
		for _, r := range e.records.All() {
			if !r.IsAnswered {
				st.Pending++
			}
		}
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}

	e.statusMu.Lock()
	e.status = st
	e.statusMu.Unlock()
}
