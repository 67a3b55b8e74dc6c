// Package monitor drives the reconciliation engine from a live source.
//
// Three triggers feed one observation path: source change notifications,
// a short top-check tick, and a jittered fallback poll. Notifications and
// top-checks only observe when the top of the view changed; the poll
// always observes. A separate tick requests eviction sweeps.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/callrecon/internal/call"
	"github.com/roach88/callrecon/internal/delivery"
	"github.com/roach88/callrecon/internal/engine"
	"github.com/roach88/callrecon/internal/source"
	"github.com/roach88/callrecon/internal/store"
)

// ErrAlreadyRunning is returned by Start on a running monitor.
var ErrAlreadyRunning = errors.New("monitor already running")

// Options sets the trigger cadence and delivery limits.
type Options struct {
	PollInterval     time.Duration
	TopCheckInterval time.Duration
	SweepInterval    time.Duration
	Jitter           float64

	DeliveryTimeout     time.Duration
	DeliveryConcurrency int
}

// DefaultOptions returns the standard cadence.
func DefaultOptions() Options {
	return Options{
		PollInterval:        5 * time.Second,
		TopCheckInterval:    time.Second,
		SweepInterval:       time.Minute,
		Jitter:              0.2,
		DeliveryTimeout:     delivery.DefaultTimeout,
		DeliveryConcurrency: delivery.DefaultConcurrency,
	}
}

// Status is the user-visible monitor state.
type Status struct {
	Monitoring     bool
	Generation     uint64
	Delivered      int
	Updated        int
	Failed         int
	Records        int
	Pending        int
	InFlight       int
	Observations   int64
	LastError      string
	LastObservedAt time.Time
}

// String renders the coarse status line.
func (s Status) String() string {
	state := "stopped"
	if s.Monitoring {
		state = "monitoring"
	}
	line := fmt.Sprintf("%s: %d delivered, %d updated, %d pending, %d failed",
		state, s.Delivered, s.Updated, s.Pending, s.Failed)
	if s.LastError != "" {
		line += " (last error: " + s.LastError + ")"
	}
	return line
}

// Monitor owns one engine per monitoring session.
type Monitor struct {
	src        source.Source
	store      *store.Store
	sink       delivery.Sink
	opts       Options
	engineOpts []engine.Option
	generation *engine.Generation

	mu         sync.Mutex
	running    bool
	engine     *engine.Engine
	dispatcher *delivery.Dispatcher
	cancel     context.CancelFunc
	engineDone chan struct{}
	wg         sync.WaitGroup
	lastErr    string

	observations atomic.Int64
}

// New creates a stopped monitor. The source is not closed by the monitor.
func New(src source.Source, st *store.Store, sink delivery.Sink, opts Options, engineOpts ...engine.Option) *Monitor {
	def := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.TopCheckInterval <= 0 {
		opts.TopCheckInterval = def.TopCheckInterval
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = def.SweepInterval
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = def.DeliveryTimeout
	}
	if opts.DeliveryConcurrency <= 0 {
		opts.DeliveryConcurrency = def.DeliveryConcurrency
	}
	return &Monitor{
		src:        src,
		store:      st,
		sink:       sink,
		opts:       opts,
		engineOpts: engineOpts,
		generation: engine.NewGeneration(),
	}
}

// Start loads state, builds a fresh engine and starts the trigger loop.
// The monitor runs until Stop or until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}

	var e *engine.Engine
	d := delivery.NewDispatcher(m.sink,
		func(res delivery.Result) { e.Report(res) },
		delivery.WithTimeout(m.opts.DeliveryTimeout),
		delivery.WithConcurrency(m.opts.DeliveryConcurrency),
	)
	opts := append(append([]engine.Option(nil), m.engineOpts...), engine.WithGeneration(m.generation))
	e = engine.New(m.store, d, opts...)
	e.Load(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	m.engine = e
	m.dispatcher = d
	m.cancel = cancel
	m.running = true
	m.lastErr = ""

	done := make(chan struct{})
	m.engineDone = done
	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		defer close(done)
		if err := e.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("engine loop exited", "error", err)
		}
	}()
	go func() {
		defer m.wg.Done()
		m.triggerLoop(runCtx, e)
	}()

	slog.Info("monitor started", "generation", m.generation.Current())
	return nil
}

// Stop ends the session: the generation advances, queued events drain,
// the engine persists its final state, then timers stop and the in-flight
// set is cleared. Stop waits for both loops to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	e, d, cancel, done := m.engine, m.dispatcher, m.cancel, m.engineDone
	m.mu.Unlock()

	e.Stop()
	<-done
	cancel()
	d.Reset()
	m.wg.Wait()

	slog.Info("monitor stopped", "generation", m.generation.Current())
}

// Running reports whether a session is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Acknowledge marks a record as called back. It returns false when the
// monitor is not running.
func (m *Monitor) Acknowledge(key call.RecordKey) bool {
	m.mu.Lock()
	e, running := m.engine, m.running
	m.mu.Unlock()
	if !running {
		return false
	}
	return e.Acknowledge(key)
}

// Status returns the current status. After Stop it reports the final
// state of the last session.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	e, d, running, lastErr := m.engine, m.dispatcher, m.running, m.lastErr
	m.mu.Unlock()

	st := Status{
		Monitoring:   running,
		Generation:   m.generation.Current(),
		Observations: m.observations.Load(),
		LastError:    lastErr,
	}
	if e != nil {
		es := e.Status()
		st.Delivered = es.Delivered
		st.Updated = es.Updated
		st.Failed = es.Failed
		st.Records = es.Records
		st.Pending = es.Pending
		st.LastObservedAt = es.LastObservedAt
		if es.LastError != "" {
			st.LastError = es.LastError
		}
	}
	if d != nil && running {
		st.InFlight = d.Pending()
	}
	return st
}

func (m *Monitor) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err.Error()
	m.mu.Unlock()
}

// triggerLoop multiplexes the observation triggers. It owns lastTop.
func (m *Monitor) triggerLoop(ctx context.Context, e *engine.Engine) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var changes <-chan struct{}
	if n, ok := m.src.(source.Notifier); ok {
		changes = n.Changes()
	}

	poll := time.NewTimer(jitteredInterval(m.opts.PollInterval, m.opts.Jitter, rng.Float64()))
	defer poll.Stop()
	topCheck := time.NewTicker(m.opts.TopCheckInterval)
	defer topCheck.Stop()
	sweep := time.NewTicker(m.opts.SweepInterval)
	defer sweep.Stop()

	lastTop := ""
	observe := func(force bool) {
		rows, err := m.src.Rows(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("source read failed", "error", err)
				m.setLastError(err)
			}
			return
		}
		top := topSignature(rows)
		if !force && top == lastTop {
			return
		}
		lastTop = top
		if e.Observe(rows) {
			m.observations.Add(1)
		}
	}

	observe(true)
	for {
		select {
		case <-ctx.Done():
			return

		case <-changes:
			observe(false)

		case <-topCheck.C:
			observe(false)

		case <-poll.C:
			observe(true)
			poll.Reset(jitteredInterval(m.opts.PollInterval, m.opts.Jitter, rng.Float64()))

		case <-sweep.C:
			e.RequestSweep()
		}
	}
}

// topSignature identifies the first rendered row and the row count.
func topSignature(rows []call.Row) string {
	if len(rows) == 0 {
		return ""
	}
	r := rows[0]
	return strings.Join([]string{
		fmt.Sprint(len(rows)),
		r.SourceIndex,
		r.Contact,
		r.Timestamp,
		r.Type,
		r.Text,
	}, "\x1f")
}
