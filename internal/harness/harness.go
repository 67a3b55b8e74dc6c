package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/callrecon/internal/call"
	"github.com/roach88/callrecon/internal/delivery"
	"github.com/roach88/callrecon/internal/engine"
	"github.com/roach88/callrecon/internal/store"
	"github.com/roach88/callrecon/internal/testutil"
)

// OutcomeDiscarded marks a delivery whose session ended before its result
// arrived.
const OutcomeDiscarded = "discarded"

// DefaultSource is the provenance string used when a scenario sets none.
const DefaultSource = "harness"

// errSinkUnavailable is the failure reported by deliver: fail steps.
var errSinkUnavailable = errors.New("sink unavailable")

// Harness drives one engine synchronously. It is the engine's Deliverer:
// dispatched deliveries are recorded and held until a deliver step
// completes them.
type Harness struct {
	store      *store.Store
	engine     *engine.Engine
	generation *engine.Generation
	clock      *testutil.ManualClock
	opts       []engine.Option

	result  *Result
	pending []int
}

// Run executes a scenario against a fresh in-memory store and evaluates
// its assertions. The error is non-nil only when a step cannot be
// executed; failed assertions are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	now, err := time.Parse(time.RFC3339, scenario.Now)
	if err != nil {
		return nil, fmt.Errorf("now: %w", err)
	}
	loc := now.Location()

	st := store.New(store.NewMemoryBackend())
	defer st.Close()

	h := &Harness{
		store:      st,
		generation: engine.NewGeneration(),
		clock:      testutil.NewManualClock(now),
		result:     NewResult(),
	}

	source := scenario.Source
	if source == "" {
		source = DefaultSource
	}
	h.opts = []engine.Option{
		engine.WithClock(h.clock.Now),
		engine.WithLocation(loc),
		engine.WithSource(source),
		engine.WithIDGenerator(delivery.NewSequenceGenerator("d")),
		engine.WithGeneration(h.generation),
	}
	if scenario.MatchWindow != "" {
		d, err := time.ParseDuration(scenario.MatchWindow)
		if err != nil {
			return nil, fmt.Errorf("match_window: %w", err)
		}
		h.opts = append(h.opts, engine.WithMatchWindow(d))
	}
	if scenario.MaxCandidates > 0 {
		h.opts = append(h.opts, engine.WithMaxCandidates(scenario.MaxCandidates))
	}

	ctx := context.Background()
	h.start(ctx)

	for i, step := range scenario.Steps {
		if err := h.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	records, err := h.records(ctx, loc)
	if err != nil {
		return nil, err
	}
	h.result.Records = records

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func (h *Harness) start(ctx context.Context) {
	h.engine = engine.New(h.store, h, h.opts...)
	h.engine.Load(ctx)
}

// Dispatch implements engine.Deliverer.
func (h *Harness) Dispatch(_ context.Context, d delivery.Delivery) {
	h.result.Trace = append(h.result.Trace, TraceEvent{
		Seq:       len(h.result.Trace) + 1,
		ID:        d.ID,
		Kind:      d.Kind,
		RecordKey: d.RecordKey.String(),
		Payload:   d.Payload,
		Outcome:   OutcomePending,
		delivery:  d,
	})
	h.pending = append(h.pending, len(h.result.Trace)-1)
}

func (h *Harness) execute(ctx context.Context, step Step) error {
	switch {
	case step.Rows != nil:
		h.engine.HandleObservation(ctx, step.Rows)

	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		h.clock.Advance(d)

	case step.Deliver != "":
		h.deliver(ctx, step.Deliver == DeliverOK)

	case step.Acknowledge != "":
		key, err := call.ParseRecordKey(step.Acknowledge)
		if err != nil {
			return err
		}
		if err := h.engine.HandleAcknowledge(ctx, key); err != nil {
			return fmt.Errorf("acknowledge %s: %w", step.Acknowledge, err)
		}

	case step.Sweep:
		h.engine.Sweep(ctx)

	case step.Restart:
		return h.restart(ctx)

	default:
		return fmt.Errorf("empty step")
	}
	return nil
}

// deliver completes every pending delivery in dispatch order.
func (h *Harness) deliver(ctx context.Context, ok bool) {
	pending := h.pending
	h.pending = nil

	for _, i := range pending {
		ev := &h.result.Trace[i]
		res := delivery.Result{Delivery: ev.delivery}
		if ok {
			ev.Outcome = OutcomeDelivered
		} else {
			ev.Outcome = OutcomeFailed
			res.Err = errSinkUnavailable
		}
		h.engine.HandleResult(ctx, res)
	}
}

// restart ends the session the way a monitor stop does and builds a new
// engine over the same store. Deliveries still pending are discarded.
func (h *Harness) restart(ctx context.Context) error {
	h.engine.Stop()
	// Run on a stopped engine drains the closed queue and persists.
	if err := h.engine.Run(ctx); err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	for _, i := range h.pending {
		h.result.Trace[i].Outcome = OutcomeDiscarded
	}
	h.pending = nil
	h.start(ctx)
	return nil
}

func (h *Harness) records(ctx context.Context, loc *time.Location) ([]RecordView, error) {
	state, report := h.store.Load(ctx)
	if len(report.Corrupt) > 0 {
		return nil, fmt.Errorf("corrupt state sections: %v", report.Corrupt)
	}

	recs := state.Records
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].Timestamp.Equal(recs[j].Timestamp) {
			return recs[i].Timestamp.Before(recs[j].Timestamp)
		}
		return recs[i].PhoneKey < recs[j].PhoneKey
	})

	views := make([]RecordView, 0, len(recs))
	for _, r := range recs {
		views = append(views, RecordView{
			Contact:    r.Contact,
			PhoneKey:   r.PhoneKey,
			Timestamp:  r.Timestamp.In(loc).Format(time.RFC3339),
			State:      r.State(),
			CalledBack: r.CalledBack,
		})
	}
	return views, nil
}
