package harness

import (
	"github.com/roach88/callrecon/internal/call"
	"github.com/roach88/callrecon/internal/delivery"
)

// Delivery outcomes recorded in the trace.
const (
	OutcomePending   = "pending"
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
)

// TraceEvent is one delivery the engine dispatched, in dispatch order.
type TraceEvent struct {
	Seq       int              `json:"seq"`
	ID        string           `json:"id"`
	Kind      delivery.Kind    `json:"kind"`
	RecordKey string           `json:"record_key"`
	Payload   delivery.Payload `json:"payload"`
	Outcome   string           `json:"outcome"`

	delivery delivery.Delivery
}

// RecordView is a persisted record as scenarios see it.
type RecordView struct {
	Contact    string     `json:"contact"`
	PhoneKey   string     `json:"phone_key"`
	Timestamp  string     `json:"timestamp"`
	State      call.State `json:"state"`
	CalledBack bool       `json:"called_back"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	Trace   []TraceEvent `json:"trace"`
	Records []RecordView `json:"records"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Records: []RecordView{},
		Errors:  []string{},
	}
}

// AddError records a failed assertion.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Deliveries returns the trace events of one kind, or all when kind is
// empty.
func (r *Result) Deliveries(kind string) []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if kind == "" || string(ev.Kind) == kind {
			out = append(out, ev)
		}
	}
	return out
}
