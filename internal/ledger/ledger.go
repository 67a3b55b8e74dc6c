// Package ledger tracks what the engine has already seen and sent.
//
// The ledger holds three bounded sets: processed source indices, the
// sent-record index (record key -> last known delivery status), and the
// processed-answer set (phone key + minute bucket). All three are evicted
// oldest-first by Sweep, which never drops an entry whose call is still
// inside the answer-matching horizon.
package ledger

import (
	"time"

	"github.com/roach88/callrecon/internal/call"
)

// Default capacities.
const (
	DefaultIndexCapacity  = 300
	DefaultSentCapacity   = 50
	DefaultAnswerCapacity = 50
	DefaultMatchHorizon   = time.Hour
)

// SentStatus is the last known delivery status of a record.
type SentStatus string

const (
	// SentPending means a create delivery is queued or in flight.
	SentPending SentStatus = "pending"
	// SentDelivered means the sink accepted the create.
	SentDelivered SentStatus = "sent"
	// SentFailed means the create failed; it is not retried.
	SentFailed SentStatus = "failed"
	// SentUpdated means an answered update has been queued.
	SentUpdated SentStatus = "updated"
)

// SentRecord is the sent-record index value.
type SentRecord struct {
	Status SentStatus `json:"status"`
	// At is the missed-call timestamp the key refers to.
	At time.Time `json:"at"`
}

// Capacities bounds each ledger set.
type Capacities struct {
	Indices int
	Sent    int
	Answers int
}

// DefaultCapacities returns the standard set sizes.
func DefaultCapacities() Capacities {
	return Capacities{
		Indices: DefaultIndexCapacity,
		Sent:    DefaultSentCapacity,
		Answers: DefaultAnswerCapacity,
	}
}

// Ledger is the engine's dedup memory. It is owned by the engine loop and
// is not safe for concurrent use.
type Ledger struct {
	horizon time.Duration
	indices *Bounded[string, time.Time]
	sent    *Bounded[call.RecordKey, SentRecord]
	answers *AnswerSet
}

// New creates an empty ledger. horizon is the answer-matching window that
// protects recent entries from eviction.
func New(caps Capacities, horizon time.Duration) *Ledger {
	if horizon <= 0 {
		horizon = DefaultMatchHorizon
	}
	return &Ledger{
		horizon: horizon,
		indices: NewBounded[string, time.Time](caps.Indices),
		sent:    NewBounded[call.RecordKey, SentRecord](caps.Sent),
		answers: NewAnswerSet(caps.Answers),
	}
}

// IsNewIndex reports whether the source index has not been processed.
func (l *Ledger) IsNewIndex(index string) bool {
	return !l.indices.Has(index)
}

// MarkIndex records the index as processed. at is the call time of the
// row, used to pin the entry while the call can still be reconciled.
func (l *Ledger) MarkIndex(index string, at time.Time) {
	l.indices.Put(index, at)
}

// TouchIndex moves an already processed index to the newest position, so
// rows that are still visible are the last to be evicted.
func (l *Ledger) TouchIndex(index string) {
	l.indices.Touch(index)
}

// SentRecordStatus returns the last known status for a record key.
func (l *Ledger) SentRecordStatus(key call.RecordKey) (SentStatus, bool) {
	rec, ok := l.sent.Get(key)
	return rec.Status, ok
}

// MarkSent sets the status for a record key.
func (l *Ledger) MarkSent(key call.RecordKey, status SentStatus) {
	l.sent.Put(key, SentRecord{Status: status, At: key.Time()})
}

// Answers returns the processed-answer set.
func (l *Ledger) Answers() *AnswerSet {
	return l.answers
}

// SweepStats counts entries removed by one sweep.
type SweepStats struct {
	Indices int
	Sent    int
	Answers int
}

// Total returns the number of removed entries.
func (s SweepStats) Total() int {
	return s.Indices + s.Sent + s.Answers
}

// Sweep evicts the oldest entries beyond capacity, keeping everything whose
// call time is within the matching horizon of now.
func (l *Ledger) Sweep(now time.Time) SweepStats {
	return SweepStats{
		Indices: len(l.indices.Evict(l.pinTime(now))),
		Sent:    len(l.sent.Evict(func(_ call.RecordKey, r SentRecord) bool { return l.inHorizon(now, r.At) })),
		Answers: l.answers.sweep(now, l.horizon),
	}
}

func (l *Ledger) pinTime(now time.Time) func(string, time.Time) bool {
	return func(_ string, at time.Time) bool {
		return l.inHorizon(now, at)
	}
}

func (l *Ledger) inHorizon(now, at time.Time) bool {
	return at.After(now.Add(-l.horizon))
}

// Len returns the sizes of the three sets.
func (l *Ledger) Len() (indices, sent, answers int) {
	return l.indices.Len(), l.sent.Len(), l.answers.Len()
}

// Reset clears all three sets.
func (l *Ledger) Reset() {
	l.indices.Reset()
	l.sent.Reset()
	l.answers.Reset()
}

// Snapshot is the persisted form of a ledger.
type Snapshot struct {
	Indices []Entry[string, time.Time]          `json:"indices"`
	Sent    []Entry[call.RecordKey, SentRecord] `json:"sent"`
	Answers []Entry[call.AnswerKey, time.Time]  `json:"answers"`
}

// Snapshot returns the ledger contents, oldest first.
func (l *Ledger) Snapshot() Snapshot {
	return Snapshot{
		Indices: l.indices.Entries(),
		Sent:    l.sent.Entries(),
		Answers: l.answers.set.Entries(),
	}
}

// Restore replaces the ledger contents.
func (l *Ledger) Restore(s Snapshot) {
	l.indices.Load(s.Indices)
	l.sent.Load(s.Sent)
	l.answers.set.Load(s.Answers)
}
