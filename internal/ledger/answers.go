package ledger

import (
	"time"

	"github.com/roach88/callrecon/internal/call"
)

// AnswerSet records answers that have already been reconciled, keyed on
// phone key and minute bucket so a re-rendered answered row is a no-op.
type AnswerSet struct {
	set *Bounded[call.AnswerKey, time.Time]
}

// NewAnswerSet creates an empty set with the given capacity.
func NewAnswerSet(capacity int) *AnswerSet {
	return &AnswerSet{set: NewBounded[call.AnswerKey, time.Time](capacity)}
}

// Seen reports whether the answer key was already processed.
func (a *AnswerSet) Seen(key call.AnswerKey) bool {
	return a.set.Has(key)
}

// Mark records the answer key as processed at the answer time.
func (a *AnswerSet) Mark(key call.AnswerKey, at time.Time) {
	a.set.Put(key, at)
}

// Len returns the number of processed answers.
func (a *AnswerSet) Len() int {
	return a.set.Len()
}

// Reset clears the set.
func (a *AnswerSet) Reset() {
	a.set.Reset()
}

func (a *AnswerSet) sweep(now time.Time, horizon time.Duration) int {
	cutoff := now.Add(-horizon)
	return len(a.set.Evict(func(_ call.AnswerKey, at time.Time) bool {
		return at.After(cutoff)
	}))
}
