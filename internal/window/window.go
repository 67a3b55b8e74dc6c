// Package window keeps a short per-phone history of recent calls so the
// engine can ask "was this number answered around then?" without scanning
// durable records.
package window

import (
	"sort"
	"time"

	"github.com/roach88/callrecon/internal/call"
)

// Defaults for the recent-call window.
const (
	DefaultHorizon  = 2 * time.Hour
	DefaultCapacity = 10
)

// Entry is one observed call for a phone key.
type Entry struct {
	At   time.Time `json:"at"`
	Kind call.Kind `json:"kind"`
}

// Window is a bounded, per-phone, time-ordered call history.
//
// Entries for a phone are non-decreasing in time, never older than the
// horizon relative to now, and capped to the most recent capacity entries.
// Window is not safe for concurrent use; the engine owns it.
type Window struct {
	horizon  time.Duration
	capacity int
	now      func() time.Time
	entries  map[string][]Entry
}

// New creates an empty window. now supplies the pruning reference time.
func New(horizon time.Duration, capacity int, now func() time.Time) *Window {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &Window{
		horizon:  horizon,
		capacity: capacity,
		now:      now,
		entries:  make(map[string][]Entry),
	}
}

// Record inserts an entry in time order, then prunes the phone's history.
func (w *Window) Record(phoneKey string, at time.Time, kind call.Kind) {
	list := w.entries[phoneKey]
	i := sort.Search(len(list), func(i int) bool { return list[i].At.After(at) })
	list = append(list, Entry{})
	copy(list[i+1:], list[i:])
	list[i] = Entry{At: at, Kind: kind}

	w.store(phoneKey, w.prune(list))
}

// HasAnsweredNear reports whether an answered entry lies within ±d of t.
func (w *Window) HasAnsweredNear(phoneKey string, t time.Time, d time.Duration) bool {
	return w.HasAnsweredBetween(phoneKey, t.Add(-d), t.Add(d))
}

// HasAnsweredBetween reports whether an answered entry lies in [from, to].
func (w *Window) HasAnsweredBetween(phoneKey string, from, to time.Time) bool {
	for _, e := range w.entries[phoneKey] {
		if e.Kind != call.KindAnswered {
			continue
		}
		if !e.At.Before(from) && !e.At.After(to) {
			return true
		}
	}
	return false
}

// FirstAnsweredAfter returns the earliest answered entry strictly after t and
// no later than t+d.
func (w *Window) FirstAnsweredAfter(phoneKey string, t time.Time, d time.Duration) (time.Time, bool) {
	limit := t.Add(d)
	for _, e := range w.entries[phoneKey] {
		if e.Kind == call.KindAnswered && e.At.After(t) && !e.At.After(limit) {
			return e.At, true
		}
	}
	return time.Time{}, false
}

// Entries returns a copy of the phone's history, oldest first.
func (w *Window) Entries(phoneKey string) []Entry {
	list := w.entries[phoneKey]
	out := make([]Entry, len(list))
	copy(out, list)
	return out
}

// Len returns the number of tracked phone keys.
func (w *Window) Len() int {
	return len(w.entries)
}

// Sweep prunes every phone's history and drops empty phones.
func (w *Window) Sweep() int {
	removed := 0
	for key, list := range w.entries {
		before := len(list)
		list = w.prune(list)
		removed += before - len(list)
		w.store(key, list)
	}
	return removed
}

// Reset drops all history.
func (w *Window) Reset() {
	w.entries = make(map[string][]Entry)
}

// Snapshot returns a deep copy suitable for persistence.
func (w *Window) Snapshot() map[string][]Entry {
	out := make(map[string][]Entry, len(w.entries))
	for key := range w.entries {
		out[key] = w.Entries(key)
	}
	return out
}

// Restore replaces the window contents, re-establishing ordering and bounds.
func (w *Window) Restore(snapshot map[string][]Entry) {
	w.Reset()
	for key, list := range snapshot {
		cp := make([]Entry, len(list))
		copy(cp, list)
		sort.SliceStable(cp, func(i, j int) bool { return cp[i].At.Before(cp[j].At) })
		w.store(key, w.prune(cp))
	}
}

func (w *Window) prune(list []Entry) []Entry {
	cutoff := w.now().Add(-w.horizon)
	start := sort.Search(len(list), func(i int) bool { return !list[i].At.Before(cutoff) })
	if n := len(list) - start; n > w.capacity {
		start = len(list) - w.capacity
	}
	return list[start:]
}

func (w *Window) store(key string, list []Entry) {
	if len(list) == 0 {
		delete(w.entries, key)
		return
	}
	w.entries[key] = list
}
