package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/callrecon/internal/call"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestWindow(now time.Time) (*Window, *fakeClock) {
	clk := &fakeClock{t: now}
	return New(DefaultHorizon, DefaultCapacity, clk.Now), clk
}

func TestRecord_KeepsTimeOrder(t *testing.T) {
	base := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	w, _ := newTestWindow(base)

	w.Record("p", base.Add(-10*time.Minute), call.KindMissed)
	w.Record("p", base.Add(-30*time.Minute), call.KindAnswered)
	w.Record("p", base.Add(-20*time.Minute), call.KindMissed)

	entries := w.Entries("p")
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].At.Before(entries[i-1].At), "entries must be non-decreasing")
	}
	assert.Equal(t, call.KindAnswered, entries[0].Kind)
}

func TestRecord_PrunesOlderThanHorizon(t *testing.T) {
	base := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	w, clk := newTestWindow(base)

	w.Record("p", base.Add(-90*time.Minute), call.KindMissed)
	clk.t = base.Add(time.Hour)
	w.Record("p", base.Add(50*time.Minute), call.KindMissed)

	entries := w.Entries("p")
	require.Len(t, entries, 1)
	assert.True(t, entries[0].At.Equal(base.Add(50*time.Minute)))
}

func TestRecord_CapsToMostRecent(t *testing.T) {
	base := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	w, _ := newTestWindow(base)

	for i := 0; i < 15; i++ {
		w.Record("p", base.Add(-time.Duration(60-i)*time.Minute), call.KindMissed)
	}

	entries := w.Entries("p")
	require.Len(t, entries, DefaultCapacity)
	assert.True(t, entries[0].At.Equal(base.Add(-55*time.Minute)))
	assert.True(t, entries[len(entries)-1].At.Equal(base.Add(-46*time.Minute)))
}

func TestHasAnsweredNear(t *testing.T) {
	base := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	w, _ := newTestWindow(base)

	answered := base.Add(-30 * time.Minute)
	w.Record("p", answered, call.KindAnswered)
	w.Record("p", base.Add(-5*time.Minute), call.KindMissed)

	assert.True(t, w.HasAnsweredNear("p", answered.Add(-time.Hour), time.Hour), "boundary is inclusive")
	assert.True(t, w.HasAnsweredNear("p", answered.Add(time.Hour), time.Hour))
	assert.False(t, w.HasAnsweredNear("p", answered.Add(-61*time.Minute), time.Hour))
	assert.False(t, w.HasAnsweredNear("other", answered, time.Hour))
}

func TestHasAnsweredNear_IgnoresMissed(t *testing.T) {
	base := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	w, _ := newTestWindow(base)

	w.Record("p", base, call.KindMissed)
	assert.False(t, w.HasAnsweredNear("p", base, time.Hour))
}

func TestFirstAnsweredAfter(t *testing.T) {
	base := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	w, _ := newTestWindow(base)

	w.Record("p", base.Add(-40*time.Minute), call.KindAnswered)
	w.Record("p", base.Add(-10*time.Minute), call.KindAnswered)

	at, ok := w.FirstAnsweredAfter("p", base.Add(-50*time.Minute), time.Hour)
	require.True(t, ok)
	assert.True(t, at.Equal(base.Add(-40*time.Minute)))

	_, ok = w.FirstAnsweredAfter("p", base.Add(-10*time.Minute), time.Hour)
	assert.False(t, ok, "an answer at the same instant is not after")
}

func TestSweep_DropsExpiredPhones(t *testing.T) {
	base := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	w, clk := newTestWindow(base)

	w.Record("a", base, call.KindMissed)
	w.Record("b", base.Add(90*time.Minute), call.KindMissed)
	require.Equal(t, 2, w.Len())

	clk.t = base.Add(150 * time.Minute)
	removed := w.Sweep()

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, w.Len())
	assert.Empty(t, w.Entries("a"))
}

func TestSnapshotRestore(t *testing.T) {
	base := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	w, _ := newTestWindow(base)
	w.Record("p", base.Add(-time.Minute), call.KindAnswered)

	snap := w.Snapshot()
	other, _ := newTestWindow(base)
	other.Restore(snap)

	assert.Equal(t, w.Entries("p"), other.Entries("p"))

	// Mutating the snapshot does not leak into either window.
	snap["p"][0].Kind = call.KindMissed
	assert.Equal(t, call.KindAnswered, other.Entries("p")[0].Kind)
}

func TestRestore_SortsAndPrunes(t *testing.T) {
	base := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	w, _ := newTestWindow(base)

	w.Restore(map[string][]Entry{
		"p": {
			{At: base.Add(-time.Minute), Kind: call.KindMissed},
			{At: base.Add(-3 * time.Hour), Kind: call.KindMissed},
			{At: base.Add(-time.Hour), Kind: call.KindAnswered},
		},
	})

	entries := w.Entries("p")
	require.Len(t, entries, 2)
	assert.Equal(t, call.KindAnswered, entries[0].Kind)
}
