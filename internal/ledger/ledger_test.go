package ledger

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/callrecon/internal/call"
)

func TestBounded_PutKeepsInsertionOrder(t *testing.T) {
	b := NewBounded[string, int](10)
	b.Put("a", 1)
	b.Put("b", 2)
	b.Put("a", 3)

	entries := b.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, Entry[string, int]{Key: "a", Value: 3}, entries[0])
	assert.Equal(t, "b", entries[1].Key)
}

func TestBounded_EvictOldestFirst(t *testing.T) {
	b := NewBounded[int, int](3)
	for i := 0; i < 5; i++ {
		b.Put(i, i)
	}
	assert.True(t, b.Over())

	evicted := b.Evict(nil)
	assert.Equal(t, []int{0, 1}, evicted)
	assert.Equal(t, 3, b.Len())
	assert.False(t, b.Over())
}

func TestBounded_TouchMovesToNewest(t *testing.T) {
	b := NewBounded[int, int](3)
	for i := 0; i < 3; i++ {
		b.Put(i, i)
	}
	assert.True(t, b.Touch(0))
	assert.False(t, b.Touch(9))

	b.Put(3, 3)
	assert.Equal(t, []int{1}, b.Evict(nil))
	assert.True(t, b.Has(0), "touched entry outlives later inserts")
}

func TestBounded_EvictSkipsPinned(t *testing.T) {
	b := NewBounded[int, int](2)
	for i := 0; i < 4; i++ {
		b.Put(i, i)
	}

	evicted := b.Evict(func(k, _ int) bool { return k == 0 })
	assert.Equal(t, []int{1, 2}, evicted)
	assert.True(t, b.Has(0))
	assert.True(t, b.Has(3))
}

func TestBounded_EvictAllPinnedStaysOver(t *testing.T) {
	b := NewBounded[int, int](1)
	b.Put(1, 1)
	b.Put(2, 2)

	evicted := b.Evict(func(int, int) bool { return true })
	assert.Empty(t, evicted)
	assert.Equal(t, 2, b.Len())
}

func TestBounded_DeleteAndEvictWhere(t *testing.T) {
	b := NewBounded[string, int](0)
	b.Put("a", 1)
	b.Put("b", 2)
	b.Put("c", 3)

	b.Delete("b")
	b.Delete("missing")
	assert.Equal(t, 2, b.Len())

	dropped := b.EvictWhere(func(_ string, v int) bool { return v > 2 })
	assert.Equal(t, []string{"c"}, dropped)
	assert.Equal(t, []Entry[string, int]{{Key: "a", Value: 1}}, b.Entries())
	assert.False(t, b.Over(), "capacity 0 is unbounded")
}

func TestLedger_IndexDedup(t *testing.T) {
	l := New(DefaultCapacities(), time.Hour)
	at := time.Date(2026, 3, 4, 14, 15, 0, 0, time.UTC)

	assert.True(t, l.IsNewIndex("7"))
	l.MarkIndex("7", at)
	assert.False(t, l.IsNewIndex("7"))
	assert.True(t, l.IsNewIndex("8"))
}

func TestLedger_TouchIndexDefersEviction(t *testing.T) {
	caps := DefaultCapacities()
	caps.Indices = 2
	l := New(caps, time.Hour)
	old := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	now := old.Add(6 * time.Hour)

	l.MarkIndex("1", old)
	l.MarkIndex("2", old)
	l.TouchIndex("1")
	l.MarkIndex("3", old)

	stats := l.Sweep(now)
	assert.Equal(t, 1, stats.Indices)
	assert.False(t, l.IsNewIndex("1"))
	assert.True(t, l.IsNewIndex("2"))
}

func TestLedger_SentStatus(t *testing.T) {
	l := New(DefaultCapacities(), time.Hour)
	key := call.RecordKey{PhoneKey: "5551234567", Epoch: 1700000000}

	_, ok := l.SentRecordStatus(key)
	assert.False(t, ok)

	l.MarkSent(key, SentPending)
	l.MarkSent(key, SentDelivered)

	status, ok := l.SentRecordStatus(key)
	require.True(t, ok)
	assert.Equal(t, SentDelivered, status)
}

func TestLedger_SweepBoundsIndicesOutsideHorizon(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	l := New(DefaultCapacities(), time.Hour)

	// 500 old entries and 20 recent ones.
	for i := 0; i < 500; i++ {
		l.MarkIndex(fmt.Sprintf("old-%d", i), now.Add(-3*time.Hour))
	}
	for i := 0; i < 20; i++ {
		l.MarkIndex(fmt.Sprintf("new-%d", i), now.Add(-time.Duration(i)*time.Minute))
	}

	stats := l.Sweep(now)
	indices, _, _ := l.Len()

	assert.Equal(t, DefaultIndexCapacity, indices)
	assert.Equal(t, 520-DefaultIndexCapacity, stats.Indices)
	for i := 0; i < 20; i++ {
		assert.False(t, l.IsNewIndex(fmt.Sprintf("new-%d", i)), "in-horizon index new-%d evicted", i)
	}
	assert.True(t, l.IsNewIndex("old-0"), "oldest entry is evicted first")
}

func TestLedger_SweepNeverEvictsInHorizon(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	l := New(Capacities{Indices: 5, Sent: 2, Answers: 2}, time.Hour)

	for i := 0; i < 10; i++ {
		l.MarkIndex(fmt.Sprintf("%d", i), now.Add(-time.Duration(i)*time.Minute))
	}
	for i := 0; i < 4; i++ {
		l.MarkSent(call.RecordKey{PhoneKey: "p", Epoch: now.Add(-time.Duration(i) * time.Minute).Unix()}, SentDelivered)
		l.Answers().Mark(call.AnswerKey{PhoneKey: "p", Minute: int64(i)}, now.Add(-time.Duration(i)*time.Minute))
	}

	stats := l.Sweep(now)
	assert.Zero(t, stats.Total())

	indices, sent, answers := l.Len()
	assert.Equal(t, 10, indices)
	assert.Equal(t, 4, sent)
	assert.Equal(t, 4, answers)
}

func TestLedger_SweepSentAndAnswers(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	l := New(Capacities{Indices: 5, Sent: 2, Answers: 2}, time.Hour)

	old := now.Add(-2 * time.Hour)
	for i := 0; i < 3; i++ {
		l.MarkSent(call.RecordKey{PhoneKey: "p", Epoch: old.Unix() + int64(i)}, SentDelivered)
		l.Answers().Mark(call.AnswerKey{PhoneKey: "p", Minute: int64(i)}, old)
	}

	stats := l.Sweep(now)
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, 1, stats.Answers)

	_, ok := l.SentRecordStatus(call.RecordKey{PhoneKey: "p", Epoch: old.Unix()})
	assert.False(t, ok)
	assert.False(t, l.Answers().Seen(call.AnswerKey{PhoneKey: "p", Minute: 0}))
	assert.True(t, l.Answers().Seen(call.AnswerKey{PhoneKey: "p", Minute: 2}))
}

func TestLedger_SnapshotRestoreJSON(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	l := New(DefaultCapacities(), time.Hour)
	key := call.RecordKey{PhoneKey: "5551234567", Epoch: now.Unix()}

	l.MarkIndex("7", now)
	l.MarkSent(key, SentFailed)
	l.Answers().Mark(call.AnswerKey{PhoneKey: "5551234567", Minute: call.MinuteBucket(now)}, now)

	data, err := json.Marshal(l.Snapshot())
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))

	restored := New(DefaultCapacities(), time.Hour)
	restored.Restore(snap)

	assert.False(t, restored.IsNewIndex("7"))
	status, ok := restored.SentRecordStatus(key)
	require.True(t, ok)
	assert.Equal(t, SentFailed, status)
	assert.True(t, restored.Answers().Seen(call.AnswerKey{PhoneKey: "5551234567", Minute: call.MinuteBucket(now)}))
}

func TestLedger_Reset(t *testing.T) {
	l := New(DefaultCapacities(), time.Hour)
	l.MarkIndex("1", time.Now())
	l.MarkSent(call.RecordKey{PhoneKey: "p", Epoch: 1}, SentPending)
	l.Answers().Mark(call.AnswerKey{PhoneKey: "p", Minute: 1}, time.Now())

	l.Reset()
	indices, sent, answers := l.Len()
	assert.Zero(t, indices+sent+answers)
}
