package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/callrecon/internal/delivery"
)

func TestManualClock_Advance(t *testing.T) {
	start := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)
	assert.Equal(t, start, clock.Now())

	assert.Equal(t, start.Add(time.Minute), clock.Advance(time.Minute))
	assert.Equal(t, start.Add(time.Minute), clock.Advance(-time.Hour), "never runs backwards")

	clock.Set(start)
	assert.Equal(t, start, clock.Now())
}

func TestManualClock_ThreadSafe(t *testing.T) {
	start := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)

	const numGoroutines = 50
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
			_ = clock.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, start.Add(numGoroutines*time.Second), clock.Now())
}

func TestRecordingDeliverer(t *testing.T) {
	r := &RecordingDeliverer{}
	r.Dispatch(context.Background(), delivery.Delivery{ID: "d1", Kind: delivery.KindCreate})
	r.Dispatch(context.Background(), delivery.Delivery{ID: "d2", Kind: delivery.KindUpdate})

	sent := r.Sent()
	assert.Len(t, sent, 2)
	assert.Equal(t, "d1", sent[0].ID)
	assert.Equal(t, []delivery.Kind{delivery.KindCreate, delivery.KindUpdate}, r.Kinds())

	sent[0].ID = "mutated"
	assert.Equal(t, "d1", r.Sent()[0].ID)
}
