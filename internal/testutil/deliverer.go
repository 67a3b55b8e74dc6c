package testutil

import (
	"context"
	"sync"

	"github.com/roach88/callrecon/internal/delivery"
)

// RecordingDeliverer captures dispatched deliveries without sending them.
type RecordingDeliverer struct {
	mu   sync.Mutex
	sent []delivery.Delivery
}

// Dispatch records d.
func (r *RecordingDeliverer) Dispatch(_ context.Context, d delivery.Delivery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, d)
}

// Sent returns a copy of every recorded delivery in dispatch order.
func (r *RecordingDeliverer) Sent() []delivery.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery.Delivery(nil), r.sent...)
}

// Kinds returns the kind of each recorded delivery.
func (r *RecordingDeliverer) Kinds() []delivery.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]delivery.Kind, len(r.sent))
	for i, d := range r.sent {
		kinds[i] = d.Kind
	}
	return kinds
}
