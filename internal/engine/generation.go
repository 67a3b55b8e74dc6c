package engine

import "sync/atomic"

// Generation is the monitoring epoch.
//
// Every delivery is stamped with the generation current when it was built.
// Stopping the monitor advances the generation, so a result that arrives
// after stop (or after a restart) no longer matches and is discarded
// without touching state.
//
// Generation is safe for concurrent use. One Generation is normally shared
// by every Engine a monitor builds across start/stop cycles.
type Generation struct {
	n atomic.Uint64
}

// NewGeneration creates a counter starting at 1.
func NewGeneration() *Generation {
	g := &Generation{}
	g.n.Store(1)
	return g
}

// NewGenerationAt creates a counter starting at a specific value.
func NewGenerationAt(start uint64) *Generation {
	g := &Generation{}
	g.n.Store(start)
	return g
}

// Advance moves to the next generation and returns it.
func (g *Generation) Advance() uint64 {
	return g.n.Add(1)
}

// Current returns the current generation.
func (g *Generation) Current() uint64 {
	return g.n.Load()
}
