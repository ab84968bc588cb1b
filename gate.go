package skiff

import "sync/atomic"

// Gate is a single-flight concurrency gate: at most one conversational turn
// may be in flight process-wide, regardless of which caller (browser or
// channel) initiated it. A second caller is rejected immediately, never
// queued.
//
// TryAcquire and Release replace the bare counter the dashboard once used:
// acquire at entry, release on every exit path, including errors and
// cancellation. A leaked slot permanently wedges the gate.
type Gate struct {
	busy atomic.Bool
}

// NewGate returns an open gate.
func NewGate() *Gate { return &Gate{} }

// TryAcquire claims the single slot. Returns false without blocking if the
// slot is already held.
func (g *Gate) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Release frees the slot. Safe to call from a deferred cleanup regardless of
// how the turn ended.
func (g *Gate) Release() {
	g.busy.Store(false)
}

// InFlight reports whether a turn currently holds the slot.
func (g *Gate) InFlight() bool {
	return g.busy.Load()
}
