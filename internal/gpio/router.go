package gpio

import "sync/atomic"

// Router forwards edge interrupts to the dispatch goroutine of each line.
//
// Notify runs in the driver's interrupt path: it does not allocate, lock or
// call user code. It only performs a non-blocking send on the line's wake
// channel. Edges that arrive while a wake is already pending coalesce into
// it; edges that arrive while no consumer is attached are dropped.
type Router struct {
	slots     [numLines]atomic.Pointer[chan struct{}]
	dropped   [numLines]atomic.Uint64
	coalesced [numLines]atomic.Uint64
}

// RouterStats counts edges that did not produce a wake of their own.
type RouterStats struct {
	Dropped   uint64 // no consumer attached
	Coalesced uint64 // wake already pending
}

// NewRouter creates a router with no consumers attached.
func NewRouter() *Router {
	return &Router{}
}

// Attach registers the consumer of id and returns its wake channel.
// A previous consumer of id stops receiving wakes.
func (r *Router) Attach(id LineID) <-chan struct{} {
	ch := make(chan struct{}, 1)
	r.slots[id].Store(&ch)
	return ch
}

// Detach unregisters the consumer of id.
func (r *Router) Detach(id LineID) {
	r.slots[id].Store(nil)
}

// Notify wakes the consumer of id.
func (r *Router) Notify(id LineID) {
	ch := r.slots[id].Load()
	if ch == nil {
		r.dropped[id].Add(1)
		return
	}
	select {
	case *ch <- struct{}{}:
	default:
		r.coalesced[id].Add(1)
	}
}

// EdgeFunc returns the edge callback for id, to hand to Chip.Watch.
func (r *Router) EdgeFunc(id LineID) func() {
	return func() { r.Notify(id) }
}

// Stats returns the drop and coalesce counters of id.
func (r *Router) Stats(id LineID) RouterStats {
	return RouterStats{
		Dropped:   r.dropped[id].Load(),
		Coalesced: r.coalesced[id].Load(),
	}
}
