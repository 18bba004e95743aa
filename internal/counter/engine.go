package counter

import (
	"context"
	"time"
)

// Direction is the polarity of a reed switch transition.
type Direction int

const (
	// Closing: the contact closed (falling edge on the active-low input).
	Closing Direction = iota
	// Opening: the contact opened.
	Opening
)

// DirectionOf maps the logical reed switch level read after an edge to the
// transition it completes.
func DirectionOf(closed bool) Direction {
	if closed {
		return Closing
	}
	return Opening
}

func (d Direction) String() string {
	if d == Closing {
		return "closing"
	}
	return "opening"
}

// expected returns the transition that moves v forward: an even value waits
// for the switch to close, an odd value for it to open.
func expected(v Raw) Direction {
	if v&1 == 0 {
		return Closing
	}
	return Opening
}

// window returns the first-stage debounce window for dir.
func (c *Counter) window(dir Direction) time.Duration {
	if dir == Closing {
		return c.cfg.Closing
	}
	return c.cfg.Opening
}

// engine is the state of the Run goroutine. It is Idle when timer is nil
// and Pending otherwise.
type engine struct {
	c     *Counter
	dir   Direction
	timer Timer
}

// Run is the engine goroutine. It must be started exactly once and returns
// when ctx is cancelled.
//
// Each wake handles one message. An update is always handled first: it
// broadcasts the current value and drops any pending candidate, which was
// judged against a value that no longer holds. A touch (re)arms the
// candidate timer. A timer that fires uninterrupted settles the candidate.
func (c *Counter) Run(ctx context.Context) {
	c.log.Info("counter task started")
	defer c.log.Info("counter task stopped")

	e := &engine{c: c}
	defer e.cancel()

	for {
		select {
		case <-c.update:
			e.onUpdate()
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-c.update:
			e.onUpdate()
		case dir := <-c.touch:
			e.onTouch(dir)
		case <-e.timerC():
			e.settle()
		}
	}
}

func (e *engine) timerC() <-chan time.Time {
	if e.timer == nil {
		return nil
	}
	return e.timer.C()
}

func (e *engine) cancel() bool {
	if e.timer == nil {
		return false
	}
	e.timer.Stop()
	e.timer = nil
	return true
}

func (e *engine) onUpdate() {
	if e.cancel() {
		e.c.superseded.Add(1)
		e.c.log.Debug("value changed, pending candidate dropped")
	}
	v := e.c.Get()
	e.c.log.Debugf("value updated to %.3f, raising handlers", RealOf(v))
	e.c.handlers.Raise(v)
	e.c.broadcasts.Add(1)
}

// onTouch re-arms rather than queues: a transition arriving while a
// candidate is pending replaces it and restarts the window.
func (e *engine) onTouch(dir Direction) {
	if e.cancel() {
		e.c.superseded.Add(1)
		e.c.log.Debugf("bounce: %s candidate superseded by %s", e.dir, dir)
	}
	e.dir = dir
	w := e.c.window(dir)
	e.timer = e.c.clock.NewTimer(w)
	e.c.log.Debugf("%s candidate, settling for %v", dir, w)
}

// settle accepts the pending candidate if its direction is the one the
// current value waits for. A rejection is not retried.
func (e *engine) settle() {
	e.timer = nil
	c := e.c

	c.mu.Lock()
	defer c.mu.Unlock()

	if expected(c.value) != e.dir {
		c.rejected.Add(1)
		c.log.Debugf("anti-bounce test failed: %s at %d, increment canceled", e.dir, c.value)
		return
	}
	c.value++
	c.signalUpdate()
	c.accepted.Add(1)
	c.log.Debugf("anti-bounce test passed: %s, value %d", e.dir, c.value)
}
