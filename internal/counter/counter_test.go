package counter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock hands every timer the engine creates to the test, which fires
// it explicitly.
type fakeClock struct {
	armed chan *fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{armed: make(chan *fakeTimer, 16)}
}

func (f *fakeClock) NewTimer(d time.Duration) Timer {
	t := &fakeTimer{d: d, c: make(chan time.Time, 1)}
	f.armed <- t
	return t
}

func (f *fakeClock) next(t *testing.T) *fakeTimer {
	t.Helper()
	select {
	case tm := <-f.armed:
		return tm
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a debounce timer")
		return nil
	}
}

type fakeTimer struct {
	d       time.Duration
	c       chan time.Time
	stopped atomic.Bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

func (t *fakeTimer) Stop() bool {
	return !t.stopped.Swap(true)
}

func (t *fakeTimer) fire() {
	select {
	case t.c <- time.Now():
	default:
	}
}

// broadcasts records the values raised to counter handlers.
type broadcasts struct {
	ch chan Raw
}

func (b *broadcasts) next(t *testing.T) Raw {
	t.Helper()
	select {
	case v := <-b.ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a broadcast")
		return 0
	}
}

func (b *broadcasts) none(t *testing.T) {
	t.Helper()
	select {
	case v := <-b.ch:
		t.Fatalf("unexpected broadcast of %d", v)
	case <-time.After(50 * time.Millisecond):
	}
}

// waitFor polls cond until it holds or a deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func startCounter(t *testing.T, opts ...Option) (*Counter, *broadcasts) {
	t.Helper()
	c := New(DefaultConfig(), nil, opts...)
	b := &broadcasts{ch: make(chan Raw, 16)}
	if _, err := c.Install(func(v Raw) { b.ch <- v }); err != nil {
		t.Fatalf("Install: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c, b
}

func TestNewDefaults(t *testing.T) {
	c := New(Config{}, nil)
	cfg := c.Config()
	if cfg.Closing != 700*time.Millisecond {
		t.Errorf("Closing: got %v, want 700ms", cfg.Closing)
	}
	if cfg.Opening != 300*time.Millisecond {
		t.Errorf("Opening: got %v, want 300ms", cfg.Opening)
	}
	if c.Get() != 0 {
		t.Errorf("initial value: got %d, want 0", c.Get())
	}
}

func TestSetBroadcastsOnce(t *testing.T) {
	c, b := startCounter(t)

	c.Set(42)
	if got := b.next(t); got != 42 {
		t.Errorf("broadcast: got %d, want 42", got)
	}

	c.Set(42)
	b.none(t)

	if got := c.Stats().Broadcasts; got != 1 {
		t.Errorf("Broadcasts: got %d, want 1", got)
	}
}

func TestSetRealAndReal(t *testing.T) {
	c, b := startCounter(t)

	c.SetReal(0.023)
	if got := b.next(t); got != 5 {
		t.Errorf("broadcast: got %d, want 5", got)
	}
	if got := c.Real(); got < 0.0229 || got > 0.0231 {
		t.Errorf("Real: got %v, want 0.023", got)
	}
}

func TestClosingTouchAcceptedThenInconsistentRejected(t *testing.T) {
	clock := newFakeClock()
	c, b := startCounter(t, WithClock(clock))

	c.Touch(Closing)
	tm := clock.next(t)
	if tm.d != 700*time.Millisecond {
		t.Errorf("closing window: got %v, want 700ms", tm.d)
	}
	tm.fire()

	if got := b.next(t); got != 1 {
		t.Fatalf("broadcast: got %d, want 1", got)
	}

	// Raw 1 waits for the switch to open; another closing is rejected.
	c.Touch(Closing)
	tm = clock.next(t)
	tm.fire()
	waitFor(t, "rejection", func() bool { return c.Stats().Rejected == 1 })
	b.none(t)

	if got := c.Get(); got != 1 {
		t.Errorf("value: got %d, want 1", got)
	}
	st := c.Stats()
	if st.Accepted != 1 || st.Rejected != 1 {
		t.Errorf("stats: got %+v, want 1 accepted, 1 rejected", st)
	}
}

func TestOpeningWindow(t *testing.T) {
	clock := newFakeClock()
	c, _ := startCounter(t, WithClock(clock))

	c.Touch(Opening)
	if tm := clock.next(t); tm.d != 300*time.Millisecond {
		t.Errorf("opening window: got %v, want 300ms", tm.d)
	}
}

func TestInconsistentTouchesNeverCount(t *testing.T) {
	clock := newFakeClock()
	c, b := startCounter(t, WithClock(clock))

	for i := 0; i < 5; i++ {
		c.Touch(Opening)
		clock.next(t).fire()
		n := uint64(i + 1)
		waitFor(t, "rejection", func() bool { return c.Stats().Rejected == n })
	}
	b.none(t)

	if got := c.Get(); got != 0 {
		t.Errorf("value: got %d, want 0", got)
	}
	if got := c.Stats().Rejected; got != 5 {
		t.Errorf("Rejected: got %d, want 5", got)
	}
}

func TestConsistentTouchesCountOncePerActuation(t *testing.T) {
	clock := newFakeClock()
	c, b := startCounter(t, WithClock(clock))

	dirs := []Direction{Closing, Opening, Closing, Opening}
	for i, dir := range dirs {
		c.Touch(dir)
		clock.next(t).fire()
		if got := b.next(t); got != Raw(i+1) {
			t.Fatalf("actuation %d: got %d, want %d", i, got, i+1)
		}
	}
}

func TestBounceWithinWindowCountsOnce(t *testing.T) {
	clock := newFakeClock()
	c, b := startCounter(t, WithClock(clock))

	c.Touch(Closing)
	first := clock.next(t)
	c.Touch(Closing)
	second := clock.next(t)

	if !first.stopped.Load() {
		t.Error("first timer should be stopped when the candidate is re-armed")
	}

	// The superseded timer firing late has no effect.
	first.fire()
	second.fire()

	if got := b.next(t); got != 1 {
		t.Fatalf("broadcast: got %d, want 1", got)
	}
	b.none(t)

	st := c.Stats()
	if st.Accepted != 1 {
		t.Errorf("Accepted: got %d, want 1", st.Accepted)
	}
	if st.Superseded != 1 {
		t.Errorf("Superseded: got %d, want 1", st.Superseded)
	}
}

func TestOpeningBounceEvaluatedOnlyWhenWindowCompletes(t *testing.T) {
	clock := newFakeClock()
	c, b := startCounter(t, WithClock(clock))

	c.Set(1)
	if got := b.next(t); got != 1 {
		t.Fatalf("broadcast: got %d, want 1", got)
	}

	c.Touch(Opening)
	t1 := clock.next(t)
	c.Touch(Closing) // contact bounces back
	t2 := clock.next(t)
	c.Touch(Opening) // and settles open
	t3 := clock.next(t)

	if t2.d != 700*time.Millisecond || t3.d != 300*time.Millisecond {
		t.Errorf("windows: got %v/%v, want 700ms/300ms", t2.d, t3.d)
	}
	if !t1.stopped.Load() || !t2.stopped.Load() {
		t.Error("superseded timers should be stopped")
	}

	t1.fire()
	t2.fire()
	b.none(t)
	if got := c.Get(); got != 1 {
		t.Fatalf("value before window completes: got %d, want 1", got)
	}

	t3.fire()
	if got := b.next(t); got != 2 {
		t.Errorf("broadcast: got %d, want 2", got)
	}
}

func TestUpdateDropsPendingCandidate(t *testing.T) {
	clock := newFakeClock()
	c, b := startCounter(t, WithClock(clock))

	c.Touch(Closing)
	tm := clock.next(t)

	c.Set(10)
	if got := b.next(t); got != 10 {
		t.Fatalf("broadcast: got %d, want 10", got)
	}
	if !tm.stopped.Load() {
		t.Error("pending timer should be stopped by an update")
	}

	tm.fire()
	b.none(t)
	if got := c.Get(); got != 10 {
		t.Errorf("value: got %d, want 10", got)
	}
}

func TestHandlerMayReadCounter(t *testing.T) {
	c := New(DefaultConfig(), nil)
	got := make(chan Raw, 1)
	c.Install(func(Raw) { got <- c.Get() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	c.Set(3)
	select {
	case v := <-got:
		if v != 3 {
			t.Errorf("value read from handler: got %d, want 3", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not run")
	}
}

func TestRealClockAcceptsAfterWindow(t *testing.T) {
	c := New(Config{Closing: 20 * time.Millisecond, Opening: 10 * time.Millisecond}, nil)
	b := &broadcasts{ch: make(chan Raw, 4)}
	c.Install(func(v Raw) { b.ch <- v })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	c.Touch(Closing)
	if got := b.next(t); got != 1 {
		t.Errorf("broadcast: got %d, want 1", got)
	}
	c.Touch(Opening)
	if got := b.next(t); got != 2 {
		t.Errorf("broadcast: got %d, want 2", got)
	}
}

func TestTouchNeverBlocks(t *testing.T) {
	c := New(DefaultConfig(), nil) // engine not running

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Touch(Closing)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Touch blocked without a running engine")
	}
}

func TestDirectionOf(t *testing.T) {
	if DirectionOf(true) != Closing {
		t.Error("closed switch should map to Closing")
	}
	if DirectionOf(false) != Opening {
		t.Error("open switch should map to Opening")
	}
	if expected(0) != Closing || expected(1) != Opening {
		t.Error("even values wait for Closing, odd for Opening")
	}
}
