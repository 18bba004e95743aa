// Package counter owns the event count of the reed switch.
//
// A Counter is both the value store and the debounce engine: Touch reports a
// raw transition of the switch, the engine goroutine (Run) decides whether it
// was a genuine actuation and increments the value, and every change of the
// value is broadcast to the installed handlers from that same goroutine, so
// handlers observe changes in order.
package counter

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/homecounter/internal/handler"
)

// Config holds the first-stage debounce windows. A candidate transition is
// accepted only if no other transition arrives before its window elapses.
type Config struct {
	// Closing is the window for a closing reed switch. Closing contacts
	// chatter more than opening ones, so this window is the longer one.
	Closing time.Duration `yaml:"closing"`
	// Opening is the window for an opening reed switch.
	Opening time.Duration `yaml:"opening"`
}

// DefaultConfig returns the windows the counter board is tuned for.
func DefaultConfig() Config {
	return Config{
		Closing: 700 * time.Millisecond,
		Opening: 300 * time.Millisecond,
	}
}

// Stats counts engine decisions since startup.
type Stats struct {
	Accepted   uint64
	Rejected   uint64
	Superseded uint64
	Broadcasts uint64
}

// Counter is the authoritative counter value plus its debounce engine.
type Counter struct {
	cfg      Config
	clock    Clock
	log      *logrus.Entry
	handlers *handler.Registry[Raw]

	mu    sync.Mutex
	value Raw

	update chan struct{}
	touch  chan Direction

	accepted   atomic.Uint64
	rejected   atomic.Uint64
	superseded atomic.Uint64
	broadcasts atomic.Uint64
}

// Option configures a Counter.
type Option func(*Counter)

// WithClock replaces the clock used for debounce timers.
func WithClock(c Clock) Option {
	return func(cnt *Counter) { cnt.clock = c }
}

// New creates a counter at 0. Zero windows in cfg take the defaults.
// Nothing is counted or broadcast until Run is started.
func New(cfg Config, logger *logrus.Entry, opts ...Option) *Counter {
	def := DefaultConfig()
	if cfg.Closing <= 0 {
		cfg.Closing = def.Closing
	}
	if cfg.Opening <= 0 {
		cfg.Opening = def.Opening
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	log := logger.WithField("component", "app/counter")

	c := &Counter{
		cfg:      cfg,
		clock:    realClock{},
		log:      log,
		handlers: handler.New[Raw]("counter", log),
		update:   make(chan struct{}, 1),
		touch:    make(chan Direction, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the current raw value.
func (c *Counter) Get() Raw {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Real returns the current value converted with RealOf.
func (c *Counter) Real() Real {
	return RealOf(c.Get())
}

// Set stores v. Setting the current value is a no-op; any other value wakes
// the engine, which broadcasts it.
func (c *Counter) Set(v Raw) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v == c.value {
		return
	}
	c.value = v
	c.signalUpdate()
}

// SetReal stores RawOf(r).
func (c *Counter) SetReal(r Real) {
	c.Set(RawOf(r))
}

// Touch reports a transition of the reed switch. It never blocks: if the
// engine has not yet picked up an earlier transition, the newer one replaces
// it.
func (c *Counter) Touch(dir Direction) {
	for {
		select {
		case c.touch <- dir:
			return
		default:
		}
		select {
		case <-c.touch:
		default:
		}
	}
}

// Install adds a handler called with the new value after every change.
// Handlers run on the engine goroutine and may read the counter.
func (c *Counter) Install(fn func(Raw)) (handler.Key, error) {
	return c.handlers.Install(fn)
}

// Remove drops a handler added with Install.
func (c *Counter) Remove(key handler.Key) bool {
	return c.handlers.Remove(key)
}

// Stats returns the engine counters.
func (c *Counter) Stats() Stats {
	return Stats{
		Accepted:   c.accepted.Load(),
		Rejected:   c.rejected.Load(),
		Superseded: c.superseded.Load(),
		Broadcasts: c.broadcasts.Load(),
	}
}

// Config returns the effective debounce windows.
func (c *Counter) Config() Config { return c.cfg }

// signalUpdate must be called with c.mu held. Pending updates coalesce: the
// engine broadcasts the value current when it wakes.
func (c *Counter) signalUpdate() {
	select {
	case c.update <- struct{}{}:
	default:
	}
}
