package gpio

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/homecounter/internal/handler"
)

// Lines owns the monitored lines: their inputs, their handler registries and
// one dispatch goroutine per line.
type Lines struct {
	router   *Router
	inputs   [numLines]Input
	handlers [numLines]*handler.Registry[bool]
	wakes    [numLines]<-chan struct{}
	log      *logrus.Entry

	ctx     context.Context
	cancel  context.CancelFunc
	started sync.Once
	wg      sync.WaitGroup
}

// Open requests both lines from chip. Consumers are attached before edge
// detection is enabled, so no edge is lost at startup; edges seen before
// Start are held in the router and dispatched once Start is called. Any
// request failure releases what was already requested and is returned: a
// half-wired interrupt source is not usable.
func Open(ctx context.Context, chip Chip, cfg Config, logger *logrus.Entry) (*Lines, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	log := logger.WithField("component", "app/gpio")
	log.Info("initialization started")

	l := &Lines{
		router: NewRouter(),
		log:    log,
	}

	for _, id := range AllLines {
		l.handlers[id] = handler.New[bool](id.String(), log)
		l.wakes[id] = l.router.Attach(id)
	}

	for _, id := range AllLines {
		lc := cfg.line(id)
		in, err := chip.Watch(id, lc, l.router.EdgeFunc(id))
		if err != nil {
			l.release()
			return nil, errors.Wrapf(err, "watch %s", id)
		}
		l.inputs[id] = in
		log.Infof("%s line on pin %d (%s, active-low=%t)", id, lc.Offset, lc.Pull, lc.ActiveLow)
	}

	l.ctx, l.cancel = context.WithCancel(ctx)
	log.Info("initialization finished")
	return l, nil
}

// Start launches one dispatch goroutine per line. Handlers installed before
// Start see every edge; calls after the first do nothing.
func (l *Lines) Start() {
	l.started.Do(func() {
		for _, id := range AllLines {
			d := &dispatcher{
				id:       id,
				input:    l.inputs[id],
				wake:     l.wakes[id],
				handlers: l.handlers[id],
				log:      l.log,
			}
			l.wg.Add(1)
			go func() {
				defer l.wg.Done()
				d.run(l.ctx)
			}()
		}
	})
}

// State reads the current logical level of id from the hardware.
func (l *Lines) State(id LineID) (bool, error) {
	if !id.valid() {
		return false, errors.Errorf("unknown line %d", int(id))
	}
	in := l.inputs[id]
	if in == nil {
		return false, errors.Errorf("%s line closed", id)
	}
	return in.Value()
}

// Install adds fn to the handlers of id. fn receives the level read after
// each edge. See handler.Registry.Install for the failure modes.
func (l *Lines) Install(id LineID, fn func(bool)) (handler.Key, error) {
	if !id.valid() {
		return 0, errors.Errorf("unknown line %d", int(id))
	}
	return l.handlers[id].Install(fn)
}

// Remove drops a handler installed on id.
func (l *Lines) Remove(id LineID, key handler.Key) bool {
	if !id.valid() {
		return false
	}
	return l.handlers[id].Remove(key)
}

// Stats returns the router counters of id.
func (l *Lines) Stats(id LineID) RouterStats {
	return l.router.Stats(id)
}

// Close stops the dispatch goroutines and releases the lines. Start must not
// be called afterwards.
func (l *Lines) Close() error {
	l.started.Do(func() {})
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
	return l.release()
}

func (l *Lines) release() error {
	var errs []error
	for _, id := range AllLines {
		l.router.Detach(id)
		if l.inputs[id] == nil {
			continue
		}
		if err := l.inputs[id].Close(); err != nil {
			errs = append(errs, err)
		}
		l.inputs[id] = nil
	}
	if len(errs) > 0 {
		return errors.Errorf("close errors: %v", errs)
	}
	return nil
}
