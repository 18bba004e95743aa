package gpio

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/homecounter/internal/handler"
)

// dispatcher is the only goroutine that reads the level of its line and
// raises the line's handlers. It reads the hardware on every wake instead of
// trusting a cached level: several edges may have coalesced into one wake and
// only the current level is meaningful.
type dispatcher struct {
	id       LineID
	input    Input
	wake     <-chan struct{}
	handlers *handler.Registry[bool]
	log      *logrus.Entry
}

func (d *dispatcher) run(ctx context.Context) {
	d.log.Debugf("%s dispatch started", d.id)
	defer d.log.Debugf("%s dispatch stopped", d.id)

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
			level, err := d.input.Value()
			if err != nil {
				d.log.Errorf("gpio read error: %v", err)
				continue
			}
			d.handlers.Raise(level)
		}
	}
}
