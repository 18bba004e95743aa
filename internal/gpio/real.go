//go:build linux

package gpio

import (
	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

const consumer = "homecounter"

// RealChip requests lines from actual hardware using the Linux GPIO
// character device.
type RealChip struct {
	chip *gpiocdev.Chip
}

// NewRealChip opens the named gpiochip (e.g. "gpiochip0").
func NewRealChip(name string) (*RealChip, error) {
	chip, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, errors.Wrapf(err, "open gpio chip %s", name)
	}
	return &RealChip{chip: chip}, nil
}

// Watch requests the line as an input with both-edge detection. The kernel
// delivers edge events to onEdge from the line's event goroutine.
func (c *RealChip) Watch(id LineID, cfg LineConfig, onEdge func()) (Input, error) {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithConsumer(consumer + "/" + id.String()),
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { onEdge() }),
	}
	switch cfg.Pull {
	case PullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	case PullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	default:
		opts = append(opts, gpiocdev.WithBiasDisabled)
	}
	if cfg.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := c.chip.RequestLine(cfg.Offset, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "request %s pin %d", id, cfg.Offset)
	}
	return &realInput{id: id, line: line}, nil
}

// Info describes the chip for startup diagnostics.
func (c *RealChip) Info() ChipInfo {
	return ChipInfo{Name: c.chip.Name, Label: c.chip.Label, Lines: c.chip.Lines()}
}

// Close releases the chip. Lines must be closed first.
func (c *RealChip) Close() error {
	return c.chip.Close()
}

type realInput struct {
	id   LineID
	line *gpiocdev.Line
}

func (in *realInput) Value() (bool, error) {
	v, err := in.line.Value()
	if err != nil {
		return false, errors.Wrapf(err, "read %s pin", in.id)
	}
	return v != 0, nil
}

// Close reconfigures the pin to match Raspberry Pi boot defaults (input with
// pull-down) before releasing it, so external hardware sees a known state
// during the next boot.
func (in *realInput) Close() error {
	var errs []error
	if err := in.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, errors.Wrapf(err, "reconfigure %s pin", in.id))
	}
	if err := in.line.Close(); err != nil {
		errs = append(errs, errors.Wrapf(err, "close %s pin", in.id))
	}
	if len(errs) > 0 {
		return errors.Errorf("close errors: %v", errs)
	}
	return nil
}
