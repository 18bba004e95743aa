// Package gpio turns edge interrupts on the two monitored input lines into
// handler broadcasts. The real implementation uses the Linux GPIO character
// device; the fake implementation allows testing without hardware.
//
// An edge callback only wakes the dispatch goroutine of its line (see
// Router). The dispatch goroutine reads the current level from the hardware
// and raises the handlers installed for that line.
package gpio

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LineID names one of the monitored input lines.
type LineID int

const (
	Power LineID = iota
	ReedSwitch

	numLines = 2
)

// AllLines lists every monitored line, in dispatch start order.
var AllLines = [numLines]LineID{Power, ReedSwitch}

func (id LineID) String() string {
	switch id {
	case Power:
		return "power"
	case ReedSwitch:
		return "reedSwitch"
	default:
		return fmt.Sprintf("line(%d)", int(id))
	}
}

func (id LineID) valid() bool { return id >= 0 && id < numLines }

// Pull selects the bias resistor of an input line.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullUp:
		return "pull-up"
	case PullDown:
		return "pull-down"
	default:
		return "none"
	}
}

// ParsePull accepts "up", "down" and "none" (and the String forms).
func ParsePull(s string) (Pull, error) {
	switch strings.TrimPrefix(strings.ToLower(s), "pull-") {
	case "up":
		return PullUp, nil
	case "down":
		return PullDown, nil
	case "none", "", "disabled":
		return PullNone, nil
	}
	return PullNone, errors.Errorf("unknown pull %q", s)
}

func (p *Pull) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := ParsePull(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (p Pull) MarshalYAML() (interface{}, error) {
	return strings.TrimPrefix(p.String(), "pull-"), nil
}

// LineConfig describes how a line is requested. Lines are always inputs
// watched on both edges.
type LineConfig struct {
	Offset    int  `yaml:"pin"`
	Pull      Pull `yaml:"pull"`
	ActiveLow bool `yaml:"active_low"`
}

// Pin definitions (BCM numbering)
const (
	DefaultPinPower      = 20
	DefaultPinReedSwitch = 21
)

// DefaultChip is the gpiochip the lines are requested from.
const DefaultChip = "gpiochip0"

// Config holds the configuration of both lines.
type Config struct {
	Power      LineConfig `yaml:"power"`
	ReedSwitch LineConfig `yaml:"reed_switch"`
}

// DefaultConfig returns the wiring of the counter board: the reed switch
// shorts an input held up to ground (active low), the power sense line is
// held down and driven high while mains is present.
func DefaultConfig() Config {
	return Config{
		Power:      LineConfig{Offset: DefaultPinPower, Pull: PullDown},
		ReedSwitch: LineConfig{Offset: DefaultPinReedSwitch, Pull: PullUp, ActiveLow: true},
	}
}

func (c Config) line(id LineID) LineConfig {
	if id == ReedSwitch {
		return c.ReedSwitch
	}
	return c.Power
}

// Input is a requested input line.
type Input interface {
	// Value returns the logical level of the line (active-low already applied).
	Value() (bool, error)

	// Close releases the line.
	Close() error
}

// Chip requests input lines with an edge callback.
//
// onEdge is called for every edge, possibly from a goroutine owned by the
// driver. It must return quickly and must not block.
type Chip interface {
	Watch(id LineID, cfg LineConfig, onEdge func()) (Input, error)
	Info() ChipInfo
	Close() error
}

// ChipInfo describes a gpiochip for startup diagnostics.
type ChipInfo struct {
	Name  string
	Label string
	Lines int
}
