// Package status provides a thread-safe status tracker for the homecounter
// daemon. It is read by the HTTP handlers and the MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/homecounter/internal/counter"
	"github.com/sweeney/homecounter/internal/network"
)

// Line states as reported in JSON and on MQTT.
const (
	StateUnknown = "UNKNOWN"
	StateOn      = "ON"
	StateOff     = "OFF"
	StateClosed  = "CLOSED"
	StateOpen    = "OPEN"
)

// PowerState names a power sense level.
func PowerState(on bool) string {
	if on {
		return StateOn
	}
	return StateOff
}

// ReedState names a reed switch level.
func ReedState(closed bool) string {
	if closed {
		return StateClosed
	}
	return StateOpen
}

// Config contains daemon configuration for display.
type Config struct {
	Chip        string
	PinPower    int
	PinReed     int
	ClosingMs   int64
	OpeningMs   int64
	HeartbeatMs int64
	Broker      string
	HTTPPort    string
	WSBroker    string // Websocket broker URL for browser MQTT (empty = disabled)
	Storage     string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Counter         counter.Raw
	Power           string
	ReedSwitch      string
	Stats           counter.Stats
	StartTime       time.Time
	Now             time.Time
	MQTTConnected   bool
	Network         *network.Info
	TemporaryAPSSID string
	Config          Config
}

// Value returns the counter converted to its real value.
func (s Snapshot) Value() counter.Real {
	return counter.RealOf(s.Counter)
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Power:      StateUnknown,
			ReedSwitch: StateUnknown,
			StartTime:  startTime,
			Config:     cfg,
		},
	}
}

// SetCounter records the current counter value.
func (t *Tracker) SetCounter(v counter.Raw) {
	t.mu.Lock()
	t.snap.Counter = v
	t.mu.Unlock()
}

// SetStats records the debounce engine counters.
func (t *Tracker) SetStats(s counter.Stats) {
	t.mu.Lock()
	t.snap.Stats = s
	t.mu.Unlock()
}

// SetPower records the power sense level.
func (t *Tracker) SetPower(on bool) {
	t.mu.Lock()
	t.snap.Power = PowerState(on)
	t.mu.Unlock()
}

// SetReedSwitch records the reed switch level.
func (t *Tracker) SetReedSwitch(closed bool) {
	t.mu.Lock()
	t.snap.ReedSwitch = ReedState(closed)
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *network.Info) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// SetTemporaryAPSSID records the name of the setup access point.
func (t *Tracker) SetTemporaryAPSSID(ssid string) {
	t.mu.Lock()
	t.snap.TemporaryAPSSID = ssid
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
