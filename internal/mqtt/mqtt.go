// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"
)

// Topic is the MQTT topic for counter changes.
const Topic = "home/counter/events"

// TopicLines is the MQTT topic for input line changes.
const TopicLines = "home/counter/lines"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "home/counter/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishCounter sends a counter change to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishCounter(event CounterEvent) error

	// PublishLine sends an input line change to the broker.
	PublishLine(event LineEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// CounterEvent is a new counter value.
type CounterEvent struct {
	Timestamp time.Time
	Raw       uint32
	Value     float64
}

// LineEvent is a new level of an input line.
type LineEvent struct {
	Timestamp time.Time
	Line      string // "power", "reedSwitch"
	State     string // "ON"/"OFF" for power, "CLOSED"/"OPEN" for the reed switch
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// CounterPayload is the MQTT message payload for counter changes.
type CounterPayload struct {
	Counter CounterPayloadInner `json:"counter"`
}

// CounterPayloadInner contains the counter details.
type CounterPayloadInner struct {
	Timestamp string  `json:"timestamp"`
	Raw       uint32  `json:"raw"`
	Value     float64 `json:"value"`
}

// FormatCounterPayload creates the JSON payload for a counter change.
func FormatCounterPayload(event CounterEvent) ([]byte, error) {
	return json.Marshal(CounterPayload{
		Counter: CounterPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Raw:       event.Raw,
			Value:     event.Value,
		},
	})
}

// LinePayload is the MQTT message payload for line changes.
type LinePayload struct {
	Line LinePayloadInner `json:"line"`
}

// LinePayloadInner contains the line details.
type LinePayloadInner struct {
	Timestamp string `json:"timestamp"`
	Name      string `json:"name"`
	State     string `json:"state"`
}

// FormatLinePayload creates the JSON payload for a line change.
func FormatLinePayload(event LineEvent) ([]byte, error) {
	return json.Marshal(LinePayload{
		Line: LinePayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Name:      event.Line,
			State:     event.State,
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
