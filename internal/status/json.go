package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/homecounter/internal/counter"
	"github.com/sweeney/homecounter/internal/network"
)

// StatusJSON is the envelope shared by /index.json and MQTT system events.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner is the full daemon state. Event and Reason are only set on
// system events.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Counter       CounterJSON  `json:"counter"`
	Power         string       `json:"power"`
	ReedSwitch    string       `json:"reed_switch"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Debounce      DebounceJSON `json:"debounce"`
	Network       *NetworkJSON `json:"network,omitempty"`
	TemporaryAP   string       `json:"temporary_ap_ssid,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// CounterJSON is the counter in both representations.
type CounterJSON struct {
	Raw   uint32  `json:"raw"`
	Value float64 `json:"value"`
}

// CounterView is the body of /counter.json.
type CounterView struct {
	Counter   CounterJSON `json:"counter"`
	Timestamp string      `json:"timestamp"`
}

type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// DebounceJSON mirrors counter.Stats.
type DebounceJSON struct {
	Accepted   uint64 `json:"accepted"`
	Rejected   uint64 `json:"rejected"`
	Superseded uint64 `json:"superseded"`
	Broadcasts uint64 `json:"broadcasts"`
}

type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

type ConfigJSON struct {
	Chip        string `json:"chip"`
	PinPower    int    `json:"pin_power"`
	PinReed     int    `json:"pin_reed"`
	ClosingMs   int64  `json:"closing_ms"`
	OpeningMs   int64  `json:"opening_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
	WSBroker    string `json:"ws_broker,omitempty"`
	Storage     string `json:"storage,omitempty"`
}

func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func orUnknown(s string) string {
	if s == "" {
		return StateUnknown
	}
	return s
}

func counterJSON(v counter.Raw) CounterJSON {
	return CounterJSON{Raw: uint32(v), Value: float64(counter.RealOf(v))}
}

func debounceJSON(s counter.Stats) DebounceJSON {
	return DebounceJSON(s)
}

func networkJSON(n *network.Info) *NetworkJSON {
	if n == nil {
		return nil
	}
	return &NetworkJSON{
		Type:       n.Type,
		IP:         n.IP,
		Status:     n.Status,
		Gateway:    n.Gateway,
		WifiStatus: n.WifiStatus,
		SSID:       n.SSID,
	}
}

func configJSON(c Config) ConfigJSON {
	return ConfigJSON(c)
}

func buildInner(snap Snapshot) StatusInner {
	return StatusInner{
		Counter:       counterJSON(snap.Counter),
		Power:         orUnknown(snap.Power),
		ReedSwitch:    orUnknown(snap.ReedSwitch),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     stamp(snap.StartTime),
		Timestamp:     stamp(snap.Now),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Debounce:      debounceJSON(snap.Stats),
		Network:       networkJSON(snap.Network),
		TemporaryAP:   snap.TemporaryAPSSID,
		Config:        configJSON(snap.Config),
	}
}

// FormatJSON returns the indented status served on /index.json.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatCounter returns the compact counter view served on /counter.json.
func FormatCounter(snap Snapshot) []byte {
	data, _ := json.Marshal(CounterView{Counter: counterJSON(snap.Counter), Timestamp: stamp(snap.Now)})
	return data
}

// FormatStatusEvent returns the status carried by an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
