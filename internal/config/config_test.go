package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/homecounter/internal/gpio"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "homecounter.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(newFlagSet(), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Default()
	if cfg != want {
		t.Errorf("got %+v, want %+v", cfg, want)
	}
	if cfg.Debounce.Closing != 700*time.Millisecond || cfg.Debounce.Opening != 300*time.Millisecond {
		t.Errorf("debounce: got %+v", cfg.Debounce)
	}
	if cfg.GPIO.ReedSwitch.Offset != gpio.DefaultPinReedSwitch {
		t.Errorf("reed pin: got %d", cfg.GPIO.ReedSwitch.Offset)
	}
}

func TestParseFlags(t *testing.T) {
	cfg, err := Parse(newFlagSet(), []string{
		"-pin-reed", "17",
		"-closing", "1s",
		"-broker", "tcp://broker:1883",
		"-storage", "",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.GPIO.ReedSwitch.Offset != 17 {
		t.Errorf("reed pin: got %d, want 17", cfg.GPIO.ReedSwitch.Offset)
	}
	if cfg.Debounce.Closing != time.Second {
		t.Errorf("closing: got %v, want 1s", cfg.Debounce.Closing)
	}
	if cfg.Broker != "tcp://broker:1883" {
		t.Errorf("broker: got %q", cfg.Broker)
	}
	if cfg.Storage != "" {
		t.Errorf("storage: got %q, want empty", cfg.Storage)
	}
}

func TestLoadFileKeepsDefaults(t *testing.T) {
	path := writeFile(t, `
chip: gpiochip4
debounce:
  closing: 500ms
gpio:
  reed_switch:
    pin: 26
    pull: up
    active_low: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chip != "gpiochip4" {
		t.Errorf("chip: got %q", cfg.Chip)
	}
	if cfg.Debounce.Closing != 500*time.Millisecond {
		t.Errorf("closing: got %v, want 500ms", cfg.Debounce.Closing)
	}
	if cfg.Debounce.Opening != 300*time.Millisecond {
		t.Errorf("opening should keep its default, got %v", cfg.Debounce.Opening)
	}
	if cfg.GPIO.ReedSwitch.Offset != 26 {
		t.Errorf("reed pin: got %d, want 26", cfg.GPIO.ReedSwitch.Offset)
	}
	if cfg.GPIO.Power != gpio.DefaultConfig().Power {
		t.Errorf("power line should keep its default, got %+v", cfg.GPIO.Power)
	}
}

func TestLoadUnknownKey(t *testing.T) {
	path := writeFile(t, "brokr: tcp://typo:1883\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCommandLineWinsOverFile(t *testing.T) {
	path := writeFile(t, "broker: tcp://file:1883\nheartbeat: 1m\nclient_id: from-file\n")

	fs := newFlagSet()
	printState := fs.Bool("print-state", false, "")
	cfg, err := Parse(fs, []string{"-config", path, "-broker", "tcp://flag:1883", "-print-state"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Broker != "tcp://flag:1883" {
		t.Errorf("broker: got %q, want the flag value", cfg.Broker)
	}
	if cfg.Heartbeat != time.Minute {
		t.Errorf("heartbeat: got %v, want file value 1m", cfg.Heartbeat)
	}
	if cfg.ClientID != "from-file" {
		t.Errorf("client id: got %q, want from-file", cfg.ClientID)
	}
	if !*printState {
		t.Error("caller flags should still be parsed")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"shared pin", func(c *Config) { c.GPIO.Power.Offset = c.GPIO.ReedSwitch.Offset }},
		{"negative pin", func(c *Config) { c.GPIO.Power.Offset = -1 }},
		{"negative window", func(c *Config) { c.Debounce.Opening = -time.Second }},
		{"negative heartbeat", func(c *Config) { c.Heartbeat = -time.Second }},
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	if cfg.Level() != logrus.DebugLevel {
		t.Errorf("got %v, want debug", cfg.Level())
	}
	cfg.LogLevel = "nonsense"
	if cfg.Level() != logrus.InfoLevel {
		t.Errorf("got %v, want info fallback", cfg.Level())
	}
}

func TestResolveWSBroker(t *testing.T) {
	tests := []struct {
		name   string
		ws     string
		broker string
		want   string
	}{
		{"derive from broker", "=broker", "tcp://192.168.1.200:1883", "ws://192.168.1.200:9001"},
		{"explicit", "ws://other:8080/mqtt", "tcp://192.168.1.200:1883", "ws://other:8080/mqtt"},
		{"off", "off", "tcp://192.168.1.200:1883", ""},
		{"empty", "", "tcp://192.168.1.200:1883", ""},
		{"unparseable broker", "=broker", "not a url", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.WSBroker = tt.ws
			cfg.Broker = tt.broker
			if got := cfg.ResolveWSBroker(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
