// Package config loads daemon settings from command-line flags and an
// optional YAML file.
package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/homecounter/internal/counter"
	"github.com/sweeney/homecounter/internal/gpio"
)

// Config holds every setting of the daemon.
type Config struct {
	Chip      string         `yaml:"chip"`
	GPIO      gpio.Config    `yaml:"gpio"`
	Debounce  counter.Config `yaml:"debounce"`
	Broker    string         `yaml:"broker"`
	ClientID  string         `yaml:"client_id"`
	HTTPAddr  string         `yaml:"http"`
	WSBroker  string         `yaml:"ws_broker"`
	Storage   string         `yaml:"storage"`
	Heartbeat time.Duration  `yaml:"heartbeat"`
	LogLevel  string         `yaml:"log_level"`
}

// Default returns the settings used when neither a flag nor the file sets a
// value.
func Default() Config {
	return Config{
		Chip:      gpio.DefaultChip,
		GPIO:      gpio.DefaultConfig(),
		Debounce:  counter.DefaultConfig(),
		Broker:    "tcp://192.168.1.200:1883",
		ClientID:  "homecounter",
		HTTPAddr:  ":80",
		WSBroker:  "=broker",
		Storage:   "/var/lib/homecounter/state.yaml",
		Heartbeat: 15 * time.Minute,
		LogLevel:  "info",
	}
}

// Load reads a YAML file over Default. Keys absent from the file keep their
// default; unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// bind registers a flag per setting, defaulting to the current values of c.
func (c *Config) bind(fs *flag.FlagSet) {
	fs.StringVar(&c.Chip, "chip", c.Chip, "gpiochip device name")
	fs.IntVar(&c.GPIO.Power.Offset, "pin-power", c.GPIO.Power.Offset, "BCM pin number of the power sense line")
	fs.IntVar(&c.GPIO.ReedSwitch.Offset, "pin-reed", c.GPIO.ReedSwitch.Offset, "BCM pin number of the reed switch")
	fs.DurationVar(&c.Debounce.Closing, "closing", c.Debounce.Closing, "Debounce window for a closing reed switch")
	fs.DurationVar(&c.Debounce.Opening, "opening", c.Debounce.Opening, "Debounce window for an opening reed switch")
	fs.StringVar(&c.Broker, "broker", c.Broker, "MQTT broker address")
	fs.StringVar(&c.ClientID, "client-id", c.ClientID, "MQTT client id")
	fs.StringVar(&c.HTTPAddr, "http", c.HTTPAddr, "HTTP status address (empty to disable)")
	fs.StringVar(&c.WSBroker, "ws-broker", c.WSBroker, `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)
	fs.StringVar(&c.Storage, "storage", c.Storage, "State file (empty keeps state in memory)")
	fs.DurationVar(&c.Heartbeat, "heartbeat", c.Heartbeat, "Heartbeat interval (0 to disable)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
}

// Parse registers the settings flags plus -config on fs and parses args.
// When -config names a file, it is loaded and the flags set explicitly on
// the command line are applied over it. Callers may register their own
// flags on fs before calling Parse.
func Parse(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Default()
	cfg.bind(fs)
	path := fs.String("config", "", "YAML config file")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if *path == "" {
		return cfg, cfg.Validate()
	}

	file, err := Load(*path)
	if err != nil {
		return Config{}, err
	}
	overlay := flag.NewFlagSet("overlay", flag.ContinueOnError)
	file.bind(overlay)
	var setErr error
	fs.Visit(func(f *flag.Flag) {
		if overlay.Lookup(f.Name) == nil || setErr != nil {
			return
		}
		setErr = overlay.Set(f.Name, f.Value.String())
	})
	if setErr != nil {
		return Config{}, fmt.Errorf("apply flags over %s: %w", *path, setErr)
	}
	return file, file.Validate()
}

// Validate checks the settings for values the daemon cannot run with.
func (c Config) Validate() error {
	if c.GPIO.Power.Offset < 0 || c.GPIO.ReedSwitch.Offset < 0 {
		return fmt.Errorf("pin numbers must not be negative")
	}
	if c.GPIO.Power.Offset == c.GPIO.ReedSwitch.Offset {
		return fmt.Errorf("power and reed switch share pin %d", c.GPIO.Power.Offset)
	}
	if c.Debounce.Closing < 0 || c.Debounce.Opening < 0 {
		return fmt.Errorf("debounce windows must not be negative")
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("heartbeat must not be negative")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	return nil
}

// Level returns the parsed log level, or info if it does not parse.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// ResolveWSBroker converts the ws-broker setting into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; "off" and
// empty disable the live UI.
func (c Config) ResolveWSBroker() string {
	ws := c.WSBroker
	if ws == "off" || ws == "" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(c.Broker)
	if err != nil || u.Host == "" {
		logrus.Warnf("ws-broker: cannot derive from broker %q", c.Broker)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
