package main

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/homecounter/internal/config"
	"github.com/sweeney/homecounter/internal/counter"
	"github.com/sweeney/homecounter/internal/gpio"
	"github.com/sweeney/homecounter/internal/mqtt"
	"github.com/sweeney/homecounter/internal/network"
	"github.com/sweeney/homecounter/internal/status"
	"github.com/sweeney/homecounter/internal/storage"
)

// deps are the collaborators start wires together.
type deps struct {
	chip        gpio.Chip
	store       storage.Store
	publisher   mqtt.Publisher
	mqttStatus  mqtt.ConnectionStatus // may be nil
	tracker     *status.Tracker
	logger      *log.Entry
	now         func() time.Time
	counterOpts []counter.Option
}

// app is the running daemon: lines feed the counter, the counter feeds
// storage, the tracker and MQTT.
type app struct {
	lines      *gpio.Lines
	counter    *counter.Counter
	network    *network.Manager
	store      storage.Store
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	log        *log.Entry
	now        func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// start brings the daemon up in order: gpio, counter, storage, network.
// The stored counter is restored, a temporary access point SSID is generated
// if none was stored, and the handlers are installed.
func start(ctx context.Context, cfg config.Config, d deps) (*app, error) {
	if d.logger == nil {
		d.logger = log.WithField("component", "app/main")
	}
	if d.now == nil {
		d.now = time.Now
	}
	a := &app{
		store:      d.store,
		publisher:  d.publisher,
		mqttStatus: d.mqttStatus,
		tracker:    d.tracker,
		log:        d.logger,
		now:        d.now,
		done:       make(chan struct{}),
	}

	ctx, a.cancel = context.WithCancel(ctx)

	lines, err := gpio.Open(ctx, d.chip, cfg.GPIO, d.logger)
	if err != nil {
		a.cancel()
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	a.lines = lines
	a.counter = counter.New(cfg.Debounce, d.logger, d.counterOpts...)
	a.network = network.NewManager(d.logger)

	data := a.store.Get()
	if data.TemporaryAPSSID == "" {
		data.TemporaryAPSSID = network.NewTemporaryAPSSID()
		a.log.Infof("generated temporary access point ssid %s", data.TemporaryAPSSID)
	}
	settings := a.network.Settings()
	settings.TemporaryAPSSID = data.TemporaryAPSSID
	a.network.SetSettings(settings)
	if !settings.Station.Enabled {
		if err := a.network.EnableTemporaryAP(); err != nil {
			a.log.Warnf("temporary access point: %v", err)
		}
	}
	if err := a.store.Set(data); err != nil {
		a.abort()
		return nil, fmt.Errorf("persist startup state: %w", err)
	}

	a.tracker.SetTemporaryAPSSID(data.TemporaryAPSSID)
	a.tracker.SetCounter(counter.Raw(data.Counter))
	a.tracker.SetNetwork(a.network.Info())

	// The engine is not running yet, so this install cannot be busy.
	if _, err := a.counter.Install(a.onCounter); err != nil {
		a.abort()
		return nil, fmt.Errorf("install counter handler: %w", err)
	}
	go func() {
		defer close(a.done)
		a.counter.Run(ctx)
	}()
	a.counter.Set(counter.Raw(data.Counter))

	// Dispatch has not started, so neither line registry can be busy.
	if _, err := lines.Install(gpio.Power, a.onPower); err != nil {
		a.close()
		return nil, fmt.Errorf("install power handler: %w", err)
	}
	if _, err := lines.Install(gpio.ReedSwitch, a.onReedSwitch); err != nil {
		a.close()
		return nil, fmt.Errorf("install reed switch handler: %w", err)
	}
	lines.Start()

	if on, err := lines.State(gpio.Power); err == nil {
		a.tracker.SetPower(on)
	}
	if closed, err := lines.State(gpio.ReedSwitch); err == nil {
		a.tracker.SetReedSwitch(closed)
	}

	a.log.Info("initialization finished")
	return a, nil
}

// abort releases what start acquired before the counter engine started.
func (a *app) abort() {
	a.cancel()
	a.lines.Close()
}

// close stops the counter engine and releases the lines.
func (a *app) close() {
	a.cancel()
	<-a.done
	a.lines.Close()
}

func (a *app) onPower(on bool) {
	state := status.PowerState(on)
	a.log.Infof("power %s", state)
	a.tracker.SetPower(on)
	a.publishLine(gpio.Power, state)
}

func (a *app) onReedSwitch(closed bool) {
	a.counter.Touch(counter.DirectionOf(closed))
	a.tracker.SetReedSwitch(closed)
	a.publishLine(gpio.ReedSwitch, status.ReedState(closed))
}

func (a *app) onCounter(v counter.Raw) {
	data := a.store.Get()
	data.Counter = uint32(v)
	if err := a.store.Set(data); err != nil {
		a.log.Errorf("persist counter: %v", err)
	}

	value := counter.RealOf(v)
	a.log.Infof("counter handler: %.3f", value)
	a.tracker.SetCounter(v)
	a.tracker.SetStats(a.counter.Stats())

	event := mqtt.CounterEvent{Timestamp: a.now(), Raw: uint32(v), Value: float64(value)}
	if err := a.publisher.PublishCounter(event); err != nil {
		a.log.Warnf("publish counter: %v", err)
	}
}

func (a *app) publishLine(id gpio.LineID, state string) {
	event := mqtt.LineEvent{Timestamp: a.now(), Line: id.String(), State: state}
	if err := a.publisher.PublishLine(event); err != nil {
		a.log.Warnf("publish %s: %v", id, err)
	}
}

// refreshStatus copies values the tracker does not get through handlers.
func (a *app) refreshStatus() {
	a.tracker.SetStats(a.counter.Stats())
	if a.mqttStatus != nil {
		a.tracker.SetMQTTConnected(a.mqttStatus.IsConnected())
	}
}

// publishLifecycle publishes a system event carrying a full status snapshot.
// STARTUP and SHUTDOWN are retained.
func (a *app) publishLifecycle(event, reason string) {
	a.refreshStatus()
	snap := a.tracker.Snapshot()
	e := mqtt.SystemEvent{
		Timestamp:  a.now(),
		Event:      event,
		Reason:     reason,
		Retained:   event != "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := a.publisher.PublishSystem(e); err != nil {
		a.log.Warnf("failed to publish %s event: %v", event, err)
		return
	}
	a.log.Infof("published %s event", event)
}
