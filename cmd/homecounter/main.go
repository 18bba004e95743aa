// Command homecounter counts reed switch actuations on a utility meter,
// persists the count and publishes it to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/homecounter/internal/config"
	"github.com/sweeney/homecounter/internal/counter"
	"github.com/sweeney/homecounter/internal/diag"
	"github.com/sweeney/homecounter/internal/gpio"
	"github.com/sweeney/homecounter/internal/mqtt"
	"github.com/sweeney/homecounter/internal/status"
	"github.com/sweeney/homecounter/internal/storage"
	"github.com/sweeney/homecounter/internal/web"
)

// statusRefresh is how often debounce stats and MQTT connectivity are copied
// to the status tracker.
const statusRefresh = time.Second

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	printState := fs.Bool("print-state", false, "Print current line levels and the stored counter, then exit")

	cfg, err := config.Parse(fs, os.Args[1:])
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	setupLogging(cfg.Level())

	if err := run(cfg, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func setupLogging(level log.Level) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(level)
}

func run(cfg config.Config, printState bool) error {
	logger := log.WithField("component", "app/main")
	logger.Info("initialization started")

	chip, err := gpio.NewRealChip(cfg.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer chip.Close()

	diag.Execute(logger, chip.Info())

	// Print state mode
	if printState {
		return printCurrentState(os.Stdout, chip, cfg)
	}

	store, err := openStore(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	publisher, err := mqtt.NewRealPublisher(cfg.Broker, cfg.ClientID, logger)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Status tracker exists before STARTUP so the snapshot is available
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))

	a, err := start(context.Background(), cfg, deps{
		chip:       chip,
		store:      store,
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		logger:     logger,
		now:        time.Now,
	})
	if err != nil {
		return err
	}
	defer a.close()

	a.publishLifecycle("STARTUP", "")

	if cfg.HTTPAddr != "" {
		stopHTTP := serveHTTP(web.New(cfg.HTTPAddr, tracker), logger)
		defer stopHTTP()
	}

	logger.Infof("started: closing=%v opening=%v broker=%s heartbeat=%v",
		cfg.Debounce.Closing, cfg.Debounce.Opening, cfg.Broker, cfg.Heartbeat)

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		hb := time.NewTicker(cfg.Heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}
	refresh := time.NewTicker(statusRefresh)
	defer refresh.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(a, heartbeat, refresh.C, sigCh)
}

type httpServer interface {
	ListenAndServe(ctx context.Context) error
}

// serveHTTP runs srv in the background. The returned stop cancels it and
// waits for the graceful shutdown to finish.
func serveHTTP(srv httpServer, logger *log.Entry) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.ListenAndServe(ctx); err != nil {
			logger.Errorf("http server error: %v", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func openStore(path string, logger *log.Entry) (storage.Store, error) {
	if path == "" {
		logger.Warn("no storage path, the counter will not survive a restart")
		return storage.NewMemory(storage.Data{}), nil
	}
	s, err := storage.Open(path, logger)
	if err != nil {
		return nil, err
	}
	logger.Infof("storage file: %s", s.Path())
	return s, nil
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		Chip:        cfg.Chip,
		PinPower:    cfg.GPIO.Power.Offset,
		PinReed:     cfg.GPIO.ReedSwitch.Offset,
		ClosingMs:   cfg.Debounce.Closing.Milliseconds(),
		OpeningMs:   cfg.Debounce.Opening.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.Broker,
		HTTPPort:    cfg.HTTPAddr,
		WSBroker:    cfg.ResolveWSBroker(),
		Storage:     cfg.Storage,
	}
}

// printCurrentState writes both line levels and the stored counter.
func printCurrentState(w io.Writer, chip gpio.Chip, cfg config.Config) error {
	lines, err := gpio.Open(context.Background(), chip, cfg.GPIO, nil)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer lines.Close()

	power, err := lines.State(gpio.Power)
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	reed, err := lines.State(gpio.ReedSwitch)
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}

	store, err := openStore(cfg.Storage, log.WithField("component", "app/main"))
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	raw := counter.Raw(store.Get().Counter)

	fmt.Fprintf(w, "Power: %s, Reed switch: %s, Counter: %.3f (raw %d)\n",
		status.PowerState(power), status.ReedState(reed), counter.RealOf(raw), raw)
	return nil
}

func runLoop(a *app, heartbeat, refresh <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			a.log.Infof("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			a.publishLifecycle("SHUTDOWN", signalName)
			return nil

		case <-heartbeat:
			a.tracker.SetNetwork(a.network.Refresh())
			a.refreshStatus()
			st := a.counter.Stats()
			a.log.Infof("heartbeat: counter=%.3f accepted=%d rejected=%d superseded=%d",
				a.counter.Real(), st.Accepted, st.Rejected, st.Superseded)
			a.publishLifecycle("HEARTBEAT", "")

		case <-refresh:
			a.refreshStatus()
		}
	}
}
