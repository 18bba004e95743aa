// Package diag logs a description of the host and its GPIO hardware at
// startup.
package diag

import (
	"runtime"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/driver/driverreg"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/sweeney/homecounter/internal/gpio"
)

// Report is what Execute logs.
type Report struct {
	CPUs int
	OS   string
	Arch string

	DriversLoaded  []string
	DriversSkipped []string
	DriversFailed  []string
	HostErr        error
	Pins           int

	Chip gpio.ChipInfo
}

// hostInit is replaced in tests.
var hostInit = host.Init

// Collect gathers the report. Driver failures are part of the report, not
// an error.
func Collect(chip gpio.ChipInfo) Report {
	r := Report{
		CPUs: runtime.NumCPU(),
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
		Chip: chip,
	}

	state, err := hostInit()
	if err != nil {
		r.HostErr = err
		return r
	}
	r.DriversLoaded, r.DriversSkipped, r.DriversFailed = driverNames(state)
	r.Pins = len(gpioreg.All())
	return r
}

func driverNames(state *driverreg.State) (loaded, skipped, failed []string) {
	if state == nil {
		return nil, nil, nil
	}
	for _, d := range state.Loaded {
		loaded = append(loaded, d.String())
	}
	for _, f := range state.Skipped {
		skipped = append(skipped, f.D.String())
	}
	for _, f := range state.Failed {
		failed = append(failed, f.D.String()+": "+f.Err.Error())
	}
	return loaded, skipped, failed
}

// Execute logs the report. It never fails.
func Execute(logger *logrus.Entry, chip gpio.ChipInfo) Report {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	log := logger.WithField("component", "app/chip_info")

	r := Collect(chip)
	log.Infof("%s/%s host with %d CPU cores", r.OS, r.Arch, r.CPUs)
	if r.HostErr != nil {
		log.Warnf("periph host init failed: %v", r.HostErr)
	} else {
		log.Infof("periph drivers: loaded=%v skipped=%d", r.DriversLoaded, len(r.DriversSkipped))
		for _, f := range r.DriversFailed {
			log.Warnf("periph driver failed: %s", f)
		}
		log.Infof("%d gpio pins registered", r.Pins)
	}
	if r.Chip.Name != "" {
		log.Infof("gpio chip %s (%s) with %d lines", r.Chip.Name, r.Chip.Label, r.Chip.Lines)
	}
	return r
}
