// Package network keeps the connectivity settings of the device and reports
// the state of the host network, as published by pi-helper.
package network

import (
	"fmt"
	"math/rand"
	"os"
	"sync"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

const (
	MaxSSIDLength     = 32
	MaxPasswordLength = 64
)

// Station is the access point the device joins.
type Station struct {
	Enabled  bool
	SSID     string
	Password string
}

// Settings are the connectivity settings.
type Settings struct {
	Station         Station
	TemporaryAPSSID string
}

// TemporaryAPSSID formats the name of the setup access point from a random
// value.
func TemporaryAPSSID(r uint32) string {
	return fmt.Sprintf("homecounter-%08x", r)
}

// NewTemporaryAPSSID returns a TemporaryAPSSID with a random suffix.
func NewTemporaryAPSSID() string {
	return TemporaryAPSSID(rand.Uint32())
}

// truncate cuts s to at most n bytes, backing off to a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Manager holds Settings and the last network Info. It is safe for
// concurrent use.
type Manager struct {
	log *logrus.Entry

	mu       sync.Mutex
	settings Settings
	apActive bool
	info     *Info
	getenv   func(string) string
}

// NewManager creates a Manager with empty settings.
func NewManager(logger *logrus.Entry) *Manager {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	m := &Manager{
		log:    logger.WithField("component", "app/wifi"),
		getenv: os.Getenv,
	}
	m.log.Info("initialization started")
	m.refreshLocked()
	m.log.Info("initialization finished")
	return m
}

// Settings returns a copy of the current settings.
func (m *Manager) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// SetSettings replaces the settings. SSIDs longer than MaxSSIDLength and
// passwords longer than MaxPasswordLength are truncated.
func (m *Manager) SetSettings(s Settings) {
	s.TemporaryAPSSID = truncate(s.TemporaryAPSSID, MaxSSIDLength)
	s.Station.SSID = truncate(s.Station.SSID, MaxSSIDLength)
	s.Station.Password = truncate(s.Station.Password, MaxPasswordLength)

	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()

	m.log.Infof("settings = %s", s.TemporaryAPSSID)
}

// EnableTemporaryAP marks the setup access point as active. It fails when no
// temporary SSID has been set.
func (m *Manager) EnableTemporaryAP() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings.TemporaryAPSSID == "" {
		return fmt.Errorf("temporary access point: no ssid configured")
	}
	if !m.apActive {
		m.apActive = true
		m.log.Infof("temporary access point %s enabled", m.settings.TemporaryAPSSID)
	}
	return nil
}

// TemporaryAPActive reports whether EnableTemporaryAP succeeded.
func (m *Manager) TemporaryAPActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apActive
}

// Info returns the network state read by the last Refresh, or nil when
// pi-helper has not reported any.
func (m *Manager) Info() *Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}

// Refresh re-reads the network state and returns it.
func (m *Manager) Refresh() *Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked()
}

func (m *Manager) refreshLocked() *Info {
	next := readInfo(m.getenv)
	if !next.equal(m.info) {
		if next == nil {
			m.log.Debug("network state unavailable")
		} else {
			m.log.Infof("network %s: %s %s", next.Status, next.Type, next.IP)
		}
	}
	m.info = next
	return next
}
