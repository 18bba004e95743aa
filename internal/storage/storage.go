// Package storage persists the counter value and the temporary access point
// SSID across restarts.
package storage

import (
	"sync"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// MaxSSIDLength is the longest SSID an access point accepts, in bytes.
const MaxSSIDLength = 32

// Data is the persisted record.
type Data struct {
	Counter         uint32 `yaml:"counter"`
	TemporaryAPSSID string `yaml:"tap_ssid"`
}

// Store holds the last committed Data. Get never fails; Set reports commit
// failures and leaves the previous record in place.
type Store interface {
	Get() Data
	Set(Data) error
}

// truncateSSID cuts s to at most MaxSSIDLength bytes without splitting a
// UTF-8 sequence.
func truncateSSID(s string) string {
	if len(s) <= MaxSSIDLength {
		return s
	}
	n := MaxSSIDLength
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// logUpdated logs each field that differs between the previous and the newly
// committed record.
func logUpdated(log *logrus.Entry, prev, next Data) {
	if next.Counter != prev.Counter {
		log.Debugf("counter value updated: %d", next.Counter)
	}
	if next.TemporaryAPSSID != prev.TemporaryAPSSID {
		log.Debug("temporary access point ssid value updated")
	}
}

// Memory is an in-process Store. It keeps the same truncation and change
// detection rules as FileStore and counts commits.
type Memory struct {
	mu      sync.Mutex
	data    Data
	commits int
	log     *logrus.Entry

	// SetError, if set, is returned by Set and nothing is stored.
	SetError error
}

// NewMemory returns a Memory store holding initial.
func NewMemory(initial Data) *Memory {
	initial.TemporaryAPSSID = truncateSSID(initial.TemporaryAPSSID)
	return &Memory{
		data: initial,
		log:  logrus.WithField("component", "app/storage"),
	}
}

func (m *Memory) Get() Data {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data
}

func (m *Memory) Set(d Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetError != nil {
		return m.SetError
	}
	d.TemporaryAPSSID = truncateSSID(d.TemporaryAPSSID)
	if d == m.data {
		return nil
	}
	logUpdated(m.log, m.data, d)
	m.data = d
	m.commits++
	return nil
}

// Commits returns how many Set calls changed the record.
func (m *Memory) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}
