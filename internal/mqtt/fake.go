package mqtt

import "sync"

// FakePublisher records published events for test assertions. It is safe for
// concurrent use: handlers publish from several goroutines.
type FakePublisher struct {
	mu sync.Mutex

	counters       []CounterEvent
	lines          []LineEvent
	systemEvents   []SystemEvent
	systemPayloads [][]byte

	// PublishError, if set, is returned by PublishCounter and PublishLine.
	PublishError error

	// PublishSystemError, if set, is returned by PublishSystem.
	PublishSystemError error

	closed    bool
	connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishCounter records the counter event.
func (f *FakePublisher) PublishCounter(event CounterEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	if _, err := FormatCounterPayload(event); err != nil {
		return err
	}
	f.counters = append(f.counters, event)
	return nil
}

// PublishLine records the line event.
func (f *FakePublisher) PublishLine(event LineEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.lines = append(f.lines, event)
	return nil
}

// PublishSystem records the system event and its payload.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.systemEvents = append(f.systemEvents, event)
	f.systemPayloads = append(f.systemPayloads, payload)
	return nil
}

// Counters returns the recorded counter events.
func (f *FakePublisher) Counters() []CounterEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CounterEvent(nil), f.counters...)
}

// Lines returns the recorded line events.
func (f *FakePublisher) Lines() []LineEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]LineEvent(nil), f.lines...)
}

// SystemEvents returns the recorded system events.
func (f *FakePublisher) SystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.systemEvents...)
}

// SystemPayloads returns the JSON payloads of the recorded system events.
func (f *FakePublisher) SystemPayloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.systemPayloads...)
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakePublisher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// SetConnected controls the return value of IsConnected.
func (f *FakePublisher) SetConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Reset clears recorded events and injected errors.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = nil
	f.lines = nil
	f.systemEvents = nil
	f.systemPayloads = nil
	f.closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.connected = false
}
