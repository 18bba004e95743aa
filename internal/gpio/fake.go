package gpio

import (
	"errors"
	"sync"
)

// FakeChip is a test double. Set changes a line level and fires the edge
// callback synchronously, the way a hardware interrupt would.
type FakeChip struct {
	mu      sync.Mutex
	levels  [numLines]bool
	onEdge  [numLines]func()
	configs [numLines]LineConfig
	watched [numLines]bool

	// WatchError, if set, is returned by Watch for the given line.
	WatchError map[LineID]error

	// ReadError, if set, will be returned by Value().
	ReadError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeChip creates a FakeChip with both lines at logical false.
func NewFakeChip() *FakeChip {
	return &FakeChip{}
}

// Watch records the edge callback for id.
func (f *FakeChip) Watch(id LineID, cfg LineConfig, onEdge func()) (Input, error) {
	if !id.valid() {
		return nil, errors.New("fake: invalid line")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.WatchError[id]; err != nil {
		return nil, err
	}
	f.onEdge[id] = onEdge
	f.configs[id] = cfg
	f.watched[id] = true
	return &fakeInput{chip: f, id: id}, nil
}

// Set changes the logical level of id. If the level changed and the line is
// watched, the edge callback runs before Set returns.
func (f *FakeChip) Set(id LineID, level bool) {
	f.mu.Lock()
	changed := f.levels[id] != level
	f.levels[id] = level
	cb := f.onEdge[id]
	f.mu.Unlock()

	if changed && cb != nil {
		cb()
	}
}

// Edge fires the edge callback of id without changing the level, as a
// bouncing contact that settles back before the level is sampled.
func (f *FakeChip) Edge(id LineID) {
	f.mu.Lock()
	cb := f.onEdge[id]
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Watched reports whether id is currently requested.
func (f *FakeChip) Watched(id LineID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watched[id]
}

// Config returns the configuration id was requested with.
func (f *FakeChip) Config(id LineID) LineConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configs[id]
}

// Info describes the fake chip.
func (f *FakeChip) Info() ChipInfo {
	return ChipInfo{Name: "fake", Label: "fake", Lines: numLines}
}

// Close marks the chip as closed.
func (f *FakeChip) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

type fakeInput struct {
	chip *FakeChip
	id   LineID
}

func (in *fakeInput) Value() (bool, error) {
	in.chip.mu.Lock()
	defer in.chip.mu.Unlock()
	if in.chip.ReadError != nil {
		return false, in.chip.ReadError
	}
	return in.chip.levels[in.id], nil
}

func (in *fakeInput) Close() error {
	in.chip.mu.Lock()
	in.chip.watched[in.id] = false
	in.chip.onEdge[in.id] = nil
	in.chip.mu.Unlock()
	return nil
}
