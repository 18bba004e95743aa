// Package handler provides a thread-safe, append-only list of callbacks that
// can be raised together. Registration never blocks: it is called from code
// that sits next to edge interrupts and must not wait on a broadcast.
package handler

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNilHandler is returned by Install for a nil callback.
	ErrNilHandler = errors.New("handler: nil callback")

	// ErrBusy is returned by Install when the registry is locked by a
	// concurrent Install or Raise. Nothing was registered.
	ErrBusy = errors.New("handler: registry busy")
)

// Key identifies an installed callback. The zero Key is never issued.
type Key uint64

// IsZero reports whether k is the zero Key (registration did not happen).
func (k Key) IsZero() bool { return k == 0 }

var lastKey atomic.Uint64

type entry[T any] struct {
	key Key
	fn  func(T)
}

// Registry is a list of callbacks taking a payload of type T.
// The zero value is not usable; create one with New.
type Registry[T any] struct {
	log *logrus.Entry

	mu      sync.Mutex
	entries []entry[T]
}

// New creates an empty registry. The name appears in log lines about
// misbehaving callbacks.
func New[T any](name string, logger *logrus.Entry) *Registry[T] {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry[T]{
		log: logger.WithField("registry", name),
	}
}

// Install appends fn and returns its key. It never waits for the lock:
// if a Raise or another Install is in progress it returns ErrBusy and the
// caller decides whether to retry.
func (r *Registry[T]) Install(fn func(T)) (Key, error) {
	if fn == nil {
		return 0, ErrNilHandler
	}
	if !r.mu.TryLock() {
		return 0, ErrBusy
	}
	defer r.mu.Unlock()

	k := Key(lastKey.Add(1))
	r.entries = append(r.entries, entry[T]{key: k, fn: fn})
	return k, nil
}

// Remove drops the callback installed under key. It reports whether an
// entry was found.
func (r *Registry[T]) Remove(key Key) bool {
	if key.IsZero() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.key == key {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Raise calls every installed callback with payload, in installation order.
// A panicking callback is logged and skipped; the others still run.
//
// Callbacks run with the registry locked: they must not Raise the same
// registry, and an Install from inside a callback returns ErrBusy.
func (r *Registry[T]) Raise(payload T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		r.call(e, payload)
	}
}

func (r *Registry[T]) call(e entry[T], payload T) {
	defer func() {
		if p := recover(); p != nil {
			r.log.WithField("key", uint64(e.key)).Warnf("handler failed: %v", p)
		}
	}()
	e.fn(payload)
}

// Len returns the number of installed callbacks.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
