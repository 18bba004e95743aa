//go:build !linux

package gpio

import "github.com/pkg/errors"

var errNotSupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealChip is not available on non-Linux platforms.
type RealChip struct{}

// NewRealChip returns an error on non-Linux platforms.
func NewRealChip(name string) (*RealChip, error) {
	return nil, errNotSupported
}

// Watch is not implemented on non-Linux platforms.
func (c *RealChip) Watch(LineID, LineConfig, func()) (Input, error) {
	return nil, errNotSupported
}

// Info is not implemented on non-Linux platforms.
func (c *RealChip) Info() ChipInfo { return ChipInfo{} }

// Close is not implemented on non-Linux platforms.
func (c *RealChip) Close() error {
	return nil
}
