//go:build !linux

package gpio

import "errors"

// RealPort is not available on non-Linux platforms.
type RealPort struct{}

// NewRealPort returns an error on non-Linux platforms.
func NewRealPort(chipName string) (*RealPort, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// ClaimOutput is not implemented on non-Linux platforms.
func (p *RealPort) ClaimOutput(pin int, cfg OutputConfig) (OutputPin, error) {
	return nil, errors.New("gpio: not supported")
}

// ClaimInput is not implemented on non-Linux platforms.
func (p *RealPort) ClaimInput(pin int) (InputPin, error) {
	return nil, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (p *RealPort) Close() error {
	return nil
}
