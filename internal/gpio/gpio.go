// Package gpio provides GPIO pin access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "errors"

// ErrPinInUse is returned by claim operations when the requested pin is
// already owned by another subsystem.
var ErrPinInUse = errors.New("gpio: pin already in use")

// Default pin assignments (BCM numbering).
const (
	DefaultPinTrigger = 23 // HC-SR04 Trig (sensor is 5V, use a level shifter)
	DefaultPinEcho    = 24 // HC-SR04 Echo (sensor is 5V, use a divider)
)

// EdgeEvent describes one logical transition of a watched input pin.
type EdgeEvent struct {
	// Rising is true when the pin went inactive -> active.
	Rising bool

	// TimestampUs is the monotonic microsecond timestamp of the edge.
	// Timestamps are only comparable with each other: consumers compute
	// durations between edges and never mix them with another time base.
	TimestampUs int64
}

// OutputConfig configures a claimed output pin.
type OutputConfig struct {
	// ActiveLow inverts the electrical polarity: SetActive(true) drives
	// the line low.
	ActiveLow bool
}

// Port claims pins from a GPIO controller. Claims are exclusive; claiming a
// pin owned by anyone else fails with an error wrapping ErrPinInUse.
type Port interface {
	// ClaimOutput requests pin as a push-pull output, driven inactive.
	ClaimOutput(pin int, cfg OutputConfig) (OutputPin, error)

	// ClaimInput requests pin as a floating input.
	ClaimInput(pin int) (InputPin, error)

	// Close releases the controller. Claimed pins must be closed first.
	Close() error
}

// OutputPin is an exclusively-owned output line.
type OutputPin interface {
	// SetActive drives the line to its logical active or inactive level.
	SetActive(active bool) error

	// Close releases ownership of the pin.
	Close() error
}

// InputPin is an exclusively-owned input line.
type InputPin interface {
	// IsActive reads the current logical level.
	IsActive() (bool, error)

	// Watch switches the pin to edge-event delivery on both edges. The
	// handler is invoked from a dedicated event goroutine and must return
	// quickly. After a successful Watch, IsActive is no longer used.
	Watch(handler func(EdgeEvent)) error

	// Close releases ownership of the pin.
	Close() error
}
