// Package rangefinder defines the generic distance-sensor contract that
// concrete drivers plug into. The host control loop only sees this interface;
// it never touches driver internals.
package rangefinder

// Reserved out-of-band return values of Device.Read. Valid distances are
// non-negative centimeters, so negative values are free for sentinels.
const (
	// OutOfRange means the sensor answered but the target is beyond its
	// rated range. The host may treat this as "nothing detected nearby".
	OutOfRange int32 = -1

	// HardwareFailure means the sensor stopped answering. The host should
	// skip the reading and carry on; the driver recovers on its own when
	// echoes resume.
	HardwareFailure int32 = -2
)

// Device is a distance sensor as seen by the host scheduler.
//
// Update and Read are called at the host's own cadence from a single
// goroutine; both must return without blocking. Read never fails — every
// run-time condition is expressed through the returned value.
type Device interface {
	// Init is called once before the first Update. Drivers with no
	// deferred setup return nil.
	Init() error

	// Update requests a new measurement. Drivers self-throttle, so
	// calling it faster than the sensor allows is harmless.
	Update()

	// Read returns the latest distance in centimeters, or one of the
	// sentinel values above.
	Read() int32
}

// Spec describes a detected device's fixed operating parameters, reported
// once at detection time for the host's sensor-fusion geometry.
type Spec struct {
	// MaxRangeCm is the rated maximum detection distance.
	MaxRangeCm int32

	// DetectionConeDeciDegrees is the rated detection cone angle.
	DetectionConeDeciDegrees int32

	// DetectionConeExtendedDeciDegrees is the cone angle observed to work
	// in practice, wider than the rated one.
	DetectionConeExtendedDeciDegrees int32

	// DelayMs is the recommended host polling cadence.
	DelayMs int64
}

// Status classifies a Read result for reporting.
type Status string

const (
	StatusOK              Status = "OK"
	StatusOutOfRange      Status = "OUT_OF_RANGE"
	StatusHardwareFailure Status = "HARDWARE_FAILURE"
)

// Classify maps a Read result to its Status.
func Classify(distanceCm int32) Status {
	switch distanceCm {
	case OutOfRange:
		return StatusOutOfRange
	case HardwareFailure:
		return StatusHardwareFailure
	default:
		return StatusOK
	}
}
