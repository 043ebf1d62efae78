// Package hcsr04 drives an HC-SR04 ultrasonic rangefinder: an 11µs trigger
// pulse commands the sensor to ping, and the width of the echo pulse encodes
// the round-trip travel time of sound.
//
// Measurement is split across two execution contexts. The host control loop
// calls Update (fire a trigger, self-throttled) and Read (classify the latest
// capture) at its own cadence; echo edges arrive on the GPIO event goroutine,
// which records pulse widths. The two sides share three fields under a strict
// single-writer discipline, see Driver.
package hcsr04

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/sweeney/sonar-sensor/internal/clock"
	"github.com/sweeney/sonar-sensor/internal/gpio"
	"github.com/sweeney/sonar-sensor/internal/rangefinder"
)

// Operating parameters from the HC-SR04 spec sheet.
const (
	// MaxRangeCm is the rated maximum range (4m). Anything measured beyond
	// it is reported as rangefinder.OutOfRange.
	MaxRangeCm = 400

	// DetectionConeDeciDegrees is the rated detection cone (30 degrees).
	DetectionConeDeciDegrees = 300

	// DetectionConeExtendedDeciDegrees is the cone observed to work in
	// practice (45 degrees).
	DetectionConeExtendedDeciDegrees = 450

	// RecommendedDelayMs is the polling cadence reported to the host.
	RecommendedDelayMs = 100

	// DefaultFiringIntervalMs is the minimum time between trigger pulses,
	// from the sensor's re-fire settle requirement. Firing sooner causes
	// cross-talk between consecutive measurements. It doubles as the echo
	// response deadline: a request unanswered for this long is a hardware
	// failure.
	DefaultFiringIntervalMs = 60

	// DefaultDetectAttempts is how many trigger pulses the presence probe
	// fires before declaring the sensor absent.
	DefaultDetectAttempts = 5
)

const (
	// The trigger pulse must be high for at least 10µs.
	triggerPulseUs = 11

	// Sound travels ~58.82µs per round-trip centimeter; the sensor's data
	// sheet rounds to 59 for integer division.
	usRoundTripPerCm = 59

	// Settle time after driving the trigger idle, before the first probe
	// pulse.
	settleDelayMs = 100

	// Echo poll cadence inside a probe attempt window. Microsecond scale:
	// a close target returns an echo pulse well under a millisecond wide,
	// which must not fit between two polls.
	probePollUs = 50
)

// ErrNotDetected is returned by Detect when no echo activity was observed
// across all probe attempts.
var ErrNotDetected = errors.New("hcsr04: no echo response, sensor not detected")

// Config holds the build-time tunables of the driver.
type Config struct {
	// TriggerPin and EchoPin are BCM pin numbers.
	TriggerPin int
	EchoPin    int

	// InvertedTrigger flips the trigger polarity for inverted wiring.
	InvertedTrigger bool

	// FiringIntervalMs overrides DefaultFiringIntervalMs when positive.
	FiringIntervalMs int64

	// DetectAttempts overrides DefaultDetectAttempts when positive.
	DetectAttempts int

	// Clock overrides the monotonic clock. Tests inject a fake.
	Clock clock.Clock
}

func (c Config) withDefaults() Config {
	if c.FiringIntervalMs <= 0 {
		c.FiringIntervalMs = DefaultFiringIntervalMs
	}
	if c.DetectAttempts <= 0 {
		c.DetectAttempts = DefaultDetectAttempts
	}
	if c.Clock == nil {
		c.Clock = clock.NewMonotonic()
	}
	return c
}

// Driver is one HC-SR04 instance. It implements rangefinder.Device.
//
// Shared state carries no lock; correctness relies on one writer per field:
//
//	lastFiredAtMs  written by the trigger side (Detect, then Update), read by Read
//	travelTimeUs   written by the edge handler, read by Read
//	capturedAtMs   written by the edge handler, read by Read
//
// Read may observe a travelTimeUs/capturedAtMs pair mid-update; the
// classification stays safe because each field load is atomic on its own and
// a torn pair only ever replays the previous capture for one cycle.
type Driver struct {
	cfg     Config
	clock   clock.Clock
	trigger gpio.OutputPin
	echo    gpio.InputPin

	lastFiredAtMs atomic.Int64 // 0 until the first pulse fires; probe pulses count
	travelTimeUs  atomic.Int64
	capturedAtMs  atomic.Int64

	// edgeRiseUs is scratch for the edge handler across the rising and
	// falling halves of one pulse. Never touched outside that goroutine.
	edgeRiseUs int64

	// lastDistanceCm is the cached classification, touched only by Read.
	lastDistanceCm int32
}

func newDriver(trigger gpio.OutputPin, echo gpio.InputPin, cfg Config) *Driver {
	return &Driver{
		cfg:            cfg,
		clock:          cfg.Clock,
		trigger:        trigger,
		echo:           echo,
		edgeRiseUs:     -1,
		lastDistanceCm: rangefinder.OutOfRange,
	}
}

// Detect probes for a sensor on the configured pins. It claims both pins,
// lets the trigger line settle, then fires up to cfg.DetectAttempts trigger
// pulses, each followed by a bounded poll of the echo line. Any echo activity
// counts as a connected sensor; pulse widths are not validated here.
//
// On success the echo pin is switched to edge-event capture and the returned
// Driver owns both pins for the life of the process. On failure both pins are
// released and the error reports why: ownership conflicts wrap
// gpio.ErrPinInUse, an unresponsive sensor is ErrNotDetected.
func Detect(port gpio.Port, cfg Config) (*Driver, error) {
	cfg = cfg.withDefaults()

	trigger, err := port.ClaimOutput(cfg.TriggerPin, gpio.OutputConfig{ActiveLow: cfg.InvertedTrigger})
	if err != nil {
		return nil, fmt.Errorf("claim trigger: %w", err)
	}
	echo, err := port.ClaimInput(cfg.EchoPin)
	if err != nil {
		trigger.Close()
		return nil, fmt.Errorf("claim echo: %w", err)
	}

	d := newDriver(trigger, echo, cfg)

	// Trigger is claimed already idle; give the sensor time to settle
	// before the first pulse.
	d.clock.DelayMillis(settleDelayMs)

	// The echo line should idle low. Some boards float high briefly after
	// power-up, so this is not fatal: the firing loop below gives the line
	// every chance to respond properly.
	if active, err := echo.IsActive(); err == nil && active {
		log.Printf("hcsr04: echo pin %d high before first trigger, probing anyway", cfg.EchoPin)
	}

	detected := false
	for i := 0; i < cfg.DetectAttempts && !detected; i++ {
		// Probe pulses count as range requests: record the firing time so
		// the host's first Update honors the minimum firing interval.
		requestedAt := d.clock.Millis()
		d.lastFiredAtMs.Store(requestedAt)
		d.firePulse()

		for d.clock.Millis()-requestedAt < cfg.FiringIntervalMs {
			active, err := echo.IsActive()
			if err == nil && active {
				detected = true
				break
			}
			d.clock.DelayMicros(probePollUs)
		}
	}

	if !detected {
		trigger.Close()
		echo.Close()
		return nil, ErrNotDetected
	}

	if err := echo.Watch(d.handleEdge); err != nil {
		trigger.Close()
		echo.Close()
		return nil, fmt.Errorf("watch echo: %w", err)
	}
	return d, nil
}

// Spec reports the device's fixed operating parameters.
func (d *Driver) Spec() rangefinder.Spec {
	return rangefinder.Spec{
		MaxRangeCm:                       MaxRangeCm,
		DetectionConeDeciDegrees:         DetectionConeDeciDegrees,
		DetectionConeExtendedDeciDegrees: DetectionConeExtendedDeciDegrees,
		DelayMs:                          RecommendedDelayMs,
	}
}

// Init implements rangefinder.Device. The HC-SR04 needs no deferred setup.
func (d *Driver) Init() error {
	return nil
}

// Update starts a range reading by firing a trigger pulse, unless the last
// pulse was fired less than the firing interval ago, in which case it is a
// no-op. Called periodically by the host scheduler; the measurement itself
// completes asynchronously via the edge handler.
func (d *Driver) Update() {
	nowMs := d.clock.Millis()
	if nowMs-d.lastFiredAtMs.Load() <= d.cfg.FiringIntervalMs {
		return
	}
	d.lastFiredAtMs.Store(nowMs)
	d.firePulse()
}

func (d *Driver) firePulse() {
	d.trigger.SetActive(true)
	d.clock.DelayMicros(triggerPulseUs)
	d.trigger.SetActive(false)
}

// handleEdge runs on the GPIO event goroutine for every echo transition. The
// rising edge stamps the start of the pulse; the falling edge commits the
// pulse width. Travel time is computed purely from edge timestamps, while
// capturedAtMs comes from the driver clock; the two bases never mix.
func (d *Driver) handleEdge(e gpio.EdgeEvent) {
	if e.Rising {
		d.edgeRiseUs = e.TimestampUs
		return
	}
	if d.edgeRiseUs < 0 {
		// Falling edge with no recorded rise: the watch was installed
		// mid-pulse. Drop it.
		return
	}
	elapsed := e.TimestampUs - d.edgeRiseUs
	if elapsed < 0 {
		// Reordered or wrapped timestamps. Drop the capture silently;
		// the previous one remains in force.
		return
	}
	d.travelTimeUs.Store(elapsed)
	d.capturedAtMs.Store(d.clock.Millis())
}

// Read returns the distance measured by the last pulse, in centimeters, with
// no hardware side effects. Three outcomes, checked in order:
//
//  1. A capture arrived after the most recent trigger: convert it. Beyond
//     MaxRangeCm it becomes rangefinder.OutOfRange; either way the result is
//     cached and returned.
//  2. No fresh capture, but the last trigger is within the firing interval:
//     the sensor is still inside its normal response window, return the
//     cached value unchanged.
//  3. No fresh capture past the firing interval: the sensor stopped
//     answering. Cache and return rangefinder.HardwareFailure until a new
//     capture lands.
func (d *Driver) Read() int32 {
	lastFired := d.lastFiredAtMs.Load()

	if d.capturedAtMs.Load() > lastFired {
		distance := int32(d.travelTimeUs.Load() / usRoundTripPerCm)
		if distance > MaxRangeCm {
			distance = rangefinder.OutOfRange
		}
		d.lastDistanceCm = distance
	} else if lastFired > 0 && d.clock.Millis()-lastFired > d.cfg.FiringIntervalMs {
		d.lastDistanceCm = rangefinder.HardwareFailure
	}

	return d.lastDistanceCm
}

// Close releases both pins.
func (d *Driver) Close() error {
	var errs []error
	if err := d.trigger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close trigger: %w", err))
	}
	if err := d.echo.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close echo: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
