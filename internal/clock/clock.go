// Package clock provides monotonic millisecond and microsecond time sources
// with injectable fakes. The ranging driver never reads wall-clock time; it
// only compares durations since process start, which keeps the arithmetic
// immune to NTP steps.
package clock

import "time"

// Clock is a monotonic time source with blocking delays.
type Clock interface {
	// Millis returns milliseconds elapsed since the clock was created.
	Millis() int64

	// Micros returns microseconds elapsed since the clock was created.
	Micros() int64

	// DelayMicros blocks for at least us microseconds.
	DelayMicros(us int64)

	// DelayMillis blocks for at least ms milliseconds.
	DelayMillis(ms int64)
}

// Monotonic is a Clock backed by the runtime's monotonic clock.
type Monotonic struct {
	start time.Time
}

// NewMonotonic creates a Monotonic clock whose epoch is now.
func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

// Millis returns milliseconds since the clock epoch.
func (m *Monotonic) Millis() int64 {
	return time.Since(m.start).Milliseconds()
}

// Micros returns microseconds since the clock epoch.
func (m *Monotonic) Micros() int64 {
	return time.Since(m.start).Microseconds()
}

// DelayMicros sleeps for at least us microseconds. On Linux this is good
// enough for the 11µs trigger pulse: the HC-SR04 only requires the pulse to
// be at least 10µs wide, so oversleep widens the pulse harmlessly.
func (m *Monotonic) DelayMicros(us int64) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}

// DelayMillis sleeps for at least ms milliseconds.
func (m *Monotonic) DelayMillis(ms int64) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}
