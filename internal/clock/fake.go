package clock

// Fake is a manually-advanced Clock for tests. Time only moves when the test
// calls Advance or when a delay is executed, so timing-sensitive code paths
// are fully deterministic.
//
// Not safe for concurrent use — tests drive it from a single goroutine.
type Fake struct {
	// nowUs is the current time in microseconds since the fake epoch.
	nowUs int64

	// OnDelay, if set, is called after each delay with the new time in
	// microseconds. Tests use it to script hardware reactions (e.g. the
	// echo line going high partway through a busy-poll window).
	OnDelay func(nowUs int64)
}

// NewFake creates a Fake clock starting at the given microsecond timestamp.
// Starting at a non-zero time mirrors real boots, where the driver never
// sees millis()==0.
func NewFake(startUs int64) *Fake {
	return &Fake{nowUs: startUs}
}

// Millis returns the current fake time in milliseconds.
func (f *Fake) Millis() int64 {
	return f.nowUs / 1000
}

// Micros returns the current fake time in microseconds.
func (f *Fake) Micros() int64 {
	return f.nowUs
}

// DelayMicros advances the fake time by us microseconds.
func (f *Fake) DelayMicros(us int64) {
	f.nowUs += us
	if f.OnDelay != nil {
		f.OnDelay(f.nowUs)
	}
}

// DelayMillis advances the fake time by ms milliseconds.
func (f *Fake) DelayMillis(ms int64) {
	f.DelayMicros(ms * 1000)
}

// AdvanceMicros moves the fake time forward by us microseconds without
// invoking OnDelay.
func (f *Fake) AdvanceMicros(us int64) {
	f.nowUs += us
}

// AdvanceMillis moves the fake time forward by ms milliseconds without
// invoking OnDelay.
func (f *Fake) AdvanceMillis(ms int64) {
	f.nowUs += ms * 1000
}
