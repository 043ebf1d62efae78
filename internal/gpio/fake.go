package gpio

import "fmt"

// FakePort is a test double implementing Port with an in-memory ownership
// registry. Claims conflict the same way the kernel registry does, and pins
// become reclaimable once closed.
type FakePort struct {
	claimed map[int]bool

	// Outputs and Inputs record every pin claimed, by pin number, so tests
	// can inspect them after the code under test ran.
	Outputs map[int]*FakeOutputPin
	Inputs  map[int]*FakeInputPin

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePort creates an empty FakePort.
func NewFakePort() *FakePort {
	return &FakePort{
		claimed: make(map[int]bool),
		Outputs: make(map[int]*FakeOutputPin),
		Inputs:  make(map[int]*FakeInputPin),
	}
}

// Preclaim marks a pin as owned by another subsystem, so the next claim of it
// fails with ErrPinInUse.
func (p *FakePort) Preclaim(pin int) {
	p.claimed[pin] = true
}

// IsClaimed reports whether the pin is currently owned.
func (p *FakePort) IsClaimed(pin int) bool {
	return p.claimed[pin]
}

// ClaimOutput claims pin as an output, recording its config and all levels
// later driven onto it.
func (p *FakePort) ClaimOutput(pin int, cfg OutputConfig) (OutputPin, error) {
	if p.claimed[pin] {
		return nil, fmt.Errorf("request output pin %d: %w", pin, ErrPinInUse)
	}
	p.claimed[pin] = true
	out := &FakeOutputPin{port: p, pin: pin, ActiveLow: cfg.ActiveLow}
	p.Outputs[pin] = out
	return out, nil
}

// ClaimInput claims pin as an input returning scripted levels.
func (p *FakePort) ClaimInput(pin int) (InputPin, error) {
	if p.claimed[pin] {
		return nil, fmt.Errorf("request input pin %d: %w", pin, ErrPinInUse)
	}
	p.claimed[pin] = true
	in := &FakeInputPin{port: p, pin: pin}
	p.Inputs[pin] = in
	return in, nil
}

// Close marks the port as closed.
func (p *FakePort) Close() error {
	p.Closed = true
	return nil
}

// FakeOutputPin records levels driven onto a claimed output.
type FakeOutputPin struct {
	port *FakePort
	pin  int

	// ActiveLow is the polarity the pin was claimed with.
	ActiveLow bool

	// Active is the current logical level.
	Active bool

	// Levels contains every logical level set, in order.
	Levels []bool

	// OnSet, if non-nil, is called after each SetActive. Tests use it to
	// react to trigger pulses.
	OnSet func(active bool)

	// Closed tracks if Close was called.
	Closed bool
}

// SetActive records the new logical level.
func (o *FakeOutputPin) SetActive(active bool) error {
	o.Active = active
	o.Levels = append(o.Levels, active)
	if o.OnSet != nil {
		o.OnSet(active)
	}
	return nil
}

// Pulses counts completed inactive->active->inactive excursions.
func (o *FakeOutputPin) Pulses() int {
	n := 0
	prev := false
	for _, l := range o.Levels {
		if prev && !l {
			n++
		}
		prev = l
	}
	return n
}

// Close releases the pin back to the port's registry.
func (o *FakeOutputPin) Close() error {
	delete(o.port.claimed, o.pin)
	o.Closed = true
	return nil
}

// FakeInputPin returns scripted levels and lets tests inject edge events.
type FakeInputPin struct {
	port *FakePort
	pin  int

	// Levels contains scripted logical levels returned by successive
	// IsActive calls. When exhausted the last level repeats; an empty
	// script reads as idle (inactive).
	Levels []bool

	// index tracks current position in Levels
	index int

	// ReadError, if set, will be returned by IsActive()
	ReadError error

	// Handler is the edge handler installed by Watch, nil before.
	Handler func(EdgeEvent)

	// Closed tracks if Close was called.
	Closed bool
}

// IsActive returns the next scripted level.
func (i *FakeInputPin) IsActive() (bool, error) {
	if i.ReadError != nil {
		return false, i.ReadError
	}
	if len(i.Levels) == 0 {
		return false, nil
	}
	level := i.Levels[i.index]
	if i.index < len(i.Levels)-1 {
		i.index++
	}
	return level, nil
}

// Watch installs the edge handler.
func (i *FakeInputPin) Watch(handler func(EdgeEvent)) error {
	i.Handler = handler
	return nil
}

// InjectEdge delivers an edge event to the installed handler. It panics if
// Watch was never called, which is always a bug in the code under test.
func (i *FakeInputPin) InjectEdge(rising bool, timestampUs int64) {
	i.Handler(EdgeEvent{Rising: rising, TimestampUs: timestampUs})
}

// Close releases the pin back to the port's registry.
func (i *FakeInputPin) Close() error {
	delete(i.port.claimed, i.pin)
	i.Closed = true
	return nil
}
