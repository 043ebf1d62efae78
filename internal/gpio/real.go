//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"
)

const consumer = "sonar-sensor"

// RealPort claims pins from the Linux GPIO character device. The kernel is
// the ownership registry: a line held by any other process or driver fails
// to request with EBUSY, which is surfaced as ErrPinInUse.
type RealPort struct {
	chip *gpiocdev.Chip
}

// NewRealPort opens the given GPIO chip (e.g. "gpiochip0").
func NewRealPort(chipName string) (*RealPort, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}
	return &RealPort{chip: chip}, nil
}

// ClaimOutput requests pin as a push-pull output driven to its inactive level.
func (p *RealPort) ClaimOutput(pin int, cfg OutputConfig) (OutputPin, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if cfg.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := p.chip.RequestLine(pin, opts...)
	if err != nil {
		return nil, claimErr("output", pin, err)
	}
	return &realOutputPin{line: line}, nil
}

// ClaimInput requests pin as an input with the bias left as-is (floating
// unless the board wires a pull).
func (p *RealPort) ClaimInput(pin int) (InputPin, error) {
	line, err := p.chip.RequestLine(pin, gpiocdev.AsInput)
	if err != nil {
		return nil, claimErr("input", pin, err)
	}
	return &realInputPin{chip: p.chip, pin: pin, line: line}, nil
}

// Close releases the chip handle.
func (p *RealPort) Close() error {
	return p.chip.Close()
}

func claimErr(dir string, pin int, err error) error {
	if errors.Is(err, unix.EBUSY) {
		return fmt.Errorf("request %s pin %d: %w", dir, pin, ErrPinInUse)
	}
	return fmt.Errorf("request %s pin %d: %w", dir, pin, err)
}

type realOutputPin struct {
	line *gpiocdev.Line
}

func (o *realOutputPin) SetActive(active bool) error {
	v := 0
	if active {
		v = 1
	}
	return o.line.SetValue(v)
}

func (o *realOutputPin) Close() error {
	return o.line.Close()
}

type realInputPin struct {
	chip *gpiocdev.Chip
	pin  int
	line *gpiocdev.Line
}

func (i *realInputPin) IsActive() (bool, error) {
	v, err := i.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", i.pin, err)
	}
	return v != 0, nil
}

// Watch re-requests the line with both-edge event delivery. Edge detection
// must be set at request time on the character device, so the plain input
// request is closed and replaced. Kernel event timestamps use the monotonic
// clock so they survive wall-clock steps.
func (i *realInputPin) Watch(handler func(EdgeEvent)) error {
	if err := i.line.Close(); err != nil {
		return fmt.Errorf("release pin %d for watch: %w", i.pin, err)
	}
	line, err := i.chip.RequestLine(i.pin,
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithMonotonicEventClock,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			handler(EdgeEvent{
				Rising:      evt.Type == gpiocdev.LineEventRisingEdge,
				TimestampUs: int64(evt.Timestamp / time.Microsecond),
			})
		}))
	if err != nil {
		return claimErr("event", i.pin, err)
	}
	i.line = line
	return nil
}

func (i *realInputPin) Close() error {
	return i.line.Close()
}
