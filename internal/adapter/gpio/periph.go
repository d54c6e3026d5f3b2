//go:build edge

package gpio

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Periph implements Backend with periph.io on real hardware.
type Periph struct {
	mu   sync.Mutex
	pins map[int]gpio.PinIO
}

// NewPeriph initializes the periph.io host drivers.
func NewPeriph() (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &Periph{pins: make(map[int]gpio.PinIO)}, nil
}

func (p *Periph) resolve(pin int) (gpio.PinIO, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if io, ok := p.pins[pin]; ok {
		return io, nil
	}
	name := fmt.Sprintf("GPIO%d", pin)
	io := gpioreg.ByName(name)
	if io == nil {
		return nil, fmt.Errorf("pin %d (%s) not found in hardware", pin, name)
	}
	p.pins[pin] = io
	return io, nil
}

func (p *Periph) Asserted(pin int) (bool, error) {
	io, err := p.resolve(pin)
	if err != nil {
		return false, err
	}
	if err := io.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return false, fmt.Errorf("set pin %d to input: %w", pin, err)
	}
	return io.Read() == gpio.High, nil
}

func (p *Periph) Write(pin int, high bool) error {
	io, err := p.resolve(pin)
	if err != nil {
		return err
	}
	level := gpio.Low
	if high {
		level = gpio.High
	}
	return io.Out(level)
}

// Close drives every output low.
func (p *Periph) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for pin, io := range p.pins {
		if io.Function() != "Out" {
			continue
		}
		if err := io.Out(gpio.Low); err != nil && first == nil {
			first = fmt.Errorf("release pin %d: %w", pin, err)
		}
	}
	return first
}
