package trigger

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// RPIO drives Raspberry Pi GPIO lines through go-rpio.
type RPIO struct {
	mu   sync.Mutex
	pins map[int]rpio.Pin
}

// NewRPIO maps the GPIO block. It needs /dev/gpiomem or root.
func NewRPIO() (*RPIO, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	return &RPIO{pins: make(map[int]rpio.Pin)}, nil
}

// Output configures pin as an output.
func (r *RPIO) Output(pin int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := rpio.Pin(pin)
	p.Output()
	r.pins[pin] = p
	return nil
}

// Write drives pin high or low.
func (r *RPIO) Write(pin int, high bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pins[pin]
	if !ok {
		return fmt.Errorf("pin %d is not an output", pin)
	}
	if high {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

// Close returns every pin to input and unmaps the GPIO block.
func (r *RPIO) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pins {
		p.Input()
	}
	return rpio.Close()
}
