// Package trigger drives an external trigger line so a camera running
// with its external trigger enabled takes one frame per pulse.
package trigger

import (
	"fmt"
	"log/slog"
	"sync"
)

// Driver is a GPIO output line source.
type Driver interface {
	Output(pin int) error
	Write(pin int, high bool) error
	Close() error
}

// NewDriver returns the driver for name: "rpio" memory-maps the Raspberry
// Pi GPIO block, "mock" records writes.
func NewDriver(name string) (Driver, error) {
	switch name {
	case "rpio":
		return NewRPIO()
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown trigger driver %q", name)
	}
}

// Mock records pin writes. It is used off the Pi and in tests.
type Mock struct {
	mu      sync.Mutex
	outputs map[int]bool
	levels  map[int]bool
	writes  []Write
	closed  bool
	logger  *slog.Logger
}

// Write is one recorded pin write.
type Write struct {
	Pin  int
	High bool
}

// NewMock returns a mock driver.
func NewMock() *Mock {
	return &Mock{
		outputs: make(map[int]bool),
		levels:  make(map[int]bool),
		logger:  slog.Default().With("component", "trigger", "driver", "mock"),
	}
}

// Output marks pin as an output.
func (m *Mock) Output(pin int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs[pin] = true
	return nil
}

// Write sets pin. Writing to a pin that is not an output fails.
func (m *Mock) Write(pin int, high bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock gpio closed")
	}
	if !m.outputs[pin] {
		return fmt.Errorf("pin %d is not an output", pin)
	}
	m.levels[pin] = high
	m.writes = append(m.writes, Write{Pin: pin, High: high})
	m.logger.Debug("Pin write", "pin", pin, "high", high)
	return nil
}

// Close releases the driver.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Writes returns the recorded writes in order.
func (m *Mock) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Write(nil), m.writes...)
}

// Level returns the current level of pin.
func (m *Mock) Level(pin int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin]
}
