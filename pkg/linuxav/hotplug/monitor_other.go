//go:build !linux

package hotplug

import "context"

// Monitor is unavailable off Linux.
type Monitor struct{}

// NewMonitor returns ErrUnsupported.
func NewMonitor(...string) (*Monitor, error) {
	return nil, ErrUnsupported
}

// Run closes out and returns ErrUnsupported.
func (m *Monitor) Run(_ context.Context, out chan<- Event) error {
	close(out)
	return ErrUnsupported
}

// Close does nothing.
func (m *Monitor) Close() error {
	return nil
}
