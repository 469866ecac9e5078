package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultWidth is the pulse width when none is configured.
const DefaultWidth = time.Millisecond

// Config selects and shapes the trigger line.
type Config struct {
	Driver     string        `toml:"driver"` // "rpio", "mock" or empty for none
	Pin        int           `toml:"pin"`    // BCM numbering
	Width      time.Duration `toml:"width"`
	ActiveHigh bool          `toml:"active_high"`
}

// Pulser fires trigger pulses.
type Pulser interface {
	Pulse(ctx context.Context) error
	Close() error
}

// Line is one trigger output. Pulses are serialized.
type Line struct {
	mu         sync.Mutex
	driver     Driver
	pin        int
	width      time.Duration
	activeHigh bool
	pulses     uint64
	logger     *slog.Logger
}

// Open creates the line described by cfg. An empty driver name means no
// trigger line and returns nil, nil.
func Open(cfg Config, logger *slog.Logger) (*Line, error) {
	if cfg.Driver == "" {
		return nil, nil
	}
	d, err := NewDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	l, err := NewLine(d, cfg, logger)
	if err != nil {
		d.Close()
		return nil, err
	}
	return l, nil
}

// NewLine configures pin on d as an output and parks it at the idle level.
func NewLine(d Driver, cfg Config, logger *slog.Logger) (*Line, error) {
	if cfg.Pin < 0 {
		return nil, fmt.Errorf("invalid trigger pin %d", cfg.Pin)
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Line{
		driver:     d,
		pin:        cfg.Pin,
		width:      cfg.Width,
		activeHigh: cfg.ActiveHigh,
		logger:     logger.With("pin", cfg.Pin),
	}
	if err := d.Output(cfg.Pin); err != nil {
		return nil, fmt.Errorf("configure trigger pin %d: %w", cfg.Pin, err)
	}
	if err := d.Write(cfg.Pin, !cfg.ActiveHigh); err != nil {
		return nil, fmt.Errorf("idle trigger pin %d: %w", cfg.Pin, err)
	}
	l.logger.Info("Trigger line ready", "width", cfg.Width, "active_high", cfg.ActiveHigh)
	return l, nil
}

// Pulse drives the line active for the configured width. The line always
// returns to idle, also when ctx ends mid-pulse.
func (l *Line) Pulse(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.driver.Write(l.pin, l.activeHigh); err != nil {
		return fmt.Errorf("assert trigger: %w", err)
	}

	timer := time.NewTimer(l.width)
	var waitErr error
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		waitErr = ctx.Err()
	}

	if err := l.driver.Write(l.pin, !l.activeHigh); err != nil {
		return fmt.Errorf("release trigger: %w", err)
	}
	l.pulses++
	l.logger.Debug("Trigger pulse", "count", l.pulses)
	return waitErr
}

// Pulses returns how many pulses were fired.
func (l *Line) Pulses() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pulses
}

// Close parks the line and releases the driver.
func (l *Line) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.driver.Write(l.pin, !l.activeHigh); err != nil {
		l.logger.Warn("Failed to idle trigger line", "error", err)
	}
	return l.driver.Close()
}
