// Package systemd reports the daemon's lifecycle to the service manager
// over the sd_notify protocol. Outside a notify-type unit every call is a
// no-op.
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends state updates to systemd.
type Notifier struct {
	logger *slog.Logger
}

// NewNotifier returns a notifier logging failures to logger.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger}
}

func (n *Notifier) notify(state string) bool {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.logger.Warn("Failed to notify systemd", "state", state, "error", err)
		return false
	}
	return sent
}

// Ready reports startup complete with a status line.
func (n *Notifier) Ready(cameras int) bool {
	return n.notify(fmt.Sprintf("%s\nSTATUS=Serving %d cameras", daemon.SdNotifyReady, cameras))
}

// Status updates the free-form status line.
func (n *Notifier) Status(format string, args ...any) bool {
	return n.notify("STATUS=" + fmt.Sprintf(format, args...))
}

// Stopping reports that shutdown has begun.
func (n *Notifier) Stopping() bool {
	return n.notify(daemon.SdNotifyStopping)
}

// Watchdog pings the service manager at half the configured watchdog
// interval until ctx ends. It returns at once when the unit has no
// watchdog. alive is checked before each ping; a false result skips it so
// a wedged daemon gets restarted.
func (n *Notifier) Watchdog(ctx context.Context, alive func() bool) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.logger.Warn("Invalid systemd watchdog settings", "error", err)
		return
	}
	if interval == 0 {
		return
	}
	n.logger.Info("Systemd watchdog enabled", "interval", interval)

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if alive != nil && !alive() {
				n.logger.Warn("Skipping watchdog ping, daemon unhealthy")
				continue
			}
			n.notify(daemon.SdNotifyWatchdog)
		}
	}
}
