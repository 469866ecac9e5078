package service

import (
	"context"
	"time"

	"github.com/smazurov/isocam/pkg/linuxav/hotplug"
)

// DefaultSettle is how long WatchDevices waits after the last device
// event before rescanning the bus.
const DefaultSettle = 500 * time.Millisecond

// WatchDevices opens new cameras as their video nodes appear. Events
// arriving within settle of each other cause a single rescan. Removed
// devices are left to their sessions, which see the disconnect on the next
// bus access. It returns when ctx ends or events is closed.
func (m *Manager) WatchDevices(ctx context.Context, events <-chan hotplug.Event, settle time.Duration) {
	if settle <= 0 {
		settle = DefaultSettle
	}
	timer := time.NewTimer(settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !ev.Camera() {
				continue
			}
			m.logger.Debug("Video device event", "action", ev.Action, "node", ev.Node())
			if ev.Action == hotplug.ActionAdd {
				timer.Reset(settle)
			}
		case <-timer.C:
			opened, err := m.OpenAll(ctx)
			if err != nil {
				m.logger.Warn("Rescan after device event left cameras closed", "error", err)
			}
			if opened > 0 {
				m.logger.Info("Opened hotplugged cameras", "count", opened)
			}
		}
	}
}
