package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/smazurov/isocam/internal/config"
	"github.com/smazurov/isocam/internal/events"
	"github.com/smazurov/isocam/internal/profiles"
)

// ApplyProfiles installs a freshly read profile file and re-applies the
// profile of every open camera that has one. It returns the cameras that
// were updated.
func (m *Manager) ApplyProfiles(f profiles.File) []string {
	if m.profiles == nil {
		return nil
	}
	m.profiles.Replace(f)

	var applied []string
	for _, id := range m.IDs() {
		settings, ok := m.profiles.Get(id)
		if !ok {
			continue
		}
		if _, err := m.SetState(id, settings, ApplyOptions{Source: "reload"}); err != nil {
			m.logger.Warn("Failed to re-apply profile", "camera", id, "error", err)
			continue
		}
		applied = append(applied, id)
	}

	m.events.Publish(events.ProfilesReloadedEvent{
		Path:      m.profiles.Path(),
		Cameras:   applied,
		Timestamp: now(),
	})
	m.logger.Info("Profiles reloaded", "path", m.profiles.Path(), "applied", len(applied))
	return applied
}

// WatchProfiles re-applies profiles whenever the profile file changes on
// disk. The returned watcher must be stopped by the caller.
func (m *Manager) WatchProfiles(ctx context.Context, debounce time.Duration) (*config.Watcher[profiles.File], error) {
	if m.profiles == nil {
		return nil, NewCameraError(ErrCodeProfileError, "no profile store configured", nil)
	}
	logger := m.logger.With(slog.String("watch", "profiles"))
	w := config.NewWatcher(m.profiles.Path(), profiles.Read, logger,
		config.WithDebounce[profiles.File](debounce),
		config.WithErrorHandler[profiles.File](func(err error) {
			logger.Error("Profile file rejected, keeping current settings", "error", err)
		}),
	)
	w.OnReload(func(f profiles.File) { m.ApplyProfiles(f) })
	if err := w.Start(ctx); err != nil {
		return nil, NewCameraError(ErrCodeProfileError, "watch profiles", err)
	}
	return w, nil
}
