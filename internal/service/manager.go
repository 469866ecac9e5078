// Package service owns the open camera sessions of the daemon and
// serializes access to each of them.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/isocam/internal/events"
	"github.com/smazurov/isocam/internal/logging"
	"github.com/smazurov/isocam/internal/metrics"
	"github.com/smazurov/isocam/internal/profiles"
	"github.com/smazurov/isocam/internal/trigger"
	"github.com/smazurov/isocam/pkg/camera"
	"github.com/smazurov/isocam/pkg/camera/hwconfig"
	"github.com/smazurov/isocam/pkg/iidc"
)

// DefaultPollInterval is how often Capture polls for a ready frame.
const DefaultPollInterval = 2 * time.Millisecond

// Options configures a Manager. Only Bus is required.
type Options struct {
	Bus      iidc.Bus
	Configs  hwconfig.Source
	Profiles *profiles.Store
	Events   *events.Bus
	Trigger  trigger.Pulser
	Logger   *slog.Logger

	// SessionLogger is handed to every camera session. It defaults to the
	// "camera" module logger.
	SessionLogger *slog.Logger
	PollInterval  time.Duration
}

// Manager is the set of cameras the daemon has open.
type Manager struct {
	bus      iidc.Bus
	configs  hwconfig.Source
	profiles *profiles.Store
	events   *events.Bus
	trigger  trigger.Pulser
	poll     time.Duration

	logger        *slog.Logger
	sessionLogger *slog.Logger

	mu      sync.RWMutex
	cameras map[string]*Camera
}

// Camera is one open session. Every use of the session holds mu.
type Camera struct {
	mu       sync.Mutex
	id       string
	identity iidc.Identity
	session  *camera.Session
	opened   time.Time
}

// Info summarizes an open camera.
type Info struct {
	ID         string                 `json:"id"`
	SessionID  string                 `json:"session_id"`
	Vendor     string                 `json:"vendor"`
	Model      string                 `json:"model"`
	State      string                 `json:"state"`
	Regime     string                 `json:"regime"`
	RunState   string                 `json:"run_state"`
	Frames     uint64                 `json:"frames"`
	Reconnects int                    `json:"reconnects"`
	Opened     time.Time              `json:"opened"`
	Metrics    *metrics.CameraMetrics `json:"metrics,omitempty"`
}

// NewManager creates a manager. No camera is opened until OpenAll or Open.
func NewManager(opts Options) *Manager {
	m := &Manager{
		bus:           opts.Bus,
		configs:       opts.Configs,
		profiles:      opts.Profiles,
		events:        opts.Events,
		trigger:       opts.Trigger,
		poll:          opts.PollInterval,
		logger:        opts.Logger,
		sessionLogger: opts.SessionLogger,
		cameras:       make(map[string]*Camera),
	}
	if m.logger == nil {
		m.logger = logging.GetLogger("service")
	}
	if m.sessionLogger == nil {
		m.sessionLogger = logging.GetLogger("camera")
	}
	if m.poll <= 0 {
		m.poll = DefaultPollInterval
	}
	return m
}

// OpenAll opens every camera on the bus that is not open yet. A camera
// that fails to open is logged and skipped; the failures are returned
// joined.
func (m *Manager) OpenAll(ctx context.Context) (int, error) {
	ids, err := m.bus.Cameras()
	if err != nil {
		return 0, NewCameraError(ErrCodeDeviceError, "enumerate cameras", err)
	}
	m.logger.Info("Cameras found on bus", "count", len(ids))

	opened := 0
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return opened, err
		}
		if m.lookup(id.String()) != nil {
			continue
		}
		if _, err := m.Open(id.GUID); err != nil {
			m.logger.Warn("Failed to open camera", "camera", id.String(), "model", id.Model, "error", err)
			errs = append(errs, err)
			continue
		}
		opened++
	}
	return opened, errors.Join(errs...)
}

// Open opens one camera and applies its saved profile, or the default
// settings when it has none. A profile the camera rejects is logged and
// the camera is opened with defaults instead.
func (m *Manager) Open(guid uint64) (Info, error) {
	id := fmt.Sprintf("%016x", guid)
	if m.lookup(id) != nil {
		return Info{}, NewCameraError(ErrCodeCameraExists, fmt.Sprintf("camera %s is already open", id), nil)
	}

	settings, source := camera.DefaultSettings(), "default"
	if m.profiles != nil {
		if p, ok := m.profiles.Get(id); ok {
			settings, source = p, "profile"
		}
	}

	session, err := m.create(guid, id, settings)
	if err != nil && source == "profile" {
		m.logger.Warn("Camera rejected its profile, opening with defaults", "camera", id, "error", err)
		settings, source = camera.DefaultSettings(), "default"
		session, err = m.create(guid, id, settings)
	}
	if err != nil {
		metrics.RecordConnectFailure(id)
		return Info{}, err
	}

	c := &Camera{id: id, session: session, opened: time.Now()}
	c.identity, _ = session.Identity()

	m.mu.Lock()
	if _, exists := m.cameras[id]; exists {
		m.mu.Unlock()
		session.Destroy()
		return Info{}, NewCameraError(ErrCodeCameraExists, fmt.Sprintf("camera %s is already open", id), nil)
	}
	m.cameras[id] = c
	m.mu.Unlock()

	c.mu.Lock()
	info := c.info()
	state, _ := session.State()
	c.mu.Unlock()

	metrics.SetConnected(id, true)
	metrics.SetFrameRate(id, state.FrameRate)
	m.events.Publish(events.CameraOpenedEvent{
		CameraID:  id,
		SessionID: session.ID(),
		Vendor:    c.identity.Vendor,
		Model:     c.identity.Model,
		Regime:    session.Regime().String(),
		Timestamp: now(),
	})
	m.logger.Info("Camera opened", "camera", id, "vendor", c.identity.Vendor, "model", c.identity.Model, "settings", source)
	return info, nil
}

func (m *Manager) create(guid uint64, id string, settings camera.Settings) (*camera.Session, error) {
	cam, err := m.bus.Open(guid)
	if err != nil {
		return nil, classify(id, "open", err)
	}
	opts := []camera.Option{
		camera.WithLogger(m.sessionLogger),
		camera.WithHooks(m.hooks(id)),
	}
	if m.configs != nil {
		opts = append(opts, camera.WithConfigSource(m.configs))
	}
	session, err := camera.CreateWithSettings(cam, settings, opts...)
	if err != nil {
		return nil, classify(id, "connect", err)
	}
	return session, nil
}

// hooks reports session activity under the camera GUID rather than the
// session ID, so metrics survive a reopen.
func (m *Manager) hooks(id string) camera.Hooks {
	return camera.Hooks{
		OnStateChange: func(_ string, from, to camera.State) {
			metrics.SetConnected(id, to == camera.StateConnected)
			m.events.Publish(events.CameraStateChangedEvent{
				CameraID:  id,
				From:      from.String(),
				To:        to.String(),
				Timestamp: now(),
			})
		},
		OnReconnect: func(_ string, err error) {
			metrics.RecordReconnect(id, err)
			ev := events.CameraReconnectedEvent{CameraID: id, Success: err == nil, Timestamp: now()}
			if err != nil {
				ev.Error = err.Error()
			}
			if cm := metrics.Get(id); cm != nil {
				ev.Reconnects = cm.Reconnects
			}
			m.events.Publish(ev)
		},
		OnFrame: func(_ string, _ uint64, lag int) {
			metrics.RecordFrame(id, lag)
		},
	}
}

// Close destroys one camera's session.
func (m *Manager) Close(id, reason string) error {
	m.mu.Lock()
	c, ok := m.cameras[id]
	delete(m.cameras, id)
	m.mu.Unlock()
	if !ok {
		return notFound(id)
	}

	c.mu.Lock()
	err := c.session.Destroy()
	c.mu.Unlock()

	metrics.DeleteCamera(id)
	m.events.Publish(events.CameraClosedEvent{CameraID: id, Reason: reason, Timestamp: now()})
	m.logger.Info("Camera closed", "camera", id, "reason", reason)
	if err != nil {
		return classify(id, "close", err)
	}
	return nil
}

// CloseAll destroys every session.
func (m *Manager) CloseAll(reason string) error {
	var errs []error
	for _, id := range m.IDs() {
		if err := m.Close(id, reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IDs lists open cameras, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.cameras))
}

// List describes every open camera.
func (m *Manager) List() []Info {
	ids := m.IDs()
	out := make([]Info, 0, len(ids))
	for _, id := range ids {
		if info, err := m.Info(id); err == nil {
			out = append(out, info)
		}
	}
	return out
}

// Info describes one camera.
func (m *Manager) Info(id string) (Info, error) {
	var info Info
	err := m.with(id, func(c *Camera) error {
		info = c.info()
		return nil
	})
	return info, err
}

func (c *Camera) info() Info {
	s := c.session
	run, _ := s.RunState()
	frames, _ := s.FrameNumber()
	return Info{
		ID:         c.id,
		SessionID:  s.ID(),
		Vendor:     c.identity.Vendor,
		Model:      c.identity.Model,
		State:      s.LifecycleState().String(),
		Regime:     s.Regime().String(),
		RunState:   run.String(),
		Frames:     frames,
		Reconnects: s.Reconnects(),
		Opened:     c.opened,
		Metrics:    metrics.Get(c.id),
	}
}

// State returns a camera's settings.
func (m *Manager) State(id string) (camera.Settings, error) {
	var out camera.Settings
	err := m.with(id, func(c *Camera) error {
		s, err := c.session.State()
		out = s
		return classify(id, "read state of", err)
	})
	return out, err
}

// ApplyOptions controls SetState.
type ApplyOptions struct {
	Source string // reported in the settings-applied event
	Save   bool   // store the applied settings as the camera's profile
}

// Applied is the outcome of SetState.
type Applied struct {
	Settings camera.Settings
	Warnings []string
}

// SetState applies a complete settings struct. Features the camera lacks
// do not fail the call; they come back as warnings.
func (m *Manager) SetState(id string, settings camera.Settings, opts ApplyOptions) (Applied, error) {
	var out Applied
	err := m.with(id, func(c *Camera) error {
		warnings, err := splitUnavailable(c.session.SetState(settings))
		for _, w := range warnings {
			m.logger.Warn("Setting not applied", "camera", id, "reason", w)
		}
		out.Warnings = warnings
		if err != nil {
			return classify(id, "configure", err)
		}
		out.Settings, err = c.session.State()
		return classify(id, "read state of", err)
	})
	if err != nil {
		return out, err
	}

	metrics.SetFrameRate(id, out.Settings.FrameRate)
	if opts.Source == "" {
		opts.Source = "api"
	}
	m.events.Publish(events.SettingsAppliedEvent{
		CameraID:  id,
		Source:    opts.Source,
		Warnings:  out.Warnings,
		Timestamp: now(),
	})
	if opts.Save {
		if err := m.saveProfile(id, out.Settings); err != nil {
			return out, err
		}
	}
	return out, nil
}

// SaveProfile stores a camera's current settings as its profile.
func (m *Manager) SaveProfile(id string) error {
	settings, err := m.State(id)
	if err != nil {
		return err
	}
	return m.saveProfile(id, settings)
}

func (m *Manager) saveProfile(id string, settings camera.Settings) error {
	if m.profiles == nil {
		return NewCameraError(ErrCodeProfileError, "no profile store configured", nil)
	}
	if err := m.profiles.Put(id, settings); err != nil {
		return NewCameraError(ErrCodeProfileError, fmt.Sprintf("save profile of camera %s", id), err)
	}
	m.logger.Info("Profile saved", "camera", id, "path", m.profiles.Path())
	return nil
}

// DeleteProfile forgets a camera's saved profile. The camera need not be open.
func (m *Manager) DeleteProfile(id string) error {
	if m.profiles == nil {
		return NewCameraError(ErrCodeProfileError, "no profile store configured", nil)
	}
	if _, ok := m.profiles.Get(id); !ok {
		return NewCameraError(ErrCodeCameraNotFound, fmt.Sprintf("no profile for camera %s", id), nil)
	}
	if err := m.profiles.Delete(id); err != nil {
		return NewCameraError(ErrCodeProfileError, fmt.Sprintf("delete profile of camera %s", id), err)
	}
	m.logger.Info("Profile deleted", "camera", id)
	return nil
}

// Config returns the hardware configuration and probed capabilities.
func (m *Manager) Config(id string) (hwconfig.Config, camera.Capabilities, error) {
	var cfg hwconfig.Config
	var caps camera.Capabilities
	err := m.with(id, func(c *Camera) error {
		var err error
		if cfg, err = c.session.Config(); err != nil {
			return classify(id, "read configuration of", err)
		}
		caps, err = c.session.Capabilities()
		return classify(id, "read capabilities of", err)
	})
	return cfg, caps, err
}

// SetRun starts or stops a camera and selects single-shot operation. A
// stop is issued before the mode flip so no stray shot fires.
func (m *Manager) SetRun(id string, running, singleShot bool) (camera.RunState, error) {
	var rs camera.RunState
	err := m.with(id, func(c *Camera) error {
		s := c.session
		steps := []func() error{
			func() error { return s.SetSingleShot(singleShot) },
			func() error { return s.SetRunning(running) },
		}
		if !running {
			steps[0], steps[1] = steps[1], steps[0]
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return classify(id, "run", err)
			}
		}
		var err error
		rs, err = s.RunState()
		return classify(id, "read run state of", err)
	})
	if err != nil {
		return rs, err
	}
	m.events.Publish(events.RunStateChangedEvent{CameraID: id, RunState: rs.String(), Timestamp: now()})
	m.logger.Info("Run state changed", "camera", id, "run_state", rs.String())
	return rs, nil
}

// Dump returns the session debug report.
func (m *Manager) Dump(id string) (string, error) {
	var sb strings.Builder
	err := m.with(id, func(c *Camera) error {
		return classify(id, "dump", c.session.Dump(&sb))
	})
	return sb.String(), err
}

// with runs fn holding the camera's lock.
func (m *Manager) with(id string, fn func(*Camera) error) error {
	c := m.lookup(id)
	if c == nil {
		return notFound(id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c)
}

func (m *Manager) lookup(id string) *Camera {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cameras[id]
}

func notFound(id string) error {
	return NewCameraError(ErrCodeCameraNotFound, fmt.Sprintf("camera %s not found", id), nil)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
