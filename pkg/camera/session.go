// Package camera implements a vendor-neutral camera session on top of an
// iidc.Camera: a shadow copy of all settings, the connect and reconnect
// protocol, run and single-shot control, frame buffer ownership and
// trigger time estimation.
//
// A Session is not safe for concurrent use. Each camera gets its own
// session; sessions share nothing.
package camera

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/isocam/pkg/camera/hwconfig"
	"github.com/smazurov/isocam/pkg/camera/vendor"
	"github.com/smazurov/isocam/pkg/iidc"
)

// State is the lifecycle state of a session.
type State int

// Session states.
const (
	StateUninitialized State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Regime is the image-size regime chosen by the configured video mode.
type Regime int

// Image-size regimes.
const (
	RegimeFixed Regime = iota
	RegimeScalable
)

func (r Regime) String() string {
	if r == RegimeScalable {
		return "scalable"
	}
	return "fixed"
}

// Hooks are optional callbacks for lifecycle observers. They run
// synchronously on the caller's goroutine.
type Hooks struct {
	OnStateChange func(id string, from, to State)
	OnReconnect   func(id string, err error)
	OnFrame       func(id string, number uint64, lag int)
}

// Session is one opened camera.
type Session struct {
	id     string
	cam    iidc.Camera
	family vendor.Family
	source hwconfig.Source
	config *hwconfig.Config

	caps     Capabilities
	shadow   Settings
	state    State
	regime   Regime
	mode     iidc.VideoMode
	scalable iidc.ScalableInfo
	packet   int

	locked     *iidc.Frame
	frames     uint64
	dmaTime    time.Time
	reconnects int
	destroyed  bool

	logger *slog.Logger
	hooks  Hooks
	sleep  func(time.Duration)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithConfigSource sets where the hardware configuration comes from.
// Without it the session uses hwconfig.Default().
func WithConfigSource(src hwconfig.Source) Option {
	return func(s *Session) { s.source = src }
}

// WithVendorFamily overrides the vendor family picked from the camera identity.
func WithVendorFamily(f vendor.Family) Option {
	return func(s *Session) { s.family = f }
}

// WithHooks installs lifecycle callbacks.
func WithHooks(h Hooks) Option {
	return func(s *Session) { s.hooks = h }
}

// WithID sets the session ID. A random UUID is used otherwise.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

func withSleep(sleep func(time.Duration)) Option {
	return func(s *Session) { s.sleep = sleep }
}

// Create opens a session with DefaultSettings.
func Create(cam iidc.Camera, opts ...Option) (*Session, error) {
	return CreateWithSettings(cam, DefaultSettings(), opts...)
}

// CreateWithSettings takes ownership of cam, connects it and applies
// settings. On failure cam is closed.
func CreateWithSettings(cam iidc.Camera, settings Settings, opts ...Option) (*Session, error) {
	if cam == nil {
		return nil, fmt.Errorf("%w: nil camera", ErrInvalidArgument)
	}
	target, err := normalize(settings)
	if err != nil {
		cam.Close()
		return nil, err
	}

	s := &Session{
		cam:   cam,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "camera", "session", s.id, "camera", cam.Identity().String())
	if s.family == nil {
		s.family = vendor.Lookup(cam.Identity())
	}
	if s.source == nil {
		s.source = hwconfig.Static(hwconfig.Default())
	}
	s.shadow = target

	if err := s.connect(target); err != nil {
		s.logger.Error("Camera connect failed", "error", err)
		s.teardown()
		return nil, fmt.Errorf("connect camera %s: %w", cam.Identity(), err)
	}
	s.logger.Info("Camera connected",
		"vendor", cam.Identity().Vendor,
		"model", cam.Identity().Model,
		"regime", s.regime.String(),
		"mode", s.mode.String())
	return s, nil
}

// ID returns the session ID.
func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Identity returns the camera identity.
func (s *Session) Identity() (iidc.Identity, error) {
	if err := s.alive(); err != nil {
		return iidc.Identity{}, err
	}
	return s.cam.Identity(), nil
}

// LifecycleState returns the session state.
func (s *Session) LifecycleState() State {
	if s == nil {
		return StateUninitialized
	}
	return s.state
}

// Regime returns the image-size regime of the connected mode.
func (s *Session) Regime() Regime {
	if s == nil {
		return RegimeFixed
	}
	return s.regime
}

// Reconnects returns how many reconnects succeeded.
func (s *Session) Reconnects() int {
	if s == nil {
		return 0
	}
	return s.reconnects
}

// Config returns the hardware configuration, resolving it on first use.
func (s *Session) Config() (hwconfig.Config, error) {
	if err := s.alive(); err != nil {
		return hwconfig.Config{}, err
	}
	return s.hardwareConfig()
}

func (s *Session) hardwareConfig() (hwconfig.Config, error) {
	if s.config != nil {
		return *s.config, nil
	}
	cfg, err := s.source.Resolve(s.cam.Identity())
	if err != nil {
		return hwconfig.Config{}, fmt.Errorf("resolve hardware configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return hwconfig.Config{}, err
	}
	if cfg.Source == "" {
		s.logger.Warn("Running with default hardware configuration")
	}
	s.config = &cfg
	return cfg, nil
}

// ShadowMode reports whether getters answer from the cached settings.
func (s *Session) ShadowMode() (bool, error) {
	if err := s.alive(); err != nil {
		return false, err
	}
	return s.shadow.Shadow, nil
}

// SetShadowMode switches between cached and live getters.
func (s *Session) SetShadowMode(on bool) error {
	if err := s.alive(); err != nil {
		return err
	}
	s.shadow.Shadow = on
	return nil
}

// State returns all settings. With shadow mode off every field backed
// by a register is read from the device first.
func (s *Session) State() (Settings, error) {
	if err := s.alive(); err != nil {
		return Settings{}, err
	}
	if s.state != StateConnected {
		return s.shadow, nil
	}
	if err := s.refreshRun(); err != nil {
		return s.shadow, err
	}
	if s.shadow.Shadow {
		return s.shadow, nil
	}
	if err := s.refresh(); err != nil {
		return s.shadow, err
	}
	return s.shadow, nil
}

// SetState applies a complete settings struct, reconnecting only when a
// field that needs it differs from the connected values. Fields the mode
// dictates (size and coding in the fixed regime, Tiling) keep their actual
// values. Unavailable features are stored as requested and reported
// together after everything else was applied.
func (s *Session) SetState(target Settings) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.refreshRun(); err != nil {
		return err
	}
	target, err := normalize(target)
	if err != nil {
		return err
	}
	if s.regime == RegimeFixed {
		target.ROI = s.shadow.ROI
		target.Coding = s.shadow.Coding
	}
	target.Tiling = s.shadow.Tiling

	if s.needsReconnect(target) {
		return s.reconnect(target)
	}
	return s.applyInPlace(target, false)
}

// Destroy stops the camera, drains and releases its buffers and closes
// the driver handle. It is safe on a nil or destroyed session.
func (s *Session) Destroy() error {
	if s == nil || s.destroyed {
		return nil
	}
	var errs []error
	if s.state == StateConnected {
		if err := s.stop(); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, s.teardown())
	s.setState(StateDisconnected)
	s.logger.Info("Camera session destroyed", "frames", s.frames)
	return errors.Join(errs...)
}

// teardown releases every driver resource and marks the session destroyed.
func (s *Session) teardown() error {
	var errs []error
	if err := s.disconnect(); err != nil {
		errs = append(errs, err)
	}
	if err := s.cam.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close camera: %w", err))
	}
	s.destroyed = true
	return errors.Join(errs...)
}

func (s *Session) setState(to State) {
	from := s.state
	s.state = to
	if from != to && s.hooks.OnStateChange != nil {
		s.hooks.OnStateChange(s.id, from, to)
	}
}

// alive checks that the session exists.
func (s *Session) alive() error {
	if s == nil || s.destroyed {
		return ErrNilSession
	}
	return nil
}

// ready checks that the session can talk to the hardware.
func (s *Session) ready() error {
	if err := s.alive(); err != nil {
		return err
	}
	if s.state != StateConnected {
		return ErrDisconnected
	}
	return nil
}

// live reports whether a getter should read the device.
func (s *Session) live() bool {
	return !s.shadow.Shadow && s.state == StateConnected
}
