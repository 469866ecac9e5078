package camera

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/isocam/pkg/camera/hwconfig"
	"github.com/smazurov/isocam/pkg/iidc"
	"github.com/smazurov/isocam/pkg/iidc/sim"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedConfig() hwconfig.Config {
	cfg := hwconfig.Default()
	cfg.Format, cfg.Mode = 0, 5
	return cfg
}

// newSession connects a manual-frame simulated camera with cfg.
func newSession(t *testing.T, cfg hwconfig.Config, settings Settings, camOpts ...sim.Option) (*Session, *sim.Camera) {
	t.Helper()
	cam := sim.New(append([]sim.Option{sim.WithManualFrames()}, camOpts...)...)
	s, err := CreateWithSettings(cam, settings,
		WithConfigSource(hwconfig.Static(cfg)),
		WithLogger(quietLogger()),
		withSleep(func(time.Duration) {}))
	if err != nil {
		t.Fatalf("CreateWithSettings() error: %v", err)
	}
	t.Cleanup(func() { s.Destroy() })
	return s, cam
}

func newScalable(t *testing.T, camOpts ...sim.Option) (*Session, *sim.Camera) {
	t.Helper()
	return newSession(t, hwconfig.Default(), DefaultSettings(), camOpts...)
}

func newFixed(t *testing.T, camOpts ...sim.Option) (*Session, *sim.Camera) {
	t.Helper()
	return newSession(t, fixedConfig(), DefaultSettings(), camOpts...)
}

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestCreateMatchesSettings(t *testing.T) {
	want := DefaultSettings()
	want.Gain = 0.5
	want.Brightness = 0.2
	want.WhiteBalance = [2]float64{0.3, 0.7}
	want.ROI = ROI{Left: 64, Top: 32, Width: 320, Height: 240}
	want.Coding = Mono16
	want.Shutter = 0.01
	want.ExternalTrigger = true
	want.TriggerPolarity = true
	want.Buffers = 6

	s, cam := newSession(t, hwconfig.Default(), want)
	got, err := s.State()
	if err != nil {
		t.Fatalf("State() error: %v", err)
	}

	if got.Buffers != want.Buffers || got.ROI != want.ROI || got.Coding != want.Coding {
		t.Errorf("geometry = %d buffers %+v %s, want %d buffers %+v %s",
			got.Buffers, got.ROI, got.Coding, want.Buffers, want.ROI, want.Coding)
	}
	if !near(got.Gain, want.Gain, 1.0/680) {
		t.Errorf("Gain = %v, want %v", got.Gain, want.Gain)
	}
	if !near(got.Brightness, want.Brightness, 2.0/255) {
		t.Errorf("Brightness = %v, want %v", got.Brightness, want.Brightness)
	}
	for i := range want.WhiteBalance {
		if !near(got.WhiteBalance[i], want.WhiteBalance[i], 1.0/1023) {
			t.Errorf("WhiteBalance[%d] = %v, want %v", i, got.WhiteBalance[i], want.WhiteBalance[i])
		}
	}
	if !near(got.Shutter, want.Shutter, 20e-6) {
		t.Errorf("Shutter = %v, want %v", got.Shutter, want.Shutter)
	}
	if !near(got.FrameRate, want.FrameRate, want.FrameRate*0.01) {
		t.Errorf("FrameRate = %v, want about %v", got.FrameRate, want.FrameRate)
	}
	if !got.ExternalTrigger || !got.TriggerPolarity {
		t.Errorf("trigger = %t/%t, want true/true", got.ExternalTrigger, got.TriggerPolarity)
	}
	if got.Tiling != TilingRGGB {
		t.Errorf("Tiling = %s, want rggb", got.Tiling)
	}

	snap := cam.Snapshot()
	if snap.Left != 64 || snap.Top != 32 || snap.Width != 320 || snap.Height != 240 {
		t.Errorf("device ROI = %dx%d+%d+%d", snap.Width, snap.Height, snap.Left, snap.Top)
	}
	if snap.Coding != iidc.CodingMono16 {
		t.Errorf("device coding = %s, want mono16", snap.Coding)
	}
	if snap.Buffers != 6 {
		t.Errorf("device buffers = %d, want 6", snap.Buffers)
	}
	if s.LifecycleState() != StateConnected {
		t.Errorf("LifecycleState() = %s, want connected", s.LifecycleState())
	}
}

func TestCreateErrors(t *testing.T) {
	if _, err := Create(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Create(nil) error = %v, want ErrInvalidArgument", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr error
	}{
		{name: "NaN gain", mutate: func(s *Settings) { s.Gain = math.NaN() }, wantErr: ErrInvalidArgument},
		{name: "zero frame rate", mutate: func(s *Settings) { s.FrameRate = 0 }, wantErr: ErrInvalidArgument},
		{name: "negative shutter", mutate: func(s *Settings) { s.Shutter = -1 }, wantErr: ErrInvalidArgument},
		{name: "coding the mode lacks", mutate: func(s *Settings) { s.Coding = RGB16 }, wantErr: ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := sim.New(sim.WithManualFrames())
			settings := DefaultSettings()
			tt.mutate(&settings)

			_, err := CreateWithSettings(cam, settings, WithLogger(quietLogger()))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CreateWithSettings() error = %v, want %v", err, tt.wantErr)
			}
			if _, err := cam.Capabilities(); !errors.Is(err, iidc.ErrClosed) {
				t.Error("camera should be closed after a failed create")
			}
		})
	}
}

func TestCreateClampsSettings(t *testing.T) {
	settings := DefaultSettings()
	settings.Gain = 4
	settings.Brightness = -3
	settings.Buffers = 0

	s, _ := newSession(t, hwconfig.Default(), settings)
	st, _ := s.State()
	if st.Gain != 1 || st.Brightness != -1 || st.Buffers != MinBuffers {
		t.Errorf("clamped state = gain %v brightness %v buffers %d", st.Gain, st.Brightness, st.Buffers)
	}
}

func TestDestroy(t *testing.T) {
	var nilSession *Session
	if err := nilSession.Destroy(); err != nil {
		t.Errorf("Destroy() on nil session error: %v", err)
	}

	cam := sim.New(sim.WithManualFrames())
	s, err := Create(cam, WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetRunning(true); err != nil {
		t.Fatal(err)
	}
	cam.Emit(2)
	if _, err := s.PointNextFrame(); err != nil {
		t.Fatal(err)
	}

	if err := s.Destroy(); err != nil {
		t.Fatalf("Destroy() error: %v", err)
	}
	if err := s.Destroy(); err != nil {
		t.Errorf("second Destroy() error: %v", err)
	}
	if _, err := s.Gain(); !errors.Is(err, ErrNilSession) {
		t.Errorf("Gain() after Destroy error = %v, want ErrNilSession", err)
	}
	if _, err := nilSession.Gain(); !errors.Is(err, ErrNilSession) {
		t.Errorf("Gain() on nil session error = %v, want ErrNilSession", err)
	}
	if _, err := cam.Capabilities(); !errors.Is(err, iidc.ErrClosed) {
		t.Error("camera should be closed after Destroy")
	}
}

func TestConfigDefault(t *testing.T) {
	cam := sim.New(sim.WithManualFrames())
	s, err := Create(cam, WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Destroy()

	cfg, err := s.Config()
	if err != nil {
		t.Fatalf("Config() error: %v", err)
	}
	if cfg != hwconfig.Default() {
		t.Errorf("Config() = %+v, want Default()", cfg)
	}
	if s.Regime() != RegimeScalable {
		t.Errorf("Regime() = %s, want scalable", s.Regime())
	}
}

func TestConfigResolvedOnce(t *testing.T) {
	calls := 0
	src := hwconfig.SourceFunc(func(iidc.Identity) (hwconfig.Config, error) {
		calls++
		return hwconfig.Default(), nil
	})
	cam := sim.New(sim.WithManualFrames())
	s, err := Create(cam, WithConfigSource(src), WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Destroy()

	if err := s.SetBuffers(5); err != nil {
		t.Fatal(err)
	}
	s.Config()
	if calls != 1 {
		t.Errorf("config resolved %d times, want 1", calls)
	}
}

func TestIDAndHooks(t *testing.T) {
	var transitions []string
	cam := sim.New(sim.WithManualFrames())
	s, err := Create(cam,
		WithID("cam-a"),
		WithLogger(quietLogger()),
		WithHooks(Hooks{OnStateChange: func(id string, from, to State) {
			transitions = append(transitions, id+":"+from.String()+">"+to.String())
		}}))
	if err != nil {
		t.Fatal(err)
	}
	if s.ID() != "cam-a" {
		t.Errorf("ID() = %q, want cam-a", s.ID())
	}
	s.Destroy()

	want := []string{"cam-a:uninitialized>connected", "cam-a:connected>disconnected"}
	if strings.Join(transitions, ",") != strings.Join(want, ",") {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
}

func TestDump(t *testing.T) {
	s, _ := newScalable(t)
	var buf bytes.Buffer
	if err := s.Dump(&buf); err != nil {
		t.Fatalf("Dump() error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"session", "scalable", "packet size", "built-in default", "run state", "stopped"} {
		if !strings.Contains(out, want) {
			t.Errorf("Dump() output missing %q:\n%s", want, out)
		}
	}
}

func TestFitROI(t *testing.T) {
	info := sim.DefaultScalable()
	tests := []struct {
		name      string
		roi       ROI
		minPixels int
		want      ROI
	}{
		{name: "aligned", roi: ROI{Left: 4, Top: 2, Width: 320, Height: 240}, want: ROI{Left: 4, Top: 2, Width: 320, Height: 240}},
		{name: "quantized down", roi: ROI{Left: 5, Top: 3, Width: 323, Height: 241}, want: ROI{Left: 4, Top: 2, Width: 320, Height: 240}},
		{name: "zero is full sensor", roi: ROI{}, want: ROI{Width: 1024, Height: 768}},
		{name: "clamped to sensor", roi: ROI{Width: 4000, Height: 4000}, want: ROI{Width: 1024, Height: 768}},
		{name: "offset pulled inside", roi: ROI{Left: 900, Top: 700, Width: 200, Height: 100}, want: ROI{Left: 824, Top: 668, Width: 200, Height: 100}},
		{name: "min pixels raises height", roi: ROI{Width: 100, Height: 2}, minPixels: 1000, want: ROI{Width: 100, Height: 10}},
		{name: "min pixels then width", roi: ROI{Width: 4, Height: 2}, minPixels: 1024 * 768, want: ROI{Width: 1024, Height: 768}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fitROI(tt.roi, info, tt.minPixels); got != tt.want {
				t.Errorf("fitROI(%+v) = %+v, want %+v", tt.roi, got, tt.want)
			}
		})
	}
}

func TestNearestRate(t *testing.T) {
	rates := []float64{1.875, 3.75, 7.5, 15, 30, 60}
	tests := []struct {
		want, got float64
	}{
		{want: 15, got: 15},
		{want: 20, got: 15},
		{want: 22, got: 30},
		{want: 1000, got: 60},
		{want: 0.1, got: 1.875},
	}
	for _, tt := range tests {
		got, ok := nearestRate(rates, tt.want)
		if !ok || got != tt.got {
			t.Errorf("nearestRate(%v) = %v, want %v", tt.want, got, tt.got)
		}
	}
	if _, ok := nearestRate(nil, 15); ok {
		t.Error("nearestRate on empty table should fail")
	}
}
