package camera

import (
	"errors"
	"testing"
	"time"

	"github.com/smazurov/isocam/pkg/camera/hwconfig"
	"github.com/smazurov/isocam/pkg/iidc"
	"github.com/smazurov/isocam/pkg/iidc/sim"
)

func TestFrameSizeReconnects(t *testing.T) {
	s, cam := newScalable(t)
	setups := cam.Snapshot().Counters.Setups

	if err := s.SetFrameSize(320, 240); err != nil {
		t.Fatalf("SetFrameSize() error: %v", err)
	}
	snap := cam.Snapshot()
	if snap.Counters.Setups != setups+1 || s.Reconnects() != 1 {
		t.Errorf("setups = %d, reconnects = %d; want one reconnect", snap.Counters.Setups-setups, s.Reconnects())
	}
	if snap.Width != 320 || snap.Height != 240 {
		t.Errorf("device size = %dx%d, want 320x240", snap.Width, snap.Height)
	}
	if roi, _ := s.ROI(); roi != (ROI{Width: 320, Height: 240}) {
		t.Errorf("ROI() = %+v", roi)
	}

	if err := s.SetGain(0.9); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFrameSize(322, 241); err != nil {
		t.Fatal(err)
	}
	if got := cam.Snapshot().Counters.Setups; got != setups+1 {
		t.Errorf("gain or a size that quantizes to the same frame reconnected")
	}
}

func TestFrameRateReconnectsOnNewPacketSize(t *testing.T) {
	s, cam := newScalable(t)
	setups := cam.Snapshot().Counters.Setups
	if p := cam.Snapshot().PacketSize; p != 576 {
		t.Fatalf("packet size at 640x480 mono8 15 fps = %d, want 576", p)
	}

	if err := s.SetFrameRate(15.01); err != nil {
		t.Fatal(err)
	}
	if got := cam.Snapshot().Counters.Setups; got != setups {
		t.Errorf("a rate with the same packet size reconnected")
	}

	if err := s.SetFrameRate(30); err != nil {
		t.Fatal(err)
	}
	snap := cam.Snapshot()
	if snap.Counters.Setups != setups+1 {
		t.Errorf("a rate with a new packet size did not reconnect")
	}
	if snap.PacketSize != 1152 {
		t.Errorf("packet size = %d, want 1152", snap.PacketSize)
	}
	rate, _ := s.FrameRate()
	if !near(rate, snap.Framerate, 1e-9) || !near(rate, 30, 0.1) {
		t.Errorf("FrameRate() = %v, device %v, want about 30", rate, snap.Framerate)
	}
}

func TestCodingChange(t *testing.T) {
	s, cam := newScalable(t)
	setups := cam.Snapshot().Counters.Setups

	if err := s.SetCoding(Raw8); err != nil {
		t.Fatalf("SetCoding(raw8) error: %v", err)
	}
	snap := cam.Snapshot()
	if snap.Coding != iidc.CodingRaw8 || snap.Counters.Setups != setups {
		t.Errorf("same-depth coding: device %s, setups +%d; want raw8 in place", snap.Coding, snap.Counters.Setups-setups)
	}

	if err := s.SetCoding(Mono16); err != nil {
		t.Fatalf("SetCoding(mono16) error: %v", err)
	}
	snap = cam.Snapshot()
	if snap.Coding != iidc.CodingMono16 || snap.Counters.Setups != setups+1 {
		t.Errorf("new depth: device %s, setups +%d; want mono16 after a reconnect", snap.Coding, snap.Counters.Setups-setups)
	}
	if n, _ := s.FrameBytes(); n != 640*480*2 {
		t.Errorf("FrameBytes() = %d, want %d", n, 640*480*2)
	}

	if err := s.SetCoding(RGB16); !errors.Is(err, ErrUnsupported) {
		t.Errorf("SetCoding(rgb16) error = %v, want ErrUnsupported", err)
	}
	if c, _ := s.Coding(); c != Mono16 {
		t.Errorf("Coding() = %s after a rejected change, want mono16", c)
	}
}

func TestFrameOffsetInPlace(t *testing.T) {
	s, cam := newScalable(t)
	setups := cam.Snapshot().Counters.Setups

	if err := s.SetFrameOffset(101, 51); err != nil {
		t.Fatalf("SetFrameOffset() error: %v", err)
	}
	snap := cam.Snapshot()
	if snap.Left != 100 || snap.Top != 50 {
		t.Errorf("device offset = %d,%d, want 100,50", snap.Left, snap.Top)
	}
	if snap.Counters.Setups != setups {
		t.Error("SetFrameOffset() reconnected")
	}
	if err := s.SetFrameOffset(1000, 1000); err != nil {
		t.Fatal(err)
	}
	if roi, _ := s.ROI(); roi.Left != 384 || roi.Top != 288 {
		t.Errorf("offset past the sensor = %d,%d, want 384,288", roi.Left, roi.Top)
	}
	if err := s.SetFrameOffset(-1, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("negative offset error = %v, want ErrInvalidArgument", err)
	}
}

func TestSetROI(t *testing.T) {
	s, cam := newScalable(t)
	want := ROI{Left: 10, Top: 20, Width: 320, Height: 240}
	if err := s.SetROI(want); err != nil {
		t.Fatalf("SetROI() error: %v", err)
	}
	if roi, _ := s.ROI(); roi != want {
		t.Errorf("ROI() = %+v, want %+v", roi, want)
	}
	snap := cam.Snapshot()
	if snap.Left != 10 || snap.Top != 20 || snap.Width != 320 || snap.Height != 240 {
		t.Errorf("device ROI = %dx%d+%d+%d", snap.Width, snap.Height, snap.Left, snap.Top)
	}
}

func TestMinPixels(t *testing.T) {
	cfg := hwconfig.Default()
	cfg.MinPixels = 100000
	s, _ := newSession(t, cfg, DefaultSettings())

	if err := s.SetFrameSize(100, 100); err != nil {
		t.Fatal(err)
	}
	roi, _ := s.ROI()
	if roi.Width*roi.Height < cfg.MinPixels {
		t.Errorf("ROI %dx%d is below %d pixels", roi.Width, roi.Height, cfg.MinPixels)
	}
	if roi.Width != 132 || roi.Height != 768 {
		t.Errorf("ROI = %dx%d, want 132x768", roi.Width, roi.Height)
	}
}

func TestBuffers(t *testing.T) {
	s, cam := newScalable(t)
	if err := s.SetBuffers(8); err != nil {
		t.Fatal(err)
	}
	if snap := cam.Snapshot(); snap.Buffers != 8 {
		t.Errorf("device buffers = %d, want 8", snap.Buffers)
	}
	if err := s.SetBuffers(1); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Buffers(); n != MinBuffers {
		t.Errorf("Buffers() = %d, want %d", n, MinBuffers)
	}
	if err := s.SetBuffers(0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SetBuffers(0) error = %v, want ErrInvalidArgument", err)
	}
}

func TestReconnectWhileRunning(t *testing.T) {
	var slept []time.Duration
	cam := sim.New(sim.WithManualFrames())
	s, err := Create(cam,
		WithLogger(quietLogger()),
		withSleep(func(d time.Duration) { slept = append(slept, d) }))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Destroy()

	if err := s.SetRunning(true); err != nil {
		t.Fatal(err)
	}
	rate, _ := s.FrameRate()
	if err := s.SetBuffers(6); err != nil {
		t.Fatalf("SetBuffers() error: %v", err)
	}

	want := time.Duration(1.5 * float64(time.Second) / rate)
	if len(slept) != 1 || slept[0] != want {
		t.Errorf("drain sleeps = %v, want [%v]", slept, want)
	}
	if running, _ := s.Running(); !running {
		t.Error("Running() = false after reconnect, want true")
	}
	if !cam.Snapshot().Transmitting {
		t.Error("transmission not restarted after reconnect")
	}
	if n, _ := s.FrameNumber(); n != 0 {
		t.Errorf("FrameNumber() = %d after reconnect, want 0", n)
	}
}

func TestReconnectReleasesLockedFrame(t *testing.T) {
	s, cam := newScalable(t)
	if err := s.SetRunning(true); err != nil {
		t.Fatal(err)
	}
	cam.Emit(1)
	if _, err := s.PointNextFrame(); err != nil {
		t.Fatal(err)
	}
	if err := s.SetBuffers(3); err != nil {
		t.Fatal(err)
	}
	if s.Locked() {
		t.Error("frame still locked after reconnect")
	}
	if snap := cam.Snapshot(); snap.Outstanding != 0 {
		t.Errorf("device has %d outstanding buffers", snap.Outstanding)
	}
}

func TestReconnectFailureDisconnects(t *testing.T) {
	var hookErr error
	cam := sim.New(sim.WithManualFrames())
	s, err := Create(cam,
		WithLogger(quietLogger()),
		WithHooks(Hooks{OnReconnect: func(_ string, err error) { hookErr = err }}),
		withSleep(func(time.Duration) {}))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetGain(0.5); err != nil {
		t.Fatal(err)
	}

	fault := errors.New("bus reset")
	cam.FailNext("SetupCapture", fault)
	if err := s.SetFrameSize(320, 240); !errors.Is(err, fault) {
		t.Fatalf("SetFrameSize() error = %v, want the setup fault", err)
	}
	if !errors.Is(hookErr, fault) {
		t.Errorf("OnReconnect error = %v, want the setup fault", hookErr)
	}
	if s.LifecycleState() != StateDisconnected {
		t.Fatalf("LifecycleState() = %s, want disconnected", s.LifecycleState())
	}

	if err := s.SetGain(0.1); !errors.Is(err, ErrDisconnected) {
		t.Errorf("SetGain() error = %v, want ErrDisconnected", err)
	}
	if _, err := s.PointNextFramePoll(); !errors.Is(err, ErrDisconnected) {
		t.Errorf("PointNextFramePoll() error = %v, want ErrDisconnected", err)
	}
	if g, err := s.Gain(); err != nil || !near(g, 0.5, 1.0/680) {
		t.Errorf("Gain() = %v, %v; want the shadow value", g, err)
	}
	if err := s.Destroy(); err != nil {
		t.Errorf("Destroy() error: %v", err)
	}
}

func TestSetStateReconnects(t *testing.T) {
	s, cam := newScalable(t)
	setups := cam.Snapshot().Counters.Setups

	st, _ := s.State()
	st.ROI.Width = 320
	st.Gain = 0.5
	if err := s.SetState(st); err != nil {
		t.Fatalf("SetState() error: %v", err)
	}
	if got := cam.Snapshot().Counters.Setups; got != setups+1 {
		t.Errorf("setups +%d, want one reconnect", got-setups)
	}
	got, _ := s.State()
	if got.ROI.Width != 320 || !near(got.Gain, 0.5, 1.0/680) {
		t.Errorf("State() width=%d gain=%v", got.ROI.Width, got.Gain)
	}
}
