package camera

import (
	"errors"
	"testing"

	"github.com/smazurov/isocam/pkg/camera/hwconfig"
	"github.com/smazurov/isocam/pkg/iidc/sim"
)

func runState(t *testing.T, s *Session) RunState {
	t.Helper()
	rs, err := s.RunState()
	if err != nil {
		t.Fatalf("RunState() error: %v", err)
	}
	return rs
}

func TestSingleShotCompletes(t *testing.T) {
	s, cam := newScalable(t)

	if err := s.SetSingleShot(true); err != nil {
		t.Fatal(err)
	}
	if cam.Snapshot().OneShot {
		t.Fatal("selecting single-shot while stopped triggered a frame")
	}
	if err := s.SetRunning(true); err != nil {
		t.Fatal(err)
	}
	if got := runState(t, s); got != RunningOneShot {
		t.Fatalf("RunState() = %s, want one-shot", got)
	}
	if snap := cam.Snapshot(); !snap.OneShot || snap.Transmitting {
		t.Errorf("device one-shot=%t transmitting=%t, want a pending shot only", snap.OneShot, snap.Transmitting)
	}

	if n := cam.Emit(1); n != 1 {
		t.Fatalf("Emit() = %d, want 1", n)
	}
	running, _ := s.Running()
	single, _ := s.SingleShot()
	if running || !single {
		t.Errorf("after the shot running=%t single=%t, want false/true", running, single)
	}
	f, err := s.PointNextFramePoll()
	if err != nil || f == nil {
		t.Fatalf("PointNextFramePoll() = %v, %v; want the shot", f, err)
	}
	s.ReleaseFrame()

	if err := s.SetRunning(true); err != nil {
		t.Fatal(err)
	}
	if !cam.Snapshot().OneShot {
		t.Error("second SetRunning(true) did not trigger another shot")
	}
}

func TestContinuous(t *testing.T) {
	s, cam := newScalable(t)
	if err := s.SetRunning(true); err != nil {
		t.Fatal(err)
	}
	if !cam.Snapshot().Transmitting || runState(t, s) != RunningContinuous {
		t.Fatal("SetRunning(true) did not start transmission")
	}
	if err := s.SetRunning(true); err != nil {
		t.Errorf("repeated SetRunning(true) error: %v", err)
	}
	if err := s.SetRunning(false); err != nil {
		t.Fatal(err)
	}
	if cam.Snapshot().Transmitting || runState(t, s) != Stopped {
		t.Error("SetRunning(false) did not stop transmission")
	}
}

func TestSingleShotWhileRunning(t *testing.T) {
	s, cam := newScalable(t)
	if err := s.SetRunning(true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSingleShot(true); err != nil {
		t.Fatalf("SetSingleShot(true) error: %v", err)
	}
	snap := cam.Snapshot()
	if snap.Transmitting || !snap.OneShot {
		t.Errorf("device transmitting=%t one-shot=%t, want a pending shot", snap.Transmitting, snap.OneShot)
	}
	if got := runState(t, s); got != RunningOneShot {
		t.Errorf("RunState() = %s, want one-shot", got)
	}
	if snap.Counters.Setups != 1 {
		t.Error("switching to single-shot reconnected")
	}
}

func TestLeaveSingleShotPending(t *testing.T) {
	s, cam := newScalable(t)
	s.SetRunning(true)
	s.SetSingleShot(true)

	if err := s.SetSingleShot(false); err != nil {
		t.Fatalf("SetSingleShot(false) error: %v", err)
	}
	snap := cam.Snapshot()
	if snap.OneShot || !snap.Transmitting {
		t.Errorf("device one-shot=%t transmitting=%t, want continuous", snap.OneShot, snap.Transmitting)
	}
	if got := runState(t, s); got != RunningContinuous {
		t.Errorf("RunState() = %s, want running", got)
	}
}

func TestLeaveSingleShotCompleted(t *testing.T) {
	s, cam := newScalable(t)
	s.SetRunning(true)
	s.SetSingleShot(true)
	cam.Emit(1)

	if err := s.SetSingleShot(false); err != nil {
		t.Fatalf("SetSingleShot(false) error: %v", err)
	}
	if cam.Snapshot().Transmitting {
		t.Error("leaving a completed one-shot started transmission")
	}
	if got := runState(t, s); got != Stopped {
		t.Errorf("RunState() = %s, want stopped", got)
	}
}

func TestStopCancelsOneShot(t *testing.T) {
	s, cam := newScalable(t)
	s.SetSingleShot(true)
	s.SetRunning(true)

	if err := s.SetRunning(false); err != nil {
		t.Fatal(err)
	}
	if cam.Snapshot().OneShot {
		t.Error("SetRunning(false) left the one-shot pending")
	}
	if single, _ := s.SingleShot(); !single {
		t.Error("SetRunning(false) cleared the single-shot flag")
	}
}

func TestSingleShotNotCapable(t *testing.T) {
	s, cam := newScalable(t, sim.WithOneShot(false))
	if caps, _ := s.Capabilities(); caps.SingleShot {
		t.Fatal("Capabilities().SingleShot = true")
	}

	if err := s.SetSingleShot(true); !errors.Is(err, ErrFeatureUnavailable) {
		t.Errorf("SetSingleShot(true) error = %v, want ErrFeatureUnavailable", err)
	}
	if single, _ := s.SingleShot(); !single {
		t.Error("requested single-shot flag should be stored while stopped")
	}
	if err := s.SetRunning(true); !errors.Is(err, ErrFeatureUnavailable) {
		t.Errorf("SetRunning(true) error = %v, want ErrFeatureUnavailable", err)
	}
	if running, _ := s.Running(); running {
		t.Error("Running() = true without a one-shot register")
	}

	if err := s.SetSingleShot(false); err != nil {
		t.Fatal(err)
	}
	if err := s.SetRunning(true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSingleShot(true); !errors.Is(err, ErrFeatureUnavailable) {
		t.Errorf("SetSingleShot(true) while running error = %v, want ErrFeatureUnavailable", err)
	}
	if single, _ := s.SingleShot(); single {
		t.Error("single-shot stored while the camera keeps streaming")
	}
	if !cam.Snapshot().Transmitting {
		t.Error("failed switch stopped transmission")
	}
}

func TestSetStateTriggersShot(t *testing.T) {
	s, cam := newScalable(t)
	st, _ := s.State()
	st.SingleShot = true
	st.Running = true
	if err := s.SetState(st); err != nil {
		t.Fatal(err)
	}
	snap := cam.Snapshot()
	if !snap.OneShot || snap.Transmitting {
		t.Errorf("device one-shot=%t transmitting=%t, want one shot", snap.OneShot, snap.Transmitting)
	}
}

func TestSetStateRearmsCompletedShot(t *testing.T) {
	settings := DefaultSettings()
	settings.SingleShot = true
	settings.Running = true
	s, cam := newSession(t, hwconfig.Default(), settings)
	if !cam.Snapshot().OneShot {
		t.Fatal("create did not trigger the first shot")
	}

	cam.Emit(1)
	f, err := s.PointNextFramePoll()
	if err != nil || f == nil {
		t.Fatalf("PointNextFramePoll() = %v, %v; want the shot", f, err)
	}
	s.ReleaseFrame()

	if err := s.SetState(settings); err != nil {
		t.Fatal(err)
	}
	if snap := cam.Snapshot(); !snap.OneShot || snap.Transmitting {
		t.Errorf("device one-shot=%t transmitting=%t, want a new pending shot", snap.OneShot, snap.Transmitting)
	}
	if got := runState(t, s); got != RunningOneShot {
		t.Errorf("RunState() = %s, want one-shot", got)
	}
}
