package camera

import "fmt"

// RunState combines the running and single-shot flags.
type RunState int

// Run states. RunningOneShot is transient: the device clears its one-shot
// register by itself once the frame is sent.
const (
	Stopped RunState = iota
	RunningContinuous
	RunningOneShot
)

func (r RunState) String() string {
	switch r {
	case Stopped:
		return "stopped"
	case RunningContinuous:
		return "running"
	case RunningOneShot:
		return "one-shot"
	default:
		return fmt.Sprintf("runstate(%d)", int(r))
	}
}

// RunState returns the run state after polling for one-shot completion.
func (s *Session) RunState() (RunState, error) {
	if err := s.alive(); err != nil {
		return Stopped, err
	}
	err := s.refreshRun()
	return s.runState(), err
}

func (s *Session) runState() RunState {
	switch {
	case !s.shadow.Running:
		return Stopped
	case s.shadow.SingleShot:
		return RunningOneShot
	default:
		return RunningContinuous
	}
}

// Running reports whether the camera is sending frames.
func (s *Session) Running() (bool, error) {
	if err := s.alive(); err != nil {
		return false, err
	}
	err := s.refreshRun()
	return s.shadow.Running, err
}

// SetRunning starts or stops the camera. Starting in single-shot mode
// triggers one frame.
func (s *Session) SetRunning(run bool) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.refreshRun(); err != nil {
		return err
	}
	return s.setRunning(run)
}

// SingleShot reports whether starting the camera sends one frame only.
func (s *Session) SingleShot() (bool, error) {
	if err := s.alive(); err != nil {
		return false, err
	}
	err := s.refreshRun()
	return s.shadow.SingleShot, err
}

// SetSingleShot selects one-shot or continuous operation.
//
// Switching to one-shot while running continuous moves straight to
// triggering without a reconnect. Switching back while a shot is believed
// pending re-polls first: a shot that already completed just flips the
// flag, one that is still pending is cancelled and continuous transmission
// started. The shot can still complete between the poll and the cancel;
// the hardware offers no way to close that window.
func (s *Session) SetSingleShot(on bool) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.refreshRun(); err != nil {
		return err
	}
	return s.setSingleShot(on)
}

// refreshRun corrects the run flags from the device. A believed one-shot
// is always polled, since the device ends it on its own.
func (s *Session) refreshRun() error {
	if s.state != StateConnected {
		return nil
	}
	if s.shadow.Running && s.shadow.SingleShot {
		pending, err := s.cam.OneShot()
		if err != nil {
			return fmt.Errorf("poll one-shot: %w", err)
		}
		if !pending {
			s.shadow.Running = false
		}
		return nil
	}
	if s.shadow.Shadow || s.shadow.SingleShot {
		return nil
	}
	on, err := s.cam.Transmission()
	if err != nil {
		return fmt.Errorf("read transmission: %w", err)
	}
	s.shadow.Running = on
	return nil
}

func (s *Session) setRunning(run bool) error {
	if !run {
		return s.stop()
	}
	if s.shadow.Running {
		return nil
	}
	if s.shadow.SingleShot {
		if !s.caps.SingleShot {
			return fmt.Errorf("%w: one-shot", ErrFeatureUnavailable)
		}
		if err := s.cam.SetOneShot(true); err != nil {
			return fmt.Errorf("trigger one-shot: %w", err)
		}
	} else if err := s.cam.SetTransmission(true); err != nil {
		return fmt.Errorf("start transmission: %w", err)
	}
	s.shadow.Running = true
	return nil
}

// stop ends continuous transmission and cancels a pending one-shot. Both
// are idempotent on the device.
func (s *Session) stop() error {
	if err := s.cam.SetTransmission(false); err != nil {
		return fmt.Errorf("stop transmission: %w", err)
	}
	if s.caps.SingleShot {
		if err := s.cam.SetOneShot(false); err != nil {
			return fmt.Errorf("cancel one-shot: %w", err)
		}
	}
	s.shadow.Running = false
	return nil
}

func (s *Session) setSingleShot(on bool) error {
	if on == s.shadow.SingleShot {
		return nil
	}
	if on && !s.caps.SingleShot {
		// A running camera keeps streaming, so the flag would lie.
		if !s.shadow.Running {
			s.shadow.SingleShot = true
		}
		return fmt.Errorf("%w: one-shot", ErrFeatureUnavailable)
	}
	if !s.shadow.Running {
		s.shadow.SingleShot = on
		return nil
	}

	if on {
		if err := s.cam.SetTransmission(false); err != nil {
			return fmt.Errorf("stop transmission: %w", err)
		}
		if err := s.cam.SetOneShot(true); err != nil {
			s.shadow.Running = false
			return fmt.Errorf("trigger one-shot: %w", err)
		}
	} else {
		if err := s.cam.SetOneShot(false); err != nil {
			return fmt.Errorf("cancel one-shot: %w", err)
		}
		if err := s.cam.SetTransmission(true); err != nil {
			s.shadow.Running = false
			return fmt.Errorf("start transmission: %w", err)
		}
	}
	s.shadow.SingleShot = on
	return nil
}
