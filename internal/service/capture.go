package service

import (
	"context"
	"time"

	"github.com/smazurov/isocam/internal/events"
	"github.com/smazurov/isocam/pkg/camera"
)

// CaptureOptions controls Capture.
type CaptureOptions struct {
	// Shot switches the camera to single-shot and triggers one frame.
	Shot bool
	// Fresh discards frames already queued so the result was exposed
	// after the call started.
	Fresh bool
	// Pulse fires the external trigger line before waiting, when the
	// camera runs with its external trigger enabled.
	Pulse bool
}

// Frame is a copied-out image.
type Frame struct {
	CameraID    string
	Data        []byte
	Width       int
	Height      int
	Coding      camera.PixelCoding
	Number      uint64
	Lag         int
	DMATime     time.Time
	TriggerTime time.Time
}

// Capture waits for the next frame of a camera and returns a copy. The
// wait is bounded by ctx; the camera stays locked for the duration.
func (m *Manager) Capture(ctx context.Context, id string, opts CaptureOptions) (*Frame, error) {
	var out *Frame
	err := m.with(id, func(c *Camera) error {
		s := c.session
		if opts.Fresh {
			settings, err := s.State()
			if err != nil {
				return classify(id, "capture from", err)
			}
			if _, err := s.FlushBuffers(settings.Buffers); err != nil {
				return classify(id, "flush", err)
			}
		}
		if opts.Shot {
			if err := m.shoot(s); err != nil {
				return classify(id, "trigger", err)
			}
		}
		if opts.Pulse && m.trigger != nil {
			if ext, err := s.ExternalTrigger(); err == nil && ext {
				if err := m.trigger.Pulse(ctx); err != nil {
					return classify(id, "pulse trigger of", err)
				}
			}
		}

		f, err := m.waitFrame(ctx, s)
		if err != nil {
			return classify(id, "capture from", err)
		}
		out = &Frame{
			CameraID: id,
			Data:     append([]byte(nil), f.Data...),
			Width:    f.Width,
			Height:   f.Height,
			Coding:   f.Coding,
			Number:   f.Number,
			Lag:      f.Lag,
			DMATime:  f.Timestamp,
		}
		out.TriggerTime, err = s.Timestamp()
		if err != nil {
			s.ReleaseFrame()
			return classify(id, "timestamp", err)
		}
		return classify(id, "release frame of", s.ReleaseFrame())
	})
	if err != nil {
		return nil, err
	}
	m.events.Publish(events.FrameAcquiredEvent{
		CameraID:  id,
		Number:    out.Number,
		Lag:       out.Lag,
		Timestamp: out.TriggerTime.UTC().Format(time.RFC3339Nano),
	})
	return out, nil
}

// shoot arms single-shot and starts the camera if it is stopped. A
// running camera is moved to single-shot directly, which triggers.
func (m *Manager) shoot(s *camera.Session) error {
	if err := s.SetSingleShot(true); err != nil {
		return err
	}
	running, err := s.Running()
	if err != nil {
		return err
	}
	if running {
		return nil
	}
	return s.SetRunning(true)
}

// waitFrame polls for a ready frame until ctx ends.
func (m *Manager) waitFrame(ctx context.Context, s *camera.Session) (*camera.Frame, error) {
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()
	for {
		f, err := s.PointNextFramePoll()
		if err != nil {
			return nil, err
		}
		if f != nil {
			return f, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
