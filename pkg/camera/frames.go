package camera

import (
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/isocam/pkg/iidc"
)

// Frame is a checked-out capture buffer. Data aliases driver memory and is
// valid until ReleaseFrame.
type Frame struct {
	Data      []byte // exactly Width*Height*bpp/8 bytes
	Width     int
	Height    int
	Coding    PixelCoding
	Number    uint64    // frame counter after this frame
	Timestamp time.Time // DMA completion
	Lag       int       // filled buffers still queued behind this one
}

// PointNextFrame blocks until a frame is ready and checks it out. There
// is no timeout; use PointNextFramePoll for bounded waits.
func (s *Session) PointNextFrame() (*Frame, error) {
	return s.acquire(iidc.DequeueWait)
}

// PointNextFramePoll checks out a ready frame, or returns nil, nil when
// none is ready.
func (s *Session) PointNextFramePoll() (*Frame, error) {
	return s.acquire(iidc.DequeuePoll)
}

func (s *Session) acquire(p iidc.DequeuePolicy) (*Frame, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if s.locked != nil {
		return nil, ErrSequence
	}

	f, err := s.cam.Dequeue(p)
	if err != nil {
		return nil, fmt.Errorf("dequeue frame: %w", err)
	}
	if f == nil {
		return nil, nil
	}
	if s.config != nil && s.config.DropFrames {
		if f, err = s.skipToNewest(f); err != nil {
			return nil, err
		}
	}

	s.locked = f
	s.frames++
	s.dmaTime = f.Timestamp
	if s.hooks.OnFrame != nil {
		s.hooks.OnFrame(s.id, s.frames, f.FramesBehind)
	}

	return &Frame{
		Data:      imageBytes(f),
		Width:     f.Width,
		Height:    f.Height,
		Coding:    codingFromDriver(f.Coding),
		Number:    s.frames,
		Timestamp: f.Timestamp,
		Lag:       f.FramesBehind,
	}, nil
}

// skipToNewest hands every older ready buffer back to the driver. Skipped
// frames still count.
func (s *Session) skipToNewest(f *iidc.Frame) (*iidc.Frame, error) {
	for f.FramesBehind > 0 {
		next, err := s.cam.Dequeue(iidc.DequeuePoll)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("dequeue newer frame: %w", err), s.requeue(f))
		}
		if next == nil {
			break
		}
		if err := s.cam.Enqueue(f); err != nil {
			return nil, errors.Join(fmt.Errorf("requeue dropped frame: %w", err), s.requeue(next))
		}
		s.frames++
		f = next
	}
	return f, nil
}

func (s *Session) requeue(f *iidc.Frame) error {
	if err := s.cam.Enqueue(f); err != nil {
		return fmt.Errorf("requeue frame: %w", err)
	}
	return nil
}

// imageBytes trims the padded DMA buffer to the image.
func imageBytes(f *iidc.Frame) []byte {
	n := f.Width * f.Height * f.Coding.BitsPerPixel() / 8
	if n <= 0 || n > len(f.Image) {
		return f.Image
	}
	return f.Image[:n]
}

// ReleaseFrame returns the checked-out frame to the driver. Releasing
// with nothing checked out is a no-op.
func (s *Session) ReleaseFrame() error {
	if err := s.alive(); err != nil {
		return err
	}
	if s.locked == nil {
		return nil
	}
	f := s.locked
	s.locked = nil
	if err := s.cam.Enqueue(f); err != nil {
		return fmt.Errorf("enqueue frame: %w", err)
	}
	return nil
}

// CopyNextFrame waits for the next frame, copies its image into dst and
// releases it. It returns the number of bytes copied.
func (s *Session) CopyNextFrame(dst []byte) (int, error) {
	f, err := s.PointNextFrame()
	if err != nil {
		return 0, err
	}
	if len(dst) < len(f.Data) {
		return 0, errors.Join(
			fmt.Errorf("%w: buffer holds %d bytes, frame needs %d", ErrInvalidArgument, len(dst), len(f.Data)),
			s.ReleaseFrame())
	}
	n := copy(dst, f.Data)
	return n, s.ReleaseFrame()
}

// FrameBytes returns the size of one image at the current settings.
func (s *Session) FrameBytes() (int, error) {
	if err := s.alive(); err != nil {
		return 0, err
	}
	return s.shadow.ROI.Width * s.shadow.ROI.Height * s.shadow.Coding.BitsPerPixel() / 8, nil
}

// FlushBuffers discards up to n ready frames without blocking and returns
// how many were discarded. Discarded frames count toward FrameNumber.
func (s *Session) FlushBuffers(n int) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if s.locked != nil {
		return 0, ErrSequence
	}
	flushed := 0
	for flushed < n {
		f, err := s.cam.Dequeue(iidc.DequeuePoll)
		if err != nil {
			return flushed, fmt.Errorf("dequeue frame: %w", err)
		}
		if f == nil {
			break
		}
		if err := s.cam.Enqueue(f); err != nil {
			return flushed, fmt.Errorf("enqueue frame: %w", err)
		}
		s.frames++
		s.dmaTime = f.Timestamp
		flushed++
	}
	return flushed, nil
}

// FrameNumber returns the number of frames taken off the bus since the
// last connect.
func (s *Session) FrameNumber() (uint64, error) {
	if err := s.alive(); err != nil {
		return 0, err
	}
	return s.frames, nil
}

// Locked reports whether a frame is checked out.
func (s *Session) Locked() bool {
	return s != nil && s.locked != nil
}
