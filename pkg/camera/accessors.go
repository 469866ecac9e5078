package camera

import (
	"fmt"
	"math"

	"github.com/smazurov/isocam/pkg/iidc"
)

// Getters answer from the shadow in shadow mode and read the device
// otherwise. A missing feature is not an error: the last known value is
// returned. Setters store what the device accepted, which may differ from
// the request after clamping and register quantization.

// Buffers returns the capture ring size.
func (s *Session) Buffers() (int, error) {
	if err := s.alive(); err != nil {
		return 0, err
	}
	return s.shadow.Buffers, nil
}

// SetBuffers resizes the capture ring. This reconnects.
func (s *Session) SetBuffers(n int) error {
	if err := s.ready(); err != nil {
		return err
	}
	if n < 1 {
		return fmt.Errorf("%w: %d buffers", ErrInvalidArgument, n)
	}
	return s.reconfigure(func(t *Settings) { t.Buffers = max(n, MinBuffers) })
}

// Gain returns the gain in [0,1].
func (s *Session) Gain() (float64, error) {
	if err := s.alive(); err != nil {
		return 0, err
	}
	err := s.readScalar(iidc.FeatureGain, &s.shadow.Gain, 0, 1)
	return s.shadow.Gain, err
}

// SetGain sets the gain, clamped to [0,1].
func (s *Session) SetGain(g float64) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.setGain(g)
}

// Brightness returns the black level in [-1,1].
func (s *Session) Brightness() (float64, error) {
	if err := s.alive(); err != nil {
		return 0, err
	}
	err := s.readScalar(iidc.FeatureBrightness, &s.shadow.Brightness, -1, 1)
	return s.shadow.Brightness, err
}

// SetBrightness sets the black level, clamped to [-1,1].
func (s *Session) SetBrightness(b float64) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.setBrightness(b)
}

// WhiteBalance returns the U/B and V/R balance in [0,1].
func (s *Session) WhiteBalance() ([2]float64, error) {
	if err := s.alive(); err != nil {
		return [2]float64{}, err
	}
	err := s.readWhiteBalance()
	return s.shadow.WhiteBalance, err
}

// SetWhiteBalance sets the U/B and V/R balance.
func (s *Session) SetWhiteBalance(wb [2]float64) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.setWhiteBalance(wb)
}

// Shutter returns the exposure time in seconds.
func (s *Session) Shutter() (float64, error) {
	if err := s.alive(); err != nil {
		return 0, err
	}
	err := s.readShutter()
	return s.shadow.Shutter, err
}

// SetShutter sets the exposure time in seconds. The applied time is a
// whole number of exposure quanta within the device's range.
func (s *Session) SetShutter(sec float64) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.setShutter(sec)
}

// ExternalTrigger reports whether exposures wait for the trigger input.
func (s *Session) ExternalTrigger() (bool, error) {
	if err := s.alive(); err != nil {
		return false, err
	}
	err := s.readTrigger()
	return s.shadow.ExternalTrigger, err
}

// SetExternalTrigger switches the trigger input on or off.
func (s *Session) SetExternalTrigger(on bool) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.setExternalTrigger(on)
}

// TriggerPolarity reports whether the trigger input is active high.
func (s *Session) TriggerPolarity() (bool, error) {
	if err := s.alive(); err != nil {
		return false, err
	}
	err := s.readTrigger()
	return s.shadow.TriggerPolarity, err
}

// SetTriggerPolarity selects the active edge of the trigger input.
func (s *Session) SetTriggerPolarity(activeHigh bool) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.setTriggerPolarity(activeHigh)
}

// Gamma reports whether the gamma lookup table is on.
func (s *Session) Gamma() (bool, error) {
	if err := s.alive(); err != nil {
		return false, err
	}
	err := s.readAdvanced()
	return s.shadow.Gamma, err
}

// SetGamma switches the gamma lookup table.
func (s *Session) SetGamma(on bool) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.setGamma(on)
}

// ColorCorrection reports whether the colour matrix is applied.
func (s *Session) ColorCorrection() (bool, error) {
	if err := s.alive(); err != nil {
		return false, err
	}
	err := s.readAdvanced()
	return s.shadow.ColorCorrection, err
}

// SetColorCorrection switches the colour matrix.
func (s *Session) SetColorCorrection(on bool) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.setColorCorrection(on)
}

// ColorCoefficients returns the row-major 3x3 colour matrix.
func (s *Session) ColorCoefficients() ([9]float64, error) {
	if err := s.alive(); err != nil {
		return [9]float64{}, err
	}
	err := s.readAdvanced()
	return s.shadow.ColorCoefficients, err
}

// SetColorCoefficients loads the colour matrix. Entries are clamped to
// [-1,2] and rows summing beyond ±2 are scaled down.
func (s *Session) SetColorCoefficients(c [9]float64) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.setColorCoefficients(c)
}

// ROI returns the region of interest.
func (s *Session) ROI() (ROI, error) {
	if err := s.alive(); err != nil {
		return ROI{}, err
	}
	return s.shadow.ROI, nil
}

// SetFrameOffset moves the region of interest. Only the scalable regime
// has an offset; it is quantized and kept inside the sensor.
func (s *Session) SetFrameOffset(left, top int) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.setFrameOffset(left, top)
}

// SetFrameSize resizes the region of interest. In the scalable regime
// this reconnects; in the fixed regime the mode dictates the size.
func (s *Session) SetFrameSize(width, height int) error {
	if err := s.ready(); err != nil {
		return err
	}
	if width < 0 || height < 0 {
		return fmt.Errorf("%w: frame size %dx%d", ErrInvalidArgument, width, height)
	}
	if s.regime != RegimeScalable {
		if width == s.shadow.ROI.Width && height == s.shadow.ROI.Height {
			return nil
		}
		return fmt.Errorf("%w: mode %s is fixed at %dx%d", ErrUnsupported, s.mode, s.shadow.ROI.Width, s.shadow.ROI.Height)
	}
	return s.reconfigure(func(t *Settings) {
		t.ROI.Width, t.ROI.Height = width, height
	})
}

// SetROI sets size and offset together.
func (s *Session) SetROI(roi ROI) error {
	if err := s.SetFrameSize(roi.Width, roi.Height); err != nil {
		return err
	}
	return s.SetFrameOffset(roi.Left, roi.Top)
}

// Coding returns the pixel coding.
func (s *Session) Coding() (PixelCoding, error) {
	if err := s.alive(); err != nil {
		return 0, err
	}
	return s.shadow.Coding, nil
}

// SetCoding changes the pixel coding. A change of bit depth reconnects.
func (s *Session) SetCoding(c PixelCoding) error {
	if err := s.ready(); err != nil {
		return err
	}
	if c.BitsPerPixel() == 0 {
		return fmt.Errorf("%w: pixel coding %d", ErrInvalidArgument, int(c))
	}
	if s.regime != RegimeScalable {
		if c == s.shadow.Coding {
			return nil
		}
		return fmt.Errorf("%w: mode %s is fixed at %s", ErrUnsupported, s.mode, s.shadow.Coding)
	}
	if !s.scalable.SupportsCoding(c.driver()) {
		return fmt.Errorf("%w: coding %s in mode %s", ErrUnsupported, c, s.mode)
	}
	return s.reconfigure(func(t *Settings) { t.Coding = c })
}

// Tiling returns the sensor's Bayer pattern. It is only known in the
// scalable regime.
func (s *Session) Tiling() (PixelTiling, error) {
	if err := s.alive(); err != nil {
		return 0, err
	}
	return s.shadow.Tiling, nil
}

// FrameRate returns the achieved frame rate.
func (s *Session) FrameRate() (float64, error) {
	if err := s.alive(); err != nil {
		return 0, err
	}
	err := s.readFrameRate()
	return s.shadow.FrameRate, err
}

// SetFrameRate requests a frame rate. The fixed regime picks the nearest
// rate in the mode's table; the scalable regime reconnects if the packet
// size changes.
func (s *Session) SetFrameRate(fps float64) error {
	if err := s.ready(); err != nil {
		return err
	}
	if math.IsNaN(fps) || math.IsInf(fps, 0) || fps <= 0 {
		return fmt.Errorf("%w: frame rate %v", ErrInvalidArgument, fps)
	}
	if s.regime != RegimeScalable {
		return s.setFixedFrameRate(fps)
	}
	return s.reconfigure(func(t *Settings) { t.FrameRate = fps })
}

// reconfigure applies a change to a reconnect-class field, reconnecting
// only when the result differs from the connected state.
func (s *Session) reconfigure(mutate func(*Settings)) error {
	if err := s.refreshRun(); err != nil {
		return err
	}
	target := s.shadow
	mutate(&target)
	if s.needsReconnect(target) {
		return s.reconnect(target)
	}
	return s.applyInPlace(target, false)
}
