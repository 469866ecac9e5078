package camera

import (
	"errors"
	"fmt"
	"math"

	"github.com/smazurov/isocam/pkg/camera/vendor"
	"github.com/smazurov/isocam/pkg/iidc"
)

// toRegister maps v in [lo,hi] onto the feature's register range.
func toRegister(v, lo, hi float64, fi iidc.FeatureInfo) uint32 {
	frac := (v - lo) / (hi - lo)
	span := float64(fi.Max) - float64(fi.Min)
	reg := math.Round(float64(fi.Min) + frac*span)
	return uint32(clamp(reg, float64(fi.Min), float64(fi.Max)))
}

// fromRegister maps a register value back onto [lo,hi].
func fromRegister(reg uint32, lo, hi float64, fi iidc.FeatureInfo) float64 {
	if fi.Max <= fi.Min {
		return lo
	}
	frac := (float64(reg) - float64(fi.Min)) / (float64(fi.Max) - float64(fi.Min))
	return lo + frac*(hi-lo)
}

func invalidFloat(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s is %v", ErrInvalidArgument, name, v)
	}
	return nil
}

func unavailable(f fmt.Stringer) error {
	return fmt.Errorf("%w: %s", ErrFeatureUnavailable, f)
}

// usableFeature returns the feature info, or ErrFeatureUnavailable when
// the feature cannot be written.
func (s *Session) usableFeature(f iidc.Feature) (iidc.FeatureInfo, error) {
	fi, err := s.cam.Feature(f)
	if err != nil {
		return fi, fmt.Errorf("query %s: %w", f, err)
	}
	if !fi.Usable() {
		return fi, unavailable(f)
	}
	return fi, nil
}

// manual switches a feature on and into manual mode.
func (s *Session) manual(fi iidc.FeatureInfo) error {
	if fi.OnOffCapable && !fi.On {
		if err := s.cam.SetFeaturePower(fi.Feature, true); err != nil {
			return fmt.Errorf("switch %s on: %w", fi.Feature, err)
		}
	}
	if fi.ManualCapable && fi.Mode != iidc.FeatureModeManual {
		if err := s.cam.SetFeatureMode(fi.Feature, iidc.FeatureModeManual); err != nil {
			return fmt.Errorf("switch %s to manual: %w", fi.Feature, err)
		}
	}
	return nil
}

// writeFeature writes reg and returns the value the device holds afterwards.
func (s *Session) writeFeature(fi iidc.FeatureInfo, reg uint32) (uint32, error) {
	if err := s.manual(fi); err != nil {
		return 0, err
	}
	if err := s.cam.SetFeatureValue(fi.Feature, reg); err != nil {
		return 0, fmt.Errorf("set %s to %d: %w", fi.Feature, reg, err)
	}
	if !fi.Readable {
		return reg, nil
	}
	after, err := s.cam.Feature(fi.Feature)
	if err != nil {
		return 0, fmt.Errorf("read back %s: %w", fi.Feature, err)
	}
	return after.Value, nil
}

// setScalar runs the setter protocol for a feature normalized onto [lo,hi].
func (s *Session) setScalar(f iidc.Feature, dst *float64, v, lo, hi float64) error {
	if err := invalidFloat(f.String(), v); err != nil {
		return err
	}
	v = clamp(v, lo, hi)
	fi, err := s.usableFeature(f)
	if errors.Is(err, ErrFeatureUnavailable) {
		*dst = v
		return err
	}
	if err != nil {
		return err
	}
	reg, err := s.writeFeature(fi, toRegister(v, lo, hi, fi))
	if err != nil {
		return err
	}
	*dst = fromRegister(reg, lo, hi, fi)
	return nil
}

// readScalar runs the getter protocol for a feature normalized onto [lo,hi].
func (s *Session) readScalar(f iidc.Feature, dst *float64, lo, hi float64) error {
	if !s.live() {
		return nil
	}
	fi, err := s.cam.Feature(f)
	if err != nil {
		return fmt.Errorf("query %s: %w", f, err)
	}
	if fi.Usable() && fi.Readable {
		*dst = fromRegister(fi.Value, lo, hi, fi)
	}
	return nil
}

func (s *Session) setGain(g float64) error {
	return s.setScalar(iidc.FeatureGain, &s.shadow.Gain, g, 0, 1)
}

func (s *Session) setBrightness(b float64) error {
	return s.setScalar(iidc.FeatureBrightness, &s.shadow.Brightness, b, -1, 1)
}

func (s *Session) exposure() (offset, quantum float64) {
	if s.config == nil {
		return 0, 1
	}
	return s.config.ExposureOffset, s.config.ExposureQuantum
}

func (s *Session) setShutter(sec float64) error {
	if err := invalidFloat("shutter", sec); err != nil {
		return err
	}
	if sec < 0 {
		return fmt.Errorf("%w: shutter %v must not be negative", ErrInvalidArgument, sec)
	}
	fi, err := s.usableFeature(iidc.FeatureShutter)
	if errors.Is(err, ErrFeatureUnavailable) {
		s.shadow.Shutter = sec
		return err
	}
	if err != nil {
		return err
	}
	offset, quantum := s.exposure()
	reg := clamp(math.Round((sec-offset)/quantum), float64(fi.Min), float64(fi.Max))
	actual, err := s.writeFeature(fi, uint32(reg))
	if err != nil {
		return err
	}
	s.shadow.Shutter = offset + float64(actual)*quantum
	return nil
}

func (s *Session) readShutter() error {
	if !s.live() {
		return nil
	}
	fi, err := s.cam.Feature(iidc.FeatureShutter)
	if err != nil {
		return fmt.Errorf("query shutter: %w", err)
	}
	if fi.Usable() && fi.Readable {
		offset, quantum := s.exposure()
		s.shadow.Shutter = offset + float64(fi.Value)*quantum
	}
	return nil
}

func (s *Session) setWhiteBalance(wb [2]float64) error {
	for _, v := range wb {
		if err := invalidFloat("white balance", v); err != nil {
			return err
		}
	}
	wb = [2]float64{clamp(wb[0], 0, 1), clamp(wb[1], 0, 1)}
	fi, err := s.usableFeature(iidc.FeatureWhiteBalance)
	if errors.Is(err, ErrFeatureUnavailable) {
		s.shadow.WhiteBalance = wb
		return err
	}
	if err != nil {
		return err
	}
	if err := s.manual(fi); err != nil {
		return err
	}
	ub, vr := toRegister(wb[0], 0, 1, fi), toRegister(wb[1], 0, 1, fi)
	if err := s.cam.SetWhiteBalance(ub, vr); err != nil {
		return fmt.Errorf("set white balance %d/%d: %w", ub, vr, err)
	}
	if fi.Readable {
		if ub, vr, err = s.cam.WhiteBalance(); err != nil {
			return fmt.Errorf("read back white balance: %w", err)
		}
	}
	s.shadow.WhiteBalance = [2]float64{fromRegister(ub, 0, 1, fi), fromRegister(vr, 0, 1, fi)}
	return nil
}

func (s *Session) readWhiteBalance() error {
	if !s.live() {
		return nil
	}
	fi, err := s.cam.Feature(iidc.FeatureWhiteBalance)
	if err != nil {
		return fmt.Errorf("query white balance: %w", err)
	}
	if !fi.Usable() || !fi.Readable {
		return nil
	}
	ub, vr, err := s.cam.WhiteBalance()
	if err != nil {
		return fmt.Errorf("read white balance: %w", err)
	}
	s.shadow.WhiteBalance = [2]float64{fromRegister(ub, 0, 1, fi), fromRegister(vr, 0, 1, fi)}
	return nil
}

// trigger returns the trigger feature when it can be switched.
func (s *Session) trigger() (iidc.FeatureInfo, bool, error) {
	fi, err := s.cam.Feature(iidc.FeatureTrigger)
	if err != nil {
		return fi, false, fmt.Errorf("query trigger: %w", err)
	}
	return fi, fi.Available && fi.OnOffCapable, nil
}

func (s *Session) setExternalTrigger(on bool) error {
	fi, ok, err := s.trigger()
	if err != nil {
		return err
	}
	if !ok {
		s.shadow.ExternalTrigger = on
		if on {
			return unavailable(iidc.FeatureTrigger)
		}
		return nil
	}
	if err := s.cam.SetFeaturePower(iidc.FeatureTrigger, on); err != nil {
		return fmt.Errorf("switch external trigger: %w", err)
	}
	if fi.Readable {
		after, err := s.cam.Feature(iidc.FeatureTrigger)
		if err != nil {
			return fmt.Errorf("read back trigger: %w", err)
		}
		on = after.On
	}
	s.shadow.ExternalTrigger = on
	return nil
}

func (s *Session) setTriggerPolarity(activeHigh bool) error {
	_, ok, err := s.trigger()
	if err != nil {
		return err
	}
	if !ok {
		s.shadow.TriggerPolarity = activeHigh
		if activeHigh {
			return unavailable(iidc.FeatureTrigger)
		}
		return nil
	}
	if err := s.cam.SetTriggerPolarity(activeHigh); err != nil {
		return fmt.Errorf("set trigger polarity: %w", err)
	}
	actual, err := s.cam.TriggerPolarity()
	if err != nil {
		return fmt.Errorf("read back trigger polarity: %w", err)
	}
	s.shadow.TriggerPolarity = actual
	return nil
}

func (s *Session) readTrigger() error {
	if !s.live() {
		return nil
	}
	fi, ok, err := s.trigger()
	if err != nil || !ok {
		return err
	}
	if fi.Readable {
		s.shadow.ExternalTrigger = fi.On
	}
	polarity, err := s.cam.TriggerPolarity()
	if err != nil {
		return fmt.Errorf("read trigger polarity: %w", err)
	}
	s.shadow.TriggerPolarity = polarity
	return nil
}

func (s *Session) setGamma(on bool) error {
	if !s.caps.Gamma {
		s.shadow.Gamma = on
		if on {
			return unavailable(iidc.FeatureGamma)
		}
		return nil
	}
	if err := s.family.SetGamma(s.cam, on); err != nil {
		return fmt.Errorf("set gamma: %w", err)
	}
	actual, err := s.family.Gamma(s.cam)
	if err != nil {
		return fmt.Errorf("read back gamma: %w", err)
	}
	s.shadow.Gamma = actual
	return nil
}

func (s *Session) setColorCorrection(on bool) error {
	if !s.caps.ColorCorrection {
		s.shadow.ColorCorrection = on
		if on {
			return fmt.Errorf("%w: colour correction", ErrFeatureUnavailable)
		}
		return nil
	}
	if err := s.family.SetColorCorrection(s.cam, on); err != nil {
		return fmt.Errorf("set colour correction: %w", err)
	}
	actual, err := s.family.ColorCorrection(s.cam)
	if err != nil {
		return fmt.Errorf("read back colour correction: %w", err)
	}
	s.shadow.ColorCorrection = actual
	return nil
}

func (s *Session) setColorCoefficients(c [9]float64) error {
	for _, v := range c {
		if err := invalidFloat("colour coefficient", v); err != nil {
			return err
		}
	}
	c = vendor.ClampCoefficients(c)
	if !s.caps.ColorCorrection {
		s.shadow.ColorCoefficients = c
		if c != vendor.Identity {
			return fmt.Errorf("%w: colour coefficients", ErrFeatureUnavailable)
		}
		return nil
	}
	applied, err := s.family.SetColorCoefficients(s.cam, c)
	if err != nil {
		return fmt.Errorf("set colour coefficients: %w", err)
	}
	s.shadow.ColorCoefficients = applied
	return nil
}

func (s *Session) readAdvanced() error {
	if !s.live() {
		return nil
	}
	if s.caps.Gamma {
		on, err := s.family.Gamma(s.cam)
		if err != nil {
			return fmt.Errorf("read gamma: %w", err)
		}
		s.shadow.Gamma = on
	}
	if s.caps.ColorCorrection {
		on, err := s.family.ColorCorrection(s.cam)
		if err != nil {
			return fmt.Errorf("read colour correction: %w", err)
		}
		c, err := s.family.ColorCoefficients(s.cam)
		if err != nil {
			return fmt.Errorf("read colour coefficients: %w", err)
		}
		s.shadow.ColorCorrection = on
		s.shadow.ColorCoefficients = c
	}
	return nil
}

func (s *Session) readFrameRate() error {
	if !s.live() || s.regime != RegimeScalable || s.config == nil {
		return nil
	}
	size, err := s.cam.PacketSize(s.mode)
	if err != nil {
		return fmt.Errorf("read packet size: %w", err)
	}
	bw := s.config.Bandwidth(s.scalable)
	roi := s.shadow.ROI
	s.packet = size
	s.shadow.FrameRate = bw.RateForPackets(bw.PacketsForSize(size, roi.Width, roi.Height, s.shadow.Coding.BitsPerPixel()))
	return nil
}

// refresh re-reads every register-backed field.
func (s *Session) refresh() error {
	readers := []func() error{
		s.readTrigger,
		s.readShutter,
		func() error { return s.readScalar(iidc.FeatureGain, &s.shadow.Gain, 0, 1) },
		func() error { return s.readScalar(iidc.FeatureBrightness, &s.shadow.Brightness, -1, 1) },
		s.readWhiteBalance,
		s.readAdvanced,
		s.readFrameRate,
	}
	for _, read := range readers {
		if err := read(); err != nil {
			return err
		}
	}
	return nil
}
