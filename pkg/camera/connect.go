package camera

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/smazurov/isocam/pkg/camera/hwconfig"
	"github.com/smazurov/isocam/pkg/iidc"
)

// drainPeriods is how many frame periods a reconnect waits for in-flight
// frames after stopping.
const drainPeriods = 1.5

// connect programs the device for target and re-applies every in-place
// setting. The regime comes from the hardware configuration alone.
func (s *Session) connect(target Settings) error {
	cfg, err := s.hardwareConfig()
	if err != nil {
		return err
	}
	speed, err := cfg.ISOSpeed()
	if err != nil {
		return err
	}

	s.mode = cfg.VideoMode()
	if s.mode.Scalable() {
		s.regime = RegimeScalable
		err = s.connectScalable(cfg, speed, target)
	} else {
		s.regime = RegimeFixed
		err = s.connectFixed(speed, target)
	}
	if err != nil {
		return err
	}

	caps, err := s.probe()
	if err != nil {
		return err
	}
	s.caps = caps
	s.shadow.Tiling = caps.Tiling

	// Running starts out false so applyInPlace issues the start itself.
	s.shadow.Running = false
	s.shadow.SingleShot = false
	if err := s.applyInPlace(target, true); err != nil {
		return err
	}

	s.locked = nil
	s.frames = 0
	s.setState(StateConnected)
	return nil
}

func (s *Session) connectFixed(speed iidc.ISOSpeed, target Settings) error {
	if err := s.cam.SetISOSpeed(speed); err != nil {
		return fmt.Errorf("set iso speed %s: %w", speed, err)
	}
	if err := s.cam.SetVideoMode(s.mode); err != nil {
		return fmt.Errorf("set video mode %s: %w", s.mode, err)
	}
	info, err := s.cam.Mode(s.mode)
	if err != nil {
		return fmt.Errorf("query video mode %s: %w", s.mode, err)
	}
	rates, err := s.cam.SupportedFramerates(s.mode)
	if err != nil {
		return fmt.Errorf("query frame rates of %s: %w", s.mode, err)
	}
	rate, ok := nearestRate(rates, target.FrameRate)
	if !ok {
		return fmt.Errorf("%w: mode %s has no frame rates", ErrUnsupported, s.mode)
	}
	if err := s.cam.SetFramerate(rate); err != nil {
		return fmt.Errorf("set frame rate %g: %w", rate, err)
	}
	if err := s.cam.SetupCapture(target.Buffers); err != nil {
		return fmt.Errorf("setup capture with %d buffers: %w", target.Buffers, err)
	}

	s.packet = 0
	s.scalable = iidc.ScalableInfo{}
	s.shadow.Buffers = target.Buffers
	s.shadow.ROI = ROI{Width: info.Width, Height: info.Height}
	s.shadow.Coding = codingFromDriver(info.Coding)
	s.shadow.FrameRate = rate
	return nil
}

func (s *Session) connectScalable(cfg hwconfig.Config, speed iidc.ISOSpeed, target Settings) error {
	if err := s.cam.SetISOSpeed(speed); err != nil {
		return fmt.Errorf("set iso speed %s: %w", speed, err)
	}
	if err := s.cam.SetVideoMode(s.mode); err != nil {
		return fmt.Errorf("set video mode %s: %w", s.mode, err)
	}
	info, err := s.cam.Scalable(s.mode)
	if err != nil {
		return fmt.Errorf("query scalable mode %s: %w", s.mode, err)
	}
	s.scalable = info

	coding := target.Coding.driver()
	if !info.SupportsCoding(coding) {
		return fmt.Errorf("%w: coding %s in mode %s", ErrUnsupported, coding, s.mode)
	}
	if err := s.cam.SetColorCoding(s.mode, coding); err != nil {
		return fmt.Errorf("set coding %s: %w", coding, err)
	}

	roi := fitROI(target.ROI, info, cfg.MinPixels)
	if err := s.cam.SetImagePosition(s.mode, 0, 0); err != nil {
		return fmt.Errorf("reset image position: %w", err)
	}
	if err := s.cam.SetImageSize(s.mode, roi.Width, roi.Height); err != nil {
		return fmt.Errorf("set image size %dx%d: %w", roi.Width, roi.Height, err)
	}
	if err := s.cam.SetImagePosition(s.mode, roi.Left, roi.Top); err != nil {
		return fmt.Errorf("set image position %d,%d: %w", roi.Left, roi.Top, err)
	}

	bw := cfg.Bandwidth(info)
	bpp := coding.BitsPerPixel()
	packets := bw.PacketsForRate(target.FrameRate)
	size := bw.PacketSize(packets, roi.Width, roi.Height, bpp)
	if err := s.cam.SetPacketSize(s.mode, size); err != nil {
		return fmt.Errorf("set packet size %d: %w", size, err)
	}
	actual, err := s.cam.PacketSize(s.mode)
	if err != nil {
		return fmt.Errorf("read packet size: %w", err)
	}
	if err := s.cam.SetupCapture(target.Buffers); err != nil {
		return fmt.Errorf("setup capture with %d buffers: %w", target.Buffers, err)
	}

	s.packet = actual
	s.shadow.Buffers = target.Buffers
	s.shadow.ROI = roi
	s.shadow.Coding = target.Coding
	s.shadow.FrameRate = bw.RateForPackets(bw.PacketsForSize(actual, roi.Width, roi.Height, bpp))
	s.logger.Debug("Programmed scalable mode",
		"roi", fmt.Sprintf("%dx%d+%d+%d", roi.Width, roi.Height, roi.Left, roi.Top),
		"coding", coding.String(),
		"packets", packets,
		"packet_size", actual,
		"frame_rate", s.shadow.FrameRate)
	return nil
}

// fitROI quantizes roi to the mode's units and limits. The size is rounded
// down to the unit size, the position down to the unit position, and a
// frame below minPixels is made taller, then wider.
func fitROI(roi ROI, info iidc.ScalableInfo, minPixels int) ROI {
	uw, uh := max(info.UnitWidth, 1), max(info.UnitHeight, 1)
	maxW, maxH := info.MaxWidth/uw*uw, info.MaxHeight/uh*uh

	w, h := roi.Width, roi.Height
	if w <= 0 {
		w = maxW
	}
	if h <= 0 {
		h = maxH
	}
	w = min(max(w/uw*uw, uw), maxW)
	h = min(max(h/uh*uh, uh), maxH)

	if minPixels > 0 && w*h < minPixels {
		need := (minPixels + w - 1) / w
		h = min((need+uh-1)/uh*uh, maxH)
		if w*h < minPixels {
			need = (minPixels + h - 1) / h
			w = min((need+uw-1)/uw*uw, maxW)
		}
	}

	return ROI{
		Left:   fitOffset(roi.Left, w, info.MaxWidth, info.UnitLeft),
		Top:    fitOffset(roi.Top, h, info.MaxHeight, info.UnitTop),
		Width:  w,
		Height: h,
	}
}

func fitOffset(offset, size, limit, unit int) int {
	unit = max(unit, 1)
	offset = min(offset, limit-size)
	return max(offset/unit*unit, 0)
}

// nearestRate picks the rate closest to want in log2 distance, so rate
// tables spaced in octaves are searched evenly.
func nearestRate(rates []float64, want float64) (float64, bool) {
	best, bestDist := 0.0, math.Inf(1)
	for _, r := range rates {
		if r <= 0 {
			continue
		}
		if d := math.Abs(math.Log2(r / want)); d < bestDist {
			best, bestDist = r, d
		}
	}
	return best, bestDist < math.Inf(1)
}

// needsReconnect reports whether target differs from the connected state
// in a field that can only change by reconnecting.
func (s *Session) needsReconnect(target Settings) bool {
	if target.Buffers != s.shadow.Buffers {
		return true
	}
	if s.regime != RegimeScalable {
		return false
	}

	roi := fitROI(target.ROI, s.scalable, s.minPixels())
	if roi.Width != s.shadow.ROI.Width || roi.Height != s.shadow.ROI.Height {
		return true
	}
	if target.Coding.BitsPerPixel() != s.shadow.Coding.BitsPerPixel() {
		return true
	}
	// Many rates share a packet size; only a new size needs the device reprogrammed.
	if target.FrameRate == s.shadow.FrameRate {
		return false
	}
	return s.packetSizeFor(target.FrameRate, roi, target.Coding) != s.packet
}

func (s *Session) packetSizeFor(rate float64, roi ROI, coding PixelCoding) int {
	if s.config == nil {
		return s.packet
	}
	bw := s.config.Bandwidth(s.scalable)
	return bw.PacketSize(bw.PacketsForRate(rate), roi.Width, roi.Height, coding.BitsPerPixel())
}

func (s *Session) minPixels() int {
	if s.config == nil {
		return 0
	}
	return s.config.MinPixels
}

// reconnect stops, drains, disconnects and connects again with target.
// Any failure leaves the session disconnected for good.
func (s *Session) reconnect(target Settings) error {
	s.logger.Info("Reconnecting camera", "buffers", target.Buffers, "roi", target.ROI, "frame_rate", target.FrameRate)

	if s.shadow.Running {
		drain := time.Duration(drainPeriods * float64(time.Second) / s.shadow.FrameRate)
		if err := s.stop(); err != nil {
			return s.failReconnect(err)
		}
		s.sleep(drain)
	}
	if err := s.disconnect(); err != nil {
		return s.failReconnect(err)
	}
	if err := s.connect(target); err != nil {
		return s.failReconnect(err)
	}

	s.reconnects++
	if s.hooks.OnReconnect != nil {
		s.hooks.OnReconnect(s.id, nil)
	}
	return nil
}

func (s *Session) failReconnect(err error) error {
	s.logger.Error("Camera reconnect failed, session disconnected", "error", err)
	s.setState(StateDisconnected)
	if s.hooks.OnReconnect != nil {
		s.hooks.OnReconnect(s.id, err)
	}
	return fmt.Errorf("reconnect: %w", err)
}

// disconnect hands a locked buffer back and tears capture down.
func (s *Session) disconnect() error {
	var errs []error
	if s.locked != nil {
		if err := s.cam.Enqueue(s.locked); err != nil {
			errs = append(errs, fmt.Errorf("release locked frame: %w", err))
		}
		s.locked = nil
	}
	if err := s.cam.StopCapture(); err != nil {
		errs = append(errs, fmt.Errorf("stop capture: %w", err))
	}
	return errors.Join(errs...)
}

// applyInPlace writes every setting that needs no reconnect. While
// connecting the whole list is written; otherwise only fields that differ
// from the shadow. The order puts the trigger before the shutter, the
// shutter before gain and so on, since later features can depend on
// earlier ones being on and manual. Unavailable features never abort the
// sequence.
func (s *Session) applyInPlace(target Settings, connecting bool) error {
	var unavailable []error
	step := func(err error) error {
		if errors.Is(err, ErrFeatureUnavailable) {
			if connecting {
				s.logger.Debug("Skipping unavailable feature", "error", err)
			} else {
				unavailable = append(unavailable, err)
			}
			return nil
		}
		return err
	}

	if !connecting {
		if err := s.applyGeometry(target); err != nil {
			return err
		}
	}

	cur := s.shadow
	type change struct {
		changed bool
		apply   func() error
	}
	changes := []change{
		{target.ExternalTrigger != cur.ExternalTrigger, func() error { return s.setExternalTrigger(target.ExternalTrigger) }},
		{target.TriggerPolarity != cur.TriggerPolarity, func() error { return s.setTriggerPolarity(target.TriggerPolarity) }},
		{target.Shutter != cur.Shutter, func() error { return s.setShutter(target.Shutter) }},
		{target.Gain != cur.Gain, func() error { return s.setGain(target.Gain) }},
		{target.Brightness != cur.Brightness, func() error { return s.setBrightness(target.Brightness) }},
		{target.WhiteBalance != cur.WhiteBalance, func() error { return s.setWhiteBalance(target.WhiteBalance) }},
		{target.ColorCorrection != cur.ColorCorrection, func() error { return s.setColorCorrection(target.ColorCorrection) }},
		{target.ColorCoefficients != cur.ColorCoefficients, func() error { return s.setColorCoefficients(target.ColorCoefficients) }},
		{target.Gamma != cur.Gamma, func() error { return s.setGamma(target.Gamma) }},
	}
	runChanged := target.Running != cur.Running || target.SingleShot != cur.SingleShot
	// A stop goes first so a mode flip never fires a stray shot.
	if target.Running {
		changes = append(changes,
			change{runChanged, func() error { return s.setSingleShot(target.SingleShot) }},
			change{runChanged, func() error { return s.setRunning(true) }})
	} else {
		changes = append(changes,
			change{runChanged, func() error { return s.setRunning(false) }},
			change{runChanged, func() error { return s.setSingleShot(target.SingleShot) }})
	}

	for _, c := range changes {
		if !connecting && !c.changed {
			continue
		}
		if err := step(c.apply()); err != nil {
			return err
		}
	}
	s.shadow.Shadow = target.Shadow
	return errors.Join(unavailable...)
}

// applyGeometry applies the geometry changes that work without a
// reconnect: frame offset, same-depth coding, fixed-regime frame rate.
func (s *Session) applyGeometry(target Settings) error {
	if s.regime == RegimeFixed {
		if target.FrameRate != s.shadow.FrameRate {
			return s.setFixedFrameRate(target.FrameRate)
		}
		return nil
	}
	if target.Coding != s.shadow.Coding {
		if err := s.setSameDepthCoding(target.Coding); err != nil {
			return err
		}
	}
	if target.ROI.Left != s.shadow.ROI.Left || target.ROI.Top != s.shadow.ROI.Top {
		if err := s.setFrameOffset(target.ROI.Left, target.ROI.Top); err != nil {
			return err
		}
	}
	return nil
}

// pauseTransmission stops continuous transmission around fn and restarts it.
func (s *Session) pauseTransmission(fn func() error) error {
	continuous := s.shadow.Running && !s.shadow.SingleShot
	if continuous {
		if err := s.cam.SetTransmission(false); err != nil {
			return fmt.Errorf("pause transmission: %w", err)
		}
	}
	err := fn()
	if continuous {
		if rerr := s.cam.SetTransmission(true); rerr != nil {
			return errors.Join(err, fmt.Errorf("resume transmission: %w", rerr))
		}
	}
	return err
}

func (s *Session) setFixedFrameRate(want float64) error {
	rates, err := s.cam.SupportedFramerates(s.mode)
	if err != nil {
		return fmt.Errorf("query frame rates of %s: %w", s.mode, err)
	}
	rate, ok := nearestRate(rates, want)
	if !ok {
		return fmt.Errorf("%w: mode %s has no frame rates", ErrUnsupported, s.mode)
	}
	if rate == s.shadow.FrameRate {
		return nil
	}
	err = s.pauseTransmission(func() error {
		if err := s.cam.SetFramerate(rate); err != nil {
			return fmt.Errorf("set frame rate %g: %w", rate, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.shadow.FrameRate = rate
	return nil
}

func (s *Session) setSameDepthCoding(c PixelCoding) error {
	dc := c.driver()
	if !s.scalable.SupportsCoding(dc) {
		return fmt.Errorf("%w: coding %s in mode %s", ErrUnsupported, dc, s.mode)
	}
	err := s.pauseTransmission(func() error {
		if err := s.cam.SetColorCoding(s.mode, dc); err != nil {
			return fmt.Errorf("set coding %s: %w", dc, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.shadow.Coding = c
	return nil
}

func (s *Session) setFrameOffset(left, top int) error {
	if left < 0 || top < 0 {
		return fmt.Errorf("%w: frame offset %d,%d", ErrInvalidArgument, left, top)
	}
	if s.regime != RegimeScalable {
		if left == 0 && top == 0 {
			return nil
		}
		return fmt.Errorf("%w: frame offset in fixed mode %s", ErrUnsupported, s.mode)
	}
	roi := s.shadow.ROI
	roi.Left = fitOffset(left, roi.Width, s.scalable.MaxWidth, s.scalable.UnitLeft)
	roi.Top = fitOffset(top, roi.Height, s.scalable.MaxHeight, s.scalable.UnitTop)
	if err := s.cam.SetImagePosition(s.mode, roi.Left, roi.Top); err != nil {
		return fmt.Errorf("set image position %d,%d: %w", roi.Left, roi.Top, err)
	}
	s.shadow.ROI = roi
	return nil
}
