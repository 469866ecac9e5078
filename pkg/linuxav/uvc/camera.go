//go:build linux

package uvc

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/blackjack/webcam"

	"github.com/smazurov/isocam/pkg/iidc"
)

// waitSeconds bounds a blocking dequeue.
const waitSeconds = 5

// Camera is an opened UVC device.
type Camera struct {
	mu       sync.Mutex
	id       iidc.Identity
	dev      device
	modes    map[iidc.VideoMode]mode
	controls map[iidc.Feature]control
	present  map[webcam.ControlID]webcam.Control

	mode      iidc.VideoMode
	rate      float64
	setup     bool
	streaming bool
	loaned    map[int]bool
	closed    bool
}

func newCamera(id iidc.Identity, dev device, modes map[iidc.VideoMode]mode) *Camera {
	present := dev.GetControls()
	c := &Camera{
		id:       id,
		dev:      dev,
		modes:    modes,
		controls: resolve(present),
		present:  present,
		loaned:   make(map[int]bool),
	}
	if supported := sortedModes(modes); len(supported) > 0 {
		c.mode = supported[0]
	}
	return c
}

func (c *Camera) Identity() iidc.Identity { return c.id }

func (c *Camera) Capabilities() (iidc.BasicCapabilities, error) {
	return iidc.BasicCapabilities{}, c.check()
}

func (c *Camera) Feature(f iidc.Feature) (iidc.FeatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return iidc.FeatureInfo{}, iidc.ErrClosed
	}

	info := iidc.FeatureInfo{Feature: f}
	ctl, ok := c.controls[f]
	if !ok {
		return info, nil
	}
	v, err := c.dev.GetControl(ctl.id)
	if err != nil {
		return info, fmt.Errorf("read %s: %w", f, err)
	}
	info.Available = true
	info.Readable = true
	info.ManualCapable = true
	info.On = true
	info.Max = ctl.span()
	info.Value = ctl.register(v)

	if auto := c.auto(f); auto != nil {
		info.AutoCapable = true
		state, err := c.dev.GetControl(auto.id)
		if err != nil {
			return info, fmt.Errorf("read auto %s: %w", f, err)
		}
		if state == auto.on {
			info.Mode = iidc.FeatureModeAuto
		}
	}
	return info, nil
}

func (c *Camera) SetFeatureValue(f iidc.Feature, value uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return iidc.ErrClosed
	}
	ctl, ok := c.controls[f]
	if !ok {
		return iidc.ErrNotSupported
	}
	if value > ctl.span() {
		return fmt.Errorf("%w: %s register %d above %d", iidc.ErrOutOfRange, f, value, ctl.span())
	}
	return c.dev.SetControl(ctl.id, ctl.value(value))
}

// SetFeaturePower accepts switching on only; UVC controls are always on.
func (c *Camera) SetFeaturePower(f iidc.Feature, on bool) error {
	if err := c.check(); err != nil {
		return err
	}
	if _, ok := c.controls[f]; !ok || !on {
		return iidc.ErrNotSupported
	}
	return nil
}

func (c *Camera) SetFeatureMode(f iidc.Feature, m iidc.FeatureMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return iidc.ErrClosed
	}
	if _, ok := c.controls[f]; !ok {
		return iidc.ErrNotSupported
	}
	auto := c.auto(f)
	switch {
	case m == iidc.FeatureModeManual && auto == nil:
		return nil
	case m == iidc.FeatureModeManual:
		return c.dev.SetControl(auto.id, auto.off)
	case m == iidc.FeatureModeAuto && auto != nil:
		return c.dev.SetControl(auto.id, auto.on)
	default:
		return iidc.ErrNotSupported
	}
}

// auto returns the auto switch of f when the device has it.
func (c *Camera) auto(f iidc.Feature) *autoControl {
	a := bindings[f].auto
	if a == nil {
		return nil
	}
	if _, ok := c.present[a.id]; !ok {
		return nil
	}
	return a
}

// redBalance is the V/R half of white balance when the device has
// separate colour gains.
func (c *Camera) redBalance() (control, bool) {
	if wb, ok := c.controls[iidc.FeatureWhiteBalance]; !ok || wb.id != cidBlueBalance {
		return control{}, false
	}
	red, ok := c.present[cidRedBalance]
	if !ok {
		return control{}, false
	}
	return control{id: cidRedBalance, min: red.Min, max: red.Max}, true
}

func (c *Camera) WhiteBalance() (ub, vr uint32, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, 0, iidc.ErrClosed
	}
	wb, ok := c.controls[iidc.FeatureWhiteBalance]
	if !ok {
		return 0, 0, iidc.ErrNotSupported
	}
	v, err := c.dev.GetControl(wb.id)
	if err != nil {
		return 0, 0, err
	}
	ub, vr = wb.register(v), wb.register(v)
	if red, ok := c.redBalance(); ok {
		rv, err := c.dev.GetControl(red.id)
		if err != nil {
			return 0, 0, err
		}
		vr = red.register(rv)
	}
	return ub, vr, nil
}

func (c *Camera) SetWhiteBalance(ub, vr uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return iidc.ErrClosed
	}
	wb, ok := c.controls[iidc.FeatureWhiteBalance]
	if !ok {
		return iidc.ErrNotSupported
	}
	if ub > wb.span() {
		return fmt.Errorf("%w: white balance %d above %d", iidc.ErrOutOfRange, ub, wb.span())
	}
	if err := c.dev.SetControl(wb.id, wb.value(ub)); err != nil {
		return err
	}
	if red, ok := c.redBalance(); ok {
		if vr > red.span() {
			return fmt.Errorf("%w: red balance %d above %d", iidc.ErrOutOfRange, vr, red.span())
		}
		return c.dev.SetControl(red.id, red.value(vr))
	}
	return nil
}

func (c *Camera) TriggerPolarity() (bool, error)           { return false, iidc.ErrNotSupported }
func (c *Camera) SetTriggerPolarity(activeHigh bool) error { return iidc.ErrNotSupported }

func (c *Camera) Mode(m iidc.VideoMode) (iidc.ModeInfo, error) {
	md, ok := c.modes[m]
	if !ok {
		return iidc.ModeInfo{}, fmt.Errorf("%w: video mode %s", iidc.ErrNotSupported, m)
	}
	return md.info, nil
}

func (c *Camera) SupportedModes() ([]iidc.VideoMode, error) {
	return sortedModes(c.modes), c.check()
}

func (c *Camera) SetVideoMode(m iidc.VideoMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return iidc.ErrClosed
	}
	if _, ok := c.modes[m]; !ok {
		return fmt.Errorf("%w: video mode %s", iidc.ErrNotSupported, m)
	}
	if c.streaming {
		return fmt.Errorf("uvc: cannot change video mode while streaming")
	}
	if m != c.mode {
		c.rate = 0
	}
	c.mode = m
	return nil
}

// SetISOSpeed is accepted for any speed; USB has no speed selection.
func (c *Camera) SetISOSpeed(iidc.ISOSpeed) error { return c.check() }

func (c *Camera) SupportedFramerates(m iidc.VideoMode) ([]float64, error) {
	md, ok := c.modes[m]
	if !ok {
		return nil, fmt.Errorf("%w: video mode %s", iidc.ErrNotSupported, m)
	}
	return slices.Clone(md.rates), nil
}

// SetFramerate selects a rate of the current mode. It takes effect at
// once when capture is set up, otherwise at SetupCapture.
func (c *Camera) SetFramerate(fps float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return iidc.ErrClosed
	}
	if !slices.Contains(c.modes[c.mode].rates, fps) {
		return fmt.Errorf("%w: %g fps in mode %s", iidc.ErrOutOfRange, fps, c.mode)
	}
	c.rate = fps
	if c.setup {
		return c.dev.SetFramerate(float32(fps))
	}
	return nil
}

func (c *Camera) Scalable(iidc.VideoMode) (iidc.ScalableInfo, error) {
	return iidc.ScalableInfo{}, iidc.ErrNotSupported
}

func (c *Camera) SetColorCoding(iidc.VideoMode, iidc.ColorCoding) error { return iidc.ErrNotSupported }
func (c *Camera) SetImagePosition(iidc.VideoMode, int, int) error       { return iidc.ErrNotSupported }
func (c *Camera) SetImageSize(iidc.VideoMode, int, int) error           { return iidc.ErrNotSupported }
func (c *Camera) SetPacketSize(iidc.VideoMode, int) error               { return iidc.ErrNotSupported }
func (c *Camera) PacketSize(iidc.VideoMode) (int, error)                { return 0, iidc.ErrNotSupported }

func (c *Camera) Transmission() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, iidc.ErrClosed
	}
	return c.streaming, nil
}

// SetTransmission starts or stops V4L2 streaming. Stopping returns every
// buffer to the driver, so frames not yet dequeued are lost.
func (c *Camera) SetTransmission(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return iidc.ErrClosed
	}
	if on == c.streaming {
		return nil
	}
	if on {
		if !c.setup {
			return iidc.ErrNotCapturing
		}
		if err := c.dev.StartStreaming(); err != nil {
			return fmt.Errorf("start streaming: %w", err)
		}
		c.streaming = true
		return nil
	}
	return c.stopStreaming()
}

func (c *Camera) stopStreaming() error {
	if !c.streaming {
		return nil
	}
	c.streaming = false
	clear(c.loaned)
	if err := c.dev.StopStreaming(); err != nil {
		return fmt.Errorf("stop streaming: %w", err)
	}
	return nil
}

func (c *Camera) OneShot() (bool, error) { return false, c.check() }

// SetOneShot accepts clearing only; UVC has no single-frame trigger.
func (c *Camera) SetOneShot(on bool) error {
	if err := c.check(); err != nil {
		return err
	}
	if on {
		return iidc.ErrNotSupported
	}
	return nil
}

// SetupCapture programs the current mode and rate and sizes the buffer queue.
func (c *Camera) SetupCapture(buffers int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return iidc.ErrClosed
	}
	if buffers < 1 {
		return fmt.Errorf("%w: %d buffers", iidc.ErrOutOfRange, buffers)
	}
	if err := c.stopStreaming(); err != nil {
		return err
	}
	md, ok := c.modes[c.mode]
	if !ok {
		return fmt.Errorf("%w: video mode %s", iidc.ErrNotSupported, c.mode)
	}

	w, h := uint32(md.info.Width), uint32(md.info.Height)
	got, gw, gh, err := c.dev.SetImageFormat(webcam.PixelFormat(md.pixfmt), w, h)
	if err != nil {
		return fmt.Errorf("set format: %w", err)
	}
	if uint32(got) != md.pixfmt || gw != w || gh != h {
		return fmt.Errorf("device chose %dx%d instead of %dx%d", gw, gh, w, h)
	}
	if c.rate > 0 {
		if err := c.dev.SetFramerate(float32(c.rate)); err != nil {
			return fmt.Errorf("set frame rate: %w", err)
		}
	}
	if err := c.dev.SetBufferCount(uint32(buffers)); err != nil {
		return fmt.Errorf("set buffer count: %w", err)
	}
	c.setup = true
	return nil
}

func (c *Camera) StopCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return iidc.ErrClosed
	}
	err := c.stopStreaming()
	c.setup = false
	return err
}

// Dequeue returns the next filled buffer. The timestamp is the host time
// of the dequeue and FramesBehind is always zero; V4L2 does not report the
// queue depth.
func (c *Camera) Dequeue(p iidc.DequeuePolicy) (*iidc.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, iidc.ErrClosed
	}
	if !c.setup {
		return nil, iidc.ErrNotCapturing
	}
	if !c.streaming {
		if p == iidc.DequeuePoll {
			return nil, nil
		}
		return nil, errNotStreaming
	}

	timeout := uint32(0)
	if p == iidc.DequeueWait {
		timeout = waitSeconds
	}
	if err := c.dev.WaitForFrame(timeout); err != nil {
		var te *webcam.Timeout
		if errors.As(err, &te) && p == iidc.DequeuePoll {
			return nil, nil
		}
		return nil, fmt.Errorf("wait for frame: %w", err)
	}
	data, index, err := c.dev.GetFrame()
	if err != nil {
		return nil, fmt.Errorf("get frame: %w", err)
	}
	md := c.modes[c.mode]
	c.loaned[int(index)] = true
	return &iidc.Frame{
		Image:     data,
		Index:     int(index),
		Width:     md.info.Width,
		Height:    md.info.Height,
		Coding:    md.info.Coding,
		Timestamp: time.Now(),
	}, nil
}

func (c *Camera) Enqueue(f *iidc.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return iidc.ErrClosed
	}
	if f == nil || !c.loaned[f.Index] {
		return iidc.ErrBufferInvalid
	}
	delete(c.loaned, f.Index)
	return c.dev.ReleaseFrame(uint32(f.Index))
}

func (c *Camera) ReadAdvanced(uint64) (uint32, error) { return 0, iidc.ErrNotSupported }
func (c *Camera) WriteAdvanced(uint64, uint32) error  { return iidc.ErrNotSupported }
func (c *Camera) Reset() error                        { return iidc.ErrNotSupported }

// Close stops streaming and releases the device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.stopStreaming()
	c.setup = false
	c.closed = true
	return c.dev.Close()
}

func (c *Camera) check() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return iidc.ErrClosed
	}
	return nil
}

func sortedModes(m map[iidc.VideoMode]mode) []iidc.VideoMode {
	out := make([]iidc.VideoMode, 0, len(m))
	for vm := range m {
		out = append(out, vm)
	}
	slices.SortFunc(out, func(a, b iidc.VideoMode) int {
		if a.Format != b.Format {
			return a.Format - b.Format
		}
		return a.Mode - b.Mode
	})
	return out
}

var _ iidc.Camera = (*Camera)(nil)
