// Package sim implements an in-memory IIDC bus and camera.
//
// The simulated camera keeps a full register model: features with
// min/max/step, fixed video modes with a frame-rate table, a scalable mode
// with unit-quantized geometry and packet size, a self-clearing one-shot
// register, a vendor advanced-register block and a DMA buffer ring.
//
// Frames are produced on the wall clock at the programmed rate. With
// WithManualFrames they are produced only by Emit, which makes tests
// deterministic.
package sim

import (
	"fmt"
	"sort"
	"sync"

	"github.com/smazurov/isocam/pkg/iidc"
)

// Bus is a simulated bus holding a fixed set of cameras.
type Bus struct {
	mu      sync.Mutex
	cameras map[uint64]*Camera
	order   []uint64
	closed  bool
}

// NewBus returns a bus with the given cameras attached.
func NewBus(cameras ...*Camera) *Bus {
	b := &Bus{cameras: make(map[uint64]*Camera)}
	for _, c := range cameras {
		b.Attach(c)
	}
	return b
}

// Attach plugs a camera into the bus.
func (b *Bus) Attach(c *Camera) {
	b.mu.Lock()
	defer b.mu.Unlock()

	guid := c.Identity().GUID
	if _, exists := b.cameras[guid]; !exists {
		b.order = append(b.order, guid)
	}
	b.cameras[guid] = c
}

// Detach unplugs a camera. An open handle keeps working but the camera is
// no longer listed.
func (b *Bus) Detach(guid uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.cameras, guid)
	for i, g := range b.order {
		if g == guid {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Cameras lists attached cameras in attach order.
func (b *Bus) Cameras() ([]iidc.Identity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, iidc.ErrClosed
	}
	ids := make([]iidc.Identity, 0, len(b.order))
	for _, guid := range b.order {
		ids = append(ids, b.cameras[guid].Identity())
	}
	return ids, nil
}

// Open opens an attached camera.
func (b *Bus) Open(guid uint64) (iidc.Camera, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, iidc.ErrClosed
	}
	c, ok := b.cameras[guid]
	if !ok {
		return nil, fmt.Errorf("%w: %016x", iidc.ErrNoSuchCamera, guid)
	}
	c.reopen()
	return c, nil
}

// Close closes the bus.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// DefaultFixedModes are the fixed modes a camera gets unless WithFixedModes is used.
func DefaultFixedModes() map[iidc.VideoMode]iidc.ModeInfo {
	return map[iidc.VideoMode]iidc.ModeInfo{
		{Format: 0, Mode: 3}: {Width: 640, Height: 480, Coding: iidc.CodingYUV422},
		{Format: 0, Mode: 5}: {Width: 640, Height: 480, Coding: iidc.CodingMono8},
		{Format: 1, Mode: 5}: {Width: 1024, Height: 768, Coding: iidc.CodingMono8},
	}
}

// DefaultFramerates is the rate table of the default fixed modes.
func DefaultFramerates() []float64 {
	return []float64{7.5, 15, 30, 60}
}

// DefaultScalable is the scalable mode a camera gets unless WithScalable is used.
func DefaultScalable() iidc.ScalableInfo {
	return iidc.ScalableInfo{
		MaxWidth:    1024,
		MaxHeight:   768,
		UnitWidth:   4,
		UnitHeight:  2,
		UnitLeft:    2,
		UnitTop:     2,
		UnitBytes:   4,
		MaxBytes:    4096,
		Codings:     []iidc.ColorCoding{iidc.CodingMono8, iidc.CodingMono16, iidc.CodingRaw8, iidc.CodingRaw16, iidc.CodingYUV422, iidc.CodingRGB8},
		ColorFilter: iidc.FilterRGGB,
	}
}

// DefaultFeatures returns the feature set of a typical machine-vision camera.
func DefaultFeatures() map[iidc.Feature]iidc.FeatureInfo {
	manual := func(f iidc.Feature, lo, hi, v uint32) iidc.FeatureInfo {
		return iidc.FeatureInfo{
			Feature:       f,
			Available:     true,
			Readable:      true,
			OnOffCapable:  true,
			AutoCapable:   true,
			ManualCapable: true,
			On:            true,
			Mode:          iidc.FeatureModeManual,
			Min:           lo,
			Max:           hi,
			Value:         v,
		}
	}
	trigger := manual(iidc.FeatureTrigger, 0, 3, 0)
	trigger.On = false
	trigger.AutoCapable = false
	return map[iidc.Feature]iidc.FeatureInfo{
		iidc.FeatureBrightness:   manual(iidc.FeatureBrightness, 0, 255, 128),
		iidc.FeatureShutter:      manual(iidc.FeatureShutter, 1, 4095, 500),
		iidc.FeatureGain:         manual(iidc.FeatureGain, 0, 680, 0),
		iidc.FeatureWhiteBalance: manual(iidc.FeatureWhiteBalance, 0, 1023, 512),
		iidc.FeatureTrigger:      trigger,
	}
}

// sortedModes returns the keys of m in format/mode order.
func sortedModes(m map[iidc.VideoMode]iidc.ModeInfo) []iidc.VideoMode {
	modes := make([]iidc.VideoMode, 0, len(m))
	for vm := range m {
		modes = append(modes, vm)
	}
	sort.Slice(modes, func(i, j int) bool {
		if modes[i].Format != modes[j].Format {
			return modes[i].Format < modes[j].Format
		}
		return modes[i].Mode < modes[j].Mode
	})
	return modes
}
