package sim

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/smazurov/isocam/pkg/iidc"
)

var errBusy = errors.New("sim: capture is set up")

// Counters records how often the camera was reprogrammed.
type Counters struct {
	Setups        int // SetupCapture calls that succeeded
	ModeWrites    int
	RateWrites    int
	PacketWrites  int
	FeatureWrites int
	Resets        int
}

// Snapshot is the register state of a simulated camera.
type Snapshot struct {
	Mode         iidc.VideoMode
	Speed        iidc.ISOSpeed
	Framerate    float64
	Coding       iidc.ColorCoding
	Left, Top    int
	Width        int
	Height       int
	PacketSize   int
	Transmitting bool
	OneShot      bool
	Capturing    bool
	Buffers      int
	Ready        int
	Outstanding  int
	Dropped      int
	Counters     Counters
}

type readyBuffer struct {
	index int
	at    time.Time
}

// Camera is a simulated camera. It is safe for concurrent use, so a test
// can Emit frames while a session blocks in Dequeue.
type Camera struct {
	mu   sync.Mutex
	cond *sync.Cond

	identity   iidc.Identity
	caps       iidc.BasicCapabilities
	features   map[iidc.Feature]iidc.FeatureInfo
	steps      map[iidc.Feature]uint32
	wbUB, wbVR uint32
	activeHigh bool

	fixed          map[iidc.VideoMode]iidc.ModeInfo
	rates          []float64
	scalable       *iidc.ScalableInfo
	packetsPerMbps float64

	mode          iidc.VideoMode
	speed         iidc.ISOSpeed
	fps           float64
	coding        iidc.ColorCoding
	left, top     int
	width, height int
	packet        int

	transmitting bool
	oneShot      bool
	oneShotAt    time.Time

	capturing bool
	buffers   [][]byte
	free      []int
	ready     []readyBuffer
	out       map[int]bool
	seq       uint64
	dropped   int
	lastTick  time.Time

	registers map[uint64]uint32
	manual    bool
	now       func() time.Time
	closed    bool
	faults    map[string]error
	counters  Counters
}

// Option configures a simulated camera.
type Option func(*Camera)

// WithIdentity sets the camera identity.
func WithIdentity(id iidc.Identity) Option {
	return func(c *Camera) { c.identity = id }
}

// WithFeature adds or replaces a feature.
func WithFeature(info iidc.FeatureInfo) Option {
	return func(c *Camera) { c.features[info.Feature] = info }
}

// WithoutFeature removes a feature.
func WithoutFeature(f iidc.Feature) Option {
	return func(c *Camera) { delete(c.features, f) }
}

// WithFeatureStep makes the feature accept only multiples of step above its minimum.
func WithFeatureStep(f iidc.Feature, step uint32) Option {
	return func(c *Camera) { c.steps[f] = step }
}

// WithFixedModes replaces the fixed modes and their shared frame-rate table.
func WithFixedModes(modes map[iidc.VideoMode]iidc.ModeInfo, rates []float64) Option {
	return func(c *Camera) {
		c.fixed = modes
		c.rates = append([]float64(nil), rates...)
	}
}

// WithScalable replaces the scalable mode description.
func WithScalable(info iidc.ScalableInfo) Option {
	return func(c *Camera) { c.scalable = &info }
}

// WithoutScalable removes the scalable mode.
func WithoutScalable() Option {
	return func(c *Camera) { c.scalable = nil }
}

// WithOneShot sets the one-shot capability flag.
func WithOneShot(capable bool) Option {
	return func(c *Camera) { c.caps.OneShot = capable }
}

// WithAdvancedRegisters installs a vendor advanced-register block and
// raises the advanced-features capability flag.
func WithAdvancedRegisters(regs map[uint64]uint32) Option {
	return func(c *Camera) {
		c.caps.AdvancedFeatures = true
		for off, v := range regs {
			c.registers[off] = v
		}
	}
}

// WithManualFrames disables wall-clock frame production. Frames then only
// appear through Emit.
func WithManualFrames() Option {
	return func(c *Camera) { c.manual = true }
}

// WithClock sets the clock used for DMA timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Camera) { c.now = now }
}

// WithPacketsPerMbps sets the bus frequency factor used to derive the
// scalable frame rate.
func WithPacketsPerMbps(v float64) Option {
	return func(c *Camera) { c.packetsPerMbps = v }
}

// New returns a simulated camera in fixed mode F0/M5 (640x480 mono8, 15 fps, S400).
func New(opts ...Option) *Camera {
	c := &Camera{
		identity: iidc.Identity{GUID: 0x000a4701_00c0ffee, Vendor: "Simulated", Model: "SIM-1"},
		caps:     iidc.BasicCapabilities{OneShot: true},
		features: DefaultFeatures(),
		steps:    make(map[iidc.Feature]uint32),
		fixed:    DefaultFixedModes(),
		rates:    DefaultFramerates(),

		packetsPerMbps: 20,
		mode:           iidc.VideoMode{Format: 0, Mode: 5},
		speed:          iidc.ISOSpeed400,
		fps:            15,
		coding:         iidc.CodingMono8,
		width:          640,
		height:         480,
		registers:      make(map[uint64]uint32),
		out:            make(map[int]bool),
		faults:         make(map[string]error),
		now:            time.Now,
	}
	scalable := DefaultScalable()
	c.scalable = &scalable
	c.cond = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}
	if wb, ok := c.features[iidc.FeatureWhiteBalance]; ok {
		c.wbUB, c.wbVR = wb.Value, wb.Value
	}
	if c.scalable != nil {
		c.packet = c.scalable.MaxBytes
	}
	return c
}

// FailNext makes the next call of the named method return err.
func (c *Camera) FailNext(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults[method] = err
}

func (c *Camera) check(method string) error {
	if c.closed {
		return iidc.ErrClosed
	}
	if err, ok := c.faults[method]; ok {
		delete(c.faults, method)
		return err
	}
	return nil
}

// Snapshot returns the current register state.
func (c *Camera) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advance()
	return Snapshot{
		Mode:         c.mode,
		Speed:        c.speed,
		Framerate:    c.framerate(),
		Coding:       c.coding,
		Left:         c.left,
		Top:          c.top,
		Width:        c.width,
		Height:       c.height,
		PacketSize:   c.packet,
		Transmitting: c.transmitting,
		OneShot:      c.oneShot,
		Capturing:    c.capturing,
		Buffers:      len(c.buffers),
		Ready:        len(c.ready),
		Outstanding:  len(c.out),
		Dropped:      c.dropped,
		Counters:     c.counters,
	}
}

// Register returns the raw value of an advanced register.
func (c *Camera) Register(offset uint64) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registers[offset]
}

func (c *Camera) reopen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = false
}

func (c *Camera) Identity() iidc.Identity {
	return c.identity
}

func (c *Camera) Capabilities() (iidc.BasicCapabilities, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("Capabilities"); err != nil {
		return iidc.BasicCapabilities{}, err
	}
	return c.caps, nil
}

func (c *Camera) Feature(f iidc.Feature) (iidc.FeatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("Feature"); err != nil {
		return iidc.FeatureInfo{}, err
	}
	info, ok := c.features[f]
	if !ok {
		return iidc.FeatureInfo{Feature: f}, nil
	}
	return info, nil
}

func (c *Camera) SetFeatureValue(f iidc.Feature, value uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("SetFeatureValue"); err != nil {
		return err
	}
	info, ok := c.features[f]
	if !ok || !info.Available {
		return fmt.Errorf("%w: %s", iidc.ErrNotSupported, f)
	}
	if value < info.Min || value > info.Max {
		return fmt.Errorf("%w: %s=%d not in [%d,%d]", iidc.ErrOutOfRange, f, value, info.Min, info.Max)
	}
	if step := c.steps[f]; step > 1 {
		value = info.Min + (value-info.Min)/step*step
	}
	info.Value = value
	c.features[f] = info
	c.counters.FeatureWrites++
	return nil
}

func (c *Camera) SetFeaturePower(f iidc.Feature, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("SetFeaturePower"); err != nil {
		return err
	}
	info, ok := c.features[f]
	if !ok || !info.Available || !info.OnOffCapable {
		return fmt.Errorf("%w: %s power", iidc.ErrNotSupported, f)
	}
	info.On = on
	c.features[f] = info
	return nil
}

func (c *Camera) SetFeatureMode(f iidc.Feature, mode iidc.FeatureMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("SetFeatureMode"); err != nil {
		return err
	}
	info, ok := c.features[f]
	if !ok || !info.Available {
		return fmt.Errorf("%w: %s", iidc.ErrNotSupported, f)
	}
	if mode == iidc.FeatureModeManual && !info.ManualCapable {
		return fmt.Errorf("%w: %s manual mode", iidc.ErrNotSupported, f)
	}
	if mode != iidc.FeatureModeManual && !info.AutoCapable {
		return fmt.Errorf("%w: %s auto mode", iidc.ErrNotSupported, f)
	}
	info.Mode = mode
	c.features[f] = info
	return nil
}

func (c *Camera) WhiteBalance() (uint32, uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("WhiteBalance"); err != nil {
		return 0, 0, err
	}
	if info, ok := c.features[iidc.FeatureWhiteBalance]; !ok || !info.Available {
		return 0, 0, fmt.Errorf("%w: white balance", iidc.ErrNotSupported)
	}
	return c.wbUB, c.wbVR, nil
}

func (c *Camera) SetWhiteBalance(ub, vr uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("SetWhiteBalance"); err != nil {
		return err
	}
	info, ok := c.features[iidc.FeatureWhiteBalance]
	if !ok || !info.Available {
		return fmt.Errorf("%w: white balance", iidc.ErrNotSupported)
	}
	for _, v := range []uint32{ub, vr} {
		if v < info.Min || v > info.Max {
			return fmt.Errorf("%w: white balance %d not in [%d,%d]", iidc.ErrOutOfRange, v, info.Min, info.Max)
		}
	}
	c.wbUB, c.wbVR = ub, vr
	c.counters.FeatureWrites++
	return nil
}

func (c *Camera) TriggerPolarity() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("TriggerPolarity"); err != nil {
		return false, err
	}
	if info, ok := c.features[iidc.FeatureTrigger]; !ok || !info.Available {
		return false, fmt.Errorf("%w: trigger", iidc.ErrNotSupported)
	}
	return c.activeHigh, nil
}

func (c *Camera) SetTriggerPolarity(activeHigh bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("SetTriggerPolarity"); err != nil {
		return err
	}
	if info, ok := c.features[iidc.FeatureTrigger]; !ok || !info.Available {
		return fmt.Errorf("%w: trigger", iidc.ErrNotSupported)
	}
	c.activeHigh = activeHigh
	return nil
}

func (c *Camera) Mode(m iidc.VideoMode) (iidc.ModeInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("Mode"); err != nil {
		return iidc.ModeInfo{}, err
	}
	info, ok := c.fixed[m]
	if !ok {
		return iidc.ModeInfo{}, fmt.Errorf("%w: mode %s", iidc.ErrNotSupported, m)
	}
	return info, nil
}

func (c *Camera) SupportedModes() ([]iidc.VideoMode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("SupportedModes"); err != nil {
		return nil, err
	}
	modes := sortedModes(c.fixed)
	if c.scalable != nil {
		modes = append(modes, iidc.VideoMode{Format: iidc.ScalableFormat, Mode: 0})
	}
	return modes, nil
}

func (c *Camera) SetVideoMode(m iidc.VideoMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("SetVideoMode"); err != nil {
		return err
	}
	if c.capturing {
		return errBusy
	}
	if m.Scalable() {
		if c.scalable == nil || m.Mode != 0 {
			return fmt.Errorf("%w: mode %s", iidc.ErrNotSupported, m)
		}
		if !c.scalable.SupportsCoding(c.coding) && len(c.scalable.Codings) > 0 {
			c.coding = c.scalable.Codings[0]
		}
		if c.left+c.width > c.scalable.MaxWidth || c.top+c.height > c.scalable.MaxHeight {
			c.left, c.top = 0, 0
			c.width, c.height = c.scalable.MaxWidth, c.scalable.MaxHeight
		}
	} else {
		info, ok := c.fixed[m]
		if !ok {
			return fmt.Errorf("%w: mode %s", iidc.ErrNotSupported, m)
		}
		c.left, c.top = 0, 0
		c.width, c.height, c.coding = info.Width, info.Height, info.Coding
		if !c.rateSupported(c.fps) && len(c.rates) > 0 {
			c.fps = c.rates[0]
		}
	}
	c.mode = m
	c.counters.ModeWrites++
	return nil
}

func (c *Camera) SetISOSpeed(s iidc.ISOSpeed) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("SetISOSpeed"); err != nil {
		return err
	}
	if s < iidc.ISOSpeed100 || s > iidc.ISOSpeed3200 {
		return fmt.Errorf("%w: iso speed %d", iidc.ErrOutOfRange, s)
	}
	c.speed = s
	return nil
}

func (c *Camera) SupportedFramerates(m iidc.VideoMode) ([]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("SupportedFramerates"); err != nil {
		return nil, err
	}
	if _, ok := c.fixed[m]; !ok {
		return nil, fmt.Errorf("%w: frame rates of %s", iidc.ErrNotSupported, m)
	}
	return append([]float64(nil), c.rates...), nil
}

func (c *Camera) SetFramerate(fps float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("SetFramerate"); err != nil {
		return err
	}
	if c.mode.Scalable() {
		return fmt.Errorf("%w: frame rate register in scalable mode", iidc.ErrNotSupported)
	}
	if !c.rateSupported(fps) {
		return fmt.Errorf("%w: %g fps", iidc.ErrOutOfRange, fps)
	}
	c.fps = fps
	c.counters.RateWrites++
	return nil
}

func (c *Camera) rateSupported(fps float64) bool {
	for _, r := range c.rates {
		if math.Abs(r-fps) < 1e-9 {
			return true
		}
	}
	return false
}

func (c *Camera) Scalable(m iidc.VideoMode) (iidc.ScalableInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("Scalable"); err != nil {
		return iidc.ScalableInfo{}, err
	}
	if !m.Scalable() || c.scalable == nil {
		return iidc.ScalableInfo{}, fmt.Errorf("%w: mode %s", iidc.ErrNotSupported, m)
	}
	info := *c.scalable
	info.Codings = append([]iidc.ColorCoding(nil), info.Codings...)
	return info, nil
}

func (c *Camera) scalableFor(m iidc.VideoMode) (*iidc.ScalableInfo, error) {
	if !m.Scalable() || c.scalable == nil {
		return nil, fmt.Errorf("%w: mode %s", iidc.ErrNotSupported, m)
	}
	return c.scalable, nil
}

func (c *Camera) SetColorCoding(m iidc.VideoMode, coding iidc.ColorCoding) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("SetColorCoding"); err != nil {
		return err
	}
	info, err := c.scalableFor(m)
	if err != nil {
		return err
	}
	if !info.SupportsCoding(coding) {
		return fmt.Errorf("%w: coding %s", iidc.ErrNotSupported, coding)
	}
	if c.capturing && coding.BitsPerPixel() != c.coding.BitsPerPixel() {
		return errBusy
	}
	c.coding = coding
	return nil
}

func (c *Camera) SetImagePosition(m iidc.VideoMode, left, top int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("SetImagePosition"); err != nil {
		return err
	}
	info, err := c.scalableFor(m)
	if err != nil {
		return err
	}
	if left < 0 || top < 0 || left%max(info.UnitLeft, 1) != 0 || top%max(info.UnitTop, 1) != 0 ||
		left+c.width > info.MaxWidth || top+c.height > info.MaxHeight {
		return fmt.Errorf("%w: position %d,%d", iidc.ErrOutOfRange, left, top)
	}
	c.left, c.top = left, top
	return nil
}

func (c *Camera) SetImageSize(m iidc.VideoMode, width, height int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("SetImageSize"); err != nil {
		return err
	}
	info, err := c.scalableFor(m)
	if err != nil {
		return err
	}
	if c.capturing {
		return errBusy
	}
	if width <= 0 || height <= 0 || width%max(info.UnitWidth, 1) != 0 || height%max(info.UnitHeight, 1) != 0 ||
		c.left+width > info.MaxWidth || c.top+height > info.MaxHeight {
		return fmt.Errorf("%w: size %dx%d", iidc.ErrOutOfRange, width, height)
	}
	c.width, c.height = width, height
	return nil
}

func (c *Camera) SetPacketSize(m iidc.VideoMode, bytes int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("SetPacketSize"); err != nil {
		return err
	}
	info, err := c.scalableFor(m)
	if err != nil {
		return err
	}
	unit := max(info.UnitBytes, 1)
	if bytes < unit || bytes > info.MaxBytes {
		return fmt.Errorf("%w: packet size %d", iidc.ErrOutOfRange, bytes)
	}
	c.packet = bytes / unit * unit
	c.counters.PacketWrites++
	return nil
}

func (c *Camera) PacketSize(m iidc.VideoMode) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("PacketSize"); err != nil {
		return 0, err
	}
	if _, err := c.scalableFor(m); err != nil {
		return 0, err
	}
	return c.packet, nil
}

func (c *Camera) Transmission() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("Transmission"); err != nil {
		return false, err
	}
	return c.transmitting, nil
}

func (c *Camera) SetTransmission(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("SetTransmission"); err != nil {
		return err
	}
	if on && !c.transmitting {
		c.lastTick = c.now()
	}
	c.transmitting = on
	c.cond.Broadcast()
	return nil
}

func (c *Camera) OneShot() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("OneShot"); err != nil {
		return false, err
	}
	c.advance()
	return c.oneShot, nil
}

func (c *Camera) SetOneShot(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("SetOneShot"); err != nil {
		return err
	}
	if !c.caps.OneShot {
		return fmt.Errorf("%w: one-shot", iidc.ErrNotSupported)
	}
	if on {
		c.oneShotAt = c.now()
	}
	c.oneShot = on
	c.cond.Broadcast()
	return nil
}

func (c *Camera) ReadAdvanced(offset uint64) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("ReadAdvanced"); err != nil {
		return 0, err
	}
	v, ok := c.registers[offset]
	if !c.caps.AdvancedFeatures || !ok {
		return 0, fmt.Errorf("%w: advanced register 0x%x", iidc.ErrNotSupported, offset)
	}
	return v, nil
}

func (c *Camera) WriteAdvanced(offset uint64, value uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("WriteAdvanced"); err != nil {
		return err
	}
	if _, ok := c.registers[offset]; !c.caps.AdvancedFeatures || !ok {
		return fmt.Errorf("%w: advanced register 0x%x", iidc.ErrNotSupported, offset)
	}
	c.registers[offset] = value
	return nil
}

func (c *Camera) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("Reset"); err != nil {
		return err
	}
	c.transmitting = false
	c.oneShot = false
	c.counters.Resets++
	c.cond.Broadcast()
	return nil
}

func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopCapture()
	c.transmitting = false
	c.oneShot = false
	c.closed = true
	c.cond.Broadcast()
	return nil
}
