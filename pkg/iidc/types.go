package iidc

import (
	"fmt"
	"time"
)

// Identity identifies a camera on the bus.
type Identity struct {
	GUID   uint64 // chip serial, unique per device
	Vendor string
	Model  string
}

// String returns the GUID as 16 hex digits, the form used in file names and APIs.
func (id Identity) String() string {
	return fmt.Sprintf("%016x", id.GUID)
}

// Feature is a camera feature register block.
type Feature int

// Standard features.
const (
	FeatureBrightness Feature = iota
	FeatureExposure
	FeatureSharpness
	FeatureWhiteBalance
	FeatureHue
	FeatureSaturation
	FeatureGamma
	FeatureShutter
	FeatureGain
	FeatureIris
	FeatureFocus
	FeatureTemperature
	FeatureTrigger
	FeatureTriggerDelay
	FeatureFrameRate
)

var featureNames = map[Feature]string{
	FeatureBrightness:   "brightness",
	FeatureExposure:     "exposure",
	FeatureSharpness:    "sharpness",
	FeatureWhiteBalance: "white_balance",
	FeatureHue:          "hue",
	FeatureSaturation:   "saturation",
	FeatureGamma:        "gamma",
	FeatureShutter:      "shutter",
	FeatureGain:         "gain",
	FeatureIris:         "iris",
	FeatureFocus:        "focus",
	FeatureTemperature:  "temperature",
	FeatureTrigger:      "trigger",
	FeatureTriggerDelay: "trigger_delay",
	FeatureFrameRate:    "frame_rate",
}

func (f Feature) String() string {
	if name, ok := featureNames[f]; ok {
		return name
	}
	return fmt.Sprintf("feature(%d)", int(f))
}

// FeatureMode is the control mode of a feature.
type FeatureMode int

// Feature modes.
const (
	FeatureModeManual FeatureMode = iota
	FeatureModeAuto
	FeatureModeOnePushAuto
)

// FeatureInfo is a snapshot of a feature's inquiry and status registers.
type FeatureInfo struct {
	Feature       Feature
	Available     bool
	Readable      bool
	OnOffCapable  bool
	AutoCapable   bool
	ManualCapable bool
	On            bool
	Mode          FeatureMode
	Min           uint32
	Max           uint32
	Value         uint32
}

// Usable reports whether the feature can be written in manual mode.
func (fi FeatureInfo) Usable() bool {
	return fi.Available && (fi.ManualCapable || !fi.AutoCapable)
}

// BasicCapabilities holds the static capability flags of the camera.
type BasicCapabilities struct {
	OneShot          bool
	MultiShot        bool
	AdvancedFeatures bool
}

// ISOSpeed is the isochronous bus speed.
type ISOSpeed int

// Bus speeds.
const (
	ISOSpeed100 ISOSpeed = iota
	ISOSpeed200
	ISOSpeed400
	ISOSpeed800
	ISOSpeed1600
	ISOSpeed3200
)

// Mbps returns the raw link speed in megabits per second.
func (s ISOSpeed) Mbps() int {
	return 100 << uint(s)
}

func (s ISOSpeed) String() string {
	return fmt.Sprintf("S%d", s.Mbps())
}

// SpeedFromMbps maps a link speed in Mb/s onto an ISOSpeed.
func SpeedFromMbps(mbps int) (ISOSpeed, error) {
	for s := ISOSpeed100; s <= ISOSpeed3200; s++ {
		if s.Mbps() == mbps {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unsupported bus speed %d Mb/s", mbps)
}

// ColorCoding is the pixel encoding of a transmitted frame.
type ColorCoding int

// Color codings.
const (
	CodingMono8 ColorCoding = iota
	CodingYUV411
	CodingYUV422
	CodingYUV444
	CodingRGB8
	CodingMono16
	CodingRGB16
	CodingMono16S
	CodingRGB16S
	CodingRaw8
	CodingRaw16
)

var codingBits = map[ColorCoding]int{
	CodingMono8:   8,
	CodingYUV411:  12,
	CodingYUV422:  16,
	CodingYUV444:  24,
	CodingRGB8:    24,
	CodingMono16:  16,
	CodingRGB16:   48,
	CodingMono16S: 16,
	CodingRGB16S:  48,
	CodingRaw8:    8,
	CodingRaw16:   16,
}

var codingNames = map[ColorCoding]string{
	CodingMono8:   "mono8",
	CodingYUV411:  "yuv411",
	CodingYUV422:  "yuv422",
	CodingYUV444:  "yuv444",
	CodingRGB8:    "rgb8",
	CodingMono16:  "mono16",
	CodingRGB16:   "rgb16",
	CodingMono16S: "mono16s",
	CodingRGB16S:  "rgb16s",
	CodingRaw8:    "raw8",
	CodingRaw16:   "raw16",
}

// BitsPerPixel returns the average number of bits per pixel, 0 if unknown.
func (c ColorCoding) BitsPerPixel() int {
	return codingBits[c]
}

func (c ColorCoding) String() string {
	if name, ok := codingNames[c]; ok {
		return name
	}
	return fmt.Sprintf("coding(%d)", int(c))
}

// ParseColorCoding parses the name returned by ColorCoding.String.
func ParseColorCoding(name string) (ColorCoding, error) {
	for c, n := range codingNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown color coding %q", name)
}

// ColorFilter is the sensor's native Bayer tiling.
type ColorFilter int

// Color filter patterns.
const (
	FilterNone ColorFilter = iota
	FilterRGGB
	FilterGBRG
	FilterGRBG
	FilterBGGR
)

// VideoMode selects a format/mode pair.
type VideoMode struct {
	Format int `toml:"format" json:"format"`
	Mode   int `toml:"mode" json:"mode"`
}

// ScalableFormat is the format number of the scalable (Format 7) modes.
const ScalableFormat = 7

// Scalable reports whether the mode belongs to the scalable format.
func (m VideoMode) Scalable() bool {
	return m.Format == ScalableFormat
}

func (m VideoMode) String() string {
	return fmt.Sprintf("F%d/M%d", m.Format, m.Mode)
}

// ModeInfo describes the image a fixed video mode produces.
type ModeInfo struct {
	Width  int
	Height int
	Coding ColorCoding
}

// ScalableInfo describes the geometry and packet limits of a scalable mode.
type ScalableInfo struct {
	MaxWidth    int
	MaxHeight   int
	UnitWidth   int // size quantum
	UnitHeight  int
	UnitLeft    int // position quantum
	UnitTop     int
	UnitBytes   int // packet size quantum
	MaxBytes    int // largest packet size
	Codings     []ColorCoding
	ColorFilter ColorFilter
}

// SupportsCoding reports whether c is in the mode's coding list.
func (si ScalableInfo) SupportsCoding(c ColorCoding) bool {
	for _, supported := range si.Codings {
		if supported == c {
			return true
		}
	}
	return false
}

// DequeuePolicy selects blocking or polling dequeue.
type DequeuePolicy int

// Dequeue policies.
const (
	DequeueWait DequeuePolicy = iota
	DequeuePoll
)

// Frame is a filled capture buffer owned by the caller between Dequeue and Enqueue.
type Frame struct {
	Image        []byte // whole DMA buffer, possibly padded past the image
	Index        int    // driver buffer index
	Width        int
	Height       int
	Coding       ColorCoding
	Timestamp    time.Time // DMA completion time
	FramesBehind int       // filled buffers still waiting in the queue
}
