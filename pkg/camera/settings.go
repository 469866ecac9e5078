package camera

import (
	"fmt"
	"math"

	"github.com/smazurov/isocam/pkg/camera/vendor"
	"github.com/smazurov/isocam/pkg/iidc"
)

// ROI is a region of interest in sensor pixels. A zero width or height
// asks for the full sensor in the scalable regime.
type ROI struct {
	Left   int `toml:"left" json:"left"`
	Top    int `toml:"top" json:"top"`
	Width  int `toml:"width" json:"width"`
	Height int `toml:"height" json:"height"`
}

// PixelCoding is the pixel encoding of delivered frames.
type PixelCoding int

// Pixel codings.
const (
	Mono8 PixelCoding = iota
	YUV411
	YUV422
	YUV444
	RGB8
	Mono16
	RGB16
	Mono16S
	RGB16S
	Raw8
	Raw16
)

func (c PixelCoding) driver() iidc.ColorCoding {
	return iidc.ColorCoding(c)
}

func codingFromDriver(c iidc.ColorCoding) PixelCoding {
	return PixelCoding(c)
}

// BitsPerPixel returns the average bits per pixel.
func (c PixelCoding) BitsPerPixel() int {
	return c.driver().BitsPerPixel()
}

func (c PixelCoding) String() string {
	return c.driver().String()
}

// MarshalText implements encoding.TextMarshaler.
func (c PixelCoding) MarshalText() ([]byte, error) {
	if c.BitsPerPixel() == 0 {
		return nil, fmt.Errorf("unknown pixel coding %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *PixelCoding) UnmarshalText(text []byte) error {
	dc, err := iidc.ParseColorCoding(string(text))
	if err != nil {
		return err
	}
	*c = codingFromDriver(dc)
	return nil
}

// PixelTiling is the Bayer pattern of the sensor.
type PixelTiling int

// Pixel tilings.
const (
	TilingNone PixelTiling = iota
	TilingRGGB
	TilingGBRG
	TilingGRBG
	TilingBGGR
)

var tilingNames = []string{"none", "rggb", "gbrg", "grbg", "bggr"}

func tilingFromDriver(f iidc.ColorFilter) PixelTiling {
	return PixelTiling(f)
}

func (t PixelTiling) String() string {
	if t < 0 || int(t) >= len(tilingNames) {
		return fmt.Sprintf("tiling(%d)", int(t))
	}
	return tilingNames[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t PixelTiling) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *PixelTiling) UnmarshalText(text []byte) error {
	for i, name := range tilingNames {
		if name == string(text) {
			*t = PixelTiling(i)
			return nil
		}
	}
	return fmt.Errorf("unknown pixel tiling %q", text)
}

// Settings is the complete caller-visible state of a camera.
//
// Ranges: Gain and WhiteBalance in [0,1], Brightness in [-1,1],
// ColorCoefficients in [-1,2] with each row summing to at most 2 in
// magnitude. FrameRate is in frames per second, Shutter in seconds.
// Tiling is read-only.
type Settings struct {
	Buffers           int         `toml:"buffers" json:"buffers"`
	Gain              float64     `toml:"gain" json:"gain"`
	Brightness        float64     `toml:"brightness" json:"brightness"`
	WhiteBalance      [2]float64  `toml:"white_balance" json:"white_balance"`
	Gamma             bool        `toml:"gamma" json:"gamma"`
	ColorCorrection   bool        `toml:"color_correction" json:"color_correction"`
	ColorCoefficients [9]float64  `toml:"color_coefficients" json:"color_coefficients"`
	ROI               ROI         `toml:"roi" json:"roi"`
	Coding            PixelCoding `toml:"coding" json:"coding"`
	Tiling            PixelTiling `toml:"tiling" json:"tiling"`
	FrameRate         float64     `toml:"frame_rate" json:"frame_rate"`
	Shutter           float64     `toml:"shutter" json:"shutter"`
	ExternalTrigger   bool        `toml:"external_trigger" json:"external_trigger"`
	TriggerPolarity   bool        `toml:"trigger_polarity" json:"trigger_polarity"`
	SingleShot        bool        `toml:"single_shot" json:"single_shot"`
	Running           bool        `toml:"running" json:"running"`
	Shadow            bool        `toml:"shadow" json:"shadow"`
}

// MinBuffers is the smallest capture ring a session allocates.
const MinBuffers = 2

// DefaultSettings returns stopped, free-running VGA mono8 capture at 15 fps.
func DefaultSettings() Settings {
	return Settings{
		Buffers:           4,
		WhiteBalance:      [2]float64{0.5, 0.5},
		ColorCoefficients: vendor.Identity,
		ROI:               ROI{Width: 640, Height: 480},
		Coding:            Mono8,
		FrameRate:         15,
		Shutter:           0.01,
		Shadow:            true,
	}
}

// normalize rejects impossible values and clamps out-of-range ones.
func normalize(s Settings) (Settings, error) {
	for name, v := range map[string]float64{
		"gain":            s.Gain,
		"brightness":      s.Brightness,
		"white balance":   s.WhiteBalance[0],
		"white balance 2": s.WhiteBalance[1],
		"frame rate":      s.FrameRate,
		"shutter":         s.Shutter,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return s, fmt.Errorf("%w: %s is %v", ErrInvalidArgument, name, v)
		}
	}
	for _, v := range s.ColorCoefficients {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return s, fmt.Errorf("%w: colour coefficient is %v", ErrInvalidArgument, v)
		}
	}
	if s.FrameRate <= 0 {
		return s, fmt.Errorf("%w: frame rate %v must be positive", ErrInvalidArgument, s.FrameRate)
	}
	if s.Shutter < 0 {
		return s, fmt.Errorf("%w: shutter %v must not be negative", ErrInvalidArgument, s.Shutter)
	}
	if s.ROI.Left < 0 || s.ROI.Top < 0 || s.ROI.Width < 0 || s.ROI.Height < 0 {
		return s, fmt.Errorf("%w: region of interest %+v", ErrInvalidArgument, s.ROI)
	}
	if s.Coding.BitsPerPixel() == 0 {
		return s, fmt.Errorf("%w: pixel coding %d", ErrInvalidArgument, int(s.Coding))
	}

	s.Buffers = max(s.Buffers, MinBuffers)
	s.Gain = clamp(s.Gain, 0, 1)
	s.Brightness = clamp(s.Brightness, -1, 1)
	s.WhiteBalance[0] = clamp(s.WhiteBalance[0], 0, 1)
	s.WhiteBalance[1] = clamp(s.WhiteBalance[1], 0, 1)
	s.ColorCoefficients = vendor.ClampCoefficients(s.ColorCoefficients)
	return s, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
