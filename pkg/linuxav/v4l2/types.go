//go:build linux

package v4l2

// DeviceInfo describes a V4L2 video capture node.
type DeviceInfo struct {
	DevicePath string
	DeviceName string
	DeviceID   string // Stable identifier (from /dev/v4l/by-id/ or synthetic)
	Caps       uint32
	USB        USBInfo // zero for non-USB devices
}

// USBInfo is the identity of the USB device behind a video node, read from sysfs.
type USBInfo struct {
	VendorID     uint16
	ProductID    uint16
	Serial       string
	Manufacturer string
	Product      string
}

// Valid reports whether the node sits on a USB device.
func (u USBInfo) Valid() bool {
	return u.VendorID != 0 || u.ProductID != 0
}

// FormatInfo contains information about a supported pixel format.
type FormatInfo struct {
	PixelFormat uint32
	FormatName  string
	Emulated    bool
}

// Resolution represents a supported video resolution.
type Resolution struct {
	Width  uint32
	Height uint32
}

// Framerate is a frame interval as a fraction of a second.
type Framerate struct {
	Numerator   uint32
	Denominator uint32
}

// FPS returns the framerate as frames per second.
func (f Framerate) FPS() float64 {
	if f.Numerator == 0 {
		return 0
	}
	return float64(f.Denominator) / float64(f.Numerator)
}

// Pixel formats the camera backends understand.
const (
	PixFmtGrey    = 0x59455247 // 'GREY'
	PixFmtY16     = 0x20363159 // 'Y16 '
	PixFmtYUYV    = 0x56595559 // 'YUYV'
	PixFmtUYVY    = 0x59565955 // 'UYVY'
	PixFmtRGB24   = 0x33424752 // 'RGB3'
	PixFmtSBGGR8  = 0x31384142 // 'BA81'
	PixFmtSGBRG8  = 0x47524247 // 'GBRG'
	PixFmtSGRBG8  = 0x47425247 // 'GRBG'
	PixFmtSRGGB8  = 0x42474752 // 'RGGB'
	PixFmtSBGGR16 = 0x32525942 // 'BYR2'
	PixFmtMJPEG   = 0x47504A4D // 'MJPG'
)

const (
	capVideoCapture = 0x00000001
	capDeviceCaps   = 0x80000000

	fmtFlagEmulated = 0x0002

	frmsizeTypeDiscrete   = 1
	frmsizeTypeContinuous = 2
	frmsizeTypeStepwise   = 3

	frmivalTypeDiscrete   = 1
	frmivalTypeContinuous = 2
	frmivalTypeStepwise   = 3

	bufTypeVideoCapture = 1
)
