//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"
)

// GetFormats lists the capture pixel formats of a device, emulated ones
// included.
func GetFormats(devicePath string) ([]FormatInfo, error) {
	n, err := openNode(devicePath)
	if err != nil {
		return nil, err
	}
	defer n.Close()

	var formats []FormatInfo

	for i := uint32(0); ; i++ {
		desc := v4l2Fmtdesc{
			index: i,
			typ:   bufTypeVideoCapture,
		}

		if err := n.ioctl(vidiocEnumFmt, unsafe.Pointer(&desc)); err != nil {
			if endOfList(err) {
				break
			}
			return nil, fmt.Errorf("enumerate format %d of %s: %w", i, devicePath, err)
		}

		formats = append(formats, FormatInfo{
			PixelFormat: desc.pixelformat,
			FormatName:  cstr(desc.description[:]),
			Emulated:    desc.flags&fmtFlagEmulated != 0,
		})
	}

	return formats, nil
}

// GetResolutions lists the frame sizes of a pixel format. Stepwise ranges
// are reduced to the common sizes on their grid.
func GetResolutions(devicePath string, pixelFormat uint32) ([]Resolution, error) {
	n, err := openNode(devicePath)
	if err != nil {
		return nil, err
	}
	defer n.Close()

	var resolutions []Resolution

	for i := uint32(0); ; i++ {
		frmsize := v4l2Frmsizeenum{
			index:       i,
			pixelFormat: pixelFormat,
		}

		if err := n.ioctl(vidiocEnumFramesizes, unsafe.Pointer(&frmsize)); err != nil {
			if endOfList(err) {
				break
			}
			// Drivers without size enumeration answer ENOTTY.
			if errors.Is(err, syscall.ENOTTY) {
				return nil, nil
			}
			return nil, fmt.Errorf("enumerate size %d of %s %s: %w", i, devicePath, FormatFourCC(pixelFormat), err)
		}

		switch frmsize.typ {
		case frmsizeTypeDiscrete:
			resolutions = append(resolutions, Resolution{
				Width:  frmsize.discrete.width,
				Height: frmsize.discrete.height,
			})
		case frmsizeTypeContinuous, frmsizeTypeStepwise:
			stepwise := (*v4l2FrmsizeStepwise)(unsafe.Pointer(&frmsize.discrete))
			return stepwiseResolutions(*stepwise), nil // Only one stepwise entry
		}
	}

	return resolutions, nil
}

// GetFramerates lists the frame intervals of a format and size. Stepwise
// ranges are reduced to the common rates inside them.
func GetFramerates(devicePath string, pixelFormat uint32, width, height uint32) ([]Framerate, error) {
	n, err := openNode(devicePath)
	if err != nil {
		return nil, err
	}
	defer n.Close()

	var framerates []Framerate

	for i := uint32(0); ; i++ {
		frmival := v4l2Frmivalenum{
			index:       i,
			pixelFormat: pixelFormat,
			width:       width,
			height:      height,
		}

		if err := n.ioctl(vidiocEnumFrameintervals, unsafe.Pointer(&frmival)); err != nil {
			if endOfList(err) {
				break
			}
			return nil, fmt.Errorf("enumerate interval %d of %s %s %dx%d: %w", i, devicePath, FormatFourCC(pixelFormat), width, height, err)
		}

		switch frmival.typ {
		case frmivalTypeDiscrete:
			framerates = append(framerates, Framerate{
				Numerator:   frmival.discrete.numerator,
				Denominator: frmival.discrete.denominator,
			})
		case frmivalTypeContinuous, frmivalTypeStepwise:
			stepwise := (*v4l2FrmivalStepwise)(unsafe.Pointer(&frmival.discrete))
			return stepwiseFramerates(
				Framerate{Numerator: stepwise.min.numerator, Denominator: stepwise.min.denominator},
				Framerate{Numerator: stepwise.max.numerator, Denominator: stepwise.max.denominator},
			), nil
		}
	}

	return framerates, nil
}

var commonResolutions = []Resolution{
	{320, 240},  // QVGA
	{640, 480},  // VGA
	{800, 600},  // SVGA
	{1024, 768}, // XGA
	{1280, 720}, // HD
	{1280, 960},
	{1280, 1024}, // SXGA
	{1600, 1200}, // UXGA
	{1920, 1080}, // Full HD
	{1920, 1200}, // WUXGA
	{2560, 1440}, // QHD
	{3840, 2160}, // 4K UHD
}

// stepwiseResolutions picks the common resolutions inside a stepwise range
// that land on its step grid.
func stepwiseResolutions(sw v4l2FrmsizeStepwise) []Resolution {
	onGrid := func(v, lo, step uint32) bool {
		return step <= 1 || (v-lo)%step == 0
	}
	var resolutions []Resolution
	for _, res := range commonResolutions {
		if res.Width < sw.minWidth || res.Width > sw.maxWidth ||
			res.Height < sw.minHeight || res.Height > sw.maxHeight {
			continue
		}
		if !onGrid(res.Width, sw.minWidth, sw.stepWidth) || !onGrid(res.Height, sw.minHeight, sw.stepHeight) {
			continue
		}
		resolutions = append(resolutions, res)
	}
	return resolutions
}

var commonRates = []uint32{60, 50, 30, 25, 20, 15, 10, 5}

// stepwiseFramerates picks the common rates between the shortest and the
// longest frame interval.
func stepwiseFramerates(shortest, longest Framerate) []Framerate {
	hi, lo := shortest.FPS(), longest.FPS()
	var framerates []Framerate
	for _, fps := range commonRates {
		f := float64(fps)
		if (hi == 0 || f <= hi) && f >= lo {
			framerates = append(framerates, Framerate{Numerator: 1, Denominator: fps})
		}
	}
	return framerates
}

// FormatFourCC converts a 4-byte pixel format to a human-readable string.
func FormatFourCC(format uint32) string {
	return string([]byte{
		byte(format),
		byte(format >> 8),
		byte(format >> 16),
		byte(format >> 24),
	})
}
