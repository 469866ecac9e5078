//go:build linux

package uvc

import (
	"fmt"
	"math"
	"slices"

	"github.com/smazurov/isocam/pkg/iidc"
	"github.com/smazurov/isocam/pkg/linuxav/v4l2"
)

// mode is one fixed video mode backed by a V4L2 format and size.
type mode struct {
	info   iidc.ModeInfo
	pixfmt uint32
	rates  []float64 // ascending
}

type pixelFormat struct {
	pixfmt uint32
	coding iidc.ColorCoding
}

// pixelFormats maps the uncompressed V4L2 formats onto IIDC codings, in
// order of preference when two formats give the same coding.
var pixelFormats = []pixelFormat{
	{v4l2.PixFmtGrey, iidc.CodingMono8},
	{v4l2.PixFmtY16, iidc.CodingMono16},
	{v4l2.PixFmtUYVY, iidc.CodingYUV422},
	{v4l2.PixFmtYUYV, iidc.CodingYUV422},
	{v4l2.PixFmtRGB24, iidc.CodingRGB8},
	{v4l2.PixFmtSRGGB8, iidc.CodingRaw8},
	{v4l2.PixFmtSGRBG8, iidc.CodingRaw8},
	{v4l2.PixFmtSGBRG8, iidc.CodingRaw8},
	{v4l2.PixFmtSBGGR8, iidc.CodingRaw8},
	{v4l2.PixFmtSBGGR16, iidc.CodingRaw16},
}

func codingOf(pixfmt uint32) (iidc.ColorCoding, bool) {
	for _, pf := range pixelFormats {
		if pf.pixfmt == pixfmt {
			return pf.coding, true
		}
	}
	return 0, false
}

func preference(pixfmt uint32) int {
	return slices.IndexFunc(pixelFormats, func(pf pixelFormat) bool { return pf.pixfmt == pixfmt })
}

// formatFor places a resolution in the fixed format an IIDC camera would
// use for it: VGA and below in format 0, up to XGA in format 1, larger in
// format 2.
func formatFor(width, height uint32) int {
	switch area := width * height; {
	case area <= 640*480:
		return 0
	case area <= 1024*768:
		return 1
	default:
		return 2
	}
}

// probeModes enumerates the fixed modes of a device. Compressed formats
// and sizes without a frame interval are left out. Within a format, modes
// are numbered by ascending size.
func probeModes(q querier) (map[iidc.VideoMode]mode, error) {
	formats, err := q.Formats()
	if err != nil {
		return nil, fmt.Errorf("list formats: %w", err)
	}

	type key struct {
		width, height uint32
		coding        iidc.ColorCoding
	}
	found := make(map[key]mode)
	for _, f := range formats {
		coding, ok := codingOf(f.PixelFormat)
		if !ok || f.Emulated {
			continue
		}
		sizes, err := q.Resolutions(f.PixelFormat)
		if err != nil {
			return nil, fmt.Errorf("list sizes of %s: %w", v4l2.FormatFourCC(f.PixelFormat), err)
		}
		for _, size := range sizes {
			k := key{size.Width, size.Height, coding}
			if prev, exists := found[k]; exists && preference(prev.pixfmt) <= preference(f.PixelFormat) {
				continue
			}
			intervals, err := q.Framerates(f.PixelFormat, size.Width, size.Height)
			if err != nil {
				return nil, fmt.Errorf("list frame rates of %s %dx%d: %w",
					v4l2.FormatFourCC(f.PixelFormat), size.Width, size.Height, err)
			}
			rates := fpsTable(intervals)
			if len(rates) == 0 {
				continue
			}
			found[k] = mode{
				info:   iidc.ModeInfo{Width: int(size.Width), Height: int(size.Height), Coding: coding},
				pixfmt: f.PixelFormat,
				rates:  rates,
			}
		}
	}

	keys := make([]key, 0, len(found))
	for k := range found {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b key) int {
		if d := int(a.width*a.height) - int(b.width*b.height); d != 0 {
			return d
		}
		if d := int(a.width) - int(b.width); d != 0 {
			return d
		}
		return int(a.coding) - int(b.coding)
	})

	modes := make(map[iidc.VideoMode]mode, len(keys))
	next := make(map[int]int)
	for _, k := range keys {
		format := formatFor(k.width, k.height)
		modes[iidc.VideoMode{Format: format, Mode: next[format]}] = found[k]
		next[format]++
	}
	return modes, nil
}

// fpsTable turns frame intervals into a sorted, duplicate-free rate table.
func fpsTable(intervals []v4l2.Framerate) []float64 {
	var rates []float64
	for _, iv := range intervals {
		fps := iv.FPS()
		if fps <= 0 {
			continue
		}
		fps = math.Round(fps*1000) / 1000
		if !slices.Contains(rates, fps) {
			rates = append(rates, fps)
		}
	}
	slices.Sort(rates)
	return rates
}
