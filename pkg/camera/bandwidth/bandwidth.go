// Package bandwidth converts between frame rate, packets per frame and
// packet size on an isochronous bus.
//
// The bus issues one packet per cycle. The cycle frequency is modelled as
// linear in the raw link speed, PacketsPerMbps times the speed in Mb/s,
// which gives 8000 packets/s at S400 with the customary factor of 20.
package bandwidth

import "math"

// DefaultPacketsPerMbps is the customary bus frequency factor.
const DefaultPacketsPerMbps = 20

// Params are the quantization constants of one camera and bus.
type Params struct {
	BusSpeedMbps   int
	PacketsPerMbps float64
	MaxPackets     int // 0 means unlimited
	UnitBytes      int // packet size granularity
	MaxBytes       int // largest packet, 0 means unlimited
}

// BusFrequency returns the packet issue frequency in packets per second.
func (p Params) BusFrequency() float64 {
	factor := p.PacketsPerMbps
	if factor <= 0 {
		factor = DefaultPacketsPerMbps
	}
	return factor * float64(p.BusSpeedMbps)
}

// FrameBytes returns the payload of one frame.
func FrameBytes(width, height, bitsPerPixel int) int64 {
	return int64(width) * int64(height) * int64(bitsPerPixel) / 8
}

// PacketsForRate returns the packet count per frame that yields rate.
// A non-positive rate asks for the slowest setting, MaxPackets.
func (p Params) PacketsForRate(rate float64) int {
	if rate <= 0 || math.IsNaN(rate) {
		return p.maxPackets()
	}
	n := math.Round(p.BusFrequency() / rate)
	if n > math.MaxInt32 {
		n = math.MaxInt32
	}
	return p.clampPackets(int(n))
}

// PacketSize returns the bytes per packet needed to move a width x height
// frame in n packets: the frame bytes divided by n, rounded up to the unit
// size and kept within [UnitBytes, MaxBytes]. The division truncates, so
// n packets may fall short of the frame by less than n bytes.
func (p Params) PacketSize(n, width, height, bitsPerPixel int) int {
	n = p.clampPackets(n)
	unit := p.unit()
	size := int(FrameBytes(width, height, bitsPerPixel) / int64(n))
	size = (size + unit - 1) / unit * unit
	if size < unit {
		size = unit
	}
	if p.MaxBytes > 0 {
		limit := p.MaxBytes / unit * unit
		if limit < unit {
			limit = unit
		}
		if size > limit {
			size = limit
		}
	}
	return size
}

// PacketsForSize returns the packet count needed to move a frame with
// packets of size bytes. A zero size yields MaxPackets.
func (p Params) PacketsForSize(size, width, height, bitsPerPixel int) int {
	if size <= 0 {
		return p.maxPackets()
	}
	frame := FrameBytes(width, height, bitsPerPixel)
	n := (frame + int64(size) - 1) / int64(size)
	if n < 1 {
		n = 1
	}
	if n > math.MaxInt32 {
		n = math.MaxInt32
	}
	return int(n)
}

// RateForPackets returns the frame rate achieved with n packets per frame.
func (p Params) RateForPackets(n int) float64 {
	return p.BusFrequency() / float64(p.clampPackets(n))
}

// TransmitSeconds returns how long the bus needs to move one frame at the
// packet count implied by rate.
func (p Params) TransmitSeconds(rate float64) float64 {
	freq := p.BusFrequency()
	if freq <= 0 {
		return 0
	}
	return float64(p.PacketsForRate(rate)) / freq
}

func (p Params) unit() int {
	if p.UnitBytes < 1 {
		return 1
	}
	return p.UnitBytes
}

func (p Params) maxPackets() int {
	if p.MaxPackets < 1 {
		return math.MaxInt32
	}
	return p.MaxPackets
}

func (p Params) clampPackets(n int) int {
	if n < 1 {
		return 1
	}
	if limit := p.maxPackets(); n > limit {
		return limit
	}
	return n
}
