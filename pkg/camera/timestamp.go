package camera

import (
	"math"
	"time"

	"github.com/smazurov/isocam/pkg/camera/hwconfig"
)

// Timing is the latency chain between the trigger and DMA completion.
// All times are in seconds.
type Timing struct {
	TriggerSetup  float64
	Shutter       float64
	TransmitSetup float64
	LineTime      float64 // sensor readout per line
	Height        int
	BusTransmit   float64 // time the frame spends on the bus
	Overlap       bool    // readout overlaps bus transmission
	// IncludesTransmit is set when the host stack stamps buffers after
	// transmission, so BusTransmit is subtracted once more.
	IncludesTransmit bool
}

// Latency returns the delay from trigger to DMA completion.
func (t Timing) Latency() float64 {
	readout := t.LineTime * float64(t.Height)
	transfer := readout + t.BusTransmit
	if t.Overlap {
		transfer = math.Max(readout, t.BusTransmit)
	}
	latency := t.TriggerSetup + t.Shutter + t.TransmitSetup + transfer
	if t.IncludesTransmit {
		latency += t.BusTransmit
	}
	return latency
}

// EstimateTriggerTime back-dates a DMA timestamp to the moment the
// exposure was triggered.
func EstimateTriggerTime(dma time.Time, t Timing) time.Time {
	if dma.IsZero() {
		return dma
	}
	return dma.Add(-time.Duration(t.Latency() * float64(time.Second)))
}

// timing builds the latency chain from the configuration and the shadow.
func timing(cfg hwconfig.Config, shadow Settings, busTransmit float64) Timing {
	return Timing{
		TriggerSetup:     cfg.TriggerSetup,
		Shutter:          shadow.Shutter,
		TransmitSetup:    cfg.TransmitSetup,
		LineTime:         cfg.LineTime,
		Height:           shadow.ROI.Height,
		BusTransmit:      busTransmit,
		Overlap:          cfg.Overlap,
		IncludesTransmit: cfg.TimestampIncludesTransmit,
	}
}

// Timestamp returns the estimated trigger time of the last acquired
// frame, or the zero time before the first frame.
func (s *Session) Timestamp() (time.Time, error) {
	if err := s.alive(); err != nil {
		return time.Time{}, err
	}
	cfg, err := s.hardwareConfig()
	if err != nil {
		return time.Time{}, err
	}
	bw := cfg.Bandwidth(s.scalable)
	return EstimateTriggerTime(s.dmaTime, timing(cfg, s.shadow, bw.TransmitSeconds(s.shadow.FrameRate))), nil
}

// DMATimestamp returns the raw completion time of the last acquired frame.
func (s *Session) DMATimestamp() (time.Time, error) {
	if err := s.alive(); err != nil {
		return time.Time{}, err
	}
	return s.dmaTime, nil
}
