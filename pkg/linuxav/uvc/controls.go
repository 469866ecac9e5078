//go:build linux

package uvc

import (
	"github.com/blackjack/webcam"

	"github.com/smazurov/isocam/pkg/iidc"
)

// V4L2 control IDs from linux/v4l2-controls.h.
const (
	cidBrightness       webcam.ControlID = 0x00980900
	cidSaturation       webcam.ControlID = 0x00980902
	cidHue              webcam.ControlID = 0x00980903
	cidAutoWhiteBalance webcam.ControlID = 0x0098090c
	cidRedBalance       webcam.ControlID = 0x0098090e
	cidBlueBalance      webcam.ControlID = 0x0098090f
	cidGamma            webcam.ControlID = 0x00980910
	cidExposure         webcam.ControlID = 0x00980911
	cidAutoGain         webcam.ControlID = 0x00980912
	cidGain             webcam.ControlID = 0x00980913
	cidWBTemperature    webcam.ControlID = 0x0098091a
	cidSharpness        webcam.ControlID = 0x0098091b
	cidExposureAuto     webcam.ControlID = 0x009a0901
	cidExposureAbsolute webcam.ControlID = 0x009a0902
	cidFocusAbsolute    webcam.ControlID = 0x009a090a
	cidFocusAuto        webcam.ControlID = 0x009a090c
	cidIrisAbsolute     webcam.ControlID = 0x009a0911
)

// Values of the exposure auto menu.
const (
	exposureManual           = 1
	exposureAperturePriority = 3
)

// autoControl switches a feature between automatic and manual control.
type autoControl struct {
	id      webcam.ControlID
	on, off int32
}

// binding ties a feature to the V4L2 controls implementing it. The first
// value control the device has is used.
type binding struct {
	values []webcam.ControlID
	auto   *autoControl
}

var bindings = map[iidc.Feature]binding{
	iidc.FeatureBrightness: {values: []webcam.ControlID{cidBrightness}},
	iidc.FeatureSaturation: {values: []webcam.ControlID{cidSaturation}},
	iidc.FeatureHue:        {values: []webcam.ControlID{cidHue}},
	iidc.FeatureGamma:      {values: []webcam.ControlID{cidGamma}},
	iidc.FeatureSharpness:  {values: []webcam.ControlID{cidSharpness}},
	iidc.FeatureExposure:   {values: []webcam.ControlID{cidExposure}},
	iidc.FeatureIris:       {values: []webcam.ControlID{cidIrisAbsolute}},
	iidc.FeatureGain: {
		values: []webcam.ControlID{cidGain},
		auto:   &autoControl{id: cidAutoGain, on: 1, off: 0},
	},
	iidc.FeatureShutter: {
		values: []webcam.ControlID{cidExposureAbsolute},
		auto:   &autoControl{id: cidExposureAuto, on: exposureAperturePriority, off: exposureManual},
	},
	iidc.FeatureFocus: {
		values: []webcam.ControlID{cidFocusAbsolute},
		auto:   &autoControl{id: cidFocusAuto, on: 1, off: 0},
	},
	// U/B is the blue balance, V/R the red one. Cameras with only a colour
	// temperature control carry it in both halves.
	iidc.FeatureWhiteBalance: {
		values: []webcam.ControlID{cidBlueBalance, cidWBTemperature},
		auto:   &autoControl{id: cidAutoWhiteBalance, on: 1, off: 0},
	},
}

// control is a present V4L2 control. Registers are offset so that the
// control's minimum reads as zero.
type control struct {
	id       webcam.ControlID
	min, max int32
}

func (c control) register(v int32) uint32 {
	return uint32(v - c.min)
}

func (c control) value(reg uint32) int32 {
	return int32(reg) + c.min
}

func (c control) span() uint32 {
	return uint32(c.max - c.min)
}

// resolve picks, for every bound feature, the control the device has.
func resolve(present map[webcam.ControlID]webcam.Control) map[iidc.Feature]control {
	out := make(map[iidc.Feature]control)
	for f, b := range bindings {
		for _, id := range b.values {
			if c, ok := present[id]; ok {
				out[f] = control{id: id, min: c.Min, max: c.Max}
				break
			}
		}
	}
	return out
}
