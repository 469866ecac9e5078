package camera

import (
	"errors"
	"testing"

	"github.com/smazurov/isocam/pkg/camera/vendor"
	"github.com/smazurov/isocam/pkg/iidc"
	"github.com/smazurov/isocam/pkg/iidc/sim"
)

func avtCamera() []sim.Option {
	return []sim.Option{
		sim.WithIdentity(iidc.Identity{GUID: 0x000a47011209ab01, Vendor: "AVT", Model: "Guppy F-080C"}),
		sim.WithAdvancedRegisters(vendor.AVTRegisters()),
	}
}

func TestAdvancedCapabilities(t *testing.T) {
	s, _ := newScalable(t, avtCamera()...)
	caps, err := s.Capabilities()
	if err != nil {
		t.Fatal(err)
	}
	want := Capabilities{SingleShot: true, Gamma: true, GammaMax: 4095, ColorCorrection: true, Tiling: TilingRGGB}
	if caps != want {
		t.Errorf("Capabilities() = %+v, want %+v", caps, want)
	}
}

func TestNoAdvancedFamily(t *testing.T) {
	s, _ := newScalable(t, sim.WithAdvancedRegisters(vendor.AVTRegisters()))
	caps, _ := s.Capabilities()
	if caps.Gamma || caps.ColorCorrection {
		t.Errorf("unknown vendor reported gamma=%t colour=%t", caps.Gamma, caps.ColorCorrection)
	}
	if err := s.SetGamma(true); !errors.Is(err, ErrFeatureUnavailable) {
		t.Errorf("SetGamma(true) error = %v, want ErrFeatureUnavailable", err)
	}
	if on, _ := s.Gamma(); !on {
		t.Error("requested gamma should be stored")
	}
	if err := s.SetColorCorrection(false); err != nil {
		t.Errorf("SetColorCorrection(false) error: %v", err)
	}
	if err := s.SetColorCoefficients(vendor.Identity); err != nil {
		t.Errorf("SetColorCoefficients(identity) error: %v", err)
	}
}

func TestGamma(t *testing.T) {
	s, cam := newScalable(t, avtCamera()...)
	if err := s.SetGamma(true); err != nil {
		t.Fatalf("SetGamma() error: %v", err)
	}
	if cam.Register(vendor.AVTLUTControl)&(1<<(31-6)) == 0 {
		t.Error("LUT enable bit not set")
	}
	if err := s.SetShadowMode(false); err != nil {
		t.Fatal(err)
	}
	if on, _ := s.Gamma(); !on {
		t.Error("live Gamma() = false")
	}
}

func TestColorCorrection(t *testing.T) {
	s, cam := newScalable(t, avtCamera()...)
	if err := s.SetColorCorrection(true); err != nil {
		t.Fatal(err)
	}
	if cam.Register(vendor.AVTColourControl)&(1<<(31-6)) == 0 {
		t.Error("colour correction enable bit not set")
	}

	in := [9]float64{
		1.5, -0.25, 0,
		3, 0, 0,
		0, 0, 1,
	}
	if err := s.SetColorCoefficients(in); err != nil {
		t.Fatalf("SetColorCoefficients() error: %v", err)
	}
	got, _ := s.ColorCoefficients()
	want := vendor.ClampCoefficients(in)
	for i := range want {
		if !near(got[i], want[i], 1e-3) {
			t.Errorf("coefficient %d = %v, want %v", i, got[i], want[i])
		}
	}
	if got[3] != 2 {
		t.Errorf("coefficient 3 = %v, want clamped to 2", got[3])
	}
	if reg := int32(cam.Register(vendor.AVTColourFirst)); reg != 1500 {
		t.Errorf("first coefficient register = %d, want 1500", reg)
	}
}

func TestFixedRegimeHasNoTiling(t *testing.T) {
	s, _ := newFixed(t, avtCamera()...)
	caps, _ := s.Capabilities()
	if caps.Tiling != TilingNone {
		t.Errorf("fixed regime tiling = %s, want none", caps.Tiling)
	}
	if !caps.Gamma {
		t.Error("advanced features should be probed in the fixed regime too")
	}
}
