package camera

import "fmt"

// Capabilities are probed once per connect.
type Capabilities struct {
	SingleShot      bool        `json:"single_shot"`
	Gamma           bool        `json:"gamma"`
	GammaMax        int         `json:"gamma_max"`
	ColorCorrection bool        `json:"color_correction"`
	Tiling          PixelTiling `json:"tiling"`
}

// Capabilities returns what the connected camera supports.
func (s *Session) Capabilities() (Capabilities, error) {
	if err := s.alive(); err != nil {
		return Capabilities{}, err
	}
	return s.caps, nil
}

// probe reads the static capability flags. The advanced block belongs to
// the vendor family; a failed inquiry there only means not capable.
func (s *Session) probe() (Capabilities, error) {
	basic, err := s.cam.Capabilities()
	if err != nil {
		return Capabilities{}, fmt.Errorf("read basic capabilities: %w", err)
	}

	caps := Capabilities{SingleShot: basic.OneShot}
	if basic.AdvancedFeatures {
		adv, err := s.family.Probe(s.cam)
		if err != nil {
			s.logger.Debug("Advanced feature inquiry failed", "family", s.family.Name(), "error", err)
		} else {
			caps.Gamma = adv.Gamma
			caps.GammaMax = adv.GammaMax
			caps.ColorCorrection = adv.ColorCorrection
		}
	}
	if s.regime == RegimeScalable {
		caps.Tiling = tilingFromDriver(s.scalable.ColorFilter)
	}
	return caps, nil
}
