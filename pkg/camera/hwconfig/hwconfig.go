// Package hwconfig holds the static per-model hardware configuration of a
// camera and resolves it from files on disk.
package hwconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/smazurov/isocam/pkg/camera/bandwidth"
	"github.com/smazurov/isocam/pkg/iidc"
)

// ErrInvalid is returned for a configuration that cannot drive a camera.
var ErrInvalid = errors.New("hwconfig: invalid configuration")

// Config is the hardware configuration of one camera model. Times are in seconds.
type Config struct {
	BusSpeed   int `toml:"bus_speed" yaml:"bus_speed" json:"bus_speed"` // Mb/s
	Format     int `toml:"format" yaml:"format" json:"format"`
	Mode       int `toml:"mode" yaml:"mode" json:"mode"`
	MaxPackets int `toml:"max_packets" yaml:"max_packets" json:"max_packets"`
	MinPixels  int `toml:"min_pixels" yaml:"min_pixels" json:"min_pixels"`

	TriggerSetup    float64 `toml:"trigger_setup" yaml:"trigger_setup" json:"trigger_setup"`
	ExposureQuantum float64 `toml:"exposure_quantum" yaml:"exposure_quantum" json:"exposure_quantum"`
	ExposureOffset  float64 `toml:"exposure_offset" yaml:"exposure_offset" json:"exposure_offset"`
	LineTime        float64 `toml:"line_time" yaml:"line_time" json:"line_time"`
	TransmitSetup   float64 `toml:"transmit_setup" yaml:"transmit_setup" json:"transmit_setup"`

	Overlap    bool   `toml:"overlap" yaml:"overlap" json:"overlap"`
	DropFrames bool   `toml:"drop_frames" yaml:"drop_frames" json:"drop_frames"`
	DevicePath string `toml:"device_path" yaml:"device_path" json:"device_path"`

	// PacketsPerMbps is the bus frequency factor, see package bandwidth.
	PacketsPerMbps float64 `toml:"packets_per_mbps" yaml:"packets_per_mbps" json:"packets_per_mbps"`
	// TimestampIncludesTransmit is set for host stacks whose DMA timestamp
	// already contains the bus transmit time.
	TimestampIncludesTransmit bool `toml:"timestamp_includes_transmit" yaml:"timestamp_includes_transmit" json:"timestamp_includes_transmit"`

	// Source is the file the configuration was read from, empty for the built-in default.
	Source string `toml:"-" yaml:"-" json:"source,omitempty"`
}

// Default returns the best-effort configuration used when no file matches:
// the first scalable mode at S400.
func Default() Config {
	return Config{
		BusSpeed:        400,
		Format:          iidc.ScalableFormat,
		Mode:            0,
		MaxPackets:      4095,
		ExposureQuantum: 20e-6,
		PacketsPerMbps:  bandwidth.DefaultPacketsPerMbps,
	}
}

// VideoMode returns the format/mode selector.
func (c Config) VideoMode() iidc.VideoMode {
	return iidc.VideoMode{Format: c.Format, Mode: c.Mode}
}

// Scalable reports whether the configuration selects the scalable format.
func (c Config) Scalable() bool {
	return c.VideoMode().Scalable()
}

// ISOSpeed maps BusSpeed onto the driver's speed code.
func (c Config) ISOSpeed() (iidc.ISOSpeed, error) {
	return iidc.SpeedFromMbps(c.BusSpeed)
}

// Bandwidth returns the arithmetic parameters for a scalable mode.
func (c Config) Bandwidth(info iidc.ScalableInfo) bandwidth.Params {
	return bandwidth.Params{
		BusSpeedMbps:   c.BusSpeed,
		PacketsPerMbps: c.PacketsPerMbps,
		MaxPackets:     c.MaxPackets,
		UnitBytes:      info.UnitBytes,
		MaxBytes:       info.MaxBytes,
	}
}

// Validate checks the fields a session depends on.
func (c Config) Validate() error {
	if _, err := c.ISOSpeed(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.MaxPackets < 1 {
		return fmt.Errorf("%w: max_packets must be positive", ErrInvalid)
	}
	if c.PacketsPerMbps <= 0 {
		return fmt.Errorf("%w: packets_per_mbps must be positive", ErrInvalid)
	}
	if c.ExposureQuantum <= 0 {
		return fmt.Errorf("%w: exposure_quantum must be positive", ErrInvalid)
	}
	if c.MinPixels < 0 {
		return fmt.Errorf("%w: min_pixels must not be negative", ErrInvalid)
	}
	for name, v := range map[string]float64{
		"trigger_setup":  c.TriggerSetup,
		"line_time":      c.LineTime,
		"transmit_setup": c.TransmitSetup,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalid, name)
		}
	}
	return nil
}

// Load reads a TOML or YAML file. Fields the file leaves out keep their
// Default values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return Config{}, fmt.Errorf("unsupported config file type: %s", path)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Source = path
	return cfg, nil
}

// Save writes cfg as TOML.
func Save(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}
