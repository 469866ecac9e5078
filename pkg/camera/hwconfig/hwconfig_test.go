package hwconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smazurov/isocam/pkg/iidc"
)

var testID = iidc.Identity{GUID: 0x000a4701120a3b7c, Vendor: "Allied Vision", Model: "Guppy F/080C"}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
	if !cfg.Scalable() {
		t.Error("Default() should select the scalable format")
	}
	if got := cfg.Bandwidth(iidc.ScalableInfo{}).BusFrequency(); got != 8000 {
		t.Errorf("default bus frequency = %v, want 8000", got)
	}
}

func TestCandidatesOrder(t *testing.T) {
	r := &Resolver{DefaultDir: "/usr/share/isocam", OverrideDir: "/etc/isocam"}
	got := r.Candidates(testID)
	want := []string{
		"/usr/share/isocam/000a4701120a3b7c.toml",
		"/usr/share/isocam/000a4701120a3b7c.yaml",
		"/etc/isocam/000a4701120a3b7c.toml",
		"/etc/isocam/000a4701120a3b7c.yaml",
		"/usr/share/isocam/guppy_f_080c.toml",
		"/usr/share/isocam/guppy_f_080c.yaml",
		"/etc/isocam/guppy_f_080c.toml",
		"/etc/isocam/guppy_f_080c.yaml",
		"/usr/share/isocam/allied_vision.toml",
		"/usr/share/isocam/allied_vision.yaml",
		"/etc/isocam/allied_vision.toml",
		"/etc/isocam/allied_vision.yaml",
	}
	if len(got) != len(want) {
		t.Fatalf("Candidates() returned %d paths, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Candidates()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestResolvePrecedence(t *testing.T) {
	defDir := t.TempDir()
	overDir := t.TempDir()

	writeFile(t, filepath.Join(defDir, "allied_vision.toml"), "bus_speed = 200\n")
	writeFile(t, filepath.Join(overDir, "guppy_f_080c.yaml"), "bus_speed: 800\nformat: 0\nmode: 5\n")

	r := &Resolver{DefaultDir: defDir, OverrideDir: overDir}
	cfg, err := r.Resolve(testID)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if cfg.BusSpeed != 800 {
		t.Errorf("model file should win over vendor file, got bus speed %d", cfg.BusSpeed)
	}
	if cfg.Scalable() {
		t.Error("YAML file selected a fixed mode")
	}
	if cfg.MaxPackets != 4095 {
		t.Errorf("unset fields should keep defaults, got max_packets %d", cfg.MaxPackets)
	}
	if cfg.Source != filepath.Join(overDir, "guppy_f_080c.yaml") {
		t.Errorf("Source = %q", cfg.Source)
	}

	writeFile(t, filepath.Join(defDir, "000a4701120a3b7c.toml"), "bus_speed = 100\nline_time = 2.5e-5\n")
	cfg, err = r.Resolve(testID)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if cfg.BusSpeed != 100 || cfg.LineTime != 2.5e-5 {
		t.Errorf("GUID file should win, got %+v", cfg)
	}
}

func TestResolveFallback(t *testing.T) {
	r := &Resolver{DefaultDir: t.TempDir()}
	cfg, err := r.Resolve(testID)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if cfg != Default() {
		t.Errorf("Resolve() with no files = %+v, want Default()", cfg)
	}

	fixed := Default()
	fixed.Format, fixed.Mode = 0, 0
	r.Fallback = &fixed
	cfg, _ = r.Resolve(testID)
	if cfg.Scalable() {
		t.Error("Fallback not used")
	}
}

func TestResolveMalformed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "allied_vision.toml"), "bus_speed = \"fast\"\n")

	r := &Resolver{DefaultDir: dir}
	if _, err := r.Resolve(testID); err == nil {
		t.Error("Resolve() should fail on a malformed file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "bad bus speed", mutate: func(c *Config) { c.BusSpeed = 500 }},
		{name: "no packets", mutate: func(c *Config) { c.MaxPackets = 0 }},
		{name: "zero exposure quantum", mutate: func(c *Config) { c.ExposureQuantum = 0 }},
		{name: "zero bus factor", mutate: func(c *Config) { c.PacketsPerMbps = 0 }},
		{name: "negative line time", mutate: func(c *Config) { c.LineTime = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cam.toml")
	cfg := Default()
	cfg.DropFrames = true
	cfg.TimestampIncludesTransmit = true
	cfg.DevicePath = "/dev/fw1"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	cfg.Source = path
	if got != cfg {
		t.Errorf("Load(Save(cfg)) = %+v, want %+v", got, cfg)
	}
}
