package hwconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/smazurov/isocam/pkg/iidc"
)

// Source resolves the configuration of a camera.
type Source interface {
	Resolve(id iidc.Identity) (Config, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(id iidc.Identity) (Config, error)

// Resolve calls f(id).
func (f SourceFunc) Resolve(id iidc.Identity) (Config, error) {
	return f(id)
}

// Static returns a Source that always resolves to cfg.
func Static(cfg Config) Source {
	return SourceFunc(func(iidc.Identity) (Config, error) {
		return cfg, nil
	})
}

var extensions = []string{".toml", ".yaml"}

// Resolver looks configuration files up on disk by camera identity.
//
// Keys are tried from most to least specific: the chip GUID as 16 hex
// digits, then the model, then the vendor. For each key the default
// directory is searched before the override directory. The first file
// found wins.
type Resolver struct {
	DefaultDir  string
	OverrideDir string
	// Fallback is returned when no file matches. Nil means Default().
	Fallback *Config
	Logger   *slog.Logger
}

// Candidates lists the paths Resolve tries, in order.
func (r *Resolver) Candidates(id iidc.Identity) []string {
	var keys []string
	keys = append(keys, fmt.Sprintf("%016x", id.GUID))
	if name := sanitize(id.Model); name != "" {
		keys = append(keys, name)
	}
	if name := sanitize(id.Vendor); name != "" {
		keys = append(keys, name)
	}

	var dirs []string
	for _, dir := range []string{r.DefaultDir, r.OverrideDir} {
		if dir != "" {
			dirs = append(dirs, dir)
		}
	}

	var paths []string
	for _, key := range keys {
		for _, dir := range dirs {
			for _, ext := range extensions {
				paths = append(paths, filepath.Join(dir, key+ext))
			}
		}
	}
	return paths
}

// Resolve returns the first matching file's configuration. A missing file
// is skipped, a malformed one is an error. With no match the fallback is
// returned and the camera runs degraded.
func (r *Resolver) Resolve(id iidc.Identity) (Config, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for _, path := range r.Candidates(id) {
		cfg, err := Load(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Config{}, err
		}
		logger.Debug("Resolved hardware configuration", "camera", id.String(), "path", path)
		return cfg, nil
	}

	cfg := Default()
	if r.Fallback != nil {
		cfg = *r.Fallback
		cfg.Source = ""
	}
	logger.Warn("No hardware configuration found, using defaults",
		"camera", id.String(), "vendor", id.Vendor, "model", id.Model, "format", cfg.Format, "mode", cfg.Mode)
	return cfg, nil
}

func sanitize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(name)
}
