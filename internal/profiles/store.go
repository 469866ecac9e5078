// Package profiles persists per-camera settings in a TOML file.
//
//	version = 1
//
//	[cameras.000a470100c0ffee]
//	buffers = 4
//	gain = 0.25
//	coding = "mono8"
//	frame_rate = 15.0
//	roi = { left = 0, top = 0, width = 640, height = 480 }
package profiles

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/isocam/pkg/camera"
)

// CurrentVersion is written to new files.
const CurrentVersion = 1

// File is the on-disk layout.
type File struct {
	Version int                        `toml:"version"`
	Cameras map[string]camera.Settings `toml:"cameras"`
}

// Store holds the profiles of one file in memory. Writes go straight to
// disk. Store is safe for concurrent use.
type Store struct {
	path string

	mu   sync.RWMutex
	file File
}

// NewTOML creates a store backed by path. Nothing is read until Load.
func NewTOML(path string) *Store {
	if path == "" {
		path = "profiles.toml"
	}
	return &Store{
		path: path,
		file: File{Version: CurrentVersion, Cameras: make(map[string]camera.Settings)},
	}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load reads the file, replacing everything held in memory. A missing
// file leaves the store empty.
func (s *Store) Load() error {
	f, err := Read(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.file = f
	s.mu.Unlock()
	return nil
}

// Replace swaps in a file read elsewhere, as the reload watcher does.
func (s *Store) Replace(f File) {
	if f.Cameras == nil {
		f.Cameras = make(map[string]camera.Settings)
	}
	s.mu.Lock()
	s.file = f
	s.mu.Unlock()
}

// Read parses a profile file. A missing file reads as empty.
func Read(path string) (File, error) {
	f := File{Version: CurrentVersion, Cameras: make(map[string]camera.Settings)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("failed to read profiles: %w", err)
	}
	if err := toml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("failed to parse profiles %s: %w", path, err)
	}
	if f.Version == 0 {
		f.Version = CurrentVersion
	}
	if f.Version > CurrentVersion {
		return f, fmt.Errorf("profiles %s: unsupported version %d", path, f.Version)
	}
	if f.Cameras == nil {
		f.Cameras = make(map[string]camera.Settings)
	}
	return f, nil
}

// Get returns the profile of a camera.
func (s *Store) Get(cameraID string) (camera.Settings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	settings, ok := s.file.Cameras[cameraID]
	return settings, ok
}

// IDs lists the cameras that have a profile, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.file.Cameras))
}

// Put stores a camera's settings and saves the file.
func (s *Store) Put(cameraID string, settings camera.Settings) error {
	if cameraID == "" {
		return errors.New("camera ID cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file.Cameras[cameraID] = settings
	return s.save()
}

// Delete removes a camera's profile and saves the file.
func (s *Store) Delete(cameraID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.file.Cameras[cameraID]; !ok {
		return fmt.Errorf("no profile for camera %s", cameraID)
	}
	delete(s.file.Cameras, cameraID)
	return s.save()
}

// Save writes the file.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// save writes to a temporary file and renames it over the target, so a
// reader never sees a half-written profile.
func (s *Store) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	data, err := toml.Marshal(s.file)
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	return nil
}
