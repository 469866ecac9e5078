package cmd

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smazurov/isocam/internal/backend"
	"github.com/smazurov/isocam/internal/config"
	"github.com/smazurov/isocam/internal/logging"
	"github.com/smazurov/isocam/internal/service"
	"github.com/smazurov/isocam/pkg/camera/hwconfig"
	"github.com/smazurov/isocam/pkg/iidc"
)

// busFlags are the flags every camera command shares.
type busFlags struct {
	configFile  string
	simulate    bool
	simCount    int
	devices     []string
	configDir   string
	overrideDir string
	logJSON     bool
}

func (f *busFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configFile, "config", "isocam.toml", "Configuration file to read logging settings from")
	cmd.Flags().BoolVar(&f.simulate, "simulate", false, "Use a simulated camera bus")
	cmd.Flags().IntVar(&f.simCount, "sim-count", 2, "Cameras on the simulated bus")
	cmd.Flags().StringSliceVar(&f.devices, "device", nil, "UVC device node or by-id name to use (repeatable)")
	cmd.Flags().StringVar(&f.configDir, "config-dir", "/usr/share/isocam/cameras", "Directory of hardware configuration files")
	cmd.Flags().StringVar(&f.overrideDir, "override-dir", "/etc/isocam/cameras", "Directory of local hardware configuration overrides")
	cmd.Flags().BoolVar(&f.logJSON, "log-json", false, "Use JSON log format")

	// The daemon's option parsing and startup belong to the root command.
	cmd.PersistentPreRun = func(*cobra.Command, []string) {}
}

func (f *busFlags) backend() string {
	if f.simulate {
		return backend.Sim
	}
	return backend.UVC
}

func (f *busFlags) initLogging() *slog.Logger {
	cfg := config.LoadLoggingConfig(f.configFile)
	if f.logJSON {
		cfg.Format = "json"
	}
	logging.Initialize(cfg)
	return logging.GetLogger("cli")
}

func (f *busFlags) openBus() (iidc.Bus, error) {
	return backend.Open(backend.Config{
		Backend:    f.backend(),
		SimCameras: f.simCount,
		Devices:    f.devices,
		Logger:     logging.GetLogger("bus"),
	})
}

func (f *busFlags) resolver() hwconfig.Source {
	return &hwconfig.Resolver{
		DefaultDir:  f.configDir,
		OverrideDir: f.overrideDir,
		Fallback:    backend.Fallback(f.backend()),
		Logger:      logging.GetLogger("camera"),
	}
}

// openCamera opens the camera named by arg on a fresh bus and manager. The
// returned function closes both.
func (f *busFlags) openCamera(arg string, opts service.Options) (*service.Manager, service.Info, func(), error) {
	guid, err := parseGUID(arg)
	if err != nil {
		return nil, service.Info{}, nil, err
	}
	bus, err := f.openBus()
	if err != nil {
		return nil, service.Info{}, nil, err
	}
	if _, err := bus.Cameras(); err != nil {
		bus.Close()
		return nil, service.Info{}, nil, fmt.Errorf("enumerate cameras: %w", err)
	}

	opts.Bus = bus
	opts.Configs = f.resolver()
	mgr := service.NewManager(opts)
	info, err := mgr.Open(guid)
	if err != nil {
		bus.Close()
		return nil, service.Info{}, nil, err
	}
	return mgr, info, func() {
		mgr.CloseAll("cli exit")
		bus.Close()
	}, nil
}

// parseGUID accepts a camera ID as printed by list, with or without 0x.
func parseGUID(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	guid, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid camera id %q: want a hexadecimal GUID", s)
	}
	return guid, nil
}
