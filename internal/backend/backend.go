// Package backend opens the camera bus the daemon and the CLI run on.
package backend

import (
	"fmt"
	"log/slog"

	"github.com/smazurov/isocam/pkg/camera/hwconfig"
	"github.com/smazurov/isocam/pkg/camera/vendor"
	"github.com/smazurov/isocam/pkg/iidc"
	"github.com/smazurov/isocam/pkg/iidc/sim"
)

// Backend names.
const (
	Sim = "sim"
	UVC = "uvc"
)

// SimGUIDBase is the GUID of the first simulated camera; the others follow.
const SimGUIDBase uint64 = 0x000a4701_00c0ff00

// Config selects and shapes a bus.
type Config struct {
	Backend    string   // "sim" or "uvc"
	SimCameras int      // cameras on a simulated bus
	Devices    []string // UVC device nodes or by-id names; empty for all
	Logger     *slog.Logger
}

// Open returns the bus named by cfg.Backend.
func Open(cfg Config) (iidc.Bus, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	switch cfg.Backend {
	case Sim:
		return SimBus(cfg.SimCameras), nil
	case UVC, "":
		return openUVC(cfg)
	default:
		return nil, fmt.Errorf("unknown camera backend %q", cfg.Backend)
	}
}

// SimBus builds a simulated bus of n free-running cameras. The first is an
// AVT colour model with gamma and colour correction, the rest plain
// monochrome ones.
func SimBus(n int) *sim.Bus {
	if n < 1 {
		n = 1
	}
	bus := sim.NewBus()
	for i := range n {
		guid := SimGUIDBase + uint64(i)
		if i == 0 {
			bus.Attach(sim.New(
				sim.WithIdentity(iidc.Identity{GUID: guid, Vendor: "Allied Vision Technologies", Model: "Guppy F-080C"}),
				sim.WithAdvancedRegisters(vendor.AVTRegisters()),
			))
			continue
		}
		bus.Attach(sim.New(
			sim.WithIdentity(iidc.Identity{GUID: guid, Vendor: "Simulated", Model: fmt.Sprintf("SIM-%d", i+1)}),
		))
	}
	return bus
}

// Fallback returns the hardware configuration used for cameras without a
// configuration file. UVC cameras have no scalable mode, so they fall back
// to the first fixed mode.
func Fallback(backend string) *hwconfig.Config {
	cfg := hwconfig.Default()
	if backend == UVC || backend == "" {
		cfg.Format = 0
		cfg.Mode = 0
	}
	return &cfg
}
