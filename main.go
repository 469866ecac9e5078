package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/isocam/cmd"
	"github.com/smazurov/isocam/internal/api"
	"github.com/smazurov/isocam/internal/backend"
	"github.com/smazurov/isocam/internal/config"
	"github.com/smazurov/isocam/internal/events"
	"github.com/smazurov/isocam/internal/logging"
	"github.com/smazurov/isocam/internal/metrics/exporters"
	"github.com/smazurov/isocam/internal/profiles"
	"github.com/smazurov/isocam/internal/service"
	"github.com/smazurov/isocam/internal/systemd"
	"github.com/smazurov/isocam/internal/trigger"
	"github.com/smazurov/isocam/pkg/camera/hwconfig"
	"github.com/smazurov/isocam/pkg/linuxav/hotplug"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"isocam.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Camera settings
	CameraBackend  string `help:"Camera bus (uvc, sim)" default:"uvc" toml:"camera.backend" env:"CAMERA_BACKEND"`
	CameraDevices  string `help:"Comma separated UVC devices to use, all when empty" toml:"camera.devices" env:"CAMERA_DEVICES"`
	CameraSimCount int    `help:"Cameras on the simulated bus" default:"2" toml:"camera.sim_count" env:"CAMERA_SIM_COUNT"`
	CameraHotplug  bool   `help:"Open UVC cameras as they are plugged in" default:"true" toml:"camera.hotplug" env:"CAMERA_HOTPLUG"`
	HWConfigDir    string `help:"Directory of hardware configuration files" default:"/usr/share/isocam/cameras" toml:"camera.config_dir" env:"CAMERA_CONFIG_DIR"`
	HWOverrideDir  string `help:"Directory of local hardware configuration overrides" default:"/etc/isocam/cameras" toml:"camera.override_dir" env:"CAMERA_OVERRIDE_DIR"`

	// Profile settings
	ProfilesFile     string `help:"Camera settings profiles file" default:"profiles.toml" toml:"profiles.file" env:"PROFILES_FILE"`
	ProfilesWatch    bool   `help:"Re-apply profiles when the file changes" default:"true" toml:"profiles.watch" env:"PROFILES_WATCH"`
	ProfilesDebounce string `help:"Delay before a changed profile file is re-read" default:"500ms" toml:"profiles.debounce" env:"PROFILES_DEBOUNCE"`

	// Trigger settings
	TriggerDriver     string `help:"External trigger driver (rpio, mock), none when empty" toml:"trigger.driver" env:"TRIGGER_DRIVER"`
	TriggerPin        int    `help:"Trigger output pin, BCM numbering" default:"17" toml:"trigger.pin" env:"TRIGGER_PIN"`
	TriggerWidth      string `help:"Trigger pulse width" default:"1ms" toml:"trigger.width" env:"TRIGGER_WIDTH"`
	TriggerActiveHigh bool   `help:"Trigger pulse is active high" default:"true" toml:"trigger.active_high" env:"TRIGGER_ACTIVE_HIGH"`

	// Observability settings
	MetricsEnabled  bool   `help:"Serve Prometheus metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`
	MetricsInterval string `help:"Metrics event stream interval" default:"2s" toml:"metrics.interval" env:"METRICS_INTERVAL"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCamera  string `help:"Camera session logging level" default:"info" toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingService string `help:"Camera service logging level" default:"info" toml:"logging.service" env:"LOGGING_SERVICE"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingBus     string `help:"Camera bus logging level" default:"info" toml:"logging.bus" env:"LOGGING_BUS"`
	LoggingTrigger string `help:"Trigger logging level" default:"info" toml:"logging.trigger" env:"LOGGING_TRIGGER"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"camera":  opts.LoggingCamera,
				"service": opts.LoggingService,
				"api":     opts.LoggingAPI,
				"http":    opts.LoggingAPI,
				"bus":     opts.LoggingBus,
				"trigger": opts.LoggingTrigger,
			},
		})

		logger := logging.GetLogger("main")

		bus, err := backend.Open(backend.Config{
			Backend:    opts.CameraBackend,
			SimCameras: opts.CameraSimCount,
			Devices:    splitList(opts.CameraDevices),
			Logger:     logging.GetLogger("bus"),
		})
		if err != nil {
			logger.Error("Failed to open camera bus", "backend", opts.CameraBackend, "error", err)
			os.Exit(1)
		}

		store := profiles.NewTOML(opts.ProfilesFile)
		if loadErr := store.Load(); loadErr != nil {
			logger.Warn("Failed to load profiles, starting without them", "path", opts.ProfilesFile, "error", loadErr)
		}

		var pulser trigger.Pulser
		line, err := trigger.Open(trigger.Config{
			Driver:     opts.TriggerDriver,
			Pin:        opts.TriggerPin,
			Width:      parseDuration(opts.TriggerWidth, trigger.DefaultWidth),
			ActiveHigh: opts.TriggerActiveHigh,
		}, logging.GetLogger("trigger"))
		if err != nil {
			logger.Warn("Failed to open trigger line, external trigger pulses disabled", "driver", opts.TriggerDriver, "error", err)
		} else if line != nil {
			pulser = line
		}

		eventBus := events.New()

		manager := service.NewManager(service.Options{
			Bus: bus,
			Configs: &hwconfig.Resolver{
				DefaultDir:  opts.HWConfigDir,
				OverrideDir: opts.HWOverrideDir,
				Fallback:    backend.Fallback(opts.CameraBackend),
				Logger:      logging.GetLogger("camera"),
			},
			Profiles: store,
			Events:   eventBus,
			Trigger:  pulser,
		})

		apiOpts := &api.Options{
			AuthUsername:    opts.AuthUsername,
			AuthPassword:    opts.AuthPassword,
			Cameras:         manager,
			EventBus:        eventBus,
			MetricsInterval: parseDuration(opts.MetricsInterval, 2*time.Second),
		}
		if opts.MetricsEnabled {
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}
		server := api.NewServer(apiOpts)

		ctx, cancel := context.WithCancel(context.Background())

		// The watcher only re-applies profiles to cameras already open, so it
		// can start before OpenAll.
		var watcher *config.Watcher[profiles.File]
		if opts.ProfilesWatch {
			w, watchErr := manager.WatchProfiles(ctx, parseDuration(opts.ProfilesDebounce, 500*time.Millisecond))
			if watchErr != nil {
				logger.Warn("Failed to watch profiles", "path", opts.ProfilesFile, "error", watchErr)
			} else {
				watcher = w
			}
		}

		notifier := systemd.NewNotifier(logger)

		var monitor *hotplug.Monitor
		if opts.CameraHotplug && opts.CameraBackend == backend.UVC {
			m, monErr := hotplug.NewMonitor(hotplug.SubsystemVideo4Linux)
			if monErr != nil {
				logger.Warn("Device hotplug unavailable, cameras are only opened at startup", "error", monErr)
			} else {
				monitor = m
			}
		}

		hooks.OnStart(func() {
			opened, openErr := manager.OpenAll(ctx)
			if openErr != nil {
				logger.Warn("Some cameras failed to open", "error", openErr)
			}
			logger.Info("Cameras opened", "count", opened)

			if monitor != nil {
				deviceEvents := make(chan hotplug.Event, 16)
				go func() {
					if runErr := monitor.Run(ctx, deviceEvents); runErr != nil && !errors.Is(runErr, context.Canceled) {
						logger.Warn("Device hotplug monitor stopped", "error", runErr)
					}
				}()
				go manager.WatchDevices(ctx, deviceEvents, service.DefaultSettle)
			}

			notifier.Ready(len(manager.IDs()))
			go notifier.Watchdog(ctx, nil)

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			notifier.Stopping()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if stopErr := server.Stop(stopCtx); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping profile watcher", "error", stopErr)
				}
			}
			cancel()

			// Sessions close after the API stops handing out frames.
			if closeErr := manager.CloseAll("shutdown"); closeErr != nil {
				logger.Error("Error closing cameras", "error", closeErr)
			}
			if pulser != nil {
				pulser.Close()
			}
			if closeErr := bus.Close(); closeErr != nil {
				logger.Warn("Error closing camera bus", "error", closeErr)
			}
		})
	})

	cli.Root().Use = "isocam"
	cli.Root().Short = "Tethered IIDC camera daemon"
	cli.Root().AddCommand(cmd.CreateListCmd())
	cli.Root().AddCommand(cmd.CreateInfoCmd())
	cli.Root().AddCommand(cmd.CreateCaptureCmd())

	cli.Run()
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
