package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/isocam/internal/logging"
	"github.com/smazurov/isocam/internal/profiles"
	"github.com/smazurov/isocam/internal/service"
	"github.com/smazurov/isocam/internal/trigger"
)

// captureFlags are the flags of the capture command.
type captureFlags struct {
	busFlags
	count         int
	outputDir     string
	timeout       time.Duration
	shot          bool
	fresh         bool
	pulse         bool
	profilesFile  string
	triggerDriver string
	triggerPin    int
	triggerWidth  time.Duration
}

// CreateCaptureCmd creates the capture command.
func CreateCaptureCmd() *cobra.Command {
	var flags captureFlags

	cmd := &cobra.Command{
		Use:   "capture [camera-id]",
		Short: "Capture raw frames to files",
		Long: `Opens the camera, starts it and writes the next frames to the output directory, one ` +
			`file of raw pixel data per frame named after the camera ID and frame number.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			logger := flags.initLogging()
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := runCapture(ctx, cmd.OutOrStdout(), &flags, args[0]); err != nil {
				logger.Error("Capture failed", "camera", args[0], "error", err)
				os.Exit(1)
			}
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVarP(&flags.count, "count", "n", 1, "Number of frames to capture")
	cmd.Flags().StringVarP(&flags.outputDir, "output", "o", ".", "Directory to write frames to")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 5*time.Second, "Longest wait for one frame")
	cmd.Flags().BoolVar(&flags.shot, "shot", false, "Trigger each frame with a single shot")
	cmd.Flags().BoolVar(&flags.fresh, "fresh", false, "Discard frames queued before each capture")
	cmd.Flags().BoolVar(&flags.pulse, "pulse", false, "Fire the external trigger line for each frame")
	cmd.Flags().StringVar(&flags.profilesFile, "profiles", "", "Settings profiles file to open the camera with")
	cmd.Flags().StringVar(&flags.triggerDriver, "trigger-driver", "rpio", "External trigger driver (rpio, mock)")
	cmd.Flags().IntVar(&flags.triggerPin, "trigger-pin", 17, "Trigger output pin, BCM numbering")
	cmd.Flags().DurationVar(&flags.triggerWidth, "trigger-width", trigger.DefaultWidth, "Trigger pulse width")
	return cmd
}

func runCapture(ctx context.Context, w io.Writer, flags *captureFlags, arg string) error {
	if flags.count < 1 {
		return fmt.Errorf("frame count must be positive, got %d", flags.count)
	}
	if err := os.MkdirAll(flags.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	var opts service.Options
	if flags.profilesFile != "" {
		store := profiles.NewTOML(flags.profilesFile)
		if err := store.Load(); err != nil {
			return fmt.Errorf("load profiles: %w", err)
		}
		opts.Profiles = store
	}
	if flags.pulse {
		line, err := trigger.Open(trigger.Config{
			Driver:     flags.triggerDriver,
			Pin:        flags.triggerPin,
			Width:      flags.triggerWidth,
			ActiveHigh: true,
		}, logging.GetLogger("trigger"))
		if err != nil {
			return fmt.Errorf("open trigger line: %w", err)
		}
		if line != nil {
			defer line.Close()
			opts.Trigger = line
		}
	}

	mgr, info, closeAll, err := flags.openCamera(arg, opts)
	if err != nil {
		return err
	}
	defer closeAll()

	if !flags.shot {
		if _, err := mgr.SetRun(info.ID, true, false); err != nil {
			return err
		}
	}

	for i := range flags.count {
		frameCtx, cancel := context.WithTimeout(ctx, flags.timeout)
		frame, err := mgr.Capture(frameCtx, info.ID, service.CaptureOptions{
			Shot:  flags.shot,
			Fresh: flags.fresh,
			Pulse: flags.pulse,
		})
		cancel()
		if err != nil {
			return fmt.Errorf("frame %d: %w", i+1, err)
		}

		path := filepath.Join(flags.outputDir, frameFileName(frame))
		if err := os.WriteFile(path, frame.Data, 0o644); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
		fmt.Fprintf(w, "%s %dx%d %s lag=%d %s\n",
			path, frame.Width, frame.Height, frame.Coding, frame.Lag, frame.TriggerTime.Format(time.RFC3339Nano))
	}
	return nil
}

func frameFileName(f *service.Frame) string {
	return fmt.Sprintf("%s-%06d-%dx%d-%s.raw", f.CameraID, f.Number, f.Width, f.Height, f.Coding)
}
