package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/smazurov/isocam/internal/service"
	"github.com/smazurov/isocam/pkg/camera"
	"github.com/smazurov/isocam/pkg/camera/hwconfig"
)

// CreateInfoCmd creates the info command.
func CreateInfoCmd() *cobra.Command {
	var flags busFlags

	cmd := &cobra.Command{
		Use:   "info [camera-id]",
		Short: "Show a camera's configuration, capabilities and state",
		Long: `Opens the camera with its hardware configuration and default settings, then prints ` +
			`the resolved configuration, the capabilities it reports, its settings and a register dump.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			logger := flags.initLogging()
			if err := runInfo(cmd.OutOrStdout(), &flags, args[0]); err != nil {
				logger.Error("Failed to read camera info", "camera", args[0], "error", err)
				os.Exit(1)
			}
		},
	}
	flags.register(cmd)
	return cmd
}

// infoReport is what info prints, as TOML.
type infoReport struct {
	Camera       service.Info        `toml:"camera"`
	Hardware     hwconfig.Config     `toml:"hardware"`
	Capabilities camera.Capabilities `toml:"capabilities"`
	Settings     camera.Settings     `toml:"settings"`
}

func runInfo(w io.Writer, flags *busFlags, arg string) error {
	mgr, info, closeAll, err := flags.openCamera(arg, service.Options{})
	if err != nil {
		return err
	}
	defer closeAll()

	report := infoReport{Camera: info}
	if report.Hardware, report.Capabilities, err = mgr.Config(info.ID); err != nil {
		return err
	}
	if report.Settings, err = mgr.State(info.ID); err != nil {
		return err
	}
	data, err := toml.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return err
	}

	dump, err := mgr.Dump(info.ID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\n# Register dump\n%s", dump)
	return err
}
