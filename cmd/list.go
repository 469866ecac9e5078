package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/isocam/pkg/camera/vendor"
)

// CreateListCmd creates the list command.
func CreateListCmd() *cobra.Command {
	var flags busFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cameras on the bus",
		Long:  `Enumerates the cameras on the bus and prints their IDs, vendor, model and vendor family.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			logger := flags.initLogging()
			if err := runList(cmd.OutOrStdout(), &flags); err != nil {
				logger.Error("Failed to list cameras", "error", err)
				os.Exit(1)
			}
		},
	}
	flags.register(cmd)
	return cmd
}

func runList(w io.Writer, flags *busFlags) error {
	bus, err := flags.openBus()
	if err != nil {
		return err
	}
	defer bus.Close()

	ids, err := bus.Cameras()
	if err != nil {
		return fmt.Errorf("enumerate cameras: %w", err)
	}
	if len(ids) == 0 {
		fmt.Fprintln(w, "No cameras found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVENDOR\tMODEL\tFAMILY")
	for _, id := range ids {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, id.Vendor, id.Model, vendor.Lookup(id).Name())
	}
	return tw.Flush()
}
