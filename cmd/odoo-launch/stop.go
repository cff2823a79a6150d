// stop.go implements 'odoo-launch stop RUN_ID'.
package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newStopCommand(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop RUN_ID",
		Short: "Stop a running environment and reclaim its resources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, log, err := buildLauncher(*configPath, *logLevel)
			if err != nil {
				return err
			}
			defer log.Sync()
			runID := args[0]
			if err := l.Stop(cmd.Context(), runID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("Stopped run %s", runID))
			return nil
		},
	}
}
