// clean.go implements 'odoo-launch clean': remove stale run directories and
// prune dangling Docker resources.
package main

import (
	"fmt"
	"os/exec"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCleanCommand(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove stale run directories and prune Docker artefacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, log, err := buildLauncher(*configPath, *logLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			removed, err := l.SweepStale()
			if err != nil {
				return err
			}
			for _, path := range removed {
				fmt.Fprintln(cmd.OutOrStdout(), color.CyanString("Removed stale run directory %s", path))
			}

			fmt.Fprintln(cmd.OutOrStdout(), color.CyanString("Pruning dangling Docker resources"))
			prune := exec.CommandContext(cmd.Context(), "docker", "system", "prune", "--force", "--volumes")
			if out, err := prune.CombinedOutput(); err != nil {
				// Best-effort: a missing or unhappy Docker must not fail the sweep.
				log.Warn("docker system prune failed", zap.Error(err), zap.ByteString("output", out))
			}
			return nil
		},
	}
}
