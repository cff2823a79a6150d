// psql.go implements 'odoo-launch psql RUN_ID -c SQL': run a SQL command
// inside a recorded run's database container.
package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/odoo-launch/internal/composecli"
	"github.com/example/odoo-launch/internal/history"
)

func newPsqlCommand(configPath *string) *cobra.Command {
	var command string
	cmd := &cobra.Command{
		Use:   "psql RUN_ID",
		Short: "Execute SQL against a running environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest(*configPath)
			if err != nil {
				return err
			}
			if command == "" {
				return fmt.Errorf("interactive psql is not supported; provide --command SQL to execute a statement")
			}
			ledger := history.NewLedger(m.Defaults.HistoryLog)
			rec, err := ledger.Find(args[0])
			if err != nil {
				return err
			}
			runner, err := composecli.NewRunner(m.Defaults.ComposeBin)
			if err != nil {
				return err
			}
			res, err := runner.Exec(cmd.Context(), rec.ComposeFile, "db",
				[]string{"psql", "-U", "odoo", "-d", rec.DBName, "-c", command},
				composecli.ExecOptions{})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), res.Stdout)
			if res.ExitCode != 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), color.RedString("%s", res.Stderr))
				return fmt.Errorf("psql exited with status %d", res.ExitCode)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&command, "command", "c", "", "SQL command to execute")
	return cmd
}
