// test.go implements 'odoo-launch test': an up with tests enabled and
// automatic teardown unless --keep-alive is set.
package main

import (
	"github.com/spf13/cobra"
)

func newTestCommand(configPath, logLevel *string) *cobra.Command {
	flags := upFlags{runTests: true}
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Launch a stack, run the Odoo test suite, and tear it down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, log, err := buildLauncher(*configPath, *logLevel)
			if err != nil {
				return err
			}
			defer log.Sync()
			_, err = l.Up(cmd.Context(), flags.options())
			return err
		},
	}
	flags.register(cmd)
	return cmd
}
