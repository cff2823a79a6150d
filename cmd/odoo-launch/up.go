// up.go implements 'odoo-launch up': render and launch a disposable stack.
package main

import (
	"github.com/spf13/cobra"

	"github.com/example/odoo-launch/internal/launcher"
)

type upFlags struct {
	edition        string
	version        string
	seed           string
	runTests       bool
	modules        []string
	testTags       string
	keepAlive      bool
	enterpriseCode string
}

func (f *upFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.edition, "edition", "community", "Edition to launch (community or enterprise)")
	cmd.Flags().StringVar(&f.version, "version", "18.0", "Odoo version to launch")
	cmd.Flags().StringVar(&f.seed, "seed", "", "Seed scenario to apply (defaults to the entry's default seed)")
	cmd.Flags().StringSliceVarP(&f.modules, "module", "m", nil, "Module names to update/test (repeatable)")
	cmd.Flags().StringVar(&f.testTags, "test-tags", "", "Odoo --test-tags expression")
	cmd.Flags().BoolVar(&f.keepAlive, "keep-alive", false, "Keep the stack running after setup completes")
	cmd.Flags().StringVar(&f.enterpriseCode, "enterprise-code", "", "Enterprise licence code (or set "+launcher.EnterpriseCodeEnv+")")
}

func (f *upFlags) options() launcher.Options {
	return launcher.Options{
		Edition:        f.edition,
		Version:        f.version,
		Seed:           f.seed,
		RunTests:       f.runTests,
		Modules:        f.modules,
		TestTags:       f.testTags,
		KeepAlive:      f.keepAlive,
		EnterpriseCode: f.enterpriseCode,
	}
}

func newUpCommand(configPath, logLevel *string) *cobra.Command {
	flags := upFlags{}
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Render and launch a disposable Odoo stack",
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
	cmd.Flags().BoolVar(&flags.runTests, "run-tests", false, "Execute the Odoo test suite inside the stack")
	return cmd
}
