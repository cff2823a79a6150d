// main.go bootstraps odoo-launch: it builds the root Cobra command, wires
// viper env/config overrides, and executes with a signal-aware context.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/example/odoo-launch/internal/launcher"
	"github.com/example/odoo-launch/internal/manifest"
	"github.com/example/odoo-launch/internal/netutil"
	"github.com/example/odoo-launch/internal/readiness"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	handleError(err)
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	logLevel := "info"
	cmd := &cobra.Command{
		Use:           "odoo-launch",
		Short:         "Provision disposable Odoo stacks for testing",
		Long:          "odoo-launch renders, starts, seeds, and reliably tears down throwaway Odoo environments, keeping a durable history of every run.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the launcher manifest (default ~/.odoo-launch/config.yml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", logLevel, "Log level for diagnostics (debug, info, warn, or error)")

	upCmd := newUpCommand(&configPath, &logLevel)
	testCmd := newTestCommand(&configPath, &logLevel)
	stopCmd := newStopCommand(&configPath, &logLevel)
	cleanCmd := newCleanCommand(&configPath, &logLevel)
	validateCmd := newValidateCommand(&configPath)
	initCmd := newInitCommand()
	psqlCmd := newPsqlCommand(&configPath)
	historyCmd := newHistoryCommand(&configPath)
	cmd.AddCommand(upCmd, testCmd, stopCmd, cleanCmd, validateCmd, initCmd, psqlCmd, historyCmd)

	bindViper(cmd, upCmd, testCmd, stopCmd, cleanCmd, validateCmd, initCmd, psqlCmd, historyCmd)
	return cmd
}

// bindViper layers environment variables (ODOO_LAUNCH_*) and an optional
// settings file under the flag values, so any flag can be pinned without
// repeating it on every invocation.
func bindViper(commands ...*cobra.Command) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("ODOO_LAUNCH")
	v.AutomaticEnv()
	settingsFile := os.Getenv("ODOO_LAUNCH_SETTINGS")
	configureSettingsFile(v, settingsFile)

	cobra.OnInitialize(func() {
		for _, cmd := range commands {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				cobra.CheckErr(err)
			}
			if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
				cobra.CheckErr(err)
			}
		}
		if err := readSettingsFile(v, settingsFile != ""); err != nil {
			cobra.CheckErr(err)
		}
		for _, cmd := range commands {
			for _, fs := range []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()} {
				fs.VisitAll(func(f *pflag.Flag) {
					if f.Changed {
						return
					}
					if !v.IsSet(f.Name) {
						return
					}
					val := fmt.Sprintf("%v", v.Get(f.Name))
					if val != "" {
						_ = f.Value.Set(val)
					}
				})
			}
		}
	})
}

func configureSettingsFile(v *viper.Viper, explicitPath string) {
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		return
	}
	v.SetConfigName("settings")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".odoo-launch"))
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		v.AddConfigPath(filepath.Join(xdg, "odoo-launch"))
	}
}

func readSettingsFile(v *viper.Viper, strict bool) error {
	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if errors.As(err, &cfgErr) && !strict {
			return nil
		}
		if os.IsNotExist(err) && !strict {
			return nil
		}
		return err
	}
	return nil
}

func handleError(err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	message := err.Error()
	switch {
	case errors.Is(err, readiness.ErrTimeout):
		message = fmt.Sprintf("%s\nHint: raise the readiness budgets in the manifest, or inspect the stack with 'docker compose logs'.", err)
	case errors.Is(err, launcher.ErrLicensing):
		message = fmt.Sprintf("%s\nHint: export %s or pass --enterprise-code.", err, launcher.EnterpriseCodeEnv)
	case errors.Is(err, netutil.ErrNoFreePort):
		message = fmt.Sprintf("%s\nHint: stop stale runs with 'odoo-launch clean' or adjust the port preferences in the manifest.", err)
	case errors.Is(err, manifest.ErrManifest):
		message = fmt.Sprintf("%s\nHint: run 'odoo-launch validate' to check the manifest.", err)
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}
