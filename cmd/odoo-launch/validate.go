// validate.go implements 'odoo-launch validate': check Docker tooling,
// manifest paths, and optional enterprise licensing before anything is
// launched.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/fatih/color"
	shellwords "github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"

	"github.com/example/odoo-launch/internal/launcher"
)

func newValidateCommand(configPath *string) *cobra.Command {
	var requireEnterprise bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate Docker tooling, manifest paths, and licensing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest(*configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var problems []string

			if ok, msg := checkCommand(cmd, []string{m.Defaults.DockerBin, "info", "--format", "{{json .ServerVersion}}"}); !ok {
				problems = append(problems, fmt.Sprintf("Docker check failed: %s", msg))
			} else {
				fmt.Fprintln(out, color.CyanString("Docker detected (server %s)", msg))
			}

			composeArgv, err := shellwords.Parse(m.Defaults.ComposeBin)
			if err != nil || len(composeArgv) == 0 {
				problems = append(problems, fmt.Sprintf("compose_bin is not parseable: %q", m.Defaults.ComposeBin))
			} else if ok, msg := checkCommand(cmd, append(composeArgv, "version")); !ok {
				problems = append(problems, fmt.Sprintf("docker compose check failed: %s", msg))
			} else {
				fmt.Fprintln(out, color.CyanString("docker compose detected (%s)", msg))
			}

			for _, versions := range m.Editions {
				for _, entry := range versions {
					for _, path := range append(append([]string{entry.RepoPath, entry.ComposeTemplate}, entry.Addons...), entry.ExtraAddons...) {
						if _, err := os.Stat(path); err != nil {
							problems = append(problems, fmt.Sprintf("path missing for %s %s: %s", entry.Edition, entry.Version, path))
						}
					}
				}
			}

			if requireEnterprise && os.Getenv(launcher.EnterpriseCodeEnv) == "" {
				problems = append(problems, fmt.Sprintf("enterprise licence not configured: set %s or pass --enterprise-code at launch", launcher.EnterpriseCodeEnv))
			}

			if len(problems) > 0 {
				for _, p := range problems {
					fmt.Fprintln(cmd.ErrOrStderr(), color.RedString(p))
				}
				return fmt.Errorf("environment validation failed (%d problem(s))", len(problems))
			}
			fmt.Fprintln(out, color.GreenString("Environment validation passed"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&requireEnterprise, "require-enterprise", false, "Fail if no enterprise licence code is configured")
	return cmd
}

// checkCommand runs a probe command and returns its trimmed output, or the
// failure message when it cannot run.
func checkCommand(cmd *cobra.Command, argv []string) (bool, string) {
	c := exec.CommandContext(cmd.Context(), argv[0], argv[1:]...)
	out, err := c.CombinedOutput()
	msg := strings.TrimSpace(string(out))
	if err != nil {
		if msg == "" {
			msg = err.Error()
		}
		return false, msg
	}
	if msg == "" {
		msg = "OK"
	}
	return true, msg
}
