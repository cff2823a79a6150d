// init.go implements 'odoo-launch init': write the starter manifest and
// compose template under ~/.odoo-launch/.
package main

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/odoo-launch/internal/fsutil"
)

//go:embed templates/default_manifest.yaml
var defaultManifest []byte

//go:embed templates/docker-compose.yml.tmpl
var defaultComposeTemplate []byte

func newInitCommand() *cobra.Command {
	var destination string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Bootstrap launcher configuration under ~/.odoo-launch/",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dest, err := fsutil.ExpandPath(destination)
			if err != nil {
				return err
			}
			if err := fsutil.EnsureDir(filepath.Dir(dest)); err != nil {
				return err
			}
			if _, err := os.Stat(dest); err == nil && !force {
				return fmt.Errorf("config already exists at %s, use --force to overwrite", dest)
			}

			templateDir := filepath.Join(filepath.Dir(dest), "templates")
			if err := fsutil.EnsureDir(templateDir); err != nil {
				return err
			}
			templatePath := filepath.Join(templateDir, "docker-compose.yml.tmpl")
			if err := os.WriteFile(templatePath, defaultComposeTemplate, 0o644); err != nil {
				return fmt.Errorf("write compose template: %w", err)
			}
			if err := os.WriteFile(dest, defaultManifest, 0o644); err != nil {
				return fmt.Errorf("write manifest: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("Manifest written to %s", dest))
			fmt.Fprintln(cmd.OutOrStdout(), color.CyanString("Compose template written to %s", templatePath))
			fmt.Fprintln(cmd.OutOrStdout(), color.CyanString("Edit the manifest's repo and addon paths before the first 'odoo-launch up'."))
			return nil
		},
	}
	cmd.Flags().StringVar(&destination, "config", defaultManifestPath, "Path where the manifest copy should be written")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config if present")
	return cmd
}
