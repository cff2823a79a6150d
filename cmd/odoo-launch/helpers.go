// helpers.go holds the wiring shared by the subcommands: manifest
// resolution and launcher construction.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/example/odoo-launch/internal/composecli"
	"github.com/example/odoo-launch/internal/fsutil"
	"github.com/example/odoo-launch/internal/history"
	"github.com/example/odoo-launch/internal/launcher"
	"github.com/example/odoo-launch/internal/logging"
	"github.com/example/odoo-launch/internal/manifest"
)

const defaultManifestPath = "~/.odoo-launch/config.yml"

// resolveManifestPath returns the manifest location: the explicit flag value
// when given, otherwise the default path, which must already exist.
func resolveManifestPath(flagValue string) (string, error) {
	if flagValue != "" {
		return fsutil.ExpandPath(flagValue)
	}
	path, err := fsutil.ExpandPath(defaultManifestPath)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: no manifest at %s (run 'odoo-launch init' first)", manifest.ErrManifest, path)
	}
	return path, nil
}

func loadManifest(configFlag string) (*manifest.Manifest, error) {
	path, err := resolveManifestPath(configFlag)
	if err != nil {
		return nil, err
	}
	return manifest.Load(path)
}

// buildLauncher loads the manifest and assembles a production launcher.
func buildLauncher(configFlag, logLevel string) (*launcher.Launcher, *zap.Logger, error) {
	log, err := logging.New(logLevel)
	if err != nil {
		return nil, nil, err
	}
	m, err := loadManifest(configFlag)
	if err != nil {
		return nil, nil, err
	}
	runner, err := composecli.NewRunner(m.Defaults.ComposeBin)
	if err != nil {
		return nil, nil, err
	}
	ledger := history.NewLedger(m.Defaults.HistoryLog)
	return launcher.New(m, runner, ledger, log, os.Stdout), log, nil
}
