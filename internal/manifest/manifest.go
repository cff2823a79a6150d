// Package manifest loads and validates the launcher configuration. The YAML
// tree is decoded eagerly into typed structs so that malformed manifests are
// rejected at the boundary and the rest of the launcher never touches an
// untyped mapping.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/odoo-launch/internal/fsutil"
)

// ErrManifest reports bad or missing manifest data. These failures are fatal
// and never retried.
var ErrManifest = errors.New("invalid manifest")

// Readiness holds the probe budgets for one stack.
type Readiness struct {
	HTTPTimeout  time.Duration
	HTTPInterval time.Duration
	PGTimeout    time.Duration
	PGInterval   time.Duration
}

// Defaults are launcher-wide settings from the manifest's defaults section.
type Defaults struct {
	TempRunRoot   string
	HistoryLog    string
	DockerBin     string
	ComposeBin    string
	PostgresImage string
	Timezone      string
	Readiness     Readiness
}

// Seed names an ordered set of data-loading operations: SQL batches applied
// to the run database followed by scripts piped into the application shell.
type Seed struct {
	Name     string
	SQLFiles []string
	Scripts  []string
}

// Entry is one launchable edition/version pair.
type Entry struct {
	Edition                string
	Version                string
	RepoPath               string
	ComposeTemplate        string
	Image                  string
	Addons                 []string
	ExtraAddons            []string
	HTTPPort               int
	LongpollPort           int
	PGPort                 int
	DefaultSeed            string
	RequiresEnterpriseCode bool
	Seeds                  map[string]Seed
}

// Manifest is the fully validated configuration tree. It is loaded once per
// invocation and treated as immutable for the duration of a run.
type Manifest struct {
	Defaults Defaults
	Editions map[string]map[string]Entry
}

// Entry returns the configuration for an edition/version pair.
func (m *Manifest) Entry(edition, version string) (Entry, error) {
	versions, ok := m.Editions[edition]
	if !ok {
		return Entry{}, fmt.Errorf("%w: unknown edition %q", ErrManifest, edition)
	}
	entry, ok := versions[version]
	if !ok {
		return Entry{}, fmt.Errorf("%w: unknown version %q for edition %q", ErrManifest, version, edition)
	}
	return entry, nil
}

type rawReadiness struct {
	HTTPTimeout  int `yaml:"http_timeout"`
	HTTPInterval int `yaml:"http_interval"`
	PGTimeout    int `yaml:"pg_timeout"`
	PGInterval   int `yaml:"pg_interval"`
}

type rawDefaults struct {
	TempRunRoot   string        `yaml:"temp_run_root"`
	HistoryLog    string        `yaml:"history_log"`
	DockerBin     string        `yaml:"docker_bin"`
	ComposeBin    string        `yaml:"compose_bin"`
	PostgresImage string        `yaml:"postgres_image"`
	Timezone      string        `yaml:"timezone"`
	Readiness     *rawReadiness `yaml:"readiness"`
}

type rawSeed struct {
	SQL     []string `yaml:"sql"`
	Scripts []string `yaml:"scripts"`
}

type rawEntry struct {
	RepoPath               string             `yaml:"repo_path"`
	ComposeTemplate        string             `yaml:"compose_template"`
	Image                  string             `yaml:"image"`
	Addons                 []string           `yaml:"addons"`
	ExtraAddons            []string           `yaml:"extra_addons"`
	HTTPPort               int                `yaml:"http_port"`
	LongpollPort           int                `yaml:"longpoll_port"`
	PGPort                 int                `yaml:"pg_port"`
	DefaultSeed            string             `yaml:"default_seed"`
	RequiresEnterpriseCode bool               `yaml:"requires_enterprise_code"`
	Seeds                  map[string]rawSeed `yaml:"seeds"`
}

type rawManifest struct {
	Defaults rawDefaults                    `yaml:"defaults"`
	Editions map[string]map[string]rawEntry `yaml:"editions"`
}

// Load reads the manifest at path, validates it, normalises every path, and
// makes sure the run root and history directories exist.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest not found: %s", ErrManifest, path)
	}
	var raw rawManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrManifest, path, err)
	}

	defaults, err := parseDefaults(raw.Defaults)
	if err != nil {
		return nil, err
	}
	editions, err := parseEditions(raw.Editions)
	if err != nil {
		return nil, err
	}

	if err := fsutil.EnsureDir(defaults.TempRunRoot); err != nil {
		return nil, fmt.Errorf("create run root %s: %w", defaults.TempRunRoot, err)
	}

	return &Manifest{Defaults: defaults, Editions: editions}, nil
}

func parseDefaults(raw rawDefaults) (Defaults, error) {
	if raw.Readiness == nil {
		return Defaults{}, fmt.Errorf("%w: defaults.readiness section missing", ErrManifest)
	}
	runRoot, err := fsutil.ExpandPath(valueOr(raw.TempRunRoot, "~/.odoo-launch/runs"))
	if err != nil {
		return Defaults{}, fmt.Errorf("expand temp_run_root: %w", err)
	}
	historyLog, err := fsutil.ExpandPath(valueOr(raw.HistoryLog, "~/.odoo-launch/history.log"))
	if err != nil {
		return Defaults{}, fmt.Errorf("expand history_log: %w", err)
	}
	return Defaults{
		TempRunRoot:   runRoot,
		HistoryLog:    historyLog,
		DockerBin:     valueOr(raw.DockerBin, "docker"),
		ComposeBin:    valueOr(raw.ComposeBin, "docker compose"),
		PostgresImage: valueOr(raw.PostgresImage, "postgres:16"),
		Timezone:      valueOr(raw.Timezone, "UTC"),
		Readiness: Readiness{
			HTTPTimeout:  secondsOr(raw.Readiness.HTTPTimeout, 600),
			HTTPInterval: secondsOr(raw.Readiness.HTTPInterval, 5),
			PGTimeout:    secondsOr(raw.Readiness.PGTimeout, 120),
			PGInterval:   secondsOr(raw.Readiness.PGInterval, 3),
		},
	}, nil
}

func parseEditions(raw map[string]map[string]rawEntry) (map[string]map[string]Entry, error) {
	editions := make(map[string]map[string]Entry, len(raw))
	for editionName, versions := range raw {
		editions[editionName] = make(map[string]Entry, len(versions))
		for version, payload := range versions {
			entry, err := parseEntry(editionName, version, payload)
			if err != nil {
				return nil, err
			}
			editions[editionName][version] = entry
		}
	}
	return editions, nil
}

func parseEntry(edition, version string, raw rawEntry) (Entry, error) {
	where := fmt.Sprintf("%s %s", edition, version)
	repoPath, err := fsutil.ExpandPath(raw.RepoPath)
	if err != nil || raw.RepoPath == "" {
		return Entry{}, fmt.Errorf("%w: %s: repo_path missing", ErrManifest, where)
	}
	if _, err := os.Stat(repoPath); err != nil {
		return Entry{}, fmt.Errorf("%w: %s: repo path missing: %s", ErrManifest, where, repoPath)
	}
	if raw.ComposeTemplate == "" {
		return Entry{}, fmt.Errorf("%w: %s: compose_template missing", ErrManifest, where)
	}
	composeTemplate, err := fsutil.ExpandPath(raw.ComposeTemplate)
	if err != nil {
		return Entry{}, fmt.Errorf("expand compose_template: %w", err)
	}
	if _, err := os.Stat(composeTemplate); err != nil {
		return Entry{}, fmt.Errorf("%w: %s: compose template missing: %s", ErrManifest, where, composeTemplate)
	}
	if raw.HTTPPort <= 0 || raw.LongpollPort <= 0 {
		return Entry{}, fmt.Errorf("%w: %s: http_port and longpoll_port are required", ErrManifest, where)
	}

	addons, err := normalisePaths(raw.Addons, repoPath, where)
	if err != nil {
		return Entry{}, err
	}
	extraAddons, err := normalisePaths(raw.ExtraAddons, repoPath, where)
	if err != nil {
		return Entry{}, err
	}

	seeds := make(map[string]Seed, len(raw.Seeds))
	for name, payload := range raw.Seeds {
		sqlFiles, err := normalisePaths(payload.SQL, repoPath, where)
		if err != nil {
			return Entry{}, err
		}
		scripts, err := normalisePaths(payload.Scripts, repoPath, where)
		if err != nil {
			return Entry{}, err
		}
		seeds[name] = Seed{Name: name, SQLFiles: sqlFiles, Scripts: scripts}
	}

	pgPort := raw.PGPort
	if pgPort <= 0 {
		pgPort = 15432
	}
	return Entry{
		Edition:                edition,
		Version:                version,
		RepoPath:               repoPath,
		ComposeTemplate:        composeTemplate,
		Image:                  valueOr(raw.Image, "odoo:18.0"),
		Addons:                 addons,
		ExtraAddons:            extraAddons,
		HTTPPort:               raw.HTTPPort,
		LongpollPort:           raw.LongpollPort,
		PGPort:                 pgPort,
		DefaultSeed:            valueOr(raw.DefaultSeed, "basic"),
		RequiresEnterpriseCode: raw.RequiresEnterpriseCode,
		Seeds:                  seeds,
	}, nil
}

// normalisePaths expands each candidate, substituting the {{ repo_path }}
// placeholder, and requires every result to exist.
func normalisePaths(candidates []string, repoPath, where string) ([]string, error) {
	out := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		candidate = strings.ReplaceAll(candidate, "{{ repo_path }}", repoPath)
		path, err := fsutil.ExpandPath(candidate)
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", candidate, err)
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s: path missing: %s", ErrManifest, where, path)
		}
		out = append(out, path)
	}
	return out, nil
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func secondsOr(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}
