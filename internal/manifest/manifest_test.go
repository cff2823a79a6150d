package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// fixture lays out a repo dir, compose template, and seed file, and returns
// the manifest path.
func fixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	repo := filepath.Join(root, "repo")
	writeFile(t, filepath.Join(repo, "addons", ".keep"), "")
	writeFile(t, filepath.Join(repo, "seeds", "basic.sql"), "SELECT 1;")
	writeFile(t, filepath.Join(root, "compose.tmpl"), "services: {}\n")

	manifestPath := filepath.Join(root, "config.yml")
	writeFile(t, manifestPath, `
defaults:
  temp_run_root: `+filepath.Join(root, "runs")+`
  history_log: `+filepath.Join(root, "history.log")+`
  readiness:
    http_timeout: 30
    http_interval: 2
    pg_timeout: 10
    pg_interval: 1
editions:
  community:
    "18.0":
      repo_path: `+repo+`
      compose_template: `+filepath.Join(root, "compose.tmpl")+`
      http_port: 18069
      longpoll_port: 18072
      addons:
        - "{{ repo_path }}/addons"
      seeds:
        basic:
          sql:
            - "{{ repo_path }}/seeds/basic.sql"
`)
	return manifestPath
}

func TestLoadValidManifest(t *testing.T) {
	m, err := Load(fixture(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Defaults.ComposeBin != "docker compose" {
		t.Fatalf("compose_bin default = %q", m.Defaults.ComposeBin)
	}
	if m.Defaults.Readiness.HTTPTimeout != 30*time.Second {
		t.Fatalf("http_timeout = %v", m.Defaults.Readiness.HTTPTimeout)
	}
	entry, err := m.Entry("community", "18.0")
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if entry.PGPort != 15432 {
		t.Fatalf("pg_port default = %d", entry.PGPort)
	}
	if entry.DefaultSeed != "basic" {
		t.Fatalf("default_seed = %q", entry.DefaultSeed)
	}
	if len(entry.Addons) != 1 || strings.Contains(entry.Addons[0], "{{") {
		t.Fatalf("addons not normalised: %v", entry.Addons)
	}
	seed, ok := entry.Seeds["basic"]
	if !ok || len(seed.SQLFiles) != 1 {
		t.Fatalf("seed not parsed: %+v", entry.Seeds)
	}
	if _, err := os.Stat(m.Defaults.TempRunRoot); err != nil {
		t.Fatalf("run root not created: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if !errors.Is(err, ErrManifest) {
		t.Fatalf("expected ErrManifest, got %v", err)
	}
}

func TestLoadRejectsMissingReadiness(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	writeFile(t, path, "defaults: {}\neditions: {}\n")
	_, err := Load(path)
	if !errors.Is(err, ErrManifest) {
		t.Fatalf("expected ErrManifest, got %v", err)
	}
}

func TestLoadRejectsMissingRepoPath(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "compose.tmpl"), "services: {}\n")
	path := filepath.Join(root, "config.yml")
	writeFile(t, path, `
defaults:
  temp_run_root: `+filepath.Join(root, "runs")+`
  history_log: `+filepath.Join(root, "history.log")+`
  readiness: {http_timeout: 1, http_interval: 1, pg_timeout: 1, pg_interval: 1}
editions:
  community:
    "18.0":
      repo_path: `+filepath.Join(root, "absent")+`
      compose_template: `+filepath.Join(root, "compose.tmpl")+`
      http_port: 18069
      longpoll_port: 18072
`)
	_, err := Load(path)
	if !errors.Is(err, ErrManifest) {
		t.Fatalf("expected ErrManifest, got %v", err)
	}
}

func TestLoadRejectsMissingPorts(t *testing.T) {
	root := t.TempDir()
	repo := filepath.Join(root, "repo")
	writeFile(t, filepath.Join(repo, ".keep"), "")
	writeFile(t, filepath.Join(root, "compose.tmpl"), "services: {}\n")
	path := filepath.Join(root, "config.yml")
	writeFile(t, path, `
defaults:
  temp_run_root: `+filepath.Join(root, "runs")+`
  history_log: `+filepath.Join(root, "history.log")+`
  readiness: {http_timeout: 1, http_interval: 1, pg_timeout: 1, pg_interval: 1}
editions:
  community:
    "18.0":
      repo_path: `+repo+`
      compose_template: `+filepath.Join(root, "compose.tmpl")+`
`)
	_, err := Load(path)
	if !errors.Is(err, ErrManifest) {
		t.Fatalf("expected ErrManifest, got %v", err)
	}
}

func TestEntryUnknownPair(t *testing.T) {
	m, err := Load(fixture(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := m.Entry("enterprise", "18.0"); !errors.Is(err, ErrManifest) {
		t.Fatalf("expected ErrManifest for unknown edition, got %v", err)
	}
	if _, err := m.Entry("community", "17.0"); !errors.Is(err, ErrManifest) {
		t.Fatalf("expected ErrManifest for unknown version, got %v", err)
	}
}
