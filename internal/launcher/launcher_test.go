package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/odoo-launch/internal/composecli"
	"github.com/example/odoo-launch/internal/history"
	"github.com/example/odoo-launch/internal/manifest"
	"github.com/example/odoo-launch/internal/readiness"
	"github.com/example/odoo-launch/internal/seed"
)

type fakeCompose struct {
	upCalls   []string
	downCalls []string
	execCalls [][]string

	upErr      error
	execResult composecli.Result
	execErr    error
}

func (f *fakeCompose) Up(ctx context.Context, composeFile string) error {
	f.upCalls = append(f.upCalls, composeFile)
	return f.upErr
}

func (f *fakeCompose) Down(ctx context.Context, composeFile string) {
	f.downCalls = append(f.downCalls, composeFile)
}

func (f *fakeCompose) Exec(ctx context.Context, composeFile, service string, command []string, opts composecli.ExecOptions) (composecli.Result, error) {
	f.execCalls = append(f.execCalls, command)
	return f.execResult, f.execErr
}

const testTemplate = `name: {{ .RunID }}
services:
  db:
    image: {{ .PostgresImage }}
    ports:
      - "{{ .PGPort }}:5432"
  odoo:
    image: {{ .OdooImage }}
    depends_on:
      - db
    ports:
      - "{{ .HTTPPort }}:8069"
`

type fixture struct {
	launcher *Launcher
	compose  *fakeCompose
	ledger   *history.Ledger
	runRoot  string
	out      *bytes.Buffer

	sqlBatches []string
	injected   []string
}

func newFixture(t *testing.T, requiresCode bool) *fixture {
	t.Helper()
	base := t.TempDir()
	runRoot := filepath.Join(base, "runs")
	if err := os.MkdirAll(runRoot, 0o755); err != nil {
		t.Fatalf("mkdir run root: %v", err)
	}
	templatePath := filepath.Join(base, "docker-compose.yml.tmpl")
	if err := os.WriteFile(templatePath, []byte(testTemplate), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	seedSQL := filepath.Join(base, "basic.sql")
	if err := os.WriteFile(seedSQL, []byte("INSERT INTO res_partner VALUES (1);"), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	m := &manifest.Manifest{
		Defaults: manifest.Defaults{
			TempRunRoot:   runRoot,
			HistoryLog:    filepath.Join(base, "history.log"),
			PostgresImage: "postgres:16",
			Timezone:      "UTC",
			Readiness: manifest.Readiness{
				HTTPTimeout:  time.Second,
				HTTPInterval: 10 * time.Millisecond,
				PGTimeout:    time.Second,
				PGInterval:   10 * time.Millisecond,
			},
		},
		Editions: map[string]map[string]manifest.Entry{
			"community": {
				"18.0": {
					Edition:                "community",
					Version:                "18.0",
					ComposeTemplate:        templatePath,
					Image:                  "odoo:18.0",
					HTTPPort:               28069,
					LongpollPort:           28072,
					PGPort:                 25432,
					DefaultSeed:            "basic",
					RequiresEnterpriseCode: requiresCode,
					Seeds: map[string]manifest.Seed{
						"basic": {Name: "basic", SQLFiles: []string{seedSQL}},
					},
				},
			},
		},
	}

	f := &fixture{
		compose: &fakeCompose{},
		ledger:  history.NewLedger(m.Defaults.HistoryLog),
		runRoot: runRoot,
		out:     &bytes.Buffer{},
	}
	f.launcher = New(m, f.compose, f.ledger, zap.NewNop(), f.out)
	f.launcher.waitForPostgres = func(ctx context.Context, cfg readiness.Config) error { return nil }
	f.launcher.waitForHTTP = func(ctx context.Context, cfg readiness.Config) error { return nil }
	f.launcher.runSQL = func(ctx context.Context, dsn, sqlText string) error {
		f.sqlBatches = append(f.sqlBatches, sqlText)
		return nil
	}
	f.launcher.injectLicense = func(ctx context.Context, dsn, code string) error {
		f.injected = append(f.injected, code)
		return nil
	}
	return f
}

func (f *fixture) ledgerStatus(t *testing.T, runID string) string {
	t.Helper()
	rec, err := f.ledger.Find(runID)
	if err != nil {
		t.Fatalf("find %s: %v", runID, err)
	}
	return rec.Status
}

func baseOptions() Options {
	return Options{Edition: "community", Version: "18.0"}
}

func TestUpEphemeralRunTearsDown(t *testing.T) {
	f := newFixture(t, false)
	rec, err := f.launcher.Up(context.Background(), baseOptions())
	if err != nil {
		t.Fatalf("up: %v", err)
	}

	if rec.Status != history.StatusStopped {
		t.Fatalf("record status = %s, want stopped", rec.Status)
	}
	if got := f.ledgerStatus(t, rec.RunID); got != history.StatusStopped {
		t.Fatalf("ledger status = %s, want stopped", got)
	}
	if len(f.compose.upCalls) != 1 || len(f.compose.downCalls) != 1 {
		t.Fatalf("up=%d down=%d, want 1 each", len(f.compose.upCalls), len(f.compose.downCalls))
	}
	if _, err := os.Stat(rec.RunRoot); !os.IsNotExist(err) {
		t.Fatalf("run directory %s should be reclaimed", rec.RunRoot)
	}
	if len(f.sqlBatches) != 1 {
		t.Fatalf("seed ran %d SQL batches, want 1", len(f.sqlBatches))
	}
	if !strings.Contains(f.out.String(), "http://localhost:") {
		t.Fatalf("summary missing URL: %q", f.out.String())
	}
}

func TestUpKeepAliveLeavesStackRunning(t *testing.T) {
	f := newFixture(t, false)
	opts := baseOptions()
	opts.KeepAlive = true
	rec, err := f.launcher.Up(context.Background(), opts)
	if err != nil {
		t.Fatalf("up: %v", err)
	}

	if rec.Status != history.StatusRunning {
		t.Fatalf("record status = %s, want running", rec.Status)
	}
	if got := f.ledgerStatus(t, rec.RunID); got != history.StatusRunning {
		t.Fatalf("ledger status = %s, want running", got)
	}
	if len(f.compose.downCalls) != 0 {
		t.Fatal("keep-alive run must not be torn down")
	}
	if _, err := os.Stat(filepath.Join(rec.RunRoot, "run.json")); err != nil {
		t.Fatalf("run snapshot missing: %v", err)
	}
	if _, err := os.Stat(rec.ComposeFile); err != nil {
		t.Fatalf("descriptor missing: %v", err)
	}
}

func TestUpRendersValidDescriptor(t *testing.T) {
	f := newFixture(t, false)
	opts := baseOptions()
	opts.KeepAlive = true
	rec, err := f.launcher.Up(context.Background(), opts)
	if err != nil {
		t.Fatalf("up: %v", err)
	}
	raw, err := os.ReadFile(rec.ComposeFile)
	if err != nil {
		t.Fatalf("read descriptor: %v", err)
	}
	content := string(raw)
	if !strings.Contains(content, "name: "+rec.RunID) {
		t.Fatalf("descriptor missing run id:\n%s", content)
	}
	if !strings.Contains(content, fmt.Sprintf("%d:8069", rec.HTTPPort)) {
		t.Fatalf("descriptor missing http port mapping:\n%s", content)
	}
}

func TestUpProbeTimeoutCleansUp(t *testing.T) {
	f := newFixture(t, false)
	f.launcher.waitForHTTP = func(ctx context.Context, cfg readiness.Config) error {
		return fmt.Errorf("%w: http not ready", readiness.ErrTimeout)
	}

	rec, err := f.launcher.Up(context.Background(), baseOptions())
	if !errors.Is(err, readiness.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if got := f.ledgerStatus(t, rec.RunID); got != history.StatusFailed {
		t.Fatalf("ledger status = %s, want failed", got)
	}
	if len(f.compose.downCalls) != 1 {
		t.Fatalf("down called %d times, want 1", len(f.compose.downCalls))
	}
	if _, err := os.Stat(rec.RunRoot); !os.IsNotExist(err) {
		t.Fatalf("run directory %s should be reclaimed on failure", rec.RunRoot)
	}
}

func TestUpComposeFailureCleansUp(t *testing.T) {
	f := newFixture(t, false)
	f.compose.upErr = &composecli.Error{CommandLine: "up -d", Err: fmt.Errorf("exit status 1")}

	rec, err := f.launcher.Up(context.Background(), baseOptions())
	var cmdErr *composecli.Error
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected *composecli.Error, got %v", err)
	}
	if got := f.ledgerStatus(t, rec.RunID); got != history.StatusFailed {
		t.Fatalf("ledger status = %s, want failed", got)
	}
}

func TestUpUnknownSeedFailsRun(t *testing.T) {
	f := newFixture(t, false)
	opts := baseOptions()
	opts.Seed = "does-not-exist"

	rec, err := f.launcher.Up(context.Background(), opts)
	if !errors.Is(err, seed.ErrUnknownSeed) {
		t.Fatalf("expected ErrUnknownSeed, got %v", err)
	}
	if got := f.ledgerStatus(t, rec.RunID); got != history.StatusFailed {
		t.Fatalf("ledger status = %s, want failed", got)
	}
	if _, err := os.Stat(rec.RunRoot); !os.IsNotExist(err) {
		t.Fatal("run directory should be reclaimed")
	}
}

func TestUpUnknownEditionFailsBeforeLedger(t *testing.T) {
	f := newFixture(t, false)
	opts := Options{Edition: "premium", Version: "18.0"}
	if _, err := f.launcher.Up(context.Background(), opts); !errors.Is(err, manifest.ErrManifest) {
		t.Fatalf("expected ErrManifest, got %v", err)
	}
	records, err := f.ledger.LoadAll()
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("ledger has %d records, want 0", len(records))
	}
}

func TestUpMissingEnterpriseCode(t *testing.T) {
	f := newFixture(t, true)
	t.Setenv(EnterpriseCodeEnv, "")

	rec, err := f.launcher.Up(context.Background(), baseOptions())
	if !errors.Is(err, ErrLicensing) {
		t.Fatalf("expected ErrLicensing, got %v", err)
	}
	if got := f.ledgerStatus(t, rec.RunID); got != history.StatusFailed {
		t.Fatalf("ledger status = %s, want failed", got)
	}
	if len(f.injected) != 0 {
		t.Fatal("licence must not be injected without a code")
	}
}

func TestUpInjectsEnterpriseCodeFromOptions(t *testing.T) {
	f := newFixture(t, true)
	t.Setenv(EnterpriseCodeEnv, "")
	opts := baseOptions()
	opts.EnterpriseCode = "M2024-ABC"

	if _, err := f.launcher.Up(context.Background(), opts); err != nil {
		t.Fatalf("up: %v", err)
	}
	if len(f.injected) != 1 || f.injected[0] != "M2024-ABC" {
		t.Fatalf("injected = %v", f.injected)
	}
}

func TestUpInjectsEnterpriseCodeFromEnv(t *testing.T) {
	f := newFixture(t, true)
	t.Setenv(EnterpriseCodeEnv, "M2024-ENV")

	if _, err := f.launcher.Up(context.Background(), baseOptions()); err != nil {
		t.Fatalf("up: %v", err)
	}
	if len(f.injected) != 1 || f.injected[0] != "M2024-ENV" {
		t.Fatalf("injected = %v", f.injected)
	}
}

func TestUpRunsTestSuite(t *testing.T) {
	f := newFixture(t, false)
	opts := baseOptions()
	opts.RunTests = true
	opts.Modules = []string{"sale", "stock"}
	opts.TestTags = "/sale"

	rec, err := f.launcher.Up(context.Background(), opts)
	if err != nil {
		t.Fatalf("up: %v", err)
	}
	if len(f.compose.execCalls) != 1 {
		t.Fatalf("exec called %d times, want 1", len(f.compose.execCalls))
	}
	cmd := strings.Join(f.compose.execCalls[0], " ")
	wantParts := []string{
		"odoo -d " + rec.DBName,
		"--test-enable",
		"--stop-after-init",
		"--http-port=0",
		"-u sale,stock",
		"--test-tags /sale",
	}
	for _, part := range wantParts {
		if !strings.Contains(cmd, part) {
			t.Fatalf("test command %q missing %q", cmd, part)
		}
	}
}

func TestUpTestFailureFailsRun(t *testing.T) {
	f := newFixture(t, false)
	f.compose.execResult = composecli.Result{ExitCode: 1, Stderr: "FAIL: TestSale"}
	opts := baseOptions()
	opts.RunTests = true

	rec, err := f.launcher.Up(context.Background(), opts)
	if !errors.Is(err, ErrTestFailure) {
		t.Fatalf("expected ErrTestFailure, got %v", err)
	}
	if !strings.Contains(err.Error(), "FAIL: TestSale") {
		t.Fatalf("error should carry test output: %v", err)
	}
	if got := f.ledgerStatus(t, rec.RunID); got != history.StatusFailed {
		t.Fatalf("ledger status = %s, want failed", got)
	}
}

func TestStopTearsDownRecordedRun(t *testing.T) {
	f := newFixture(t, false)
	opts := baseOptions()
	opts.KeepAlive = true
	rec, err := f.launcher.Up(context.Background(), opts)
	if err != nil {
		t.Fatalf("up: %v", err)
	}

	if err := f.launcher.Stop(context.Background(), rec.RunID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(f.compose.downCalls) != 1 {
		t.Fatalf("down called %d times, want 1", len(f.compose.downCalls))
	}
	if _, err := os.Stat(rec.RunRoot); !os.IsNotExist(err) {
		t.Fatal("run directory should be removed on stop")
	}
	if got := f.ledgerStatus(t, rec.RunID); got != history.StatusStopped {
		t.Fatalf("ledger status = %s, want stopped", got)
	}

	// Stopping again is a no-op apart from another best-effort down.
	if err := f.launcher.Stop(context.Background(), rec.RunID); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestStopUnknownRun(t *testing.T) {
	f := newFixture(t, false)
	err := f.launcher.Stop(context.Background(), "odoo-00000000000000-ffffff")
	if !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSweepStaleKeepsActiveRuns(t *testing.T) {
	f := newFixture(t, false)

	activeDir := filepath.Join(f.runRoot, "odoo-20260101000000-aaaaaa")
	staleDir := filepath.Join(f.runRoot, "odoo-20260101000000-bbbbbb")
	orphanDir := filepath.Join(f.runRoot, "odoo-20260101000000-cccccc")
	for _, dir := range []string{activeDir, staleDir, orphanDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	mustAppend := func(runID string, status string) {
		rec := history.NewRecord(history.Record{RunID: runID, Status: status})
		if err := f.ledger.Append(rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	mustAppend(filepath.Base(activeDir), history.StatusRunning)
	mustAppend(filepath.Base(staleDir), history.StatusStarting)

	removed, err := f.launcher.SweepStale()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("removed %v, want 2 paths", removed)
	}
	if _, err := os.Stat(activeDir); err != nil {
		t.Fatalf("active run directory must survive sweep: %v", err)
	}
	for _, dir := range []string{staleDir, orphanDir} {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Fatalf("%s should be swept", dir)
		}
	}
}

func TestNewDBNameShape(t *testing.T) {
	entry := manifest.Entry{Edition: "community", Version: "18.0"}
	name := newDBName(entry)
	if !strings.HasPrefix(name, "community_18_0_") {
		t.Fatalf("db name = %q", name)
	}
	if strings.Contains(name, ".") || strings.Contains(name, "-") {
		t.Fatalf("db name %q must be a valid identifier", name)
	}
}

func TestNewRunIDUnique(t *testing.T) {
	a, b := newRunID(), newRunID()
	if a == b {
		t.Fatalf("run ids collided: %s", a)
	}
	if !strings.HasPrefix(a, "odoo-") {
		t.Fatalf("run id = %q", a)
	}
}
