// Package launcher drives the run lifecycle: allocate resources, render the
// descriptor, record the run, start the stack, wait for readiness, seed,
// optionally licence and test, then either hand the stack over or tear it
// down. Every failure after the ledger checkpoint funnels through one
// cleanup handler that stops the stack, reclaims the working directory, and
// marks the run failed before the original error reaches the caller.
package launcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/odoo-launch/internal/composecli"
	"github.com/example/odoo-launch/internal/fsutil"
	"github.com/example/odoo-launch/internal/history"
	"github.com/example/odoo-launch/internal/license"
	"github.com/example/odoo-launch/internal/manifest"
	"github.com/example/odoo-launch/internal/netutil"
	"github.com/example/odoo-launch/internal/readiness"
	"github.com/example/odoo-launch/internal/seed"
)

const (
	// EnterpriseCodeEnv is the environment fallback for the licence code.
	EnterpriseCodeEnv = "ODOO_ENTERPRISE_CODE"

	dbUser       = "odoo"
	dbPassword   = "odoo"
	odooService  = "odoo"
	dbService    = "db"
	portAttempts = 20
)

// Compose is the slice of the stack controller contract the launcher drives.
// *composecli.Runner satisfies it; lifecycle tests substitute a fake.
type Compose interface {
	Up(ctx context.Context, composeFile string) error
	Down(ctx context.Context, composeFile string)
	Exec(ctx context.Context, composeFile, service string, command []string, opts composecli.ExecOptions) (composecli.Result, error)
}

// Options select what to launch and how.
type Options struct {
	Edition        string
	Version        string
	Seed           string
	RunTests       bool
	Modules        []string
	TestTags       string
	KeepAlive      bool
	EnterpriseCode string
}

// Launcher owns one manifest's worth of runs. The zap logger carries
// diagnostics; Out receives the human-facing summary lines.
type Launcher struct {
	Manifest *manifest.Manifest
	Compose  Compose
	Ledger   *history.Ledger
	Log      *zap.Logger
	Out      io.Writer

	// Seams for lifecycle tests; production wiring comes from New.
	waitForPostgres func(ctx context.Context, cfg readiness.Config) error
	waitForHTTP     func(ctx context.Context, cfg readiness.Config) error
	runSQL          func(ctx context.Context, dsn, sqlText string) error
	injectLicense   func(ctx context.Context, dsn, code string) error
	validate        func(composeFile, projectName string) error
}

// New wires a launcher with the production probes, seed runner, and licence
// injector.
func New(m *manifest.Manifest, compose Compose, ledger *history.Ledger, log *zap.Logger, out io.Writer) *Launcher {
	return &Launcher{
		Manifest:        m,
		Compose:         compose,
		Ledger:          ledger,
		Log:             log,
		Out:             out,
		waitForPostgres: readiness.WaitForPostgres,
		waitForHTTP:     readiness.WaitForHTTP,
		injectLicense:   license.Inject,
		validate:        composecli.Validate,
	}
}

// Up provisions one disposable stack end to end and returns its final ledger
// record. The record is persisted with status "starting" before any
// container work begins; any later failure tears the stack down, reclaims
// the run directory, marks the run failed, and returns the original error
// unchanged.
func (l *Launcher) Up(ctx context.Context, opts Options) (history.Record, error) {
	entry, err := l.Manifest.Entry(opts.Edition, opts.Version)
	if err != nil {
		return history.Record{}, err
	}

	runID := newRunID()
	dbName := newDBName(entry)

	httpPort, err := netutil.EnsureAvailablePort(entry.HTTPPort, portAttempts)
	if err != nil {
		return history.Record{}, err
	}
	longpollPort, err := netutil.EnsureAvailablePort(entry.LongpollPort, portAttempts)
	if err != nil {
		return history.Record{}, err
	}
	pgPort, err := netutil.EnsureAvailablePort(entry.PGPort, portAttempts)
	if err != nil {
		return history.Record{}, err
	}

	runRoot := filepath.Join(l.Manifest.Defaults.TempRunRoot, runID)
	if err := fsutil.EnsureDir(runRoot); err != nil {
		return history.Record{}, fmt.Errorf("create run directory %s: %w", runRoot, err)
	}

	enterpriseCode := opts.EnterpriseCode
	if enterpriseCode == "" {
		enterpriseCode = os.Getenv(EnterpriseCodeEnv)
	}

	composeFile := filepath.Join(runRoot, "docker-compose.yml")
	if err := l.renderDescriptor(entry, renderParams{
		runID:          runID,
		runRoot:        runRoot,
		dbName:         dbName,
		httpPort:       httpPort,
		longpollPort:   longpollPort,
		pgPort:         pgPort,
		enterpriseCode: enterpriseCode,
	}, composeFile); err != nil {
		fsutil.ForceRemove(runRoot)
		return history.Record{}, err
	}

	seedName := opts.Seed
	if seedName == "" {
		seedName = entry.DefaultSeed
	}

	rec := history.NewRecord(history.Record{
		RunID:        runID,
		Edition:      opts.Edition,
		Version:      opts.Version,
		DBName:       dbName,
		ComposeFile:  composeFile,
		RunRoot:      runRoot,
		HTTPPort:     httpPort,
		LongpollPort: longpollPort,
		PGPort:       pgPort,
		Seed:         seedName,
		Status:       history.StatusStarting,
		KeepAlive:    opts.KeepAlive,
	})
	// Durability checkpoint: the record must exist before the stack
	// controller is touched, so a crash from here on leaves a ledger trail.
	if err := l.Ledger.Append(rec); err != nil {
		fsutil.ForceRemove(runRoot)
		return history.Record{}, err
	}

	if err := l.provision(ctx, entry, &rec, opts, enterpriseCode); err != nil {
		l.failRun(ctx, rec)
		return rec, err
	}
	return rec, nil
}

// provision covers everything between the ledger checkpoint and the final
// status update. Errors returned from here trigger failRun exactly once.
func (l *Launcher) provision(ctx context.Context, entry manifest.Entry, rec *history.Record, opts Options, enterpriseCode string) error {
	l.Log.Info("starting run",
		zap.String("run_id", rec.RunID),
		zap.String("edition", rec.Edition),
		zap.String("version", rec.Version),
		zap.Int("http_port", rec.HTTPPort),
		zap.Int("pg_port", rec.PGPort))

	if err := l.Compose.Up(ctx, rec.ComposeFile); err != nil {
		return err
	}

	probeCfg := readiness.Config{
		PGHost:       "127.0.0.1",
		PGPort:       rec.PGPort,
		PGUser:       dbUser,
		PGPassword:   dbPassword,
		HTTPURL:      fmt.Sprintf("http://127.0.0.1:%d/web/login", rec.HTTPPort),
		PGTimeout:    l.Manifest.Defaults.Readiness.PGTimeout,
		PGInterval:   l.Manifest.Defaults.Readiness.PGInterval,
		HTTPTimeout:  l.Manifest.Defaults.Readiness.HTTPTimeout,
		HTTPInterval: l.Manifest.Defaults.Readiness.HTTPInterval,
	}
	// The application cannot come up before its database does, so the
	// cheaper probe runs first and the HTTP probe confirms the app layer.
	if err := l.waitForPostgres(ctx, probeCfg); err != nil {
		return err
	}
	if err := l.waitForHTTP(ctx, probeCfg); err != nil {
		return err
	}

	applier := seed.NewApplier(l.Compose)
	if l.runSQL != nil {
		applier.RunSQL = l.runSQL
	}
	if err := applier.Apply(ctx, seed.Params{
		Entry:       entry,
		Name:        rec.Seed,
		DSN:         pgDSN(rec.PGPort, rec.DBName),
		DBName:      rec.DBName,
		ComposeFile: rec.ComposeFile,
		Service:     odooService,
	}); err != nil {
		return err
	}

	if entry.RequiresEnterpriseCode {
		if enterpriseCode == "" {
			return fmt.Errorf("%w: set %s or pass --enterprise-code", ErrLicensing, EnterpriseCodeEnv)
		}
		if err := l.injectLicense(ctx, pgDSN(rec.PGPort, rec.DBName), enterpriseCode); err != nil {
			return fmt.Errorf("inject enterprise code: %w", err)
		}
	}

	if opts.RunTests {
		l.Log.Info("running test suite", zap.String("run_id", rec.RunID))
		if err := l.runTests(ctx, rec, opts); err != nil {
			return err
		}
	}

	newStatus := history.StatusStopped
	if opts.KeepAlive {
		newStatus = history.StatusRunning
	}
	rec.Status = newStatus

	if err := l.writeSnapshot(*rec); err != nil {
		return err
	}
	l.printSummary(*rec)

	if !opts.KeepAlive {
		l.Log.Info("tearing down, keep-alive not requested", zap.String("run_id", rec.RunID))
		l.Compose.Down(ctx, rec.ComposeFile)
		fsutil.ForceRemove(rec.RunRoot)
	} else {
		l.Log.Info("run stays active until stopped", zap.String("run_id", rec.RunID))
	}

	return l.Ledger.UpdateStatus(rec.RunID, newStatus)
}

// failRun is the single failure handler. Each step is best-effort and
// independent: a failing stack-down must not block directory reclaim, and a
// failing reclaim must not block the ledger update. Cleanup runs on an
// uncancellable context so an interrupt that caused the failure cannot also
// abort the cleanup.
func (l *Launcher) failRun(ctx context.Context, rec history.Record) {
	cleanupCtx := context.WithoutCancel(ctx)
	l.Compose.Down(cleanupCtx, rec.ComposeFile)
	fsutil.ForceRemove(rec.RunRoot)
	if err := l.Ledger.UpdateStatus(rec.RunID, history.StatusFailed); err != nil {
		l.Log.Warn("could not mark run failed",
			zap.String("run_id", rec.RunID), zap.Error(err))
	}
}

// Stop tears down a recorded run and marks it stopped. Stopping an already
// stopped run is idempotent.
func (l *Launcher) Stop(ctx context.Context, runID string) error {
	rec, err := l.Ledger.Find(runID)
	if err != nil {
		return err
	}
	l.Compose.Down(ctx, rec.ComposeFile)
	fsutil.ForceRemove(rec.RunRoot)
	return l.Ledger.UpdateStatus(runID, history.StatusStopped)
}

// SweepStale removes run directories under the configured run root that have
// no ledger record with status running, and returns the removed paths. It is
// the out-of-band reclaim for crashes that left a record in starting state.
func (l *Launcher) SweepStale() ([]string, error) {
	records, err := l.Ledger.LoadAll()
	if err != nil {
		return nil, err
	}
	active := make(map[string]struct{})
	for _, rec := range records {
		if rec.Status == history.StatusRunning {
			active[rec.RunID] = struct{}{}
		}
	}
	matches, err := filepath.Glob(filepath.Join(l.Manifest.Defaults.TempRunRoot, "odoo-*"))
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			continue
		}
		if _, ok := active[filepath.Base(path)]; ok {
			continue
		}
		fsutil.ForceRemove(path)
		removed = append(removed, path)
	}
	return removed, nil
}

func (l *Launcher) runTests(ctx context.Context, rec *history.Record, opts Options) error {
	command := []string{"odoo", "-d", rec.DBName, "--test-enable", "--stop-after-init", "--http-port=0"}
	if len(opts.Modules) > 0 {
		command = append(command, "-u", strings.Join(opts.Modules, ","))
	}
	if opts.TestTags != "" {
		command = append(command, "--test-tags", opts.TestTags)
	}
	res, err := l.Compose.Exec(ctx, rec.ComposeFile, odooService, command, composecli.ExecOptions{})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w (exit %d):\n%s\n%s", ErrTestFailure, res.ExitCode, res.Stdout, res.Stderr)
	}
	return nil
}

// writeSnapshot drops a run.json copy of the final record into the working
// directory for tooling that inspects a kept-alive run without the ledger.
func (l *Launcher) writeSnapshot(rec history.Record) error {
	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run snapshot: %w", err)
	}
	path := filepath.Join(rec.RunRoot, "run.json")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write run snapshot: %w", err)
	}
	return nil
}

var (
	summarySuccess = color.New(color.FgGreen).SprintFunc()
	summaryInfo    = color.New(color.FgCyan).SprintFunc()
)

func (l *Launcher) printSummary(rec history.Record) {
	fmt.Fprintln(l.Out, summarySuccess("Odoo environment is ready"))
	fmt.Fprintf(l.Out, "%s %s\n", summaryInfo("Run manifest:"), filepath.Join(rec.RunRoot, "run.json"))
	fmt.Fprintf(l.Out, "%s http://localhost:%d?db=%s\n", summaryInfo("Open"), rec.HTTPPort, rec.DBName)
}

// newRunID produces an identifier with a sortable UTC timestamp component
// and a random suffix.
func newRunID() string {
	timestamp := time.Now().UTC().Format("20060102150405")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("odoo-%s-%s", timestamp, suffix)
}

// newDBName derives a unique logical database name from the entry.
func newDBName(entry manifest.Entry) string {
	version := strings.ReplaceAll(entry.Version, ".", "_")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%s", entry.Edition, version, suffix)
}

// pgDSN builds the connection string for a run's database on the host-mapped
// port.
func pgDSN(port int, dbName string) string {
	return fmt.Sprintf("postgres://%s:%s@127.0.0.1:%d/%s?sslmode=disable",
		url.QueryEscape(dbUser), url.QueryEscape(dbPassword), port, dbName)
}
