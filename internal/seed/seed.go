// Package seed applies named data-loading scenarios to a freshly started
// run: ordered SQL batches against the run database, then ordered scripts
// piped into the application shell inside the running container. Application
// is all-or-nothing per run: the first failure aborts the remainder and the
// partial state is reclaimed with the run.
package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/example/odoo-launch/internal/composecli"
	"github.com/example/odoo-launch/internal/manifest"
)

// ErrUnknownSeed reports a requested seed name absent from the manifest
// entry.
var ErrUnknownSeed = errors.New("unknown seed")

// Execer is the slice of the compose contract the applier needs.
type Execer interface {
	Exec(ctx context.Context, composeFile, service string, command []string, opts composecli.ExecOptions) (composecli.Result, error)
}

// Params identify the run being seeded.
type Params struct {
	Entry       manifest.Entry
	Name        string
	DSN         string
	DBName      string
	ComposeFile string
	Service     string
}

// Applier runs seeds. RunSQL is swappable so lifecycle tests can fake the
// database.
type Applier struct {
	Exec   Execer
	RunSQL func(ctx context.Context, dsn, sqlText string) error
}

func NewApplier(exec Execer) *Applier {
	return &Applier{Exec: exec, RunSQL: runSQLBatch}
}

// Apply resolves the named seed and applies its SQL files and scripts in
// order. Individual failures are not caught here: they propagate and abort
// the run.
func (a *Applier) Apply(ctx context.Context, p Params) error {
	cfg, ok := p.Entry.Seeds[p.Name]
	if !ok {
		return fmt.Errorf("%w %q for %s %s", ErrUnknownSeed, p.Name, p.Entry.Edition, p.Entry.Version)
	}
	for _, sqlFile := range cfg.SQLFiles {
		text, err := os.ReadFile(sqlFile)
		if err != nil {
			return fmt.Errorf("seed %s: read %s: %w", p.Name, sqlFile, err)
		}
		if err := a.RunSQL(ctx, p.DSN, string(text)); err != nil {
			return fmt.Errorf("seed %s: apply %s: %w", p.Name, sqlFile, err)
		}
	}
	for _, script := range cfg.Scripts {
		payload, err := os.ReadFile(script)
		if err != nil {
			return fmt.Errorf("seed %s: read %s: %w", p.Name, script, err)
		}
		command := []string{"odoo", "shell", "-d", p.DBName, "--no-http"}
		if _, err := a.Exec.Exec(ctx, p.ComposeFile, p.Service, command, composecli.ExecOptions{
			Stdin: string(payload),
			Check: true,
		}); err != nil {
			return fmt.Errorf("seed %s: script %s: %w", p.Name, script, err)
		}
	}
	return nil
}

// runSQLBatch executes the full file text as one auto-committed batch. The
// simple query protocol is forced so multi-statement files run as a single
// round trip instead of failing under prepared-statement mode.
func runSQLBatch(ctx context.Context, dsn, sqlText string) error {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("pgx", dsn+sep+"default_query_exec_mode=simple_protocol")
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.ExecContext(ctx, sqlText)
	return err
}
