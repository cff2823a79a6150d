// Package readiness blocks until a freshly started stack is safe to seed:
// first the Postgres server must accept connections, then the application's
// HTTP layer must answer. Each target polls on its own interval under its
// own timeout budget.
package readiness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrTimeout reports that a target never became ready within its budget.
var ErrTimeout = errors.New("readiness timed out")

// Config carries the probe endpoints and budgets for one run.
type Config struct {
	PGHost     string
	PGPort     int
	PGUser     string
	PGPassword string

	HTTPURL string

	PGTimeout    time.Duration
	PGInterval   time.Duration
	HTTPTimeout  time.Duration
	HTTPInterval time.Duration
}

// WaitForPostgres blocks until the database server accepts a connection to
// the administrative "postgres" database, or the timeout elapses. The run's
// logical database does not exist yet at this point; only server acceptance
// matters.
func WaitForPostgres(ctx context.Context, cfg Config) error {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/postgres?sslmode=disable",
		url.QueryEscape(cfg.PGUser), url.QueryEscape(cfg.PGPassword), cfg.PGHost, cfg.PGPort)
	probe := func(ctx context.Context) error {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return err
		}
		defer db.Close()
		pingCtx, cancel := context.WithTimeout(ctx, cfg.PGInterval)
		defer cancel()
		return db.PingContext(pingCtx)
	}
	return wait(ctx, "postgres", probe, cfg.PGTimeout, cfg.PGInterval)
}

// WaitForHTTP blocks until the health URL answers with any status below 500,
// or the timeout elapses. Authentication and redirect responses count as
// ready: the service is up even when it refuses the probe's credentials.
func WaitForHTTP(ctx context.Context, cfg Config) error {
	client := &http.Client{Timeout: cfg.HTTPInterval}
	probe := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.HTTPURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("status %d from %s", resp.StatusCode, cfg.HTTPURL)
		}
		return nil
	}
	return wait(ctx, "http", probe, cfg.HTTPTimeout, cfg.HTTPInterval)
}

// wait retries probe on a constant interval until it succeeds, the timeout
// budget elapses, or the caller's context is cancelled.
func wait(ctx context.Context, target string, probe func(context.Context) error, timeout, interval time.Duration) error {
	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	policy := backoff.WithContext(backoff.NewConstantBackOff(interval), deadlineCtx)
	err := backoff.Retry(func() error { return probe(deadlineCtx) }, policy)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s not ready after %s: %v", ErrTimeout, target, timeout, err)
}
