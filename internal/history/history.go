// Package history persists the run ledger: one JSON record per line,
// append-oriented, tolerant of corrupt lines on read. The ledger is the
// single source of truth for run status and survives launcher crashes.
package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Run status values. Transitions are monotonic: starting moves to exactly one
// of running, stopped, or failed; an operator stop of a running stack is the
// only transition out of a terminal status and is idempotent.
const (
	StatusStarting = "starting"
	StatusRunning  = "running"
	StatusStopped  = "stopped"
	StatusFailed   = "failed"
)

// ErrNotFound reports a run id with no ledger record.
var ErrNotFound = errors.New("run id not found in history")

// Record is one ledger line describing a provisioned run. Field names match
// the on-disk line format consumed by external tooling.
type Record struct {
	RunID        string `json:"run_id"`
	Edition      string `json:"edition"`
	Version      string `json:"version"`
	DBName       string `json:"db_name"`
	ComposeFile  string `json:"compose_file"`
	RunRoot      string `json:"run_root"`
	HTTPPort     int    `json:"http_port"`
	LongpollPort int    `json:"longpoll_port"`
	PGPort       int    `json:"pg_port"`
	Seed         string `json:"seed"`
	StartedAt    string `json:"started_at"`
	Status       string `json:"status"`
	KeepAlive    bool   `json:"keep_alive"`
}

// NewRecord stamps a record with the current UTC time.
func NewRecord(rec Record) Record {
	rec.StartedAt = time.Now().UTC().Format(time.RFC3339)
	return rec
}

// Ledger reads and writes the history file at a fixed path. Concurrent
// appends from separate processes are line-atomic; concurrent status updates
// are not coordinated and the last writer wins.
type Ledger struct {
	path string
}

func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

// Path returns the ledger file location.
func (l *Ledger) Path() string { return l.path }

// Append serialises rec as one line and appends it, creating parent
// directories as needed. The line is written in a single write call so
// concurrent appenders cannot interleave partial records.
func (l *Ledger) Append(rec Record) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode history record: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open history log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append history record: %w", err)
	}
	return nil
}

// LoadAll returns every parseable record in file order. Malformed lines are
// skipped: corruption in one record must not block reading the rest.
func (l *Ledger) LoadAll() ([]Record, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history log: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read history log: %w", err)
	}
	return records, nil
}

// Find returns the record for runID.
func (l *Ledger) Find(runID string) (Record, error) {
	records, err := l.LoadAll()
	if err != nil {
		return Record{}, err
	}
	for _, rec := range records {
		if rec.RunID == runID {
			return rec, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
}

// UpdateStatus rewrites the ledger with the matching record's status changed
// and every other record preserved in order. The rewrite lands in a temp file
// that is renamed over the original so a crash mid-update cannot truncate
// history. Callers must serialise concurrent updates externally.
func (l *Ledger) UpdateStatus(runID, status string) error {
	records, err := l.LoadAll()
	if err != nil {
		return err
	}
	updated := false
	for i := range records {
		if records[i].RunID == runID {
			records[i].Status = status
			updated = true
		}
	}
	if !updated {
		return fmt.Errorf("%w: %s", ErrNotFound, runID)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".history-*")
	if err != nil {
		return fmt.Errorf("create history temp file: %w", err)
	}
	tmpPath := tmp.Name()
	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("encode history record: %w", err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write history log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close history temp file: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace history log: %w", err)
	}
	return nil
}
