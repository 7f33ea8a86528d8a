// Package store persists generated traces in SQLite. Each run gets a row in
// the run catalog (seed, steps, config snapshot, summary) and its records
// are stored in generation order, so a run can be listed, replayed and
// re-summarized later.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/memtrace/internal/trace"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
	RunAborted  RunStatus = "aborted"
	RunFailed   RunStatus = "failed"
)

// RunInfo describes a run at the moment it starts.
type RunInfo struct {
	Name      string
	Seed      uint64
	Steps     int
	Processes int

	// Config is the YAML snapshot of the configuration used.
	Config string
}

// Run is one catalog entry.
type Run struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name,omitempty"`
	Seed       uint64         `json:"seed"`
	Steps      int            `json:"steps"`
	Processes  int            `json:"processes"`
	Config     string         `json:"config"`
	Status     RunStatus      `json:"status"`
	Records    int            `json:"records"`
	Summary    *trace.Summary `json:"summary,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// SQLiteTraceStore is a run catalog plus record storage in one SQLite file.
type SQLiteTraceStore struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteTraceStore opens (creating if needed) the database at dbPath.
func NewSQLiteTraceStore(dbPath string) (*SQLiteTraceStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteTraceStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteTraceStore) Path() string {
	return s.dbPath
}

// BeginRun registers a new run and returns a writer for its records.
// batchSize records are buffered before each insert transaction.
func (s *SQLiteTraceStore) BeginRun(ctx context.Context, info RunInfo, batchSize int) (*RunWriter, error) {
	if batchSize <= 0 {
		batchSize = 1
	}

	s.mu.Lock()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (name, seed, steps, processes, config_yaml, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		info.Name, strconv.FormatUint(info.Seed, 10), info.Steps, info.Processes,
		info.Config, string(RunRunning), time.Now().UTC().Format(time.RFC3339Nano))
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get run id: %w", err)
	}

	return &RunWriter{
		store:     s,
		ctx:       context.WithoutCancel(ctx),
		runID:     id,
		batchSize: batchSize,
		pending:   make([]trace.Record, 0, batchSize),
		stats:     trace.NewCollector(),
	}, nil
}

const runColumns = `id, name, seed, steps, processes, config_yaml, status, record_count, summary, started_at, finished_at`

// GetRun returns one run by id.
func (s *SQLiteTraceStore) GetRun(ctx context.Context, id int64) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns every run, newest first.
func (s *SQLiteTraceStore) ListRuns(ctx context.Context) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return runs, nil
}

// LoadRecords streams the records of a run to fn in generation order. It
// stops at the first error fn returns. fn must not call back into the store.
func (s *SQLiteTraceStore) LoadRecords(ctx context.Context, runID int64, fn func(trace.Record) error) error {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT pid, kind, value FROM records WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec trace.Record
		var kind string
		var value int64
		if err := rows.Scan(&rec.PID, &kind, &value); err != nil {
			return fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Kind = trace.Kind(kind)
		rec.Value = uint64(value)
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// DeleteRun removes a run and its records.
func (s *SQLiteTraceStore) DeleteRun(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %d: %w", id, ErrRunNotFound)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteTraceStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		name       sql.NullString
		seed       string
		status     string
		summary    sql.NullString
		startedAt  string
		finishedAt sql.NullString
	)
	if err := row.Scan(&run.ID, &name, &seed, &run.Steps, &run.Processes, &run.Config,
		&status, &run.Records, &summary, &startedAt, &finishedAt); err != nil {
		return nil, err
	}

	run.Name = name.String
	run.Status = RunStatus(status)

	var err error
	if run.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return nil, fmt.Errorf("run %d: invalid seed %q: %w", run.ID, seed, err)
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("run %d: invalid started_at: %w", run.ID, err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("run %d: invalid finished_at: %w", run.ID, err)
		}
		run.FinishedAt = &t
	}
	if summary.Valid && summary.String != "" {
		var sum trace.Summary
		if err := json.Unmarshal([]byte(summary.String), &sum); err != nil {
			return nil, fmt.Errorf("run %d: invalid summary: %w", run.ID, err)
		}
		run.Summary = &sum
	}
	return &run, nil
}
