package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nvandessel/memtrace/internal/trace"
)

// ErrRunFinished is returned when writing to a run that was already finished.
var ErrRunFinished = errors.New("run already finished")

// RunWriter stores the records of one run. It implements trace.Sink and
// keeps a running trace.Summary that is saved with the run on Finish.
//
// Records are buffered and inserted batchSize at a time. Inserts ignore the
// cancellation of the context BeginRun was called with, so an interrupted
// run can still flush what it generated.
type RunWriter struct {
	store     *SQLiteTraceStore
	ctx       context.Context
	runID     int64
	batchSize int

	pending  []trace.Record
	seq      int64
	stats    *trace.Collector
	finished bool
}

// RunID returns the catalog id of the run.
func (w *RunWriter) RunID() int64 { return w.runID }

// Count returns the number of records accepted so far.
func (w *RunWriter) Count() int { return int(w.seq) + len(w.pending) }

// Write buffers one record, inserting the buffer once it is full.
func (w *RunWriter) Write(r trace.Record) error {
	if w.finished {
		return ErrRunFinished
	}
	w.pending = append(w.pending, r)
	w.stats.Observe(r)
	if len(w.pending) >= w.batchSize {
		return w.Flush()
	}
	return nil
}

// Flush inserts all buffered records in one transaction.
func (w *RunWriter) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}

	s := w.store
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(w.ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(w.ctx,
		`INSERT INTO records (run_id, seq, pid, kind, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	seq := w.seq
	for _, r := range w.pending {
		if _, err := stmt.ExecContext(w.ctx, w.runID, seq, r.PID, string(r.Kind), int64(r.Value)); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", seq, err)
		}
		seq++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	w.seq = seq
	w.pending = w.pending[:0]
	return nil
}

// Summary returns the summary of the records written so far.
func (w *RunWriter) Summary() trace.Summary {
	return w.stats.Summary()
}

// Finish flushes pending records and closes the catalog entry with status.
// Later writes fail with ErrRunFinished; a second Finish is a no-op.
func (w *RunWriter) Finish(status RunStatus) error {
	if w.finished {
		return nil
	}
	flushErr := w.Flush()
	if flushErr != nil {
		status = RunFailed
	}

	summary, err := json.Marshal(w.stats.Summary())
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	s := w.store
	s.mu.Lock()
	_, err = s.db.ExecContext(w.ctx, `
		UPDATE runs SET status = ?, record_count = ?, summary = ?, finished_at = ?
		WHERE id = ?`,
		string(status), w.seq, string(summary), time.Now().UTC().Format(time.RFC3339Nano), w.runID)
	s.mu.Unlock()
	w.finished = true

	if flushErr != nil {
		return flushErr
	}
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// Close finishes the run as complete unless Finish was already called.
func (w *RunWriter) Close() error {
	return w.Finish(RunComplete)
}
