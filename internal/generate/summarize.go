package generate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nvandessel/memtrace/internal/config"
	"github.com/nvandessel/memtrace/internal/export"
	"github.com/nvandessel/memtrace/internal/store"
	"github.com/nvandessel/memtrace/internal/trace"
)

var (
	arrowMagic  = []byte("ARROW1")
	sqliteMagic = []byte("SQLite format 3\x00")
)

// DetectFormat sniffs the output format of a trace file from its header.
// Anything that is neither an Arrow nor a SQLite file is treated as text.
func DetectFormat(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening trace: %w", err)
	}
	defer f.Close()

	head := make([]byte, len(sqliteMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading trace header: %w", err)
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, arrowMagic):
		return config.FormatArrow, nil
	case bytes.HasPrefix(head, sqliteMagic):
		return config.FormatSQLite, nil
	}
	return config.FormatText, nil
}

// FileSummary is the result of summarizing a stored trace.
type FileSummary struct {
	Path     string            `json:"path"`
	Format   string            `json:"format"`
	RunID    int64             `json:"run_id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Summary  trace.Summary     `json:"summary"`
}

// SummarizeFile aggregates a trace in any output format. For SQLite files
// runID selects the run; 0 means the most recent one.
func SummarizeFile(ctx context.Context, path string, runID int64) (FileSummary, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return FileSummary{}, err
	}
	out := FileSummary{Path: path, Format: format}

	switch format {
	case config.FormatArrow:
		out.Summary, out.Metadata, err = export.SummarizeArrow(path)
		return out, err

	case config.FormatSQLite:
		st, err := store.NewSQLiteTraceStore(path)
		if err != nil {
			return out, err
		}
		defer st.Close()

		if runID == 0 {
			runs, err := st.ListRuns(ctx)
			if err != nil {
				return out, err
			}
			if len(runs) == 0 {
				return out, fmt.Errorf("%s: %w", path, store.ErrRunNotFound)
			}
			runID = runs[0].ID
		}
		out.RunID = runID

		c := trace.NewCollector()
		err = st.LoadRecords(ctx, runID, func(r trace.Record) error {
			c.Observe(r)
			return nil
		})
		out.Summary = c.Summary()
		return out, err
	}

	f, err := os.Open(path)
	if err != nil {
		return out, fmt.Errorf("opening trace: %w", err)
	}
	defer f.Close()
	out.Summary, err = trace.Summarize(f)
	return out, err
}
