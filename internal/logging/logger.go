// Package logging provides leveled logging and step tracing for memtrace.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A DecisionLogger that records every simulation step as JSONL
//     (decisions.jsonl next to the trace output)
package logging

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug. At this level the
// generator also reports steps that produced no record.
const LevelTrace = slog.LevelDebug - 4

// DecisionFile is the file name the DecisionLogger writes inside its dir.
const DecisionFile = "decisions.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "error", "warn", "info", "debug", "trace"
// (case-insensitive). Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// ValidLevel reports whether s names a level ParseLevel understands.
func ValidLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "error", "warn", "warning", "info", "debug", "trace":
		return true
	}
	return false
}

// NewLogger creates a leveled slog.Logger writing to w. format selects the
// handler: "json" for slog's JSON handler, anything else for text.
func NewLogger(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// DecisionLogger writes one JSON object per simulation step to a JSONL file.
// It is safe for concurrent use. A nil DecisionLogger is safe to use;
// all methods are no-ops on nil receiver.
//
// Writes are buffered. Entries are only guaranteed on disk after Close.
type DecisionLogger struct {
	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	path    string
	entries int
}

// NewDecisionLogger creates a decision logger writing to dir/decisions.jsonl.
// Below debug verbosity it returns nil and no file is created.
// Returns nil if the file cannot be opened. All methods are nil-safe.
func NewDecisionLogger(dir string, level string) *DecisionLogger {
	if ParseLevel(level) > slog.LevelDebug {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, DecisionFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &DecisionLogger{file: f, buf: bufio.NewWriter(f), path: path}
}

// Log writes a decision event as a single JSONL line.
// A "time" field is added. The caller's map is not mutated.
func (dl *DecisionLogger) Log(event map[string]any) {
	if dl == nil {
		return
	}

	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.buf == nil {
		return
	}
	data = append(data, '\n')
	if _, err := dl.buf.Write(data); err == nil {
		dl.entries++
	}
}

// Path returns the file being written, or "" on a nil logger.
func (dl *DecisionLogger) Path() string {
	if dl == nil {
		return ""
	}
	return dl.path
}

// Entries returns how many events have been logged.
func (dl *DecisionLogger) Entries() int {
	if dl == nil {
		return 0
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	return dl.entries
}

// Close flushes and closes the underlying file. Safe to call on nil
// receiver and more than once.
func (dl *DecisionLogger) Close() error {
	if dl == nil {
		return nil
	}

	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.file == nil {
		return nil
	}

	flushErr := dl.buf.Flush()
	closeErr := dl.file.Close()
	dl.file = nil
	dl.buf = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
