// Package mcp provides an MCP (Model Context Protocol) server for memtrace.
package mcp

import (
	"strconv"
	"time"

	"github.com/nvandessel/memtrace/internal/trace"
)

// InlineStepLimit caps the number of steps a text trace may have when it
// is returned inline instead of written to a file.
const InlineStepLimit = 10000

// GenerateInput defines the input for memtrace_generate tool.
type GenerateInput struct {
	Steps     int      `json:"steps" jsonschema:"Number of scheduler steps to simulate"`
	Processes []string `json:"processes" jsonschema:"One locality:max_memory spec per process, e.g. 0.9:64MiB"`
	Seed      uint64   `json:"seed,omitempty" jsonschema:"Random seed; 0 derives one from the clock"`
	Format    string   `json:"format,omitempty" jsonschema:"Output format: text, arrow or sqlite (default: text)"`
	Output    string   `json:"output,omitempty" jsonschema:"Output file name inside the trace directory; required for arrow"`
	Name      string   `json:"name,omitempty" jsonschema:"Label stored with the run"`
	Inline    bool     `json:"inline,omitempty" jsonschema:"Return a text trace in the response instead of writing a file"`
}

// GenerateOutput defines the output for memtrace_generate tool.
type GenerateOutput struct {
	Seed     uint64       `json:"seed" jsonschema:"Seed the run used"`
	Steps    int          `json:"steps" jsonschema:"Steps executed"`
	Records  int          `json:"records" jsonschema:"Records emitted, switches included"`
	Switches int          `json:"switches" jsonschema:"Context switches emitted"`
	Aborted  bool         `json:"aborted" jsonschema:"Whether the run stopped early"`
	Format   string       `json:"format" jsonschema:"Output format"`
	Path     string       `json:"path,omitempty" jsonschema:"Where the trace was written"`
	RunID    int64        `json:"run_id,omitempty" jsonschema:"Run id in the SQLite catalog"`
	Summary  TraceSummary `json:"summary" jsonschema:"Aggregate statistics"`
	Trace    string       `json:"trace,omitempty" jsonschema:"Inline text trace"`
	Message  string       `json:"message" jsonschema:"Human-readable result message"`
}

// StatsInput defines the input for memtrace_stats tool.
type StatsInput struct {
	Path  string `json:"path,omitempty" jsonschema:"Trace file name inside the trace directory"`
	RunID int64  `json:"run_id,omitempty" jsonschema:"Run id in the server's SQLite catalog"`
}

// StatsOutput defines the output for memtrace_stats tool.
type StatsOutput struct {
	Format   string            `json:"format" jsonschema:"Detected trace format"`
	RunID    int64             `json:"run_id,omitempty" jsonschema:"Summarized run id"`
	Metadata map[string]string `json:"metadata,omitempty" jsonschema:"Metadata stored with the trace"`
	Summary  TraceSummary      `json:"summary" jsonschema:"Aggregate statistics"`
}

// RunsInput defines the input for memtrace_runs tool.
type RunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of runs to return (default: 20)"`
}

// RunsOutput defines the output for memtrace_runs tool.
type RunsOutput struct {
	Runs  []RunListItem `json:"runs" jsonschema:"Runs, newest first"`
	Count int           `json:"count" jsonschema:"Number of runs returned"`
	Total int           `json:"total" jsonschema:"Number of runs in the catalog"`
}

// RunListItem is one catalog entry.
type RunListItem struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name,omitempty"`
	Seed       string     `json:"seed"`
	Steps      int        `json:"steps"`
	Processes  int        `json:"processes"`
	Status     string     `json:"status"`
	Records    int        `json:"records"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// TraceSummary is trace.Summary with string map keys, which is what JSON
// schema inference accepts.
type TraceSummary struct {
	Records        int              `json:"records"`
	ByKind         map[string]int   `json:"by_kind"`
	DistinctPages  map[string]int   `json:"distinct_pages"`
	Processes      []ProcessSummary `json:"processes"`
	PageSizes      map[string]int   `json:"page_sizes,omitempty"`
	BytesAllocated uint64           `json:"bytes_allocated"`
	BytesFreed     uint64           `json:"bytes_freed"`
	Orphans        int              `json:"orphans"`
}

// ProcessSummary holds the per-process part of a summary.
type ProcessSummary struct {
	PID      int    `json:"pid"`
	Records  int    `json:"records"`
	LiveHeap uint64 `json:"live_heap"`
}

func toTraceSummary(s trace.Summary) TraceSummary {
	out := TraceSummary{
		Records:        s.Records,
		ByKind:         make(map[string]int, len(s.ByKind)),
		DistinctPages:  make(map[string]int, len(s.DistinctPages)),
		PageSizes:      make(map[string]int, len(s.PageSizes)),
		Processes:      make([]ProcessSummary, 0, len(s.ByProcess)),
		BytesAllocated: s.BytesAllocated,
		BytesFreed:     s.BytesFreed,
		Orphans:        s.Orphans,
	}
	for k, n := range s.ByKind {
		out.ByKind[string(k)] = n
	}
	for k, n := range s.DistinctPages {
		out.DistinctPages[string(k)] = n
	}
	for size, n := range s.PageSizes {
		out.PageSizes[strconv.FormatUint(size, 10)] = n
	}
	for _, pid := range s.Processes() {
		out.Processes = append(out.Processes, ProcessSummary{
			PID:      pid,
			Records:  s.ByProcess[pid],
			LiveHeap: s.LiveHeap[pid],
		})
	}
	return out
}
