package mcp

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/memtrace/internal/config"
	"github.com/nvandessel/memtrace/internal/generate"
	"github.com/nvandessel/memtrace/internal/pathutil"
	"github.com/nvandessel/memtrace/internal/ratelimit"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// registerTools registers all memtrace MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "memtrace_generate",
		Description: "Simulate processes and generate a synthetic memory access trace (text, arrow or sqlite)",
	}, s.handleGenerate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "memtrace_stats",
		Description: "Summarize a stored trace file or a run from the trace catalog",
	}, s.handleStats)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "memtrace_runs",
		Description: "List generation runs recorded in the trace catalog",
	}, s.handleRuns)
}

// handleGenerate implements the memtrace_generate tool.
func (s *Server) handleGenerate(ctx context.Context, req *sdk.CallToolRequest, args GenerateInput) (_ *sdk.CallToolResult, _ GenerateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("memtrace_generate", start, retErr, sanitizeToolParams(map[string]any{
			"steps": args.Steps, "seed": args.Seed, "format": args.Format,
			"processes": len(args.Processes), "output": args.Output, "name": args.Name,
			"inline": args.Inline,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "memtrace_generate"); err != nil {
		return nil, GenerateOutput{}, err
	}

	procs, err := config.ParseProcessSpecs(args.Processes)
	if err != nil {
		return nil, GenerateOutput{}, err
	}

	cfg := config.Default()
	cfg.Generator.Name = args.Name
	cfg.Generator.Steps = args.Steps
	cfg.Generator.Seed = args.Seed
	cfg.Generator.Processes = procs
	if args.Format != "" {
		cfg.Output.Format = args.Format
	}

	var buf bytes.Buffer
	inline := false
	switch {
	case cfg.Output.Format == config.FormatText && (args.Inline || args.Output == ""):
		if args.Steps > InlineStepLimit {
			return nil, GenerateOutput{}, fmt.Errorf("inline traces are limited to %d steps; set output to write a file", InlineStepLimit)
		}
		inline = true
	case cfg.Output.Format == config.FormatSQLite && args.Output == "":
		cfg.Output.Path = s.store.Path()
	default:
		if args.Output == "" {
			return nil, GenerateOutput{}, fmt.Errorf("output is required for format %q", cfg.Output.Format)
		}
		path, err := pathutil.ResolveOutput(args.Output, s.traceDirs)
		if err != nil {
			return nil, GenerateOutput{}, err
		}
		cfg.Output.Path = path
	}

	rep, err := generate.Run(ctx, generate.Request{
		Config: cfg,
		Stdout: &buf,
		Logger: s.logger,
	})
	if err != nil {
		return nil, GenerateOutput{}, fmt.Errorf("generation failed: %w", err)
	}

	out := GenerateOutput{
		Seed:     rep.Seed,
		Steps:    rep.Steps,
		Records:  rep.Records,
		Switches: rep.Switches,
		Aborted:  rep.Aborted,
		Format:   rep.Format,
		Path:     rep.Path,
		RunID:    rep.RunID,
		Summary:  toTraceSummary(rep.Summary),
	}
	if inline {
		out.Trace = buf.String()
	}

	out.Message = fmt.Sprintf("Generated %d records (%d switches) from %d steps with seed %d",
		rep.Records, rep.Switches, rep.Steps, rep.Seed)
	if rep.Aborted {
		out.Message += " (aborted)"
	}
	return nil, out, nil
}

// handleStats implements the memtrace_stats tool.
func (s *Server) handleStats(ctx context.Context, req *sdk.CallToolRequest, args StatsInput) (_ *sdk.CallToolResult, _ StatsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("memtrace_stats", start, retErr, sanitizeToolParams(map[string]any{
			"path": args.Path, "run_id": args.RunID,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "memtrace_stats"); err != nil {
		return nil, StatsOutput{}, err
	}

	path := s.store.Path()
	if args.Path != "" {
		resolved, err := pathutil.ResolveOutput(args.Path, s.traceDirs)
		if err != nil {
			return nil, StatsOutput{}, err
		}
		path = resolved
	}

	fs, err := generate.SummarizeFile(ctx, path, args.RunID)
	if err != nil {
		return nil, StatsOutput{}, fmt.Errorf("failed to summarize trace: %w", err)
	}

	return nil, StatsOutput{
		Format:   fs.Format,
		RunID:    fs.RunID,
		Metadata: fs.Metadata,
		Summary:  toTraceSummary(fs.Summary),
	}, nil
}

// handleRuns implements the memtrace_runs tool.
func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args RunsInput) (_ *sdk.CallToolResult, _ RunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("memtrace_runs", start, retErr, sanitizeToolParams(map[string]any{
			"limit": args.Limit,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "memtrace_runs"); err != nil {
		return nil, RunsOutput{}, err
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	limit = min(limit, maxRunsLimit)

	runs, err := s.store.ListRuns(ctx)
	if err != nil {
		return nil, RunsOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}

	items := make([]RunListItem, 0, min(limit, len(runs)))
	for _, r := range runs[:min(limit, len(runs))] {
		items = append(items, RunListItem{
			ID:         r.ID,
			Name:       r.Name,
			Seed:       strconv.FormatUint(r.Seed, 10),
			Steps:      r.Steps,
			Processes:  r.Processes,
			Status:     string(r.Status),
			Records:    r.Records,
			StartedAt:  r.StartedAt,
			FinishedAt: r.FinishedAt,
		})
	}

	return nil, RunsOutput{Runs: items, Count: len(items), Total: len(runs)}, nil
}
