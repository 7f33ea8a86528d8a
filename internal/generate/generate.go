// Package generate runs one configured generation end to end: it resolves
// the seed, opens the sink the output format asks for, runs the scheduler
// and closes the sink with the run's outcome. The CLI and the MCP server
// both go through Run.
package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/memtrace/internal/config"
	"github.com/nvandessel/memtrace/internal/export"
	"github.com/nvandessel/memtrace/internal/logging"
	"github.com/nvandessel/memtrace/internal/sanitize"
	"github.com/nvandessel/memtrace/internal/simulation"
	"github.com/nvandessel/memtrace/internal/store"
	"github.com/nvandessel/memtrace/internal/trace"
)

// Request is one generation job.
type Request struct {
	// Config is validated by Run. A zero seed is replaced by a time-derived
	// one before anything is written.
	Config *config.MemtraceConfig

	// Stdout receives the text trace when no output path is configured.
	Stdout io.Writer

	// Logger receives operational logs. Nil discards them.
	Logger *slog.Logger

	// DecisionDir is where decisions.jsonl goes at debug and trace levels.
	// Empty disables the decision log.
	DecisionDir string
}

// Report describes a finished (or aborted) generation.
type Report struct {
	simulation.Result

	Format  string        `json:"format"`
	Path    string        `json:"path,omitempty"`
	RunID   int64         `json:"run_id,omitempty"`
	Summary trace.Summary `json:"summary"`
}

// Run executes req. Cancelling ctx stops generation between steps; the
// records produced so far are flushed and the report has Aborted set.
func Run(ctx context.Context, req Request) (Report, error) {
	cfg := *req.Config
	cfg.Generator.Processes = append(cfg.Generator.Processes[:0:0], req.Config.Generator.Processes...)
	cfg.Generator.Name = sanitize.RunName(cfg.Generator.Name)
	if err := cfg.Validate(); err != nil {
		return Report{}, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := req.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if cfg.Generator.Seed == 0 {
		cfg.Generator.Seed = simulation.TimeSeed()
		logger.Info("derived seed from clock", "seed", cfg.Generator.Seed)
	}

	out, err := openOutput(ctx, &cfg, req.Stdout)
	if err != nil {
		return Report{}, err
	}

	collector := trace.NewCollector()
	sink := trace.MultiSink{out.sink, collector}

	var decisions *logging.DecisionLogger
	if req.DecisionDir != "" {
		decisions = logging.NewDecisionLogger(req.DecisionDir, cfg.Logging.Level)
		defer decisions.Close()
	}

	runner := simulation.NewRunner(cfg.Scenario(), sink, simulation.Options{
		Logger:    logger,
		Decisions: decisions,
	})
	res, runErr := runner.Run(ctx)

	closeErr := out.close(res, runErr)
	report := Report{
		Result:  res,
		Format:  cfg.Output.Format,
		Path:    cfg.Output.Path,
		RunID:   out.runID,
		Summary: collector.Summary(),
	}

	if runErr != nil {
		return report, errors.Join(runErr, closeErr)
	}
	if closeErr != nil {
		return report, fmt.Errorf("closing output: %w", closeErr)
	}
	return report, nil
}

// output pairs a sink with the way it has to be closed.
type output struct {
	sink  trace.Sink
	runID int64
	close func(simulation.Result, error) error
}

func openOutput(ctx context.Context, cfg *config.MemtraceConfig, stdout io.Writer) (*output, error) {
	path := cfg.Output.Path

	switch cfg.Output.Format {
	case config.FormatText:
		if path == "" {
			if stdout == nil {
				stdout = os.Stdout
			}
			tw := trace.NewTextWriter(stdout)
			return &output{sink: tw, close: func(simulation.Result, error) error { return tw.Close() }}, nil
		}
		if err := ensureDir(path); err != nil {
			return nil, err
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("creating trace file: %w", err)
		}
		tw := trace.NewTextWriter(f)
		return &output{sink: tw, close: func(simulation.Result, error) error {
			return errors.Join(tw.Close(), f.Close())
		}}, nil

	case config.FormatArrow:
		if err := ensureDir(path); err != nil {
			return nil, err
		}
		aw, err := export.CreateArrowFile(path, export.ArrowOptions{
			BatchSize: cfg.Output.BatchSize,
			Metadata:  metadata(cfg),
		})
		if err != nil {
			return nil, err
		}
		return &output{sink: aw, close: func(simulation.Result, error) error { return aw.Close() }}, nil

	case config.FormatSQLite:
		st, err := store.NewSQLiteTraceStore(path)
		if err != nil {
			return nil, err
		}
		snapshot, err := cfg.Marshal()
		if err != nil {
			st.Close()
			return nil, err
		}
		// The catalog entry must exist even for a run cancelled before its
		// first step.
		rw, err := st.BeginRun(context.WithoutCancel(ctx), store.RunInfo{
			Name:      cfg.Generator.Name,
			Seed:      cfg.Generator.Seed,
			Steps:     cfg.Generator.Steps,
			Processes: len(cfg.Generator.Processes),
			Config:    string(snapshot),
		}, cfg.Output.BatchSize)
		if err != nil {
			st.Close()
			return nil, err
		}
		return &output{sink: rw, runID: rw.RunID(), close: func(res simulation.Result, runErr error) error {
			status := store.RunComplete
			switch {
			case runErr != nil:
				status = store.RunFailed
			case res.Aborted:
				status = store.RunAborted
			}
			return errors.Join(rw.Finish(status), st.Close())
		}}, nil
	}

	return nil, fmt.Errorf("unsupported output format %q", cfg.Output.Format)
}

// metadata describes the run for the Arrow schema.
func metadata(cfg *config.MemtraceConfig) map[string]string {
	specs := make([]string, len(cfg.Generator.Processes))
	for i, p := range cfg.Generator.Processes {
		specs[i] = config.FormatProcessSpec(p)
	}
	md := map[string]string{
		"seed":      strconv.FormatUint(cfg.Generator.Seed, 10),
		"steps":     strconv.Itoa(cfg.Generator.Steps),
		"processes": strings.Join(specs, ","),
	}
	if cfg.Generator.Name != "" {
		md["name"] = cfg.Generator.Name
	}
	return md
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	return nil
}
