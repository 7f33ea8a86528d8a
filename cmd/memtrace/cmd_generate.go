package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/nvandessel/memtrace/internal/config"
	"github.com/nvandessel/memtrace/internal/generate"
	"github.com/nvandessel/memtrace/internal/store"
	"github.com/spf13/cobra"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [steps] [locality:max_memory...]",
		Short: "Generate a synthetic memory access trace",
		Long: `Simulates one process per locality:max_memory spec for the given number
of scheduler steps and writes the resulting trace.

Steps and processes may also come from the config file or the
MEMTRACE_STEPS and MEMTRACE_PROCESSES environment variables; arguments
take precedence. Max memory accepts byte counts, 0x hex and sizes such
as 64MiB.

Examples:
  memtrace generate 100000 0.5:1024 0.95:1073741824
  memtrace generate 50000 0.9:64MiB --seed 42 --format arrow -o run.arrow
  memtrace generate 50000 0.9:64MiB 0.1:1MiB --format sqlite -o traces.db --name baseline`,
		RunE: runGenerate,
	}

	cmd.Flags().Uint64("seed", 0, "Random seed (0 derives one from the clock)")
	cmd.Flags().String("format", config.FormatText, "Output format: text, arrow, sqlite")
	cmd.Flags().StringP("output", "o", "", "Output file (default stdout for text)")
	cmd.Flags().Int("batch-size", config.DefaultBatchSize, "Records per Arrow batch or SQLite transaction")
	cmd.Flags().String("name", "", "Label stored with the run")
	cmd.Flags().String("log-level", "", "Log level: error, warn, info, debug, trace")
	cmd.Flags().Bool("decisions", true, "Write decisions.jsonl under <root>/.memtrace at debug and trace levels")

	return cmd
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyGenerateArgs(cmd, cfg, args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cmd, cfg)

	req := generate.Request{
		Config: cfg,
		Stdout: cmd.OutOrStdout(),
		Logger: logger,
	}
	if decisions, _ := cmd.Flags().GetBool("decisions"); decisions {
		root, _ := cmd.Flags().GetString("root")
		req.DecisionDir = store.LocalMemtracePath(root)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	report, err := generate.Run(ctx, req)
	if err != nil {
		return err
	}

	if cfg.Output.Format == config.FormatText && cfg.Output.Path == "" {
		// stdout carries the trace itself
		return nil
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	out := cmd.OutOrStdout()
	status := "Generated"
	if report.Aborted {
		status = "Aborted after"
	}
	fmt.Fprintf(out, "%s %s records (%s switches) in %s steps\n", status,
		humanize.Comma(int64(report.Records)), humanize.Comma(int64(report.Switches)),
		humanize.Comma(int64(report.Steps)))
	fmt.Fprintf(out, "  seed:   %d\n", report.Seed)
	fmt.Fprintf(out, "  format: %s\n", report.Format)
	fmt.Fprintf(out, "  output: %s\n", report.Path)
	if report.RunID != 0 {
		fmt.Fprintf(out, "  run:    %d\n", report.RunID)
	}
	return nil
}

// applyGenerateArgs overlays positional arguments and changed flags onto cfg.
func applyGenerateArgs(cmd *cobra.Command, cfg *config.MemtraceConfig, args []string) error {
	if len(args) > 0 {
		steps, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q: %w", args[0], err)
		}
		cfg.Generator.Steps = steps
	}
	if len(args) > 1 {
		procs, err := config.ParseProcessSpecs(args[1:])
		if err != nil {
			return err
		}
		cfg.Generator.Processes = procs
	}

	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Generator.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("format") {
		cfg.Output.Format, _ = flags.GetString("format")
	}
	if flags.Changed("output") {
		cfg.Output.Path, _ = flags.GetString("output")
	}
	if flags.Changed("batch-size") {
		cfg.Output.BatchSize, _ = flags.GetInt("batch-size")
	}
	if flags.Changed("name") {
		cfg.Generator.Name, _ = flags.GetString("name")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
