package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nvandessel/memtrace/internal/config"
	"github.com/nvandessel/memtrace/internal/logging"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "memtrace",
		Short: "Synthetic memory access trace generator",
		Long: `memtrace simulates a set of processes and records the memory accesses,
allocations, frees and context switches they perform.

Each process is described by a locality in [0,1] and a heap budget. The
trace is written as tab-separated text, an Arrow IPC file or a SQLite run
catalog, and is reproducible from its seed.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.memtrace/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newGenerateCmd(),
		newStatsCmd(),
		newRunsCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

// loadConfig loads the config named by --config, or the optional default.
func loadConfig(cmd *cobra.Command) (*config.MemtraceConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the operational logger, which always writes to stderr
// so a text trace can own stdout.
func newLogger(cmd *cobra.Command, cfg *config.MemtraceConfig) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
}
