package main

import (
	"fmt"
	"path/filepath"

	"github.com/nvandessel/memtrace/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run the MCP server over stdio",
		Long: `Starts a Model Context Protocol server on stdin/stdout exposing the
memtrace_generate, memtrace_stats and memtrace_runs tools.

Files written by tools stay inside ~/.memtrace/traces and
<root>/.memtrace/traces; SQLite runs go to <root>/.memtrace/traces.db.
Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			absRoot, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("resolving root: %w", err)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:    "memtrace",
				Version: version,
				Root:    absRoot,
				Logger:  newLogger(cmd, cfg),
			})
			if err != nil {
				return fmt.Errorf("failed to start MCP server: %w", err)
			}
			return server.Run(cmd.Context())
		},
	}
}
