package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nvandessel/memtrace/internal/config"
	"github.com/nvandessel/memtrace/internal/export"
	"github.com/nvandessel/memtrace/internal/store"
	"github.com/nvandessel/memtrace/internal/trace"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the SQLite run catalog",
		Long: `List, show, export and delete runs recorded by
"memtrace generate --format sqlite".

The catalog defaults to <root>/.memtrace/traces.db; use --db for another file.

Examples:
  memtrace runs list
  memtrace runs show 3
  memtrace runs export 3 --format arrow -o run3.arrow
  memtrace runs delete 3`,
	}

	cmd.PersistentFlags().String("db", "", "Run catalog database (default <root>/.memtrace/traces.db)")

	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsExportCmd(),
		newRunsDeleteCmd(),
	)
	return cmd
}

// openCatalog opens the database named by --db or the project default.
func openCatalog(cmd *cobra.Command) (*store.SQLiteTraceStore, error) {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		root, _ := cmd.Flags().GetString("root")
		var err error
		if path, err = store.DefaultDBPath(root); err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no run catalog at %s (generate with --format sqlite first)", path)
	}
	return store.NewSQLiteTraceStore(path)
}

func parseRunID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid run id %q", arg)
	}
	return id, nil
}

func newRunsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			st, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOut {
				if runs == nil {
					runs = []store.Run{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"runs":  runs,
					"count": len(runs),
				})
			}

			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSEED\tSTEPS\tPROCS\tRECORDS\tSTATUS\tSTARTED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%d\t%s\t%s\t%s\n",
					r.ID, valueOrDefault(r.Name, "-"), r.Seed, humanize.Comma(int64(r.Steps)),
					r.Processes, humanize.Comma(int64(r.Records)), r.Status, humanize.Time(r.StartedAt))
			}
			return tw.Flush()
		},
	}
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one run with its configuration and summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			st, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			run, err := st.GetRun(cmd.Context(), id)
			if err != nil {
				return err
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %d", run.ID)
			if run.Name != "" {
				fmt.Fprintf(out, " (%s)", run.Name)
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  status:    %s\n", run.Status)
			fmt.Fprintf(out, "  seed:      %d\n", run.Seed)
			fmt.Fprintf(out, "  steps:     %s\n", humanize.Comma(int64(run.Steps)))
			fmt.Fprintf(out, "  processes: %d\n", run.Processes)
			fmt.Fprintf(out, "  records:   %s\n", humanize.Comma(int64(run.Records)))
			fmt.Fprintf(out, "  started:   %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
			if run.FinishedAt != nil {
				fmt.Fprintf(out, "  duration:  %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Configuration:")
			fmt.Fprintln(out, run.Config)
			if run.Summary != nil {
				printSummary(out, *run.Summary)
			}
			return nil
		},
	}
}

func newRunsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write a stored run as a text or Arrow trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			batchSize, _ := cmd.Flags().GetInt("batch-size")
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			st, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			run, err := st.GetRun(cmd.Context(), id)
			if err != nil {
				return err
			}

			var sink trace.Sink
			var closeOut func() error
			switch format {
			case config.FormatText:
				if output == "" {
					sink = trace.NewTextWriter(cmd.OutOrStdout())
					closeOut = func() error { return nil }
					break
				}
				f, err := createOutput(output)
				if err != nil {
					return err
				}
				sink = trace.NewTextWriter(f)
				closeOut = f.Close
			case config.FormatArrow:
				if output == "" {
					return fmt.Errorf("--output is required for arrow")
				}
				if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
					return err
				}
				aw, err := export.CreateArrowFile(output, export.ArrowOptions{
					BatchSize: batchSize,
					Metadata: map[string]string{
						"seed":   strconv.FormatUint(run.Seed, 10),
						"steps":  strconv.Itoa(run.Steps),
						"run_id": strconv.FormatInt(run.ID, 10),
					},
				})
				if err != nil {
					return err
				}
				sink = aw
				closeOut = func() error { return nil }
			default:
				return fmt.Errorf("unsupported export format %q (valid: text, arrow)", format)
			}

			loadErr := st.LoadRecords(cmd.Context(), id, sink.Write)
			err = errors.Join(loadErr, sink.Close(), closeOut())
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			if output != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Exported run %d (%s records) to %s\n",
					id, humanize.Comma(int64(run.Records)), output)
			}
			return nil
		},
	}

	cmd.Flags().String("format", config.FormatText, "Export format: text, arrow")
	cmd.Flags().StringP("output", "o", "", "Output file (default stdout for text)")
	cmd.Flags().Int("batch-size", config.DefaultBatchSize, "Records per Arrow batch")
	return cmd
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a run and its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			st, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.DeleteRun(cmd.Context(), id); err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"status": "deleted",
					"id":     id,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %d\n", id)
			return nil
		},
	}
}

func createOutput(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, nil
}

func valueOrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
