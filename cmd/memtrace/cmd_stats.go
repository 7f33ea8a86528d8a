package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nvandessel/memtrace/internal/generate"
	"github.com/nvandessel/memtrace/internal/store"
	"github.com/nvandessel/memtrace/internal/trace"
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats [trace-file]",
		Short: "Summarize a trace",
		Long: `Reads a trace in any output format and prints record counts per kind and
process, distinct pages touched and heap traffic.

Without a file the project's run catalog (<root>/.memtrace/traces.db) is
read. For SQLite files --run selects the run; the default is the latest.

Examples:
  memtrace stats run.txt
  memtrace stats run.arrow --json
  memtrace stats --run 3`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			runID, _ := cmd.Flags().GetInt64("run")
			jsonOut, _ := cmd.Flags().GetBool("json")

			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				var err error
				if path, err = store.DefaultDBPath(root); err != nil {
					return err
				}
			}

			fs, err := generate.SummarizeFile(cmd.Context(), path, runID)
			if err != nil {
				return fmt.Errorf("failed to summarize %s: %w", path, err)
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(fs)
			}
			printFileSummary(cmd.OutOrStdout(), fs)
			return nil
		},
	}

	cmd.Flags().Int64("run", 0, "Run id inside a SQLite catalog (default: latest)")
	return cmd
}

func printFileSummary(w io.Writer, fs generate.FileSummary) {
	fmt.Fprintf(w, "Trace: %s (%s)\n", fs.Path, fs.Format)
	if fs.RunID != 0 {
		fmt.Fprintf(w, "Run:   %d\n", fs.RunID)
	}
	if len(fs.Metadata) > 0 {
		keys := make([]string, 0, len(fs.Metadata))
		for k := range fs.Metadata {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = k + "=" + fs.Metadata[k]
		}
		fmt.Fprintf(w, "Meta:  %s\n", strings.Join(pairs, " "))
	}
	fmt.Fprintln(w)
	printSummary(w, fs.Summary)
}

func printSummary(w io.Writer, s trace.Summary) {
	fmt.Fprintf(w, "Records:  %s\n", humanize.Comma(int64(s.Records)))
	fmt.Fprintf(w, "Switches: %s\n", humanize.Comma(int64(s.Switches())))
	if s.Orphans > 0 {
		fmt.Fprintf(w, "Orphans:  %s\n", humanize.Comma(int64(s.Orphans)))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "By kind:")
	for _, k := range trace.Kinds {
		if n := s.ByKind[k]; n > 0 {
			fmt.Fprintf(w, "  %-12s %12s\n", k, humanize.Comma(int64(n)))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Distinct pages:")
	for _, k := range []trace.Kind{trace.KindCode, trace.KindStack, trace.KindHeap} {
		fmt.Fprintf(w, "  %-12s %12s\n", k, humanize.Comma(int64(s.DistinctPages[k])))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Heap: %s allocated, %s freed\n",
		humanize.IBytes(s.BytesAllocated), humanize.IBytes(s.BytesFreed))

	if pids := s.Processes(); len(pids) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "By process:")
		for _, pid := range pids {
			fmt.Fprintf(w, "  %4d %12s records  live heap %s\n",
				pid, humanize.Comma(int64(s.ByProcess[pid])), humanize.IBytes(s.LiveHeap[pid]))
		}
	}
}
