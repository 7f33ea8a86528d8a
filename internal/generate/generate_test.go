package generate

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/memtrace/internal/config"
	"github.com/nvandessel/memtrace/internal/logging"
	"github.com/nvandessel/memtrace/internal/process"
	"github.com/nvandessel/memtrace/internal/simulation"
	"github.com/nvandessel/memtrace/internal/store"
	"github.com/nvandessel/memtrace/internal/trace"
)

func testConfig(format, path string) *config.MemtraceConfig {
	c := config.Default()
	c.Generator.Steps = 2000
	c.Generator.Seed = 1234
	c.Generator.Processes = []process.Config{
		{Locality: 0.5, MaxMemory: 1 << 20},
		{Locality: 0.95, MaxMemory: 1 << 26},
	}
	c.Output.Format = format
	c.Output.Path = path
	c.Output.BatchSize = 256
	return c
}

func TestRun_TextToWriter(t *testing.T) {
	var buf bytes.Buffer
	rep, err := Run(context.Background(), Request{Config: testConfig(config.FormatText, ""), Stdout: &buf})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	records, err := trace.ReadAll(&buf)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(records) != rep.Records {
		t.Errorf("wrote %d records, report says %d", len(records), rep.Records)
	}
	if rep.Summary.Records != rep.Records {
		t.Errorf("summary has %d records, report %d", rep.Summary.Records, rep.Records)
	}
	if rep.Seed != 1234 || rep.Format != config.FormatText {
		t.Errorf("report = %+v", rep)
	}
	simulation.AssertOwnership(t, records)
}

func TestRun_AllFormatsAgree(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	var summaries []trace.Summary
	for _, tc := range []struct{ format, name string }{
		{config.FormatText, "run.txt"},
		{config.FormatArrow, "run.arrow"},
		{config.FormatSQLite, "runs.db"},
	} {
		path := filepath.Join(dir, "out", tc.name)
		rep, err := Run(ctx, Request{Config: testConfig(tc.format, path)})
		if err != nil {
			t.Fatalf("%s: Run() error = %v", tc.format, err)
		}
		if tc.format == config.FormatSQLite && rep.RunID == 0 {
			t.Errorf("sqlite run has no id")
		}

		format, err := DetectFormat(path)
		if err != nil {
			t.Fatal(err)
		}
		if format != tc.format {
			t.Errorf("DetectFormat(%s) = %s", tc.name, format)
		}

		fs, err := SummarizeFile(ctx, path, 0)
		if err != nil {
			t.Fatalf("%s: SummarizeFile() error = %v", tc.format, err)
		}
		if fs.Summary.Records != rep.Records {
			t.Errorf("%s: stored %d records, generated %d", tc.format, fs.Summary.Records, rep.Records)
		}
		summaries = append(summaries, fs.Summary)
	}

	for i := 1; i < len(summaries); i++ {
		a, b := summaries[0], summaries[i]
		if a.Records != b.Records || a.BytesAllocated != b.BytesAllocated || a.Switches() != b.Switches() {
			t.Errorf("format %d summary differs from text: %+v vs %+v", i, b, a)
		}
	}
}

func TestRun_SQLiteStoresReplayableConfig(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")
	cfg := testConfig(config.FormatSQLite, path)
	cfg.Generator.Seed = 0
	cfg.Generator.Name = "replay-me"

	rep, err := Run(ctx, Request{Config: cfg})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Seed == 0 {
		t.Fatal("seed was not resolved")
	}
	if cfg.Generator.Seed != 0 {
		t.Error("Run mutated the caller's config")
	}

	st, err := store.NewSQLiteTraceStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	run, err := st.GetRun(ctx, rep.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Seed != rep.Seed || run.Status != store.RunComplete || run.Name != "replay-me" {
		t.Errorf("run = %+v", run)
	}

	// replaying the stored config reproduces the run
	snapshot := filepath.Join(t.TempDir(), "snapshot.yaml")
	if err := os.WriteFile(snapshot, []byte(run.Config), 0600); err != nil {
		t.Fatal(err)
	}
	replayCfg, err := config.LoadFromFile(snapshot)
	if err != nil {
		t.Fatalf("stored config does not load: %v", err)
	}
	replay, err := Run(ctx, Request{Config: replayCfg})
	if err != nil {
		t.Fatal(err)
	}
	if replay.Seed != rep.Seed || replay.Summary.Records != rep.Summary.Records {
		t.Errorf("replay = %+v, original = %+v", replay.Result, rep.Result)
	}
}

func TestRun_AbortMarksRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(t.TempDir(), "runs.db")
	rep, err := Run(ctx, Request{Config: testConfig(config.FormatSQLite, path)})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !rep.Aborted {
		t.Fatal("expected aborted report")
	}

	st, err := store.NewSQLiteTraceStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	run, err := st.GetRun(context.Background(), rep.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != store.RunAborted || run.Records != 1 {
		t.Errorf("run = %+v", run)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := testConfig(config.FormatText, "")
	cfg.Generator.Processes = nil
	_, err := Run(context.Background(), Request{Config: cfg})
	if !errors.Is(err, simulation.ErrNoProcesses) {
		t.Errorf("Run() = %v, want ErrNoProcesses", err)
	}
}

func TestRun_DecisionLog(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(config.FormatText, filepath.Join(dir, "run.txt"))
	cfg.Logging.Level = "debug"

	if _, err := Run(context.Background(), Request{Config: cfg, DecisionDir: dir}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, logging.DecisionFile))
	if err != nil {
		t.Fatalf("decision log missing: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != cfg.Generator.Steps {
		t.Errorf("decision log has %d lines, want %d", lines, cfg.Generator.Steps)
	}
}

func TestDetectFormat_ShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.txt")
	if err := os.WriteFile(path, []byte("0\tswitch\t\n"), 0600); err != nil {
		t.Fatal(err)
	}
	format, err := DetectFormat(path)
	if err != nil || format != config.FormatText {
		t.Errorf("DetectFormat() = %q, %v", format, err)
	}
	fs, err := SummarizeFile(context.Background(), path, 0)
	if err != nil || fs.Summary.Records != 1 {
		t.Errorf("SummarizeFile() = %+v, %v", fs, err)
	}
}

func TestRun_SanitizesRunName(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")
	cfg := testConfig(config.FormatSQLite, path)
	cfg.Generator.Name = "<b>hot loop</b>\x00"

	rep, err := Run(ctx, Request{Config: cfg})
	if err != nil {
		t.Fatal(err)
	}

	st, err := store.NewSQLiteTraceStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	run, err := st.GetRun(ctx, rep.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Name != "bhot-loopb" {
		t.Errorf("stored name = %q, want %q", run.Name, "bhot-loopb")
	}
}
