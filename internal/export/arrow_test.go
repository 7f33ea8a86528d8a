package export

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/nvandessel/memtrace/internal/process"
	"github.com/nvandessel/memtrace/internal/simulation"
	"github.com/nvandessel/memtrace/internal/trace"
)

func TestArrowRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.arrow")
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())

	w, err := CreateArrowFile(path, ArrowOptions{
		BatchSize: 3,
		Metadata:  map[string]string{"seed": "42", "steps": "7"},
		Allocator: mem,
	})
	if err != nil {
		t.Fatalf("CreateArrowFile() error = %v", err)
	}

	want := []trace.Record{
		trace.Switch(1),
		trace.Access(1, trace.KindCode, 0x3fffff),
		trace.Alloc(1, 0x1000),
		trace.Access(1, trace.KindHeap, 0x400fff),
		trace.Access(1, trace.KindStack, 0xffbfffff),
		trace.Switch(0),
		trace.Free(0, 0x400000),
	}
	for _, r := range want {
		if err := w.Write(r); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if w.Count() != len(want) {
		t.Errorf("Count() = %d, want %d", w.Count(), len(want))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := w.Write(trace.Switch(0)); !errors.Is(err, ErrClosed) {
		t.Errorf("Write() after Close = %v, want ErrClosed", err)
	}
	mem.AssertSize(t, 0)

	var got []trace.Record
	meta, err := ReadArrow(path, func(r trace.Record) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadArrow() error = %v", err)
	}
	if meta["seed"] != "42" || meta["steps"] != "7" {
		t.Errorf("metadata = %v", meta)
	}
	if len(got) != len(want) {
		t.Fatalf("read %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestArrowEmptyTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.arrow")
	w, err := CreateArrowFile(path, ArrowOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	n := 0
	if _, err := ReadArrow(path, func(trace.Record) error { n++; return nil }); err != nil {
		t.Fatalf("ReadArrow() error = %v", err)
	}
	if n != 0 {
		t.Errorf("read %d records from empty file", n)
	}
}

// TestArrowMatchesTextSummary writes one run to both a text sink and an
// Arrow file and checks that both summarize identically.
func TestArrowMatchesTextSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.arrow")
	aw, err := CreateArrowFile(path, ArrowOptions{BatchSize: 500})
	if err != nil {
		t.Fatal(err)
	}
	collector := trace.NewCollector()

	sc := simulation.Scenario{
		Steps: 5000,
		Seed:  77,
		Processes: []process.Config{
			{Locality: 0.5, MaxMemory: 1 << 20},
			{Locality: 0.9, MaxMemory: 1 << 24},
		},
	}
	res, err := simulation.NewRunner(sc, trace.MultiSink{aw, collector}, simulation.Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatal(err)
	}

	got, _, err := SummarizeArrow(path)
	if err != nil {
		t.Fatalf("SummarizeArrow() error = %v", err)
	}
	want := collector.Summary()
	if got.Records != res.Records || got.Records != want.Records {
		t.Errorf("Records = %d, want %d", got.Records, want.Records)
	}
	if got.Switches() != want.Switches() || got.BytesAllocated != want.BytesAllocated || got.BytesFreed != want.BytesFreed {
		t.Errorf("summary mismatch: got %+v want %+v", got, want)
	}
	for _, k := range trace.Kinds {
		if got.ByKind[k] != want.ByKind[k] {
			t.Errorf("ByKind[%s] = %d, want %d", k, got.ByKind[k], want.ByKind[k])
		}
	}
}

func TestReadArrowErrors(t *testing.T) {
	if _, err := ReadArrow(filepath.Join(t.TempDir(), "missing.arrow"), nil); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "t.arrow")
	w, err := CreateArrowFile(path, ArrowOptions{BatchSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	w.Write(trace.Switch(0))
	w.Write(trace.Access(0, trace.KindCode, 1))
	w.Close()

	stop := errors.New("stop")
	if _, err := ReadArrow(path, func(trace.Record) error { return stop }); !errors.Is(err, stop) {
		t.Errorf("ReadArrow() = %v, want callback error", err)
	}
}
