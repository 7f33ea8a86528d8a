package export

import (
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/nvandessel/memtrace/internal/trace"
)

// ReadArrow streams the records of an Arrow trace file to fn in order and
// returns the schema metadata. It stops at the first error fn returns.
func ReadArrow(path string, fn func(trace.Record) error) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening arrow file: %w", err)
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("reading arrow file: %w", err)
	}
	defer r.Close()

	if err := checkSchema(r.Schema()); err != nil {
		return nil, err
	}
	meta := metadataMap(r.Schema().Metadata())

	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return meta, fmt.Errorf("reading arrow batch %d: %w", i, err)
		}
		if err := eachRecord(rec, fn); err != nil {
			return meta, err
		}
	}
	return meta, nil
}

// SummarizeArrow aggregates an Arrow trace file.
func SummarizeArrow(path string) (trace.Summary, map[string]string, error) {
	c := trace.NewCollector()
	meta, err := ReadArrow(path, func(r trace.Record) error {
		c.Observe(r)
		return nil
	})
	return c.Summary(), meta, err
}

func eachRecord(rec arrow.Record, fn func(trace.Record) error) error {
	pids := rec.Column(colPID).(*array.Int32)
	kinds := rec.Column(colKind).(*array.String)
	values := rec.Column(colValue).(*array.Uint64)

	for row := 0; row < int(rec.NumRows()); row++ {
		r := trace.Record{
			PID:   int(pids.Value(row)),
			Kind:  trace.Kind(kinds.Value(row)),
			Value: values.Value(row),
		}
		if !r.Kind.Valid() {
			return fmt.Errorf("row %d: unknown kind %q: %w", row, r.Kind, trace.ErrMalformedRecord)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func checkSchema(s *arrow.Schema) error {
	want := Schema(nil)
	if s.NumFields() != want.NumFields() {
		return fmt.Errorf("arrow file has %d columns, want %d", s.NumFields(), want.NumFields())
	}
	for i, f := range want.Fields() {
		got := s.Field(i)
		if got.Name != f.Name || !arrow.TypeEqual(got.Type, f.Type) {
			return fmt.Errorf("arrow column %d is %s %s, want %s %s", i, got.Name, got.Type, f.Name, f.Type)
		}
	}
	return nil
}

func metadataMap(md arrow.Metadata) map[string]string {
	out := make(map[string]string, md.Len())
	keys, values := md.Keys(), md.Values()
	for i := range keys {
		out[keys[i]] = values[i]
	}
	return out
}
