// Package export writes traces as Apache Arrow IPC files, a columnar form
// that dataframe tools load without parsing text. The schema is
//
//	seq   uint64  position in the trace
//	pid   int32   process id
//	kind  utf8    record keyword (switch, access_code, ...)
//	value uint64  address or size, 0 for switches
//
// Run parameters (seed, steps, processes) travel as schema metadata.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/nvandessel/memtrace/internal/trace"
)

// DefaultBatchSize is the number of rows per record batch.
const DefaultBatchSize = 4096

// Column positions in the schema.
const (
	colSeq = iota
	colPID
	colKind
	colValue
)

// ErrClosed is returned when writing to a closed ArrowWriter.
var ErrClosed = errors.New("arrow writer is closed")

// Schema returns the trace schema carrying the given metadata.
func Schema(meta map[string]string) *arrow.Schema {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = meta[k]
	}
	md := arrow.NewMetadata(keys, values)

	return arrow.NewSchema([]arrow.Field{
		{Name: "seq", Type: arrow.PrimitiveTypes.Uint64},
		{Name: "pid", Type: arrow.PrimitiveTypes.Int32},
		{Name: "kind", Type: arrow.BinaryTypes.String},
		{Name: "value", Type: arrow.PrimitiveTypes.Uint64},
	}, &md)
}

// ArrowOptions configures an ArrowWriter.
type ArrowOptions struct {
	// BatchSize is the number of rows per record batch. Zero uses
	// DefaultBatchSize.
	BatchSize int

	// Metadata is attached to the schema.
	Metadata map[string]string

	// Allocator backs the column builders. Nil uses a Go allocator.
	Allocator memory.Allocator
}

// ArrowWriter is a trace.Sink producing an Arrow IPC file.
type ArrowWriter struct {
	builder *array.RecordBuilder
	fw      *ipc.FileWriter
	closer  io.Closer

	seq     *array.Uint64Builder
	pid     *array.Int32Builder
	kind    *array.StringBuilder
	value   *array.Uint64Builder
	batch   int
	rows    int
	written int
	closed  bool
}

// NewArrowWriter writes an Arrow IPC file to w. Close finishes the file
// footer but does not close w.
func NewArrowWriter(w io.Writer, opts ArrowOptions) (*ArrowWriter, error) {
	mem := opts.Allocator
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	schema := Schema(opts.Metadata)
	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("creating arrow file writer: %w", err)
	}

	b := array.NewRecordBuilder(mem, schema)
	b.Reserve(batch)
	return &ArrowWriter{
		builder: b,
		fw:      fw,
		seq:     b.Field(colSeq).(*array.Uint64Builder),
		pid:     b.Field(colPID).(*array.Int32Builder),
		kind:    b.Field(colKind).(*array.StringBuilder),
		value:   b.Field(colValue).(*array.Uint64Builder),
		batch:   batch,
	}, nil
}

// CreateArrowFile creates (truncating) path and returns a writer that closes
// the file on Close.
func CreateArrowFile(path string, opts ArrowOptions) (*ArrowWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating arrow file: %w", err)
	}
	w, err := NewArrowWriter(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// Write appends one record, emitting a batch once BatchSize rows are
// buffered.
func (w *ArrowWriter) Write(r trace.Record) error {
	if w.closed {
		return ErrClosed
	}
	w.seq.Append(uint64(w.written + w.rows))
	w.pid.Append(int32(r.PID))
	w.kind.Append(string(r.Kind))
	w.value.Append(r.Value)
	w.rows++
	if w.rows >= w.batch {
		return w.Flush()
	}
	return nil
}

// Flush writes the buffered rows as one record batch.
func (w *ArrowWriter) Flush() error {
	if w.rows == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()

	if err := w.fw.Write(rec); err != nil {
		return fmt.Errorf("writing arrow batch: %w", err)
	}
	w.written += w.rows
	w.rows = 0
	return nil
}

// Count returns the number of records accepted.
func (w *ArrowWriter) Count() int { return w.written + w.rows }

// Close flushes the last batch and writes the file footer. It is safe to
// call more than once.
func (w *ArrowWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if err := w.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := w.fw.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing arrow file writer: %w", err))
	}
	w.builder.Release()
	if w.closer != nil {
		if err := w.closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
