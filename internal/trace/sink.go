package trace

import (
	"bufio"
	"errors"
	"io"
)

// Sink consumes records in generation order.
type Sink interface {
	Write(r Record) error
	Close() error
}

// TextWriter writes records in the text format through a buffer. Close
// flushes the buffer but does not close the underlying writer.
type TextWriter struct {
	w   *bufio.Writer
	buf []byte
	n   int
}

// NewTextWriter creates a TextWriter on w.
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: bufio.NewWriter(w), buf: make([]byte, 0, 64)}
}

// Write emits one line.
func (tw *TextWriter) Write(r Record) error {
	tw.buf = r.AppendText(tw.buf[:0])
	tw.buf = append(tw.buf, '\n')
	if _, err := tw.w.Write(tw.buf); err != nil {
		return err
	}
	tw.n++
	return nil
}

// Count returns the number of records written.
func (tw *TextWriter) Count() int { return tw.n }

// Flush pushes buffered lines to the underlying writer. Only whole lines are
// ever buffered, so a flushed trace always ends on a record boundary.
func (tw *TextWriter) Flush() error {
	return tw.w.Flush()
}

// Close flushes pending output.
func (tw *TextWriter) Close() error {
	return tw.Flush()
}

// MultiSink fans every record out to several sinks.
type MultiSink []Sink

// Write forwards r to every sink, stopping at the first error.
func (m MultiSink) Write(r Record) error {
	for _, s := range m {
		if err := s.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SliceSink collects records in memory.
type SliceSink struct {
	Records []Record
}

// Write appends r.
func (s *SliceSink) Write(r Record) error {
	s.Records = append(s.Records, r)
	return nil
}

// Close is a no-op.
func (s *SliceSink) Close() error { return nil }
