package trace

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxLineLen bounds a single trace line; real records are under 40 bytes.
const maxLineLen = 4096

// Reader parses a text trace line by line. Blank lines are skipped.
type Reader struct {
	scanner *bufio.Scanner
	line    int
	rec     Record
	err     error
}

// NewReader creates a Reader on r.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 256), maxLineLen)
	return &Reader{scanner: s}
}

// Next advances to the next record. It returns false at end of input or on
// the first error; check Err afterwards.
func (rd *Reader) Next() bool {
	if rd.err != nil {
		return false
	}
	for rd.scanner.Scan() {
		rd.line++
		text := rd.scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		rec, err := ParseRecord(text)
		if err != nil {
			rd.err = fmt.Errorf("line %d: %w", rd.line, err)
			return false
		}
		rd.rec = rec
		return true
	}
	if err := rd.scanner.Err(); err != nil {
		rd.err = fmt.Errorf("reading trace: %w", err)
	}
	return false
}

// Record returns the record read by the last successful Next.
func (rd *Reader) Record() Record { return rd.rec }

// Line returns the line number of the current record.
func (rd *Reader) Line() int { return rd.line }

// Err returns the first error encountered.
func (rd *Reader) Err() error { return rd.err }

// ReadAll parses every record from r.
func ReadAll(r io.Reader) ([]Record, error) {
	rd := NewReader(r)
	var out []Record
	for rd.Next() {
		out = append(out, rd.Record())
	}
	return out, rd.Err()
}
