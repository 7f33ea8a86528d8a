// Package trace defines trace records, the line-oriented text format consumed
// by TLB and page-table simulators, and helpers to write, read and summarize
// traces.
//
// Text format, one record per line, tab separated, hex values lowercase with
// a 0x prefix:
//
//	{pid}\tswitch\t
//	{pid}\taccess_code\t{addr}
//	{pid}\taccess_stak\t{addr}
//	{pid}\taccess_heap\t{addr}
//	{pid}\talloc\t\t{size}
//	{pid}\tfree\t\t{base}
package trace

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedRecord is returned for lines that are not valid records.
var ErrMalformedRecord = errors.New("malformed trace record")

// Kind identifies a record type. The value is the on-wire keyword.
type Kind string

const (
	KindSwitch Kind = "switch"
	KindCode   Kind = "access_code"
	KindStack  Kind = "access_stak"
	KindHeap   Kind = "access_heap"
	KindAlloc  Kind = "alloc"
	KindFree   Kind = "free"
)

// Kinds lists every record kind in a stable order.
var Kinds = []Kind{KindSwitch, KindCode, KindStack, KindHeap, KindAlloc, KindFree}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSwitch, KindCode, KindStack, KindHeap, KindAlloc, KindFree:
		return true
	}
	return false
}

// IsAccess reports whether k is one of the three memory access kinds.
func (k Kind) IsAccess() bool {
	return k == KindCode || k == KindStack || k == KindHeap
}

// Record is one trace event. Value is an address for accesses and frees, a
// size for allocations, and unused for switches.
type Record struct {
	PID   int    `json:"pid"`
	Kind  Kind   `json:"kind"`
	Value uint64 `json:"value"`
}

// Switch builds a switch record.
func Switch(pid int) Record { return Record{PID: pid, Kind: KindSwitch} }

// Access builds an access record of the given kind.
func Access(pid int, kind Kind, addr uint64) Record {
	return Record{PID: pid, Kind: kind, Value: addr}
}

// Alloc builds an allocation record.
func Alloc(pid int, size uint64) Record { return Record{PID: pid, Kind: KindAlloc, Value: size} }

// Free builds a free record.
func Free(pid int, base uint64) Record { return Record{PID: pid, Kind: KindFree, Value: base} }

// AppendText appends the text form of r, without the trailing newline.
func (r Record) AppendText(b []byte) []byte {
	b = strconv.AppendInt(b, int64(r.PID), 10)
	b = append(b, '\t')
	b = append(b, r.Kind...)
	b = append(b, '\t')
	switch r.Kind {
	case KindSwitch:
		return b
	case KindAlloc, KindFree:
		b = append(b, '\t')
	}
	b = append(b, "0x"...)
	return strconv.AppendUint(b, r.Value, 16)
}

// String returns the text form of r.
func (r Record) String() string {
	return string(r.AppendText(nil))
}

// ParseRecord parses one line of the text format. Fields are split on any
// whitespace, matching how simulators tokenize the stream.
func ParseRecord(line string) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Record{}, fmt.Errorf("%w: %q", ErrMalformedRecord, line)
	}

	pid, err := strconv.Atoi(fields[0])
	if err != nil || pid < 0 {
		return Record{}, fmt.Errorf("%w: bad pid %q", ErrMalformedRecord, fields[0])
	}

	kind := Kind(fields[1])
	if !kind.Valid() {
		return Record{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedRecord, fields[1])
	}

	if kind == KindSwitch {
		if len(fields) != 2 {
			return Record{}, fmt.Errorf("%w: switch takes no value: %q", ErrMalformedRecord, line)
		}
		return Switch(pid), nil
	}

	if len(fields) != 3 {
		return Record{}, fmt.Errorf("%w: %s needs exactly one value: %q", ErrMalformedRecord, kind, line)
	}
	hex, ok := strings.CutPrefix(fields[2], "0x")
	if !ok {
		return Record{}, fmt.Errorf("%w: value %q is not 0x-prefixed", ErrMalformedRecord, fields[2])
	}
	value, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: value %q: %v", ErrMalformedRecord, fields[2], err)
	}

	return Record{PID: pid, Kind: kind, Value: value}, nil
}
