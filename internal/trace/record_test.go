package trace

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestRecordText(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want string
	}{
		{"switch", Switch(0), "0\tswitch\t"},
		{"code", Access(1, KindCode, 0x1f), "1\taccess_code\t0x1f"},
		{"stack", Access(2, KindStack, 0xfffffffe), "2\taccess_stak\t0xfffffffe"},
		{"heap", Access(3, KindHeap, 0x400000), "3\taccess_heap\t0x400000"},
		{"zero address", Access(0, KindCode, 0), "0\taccess_code\t0x0"},
		{"alloc", Alloc(0, 4096), "0\talloc\t\t0x1000"},
		{"free", Free(12, 0x401000), "12\tfree\t\t0x401000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			parsed, err := ParseRecord(tt.want)
			if err != nil {
				t.Fatalf("ParseRecord(%q) error = %v", tt.want, err)
			}
			if parsed != tt.rec {
				t.Errorf("ParseRecord(%q) = %+v, want %+v", tt.want, parsed, tt.rec)
			}
		})
	}
}

func TestParseRecordRejectsMalformed(t *testing.T) {
	lines := []string{
		"",
		"0",
		"x\tswitch\t",
		"-1\tswitch\t",
		"0\tjump\t0x10",
		"0\tswitch\t0x10",
		"0\taccess_code\t",
		"0\taccess_code\t10",
		"0\taccess_code\t0xzz",
		"0\talloc\t\t0x10\t0x20",
	}
	for _, line := range lines {
		if _, err := ParseRecord(line); !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("ParseRecord(%q) error = %v, want ErrMalformedRecord", line, err)
		}
	}
}

func TestKindPredicates(t *testing.T) {
	for _, k := range Kinds {
		if !k.Valid() {
			t.Errorf("%s should be valid", k)
		}
	}
	if Kind("access_data").Valid() {
		t.Error("unknown kind reported valid")
	}
	if !KindHeap.IsAccess() || KindAlloc.IsAccess() || KindSwitch.IsAccess() {
		t.Error("IsAccess wrong")
	}
}

func TestTextWriterAndReader(t *testing.T) {
	recs := []Record{
		Switch(1),
		Access(1, KindCode, 1),
		Access(1, KindStack, 0xffffffff),
		Alloc(1, 0x2000),
		Access(1, KindHeap, 0x400010),
		Free(1, 0x400000),
		Switch(0),
	}

	var buf bytes.Buffer
	tw := NewTextWriter(&buf)
	for _, r := range recs {
		if err := tw.Write(r); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if tw.Count() != len(recs) {
		t.Errorf("Count() = %d, want %d", tw.Count(), len(recs))
	}

	want := "1\tswitch\t\n" +
		"1\taccess_code\t0x1\n" +
		"1\taccess_stak\t0xffffffff\n" +
		"1\talloc\t\t0x2000\n" +
		"1\taccess_heap\t0x400010\n" +
		"1\tfree\t\t0x400000\n" +
		"0\tswitch\t\n"
	if buf.String() != want {
		t.Errorf("output =\n%q\nwant\n%q", buf.String(), want)
	}

	got, err := ReadAll(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(got) != len(recs) {
		t.Fatalf("ReadAll() returned %d records, want %d", len(got), len(recs))
	}
	for i := range recs {
		if got[i] != recs[i] {
			t.Errorf("record %d = %+v, want %+v", i, got[i], recs[i])
		}
	}
}

func TestReaderReportsLine(t *testing.T) {
	input := "0\tswitch\t\n\n0\taccess_code\t0x1\n0\tbogus\t0x1\n"
	rd := NewReader(strings.NewReader(input))
	n := 0
	for rd.Next() {
		n++
	}
	if n != 2 {
		t.Errorf("read %d records before the error, want 2", n)
	}
	err := rd.Err()
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("Err() = %v, want ErrMalformedRecord", err)
	}
	if !strings.Contains(err.Error(), "line 4") {
		t.Errorf("error %q should name line 4", err)
	}
}

func TestMultiSink(t *testing.T) {
	a, b := &SliceSink{}, &SliceSink{}
	m := MultiSink{a, b}
	for _, r := range []Record{Switch(0), Alloc(0, 4096)} {
		if err := m.Write(r); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(a.Records) != 2 || len(b.Records) != 2 {
		t.Errorf("fan-out lost records: %d, %d", len(a.Records), len(b.Records))
	}
}

type failingSink struct{ err error }

func (f failingSink) Write(Record) error { return f.err }
func (f failingSink) Close() error       { return f.err }

func TestMultiSinkErrors(t *testing.T) {
	boom := errors.New("boom")
	after := &SliceSink{}
	m := MultiSink{failingSink{boom}, after}
	if err := m.Write(Switch(0)); !errors.Is(err, boom) {
		t.Errorf("Write() error = %v, want boom", err)
	}
	if len(after.Records) != 0 {
		t.Error("sinks after a failure should not receive the record")
	}
	if err := m.Close(); !errors.Is(err, boom) {
		t.Errorf("Close() error = %v, want boom", err)
	}
}
