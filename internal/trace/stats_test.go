package trace

import (
	"strings"
	"testing"

	"github.com/nvandessel/memtrace/internal/layout"
)

func TestSummarize(t *testing.T) {
	input := strings.Join([]string{
		"0\tswitch\t",
		"0\taccess_code\t0x0",
		"0\taccess_code\t0x1",
		"0\taccess_code\t0x1000",
		"0\talloc\t\t0x2000",
		"0\taccess_heap\t0x400000",
		"0\talloc\t\t0x1000",
		"0\tfree\t\t0x402000",
		"1\tswitch\t",
		"1\taccess_stak\t0xffffffff",
		"1\talloc\t\t0x1000",
		"",
	}, "\n")

	s, err := Summarize(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	if s.Records != 11 {
		t.Errorf("Records = %d, want 11", s.Records)
	}
	if s.Switches() != 2 {
		t.Errorf("Switches() = %d, want 2", s.Switches())
	}
	if s.ByKind[KindCode] != 3 || s.ByKind[KindAlloc] != 3 || s.ByKind[KindFree] != 1 {
		t.Errorf("ByKind = %v", s.ByKind)
	}
	if s.ByProcess[0] != 7 || s.ByProcess[1] != 2 {
		t.Errorf("ByProcess = %v", s.ByProcess)
	}
	if got := s.Processes(); len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("Processes() = %v", got)
	}
	if s.DistinctPages[KindCode] != 2 {
		t.Errorf("DistinctPages[code] = %d, want 2", s.DistinctPages[KindCode])
	}
	if s.BytesAllocated != 0x4000 {
		t.Errorf("BytesAllocated = %#x, want 0x4000", s.BytesAllocated)
	}
	if s.BytesFreed != 0x1000 {
		t.Errorf("BytesFreed = %#x, want 0x1000", s.BytesFreed)
	}
	if s.LiveHeap[0] != 0x2000 || s.LiveHeap[1] != 0x1000 {
		t.Errorf("LiveHeap = %v", s.LiveHeap)
	}
	if s.PageSizes[0x1000] != 2 || s.PageSizes[0x2000] != 1 {
		t.Errorf("PageSizes = %v", s.PageSizes)
	}
	if s.Orphans != 0 {
		t.Errorf("Orphans = %d, want 0", s.Orphans)
	}
}

func TestCollectorCountsOrphans(t *testing.T) {
	c := NewCollector()
	for _, r := range []Record{
		Access(0, KindCode, 1), // before any switch
		Switch(0),
		Access(0, KindCode, 2),
		Access(1, KindHeap, layout.HeapBase), // wrong owner
	} {
		c.Observe(r)
	}
	if got := c.Summary().Orphans; got != 2 {
		t.Errorf("Orphans = %d, want 2", got)
	}
}
