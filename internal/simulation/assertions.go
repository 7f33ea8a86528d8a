package simulation

import (
	"testing"

	"github.com/nvandessel/memtrace/internal/layout"
	"github.com/nvandessel/memtrace/internal/process"
	"github.com/nvandessel/memtrace/internal/trace"
)

// AssertLeadingSwitch asserts that the trace opens with a switch record.
func AssertLeadingSwitch(t *testing.T, records []trace.Record) {
	t.Helper()
	if len(records) == 0 {
		t.Fatal("AssertLeadingSwitch: trace is empty")
	}
	if records[0].Kind != trace.KindSwitch {
		t.Errorf("AssertLeadingSwitch: first record is %s, want switch", records[0].Kind)
	}
}

// AssertOwnership asserts that every non-switch record belongs to the
// process named by the most recent switch.
func AssertOwnership(t *testing.T, records []trace.Record) {
	t.Helper()
	owner := -1
	for i, rec := range records {
		if rec.Kind == trace.KindSwitch {
			owner = rec.PID
			continue
		}
		if rec.PID != owner {
			t.Errorf("AssertOwnership: record %d (%s) has pid %d, last switch was to %d", i, rec, rec.PID, owner)
		}
	}
}

// AssertAddressesInRegion asserts that every access record targets the
// region its kind names.
func AssertAddressesInRegion(t *testing.T, records []trace.Record) {
	t.Helper()
	for i, rec := range records {
		switch rec.Kind {
		case trace.KindCode:
			if !layout.InCode(rec.Value) {
				t.Errorf("AssertAddressesInRegion: record %d: code address %#x outside code region", i, rec.Value)
			}
		case trace.KindStack:
			if !layout.InStack(rec.Value) {
				t.Errorf("AssertAddressesInRegion: record %d: stack address %#x outside stack region", i, rec.Value)
			}
		case trace.KindHeap:
			if rec.Value < layout.HeapBase || rec.Value >= layout.StackFloor {
				t.Errorf("AssertAddressesInRegion: record %d: heap address %#x outside heap region", i, rec.Value)
			}
		}
	}
}

// AssertStatesInRange asserts the pointer invariants of final process states.
func AssertStatesInRange(t *testing.T, states []process.State) {
	t.Helper()
	for _, s := range states {
		if !layout.InCode(s.CodePointer) {
			t.Errorf("AssertStatesInRange: pid %d: code pointer %#x out of range", s.ID, s.CodePointer)
		}
		if !layout.InStack(s.StackPointer) {
			t.Errorf("AssertStatesInRange: pid %d: stack pointer %#x out of range", s.ID, s.StackPointer)
		}
		if s.HeapSize > s.MaxMemory {
			t.Errorf("AssertStatesInRange: pid %d: heap size %d exceeds budget %d", s.ID, s.HeapSize, s.MaxMemory)
		}
		if s.HeapSize > 0 && (s.HeapPointer < layout.HeapBase || s.HeapPointer >= layout.HeapBase+s.HeapSize) {
			t.Errorf("AssertStatesInRange: pid %d: heap pointer %#x outside live heap", s.ID, s.HeapPointer)
		}
	}
}

// CountKind returns how many records have the given kind.
func CountKind(records []trace.Record, kind trace.Kind) int {
	n := 0
	for _, rec := range records {
		if rec.Kind == kind {
			n++
		}
	}
	return n
}
