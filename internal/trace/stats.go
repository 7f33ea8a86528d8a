package trace

import (
	"io"
	"slices"

	"github.com/nvandessel/memtrace/internal/layout"
)

// Summary aggregates a trace.
type Summary struct {
	// Records counts every record, switches included.
	Records int `json:"records" yaml:"records"`

	// ByKind counts records per kind.
	ByKind map[Kind]int `json:"by_kind" yaml:"by_kind"`

	// ByProcess counts non-switch records per process id.
	ByProcess map[int]int `json:"by_process" yaml:"by_process"`

	// DistinctPages counts distinct 4 KiB pages touched per access kind.
	DistinctPages map[Kind]int `json:"distinct_pages" yaml:"distinct_pages"`

	// PageSizes is a histogram of allocation sizes.
	PageSizes map[uint64]int `json:"page_sizes" yaml:"page_sizes"`

	// BytesAllocated and BytesFreed total the heap traffic. Freed bytes are
	// derived from each process's heap end, since a free record only
	// carries the page base.
	BytesAllocated uint64 `json:"bytes_allocated" yaml:"bytes_allocated"`
	BytesFreed     uint64 `json:"bytes_freed" yaml:"bytes_freed"`

	// LiveHeap is each process's heap size at the end of the trace.
	LiveHeap map[int]uint64 `json:"live_heap" yaml:"live_heap"`

	// Orphans counts records whose pid differs from the most recent switch,
	// including records that appear before any switch.
	Orphans int `json:"orphans" yaml:"orphans"`
}

// Switches returns the number of switch records.
func (s Summary) Switches() int { return s.ByKind[KindSwitch] }

// Processes returns the process ids seen, sorted.
func (s Summary) Processes() []int {
	ids := make([]int, 0, len(s.ByProcess))
	for id := range s.ByProcess {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

type pageKey struct {
	pid  int
	page uint64
}

// Collector builds a Summary incrementally. It implements Sink so it can sit
// next to the real output of a run.
type Collector struct {
	summary Summary
	current int
	started bool
	heapEnd map[int]uint64
	pages   map[Kind]map[pageKey]struct{}
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		summary: Summary{
			ByKind:        make(map[Kind]int),
			ByProcess:     make(map[int]int),
			DistinctPages: make(map[Kind]int),
			PageSizes:     make(map[uint64]int),
			LiveHeap:      make(map[int]uint64),
		},
		heapEnd: make(map[int]uint64),
		pages: map[Kind]map[pageKey]struct{}{
			KindCode:  {},
			KindStack: {},
			KindHeap:  {},
		},
	}
}

// Observe folds one record into the summary.
func (c *Collector) Observe(r Record) {
	s := &c.summary
	s.Records++
	s.ByKind[r.Kind]++

	if r.Kind == KindSwitch {
		c.current = r.PID
		c.started = true
		return
	}

	s.ByProcess[r.PID]++
	if !c.started || r.PID != c.current {
		s.Orphans++
	}

	switch r.Kind {
	case KindCode, KindStack, KindHeap:
		c.pages[r.Kind][pageKey{r.PID, layout.PageNumber(r.Value)}] = struct{}{}
	case KindAlloc:
		end, ok := c.heapEnd[r.PID]
		if !ok {
			end = layout.HeapBase
		}
		c.heapEnd[r.PID] = end + r.Value
		s.BytesAllocated += r.Value
		s.PageSizes[r.Value]++
	case KindFree:
		if end, ok := c.heapEnd[r.PID]; ok && r.Value <= end {
			s.BytesFreed += end - r.Value
			c.heapEnd[r.PID] = r.Value
		}
	}
}

// Write implements Sink.
func (c *Collector) Write(r Record) error {
	c.Observe(r)
	return nil
}

// Close implements Sink.
func (c *Collector) Close() error { return nil }

// Summary returns the aggregate so far.
func (c *Collector) Summary() Summary {
	out := c.summary
	out.DistinctPages = make(map[Kind]int, len(c.pages))
	for kind, set := range c.pages {
		out.DistinctPages[kind] = len(set)
	}
	out.LiveHeap = make(map[int]uint64, len(c.heapEnd))
	for pid, end := range c.heapEnd {
		out.LiveHeap[pid] = end - layout.HeapBase
	}
	return out
}

// Summarize reads a text trace and aggregates it.
func Summarize(r io.Reader) (Summary, error) {
	c := NewCollector()
	rd := NewReader(r)
	for rd.Next() {
		c.Observe(rd.Record())
	}
	return c.Summary(), rd.Err()
}
