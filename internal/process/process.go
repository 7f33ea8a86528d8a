// Package process models the memory behavior of one simulated process: its
// instruction fetches, stack traffic around simulated calls and returns,
// heap accesses shaped by a locality parameter, and a LIFO page allocator
// that picks page sizes from a skewed distribution.
//
// A Process is not safe for concurrent use. All randomness comes from the
// *rand.Rand handed to New, so a run is reproducible from its seed.
package process

import (
	"math/rand/v2"

	"github.com/nvandessel/memtrace/internal/dist"
	"github.com/nvandessel/memtrace/internal/layout"
)

// Config is the externally supplied shape of a process.
type Config struct {
	// Locality is the probability that a heap access stays next to the
	// previous one. Range: 0.0 to 1.0
	Locality float64 `json:"locality" yaml:"locality"`

	// MaxMemory is the heap budget in bytes.
	MaxMemory uint64 `json:"max_memory" yaml:"max_memory"`
}

// Frame is one simulated call: where to resume in code and where the
// stack pointer stood after the return address was pushed.
type Frame struct {
	ReturnCode uint64
	StackBase  uint64
}

// Page is one heap allocation.
type Page struct {
	Base uint64
	Size uint64
}

// End returns the first address past the page.
func (p Page) End() uint64 {
	return p.Base + p.Size
}

// Process holds the mutable state of one simulated process.
type Process struct {
	id        int
	locality  float64
	maxMemory uint64

	rng   *rand.Rand
	sizes *dist.RankSelector

	code     uint64
	stack    uint64
	heap     uint64
	heapSize uint64

	calls Stack[Frame]
	pages Stack[Page]
}

// New creates a process with an empty heap, the stack pointer at the top of
// the address space and the code pointer at the start of the code region.
// cfg is assumed to be validated.
func New(id int, cfg Config, rng *rand.Rand) *Process {
	return &Process{
		id:        id,
		locality:  cfg.Locality,
		maxMemory: cfg.MaxMemory,
		rng:       rng,
		sizes:     dist.NewRankSelector(rng, PageSizeSkew),
		code:      layout.CodeBase,
		stack:     layout.StackCeiling,
		heap:      layout.HeapBase,
	}
}

// ID returns the process id.
func (p *Process) ID() int { return p.id }

// Locality returns the configured heap locality.
func (p *Process) Locality() float64 { return p.locality }

// MaxMemory returns the heap budget in bytes.
func (p *Process) MaxMemory() uint64 { return p.maxMemory }

// CodePointer returns the current code offset.
func (p *Process) CodePointer() uint64 { return p.code }

// StackPointer returns the current stack address.
func (p *Process) StackPointer() uint64 { return p.stack }

// HeapPointer returns the last touched heap address.
func (p *Process) HeapPointer() uint64 { return p.heap }

// HeapSize returns the bytes currently allocated.
func (p *Process) HeapSize() uint64 { return p.heapSize }

// CallDepth returns the number of outstanding simulated calls.
func (p *Process) CallDepth() int { return p.calls.Len() }

// Pages returns the live pages in allocation order.
func (p *Process) Pages() []Page { return p.pages.Items() }

// heapEnd is the first address past the live heap.
func (p *Process) heapEnd() uint64 {
	return layout.HeapBase + p.heapSize
}

func (p *Process) randomCode() uint64 {
	return dist.Uint64Range(p.rng, layout.CodeBase, layout.CodeBase+layout.CodeSize)
}

// AccessCode advances the code pointer by one fetch and returns it.
func (p *Process) AccessCode() uint64 {
	op, _ := CodeTable.Draw(p.rng)
	switch op {
	case FetchNext:
		p.code++
		if !layout.InCode(p.code) {
			p.code = p.randomCode()
		}
	case JumpBack:
		if reach := min(p.code-layout.CodeBase, MaxJumpBack); reach > 0 {
			p.code -= uint64(dist.IntRange(p.rng, 1, int64(reach)))
		}
	case JumpRandom:
		p.code = p.randomCode()
	}
	return p.code
}

// AccessStack performs one stack event and returns the touched addresses in
// access order. A return with no outstanding call touches nothing.
func (p *Process) AccessStack() []uint64 {
	op, _ := StackTable.Draw(p.rng)
	switch op {
	case AccessSame:
		return []uint64{p.stack}
	case AccessNear:
		jump := dist.IntRange(p.rng, -NearStackReach, NearStackReach)
		p.stack = layout.ClampStack(int64(p.stack) + jump)
		return []uint64{p.stack}
	case FuncCall:
		return p.Call()
	default:
		return p.Return()
	}
}

// Call simulates a function call: arguments and the return address are
// pushed one slot at a time, the caller's position is saved, control jumps
// to a random callee and a frame is reserved below the return address.
func (p *Process) Call() []uint64 {
	args := int(dist.IntRange(p.rng, 0, MaxCallArgs))
	touched := make([]uint64, 0, args+1)
	for range args {
		p.stack = layout.ClampStack(int64(p.stack) - 1)
		touched = append(touched, p.stack)
	}

	// return address
	p.stack = layout.ClampStack(int64(p.stack) - 1)
	touched = append(touched, p.stack)

	p.calls.Push(Frame{ReturnCode: p.code, StackBase: p.stack})
	p.code = p.randomCode()
	p.stack = layout.ClampStack(int64(p.stack) - FrameSize)
	return touched
}

// Return unwinds the most recent call and returns the restored stack
// pointer. With no outstanding call it returns nil and changes nothing.
func (p *Process) Return() []uint64 {
	frame, ok := p.calls.Pop()
	if !ok {
		return nil
	}
	p.code = frame.ReturnCode
	p.stack = layout.ClampStack(int64(frame.StackBase))
	return []uint64{p.stack}
}

// AccessHeap touches one heap address. ok is false when the process has no
// heap yet; the caller is expected to allocate instead.
//
// The far branch aims at the full heap budget but the result is still pinned
// to the live heap, so an address past the live ceiling is reported as the
// last live byte rather than triggering an allocation.
func (p *Process) AccessHeap() (addr uint64, ok bool) {
	if p.heapSize == 0 {
		return 0, false
	}

	switch {
	case p.rng.Float64() < p.locality:
		stride := dist.IntRange(p.rng, -1, 1)
		p.heap = p.clampHeap(int64(p.heap) + stride)
	case p.rng.Float64() < LiveJumpShare:
		p.heap = dist.Uint64Range(p.rng, layout.HeapBase, p.heapEnd())
	default:
		target := dist.Uint64Range(p.rng, layout.HeapBase, layout.HeapBase+p.maxMemory)
		p.heap = p.clampHeap(int64(target))
	}
	return p.heap, true
}

// clampHeap pins addr into the live heap [HeapBase, heapEnd).
func (p *Process) clampHeap(addr int64) uint64 {
	if addr >= int64(p.heapEnd()) {
		return p.heapEnd() - 1
	}
	if addr < int64(layout.HeapBase) {
		return layout.HeapBase
	}
	return uint64(addr)
}

// Allocate grows the heap by one page and returns its size. ok is false,
// and nothing changes, when less than a base page of budget remains.
func (p *Process) Allocate() (size uint64, ok bool) {
	remaining := p.maxMemory - p.heapSize
	if remaining < layout.BasePageSize {
		return 0, false
	}

	candidates := PageSizeCandidates(p.heapEnd(), remaining)
	size = candidates[p.sizes.Pick(len(candidates))]

	p.pages.Push(Page{Base: p.heapEnd(), Size: size})
	p.heapSize += size
	return size, true
}

// Free releases the most recently allocated page and returns its base. If
// the heap pointer falls outside the shrunken heap it is moved to a random
// live address. ok is false when there is nothing to free.
func (p *Process) Free() (base uint64, ok bool) {
	page, ok := p.pages.Pop()
	if !ok {
		return 0, false
	}

	p.heapSize = page.Base - layout.HeapBase
	if p.heap >= p.heapEnd() {
		if p.heapSize == 0 {
			p.heap = layout.HeapBase
		} else {
			p.heap = dist.Uint64Range(p.rng, layout.HeapBase, p.heapEnd())
		}
	}
	return page.Base, true
}

// PageSizeCandidates lists the page sizes an allocation at heapEnd may use
// with remaining bytes of budget: the 4 KiB base page first, then every
// larger power of two up to 512 MiB that fits the budget and keeps the new
// page naturally aligned.
func PageSizeCandidates(heapEnd, remaining uint64) []uint64 {
	sizes := []uint64{layout.BasePageSize}
	for shift := layout.MinHugePageShift; shift <= layout.MaxHugePageShift; shift++ {
		size := uint64(1) << shift
		if size <= remaining && heapEnd%size == 0 {
			sizes = append(sizes, size)
		}
	}
	return sizes
}

// State is a point-in-time copy of a process, for logging and inspection.
type State struct {
	ID           int     `json:"id"`
	Locality     float64 `json:"locality"`
	MaxMemory    uint64  `json:"max_memory"`
	CodePointer  uint64  `json:"code_pointer"`
	StackPointer uint64  `json:"stack_pointer"`
	HeapPointer  uint64  `json:"heap_pointer"`
	HeapSize     uint64  `json:"heap_size"`
	CallDepth    int     `json:"call_depth"`
	PageCount    int     `json:"page_count"`
}

// Snapshot captures the current state.
func (p *Process) Snapshot() State {
	return State{
		ID:           p.id,
		Locality:     p.locality,
		MaxMemory:    p.maxMemory,
		CodePointer:  p.code,
		StackPointer: p.stack,
		HeapPointer:  p.heap,
		HeapSize:     p.heapSize,
		CallDepth:    p.calls.Len(),
		PageCount:    p.pages.Len(),
	}
}
