// Package layout defines the simulated 32-bit address space shared by every
// process: a fixed code region at the bottom, a heap growing upward from the
// end of code, and a stack growing downward from the top of the space.
package layout

// Address space bounds.
const (
	// AddressMax is the highest addressable byte.
	AddressMax uint64 = 0xFFFF_FFFF

	// CodeBase is the first address of the code region.
	CodeBase uint64 = 0

	// CodeSize is the size of the static code region (4 MiB).
	CodeSize uint64 = 4 * 1024 * 1024
)

// Heap region.
const (
	// HeapBase is where every process heap starts. The heap sits directly
	// above the code region.
	HeapBase = CodeBase + CodeSize
)

// Stack region.
const (
	// StackSize is the maximum stack depth (4 MiB).
	StackSize uint64 = 4 * 1024 * 1024

	// StackCeiling is the initial stack pointer and the highest stack address.
	StackCeiling = AddressMax

	// StackFloor is the lowest address the stack pointer may reach.
	StackFloor = StackCeiling - StackSize
)

// MaxHeapBudget is the largest heap budget a process may be configured with.
// A heap this large ends exactly at the stack floor.
const MaxHeapBudget = StackFloor - HeapBase

// Page sizes.
const (
	// BasePageShift is log2 of the smallest page (4 KiB).
	BasePageShift = 12

	// BasePageSize is the smallest allocation unit.
	BasePageSize uint64 = 1 << BasePageShift

	// MinHugePageShift and MaxHugePageShift bound the larger page sizes
	// considered by the allocator (8 KiB .. 512 MiB).
	MinHugePageShift = 13
	MaxHugePageShift = 29
)

// ClampStack pins a signed stack address into [StackFloor, StackCeiling].
func ClampStack(addr int64) uint64 {
	if addr > int64(StackCeiling) {
		return StackCeiling
	}
	if addr < int64(StackFloor) {
		return StackFloor
	}
	return uint64(addr)
}

// InCode reports whether addr is a valid code offset.
func InCode(addr uint64) bool {
	return addr < CodeBase+CodeSize
}

// InStack reports whether addr lies in the stack region.
func InStack(addr uint64) bool {
	return addr >= StackFloor && addr <= StackCeiling
}

// PageNumber returns the 4 KiB page index containing addr.
func PageNumber(addr uint64) uint64 {
	return addr >> BasePageShift
}
