package vmm

import (
	"unsafe"

	"github.com/notbdu/rustbelt/kernel"
	"github.com/notbdu/rustbelt/kernel/mem"
	"github.com/notbdu/rustbelt/kernel/mem/pmm"
)

var (
	// tablePtrFn converts a recursively mapped table address into a
	// pointer. It is overridden by tests so that table walks can be
	// redirected to in-memory tables; when compiling the kernel this
	// function is automatically inlined.
	tablePtrFn = func(tableAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(tableAddr)
	}
)

// Table describes a page table at any paging level: a fixed array of 512
// entries that exactly covers one page frame. Tables always live at physical
// frames but are only ever accessed through the virtual addresses generated
// by the recursive mapping installed in the last P4 entry; no
// physical-to-virtual map is maintained.
type Table struct {
	entries [tableEntryCount]pageTableEntry
}

// At returns a pointer to the entry at the supplied index.
func (t *Table) At(index uintptr) *pageTableEntry {
	return &t.entries[index]
}

// Zero marks every entry in the table as unused. Since a table exactly
// covers one page frame this clears the whole frame in one go.
func (t *Table) Zero() {
	kernel.Memset(uintptr(unsafe.Pointer(t)), 0, mem.PageSize)
}

// nextTableAddress returns the virtual address of the next-level table
// referenced by the entry at index. Starting from the table's own
// recursively mapped virtual address, shifting left by 9 bits and merging in
// the entry index adds one level of indirection to the recursive mapping so
// the resulting address resolves to the frame the entry points at.
//
// The second return value is false if the entry is not present or maps a
// huge page instead of a next-level table.
func (t *Table) nextTableAddress(index uintptr) (uintptr, bool) {
	entry := t.entries[index]
	if !entry.HasFlags(FlagPresent) || entry.HasAnyFlag(FlagHugePage) {
		return 0, false
	}

	tableAddr := uintptr(unsafe.Pointer(t))
	return (tableAddr << 9) | (index << 12), true
}

// nextTableOrCreateAddress behaves like nextTableAddress but allocates,
// installs and zeroes a new next-level table when the entry at index is
// unused. Encountering a huge page mapping is a fatal error since huge
// pages are unsupported.
func (t *Table) nextTableOrCreateAddress(index uintptr, alloc pmm.FrameAllocator) (uintptr, *kernel.Error) {
	if addr, ok := t.nextTableAddress(index); ok {
		return addr, nil
	}

	if t.entries[index].HasFlags(FlagPresent | FlagHugePage) {
		panic("vmm: encountered a huge page mapping; huge pages are not supported")
	}

	frame, err := alloc.Allocate(1)
	if err != nil {
		return 0, err
	}

	t.entries[index].Set(frame, FlagPresent|FlagRW)

	// The new table becomes visible through the recursive mapping once
	// the entry is installed; its frame contents are whatever the
	// allocator handed out so it must be cleared before use.
	addr, _ := t.nextTableAddress(index)
	(*Table)(tablePtrFn(addr)).Zero()

	return addr, nil
}

// Level4Table is the root table of the four-level paging hierarchy; the
// physical address of the active Level4Table is held in the CR3 register
// and its last entry recursively references the table itself.
type Level4Table struct{ Table }

// Level3Table is the second level of the paging hierarchy.
type Level3Table struct{ Table }

// Level2Table is the third level of the paging hierarchy.
type Level2Table struct{ Table }

// Level1Table is the terminal level of the paging hierarchy. Its entries
// reference the mapped physical frames; it has no next level and therefore
// provides no next-table accessors.
type Level1Table struct{ Table }

// NextTable returns the Level3Table referenced by the entry at index or nil
// if the entry is not present or maps a huge page.
func (t *Level4Table) NextTable(index uintptr) *Level3Table {
	addr, ok := t.nextTableAddress(index)
	if !ok {
		return nil
	}

	return (*Level3Table)(tablePtrFn(addr))
}

// NextTableOrCreate returns the Level3Table referenced by the entry at
// index, allocating and zeroing a new table via alloc if the entry is
// unused.
func (t *Level4Table) NextTableOrCreate(index uintptr, alloc pmm.FrameAllocator) (*Level3Table, *kernel.Error) {
	addr, err := t.nextTableOrCreateAddress(index, alloc)
	if err != nil {
		return nil, err
	}

	return (*Level3Table)(tablePtrFn(addr)), nil
}

// NextTable returns the Level2Table referenced by the entry at index or nil
// if the entry is not present or maps a huge page.
func (t *Level3Table) NextTable(index uintptr) *Level2Table {
	addr, ok := t.nextTableAddress(index)
	if !ok {
		return nil
	}

	return (*Level2Table)(tablePtrFn(addr))
}

// NextTableOrCreate returns the Level2Table referenced by the entry at
// index, allocating and zeroing a new table via alloc if the entry is
// unused.
func (t *Level3Table) NextTableOrCreate(index uintptr, alloc pmm.FrameAllocator) (*Level2Table, *kernel.Error) {
	addr, err := t.nextTableOrCreateAddress(index, alloc)
	if err != nil {
		return nil, err
	}

	return (*Level2Table)(tablePtrFn(addr)), nil
}

// NextTable returns the Level1Table referenced by the entry at index or nil
// if the entry is not present or maps a huge page.
func (t *Level2Table) NextTable(index uintptr) *Level1Table {
	addr, ok := t.nextTableAddress(index)
	if !ok {
		return nil
	}

	return (*Level1Table)(tablePtrFn(addr))
}

// NextTableOrCreate returns the Level1Table referenced by the entry at
// index, allocating and zeroing a new table via alloc if the entry is
// unused.
func (t *Level2Table) NextTableOrCreate(index uintptr, alloc pmm.FrameAllocator) (*Level1Table, *kernel.Error) {
	addr, err := t.nextTableOrCreateAddress(index, alloc)
	if err != nil {
		return nil, err
	}

	return (*Level1Table)(tablePtrFn(addr)), nil
}
