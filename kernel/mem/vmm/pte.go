package vmm

import (
	"github.com/notbdu/rustbelt/kernel/mem"
	"github.com/notbdu/rustbelt/kernel/mem/pmm"
)

// pageTableEntry describes a page table entry. These entries encode
// a physical frame address and a set of flags. The actual format
// of the entry and flags is architecture-dependent.
type pageTableEntry uintptr

// IsUnused returns true if the entry is completely zeroed.
func (pte pageTableEntry) IsUnused() bool {
	return pte == 0
}

// SetUnused zeroes the entry.
func (pte *pageTableEntry) SetUnused() {
	*pte = 0
}

// Flags returns the flag bits of this entry.
func (pte pageTableEntry) Flags() PageTableEntryFlag {
	return PageTableEntryFlag(pte) & ^PageTableEntryFlag(ptePhysPageMask)
}

// HasFlags returns true if this entry has all the input flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uintptr(pte) & uintptr(flags)) == uintptr(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte pageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uintptr(pte) & uintptr(flags)) != 0
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uintptr(*pte) | uintptr(flags))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uintptr(*pte) &^ uintptr(flags))
}

// Frame returns the physical page frame that this page table entry points to
// without checking the entry flags.
func (pte pageTableEntry) Frame() pmm.Frame {
	return pmm.Frame{
		Number:   (uintptr(pte) & ptePhysPageMask) >> mem.PageShift,
		NumPages: 1,
	}
}

// FramePointer returns the physical page frame that this entry points to if
// the entry is flagged as present. The second return value reports whether a
// frame was present.
func (pte pageTableEntry) FramePointer() (pmm.Frame, bool) {
	if !pte.HasFlags(FlagPresent) {
		return pmm.Frame{}, false
	}

	return pte.Frame(), true
}

// SetFrame updates the page table entry to point to the given physical frame
// leaving the entry flags untouched.
func (pte *pageTableEntry) SetFrame(frame pmm.Frame) {
	*pte = (pageTableEntry)((uintptr(*pte) &^ ptePhysPageMask) | frame.Address())
}

// Set points the entry to the given physical frame and replaces its flags.
// The frame address must be page-aligned and fit in the 52-bit physical
// address space; any other value would spill into the flag bits.
func (pte *pageTableEntry) Set(frame pmm.Frame, flags PageTableEntryFlag) {
	if frame.Address() & ^ptePhysPageMask != 0 {
		panic("vmm: frame address spills outside the physical address bits of a table entry")
	}

	*pte = (pageTableEntry)(frame.Address() | uintptr(flags))
}
