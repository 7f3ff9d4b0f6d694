//go:build amd64

package vmm

import "github.com/notbdu/rustbelt/kernel/mem"

const (
	// pageLevels indicates the number of page table levels supported by
	// the amd64 architecture.
	pageLevels = 4

	// tableEntryCount is the number of entries in a page table at any
	// level: one pointer-sized entry for every slot of a page frame.
	tableEntryCount = mem.PageSize >> mem.PointerShift

	// ptePhysPageMask is a mask that allows us to extract the physical
	// memory address pointed to by a page table entry. For this particular
	// architecture, bits 12-51 contain the physical memory address.
	ptePhysPageMask = uintptr(0x000ffffffffff000)

	// p4VirtualAddr is a special virtual address that exploits the
	// recursive mapping installed in the last entry of the active P4
	// table. With all four 9-bit index slices set to 511, the MMU keeps
	// following the last P4 entry for every level and lands back on the
	// P4 table itself (0o177777_777_777_777_777_0000).
	p4VirtualAddr = uintptr(0xfffffffffffff000)

	// TempMappingAddr is a reserved virtual page used for temporary
	// physical page mappings (e.g. when bootstrapping inactive page
	// table hierarchies). For amd64 this address uses the table indices
	// 510, 511, 511, 511 which keeps it clear of the recursively mapped
	// table region.
	TempMappingAddr = uintptr(0xffffff7ffffff000)

	// Canonical form boundaries. A virtual address is valid only when it
	// lives in the lower half (below lowHalfCanonicalBound) or the higher
	// half (at or above highHalfCanonicalBound); bits 48-63 must be
	// copies of bit 47.
	lowHalfCanonicalBound  = uintptr(0x0000800000000000)
	highHalfCanonicalBound = uintptr(0xffff800000000000)
)

// PageTableEntryFlag describes a flag that can be applied to a page table
// entry.
type PageTableEntryFlag uintptr

const (
	// FlagPresent is set when the page is available in memory and not
	// swapped out.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode processes can access this
	// page. If not set only kernel code can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and
	// write-back caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when this page is modified.
	FlagDirty

	// FlagHugePage is set when an entry in the P3 or P2 tables maps a
	// 1GiB or 2MiB page directly. Huge pages are not supported by this
	// kernel; the flag only exists so their presence can be detected.
	FlagHugePage

	// FlagGlobal if set, prevents the TLB from flushing the cached memory
	// address for this page when swapping page tables by updating the CR3
	// register.
	FlagGlobal

	// FlagNoExecute if set, indicates that a page contains non-executable
	// code.
	FlagNoExecute = PageTableEntryFlag(1) << 63
)
