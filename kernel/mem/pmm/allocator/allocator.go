// Package allocator implements the physical frame allocator used by the
// kernel. Allocations are served by a buddy tree whose arena begins at
// physical address 0; the regions that the bootloader reports as occupied
// (the kernel image and the boot info payload) are pinned before the first
// allocation request is served.
package allocator

import (
	"github.com/notbdu/rustbelt/kernel"
	"github.com/notbdu/rustbelt/kernel/mem"
	"github.com/notbdu/rustbelt/kernel/mem/pmm"
)

// ArenaSize is the amount of physical memory covered by the buddy tree:
// 1<<maxBuddyLevels page frames starting at physical address 0.
const ArenaSize = mem.Size(1<<maxBuddyLevels) * mem.Size(mem.PageSize)

var (
	// frameAllocator is the page-level allocator instance used by the
	// kernel. It is initialized by Init once the boot extents are known.
	frameAllocator BuddyAllocator

	errOutOfMemory = &kernel.Error{Module: "buddy_alloc", Message: "out of physical memory"}
)

// BuddyAllocator hands out Frame runs backed by a buddy tree. The zero value
// is not usable; one of the init methods must pin the boot-reserved regions
// first.
type BuddyAllocator struct {
	buddy buddy
}

// Init sets up the kernel's frame allocator instance using the extents of
// the kernel image and the boot info payload so that neither region can ever
// be handed out as a free frame.
func Init(kernelEnd, multibootStart, multibootEnd uintptr) *BuddyAllocator {
	frameAllocator.init(kernelEnd, multibootStart, multibootEnd)
	return &frameAllocator
}

// init pins the boot-reserved regions in the buddy tree. The kernel image is
// assumed to begin at physical address 0; its end and the boot info end are
// rounded up to the next page boundary and the boot info start is rounded
// down to the page that contains it.
func (alloc *BuddyAllocator) init(kernelEnd, multibootStart, multibootEnd uintptr) {
	alloc.buddy.init(maxBuddyLevels)

	pageSizeMinus1 := mem.PageSize - 1

	kernelPages := (kernelEnd + pageSizeMinus1) >> mem.PageShift
	alloc.buddy.markUsed(kernelPages, 0)

	multibootFirstPage := multibootStart >> mem.PageShift
	multibootPages := ((multibootEnd + pageSizeMinus1) >> mem.PageShift) - multibootFirstPage
	alloc.buddy.markUsed(multibootPages, multibootFirstPage)
}

// Allocate reserves a contiguous run of numPages physical page frames and
// returns a Frame handle for it. If the buddy tree cannot serve a block of
// the requested size, errOutOfMemory is returned.
func (alloc *BuddyAllocator) Allocate(numPages uintptr) (pmm.Frame, *kernel.Error) {
	frameNumber := alloc.buddy.allocate(numPages)
	if frameNumber < 0 {
		return pmm.Frame{}, errOutOfMemory
	}

	return pmm.Frame{
		Number:   uintptr(frameNumber),
		NumPages: numPages,
	}, nil
}

// Deallocate returns a Frame previously produced by Allocate to the buddy
// tree, coalescing it with its buddy blocks where possible. The Frame must
// carry the same NumPages value it was allocated with since the block level
// is re-derived from it. Deallocating a frame outside the managed arena is a
// fatal error.
func (alloc *BuddyAllocator) Deallocate(frame pmm.Frame) {
	alloc.buddy.free(frame.NumPages, frame.Number)
}
