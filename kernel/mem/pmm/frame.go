// Package pmm contains code that manages physical memory frame allocations.
package pmm

import (
	"github.com/notbdu/rustbelt/kernel"
	"github.com/notbdu/rustbelt/kernel/mem"
)

// Frame describes a contiguous run of physical memory pages. It records the
// index of the first page frame in the run and the number of pages that the
// run spans. Frames are value handles; ownership moves into whatever table
// entry, mapper call or allocator slot consumes them and a Frame is never
// implicitly returned to its allocator.
type Frame struct {
	// Number is the index of the first page frame in the run.
	Number uintptr

	// NumPages is the length of the run in pages.
	NumPages uintptr
}

// Address returns the physical memory address where this Frame run begins.
func (f Frame) Address() uintptr {
	return f.Number << mem.PageShift
}

// FrameFromAddress returns a single-page Frame that corresponds to the given
// physical address. This function can handle both page-aligned and not
// aligned addresses. In the latter case, the input address will be rounded
// down to the frame that contains it.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame{
		Number:   (physAddr & ^(mem.PageSize - 1)) >> mem.PageShift,
		NumPages: 1,
	}
}

// FrameAllocator is implemented by objects that can hand out and reclaim
// physical frame runs. Allocate reserves a run of numPages pages and returns
// a Frame handle for it or an error if the request cannot be satisfied.
// Deallocate returns a Frame previously handed out by the same allocator back
// to it.
type FrameAllocator interface {
	Allocate(numPages uintptr) (Frame, *kernel.Error)
	Deallocate(frame Frame)
}
