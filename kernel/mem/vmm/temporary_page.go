package vmm

import (
	"github.com/notbdu/rustbelt/kernel"
	"github.com/notbdu/rustbelt/kernel/mem/pmm"
)

var errStashExhausted = &kernel.Error{Module: "vmm", Message: "temporary page stash has no free frames"}

// stashSlots is the capacity of the temporary page frame stash. Mapping the
// scratch page can require at most one fresh table per paging level below
// the P4 (P3, P2 and P1), so three stashed frames always suffice.
const stashSlots = pageLevels - 1

// frameStash is a fixed-capacity frame allocator that serves the temporary
// page. It is pre-filled from a real allocator and afterwards only moves
// frames in and out of its slots, which makes it safe to use while the
// recursive mapping points at a foreign hierarchy.
type frameStash struct {
	frames [stashSlots]pmm.Frame
	filled [stashSlots]bool
}

// fill stocks every empty stash slot with a single-page frame pulled from
// alloc.
func (s *frameStash) fill(alloc pmm.FrameAllocator) *kernel.Error {
	for i := 0; i < stashSlots; i++ {
		if s.filled[i] {
			continue
		}

		frame, err := alloc.Allocate(1)
		if err != nil {
			return err
		}

		s.frames[i] = frame
		s.filled[i] = true
	}

	return nil
}

// Allocate hands out one of the stashed frames. Only single-page requests
// can be served.
func (s *frameStash) Allocate(numPages uintptr) (pmm.Frame, *kernel.Error) {
	if numPages != 1 {
		panic("vmm: the temporary page stash can only serve single-page requests")
	}

	for i := 0; i < stashSlots; i++ {
		if !s.filled[i] {
			continue
		}

		s.filled[i] = false
		return s.frames[i], nil
	}

	return pmm.Frame{}, errStashExhausted
}

// Deallocate moves a frame back into the first empty stash slot. Frames
// offered while the stash is full are dropped.
func (s *frameStash) Deallocate(frame pmm.Frame) {
	for i := 0; i < stashSlots; i++ {
		if s.filled[i] {
			continue
		}

		s.frames[i] = frame
		s.filled[i] = true
		return
	}
}

// TemporaryPage reserves a virtual page as a scratch slot through which
// arbitrary physical frames can be edited. Its primary purpose is to make
// the frames of an inactive page table hierarchy addressable while the
// recursive mapping still points at the active hierarchy.
type TemporaryPage struct {
	page  Page
	stash frameStash
}

// Init points the temporary page at the supplied scratch page and pre-fills
// its frame stash from alloc so that later mappings never need to reach a
// real allocator.
func (t *TemporaryPage) Init(page Page, alloc pmm.FrameAllocator) *kernel.Error {
	t.page = page
	return t.stash.fill(alloc)
}

// Map installs a mapping from the scratch page to the supplied frame in the
// active address space and returns the scratch page's virtual address. The
// scratch page must not be currently mapped; mapping it twice is a fatal
// error.
func (t *TemporaryPage) Map(frame pmm.Frame, active *ActivePageTable) (uintptr, *kernel.Error) {
	if _, err := active.TranslatePage(t.page); err == nil {
		panic("vmm: temporary page is already mapped")
	}

	if err := active.MapTo(t.page, frame, FlagRW, &t.stash); err != nil {
		return 0, err
	}

	return t.page.Address(), nil
}

// Unmap removes the scratch page mapping from the active address space.
func (t *TemporaryPage) Unmap(active *ActivePageTable) {
	active.Unmap(t.page)
}

// MapTableFrame maps the supplied frame to the scratch page and returns a
// table view over it, allowing a page table frame of an inactive hierarchy
// to be edited in place.
func (t *TemporaryPage) MapTableFrame(frame pmm.Frame, active *ActivePageTable) (*Level1Table, *kernel.Error) {
	addr, err := t.Map(frame, active)
	if err != nil {
		return nil, err
	}

	return (*Level1Table)(tablePtrFn(addr)), nil
}
