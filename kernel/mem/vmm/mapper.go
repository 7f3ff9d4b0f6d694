package vmm

import (
	"github.com/notbdu/rustbelt/kernel"
	"github.com/notbdu/rustbelt/kernel/mem"
	"github.com/notbdu/rustbelt/kernel/mem/pmm"
)

var (
	// ErrInvalidMapping is returned when trying to lookup a virtual memory
	// address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}
)

// Mapper edits the four-level page table hierarchy whose P4 table is visible
// at the recursively mapped virtual address. All table accesses go through
// virtual addresses derived from the recursive mapping; which hierarchy is
// actually edited depends on where the last entry of the active P4 points.
type Mapper struct {
	p4 *Level4Table
}

// newMapper returns a Mapper rooted at the recursively mapped P4 address.
func newMapper() Mapper {
	return Mapper{
		p4: (*Level4Table)(tablePtrFn(p4VirtualAddr)),
	}
}

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical page. Virtual addresses covered by a huge
// page mapping cannot be translated since huge pages are unsupported.
func (m *Mapper) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	offset := virtAddr & (mem.PageSize - 1)

	frame, err := m.TranslatePage(PageFromAddress(virtAddr))
	if err != nil {
		return 0, err
	}

	return frame.Address() + offset, nil
}

// TranslatePage walks the hierarchy for the supplied page and returns the
// physical frame its terminal entry points to, or ErrInvalidMapping if any
// table on the path is missing or the terminal entry is not present. A P3 or
// P2 entry on the path that maps a huge page yields errNoHugePageSupport.
func (m *Mapper) TranslatePage(page Page) (pmm.Frame, *kernel.Error) {
	p3 := m.p4.NextTable(page.p4Index())
	if p3 == nil {
		return pmm.Frame{}, ErrInvalidMapping
	}

	p2 := p3.NextTable(page.p3Index())
	if p2 == nil {
		if p3.At(page.p3Index()).HasFlags(FlagPresent | FlagHugePage) {
			return pmm.Frame{}, errNoHugePageSupport
		}
		return pmm.Frame{}, ErrInvalidMapping
	}

	p1 := p2.NextTable(page.p2Index())
	if p1 == nil {
		if p2.At(page.p2Index()).HasFlags(FlagPresent | FlagHugePage) {
			return pmm.Frame{}, errNoHugePageSupport
		}
		return pmm.Frame{}, ErrInvalidMapping
	}

	frame, ok := p1.At(page.p1Index()).FramePointer()
	if !ok {
		return pmm.Frame{}, ErrInvalidMapping
	}

	return frame, nil
}

// MapTo establishes a mapping between a virtual page and a physical memory
// frame, creating any missing intermediate tables with frames pulled from
// alloc. The terminal entry for the page must be unused; mapping an already
// mapped page is a fatal error. The entry is stamped with the supplied flags
// plus FlagPresent.
func (m *Mapper) MapTo(page Page, frame pmm.Frame, flags PageTableEntryFlag, alloc pmm.FrameAllocator) *kernel.Error {
	p3, err := m.p4.NextTableOrCreate(page.p4Index(), alloc)
	if err != nil {
		return err
	}

	p2, err := p3.NextTableOrCreate(page.p3Index(), alloc)
	if err != nil {
		return err
	}

	p1, err := p2.NextTableOrCreate(page.p2Index(), alloc)
	if err != nil {
		return err
	}

	entry := p1.At(page.p1Index())
	if !entry.IsUnused() {
		panic("vmm: page is already mapped")
	}

	entry.Set(frame, flags|FlagPresent)
	return nil
}

// Map allocates a fresh physical frame from alloc and maps page to it.
func (m *Mapper) Map(page Page, flags PageTableEntryFlag, alloc pmm.FrameAllocator) *kernel.Error {
	frame, err := alloc.Allocate(1)
	if err != nil {
		return err
	}

	return m.MapTo(page, frame, flags, alloc)
}

// IdentityMap maps the virtual page with the same index as frame to frame,
// so that the frame contents are reachable at their physical address.
func (m *Mapper) IdentityMap(frame pmm.Frame, flags PageTableEntryFlag, alloc pmm.FrameAllocator) *kernel.Error {
	return m.MapTo(PageFromAddress(frame.Address()), frame, flags, alloc)
}

// Unmap removes the mapping for the supplied page, invalidates its TLB entry
// and returns the frame that the page used to map to. The page must be
// mapped; unmapping an unused page is a fatal error. The returned frame is
// not handed back to any allocator — its ownership moves to the caller.
func (m *Mapper) Unmap(page Page) pmm.Frame {
	p3 := m.p4.NextTable(page.p4Index())
	if p3 == nil {
		panic("vmm: tried to unmap a page with no P3 table")
	}

	p2 := p3.NextTable(page.p3Index())
	if p2 == nil {
		panic("vmm: tried to unmap a page with no P2 table")
	}

	p1 := p2.NextTable(page.p2Index())
	if p1 == nil {
		panic("vmm: tried to unmap a page with no P1 table")
	}

	entry := p1.At(page.p1Index())
	frame, ok := entry.FramePointer()
	if !ok {
		panic("vmm: tried to unmap a page that is not mapped")
	}

	entry.SetUnused()
	flushTLBEntryFn(page.Address())

	return frame
}
