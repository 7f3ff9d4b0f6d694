package vmm

import "github.com/notbdu/rustbelt/kernel/mem"

// Page describes a virtual memory page index.
type Page uintptr

// Address returns a pointer to the virtual memory address pointed to by this Page.
func (p Page) Address() uintptr {
	return uintptr(p << mem.PageShift)
}

// PageFromAddress returns a Page that corresponds to the given virtual
// address. This function can handle both page-aligned and not aligned virtual
// addresses. in the latter case, the input address will be rounded down to the
// page that contains it.
//
// The supplied address must be in canonical form; bits 48-63 must be copies
// of bit 47. Passing a non-canonical address is a fatal error as the MMU can
// never translate such an address.
func PageFromAddress(virtAddr uintptr) Page {
	if virtAddr >= lowHalfCanonicalBound && virtAddr < highHalfCanonicalBound {
		panic("vmm: virtual address is not in canonical form")
	}

	return Page((virtAddr & ^(mem.PageSize - 1)) >> mem.PageShift)
}

// p4Index returns the index of the P4 entry that this page's address is
// translated through. The index is bits 27-35 of the page number.
func (p Page) p4Index() uintptr {
	return uintptr(p>>27) & (tableEntryCount - 1)
}

// p3Index returns the index of the P3 entry for this page (bits 18-26 of the
// page number).
func (p Page) p3Index() uintptr {
	return uintptr(p>>18) & (tableEntryCount - 1)
}

// p2Index returns the index of the P2 entry for this page (bits 9-17 of the
// page number).
func (p Page) p2Index() uintptr {
	return uintptr(p>>9) & (tableEntryCount - 1)
}

// p1Index returns the index of the P1 entry for this page (bits 0-8 of the
// page number).
func (p Page) p1Index() uintptr {
	return uintptr(p) & (tableEntryCount - 1)
}
