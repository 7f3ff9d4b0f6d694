package vmm

import (
	"github.com/notbdu/rustbelt/kernel"
	"github.com/notbdu/rustbelt/kernel/mem"
	"github.com/notbdu/rustbelt/kernel/mem/pmm"
)

// ActivePageTable is a Mapper over the hierarchy that the CR3 register
// currently points to. Since the recursive mapping always resolves relative
// to the active P4, there is at most one meaningful ActivePageTable at any
// time.
type ActivePageTable struct {
	Mapper
}

// Init roots the ActivePageTable at the recursively mapped P4 address.
func (apt *ActivePageTable) Init() {
	apt.Mapper = newMapper()
}

// InactivePageTable describes a page table hierarchy that is not loaded in
// CR3. Its P4 frame is recursively mapped onto itself so the hierarchy
// becomes fully editable the moment it is activated or temporarily routed
// through the active recursive mapping.
type InactivePageTable struct {
	p4Frame pmm.Frame
}

// Init builds a fresh inactive hierarchy inside the supplied frame. The
// frame is temporarily mapped into the active address space so it can be
// zeroed, then its last entry is pointed back at the frame itself to set up
// the recursive mapping, and finally the temporary mapping is removed.
func (ipt *InactivePageTable) Init(frame pmm.Frame, active *ActivePageTable, tempPage *TemporaryPage) *kernel.Error {
	table, err := tempPage.MapTableFrame(frame, active)
	if err != nil {
		return err
	}

	table.Zero()
	table.At(tableEntryCount - 1).Set(frame, FlagPresent|FlagRW)

	tempPage.Unmap(active)

	ipt.p4Frame = frame
	return nil
}

// Frame returns the physical frame holding the hierarchy's P4 table.
func (ipt *InactivePageTable) Frame() pmm.Frame {
	return ipt.p4Frame
}

// With executes fn against the inactive hierarchy: while fn runs, every
// table walk through the recursive mapping lands in inactive's tables
// instead of the active ones, so fn can populate an address space that is
// not loaded yet.
//
// This works by overwriting the last entry of the active P4 — the recursive
// entry — with the inactive P4 frame. The active P4 frame is looked up via
// CR3 and kept reachable through the temporary page for the duration of the
// call, since restoring the recursive entry afterwards cannot go through the
// recursive mapping itself. The TLB is fully flushed after the reroute and
// again after the restore; both the restore and the final flush run even if
// fn panics.
func (apt *ActivePageTable) With(inactive *InactivePageTable, tempPage *TemporaryPage, fn func(*Mapper)) *kernel.Error {
	backup := pmm.Frame{
		Number:   activePDTFn() >> mem.PageShift,
		NumPages: 1,
	}

	// Keep the active P4 editable through the scratch slot while the
	// recursive mapping points elsewhere.
	backupTable, err := tempPage.MapTableFrame(backup, apt)
	if err != nil {
		return err
	}

	defer func() {
		// Restore the recursive mapping to the active P4 and drop the
		// stale translations that were installed while it pointed at
		// the inactive hierarchy.
		backupTable.At(tableEntryCount - 1).Set(backup, FlagPresent|FlagRW)
		flushTLBAllFn()

		tempPage.Unmap(apt)
	}()

	// Reroute the recursive mapping to the inactive P4 frame and flush
	// the TLB so no cached translation can reach the old tables.
	apt.p4.At(tableEntryCount - 1).Set(inactive.p4Frame, FlagPresent|FlagRW)
	flushTLBAllFn()

	fn(&apt.Mapper)

	return nil
}

// Switch loads the inactive hierarchy into CR3, making it the active one,
// and returns the previously active hierarchy as an InactivePageTable so it
// can be edited or reactivated later. The CR3 write flushes all non-global
// TLB entries.
func (apt *ActivePageTable) Switch(next *InactivePageTable) InactivePageTable {
	old := InactivePageTable{
		p4Frame: pmm.Frame{
			Number:   activePDTFn() >> mem.PageShift,
			NumPages: 1,
		},
	}

	switchPDTFn(next.p4Frame.Address())

	return old
}
