package vmm

import (
	"unsafe"

	"github.com/notbdu/rustbelt/kernel"
	"github.com/notbdu/rustbelt/kernel/mem/pmm"
)

// fakeAddressSpace redirects the recursively mapped table addresses that the
// paging code computes to tables allocated on the test heap. Table addresses
// are resolved lazily so walks that create new tables on demand work without
// any extra bookkeeping.
type fakeAddressSpace struct {
	tables map[uintptr]unsafe.Pointer
}

func newFakeAddressSpace() *fakeAddressSpace {
	return &fakeAddressSpace{
		tables: make(map[uintptr]unsafe.Pointer),
	}
}

// tablePtr implements the tablePtrFn hook.
func (s *fakeAddressSpace) tablePtr(tableAddr uintptr) unsafe.Pointer {
	if ptr, exists := s.tables[tableAddr]; exists {
		return ptr
	}

	table := new(Table)
	s.tables[tableAddr] = unsafe.Pointer(table)
	return s.tables[tableAddr]
}

// install hooks the fake address space into the paging code and returns a
// function that restores the original hook.
func (s *fakeAddressSpace) install() func() {
	origTablePtrFn := tablePtrFn
	tablePtrFn = s.tablePtr
	return func() { tablePtrFn = origTablePtrFn }
}

// countingAllocator is a FrameAllocator that hands out frames with
// predictable, strictly increasing numbers and records its activity.
type countingAllocator struct {
	nextFrame  uintptr
	allocCount int
	deallocs   []pmm.Frame

	// When set, Allocate fails with this error.
	forcedErr *kernel.Error
}

func (a *countingAllocator) Allocate(numPages uintptr) (pmm.Frame, *kernel.Error) {
	if a.forcedErr != nil {
		return pmm.Frame{}, a.forcedErr
	}

	a.allocCount++
	a.nextFrame++
	return pmm.Frame{Number: 0x1000 + a.nextFrame, NumPages: numPages}, nil
}

func (a *countingAllocator) Deallocate(frame pmm.Frame) {
	a.deallocs = append(a.deallocs, frame)
}

// expectPanic runs fn and reports whether it panicked.
func expectPanic(fn func()) (panicked bool) {
	defer func() {
		if recover() != nil {
			panicked = true
		}
	}()

	fn()
	return false
}
