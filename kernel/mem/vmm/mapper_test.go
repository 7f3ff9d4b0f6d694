package vmm

import (
	"testing"

	"github.com/notbdu/rustbelt/kernel/mem/pmm"
)

func TestMapToAndTranslate(t *testing.T) {
	fas := newFakeAddressSpace()
	defer fas.install()()

	var alloc countingAllocator
	m := newMapper()

	page := PageFromAddress(0x40000000)
	frame := pmm.Frame{Number: 5, NumPages: 1}

	if err := m.MapTo(page, frame, FlagRW, &alloc); err != nil {
		t.Fatal(err)
	}

	// Mapping into an empty hierarchy creates exactly one table per
	// intermediate level (P3, P2 and P1).
	if alloc.allocCount != 3 {
		t.Fatalf("expected MapTo to consume 3 frames for intermediate tables; got %d", alloc.allocCount)
	}

	for _, offset := range []uintptr{0, 0x123, 0xfff} {
		physAddr, err := m.Translate(0x40000000 + offset)
		if err != nil {
			t.Fatalf("[offset 0x%x] translate failed: %v", offset, err)
		}
		if exp := frame.Address() + offset; physAddr != exp {
			t.Fatalf("[offset 0x%x] expected physical address 0x%x; got 0x%x", offset, exp, physAddr)
		}
	}

	// The terminal entry carries the requested flags plus FlagPresent.
	p1 := m.p4.NextTable(page.p4Index()).NextTable(page.p3Index()).NextTable(page.p2Index())
	if entry := p1.At(page.p1Index()); !entry.HasFlags(FlagPresent | FlagRW) {
		t.Fatal("expected the terminal entry to have FlagPresent and FlagRW set")
	}
}

func TestMapToSharedIntermediateTables(t *testing.T) {
	fas := newFakeAddressSpace()
	defer fas.install()()

	var alloc countingAllocator
	m := newMapper()

	// Two consecutive pages share every intermediate table.
	if err := m.MapTo(Page(0x40000), pmm.Frame{Number: 1, NumPages: 1}, FlagRW, &alloc); err != nil {
		t.Fatal(err)
	}
	if err := m.MapTo(Page(0x40001), pmm.Frame{Number: 2, NumPages: 1}, FlagRW, &alloc); err != nil {
		t.Fatal(err)
	}

	if alloc.allocCount != 3 {
		t.Fatalf("expected the second mapping to reuse the intermediate tables; got %d allocations", alloc.allocCount)
	}
}

func TestMapToAlreadyMappedPanics(t *testing.T) {
	fas := newFakeAddressSpace()
	defer fas.install()()

	var alloc countingAllocator
	m := newMapper()

	page := PageFromAddress(0x40000000)
	if err := m.MapTo(page, pmm.Frame{Number: 5, NumPages: 1}, FlagRW, &alloc); err != nil {
		t.Fatal(err)
	}

	if !expectPanic(func() { m.MapTo(page, pmm.Frame{Number: 6, NumPages: 1}, FlagRW, &alloc) }) {
		t.Fatal("expected re-mapping an already mapped page to panic")
	}
}

func TestMapToAllocatorExhaustion(t *testing.T) {
	fas := newFakeAddressSpace()
	defer fas.install()()

	alloc := countingAllocator{forcedErr: ErrInvalidMapping}
	m := newMapper()

	if err := m.MapTo(PageFromAddress(0x40000000), pmm.Frame{Number: 5, NumPages: 1}, FlagRW, &alloc); err != alloc.forcedErr {
		t.Fatalf("expected allocator errors to propagate through MapTo; got %v", err)
	}
}

func TestMapAllocatesBackingFrame(t *testing.T) {
	fas := newFakeAddressSpace()
	defer fas.install()()

	var alloc countingAllocator
	m := newMapper()

	page := PageFromAddress(0x40000000)
	if err := m.Map(page, FlagRW, &alloc); err != nil {
		t.Fatal(err)
	}

	// One backing frame plus three intermediate tables.
	if alloc.allocCount != 4 {
		t.Fatalf("expected Map to consume 4 frames; got %d", alloc.allocCount)
	}

	frame, err := m.TranslatePage(page)
	if err != nil {
		t.Fatal(err)
	}

	// The backing frame was the first one the allocator handed out.
	if frame.Number != 0x1001 {
		t.Fatalf("expected page to map to frame 0x1001; got 0x%x", frame.Number)
	}
}

func TestIdentityMap(t *testing.T) {
	fas := newFakeAddressSpace()
	defer fas.install()()

	var alloc countingAllocator
	m := newMapper()

	frame := pmm.FrameFromAddress(uintptr(0xB8000))
	if err := m.IdentityMap(frame, FlagRW, &alloc); err != nil {
		t.Fatal(err)
	}

	physAddr, err := m.Translate(0xB8000)
	if err != nil {
		t.Fatal(err)
	}
	if physAddr != 0xB8000 {
		t.Fatalf("expected identity mapped address to translate to itself; got 0x%x", physAddr)
	}
}

func TestTranslateUnmappedAddress(t *testing.T) {
	fas := newFakeAddressSpace()
	defer fas.install()()

	var alloc countingAllocator
	m := newMapper()

	// Empty hierarchy: no P3 table.
	if _, err := m.Translate(0x40000000); err != ErrInvalidMapping {
		t.Fatalf("expected ErrInvalidMapping; got %v", err)
	}

	// Present P3/P2 tables but no terminal mapping.
	if err := m.MapTo(Page(0x40000), pmm.Frame{Number: 5, NumPages: 1}, FlagRW, &alloc); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Translate(Page(0x40001).Address()); err != ErrInvalidMapping {
		t.Fatalf("expected ErrInvalidMapping for a hole next to a mapping; got %v", err)
	}
}

func TestTranslateHugePage(t *testing.T) {
	fas := newFakeAddressSpace()
	defer fas.install()()

	var alloc countingAllocator
	m := newMapper()

	page := PageFromAddress(0x40000000)

	// Install a P3 table, then replace the P3 entry on the walk path
	// with a huge page mapping.
	p3, err := m.p4.NextTableOrCreate(page.p4Index(), &alloc)
	if err != nil {
		t.Fatal(err)
	}
	p3.At(page.p3Index()).Set(pmm.Frame{Number: 0x42, NumPages: 1}, FlagPresent|FlagHugePage)

	if _, err := m.Translate(0x40000000); err != errNoHugePageSupport {
		t.Fatalf("expected errNoHugePageSupport; got %v", err)
	}
}

func TestUnmap(t *testing.T) {
	fas := newFakeAddressSpace()
	defer fas.install()()

	defer func(origFlushTLBEntry func(uintptr)) { flushTLBEntryFn = origFlushTLBEntry }(flushTLBEntryFn)

	var flushedAddrs []uintptr
	flushTLBEntryFn = func(virtAddr uintptr) { flushedAddrs = append(flushedAddrs, virtAddr) }

	var alloc countingAllocator
	m := newMapper()

	page := PageFromAddress(0x40000000)
	frame := pmm.Frame{Number: 5, NumPages: 1}

	if err := m.MapTo(page, frame, FlagRW, &alloc); err != nil {
		t.Fatal(err)
	}

	unmapped := m.Unmap(page)
	if unmapped.Number != frame.Number {
		t.Fatalf("expected Unmap to return frame %d; got %d", frame.Number, unmapped.Number)
	}

	if len(flushedAddrs) != 1 || flushedAddrs[0] != page.Address() {
		t.Fatalf("expected a single TLB flush for address 0x%x; got %v", page.Address(), flushedAddrs)
	}

	if _, err := m.Translate(0x40000123); err != ErrInvalidMapping {
		t.Fatalf("expected translation after unmap to fail with ErrInvalidMapping; got %v", err)
	}

	// The page can be mapped again after the unmap.
	if err := m.MapTo(page, pmm.Frame{Number: 9, NumPages: 1}, FlagRW, &alloc); err != nil {
		t.Fatal(err)
	}
}

func TestUnmapUnusedPagePanics(t *testing.T) {
	fas := newFakeAddressSpace()
	defer fas.install()()

	defer func(origFlushTLBEntry func(uintptr)) { flushTLBEntryFn = origFlushTLBEntry }(flushTLBEntryFn)
	flushTLBEntryFn = func(uintptr) {}

	var alloc countingAllocator
	m := newMapper()

	// Missing P3 table.
	if !expectPanic(func() { m.Unmap(PageFromAddress(0x40000000)) }) {
		t.Fatal("expected unmapping a page with no tables to panic")
	}

	// Present tables but unused terminal entry.
	if err := m.MapTo(Page(0x40000), pmm.Frame{Number: 5, NumPages: 1}, FlagRW, &alloc); err != nil {
		t.Fatal(err)
	}
	if !expectPanic(func() { m.Unmap(Page(0x40001)) }) {
		t.Fatal("expected unmapping an unused page to panic")
	}
}
