package kmain

import (
	"github.com/notbdu/rustbelt/kernel"
	"github.com/notbdu/rustbelt/kernel/hal"
	"github.com/notbdu/rustbelt/kernel/hal/multiboot"
	"github.com/notbdu/rustbelt/kernel/kfmt/early"
	"github.com/notbdu/rustbelt/kernel/mem"
	"github.com/notbdu/rustbelt/kernel/mem/pmm"
	"github.com/notbdu/rustbelt/kernel/mem/pmm/allocator"
	"github.com/notbdu/rustbelt/kernel/mem/vmm"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	activeTable vmm.ActivePageTable
	tempPage    vmm.TemporaryPage
)

// Kmain is the only Go symbol that is visible (exported) from the rt0 initialization
// code. This function is invoked by the rt0 assembly code after setting up the GDT
// and setting up a minimal g0 struct that allows Go code using the 4K stack
// allocated by the assembly code.
//
// The rt0 code passes the address of the multiboot info payload provided by the
// bootloader as well as the physical addresses for the kernel start/end.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	hal.InitTerminal()
	hal.ActiveTerminal.Clear()

	var totalFree mem.Size
	early.Printf("memory areas:\n")
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		early.Printf("    start: 0x%x, length: 0x%x, type: %s\n",
			region.PhysAddress, region.Length, region.Type.String())

		if region.Type == multiboot.MemAvailable {
			totalFree += mem.Size(region.Length)
		}
		return true
	})
	early.Printf("available memory: %dKb\n", uint64(totalFree/mem.Kb))

	// The kernel image ends at the highest end address among the
	// rt0-provided kernelEnd and the ELF sections reported by the
	// bootloader.
	kernelImageEnd := kernelEnd
	multiboot.VisitElfSections(func(_ string, _ multiboot.ElfSectionFlag, address uintptr, size uint64) {
		if end := address + uintptr(size); end > kernelImageEnd {
			kernelImageEnd = end
		}
	})

	multibootStart := multibootInfoPtr
	multibootEnd := multibootStart + uintptr(multiboot.TotalSize())

	early.Printf("kernel image: 0x%x - 0x%x\n", kernelStart, kernelImageEnd)
	early.Printf("boot info:    0x%x - 0x%x\n", multibootStart, multibootEnd)

	frameAlloc := allocator.Init(kernelImageEnd, multibootStart, multibootEnd)
	early.Printf("frame allocator arena: %dMb\n", uint64(allocator.ArenaSize/mem.Mb))

	activeTable.Init()
	if err := tempPage.Init(vmm.PageFromAddress(vmm.TempMappingAddr), frameAlloc); err != nil {
		kernel.Panic(err)
	}

	exercisePaging(frameAlloc)

	// Use kernel.Panic instead of panic to prevent the compiler from
	// treating kernel.Panic as dead-code and eliminating it.
	kernel.Panic(errKmainReturned)
}

// exercisePaging maps a fresh frame into the active address space, verifies
// the translation round trip and builds a new hierarchy with the console
// framebuffer identity-mapped into it.
func exercisePaging(frameAlloc pmm.FrameAllocator) {
	// 42nd P3 entry
	addr := uintptr(42) * tableSpan
	page := vmm.PageFromAddress(addr)

	if err := activeTable.Map(page, vmm.FlagRW, frameAlloc); err != nil {
		kernel.Panic(err)
	}

	physAddr, err := activeTable.Translate(addr)
	if err != nil {
		kernel.Panic(err)
	}
	early.Printf("0x%x -> 0x%x\n", addr, physAddr)

	frame := activeTable.Unmap(page)
	frameAlloc.Deallocate(frame)

	if _, err = activeTable.Translate(addr); err != vmm.ErrInvalidMapping {
		kernel.Panic(err)
	}

	// Populate an inactive hierarchy with the console framebuffer so a
	// later switch keeps diagnostics visible.
	p4Frame, allocErr := frameAlloc.Allocate(1)
	if allocErr != nil {
		kernel.Panic(allocErr)
	}

	var inactive vmm.InactivePageTable
	if err := inactive.Init(p4Frame, &activeTable, &tempPage); err != nil {
		kernel.Panic(err)
	}

	err = activeTable.With(&inactive, &tempPage, func(m *vmm.Mapper) {
		fbFrame := pmm.FrameFromAddress(uintptr(0xB8000))
		if mapErr := m.IdentityMap(fbFrame, vmm.FlagRW, frameAlloc); mapErr != nil {
			kernel.Panic(mapErr)
		}
	})
	if err != nil {
		kernel.Panic(err)
	}
}

// tableSpan is the amount of virtual address space covered by a single P3
// entry (512 * 512 * 4096 bytes).
const tableSpan = uintptr(512) * 512 * mem.PageSize
