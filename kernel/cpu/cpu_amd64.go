// Package cpu provides access to amd64-specific CPU instructions and control
// registers that are not reachable from regular Go code.
package cpu

// Halt stops instruction execution.
func Halt()

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// FlushTLBEntry flushes the TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// FlushTLBAll flushes all TLB entries by reloading the CR3 register.
func FlushTLBAll()

// ActivePDT returns the physical address of the currently active page
// directory table (the contents of the CR3 register).
func ActivePDT() uintptr

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)
