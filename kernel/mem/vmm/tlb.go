package vmm

import "github.com/notbdu/rustbelt/kernel/cpu"

var (
	// The following functions are overridden by tests which would
	// otherwise fault when touching control registers in user-mode. When
	// compiling the kernel they are automatically inlined by the
	// compiler.
	flushTLBEntryFn = cpu.FlushTLBEntry
	flushTLBAllFn   = cpu.FlushTLBAll
	activePDTFn     = cpu.ActivePDT
	switchPDTFn     = cpu.SwitchPDT
)
