package hal

import (
	"github.com/notbdu/rustbelt/kernel/driver/tty"
	"github.com/notbdu/rustbelt/kernel/driver/video/console"
)

var (
	vgaConsole = &console.Vga{}

	// ActiveTerminal points to the currently active terminal.
	ActiveTerminal = &tty.Vt{}
)

// InitTerminal provides a basic terminal to allow the kernel to emit some output
// till everything is properly setup.
func InitTerminal() {
	vgaConsole.Init(console.DefaultWidth, console.DefaultHeight, console.DefaultFbPhysAddr)
	ActiveTerminal.AttachTo(vgaConsole)
}
