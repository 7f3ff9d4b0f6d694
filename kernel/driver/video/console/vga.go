package console

import (
	"reflect"
	"unsafe"

	"github.com/notbdu/rustbelt/kernel/sync"
)

const (
	clearColor = Black
	clearChar  = byte(' ')

	// DefaultFbPhysAddr is the physical address of the VGA text-mode
	// framebuffer that the BIOS sets up for mode 0x3.
	DefaultFbPhysAddr = uintptr(0xB8000)

	// DefaultWidth and DefaultHeight describe the 80x25 character grid
	// provided by VGA text mode.
	DefaultWidth  = uint16(80)
	DefaultHeight = uint16(25)
)

// Vga implements a VGA text-mode console. Each character cell in the
// framebuffer is a 16-bit value; the low byte holds the ASCII code and the
// high byte packs the foreground and background colors (4 bits each, with
// the background in the upper nibble).
//
// Writes to the framebuffer region are volatile as far as the compiler is
// concerned; the driver only ever accesses it through the overlaid fb slice.
// A spinlock serializes cell updates since the console is the one device
// that may be re-entered from a diagnostic path.
type Vga struct {
	lock sync.Spinlock

	width  uint16
	height uint16

	fb []uint16
}

// Init sets up the console to use the framebuffer mapped at fbPhysAddr by
// overlaying a slice on top of the framebuffer memory.
func (cons *Vga) Init(width, height uint16, fbPhysAddr uintptr) {
	cons.width = width
	cons.height = height

	cons.fb = *(*[]uint16)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(width) * int(height),
		Cap:  int(width) * int(height),
		Data: fbPhysAddr,
	}))
}

// Dimensions returns the console width and height in characters.
func (cons *Vga) Dimensions() (uint16, uint16) {
	return cons.width, cons.height
}

// Clear clears the specified rectangular region
func (cons *Vga) Clear(x, y, width, height uint16) {
	var (
		attr                 = uint16((clearColor << 4) | clearColor)
		clr                  = (attr << 8) | uint16(clearChar)
		rowOffset, colOffset uint16
	)

	// clip rectangle
	if x >= cons.width {
		x = cons.width
	}
	if y >= cons.height {
		y = cons.height
	}

	if x+width > cons.width {
		width = cons.width - x
	}
	if y+height > cons.height {
		height = cons.height - y
	}

	cons.lock.Acquire()
	rowOffset = (y * cons.width) + x
	for ; height > 0; height, rowOffset = height-1, rowOffset+cons.width {
		for colOffset = rowOffset; colOffset < rowOffset+width; colOffset++ {
			cons.fb[colOffset] = clr
		}
	}
	cons.lock.Release()
}

// Scroll a particular number of lines to the specified direction. The caller
// is responsible for updating the contents of the region that was scrolled.
func (cons *Vga) Scroll(dir ScrollDir, lines uint16) {
	if lines == 0 || lines > cons.height {
		return
	}

	var i uint16
	offset := lines * cons.width

	cons.lock.Acquire()
	switch dir {
	case Up:
		for ; i < (cons.height-lines)*cons.width; i++ {
			cons.fb[i] = cons.fb[i+offset]
		}
	case Down:
		for i = cons.height*cons.width - 1; i >= lines*cons.width; i-- {
			cons.fb[i] = cons.fb[i-offset]
		}
	}
	cons.lock.Release()
}

// Write a char to the specified location.
func (cons *Vga) Write(ch byte, attr Attr, x, y uint16) {
	if x >= cons.width || y >= cons.height {
		return
	}

	cons.lock.Acquire()
	cons.fb[(y*cons.width)+x] = (uint16(attr) << 8) | uint16(ch)
	cons.lock.Release()
}
