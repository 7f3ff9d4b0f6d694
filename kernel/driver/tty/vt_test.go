package tty

import (
	"testing"
	"unsafe"

	"github.com/notbdu/rustbelt/kernel/driver/video/console"
)

func newTestVt() (*Vt, []uint16) {
	fb := make([]uint16, int(console.DefaultWidth)*int(console.DefaultHeight))
	var cons console.Vga
	cons.Init(console.DefaultWidth, console.DefaultHeight, uintptr(unsafe.Pointer(&fb[0])))

	var vt Vt
	vt.AttachTo(&cons)
	return &vt, fb
}

func TestVtPosition(t *testing.T) {
	specs := []struct {
		inX, inY   uint16
		expX, expY uint16
	}{
		{20, 20, 20, 20},
		{100, 20, 79, 20},
		{10, 200, 10, 24},
		{100, 100, 79, 24},
	}

	vt, _ := newTestVt()

	w, h := vt.Dimensions()
	if w != 80 || h != 25 {
		t.Fatalf("expected terminal dimensions to be 80 x 25; got %d x %d", w, h)
	}

	for specIndex, spec := range specs {
		vt.SetPosition(spec.inX, spec.inY)
		if x, y := vt.Position(); x != spec.expX || y != spec.expY {
			t.Errorf("[spec %d] expected setting position to (%d, %d) to update the position to (%d, %d); got (%d, %d)", specIndex, spec.inX, spec.inY, spec.expX, spec.expY, x, y)
		}
	}
}

func TestVtWrite(t *testing.T) {
	vt, fb := newTestVt()

	vt.Clear()
	vt.SetPosition(0, 1)
	vt.Write([]byte("12\n\t3\n4\r567\b8"))

	// Tab spanning rows
	vt.SetPosition(78, 4)
	vt.WriteByte('\t')
	vt.WriteByte('9')

	specs := []struct {
		x, y    uint16
		expChar byte
	}{
		{0, 1, '1'},
		{1, 1, '2'},
		// tabs
		{0, 2, ' '},
		{1, 2, ' '},
		{2, 2, ' '},
		{3, 2, ' '},
		{4, 2, '3'},
		// CR and BS handling
		{0, 3, '5'},
		{1, 3, '6'},
		{2, 3, '8'},
		// tab spanning 2 rows
		{78, 4, ' '},
		{79, 4, ' '},
		{0, 5, ' '},
		{1, 5, ' '},
		{2, 5, '9'},
	}

	for specIndex, spec := range specs {
		ch := byte(fb[(spec.y*vt.width)+spec.x] & 0xFF)
		if ch != spec.expChar {
			t.Errorf("[spec %d] expected char at (%d, %d) to be %q; got %q", specIndex, spec.x, spec.y, spec.expChar, ch)
		}
	}
}

func TestVtScroll(t *testing.T) {
	vt, fb := newTestVt()
	vt.Clear()

	// Writing past the end of the last line should scroll the contents up.
	vt.SetPosition(79, 24)
	vt.Write([]byte("AB"))

	if ch := byte(fb[(23*vt.width)+79] & 0xFF); ch != 'A' {
		t.Errorf("expected char at (79, 23) to be 'A' after scrolling; got %q", ch)
	}

	if ch := byte(fb[24*vt.width] & 0xFF); ch != 'B' {
		t.Errorf("expected char at (0, 24) to be 'B'; got %q", ch)
	}

	if x, y := vt.Position(); x != 1 || y != 24 {
		t.Errorf("expected cursor to be at (1, 24); got (%d, %d)", x, y)
	}
}
