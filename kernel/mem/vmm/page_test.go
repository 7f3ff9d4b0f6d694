package vmm

import "testing"

func TestPageFromAddress(t *testing.T) {
	specs := []struct {
		input   uintptr
		expPage Page
	}{
		{0, 0},
		{4095, 0},
		{4096, 1},
		{4097, 1},
		{0x40000123, 0x40000},
		{0xffffffffffffffff, 0xfffffffffffff},
	}

	for specIndex, spec := range specs {
		if got := PageFromAddress(spec.input); got != spec.expPage {
			t.Errorf("[spec %d] expected page for address 0x%x to be %d; got %d", specIndex, spec.input, spec.expPage, got)
		}
	}
}

func TestPageFromAddressNonCanonical(t *testing.T) {
	specs := []uintptr{
		0x0000800000000000,
		0x0000dead00000000,
		0xfffe000000000000,
		0xffff7fffffffffff,
	}

	for specIndex, virtAddr := range specs {
		if !expectPanic(func() { PageFromAddress(virtAddr) }) {
			t.Errorf("[spec %d] expected PageFromAddress(0x%x) to panic for a non-canonical address", specIndex, virtAddr)
		}
	}
}

func TestPageTableIndices(t *testing.T) {
	specs := []struct {
		virtAddr                   uintptr
		expP4, expP3, expP2, expP1 uintptr
	}{
		{0, 0, 0, 0, 0},
		// Each table index slice set to 1
		{1 << 39, 1, 0, 0, 0},
		{1 << 30, 0, 1, 0, 0},
		{1 << 21, 0, 0, 1, 0},
		{1 << 12, 0, 0, 0, 1},
		// The recursively mapped P4 address has all indices set to 511
		{p4VirtualAddr, 511, 511, 511, 511},
		// The temporary mapping address uses indices 510, 511, 511, 511
		{TempMappingAddr, 510, 511, 511, 511},
	}

	for specIndex, spec := range specs {
		page := PageFromAddress(spec.virtAddr)
		if got := page.p4Index(); got != spec.expP4 {
			t.Errorf("[spec %d] expected p4 index for 0x%x to be %d; got %d", specIndex, spec.virtAddr, spec.expP4, got)
		}
		if got := page.p3Index(); got != spec.expP3 {
			t.Errorf("[spec %d] expected p3 index for 0x%x to be %d; got %d", specIndex, spec.virtAddr, spec.expP3, got)
		}
		if got := page.p2Index(); got != spec.expP2 {
			t.Errorf("[spec %d] expected p2 index for 0x%x to be %d; got %d", specIndex, spec.virtAddr, spec.expP2, got)
		}
		if got := page.p1Index(); got != spec.expP1 {
			t.Errorf("[spec %d] expected p1 index for 0x%x to be %d; got %d", specIndex, spec.virtAddr, spec.expP1, got)
		}
	}
}

func TestPageAddress(t *testing.T) {
	if got := Page(0x40000).Address(); got != 0x40000000 {
		t.Fatalf("expected page 0x40000 to start at address 0x40000000; got 0x%x", got)
	}
}
