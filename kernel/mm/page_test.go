package mm

import "testing"

func TestFrameMethods(t *testing.T) {
	for frameIndex := uint32(0); frameIndex < 128; frameIndex++ {
		frame := Frame(frameIndex)

		if !frame.Valid() {
			t.Errorf("expected frame %d to be valid", frameIndex)
		}

		if exp, got := frameIndex<<PageShift, frame.Address(); got != exp {
			t.Errorf("expected frame (%d, index: %d) call to Address() to return %x; got %x", frame, frameIndex, exp, got)
		}
	}

	invalidFrame := InvalidFrame
	if invalidFrame.Valid() {
		t.Error("expected InvalidFrame.Valid() to return false")
	}
}

func TestFrameFromAddress(t *testing.T) {
	specs := []struct {
		input    uint32
		expFrame Frame
	}{
		{0, Frame(0)},
		{4095, Frame(0)},
		{4096, Frame(1)},
		{4123, Frame(1)},
	}

	for specIndex, spec := range specs {
		if got := FrameFromAddress(spec.input); got != spec.expFrame {
			t.Errorf("[spec %d] expected returned frame to be %v; got %v", specIndex, spec.expFrame, got)
		}
	}
}

func TestPageFromAddress(t *testing.T) {
	specs := []struct {
		input     uint32
		expPage   Page
		expOffset uint32
	}{
		{0, Page(0), 0},
		{4095, Page(0), 4095},
		{4096, Page(1), 0},
		{0x00400123, Page(0x400), 0x123},
	}

	for specIndex, spec := range specs {
		if got := PageFromAddress(spec.input); got != spec.expPage {
			t.Errorf("[spec %d] expected returned page to be %v; got %v", specIndex, spec.expPage, got)
		}

		if got := PageOffset(spec.input); got != spec.expOffset {
			t.Errorf("[spec %d] expected offset to be %x; got %x", specIndex, spec.expOffset, got)
		}

		if exp, got := spec.input&^(PageSize-1), PageFromAddress(spec.input).Address(); got != exp {
			t.Errorf("[spec %d] expected page address to be %x; got %x", specIndex, exp, got)
		}
	}
}

func TestRanges(t *testing.T) {
	specs := []struct {
		addr      uint32
		expUser   bool
		expKernel bool
	}{
		{0, false, false},
		{UserBase - 1, false, false},
		{UserBase, true, false},
		{UserTop - 1, true, false},
		{UserTop, false, true},
		{KernelTop - 1, false, true},
		{KernelTop, false, false},
	}

	for specIndex, spec := range specs {
		if got := InUserRange(spec.addr); got != spec.expUser {
			t.Errorf("[spec %d] expected InUserRange(%x) to be %t", specIndex, spec.addr, spec.expUser)
		}
		if got := InKernelRange(spec.addr); got != spec.expKernel {
			t.Errorf("[spec %d] expected InKernelRange(%x) to be %t", specIndex, spec.addr, spec.expKernel)
		}
	}
}

func TestPermHas(t *testing.T) {
	p := PermPresent | PermWrite
	if !p.Has(PermPresent) || !p.Has(PermPresent|PermWrite) {
		t.Fatal("expected permission bits to be reported")
	}
	if p.Has(PermUser) {
		t.Fatal("expected PermUser to be missing")
	}
}
