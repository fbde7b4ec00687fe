package irq

import (
	"bytes"
	"testing"

	"ukernel/kernel"
)

func TestTableAddRemove(t *testing.T) {
	table := NewTable(8)

	specs := []struct {
		kind   Kind
		index  uint32
		owner  uint32
		expErr *kernel.Error
	}{
		{InterruptResource, 5, 1, nil},
		{InterruptResource, 5, 2, ErrAlreadyOwned},
		{InterruptResource, Lines, 1, ErrOutOfRange},
		{InterruptResource, uint32(ClockLine), 1, ErrReserved},
		{PortResource, 7, 2, nil},
		{PortResource, 7, 1, ErrAlreadyOwned},
		{PortResource, 8, 1, ErrOutOfRange},
		{Kind(9), 0, 1, ErrBadKind},
	}

	for specIndex, spec := range specs {
		if err := table.Add(spec.kind, spec.index, spec.owner); err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
		}
	}

	if got := table.Owner(InterruptResource, 5); got != 1 {
		t.Fatalf("expected irq 5 to be owned by 1; got %d", got)
	}
	if got := table.Owner(PortResource, 7); got != 2 {
		t.Fatalf("expected port 7 to be owned by 2; got %d", got)
	}

	if err := table.Remove(InterruptResource, 5, 2); err != ErrNotOwner {
		t.Fatalf("expected ErrNotOwner; got %v", err)
	}
	if err := table.Remove(InterruptResource, 5, 1); err != nil {
		t.Fatal(err)
	}
	if err := table.Remove(InterruptResource, 5, 1); err != ErrNotOwner {
		t.Fatalf("expected ErrNotOwner for unowned line; got %v", err)
	}
	if got := table.Owner(InterruptResource, 5); got != 0 {
		t.Fatalf("expected irq 5 to be unowned; got %d", got)
	}
}

func TestTableRemoveOwner(t *testing.T) {
	table := NewTable(4)
	for _, line := range []uint32{3, 9} {
		if err := table.Add(InterruptResource, line, 7); err != nil {
			t.Fatal(err)
		}
	}
	if err := table.Add(InterruptResource, 4, 8); err != nil {
		t.Fatal(err)
	}
	if err := table.Add(PortResource, 2, 7); err != nil {
		t.Fatal(err)
	}
	table.Latch(3)

	released := table.RemoveOwner(7)
	if len(released) != 2 || released[0] != 3 || released[1] != 9 {
		t.Fatalf("unexpected released lines: %v", released)
	}
	if table.Owner(PortResource, 2) != 0 {
		t.Fatal("expected port to be released")
	}
	if table.Owner(InterruptResource, 4) != 8 {
		t.Fatal("expected other owners to be untouched")
	}
	if table.Pending(3) != 0 {
		t.Fatal("expected pending count to be cleared")
	}
}

func TestTablePending(t *testing.T) {
	table := NewTable(1)

	if table.Consume(6) {
		t.Fatal("expected nothing to consume")
	}

	table.Latch(6)
	table.Latch(6)
	if got := table.Pending(6); got != 2 {
		t.Fatalf("expected 2 pending interrupts; got %d", got)
	}
	if !table.Consume(6) || !table.Consume(6) || table.Consume(6) {
		t.Fatal("expected exactly two interrupts to be consumed")
	}

	if *table.Waiters(6) != NoWaiter {
		t.Fatal("expected empty wait queue")
	}
}

func TestFrameEncoding(t *testing.T) {
	frame := Frame{
		Exception: PageFaultException,
		ErrorCode: 6,
		FaultAddr: 0x00401234,
		EIP:       0x00400010,
		CS:        0x1b,
		EFlags:    0x202,
		ESP:       0xbffffff0,
		SS:        0x23,
	}

	buf, _ := frame.MarshalBinary()
	if len(buf) != FrameSize {
		t.Fatalf("expected %d bytes; got %d", FrameSize, len(buf))
	}
	if enc := frame.Encode(); !bytes.Equal(enc, buf) {
		t.Fatalf("expected Encode to match MarshalBinary; got %x", enc)
	}

	got, err := DecodeFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != frame {
		t.Fatalf("expected %+v; got %+v", frame, got)
	}

	if _, err = DecodeFrame(buf[:FrameSize-1]); err != errShortFrame {
		t.Fatalf("expected errShortFrame; got %v", err)
	}
}

func TestFrameDumpTo(t *testing.T) {
	frame := Frame{Exception: GPFException, ErrorCode: 0x10, FaultAddr: 0, EIP: 1, CS: 2, EFlags: 3, ESP: 4, SS: 5}

	var buf bytes.Buffer
	frame.DumpTo(&buf)

	exp := "EXC =       13 ERR =       10\nCR2 =        0\nEIP =        1 CS  =        2\nESP =        4 SS  =        5\nEFL =        3\n"
	if got := buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}
}
