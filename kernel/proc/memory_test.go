package proc

import (
	"bytes"
	"testing"

	"ukernel/kernel/hal"
	"ukernel/kernel/mm"
)

// maskCheckMachine counts page lookups made while interrupt delivery was
// enabled.
type maskCheckMachine struct {
	*hal.Emulator
	lookups, unmasked int
}

func (m *maskCheckMachine) Lookup(space int, page mm.Page) (mm.Frame, mm.Perm, bool) {
	m.lookups++
	if !m.InterruptsMasked() {
		m.unmasked++
	}
	return m.Emulator.Lookup(space, page)
}

func TestCopyHoldsBusLock(t *testing.T) {
	machine := &maskCheckMachine{Emulator: hal.NewEmulator(128 * mm.PageSize)}
	k, err := New(testParams(), machine)
	if err != nil {
		t.Fatal(err)
	}

	a := spawn(t, k, 4)
	if _, err = k.AddPage(a, mm.UserBase, mm.PermPresent|mm.PermWrite|mm.PermUser); err != nil {
		t.Fatal(err)
	}
	runAs(t, k, a)

	machine.lookups, machine.unmasked = 0, 0
	if err = k.CopyOut(mm.UserBase+10, []byte("locked")); err != nil {
		t.Fatal(err)
	}
	got, err := k.CopyIn(mm.UserBase+10, 6)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("locked")) {
		t.Fatalf("expected to read back %q; got %q", "locked", got)
	}

	if machine.lookups == 0 {
		t.Fatal("expected the copies to translate through the machine")
	}
	if machine.unmasked != 0 {
		t.Fatalf("expected every lookup to run with interrupts masked; %d of %d did not", machine.unmasked, machine.lookups)
	}
	if machine.InterruptsMasked() {
		t.Fatal("expected interrupts to be unmasked after the copies returned")
	}
}
