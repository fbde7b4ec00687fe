package proc

import (
	"fmt"

	"ukernel/kernel/bootparam"
	"ukernel/kernel/irq"
)

// ID identifies a process. From the least significant bit it holds the
// process table slot index, the slot generation and a number of transparent
// tag bits that are carried along but ignored by lookups. The reserved top
// bits encode the special targets Any, Group and Interrupt.
type ID uint32

const (
	// None is never assigned to a process. It marks unowned resources
	// and absent handlers.
	None ID = 0

	kindShift = 32 - bootparam.ReservedIDBits
	kindMask  = ID(1<<bootparam.ReservedIDBits-1) << kindShift

	kindAny       = ID(1) << kindShift
	kindGroup     = ID(2) << kindShift
	kindInterrupt = ID(3) << kindShift

	// Any matches every peer in Send and Receive.
	Any = kindAny
)

// Group returns a target matching any thread sharing the address space of
// id.
func Group(id ID) ID {
	return kindGroup | id&^kindMask
}

// Interrupt returns the Receive source for interrupt line.
func Interrupt(line irq.Line) ID {
	return kindInterrupt | ID(line)
}

// IsSpecial returns true for Any, Group and Interrupt targets.
func (id ID) IsSpecial() bool {
	return id&kindMask != 0
}

// GroupMember returns the process named by a Group target.
func (id ID) GroupMember() (ID, bool) {
	if id&kindMask != kindGroup {
		return None, false
	}
	return id &^ kindMask, true
}

// InterruptLine returns the line named by an Interrupt source.
func (id ID) InterruptLine() (irq.Line, bool) {
	if id&kindMask != kindInterrupt {
		return 0, false
	}
	return irq.Line(id &^ kindMask), true
}

func (id ID) String() string {
	switch id & kindMask {
	case 0:
		return fmt.Sprintf("%d", uint32(id))
	case kindAny:
		return "any"
	case kindGroup:
		return fmt.Sprintf("group(%d)", uint32(id&^kindMask))
	case kindInterrupt:
		return fmt.Sprintf("irq(%d)", uint32(id&^kindMask))
	}
	return fmt.Sprintf("invalid(%#x)", uint32(id))
}

// idLayout describes the bit widths of the identifier fields.
type idLayout struct {
	indexBits       uint8
	generationBits  uint8
	transparentBits uint8
}

func newIDLayout(p bootparam.Params) idLayout {
	return idLayout{
		indexBits:       p.IndexBits(),
		generationBits:  p.GenerationBits,
		transparentBits: p.TransparentBits,
	}
}

func (l idLayout) compose(slot int32, generation uint32) ID {
	return ID(uint32(slot) | generation<<l.indexBits)
}

func (l idLayout) slot(id ID) int32 {
	return int32(uint32(id) & (1<<l.indexBits - 1))
}

func (l idLayout) generation(id ID) uint32 {
	return (uint32(id) >> l.indexBits) & l.generationMask()
}

// canonical strips the transparent bits of id.
func (l idLayout) canonical(id ID) ID {
	return id & (1<<(l.indexBits+l.generationBits) - 1)
}

// tag replaces the transparent bits of id.
func (l idLayout) tag(id ID, tag uint32) ID {
	shift := l.indexBits + l.generationBits
	mask := uint32(1<<l.transparentBits-1) << shift
	return ID(uint32(l.canonical(id)) | (tag<<shift)&mask)
}

func (l idLayout) generationMask() uint32 {
	return 1<<l.generationBits - 1
}

// nextGeneration advances a slot generation. Generations wrap back to 1 so
// that no identifier is ever None.
func (l idLayout) nextGeneration(generation uint32) uint32 {
	generation++
	if generation > l.generationMask() {
		generation = 1
	}
	return generation
}
