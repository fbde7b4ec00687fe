// Package irq holds the interrupt and I/O port resource table together with
// the interrupt line and exception numbering used by the dispatcher.
package irq

import (
	"ukernel/kernel"
)

// Line is a hardware interrupt line number.
type Line uint8

const (
	// ClockLine is the periodic timer interrupt. It is always handled by
	// the kernel and cannot be owned by a process.
	ClockLine = Line(0)

	// Lines is the number of interrupt lines of the interrupt controller.
	Lines = 16
)

// ExceptionNum defines a CPU exception number.
type ExceptionNum uint8

const (
	// DivideError occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideError = ExceptionNum(0)

	// Breakpoint is raised by the INT3 instruction.
	Breakpoint = ExceptionNum(3)

	// Overflow occurs when INTO is executed with the overflow flag set.
	Overflow = ExceptionNum(4)

	// InvalidOpcode occurs when the CPU attempts to execute an invalid or
	// undefined instruction opcode.
	InvalidOpcode = ExceptionNum(6)

	// DoubleFault occurs when an exception is unhandled or when an
	// exception occurs while the CPU is trying to call an exception
	// handler.
	DoubleFault = ExceptionNum(8)

	// GPFException is raised when a general protection fault occurs.
	GPFException = ExceptionNum(13)

	// PageFaultException is raised when a page directory entry is not
	// present or when a privilege and/or RW protection check fails.
	PageFaultException = ExceptionNum(14)

	// Exceptions is the number of exception vectors reserved by the CPU.
	Exceptions = 32
)

// Kind selects one of the two resource tables.
type Kind uint8

const (
	// InterruptResource selects the interrupt line table.
	InterruptResource Kind = iota

	// PortResource selects the I/O port table.
	PortResource
)

// NoWaiter terminates an interrupt wait queue.
const NoWaiter = int32(-1)

var (
	// ErrOutOfRange is returned for resource indices outside their table.
	ErrOutOfRange = &kernel.Error{Module: "irq", Message: "resource index out of range", Code: kernel.CodeOutOfRange}

	// ErrAlreadyOwned is returned when binding a resource that has an
	// owner.
	ErrAlreadyOwned = &kernel.Error{Module: "irq", Message: "resource already owned", Code: kernel.CodeAlreadyOwned}

	// ErrNotOwner is returned when the caller does not own the resource.
	ErrNotOwner = &kernel.Error{Module: "irq", Message: "resource not owned by caller", Code: kernel.CodeNotOwner}

	// ErrReserved is returned for resources the kernel keeps for itself.
	ErrReserved = &kernel.Error{Module: "irq", Message: "resource reserved by the kernel", Code: kernel.CodePermission}

	// ErrBadKind is returned for unknown resource kinds.
	ErrBadKind = &kernel.Error{Module: "irq", Message: "unknown resource kind", Code: kernel.CodeInvalidParam}
)

// interruptRecord is the resource record of one interrupt line.
type interruptRecord struct {
	owner uint32

	// waiters is the slot at the head of the circular queue of processes
	// blocked receiving from this line.
	waiters int32

	// pending counts interrupts that fired while nobody was waiting.
	pending uint32
}

// Table binds interrupt lines and I/O ports to owning processes. Owners are
// raw process identifiers; 0 means unowned.
type Table struct {
	lines [Lines]interruptRecord
	ports []uint32
}

// NewTable returns an empty resource table with the given number of ports.
func NewTable(ports int) *Table {
	t := &Table{ports: make([]uint32, ports)}
	for i := range t.lines {
		t.lines[i].waiters = NoWaiter
	}
	return t
}

// Ports returns the size of the I/O port table.
func (t *Table) Ports() int {
	return len(t.ports)
}

// Add binds resource index of kind to owner.
func (t *Table) Add(kind Kind, index uint32, owner uint32) *kernel.Error {
	slot, err := t.slot(kind, index)
	if err != nil {
		return err
	}
	if *slot != 0 {
		return ErrAlreadyOwned
	}

	*slot = owner
	if kind == InterruptResource {
		t.lines[index].pending = 0
	}
	return nil
}

// Remove unbinds resource index of kind. The resource must be owned by
// owner.
func (t *Table) Remove(kind Kind, index uint32, owner uint32) *kernel.Error {
	slot, err := t.slot(kind, index)
	if err != nil {
		return err
	}
	if *slot == 0 || *slot != owner {
		return ErrNotOwner
	}

	*slot = 0
	if kind == InterruptResource {
		t.lines[index].pending = 0
	}
	return nil
}

// Owner returns the owner of resource index of kind or 0.
func (t *Table) Owner(kind Kind, index uint32) uint32 {
	slot, err := t.slot(kind, index)
	if err != nil {
		return 0
	}
	return *slot
}

// RemoveOwner releases every resource bound to owner and returns the
// interrupt lines that were released.
func (t *Table) RemoveOwner(owner uint32) []Line {
	var released []Line
	for i := range t.lines {
		if t.lines[i].owner == owner {
			t.lines[i].owner = 0
			t.lines[i].pending = 0
			released = append(released, Line(i))
		}
	}
	for i := range t.ports {
		if t.ports[i] == owner {
			t.ports[i] = 0
		}
	}
	return released
}

// Latch records an interrupt on line that nobody was waiting for.
func (t *Table) Latch(line Line) {
	t.lines[line].pending++
}

// Consume takes one pending interrupt of line, if any.
func (t *Table) Consume(line Line) bool {
	if t.lines[line].pending == 0 {
		return false
	}
	t.lines[line].pending--
	return true
}

// Pending returns the number of latched interrupts of line.
func (t *Table) Pending(line Line) uint32 {
	return t.lines[line].pending
}

// Waiters returns a pointer to the wait queue head of line.
func (t *Table) Waiters(line Line) *int32 {
	return &t.lines[line].waiters
}

func (t *Table) slot(kind Kind, index uint32) (*uint32, *kernel.Error) {
	switch kind {
	case InterruptResource:
		if index >= Lines {
			return nil, ErrOutOfRange
		}
		if Line(index) == ClockLine {
			return nil, ErrReserved
		}
		return &t.lines[index].owner, nil
	case PortResource:
		if index >= uint32(len(t.ports)) {
			return nil, ErrOutOfRange
		}
		return &t.ports[index], nil
	default:
		return nil, ErrBadKind
	}
}
