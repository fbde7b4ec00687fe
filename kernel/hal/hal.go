// Package hal defines the hardware mechanism consumed by the kernel policy
// core. The mechanism owns everything whose format is dictated by the CPU:
// page-table entries, saved execution state, the interrupt controller, the
// timer and I/O port access. The kernel never interprets any of it.
package hal

import (
	"ukernel/kernel"
	"ukernel/kernel/mm"
	"ukernel/kernel/sync"
)

// PortWidth selects the size of an I/O port access.
type PortWidth uint8

// Supported port access widths.
const (
	PortByte  PortWidth = 1
	PortWord  PortWidth = 2
	PortDword PortWidth = 4
)

// Valid returns true if w is one of the supported access widths.
func (w PortWidth) Valid() bool {
	return w == PortByte || w == PortWord || w == PortDword
}

// Machine is the narrow hardware abstraction boundary used by the kernel.
// Address spaces and execution contexts are identified by process table slot
// indices.
type Machine interface {
	sync.InterruptController

	// MemorySize returns the installed physical memory size in bytes.
	MemorySize() uint32

	// NewSpace creates an empty page directory for space using the
	// supplied kernel frames as page-table storage.
	NewSpace(space int, tables []mm.Frame) *kernel.Error

	// DestroySpace drops the page directory of space and every entry
	// installed in it.
	DestroySpace(space int)

	// MapPage installs a page-table entry mapping page to frame.
	MapPage(space int, page mm.Page, frame mm.Frame, perm mm.Perm) *kernel.Error

	// UnmapPage removes the page-table entry for page.
	UnmapPage(space int, page mm.Page) *kernel.Error

	// Lookup returns the frame and permissions currently installed for
	// page.
	Lookup(space int, page mm.Page) (mm.Frame, mm.Perm, bool)

	// ZeroFrame clears the contents of a physical frame.
	ZeroFrame(frame mm.Frame)

	// ReadFrame copies len(p) bytes starting at offset within frame into p.
	ReadFrame(frame mm.Frame, offset uint32, p []byte)

	// WriteFrame copies p into frame starting at offset.
	WriteFrame(frame mm.Frame, offset uint32, p []byte)

	// NewContext builds the saved execution state for the process in slot
	// so that it starts at entry running on the supplied stacks inside
	// address space space.
	NewContext(slot, space int, entry, userStack, kernelStack uint32) *kernel.Error

	// FreeContext releases the execution state of slot.
	FreeContext(slot int)

	// SwitchTo resumes the saved execution state of slot.
	SwitchTo(slot int)

	// EnableIRQ unmasks one interrupt line.
	EnableIRQ(line uint8)

	// DisableIRQ masks one interrupt line.
	DisableIRQ(line uint8)

	// ArmTimer re-arms the periodic clock interrupt.
	ArmTimer()

	// PortRead reads a byte, word or dword from an I/O port.
	PortRead(port uint16, width PortWidth) uint32

	// PortWrite writes a byte, word or dword to an I/O port.
	PortWrite(port uint16, width PortWidth, value uint32)
}
