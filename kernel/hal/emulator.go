package hal

import (
	"ukernel/kernel"
	"ukernel/kernel/mm"
)

// IRQLines is the number of interrupt lines provided by the emulated
// interrupt controller.
const IRQLines = 16

var (
	errNoSpace      = &kernel.Error{Module: "hal", Message: "address space not installed", Code: kernel.CodeMechanism}
	errSpaceExists  = &kernel.Error{Module: "hal", Message: "address space already installed", Code: kernel.CodeMechanism}
	errNoTables     = &kernel.Error{Module: "hal", Message: "no page-table frames supplied", Code: kernel.CodeMechanism}
	errFrameRange   = &kernel.Error{Module: "hal", Message: "frame outside physical memory", Code: kernel.CodeMechanism}
	errNoEntry      = &kernel.Error{Module: "hal", Message: "no page-table entry", Code: kernel.CodeMechanism}
	errContextInUse = &kernel.Error{Module: "hal", Message: "execution context already built", Code: kernel.CodeMechanism}
)

type pageTableEntry struct {
	frame mm.Frame
	perm  mm.Perm
}

type pageDirectory struct {
	tables  []mm.Frame
	entries map[mm.Page]pageTableEntry
}

// Context is the saved execution state kept by the emulator for each slot.
type Context struct {
	Space       int
	Entry       uint32
	UserStack   uint32
	KernelStack uint32
}

// Emulator is a hosted software implementation of Machine. Physical memory
// is a byte slice, page directories are maps and context switches are
// recorded instead of performed.
type Emulator struct {
	memory   []byte
	spaces   map[int]*pageDirectory
	contexts map[int]*Context
	ports    map[uint16]uint32

	current    int
	switches   []int
	irqEnabled [IRQLines]bool
	intrMasked bool
	timerArms  int

	// FailNewSpace, FailNewContext and FailMapPage, when non-nil, are
	// returned by the corresponding calls. Tests use them to exercise
	// rollback paths.
	FailNewSpace   *kernel.Error
	FailNewContext *kernel.Error
	FailMapPage    *kernel.Error
}

// NewEmulator returns an emulated machine with memSize bytes of physical
// memory, rounded down to a whole number of pages.
func NewEmulator(memSize uint32) *Emulator {
	memSize &^= mm.PageSize - 1
	return &Emulator{
		memory:   make([]byte, memSize),
		spaces:   make(map[int]*pageDirectory),
		contexts: make(map[int]*Context),
		ports:    make(map[uint16]uint32),
	}
}

// MemorySize implements Machine.
func (e *Emulator) MemorySize() uint32 {
	return uint32(len(e.memory))
}

// DisableInterrupts implements Machine.
func (e *Emulator) DisableInterrupts() { e.intrMasked = true }

// EnableInterrupts implements Machine.
func (e *Emulator) EnableInterrupts() { e.intrMasked = false }

// InterruptsMasked reports whether interrupt delivery is currently disabled.
func (e *Emulator) InterruptsMasked() bool { return e.intrMasked }

// NewSpace implements Machine.
func (e *Emulator) NewSpace(space int, tables []mm.Frame) *kernel.Error {
	if e.FailNewSpace != nil {
		return e.FailNewSpace
	}
	if _, exists := e.spaces[space]; exists {
		return errSpaceExists
	}
	if len(tables) == 0 {
		return errNoTables
	}

	for _, frame := range tables {
		if !e.validFrame(frame) {
			return errFrameRange
		}
		e.ZeroFrame(frame)
	}

	e.spaces[space] = &pageDirectory{
		tables:  append([]mm.Frame(nil), tables...),
		entries: make(map[mm.Page]pageTableEntry),
	}
	return nil
}

// DestroySpace implements Machine.
func (e *Emulator) DestroySpace(space int) {
	delete(e.spaces, space)
}

// HasSpace returns true if a page directory is installed for space.
func (e *Emulator) HasSpace(space int) bool {
	_, ok := e.spaces[space]
	return ok
}

// MapPage implements Machine.
func (e *Emulator) MapPage(space int, page mm.Page, frame mm.Frame, perm mm.Perm) *kernel.Error {
	if e.FailMapPage != nil {
		return e.FailMapPage
	}

	pd, ok := e.spaces[space]
	if !ok {
		return errNoSpace
	}
	if !e.validFrame(frame) {
		return errFrameRange
	}

	pd.entries[page] = pageTableEntry{frame: frame, perm: perm | mm.PermPresent}
	return nil
}

// UnmapPage implements Machine.
func (e *Emulator) UnmapPage(space int, page mm.Page) *kernel.Error {
	pd, ok := e.spaces[space]
	if !ok {
		return errNoSpace
	}
	if _, ok = pd.entries[page]; !ok {
		return errNoEntry
	}

	delete(pd.entries, page)
	return nil
}

// Lookup implements Machine.
func (e *Emulator) Lookup(space int, page mm.Page) (mm.Frame, mm.Perm, bool) {
	pd, ok := e.spaces[space]
	if !ok {
		return mm.InvalidFrame, 0, false
	}

	pte, ok := pd.entries[page]
	if !ok {
		return mm.InvalidFrame, 0, false
	}
	return pte.frame, pte.perm, true
}

// MappedPages returns the number of entries installed in space.
func (e *Emulator) MappedPages(space int) int {
	if pd, ok := e.spaces[space]; ok {
		return len(pd.entries)
	}
	return 0
}

// ZeroFrame implements Machine.
func (e *Emulator) ZeroFrame(frame mm.Frame) {
	if !e.validFrame(frame) {
		return
	}

	target := e.memory[frame.Address() : frame.Address()+mm.PageSize]
	for i := range target {
		target[i] = 0
	}
}

// ReadFrame implements Machine.
func (e *Emulator) ReadFrame(frame mm.Frame, offset uint32, p []byte) {
	if !e.validFrame(frame) || offset >= mm.PageSize {
		return
	}

	start := frame.Address() + offset
	copy(p, e.memory[start:frame.Address()+mm.PageSize])
}

// WriteFrame implements Machine.
func (e *Emulator) WriteFrame(frame mm.Frame, offset uint32, p []byte) {
	if !e.validFrame(frame) || offset >= mm.PageSize {
		return
	}

	start := frame.Address() + offset
	copy(e.memory[start:frame.Address()+mm.PageSize], p)
}

// NewContext implements Machine.
func (e *Emulator) NewContext(slot, space int, entry, userStack, kernelStack uint32) *kernel.Error {
	if e.FailNewContext != nil {
		return e.FailNewContext
	}
	if _, exists := e.contexts[slot]; exists {
		return errContextInUse
	}

	e.contexts[slot] = &Context{
		Space:       space,
		Entry:       entry,
		UserStack:   userStack,
		KernelStack: kernelStack,
	}
	return nil
}

// FreeContext implements Machine.
func (e *Emulator) FreeContext(slot int) {
	delete(e.contexts, slot)
}

// Context returns the saved execution state for slot or nil.
func (e *Emulator) Context(slot int) *Context {
	return e.contexts[slot]
}

// SwitchTo implements Machine.
func (e *Emulator) SwitchTo(slot int) {
	e.current = slot
	e.switches = append(e.switches, slot)
}

// Current returns the slot whose context was most recently resumed.
func (e *Emulator) Current() int {
	return e.current
}

// Switches returns the sequence of slots passed to SwitchTo.
func (e *Emulator) Switches() []int {
	return e.switches
}

// EnableIRQ implements Machine.
func (e *Emulator) EnableIRQ(line uint8) {
	if line < IRQLines {
		e.irqEnabled[line] = true
	}
}

// DisableIRQ implements Machine.
func (e *Emulator) DisableIRQ(line uint8) {
	if line < IRQLines {
		e.irqEnabled[line] = false
	}
}

// IRQEnabled reports whether line is unmasked.
func (e *Emulator) IRQEnabled(line uint8) bool {
	return line < IRQLines && e.irqEnabled[line]
}

// ArmTimer implements Machine.
func (e *Emulator) ArmTimer() {
	e.timerArms++
}

// TimerArms returns the number of times the clock was re-armed.
func (e *Emulator) TimerArms() int {
	return e.timerArms
}

// PortRead implements Machine.
func (e *Emulator) PortRead(port uint16, width PortWidth) uint32 {
	return e.ports[port] & widthMask(width)
}

// PortWrite implements Machine.
func (e *Emulator) PortWrite(port uint16, width PortWidth, value uint32) {
	e.ports[port] = value & widthMask(width)
}

func (e *Emulator) validFrame(frame mm.Frame) bool {
	return frame.Valid() && uint64(frame) < uint64(len(e.memory))>>mm.PageShift
}

func widthMask(width PortWidth) uint32 {
	switch width {
	case PortByte:
		return 0xff
	case PortWord:
		return 0xffff
	default:
		return 0xffffffff
	}
}
