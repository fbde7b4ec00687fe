// Package proc implements the process table, the two-class round-robin
// scheduler, the message rendezvous and the interrupt and exception
// dispatcher. All of them share the link fields of the process descriptors
// and are owned by a single Kernel value.
package proc

import (
	"io"

	"ukernel/kernel"
	"ukernel/kernel/bootparam"
	"ukernel/kernel/hal"
	"ukernel/kernel/irq"
	"ukernel/kernel/kfmt"
	"ukernel/kernel/mm"
	"ukernel/kernel/mm/pmm"
	"ukernel/kernel/mm/vmm"
	"ukernel/kernel/sync"
)

var (
	// ErrSuspended is returned by calls that blocked the caller. Their
	// outcome is collected with Resume once the caller runs again.
	ErrSuspended = &kernel.Error{Module: "proc", Message: "call suspended", Code: kernel.CodeSuspended}

	// ErrInvalidID is returned when an identifier does not name a live
	// process.
	ErrInvalidID = &kernel.Error{Module: "proc", Message: "invalid process identifier", Code: kernel.CodeInvalidID}

	// ErrTableFull is returned when no process slot is free.
	ErrTableFull = &kernel.Error{Module: "proc", Message: "process table full", Code: kernel.CodeTableFull}

	// ErrNoMemory is returned when a new process cannot get its memory.
	ErrNoMemory = &kernel.Error{Module: "proc", Message: "out of memory", Code: kernel.CodeNoMemory}

	// ErrHasThreads is returned when removing a process that still owns
	// live threads.
	ErrHasThreads = &kernel.Error{Module: "proc", Message: "process has live threads", Code: kernel.CodeHasThreads}

	// ErrPermission is returned for operations on the idle process and for
	// unprivileged callers.
	ErrPermission = &kernel.Error{Module: "proc", Message: "permission denied", Code: kernel.CodePermission}

	// ErrInvalidParam is returned for malformed arguments.
	ErrInvalidParam = &kernel.Error{Module: "proc", Message: "invalid parameter", Code: kernel.CodeInvalidParam}

	errBootParams = &kernel.Error{Module: "proc", Message: "physical memory too small for boot parameters", Code: kernel.CodeNoMemory}
)

// Kernel owns the process table and every structure linked through it.
type Kernel struct {
	lock    *sync.BusLock
	machine hal.Machine
	params  bootparam.Params
	layout  idLayout
	log     io.Writer

	procs     []Process
	memory    *vmm.Manager
	resources *irq.Table

	// Heads of the circular ready queues, the blocked queue and the wait
	// queue of processes exchanging messages with Any.
	ready      [queueFast + 1]int32
	blocked    int32
	anyWaiters int32

	current     int32
	coordinator ID

	ticks       uint64
	seconds     uint64
	sliceLeft   uint16
	armedTimers int
}

// New boots a kernel on machine using the table dimensions of params. The
// idle process is created in slot 0, owns the kernel address space and
// becomes the current process.
func New(params bootparam.Params, machine hal.Machine) (*Kernel, *kernel.Error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	frames, err := pmm.New(machine.MemorySize()>>mm.PageShift, params.KernelPages)
	if err != nil {
		return nil, errBootParams
	}

	k := &Kernel{
		lock:       sync.NewBusLock(machine),
		machine:    machine,
		params:     params,
		layout:     newIDLayout(params),
		log:        kfmt.ModuleLogger("proc"),
		procs:      make([]Process, params.MaxProcesses),
		resources:  irq.NewTable(int(params.Ports)),
		blocked:    nilSlot,
		anyWaiters: nilSlot,
	}
	k.ready[queueNormal] = nilSlot
	k.ready[queueFast] = nilSlot
	k.memory = vmm.NewManager(machine, frames, int(params.MaxProcesses), int(params.PageMaps), int(params.PageTableBlock))

	for i := range k.procs {
		k.procs[i].reset()
	}

	if err = k.memory.CreateSpace(vmm.KernelSpace); err != nil {
		return nil, err
	}
	if err = machine.NewContext(int(idleSlot), vmm.KernelSpace, 0, 0, 0); err != nil {
		return nil, err
	}

	idle := &k.procs[idleSlot]
	idle.generation = k.layout.nextGeneration(idle.generation)
	idle.id = k.layout.compose(idleSlot, idle.generation)
	idle.status = StatusRunning
	idle.threadOwner = idleSlot
	idle.privilege = PrivCoordinator
	k.current = idleSlot
	k.sliceLeft = params.Quantum

	machine.SwitchTo(int(idleSlot))
	machine.ArmTimer()

	stats := k.memory.Stats()
	kfmt.Fprintf(k.log, "booted: %d process slots, %d kernel pages, %d user pages, %d page maps\n",
		params.MaxProcesses, stats.FreeKernelPages, stats.FreeUserPages, stats.TotalMaps)
	return k, nil
}

// Params returns the boot parameters the kernel was started with.
func (k *Kernel) Params() bootparam.Params {
	return k.params
}

// Machine returns the hardware mechanism.
func (k *Kernel) Machine() hal.Machine {
	return k.machine
}

// Memory returns the virtual memory manager.
func (k *Kernel) Memory() *vmm.Manager {
	return k.memory
}

// Resources returns the interrupt and port resource table.
func (k *Kernel) Resources() *irq.Table {
	return k.resources
}

// Current returns the identifier of the running process.
func (k *Kernel) Current() ID {
	return k.procs[k.current].id
}

// Idle returns the identifier of the idle process.
func (k *Kernel) Idle() ID {
	return k.procs[idleSlot].id
}

// Coordinator returns the process holding the coordinator role or None.
func (k *Kernel) Coordinator() ID {
	return k.coordinator
}

// Ticks returns the number of clock interrupts since boot.
func (k *Kernel) Ticks() uint64 {
	return k.ticks
}

// Seconds returns the number of seconds since boot.
func (k *Kernel) Seconds() uint64 {
	return k.seconds
}

// Tag replaces the transparent bits of id.
func (k *Kernel) Tag(id ID, tag uint32) ID {
	return k.layout.tag(id, tag)
}

// Lookup translates id into its process descriptor. Special targets, free
// slots and stale generations are rejected.
func (k *Kernel) Lookup(id ID) (*Process, *kernel.Error) {
	slot, err := k.lookupSlot(id)
	if err != nil {
		return nil, err
	}
	return &k.procs[slot], nil
}

// Privileged returns true if id holds the coordinator privilege.
func (k *Kernel) Privileged(id ID) bool {
	p, err := k.Lookup(id)
	return err == nil && p.privilege&PrivCoordinator != 0
}

// Info is a snapshot of one live process.
type Info struct {
	ID           ID
	Status       Status
	Reason       Reason
	Priority     uint8
	Parent       ID
	Peer         ID
	Thread       bool
	Pages        uint32
	RunTicks     uint64
	BlockedTicks uint64
}

// Processes returns a snapshot of every live process in slot order.
func (k *Kernel) Processes() []Info {
	k.lock.Lock()
	defer k.lock.Unlock()

	var out []Info
	for slot := range k.procs {
		p := &k.procs[slot]
		if p.status == StatusEmpty {
			continue
		}
		out = append(out, Info{
			ID:           p.id,
			Status:       p.status,
			Reason:       p.reason,
			Priority:     p.priority,
			Parent:       k.slotID(p.parent),
			Peer:         p.peer,
			Thread:       p.isThread(int32(slot)),
			Pages:        k.memory.Size(int(p.threadOwner)),
			RunTicks:     p.runTicks,
			BlockedTicks: p.blockedTicks,
		})
	}
	return out
}

func (k *Kernel) lookupSlot(id ID) (int32, *kernel.Error) {
	if id == None || id.IsSpecial() {
		return nilSlot, ErrInvalidID
	}

	slot := k.layout.slot(id)
	if int(slot) >= len(k.procs) {
		return nilSlot, ErrInvalidID
	}

	p := &k.procs[slot]
	switch {
	case p.status == StatusEmpty,
		p.generation != k.layout.generation(id):
		return nilSlot, ErrInvalidID
	}
	return slot, nil
}

// resolve maps None to the current process.
func (k *Kernel) resolve(id ID) (int32, *kernel.Error) {
	if id == None {
		return k.current, nil
	}
	return k.lookupSlot(id)
}

func (k *Kernel) slotID(slot int32) ID {
	if slot == nilSlot {
		return None
	}
	return k.procs[slot].id
}

// space returns the address space used by slot.
func (k *Kernel) space(slot int32) int {
	return int(k.procs[slot].threadOwner)
}
