package proc

import (
	"ukernel/kernel"
	"ukernel/kernel/hal"
	"ukernel/kernel/irq"
	"ukernel/kernel/kfmt"
)

var (
	// ErrNoHandler reports an interrupt latched with nobody waiting or an
	// exception raised by a process without a handler.
	ErrNoHandler = &kernel.Error{Module: "proc", Message: "no handler registered", Code: kernel.CodeNoHandler}

	errKernelFault = &kernel.Error{Module: "proc", Message: "exception raised by the idle process", Code: kernel.CodeMechanism}
)

// Interrupt dispatches a hardware interrupt. The clock line re-arms the
// timer, advances the tick and second counters, runs the armed timers and
// reschedules at every quantum boundary. Any other line wakes the process
// blocked receiving from it; with nobody waiting the interrupt is latched
// and ErrNoHandler is returned.
func (k *Kernel) Interrupt(line irq.Line) *kernel.Error {
	k.lock.Lock()
	defer k.lock.Unlock()

	if line >= irq.Lines {
		return irq.ErrOutOfRange
	}
	if line == irq.ClockLine {
		k.clock()
		return nil
	}

	head := k.resources.Waiters(line)
	if *head == nilSlot {
		k.resources.Latch(line)
		kfmt.Fprintf(k.log, "irq %d latched, no receiver\n", line)
		return ErrNoHandler
	}

	w := *head
	k.procs[w].peer = Interrupt(line)
	k.procs[w].msgLen = 0
	k.wake(w, ReasonInterruptDone)
	return nil
}

func (k *Kernel) clock() {
	k.machine.ArmTimer()

	k.ticks++
	if k.ticks%uint64(k.params.Hz) == 0 {
		k.seconds++
	}

	if k.armedTimers > 0 {
		k.updateTimers()
	}

	if k.sliceLeft > 0 {
		k.sliceLeft--
	}
	if k.sliceLeft == 0 {
		k.sliceLeft = k.params.Quantum
		k.schedule()
	}
}

// Exception dispatches a CPU exception raised by the current process. The
// frame is sent to the process's pager for page faults when one is set and
// to its excepter otherwise; the process then waits for the handler's reply
// and resumes with the exception-done reason. Without a handler the process
// stays blocked for good and ErrNoHandler is returned.
func (k *Kernel) Exception(num irq.ExceptionNum, frame irq.Frame) *kernel.Error {
	k.lock.Lock()
	defer k.lock.Unlock()

	slot := k.current
	if slot == idleSlot {
		kfmt.Panic(errKernelFault)
		return errKernelFault
	}

	p := &k.procs[slot]
	frame.Exception = num

	handler := p.excepter
	if num == irq.PageFaultException && p.pager != None {
		handler = p.pager
	}

	hs, err := k.lookupSlot(handler)
	if err != nil || hs == slot {
		k.block(slot, ReasonNoExceptionHandler)
		kfmt.Fprintf(k.log, "process %s killed by unhandled exception %d\n", p.id, num)
		frame.DumpTo(k.log)
		k.schedule()
		return ErrNoHandler
	}

	buf := frame.Encode()
	h := &k.procs[hs]
	p.peer = h.id
	if h.receiving() && k.matchLevel(h.peer, slot) != matchNone {
		k.deliver(slot, hs, buf)
		k.suspend(slot, ReasonException, waitProcess, hs, 0)
	} else {
		p.msgLen = copy(p.message[:], buf)
		p.faulting = true
		k.suspend(slot, ReasonSend, waitProcess, hs, 0)
	}
	return ErrSuspended
}

// AddResource binds interrupt line or I/O port index to owner (None selects
// the caller).
func (k *Kernel) AddResource(kind irq.Kind, index uint32, owner ID) *kernel.Error {
	k.lock.Lock()
	defer k.lock.Unlock()

	slot, err := k.resolve(owner)
	if err != nil {
		return err
	}
	return k.resources.Add(kind, index, uint32(k.procs[slot].id))
}

// RemoveResource unbinds a resource held by owner (None selects the
// caller). Removing an interrupt line masks it and wakes its receiver with
// the target-removed reason.
func (k *Kernel) RemoveResource(kind irq.Kind, index uint32, owner ID) *kernel.Error {
	k.lock.Lock()
	defer k.lock.Unlock()

	slot, err := k.resolve(owner)
	if err != nil {
		return err
	}
	if err = k.resources.Remove(kind, index, uint32(k.procs[slot].id)); err != nil {
		return err
	}

	if kind == irq.InterruptResource {
		k.releaseLine(irq.Line(index))
	}
	return nil
}

// RemoveProcessResources releases every interrupt line and I/O port owned
// by id.
func (k *Kernel) RemoveProcessResources(id ID) *kernel.Error {
	k.lock.Lock()
	defer k.lock.Unlock()

	slot, err := k.lookupSlot(id)
	if err != nil {
		return err
	}
	k.removeResources(slot)
	return nil
}

func (k *Kernel) removeResources(slot int32) {
	for _, line := range k.resources.RemoveOwner(uint32(k.procs[slot].id)) {
		k.releaseLine(line)
	}
}

func (k *Kernel) releaseLine(line irq.Line) {
	k.machine.DisableIRQ(uint8(line))
	walk(*k.resources.Waiters(line), k.msgLinks, func(w int32) bool {
		k.wake(w, ReasonTargetRemoved)
		return true
	})
}

// PortIn reads an I/O port owned by the caller.
func (k *Kernel) PortIn(port uint16, width hal.PortWidth) (uint32, *kernel.Error) {
	k.lock.Lock()
	defer k.lock.Unlock()

	if err := k.checkPort(port, width); err != nil {
		return 0, err
	}
	return k.machine.PortRead(port, width), nil
}

// PortOut writes an I/O port owned by the caller.
func (k *Kernel) PortOut(port uint16, width hal.PortWidth, value uint32) *kernel.Error {
	k.lock.Lock()
	defer k.lock.Unlock()

	if err := k.checkPort(port, width); err != nil {
		return err
	}
	k.machine.PortWrite(port, width, value)
	return nil
}

func (k *Kernel) checkPort(port uint16, width hal.PortWidth) *kernel.Error {
	switch {
	case !width.Valid():
		return ErrInvalidParam
	case int(port) >= k.resources.Ports():
		return irq.ErrOutOfRange
	case k.resources.Owner(irq.PortResource, uint32(port)) != uint32(k.procs[k.current].id):
		return irq.ErrNotOwner
	}
	return nil
}
