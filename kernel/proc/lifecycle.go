package proc

import (
	"ukernel/kernel"
	"ukernel/kernel/kfmt"
	"ukernel/kernel/mm"
	"ukernel/kernel/mm/pmm"
)

// AddProcess creates a process with the given priority as a child of parent
// (None selects the caller). Unless priority carries ThreadFlag the process
// gets a new address space; threads share the space of their parent. A
// non-zero userStack gets one stack page below it and a zero kernelStack
// gets a page from the kernel pool. Every partial allocation is released if
// a later step fails.
func (k *Kernel) AddProcess(priority uint16, parent ID, entry, userStack, kernelStack uint32, excepter, pager ID) (ID, *kernel.Error) {
	k.lock.Lock()
	defer k.lock.Unlock()

	thread := priority&ThreadFlag != 0
	priority &^= ThreadFlag
	if priority == 0 || priority > MaxPriority {
		return None, ErrInvalidParam
	}

	parentSlot, err := k.resolve(parent)
	if err != nil {
		return None, err
	}
	if thread && parentSlot == idleSlot {
		return None, ErrPermission
	}

	slot := k.freeSlot()
	if slot == nilSlot {
		return None, ErrTableFull
	}

	p := &k.procs[slot]
	p.reset()
	p.generation = k.layout.nextGeneration(p.generation)
	p.id = k.layout.compose(slot, p.generation)
	p.status = StatusPending
	p.priority = uint8(priority)
	p.excepter, p.pager = excepter, pager

	if thread {
		p.threadOwner = k.procs[parentSlot].threadOwner
	} else {
		p.threadOwner = slot
		if err = k.memory.CreateSpace(int(slot)); err != nil {
			k.releaseSlot(slot)
			return None, memoryError(err)
		}
	}
	space := k.space(slot)

	if userStack != 0 {
		if _, err = k.memory.AddPage(space, userStack-1, mm.PermWrite); err != nil {
			k.rollback(slot)
			return None, memoryError(err)
		}
		if thread {
			p.stackPage = userStack - 1
		}
	}

	if kernelStack == 0 {
		frame, err := k.memory.Frames().Alloc(pmm.KernelPool)
		if err != nil {
			k.rollback(slot)
			return None, ErrNoMemory
		}
		p.kernelPage = frame
		kernelStack = frame.Address() + mm.PageSize
	}

	if err = k.machine.NewContext(int(slot), space, entry, userStack, kernelStack); err != nil {
		k.rollback(slot)
		return None, err
	}

	k.linkChild(parentSlot, slot)
	if thread {
		owner := &k.procs[p.threadOwner]
		p.nextThread = owner.nextThread
		owner.nextThread = slot
	}

	p.status = StatusReady
	k.enqueue(slot, readyQueueFor(p.priority))

	kfmt.Fprintf(k.log, "added process %s (priority %d, parent %s, thread %t)\n", p.id, p.priority, k.procs[parentSlot].id, thread)
	return p.id, nil
}

// RemoveProcess destroys a process after detaching it from the scheduler
// queues, the message wait queues, the resource table, its memory and the
// family tree. Removing the running process switches to the next one.
func (k *Kernel) RemoveProcess(id ID) *kernel.Error {
	k.lock.Lock()
	defer k.lock.Unlock()

	slot, err := k.resolve(id)
	if err != nil {
		return err
	}
	if slot == idleSlot {
		return ErrPermission
	}

	p := &k.procs[slot]
	if !p.isThread(slot) && p.nextThread != nilSlot {
		return ErrHasThreads
	}

	removed := p.id
	k.dequeue(slot)
	k.removeMessages(slot)
	k.removeResources(slot)
	k.detachFamily(slot)
	if p.isThread(slot) {
		k.unlinkThread(slot)
	}
	k.rollback(slot)

	if k.coordinator == removed {
		k.coordinator = None
	}

	kfmt.Fprintf(k.log, "removed process %s\n", removed)

	if slot == k.current {
		k.schedule()
	}
	return nil
}

func (k *Kernel) freeSlot() int32 {
	for slot := range k.procs {
		if k.procs[slot].status == StatusEmpty {
			return int32(slot)
		}
	}
	return nilSlot
}

// rollback releases the memory and execution state of slot and frees it.
func (k *Kernel) rollback(slot int32) {
	p := &k.procs[slot]
	if p.kernelPage.Valid() {
		_ = k.memory.Frames().Free(p.kernelPage)
	}

	if p.isThread(slot) {
		if p.stackPage != 0 {
			_ = k.memory.UnmapPage(k.space(slot), p.stackPage)
		}
	} else {
		k.memory.DestroySpace(int(slot))
	}

	k.machine.FreeContext(int(slot))
	k.releaseSlot(slot)
}

// releaseSlot returns slot to the free state keeping its generation so the
// next identifier built for it differs from every previous one.
func (k *Kernel) releaseSlot(slot int32) {
	k.procs[slot].reset()
}

func (k *Kernel) linkChild(parent, child int32) {
	c := &k.procs[child]
	c.parent = parent
	c.sibling = k.procs[parent].child
	k.procs[parent].child = child
}

func (k *Kernel) unlinkChild(parent, child int32) {
	if parent == nilSlot {
		return
	}
	for link := &k.procs[parent].child; *link != nilSlot; link = &k.procs[*link].sibling {
		if *link == child {
			*link = k.procs[child].sibling
			k.procs[child].sibling = nilSlot
			return
		}
	}
}

// detachFamily unlinks slot from its parent and hands its children to the
// parent, or to the idle process when it has none.
func (k *Kernel) detachFamily(slot int32) {
	p := &k.procs[slot]
	heir := p.parent
	if heir == nilSlot {
		heir = idleSlot
	}

	k.unlinkChild(p.parent, slot)
	for child := p.child; child != nilSlot; {
		next := k.procs[child].sibling
		k.linkChild(heir, child)
		child = next
	}
	p.parent, p.child, p.sibling = nilSlot, nilSlot, nilSlot
}

func (k *Kernel) unlinkThread(slot int32) {
	owner := k.procs[slot].threadOwner
	for link := &k.procs[owner].nextThread; *link != nilSlot; link = &k.procs[*link].nextThread {
		if *link == slot {
			*link = k.procs[slot].nextThread
			k.procs[slot].nextThread = nilSlot
			return
		}
	}
}

// memoryError maps page exhaustion to the process allocation error.
func memoryError(err *kernel.Error) *kernel.Error {
	if err == pmm.ErrNoFreePage {
		return ErrNoMemory
	}
	return err
}
