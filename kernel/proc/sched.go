package proc

// Schedule accounts the run time of the current process and switches to the
// next one: the head of the fast queue if it is not empty, otherwise the head
// of the normal queue, otherwise the idle process. Each queue head rotates on
// selection. Re-selecting the current process does not switch contexts.
func (k *Kernel) Schedule() {
	k.lock.Lock()
	defer k.lock.Unlock()

	k.schedule()
}

func (k *Kernel) schedule() {
	prevSlot := k.current
	prev := &k.procs[prevSlot]
	if prev.status != StatusEmpty {
		prev.runTicks += k.ticks - prev.runStart
	}

	next := k.pick()
	k.procs[next].runStart = k.ticks
	if next == prevSlot {
		return
	}

	if prev.status == StatusRunning {
		prev.status = StatusReady
	}
	k.procs[next].status = StatusRunning
	k.current = next
	k.sliceLeft = k.params.Quantum
	k.machine.SwitchTo(int(next))
}

func (k *Kernel) pick() int32 {
	for _, q := range [...]queueKind{queueFast, queueNormal} {
		if head := k.ready[q]; head != nilSlot {
			k.ready[q] = k.procs[head].run.next
			return head
		}
	}
	return idleSlot
}

// block moves slot from its ready queue to the blocked queue.
func (k *Kernel) block(slot int32, reason Reason) {
	p := &k.procs[slot]
	k.dequeue(slot)
	p.status = StatusBlocked
	p.reason = reason
	p.blockedAt = k.ticks
	k.enqueue(slot, queueBlocked)
}

// wake detaches slot from every wait structure and links it at the tail of
// the ready queue of its priority class.
func (k *Kernel) wake(slot int32, reason Reason) {
	p := &k.procs[slot]
	k.stopWaiting(slot)
	k.disarm(slot)
	if p.status == StatusBlocked {
		p.blockedTicks += k.ticks - p.blockedAt
	}

	k.dequeue(slot)
	p.status = StatusReady
	p.reason = reason
	p.faulting = false
	if slot != idleSlot {
		k.enqueue(slot, readyQueueFor(p.priority))
	}
}

// requeue moves a ready process to the queue matching its priority.
func (k *Kernel) requeue(slot int32) {
	p := &k.procs[slot]
	if p.queue != queueNormal && p.queue != queueFast {
		return
	}

	q := readyQueueFor(p.priority)
	if p.queue == q {
		return
	}
	k.dequeue(slot)
	k.enqueue(slot, q)
}
