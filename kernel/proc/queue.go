package proc

import "ukernel/kernel/irq"

// ring selects the link pair a queue is threaded through.
type ring func(slot int32) *links

func (k *Kernel) runLinks(slot int32) *links { return &k.procs[slot].run }

func (k *Kernel) msgLinks(slot int32) *links { return &k.procs[slot].msg }

// pushBack links slot at the tail of the circular queue starting at head,
// that is just before the head.
func pushBack(head *int32, slot int32, at ring) {
	l := at(slot)
	if *head == nilSlot {
		l.prev, l.next = slot, slot
		*head = slot
		return
	}

	first := at(*head)
	tail := first.prev
	l.prev, l.next = tail, *head
	at(tail).next = slot
	first.prev = slot
}

// unlink removes slot from the circular queue starting at head.
func unlink(head *int32, slot int32, at ring) {
	l := at(slot)
	if l.next == slot {
		*head = nilSlot
	} else {
		at(l.prev).next = l.next
		at(l.next).prev = l.prev
		if *head == slot {
			*head = l.next
		}
	}
	l.prev, l.next = nilSlot, nilSlot
}

// walk calls fn for every slot of the queue starting at head until fn
// returns false. fn may unlink the visited slot.
func walk(head int32, at ring, fn func(int32) bool) {
	if head == nilSlot {
		return
	}

	count := 1
	for slot := at(head).next; slot != head; slot = at(slot).next {
		count++
	}

	for slot := head; count > 0; count-- {
		next := at(slot).next
		if !fn(slot) {
			return
		}
		slot = next
	}
}

// length returns the number of slots on the queue starting at head.
func length(head int32, at ring) int {
	var count int
	walk(head, at, func(int32) bool {
		count++
		return true
	})
	return count
}

func (k *Kernel) queueHead(q queueKind) *int32 {
	if q == queueBlocked {
		return &k.blocked
	}
	return &k.ready[q]
}

// enqueue links slot on q.
func (k *Kernel) enqueue(slot int32, q queueKind) {
	pushBack(k.queueHead(q), slot, k.runLinks)
	k.procs[slot].queue = q
}

// dequeue removes slot from the ready or blocked queue it is linked on.
func (k *Kernel) dequeue(slot int32) {
	p := &k.procs[slot]
	if p.queue == queueNone {
		return
	}
	unlink(k.queueHead(p.queue), slot, k.runLinks)
	p.queue = queueNone
}

// waitHead returns the head of a message wait queue.
func (k *Kernel) waitHead(kind waitKind, index int32) *int32 {
	switch kind {
	case waitProcess:
		return &k.procs[index].waiters
	case waitAny:
		return &k.anyWaiters
	case waitInterrupt:
		return k.resources.Waiters(irq.Line(index))
	}
	return nil
}

// wait links slot on a message wait queue.
func (k *Kernel) wait(slot int32, kind waitKind, index int32) {
	pushBack(k.waitHead(kind, index), slot, k.msgLinks)
	p := &k.procs[slot]
	p.waitOn, p.waitIndex = kind, index
}

// stopWaiting removes slot from the message wait queue it is linked on.
func (k *Kernel) stopWaiting(slot int32) {
	p := &k.procs[slot]
	if p.waitOn == waitNone {
		return
	}
	unlink(k.waitHead(p.waitOn, p.waitIndex), slot, k.msgLinks)
	p.waitOn, p.waitIndex = waitNone, nilSlot
}
