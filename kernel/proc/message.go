package proc

import (
	"ukernel/kernel"
	"ukernel/kernel/irq"
)

var (
	// ErrDeadlock is returned when a process names itself, or a thread
	// group it is the only member of, as its message peer.
	ErrDeadlock = &kernel.Error{Module: "proc", Message: "process cannot exchange messages with itself", Code: kernel.CodeDeadlock}

	// ErrMessageSize is returned for messages longer than MessageSize.
	ErrMessageSize = &kernel.Error{Module: "proc", Message: "message too long", Code: kernel.CodeInvalidParam}

	// ErrSendFailed is returned for targets a message cannot be sent to.
	ErrSendFailed = &kernel.Error{Module: "proc", Message: "invalid send target", Code: kernel.CodeSendFailed}

	// ErrNoTarget is the outcome of a blocked call whose peer was removed.
	ErrNoTarget = &kernel.Error{Module: "proc", Message: "message peer removed", Code: kernel.CodeNoTarget}

	// ErrSendTimeout is the outcome of a send whose countdown expired.
	ErrSendTimeout = &kernel.Error{Module: "proc", Message: "send timed out", Code: kernel.CodeSendTimeout}

	// ErrReceiveTimeout is the outcome of a receive whose countdown
	// expired.
	ErrReceiveTimeout = &kernel.Error{Module: "proc", Message: "receive timed out", Code: kernel.CodeReceiveTimeout}

	errNothingToResume = &kernel.Error{Module: "proc", Message: "no completed call to resume", Code: kernel.CodeBadCall}
	errIdleBlocks      = &kernel.Error{Module: "proc", Message: "idle process cannot block", Code: kernel.CodeDeadlock}
)

// Match levels of a requested peer against a process, weakest first.
const (
	matchNone = iota
	matchAny
	matchGroup
	matchExact
)

// Send delivers data from the caller to target. If target (a process, Any or
// a Group) is already blocked receiving from the caller the message is
// copied immediately and the receiver's identifier is returned. Otherwise
// the caller blocks on the target's wait queue and ErrSuspended is returned;
// a non-zero timeout limits the wait to that many ticks.
func (k *Kernel) Send(target ID, data []byte, timeout uint32) (ID, *kernel.Error) {
	k.lock.Lock()
	defer k.lock.Unlock()

	return k.send(k.current, target, data, timeout)
}

// Receive takes a message from source, which is a process, Any, a Group or
// an Interrupt line owned by the caller. A waiting sender is served
// immediately; otherwise the caller blocks and ErrSuspended is returned.
func (k *Kernel) Receive(source ID, timeout uint32) (ID, []byte, *kernel.Error) {
	k.lock.Lock()
	defer k.lock.Unlock()

	return k.receive(k.current, source, timeout)
}

// Resume returns the outcome of the blocking call that suspended the current
// process: the resolved peer, the received message if any and the error
// matching the wake reason.
func (k *Kernel) Resume() (ID, []byte, *kernel.Error) {
	k.lock.Lock()
	defer k.lock.Unlock()

	p := &k.procs[k.current]
	switch p.reason {
	case ReasonSendDone, ReasonInterruptDone:
		p.reason = ReasonNone
		return p.peer, nil, nil
	case ReasonReceiveDone, ReasonExceptionDone:
		p.reason = ReasonNone
		return p.peer, p.received(), nil
	case ReasonSendTimeout:
		p.reason = ReasonNone
		return p.peer, nil, ErrSendTimeout
	case ReasonReceiveTimeout:
		p.reason = ReasonNone
		return p.peer, nil, ErrReceiveTimeout
	case ReasonTargetRemoved:
		p.reason = ReasonNone
		return p.peer, nil, ErrNoTarget
	}
	return None, nil, errNothingToResume
}

// RemoveProcessMessages wakes every process waiting to exchange a message
// with id with the target-removed reason and withdraws id from the wait
// queue it is on.
func (k *Kernel) RemoveProcessMessages(id ID) *kernel.Error {
	k.lock.Lock()
	defer k.lock.Unlock()

	slot, err := k.lookupSlot(id)
	if err != nil {
		return err
	}
	k.removeMessages(slot)
	return nil
}

func (k *Kernel) send(slot int32, target ID, data []byte, timeout uint32) (ID, *kernel.Error) {
	if len(data) > MessageSize {
		return None, ErrMessageSize
	}
	if _, isIRQ := target.InterruptLine(); isIRQ {
		return None, ErrSendFailed
	}

	m, err := k.findPartner(slot, target, (*Process).receiving)
	if err != nil {
		return None, err
	}

	p := &k.procs[slot]
	if m.partner != nilSlot {
		k.deliver(slot, m.partner, data)
		p.reason = ReasonNone
		p.peer = k.procs[m.partner].id
		return p.peer, nil
	}

	if slot == idleSlot {
		return None, errIdleBlocks
	}

	p.msgLen = copy(p.message[:], data)
	p.peer = m.peer
	k.suspend(slot, ReasonSend, m.kind, m.index, timeout)
	return None, ErrSuspended
}

func (k *Kernel) receive(slot int32, source ID, timeout uint32) (ID, []byte, *kernel.Error) {
	if line, isIRQ := source.InterruptLine(); isIRQ {
		return k.receiveInterrupt(slot, line, timeout)
	}

	m, err := k.findPartner(slot, source, (*Process).sending)
	if err != nil {
		return None, nil, err
	}

	p := &k.procs[slot]
	if m.partner != nilSlot {
		k.take(slot, m.partner)
		p.reason = ReasonNone
		return p.peer, p.received(), nil
	}

	if slot == idleSlot {
		return None, nil, errIdleBlocks
	}

	p.peer = m.peer
	k.suspend(slot, ReasonReceive, m.kind, m.index, timeout)
	return None, nil, ErrSuspended
}

func (k *Kernel) receiveInterrupt(slot int32, line irq.Line, timeout uint32) (ID, []byte, *kernel.Error) {
	if line >= irq.Lines {
		return None, nil, irq.ErrOutOfRange
	}

	p := &k.procs[slot]
	if k.resources.Owner(irq.InterruptResource, uint32(line)) != uint32(p.id) {
		return None, nil, irq.ErrNotOwner
	}

	p.peer = Interrupt(line)
	if k.resources.Consume(line) {
		p.msgLen = 0
		p.reason = ReasonNone
		return p.peer, nil, nil
	}

	if slot == idleSlot {
		return None, nil, errIdleBlocks
	}

	k.suspend(slot, ReasonReceive, waitInterrupt, int32(line), timeout)
	k.machine.EnableIRQ(uint8(line))
	return None, nil, ErrSuspended
}

// suspend blocks slot on a wait queue and switches away from it.
func (k *Kernel) suspend(slot int32, reason Reason, kind waitKind, index int32, timeout uint32) {
	k.block(slot, reason)
	k.wait(slot, kind, index)
	k.arm(slot, timeout)
	if slot == k.current {
		k.schedule()
	}
}

// deliver copies a message from sender into a blocked receiver and wakes
// it. A receiver waiting for an exception reply is woken with the
// exception-done reason.
func (k *Kernel) deliver(sender, receiver int32, data []byte) {
	r := &k.procs[receiver]
	r.msgLen = copy(r.message[:], data)
	r.peer = k.procs[sender].id

	reason := ReasonReceiveDone
	if r.reason == ReasonException {
		reason = ReasonExceptionDone
	}
	k.wake(receiver, reason)
}

// take copies the message of a blocked sender into receiver. A faulting
// sender goes on waiting for the handler's reply; any other sender is woken.
func (k *Kernel) take(receiver, sender int32) {
	r, s := &k.procs[receiver], &k.procs[sender]
	r.msgLen = copy(r.message[:], s.message[:s.msgLen])
	r.peer = s.id
	s.peer = r.id

	if !s.faulting {
		k.wake(sender, ReasonSendDone)
		return
	}

	s.faulting = false
	s.reason = ReasonException
	k.stopWaiting(sender)
	k.wait(sender, waitProcess, receiver)
}

func (k *Kernel) removeMessages(slot int32) {
	walk(k.procs[slot].waiters, k.msgLinks, func(w int32) bool {
		k.wake(w, ReasonTargetRemoved)
		return true
	})
	k.stopWaiting(slot)
	k.disarm(slot)
}

func (p *Process) received() []byte {
	return append([]byte(nil), p.message[:p.msgLen]...)
}

// match is the outcome of a partner search.
type match struct {
	// partner is the blocked process to rendezvous with or nilSlot.
	partner int32

	// peer is the normalized target to record when blocking and kind and
	// index name the wait queue to block on.
	peer  ID
	kind  waitKind
	index int32
}

// findPartner looks for a process blocked in the opposite call (selected
// by ready) that accepts slot as its peer. Exact matches win over thread
// group matches, which win over Any matches.
func (k *Kernel) findPartner(slot int32, target ID, ready func(*Process) bool) (match, *kernel.Error) {
	if target == Any {
		return k.findAny(slot, ready), nil
	}

	if member, isGroup := target.GroupMember(); isGroup {
		ms, err := k.lookupSlot(member)
		if err != nil {
			return match{}, err
		}
		return k.findInGroup(slot, k.procs[ms].threadOwner, ready)
	}

	ts, err := k.lookupSlot(target)
	if err != nil {
		return match{}, err
	}
	if ts == slot {
		return match{}, ErrDeadlock
	}

	m := match{partner: nilSlot, peer: k.procs[ts].id, kind: waitProcess, index: ts}
	if t := &k.procs[ts]; ready(t) && k.matchLevel(t.peer, slot) != matchNone {
		m.partner = ts
	}
	return m, nil
}

// findAny searches the queues where partners naming slot wait: slot's own
// queue for exact peers, its group owner's queue for group peers and the
// Any queue.
func (k *Kernel) findAny(slot int32, ready func(*Process) bool) match {
	m := match{partner: nilSlot, peer: Any, kind: waitAny, index: nilSlot}
	owner := k.procs[slot].threadOwner

	searches := [...]struct {
		head  int32
		level int
	}{
		{k.procs[slot].waiters, matchExact},
		{k.procs[owner].waiters, matchGroup},
		{k.anyWaiters, matchAny},
	}

	for _, s := range searches {
		walk(s.head, k.msgLinks, func(w int32) bool {
			if ready(&k.procs[w]) && k.matchLevel(k.procs[w].peer, slot) == s.level {
				m.partner = w
				return false
			}
			return true
		})
		if m.partner != nilSlot {
			break
		}
	}
	return m
}

// findInGroup searches the members of the thread group owned by owner,
// skipping slot itself.
func (k *Kernel) findInGroup(slot, owner int32, ready func(*Process) bool) (match, *kernel.Error) {
	m := match{partner: nilSlot, peer: Group(k.procs[owner].id), kind: waitProcess, index: owner}

	var (
		others    bool
		bestLevel = matchNone
	)
	for member := owner; member != nilSlot; member = k.procs[member].nextThread {
		if member == slot {
			continue
		}
		others = true

		p := &k.procs[member]
		if !ready(p) {
			continue
		}
		if level := k.matchLevel(p.peer, slot); level > bestLevel {
			m.partner, bestLevel = member, level
		}
	}

	if !others {
		return match{}, ErrDeadlock
	}
	return m, nil
}

// matchLevel returns how specifically the requested peer want names slot.
// Interrupt sources never match a process.
func (k *Kernel) matchLevel(want ID, slot int32) int {
	if want == Any {
		return matchAny
	}
	if _, isIRQ := want.InterruptLine(); isIRQ {
		return matchNone
	}

	if member, isGroup := want.GroupMember(); isGroup {
		ms, err := k.lookupSlot(member)
		if err == nil && k.procs[ms].threadOwner == k.procs[slot].threadOwner {
			return matchGroup
		}
		return matchNone
	}

	if k.layout.canonical(want) == k.procs[slot].id {
		return matchExact
	}
	return matchNone
}
