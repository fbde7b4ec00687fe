package proc

import "ukernel/kernel"

// Property selects the process attribute read by GetProcess or written by
// SetProcess. Identifiers are returned as raw ID values and tick counters are
// truncated to 32 bits.
type Property uint8

const (
	PropPriority Property = iota
	PropStatus
	PropReason
	PropParent
	PropPrivilege
	PropSize
	PropRunTicks
	PropBlockedTicks
	PropExcepter
	PropPager
	PropChild
	PropSibling
	PropThreadOwner
)

// GetProcess reads one property of id (None selects the caller).
func (k *Kernel) GetProcess(id ID, prop Property) (uint32, *kernel.Error) {
	k.lock.Lock()
	defer k.lock.Unlock()

	slot, err := k.resolve(id)
	if err != nil {
		return 0, err
	}

	p := &k.procs[slot]
	switch prop {
	case PropPriority:
		return uint32(p.priority), nil
	case PropStatus:
		return uint32(p.status), nil
	case PropReason:
		return uint32(p.reason), nil
	case PropParent:
		return uint32(k.slotID(p.parent)), nil
	case PropPrivilege:
		return uint32(p.privilege), nil
	case PropSize:
		return k.memory.Size(k.space(slot)), nil
	case PropRunTicks:
		return uint32(p.runTicks), nil
	case PropBlockedTicks:
		return uint32(p.blockedTicks), nil
	case PropExcepter:
		return uint32(p.excepter), nil
	case PropPager:
		return uint32(p.pager), nil
	case PropChild:
		return uint32(k.slotID(p.child)), nil
	case PropSibling:
		return uint32(k.slotID(p.sibling)), nil
	case PropThreadOwner:
		return uint32(k.slotID(p.threadOwner)), nil
	}
	return 0, ErrInvalidParam
}

// SetProcess writes one property of id (None selects the caller).
//
// PropStatus takes the new status in the low byte and the reason in the next
// byte. Only Ready and Blocked may be set: a blocked process made ready is
// detached from any wait queue and its blocked time is accounted, a ready or
// running process made blocked is moved to the blocked queue. Blocking the
// caller switches to the next process.
func (k *Kernel) SetProcess(id ID, prop Property, value uint32) *kernel.Error {
	k.lock.Lock()
	defer k.lock.Unlock()

	slot, err := k.resolve(id)
	if err != nil {
		return err
	}

	p := &k.procs[slot]
	switch prop {
	case PropPriority:
		if slot == idleSlot || value == 0 || value > MaxPriority {
			return ErrInvalidParam
		}
		p.priority = uint8(value)
		k.requeue(slot)
	case PropStatus:
		return k.setStatus(slot, Status(value), Reason(value>>8))
	case PropPrivilege:
		p.privilege = Privilege(value)
		if p.privilege&PrivCoordinator != 0 && slot != idleSlot {
			k.coordinator = p.id
		} else if k.coordinator == p.id {
			k.coordinator = None
		}
	case PropParent:
		return k.setParent(slot, ID(value))
	case PropExcepter:
		p.excepter = ID(value)
	case PropPager:
		p.pager = ID(value)
	default:
		return ErrInvalidParam
	}
	return nil
}

func (k *Kernel) setStatus(slot int32, status Status, reason Reason) *kernel.Error {
	if slot == idleSlot {
		return ErrPermission
	}

	p := &k.procs[slot]
	switch status {
	case StatusReady:
		if p.status == StatusBlocked {
			k.wake(slot, reason)
		}
	case StatusBlocked:
		if p.status == StatusBlocked {
			return nil
		}
		k.block(slot, reason)
		if slot == k.current {
			k.schedule()
		}
	default:
		return ErrInvalidParam
	}
	return nil
}

// setParent moves slot under a new parent. A process cannot become a
// descendant of itself.
func (k *Kernel) setParent(slot int32, parent ID) *kernel.Error {
	if slot == idleSlot {
		return ErrPermission
	}

	parentSlot, err := k.lookupSlot(parent)
	if err != nil {
		return err
	}

	for anc := parentSlot; anc != nilSlot; anc = k.procs[anc].parent {
		if anc == slot {
			return ErrInvalidParam
		}
	}

	k.unlinkChild(k.procs[slot].parent, slot)
	k.linkChild(parentSlot, slot)
	return nil
}
