package proc

// arm starts the countdown of a blocking call.
func (k *Kernel) arm(slot int32, timeout uint32) {
	if timeout == 0 {
		return
	}
	k.disarm(slot)
	k.procs[slot].timer = timeout
	k.armedTimers++
}

func (k *Kernel) disarm(slot int32) {
	p := &k.procs[slot]
	if p.timer == 0 {
		return
	}
	p.timer = 0
	k.armedTimers--
}

// UpdateTimers advances every armed countdown by one tick. Blocked processes
// whose countdown expires are woken with a timeout reason; interrupt waits
// disable their line first.
func (k *Kernel) UpdateTimers() {
	k.lock.Lock()
	defer k.lock.Unlock()

	k.updateTimers()
}

func (k *Kernel) updateTimers() {
	walk(k.blocked, k.runLinks, func(slot int32) bool {
		p := &k.procs[slot]
		if p.timer == 0 {
			return true
		}

		p.timer--
		if p.timer != 0 {
			return true
		}
		k.armedTimers--

		reason := ReasonReceiveTimeout
		if p.reason == ReasonSend {
			reason = ReasonSendTimeout
		}
		if p.waitOn == waitInterrupt {
			k.machine.DisableIRQ(uint8(p.waitIndex))
		}
		k.wake(slot, reason)
		return true
	})
}

// ArmedTimers returns the number of blocked calls with a running countdown.
func (k *Kernel) ArmedTimers() int {
	return k.armedTimers
}
