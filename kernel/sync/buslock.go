// Package sync provides the bus lock, the only synchronization primitive used
// by the kernel: while it is held hardware interrupt delivery is disabled so
// only one logical execution context runs kernel policy code.
package sync

// InterruptController is implemented by the hardware mechanism that can mask
// and unmask interrupt delivery for the whole CPU.
type InterruptController interface {
	DisableInterrupts()
	EnableInterrupts()
}

// BusLock brackets kernel entry points. Lock calls may nest; interrupts are
// re-enabled only when the outermost Unlock runs.
type BusLock struct {
	ctl   InterruptController
	depth uint32
}

// NewBusLock returns a lock that masks interrupts through ctl.
func NewBusLock(ctl InterruptController) *BusLock {
	return &BusLock{ctl: ctl}
}

// Lock disables interrupt delivery and enters the kernel critical section.
func (l *BusLock) Lock() {
	if l.depth == 0 && l.ctl != nil {
		l.ctl.DisableInterrupts()
	}
	l.depth++
}

// Unlock leaves the critical section. Calling Unlock while the lock is free
// has no effect.
func (l *BusLock) Unlock() {
	if l.depth == 0 {
		return
	}

	l.depth--
	if l.depth == 0 && l.ctl != nil {
		l.ctl.EnableInterrupts()
	}
}

// Held returns true while at least one Lock is outstanding.
func (l *BusLock) Held() bool {
	return l.depth != 0
}
