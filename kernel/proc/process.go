package proc

import "ukernel/kernel/mm"

// Status is the scheduling state of a process table slot.
type Status uint8

const (
	// StatusEmpty marks a free slot.
	StatusEmpty Status = iota

	// StatusPending marks a slot that is being set up by AddProcess.
	StatusPending

	// StatusReady marks a process linked on a ready queue.
	StatusReady

	// StatusRunning marks the current process. It stays linked on its
	// ready queue.
	StatusRunning

	// StatusBlocked marks a process linked on the blocked queue.
	StatusBlocked
)

var statusNames = [...]string{"empty", "pending", "ready", "running", "blocked"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Reason records why a process is blocked or why it was last made ready.
type Reason uint8

// The Send, Receive and Exception reasons describe blocked processes; the
// others describe the outcome of the last blocking call.
const (
	ReasonNone Reason = iota
	ReasonSend
	ReasonReceive
	ReasonSendDone
	ReasonReceiveDone
	ReasonSendTimeout
	ReasonReceiveTimeout
	ReasonTargetRemoved
	ReasonInterruptDone
	ReasonException
	ReasonExceptionDone
	ReasonNoExceptionHandler
)

var reasonNames = [...]string{
	"none", "send", "receive", "send done", "receive done", "send timeout",
	"receive timeout", "target removed", "interrupt done", "exception",
	"exception done", "no exception handler",
}

func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return "unknown"
}

// Privilege is a set of capability bits.
type Privilege uint32

const (
	// PrivCoordinator allows privileged process, resource and memory
	// operations on behalf of other processes.
	PrivCoordinator Privilege = 1 << iota
)

const (
	// FastThreshold is the lowest priority scheduled from the fast queue.
	FastThreshold = 8

	// ThreadFlag requests that AddProcess shares the parent's address
	// space instead of creating a new one.
	ThreadFlag = 0x100

	// MaxPriority is the highest process priority.
	MaxPriority = 0xff

	// MessageSize is the size of the per-process message buffer.
	MessageSize = 256

	// nilSlot terminates every slot-indexed link.
	nilSlot = int32(-1)

	// idleSlot holds the idle process. It owns the kernel address space
	// and runs whenever both ready queues are empty.
	idleSlot = int32(0)
)

type queueKind uint8

const (
	queueNone queueKind = iota
	queueNormal
	queueFast
	queueBlocked
)

type waitKind uint8

const (
	waitNone waitKind = iota
	waitProcess
	waitAny
	waitInterrupt
)

// links are the two slot indices of a circular doubly linked queue.
type links struct {
	prev, next int32
}

// Process is one process table slot.
type Process struct {
	id         ID
	generation uint32
	status     Status
	reason     Reason
	priority   uint8
	privilege  Privilege

	// Family tree.
	parent, child, sibling int32

	// threadOwner is the slot owning the address space; it is the
	// process itself unless it is a thread. nextThread links the threads
	// of one owner.
	threadOwner int32
	nextThread  int32

	// run links the process on a ready queue or the blocked queue.
	run   links
	queue queueKind

	// waiters is the head of the queue of processes waiting to exchange
	// a message with this process. msg links this process on the wait
	// queue named by waitOn/waitIndex.
	waiters   int32
	msg       links
	waitOn    waitKind
	waitIndex int32

	// peer is the requested target or source while blocked and the
	// resolved one afterwards.
	peer    ID
	message [MessageSize]byte
	msgLen  int

	// faulting is set while an exception frame waits to be taken by the
	// handler.
	faulting bool

	timer        uint32
	runStart     uint64
	blockedAt    uint64
	runTicks     uint64
	blockedTicks uint64

	excepter, pager ID

	// stackPage is the user stack page of a thread in its owner's space.
	stackPage  uint32
	kernelPage mm.Frame
}

// ID returns the process identifier.
func (p *Process) ID() ID { return p.id }

// Status returns the scheduling state.
func (p *Process) Status() Status { return p.status }

// Reason returns the block or wake reason.
func (p *Process) Reason() Reason { return p.reason }

// Priority returns the scheduling priority.
func (p *Process) Priority() uint8 { return p.priority }

func (p *Process) isThread(slot int32) bool {
	return p.threadOwner != slot
}

// sending and receiving report a process blocked in a message call. A
// process blocked through SetProcess is on no wait queue and takes part in
// no rendezvous; neither does a receiver waiting for an interrupt line.
func (p *Process) sending() bool {
	return p.status == StatusBlocked && p.reason == ReasonSend && p.waitOn != waitNone
}

func (p *Process) receiving() bool {
	return p.status == StatusBlocked && (p.reason == ReasonReceive || p.reason == ReasonException) &&
		p.waitOn != waitNone && p.waitOn != waitInterrupt
}

func readyQueueFor(priority uint8) queueKind {
	if priority >= FastThreshold {
		return queueFast
	}
	return queueNormal
}

// reset clears a slot for reuse keeping its generation.
func (p *Process) reset() {
	*p = Process{
		generation:  p.generation,
		parent:      nilSlot,
		child:       nilSlot,
		sibling:     nilSlot,
		threadOwner: nilSlot,
		nextThread:  nilSlot,
		run:         links{nilSlot, nilSlot},
		waiters:     nilSlot,
		msg:         links{nilSlot, nilSlot},
		waitIndex:   nilSlot,
		kernelPage:  mm.InvalidFrame,
	}
}
