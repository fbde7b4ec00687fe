// Package gate implements the numbered system-call surface. Every call reads
// its arguments from a register snapshot and stores a signed 32-bit result
// in EAX: zero or positive on success, a negative kernel error code
// otherwise. A result of zero from a blocking call means the caller was
// suspended; Resume completes the call once the process runs again.
package gate

import (
	"encoding/binary"
	"io"

	"ukernel/kernel"
	"ukernel/kernel/irq"
	"ukernel/kernel/kfmt"
	"ukernel/kernel/mm"
	"ukernel/kernel/proc"
)

// Call is a system call number.
type Call uint32

// The system calls in call-gate order.
const (
	CallSchedule Call = iota
	CallAddProcess
	CallRemoveProcess
	CallGetProcess
	CallSetProcess
	CallSend
	CallReceive
	CallAddResource
	CallRemoveResource
	CallAddPage
	CallMapPage
	CallGrantPage
	CallUnmapPage

	numCalls
)

var callNames = [numCalls]string{
	"schedule", "add-process", "remove-process", "get-process",
	"set-process", "send", "receive", "add-resource", "remove-resource",
	"add-page", "map-page", "grant-page", "unmap-page",
}

func (c Call) String() string {
	if c < numCalls {
		return callNames[c]
	}
	return "invalid"
}

// SpawnArgsSize is the size of the user block pointed to by the last
// argument of AddProcess: the kernel stack, excepter and pager words.
const SpawnArgsSize = 12

// resultMask keeps success values non-negative.
const resultMask = 0x7fffffff

var (
	// ErrBadCall is returned for unknown call numbers.
	ErrBadCall = &kernel.Error{Module: "gate", Message: "unknown system call", Code: kernel.CodeBadCall}

	// ErrNotBlocking is returned by Resume for registers of a call that
	// never suspends.
	ErrNotBlocking = &kernel.Error{Module: "gate", Message: "call does not suspend", Code: kernel.CodeBadCall}
)

// Gate routes system calls to the kernel on behalf of its current process.
type Gate struct {
	k   *proc.Kernel
	log io.Writer
}

// New returns a gate bound to k.
func New(k *proc.Kernel) *Gate {
	return &Gate{k: k, log: kfmt.ModuleLogger("gate")}
}

type handlerFn func(*Gate, *Registers) (int32, *kernel.Error)

var handlers = [numCalls]handlerFn{
	CallSchedule:       (*Gate).schedule,
	CallAddProcess:     (*Gate).addProcess,
	CallRemoveProcess:  (*Gate).removeProcess,
	CallGetProcess:     (*Gate).getProcess,
	CallSetProcess:     (*Gate).setProcess,
	CallSend:           (*Gate).send,
	CallReceive:        (*Gate).receive,
	CallAddResource:    (*Gate).addResource,
	CallRemoveResource: (*Gate).removeResource,
	CallAddPage:        (*Gate).addPage,
	CallMapPage:        (*Gate).mapPage,
	CallGrantPage:      (*Gate).grantPage,
	CallUnmapPage:      (*Gate).unmapPage,
}

// Dispatch executes the call selected by regs.Info for the current process
// and stores its result in regs.EAX.
func (g *Gate) Dispatch(regs *Registers) {
	call := Call(regs.Info)
	if call >= numCalls {
		kfmt.Fprintf(g.log, "process %s: bad call %d\n", g.k.Current(), regs.Info)
		regs.EAX = uint32(ErrBadCall.Result(0))
		return
	}

	caller := g.k.Current()
	res, err := handlers[call](g, regs)
	if err != nil && err != proc.ErrSuspended {
		kfmt.Fprintf(g.log, "process %s: %s failed: %s\n", caller, call, err.Error())
	}
	regs.EAX = uint32(err.Result(res))
}

// Resume completes the blocking call saved in regs once its process, now
// the current one, runs again and stores the final result in regs.EAX.
func (g *Gate) Resume(regs *Registers) {
	switch Call(regs.Info) {
	case CallSend:
		peer, _, err := g.k.Resume()
		regs.EAX = uint32(err.Result(int32(peer)))
	case CallReceive:
		res, err := g.completeReceive(regs, g.k.Resume)
		regs.EAX = uint32(err.Result(res))
	default:
		regs.EAX = uint32(ErrNotBlocking.Result(0))
	}
}

// Check reports whether the current process may issue privileged calls:
// either no coordinator has been designated yet or the caller holds the
// coordinator privilege.
func (g *Gate) Check() bool {
	return g.k.Coordinator() == proc.None || g.k.Privileged(g.k.Current())
}

// onBehalf reports whether id names a process other than the caller.
func (g *Gate) onBehalf(id proc.ID) bool {
	return id != proc.None && id != g.k.Current()
}

func (g *Gate) schedule(_ *Registers) (int32, *kernel.Error) {
	g.k.Schedule()
	return 0, nil
}

// addProcess: EBX priority and thread flag, ECX parent, EDX entry point,
// ESI user stack top, EDI user address of the spawn block or 0.
func (g *Gate) addProcess(regs *Registers) (int32, *kernel.Error) {
	parent := proc.ID(regs.ECX)
	if g.onBehalf(parent) && !g.Check() {
		return 0, proc.ErrPermission
	}

	var kernelStack uint32
	excepter, pager := proc.None, proc.None
	if regs.EDI != 0 {
		block, err := g.k.CopyIn(regs.EDI, SpawnArgsSize)
		if err != nil {
			return 0, err
		}
		kernelStack = binary.LittleEndian.Uint32(block[0:])
		excepter = proc.ID(binary.LittleEndian.Uint32(block[4:]))
		pager = proc.ID(binary.LittleEndian.Uint32(block[8:]))
	}

	id, err := g.k.AddProcess(uint16(regs.EBX), parent, regs.EDX, regs.ESI, kernelStack, excepter, pager)
	return int32(id), err
}

// removeProcess: EBX process or None for the caller.
func (g *Gate) removeProcess(regs *Registers) (int32, *kernel.Error) {
	id := proc.ID(regs.EBX)
	if g.onBehalf(id) && !g.Check() {
		return 0, proc.ErrPermission
	}
	return 0, g.k.RemoveProcess(id)
}

// getProcess: EBX process, ECX property.
func (g *Gate) getProcess(regs *Registers) (int32, *kernel.Error) {
	v, err := g.k.GetProcess(proc.ID(regs.EBX), proc.Property(regs.ECX))
	return int32(v & resultMask), err
}

// setProcess: EBX process, ECX property, EDX value.
func (g *Gate) setProcess(regs *Registers) (int32, *kernel.Error) {
	prop := proc.Property(regs.ECX)
	if prop == proc.PropPrivilege && !g.Check() {
		return 0, proc.ErrPermission
	}
	return 0, g.k.SetProcess(proc.ID(regs.EBX), prop, regs.EDX)
}

// send: EBX target, ECX message address, EDX message length, ESI timeout in
// ticks or 0.
func (g *Gate) send(regs *Registers) (int32, *kernel.Error) {
	if regs.EDX > proc.MessageSize {
		return 0, proc.ErrMessageSize
	}

	var data []byte
	if regs.EDX != 0 {
		var err *kernel.Error
		if data, err = g.k.CopyIn(regs.ECX, regs.EDX); err != nil {
			return 0, err
		}
	}

	to, err := g.k.Send(proc.ID(regs.EBX), data, regs.ESI)
	return int32(to), err
}

// receive: EBX source, ECX buffer address, EDX buffer length, ESI timeout
// in ticks or 0. On completion EDX holds the number of bytes stored in the
// buffer; longer messages are truncated.
func (g *Gate) receive(regs *Registers) (int32, *kernel.Error) {
	if regs.EDX > proc.MessageSize {
		regs.EDX = proc.MessageSize
	}
	// The buffer is validated before the call so that a message is never
	// taken from a sender and then dropped.
	if regs.EDX != 0 {
		if err := g.k.CopyOut(regs.ECX, make([]byte, regs.EDX)); err != nil {
			return 0, err
		}
	}

	source := proc.ID(regs.EBX)
	return g.completeReceive(regs, func() (proc.ID, []byte, *kernel.Error) {
		return g.k.Receive(source, regs.ESI)
	})
}

func (g *Gate) completeReceive(regs *Registers, fn func() (proc.ID, []byte, *kernel.Error)) (int32, *kernel.Error) {
	from, msg, err := fn()
	if err != nil {
		return 0, err
	}

	if uint32(len(msg)) > regs.EDX {
		msg = msg[:regs.EDX]
	}
	if len(msg) != 0 {
		if err = g.k.CopyOut(regs.ECX, msg); err != nil {
			return 0, err
		}
	}
	regs.EDX = uint32(len(msg))
	return int32(from), nil
}

// addResource: EBX resource kind, ECX line or port, EDX owner or None.
func (g *Gate) addResource(regs *Registers) (int32, *kernel.Error) {
	owner := proc.ID(regs.EDX)
	if g.onBehalf(owner) && !g.Check() {
		return 0, proc.ErrPermission
	}
	return 0, g.k.AddResource(irq.Kind(regs.EBX), regs.ECX, owner)
}

// removeResource: EBX resource kind, ECX line or port, EDX owner or None.
func (g *Gate) removeResource(regs *Registers) (int32, *kernel.Error) {
	owner := proc.ID(regs.EDX)
	if g.onBehalf(owner) && !g.Check() {
		return 0, proc.ErrPermission
	}
	return 0, g.k.RemoveResource(irq.Kind(regs.EBX), regs.ECX, owner)
}

// addPage: EBX process, ECX virtual address, EDX permissions.
func (g *Gate) addPage(regs *Registers) (int32, *kernel.Error) {
	_, err := g.k.AddPage(proc.ID(regs.EBX), regs.ECX, mm.Perm(regs.EDX))
	return 0, err
}

// mapPage: EBX source, ECX source address, EDX destination, ESI
// destination address, EDI permissions.
func (g *Gate) mapPage(regs *Registers) (int32, *kernel.Error) {
	return 0, g.k.MapPage(proc.ID(regs.EBX), regs.ECX, proc.ID(regs.EDX), regs.ESI, mm.Perm(regs.EDI))
}

// grantPage takes the same arguments as mapPage.
func (g *Gate) grantPage(regs *Registers) (int32, *kernel.Error) {
	return 0, g.k.GrantPage(proc.ID(regs.EBX), regs.ECX, proc.ID(regs.EDX), regs.ESI, mm.Perm(regs.EDI))
}

// unmapPage: EBX process, ECX virtual address.
func (g *Gate) unmapPage(regs *Registers) (int32, *kernel.Error) {
	return 0, g.k.UnmapPage(proc.ID(regs.EBX), regs.ECX)
}
