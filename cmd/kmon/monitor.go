package main

import (
	"io"

	"ukernel/kernel"
	"ukernel/kernel/gate"
	"ukernel/kernel/irq"
	"ukernel/kernel/kfmt"
	"ukernel/kernel/mm"
	"ukernel/kernel/proc"
)

const (
	// deviceLine is the interrupt line raised by the 'k' key.
	deviceLine = irq.Line(5)

	bufAddr  = mm.UserBase
	bufSize  = 64
	userPerm = mm.PermPresent | mm.PermWrite | mm.PermUser
)

// task is a scripted user process. next returns the registers of the next
// system call of the process; regs holds a call that suspended it.
type task struct {
	name string
	next func() gate.Registers
	regs *gate.Registers
}

// monitor drives a kernel and its scripted processes from single key
// presses.
type monitor struct {
	k     *proc.Kernel
	g     *gate.Gate
	out   io.Writer
	tasks map[proc.ID]*task
}

func newMonitor(k *proc.Kernel, out io.Writer) (*monitor, *kernel.Error) {
	m := &monitor{
		k:     k,
		g:     gate.New(k),
		out:   out,
		tasks: make(map[proc.ID]*task),
	}

	driver, err := m.spawn("driver")
	if err != nil {
		return nil, err
	}
	if err = k.AddResource(irq.InterruptResource, uint32(deviceLine), driver); err != nil {
		return nil, err
	}
	m.tasks[driver].next = func() gate.Registers {
		return gate.Registers{Info: uint32(gate.CallReceive), EBX: uint32(proc.Interrupt(deviceLine))}
	}

	server, err := m.spawn("server")
	if err != nil {
		return nil, err
	}
	m.tasks[server].next = func() gate.Registers {
		return gate.Registers{Info: uint32(gate.CallReceive), EBX: uint32(proc.Any), ECX: bufAddr, EDX: bufSize}
	}

	client, err := m.spawn("client")
	if err != nil {
		return nil, err
	}
	var seq int
	m.tasks[client].next = func() gate.Registers {
		seq++
		msg := []byte("ping")
		msg = append(msg, byte('0'+seq%10))
		if err := k.CopyOut(bufAddr, msg); err != nil {
			return gate.Registers{Info: uint32(gate.CallSchedule)}
		}
		return gate.Registers{Info: uint32(gate.CallSend), EBX: uint32(server), ECX: bufAddr, EDX: uint32(len(msg))}
	}

	return m, nil
}

// spawn creates a process with a message buffer page at bufAddr.
func (m *monitor) spawn(name string) (proc.ID, *kernel.Error) {
	id, err := m.k.AddProcess(4, proc.None, mm.UserBase, mm.UserTop, 0, proc.None, proc.None)
	if err != nil {
		return proc.None, err
	}
	if _, err = m.k.AddPage(id, bufAddr, userPerm); err != nil {
		return proc.None, err
	}
	m.tasks[id] = &task{name: name}
	return id, nil
}

// handle executes the command bound to key and reports whether the monitor
// should keep running.
func (m *monitor) handle(key rune) bool {
	switch key {
	case 't':
		m.k.Interrupt(irq.ClockLine)
	case 'k':
		if err := m.k.Interrupt(deviceLine); err != nil {
			kfmt.Fprintf(m.out, "irq %d: %s\n", deviceLine, err.Error())
		}
	case 's':
		m.k.Schedule()
	case 'p':
		m.ps()
		return true
	case 'm':
		m.mem()
		return true
	case 'l':
		kfmt.Tail(m.out)
		return true
	case 'q':
		return false
	default:
		m.help()
		return true
	}

	m.step()
	return true
}

// step runs one system call of the current process: the completion of a
// suspended call, if any, followed by the next call of its script.
func (m *monitor) step() {
	id := m.k.Current()
	t := m.tasks[id]
	if t == nil || t.next == nil {
		return
	}

	if t.regs != nil {
		m.g.Resume(t.regs)
		m.report(t, t.regs, "resumed")
		t.regs = nil
	}

	regs := t.next()
	m.g.Dispatch(&regs)
	if regs.Result() == 0 && (gate.Call(regs.Info) == gate.CallSend || gate.Call(regs.Info) == gate.CallReceive) {
		t.regs = &regs
		kfmt.Fprintf(m.out, "%s: %s suspended\n", t.name, gate.Call(regs.Info))
		return
	}
	m.report(t, &regs, "returned")
}

func (m *monitor) report(t *task, regs *gate.Registers, verb string) {
	res := regs.Result()
	if res < 0 {
		kfmt.Fprintf(m.out, "%s: %s %s %s\n", t.name, gate.Call(regs.Info), verb, kernel.Code(res).String())
		return
	}

	kfmt.Fprintf(m.out, "%s: %s %s %s", t.name, gate.Call(regs.Info), verb, proc.ID(res))
	if gate.Call(regs.Info) == gate.CallReceive && regs.EDX != 0 {
		if msg, err := m.k.CopyIn(regs.ECX, regs.EDX); err == nil {
			kfmt.Fprintf(m.out, " %q", msg)
		}
	}
	kfmt.Fprintf(m.out, "\n")
}

func (m *monitor) ps() {
	kfmt.Fprintf(m.out, "%-8s %-8s %-8s %-14s %4s %5s %6s %7s\n", "ID", "NAME", "STATUS", "REASON", "PRIO", "PAGES", "RUN", "BLOCKED")
	for _, p := range m.k.Processes() {
		name := "idle"
		if t := m.tasks[p.ID]; t != nil {
			name = t.name
		}
		kfmt.Fprintf(m.out, "%-8s %-8s %-8s %-14s %4d %5d %6d %7d\n",
			p.ID, name, p.Status, p.Reason, p.Priority, p.Pages, p.RunTicks, p.BlockedTicks)
	}
	kfmt.Fprintf(m.out, "ticks %d, %d armed timers\n", m.k.Ticks(), m.k.ArmedTimers())
}

func (m *monitor) mem() {
	s := m.k.Memory().Stats()
	kfmt.Fprintf(m.out, "free kernel pages: %d\n", s.FreeKernelPages)
	kfmt.Fprintf(m.out, "free user pages:   %d\n", s.FreeUserPages)
	kfmt.Fprintf(m.out, "page maps:         %d/%d free\n", s.FreeMaps, s.TotalMaps)
	kfmt.Fprintf(m.out, "frames in use:     %d\n", len(m.k.Memory().Frames().UsedFrames()))
}

func (m *monitor) help() {
	kfmt.Fprintf(m.out, "t tick  k irq %d  s schedule  p processes  m memory  l log  q quit\n", deviceLine)
}
