package proc

import (
	"bytes"
	"testing"

	"ukernel/kernel"
	"ukernel/kernel/irq"
)

func TestRendezvous(t *testing.T) {
	payload := []byte("hello from a")

	t.Run("sender first", func(t *testing.T) {
		k, _ := newTestKernel(t)
		a := spawn(t, k, 4)
		b := spawn(t, k, 4)

		runAs(t, k, a)
		if _, err := k.Send(b, payload, 0); err != ErrSuspended {
			t.Fatalf("expected sender to block; got %v", err)
		}
		if k.proc(t, a).Status() != StatusBlocked || k.Current() == a {
			t.Fatal("expected blocked sender to be switched away")
		}
		checkInvariants(t, k)

		runAs(t, k, b)
		from, msg, err := k.Receive(a, 0)
		if err != nil {
			t.Fatal(err)
		}
		if from != a || !bytes.Equal(msg, payload) {
			t.Fatalf("expected %q from %s; got %q from %s", payload, a, msg, from)
		}
		if k.proc(t, a).Reason() != ReasonSendDone {
			t.Fatalf("expected sender reason %s; got %s", ReasonSendDone, k.proc(t, a).Reason())
		}
		checkInvariants(t, k)

		runAs(t, k, a)
		to, _, err := k.Resume()
		if err != nil || to != b {
			t.Fatalf("expected send to %s to succeed; got %s, %v", b, to, err)
		}
	})

	t.Run("receiver first", func(t *testing.T) {
		k, _ := newTestKernel(t)
		a := spawn(t, k, 4)
		b := spawn(t, k, 4)

		runAs(t, k, b)
		if _, _, err := k.Receive(a, 0); err != ErrSuspended {
			t.Fatalf("expected receiver to block; got %v", err)
		}
		checkInvariants(t, k)

		runAs(t, k, a)
		to, err := k.Send(b, payload, 0)
		if err != nil || to != b {
			t.Fatalf("expected immediate delivery to %s; got %s, %v", b, to, err)
		}
		if k.proc(t, b).Reason() != ReasonReceiveDone {
			t.Fatalf("expected receiver reason %s; got %s", ReasonReceiveDone, k.proc(t, b).Reason())
		}
		checkInvariants(t, k)

		runAs(t, k, b)
		from, msg, err := k.Resume()
		if err != nil {
			t.Fatal(err)
		}
		if from != a || !bytes.Equal(msg, payload) {
			t.Fatalf("expected %q from %s; got %q from %s", payload, a, msg, from)
		}

		if _, _, err = k.Resume(); err != errNothingToResume {
			t.Fatalf("expected errNothingToResume after the outcome was taken; got %v", err)
		}
	})
}

func TestMatchOrder(t *testing.T) {
	k, _ := newTestKernel(t)
	r := spawn(t, k, 4)
	viaAny := spawn(t, k, 4)
	viaGroup := spawn(t, k, 4)
	exact := spawn(t, k, 4)

	for _, s := range []struct {
		sender, target ID
	}{
		{viaAny, Any},
		{viaGroup, Group(r)},
		{exact, r},
	} {
		runAs(t, k, s.sender)
		if _, err := k.Send(s.target, []byte(s.sender.String()), 0); err != ErrSuspended {
			t.Fatalf("expected %s to block; got %v", s.sender, err)
		}
	}
	checkInvariants(t, k)

	runAs(t, k, r)
	for _, exp := range []ID{exact, viaGroup, viaAny} {
		from, msg, err := k.Receive(Any, 0)
		if err != nil {
			t.Fatal(err)
		}
		if from != exp || string(msg) != exp.String() {
			t.Fatalf("expected message from %s; got %q from %s", exp, msg, from)
		}
	}
	checkInvariants(t, k)
}

func TestThreadGroupMessages(t *testing.T) {
	k, _ := newTestKernel(t)
	owner := spawn(t, k, 4)
	thread := spawnWith(t, k, 4|ThreadFlag, owner, None, None)
	outsider := spawn(t, k, 4)

	runAs(t, k, outsider)
	if _, err := k.Send(Group(owner), []byte("to the group"), 0); err != ErrSuspended {
		t.Fatalf("expected send to the group to block; got %v", err)
	}

	runAs(t, k, thread)
	from, msg, err := k.Receive(Any, 0)
	if err != nil {
		t.Fatal(err)
	}
	if from != outsider || string(msg) != "to the group" {
		t.Fatalf("expected group message from %s; got %q from %s", outsider, msg, from)
	}

	t.Run("receive from a group", func(t *testing.T) {
		runAs(t, k, outsider)
		if _, _, err := k.Receive(Group(thread), 0); err != ErrSuspended {
			t.Fatalf("expected receive to block; got %v", err)
		}

		runAs(t, k, owner)
		to, err := k.Send(outsider, []byte("reply"), 0)
		if err != nil || to != outsider {
			t.Fatalf("expected group member reply to be delivered; got %s, %v", to, err)
		}
	})

	t.Run("sole member deadlocks", func(t *testing.T) {
		runAs(t, k, outsider)
		if _, err := k.Send(Group(outsider), nil, 0); err != ErrDeadlock {
			t.Fatalf("expected ErrDeadlock; got %v", err)
		}
	})
}

func TestMessageErrors(t *testing.T) {
	k, _ := newTestKernel(t)
	a := spawn(t, k, 4)
	b := spawn(t, k, 4)

	t.Run("idle cannot block", func(t *testing.T) {
		if _, err := k.Send(a, nil, 0); err != errIdleBlocks {
			t.Fatalf("expected errIdleBlocks; got %v", err)
		}
		if _, _, err := k.Receive(Any, 0); err != errIdleBlocks {
			t.Fatalf("expected errIdleBlocks; got %v", err)
		}
	})

	runAs(t, k, a)

	t.Run("self", func(t *testing.T) {
		if _, err := k.Send(a, nil, 0); err != ErrDeadlock {
			t.Fatalf("expected ErrDeadlock; got %v", err)
		}
		if _, _, err := k.Receive(a, 0); err != ErrDeadlock {
			t.Fatalf("expected ErrDeadlock; got %v", err)
		}
	})

	t.Run("message size", func(t *testing.T) {
		if _, err := k.Send(b, make([]byte, MessageSize+1), 0); err != ErrMessageSize {
			t.Fatalf("expected ErrMessageSize; got %v", err)
		}
	})

	t.Run("bad targets", func(t *testing.T) {
		if _, err := k.Send(Interrupt(5), nil, 0); err != ErrSendFailed {
			t.Fatalf("expected ErrSendFailed; got %v", err)
		}
		if _, err := k.Send(ID(6), nil, 0); err != ErrInvalidID {
			t.Fatalf("expected ErrInvalidID; got %v", err)
		}
		if _, _, err := k.Receive(Interrupt(5), 0); err != irq.ErrNotOwner {
			t.Fatalf("expected irq.ErrNotOwner; got %v", err)
		}
	})

	if k.Current() != a {
		t.Fatal("failed calls must not block the caller")
	}
	checkInvariants(t, k)
}

func TestSendTimeout(t *testing.T) {
	const timeout = 3

	k, _ := newTestKernel(t)
	a := spawn(t, k, 4)
	b := spawn(t, k, 4)

	runAs(t, k, a)
	if _, err := k.Send(b, []byte("late"), timeout); err != ErrSuspended {
		t.Fatalf("expected sender to block; got %v", err)
	}
	if k.ArmedTimers() != 1 {
		t.Fatalf("expected one armed timer; got %d", k.ArmedTimers())
	}

	bSlot := k.mustSlot(t, b)
	for i := 0; i < timeout-1; i++ {
		if err := k.Interrupt(irq.ClockLine); err != nil {
			t.Fatal(err)
		}
		if k.proc(t, a).Status() != StatusBlocked {
			t.Fatalf("sender woke up after %d ticks", i+1)
		}
	}

	if err := k.Interrupt(irq.ClockLine); err != nil {
		t.Fatal(err)
	}
	p := k.proc(t, a)
	if p.Status() != StatusReady || p.Reason() != ReasonSendTimeout {
		t.Fatalf("expected sender to be ready with reason %s; got %s/%s", ReasonSendTimeout, p.Status(), p.Reason())
	}
	if k.procs[bSlot].waiters != nilSlot {
		t.Fatal("expected sender to be removed from the target's wait queue")
	}
	if k.ArmedTimers() != 0 {
		t.Fatalf("expected no armed timers; got %d", k.ArmedTimers())
	}
	checkInvariants(t, k)

	runAs(t, k, a)
	if _, _, err := k.Resume(); err != ErrSendTimeout {
		t.Fatalf("expected ErrSendTimeout; got %v", err)
	}

	t.Run("receive timeout", func(t *testing.T) {
		if _, _, err := k.Receive(b, 1); err != ErrSuspended {
			t.Fatalf("expected receiver to block; got %v", err)
		}
		k.UpdateTimers()

		runAs(t, k, a)
		if _, _, err := k.Resume(); err != ErrReceiveTimeout {
			t.Fatalf("expected ErrReceiveTimeout; got %v", err)
		}
	})
}

func TestRemoveTargetWakesWaiters(t *testing.T) {
	k, _ := newTestKernel(t)
	a := spawn(t, k, 4)
	b := spawn(t, k, 4)
	c := spawn(t, k, 4)

	runAs(t, k, a)
	if _, err := k.Send(c, []byte("never"), 0); err != ErrSuspended {
		t.Fatal(err)
	}
	runAs(t, k, b)
	if _, _, err := k.Receive(c, 0); err != ErrSuspended {
		t.Fatal(err)
	}

	runAs(t, k, c)
	if err := k.RemoveProcess(None); err != nil {
		t.Fatal(err)
	}

	for _, id := range []ID{a, b} {
		if r := k.proc(t, id).Reason(); r != ReasonTargetRemoved {
			t.Fatalf("expected %s to be woken with %s; got %s", id, ReasonTargetRemoved, r)
		}
		runAs(t, k, id)
		if _, _, err := k.Resume(); err != ErrNoTarget {
			t.Fatalf("expected ErrNoTarget; got %v", err)
		}
	}
	checkInvariants(t, k)
}

func TestRemoveProcessMessages(t *testing.T) {
	k, _ := newTestKernel(t)
	a := spawn(t, k, 4)
	b := spawn(t, k, 4)

	runAs(t, k, a)
	if _, err := k.Send(b, nil, 5); err != ErrSuspended {
		t.Fatal(err)
	}

	if err := k.RemoveProcessMessages(b); err != nil {
		t.Fatal(err)
	}
	if r := k.proc(t, a).Reason(); r != ReasonTargetRemoved {
		t.Fatalf("expected %s; got %s", ReasonTargetRemoved, r)
	}
	if k.ArmedTimers() != 0 {
		t.Fatal("expected the waiter's timer to be disarmed")
	}
	if err := k.RemoveProcessMessages(Any); err != ErrInvalidID {
		t.Fatalf("expected ErrInvalidID; got %v", err)
	}
	checkInvariants(t, k)
}

func TestBlockedByPropertyIsNoPeer(t *testing.T) {
	k, _ := newTestKernel(t)
	a := spawn(t, k, 4)
	b := spawn(t, k, 4)
	c := spawn(t, k, 4)

	runAs(t, k, b)
	if _, _, err := k.Receive(a, 0); err != ErrSuspended {
		t.Fatal(err)
	}
	runAs(t, k, a)
	if _, err := k.Send(b, []byte("once"), 0); err != nil {
		t.Fatal(err)
	}

	specs := []struct {
		reason Reason
		call   func() *kernel.Error
	}{
		{
			ReasonSend,
			func() *kernel.Error {
				_, _, err := k.Receive(a, 0)
				return err
			},
		},
		{
			ReasonReceive,
			func() *kernel.Error {
				_, err := k.Send(a, []byte("twice"), 0)
				return err
			},
		},
		{
			ReasonException,
			func() *kernel.Error {
				_, err := k.Send(a, []byte("reply"), 0)
				return err
			},
		},
	}

	for specIndex, spec := range specs {
		runAs(t, k, c)
		if err := k.SetProcess(a, PropStatus, uint32(StatusReady)); err != nil {
			t.Fatalf("[spec %d] unexpected error: %v", specIndex, err)
		}
		if err := k.SetProcess(a, PropStatus, uint32(StatusBlocked)|uint32(spec.reason)<<8); err != nil {
			t.Fatalf("[spec %d] unexpected error: %v", specIndex, err)
		}

		if err := spec.call(); err != ErrSuspended {
			t.Errorf("[spec %d] expected a process blocked with %s not to rendezvous; got %v", specIndex, spec.reason, err)
		}
		if r := k.proc(t, a).Reason(); r != spec.reason {
			t.Errorf("[spec %d] expected reason %s to be kept; got %s", specIndex, spec.reason, r)
		}
		checkInvariants(t, k)

		// Release c from the wait queue of a for the next spec.
		if err := k.RemoveProcessMessages(a); err != nil {
			t.Fatal(err)
		}
	}
}

func TestImmediateCompletionLeavesNothingToResume(t *testing.T) {
	k, _ := newTestKernel(t)
	a := spawn(t, k, 4)
	b := spawn(t, k, 4)

	runAs(t, k, b)
	if _, _, err := k.Receive(a, 0); err != ErrSuspended {
		t.Fatal(err)
	}
	runAs(t, k, a)
	if _, err := k.Send(b, []byte("now"), 0); err != nil {
		t.Fatal(err)
	}
	if _, _, err := k.Resume(); err != errNothingToResume {
		t.Fatalf("expected errNothingToResume after an immediate send; got %v", err)
	}

	if _, err := k.Send(b, []byte("later"), 0); err != ErrSuspended {
		t.Fatal(err)
	}
	runAs(t, k, b)
	if _, _, err := k.Resume(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := k.Receive(a, 0); err != nil {
		t.Fatal(err)
	}
	if _, _, err := k.Resume(); err != errNothingToResume {
		t.Fatalf("expected errNothingToResume after an immediate receive; got %v", err)
	}

	t.Run("latched interrupt", func(t *testing.T) {
		if err := k.AddResource(irq.InterruptResource, 5, b); err != nil {
			t.Fatal(err)
		}
		if err := k.Interrupt(5); err != ErrNoHandler {
			t.Fatal(err)
		}
		if _, _, err := k.Receive(Interrupt(5), 0); err != nil {
			t.Fatal(err)
		}
		if _, _, err := k.Resume(); err != errNothingToResume {
			t.Fatalf("expected errNothingToResume after consuming a latched interrupt; got %v", err)
		}
	})
}
