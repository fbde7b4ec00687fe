package main

import (
	"bytes"
	"strings"
	"testing"

	"ukernel/kernel/bootparam"
	"ukernel/kernel/hal"
	"ukernel/kernel/mm"
	"ukernel/kernel/proc"
)

func newTestMonitor(t *testing.T) (*monitor, *bytes.Buffer) {
	t.Helper()

	params := bootparam.Default()
	params.MaxProcesses = 8
	params.KernelPages = 32
	params.PageMaps = 16

	k, err := proc.New(params, hal.NewEmulator(128*mm.PageSize))
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	m, err := newMonitor(k, &buf)
	if err != nil {
		t.Fatal(err)
	}
	return m, &buf
}

func TestMonitorWorkload(t *testing.T) {
	m, buf := newTestMonitor(t)

	// The driver blocks on its line, the client blocks sending to the
	// server and the server then takes the message without blocking.
	for i := 0; i < 3; i++ {
		if !m.handle('s') {
			t.Fatal("expected the monitor to keep running")
		}
	}

	out := buf.String()
	for _, exp := range []string{
		"driver: receive suspended",
		"client: send suspended",
		`server: receive returned`,
		`"ping1"`,
	} {
		if !strings.Contains(out, exp) {
			t.Errorf("expected output to contain %q; got:\n%s", exp, out)
		}
	}

	t.Run("device interrupt", func(t *testing.T) {
		buf.Reset()
		m.handle('k')
		for i := 0; i < 4 && !strings.Contains(buf.String(), "driver: receive resumed"); i++ {
			m.handle('s')
		}
		if !strings.Contains(buf.String(), "driver: receive resumed irq(5)") {
			t.Fatalf("expected the driver to receive the interrupt; got:\n%s", buf.String())
		}
	})

	t.Run("server gets the message", func(t *testing.T) {
		buf.Reset()
		for i := 0; i < 4 && !strings.Contains(buf.String(), "server: receive resumed"); i++ {
			m.handle('s')
		}
		if !strings.Contains(buf.String(), `"ping2"`) {
			t.Fatalf("expected the server to receive the second ping; got:\n%s", buf.String())
		}
	})
}

func TestMonitorCommands(t *testing.T) {
	m, buf := newTestMonitor(t)

	specs := []struct {
		key  rune
		exp  string
		cont bool
	}{
		{'p', "STATUS", true},
		{'p', "client", true},
		{'m', "page maps:", true},
		{'t', "", true},
		{'?', "q quit", true},
		{'q', "", false},
	}

	for specIndex, spec := range specs {
		buf.Reset()
		if got := m.handle(spec.key); got != spec.cont {
			t.Errorf("[spec %d] expected handle(%q) to return %t; got %t", specIndex, spec.key, spec.cont, got)
		}
		if !strings.Contains(buf.String(), spec.exp) {
			t.Errorf("[spec %d] expected output to contain %q; got:\n%s", specIndex, spec.exp, buf.String())
		}
	}

	if m.k.Ticks() != 1 {
		t.Fatalf("expected one clock tick; got %d", m.k.Ticks())
	}
}

func TestCRLFWriter(t *testing.T) {
	var buf bytes.Buffer
	w := crlfWriter{&buf}

	n, err := w.Write([]byte("a\nb\n"))
	if err != nil || n != 4 {
		t.Fatalf("expected 4 bytes to be written; got %d, %v", n, err)
	}
	if exp := "a\r\nb\r\n"; buf.String() != exp {
		t.Fatalf("expected %q; got %q", exp, buf.String())
	}
}
