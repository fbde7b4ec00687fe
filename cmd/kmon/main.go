// Command kmon boots the kernel on the software machine and drives it from
// the terminal, one key press per event.
package main

import (
	"bytes"
	"flag"
	"io"
	"io/ioutil"
	"os"

	"ukernel/kernel"
	"ukernel/kernel/bootparam"
	"ukernel/kernel/hal"
	"ukernel/kernel/kfmt"
	"ukernel/kernel/mm"
	"ukernel/kernel/proc"

	tty "github.com/mattn/go-tty"
)

var (
	paramsFlag = flag.String("params", "", "boot parameter block to load instead of the defaults")
	memFlag    = flag.Uint("mem", 4, "emulated physical memory in MiB")
	logFlag    = flag.String("log", "", "write the kernel log to this file instead of the terminal")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		kfmt.Fprintf(os.Stderr, "kmon: %s\n", err.Error())
		os.Exit(1)
	}
}

func run() error {
	params := bootparam.Default()
	if *paramsFlag != "" {
		block, err := ioutil.ReadFile(*paramsFlag)
		if err != nil {
			return err
		}
		var kerr *kernel.Error
		if params, kerr = bootparam.Parse(block); kerr != nil {
			return kerr
		}
	}

	term, err := tty.Open()
	if err != nil {
		return err
	}
	defer term.Close()

	restore, err := term.Raw()
	if err != nil {
		return err
	}
	defer restore()

	out := crlfWriter{term.Output()}
	if *logFlag != "" {
		f, err := os.Create(*logFlag)
		if err != nil {
			return err
		}
		defer f.Close()
		kfmt.SetOutputSink(f)
	} else {
		kfmt.SetOutputSink(out)
	}

	k, kerr := proc.New(params, hal.NewEmulator(uint32(*memFlag)<<20&^(mm.PageSize-1)))
	if kerr != nil {
		return kerr
	}
	m, kerr := newMonitor(k, out)
	if kerr != nil {
		return kerr
	}

	m.help()
	for {
		key, err := term.ReadRune()
		if err != nil {
			return err
		}
		if !m.handle(key) {
			return nil
		}
	}
}

// crlfWriter expands line feeds for a terminal in raw mode.
type crlfWriter struct {
	w io.Writer
}

func (c crlfWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(bytes.Replace(p, []byte("\n"), []byte("\r\n"), -1)); err != nil {
		return 0, err
	}
	return len(p), nil
}
