package kfmt

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestPrefixWriter(t *testing.T) {
	specs := []struct {
		input []string
		exp   string
	}{
		{
			[]string{""},
			"",
		},
		{
			[]string{"\n"},
			"[vmm] \n",
		},
		{
			[]string{"no line break anywhere"},
			"[vmm] no line break anywhere",
		},
		{
			[]string{"line feed at the end\n"},
			"[vmm] line feed at the end\n",
		},
		{
			[]string{"\nfree pages\nkernel: 12\nuser: 240"},
			"[vmm] \n[vmm] free pages\n[vmm] kernel: 12\n[vmm] user: 240",
		},
		{
			[]string{"split ", "across writes\n", "next"},
			"[vmm] split across writes\n[vmm] next",
		},
	}

	var buf bytes.Buffer

	for specIndex, spec := range specs {
		buf.Reset()
		w := PrefixWriter{Sink: &buf, Prefix: []byte("[vmm] ")}

		for _, input := range spec.input {
			wrote, err := w.Write([]byte(input))
			if err != nil {
				t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
			}

			if expLen := len(input); expLen != wrote {
				t.Errorf("[spec %d] expected writer to write %d bytes; wrote %d", specIndex, expLen, wrote)
			}
		}

		if got := buf.String(); got != spec.exp {
			t.Errorf("[spec %d] expected output:\n%q\ngot:\n%q", specIndex, spec.exp, got)
		}
	}
}

func TestPrefixWriterErrors(t *testing.T) {
	specs := []string{
		"no line break anywhere",
		"\nthe big brown\nfog jumped\nover the lazy\ndog",
	}

	var (
		expErr = errors.New("write failed")
		w      = PrefixWriter{
			Sink:   writerThatAlwaysErrors{expErr},
			Prefix: []byte("prefix: "),
		}
	)

	for specIndex, spec := range specs {
		w.bytesAfterPrefix = 0
		_, err := w.Write([]byte(spec))
		if err != expErr {
			t.Errorf("[spec %d] expected error: %v; got %v", specIndex, expErr, err)
		}
	}
}

func TestModuleLogger(t *testing.T) {
	defer func(origSink io.Writer) {
		outputSink = origSink
		logBuffer.Reset()
	}(outputSink)

	var buf bytes.Buffer
	logBuffer.Reset()
	SetOutputSink(&buf)

	Fprintf(ModuleLogger("irq"), "line 5 latched\n")

	if exp, got := "[irq] line 5 latched\n", buf.String(); got != exp {
		t.Fatalf("expected %q; got %q", exp, got)
	}
}

type writerThatAlwaysErrors struct {
	err error
}

func (w writerThatAlwaysErrors) Write(_ []byte) (int, error) {
	return 0, w.err
}
