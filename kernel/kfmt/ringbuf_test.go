package kfmt

import (
	"bytes"
	"strings"
	"testing"
)

func TestRingBuffer(t *testing.T) {
	var (
		buf    bytes.Buffer
		expStr = "the big brown fox jumped over the lazy dog"
		rb     ringBuffer
	)

	t.Run("write and replay", func(t *testing.T) {
		rb.Reset()
		buf.Reset()
		n, err := rb.Write([]byte(expStr))
		if err != nil {
			t.Fatal(err)
		}

		if n != len(expStr) {
			t.Fatalf("expected to write %d bytes; wrote %d", len(expStr), n)
		}

		if _, err = rb.WriteTo(&buf); err != nil {
			t.Fatal(err)
		}

		if got := buf.String(); got != expStr {
			t.Fatalf("expected to read %q; got %q", expStr, got)
		}

		if exp, got := len(expStr), rb.Len(); got != exp {
			t.Fatalf("expected Len() to return %d; got %d", exp, got)
		}
	})

	t.Run("replay does not consume", func(t *testing.T) {
		buf.Reset()
		rb.WriteTo(&buf)
		if got := buf.String(); got != expStr {
			t.Fatalf("expected to read %q; got %q", expStr, got)
		}
	})

	t.Run("wrap around keeps the tail", func(t *testing.T) {
		rb.Reset()
		buf.Reset()

		rb.Write([]byte(strings.Repeat("x", ringBufferSize-2)))
		rb.Write([]byte(expStr))

		if exp, got := ringBufferSize, rb.Len(); got != exp {
			t.Fatalf("expected Len() to return %d; got %d", exp, got)
		}

		rb.WriteTo(&buf)
		got := buf.String()
		if len(got) != ringBufferSize {
			t.Fatalf("expected to read %d bytes; got %d", ringBufferSize, len(got))
		}

		if !strings.HasSuffix(got, expStr) {
			t.Fatalf("expected replay to end with %q; got %q", expStr, got[len(got)-len(expStr):])
		}
	})
}
