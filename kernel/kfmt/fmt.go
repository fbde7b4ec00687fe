// Package kfmt implements the kernel log. Output is sent to a pluggable sink;
// a copy of the most recent output is always retained in a ring buffer so it
// can be replayed when a sink is attached or dumped on demand.
package kfmt

import (
	"fmt"
	"io"
)

var (
	// logBuffer retains the tail of everything written through Printf.
	logBuffer ringBuffer

	// outputSink is a io.Writer where Printf will send its output. If set
	// to nil, output is only retained by logBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the log buffer to it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		logBuffer.WriteTo(w)
	}
}

// GetOutputSink returns the default target for calls to Printf.
func GetOutputSink() io.Writer {
	return outputSink
}

// Printf formats according to format and writes the result to the active
// output sink and to the log buffer.
func Printf(format string, args ...interface{}) {
	Fprintf(logWriter{}, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer. A nil writer discards the output.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, format, args...)
}

// Tail copies the retained log output to w without consuming it.
func Tail(w io.Writer) {
	logBuffer.WriteTo(w)
}

// logWriter tees writes into the log buffer and the output sink.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	logBuffer.Write(p)
	if outputSink != nil {
		return outputSink.Write(p)
	}
	return len(p), nil
}
