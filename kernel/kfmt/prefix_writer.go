package kfmt

import "io"

// PrefixWriter is an io.Writer that wraps another io.Writer and injects a
// prefix at the beginning of each line. The kernel modules use it to tag
// their log output (e.g. "[vmm] ").
type PrefixWriter struct {
	// A writer where all writes get sent to. If nil, the kernel log is used.
	Sink io.Writer

	// The prefix injected at the beginning of each line.
	Prefix []byte

	bytesAfterPrefix int
}

// Write writes len(p) bytes from p to the underlying data stream and returns
// back the number of bytes written. The injected prefix is not included in
// the number of written bytes returned by this method.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var (
		sink                 = w.sink()
		written              int
		startIndex, curIndex int
	)

	for ; curIndex < len(p); curIndex++ {
		if p[curIndex] != '\n' {
			continue
		}

		if w.bytesAfterPrefix == 0 {
			sink.Write(w.Prefix)
		}
		n, err := sink.Write(p[startIndex : curIndex+1])
		written += n
		if err != nil {
			return written, err
		}
		w.bytesAfterPrefix = 0
		startIndex = curIndex + 1
	}

	if startIndex < curIndex {
		if w.bytesAfterPrefix == 0 {
			sink.Write(w.Prefix)
		}
		n, err := sink.Write(p[startIndex:curIndex])
		written += n
		w.bytesAfterPrefix += n
		if err != nil {
			return written, err
		}
	}

	return written, nil
}

func (w *PrefixWriter) sink() io.Writer {
	if w.Sink != nil {
		return w.Sink
	}
	return logWriter{}
}

// ModuleLogger returns a PrefixWriter that tags every line written through it
// with "[module] " and forwards it to the kernel log.
func ModuleLogger(module string) *PrefixWriter {
	return &PrefixWriter{Prefix: []byte("[" + module + "] ")}
}
