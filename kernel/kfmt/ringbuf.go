package kfmt

import "io"

// ringBufferSize defines the number of log bytes retained by the kernel.
// It must always be a power of 2.
const ringBufferSize = 2048

// ringBuffer keeps the most recent ringBufferSize bytes written to it. Older
// bytes are silently overwritten.
type ringBuffer struct {
	buffer [ringBufferSize]byte
	wIndex int
	full   bool
}

// Write writes len(p) bytes from p to the ringBuffer.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & (ringBufferSize - 1)
		if rb.wIndex == 0 {
			rb.full = true
		}
	}

	return len(p), nil
}

// Len returns the number of retained bytes.
func (rb *ringBuffer) Len() int {
	if rb.full {
		return ringBufferSize
	}
	return rb.wIndex
}

// WriteTo writes the retained bytes, oldest first, to w. The buffer contents
// are left untouched.
func (rb *ringBuffer) WriteTo(w io.Writer) (int64, error) {
	var total int64
	if rb.full {
		n, err := w.Write(rb.buffer[rb.wIndex:])
		total += int64(n)
		if err != nil {
			return total, err
		}
	}

	n, err := w.Write(rb.buffer[:rb.wIndex])
	total += int64(n)
	return total, err
}

// Reset discards all retained bytes.
func (rb *ringBuffer) Reset() {
	rb.wIndex = 0
	rb.full = false
}
