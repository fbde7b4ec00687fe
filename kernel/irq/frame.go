package irq

import (
	"encoding/binary"
	"io"

	"ukernel/kernel"
	"ukernel/kernel/kfmt"
)

// FrameSize is the encoded size of an exception Frame.
const FrameSize = 32

var errShortFrame = &kernel.Error{Module: "irq", Message: "exception frame too short", Code: kernel.CodeInvalidParam}

// Frame describes the state of a process when it raised an exception. It is
// delivered to the registered exception handler as the message body.
type Frame struct {
	Exception ExceptionNum

	// ErrorCode is the code pushed by the CPU for exceptions that push
	// one and 0 otherwise.
	ErrorCode uint32

	// FaultAddr is the faulting linear address for page faults.
	FaultAddr uint32

	EIP    uint32
	CS     uint32
	EFlags uint32
	ESP    uint32
	SS     uint32
}

// MarshalBinary encodes f in little-endian order.
func (f *Frame) MarshalBinary() ([]byte, error) {
	return f.Encode(), nil
}

// Encode returns the FrameSize-byte little-endian encoding of f.
func (f *Frame) Encode() []byte {
	buf := make([]byte, FrameSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], uint32(f.Exception))
	le.PutUint32(buf[4:], f.ErrorCode)
	le.PutUint32(buf[8:], f.FaultAddr)
	le.PutUint32(buf[12:], f.EIP)
	le.PutUint32(buf[16:], f.CS)
	le.PutUint32(buf[20:], f.EFlags)
	le.PutUint32(buf[24:], f.ESP)
	le.PutUint32(buf[28:], f.SS)
	return buf
}

// DecodeFrame decodes an exception frame received as a message.
func DecodeFrame(buf []byte) (Frame, *kernel.Error) {
	if len(buf) < FrameSize {
		return Frame{}, errShortFrame
	}

	le := binary.LittleEndian
	return Frame{
		Exception: ExceptionNum(le.Uint32(buf[0:])),
		ErrorCode: le.Uint32(buf[4:]),
		FaultAddr: le.Uint32(buf[8:]),
		EIP:       le.Uint32(buf[12:]),
		CS:        le.Uint32(buf[16:]),
		EFlags:    le.Uint32(buf[20:]),
		ESP:       le.Uint32(buf[24:]),
		SS:        le.Uint32(buf[28:]),
	}, nil
}

// DumpTo outputs the frame contents to w.
func (f *Frame) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "EXC = %8d ERR = %8x\n", f.Exception, f.ErrorCode)
	kfmt.Fprintf(w, "CR2 = %8x\n", f.FaultAddr)
	kfmt.Fprintf(w, "EIP = %8x CS  = %8x\n", f.EIP, f.CS)
	kfmt.Fprintf(w, "ESP = %8x SS  = %8x\n", f.ESP, f.SS)
	kfmt.Fprintf(w, "EFL = %8x\n", f.EFlags)
}
