package gate

import (
	"io"

	"ukernel/kernel/kfmt"
)

// Registers contains a snapshot of the register values of a process when it
// enters the kernel through a call gate.
type Registers struct {
	// EAX receives the signed 32-bit call result.
	EAX uint32

	// The five argument words.
	EBX uint32
	ECX uint32
	EDX uint32
	ESI uint32
	EDI uint32

	// Info contains the system call number.
	Info uint32
}

// Result returns EAX as a signed call result. Negative values are error
// codes.
func (r *Registers) Result() int32 {
	return int32(r.EAX)
}

// DumpTo outputs the register contents to w.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "EAX = %8x EBX = %8x\n", r.EAX, r.EBX)
	kfmt.Fprintf(w, "ECX = %8x EDX = %8x\n", r.ECX, r.EDX)
	kfmt.Fprintf(w, "ESI = %8x EDI = %8x\n", r.ESI, r.EDI)
	kfmt.Fprintf(w, "INF = %8x\n", r.Info)
}
