package vmm

import (
	"ukernel/kernel"
	"ukernel/kernel/mm"
)

// Translate returns the physical address virtAddr maps to in space together
// with the installed permissions.
func (m *Manager) Translate(id int, virtAddr uint32) (uint32, mm.Perm, *kernel.Error) {
	if _, err := m.space(id); err != nil {
		return 0, 0, err
	}

	frame, perm, mapped := m.machine.Lookup(id, mm.PageFromAddress(virtAddr))
	if !mapped {
		return 0, 0, ErrNotMapped
	}

	return frame.Address() + mm.PageOffset(virtAddr), perm, nil
}

// CopyIn reads size bytes starting at virtAddr in space. Every touched page
// must be mapped and, for user spaces, user accessible.
func (m *Manager) CopyIn(id int, virtAddr, size uint32) ([]byte, *kernel.Error) {
	out := make([]byte, size)
	err := m.walkBuffer(id, virtAddr, size, false, func(frame mm.Frame, offset uint32, chunk []byte) {
		m.machine.ReadFrame(frame, offset, chunk)
	}, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CopyOut writes data starting at virtAddr in space. Every touched page must
// be mapped writable and, for user spaces, user accessible.
func (m *Manager) CopyOut(id int, virtAddr uint32, data []byte) *kernel.Error {
	return m.walkBuffer(id, virtAddr, uint32(len(data)), true, func(frame mm.Frame, offset uint32, chunk []byte) {
		m.machine.WriteFrame(frame, offset, chunk)
	}, data)
}

// walkBuffer validates every page of [virtAddr, virtAddr+size) before
// invoking fn on the page-sized pieces of buf.
func (m *Manager) walkBuffer(id int, virtAddr, size uint32, write bool, fn func(mm.Frame, uint32, []byte), buf []byte) *kernel.Error {
	if _, err := m.space(id); err != nil {
		return err
	}
	if size == 0 {
		return nil
	}
	if uint64(virtAddr)+uint64(size) > 1<<32 {
		return ErrInvalidPointer
	}

	required := mm.PermPresent
	if id != KernelSpace {
		required |= mm.PermUser
		if !mm.InUserRange(virtAddr) || !mm.InUserRange(virtAddr+size-1) {
			return ErrInvalidPointer
		}
	}
	if write {
		required |= mm.PermWrite
	}

	first := mm.PageFromAddress(virtAddr)
	last := mm.PageFromAddress(virtAddr + size - 1)
	frames := make([]mm.Frame, 0, last-first+1)
	for page := first; page <= last; page++ {
		frame, perm, mapped := m.machine.Lookup(id, page)
		if !mapped || !perm.Has(required) {
			return ErrInvalidPointer
		}
		frames = append(frames, frame)
	}

	offset := mm.PageOffset(virtAddr)
	for _, frame := range frames {
		n := mm.PageSize - offset
		if n > uint32(len(buf)) {
			n = uint32(len(buf))
		}
		fn(frame, offset, buf[:n])
		buf = buf[n:]
		offset = 0
	}
	return nil
}
