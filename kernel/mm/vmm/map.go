package vmm

import (
	"ukernel/kernel"
	"ukernel/kernel/mm"
	"ukernel/kernel/mm/pmm"
)

// AddPage allocates a zeroed page from the pool of space, installs it at
// virtAddr and links it on the space's owned-page chain.
func (m *Manager) AddPage(id int, virtAddr uint32, perm mm.Perm) (mm.Frame, *kernel.Error) {
	sp, err := m.space(id)
	if err != nil {
		return mm.InvalidFrame, err
	}
	if err = checkRange(id, virtAddr); err != nil {
		return mm.InvalidFrame, err
	}

	page := mm.PageFromAddress(virtAddr)
	if _, _, mapped := m.machine.Lookup(id, page); mapped {
		return mm.InvalidFrame, ErrAlreadyMapped
	}

	frame, err := m.frames.Alloc(poolFor(id))
	if err != nil {
		return mm.InvalidFrame, err
	}

	if err = m.machine.MapPage(id, page, frame, installPerm(id, perm)); err != nil {
		_ = m.frames.Free(frame)
		return mm.InvalidFrame, err
	}

	m.machine.ZeroFrame(frame)
	m.frames.Push(&sp.owned, frame, id, page)
	sp.size++
	return frame, nil
}

// MapPage shares the page installed at srcAddr in space src into space dst
// at dstAddr without transferring ownership. The installed permissions are
// the intersection of perm and the source permissions.
func (m *Manager) MapPage(src int, srcAddr uint32, dst int, dstAddr uint32, perm mm.Perm) *kernel.Error {
	if _, err := m.space(src); err != nil {
		return err
	}
	dstSpace, err := m.space(dst)
	if err != nil {
		return err
	}
	if err = checkRange(dst, dstAddr); err != nil {
		return err
	}

	frame, srcPerm, mapped := m.machine.Lookup(src, mm.PageFromAddress(srcAddr))
	if !mapped {
		return ErrNotMapped
	}

	dstPage := mm.PageFromAddress(dstAddr)
	if _, _, mapped = m.machine.Lookup(dst, dstPage); mapped {
		return ErrAlreadyMapped
	}

	idx := m.registry.alloc()
	if idx == pmm.NoMapping {
		return ErrNoFreeMap
	}

	if err = m.machine.MapPage(dst, dstPage, frame, installPerm(dst, perm&srcPerm)); err != nil {
		m.registry.release(idx)
		return err
	}

	rec := &m.registry.records[idx]
	rec.space = dst
	rec.page = dstPage
	rec.frame = frame
	rec.nextInSpace = dstSpace.maps
	dstSpace.maps = idx
	rec.nextInFrame = m.frames.MapHead(frame)
	m.frames.SetMapHead(frame, idx)
	return nil
}

// GrantPage transfers ownership of the page installed at srcAddr in space
// src to space dst at dstAddr. The source must own the page unless
// privileged is set, in which case the page is taken from its actual owner.
// Shared mappings of the page stay valid.
func (m *Manager) GrantPage(src int, srcAddr uint32, dst int, dstAddr uint32, perm mm.Perm, privileged bool) *kernel.Error {
	if _, err := m.space(src); err != nil {
		return err
	}
	dstSpace, err := m.space(dst)
	if err != nil {
		return err
	}
	if err = checkRange(dst, dstAddr); err != nil {
		return err
	}

	srcPage := mm.PageFromAddress(srcAddr)
	frame, srcPerm, mapped := m.machine.Lookup(src, srcPage)
	if !mapped {
		return ErrNotMapped
	}

	owner, ownerPage := m.frames.Owner(frame)
	if owner == pmm.NoOwner || (!privileged && (owner != src || ownerPage != srcPage)) {
		return ErrNotOwner
	}

	dstPage := mm.PageFromAddress(dstAddr)
	if _, _, mapped = m.machine.Lookup(dst, dstPage); mapped {
		return ErrAlreadyMapped
	}

	if err = m.machine.MapPage(dst, dstPage, frame, installPerm(dst, perm&srcPerm)); err != nil {
		return err
	}
	_ = m.machine.UnmapPage(owner, ownerPage)

	ownerSpace := &m.spaces[owner]
	m.frames.Remove(&ownerSpace.owned, frame)
	ownerSpace.size--

	m.frames.Push(&dstSpace.owned, frame, dst, dstPage)
	dstSpace.size++
	return nil
}

// UnmapPage removes the page installed at virtAddr from space. Owned pages
// return to the free list after every shared mapping of them is removed;
// shared pages only release their page-map record.
func (m *Manager) UnmapPage(id int, virtAddr uint32) *kernel.Error {
	sp, err := m.space(id)
	if err != nil {
		return err
	}

	page := mm.PageFromAddress(virtAddr)
	frame, _, mapped := m.machine.Lookup(id, page)
	if !mapped {
		return ErrNotMapped
	}

	if owner, ownerPage := m.frames.Owner(frame); owner == id && ownerPage == page {
		_ = m.machine.UnmapPage(id, page)
		m.frames.Remove(&sp.owned, frame)
		sp.size--
		m.RemoveMappings(frame)
		return m.frames.Free(frame)
	}

	idx := m.registry.find(sp.maps, page)
	if idx == pmm.NoMapping {
		return ErrNotMapped
	}

	_ = m.machine.UnmapPage(id, page)
	m.registry.unlinkFromSpace(&sp.maps, idx)
	m.unlinkFromFrame(idx)
	m.registry.release(idx)
	return nil
}

// RemoveMappings uninstalls and releases every page-map record that points
// at frame.
func (m *Manager) RemoveMappings(frame mm.Frame) {
	for idx := m.frames.MapHead(frame); idx != pmm.NoMapping; {
		rec := &m.registry.records[idx]
		next := rec.nextInFrame

		_ = m.machine.UnmapPage(rec.space, rec.page)
		m.registry.unlinkFromSpace(&m.spaces[rec.space].maps, idx)
		m.registry.release(idx)

		idx = next
	}
	m.frames.SetMapHead(frame, pmm.NoMapping)
}

// RemoveMemory releases every page owned by space, cascading the removal of
// their shared mappings, and then every page-map record held by space.
func (m *Manager) RemoveMemory(id int) {
	sp, err := m.space(id)
	if err != nil {
		return
	}

	m.frames.Walk(sp.owned, func(frame mm.Frame) bool {
		_, page := m.frames.Owner(frame)
		_ = m.machine.UnmapPage(id, page)
		m.frames.Remove(&sp.owned, frame)
		m.RemoveMappings(frame)
		_ = m.frames.Free(frame)
		return true
	})
	sp.size = 0

	for idx := sp.maps; idx != pmm.NoMapping; {
		rec := &m.registry.records[idx]
		next := rec.nextInSpace

		_ = m.machine.UnmapPage(id, rec.page)
		m.unlinkFromFrame(idx)
		m.registry.release(idx)

		idx = next
	}
	sp.maps = pmm.NoMapping
}

// unlinkFromFrame removes idx from the mapping list of the frame it points
// at.
func (m *Manager) unlinkFromFrame(idx int32) {
	frame := m.registry.records[idx].frame
	head := m.frames.MapHead(frame)

	if head == idx {
		m.frames.SetMapHead(frame, m.registry.records[idx].nextInFrame)
		return
	}

	for cur := head; cur != pmm.NoMapping; cur = m.registry.records[cur].nextInFrame {
		if next := m.registry.records[cur].nextInFrame; next == idx {
			m.registry.records[cur].nextInFrame = m.registry.records[idx].nextInFrame
			return
		}
	}
}
