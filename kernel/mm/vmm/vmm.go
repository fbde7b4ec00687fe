// Package vmm manages per-process address spaces on top of the physical page
// allocator. Every page installed in a space is either owned by it (linked on
// the space's owned-page chain) or shared into it through a page-map record.
package vmm

import (
	"ukernel/kernel"
	"ukernel/kernel/hal"
	"ukernel/kernel/mm"
	"ukernel/kernel/mm/pmm"
)

// KernelSpace is the address space shared by the kernel and the idle
// process. Its pages come from the kernel pool.
const KernelSpace = 0

var (
	// ErrOutOfRange is returned for virtual addresses outside the region
	// a space may map.
	ErrOutOfRange = &kernel.Error{Module: "vmm", Message: "address out of range", Code: kernel.CodeOutOfRange}

	// ErrAlreadyMapped is returned when the target address is in use.
	ErrAlreadyMapped = &kernel.Error{Module: "vmm", Message: "address already mapped", Code: kernel.CodeAlreadyMapped}

	// ErrNotMapped is returned when the address has no mapping.
	ErrNotMapped = &kernel.Error{Module: "vmm", Message: "address not mapped", Code: kernel.CodeNotMapped}

	// ErrNoFreeMap is returned when every page-map record is in use.
	ErrNoFreeMap = &kernel.Error{Module: "vmm", Message: "no free page-map records", Code: kernel.CodeNoFreeMap}

	// ErrNotOwner is returned when granting a page the source does not own.
	ErrNotOwner = &kernel.Error{Module: "vmm", Message: "page not owned by source", Code: kernel.CodeNotOwner}

	// ErrInvalidPointer is returned when a user buffer is not accessible.
	ErrInvalidPointer = &kernel.Error{Module: "vmm", Message: "invalid user buffer", Code: kernel.CodeInvalidPointer}

	// ErrNoSpace is returned for spaces that were never created.
	ErrNoSpace = &kernel.Error{Module: "vmm", Message: "no such address space", Code: kernel.CodeInvalidID}

	errSpaceExists = &kernel.Error{Module: "vmm", Message: "address space already exists", Code: kernel.CodeInvalidID}
)

// space is the memory bookkeeping of one address space.
type space struct {
	live bool

	// owned is the head of the owned-page chain.
	owned mm.Frame

	// tables is the chain of kernel frames backing the page directory.
	tables mm.Frame

	// maps is the head of the list of page-map records installed in
	// this space.
	maps int32

	// size is the number of owned pages.
	size uint32
}

// Stats reports free-resource counters.
type Stats struct {
	FreeKernelPages uint32
	FreeUserPages   uint32
	FreeMaps        uint32
	TotalMaps       uint32
}

// Manager implements page-granular virtual memory management for a fixed
// number of address spaces.
type Manager struct {
	machine    hal.Machine
	frames     *pmm.Allocator
	spaces     []space
	registry   registry
	tableBlock int
}

// NewManager returns a manager for spaceCount address spaces sharing
// mapRecords page-map records. Each space reserves tableBlock kernel pages
// for its page directory.
func NewManager(machine hal.Machine, frames *pmm.Allocator, spaceCount, mapRecords, tableBlock int) *Manager {
	m := &Manager{
		machine:    machine,
		frames:     frames,
		spaces:     make([]space, spaceCount),
		tableBlock: tableBlock,
	}
	m.registry.init(mapRecords)
	return m
}

// Frames returns the physical page allocator backing the manager.
func (m *Manager) Frames() *pmm.Allocator {
	return m.frames
}

// CreateSpace reserves the page-table block for space and installs an empty
// page directory in the hardware mechanism. Partial allocations are released
// on failure.
func (m *Manager) CreateSpace(id int) *kernel.Error {
	if id < 0 || id >= len(m.spaces) {
		return ErrNoSpace
	}
	sp := &m.spaces[id]
	if sp.live {
		return errSpaceExists
	}

	*sp = space{owned: mm.InvalidFrame, tables: mm.InvalidFrame, maps: pmm.NoMapping}

	tables := make([]mm.Frame, 0, m.tableBlock)
	for i := 0; i < m.tableBlock; i++ {
		frame, err := m.frames.Alloc(pmm.KernelPool)
		if err != nil {
			m.releaseTables(sp)
			return err
		}
		m.frames.Push(&sp.tables, frame, KernelSpace, 0)
		tables = append(tables, frame)
	}

	if err := m.machine.NewSpace(id, tables); err != nil {
		m.releaseTables(sp)
		return err
	}

	sp.live = true
	return nil
}

// DestroySpace releases every page owned or mapped by space, the page
// directory and its page-table block.
func (m *Manager) DestroySpace(id int) {
	sp, err := m.space(id)
	if err != nil {
		return
	}

	m.RemoveMemory(id)
	m.machine.DestroySpace(id)
	m.releaseTables(sp)
	sp.live = false
}

// Size returns the number of pages owned by space.
func (m *Manager) Size(id int) uint32 {
	if sp, err := m.space(id); err == nil {
		return sp.size
	}
	return 0
}

// Stats returns the current free-resource counters.
func (m *Manager) Stats() Stats {
	return Stats{
		FreeKernelPages: m.frames.FreeCount(pmm.KernelPool),
		FreeUserPages:   m.frames.FreeCount(pmm.UserPool),
		FreeMaps:        m.registry.free,
		TotalMaps:       uint32(len(m.registry.records)),
	}
}

// OwnedPages returns the virtual pages owned by space, most recently added
// first.
func (m *Manager) OwnedPages(id int) []mm.Page {
	sp, err := m.space(id)
	if err != nil {
		return nil
	}

	var pages []mm.Page
	m.frames.Walk(sp.owned, func(frame mm.Frame) bool {
		_, page := m.frames.Owner(frame)
		pages = append(pages, page)
		return true
	})
	return pages
}

// SharedPages returns the virtual pages mapped into space through page-map
// records.
func (m *Manager) SharedPages(id int) []mm.Page {
	sp, err := m.space(id)
	if err != nil {
		return nil
	}

	var pages []mm.Page
	for idx := sp.maps; idx != pmm.NoMapping; idx = m.registry.records[idx].nextInSpace {
		pages = append(pages, m.registry.records[idx].page)
	}
	return pages
}

func (m *Manager) space(id int) (*space, *kernel.Error) {
	if id < 0 || id >= len(m.spaces) || !m.spaces[id].live {
		return nil, ErrNoSpace
	}
	return &m.spaces[id], nil
}

func (m *Manager) releaseTables(sp *space) {
	m.frames.Walk(sp.tables, func(frame mm.Frame) bool {
		m.frames.Remove(&sp.tables, frame)
		_ = m.frames.Free(frame)
		return true
	})
}

// checkRange validates virtAddr against the region space may map.
func checkRange(id int, virtAddr uint32) *kernel.Error {
	if id == KernelSpace {
		if !mm.InKernelRange(virtAddr) {
			return ErrOutOfRange
		}
		return nil
	}

	if !mm.InUserRange(virtAddr) {
		return ErrOutOfRange
	}
	return nil
}

// poolFor returns the pool new pages of space are drawn from.
func poolFor(id int) pmm.Pool {
	if id == KernelSpace {
		return pmm.KernelPool
	}
	return pmm.UserPool
}

// installPerm returns the permission bits installed for a page of space.
func installPerm(id int, perm mm.Perm) mm.Perm {
	perm = (perm & mm.PermMask) | mm.PermPresent
	if id != KernelSpace {
		perm |= mm.PermUser
	}
	return perm
}
