package vmm

import (
	"ukernel/kernel/mm"
	"ukernel/kernel/mm/pmm"
)

// mapRecord is one shared (non-owned) page mapping. It is linked on the
// page-map list of the space it is installed in and on the list of every
// mapping of the physical frame it points at.
type mapRecord struct {
	space int
	page  mm.Page
	frame mm.Frame
	inUse bool

	// nextInSpace doubles as the free-list link of unused records.
	nextInSpace int32
	nextInFrame int32
}

// registry is the fixed pool of page-map records.
type registry struct {
	records  []mapRecord
	freeHead int32
	free     uint32
}

func (r *registry) init(count int) {
	r.records = make([]mapRecord, count)
	r.freeHead = pmm.NoMapping
	for idx := count - 1; idx >= 0; idx-- {
		r.records[idx] = mapRecord{nextInSpace: r.freeHead, nextInFrame: pmm.NoMapping}
		r.freeHead = int32(idx)
	}
	r.free = uint32(count)
}

// alloc pops a record from the free list or returns pmm.NoMapping.
func (r *registry) alloc() int32 {
	idx := r.freeHead
	if idx == pmm.NoMapping {
		return idx
	}

	rec := &r.records[idx]
	r.freeHead = rec.nextInSpace
	r.free--
	*rec = mapRecord{inUse: true, nextInSpace: pmm.NoMapping, nextInFrame: pmm.NoMapping}
	return idx
}

// release pushes a detached record back on the free list.
func (r *registry) release(idx int32) {
	r.records[idx] = mapRecord{nextInSpace: r.freeHead, nextInFrame: pmm.NoMapping}
	r.freeHead = idx
	r.free++
}

// unlinkFromSpace removes idx from the space list starting at head.
func (r *registry) unlinkFromSpace(head *int32, idx int32) bool {
	for link := head; *link != pmm.NoMapping; link = &r.records[*link].nextInSpace {
		if *link == idx {
			*link = r.records[idx].nextInSpace
			r.records[idx].nextInSpace = pmm.NoMapping
			return true
		}
	}
	return false
}

// find returns the record installed at page in the space list starting at
// head or pmm.NoMapping.
func (r *registry) find(head int32, page mm.Page) int32 {
	for idx := head; idx != pmm.NoMapping; idx = r.records[idx].nextInSpace {
		if r.records[idx].page == page {
			return idx
		}
	}
	return pmm.NoMapping
}
