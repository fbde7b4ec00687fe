package pmm

import "ukernel/kernel/mm"

// Push links an allocated frame at the front of the owner chain starting at
// head and records owner and the virtual page it is installed at.
func (a *Allocator) Push(head *mm.Frame, frame mm.Frame, owner int, page mm.Page) {
	rec := &a.records[frame]
	rec.next = *head
	rec.owner = owner
	rec.page = page
	*head = frame
}

// Remove unlinks frame from the owner chain starting at head. It returns
// false if frame is not on the chain. The removed frame's link and owner
// are cleared so no stale reference into the chain survives.
func (a *Allocator) Remove(head *mm.Frame, frame mm.Frame) bool {
	for link := head; (*link).Valid(); link = &a.records[*link].next {
		if *link != frame {
			continue
		}

		rec := &a.records[frame]
		*link = rec.next
		rec.next = mm.InvalidFrame
		rec.owner = NoOwner
		return true
	}

	return false
}

// Next returns the frame following frame on its chain.
func (a *Allocator) Next(frame mm.Frame) mm.Frame {
	return a.records[frame].next
}

// Walk invokes fn for every frame on the chain starting at head until fn
// returns false. fn may remove the visited frame from the chain.
func (a *Allocator) Walk(head mm.Frame, fn func(mm.Frame) bool) {
	for frame := head; frame.Valid(); {
		next := a.records[frame].next
		if !fn(frame) {
			return
		}
		frame = next
	}
}

// ChainLength returns the number of frames on the chain starting at head.
func (a *Allocator) ChainLength(head mm.Frame) int {
	var count int
	a.Walk(head, func(mm.Frame) bool {
		count++
		return true
	})
	return count
}

// Owner returns the space owning frame and the virtual page it is installed
// at, or NoOwner.
func (a *Allocator) Owner(frame mm.Frame) (int, mm.Page) {
	if !a.valid(frame) {
		return NoOwner, 0
	}
	rec := &a.records[frame]
	return rec.owner, rec.page
}

// MapHead returns the head of the page-map list of frame.
func (a *Allocator) MapHead(frame mm.Frame) int32 {
	return a.records[frame].maps
}

// SetMapHead replaces the head of the page-map list of frame.
func (a *Allocator) SetMapHead(frame mm.Frame, head int32) {
	a.records[frame].maps = head
}
