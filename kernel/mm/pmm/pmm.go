// Package pmm tracks the ownership of every physical page. Each frame has a
// page owner record; the record's next link threads the frame either onto a
// free list or onto the owned-page chain of one address space.
package pmm

import (
	"github.com/Workiva/go-datastructures/bitarray"

	"ukernel/kernel"
	"ukernel/kernel/mm"
)

// Pool selects the free list a frame is drawn from.
type Pool uint8

const (
	// KernelPool holds the low frames reserved for kernel-owned pages,
	// kernel stacks and page-table blocks.
	KernelPool Pool = iota

	// UserPool holds every frame above the kernel pool.
	UserPool

	poolCount
)

// NoMapping terminates a page-map list.
const NoMapping = int32(-1)

// NoOwner is reported for frames that are not on any owner chain.
const NoOwner = -1

var (
	// ErrNoFreePage is returned when the requested pool is exhausted.
	ErrNoFreePage = &kernel.Error{Module: "pmm", Message: "no free pages", Code: kernel.CodeNoFreePage}

	// ErrInvalidFrame is returned for frames outside physical memory.
	ErrInvalidFrame = &kernel.Error{Module: "pmm", Message: "invalid frame", Code: kernel.CodeInvalidParam}

	// ErrDoubleFree is returned when freeing a frame that is already free.
	ErrDoubleFree = &kernel.Error{Module: "pmm", Message: "frame is not allocated", Code: kernel.CodeInvalidParam}

	errPoolLayout = &kernel.Error{Module: "pmm", Message: "kernel pool must leave user frames", Code: kernel.CodeInvalidParam}
)

// record is the page owner record of one frame.
type record struct {
	// next links the frame onto a free list or an owner chain and is
	// mm.InvalidFrame at the end of either.
	next mm.Frame

	// maps is the head of the list of page-map records pointing at this
	// frame.
	maps int32

	owner int
	page  mm.Page
}

// Allocator owns the page owner records of all physical frames.
type Allocator struct {
	records     []record
	kernelPages uint32

	freeHead  [poolCount]mm.Frame
	freeCount [poolCount]uint32

	// used has one bit per frame; it is set while the frame is allocated.
	used bitarray.BitArray
}

// New returns an allocator for totalPages frames where the first
// kernelPages frames form the kernel pool.
func New(totalPages, kernelPages uint32) (*Allocator, *kernel.Error) {
	if kernelPages == 0 || kernelPages >= totalPages {
		return nil, errPoolLayout
	}

	a := &Allocator{
		records:     make([]record, totalPages),
		kernelPages: kernelPages,
		used:        bitarray.NewBitArray(uint64(totalPages)),
	}
	a.freeHead[KernelPool] = mm.InvalidFrame
	a.freeHead[UserPool] = mm.InvalidFrame

	// Push in descending order so that allocations start from the lowest
	// frame of each pool.
	for frame := int64(totalPages) - 1; frame >= 0; frame-- {
		f := mm.Frame(frame)
		pool := a.PoolOf(f)
		a.records[f] = record{next: a.freeHead[pool], maps: NoMapping, owner: NoOwner}
		a.freeHead[pool] = f
		a.freeCount[pool]++
	}

	return a, nil
}

// TotalPages returns the number of frames managed by the allocator.
func (a *Allocator) TotalPages() uint32 {
	return uint32(len(a.records))
}

// PoolOf returns the pool that frame belongs to.
func (a *Allocator) PoolOf(frame mm.Frame) Pool {
	if uint32(frame) < a.kernelPages {
		return KernelPool
	}
	return UserPool
}

// FreeCount returns the number of free frames in pool.
func (a *Allocator) FreeCount(pool Pool) uint32 {
	return a.freeCount[pool]
}

// Alloc removes one frame from the free list of pool.
func (a *Allocator) Alloc(pool Pool) (mm.Frame, *kernel.Error) {
	frame := a.freeHead[pool]
	if !frame.Valid() {
		return mm.InvalidFrame, ErrNoFreePage
	}

	rec := &a.records[frame]
	a.freeHead[pool] = rec.next
	a.freeCount[pool]--

	*rec = record{next: mm.InvalidFrame, maps: NoMapping, owner: NoOwner}
	_ = a.used.SetBit(uint64(frame))
	return frame, nil
}

// Free returns frame to the free list of its pool. The frame must already be
// detached from any owner chain.
func (a *Allocator) Free(frame mm.Frame) *kernel.Error {
	if !a.valid(frame) {
		return ErrInvalidFrame
	}
	if inUse, _ := a.used.GetBit(uint64(frame)); !inUse {
		return ErrDoubleFree
	}

	_ = a.used.ClearBit(uint64(frame))
	pool := a.PoolOf(frame)
	a.records[frame] = record{next: a.freeHead[pool], maps: NoMapping, owner: NoOwner}
	a.freeHead[pool] = frame
	a.freeCount[pool]++
	return nil
}

// InUse returns true if frame is currently allocated.
func (a *Allocator) InUse(frame mm.Frame) bool {
	if !a.valid(frame) {
		return false
	}
	inUse, _ := a.used.GetBit(uint64(frame))
	return inUse
}

// UsedFrames returns every allocated frame in ascending order.
func (a *Allocator) UsedFrames() []mm.Frame {
	nums := a.used.ToNums()
	frames := make([]mm.Frame, 0, len(nums))
	for _, n := range nums {
		frames = append(frames, mm.Frame(n))
	}
	return frames
}

func (a *Allocator) valid(frame mm.Frame) bool {
	return frame.Valid() && uint32(frame) < uint32(len(a.records))
}
