package proc

import (
	"ukernel/kernel"
	"ukernel/kernel/mm"
)

// AddPage installs a new zeroed page at virtAddr in the address space of id
// (None selects the caller).
func (k *Kernel) AddPage(id ID, virtAddr uint32, perm mm.Perm) (mm.Frame, *kernel.Error) {
	k.lock.Lock()
	defer k.lock.Unlock()

	slot, err := k.resolve(id)
	if err != nil {
		return mm.InvalidFrame, err
	}
	return k.memory.AddPage(k.space(slot), virtAddr, perm)
}

// MapPage shares the page at srcAddr of src into dst at dstAddr.
func (k *Kernel) MapPage(src ID, srcAddr uint32, dst ID, dstAddr uint32, perm mm.Perm) *kernel.Error {
	k.lock.Lock()
	defer k.lock.Unlock()

	srcSlot, dstSlot, err := k.resolvePair(src, dst)
	if err != nil {
		return err
	}
	return k.memory.MapPage(k.space(srcSlot), srcAddr, k.space(dstSlot), dstAddr, perm)
}

// GrantPage moves ownership of the page at srcAddr of src to dst at
// dstAddr. The source must own the page unless the caller holds the
// coordinator privilege.
func (k *Kernel) GrantPage(src ID, srcAddr uint32, dst ID, dstAddr uint32, perm mm.Perm) *kernel.Error {
	k.lock.Lock()
	defer k.lock.Unlock()

	srcSlot, dstSlot, err := k.resolvePair(src, dst)
	if err != nil {
		return err
	}

	privileged := k.procs[k.current].privilege&PrivCoordinator != 0
	return k.memory.GrantPage(k.space(srcSlot), srcAddr, k.space(dstSlot), dstAddr, perm, privileged)
}

// UnmapPage removes the page at virtAddr from the address space of id.
func (k *Kernel) UnmapPage(id ID, virtAddr uint32) *kernel.Error {
	k.lock.Lock()
	defer k.lock.Unlock()

	slot, err := k.resolve(id)
	if err != nil {
		return err
	}
	return k.memory.UnmapPage(k.space(slot), virtAddr)
}

// CopyIn reads size bytes at virtAddr of the caller's address space.
func (k *Kernel) CopyIn(virtAddr, size uint32) ([]byte, *kernel.Error) {
	k.lock.Lock()
	defer k.lock.Unlock()

	return k.memory.CopyIn(k.space(k.current), virtAddr, size)
}

// CopyOut writes data at virtAddr of the caller's address space.
func (k *Kernel) CopyOut(virtAddr uint32, data []byte) *kernel.Error {
	k.lock.Lock()
	defer k.lock.Unlock()

	return k.memory.CopyOut(k.space(k.current), virtAddr, data)
}

func (k *Kernel) resolvePair(a, b ID) (int32, int32, *kernel.Error) {
	aSlot, err := k.resolve(a)
	if err != nil {
		return nilSlot, nilSlot, err
	}
	bSlot, err := k.resolve(b)
	if err != nil {
		return nilSlot, nilSlot, err
	}
	return aSlot, bSlot, nil
}
