package mm

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = uint32(1 << PageShift)

	// UserBase is the lowest virtual address a user process may map.
	UserBase = uint32(0x00400000)

	// UserTop is the first virtual address past the user region. Addresses
	// from UserTop up to KernelTop belong to the kernel address space.
	UserTop = uint32(0xC0000000)

	// KernelTop is the first virtual address past the kernel region. The
	// last page of the 32-bit address space is never mapped.
	KernelTop = uint32(0xFFFFF000)
)

// Perm is a set of page permission bits as understood by the hardware
// page-table mechanism.
type Perm uint8

const (
	// PermPresent marks a valid mapping.
	PermPresent Perm = 1 << iota

	// PermWrite allows writes to the page.
	PermWrite

	// PermUser allows user-mode access to the page.
	PermUser
)

// PermMask contains every permission bit a caller may request.
const PermMask = PermPresent | PermWrite | PermUser

// Has returns true if all bits in flags are set.
func (p Perm) Has(flags Perm) bool {
	return p&flags == flags
}

// InUserRange returns true if virtAddr can be mapped by a user process.
func InUserRange(virtAddr uint32) bool {
	return virtAddr >= UserBase && virtAddr < UserTop
}

// InKernelRange returns true if virtAddr lies in the kernel address region.
func InKernelRange(virtAddr uint32) bool {
	return virtAddr >= UserTop && virtAddr < KernelTop
}
