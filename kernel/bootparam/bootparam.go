// Package bootparam decodes the boot parameter block handed to the kernel by
// the loader. The block fixes the dimensions of every kernel table for the
// life of the running kernel.
package bootparam

import (
	"encoding/binary"
	"math/bits"

	"ukernel/kernel"
)

const (
	// Magic identifies a boot parameter block ("UKBP").
	Magic = uint32(0x50424b55)

	// Version is the only block layout understood by this kernel.
	Version = uint16(1)

	// BlockSize is the encoded size of a boot parameter block in bytes.
	BlockSize = 24

	// ReservedIDBits is the number of high identifier bits the kernel keeps
	// for special target encodings (any, thread group, interrupt).
	ReservedIDBits = 3

	maxProcessLimit = 1 << 14
)

var (
	errShortBlock   = &kernel.Error{Module: "bootparam", Message: "boot parameter block too short", Code: kernel.CodeInvalidParam}
	errBadMagic     = &kernel.Error{Module: "bootparam", Message: "bad boot parameter block magic", Code: kernel.CodeInvalidParam}
	errBadVersion   = &kernel.Error{Module: "bootparam", Message: "unsupported boot parameter block version", Code: kernel.CodeInvalidParam}
	errProcesses    = &kernel.Error{Module: "bootparam", Message: "process count out of range", Code: kernel.CodeInvalidParam}
	errIDBits       = &kernel.Error{Module: "bootparam", Message: "identifier bit widths exceed 32 bits", Code: kernel.CodeInvalidParam}
	errGeneration   = &kernel.Error{Module: "bootparam", Message: "generation counter needs at least one bit", Code: kernel.CodeInvalidParam}
	errTableSize    = &kernel.Error{Module: "bootparam", Message: "table size must be non-zero", Code: kernel.CodeInvalidParam}
	errTimerSetting = &kernel.Error{Module: "bootparam", Message: "quantum and tick rate must be non-zero", Code: kernel.CodeInvalidParam}
)

// Params describes the table dimensions and clock settings of the kernel.
//
// Encoded layout (little endian):
//
//	0  magic            uint32
//	4  version          uint16
//	6  max processes    uint16
//	8  generation bits  uint8
//	9  transparent bits uint8
//	10 page-table block uint16  (kernel pages reserved per address space)
//	12 I/O ports        uint16
//	14 page-map records uint16
//	16 kernel pages     uint32  (size of the kernel page pool)
//	20 quantum          uint16  (ticks per time slice)
//	22 hz               uint16  (ticks per second)
type Params struct {
	MaxProcesses    uint16
	GenerationBits  uint8
	TransparentBits uint8
	PageTableBlock  uint16
	Ports           uint16
	PageMaps        uint16
	KernelPages     uint32
	Quantum         uint16
	Hz              uint16
}

// Default returns the parameters used when no block is supplied.
func Default() Params {
	return Params{
		MaxProcesses:    64,
		GenerationBits:  8,
		TransparentBits: 4,
		PageTableBlock:  1,
		Ports:           1024,
		PageMaps:        512,
		KernelPages:     128,
		Quantum:         5,
		Hz:              100,
	}
}

// Parse decodes and validates a boot parameter block.
func Parse(block []byte) (Params, *kernel.Error) {
	var p Params

	if len(block) < BlockSize {
		return p, errShortBlock
	}

	le := binary.LittleEndian
	if le.Uint32(block[0:]) != Magic {
		return p, errBadMagic
	}
	if le.Uint16(block[4:]) != Version {
		return p, errBadVersion
	}

	p.MaxProcesses = le.Uint16(block[6:])
	p.GenerationBits = block[8]
	p.TransparentBits = block[9]
	p.PageTableBlock = le.Uint16(block[10:])
	p.Ports = le.Uint16(block[12:])
	p.PageMaps = le.Uint16(block[14:])
	p.KernelPages = le.Uint32(block[16:])
	p.Quantum = le.Uint16(block[20:])
	p.Hz = le.Uint16(block[22:])

	if err := p.Validate(); err != nil {
		return Params{}, err
	}

	return p, nil
}

// MarshalBinary encodes p as a boot parameter block.
func (p Params) MarshalBinary() ([]byte, error) {
	block := make([]byte, BlockSize)
	le := binary.LittleEndian
	le.PutUint32(block[0:], Magic)
	le.PutUint16(block[4:], Version)
	le.PutUint16(block[6:], p.MaxProcesses)
	block[8] = p.GenerationBits
	block[9] = p.TransparentBits
	le.PutUint16(block[10:], p.PageTableBlock)
	le.PutUint16(block[12:], p.Ports)
	le.PutUint16(block[14:], p.PageMaps)
	le.PutUint32(block[16:], p.KernelPages)
	le.PutUint16(block[20:], p.Quantum)
	le.PutUint16(block[22:], p.Hz)
	return block, nil
}

// IndexBits returns the number of identifier bits needed to address every
// process table slot.
func (p Params) IndexBits() uint8 {
	if p.MaxProcesses < 2 {
		return 1
	}
	return uint8(bits.Len16(p.MaxProcesses - 1))
}

// Validate checks that the parameters describe a kernel that can boot.
func (p Params) Validate() *kernel.Error {
	switch {
	case p.MaxProcesses < 2 || p.MaxProcesses > maxProcessLimit:
		return errProcesses
	case p.GenerationBits == 0:
		return errGeneration
	case int(p.IndexBits())+int(p.GenerationBits)+int(p.TransparentBits) > 32-ReservedIDBits:
		return errIDBits
	case p.Ports == 0 || p.PageMaps == 0 || p.KernelPages == 0:
		return errTableSize
	case p.Quantum == 0 || p.Hz == 0:
		return errTimerSetting
	}

	return nil
}
