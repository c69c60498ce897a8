package bootimg

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// Sony ELF image constants
const (
	SonyElfIdentSize  = 8
	SonyElfPadSize    = 8
	SonyElfEhdrSize   = 52
	SonyElfPhdrSize   = 32
	SonyElfMaxPhdrs   = 16
	SonyElfDataOffset = 4096

	sonyElfCmdlineMaxSize = 512
)

// SonyElfIdent is the nonstandard e_ident used by Sony boot images.
var SonyElfIdent = [SonyElfIdentSize]byte{0x7f, 'E', 'L', 'F', 0x01, 0x01, 0x01, 0x61}

// Segment roles are identified by their type and flags.
const (
	sonyTypeLoad = uint32(elf.PT_LOAD)
	sonyTypeNote = uint32(elf.PT_NOTE)
	sonyTypeSin  = 0x53000000

	sonyFlagsKernel  = 0x00000000
	sonyFlagsRamdisk = 0x80000000
	sonyFlagsIpl     = 0x40000000
	sonyFlagsRpm     = 0x01000000
	sonyFlagsAppsbl  = 0x02000000
	sonyFlagsCmdline = 0x20000000
)

type sonyElfEhdr struct {
	Ident     [SonyElfIdentSize]byte
	Pad       [SonyElfPadSize]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	Phoff     uint32
	Shoff     uint32
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

func (h *sonyElfEhdr) encodeTo(b []byte) {
	le := binary.LittleEndian
	copy(b[0:8], h.Ident[:])
	copy(b[8:16], h.Pad[:])
	le.PutUint16(b[16:], h.Type)
	le.PutUint16(b[18:], h.Machine)
	le.PutUint32(b[20:], h.Version)
	le.PutUint32(b[24:], h.Entry)
	le.PutUint32(b[28:], h.Phoff)
	le.PutUint32(b[32:], h.Shoff)
	le.PutUint32(b[36:], h.Flags)
	le.PutUint16(b[40:], h.Ehsize)
	le.PutUint16(b[42:], h.Phentsize)
	le.PutUint16(b[44:], h.Phnum)
	le.PutUint16(b[46:], h.Shentsize)
	le.PutUint16(b[48:], h.Shnum)
	le.PutUint16(b[50:], h.Shstrndx)
}

func (h *sonyElfEhdr) decodeFrom(b []byte) {
	le := binary.LittleEndian
	copy(h.Ident[:], b[0:8])
	copy(h.Pad[:], b[8:16])
	h.Type = le.Uint16(b[16:])
	h.Machine = le.Uint16(b[18:])
	h.Version = le.Uint32(b[20:])
	h.Entry = le.Uint32(b[24:])
	h.Phoff = le.Uint32(b[28:])
	h.Shoff = le.Uint32(b[32:])
	h.Flags = le.Uint32(b[36:])
	h.Ehsize = le.Uint16(b[40:])
	h.Phentsize = le.Uint16(b[42:])
	h.Phnum = le.Uint16(b[44:])
	h.Shentsize = le.Uint16(b[46:])
	h.Shnum = le.Uint16(b[48:])
	h.Shstrndx = le.Uint16(b[50:])
}

type sonyElfPhdr struct {
	Type   uint32
	Offset uint32
	Vaddr  uint32
	Paddr  uint32
	Filesz uint32
	Memsz  uint32
	Flags  uint32
	Align  uint32
}

func (p *sonyElfPhdr) encodeTo(b []byte) {
	le := binary.LittleEndian
	le.PutUint32(b[0:], p.Type)
	le.PutUint32(b[4:], p.Offset)
	le.PutUint32(b[8:], p.Vaddr)
	le.PutUint32(b[12:], p.Paddr)
	le.PutUint32(b[16:], p.Filesz)
	le.PutUint32(b[20:], p.Memsz)
	le.PutUint32(b[24:], p.Flags)
	le.PutUint32(b[28:], p.Align)
}

func (p *sonyElfPhdr) decodeFrom(b []byte) {
	le := binary.LittleEndian
	p.Type = le.Uint32(b[0:])
	p.Offset = le.Uint32(b[4:])
	p.Vaddr = le.Uint32(b[8:])
	p.Paddr = le.Uint32(b[12:])
	p.Filesz = le.Uint32(b[16:])
	p.Memsz = le.Uint32(b[20:])
	p.Flags = le.Uint32(b[24:])
	p.Align = le.Uint32(b[28:])
}

// sonySegmentRole maps a program header to the entry it holds. SIN
// signature segments report ok with a zero entry type.
func sonySegmentRole(typ, flags uint32) (EntryType, bool) {
	switch {
	case typ == sonyTypeLoad && flags == sonyFlagsKernel:
		return EntryKernel, true
	case typ == sonyTypeLoad && flags == sonyFlagsRamdisk:
		return EntryRamdisk, true
	case typ == sonyTypeLoad && flags == sonyFlagsIpl:
		return EntrySonyIpl, true
	case typ == sonyTypeLoad && flags == sonyFlagsRpm:
		return EntrySonyRpm, true
	case typ == sonyTypeLoad && flags == sonyFlagsAppsbl:
		return EntrySonyAppsbl, true
	case typ == sonyTypeNote && flags == sonyFlagsCmdline:
		return EntrySonyCmdline, true
	case typ == sonyTypeSin:
		return 0, true
	}
	return 0, false
}

// sonySegmentTypeFlags is the inverse of sonySegmentRole.
func sonySegmentTypeFlags(t EntryType) (uint32, uint32) {
	switch t {
	case EntryRamdisk:
		return sonyTypeLoad, sonyFlagsRamdisk
	case EntrySonyIpl:
		return sonyTypeLoad, sonyFlagsIpl
	case EntrySonyRpm:
		return sonyTypeLoad, sonyFlagsRpm
	case EntrySonyAppsbl:
		return sonyTypeLoad, sonyFlagsAppsbl
	case EntrySonyCmdline:
		return sonyTypeNote, sonyFlagsCmdline
	}
	return sonyTypeLoad, sonyFlagsKernel
}

// sonyElfHeaderFields is what Sony ELF images can store.
const sonyElfHeaderFields = HeaderFieldKernelCmdline | HeaderFieldKernelAddress |
	HeaderFieldRamdiskAddress | HeaderFieldSonyIplAddress | HeaderFieldSonyRpmAddress |
	HeaderFieldSonyAppsblAddress | HeaderFieldEntrypointAddress

// setSonySegmentAddress records the load address of a segment in header.
func setSonySegmentAddress(header *Header, t EntryType, addr uint32) {
	switch t {
	case EntryKernel:
		header.SetKernelAddress(addr)
	case EntryRamdisk:
		header.SetRamdiskAddress(addr)
	case EntrySonyIpl:
		header.SetSonyIplAddress(addr)
	case EntrySonyRpm:
		header.SetSonyRpmAddress(addr)
	case EntrySonyAppsbl:
		header.SetSonyAppsblAddress(addr)
	}
}

// sonySegmentAddress returns the load address header sets for t.
func sonySegmentAddress(header *Header, t EntryType) uint32 {
	var addr uint32
	switch t {
	case EntryKernel:
		addr, _ = header.KernelAddress()
	case EntryRamdisk:
		addr, _ = header.RamdiskAddress()
	case EntrySonyIpl:
		addr, _ = header.SonyIplAddress()
	case EntrySonyRpm:
		addr, _ = header.SonyRpmAddress()
	case EntrySonyAppsbl:
		addr, _ = header.SonyAppsblAddress()
	}
	return addr
}

func checkSonyCmdline(cmdline string) error {
	if len(cmdline) >= sonyElfCmdlineMaxSize {
		return fmt.Errorf("%w: %d bytes", ErrSonyElfCmdlineTooLong, len(cmdline))
	}
	return nil
}
