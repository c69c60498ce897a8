package bootimg

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/chenxiaolong/DualBootPatcher-sub001/internal/buf"
)

// Android boot image format constants
const (
	BootMagic        = "ANDROID!"
	BootMagicSize    = 8
	BootNameSize     = 16
	BootArgsSize     = 512
	BootIDSize       = 32
	BootHeaderSize   = 608
	MaxHeaderOffset  = 512
	SamsungMagic     = "SEANDROIDENFORCE"
	SamsungMagicSize = 16
	BumpMagicSize    = 16
)

// BumpMagic is appended to LG images signed with the Bump tool.
var BumpMagic = [BumpMagicSize]byte{
	0x41, 0xa9, 0xe4, 0x67, 0x74, 0x4d, 0x1d, 0x1b,
	0xa4, 0x29, 0xf2, 0xec, 0xea, 0x65, 0x52, 0x79,
}

// validPageSizes lists the page sizes mkbootimg accepts.
var validPageSizes = []uint32{2048, 4096, 8192, 16384, 32768, 65536, 131072}

func isValidPageSize(size uint32) bool {
	for _, s := range validPageSizes {
		if s == size {
			return true
		}
	}
	return false
}

// androidHeader directly correlates to the on-disk Android boot image header.
// Fields are host order; encode/decode convert to little endian except for
// ID, which is kept in its on-disk byte order.
type androidHeader struct {
	Magic [BootMagicSize]byte

	// Size of the kernel in bytes
	KernelSize uint32
	// Kernel physical load address
	KernelAddr uint32

	// Size of the ramdisk in bytes
	RamdiskSize uint32
	// Ramdisk physical load address
	RamdiskAddr uint32

	// Size of the second stage bootloader in bytes
	SecondSize uint32
	// Second stage bootloader physical load address
	SecondAddr uint32

	// Kernel tags physical load address
	TagsAddr uint32
	// Flash page size
	PageSize uint32
	// Size of the device tree in bytes
	DtSize uint32
	Unused uint32

	// Product/board name
	Name [BootNameSize]byte
	// Kernel command line
	Cmdline [BootArgsSize]byte

	// Timestamp/checksum/SHA-1/...
	ID [BootIDSize]byte
}

// encodeTo writes the header into b, which must hold BootHeaderSize bytes.
func (h *androidHeader) encodeTo(b []byte) {
	le := binary.LittleEndian
	copy(b[0:8], h.Magic[:])
	le.PutUint32(b[8:], h.KernelSize)
	le.PutUint32(b[12:], h.KernelAddr)
	le.PutUint32(b[16:], h.RamdiskSize)
	le.PutUint32(b[20:], h.RamdiskAddr)
	le.PutUint32(b[24:], h.SecondSize)
	le.PutUint32(b[28:], h.SecondAddr)
	le.PutUint32(b[32:], h.TagsAddr)
	le.PutUint32(b[36:], h.PageSize)
	le.PutUint32(b[40:], h.DtSize)
	le.PutUint32(b[44:], h.Unused)
	copy(b[48:64], h.Name[:])
	copy(b[64:576], h.Cmdline[:])
	copy(b[576:608], h.ID[:])
}

// decodeFrom reads the header from b, which must hold BootHeaderSize bytes.
func (h *androidHeader) decodeFrom(b []byte) {
	le := binary.LittleEndian
	copy(h.Magic[:], b[0:8])
	h.KernelSize = le.Uint32(b[8:])
	h.KernelAddr = le.Uint32(b[12:])
	h.RamdiskSize = le.Uint32(b[16:])
	h.RamdiskAddr = le.Uint32(b[20:])
	h.SecondSize = le.Uint32(b[24:])
	h.SecondAddr = le.Uint32(b[28:])
	h.TagsAddr = le.Uint32(b[32:])
	h.PageSize = le.Uint32(b[36:])
	h.DtSize = le.Uint32(b[40:])
	h.Unused = le.Uint32(b[44:])
	copy(h.Name[:], b[48:64])
	copy(h.Cmdline[:], b[64:576])
	copy(h.ID[:], b[576:608])
}

func (h *androidHeader) marshal() []byte {
	b := make([]byte, BootHeaderSize)
	h.encodeTo(b)
	return b
}

// cString returns the bytes of a NUL-padded field up to the first NUL.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// androidHeaderFields is what every Android-derived reader reports.
const androidHeaderFields = HeaderFieldBoardName | HeaderFieldKernelCmdline |
	HeaderFieldPageSize | HeaderFieldKernelAddress | HeaderFieldRamdiskAddress |
	HeaderFieldSecondbootAddress | HeaderFieldKernelTagsAddress | HeaderFieldID

// androidWriterFields is what every Android-derived writer accepts.
const androidWriterFields = androidHeaderFields &^ HeaderFieldID

// toHeader copies the generic fields into header.
func (h *androidHeader) toHeader(header *Header) {
	header.Clear()
	header.SetSupportedFields(androidHeaderFields)
	header.SetBoardName(cString(h.Name[:]))
	header.SetKernelCmdline(cString(h.Cmdline[:]))
	header.SetPageSize(h.PageSize)
	header.SetKernelAddress(h.KernelAddr)
	header.SetRamdiskAddress(h.RamdiskAddr)
	header.SetSecondbootAddress(h.SecondAddr)
	header.SetKernelTagsAddress(h.TagsAddr)
	header.SetID(h.ID)
}

// fromHeader builds a fresh header from the caller's fields. Sizes and the
// ID are filled in when the image is finalized.
func (h *androidHeader) fromHeader(header *Header) error {
	*h = androidHeader{}
	copy(h.Magic[:], BootMagic)

	pageSize, ok := header.PageSize()
	if !ok {
		return ErrMissingPageSize
	}
	if !isValidPageSize(pageSize) {
		return fmt.Errorf("%w: %d", ErrInvalidPageSize, pageSize)
	}
	h.PageSize = pageSize

	if v, ok := header.KernelAddress(); ok {
		h.KernelAddr = v
	}
	if v, ok := header.RamdiskAddress(); ok {
		h.RamdiskAddr = v
	}
	if v, ok := header.SecondbootAddress(); ok {
		h.SecondAddr = v
	}
	if v, ok := header.KernelTagsAddress(); ok {
		h.TagsAddr = v
	}

	if name, ok := header.BoardName(); ok {
		if len(name) >= BootNameSize {
			return fmt.Errorf("%w: %d bytes", ErrBoardNameTooLong, len(name))
		}
		copy(h.Name[:], name)
	}
	if cmdline, ok := header.KernelCmdline(); ok {
		if len(cmdline) >= BootArgsSize {
			return fmt.Errorf("%w: %d bytes", ErrKernelCmdlineTooLong, len(cmdline))
		}
		copy(h.Cmdline[:], cmdline)
	}
	return nil
}

// findAndroidHeader searches the first maxOffset bytes of f for the boot
// magic and decodes the header that starts there. ErrAndroidHeaderNotFound
// and ErrAndroidHeaderOutOfBounds are returned when nothing usable exists.
func findAndroidHeader(f File, maxOffset int) (*androidHeader, uint64, error) {
	b := make([]byte, maxOffset+BootHeaderSize)
	n, err := readAt(f, 0, b)
	if err != nil {
		return nil, 0, err
	}
	b = b[:n]

	idx := bytes.Index(b, []byte(BootMagic))
	if idx < 0 || idx > maxOffset {
		return nil, 0, ErrAndroidHeaderNotFound
	}
	if len(b)-idx < BootHeaderSize {
		return nil, 0, ErrAndroidHeaderOutOfBounds
	}

	hdr := &androidHeader{}
	hdr.decodeFrom(b[idx : idx+BootHeaderSize])
	return hdr, uint64(idx), nil
}

// sectionsEnd returns the offset just past the last page-aligned section,
// which is where trailing magics are stored.
func (h *androidHeader) sectionsEnd() uint64 {
	// uint64 cannot overflow when adding a handful of page-aligned uint32s
	pos := uint64(h.PageSize)
	pos += pageAlign(h.KernelSize, h.PageSize)
	pos += pageAlign(h.RamdiskSize, h.PageSize)
	pos += pageAlign(h.SecondSize, h.PageSize)
	pos += pageAlign(h.DtSize, h.PageSize)
	return pos
}

// pageAlign rounds size up to a multiple of the page size.
func pageAlign(size, pageSize uint32) uint64 {
	return uint64(size) + buf.PaddingSize(uint64(size), uint64(pageSize))
}

// findTrailingMagic reports whether magic is stored right after the last
// section described by hdr.
func findTrailingMagic(f File, hdr *androidHeader, magic []byte) (bool, error) {
	b := make([]byte, len(magic))
	n, err := readAt(f, hdr.sectionsEnd(), b)
	if err != nil {
		return false, err
	}
	return n == len(magic) && bytes.Equal(b, magic), nil
}
