package bootimg

import (
	"bytes"
	"encoding/binary"
)

// MediaTek image constants
const (
	MtkMagicSize   = 4
	MtkTypeSize    = 32
	MtkUnusedSize  = 472
	MtkHeaderSize  = 512
	mtkKernelType  = "KERNEL"
	mtkRamdiskType = "ROOTFS"
)

// MtkMagic starts the sub-header in front of the kernel and ramdisk.
var MtkMagic = [MtkMagicSize]byte{0x88, 0x16, 0x88, 0x58}

// mtkHeader directly correlates to the 512-byte on-disk MTK sub-header.
type mtkHeader struct {
	Magic  [MtkMagicSize]byte
	Size   uint32
	Type   [MtkTypeSize]byte
	Unused [MtkUnusedSize]byte
}

func (h *mtkHeader) encodeTo(b []byte) {
	copy(b[0:4], h.Magic[:])
	binary.LittleEndian.PutUint32(b[4:], h.Size)
	copy(b[8:40], h.Type[:])
	copy(b[40:512], h.Unused[:])
}

func (h *mtkHeader) decodeFrom(b []byte) {
	copy(h.Magic[:], b[0:4])
	h.Size = binary.LittleEndian.Uint32(b[4:])
	copy(h.Type[:], b[8:40])
	copy(h.Unused[:], b[40:512])
}

func (h *mtkHeader) marshal() []byte {
	b := make([]byte, MtkHeaderSize)
	h.encodeTo(b)
	return b
}

// defaultMtkHeader returns the sub-header MediaTek tools generate. The size
// is filled in once the section is complete.
func defaultMtkHeader(typ string) *mtkHeader {
	h := &mtkHeader{Magic: MtkMagic}
	copy(h.Type[:], typ)
	for i := range h.Unused {
		h.Unused[i] = 0xff
	}
	return h
}

// readMtkHeader reads a sub-header at offset. ErrMtkHeaderNotFound is
// returned when the magic is missing.
func readMtkHeader(f File, offset uint64) (*mtkHeader, error) {
	b := make([]byte, MtkHeaderSize)
	n, err := readAt(f, offset, b)
	if err != nil {
		return nil, err
	}
	if n != MtkHeaderSize || !bytes.Equal(b[:MtkMagicSize], MtkMagic[:]) {
		return nil, ErrMtkHeaderNotFound
	}
	h := &mtkHeader{}
	h.decodeFrom(b)
	return h, nil
}
