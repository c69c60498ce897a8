package bootimg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/chenxiaolong/DualBootPatcher-sub001/internal/buf"
)

// lokiReader parses Android images patched with Loki and reconstructs the
// layout they had before patching.
type lokiReader struct {
	hdr  *androidHeader
	lhdr *lokiHeader
	seg  segmentReader
}

func newLokiReader() *lokiReader {
	return &lokiReader{}
}

func (r *lokiReader) Type() Format { return FormatLoki }

func (r *lokiReader) SetOption(string, string) (bool, error) {
	return false, nil
}

func (r *lokiReader) Open(f File, bestBid int) (int, error) {
	maxBid := LokiMagicSize*8 + BootMagicSize*8
	if bestBid >= maxBid {
		return -1, nil
	}

	lhdr, err := findLokiHeader(f)
	if errors.Is(err, ErrLokiMagicNotFound) || errors.Is(err, ErrLokiHeaderTooSmall) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	bid := LokiMagicSize * 8

	hdr, _, err := findAndroidHeader(f, lokiMaxAndroidOffset)
	if errors.Is(err, ErrAndroidHeaderNotFound) || errors.Is(err, ErrAndroidHeaderOutOfBounds) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	bid += BootMagicSize * 8

	r.hdr = hdr
	r.lhdr = lhdr
	return bid, nil
}

func (r *lokiReader) Close(File) error {
	r.hdr = nil
	r.lhdr = nil
	r.seg = segmentReader{}
	return nil
}

func (r *lokiReader) ReadHeader(f File, header *Header) error {
	if !isValidPageSize(r.hdr.PageSize) {
		return fmt.Errorf("%w: %d", ErrInvalidPageSize, r.hdr.PageSize)
	}

	var (
		entries     []segmentReaderEntry
		ramdiskAddr uint32
		err         error
	)
	if r.lhdr.isNewStyle() {
		entries, ramdiskAddr, err = r.newStyleLayout(f)
	} else {
		entries, ramdiskAddr, err = r.oldStyleLayout(f)
	}
	if err != nil {
		return err
	}

	r.hdr.toHeader(header)
	header.SetRamdiskAddress(ramdiskAddr)
	if !r.lhdr.isNewStyle() {
		// Old Loki releases clobber the tags address. Use the default
		// offset from the kernel base.
		header.SetKernelTagsAddress(r.hdr.KernelAddr - 0x00008000 + 0x00000100)
	}
	return r.seg.setEntries(entries)
}

// newStyleLayout uses the original sizes saved in the Loki header.
func (r *lokiReader) newStyleLayout(f File) ([]segmentReaderEntry, uint32, error) {
	page := r.hdr.PageSize
	fake := lokiFakeSize(r.hdr.RamdiskAddr, page)

	kernelOffset := uint64(page)
	ramdiskOffset := kernelOffset + pageAlign(r.lhdr.OrigKernelSize, page)
	dtOffset := ramdiskOffset + pageAlign(r.lhdr.OrigRamdiskSize, page) + uint64(fake)

	ramdiskAddr, err := r.ramdiskAddress(f)
	if err != nil {
		return nil, 0, err
	}

	entries := []segmentReaderEntry{
		{Type: EntryKernel, Offset: kernelOffset, Size: r.lhdr.OrigKernelSize},
		{Type: EntryRamdisk, Offset: ramdiskOffset, Size: r.lhdr.OrigRamdiskSize},
	}
	if r.hdr.DtSize > 0 {
		entries = append(entries, segmentReaderEntry{
			Type:   EntryDeviceTree,
			Offset: dtOffset,
			Size:   r.hdr.DtSize,
		})
	}
	return entries, ramdiskAddr, nil
}

// oldStyleLayout recovers the layout of images patched before Loki saved
// the original sizes. The kernel reports its own size and the ramdisk is
// found by its gzip header.
func (r *lokiReader) oldStyleLayout(f File) ([]segmentReaderEntry, uint32, error) {
	page := r.hdr.PageSize
	fake := lokiFakeSize(r.hdr.RamdiskAddr, page)

	var b [4]byte
	n, err := readAt(f, uint64(page)+zImageSizeOffset, b[:])
	if err != nil {
		return nil, 0, err
	}
	if n != len(b) {
		return nil, 0, fmt.Errorf("kernel size field: %w", ErrAndroidHeaderOutOfBounds)
	}
	kernelSize := binary.LittleEndian.Uint32(b[:])

	gzipOffset, err := findRamdiskGzipHeader(f, uint64(page)+uint64(kernelSize))
	if err != nil {
		return nil, 0, err
	}

	size, err := fileSize(f)
	if err != nil {
		return nil, 0, err
	}
	// Everything between the ramdisk and the aboot trailer is ramdisk data
	if size < uint64(fake) || size-uint64(fake) < gzipOffset {
		return nil, 0, ErrRamdiskOffsetGreaterThanAboot
	}
	ramdiskSize := size - uint64(fake) - gzipOffset
	if ramdiskSize > math.MaxUint32 {
		return nil, 0, fmt.Errorf("%w: ramdisk of %d bytes", ErrEntrySizeTooLarge, ramdiskSize)
	}

	ramdiskAddr, err := r.ramdiskAddress(f)
	if err != nil {
		return nil, 0, err
	}

	entries := []segmentReaderEntry{
		{Type: EntryKernel, Offset: uint64(page), Size: kernelSize},
		{Type: EntryRamdisk, Offset: gzipOffset, Size: uint32(ramdiskSize)},
	}
	return entries, ramdiskAddr, nil
}

// ramdiskAddress returns the original ramdisk load address. When the Loki
// header records a ramdisk address, the real one was patched into the
// shellcode; otherwise the jflte default offset from the kernel applies.
func (r *lokiReader) ramdiskAddress(f File) (uint32, error) {
	if r.lhdr.RamdiskAddr != 0 {
		return findShellcodeRamdiskAddress(f)
	}
	addr, ok := buf.AddUint32(r.hdr.KernelAddr, lokiDefaultRamdiskOffset)
	if !ok {
		return 0, fmt.Errorf("%w: %#08x", ErrInvalidKernelAddress, r.hdr.KernelAddr)
	}
	return addr, nil
}

func (r *lokiReader) ReadEntry(f File, entry *Entry) error {
	return r.seg.readEntry(f, entry)
}

func (r *lokiReader) GoToEntry(f File, entry *Entry, t EntryType) error {
	return r.seg.goToEntry(f, entry, t)
}

func (r *lokiReader) ReadData(f File, buf []byte) (int, error) {
	return r.seg.readData(f, buf)
}

// findLokiHeader reads the Loki header at its fixed offset.
func findLokiHeader(f File) (*lokiHeader, error) {
	b := make([]byte, LokiHeaderSize)
	n, err := readAt(f, LokiMagicOffset, b)
	if err != nil {
		return nil, err
	}
	if n < LokiMagicSize || string(b[:LokiMagicSize]) != LokiMagic {
		return nil, ErrLokiMagicNotFound
	}
	if n != LokiHeaderSize {
		return nil, ErrLokiHeaderTooSmall
	}
	lhdr := &lokiHeader{}
	lhdr.decodeFrom(b)
	return lhdr, nil
}

// findShellcodeRamdiskAddress locates the patched shellcode and returns the
// ramdisk address stored in it.
func findShellcodeRamdiskAddress(f File) (uint32, error) {
	var (
		found bool
		addr  uint32
	)
	prefix := lokiShellcode[:lokiShellcodePrefixSize]
	err := searchFile(f, 0, -1, prefix, func(offset int64) (bool, error) {
		var b [4]byte
		n, err := readAt(f, uint64(offset)+lokiRamdiskAddrOffset, b[:])
		if err != nil {
			return false, err
		}
		if n != len(b) {
			return false, nil
		}
		addr = binary.LittleEndian.Uint32(b[:])
		found = true
		return false, nil
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrShellcodeNotFound
	}
	return addr, nil
}

var gzipMagic = []byte{0x1f, 0x8b, 0x08}

const (
	gzipFlagNone     = 0x00
	gzipFlagOrigName = 0x08
)

// findRamdiskGzipHeader returns the offset of the ramdisk's gzip header at or
// after start. Headers carrying an original file name are preferred over
// bare ones, as gzip magic also shows up inside compressed data.
func findRamdiskGzipHeader(f File, start uint64) (uint64, error) {
	if start > math.MaxInt64 {
		return 0, ErrEntryWouldOverflowOffset
	}
	var (
		bare     int64 = -1
		withName int64 = -1
	)
	err := searchFile(f, int64(start), -1, gzipMagic, func(offset int64) (bool, error) {
		var flags [1]byte
		n, err := readAt(f, uint64(offset)+uint64(len(gzipMagic)), flags[:])
		if err != nil {
			return false, err
		}
		if n != 1 {
			return false, nil
		}
		switch flags[0] {
		case gzipFlagOrigName:
			withName = offset
			return false, nil
		case gzipFlagNone:
			if bare < 0 {
				bare = offset
			}
		}
		return true, nil
	})
	if err != nil {
		return 0, err
	}

	switch {
	case withName >= 0:
		return uint64(withName), nil
	case bare >= 0:
		return uint64(bare), nil
	}
	return 0, ErrNoRamdiskGzipHeaderFound
}
