package bootimg

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/chenxiaolong/DualBootPatcher-sub001/internal/buf"
)

// mtkReader parses Android images whose kernel and ramdisk each carry a
// MediaTek sub-header.
type mtkReader struct {
	strict bool

	hdr        *androidHeader
	kernelMtk  *mtkHeader
	ramdiskMtk *mtkHeader
	seg        segmentReader
}

func newMtkReader() *mtkReader {
	return &mtkReader{}
}

func (r *mtkReader) Type() Format { return FormatMtk }

func (r *mtkReader) SetOption(key, value string) (bool, error) {
	switch key {
	case "strict":
		strict, err := strconv.ParseBool(value)
		if err != nil {
			return true, fmt.Errorf("%s: invalid value for %q: %w", r.Type(), key, err)
		}
		r.strict = strict
		return true, nil
	}
	return false, nil
}

func (r *mtkReader) Open(f File, bestBid int) (int, error) {
	maxBid := BootMagicSize*8 + 2*MtkMagicSize*8 + SamsungMagicSize*8
	if bestBid >= maxBid {
		return -1, nil
	}

	hdr, _, err := findAndroidHeader(f, MaxHeaderOffset)
	if errors.Is(err, ErrAndroidHeaderNotFound) || errors.Is(err, ErrAndroidHeaderOutOfBounds) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	bid := BootMagicSize * 8

	kernelMtk, ramdiskMtk, err := findMtkHeaders(f, hdr)
	if errors.Is(err, ErrMtkHeaderNotFound) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	bid += 2 * MtkMagicSize * 8

	found, err := findTrailingMagic(f, hdr, []byte(SamsungMagic))
	if err != nil {
		return 0, err
	}
	if found {
		bid += SamsungMagicSize * 8
	}

	r.hdr = hdr
	r.kernelMtk = kernelMtk
	r.ramdiskMtk = ramdiskMtk
	return bid, nil
}

// findMtkHeaders reads the sub-headers at the start of the kernel and
// ramdisk sections.
func findMtkHeaders(f File, hdr *androidHeader) (*mtkHeader, *mtkHeader, error) {
	if hdr.PageSize == 0 {
		return nil, nil, ErrMtkHeaderNotFound
	}
	kernelOffset := uint64(hdr.PageSize)
	ramdiskOffset := kernelOffset + pageAlign(hdr.KernelSize, hdr.PageSize)

	kernelMtk, err := readMtkHeader(f, kernelOffset)
	if err != nil {
		return nil, nil, err
	}
	ramdiskMtk, err := readMtkHeader(f, ramdiskOffset)
	if err != nil {
		return nil, nil, err
	}
	return kernelMtk, ramdiskMtk, nil
}

func (r *mtkReader) Close(File) error {
	r.hdr = nil
	r.kernelMtk = nil
	r.ramdiskMtk = nil
	r.seg = segmentReader{}
	return nil
}

func (r *mtkReader) ReadHeader(f File, header *Header) error {
	hdr := r.hdr
	if !isValidPageSize(hdr.PageSize) {
		return fmt.Errorf("%w: %d", ErrInvalidPageSize, hdr.PageSize)
	}

	kernelTotal, ok := buf.AddUint32(r.kernelMtk.Size, MtkHeaderSize)
	if !ok || kernelTotal != hdr.KernelSize {
		return fmt.Errorf("%w: %d != %d + %d", ErrMismatchedKernelSizeInHeaders,
			hdr.KernelSize, r.kernelMtk.Size, MtkHeaderSize)
	}
	ramdiskTotal, ok := buf.AddUint32(r.ramdiskMtk.Size, MtkHeaderSize)
	if !ok || ramdiskTotal != hdr.RamdiskSize {
		return fmt.Errorf("%w: %d != %d + %d", ErrMismatchedRamdiskSizeInHeaders,
			hdr.RamdiskSize, r.ramdiskMtk.Size, MtkHeaderSize)
	}

	hdr.toHeader(header)

	pos := uint64(hdr.PageSize)
	entries := []segmentReaderEntry{
		{Type: EntryMtkKernelHeader, Offset: pos, Size: MtkHeaderSize},
		{Type: EntryKernel, Offset: pos + MtkHeaderSize, Size: r.kernelMtk.Size},
	}
	pos += pageAlign(hdr.KernelSize, hdr.PageSize)

	entries = append(entries,
		segmentReaderEntry{Type: EntryMtkRamdiskHeader, Offset: pos, Size: MtkHeaderSize},
		segmentReaderEntry{Type: EntryRamdisk, Offset: pos + MtkHeaderSize, Size: r.ramdiskMtk.Size},
	)
	pos += pageAlign(hdr.RamdiskSize, hdr.PageSize)

	if hdr.SecondSize > 0 {
		entries = append(entries, segmentReaderEntry{Type: EntrySecondBoot, Offset: pos, Size: hdr.SecondSize})
		pos += pageAlign(hdr.SecondSize, hdr.PageSize)
	}
	if hdr.DtSize > 0 {
		entries = append(entries, segmentReaderEntry{
			Type:        EntryDeviceTree,
			Offset:      pos,
			Size:        hdr.DtSize,
			CanTruncate: !r.strict,
		})
	}

	return r.seg.setEntries(entries)
}

func (r *mtkReader) ReadEntry(f File, entry *Entry) error {
	return r.seg.readEntry(f, entry)
}

func (r *mtkReader) GoToEntry(f File, entry *Entry, t EntryType) error {
	return r.seg.goToEntry(f, entry, t)
}

func (r *mtkReader) ReadData(f File, buf []byte) (int, error) {
	return r.seg.readData(f, buf)
}
