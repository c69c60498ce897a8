package bootimg

import (
	"errors"
	"fmt"
	"strconv"
)

// androidReader parses plain Android images, and Bump images when bump is
// set. The two only differ in the trailing magic they look for.
type androidReader struct {
	bump   bool
	strict bool

	hdr *androidHeader
	seg segmentReader
}

func newAndroidReader(bump bool) *androidReader {
	return &androidReader{bump: bump}
}

func (r *androidReader) Type() Format {
	if r.bump {
		return FormatBump
	}
	return FormatAndroid
}

func (r *androidReader) SetOption(key, value string) (bool, error) {
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

func (r *androidReader) trailingMagic() []byte {
	if r.bump {
		return BumpMagic[:]
	}
	return []byte(SamsungMagic)
}

func (r *androidReader) Open(f File, bestBid int) (int, error) {
	maxBid := BootMagicSize*8 + len(r.trailingMagic())*8
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

	found, err := findTrailingMagic(f, hdr, r.trailingMagic())
	if err != nil {
		return 0, err
	}
	if found {
		bid += len(r.trailingMagic()) * 8
	}

	r.hdr = hdr
	return bid, nil
}

func (r *androidReader) Close(File) error {
	r.hdr = nil
	r.seg = segmentReader{}
	return nil
}

func (r *androidReader) ReadHeader(f File, header *Header) error {
	if !isValidPageSize(r.hdr.PageSize) {
		return fmt.Errorf("%w: %d", ErrInvalidPageSize, r.hdr.PageSize)
	}

	r.hdr.toHeader(header)
	return r.seg.setEntries(androidSegmentEntries(r.hdr, !r.strict))
}

// androidSegmentEntries lays out the sections that follow the header page.
// Second stage bootloader and device tree only exist when non-empty.
func androidSegmentEntries(hdr *androidHeader, allowTruncatedDT bool) []segmentReaderEntry {
	pos := uint64(hdr.PageSize)

	entries := []segmentReaderEntry{{Type: EntryKernel, Offset: pos, Size: hdr.KernelSize}}
	pos += pageAlign(hdr.KernelSize, hdr.PageSize)

	entries = append(entries, segmentReaderEntry{Type: EntryRamdisk, Offset: pos, Size: hdr.RamdiskSize})
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
			CanTruncate: allowTruncatedDT,
		})
	}

	return entries
}

func (r *androidReader) ReadEntry(f File, entry *Entry) error {
	return r.seg.readEntry(f, entry)
}

func (r *androidReader) GoToEntry(f File, entry *Entry, t EntryType) error {
	return r.seg.goToEntry(f, entry, t)
}

func (r *androidReader) ReadData(f File, buf []byte) (int, error) {
	return r.seg.readData(f, buf)
}
