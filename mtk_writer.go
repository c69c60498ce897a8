package bootimg

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// mtkWriter builds MediaTek images. Sub-headers the caller leaves empty are
// generated. Sizes in both header levels and the SHA-1 ID are patched in
// Close, after every section is on disk.
type mtkWriter struct {
	hdr           androidHeader
	headerWritten bool
	seg           segmentWriter
}

func newMtkWriter() *mtkWriter {
	return &mtkWriter{}
}

func (w *mtkWriter) Type() Format { return FormatMtk }

func (w *mtkWriter) SetOption(string, string) (bool, error) {
	return false, nil
}

func (w *mtkWriter) Open(File) error {
	w.reset()
	return nil
}

func (w *mtkWriter) reset() {
	w.hdr = androidHeader{}
	w.headerWritten = false
	w.seg = segmentWriter{}
}

func (w *mtkWriter) GetHeader(_ File, header *Header) error {
	header.Clear()
	header.SetSupportedFields(androidWriterFields)
	return nil
}

func (w *mtkWriter) WriteHeader(f File, header *Header) error {
	if err := w.hdr.fromHeader(header); err != nil {
		return err
	}

	page := uint64(w.hdr.PageSize)
	err := w.seg.setEntries([]segmentWriterEntry{
		{Type: EntryMtkKernelHeader},
		{Type: EntryKernel, Align: page},
		{Type: EntryMtkRamdiskHeader},
		{Type: EntryRamdisk, Align: page},
		{Type: EntrySecondBoot, Align: page},
		{Type: EntryDeviceTree, Align: page},
	})
	if err != nil {
		return err
	}

	if err := seekTo(f, page); err != nil {
		return err
	}
	w.headerWritten = true
	return nil
}

func isMtkHeaderEntry(t EntryType) bool {
	return t == EntryMtkKernelHeader || t == EntryMtkRamdiskHeader
}

func (w *mtkWriter) GetEntry(f File, entry *Entry) error {
	if w.seg.entryOpen() {
		if err := w.FinishEntry(f); err != nil {
			return err
		}
	}
	return w.seg.getEntry(f, entry)
}

func (w *mtkWriter) WriteEntry(_ File, entry *Entry) error {
	se := w.seg.current()
	if se != nil && isMtkHeaderEntry(se.Type) {
		if size, ok := entry.Size(); ok && size != 0 && size != MtkHeaderSize {
			return fmt.Errorf("%w: %d bytes", ErrInvalidMtkHeaderSize, size)
		}
	}
	return w.seg.writeEntry(entry)
}

func (w *mtkWriter) WriteData(f File, buf []byte) (int, error) {
	return w.seg.writeData(f, buf)
}

func (w *mtkWriter) FinishEntry(f File) error {
	se := w.seg.current()
	if se != nil && isMtkHeaderEntry(se.Type) {
		switch w.seg.bytesWritten() {
		case 0:
			if !se.HasSize || se.Size == 0 {
				// Drop a declared empty size so the generated header fits
				se.HasSize = false
				typ := mtkKernelType
				if se.Type == EntryMtkRamdiskHeader {
					typ = mtkRamdiskType
				}
				if _, err := w.seg.writeData(f, defaultMtkHeader(typ).marshal()); err != nil {
					return err
				}
			}
		case MtkHeaderSize:
		default:
			return fmt.Errorf("%w: %d bytes", ErrInvalidMtkHeaderSize, w.seg.bytesWritten())
		}
	}

	if err := w.seg.finishEntry(f); err != nil {
		return err
	}
	se = w.seg.current()
	w.hdr.setSectionSize(se.Type, se.Size)
	return nil
}

func (w *mtkWriter) Close(f File) error {
	defer w.reset()
	if !w.headerWritten {
		return nil
	}

	size, err := finishRemainingEntries(f, w)
	if err != nil {
		return err
	}
	if err := f.Truncate(int64(size)); err != nil {
		return err
	}

	// The Android header counts the sub-headers as part of each section
	kernel := w.seg.find(EntryKernel)
	ramdisk := w.seg.find(EntryRamdisk)
	if uint64(kernel.Size)+MtkHeaderSize > math.MaxUint32 ||
		uint64(ramdisk.Size)+MtkHeaderSize > math.MaxUint32 {
		return ErrMtkSizeTooLarge
	}
	w.hdr.KernelSize = kernel.Size + MtkHeaderSize
	w.hdr.RamdiskSize = ramdisk.Size + MtkHeaderSize

	if err := patchMtkHeaderSize(f, w.seg.find(EntryMtkKernelHeader).Offset, kernel.Size); err != nil {
		return err
	}
	if err := patchMtkHeaderSize(f, w.seg.find(EntryMtkRamdiskHeader).Offset, ramdisk.Size); err != nil {
		return err
	}

	id, err := w.computeID(f)
	if err != nil {
		return err
	}
	copy(w.hdr.ID[:], id)

	if err := writeAt(f, 0, w.hdr.marshal()); err != nil {
		return err
	}
	return writeAt(f, size, []byte(SamsungMagic))
}

// patchMtkHeaderSize rewrites the size field of the sub-header at offset.
func patchMtkHeaderSize(f File, offset uint64, size uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], size)
	return writeAt(f, offset+MtkMagicSize, b[:])
}

// computeID hashes the sections back from the file, since the sub-headers
// only got their final sizes after the data was written.
func (w *mtkWriter) computeID(f File) ([]byte, error) {
	h := sha1.New()
	sections := []struct {
		slot EntryType
		size uint32
	}{
		{EntryMtkKernelHeader, w.hdr.KernelSize},
		{EntryMtkRamdiskHeader, w.hdr.RamdiskSize},
		{EntrySecondBoot, w.hdr.SecondSize},
		{EntryDeviceTree, w.hdr.DtSize},
	}
	for _, s := range sections {
		if s.slot == EntryDeviceTree && s.size == 0 {
			continue
		}
		if err := seekTo(f, w.seg.find(s.slot).Offset); err != nil {
			return nil, err
		}
		if _, err := io.CopyN(h, f, int64(s.size)); err != nil {
			return nil, fmt.Errorf("hashing %s: %w", s.slot, err)
		}
		var le [4]byte
		binary.LittleEndian.PutUint32(le[:], s.size)
		h.Write(le[:])
	}
	return h.Sum(nil), nil
}
