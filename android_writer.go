package bootimg

import (
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"hash"
	"io"
)

// androidWriter builds plain Android images, and Bump images when bump is
// set. Section sizes and the SHA-1 ID are only known once every entry is
// finished, so the header is written last, in Close.
type androidWriter struct {
	bump bool

	hdr           androidHeader
	headerWritten bool
	seg           segmentWriter
	sha           hash.Hash
}

func newAndroidWriter(bump bool) *androidWriter {
	return &androidWriter{bump: bump}
}

func (w *androidWriter) Type() Format {
	if w.bump {
		return FormatBump
	}
	return FormatAndroid
}

func (w *androidWriter) SetOption(string, string) (bool, error) {
	return false, nil
}

func (w *androidWriter) Open(File) error {
	w.reset()
	return nil
}

func (w *androidWriter) reset() {
	w.hdr = androidHeader{}
	w.headerWritten = false
	w.seg = segmentWriter{}
	w.sha = sha1.New()
}

func (w *androidWriter) GetHeader(_ File, header *Header) error {
	header.Clear()
	header.SetSupportedFields(androidWriterFields)
	return nil
}

func (w *androidWriter) WriteHeader(f File, header *Header) error {
	if err := w.hdr.fromHeader(header); err != nil {
		return err
	}

	page := uint64(w.hdr.PageSize)
	err := w.seg.setEntries([]segmentWriterEntry{
		{Type: EntryKernel, Align: page},
		{Type: EntryRamdisk, Align: page},
		{Type: EntrySecondBoot, Align: page},
		{Type: EntryDeviceTree, Align: page},
	})
	if err != nil {
		return err
	}

	// Sections start after the header page
	if err := seekTo(f, page); err != nil {
		return err
	}
	w.headerWritten = true
	return nil
}

func (w *androidWriter) GetEntry(f File, entry *Entry) error {
	if w.seg.entryOpen() {
		if err := w.FinishEntry(f); err != nil {
			return err
		}
	}
	return w.seg.getEntry(f, entry)
}

func (w *androidWriter) WriteEntry(_ File, entry *Entry) error {
	return w.seg.writeEntry(entry)
}

func (w *androidWriter) WriteData(f File, buf []byte) (int, error) {
	n, err := w.seg.writeData(f, buf)
	if err != nil {
		return n, err
	}
	w.sha.Write(buf[:n])
	return n, nil
}

func (w *androidWriter) FinishEntry(f File) error {
	if err := w.seg.finishEntry(f); err != nil {
		return err
	}
	se := w.seg.current()
	hashEntrySize(w.sha, se)
	w.hdr.setSectionSize(se.Type, se.Size)
	return nil
}

func (w *androidWriter) Close(f File) error {
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

	copy(w.hdr.ID[:], w.sha.Sum(nil))
	if err := writeAt(f, 0, w.hdr.marshal()); err != nil {
		return err
	}

	magic := []byte(SamsungMagic)
	if w.bump {
		magic = BumpMagic[:]
	}
	return writeAt(f, size, magic)
}

// hashEntrySize feeds the little-endian section size into the image ID, the
// way mkbootimg does. Empty device trees are left out.
func hashEntrySize(h hash.Hash, se *segmentWriterEntry) {
	if se.Type == EntryDeviceTree && se.Size == 0 {
		return
	}
	var le [4]byte
	binary.LittleEndian.PutUint32(le[:], se.Size)
	h.Write(le[:])
}

// setSectionSize records a finished section in the header.
func (h *androidHeader) setSectionSize(t EntryType, size uint32) {
	switch t {
	case EntryKernel:
		h.KernelSize = size
	case EntryRamdisk:
		h.RamdiskSize = size
	case EntrySecondBoot:
		h.SecondSize = size
	case EntryDeviceTree:
		h.DtSize = size
	}
}

// entrySlotWriter is the subset of formatWriter needed to drain slots.
type entrySlotWriter interface {
	GetEntry(f File, entry *Entry) error
	FinishEntry(f File) error
}

// finishRemainingEntries finishes every slot the caller never asked for as
// an empty entry and returns the resulting end of data.
func finishRemainingEntries(f File, w entrySlotWriter) (uint64, error) {
	var entry Entry
	for {
		err := w.GetEntry(f, &entry)
		if errors.Is(err, ErrEndOfEntries) {
			break
		} else if err != nil {
			return 0, err
		}
		if err := w.FinishEntry(f); err != nil {
			return 0, err
		}
	}

	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	return uint64(pos), nil
}
