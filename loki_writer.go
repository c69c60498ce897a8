package bootimg

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
)

// lokiWriter builds a plain Android image and runs the Loki patch over it
// when the image is finalized. The aboot entry is never stored in the image;
// it is only kept in memory to find the signature check.
type lokiWriter struct {
	hdr           androidHeader
	headerWritten bool
	seg           segmentWriter
	sha           hash.Hash

	aboot     []byte
	abootSize uint64
	abootSet  bool
}

func newLokiWriter() *lokiWriter {
	return &lokiWriter{}
}

func (w *lokiWriter) Type() Format { return FormatLoki }

func (w *lokiWriter) SetOption(string, string) (bool, error) {
	return false, nil
}

func (w *lokiWriter) Open(File) error {
	w.reset()
	return nil
}

func (w *lokiWriter) reset() {
	w.hdr = androidHeader{}
	w.headerWritten = false
	w.seg = segmentWriter{}
	w.sha = sha1.New()
	w.aboot = nil
	w.abootSize = 0
	w.abootSet = false
}

func (w *lokiWriter) GetHeader(_ File, header *Header) error {
	header.Clear()
	header.SetSupportedFields(androidWriterFields)
	return nil
}

func (w *lokiWriter) WriteHeader(f File, header *Header) error {
	if err := w.hdr.fromHeader(header); err != nil {
		return err
	}

	page := uint64(w.hdr.PageSize)
	err := w.seg.setEntries([]segmentWriterEntry{
		{Type: EntryKernel, Align: page},
		{Type: EntryRamdisk, Align: page},
		{Type: EntryDeviceTree, Align: page},
		{Type: EntryAboot},
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

func (w *lokiWriter) isAboot() bool {
	se := w.seg.current()
	return se != nil && se.Type == EntryAboot
}

func (w *lokiWriter) GetEntry(f File, entry *Entry) error {
	if w.seg.entryOpen() {
		if err := w.FinishEntry(f); err != nil {
			return err
		}
	}
	return w.seg.getEntry(f, entry)
}

func (w *lokiWriter) WriteEntry(_ File, entry *Entry) error {
	if !w.isAboot() {
		return w.seg.writeEntry(entry)
	}
	if size, ok := entry.Size(); ok {
		if size > lokiMaxAbootSize {
			return fmt.Errorf("%w: %d bytes", ErrAbootImageTooLarge, size)
		}
		w.abootSize = size
		w.abootSet = true
	}
	return nil
}

func (w *lokiWriter) WriteData(f File, buf []byte) (int, error) {
	if w.isAboot() {
		if len(w.aboot)+len(buf) > lokiMaxAbootSize {
			return 0, fmt.Errorf("%w: more than %d bytes", ErrAbootImageTooLarge, lokiMaxAbootSize)
		}
		if w.abootSet && uint64(len(w.aboot)+len(buf)) > w.abootSize {
			return 0, fmt.Errorf("%w: %s", ErrWriteExceedsEntrySize, EntryAboot)
		}
		w.aboot = append(w.aboot, buf...)
		return len(buf), nil
	}

	n, err := w.seg.writeData(f, buf)
	if err != nil {
		return n, err
	}
	w.sha.Write(buf[:n])
	return n, nil
}

func (w *lokiWriter) FinishEntry(f File) error {
	if w.isAboot() {
		if w.abootSet && uint64(len(w.aboot)) != w.abootSize {
			return fmt.Errorf("%w: %s: %d < %d", ErrEntryIsTruncated, EntryAboot, len(w.aboot), w.abootSize)
		}
		// Nothing was written to the file, so the slot ends up empty
		return w.seg.finishEntry(f)
	}

	if err := w.seg.finishEntry(f); err != nil {
		return err
	}
	se := w.seg.current()
	hashEntrySize(w.sha, se)
	if se.Type == EntryRamdisk {
		// Loki images have no second stage bootloader; hash it as empty
		// so the ID matches a plain Android image.
		var le [4]byte
		binary.LittleEndian.PutUint32(le[:], 0)
		w.sha.Write(le[:])
	}
	w.hdr.setSectionSize(se.Type, se.Size)
	return nil
}

func (w *lokiWriter) Close(f File) error {
	defer w.reset()
	if !w.headerWritten {
		return nil
	}

	size, err := finishRemainingEntries(f, w)
	if err != nil {
		return err
	}
	if len(w.aboot) == 0 {
		return ErrNoAbootImage
	}
	if err := f.Truncate(int64(size)); err != nil {
		return err
	}

	copy(w.hdr.ID[:], w.sha.Sum(nil))
	if err := writeAt(f, 0, w.hdr.marshal()); err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return PatchLoki(f, w.aboot)
}
