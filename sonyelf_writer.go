package bootimg

import (
	"debug/elf"
	"fmt"
	"math"
)

// sonyElfWriter builds Sony ELF images. Segments are packed back to back
// from SonyElfDataOffset; the ELF and program headers are written in Close.
type sonyElfWriter struct {
	header        Header
	headerWritten bool
	seg           segmentWriter
}

func newSonyElfWriter() *sonyElfWriter {
	return &sonyElfWriter{}
}

func (w *sonyElfWriter) Type() Format { return FormatSonyElf }

func (w *sonyElfWriter) SetOption(string, string) (bool, error) {
	return false, nil
}

func (w *sonyElfWriter) Open(File) error {
	w.reset()
	return nil
}

func (w *sonyElfWriter) reset() {
	w.header = Header{}
	w.headerWritten = false
	w.seg = segmentWriter{}
}

func (w *sonyElfWriter) GetHeader(_ File, header *Header) error {
	header.Clear()
	header.SetSupportedFields(sonyElfHeaderFields)
	return nil
}

func (w *sonyElfWriter) WriteHeader(f File, header *Header) error {
	if cmdline, ok := header.KernelCmdline(); ok {
		if err := checkSonyCmdline(cmdline); err != nil {
			return err
		}
	}

	w.header = Header{}
	w.header.SetSupportedFields(sonyElfHeaderFields)
	w.header.Merge(header)

	err := w.seg.setEntries([]segmentWriterEntry{
		{Type: EntryKernel},
		{Type: EntryRamdisk},
		{Type: EntrySonyCmdline},
		{Type: EntrySonyIpl},
		{Type: EntrySonyRpm},
		{Type: EntrySonyAppsbl},
	})
	if err != nil {
		return err
	}

	if err := seekTo(f, SonyElfDataOffset); err != nil {
		return err
	}
	w.headerWritten = true
	return nil
}

// GetEntry hands out the next slot. The command line slot is filled from
// the header and never reaches the caller.
func (w *sonyElfWriter) GetEntry(f File, entry *Entry) error {
	if w.seg.entryOpen() {
		if err := w.FinishEntry(f); err != nil {
			return err
		}
	}
	if err := w.seg.getEntry(f, entry); err != nil {
		return err
	}
	if entry.Type != EntrySonyCmdline {
		return nil
	}

	if cmdline, ok := w.header.KernelCmdline(); ok && cmdline != "" {
		if _, err := w.seg.writeData(f, []byte(cmdline)); err != nil {
			return err
		}
	}
	if err := w.seg.finishEntry(f); err != nil {
		return err
	}
	return w.seg.getEntry(f, entry)
}

func (w *sonyElfWriter) WriteEntry(_ File, entry *Entry) error {
	return w.seg.writeEntry(entry)
}

func (w *sonyElfWriter) WriteData(f File, buf []byte) (int, error) {
	return w.seg.writeData(f, buf)
}

func (w *sonyElfWriter) FinishEntry(f File) error {
	return w.seg.finishEntry(f)
}

func (w *sonyElfWriter) Close(f File) error {
	defer w.reset()
	if !w.headerWritten {
		return nil
	}

	size, err := finishRemainingEntries(f, w)
	if err != nil {
		return err
	}

	var phdrs []sonyElfPhdr
	for _, se := range w.seg.entries {
		if se.Size == 0 {
			continue
		}
		typ, flags := sonySegmentTypeFlags(se.Type)
		addr := sonySegmentAddress(&w.header, se.Type)
		phdrs = append(phdrs, sonyElfPhdr{
			Type:   typ,
			Offset: uint32(se.Offset),
			Vaddr:  addr,
			Paddr:  addr,
			Filesz: se.Size,
			Memsz:  se.Size,
			Flags:  flags,
		})
	}
	if len(phdrs) > SonyElfMaxPhdrs {
		return ErrSonyElfTooManySegments
	}
	if size > math.MaxUint32 {
		return fmt.Errorf("%w: image of %d bytes", ErrEntryWouldOverflowOffset, size)
	}

	entrypoint, _ := w.header.EntrypointAddress()
	ehdr := sonyElfEhdr{
		Ident:     SonyElfIdent,
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_ARM),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     entrypoint,
		Phoff:     SonyElfEhdrSize,
		Ehsize:    SonyElfEhdrSize,
		Phentsize: SonyElfPhdrSize,
		Phnum:     uint16(len(phdrs)),
	}

	b := make([]byte, SonyElfEhdrSize+len(phdrs)*SonyElfPhdrSize)
	ehdr.encodeTo(b)
	for i := range phdrs {
		phdrs[i].encodeTo(b[SonyElfEhdrSize+i*SonyElfPhdrSize:])
	}

	if err := f.Truncate(int64(size)); err != nil {
		return err
	}
	return writeAt(f, 0, b)
}
