package bootimg

import (
	"errors"
	"fmt"
	"io"
	"os"
)

type writerState int

const (
	writerNew writerState = iota
	writerHeader
	writerEntry
	writerData
	writerFatal
)

func (s writerState) String() string {
	switch s {
	case writerNew:
		return "new"
	case writerHeader:
		return "header"
	case writerEntry:
		return "entry"
	case writerData:
		return "data"
	case writerFatal:
		return "fatal"
	}
	return "unknown"
}

// Writer builds a boot image in one format.
//
// Calls must follow the order SetFormat, Open, GetHeader, WriteHeader, then
// for every entry GetEntry, WriteEntry, WriteData and FinishEntry, then
// Close. Entries are handed out in the order the format stores them; slots
// that are never requested end up empty. GetEntry finishes the previous
// entry if FinishEntry was skipped.
type Writer struct {
	state writerState

	file     File
	ownsFile bool
	format   formatWriter
}

// NewWriter returns a Writer with no format selected.
func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) ensureState(allowed ...writerState) error {
	for _, s := range allowed {
		if w.state == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrWriterInvalidState, w.state)
}

// SetFormat selects the output format. Exactly one format must be given.
func (w *Writer) SetFormat(format Format) error {
	if err := w.ensureState(writerNew); err != nil {
		return err
	}
	info, ok := lookupFormat(format)
	if !ok {
		return fmt.Errorf("%w: %#x", ErrInvalidFormatCode, uint32(format))
	}
	w.format = info.newWriter()
	return nil
}

// SetFormatByName selects the output format by name.
func (w *Writer) SetFormatByName(name string) error {
	if err := w.ensureState(writerNew); err != nil {
		return err
	}
	format, err := ParseFormat(name)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidFormatName, name)
	}
	return w.SetFormat(format)
}

// FormatType returns the selected format, or zero.
func (w *Writer) FormatType() Format {
	if w.format == nil {
		return 0
	}
	return w.format.Type()
}

// SetOption passes a key/value option to the selected format.
func (w *Writer) SetOption(key, value string) error {
	if err := w.ensureState(writerNew); err != nil {
		return err
	}
	if w.format == nil {
		return ErrNoFormatRegistered
	}
	ok, err := w.format.SetOption(key, value)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOption, key)
	}
	return nil
}

// OpenFilename creates or truncates the file at path and writes to it. The
// file is closed by Close.
func (w *Writer) OpenFilename(path string) error {
	if err := w.ensureState(writerNew); err != nil {
		return err
	}
	if w.format == nil {
		return ErrNoFormatSelected
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := w.Open(file); err != nil {
		file.Close()
		return err
	}
	w.ownsFile = true
	return nil
}

// Open starts writing to f. f is borrowed: Close does not close it.
func (w *Writer) Open(f File) error {
	if err := w.ensureState(writerNew); err != nil {
		return err
	}
	if w.format == nil {
		return ErrNoFormatSelected
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := w.format.Open(f); err != nil {
		return err
	}
	w.file = f
	w.state = writerHeader
	return nil
}

func (w *Writer) fail(err error) error {
	if err != nil && !errors.Is(err, ErrEndOfEntries) {
		w.state = writerFatal
	}
	return err
}

// GetHeader fills header with the fields the format can store.
func (w *Writer) GetHeader(header *Header) error {
	if err := w.ensureState(writerHeader); err != nil {
		return err
	}
	return w.fail(w.format.GetHeader(w.file, header))
}

// WriteHeader validates header and reserves room for it. The header itself
// is written when the image is finalized.
func (w *Writer) WriteHeader(header *Header) error {
	if err := w.ensureState(writerHeader); err != nil {
		return err
	}
	if err := w.format.WriteHeader(w.file, header); err != nil {
		return w.fail(err)
	}
	w.state = writerEntry
	return nil
}

// GetEntry moves to the next slot and fills entry with its type. An entry
// still open is finished first, as if FinishEntry had been called.
// ErrEndOfEntries is returned once every slot has been handed out.
func (w *Writer) GetEntry(entry *Entry) error {
	if err := w.ensureState(writerEntry, writerData); err != nil {
		return err
	}
	if err := w.format.GetEntry(w.file, entry); err != nil {
		if errors.Is(err, ErrEndOfEntries) {
			w.state = writerEntry
		}
		return w.fail(err)
	}
	w.state = writerData
	return nil
}

// WriteEntry declares the current slot. When entry carries a size, exactly
// that many bytes must be written.
func (w *Writer) WriteEntry(entry *Entry) error {
	if err := w.ensureState(writerData); err != nil {
		return err
	}
	return w.fail(w.format.WriteEntry(w.file, entry))
}

// WriteData appends buf to the current entry.
func (w *Writer) WriteData(buf []byte) (int, error) {
	if err := w.ensureState(writerData); err != nil {
		return 0, err
	}
	n, err := w.format.WriteData(w.file, buf)
	return n, w.fail(err)
}

// Write implements io.Writer over the current entry.
func (w *Writer) Write(p []byte) (int, error) {
	return w.WriteData(p)
}

// FinishEntry completes the current entry.
func (w *Writer) FinishEntry() error {
	if err := w.ensureState(writerData); err != nil {
		return err
	}
	if err := w.format.FinishEntry(w.file); err != nil {
		return w.fail(err)
	}
	w.state = writerEntry
	return nil
}

// Close finalizes the image when the header was written and no error
// occurred, then releases the file if owned. The writer always returns to
// its initial state with the format still selected.
func (w *Writer) Close() error {
	if w.state == writerNew {
		return nil
	}

	// A broken image is left as is. The format resets itself on the next
	// Open.
	var firstErr error
	if w.state != writerFatal {
		firstErr = w.format.Close(w.file)
	}

	if w.ownsFile && w.file != nil {
		if err := w.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	w.file = nil
	w.ownsFile = false
	w.state = writerNew
	return firstErr
}
