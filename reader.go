package bootimg

import (
	"errors"
	"fmt"
	"io"
	"os"
)

type readerState int

const (
	readerNew readerState = iota
	readerHeader
	readerEntry
	readerData
	readerFatal
)

func (s readerState) String() string {
	switch s {
	case readerNew:
		return "new"
	case readerHeader:
		return "header"
	case readerEntry:
		return "entry"
	case readerData:
		return "data"
	case readerFatal:
		return "fatal"
	}
	return "unknown"
}

// Reader parses boot images without knowing their format in advance. Every
// enabled format bids on the file and the highest bidder parses it.
//
// Calls must follow the order Open, ReadHeader, then any mix of ReadEntry,
// GoToEntry and ReadData, then Close. A Reader must not be used from
// multiple goroutines at once.
type Reader struct {
	state readerState

	file     File
	ownsFile bool
	formats  []formatReader
	format   formatReader
}

// NewReader returns a Reader with no formats enabled.
func NewReader() *Reader {
	return &Reader{}
}

func (r *Reader) ensureState(allowed ...readerState) error {
	for _, s := range allowed {
		if r.state == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrReaderInvalidState, r.state)
}

// EnableFormats enables every format in formats. Formats that are already
// enabled keep their position in the bidding order.
func (r *Reader) EnableFormats(formats Format) error {
	if err := r.ensureState(readerNew); err != nil {
		return err
	}
	if formats&^AllFormats != 0 {
		return fmt.Errorf("%w: %#x", ErrInvalidFormatCode, uint32(formats))
	}
	for _, f := range formats.Formats() {
		if r.isEnabled(f) {
			continue
		}
		info, _ := lookupFormat(f)
		r.formats = append(r.formats, info.newReader())
	}
	return nil
}

// EnableFormatsAll enables every supported format.
func (r *Reader) EnableFormatsAll() error {
	return r.EnableFormats(AllFormats)
}

// EnableFormatByName enables the format with the given name.
func (r *Reader) EnableFormatByName(name string) error {
	f, err := ParseFormat(name)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidFormatName, name)
	}
	return r.EnableFormats(f)
}

// EnabledFormats returns the union of the enabled formats.
func (r *Reader) EnabledFormats() Format {
	var out Format
	for _, fr := range r.formats {
		out |= fr.Type()
	}
	return out
}

func (r *Reader) isEnabled(f Format) bool {
	for _, fr := range r.formats {
		if fr.Type() == f {
			return true
		}
	}
	return false
}

// SetOption passes a key/value option to every enabled format. It fails with
// ErrUnknownOption when no enabled format understands the key.
func (r *Reader) SetOption(key, value string) error {
	if err := r.ensureState(readerNew); err != nil {
		return err
	}
	handled := false
	for _, fr := range r.formats {
		ok, err := fr.SetOption(key, value)
		if err != nil {
			return err
		}
		handled = handled || ok
	}
	if !handled {
		return fmt.Errorf("%w: %q", ErrUnknownOption, key)
	}
	return nil
}

// OpenFilename opens the file at path and detects its format. The file is
// closed by Close.
func (r *Reader) OpenFilename(path string) error {
	if err := r.ensureState(readerNew); err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	if err := r.Open(file); err != nil {
		file.Close()
		return err
	}
	r.ownsFile = true
	return nil
}

// Open detects the format of f. f is borrowed: Close does not close it.
func (r *Reader) Open(f File) error {
	if err := r.ensureState(readerNew); err != nil {
		return err
	}
	if len(r.formats) == 0 {
		return ErrNoFormatsRegistered
	}

	var best formatReader
	bestBid := 0

	for _, fr := range r.formats {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			if best != nil {
				best.Close(f)
			}
			return err
		}

		bid, err := fr.Open(f, bestBid)
		if err != nil {
			fr.Close(f)
			if best != nil {
				best.Close(f)
			}
			return fmt.Errorf("%s: %w", fr.Type(), err)
		}

		if bid > bestBid {
			if best != nil {
				best.Close(f)
			}
			best = fr
			bestBid = bid
		} else {
			fr.Close(f)
		}
	}

	if best == nil {
		return ErrUnknownFileFormat
	}

	r.file = f
	r.format = best
	r.state = readerHeader
	return nil
}

// FormatType returns the detected format. It is zero before Open succeeds.
func (r *Reader) FormatType() Format {
	if r.format == nil {
		return 0
	}
	return r.format.Type()
}

// fail marks the reader unusable after a genuine I/O or parse failure.
func (r *Reader) fail(err error) error {
	if err != nil && !errors.Is(err, ErrEndOfEntries) && !errors.Is(err, io.EOF) {
		r.state = readerFatal
	}
	return err
}

// ReadHeader parses the image header into header.
func (r *Reader) ReadHeader(header *Header) error {
	if err := r.ensureState(readerHeader); err != nil {
		return err
	}
	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		return r.fail(err)
	}
	if err := r.format.ReadHeader(r.file, header); err != nil {
		return r.fail(err)
	}
	r.state = readerEntry
	return nil
}

// ReadEntry moves to the next entry. Unread data of the current entry is
// skipped. ErrEndOfEntries is returned after the last entry.
func (r *Reader) ReadEntry(entry *Entry) error {
	if err := r.ensureState(readerEntry, readerData); err != nil {
		return err
	}
	if err := r.format.ReadEntry(r.file, entry); err != nil {
		return r.fail(err)
	}
	r.state = readerData
	return nil
}

// GoToEntry moves to the first entry of type t, or to the first entry when t
// is zero. ErrEndOfEntries is returned when no such entry exists.
func (r *Reader) GoToEntry(entry *Entry, t EntryType) error {
	if err := r.ensureState(readerEntry, readerData); err != nil {
		return err
	}
	if err := r.format.GoToEntry(r.file, entry, t); err != nil {
		return r.fail(err)
	}
	r.state = readerData
	return nil
}

// ReadData reads data of the current entry into buf. It returns io.EOF once
// the entry has been fully read.
func (r *Reader) ReadData(buf []byte) (int, error) {
	if err := r.ensureState(readerData); err != nil {
		return 0, err
	}
	n, err := r.format.ReadData(r.file, buf)
	return n, r.fail(err)
}

// Read implements io.Reader over the current entry.
func (r *Reader) Read(p []byte) (int, error) {
	return r.ReadData(p)
}

// Close releases the format and, when owned, the file. The reader returns to
// its initial state even when an error is reported, and can be opened again.
func (r *Reader) Close() error {
	if r.state == readerNew {
		return nil
	}

	var firstErr error
	if r.format != nil {
		firstErr = r.format.Close(r.file)
	}
	if r.ownsFile && r.file != nil {
		if err := r.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	r.file = nil
	r.ownsFile = false
	r.format = nil
	r.state = readerNew
	return firstErr
}
