package bootimg

import (
	"fmt"
	"io"
	"math"

	"github.com/chenxiaolong/DualBootPatcher-sub001/internal/buf"
)

type segmentState int

const (
	segmentBegin segmentState = iota
	segmentEntries
	segmentEnd
)

// segmentReaderEntry is one named byte range of an image being read.
type segmentReaderEntry struct {
	Type        EntryType
	Offset      uint64
	Size        uint32
	CanTruncate bool
}

// segmentReader walks an ordered list of byte ranges. Every format reader
// embeds one and fills its list in ReadHeader.
type segmentReader struct {
	state   segmentState
	entries []segmentReaderEntry
	index   int

	readEndOffset uint64
	readCurOffset uint64
}

func (s *segmentReader) setEntries(entries []segmentReaderEntry) error {
	if s.state != segmentBegin {
		return ErrAddEntryInIncorrectState
	}
	s.entries = append(s.entries[:0], entries...)
	return nil
}

func (s *segmentReader) current() *segmentReaderEntry {
	if s.state != segmentEntries || s.index >= len(s.entries) {
		return nil
	}
	return &s.entries[s.index]
}

func (s *segmentReader) readEntry(f File, entry *Entry) error {
	next := 0
	switch s.state {
	case segmentBegin:
	case segmentEntries:
		next = s.index + 1
	case segmentEnd:
		return ErrEndOfEntries
	}
	return s.moveToEntry(f, entry, next)
}

// goToEntry jumps to the first entry of type t, searching the whole list.
// A zero type selects the first entry.
func (s *segmentReader) goToEntry(f File, entry *Entry, t EntryType) error {
	if t == 0 {
		return s.moveToEntry(f, entry, 0)
	}
	for i := range s.entries {
		if s.entries[i].Type == t {
			return s.moveToEntry(f, entry, i)
		}
	}
	s.state = segmentEnd
	return ErrEndOfEntries
}

func (s *segmentReader) moveToEntry(f File, entry *Entry, index int) error {
	if index >= len(s.entries) {
		s.state = segmentEnd
		return ErrEndOfEntries
	}

	se := &s.entries[index]
	end, ok := buf.AddOffset(se.Offset, uint64(se.Size))
	if !ok {
		return fmt.Errorf("%w: %s at %d+%d", ErrEntryWouldOverflowOffset, se.Type, se.Offset, se.Size)
	}

	// Skip the seek when the previous read stopped exactly where this entry
	// starts.
	if s.state != segmentEntries || s.readCurOffset != se.Offset {
		if err := seekTo(f, se.Offset); err != nil {
			return err
		}
	}

	s.state = segmentEntries
	s.index = index
	s.readEndOffset = end
	s.readCurOffset = se.Offset

	entry.Clear()
	entry.Type = se.Type
	entry.SetSize(uint64(se.Size))
	return nil
}

// readData copies up to len(p) bytes of the current entry. It returns io.EOF
// once the entry is drained.
func (s *segmentReader) readData(f File, p []byte) (int, error) {
	se := s.current()
	if se == nil {
		return 0, ErrNoCurrentEntry
	}

	remaining := s.readEndOffset - s.readCurOffset
	if remaining == 0 {
		return 0, io.EOF
	}
	toRead := uint64(len(p))
	if toRead > remaining {
		toRead = remaining
	}
	if toRead > math.MaxInt {
		return 0, ErrReadWouldOverflowInteger
	}
	if _, ok := buf.AddOffset(s.readCurOffset, toRead); !ok {
		return 0, ErrReadWouldOverflowInteger
	}

	n, err := readFully(f, p[:toRead])
	if err != nil {
		return n, err
	}
	s.readCurOffset += uint64(n)

	if uint64(n) < toRead {
		if !se.CanTruncate {
			return n, fmt.Errorf("%s: entry ends at %d but file ends at %d: %w",
				se.Type, s.readEndOffset, s.readCurOffset, io.ErrUnexpectedEOF)
		}
		// The rest of the entry is missing from the file; treat the
		// short read as its end.
		s.readEndOffset = s.readCurOffset
		if n == 0 {
			return 0, io.EOF
		}
	}
	return n, nil
}

// segmentWriterEntry is one slot of an image being written. Offsets are
// discovered while writing and sizes are locked by the caller or by
// finishEntry.
type segmentWriterEntry struct {
	Type    EntryType
	Offset  uint64
	Size    uint32
	HasSize bool
	Align   uint64
}

// segmentWriter hands out slots in order and records where each one landed.
type segmentWriter struct {
	state   segmentState
	entries []segmentWriterEntry
	index   int
	open    bool

	entrySize uint32
	pos       uint64
}

func (s *segmentWriter) setEntries(entries []segmentWriterEntry) error {
	if s.state != segmentBegin {
		return ErrAddEntryInIncorrectState
	}
	s.entries = append(s.entries[:0], entries...)
	return nil
}

func (s *segmentWriter) current() *segmentWriterEntry {
	if s.state != segmentEntries || s.index >= len(s.entries) {
		return nil
	}
	return &s.entries[s.index]
}

// find returns the first slot of type t.
func (s *segmentWriter) find(t EntryType) *segmentWriterEntry {
	for i := range s.entries {
		if s.entries[i].Type == t {
			return &s.entries[i]
		}
	}
	return nil
}

// entryOpen reports whether a slot was handed out but not finished yet.
func (s *segmentWriter) entryOpen() bool {
	return s.open
}

func (s *segmentWriter) getEntry(f File, entry *Entry) error {
	switch s.state {
	case segmentBegin:
		s.index = 0
	case segmentEntries:
		if s.open {
			if err := s.finishEntry(f); err != nil {
				return err
			}
		}
		s.index++
	case segmentEnd:
		return ErrEndOfEntries
	}

	if s.index >= len(s.entries) {
		s.state = segmentEnd
		return ErrEndOfEntries
	}
	s.state = segmentEntries

	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	se := &s.entries[s.index]
	se.Offset = uint64(pos)
	s.pos = uint64(pos)
	s.entrySize = 0
	s.open = true

	entry.Clear()
	entry.Type = se.Type
	if se.HasSize {
		entry.SetSize(uint64(se.Size))
	}
	return nil
}

func (s *segmentWriter) writeEntry(entry *Entry) error {
	se := s.current()
	if se == nil || !s.open {
		return ErrNoCurrentEntry
	}
	if size, ok := entry.Size(); ok && !se.HasSize {
		if size > math.MaxUint32 {
			return fmt.Errorf("%w: %s: %d bytes", ErrEntrySizeTooLarge, se.Type, size)
		}
		se.Size = uint32(size)
		se.HasSize = true
	}
	return nil
}

func (s *segmentWriter) writeData(f File, p []byte) (int, error) {
	se := s.current()
	if se == nil || !s.open {
		return 0, ErrNoCurrentEntry
	}
	if uint64(len(p)) > math.MaxUint32 {
		return 0, ErrWriteWouldOverflowInteger
	}
	newSize, ok := buf.AddUint32(s.entrySize, uint32(len(p)))
	if !ok {
		return 0, ErrWriteWouldOverflowInteger
	}
	if se.HasSize && newSize > se.Size {
		return 0, fmt.Errorf("%w: %s: %d > %d", ErrWriteExceedsEntrySize, se.Type, newSize, se.Size)
	}
	newPos, ok := buf.AddOffset(s.pos, uint64(len(p)))
	if !ok {
		return 0, ErrWriteWouldOverflowInteger
	}

	if err := writeFully(f, p); err != nil {
		return 0, err
	}
	s.entrySize = newSize
	s.pos = newPos
	return len(p), nil
}

// finishEntry locks the slot size and skips ahead to the next aligned file
// position. Padding is not written; the final truncate fills any hole with
// zeros.
func (s *segmentWriter) finishEntry(f File) error {
	se := s.current()
	if se == nil || !s.open {
		return ErrNoCurrentEntry
	}
	if !se.HasSize {
		se.Size = s.entrySize
		se.HasSize = true
	} else if s.entrySize != se.Size {
		return fmt.Errorf("%w: %s: %d < %d", ErrEntryIsTruncated, se.Type, s.entrySize, se.Size)
	}

	skip := buf.PaddingSize(s.pos, se.Align)
	newPos, ok := buf.AddOffset(s.pos, skip)
	if !ok {
		return ErrWriteWouldOverflowInteger
	}
	if skip > 0 {
		if _, err := f.Seek(int64(skip), io.SeekCurrent); err != nil {
			return err
		}
	}
	s.pos = newPos
	s.open = false
	return nil
}

// bytesWritten returns the amount of data written to the open slot.
func (s *segmentWriter) bytesWritten() uint32 {
	return s.entrySize
}

// position returns the tracked file position.
func (s *segmentWriter) position() uint64 {
	return s.pos
}
