package bootimg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
)

// File is the seekable byte stream boot images are read from and written to.
// *os.File satisfies it.
type File interface {
	io.ReadWriteSeeker
	Truncate(size int64) error
	io.Closer
}

// MemoryFile is a File backed by a byte slice. Writing or truncating past the
// end grows the buffer, filling gaps with zeros.
type MemoryFile struct {
	data   []byte
	pos    int64
	closed bool
}

var errMemoryFileClosed = errors.New("memory file: already closed")

// NewMemoryFile returns a MemoryFile holding a copy of data.
func NewMemoryFile(data []byte) *MemoryFile {
	return &MemoryFile{data: append([]byte(nil), data...)}
}

// Bytes returns the current contents. The slice is only valid until the next
// write or truncate.
func (m *MemoryFile) Bytes() []byte {
	return m.data
}

func (m *MemoryFile) Read(p []byte) (int, error) {
	if m.closed {
		return 0, errMemoryFileClosed
	}
	if m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *MemoryFile) Write(p []byte) (int, error) {
	if m.closed {
		return 0, errMemoryFileClosed
	}
	end := m.pos + int64(len(p))
	if end > int64(len(m.data)) {
		m.grow(end)
	}
	n := copy(m.data[m.pos:], p)
	m.pos += int64(n)
	return n, nil
}

func (m *MemoryFile) Seek(offset int64, whence int) (int64, error) {
	if m.closed {
		return 0, errMemoryFileClosed
	}
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = m.pos
	case io.SeekEnd:
		base = int64(len(m.data))
	default:
		return 0, fmt.Errorf("memory file: invalid whence %d", whence)
	}
	if (offset > 0 && base > math.MaxInt64-offset) || base+offset < 0 {
		return 0, fmt.Errorf("memory file: invalid offset %d", offset)
	}
	m.pos = base + offset
	return m.pos, nil
}

// Truncate resizes the buffer to size bytes.
func (m *MemoryFile) Truncate(size int64) error {
	if m.closed {
		return errMemoryFileClosed
	}
	if size < 0 {
		return fmt.Errorf("memory file: invalid size %d", size)
	}
	if size > int64(len(m.data)) {
		m.grow(size)
	} else {
		m.data = m.data[:size]
	}
	return nil
}

// Close marks the file closed. The contents stay readable through Bytes.
func (m *MemoryFile) Close() error {
	if m.closed {
		return errMemoryFileClosed
	}
	m.closed = true
	return nil
}

func (m *MemoryFile) grow(size int64) {
	if size <= int64(cap(m.data)) {
		old := len(m.data)
		m.data = m.data[:size]
		clear(m.data[old:])
		return
	}
	grown := make([]byte, size, size+size/4)
	copy(grown, m.data)
	m.data = grown
}

// readFully reads until buf is full or EOF. Hitting EOF is not an error; the
// caller compares the returned count.
func readFully(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return n, nil
	}
	return n, err
}

// writeFully writes all of buf.
func writeFully(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		buf = buf[n:]
	}
	return nil
}

func seekTo(f File, offset uint64) error {
	if offset > math.MaxInt64 {
		return ErrEntryWouldOverflowOffset
	}
	_, err := f.Seek(int64(offset), io.SeekStart)
	return err
}

func fileSize(f File) (uint64, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	return uint64(size), nil
}

// readAt seeks to offset and reads into buf, reporting how many bytes were
// available.
func readAt(f File, offset uint64, buf []byte) (int, error) {
	if err := seekTo(f, offset); err != nil {
		return 0, err
	}
	return readFully(f, buf)
}

// writeAt seeks to offset and writes all of buf.
func writeAt(f File, offset uint64, buf []byte) error {
	if err := seekTo(f, offset); err != nil {
		return err
	}
	return writeFully(f, buf)
}

const searchChunkSize = 64 * 1024

// searchFile calls fn with the offset of every occurrence of pattern in
// [start, end). A negative end searches to EOF. Returning false from fn stops
// the search. The file position is undefined afterwards.
func searchFile(f File, start, end int64, pattern []byte, fn func(offset int64) (bool, error)) error {
	if len(pattern) == 0 {
		return nil
	}
	buf := make([]byte, searchChunkSize+len(pattern)-1)
	pos := start
	for end < 0 || pos < end {
		if _, err := f.Seek(pos, io.SeekStart); err != nil {
			return err
		}
		want := len(buf)
		if end >= 0 && int64(want) > end-pos+int64(len(pattern))-1 {
			want = int(end - pos + int64(len(pattern)) - 1)
		}
		n, err := readFully(f, buf[:want])
		if err != nil {
			return err
		}
		if n < len(pattern) {
			return nil
		}

		window := buf[:n]
		for i := 0; ; {
			idx := bytes.Index(window[i:], pattern)
			if idx < 0 {
				break
			}
			match := pos + int64(i+idx)
			if end >= 0 && match >= end {
				break
			}
			cont, err := fn(match)
			if err != nil || !cont {
				return err
			}
			// fn may have moved the file position
			i += idx + 1
		}

		if n < want {
			return nil
		}
		pos += int64(n - len(pattern) + 1)
	}
	return nil
}
