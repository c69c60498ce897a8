package bootimg

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func readSegment(t *testing.T, s *segmentReader, f File) string {
	t.Helper()
	var out []byte
	b := make([]byte, 3)
	for {
		n, err := s.readData(f, b)
		out = append(out, b[:n]...)
		if errors.Is(err, io.EOF) {
			return string(out)
		}
		require.NoError(t, err)
	}
}

func TestSegmentReaderWalk(t *testing.T) {
	f := NewMemoryFile([]byte("xxxxKERNELyyRAMDISKzz"))

	var s segmentReader
	require.NoError(t, s.setEntries([]segmentReaderEntry{
		{Type: EntryKernel, Offset: 4, Size: 6},
		{Type: EntryRamdisk, Offset: 12, Size: 7},
	}))

	var entry Entry
	_, err := s.readData(f, make([]byte, 1))
	require.ErrorIs(t, err, ErrNoCurrentEntry)

	require.NoError(t, s.readEntry(f, &entry))
	require.Equal(t, EntryKernel, entry.Type)
	size, ok := entry.Size()
	require.True(t, ok)
	require.EqualValues(t, 6, size)
	require.Equal(t, "KERNEL", readSegment(t, &s, f))

	require.NoError(t, s.readEntry(f, &entry))
	require.Equal(t, EntryRamdisk, entry.Type)
	require.Equal(t, "RAMDISK", readSegment(t, &s, f))

	require.ErrorIs(t, s.readEntry(f, &entry), ErrEndOfEntries)
	require.ErrorIs(t, s.readEntry(f, &entry), ErrEndOfEntries)

	// Jumping works from any state
	require.NoError(t, s.goToEntry(f, &entry, EntryKernel))
	require.Equal(t, "KERNEL", readSegment(t, &s, f))
	require.NoError(t, s.goToEntry(f, &entry, 0))
	require.Equal(t, EntryKernel, entry.Type)
	require.ErrorIs(t, s.goToEntry(f, &entry, EntryDeviceTree), ErrEndOfEntries)
}

func TestSegmentReaderSkipsUnreadData(t *testing.T) {
	f := NewMemoryFile([]byte("abcdefgh"))

	var s segmentReader
	require.NoError(t, s.setEntries([]segmentReaderEntry{
		{Type: EntryKernel, Offset: 0, Size: 4},
		{Type: EntryRamdisk, Offset: 4, Size: 4},
	}))

	var entry Entry
	require.NoError(t, s.readEntry(f, &entry))
	b := make([]byte, 1)
	_, err := s.readData(f, b)
	require.NoError(t, err)

	require.NoError(t, s.readEntry(f, &entry))
	require.Equal(t, "efgh", readSegment(t, &s, f))
}

func TestSegmentReaderSetEntriesAfterStart(t *testing.T) {
	f := NewMemoryFile([]byte("abc"))

	var s segmentReader
	require.NoError(t, s.setEntries([]segmentReaderEntry{{Type: EntryKernel, Size: 3}}))
	var entry Entry
	require.NoError(t, s.readEntry(f, &entry))
	require.ErrorIs(t, s.setEntries(nil), ErrAddEntryInIncorrectState)
}

func TestSegmentReaderTruncatedEntry(t *testing.T) {
	f := NewMemoryFile([]byte("0123456789"))

	var s segmentReader
	require.NoError(t, s.setEntries([]segmentReaderEntry{
		{Type: EntryKernel, Offset: 6, Size: 10},
		{Type: EntryDeviceTree, Offset: 6, Size: 10, CanTruncate: true},
	}))

	var entry Entry
	require.NoError(t, s.readEntry(f, &entry))
	_, err := s.readData(f, make([]byte, 10))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	require.NoError(t, s.readEntry(f, &entry))
	require.Equal(t, EntryDeviceTree, entry.Type)
	require.Equal(t, "6789", readSegment(t, &s, f))
}

func TestSegmentReaderOffsetOverflow(t *testing.T) {
	f := NewMemoryFile(nil)

	var s segmentReader
	require.NoError(t, s.setEntries([]segmentReaderEntry{
		{Type: EntryKernel, Offset: ^uint64(0) - 1, Size: 8},
	}))
	var entry Entry
	require.ErrorIs(t, s.readEntry(f, &entry), ErrEntryWouldOverflowOffset)
}

func TestSegmentWriterLayout(t *testing.T) {
	f := NewMemoryFile(nil)

	var s segmentWriter
	require.NoError(t, s.setEntries([]segmentWriterEntry{
		{Type: EntryKernel, Align: 16},
		{Type: EntryRamdisk, Align: 16},
		{Type: EntryDeviceTree},
	}))

	var entry Entry
	require.NoError(t, s.getEntry(f, &entry))
	require.Equal(t, EntryKernel, entry.Type)
	_, ok := entry.Size()
	require.False(t, ok)
	_, err := s.writeData(f, []byte("abc"))
	require.NoError(t, err)
	require.NoError(t, s.finishEntry(f))
	require.EqualValues(t, 16, s.position())

	// getEntry finishes the open slot
	require.NoError(t, s.getEntry(f, &entry))
	require.Equal(t, EntryRamdisk, entry.Type)
	_, err = s.writeData(f, []byte("defg"))
	require.NoError(t, err)
	require.EqualValues(t, 4, s.bytesWritten())

	require.NoError(t, s.getEntry(f, &entry))
	require.Equal(t, EntryDeviceTree, entry.Type)
	require.NoError(t, s.finishEntry(f))

	require.ErrorIs(t, s.getEntry(f, &entry), ErrEndOfEntries)
	require.ErrorIs(t, s.setEntries(nil), ErrAddEntryInIncorrectState)

	kernel := s.find(EntryKernel)
	require.EqualValues(t, 0, kernel.Offset)
	require.EqualValues(t, 3, kernel.Size)
	ramdisk := s.find(EntryRamdisk)
	require.EqualValues(t, 16, ramdisk.Offset)
	require.EqualValues(t, 4, ramdisk.Size)
	dt := s.find(EntryDeviceTree)
	require.EqualValues(t, 32, dt.Offset)
	require.EqualValues(t, 0, dt.Size)
	require.Nil(t, s.find(EntrySecondBoot))

	require.Equal(t, "abc", string(f.Bytes()[:3]))
	require.Equal(t, "defg", string(f.Bytes()[16:20]))
}

func TestSegmentWriterDeclaredSize(t *testing.T) {
	f := NewMemoryFile(nil)

	var s segmentWriter
	require.NoError(t, s.setEntries([]segmentWriterEntry{
		{Type: EntryKernel},
		{Type: EntryRamdisk},
	}))

	var entry Entry
	require.NoError(t, s.getEntry(f, &entry))
	entry.SetSize(4)
	require.NoError(t, s.writeEntry(&entry))
	_, err := s.writeData(f, []byte("abcde"))
	require.ErrorIs(t, err, ErrWriteExceedsEntrySize)
	_, err = s.writeData(f, []byte("abc"))
	require.NoError(t, err)
	require.ErrorIs(t, s.finishEntry(f), ErrEntryIsTruncated)
	_, err = s.writeData(f, []byte("d"))
	require.NoError(t, err)
	require.NoError(t, s.finishEntry(f))
	require.ErrorIs(t, s.finishEntry(f), ErrNoCurrentEntry)

	require.NoError(t, s.getEntry(f, &entry))
	entry.SetSize(1 << 33)
	require.ErrorIs(t, s.writeEntry(&entry), ErrEntrySizeTooLarge)
}

func TestSegmentWriterNoCurrentEntry(t *testing.T) {
	f := NewMemoryFile(nil)

	var s segmentWriter
	require.NoError(t, s.setEntries([]segmentWriterEntry{{Type: EntryKernel}}))

	var entry Entry
	require.ErrorIs(t, s.writeEntry(&entry), ErrNoCurrentEntry)
	_, err := s.writeData(f, []byte("a"))
	require.ErrorIs(t, err, ErrNoCurrentEntry)
	require.ErrorIs(t, s.finishEntry(f), ErrNoCurrentEntry)
}
