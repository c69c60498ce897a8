package bootimg

import (
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildImage writes an image in format to memory. Slots missing from
// entries are left empty.
func buildImage(t *testing.T, format Format, setHeader func(h *Header), entries map[EntryType][]byte) *MemoryFile {
	t.Helper()
	f := NewMemoryFile(nil)

	w := NewWriter()
	require.NoError(t, w.SetFormat(format))
	require.NoError(t, w.Open(f))

	var header Header
	require.NoError(t, w.GetHeader(&header))
	setHeader(&header)
	require.NoError(t, w.WriteHeader(&header))

	var entry Entry
	for {
		err := w.GetEntry(&entry)
		if errors.Is(err, ErrEndOfEntries) {
			break
		}
		require.NoError(t, err)

		data, ok := entries[entry.Type]
		if !ok {
			continue
		}
		entry.SetSize(uint64(len(data)))
		require.NoError(t, w.WriteEntry(&entry))
		_, err = w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.FinishEntry())
	}
	require.NoError(t, w.Close())
	return f
}

// openImage detects the format of f and reads its header.
func openImage(t *testing.T, f File) (*Reader, *Header) {
	t.Helper()
	r := NewReader()
	require.NoError(t, r.EnableFormatsAll())
	require.NoError(t, r.Open(f))

	var header Header
	require.NoError(t, r.ReadHeader(&header))
	return r, &header
}

// readEntries drains every remaining entry, in order.
func readEntries(t *testing.T, r *Reader) ([]EntryType, map[EntryType][]byte) {
	t.Helper()
	var (
		order []EntryType
		data  = make(map[EntryType][]byte)
		entry Entry
	)
	for {
		err := r.ReadEntry(&entry)
		if errors.Is(err, ErrEndOfEntries) {
			return order, data
		}
		require.NoError(t, err)

		b, err := io.ReadAll(r)
		require.NoError(t, err)
		size, ok := entry.Size()
		require.True(t, ok)
		require.EqualValues(t, size, len(b))

		order = append(order, entry.Type)
		data[entry.Type] = b
	}
}

func sha1Sections(sections ...[]byte) [20]byte {
	h := sha1.New()
	for _, s := range sections {
		h.Write(s)
		var le [4]byte
		binary.LittleEndian.PutUint32(le[:], uint32(len(s)))
		h.Write(le[:])
	}
	var sum [20]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

func setAndroidTestHeader(h *Header) {
	h.SetBoardName("hammerhead")
	h.SetKernelCmdline("console=ttyHSL0,115200,n8 androidboot.hardware=hammerhead")
	h.SetPageSize(2048)
	h.SetKernelAddress(0x00008000)
	h.SetRamdiskAddress(0x02900000)
	h.SetSecondbootAddress(0x00f00000)
	h.SetKernelTagsAddress(0x02700000)
}

func TestAndroidRoundTrip(t *testing.T) {
	f := buildImage(t, FormatAndroid, setAndroidTestHeader, map[EntryType][]byte{
		EntryKernel:     []byte("kernel"),
		EntryRamdisk:    []byte("ramdisk"),
		EntrySecondBoot: []byte("secondboot"),
	})

	raw := f.Bytes()
	require.Equal(t, BootMagic, string(raw[:BootMagicSize]))
	require.Equal(t, "kernel", string(raw[2048:2054]))
	require.Equal(t, "ramdisk", string(raw[4096:4103]))
	require.Equal(t, "secondboot", string(raw[6144:6154]))
	require.Equal(t, SamsungMagic, string(raw[8192:]))

	r, header := openImage(t, f)
	defer r.Close()
	require.Equal(t, FormatAndroid, r.FormatType())

	name, _ := header.BoardName()
	require.Equal(t, "hammerhead", name)
	cmdline, _ := header.KernelCmdline()
	require.Equal(t, "console=ttyHSL0,115200,n8 androidboot.hardware=hammerhead", cmdline)
	pageSize, _ := header.PageSize()
	require.EqualValues(t, 2048, pageSize)
	addr, _ := header.KernelAddress()
	require.EqualValues(t, 0x00008000, addr)
	addr, _ = header.RamdiskAddress()
	require.EqualValues(t, 0x02900000, addr)
	addr, _ = header.SecondbootAddress()
	require.EqualValues(t, 0x00f00000, addr)
	addr, _ = header.KernelTagsAddress()
	require.EqualValues(t, 0x02700000, addr)

	id, ok := header.ID()
	require.True(t, ok)
	want := sha1Sections([]byte("kernel"), []byte("ramdisk"), []byte("secondboot"))
	require.Equal(t, want[:], id[:20])
	require.Equal(t, make([]byte, 12), id[20:])

	var entry Entry
	require.NoError(t, r.GoToEntry(&entry, EntryRamdisk))
	require.Equal(t, EntryRamdisk, entry.Type)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "ramdisk", string(b))

	require.NoError(t, r.ReadEntry(&entry))
	require.Equal(t, EntrySecondBoot, entry.Type)
	require.ErrorIs(t, r.ReadEntry(&entry), ErrEndOfEntries)

	require.NoError(t, r.GoToEntry(&entry, 0))
	order, data := readEntries(t, r)
	require.Equal(t, []EntryType{EntryRamdisk, EntrySecondBoot}, order)
	require.Equal(t, "secondboot", string(data[EntrySecondBoot]))
}

func TestAndroidWriterDigests(t *testing.T) {
	hello := []byte("hello")
	tests := []struct {
		name    string
		entries map[EntryType][]byte
		size    int
		sha1    string
	}{
		{"no entries", nil, 2064, "f106c40fca53ee592cbe2d032707482a9437031e"},
		{
			"kernel",
			map[EntryType][]byte{EntryKernel: hello},
			4112, "be07d5d257103fa9d91eac9919e1576892f76d29",
		},
		{
			"kernel and ramdisk",
			map[EntryType][]byte{EntryKernel: hello, EntryRamdisk: hello},
			6160, "7894ab82bc4ab99bd98f41fe03a3bafe50a55c76",
		},
		{
			"all sections",
			map[EntryType][]byte{
				EntryKernel:     hello,
				EntryRamdisk:    hello,
				EntrySecondBoot: hello,
				EntryDeviceTree: hello,
			},
			10256, "6c17c2b0a0a4a915ef9ac27812824d2f90f4dc3a",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := buildImage(t, FormatAndroid, func(h *Header) { h.SetPageSize(2048) }, tt.entries)
			raw := f.Bytes()
			require.Len(t, raw, tt.size)
			require.Equal(t, tt.sha1, fmt.Sprintf("%x", sha1.Sum(raw)))
		})
	}
}

func TestAndroidDeviceTreeInID(t *testing.T) {
	f := buildImage(t, FormatAndroid, setAndroidTestHeader, map[EntryType][]byte{
		EntryKernel:     []byte("kernel"),
		EntryRamdisk:    []byte("ramdisk"),
		EntryDeviceTree: []byte("QCDT"),
	})

	r, header := openImage(t, f)
	defer r.Close()

	id, _ := header.ID()
	want := sha1Sections([]byte("kernel"), []byte("ramdisk"), nil, []byte("QCDT"))
	require.Equal(t, want[:], id[:20])

	order, data := readEntries(t, r)
	require.Equal(t, []EntryType{EntryKernel, EntryRamdisk, EntryDeviceTree}, order)
	require.Equal(t, "QCDT", string(data[EntryDeviceTree]))
}

func TestBumpRoundTrip(t *testing.T) {
	f := buildImage(t, FormatBump, setAndroidTestHeader, map[EntryType][]byte{
		EntryKernel:  []byte("kernel"),
		EntryRamdisk: []byte("ramdisk"),
	})
	require.Equal(t, BumpMagic[:], f.Bytes()[6144:])

	r, _ := openImage(t, f)
	defer r.Close()
	require.Equal(t, FormatBump, r.FormatType())

	order, data := readEntries(t, r)
	require.Equal(t, []EntryType{EntryKernel, EntryRamdisk}, order)
	require.Equal(t, "kernel", string(data[EntryKernel]))
}

func TestAndroidWithoutTrailingMagic(t *testing.T) {
	f := buildImage(t, FormatAndroid, setAndroidTestHeader, map[EntryType][]byte{
		EntryKernel: []byte("kernel"),
	})
	require.NoError(t, f.Truncate(int64(len(f.Bytes())-SamsungMagicSize)))

	r, _ := openImage(t, f)
	defer r.Close()
	require.Equal(t, FormatAndroid, r.FormatType())
}

func TestAndroidTruncatedDeviceTree(t *testing.T) {
	dt := make([]byte, 100)
	for i := range dt {
		dt[i] = byte(i)
	}
	build := func() *MemoryFile {
		f := buildImage(t, FormatAndroid, setAndroidTestHeader, map[EntryType][]byte{
			EntryKernel:     []byte("kernel"),
			EntryRamdisk:    []byte("ramdisk"),
			EntryDeviceTree: dt,
		})
		require.NoError(t, f.Truncate(6144+40))
		return f
	}

	r, _ := openImage(t, build())
	var entry Entry
	require.NoError(t, r.GoToEntry(&entry, EntryDeviceTree))
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, dt[:40], b)
	require.NoError(t, r.Close())

	r = NewReader()
	require.NoError(t, r.EnableFormats(FormatAndroid))
	require.NoError(t, r.SetOption("strict", "true"))
	require.NoError(t, r.Open(build()))
	var header Header
	require.NoError(t, r.ReadHeader(&header))
	require.NoError(t, r.GoToEntry(&entry, EntryDeviceTree))
	_, err = io.ReadAll(r)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.NoError(t, r.Close())
}

func TestAndroidWriterHeaderValidation(t *testing.T) {
	tests := []struct {
		name   string
		header func(h *Header)
		err    error
	}{
		{"missing page size", func(h *Header) {}, ErrMissingPageSize},
		{"invalid page size", func(h *Header) { h.SetPageSize(1000) }, ErrInvalidPageSize},
		{"board name too long", func(h *Header) {
			h.SetPageSize(2048)
			h.SetBoardName("0123456789abcdef")
		}, ErrBoardNameTooLong},
		{"cmdline too long", func(h *Header) {
			h.SetPageSize(2048)
			h.SetKernelCmdline(string(make([]byte, BootArgsSize)))
		}, ErrKernelCmdlineTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter()
			require.NoError(t, w.SetFormat(FormatAndroid))
			require.NoError(t, w.Open(NewMemoryFile(nil)))

			var header Header
			require.NoError(t, w.GetHeader(&header))
			require.False(t, header.SetSonyIplAddress(1))
			require.False(t, header.SetID([32]byte{}))
			tt.header(&header)
			require.ErrorIs(t, w.WriteHeader(&header), tt.err)
			require.NoError(t, w.Close())
		})
	}
}

func TestAndroidReaderInvalidPageSize(t *testing.T) {
	hdr := androidHeader{PageSize: 1000, KernelSize: 4}
	copy(hdr.Magic[:], BootMagic)
	f := NewMemoryFile(append(hdr.marshal(), make([]byte, 2048)...))

	r := NewReader()
	require.NoError(t, r.EnableFormats(FormatAndroid))
	require.NoError(t, r.Open(f))
	var header Header
	require.ErrorIs(t, r.ReadHeader(&header), ErrInvalidPageSize)

	// Parse failures are fatal until Close
	var entry Entry
	require.ErrorIs(t, r.ReadEntry(&entry), ErrReaderInvalidState)
	require.NoError(t, r.Close())
}

func TestAndroidHeaderAtOffset(t *testing.T) {
	hdr := androidHeader{PageSize: 2048}
	copy(hdr.Magic[:], BootMagic)
	data := append(make([]byte, 256), hdr.marshal()...)

	found, offset, err := findAndroidHeader(NewMemoryFile(data), MaxHeaderOffset)
	require.NoError(t, err)
	require.EqualValues(t, 256, offset)
	require.EqualValues(t, 2048, found.PageSize)

	_, _, err = findAndroidHeader(NewMemoryFile(data), 128)
	require.ErrorIs(t, err, ErrAndroidHeaderNotFound)

	_, _, err = findAndroidHeader(NewMemoryFile(data[:300]), MaxHeaderOffset)
	require.ErrorIs(t, err, ErrAndroidHeaderOutOfBounds)
}
