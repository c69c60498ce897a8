package bootimg

import (
	"bytes"
	"debug/elf"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func setSonyTestHeader(h *Header) {
	h.SetKernelCmdline("androidboot.hardware=qcom user_debug=31")
	h.SetKernelAddress(0x80208000)
	h.SetRamdiskAddress(0x81900000)
	h.SetSonyIplAddress(0x88000000)
	h.SetEntrypointAddress(0x80208000)
}

func TestSonyElfRoundTrip(t *testing.T) {
	kernel := []byte("sony-kernel")
	ramdisk := []byte("sony-ramdisk")
	ipl := []byte("sony-ipl")

	f := buildImage(t, FormatSonyElf, setSonyTestHeader, map[EntryType][]byte{
		EntryKernel:  kernel,
		EntryRamdisk: ramdisk,
		EntrySonyIpl: ipl,
	})

	raw := f.Bytes()
	require.Equal(t, SonyElfIdent[:], raw[:SonyElfIdentSize])
	require.Equal(t, kernel, raw[SonyElfDataOffset:SonyElfDataOffset+len(kernel)])

	ef, err := elf.NewFile(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, elf.ET_EXEC, ef.Type)
	require.Equal(t, elf.EM_ARM, ef.Machine)
	require.EqualValues(t, 0x80208000, ef.Entry)
	require.Len(t, ef.Progs, 4)
	require.Equal(t, elf.PT_LOAD, ef.Progs[0].Type)
	require.EqualValues(t, SonyElfDataOffset, ef.Progs[0].Off)
	require.EqualValues(t, 0x80208000, ef.Progs[0].Vaddr)
	require.Equal(t, elf.PT_NOTE, ef.Progs[2].Type)

	r, header := openImage(t, f)
	defer r.Close()
	require.Equal(t, FormatSonyElf, r.FormatType())

	cmdline, ok := header.KernelCmdline()
	require.True(t, ok)
	require.Equal(t, "androidboot.hardware=qcom user_debug=31", cmdline)
	addr, _ := header.RamdiskAddress()
	require.EqualValues(t, 0x81900000, addr)
	addr, _ = header.SonyIplAddress()
	require.EqualValues(t, 0x88000000, addr)
	addr, _ = header.EntrypointAddress()
	require.EqualValues(t, 0x80208000, addr)
	_, ok = header.SonyRpmAddress()
	require.False(t, ok)
	_, ok = header.PageSize()
	require.False(t, ok)

	order, data := readEntries(t, r)
	require.Equal(t, []EntryType{EntryKernel, EntryRamdisk, EntrySonyIpl}, order)
	require.Equal(t, kernel, data[EntryKernel])
	require.Equal(t, ramdisk, data[EntryRamdisk])
	require.Equal(t, ipl, data[EntrySonyIpl])
}

func TestSonyElfWriterHidesCmdline(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.SetFormat(FormatSonyElf))
	require.NoError(t, w.Open(NewMemoryFile(nil)))

	var header Header
	require.NoError(t, w.GetHeader(&header))
	require.False(t, header.SetPageSize(2048))
	setSonyTestHeader(&header)
	require.NoError(t, w.WriteHeader(&header))

	var (
		entry Entry
		types []EntryType
	)
	for {
		err := w.GetEntry(&entry)
		if errors.Is(err, ErrEndOfEntries) {
			break
		}
		require.NoError(t, err)
		types = append(types, entry.Type)
	}
	require.Equal(t, []EntryType{
		EntryKernel, EntryRamdisk, EntrySonyIpl, EntrySonyRpm, EntrySonyAppsbl,
	}, types)
	require.NoError(t, w.Close())
}

func TestSonyElfCmdlineTooLong(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.SetFormat(FormatSonyElf))
	require.NoError(t, w.Open(NewMemoryFile(nil)))

	var header Header
	require.NoError(t, w.GetHeader(&header))
	header.SetKernelCmdline(strings.Repeat("a", sonyElfCmdlineMaxSize))
	require.ErrorIs(t, w.WriteHeader(&header), ErrSonyElfCmdlineTooLong)
	require.NoError(t, w.Close())
}

func sonyElfImage(phdrs ...sonyElfPhdr) []byte {
	ehdr := sonyElfEhdr{
		Ident:     SonyElfIdent,
		Phoff:     SonyElfEhdrSize,
		Phentsize: SonyElfPhdrSize,
		Phnum:     uint16(len(phdrs)),
	}
	b := make([]byte, SonyElfDataOffset+16)
	ehdr.encodeTo(b)
	for i := range phdrs {
		phdrs[i].encodeTo(b[SonyElfEhdrSize+i*SonyElfPhdrSize:])
	}
	return b
}

func TestSonyElfReaderSkipsSignature(t *testing.T) {
	image := sonyElfImage(
		sonyElfPhdr{Type: sonyTypeSin, Offset: SonyElfDataOffset, Filesz: 8},
		sonyElfPhdr{Type: sonyTypeLoad, Flags: sonyFlagsRpm, Offset: SonyElfDataOffset + 8, Filesz: 8, Vaddr: 0x200000},
	)
	copy(image[SonyElfDataOffset:], "SIGNATURrpm-data")

	r, header := openImage(t, NewMemoryFile(image))
	defer r.Close()
	addr, ok := header.SonyRpmAddress()
	require.True(t, ok)
	require.EqualValues(t, 0x200000, addr)

	order, data := readEntries(t, r)
	require.Equal(t, []EntryType{EntrySonyRpm}, order)
	require.Equal(t, "rpm-data", string(data[EntrySonyRpm]))
}

func TestSonyElfReaderRejects(t *testing.T) {
	tests := []struct {
		name  string
		image []byte
		err   error
	}{
		{
			"too many segments",
			sonyElfImage(make([]sonyElfPhdr, SonyElfMaxPhdrs+1)...),
			ErrSonyElfTooManySegments,
		},
		{
			"unknown segment",
			sonyElfImage(sonyElfPhdr{Type: sonyTypeLoad, Flags: 0x7}),
			ErrSonyElfInvalidSegment,
		},
		{
			"cmdline too long",
			sonyElfImage(sonyElfPhdr{Type: sonyTypeNote, Flags: sonyFlagsCmdline, Filesz: sonyElfCmdlineMaxSize}),
			ErrSonyElfCmdlineTooLong,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader()
			require.NoError(t, r.EnableFormats(FormatSonyElf))
			require.NoError(t, r.Open(NewMemoryFile(tt.image)))
			var header Header
			require.ErrorIs(t, r.ReadHeader(&header), tt.err)
			require.NoError(t, r.Close())
		})
	}
}

func TestSonyElfHeaderDetection(t *testing.T) {
	_, err := readSonyElfHeader(NewMemoryFile([]byte("\x7fELF")))
	require.ErrorIs(t, err, ErrSonyElfMagicNotFound)

	_, err = readSonyElfHeader(NewMemoryFile(make([]byte, SonyElfEhdrSize)))
	require.ErrorIs(t, err, ErrSonyElfMagicNotFound)

	truncated := append([]byte(nil), SonyElfIdent[:]...)
	_, err = readSonyElfHeader(NewMemoryFile(truncated))
	require.ErrorIs(t, err, ErrSonyElfHeaderTooSmall)

	// Neither counts as a match
	r := NewReader()
	require.NoError(t, r.EnableFormats(FormatSonyElf))
	require.ErrorIs(t, r.Open(NewMemoryFile(truncated)), ErrUnknownFileFormat)
}
