package bootimg

import (
	"fmt"
	"strings"
)

// Format identifies a boot image layout. Values are bit flags so that a set
// of formats can be enabled on a Reader at once.
type Format uint32

// Boot image formats
const (
	FormatAndroid Format = 1 << iota
	FormatBump
	FormatLoki
	FormatMtk
	FormatSonyElf
)

// AllFormats is the union of every supported format.
const AllFormats = FormatAndroid | FormatBump | FormatLoki | FormatMtk | FormatSonyElf

type formatInfo struct {
	format    Format
	name      string
	newReader func() formatReader
	newWriter func() formatWriter
}

// formatInfos is ordered; readers bid in this order.
var formatInfos = []formatInfo{
	{FormatAndroid, "android", func() formatReader { return newAndroidReader(false) }, func() formatWriter { return newAndroidWriter(false) }},
	{FormatBump, "bump", func() formatReader { return newAndroidReader(true) }, func() formatWriter { return newAndroidWriter(true) }},
	{FormatLoki, "loki", func() formatReader { return newLokiReader() }, func() formatWriter { return newLokiWriter() }},
	{FormatMtk, "mtk", func() formatReader { return newMtkReader() }, func() formatWriter { return newMtkWriter() }},
	{FormatSonyElf, "sony_elf", func() formatReader { return newSonyElfReader() }, func() formatWriter { return newSonyElfWriter() }},
}

func lookupFormat(f Format) (formatInfo, bool) {
	for _, info := range formatInfos {
		if info.format == f {
			return info, true
		}
	}
	return formatInfo{}, false
}

// Formats returns the individual formats contained in f, in canonical order.
func (f Format) Formats() []Format {
	var out []Format
	for _, info := range formatInfos {
		if f&info.format != 0 {
			out = append(out, info.format)
		}
	}
	return out
}

func (f Format) String() string {
	if info, ok := lookupFormat(f); ok {
		return info.name
	}
	if f != 0 && f&^AllFormats == 0 {
		var names []string
		for _, single := range f.Formats() {
			names = append(names, single.String())
		}
		return strings.Join(names, "|")
	}
	return fmt.Sprintf("Format(%#x)", uint32(f))
}

// ParseFormat returns the format with the given name.
func ParseFormat(name string) (Format, error) {
	for _, info := range formatInfos {
		if info.name == name {
			return info.format, nil
		}
	}
	return 0, fmt.Errorf("unknown format %q", name)
}

// formatReader is implemented by every format codec that can parse images.
//
// Open returns a bid: the number of bits of evidence that the file matches
// the format. A negative bid means the format cannot beat bestBid and gave up
// early.
type formatReader interface {
	Type() Format
	SetOption(key, value string) (bool, error)
	Open(f File, bestBid int) (int, error)
	Close(f File) error
	ReadHeader(f File, header *Header) error
	ReadEntry(f File, entry *Entry) error
	GoToEntry(f File, entry *Entry, t EntryType) error
	ReadData(f File, buf []byte) (int, error)
}

// formatWriter is implemented by every format codec that can build images.
//
// Close is the finalization phase: when the header has been written it
// finishes every remaining entry, patches sizes and checksums and truncates
// the file. It is called exactly once per open session.
type formatWriter interface {
	Type() Format
	SetOption(key, value string) (bool, error)
	Open(f File) error
	Close(f File) error
	GetHeader(f File, header *Header) error
	WriteHeader(f File, header *Header) error
	GetEntry(f File, entry *Entry) error
	WriteEntry(f File, entry *Entry) error
	WriteData(f File, buf []byte) (int, error)
	FinishEntry(f File) error
}
