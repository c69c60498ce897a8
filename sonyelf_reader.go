package bootimg

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
)

// sonyElfReader parses the ELF container used by Sony devices. Each program
// header holds one boot component. The kernel command line is a note segment
// and is reported through the header instead of as an entry.
type sonyElfReader struct {
	hdr *sonyElfEhdr
	seg segmentReader
}

func newSonyElfReader() *sonyElfReader {
	return &sonyElfReader{}
}

func (r *sonyElfReader) Type() Format { return FormatSonyElf }

func (r *sonyElfReader) SetOption(string, string) (bool, error) {
	return false, nil
}

func (r *sonyElfReader) Open(f File, bestBid int) (int, error) {
	maxBid := SonyElfIdentSize * 8
	if bestBid >= maxBid {
		return -1, nil
	}

	hdr, err := readSonyElfHeader(f)
	if errors.Is(err, ErrSonyElfMagicNotFound) || errors.Is(err, ErrSonyElfHeaderTooSmall) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}

	r.hdr = hdr
	return SonyElfIdentSize * 8, nil
}

func readSonyElfHeader(f File) (*sonyElfEhdr, error) {
	b := make([]byte, SonyElfEhdrSize)
	n, err := readAt(f, 0, b)
	if err != nil {
		return nil, err
	}
	if n < SonyElfIdentSize || !bytes.Equal(b[:SonyElfIdentSize], SonyElfIdent[:]) {
		return nil, ErrSonyElfMagicNotFound
	}
	if n != SonyElfEhdrSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrSonyElfHeaderTooSmall, n)
	}
	hdr := &sonyElfEhdr{}
	hdr.decodeFrom(b)
	return hdr, nil
}

func (r *sonyElfReader) Close(File) error {
	r.hdr = nil
	r.seg = segmentReader{}
	return nil
}

func (r *sonyElfReader) ReadHeader(f File, header *Header) error {
	hdr := r.hdr
	if hdr.Phnum > SonyElfMaxPhdrs {
		return fmt.Errorf("%w: %d", ErrSonyElfTooManySegments, hdr.Phnum)
	}
	if hdr.Phnum > 0 && hdr.Phentsize != SonyElfPhdrSize {
		return fmt.Errorf("%w: program header size %d", ErrSonyElfInvalidHeader, hdr.Phentsize)
	}

	header.Clear()
	header.SetSupportedFields(sonyElfHeaderFields)
	header.SetEntrypointAddress(hdr.Entry)

	phdrs := make([]byte, int(hdr.Phnum)*SonyElfPhdrSize)
	n, err := readAt(f, uint64(hdr.Phoff), phdrs)
	if err != nil {
		return err
	}
	if n != len(phdrs) {
		return fmt.Errorf("%w: program headers exceed file", ErrSonyElfHeaderTooSmall)
	}

	var entries []segmentReaderEntry
	for i := 0; i < int(hdr.Phnum); i++ {
		var ph sonyElfPhdr
		ph.decodeFrom(phdrs[i*SonyElfPhdrSize:])

		t, ok := sonySegmentRole(ph.Type, ph.Flags)
		if !ok {
			return fmt.Errorf("%w: type %v, flags %#08x", ErrSonyElfInvalidSegment, elf.ProgType(ph.Type), ph.Flags)
		}

		switch t {
		case 0:
			// Signature blobs cannot be regenerated
			continue
		case EntrySonyCmdline:
			cmdline, err := readSonyCmdline(f, &ph)
			if err != nil {
				return err
			}
			header.SetKernelCmdline(cmdline)
			continue
		}

		setSonySegmentAddress(header, t, ph.Vaddr)
		entries = append(entries, segmentReaderEntry{
			Type:   t,
			Offset: uint64(ph.Offset),
			Size:   ph.Filesz,
		})
	}

	return r.seg.setEntries(entries)
}

func readSonyCmdline(f File, ph *sonyElfPhdr) (string, error) {
	if ph.Filesz >= sonyElfCmdlineMaxSize {
		return "", fmt.Errorf("%w: %d bytes", ErrSonyElfCmdlineTooLong, ph.Filesz)
	}
	b := make([]byte, ph.Filesz)
	n, err := readAt(f, uint64(ph.Offset), b)
	if err != nil {
		return "", err
	}
	if n != len(b) {
		return "", fmt.Errorf("%w: command line exceeds file", ErrSonyElfInvalidSegment)
	}
	return cString(b), nil
}

func (r *sonyElfReader) ReadEntry(f File, entry *Entry) error {
	return r.seg.readEntry(f, entry)
}

func (r *sonyElfReader) GoToEntry(f File, entry *Entry, t EntryType) error {
	return r.seg.goToEntry(f, entry, t)
}

func (r *sonyElfReader) ReadData(f File, buf []byte) (int, error) {
	return r.seg.readData(f, buf)
}
