// Package ramdisk detects, decompresses, recompresses and patches the
// compressed archives stored in the ramdisk entry of boot images.
package ramdisk

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/errwrap"
	"github.com/klauspost/compress/zstd"
	gzip "github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// Compression identifies a ramdisk compression format.
type Compression int

// Compression types/modes
const (
	CompGzip Compression = iota
	CompLz4
	CompLzo
	CompXz
	CompBzip2
	CompLzma
	CompZstd
	CompUnknown
)

func (c Compression) String() string {
	switch c {
	case CompGzip:
		return "gzip"
	case CompLz4:
		return "lz4"
	case CompLzo:
		return "lzo"
	case CompXz:
		return "xz"
	case CompBzip2:
		return "bzip2"
	case CompLzma:
		return "lzma"
	case CompZstd:
		return "zstd"
	}
	return "unknown"
}

// ErrUnsupported is wrapped by every error about a format that is detected
// but cannot be processed.
var ErrUnsupported = errors.New("compression format is not supported")

// eMsg wraps err with a description of the action that failed. The CLI
// prints both halves separately.
func eMsg(err error, msg string) error {
	return errwrap.Wrap(errors.New(msg), err)
}

var magics = []struct {
	magic []byte
	comp  Compression
}{
	{[]byte{0x1f, 0x8b}, CompGzip},
	{[]byte{0x1f, 0x9e}, CompGzip},
	{[]byte{0x04, 0x22, 0x4d, 0x18}, CompLz4},
	{[]byte{0x02, 0x21, 0x4c, 0x18}, CompLz4},
	{[]byte{0x89, 0x4c, 0x5a, 0x4f}, CompLzo},
	{[]byte{0xfd, '7', 'z', 'X', 'Z', 0x00}, CompXz},
	{[]byte{'B', 'Z', 'h'}, CompBzip2},
	{[]byte{0x5d, 0x00, 0x00}, CompLzma},
	{[]byte{0x28, 0xb5, 0x2f, 0xfd}, CompZstd},
}

// DetectCompressor detects the compressor used for the input ramdisk.
func DetectCompressor(compr []byte) Compression {
	for _, m := range magics {
		if bytes.HasPrefix(compr, m.magic) {
			return m.comp
		}
	}
	return CompUnknown
}

func newDecompressor(r io.Reader, cMode Compression) (io.ReadCloser, error) {
	switch cMode {
	case CompGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		return gr, nil
	case CompXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	case CompLzma:
		lr, err := lzma.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(lr), nil
	case CompZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, cMode)
}

// ExtractRamdisk decompresses the provided ramdisk.
func ExtractRamdisk(compr []byte, cMode Compression) ([]byte, error) {
	reader, err := newDecompressor(bytes.NewReader(compr), cMode)
	if err != nil {
		return nil, eMsg(err, "preparing to extract ramdisk")
	}

	ramdisk, err := io.ReadAll(reader)
	if err != nil {
		reader.Close()
		return nil, eMsg(err, "extracting ramdisk")
	}

	if err := reader.Close(); err != nil {
		return nil, eMsg(err, "cleaning up ramdisk extraction")
	}
	return ramdisk, nil
}

func newCompressor(w io.Writer, cMode Compression) (io.WriteCloser, error) {
	var (
		writer io.WriteCloser
		err    error
	)
	switch cMode {
	case CompGzip:
		writer, err = gzip.NewWriterLevel(w, gzip.BestCompression)
	case CompXz:
		writer, err = xz.NewWriter(w)
	case CompLzma:
		writer, err = lzma.NewWriter(w)
	case CompZstd:
		writer, err = zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, cMode)
	}
	if err != nil {
		return nil, err
	}
	return writer, nil
}

// CompressRamdisk compresses the input ramdisk in a certain mode.
func CompressRamdisk(ramdisk []byte, cMode Compression) ([]byte, error) {
	var buf bytes.Buffer
	writer, err := newCompressor(&buf, cMode)
	if err != nil {
		return nil, eMsg(err, "preparing to compress ramdisk")
	}

	if _, err := writer.Write(ramdisk); err != nil {
		writer.Close()
		return nil, eMsg(err, "compressing ramdisk")
	}

	if gw, ok := writer.(*gzip.Writer); ok {
		if err := gw.Flush(); err != nil {
			return nil, eMsg(err, "finishing up ramdisk compression")
		}
	}

	if err := writer.Close(); err != nil {
		return nil, eMsg(err, "cleaning up ramdisk compression")
	}
	return buf.Bytes(), nil
}
