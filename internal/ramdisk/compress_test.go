package ramdisk

import (
	"bytes"
	"testing"

	"github.com/hashicorp/errwrap"
	"github.com/stretchr/testify/require"
)

func TestDetectCompressor(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Compression
	}{
		{"gzip", []byte{0x1f, 0x8b, 0x08, 0x00}, CompGzip},
		{"old gzip", []byte{0x1f, 0x9e, 0x00}, CompGzip},
		{"lz4 legacy", []byte{0x02, 0x21, 0x4c, 0x18, 0x00}, CompLz4},
		{"lzo", []byte{0x89, 0x4c, 0x5a, 0x4f, 0x00}, CompLzo},
		{"xz", []byte{0xfd, '7', 'z', 'X', 'Z', 0x00, 0x00}, CompXz},
		{"bzip2", []byte("BZh91AY"), CompBzip2},
		{"lzma", []byte{0x5d, 0x00, 0x00, 0x80}, CompLzma},
		{"zstd", []byte{0x28, 0xb5, 0x2f, 0xfd, 0x00}, CompZstd},
		{"cpio", []byte("070701"), CompUnknown},
		{"short", []byte{0x1f}, CompUnknown},
		{"empty", nil, CompUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, DetectCompressor(tt.data))
		})
	}
}

func TestCompressRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("070701 init.rc\x00/media\x00 "), 200)

	for _, mode := range []Compression{CompGzip, CompXz, CompLzma, CompZstd} {
		t.Run(mode.String(), func(t *testing.T) {
			compressed, err := CompressRamdisk(payload, mode)
			require.NoError(t, err)
			require.Equal(t, mode, DetectCompressor(compressed))

			extracted, err := ExtractRamdisk(compressed, mode)
			require.NoError(t, err)
			require.Equal(t, payload, extracted)
		})
	}
}

func TestUnsupportedCompression(t *testing.T) {
	_, err := CompressRamdisk([]byte("data"), CompLz4)
	require.ErrorIs(t, err, ErrUnsupported)

	wrapped, ok := err.(errwrap.Wrapper)
	require.True(t, ok)
	parts := wrapped.WrappedErrors()
	require.Len(t, parts, 2)
	require.Equal(t, "preparing to compress ramdisk", parts[0].Error())
	require.ErrorIs(t, parts[1], ErrUnsupported)

	_, err = ExtractRamdisk([]byte("BZh9"), CompBzip2)
	require.Error(t, err)
}

func TestExtractCorrupt(t *testing.T) {
	_, err := ExtractRamdisk([]byte{0x1f, 0x8b, 0x08, 0x00, 0x01}, CompGzip)
	require.Error(t, err)
}
