// Package buf holds the overflow-checked offset arithmetic shared by the
// boot image readers and writers.
package buf

import (
	"math"
	"math/bits"
)

// AddUint64 adds a and b, returning ok = false when the result would wrap.
func AddUint64(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

// AddUint32 adds a and b, returning ok = false when the result would wrap.
func AddUint32(a, b uint32) (uint32, bool) {
	sum, carry := bits.Add32(a, b, 0)
	return sum, carry == 0
}

// AddOffset adds n bytes to a file offset. The result must still be usable
// as an int64 seek position.
func AddOffset(off uint64, n uint64) (uint64, bool) {
	sum, ok := AddUint64(off, n)
	if !ok || sum > math.MaxInt64 {
		return 0, false
	}
	return sum, true
}

// PaddingSize returns the number of bytes needed to pad size up to a multiple
// of align. An alignment of zero means no padding.
func PaddingSize(size, align uint64) uint64 {
	if align == 0 {
		return 0
	}
	rem := size % align
	if rem == 0 {
		return 0
	}
	return align - rem
}

// AlignUp rounds size up to a multiple of align.
func AlignUp(size, align uint64) (uint64, bool) {
	return AddUint64(size, PaddingSize(size, align))
}

// AlignUp32 rounds a 32-bit size up to a multiple of align.
func AlignUp32(size, align uint32) (uint32, bool) {
	padded, ok := AlignUp(uint64(size), uint64(align))
	if !ok || padded > math.MaxUint32 {
		return 0, false
	}
	return uint32(padded), true
}
