package buf

import (
	"math"
	"testing"
)

func TestAddUint64(t *testing.T) {
	if sum, ok := AddUint64(10, 5); !ok || sum != 15 {
		t.Fatalf("AddUint64(10,5)=%d,%v want 15,true", sum, ok)
	}
	if _, ok := AddUint64(math.MaxUint64, 1); ok {
		t.Fatalf("AddUint64 should report overflow")
	}
}

func TestAddUint32(t *testing.T) {
	if sum, ok := AddUint32(math.MaxUint32-1, 1); !ok || sum != math.MaxUint32 {
		t.Fatalf("AddUint32 at limit=%d,%v", sum, ok)
	}
	if _, ok := AddUint32(math.MaxUint32, 1); ok {
		t.Fatalf("AddUint32 should report overflow")
	}
}

func TestAddOffset(t *testing.T) {
	if off, ok := AddOffset(4096, 2048); !ok || off != 6144 {
		t.Fatalf("AddOffset=%d,%v want 6144,true", off, ok)
	}
	if _, ok := AddOffset(math.MaxInt64, 1); ok {
		t.Fatalf("AddOffset past MaxInt64 should fail")
	}
}

func TestPaddingSize(t *testing.T) {
	cases := []struct {
		size, align, want uint64
	}{
		{0, 2048, 0},
		{1, 2048, 2047},
		{2048, 2048, 0},
		{2049, 2048, 2047},
		{5, 0, 0},
		{5, 16, 11},
	}
	for _, c := range cases {
		if got := PaddingSize(c.size, c.align); got != c.want {
			t.Errorf("PaddingSize(%d,%d)=%d want %d", c.size, c.align, got, c.want)
		}
	}
}

func TestAlignUp32(t *testing.T) {
	if v, ok := AlignUp32(6, 2048); !ok || v != 2048 {
		t.Fatalf("AlignUp32(6,2048)=%d,%v", v, ok)
	}
	if _, ok := AlignUp32(math.MaxUint32, 2048); ok {
		t.Fatalf("AlignUp32 should overflow")
	}
}
