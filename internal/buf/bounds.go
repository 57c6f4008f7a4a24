package buf

import (
	"math"
)

// AddOverflowSafe adds a and b, returning ok = false when the result would overflow int64.
func AddOverflowSafe(a, b int64) (int64, bool) {
	switch {
	case b > 0 && a > math.MaxInt64-b:
		return 0, false
	case b < 0 && a < math.MinInt64-b:
		return 0, false
	default:
		return a + b, true
	}
}

// MulOverflowSafe multiplies a and b, returning ok = false when the result would overflow int64.
// This is essential for pageIndex * pageSize calculations in index parsing.
func MulOverflowSafe(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > 0 && b > 0 && a > math.MaxInt64/b {
		return 0, false
	}
	if a < 0 && b < 0 && a < math.MaxInt64/b {
		return 0, false
	}
	if a > 0 && b < 0 && b < math.MinInt64/a {
		return 0, false
	}
	if a < 0 && b > 0 && a < math.MinInt64/b {
		return 0, false
	}
	return a * b, true
}

// PageSpan returns the byte range [off, off+pageSize) of page idx inside a
// region of regionLen bytes. ok is false when the page does not fit.
func PageSpan(idx int64, pageSize, regionLen int) (int, bool) {
	if idx < 0 || pageSize <= 0 {
		return 0, false
	}
	off, ok := MulOverflowSafe(idx, int64(pageSize))
	if !ok {
		return 0, false
	}
	end, ok := AddOverflowSafe(off, int64(pageSize))
	if !ok || end > int64(regionLen) {
		return 0, false
	}
	return int(off), true
}

// IsZero reports whether every byte of b is zero.
func IsZero(b []byte) bool {
	for len(b) >= 8 {
		if b[0]|b[1]|b[2]|b[3]|b[4]|b[5]|b[6]|b[7] != 0 {
			return false
		}
		b = b[8:]
	}
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
