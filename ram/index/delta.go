package index

import (
	"fmt"
	"math"

	"github.com/joshuapare/ramsnap/internal/stream"
)

// ReadDelta decodes one signed delta. Stream errors are left on r.
func ReadDelta(r *stream.Reader) (int64, error) {
	v := r.PackedNum()
	if v == 0 {
		v = r.PackedNum()
		switch {
		case v == 1<<63:
			return math.MinInt64, r.Err()
		case v > 1<<63:
			return 0, fmt.Errorf("%w: delta magnitude %d", ErrFormat, v)
		}
		return -int64(v), r.Err()
	}
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%w: delta %d", ErrFormat, v)
	}
	return int64(v), r.Err()
}

// PutDelta encodes d.
func PutDelta(w *stream.Writer, d int64) {
	if d > 0 {
		w.PutPackedNum(uint64(d))
		return
	}
	w.PutPackedNum(0)
	// -MinInt64 overflows int64 but not uint64.
	w.PutPackedNum(uint64(-(d + 1)) + 1)
}
