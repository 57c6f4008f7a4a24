package index

import (
	"fmt"
	"math"

	"github.com/joshuapare/ramsnap/internal/stream"
)

// Encode serializes x. Page lists are written in the order given, so callers
// control whether negative deltas appear. The page count header is derived
// from the records, not taken from x.PageCount.
func Encode(x *Index) ([]byte, error) {
	w := stream.NewWriter(64 + 8*x.NonzeroPages() + 2*x.ZeroPages())
	total := x.NonzeroPages()
	if total > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d pages", ErrFormat, total)
	}
	w.PutBe32(uint32(Version))
	w.PutBe32(uint32(total))
	for i := range x.Blocks {
		if err := encodeBlock(w, &x.Blocks[i]); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

func encodeBlock(w *stream.Writer, b *BlockRecord) error {
	if len(b.Name) > math.MaxUint8 {
		return fmt.Errorf("%w: block name %q longer than %d bytes", ErrFormat, b.Name, math.MaxUint8)
	}
	if len(b.ZeroPages) > math.MaxInt32 || len(b.Pages) > math.MaxInt32 {
		return fmt.Errorf("%w: block %q has too many pages", ErrFormat, b.Name)
	}
	w.PutByte(uint8(len(b.Name)))
	_, _ = w.Write([]byte(b.Name))

	w.PutBe32(uint32(len(b.ZeroPages)))
	for i, z := range b.ZeroPages {
		if i == 0 {
			w.PutBe32(z)
			continue
		}
		PutDelta(w, int64(z)-int64(b.ZeroPages[i-1]))
	}

	w.PutBe32(uint32(len(b.Pages)))
	for i, p := range b.Pages {
		if i == 0 {
			w.PutBe32(p.Index)
			w.PutBe64(uint64(p.FilePos))
			continue
		}
		prev := b.Pages[i-1]
		dp := p.FilePos - prev.FilePos
		if b.PageSize <= 0 || dp%int64(b.PageSize) != 0 {
			return fmt.Errorf("%w: block %q page %d moves %d bytes", ErrUnaligned, b.Name, p.Index, dp)
		}
		PutDelta(w, int64(p.Index)-int64(prev.Index))
		PutDelta(w, dp/int64(b.PageSize))
	}
	return nil
}
