package index

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/joshuapare/ramsnap/internal/buf"
	"github.com/joshuapare/ramsnap/internal/stream"
	"github.com/joshuapare/ramsnap/ram"
)

// Read decodes the index whose pointer is stored at pos and applies it to
// blocks: zero pages are cleared in guest memory and the returned FileIndex
// holds one Empty page record per nonzero page.
func Read(src io.ReaderAt, pos int64, blocks []ram.RamBlock) (*ram.FileIndex, *Index, error) {
	layouts := make([]Layout, len(blocks))
	for i, b := range blocks {
		layouts[i] = LayoutOf(b)
	}
	x, err := Decode(src, pos, layouts)
	if err != nil {
		return nil, nil, err
	}
	fi, err := Build(x, blocks)
	if err != nil {
		return nil, nil, err
	}
	return fi, x, nil
}

// Decode reads the big-endian index offset at pos, then parses the index it
// points to. Blocks must appear in the same order as layouts.
func Decode(src io.ReaderAt, pos int64, layouts []Layout) (*Index, error) {
	r := stream.NewReader(src)
	r.SeekTo(pos)
	indexPos := r.Be64()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("index: read pointer: %w", err)
	}
	if indexPos > math.MaxInt64 {
		return nil, fmt.Errorf("%w: index offset %d", ErrFormat, indexPos)
	}
	r.SeekTo(int64(indexPos))

	version := int32(r.Be32())
	pageCount := int32(r.Be32())
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("index: read header: %w", err)
	}
	if version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, version)
	}
	if pageCount < 0 {
		return nil, fmt.Errorf("%w: page count %d", ErrFormat, pageCount)
	}

	x := &Index{
		Version:   version,
		PageCount: pageCount,
		Blocks:    make([]BlockRecord, 0, len(layouts)),
	}
	for i := range layouts {
		rec, err := decodeBlock(r, i, layouts)
		if err != nil {
			return nil, err
		}
		x.Blocks = append(x.Blocks, rec)
	}
	return x, nil
}

func decodeBlock(r *stream.Reader, i int, layouts []Layout) (BlockRecord, error) {
	nameLen := int(r.Byte())
	name := string(r.Read(nameLen))
	if err := r.Err(); err != nil {
		return BlockRecord{}, fmt.Errorf("index: block %d name: %w", i, err)
	}
	l := layouts[i]
	if name != l.ID {
		if slices.ContainsFunc(layouts, func(o Layout) bool { return o.ID == name }) {
			return BlockRecord{}, fmt.Errorf("%w: got %q at position %d, want %q", ErrBlockOrder, name, i, l.ID)
		}
		return BlockRecord{}, fmt.Errorf("%w: %q", ErrUnknownBlock, name)
	}
	if l.PageSize <= 0 {
		return BlockRecord{}, fmt.Errorf("%w: block %q has page size %d", ErrFormat, name, l.PageSize)
	}
	pagesInBlock := l.Size / int64(l.PageSize)

	rec := BlockRecord{Name: name, PageSize: l.PageSize}
	var err error
	if rec.ZeroPages, err = decodeZeroRun(r, name, pagesInBlock); err != nil {
		return BlockRecord{}, err
	}
	if rec.Pages, err = decodePages(r, name, pagesInBlock, int64(l.PageSize)); err != nil {
		return BlockRecord{}, err
	}
	return rec, nil
}

func readCount(r *stream.Reader, name, what string, limit int64) (int, error) {
	n := int32(r.Be32())
	if err := r.Err(); err != nil {
		return 0, fmt.Errorf("index: block %q %s count: %w", name, what, err)
	}
	if n < 0 || int64(n) > limit {
		return 0, fmt.Errorf("%w: block %q has %d %s pages of %d", ErrFormat, name, n, what, limit)
	}
	return int(n), nil
}

func checkPage(name string, idx, limit int64) error {
	if idx < 0 || idx >= limit {
		return fmt.Errorf("%w: block %q page %d of %d", ErrPageRange, name, idx, limit)
	}
	return nil
}

func decodeZeroRun(r *stream.Reader, name string, limit int64) ([]uint32, error) {
	count, err := readCount(r, name, "zero", limit)
	if err != nil || count == 0 {
		return nil, err
	}
	out := make([]uint32, 0, count)
	idx := int64(int32(r.Be32()))
	for {
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("index: block %q zero pages: %w", name, err)
		}
		if err := checkPage(name, idx, limit); err != nil {
			return nil, err
		}
		out = append(out, uint32(idx))
		if len(out) == count {
			return out, nil
		}
		d, err := ReadDelta(r)
		if err != nil {
			return nil, fmt.Errorf("index: block %q zero pages: %w", name, err)
		}
		idx += d
	}
}

func decodePages(r *stream.Reader, name string, limit, pageSize int64) ([]PageRecord, error) {
	count, err := readCount(r, name, "nonzero", limit)
	if err != nil || count == 0 {
		return nil, err
	}
	out := make([]PageRecord, 0, count)
	idx := int64(int32(r.Be32()))
	pos := int64(r.Be64())
	for {
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("index: block %q pages: %w", name, err)
		}
		if err := checkPage(name, idx, limit); err != nil {
			return nil, err
		}
		if pos < 0 {
			return nil, fmt.Errorf("%w: block %q page %d at file position %d", ErrFormat, name, idx, pos)
		}
		out = append(out, PageRecord{Index: uint32(idx), FilePos: pos})
		if len(out) == count {
			return out, nil
		}
		di, err := ReadDelta(r)
		if err != nil {
			return nil, fmt.Errorf("index: block %q pages: %w", name, err)
		}
		dp, err := ReadDelta(r)
		if err != nil {
			return nil, fmt.Errorf("index: block %q pages: %w", name, err)
		}
		step, ok := buf.MulOverflowSafe(dp, pageSize)
		if ok {
			pos, ok = buf.AddOverflowSafe(pos, step)
		}
		if !ok {
			return nil, fmt.Errorf("%w: block %q position overflow", ErrFormat, name)
		}
		idx += di
	}
}

// Build zeroes every zero page in guest memory and lays out the flat page
// array. Each block's records are sorted by page index so a faulting address
// can be resolved by binary search.
func Build(x *Index, blocks []ram.RamBlock) (*ram.FileIndex, error) {
	if len(x.Blocks) != len(blocks) {
		return nil, fmt.Errorf("%w: index has %d blocks, %d registered", ErrFormat, len(x.Blocks), len(blocks))
	}
	if len(blocks) > math.MaxUint16+1 {
		return nil, fmt.Errorf("%w: too many blocks (%d)", ErrFormat, len(blocks))
	}

	fi := &ram.FileIndex{
		Blocks: make([]ram.Block, len(blocks)),
		Pages:  make([]ram.Page, x.NonzeroPages()),
	}
	next := 0
	for i, b := range blocks {
		rec := &x.Blocks[i]
		limit := int64(b.PageCount())
		for _, z := range rec.ZeroPages {
			if err := checkPage(b.ID, int64(z), limit); err != nil {
				return nil, err
			}
			if mem := b.Page(z); !buf.IsZero(mem) {
				clear(mem)
			}
		}

		sorted := slices.Clone(rec.Pages)
		slices.SortFunc(sorted, func(p, q PageRecord) int { return cmp.Compare(p.Index, q.Index) })
		begin := next
		for j, pr := range sorted {
			if err := checkPage(b.ID, int64(pr.Index), limit); err != nil {
				return nil, err
			}
			if j > 0 && sorted[j-1].Index == pr.Index {
				return nil, fmt.Errorf("%w: block %q page %d", ErrDuplicatePage, b.ID, pr.Index)
			}
			p := &fi.Pages[next]
			p.BlockIndex = uint16(i)
			p.Index = pr.Index
			p.FilePos = pr.FilePos
			next++
		}
		fi.Blocks[i] = ram.Block{RAM: b, PagesBegin: begin, PagesEnd: next}
	}
	return fi, nil
}
