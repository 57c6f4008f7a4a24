package ramsnap

import (
	"fmt"

	"github.com/joshuapare/ramsnap/internal/buf"
	"github.com/joshuapare/ramsnap/internal/pread"
	"github.com/joshuapare/ramsnap/ram/index"
)

// BlockInfo describes one block in a snapshot.
type BlockInfo struct {
	ID        string
	PageSize  int
	Pages     int
	Nonzero   int
	Zero      int
	DataBytes int64
	// FirstPos and LastPos bound the file offsets of the block's page data.
	// Both are -1 when the block has no nonzero pages.
	FirstPos int64
	LastPos  int64
}

// Info describes a snapshot file.
type Info struct {
	FileSize  int64
	IndexPos  int64
	Version   int32
	PageCount int32
	Blocks    []BlockInfo
}

// Inspect decodes the index of the snapshot at path. layouts must describe
// every block in save order.
func Inspect(path string, layouts []index.Layout, opts *InspectOptions) (Info, error) {
	if opts == nil {
		opts = &InspectOptions{}
	}
	f, err := pread.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	size, err := f.Size()
	if err != nil {
		return Info{}, fmt.Errorf("failed to stat snapshot: %w", err)
	}
	var ptr [index.PointerSize]byte
	if _, err := f.ReadAt(ptr[:], opts.IndexPos); err != nil {
		return Info{}, fmt.Errorf("failed to read index pointer: %w", err)
	}
	x, err := index.Decode(f, opts.IndexPos, layouts)
	if err != nil {
		return Info{}, err
	}

	info := Info{
		FileSize:  size,
		IndexPos:  buf.I64BE(ptr[:]),
		Version:   x.Version,
		PageCount: x.PageCount,
		Blocks:    make([]BlockInfo, len(x.Blocks)),
	}
	for i, b := range x.Blocks {
		bi := BlockInfo{
			ID:        b.Name,
			PageSize:  b.PageSize,
			Pages:     int(layouts[i].Size / int64(b.PageSize)),
			Nonzero:   len(b.Pages),
			Zero:      len(b.ZeroPages),
			DataBytes: int64(len(b.Pages)) * int64(b.PageSize),
			FirstPos:  -1,
			LastPos:   -1,
		}
		for _, p := range b.Pages {
			if bi.FirstPos < 0 || p.FilePos < bi.FirstPos {
				bi.FirstPos = p.FilePos
			}
			bi.LastPos = max(bi.LastPos, p.FilePos)
		}
		info.Blocks[i] = bi
	}
	return info, nil
}
