package index

import "github.com/joshuapare/ramsnap/ram"

// Version is the only index version this package reads and writes.
const Version = 1

// PointerSize is the size of the big-endian index offset that precedes the page data.
const PointerSize = 8

// Layout is the geometry of a registered block, which is all Decode needs to
// validate an index.
type Layout struct {
	ID       string
	PageSize int
	Size     int64
}

// LayoutOf returns the Layout of b.
func LayoutOf(b ram.RamBlock) Layout {
	return Layout{ID: b.ID, PageSize: b.PageSize, Size: b.TotalSize()}
}

// PageRecord locates the bytes of one nonzero page.
type PageRecord struct {
	Index   uint32
	FilePos int64
}

// BlockRecord is one block's section of the index.
type BlockRecord struct {
	Name      string
	PageSize  int
	ZeroPages []uint32
	Pages     []PageRecord
}

// Index is a decoded page index.
type Index struct {
	Version   int32
	PageCount int32
	Blocks    []BlockRecord
}

// NonzeroPages returns the number of page records across all blocks.
func (x *Index) NonzeroPages() int {
	n := 0
	for i := range x.Blocks {
		n += len(x.Blocks[i].Pages)
	}
	return n
}

// ZeroPages returns the number of zero pages across all blocks.
func (x *Index) ZeroPages() int {
	n := 0
	for i := range x.Blocks {
		n += len(x.Blocks[i].ZeroPages)
	}
	return n
}
