package ram

import (
	"sort"
	"unsafe"

	"github.com/joshuapare/ramsnap/internal/buf"
)

// RamBlock describes a caller-owned region of guest memory.
type RamBlock struct {
	// ID is the stable block name recorded in the snapshot index.
	ID string
	// StartOffset is the block's offset in the guest physical address space.
	StartOffset int64
	// Host is the already-mapped host memory backing the block.
	Host []byte
	// PageSize is the page granularity used for this block.
	PageSize int
}

// TotalSize returns the block size in bytes.
func (b RamBlock) TotalSize() int64 { return int64(len(b.Host)) }

// PageCount returns the number of whole pages in the block.
func (b RamBlock) PageCount() int {
	if b.PageSize <= 0 {
		return 0
	}
	return len(b.Host) / b.PageSize
}

// HostAddr returns the host address of the first byte of the block.
func (b RamBlock) HostAddr() uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b.Host)))
}

// Contains reports whether addr falls inside the block's host memory.
func (b RamBlock) Contains(addr uintptr) bool {
	base := b.HostAddr()
	return len(b.Host) > 0 && addr >= base && addr-base < uintptr(len(b.Host))
}

// Page returns the host memory of page idx, or nil when the page lies
// outside the block.
func (b RamBlock) Page(idx uint32) []byte {
	off, ok := buf.PageSpan(int64(idx), b.PageSize, len(b.Host))
	if !ok {
		return nil
	}
	return b.Host[off : off+b.PageSize : off+b.PageSize]
}

// Block is a registered RamBlock plus its range [PagesBegin, PagesEnd) in the
// FileIndex page array.
type Block struct {
	RAM        RamBlock
	PagesBegin int
	PagesEnd   int
}

// FileIndex is the parsed snapshot index: every block plus one flat page array.
type FileIndex struct {
	Blocks []Block
	Pages  []Page
}

// BlockPages returns the page records belonging to block i.
func (x *FileIndex) BlockPages(i int) []Page {
	b := &x.Blocks[i]
	return x.Pages[b.PagesBegin:b.PagesEnd]
}

// PageMem returns the guest memory backing p.
func (x *FileIndex) PageMem(p *Page) []byte {
	return x.Blocks[p.BlockIndex].RAM.Page(p.Index)
}

// PageAddr returns the host address of the first byte of p.
func (x *FileIndex) PageAddr(p *Page) uintptr {
	b := &x.Blocks[p.BlockIndex].RAM
	return b.HostAddr() + uintptr(p.Index)*uintptr(b.PageSize)
}

// PageSize returns the size of p in bytes.
func (x *FileIndex) PageSize(p *Page) int {
	return x.Blocks[p.BlockIndex].RAM.PageSize
}

// FindBlock returns the index of the block whose host memory contains addr,
// or -1.
func (x *FileIndex) FindBlock(addr uintptr) int {
	for i := range x.Blocks {
		if x.Blocks[i].RAM.Contains(addr) {
			return i
		}
	}
	return -1
}

// Find returns the page record covering addr, or nil when addr is outside
// every block or lands on a page that has no record (a zero page).
func (x *FileIndex) Find(addr uintptr) *Page {
	bi := x.FindBlock(addr)
	if bi < 0 {
		return nil
	}
	b := &x.Blocks[bi]
	if b.RAM.PageSize <= 0 {
		return nil
	}
	idx := uint32((addr - b.RAM.HostAddr()) / uintptr(b.RAM.PageSize))
	pages := x.Pages[b.PagesBegin:b.PagesEnd]
	i := sort.Search(len(pages), func(i int) bool { return pages[i].Index >= idx })
	if i < len(pages) && pages[i].Index == idx {
		return &pages[i]
	}
	return nil
}
