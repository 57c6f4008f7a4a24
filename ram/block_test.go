package ram

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testIndex(t *testing.T) (*FileIndex, []byte) {
	t.Helper()
	mem := make([]byte, 8*4096)
	x := &FileIndex{
		Blocks: []Block{{
			RAM:        RamBlock{ID: "ram", Host: mem, PageSize: 4096},
			PagesBegin: 0,
			PagesEnd:   3,
		}},
		Pages: make([]Page, 3),
	}
	for i, idx := range []uint32{1, 4, 7} {
		x.Pages[i].Index = idx
		x.Pages[i].FilePos = int64(8 + i*4096)
	}
	return x, mem
}

func TestFindResolvesAddresses(t *testing.T) {
	x, mem := testIndex(t)
	base := x.Blocks[0].RAM.HostAddr()

	p := x.Find(base + 4*4096 + 17)
	require.NotNil(t, p)
	require.Equal(t, uint32(4), p.Index)
	require.Same(t, &x.Pages[1], p)

	require.Nil(t, x.Find(base+2*4096), "zero page has no record")
	require.Nil(t, x.Find(base+uintptr(len(mem))), "one past the end is outside the block")

	last := x.Find(base + uintptr(len(mem)) - 1)
	require.NotNil(t, last)
	require.Equal(t, uint32(7), last.Index)
}

func TestPageMemAndAddr(t *testing.T) {
	x, mem := testIndex(t)
	p := &x.Pages[1]

	pm := x.PageMem(p)
	require.Len(t, pm, 4096)
	pm[0] = 0x42
	require.Equal(t, byte(0x42), mem[4*4096])
	require.Equal(t, x.Blocks[0].RAM.HostAddr()+4*4096, x.PageAddr(p))
	require.Equal(t, 4096, x.PageSize(p))
	require.Len(t, x.BlockPages(0), 3)
}

func TestRamBlockGeometry(t *testing.T) {
	b := RamBlock{ID: "vram", Host: make([]byte, 3*4096+100), PageSize: 4096}
	require.Equal(t, int64(3*4096+100), b.TotalSize())
	require.Equal(t, 3, b.PageCount())
	require.False(t, RamBlock{}.Contains(0))
	require.Equal(t, 0, RamBlock{Host: make([]byte, 10)}.PageCount())
}

func TestRamBlockPageBounds(t *testing.T) {
	b := RamBlock{ID: "vram", Host: make([]byte, 3*4096+100), PageSize: 4096}
	p := b.Page(2)
	require.Len(t, p, 4096)
	require.Equal(t, 4096, cap(p))
	require.Same(t, &b.Host[2*4096], &p[0])

	require.Nil(t, b.Page(3), "partial trailing page")
	require.Nil(t, b.Page(1<<31))
	require.Nil(t, RamBlock{Host: make([]byte, 10)}.Page(0))
}
