package loader

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/ramsnap/internal/testutil"
	"github.com/joshuapare/ramsnap/ram"
	"github.com/joshuapare/ramsnap/ram/index"
)

func TestEagerLoadWithoutWatcher(t *testing.T) {
	a := testutil.Block("pc.ram", testutil.Image(8, 4096, 0x11, 1, 5), 4096)
	b := testutil.Block("vga.vram", testutil.Image(3, 8192, 0x52, 0), 8192)
	f := saveBlocks(t, 0, a, b)

	l, guests := newLoader(t, f, Options{}, a, b)
	require.NoError(t, l.Start())

	require.Equal(t, a.Host, guests[0].Host)
	require.Equal(t, b.Host, guests[1].Host)
	require.False(t, l.OnDemandEnabled())
	require.True(t, l.Complete())
	require.False(t, l.HasError())

	st := l.Stats()
	require.Equal(t, 8, st.Pages)
	require.Equal(t, 3, st.ZeroPages)
	require.Equal(t, int64(8), st.Eager)
	require.Equal(t, int64(6*4096+2*8192), st.BytesRead)
	require.Zero(t, st.Faulted)
	require.Zero(t, st.Background)
	require.NoError(t, l.Close())
}

func TestEagerFallbacks(t *testing.T) {
	a := testutil.Block("ram", testutil.Image(4, 4096, 0x21, 2), 4096)
	f := saveBlocks(t, 0, a)

	tests := []struct {
		name     string
		provider *fakeProvider
		newCalls int
	}{
		{name: "unsupported", provider: &fakeProvider{unsupported: true}, newCalls: 0},
		{name: "creation fails", provider: &fakeProvider{newErr: errors.New("no userfaultfd")}, newCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, guests := newLoader(t, f, Options{Watcher: tt.provider}, a)
			require.NoError(t, l.Start())
			require.Equal(t, a.Host, guests[0].Host)
			require.False(t, l.OnDemandEnabled())
			require.Equal(t, tt.newCalls, tt.provider.newCalls)
			require.Equal(t, int64(3), l.Stats().Eager)
		})
	}
}

func TestEagerShortReadFailsStart(t *testing.T) {
	a := testutil.Block("ram", testutil.Image(2, 4096, 0x31), 4096)
	f := saveBlocks(t, 0, a)
	r := testutil.NewCountingReader(f)
	r.FailAt(8 + 4096)

	l, _ := newLoader(t, r, Options{}, a)
	err := l.Start()
	require.ErrorIs(t, err, ErrPage)
	require.True(t, l.HasError())
	require.False(t, l.Complete())
	require.Equal(t, int64(1), l.Stats().Errors)
	require.Equal(t, err, l.Start())
}

func TestStartRejectsBadIndex(t *testing.T) {
	a := testutil.Block("vram", testutil.Image(3, 4096, 0x41, 2), 4096)

	t.Run("version", func(t *testing.T) {
		f := saveBlocks(t, 0, a)
		at := f.IndexPos(t, 0)
		_, err := f.WriteAt([]byte{0, 0, 0, 2}, at)
		require.NoError(t, err)

		p := &fakeProvider{}
		l, _ := newLoader(t, f, Options{Watcher: p}, a)
		require.ErrorIs(t, l.Start(), index.ErrVersion)
		require.True(t, l.HasError())
		require.Zero(t, p.newCalls)
	})

	t.Run("unknown block", func(t *testing.T) {
		f := saveBlocks(t, 0, a)
		p := &fakeProvider{}
		l := New(f, Options{Watcher: p})
		require.NoError(t, l.RegisterBlock(blank(testutil.Block("other", a.Host, 4096))))
		require.ErrorIs(t, l.Start(), index.ErrUnknownBlock)
		require.Zero(t, p.newCalls)
		require.NoError(t, l.Close())
	})

	t.Run("truncated", func(t *testing.T) {
		f := saveBlocks(t, 0, a)
		f.Truncate(f.IndexPos(t, 0) + 6)
		l, _ := newLoader(t, f, Options{}, a)
		require.Error(t, l.Start())
	})
}

func TestRegisterBlock(t *testing.T) {
	l := New(&testutil.MemFile{}, Options{})
	require.ErrorIs(t, l.RegisterBlock(ram.RamBlock{Host: make([]byte, 4096), PageSize: 4096}), ErrBlock)
	require.ErrorIs(t, l.RegisterBlock(ram.RamBlock{ID: "a", Host: make([]byte, 4096)}), ErrBlock)
	require.ErrorIs(t, l.RegisterBlock(ram.RamBlock{ID: "a", Host: make([]byte, 4000), PageSize: 4096}), ErrBlock)
	require.NoError(t, l.RegisterBlock(ram.RamBlock{ID: "a", Host: make([]byte, 4096), PageSize: 4096}))
	require.ErrorIs(t, l.RegisterBlock(ram.RamBlock{ID: "a", Host: make([]byte, 4096), PageSize: 4096}), ErrBlock)
}

func TestStartIsIdempotent(t *testing.T) {
	a := testutil.Block("ram", testutil.Image(2, 4096, 0x51), 4096)
	f := saveBlocks(t, 0, a)
	r := testutil.NewCountingReader(f)

	l, _ := newLoader(t, r, Options{}, a)
	require.NoError(t, l.Start())
	reads := r.Total()
	require.NoError(t, l.Start())
	require.Equal(t, reads, r.Total())
	require.ErrorIs(t, l.RegisterBlock(testutil.Block("late", make([]byte, 4096), 4096)), ErrStarted)
}

func TestBlocks(t *testing.T) {
	a := testutil.Block("a", testutil.Image(4, 4096, 0x61, 0), 4096)
	b := testutil.Block("b", testutil.Image(2, 4096, 0x62), 4096)
	f := saveBlocks(t, 0, a, b)

	l, _ := newLoader(t, f, Options{}, a, b)
	require.Nil(t, l.Blocks())
	require.NoError(t, l.Start())

	blocks := l.Blocks()
	require.Len(t, blocks, 2)
	require.Equal(t, "a", blocks[0].RAM.ID)
	require.Equal(t, 0, blocks[0].PagesBegin)
	require.Equal(t, 3, blocks[0].PagesEnd)
	require.Equal(t, "b", blocks[1].RAM.ID)
	require.Equal(t, 3, blocks[1].PagesBegin)
	require.Equal(t, 5, blocks[1].PagesEnd)
}

func TestCloseWithoutStart(t *testing.T) {
	l := New(&testutil.MemFile{}, Options{Watcher: &fakeProvider{}})
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
}

func TestIndexAtBaseOffset(t *testing.T) {
	a := testutil.Block("ram", testutil.Image(3, 4096, 0x71, 1), 4096)
	f := saveBlocks(t, 4096, a)

	l, guests := newLoader(t, f, Options{IndexPos: 4096}, a)
	require.NoError(t, l.Start())
	require.Equal(t, a.Host, guests[0].Host)
}

// outOfOrderSnapshot writes img with its page records and zero run listed
// out of order, so both page index and file position deltas go negative.
func outOfOrderSnapshot(t *testing.T, img ram.RamBlock) *testutil.MemFile {
	t.Helper()
	ps := int64(img.PageSize)
	order := []uint32{5, 2, 7, 0}
	slots := []int64{3, 1, 0, 2}

	f := &testutil.MemFile{}
	rec := index.BlockRecord{Name: img.ID, PageSize: img.PageSize, ZeroPages: []uint32{6, 1, 3, 4}}
	for i, idx := range order {
		pos := index.PointerSize + slots[i]*ps
		_, err := f.WriteAt(img.Page(idx), pos)
		require.NoError(t, err)
		rec.Pages = append(rec.Pages, index.PageRecord{Index: idx, FilePos: pos})
	}
	data, err := index.Encode(&index.Index{Blocks: []index.BlockRecord{rec}})
	require.NoError(t, err)

	indexPos := index.PointerSize + int64(len(order))*ps
	_, err = f.WriteAt(data, indexPos)
	require.NoError(t, err)
	_, err = f.WriteAt(binary.BigEndian.AppendUint64(nil, uint64(indexPos)), 0)
	require.NoError(t, err)
	return f
}

func TestNegativeDeltasRestoreBytes(t *testing.T) {
	a := testutil.Block("ram", testutil.Image(8, 4096, 0x3C, 1, 3, 4, 6), 4096)

	tests := []struct {
		name     string
		watcher  *fakeProvider
		onDemand bool
	}{
		{name: "eager"},
		{name: "on demand", watcher: &fakeProvider{}, onDemand: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := outOfOrderSnapshot(t, a)
			opts := Options{}
			if tt.watcher != nil {
				opts.Watcher = tt.watcher
			}
			l, guests := newLoader(t, f, opts, a)
			require.NoError(t, l.Start())
			require.Equal(t, tt.onDemand, l.OnDemandEnabled())
			if tt.onDemand {
				g := guests[0]
				require.NoError(t, l.handleFault(pageAddr(g, 7)))
				require.Equal(t, a.Page(7), g.Page(7))
				require.NoError(t, l.Join())
			}

			require.True(t, l.Complete())
			require.False(t, l.HasError())
			require.Equal(t, a.Host, guests[0].Host)
			require.Equal(t, 4, l.Stats().Pages)
			require.Equal(t, 4, l.Stats().ZeroPages)
		})
	}
}
