//go:build linux

package loader

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/ramsnap/internal/mmfile"
	"github.com/joshuapare/ramsnap/internal/testutil"
	"github.com/joshuapare/ramsnap/ram"
	"github.com/joshuapare/ramsnap/ram/watch"
)

func TestProtectWatcherRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping mprotect test in short mode")
	}
	ps := os.Getpagesize()
	want := testutil.Image(64, ps, 0xF1, 3, 4, 63)
	f := saveBlocks(t, 0, testutil.Block("ram", want, ps))

	mem, cleanup, err := mmfile.Anon(len(want))
	require.NoError(t, err)
	defer cleanup()

	pw := watch.NewProtect(watch.ProtectOptions{})
	l := New(f, Options{Watcher: pw})
	require.NoError(t, l.RegisterBlock(ram.RamBlock{ID: "ram", Host: mem, PageSize: ps}))
	require.NoError(t, l.Start())
	require.True(t, l.OnDemandEnabled())

	// Read a byte from every page in reverse; pages not yet loaded by the
	// background path fault into the loader.
	got := make([]byte, 64)
	require.NoError(t, pw.Guard(func() {
		for page := 63; page >= 0; page-- {
			got[page] = mem[page*ps+1]
		}
	}))
	for page := range 64 {
		require.Equal(t, want[page*ps+1], got[page], "page %d", page)
	}

	require.NoError(t, l.Join())
	require.NoError(t, l.Close())
	require.Equal(t, want, mem)
}
