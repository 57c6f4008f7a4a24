/*
Package ramsnap provides a file-level API for saving guest RAM snapshots and
restoring them on demand.

# Quick Start

Save two blocks of guest memory:

	blocks := []ram.RamBlock{
	    {ID: "pc.ram", Host: sysMem, PageSize: 4096},
	    {ID: "vga.vram", Host: vram, PageSize: 4096},
	}
	stats, err := ramsnap.Save("vm.snap", blocks, nil)

Restore them lazily, faulting pages in as the guest touches them:

	r, err := ramsnap.Open("vm.snap", blocks, &ramsnap.OpenOptions{
	    Watcher: watch.NewProtect(watch.ProtectOptions{}),
	})
	if err != nil {
	    log.Fatal(err)
	}
	defer r.Close()

Blocks passed to Open must have the same IDs, sizes, page sizes and order
as when they were saved. Without a Watcher, Open returns only after every
page has been read.

# Inspecting

Inspect decodes the index without touching guest memory:

	info, err := ramsnap.Inspect("vm.snap", []index.Layout{
	    {ID: "pc.ram", PageSize: 4096, Size: 128 << 20},
	}, nil)
*/
package ramsnap
