package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/ramsnap/internal/mmfile"
	"github.com/joshuapare/ramsnap/pkg/ramsnap"
	"github.com/joshuapare/ramsnap/ram"
)

var (
	saveOutput string
	saveBlocks []string
	saveBase   int64
	saveSync   bool
)

func init() {
	cmd := newSaveCmd()
	cmd.Flags().StringVarP(&saveOutput, "output", "o", "", "Snapshot file to write (required)")
	cmd.Flags().StringArrayVar(&saveBlocks, "block", nil, "Block to save as id=image.bin[@pagesize] (repeatable)")
	cmd.Flags().Int64Var(&saveBase, "base", 0, "File offset of the index pointer")
	cmd.Flags().BoolVar(&saveSync, "sync", false, "Flush the snapshot to stable storage")
	_ = cmd.MarkFlagRequired("output")
	rootCmd.AddCommand(cmd)
}

func newSaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save -o <snapshot> --block id=image.bin[@pagesize]...",
		Short: "Write raw memory images into a snapshot",
		Long: `The save command reads raw guest memory images and writes them into a
snapshot file. All-zero pages are recorded in the index only.

Blocks are stored in the order given; restore and inspect must list them in
the same order.

Example:
  ramsnapctl save -o vm.snap --block pc.ram=ram.bin --block vga.vram=vram.bin@16K`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("base") {
				saveBase = cfg.IndexPos
			}
			if !cmd.Flags().Changed("sync") {
				saveSync = cfg.Sync
			}
			return runSave()
		},
	}
	return cmd
}

type saveResult struct {
	Output     string `json:"output"`
	Blocks     int    `json:"blocks"`
	Pages      int    `json:"pages"`
	ZeroPages  int    `json:"zero_pages"`
	DataBytes  int64  `json:"data_bytes"`
	IndexPos   int64  `json:"index_pos"`
	IndexBytes int    `json:"index_bytes"`
	FileSize   int64  `json:"file_size"`
}

func runSave() (err error) {
	specs, err := parseBlockSpecs(saveBlocks, cfg.PageSize)
	if err != nil {
		return err
	}

	blocks := make([]ram.RamBlock, 0, len(specs))
	for _, spec := range specs {
		printVerbose("Mapping %s: %s\n", spec.ID, spec.Value)
		data, unmap, err := mmfile.Map(spec.Value)
		if err != nil {
			return fmt.Errorf("failed to map image for %q: %w", spec.ID, err)
		}
		defer func() { err = errors.Join(err, unmap()) }()
		if len(data)%spec.PageSize != 0 {
			return fmt.Errorf("image for %q is %d bytes, not a multiple of page size %d", spec.ID, len(data), spec.PageSize)
		}
		blocks = append(blocks, ram.RamBlock{ID: spec.ID, Host: data, PageSize: spec.PageSize})
	}

	stats, err := ramsnap.Save(saveOutput, blocks, &ramsnap.SaveOptions{
		Base:   saveBase,
		Sync:   saveSync,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	res := saveResult{
		Output:     saveOutput,
		Blocks:     len(blocks),
		Pages:      stats.Pages,
		ZeroPages:  stats.ZeroPages,
		DataBytes:  stats.DataBytes,
		IndexPos:   stats.IndexPos,
		IndexBytes: stats.IndexBytes,
		FileSize:   stats.End,
	}
	if jsonOut {
		return printJSON(res)
	}
	printInfo("Saved %s\n", res.Output)
	printInfo("  Blocks: %d\n", res.Blocks)
	printInfo("  Pages: %s (%s zero)\n", count(res.Pages), count(res.ZeroPages))
	printInfo("  Page data: %s\n", formatBytes(res.DataBytes))
	printInfo("  Index: %s at offset %s\n", formatBytes(int64(res.IndexBytes)), count(res.IndexPos))
	printInfo("  File size: %s\n", formatBytes(res.FileSize))
	return nil
}
