package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/joshuapare/ramsnap/internal/mmfile"
	"github.com/joshuapare/ramsnap/pkg/ramsnap"
	"github.com/joshuapare/ramsnap/ram"
	"github.com/joshuapare/ramsnap/ram/loader"
	"github.com/joshuapare/ramsnap/ram/watch"
)

var (
	restoreBlocks   []string
	restoreIndexPos int64
	restoreLazy     bool
	restoreTouch    bool
	restoreQueue    int
	restoreMetrics  bool
)

func init() {
	cmd := newRestoreCmd()
	cmd.Flags().StringArrayVar(&restoreBlocks, "block", nil, "Block to restore as id=out.bin:size[@pagesize] (repeatable)")
	cmd.Flags().Int64Var(&restoreIndexPos, "index-pos", 0, "File offset of the index pointer")
	cmd.Flags().BoolVar(&restoreLazy, "lazy", false, "Load pages on demand instead of up front")
	cmd.Flags().BoolVar(&restoreTouch, "touch", false, "With --lazy, read every page from the back before joining")
	cmd.Flags().IntVar(&restoreQueue, "queue", 0, "Background read queue capacity")
	cmd.Flags().BoolVar(&restoreMetrics, "metrics", false, "Print loader metrics")
	rootCmd.AddCommand(cmd)
}

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <snapshot> --block id=out.bin:size[@pagesize]...",
		Short: "Restore a snapshot into memory and write the blocks out",
		Long: `The restore command loads a snapshot into freshly mapped memory, then
writes each block to its output file and prints a digest of its contents.

With --lazy, pages are protected and loaded when first touched while a
background reader streams the rest. --touch reads every page in reverse
order to exercise the fault path before waiting for the background reader.

Example:
  ramsnapctl restore vm.snap --block pc.ram=ram.out:128M
  ramsnapctl restore vm.snap --block pc.ram=ram.out:128M --lazy --touch --metrics`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("index-pos") {
				restoreIndexPos = cfg.IndexPos
			}
			if !cmd.Flags().Changed("lazy") {
				restoreLazy = cfg.Lazy
			}
			if !cmd.Flags().Changed("queue") {
				restoreQueue = cfg.QueueCapacity
			}
			return runRestore(args)
		},
	}
	return cmd
}

// restoreTarget is a block being restored and the file it is written to.
type restoreTarget struct {
	block ram.RamBlock
	out   string
}

type restoreBlockResult struct {
	ID     string `json:"id"`
	Output string `json:"output"`
	Size   int64  `json:"size"`
	XXH64  string `json:"xxh64"`
}

type restoreResult struct {
	Snapshot   string               `json:"snapshot"`
	OnDemand   bool                 `json:"on_demand"`
	Pages      int                  `json:"pages"`
	ZeroPages  int                  `json:"zero_pages"`
	Faulted    int64                `json:"faulted"`
	Background int64                `json:"background"`
	Eager      int64                `json:"eager"`
	BytesRead  int64                `json:"bytes_read"`
	Duration   string               `json:"duration"`
	Blocks     []restoreBlockResult `json:"blocks"`
	Metrics    map[string]float64   `json:"metrics,omitempty"`
}

func parseRestoreTargets(specs []blockSpec) ([]restoreTarget, func() error, error) {
	var unmaps []func() error
	release := func() error {
		var errs []error
		for _, u := range unmaps {
			errs = append(errs, u())
		}
		return errors.Join(errs...)
	}

	targets := make([]restoreTarget, 0, len(specs))
	for _, spec := range specs {
		out, sizeStr, ok := strings.Cut(spec.Value, ":")
		if !ok || out == "" {
			return nil, release, fmt.Errorf("invalid block %q: want id=out.bin:size", spec.ID)
		}
		size, err := parseSize(sizeStr)
		if err != nil {
			return nil, release, fmt.Errorf("invalid size for block %q: %w", spec.ID, err)
		}
		if size%int64(spec.PageSize) != 0 {
			return nil, release, fmt.Errorf("block %q size %d is not a multiple of page size %d", spec.ID, size, spec.PageSize)
		}
		mem, unmap, err := mmfile.Anon(int(size))
		if err != nil {
			return nil, release, fmt.Errorf("failed to allocate block %q: %w", spec.ID, err)
		}
		unmaps = append(unmaps, unmap)
		targets = append(targets, restoreTarget{
			block: ram.RamBlock{ID: spec.ID, Host: mem, PageSize: spec.PageSize},
			out:   out,
		})
	}
	return targets, release, nil
}

func runRestore(args []string) (err error) {
	path := args[0]
	specs, err := parseBlockSpecs(restoreBlocks, cfg.PageSize)
	if err != nil {
		return err
	}
	targets, release, err := parseRestoreTargets(specs)
	defer func() { err = errors.Join(err, release()) }()
	if err != nil {
		return err
	}

	blocks := make([]ram.RamBlock, len(targets))
	for i, t := range targets {
		blocks[i] = t.block
	}

	reg := prometheus.NewRegistry()
	opts := &ramsnap.OpenOptions{
		IndexPos:      restoreIndexPos,
		QueueCapacity: restoreQueue,
		Logger:        logger,
		Metrics:       loader.NewMetrics(reg),
	}
	var pw *watch.Protect
	if restoreLazy {
		pw = watch.NewProtect(watch.ProtectOptions{})
		opts.Watcher = pw
	}

	printVerbose("Restoring snapshot: %s\n", path)
	r, err := ramsnap.Open(path, blocks, opts)
	if err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	if restoreTouch && r.OnDemand() {
		if err := touchPages(pw, blocks); err != nil {
			r.Close()
			return fmt.Errorf("failed to touch pages: %w", err)
		}
	}
	if err := r.Join(); err != nil {
		r.Close()
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	stats := r.Stats()
	if err := r.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	res := restoreResult{
		Snapshot:   path,
		OnDemand:   stats.OnDemand,
		Pages:      stats.Pages,
		ZeroPages:  stats.ZeroPages,
		Faulted:    stats.Faulted,
		Background: stats.Background,
		Eager:      stats.Eager,
		BytesRead:  stats.BytesRead,
		Duration:   stats.Duration.Round(time.Microsecond).String(),
	}
	for _, t := range targets {
		if err := os.WriteFile(t.out, t.block.Host, 0o644); err != nil {
			return fmt.Errorf("failed to write block %q: %w", t.block.ID, err)
		}
		res.Blocks = append(res.Blocks, restoreBlockResult{
			ID:     t.block.ID,
			Output: t.out,
			Size:   t.block.TotalSize(),
			XXH64:  fmt.Sprintf("%016x", xxhash.Sum64(t.block.Host)),
		})
	}
	if restoreMetrics {
		if res.Metrics, err = gatherMetrics(reg); err != nil {
			return err
		}
	}

	if jsonOut {
		return printJSON(res)
	}
	mode := "eager"
	if res.OnDemand {
		mode = "on demand"
	}
	printInfo("Restored %s (%s)\n", res.Snapshot, mode)
	printInfo("  Pages: %s stored, %s zero\n", count(res.Pages), count(res.ZeroPages))
	printInfo("  Loaded: %s faulted, %s background, %s eager\n",
		count(res.Faulted), count(res.Background), count(res.Eager))
	printInfo("  Read: %s in %s\n", formatBytes(res.BytesRead), res.Duration)
	for _, b := range res.Blocks {
		printInfo("  %s -> %s (%s, xxh64 %s)\n", b.ID, b.Output, formatBytes(b.Size), b.XXH64)
	}
	if res.Metrics != nil {
		printInfo("\nMetrics:\n")
		for _, name := range sortedKeys(res.Metrics) {
			printInfo("  %s %s\n", name, numbers.Sprintf("%v", res.Metrics[name]))
		}
	}
	return nil
}

// touchPages reads one byte of every page, last page first, through the
// watcher's guard so unloaded pages fault in.
func touchPages(pw *watch.Protect, blocks []ram.RamBlock) error {
	var sink byte
	for _, b := range blocks {
		for off := len(b.Host) - b.PageSize; off >= 0; off -= b.PageSize {
			if err := pw.Guard(func() { sink ^= b.Host[off] }); err != nil {
				return fmt.Errorf("block %q offset %d: %w", b.ID, off, err)
			}
		}
	}
	logger.Debug("pages touched", "checksum", sink)
	return nil
}
