// Package saver writes guest RAM blocks into the snapshot page format read by
// the loader.
//
// Pages are written in block order. All-zero pages are recorded in the index
// only; every other page is stored verbatim and contiguous nonzero pages are
// written with a single WriteAt.
package saver

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/joshuapare/ramsnap/internal/buf"
	"github.com/joshuapare/ramsnap/ram"
	"github.com/joshuapare/ramsnap/ram/index"
)

// ErrNoBlocks indicates Save was called before any block was registered.
var ErrNoBlocks = errors.New("saver: no blocks registered")

// Options controls where and how a snapshot is written.
type Options struct {
	// Base is the file position of the 8-byte index pointer. Page data
	// follows immediately after it. Default: 0.
	Base int64

	// Logger receives progress messages. Default: discard.
	Logger *slog.Logger
}

// Stats summarizes a completed save.
type Stats struct {
	Pages      int
	ZeroPages  int
	DataBytes  int64
	IndexBytes int
	IndexPos   int64
	End        int64
}

// Saver writes registered blocks to w.
type Saver struct {
	w      io.WriterAt
	opts   Options
	log    *slog.Logger
	blocks []ram.RamBlock
	stats  Stats
}

// New returns a Saver writing to w.
func New(w io.WriterAt, opts Options) *Saver {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Saver{w: w, opts: opts, log: log}
}

// RegisterBlock adds b to the snapshot. Blocks are saved in registration
// order, which the loader must reproduce.
func (s *Saver) RegisterBlock(b ram.RamBlock) {
	s.blocks = append(s.blocks, b)
}

// Stats reports the result of the last successful Save.
func (s *Saver) Stats() Stats { return s.stats }

// Save writes every page and the index, then points the header at the index.
func (s *Saver) Save() error {
	if len(s.blocks) == 0 {
		return ErrNoBlocks
	}
	pos, ok := buf.AddOverflowSafe(s.opts.Base, index.PointerSize)
	if s.opts.Base < 0 || !ok {
		return fmt.Errorf("saver: invalid base offset %d", s.opts.Base)
	}

	var stats Stats
	x := &index.Index{Version: index.Version, Blocks: make([]index.BlockRecord, 0, len(s.blocks))}
	for _, b := range s.blocks {
		rec, next, err := s.saveBlock(b, pos)
		if err != nil {
			return err
		}
		stats.Pages += b.PageCount()
		stats.ZeroPages += len(rec.ZeroPages)
		stats.DataBytes += next - pos
		pos = next
		x.Blocks = append(x.Blocks, rec)
	}

	enc, err := index.Encode(x)
	if err != nil {
		return fmt.Errorf("saver: encode index: %w", err)
	}
	if _, err := s.w.WriteAt(enc, pos); err != nil {
		return fmt.Errorf("saver: write index: %w", err)
	}
	var ptr [index.PointerSize]byte
	binary.BigEndian.PutUint64(ptr[:], uint64(pos))
	if _, err := s.w.WriteAt(ptr[:], s.opts.Base); err != nil {
		return fmt.Errorf("saver: write index pointer: %w", err)
	}

	stats.IndexBytes = len(enc)
	stats.IndexPos = pos
	stats.End = pos + int64(len(enc))
	s.log.Debug("snapshot saved",
		"blocks", len(s.blocks),
		"pages", stats.Pages,
		"zero_pages", stats.ZeroPages,
		"data_bytes", stats.DataBytes,
		"index_bytes", stats.IndexBytes)
	s.stats = stats
	return nil
}

// saveBlock writes the nonzero pages of b starting at pos and returns the
// block's index record and the next free file position.
func (s *Saver) saveBlock(b ram.RamBlock, pos int64) (index.BlockRecord, int64, error) {
	if b.PageSize <= 0 {
		return index.BlockRecord{}, 0, fmt.Errorf("saver: block %q has page size %d", b.ID, b.PageSize)
	}
	if len(b.Host)%b.PageSize != 0 {
		return index.BlockRecord{}, 0, fmt.Errorf("saver: block %q size %d is not a multiple of page size %d", b.ID, len(b.Host), b.PageSize)
	}
	rec := index.BlockRecord{Name: b.ID, PageSize: b.PageSize}

	// [runStart, runEnd) is a range of consecutive nonzero pages not yet written.
	runStart, runEnd := 0, 0
	flush := func() error {
		if runStart == runEnd {
			return nil
		}
		chunk := b.Host[runStart*b.PageSize : runEnd*b.PageSize]
		if _, err := s.w.WriteAt(chunk, pos); err != nil {
			return fmt.Errorf("saver: block %q pages %d-%d: %w", b.ID, runStart, runEnd-1, err)
		}
		pos += int64(len(chunk))
		runStart = runEnd
		return nil
	}

	for i := 0; i < b.PageCount(); i++ {
		page := b.Page(uint32(i))
		if buf.IsZero(page) {
			if err := flush(); err != nil {
				return index.BlockRecord{}, 0, err
			}
			rec.ZeroPages = append(rec.ZeroPages, uint32(i))
			runStart, runEnd = i+1, i+1
			continue
		}
		filePos := pos + int64(runEnd-runStart)*int64(b.PageSize)
		rec.Pages = append(rec.Pages, index.PageRecord{Index: uint32(i), FilePos: filePos})
		runEnd = i + 1
	}
	if err := flush(); err != nil {
		return index.BlockRecord{}, 0, err
	}
	return rec, pos, nil
}
