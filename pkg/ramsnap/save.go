package ramsnap

import (
	"fmt"
	"os"

	"github.com/joshuapare/ramsnap/ram"
	"github.com/joshuapare/ramsnap/ram/saver"
)

// Save writes blocks to a new snapshot file at path, replacing any existing
// file.
func Save(path string, blocks []ram.RamBlock, opts *SaveOptions) (saver.Stats, error) {
	if opts == nil {
		opts = &SaveOptions{}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return saver.Stats{}, fmt.Errorf("failed to create snapshot: %w", err)
	}

	s := saver.New(f, saver.Options{Base: opts.Base, Logger: opts.Logger})
	for _, b := range blocks {
		s.RegisterBlock(b)
	}
	if err := s.Save(); err != nil {
		f.Close()
		return saver.Stats{}, err
	}
	if opts.Sync {
		if err := f.Sync(); err != nil {
			f.Close()
			return saver.Stats{}, fmt.Errorf("failed to sync snapshot: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return saver.Stats{}, fmt.Errorf("failed to close snapshot: %w", err)
	}
	return s.Stats(), nil
}
