package ramsnap

import (
	"errors"
	"fmt"

	"github.com/joshuapare/ramsnap/internal/pread"
	"github.com/joshuapare/ramsnap/ram"
	"github.com/joshuapare/ramsnap/ram/loader"
)

// Restore is an open snapshot whose pages are being loaded into guest
// memory. It owns the snapshot file until Close.
type Restore struct {
	file   *pread.File
	loader *loader.Loader
}

// Open starts restoring the snapshot at path into blocks.
func Open(path string, blocks []ram.RamBlock, opts *OpenOptions) (*Restore, error) {
	if opts == nil {
		opts = &OpenOptions{}
	}
	f, err := pread.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}

	l := loader.New(f, loader.Options{
		Watcher:       opts.Watcher,
		QueueCapacity: opts.QueueCapacity,
		IndexPos:      opts.IndexPos,
		Logger:        opts.Logger,
		Metrics:       opts.Metrics,
	})
	for _, b := range blocks {
		if err := l.RegisterBlock(b); err != nil {
			f.Close()
			return nil, err
		}
	}
	if err := l.Start(); err != nil {
		return nil, errors.Join(err, l.Close(), f.Close())
	}
	return &Restore{file: f, loader: l}, nil
}

// Loader returns the underlying loader.
func (r *Restore) Loader() *loader.Loader { return r.loader }

// OnDemand reports whether pages are still loaded on first access.
func (r *Restore) OnDemand() bool { return r.loader.OnDemandEnabled() }

// Join loads every remaining page and waits for background loading.
func (r *Restore) Join() error { return r.loader.Join() }

// LoadRange loads every page overlapping mem.
func (r *Restore) LoadRange(mem []byte) error { return r.loader.LoadRange(mem) }

// Stats returns the loader counters.
func (r *Restore) Stats() loader.Stats { return r.loader.Stats() }

// Close stops loading and closes the snapshot file. Pages that were not
// loaded yet are left as they were.
func (r *Restore) Close() error {
	return errors.Join(r.loader.Close(), r.file.Close())
}
