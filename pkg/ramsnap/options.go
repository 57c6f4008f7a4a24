package ramsnap

import (
	"log/slog"

	"github.com/joshuapare/ramsnap/ram/loader"
	"github.com/joshuapare/ramsnap/ram/watch"
)

// SaveOptions controls snapshot writing.
type SaveOptions struct {
	// Base is the file offset of the index pointer; page data follows it.
	// Default: 0.
	Base int64

	// Sync flushes the file to stable storage before Save returns.
	Sync bool

	// Logger receives progress messages. Default: discard.
	Logger *slog.Logger
}

// OpenOptions controls snapshot restore.
type OpenOptions struct {
	// IndexPos is the file offset of the index pointer. Default: 0.
	IndexPos int64

	// Watcher enables on-demand loading. If nil, or the platform cannot
	// watch memory, every page is read before Open returns.
	Watcher watch.Provider

	// QueueCapacity bounds the background read pipeline.
	// Default: loader.DefaultQueueCapacity.
	QueueCapacity int

	// Logger receives load progress. Default: discard.
	Logger *slog.Logger

	// Metrics records page counters. Default: nil.
	Metrics *loader.Metrics
}

// InspectOptions controls Inspect.
type InspectOptions struct {
	// IndexPos is the file offset of the index pointer. Default: 0.
	IndexPos int64
}
