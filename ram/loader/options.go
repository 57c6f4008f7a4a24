package loader

import (
	"io"
	"log/slog"

	"github.com/joshuapare/ramsnap/ram/watch"
)

// DefaultQueueCapacity is the number of pages queued for the reader goroutine
// when Options.QueueCapacity is zero.
const DefaultQueueCapacity = 32

// Options configures a Loader.
type Options struct {
	// Watcher supplies the access watcher for on-demand loading.
	// Default: nil, which loads every page eagerly in Start.
	Watcher watch.Provider

	// QueueCapacity bounds both background queues. Default: DefaultQueueCapacity.
	QueueCapacity int

	// IndexPos is the file position of the 8-byte index pointer. Default: 0.
	IndexPos int64

	// Logger receives load progress and per-page errors. Default: discard.
	Logger *slog.Logger

	// Metrics records page counters. Default: nil, which records nothing.
	Metrics *Metrics
}

func (o Options) withDefaults() Options {
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = DefaultQueueCapacity
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}
