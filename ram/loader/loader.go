package loader

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joshuapare/ramsnap/ram"
	"github.com/joshuapare/ramsnap/ram/index"
	"github.com/joshuapare/ramsnap/ram/queue"
	"github.com/joshuapare/ramsnap/ram/watch"
)

var (
	// ErrStarted indicates RegisterBlock after Start.
	ErrStarted = errors.New("loader: already started")
	// ErrBlock indicates a block that cannot be loaded.
	ErrBlock = errors.New("loader: invalid block")
	// ErrPage indicates a page that could not be read from the snapshot or
	// copied into guest memory.
	ErrPage = errors.New("loader: page load failed")
)

// Stats summarizes a load.
type Stats struct {
	// Pages is the number of nonzero pages in the index.
	Pages int
	// ZeroPages is the number of pages cleared while parsing the index.
	ZeroPages int
	// Faulted, Background and Eager count pages filled by each path.
	Faulted    int64
	Background int64
	Eager      int64
	// Errors counts pages that ended in ram.StateError.
	Errors int64
	// BytesRead is the number of page bytes read from the snapshot.
	BytesRead int64
	// OnDemand reports whether pages are loaded through a watcher.
	OnDemand bool
	// Complete reports whether every page has been loaded.
	Complete bool
	// Duration is the time from Start until completion, or until now while
	// loading is still in progress.
	Duration time.Duration
}

// Loader restores guest RAM from a snapshot. Blocks are registered before
// Start; after Start the Loader owns page loading until Close.
type Loader struct {
	src     io.ReaderAt
	opts    Options
	log     *slog.Logger
	metrics *Metrics

	mu       sync.Mutex
	started  bool
	startErr error
	pending  []ram.RamBlock

	index     *ram.FileIndex
	zeroPages int
	watcher   watch.Watcher
	onDemand  atomic.Bool

	toRead   *queue.Queue[*ram.Page]
	readDone *queue.Queue[*ram.Page]
	reader   sync.WaitGroup

	// cursor and sentEnd are only touched by the idle goroutine.
	cursor  int
	sentEnd bool

	joining  atomic.Bool
	complete atomic.Bool
	failed   atomic.Bool

	startTime time.Time
	endTime   atomic.Int64

	faulted    atomic.Int64
	background atomic.Int64
	eager      atomic.Int64
	pageErrors atomic.Int64
	bytesRead  atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// New returns a Loader reading page data from src.
func New(src io.ReaderAt, opts Options) *Loader {
	opts = opts.withDefaults()
	return &Loader{
		src:      src,
		opts:     opts,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		toRead:   queue.New[*ram.Page](opts.QueueCapacity),
		readDone: queue.New[*ram.Page](opts.QueueCapacity),
	}
}

// RegisterBlock adds a block of guest memory. Blocks must be registered in
// the order they were saved.
func (l *Loader) RegisterBlock(b ram.RamBlock) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return ErrStarted
	}
	switch {
	case b.ID == "":
		return fmt.Errorf("%w: empty id", ErrBlock)
	case len(b.ID) > 255:
		return fmt.Errorf("%w: id %q longer than 255 bytes", ErrBlock, b.ID)
	case b.PageSize <= 0:
		return fmt.Errorf("%w: %q has page size %d", ErrBlock, b.ID, b.PageSize)
	case len(b.Host)%b.PageSize != 0:
		return fmt.Errorf("%w: %q size %d is not a multiple of page size %d", ErrBlock, b.ID, len(b.Host), b.PageSize)
	}
	for _, prev := range l.pending {
		if prev.ID == b.ID {
			return fmt.Errorf("%w: %q registered twice", ErrBlock, b.ID)
		}
	}
	if len(l.pending) >= 1<<16 {
		return fmt.Errorf("%w: too many blocks", ErrBlock)
	}
	l.pending = append(l.pending, b)
	return nil
}

// Start parses the index and begins loading. With a usable watcher it
// returns as soon as every page is watched; otherwise it returns after all
// pages have been read. Calling Start again returns the first result.
func (l *Loader) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return l.startErr
	}
	l.started = true
	l.startTime = time.Now()
	if err := l.start(); err != nil {
		l.failed.Store(true)
		l.startErr = err
		l.log.Error("snapshot load failed", "error", err)
		return err
	}
	return nil
}

func (l *Loader) start() error {
	fi, x, err := index.Read(l.src, l.opts.IndexPos, l.pending)
	if err != nil {
		return fmt.Errorf("loader: %w", err)
	}
	l.index = fi
	l.zeroPages = x.ZeroPages()
	l.log.Debug("snapshot index parsed",
		"blocks", len(fi.Blocks),
		"pages", len(fi.Pages),
		"zero_pages", l.zeroPages)

	w := l.newWatcher()
	if w == nil {
		return l.readAllPages()
	}
	// Registered ranges can fault before registration finishes.
	l.watcher = w
	if err := l.registerPageWatches(w); err != nil {
		if cerr := w.Close(); cerr != nil {
			l.log.Warn("closing watcher after failed registration", "error", cerr)
		}
		l.watcher = nil
		return err
	}
	l.onDemand.Store(true)
	w.DoneRegistering()
	l.reader.Add(1)
	go l.readPages()
	return nil
}

// newWatcher binds a watcher to the loader callbacks, or returns nil when
// pages must be loaded eagerly.
func (l *Loader) newWatcher() watch.Watcher {
	p := l.opts.Watcher
	if p == nil {
		return nil
	}
	if !p.Supported() {
		l.log.Info("access watching unsupported, loading eagerly")
		return nil
	}
	w, err := p.New(l.handleFault, l.backgroundLoad)
	if err != nil {
		l.log.Warn("creating access watcher failed, loading eagerly", "error", err)
		return nil
	}
	return w
}

// registerPageWatches watches every page with a record. Pages at
// consecutive addresses are registered as one range.
func (l *Loader) registerPageWatches(w watch.Watcher) error {
	ranges := 0
	register := func(mem []byte) error {
		if err := w.RegisterMemoryRange(mem); err != nil {
			return fmt.Errorf("loader: watch %d bytes at %#x: %w", len(mem), addrOf(mem), err)
		}
		ranges++
		return nil
	}

	for bi := range l.index.Blocks {
		b := &l.index.Blocks[bi]
		pages := l.index.BlockPages(bi)
		for i := 0; i < len(pages); {
			first := pages[i].Index
			end := first + 1
			for i++; i < len(pages) && pages[i].Index == end; i++ {
				end++
			}
			ps := b.RAM.PageSize
			if err := register(b.RAM.Host[int(first)*ps : int(end)*ps]); err != nil {
				return err
			}
		}
	}
	l.log.Debug("pages watched", "pages", len(l.index.Pages), "ranges", ranges)
	return nil
}

// InterruptReading stops the background queues. It does not wait for the
// reader goroutine.
func (l *Loader) InterruptReading() {
	l.toRead.Stop()
	l.readDone.Stop()
}

// Join loads every remaining page now and waits for background loading to
// finish.
func (l *Loader) Join() error {
	if l.onDemand.Load() {
		l.joining.Store(true)
		l.watcher.Wake()
		l.watcher.Join()
		l.reader.Wait()
	}
	return l.Err()
}

// Close stops background loading, waits for in-flight faults and the reader
// goroutine, and releases the watcher. Pages not yet loaded stay watched
// until the watcher is closed and are left unfilled afterwards.
func (l *Loader) Close() error {
	l.closeOnce.Do(func() {
		l.InterruptReading()
		if l.watcher != nil {
			l.closeErr = l.watcher.Close()
		}
		l.reader.Wait()
		l.log.Debug("loader closed", "complete", l.complete.Load())
	})
	return l.closeErr
}

// OnDemandEnabled reports whether pages are loaded on first access.
func (l *Loader) OnDemandEnabled() bool { return l.onDemand.Load() }

// Complete reports whether every page has been loaded.
func (l *Loader) Complete() bool { return l.complete.Load() }

// HasError reports whether Start failed or any page failed to load.
func (l *Loader) HasError() bool { return l.failed.Load() }

// Err returns the Start error, or an ErrPage error when pages failed.
func (l *Loader) Err() error {
	l.mu.Lock()
	err := l.startErr
	l.mu.Unlock()
	if err != nil {
		return err
	}
	if n := l.pageErrors.Load(); n > 0 {
		return fmt.Errorf("%w: %d pages", ErrPage, n)
	}
	return nil
}

// Blocks returns the registered blocks with their page ranges, or nil before
// a successful Start.
func (l *Loader) Blocks() []ram.Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.index == nil {
		return nil
	}
	out := make([]ram.Block, len(l.index.Blocks))
	copy(out, l.index.Blocks)
	return out
}

// Stats returns a snapshot of the load counters.
func (l *Loader) Stats() Stats {
	l.mu.Lock()
	s := Stats{ZeroPages: l.zeroPages}
	if l.index != nil {
		s.Pages = len(l.index.Pages)
	}
	start := l.startTime
	l.mu.Unlock()

	s.Faulted = l.faulted.Load()
	s.Background = l.background.Load()
	s.Eager = l.eager.Load()
	s.Errors = l.pageErrors.Load()
	s.BytesRead = l.bytesRead.Load()
	s.OnDemand = l.onDemand.Load()
	s.Complete = l.complete.Load()
	if !start.IsZero() {
		if end := l.endTime.Load(); end != 0 {
			s.Duration = time.Unix(0, end).Sub(start)
		} else {
			s.Duration = time.Since(start)
		}
	}
	return s
}

// finish records that every page has been loaded.
func (l *Loader) finish() {
	if l.complete.CompareAndSwap(false, true) {
		l.endTime.Store(time.Now().UnixNano())
		l.log.Info("snapshot loaded",
			"pages", len(l.index.Pages),
			"faulted", l.faulted.Load(),
			"background", l.background.Load(),
			"eager", l.eager.Load(),
			"errors", l.pageErrors.Load())
	}
}

// pageFailed marks p failed and records the error.
func (l *Loader) pageFailed(p *ram.Page, err error) {
	p.Fail()
	l.failed.Store(true)
	l.pageErrors.Add(1)
	l.metrics.pageError()
	b := &l.index.Blocks[p.BlockIndex].RAM
	l.log.Error("page load failed",
		"block", b.ID,
		"page", p.Index,
		"file_pos", p.FilePos,
		"error", err)
}
