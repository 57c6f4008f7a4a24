package loader

import (
	"errors"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/ramsnap/internal/testutil"
	"github.com/joshuapare/ramsnap/ram"
	"github.com/joshuapare/ramsnap/ram/saver"
	"github.com/joshuapare/ramsnap/ram/watch"
)

// saveBlocks writes a snapshot of blocks with the index pointer at base.
func saveBlocks(t *testing.T, base int64, blocks ...ram.RamBlock) *testutil.MemFile {
	t.Helper()
	f := &testutil.MemFile{}
	s := saver.New(f, saver.Options{Base: base})
	for _, b := range blocks {
		s.RegisterBlock(b)
	}
	require.NoError(t, s.Save())
	return f
}

// blank returns a block with the geometry of b over garbage memory.
func blank(b ram.RamBlock) ram.RamBlock {
	return ram.RamBlock{ID: b.ID, StartOffset: b.StartOffset, Host: testutil.Garbage(len(b.Host)), PageSize: b.PageSize}
}

// newLoader registers blank copies of blocks and returns them with the loader.
func newLoader(t *testing.T, src io.ReaderAt, opts Options, blocks ...ram.RamBlock) (*Loader, []ram.RamBlock) {
	t.Helper()
	l := New(src, opts)
	guests := make([]ram.RamBlock, len(blocks))
	for i, b := range blocks {
		guests[i] = blank(b)
		require.NoError(t, l.RegisterBlock(guests[i]))
	}
	t.Cleanup(func() { _ = l.Close() })
	return l, guests
}

func pageAddr(b ram.RamBlock, page int) uintptr {
	return b.HostAddr() + uintptr(page*b.PageSize)
}

// fakeProvider hands out fakeWatchers. The watcher never runs the idle
// callback on its own, so tests decide when background work happens.
type fakeProvider struct {
	unsupported  bool
	newErr       error
	failRegister int

	// faultOnRegister touches the first byte of each range as it is registered.
	faultOnRegister bool

	newCalls int
	w        *fakeWatcher
}

func (p *fakeProvider) Supported() bool { return !p.unsupported }

func (p *fakeProvider) New(onFault watch.FaultFunc, onIdle watch.IdleFunc) (watch.Watcher, error) {
	p.newCalls++
	if p.newErr != nil {
		return nil, p.newErr
	}
	p.w = &fakeWatcher{onFault: onFault, onIdle: onIdle, failRegister: p.failRegister, faultOnRegister: p.faultOnRegister}
	return p.w, nil
}

var errRegister = errors.New("register refused")

type fakeWatcher struct {
	onFault         watch.FaultFunc
	onIdle          watch.IdleFunc
	failRegister    int
	faultOnRegister bool
	faultErrs       []error

	mu     sync.Mutex
	ranges [][]byte

	registered atomic.Bool
	fills      atomic.Int64
	closed     atomic.Bool
}

func (w *fakeWatcher) RegisterMemoryRange(mem []byte) error {
	w.mu.Lock()
	if w.failRegister > 0 && len(w.ranges)+1 == w.failRegister {
		w.mu.Unlock()
		return errRegister
	}
	w.ranges = append(w.ranges, mem)
	w.mu.Unlock()
	if w.faultOnRegister {
		w.faultErrs = append(w.faultErrs, w.onFault(addrOf(mem)))
	}
	return nil
}

func (w *fakeWatcher) rangeSizes() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]int, len(w.ranges))
	for i, r := range w.ranges {
		out[i] = len(r)
	}
	return out
}

func (w *fakeWatcher) DoneRegistering() { w.registered.Store(true) }

func (w *fakeWatcher) FillPage(dst, data []byte) error {
	if data == nil {
		clear(dst)
	} else {
		copy(dst, data)
	}
	w.fills.Add(1)
	return nil
}

func (w *fakeWatcher) Wake() {}

// Join runs the idle callback inline until it reports AllDone.
func (w *fakeWatcher) Join() {
	for !w.closed.Load() {
		switch w.onIdle() {
		case watch.AllDone:
			return
		case watch.Wait:
			runtime.Gosched()
		}
	}
}

func (w *fakeWatcher) Close() error {
	w.closed.Store(true)
	return nil
}

// runIdle drives the idle callback until AllDone, yielding on Wait.
func runIdle(t *testing.T, l *Loader) {
	t.Helper()
	for range 1_000_000 {
		switch l.backgroundLoad() {
		case watch.AllDone:
			return
		case watch.Wait:
			runtime.Gosched()
		}
	}
	t.Fatal("background load did not finish")
}

const (
	testTimeout = 5 * time.Second
	testTick    = time.Millisecond
)
