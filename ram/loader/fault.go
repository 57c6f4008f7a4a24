package loader

import (
	"fmt"
	"io"
	"sync"
	"time"
	"unsafe"

	"github.com/joshuapare/ramsnap/ram"
)

// pooledPageSize is the largest page read into a pooled buffer. Larger
// pages get a fresh allocation.
const pooledPageSize = 4096

var pagePool = sync.Pool{
	New: func() any {
		b := make([]byte, pooledPageSize)
		return &b
	},
}

func getBuffer(size int) []byte {
	if size > pooledPageSize {
		return make([]byte, size)
	}
	bp, _ := pagePool.Get().(*[]byte)
	return (*bp)[:size]
}

func putBuffer(b []byte) {
	if cap(b) != pooledPageSize {
		return
	}
	b = b[:pooledPageSize]
	pagePool.Put(&b)
}

func addrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

// handleFault loads the page containing addr on the faulting goroutine.
// Addresses without a page record are ignored.
func (l *Loader) handleFault(addr uintptr) error {
	p := l.index.Find(addr)
	if p == nil {
		return nil
	}
	start := time.Now()
	l.readPage(p)
	filled, err := l.fillPage(p)
	if err != nil {
		return err
	}
	if filled {
		l.faulted.Add(1)
		l.metrics.faulted(time.Since(start))
	}
	return nil
}

// LoadRange loads every page overlapping mem before returning, for accesses
// that bypass the watcher such as device DMA. It is a no-op unless pages are
// loaded on demand.
func (l *Loader) LoadRange(mem []byte) error {
	if !l.onDemand.Load() || len(mem) == 0 {
		return nil
	}
	start := addrOf(mem)
	end := start + uintptr(len(mem))
	for bi := range l.index.Blocks {
		b := &l.index.Blocks[bi].RAM
		base := b.HostAddr()
		top := base + uintptr(len(b.Host))
		if top <= start || base >= end {
			continue
		}
		lo, hi := max(start, base), min(end, top)
		ps := uintptr(b.PageSize)
		for page := (lo - base) / ps; base+page*ps < hi; page++ {
			if err := l.handleFault(base + page*ps); err != nil {
				return err
			}
		}
	}
	return nil
}

// readPage reads p from the snapshot if nobody else has claimed it, and
// otherwise waits until the claimant is done. It reports whether this call
// performed the read.
func (l *Loader) readPage(p *ram.Page) bool {
	if !p.TryBeginRead() {
		p.WaitAtLeast(ram.StateRead)
		return false
	}
	size := l.index.PageSize(p)
	data := getBuffer(size)
	n, err := l.src.ReadAt(data, p.FilePos)
	if n != size {
		putBuffer(data)
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		l.pageFailed(p, fmt.Errorf("read %d of %d bytes at %d: %w", n, size, p.FilePos, err))
		return false
	}
	l.bytesRead.Add(int64(size))
	l.metrics.bytesRead(size)
	p.FinishRead(data)
	return true
}

// fillPage copies a read page into guest memory if nobody else has claimed
// the copy, and otherwise waits until the claimant is done. It reports
// whether this call filled the page; the error is non-nil when the page
// ended in ram.StateError.
func (l *Loader) fillPage(p *ram.Page) (bool, error) {
	data, ok := p.TryBeginFill()
	if !ok {
		if p.WaitAtLeast(ram.StateFilled) == ram.StateError {
			return false, l.pageError(p)
		}
		return false, nil
	}
	err := l.watcher.FillPage(l.index.PageMem(p), data)
	putBuffer(data)
	if err != nil {
		l.pageFailed(p, fmt.Errorf("fill: %w", err))
		return false, l.pageError(p)
	}
	p.FinishFill(true)
	return true, nil
}

func (l *Loader) pageError(p *ram.Page) error {
	return fmt.Errorf("%w: block %q page %d", ErrPage, l.index.Blocks[p.BlockIndex].RAM.ID, p.Index)
}
