package loader

import (
	"cmp"
	"fmt"
	"io"
	"slices"

	"github.com/joshuapare/ramsnap/ram"
)

// readAllPages reads every page straight into guest memory in file order.
// The first failed read aborts the load.
func (l *Loader) readAllPages() error {
	order := make([]*ram.Page, len(l.index.Pages))
	for i := range l.index.Pages {
		order[i] = &l.index.Pages[i]
	}
	slices.SortFunc(order, func(a, b *ram.Page) int { return cmp.Compare(a.FilePos, b.FilePos) })

	for _, p := range order {
		if !p.TryBeginRead() {
			continue
		}
		mem := l.index.PageMem(p)
		n, err := l.src.ReadAt(mem, p.FilePos)
		if n != len(mem) {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			err = fmt.Errorf("read %d of %d bytes at %d: %w", n, len(mem), p.FilePos, err)
			l.pageFailed(p, err)
			return fmt.Errorf("%w: block %q page %d: %w", ErrPage, l.index.Blocks[p.BlockIndex].RAM.ID, p.Index, err)
		}
		p.FinishFill(true)
		l.eager.Add(1)
		l.bytesRead.Add(int64(n))
		l.metrics.eager()
		l.metrics.bytesRead(n)
	}
	l.finish()
	return nil
}
