package loader

import (
	"github.com/joshuapare/ramsnap/ram"
	"github.com/joshuapare/ramsnap/ram/watch"
)

// backgroundLoad is the watcher's idle callback. Each call either fills one
// page the reader goroutine finished, or tops up the to-read queue.
func (l *Loader) backgroundLoad() watch.IdleResult {
	if l.toRead.Stopped() && l.readDone.Stopped() {
		return watch.AllDone
	}

	if p, ok := l.readDone.TryReceive(); ok {
		if p == nil {
			l.InterruptReading()
			l.finish()
			return watch.AllDone
		}
		if filled, _ := l.fillPage(p); filled {
			l.background.Add(1)
			l.metrics.background()
		}
		return watch.RunAgain
	}

	pages := l.index.Pages
	for range l.toRead.Cap() {
		for l.cursor < len(pages) && pages[l.cursor].State() != ram.StateEmpty {
			l.cursor++
		}
		if l.cursor == len(pages) {
			if !l.sentEnd {
				l.sentEnd = l.toRead.TrySend(nil)
			}
			return l.idle()
		}
		if !l.toRead.TrySend(&pages[l.cursor]) {
			return l.idle()
		}
		l.cursor++
	}
	return watch.RunAgain
}

// idle is the result for an idle callback with nothing to do right now.
// A joining loader keeps the callback spinning so Join returns promptly.
func (l *Loader) idle() watch.IdleResult {
	if l.joining.Load() {
		return watch.RunAgain
	}
	return watch.Wait
}

// readPages is the reader goroutine. It reads queued pages and forwards them
// to the idle callback for filling. The nil page ends the stream.
func (l *Loader) readPages() {
	defer l.reader.Done()
	for {
		p, ok := l.toRead.Receive()
		if !ok {
			return
		}
		if p == nil {
			l.readDone.Send(nil)
			l.toRead.Stop()
			return
		}
		if l.readPage(p) && !l.readDone.Send(p) {
			return
		}
	}
}
