package watch

import (
	"sync"
	"time"
)

// idleLoop runs an IdleFunc on a dedicated goroutine until it reports AllDone
// or the loop is stopped.
type idleLoop struct {
	fn       IdleFunc
	interval time.Duration

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	runOnce  sync.Once
	started  chan struct{}
}

func newIdleLoop(fn IdleFunc, interval time.Duration) *idleLoop {
	if interval <= 0 {
		interval = DefaultIdleInterval
	}
	return &idleLoop{
		fn:       fn,
		interval: interval,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		started:  make(chan struct{}),
	}
}

func (l *idleLoop) start() {
	l.runOnce.Do(func() {
		close(l.started)
		go l.run()
	})
}

func (l *idleLoop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			return
		default:
		}
		switch l.fn() {
		case AllDone:
			return
		case RunAgain:
			continue
		default:
			t := time.NewTimer(l.interval)
			select {
			case <-l.stop:
				t.Stop()
				return
			case <-l.wake:
				t.Stop()
			case <-t.C:
			}
		}
	}
}

func (l *idleLoop) poke() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// join waits for the loop to finish. A loop that never started has nothing
// to wait for.
func (l *idleLoop) join() {
	select {
	case <-l.started:
		<-l.done
	default:
	}
}

func (l *idleLoop) close() {
	l.stopOnce.Do(func() { close(l.stop) })
	l.join()
}
