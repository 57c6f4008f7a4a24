// Package queue provides the small bounded handoff channel used to pipeline
// page reads between the background loader and the reader goroutine.
//
// A Queue is a buffered channel plus a stop signal. Once Stop is called every
// pending and future operation fails immediately, including receivers blocked
// on an empty queue and senders blocked on a full one.
package queue

import "sync"

// Queue is a fixed-capacity FIFO of T values.
type Queue[T any] struct {
	items chan T
	done  chan struct{}
	once  sync.Once
}

// New returns a Queue holding at most capacity items. A capacity below one is
// raised to one.
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		items: make(chan T, capacity),
		done:  make(chan struct{}),
	}
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int { return cap(q.items) }

// Stop fails all pending and future operations. It is idempotent.
func (q *Queue[T]) Stop() {
	q.once.Do(func() { close(q.done) })
}

// Stopped reports whether Stop has been called.
func (q *Queue[T]) Stopped() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Receive blocks until an item is available or the queue is stopped. ok is
// false once the queue is stopped, even if items remain buffered.
func (q *Queue[T]) Receive() (v T, ok bool) {
	if q.Stopped() {
		return v, false
	}
	select {
	case v = <-q.items:
		if q.Stopped() {
			var zero T
			return zero, false
		}
		return v, true
	case <-q.done:
		return v, false
	}
}

// TryReceive returns the next item without blocking.
func (q *Queue[T]) TryReceive() (v T, ok bool) {
	if q.Stopped() {
		return v, false
	}
	select {
	case v = <-q.items:
		return v, true
	default:
		return v, false
	}
}

// Send blocks until v is queued or the queue is stopped.
func (q *Queue[T]) Send(v T) bool {
	if q.Stopped() {
		return false
	}
	select {
	case q.items <- v:
		return true
	case <-q.done:
		return false
	}
}

// TrySend queues v without blocking and reports whether it was queued.
func (q *Queue[T]) TrySend(v T) bool {
	if q.Stopped() {
		return false
	}
	select {
	case q.items <- v:
		return true
	default:
		return false
	}
}
