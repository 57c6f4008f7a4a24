// Package watch defines the memory access watcher capability consumed by the
// RAM loader, plus two implementations.
//
// A watcher traps the first access to registered memory and calls the fault
// callback with the faulting address on the goroutine that touched it. It also
// drives an idle callback on its own goroutine, which the loader uses for
// background page loading.
//
// Software traps accesses that go through Touch or Access; it works everywhere
// and is what tests and device emulation use. Protect (linux and darwin) uses
// mprotect to revoke access to registered pages and runtime/debug's
// SetPanicOnFault to turn the resulting fault into a recoverable panic inside
// Guard.
package watch

import (
	"errors"
	"time"
)

// IdleResult tells the watcher when to call the idle callback next.
type IdleResult int

const (
	// AllDone stops the idle goroutine.
	AllDone IdleResult = iota
	// RunAgain calls the idle callback again immediately.
	RunAgain
	// Wait calls the idle callback again after the idle interval or a Wake.
	Wait
)

func (r IdleResult) String() string {
	switch r {
	case AllDone:
		return "all-done"
	case RunAgain:
		return "run-again"
	case Wait:
		return "wait"
	default:
		return "unknown"
	}
}

// FaultFunc loads the page containing addr. It must leave the page filled
// (through Watcher.FillPage) before returning nil.
type FaultFunc func(addr uintptr) error

// IdleFunc performs a slice of background work.
type IdleFunc func() IdleResult

// DefaultIdleInterval is how long the idle goroutine sleeps after Wait.
const DefaultIdleInterval = time.Millisecond

var (
	// ErrUnsupported indicates the platform cannot trap memory accesses.
	ErrUnsupported = errors.New("watch: access watching not supported")
	// ErrBound indicates a watcher was bound to callbacks twice.
	ErrBound = errors.New("watch: watcher already in use")
	// ErrRegistrationClosed indicates RegisterMemoryRange after DoneRegistering.
	ErrRegistrationClosed = errors.New("watch: registration already complete")
	// ErrClosed indicates the watcher was closed.
	ErrClosed = errors.New("watch: watcher closed")
	// ErrNotWatched indicates FillPage for memory outside every registered range.
	ErrNotWatched = errors.New("watch: memory not watched")
	// ErrAccess indicates a trapped access whose page could not be loaded.
	ErrAccess = errors.New("watch: access to unloaded page")
)

// Watcher is a bound access watcher.
type Watcher interface {
	// RegisterMemoryRange starts trapping accesses to mem.
	RegisterMemoryRange(mem []byte) error
	// DoneRegistering ends registration and starts the idle goroutine.
	DoneRegistering()
	// FillPage copies data into dst (zeroing it when data is nil) and stops
	// trapping accesses to dst.
	FillPage(dst, data []byte) error
	// Wake runs a waiting idle callback now.
	Wake()
	// Join blocks until the idle callback reports AllDone or the watcher closes.
	Join()
	// Close stops the idle goroutine, waits for in-flight fault callbacks and
	// stops trapping all memory.
	Close() error
}

// Provider creates watchers bound to a loader's callbacks.
type Provider interface {
	// Supported reports whether New can succeed on this platform.
	Supported() bool
	// New binds the fault and idle callbacks.
	New(onFault FaultFunc, onIdle IdleFunc) (Watcher, error)
}
