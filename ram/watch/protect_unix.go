//go:build linux || darwin

package watch

import (
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// Protect traps accesses with page protection. Registered memory is mapped
// PROT_NONE; an access inside Guard faults, the fault callback fills the page
// (which restores PROT_READ|PROT_WRITE on it) and the guarded function is run
// again.
//
// Registered memory must be page-aligned and must not belong to the Go heap,
// e.g. memory obtained from an anonymous mmap.
type Protect struct {
	interval time.Duration

	bound      atomic.Bool
	registered atomic.Bool
	onFault    FaultFunc
	idle       *idleLoop
	ranges     [][]byte

	mu     sync.RWMutex
	closed bool
}

var _ Provider = (*Protect)(nil)
var _ Watcher = (*Protect)(nil)

// NewProtect returns an unbound Protect watcher.
func NewProtect(opts ProtectOptions) *Protect {
	return &Protect{interval: opts.IdleInterval}
}

// Supported reports true on linux and darwin.
func (p *Protect) Supported() bool { return true }

// New binds the callbacks and returns p. A Protect watcher can be bound once.
func (p *Protect) New(onFault FaultFunc, onIdle IdleFunc) (Watcher, error) {
	if !p.bound.CompareAndSwap(false, true) {
		return nil, ErrBound
	}
	p.onFault = onFault
	p.idle = newIdleLoop(onIdle, p.interval)
	return p, nil
}

// RegisterMemoryRange revokes all access to mem.
func (p *Protect) RegisterMemoryRange(mem []byte) error {
	if p.registered.Load() {
		return ErrRegistrationClosed
	}
	osPage := uintptr(os.Getpagesize())
	if len(mem) == 0 || addrOf(mem)%osPage != 0 || uintptr(len(mem))%osPage != 0 {
		return fmt.Errorf("watch: range %#x+%d is not aligned to the %d-byte OS page", addrOf(mem), len(mem), osPage)
	}
	if err := unix.Mprotect(mem, unix.PROT_NONE); err != nil {
		return fmt.Errorf("watch: mprotect %#x+%d: %w", addrOf(mem), len(mem), err)
	}
	p.ranges = append(p.ranges, mem)
	return nil
}

// DoneRegistering starts the idle goroutine.
func (p *Protect) DoneRegistering() {
	p.registered.Store(true)
	if p.idle != nil {
		p.idle.start()
	}
}

func (p *Protect) watched(addr uintptr) bool {
	for _, r := range p.ranges {
		base := addrOf(r)
		if addr >= base && addr-base < uintptr(len(r)) {
			return true
		}
	}
	return false
}

// FillPage makes dst accessible again and copies data into it.
func (p *Protect) FillPage(dst, data []byte) error {
	if !p.watched(addrOf(dst)) {
		return fmt.Errorf("%w: %#x", ErrNotWatched, addrOf(dst))
	}
	if err := unix.Mprotect(dst, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("watch: unprotect %#x+%d: %w", addrOf(dst), len(dst), err)
	}
	if data == nil {
		clear(dst)
	} else {
		copy(dst, data)
	}
	return nil
}

// faultAddr is implemented by the runtime error raised for a memory fault
// while SetPanicOnFault is enabled.
type faultAddr interface {
	Addr() uintptr
}

// attempt runs fn once and reports the address of a memory fault, if any.
func attempt(fn func()) (addr uintptr, faulted bool) {
	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)
	defer func() {
		if r := recover(); r != nil {
			if fa, ok := r.(faultAddr); ok {
				addr, faulted = fa.Addr(), true
				return
			}
			panic(r)
		}
	}()
	fn()
	return 0, false
}

// Guard runs fn, loading every watched page it faults on. fn is re-run from
// the start after each fault, so it must be safe to repeat (reads, or writes
// of the same values). Faults outside watched memory are returned as errors.
func (p *Protect) Guard(fn func()) error {
	var last uintptr
	repeated := false
	for {
		addr, faulted := attempt(fn)
		if !faulted {
			return nil
		}
		if !p.watched(addr) {
			return fmt.Errorf("watch: fault at unwatched address %#x", addr)
		}
		if addr == last && repeated {
			return fmt.Errorf("%w at %#x", ErrAccess, addr)
		}
		repeated = addr == last
		last = addr
		if err := p.fault(addr); err != nil {
			return err
		}
	}
}

func (p *Protect) fault(addr uintptr) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if err := p.onFault(addr); err != nil {
		return fmt.Errorf("%w at %#x: %w", ErrAccess, addr, err)
	}
	return nil
}

// Wake runs a waiting idle callback now.
func (p *Protect) Wake() {
	if p.idle != nil {
		p.idle.poke()
	}
}

// Join waits for the idle callback to report AllDone.
func (p *Protect) Join() {
	if p.idle != nil {
		p.idle.join()
	}
}

// Close waits for in-flight faults, stops the idle goroutine and restores
// access to all registered memory.
func (p *Protect) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	if p.idle != nil {
		p.idle.close()
	}
	var firstErr error
	for _, r := range p.ranges {
		if err := unix.Mprotect(r, unix.PROT_READ|unix.PROT_WRITE); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("watch: unprotect %#x+%d: %w", addrOf(r), len(r), err)
		}
	}
	return firstErr
}
