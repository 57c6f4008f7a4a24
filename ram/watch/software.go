package watch

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"
)

// SoftwareOptions configures a Software watcher.
type SoftwareOptions struct {
	// PageSize is the trap granularity. Default: 4096.
	PageSize int
	// IdleInterval is the pause after an idle callback returns Wait.
	// Default: DefaultIdleInterval.
	IdleInterval time.Duration
}

// Software is a portable watcher. Accesses are trapped only when the accessor
// announces them through Touch or Access, which is how device emulation and
// tests drive the loader.
type Software struct {
	pageSize int
	interval time.Duration

	bound      atomic.Bool
	registered atomic.Bool
	onFault    FaultFunc
	idle       *idleLoop

	// ranges is only appended to before DoneRegistering, so lookups after
	// registration need no lock.
	ranges []*softRange

	// mu is held shared by every in-flight fault and exclusively by Close.
	mu     sync.RWMutex
	closed bool
}

type softRange struct {
	base  uintptr
	mem   []byte
	armed []atomic.Bool
}

var _ Provider = (*Software)(nil)
var _ Watcher = (*Software)(nil)

// NewSoftware returns an unbound Software watcher.
func NewSoftware(opts SoftwareOptions) *Software {
	if opts.PageSize <= 0 {
		opts.PageSize = 4096
	}
	return &Software{pageSize: opts.PageSize, interval: opts.IdleInterval}
}

// Supported always reports true.
func (s *Software) Supported() bool { return true }

// New binds the callbacks and returns s. A Software watcher can be bound once.
func (s *Software) New(onFault FaultFunc, onIdle IdleFunc) (Watcher, error) {
	if !s.bound.CompareAndSwap(false, true) {
		return nil, ErrBound
	}
	s.onFault = onFault
	s.idle = newIdleLoop(onIdle, s.interval)
	return s, nil
}

func addrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

// RegisterMemoryRange arms every page of mem.
func (s *Software) RegisterMemoryRange(mem []byte) error {
	if s.registered.Load() {
		return ErrRegistrationClosed
	}
	if len(mem) == 0 || len(mem)%s.pageSize != 0 {
		return fmt.Errorf("watch: range of %d bytes is not a whole number of %d-byte pages", len(mem), s.pageSize)
	}
	r := &softRange{base: addrOf(mem), mem: mem, armed: make([]atomic.Bool, len(mem)/s.pageSize)}
	for i := range r.armed {
		r.armed[i].Store(true)
	}
	i := sort.Search(len(s.ranges), func(i int) bool { return s.ranges[i].base >= r.base })
	s.ranges = append(s.ranges, nil)
	copy(s.ranges[i+1:], s.ranges[i:])
	s.ranges[i] = r
	return nil
}

// DoneRegistering starts the idle goroutine.
func (s *Software) DoneRegistering() {
	s.registered.Store(true)
	if s.idle != nil {
		s.idle.start()
	}
}

func (s *Software) lookup(addr uintptr) (*softRange, int) {
	i := sort.Search(len(s.ranges), func(i int) bool {
		r := s.ranges[i]
		return r.base+uintptr(len(r.mem)) > addr
	})
	if i == len(s.ranges) || addr < s.ranges[i].base {
		return nil, 0
	}
	r := s.ranges[i]
	return r, int((addr - r.base) / uintptr(s.pageSize))
}

// Watched reports whether an access to addr would trap.
func (s *Software) Watched(addr uintptr) bool {
	r, page := s.lookup(addr)
	return r != nil && r.armed[page].Load()
}

// Touch announces an access to addr. If the page is still armed the fault
// callback runs synchronously on the calling goroutine.
func (s *Software) Touch(addr uintptr) error {
	r, page := s.lookup(addr)
	if r == nil || !r.armed[page].Load() {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.onFault(addr); err != nil {
		return fmt.Errorf("%w at %#x: %w", ErrAccess, addr, err)
	}
	if r.armed[page].Load() {
		return fmt.Errorf("%w at %#x", ErrAccess, addr)
	}
	return nil
}

// Access touches every watched page overlapping mem.
func (s *Software) Access(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	start := addrOf(mem)
	end := start + uintptr(len(mem))
	ps := uintptr(s.pageSize)
	for _, r := range s.ranges {
		rEnd := r.base + uintptr(len(r.mem))
		if rEnd <= start || r.base >= end {
			continue
		}
		lo, hi := max(start, r.base), min(end, rEnd)
		for page := (lo - r.base) / ps; r.base+page*ps < hi; page++ {
			if err := s.Touch(r.base + page*ps); err != nil {
				return err
			}
		}
	}
	return nil
}

// FillPage copies data into dst and disarms the pages dst covers.
func (s *Software) FillPage(dst, data []byte) error {
	r, first := s.lookup(addrOf(dst))
	if r == nil {
		return fmt.Errorf("%w: %#x", ErrNotWatched, addrOf(dst))
	}
	if data == nil {
		clear(dst)
	} else {
		copy(dst, data)
	}
	last := first + (len(dst)-1)/s.pageSize
	for i := first; i <= last && i < len(r.armed); i++ {
		r.armed[i].Store(false)
	}
	return nil
}

// Wake runs a waiting idle callback now.
func (s *Software) Wake() {
	if s.idle != nil {
		s.idle.poke()
	}
}

// Join waits for the idle callback to report AllDone.
func (s *Software) Join() {
	if s.idle != nil {
		s.idle.join()
	}
}

// Close waits for in-flight faults, stops the idle goroutine and disarms all
// memory.
func (s *Software) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if s.idle != nil {
		s.idle.close()
	}
	for _, r := range s.ranges {
		for i := range r.armed {
			r.armed[i].Store(false)
		}
	}
	return nil
}
