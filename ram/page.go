package ram

import (
	"runtime"
	"sync/atomic"
)

// State is the lifecycle stage of a Page. States are ordered; a page only ever
// moves to a greater state.
type State uint32

const (
	StateEmpty State = iota
	StateReading
	StateRead
	StateFilling
	StateFilled
	StateError
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateReading:
		return "reading"
	case StateRead:
		return "read"
	case StateFilling:
		return "filling"
	case StateFilled:
		return "filled"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Page is one nonzero page recorded in the snapshot index.
//
// A Page must not be copied after it is placed in a FileIndex.
type Page struct {
	state atomic.Uint32

	// BlockIndex is the owning block's position in FileIndex.Blocks.
	BlockIndex uint16
	// Index is the page number inside the owning block.
	Index uint32
	// FilePos is the absolute file offset of the page bytes.
	FilePos int64

	// data is only set between FinishRead and TryBeginFill.
	data []byte
}

// State returns the current state.
func (p *Page) State() State { return State(p.state.Load()) }

// TryBeginRead claims the disk read for p. Only the caller that gets true may
// read the page; everyone else should WaitAtLeast(StateRead).
func (p *Page) TryBeginRead() bool {
	return p.state.CompareAndSwap(uint32(StateEmpty), uint32(StateReading))
}

// FinishRead attaches the page bytes and publishes StateRead. The store
// happens after the buffer is attached, so any goroutine observing StateRead
// also observes data.
func (p *Page) FinishRead(data []byte) {
	p.data = data
	p.state.Store(uint32(StateRead))
}

// TryBeginFill claims the copy into guest memory and hands over the page
// bytes. The buffer is detached from p; the caller owns it from here on.
func (p *Page) TryBeginFill() ([]byte, bool) {
	if !p.state.CompareAndSwap(uint32(StateRead), uint32(StateFilling)) {
		return nil, false
	}
	data := p.data
	p.data = nil
	return data, true
}

// FinishFill publishes the outcome of a fill.
func (p *Page) FinishFill(ok bool) {
	if ok {
		p.state.Store(uint32(StateFilled))
		return
	}
	p.state.Store(uint32(StateError))
}

// Fail moves p to the terminal error state.
func (p *Page) Fail() {
	p.state.Store(uint32(StateError))
}

// WaitAtLeast spins until p reaches s or a later state and returns the state
// observed. StateError is greater than every other state, so a failed page
// always ends the wait.
func (p *Page) WaitAtLeast(s State) State {
	for {
		cur := p.State()
		if cur >= s {
			return cur
		}
		runtime.Gosched()
	}
}
