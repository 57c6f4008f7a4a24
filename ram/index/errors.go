package index

import "errors"

var (
	// ErrVersion indicates an index version other than Version.
	ErrVersion = errors.New("index: unsupported version")
	// ErrUnknownBlock indicates the index names a block that was never registered.
	ErrUnknownBlock = errors.New("index: unknown block")
	// ErrBlockOrder indicates blocks appear in a different order than they were registered.
	ErrBlockOrder = errors.New("index: block order mismatch")
	// ErrPageRange indicates a page index outside its block.
	ErrPageRange = errors.New("index: page out of range")
	// ErrDuplicatePage indicates the same nonzero page recorded twice.
	ErrDuplicatePage = errors.New("index: duplicate page")
	// ErrFormat indicates a malformed field such as a negative count or position.
	ErrFormat = errors.New("index: malformed index")
	// ErrUnaligned indicates a file position delta that is not a whole number of pages.
	ErrUnaligned = errors.New("index: position delta not page aligned")
)
