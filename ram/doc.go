// Package ram holds the data model shared by the snapshot RAM loader and saver.
//
// # Overview
//
// A snapshot stores the contents of one or more guest RAM blocks. The caller
// owns the guest memory and describes it with a RamBlock; the loader wraps each
// RamBlock in a Block that points at a contiguous sub-range of one flat Page
// array (the FileIndex).
//
// Only pages with nonzero contents get a Page record. Zero pages are cleared
// while the index is parsed and are never tracked afterwards.
//
// # Page lifecycle
//
// Every Page moves monotonically through
//
//	Empty -> Reading -> Read -> Filling -> Filled
//
// or drops into the terminal Error state. Two goroutines can race for the same
// page (a guest fault and the background loader); the Empty->Reading and
// Read->Filling transitions are compare-and-swap guards, so exactly one of them
// reads the bytes from disk and exactly one copies them into guest memory. The
// loser of either race waits for the winner instead of redoing the work.
//
// The transient byte buffer travels with the page: it is attached by FinishRead
// and detached by TryBeginFill, so only the goroutine that won the fill owns it.
//
// # Addresses
//
// Guest memory is addressed by the host address of its bytes (the address of
// RamBlock.Host[0] plus an offset). The FileIndex never resizes its page array
// after parsing, so *Page values handed to watcher callbacks stay valid for the
// life of the loader.
package ram
