// Package loader restores guest RAM from a snapshot while the guest runs.
//
// A Loader reads the snapshot index, zero-fills zero pages and then hands all
// remaining pages to an access watcher. The first access to a page traps into
// the fault path, which reads and fills that page on the faulting goroutine.
// Meanwhile a reader goroutine and the watcher's idle goroutine stream every
// other page in the background:
//
//	idle goroutine --to-read--> reader goroutine --read-done--> idle goroutine
//
// Each page moves through the ram.State machine exactly once, so the fault
// path and the background path can race on the same page without reading it
// twice or filling it twice.
//
// Without a usable watcher the loader reads every page synchronously in
// file order before Start returns.
package loader
