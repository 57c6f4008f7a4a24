// Package testutil provides in-memory snapshot files and guest memory images
// shared by the package tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/joshuapare/ramsnap/ram"
)

// MemFile is a growable in-memory file implementing io.ReaderAt and
// io.WriterAt.
type MemFile struct {
	mu   sync.Mutex
	data []byte
}

// NewMemFile returns a MemFile holding a copy of data.
func NewMemFile(data []byte) *MemFile {
	return &MemFile{data: bytes.Clone(data)}
}

// ReadAt implements io.ReaderAt.
func (f *MemFile) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off < 0 {
		return 0, os.ErrInvalid
	}
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt, growing the file as needed.
func (f *MemFile) WriteAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off < 0 {
		return 0, os.ErrInvalid
	}
	if end := off + int64(len(p)); end > int64(len(f.data)) {
		f.data = append(f.data, make([]byte, end-int64(len(f.data)))...)
	}
	return copy(f.data[off:], p), nil
}

// Bytes returns a copy of the file contents.
func (f *MemFile) Bytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return bytes.Clone(f.data)
}

// Truncate shortens the file to size bytes.
func (f *MemFile) Truncate(size int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if size < int64(len(f.data)) {
		f.data = f.data[:size]
	}
}

// IndexPos returns the index offset stored in the pointer at pos.
func (f *MemFile) IndexPos(t *testing.T, pos int64) int64 {
	t.Helper()
	var ptr [8]byte
	if _, err := f.ReadAt(ptr[:], pos); err != nil {
		t.Fatalf("read index pointer: %v", err)
	}
	return int64(binary.BigEndian.Uint64(ptr[:]))
}

// CountingReader wraps an io.ReaderAt and counts reads per offset.
type CountingReader struct {
	R io.ReaderAt

	mu    sync.Mutex
	reads map[int64]int
	total int
	// fail holds offsets whose reads come back short.
	fail map[int64]bool
	// gate, when set, blocks every read until it is closed.
	gate chan struct{}
}

// NewCountingReader returns a CountingReader over r.
func NewCountingReader(r io.ReaderAt) *CountingReader {
	return &CountingReader{R: r, reads: make(map[int64]int), fail: make(map[int64]bool)}
}

// FailAt makes reads at off return a short read.
func (c *CountingReader) FailAt(off int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail[off] = true
}

// Hold blocks all subsequent reads until the returned function is called.
func (c *CountingReader) Hold() (release func()) {
	gate := make(chan struct{})
	c.mu.Lock()
	c.gate = gate
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.gate = nil
			c.mu.Unlock()
			close(gate)
		})
	}
}

// ReadAt implements io.ReaderAt.
func (c *CountingReader) ReadAt(p []byte, off int64) (int, error) {
	c.mu.Lock()
	c.reads[off]++
	c.total++
	fail := c.fail[off]
	gate := c.gate
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if fail {
		n, _ := c.R.ReadAt(p[:len(p)/2], off)
		return n, io.ErrUnexpectedEOF
	}
	return c.R.ReadAt(p, off)
}

// Reads returns how many reads started at off.
func (c *CountingReader) Reads(off int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads[off]
}

// Total returns the number of reads.
func (c *CountingReader) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Reset clears the read counters.
func (c *CountingReader) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads = make(map[int64]int)
	c.total = 0
}

// Image returns pages*pageSize bytes where every page listed in zero is all
// zero and every other page holds a pattern derived from seed and the page
// number.
func Image(pages, pageSize int, seed byte, zero ...int) []byte {
	img := make([]byte, pages*pageSize)
	isZero := make(map[int]bool, len(zero))
	for _, z := range zero {
		isZero[z] = true
	}
	for p := range pages {
		if isZero[p] {
			continue
		}
		page := img[p*pageSize : (p+1)*pageSize]
		for i := range page {
			page[i] = seed + byte(p) + byte(i*7)
		}
		page[0] = seed | 1
	}
	return img
}

// Block returns a RamBlock over a copy of img.
func Block(id string, img []byte, pageSize int) ram.RamBlock {
	return ram.RamBlock{ID: id, Host: bytes.Clone(img), PageSize: pageSize}
}

// Garbage returns size bytes of 0xAA, used as guest memory that the loader
// must overwrite.
func Garbage(size int) []byte {
	return bytes.Repeat([]byte{0xAA}, size)
}

// WriteFile writes data to name inside a fresh temporary directory and
// returns its path.
func WriteFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
