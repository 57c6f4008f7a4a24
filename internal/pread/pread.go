// Package pread provides the positioned-read primitive used to fetch page
// bytes from a snapshot file without sharing a file offset between goroutines.
package pread

import (
	"os"
)

// File is a read-only snapshot file whose ReadAt is safe for concurrent use.
type File struct {
	f *os.File
}

// Open opens path for positioned reads.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &File{f: f}, nil
}

// ReadAt implements io.ReaderAt. A short read returns io.EOF.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	return readAt(f.f, p, off)
}

// Size returns the current file size.
func (f *File) Size() (int64, error) {
	st, err := f.f.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// Name returns the path the file was opened with.
func (f *File) Name() string { return f.f.Name() }

// Close closes the underlying file.
func (f *File) Close() error {
	if f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	return err
}
