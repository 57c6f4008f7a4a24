//go:build unix

package pread

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// readAt loops over pread(2) until p is full, retrying on EINTR.
func readAt(f *os.File, p []byte, off int64) (int, error) {
	fd := int(f.Fd())
	n := 0
	for n < len(p) {
		m, err := unix.Pread(fd, p[n:], off+int64(n))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return n, &os.PathError{Op: "pread", Path: f.Name(), Err: err}
		}
		if m == 0 {
			return n, io.EOF
		}
		n += m
	}
	return n, nil
}
