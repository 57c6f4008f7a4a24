//go:build !unix

package pread

import "os"

func readAt(f *os.File, p []byte, off int64) (int, error) {
	return f.ReadAt(p, off)
}
