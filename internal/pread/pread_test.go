package pread

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snap.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestReadAt(t *testing.T) {
	data := make([]byte, 10000)
	for i := range data {
		data[i] = byte(i * 7)
	}
	f, err := Open(writeTemp(t, data))
	require.NoError(t, err)
	defer f.Close()

	got := make([]byte, 4096)
	n, err := f.ReadAt(got, 1000)
	require.NoError(t, err)
	require.Equal(t, 4096, n)
	require.Equal(t, data[1000:5096], got)

	size, err := f.Size()
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), size)
}

func TestReadAtShort(t *testing.T) {
	f, err := Open(writeTemp(t, []byte{1, 2, 3}))
	require.NoError(t, err)
	defer f.Close()

	got := make([]byte, 8)
	n, err := f.ReadAt(got, 1)
	require.True(t, errors.Is(err, io.EOF), "got %v", err)
	require.Equal(t, 2, n)
}

func TestReadAtConcurrent(t *testing.T) {
	data := make([]byte, 64*1024)
	for i := range data {
		data[i] = byte(i / 4096)
	}
	f, err := Open(writeTemp(t, data))
	require.NoError(t, err)
	defer f.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			got := make([]byte, 4096)
			_, err := f.ReadAt(got, int64(page*4096))
			if err != nil {
				t.Errorf("page %d: %v", page, err)
				return
			}
			for _, b := range got {
				if b != byte(page) {
					t.Errorf("page %d: got byte %d", page, b)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}
