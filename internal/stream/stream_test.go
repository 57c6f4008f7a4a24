package stream

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReaderDecodesWriterOutput(t *testing.T) {
	w := NewWriter(64)
	w.PutBe64(0x0102030405060708)
	w.PutBe32(0xdeadbeef)
	w.PutByte(7)
	w.PutPackedNum(300)
	w.PutPackedNum(0)
	_, _ = w.Write([]byte("vram"))

	r := NewReader(bytes.NewReader(w.Bytes()))
	require.Equal(t, uint64(0x0102030405060708), r.Be64())
	require.Equal(t, uint32(0xdeadbeef), r.Be32())
	require.Equal(t, uint8(7), r.Byte())
	require.Equal(t, uint64(300), r.PackedNum())
	require.Equal(t, uint64(0), r.PackedNum())
	require.Equal(t, []byte("vram"), r.Read(4))
	require.NoError(t, r.Err())
	require.Equal(t, int64(w.Len()), r.Pos())
}

func TestPackedNumEncoding(t *testing.T) {
	// 300 = 0b1_0010_1100 -> 0xAC 0x02
	w := NewWriter(4)
	w.PutPackedNum(300)
	require.Equal(t, []byte{0xac, 0x02}, w.Bytes())
}

func TestReaderSeek(t *testing.T) {
	data := []byte{0, 0, 0, 0, 0, 0, 0, 0, 0x00, 0x00, 0x00, 0x2a}
	r := NewReader(bytes.NewReader(data))
	r.SeekTo(8)
	require.Equal(t, uint32(42), r.Be32())
	r.SeekTo(0)
	require.Equal(t, uint64(0), r.Be64())
	require.NoError(t, r.Err())
}

func TestReaderStickyError(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1, 2}))
	require.Equal(t, uint32(0), r.Be32())
	require.Error(t, r.Err())
	require.True(t, errors.Is(r.Err(), io.ErrUnexpectedEOF))

	// Subsequent reads keep failing with the original error.
	require.Equal(t, uint8(0), r.Byte())
	require.True(t, errors.Is(r.Err(), io.ErrUnexpectedEOF))
}

func TestReaderNegativeSeek(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	r.SeekTo(-1)
	require.ErrorIs(t, r.Err(), ErrNegativeSeek)
}
