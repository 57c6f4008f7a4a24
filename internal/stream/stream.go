// Package stream implements the binary stream primitive used by the snapshot
// index: big-endian fixed-width integers, single bytes, packed (LEB128)
// unsigned integers and seeking.
//
// Reader errors are sticky: after the first failure every read returns a zero
// value and Err reports the cause, so decoders can check once per record.
package stream

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/joshuapare/ramsnap/internal/buf"
)

const readBufferSize = 64 << 10

// ErrNegativeSeek is returned when seeking before the start of the source.
var ErrNegativeSeek = errors.New("stream: negative seek offset")

// Reader decodes values from an io.ReaderAt.
type Reader struct {
	src io.ReaderAt
	br  *bufio.Reader
	pos int64
	err error
}

// NewReader returns a Reader positioned at offset 0 of src.
func NewReader(src io.ReaderAt) *Reader {
	r := &Reader{src: src}
	r.SeekTo(0)
	return r
}

// SeekTo repositions the reader at the absolute offset off and discards buffered data.
func (r *Reader) SeekTo(off int64) {
	if r.err != nil {
		return
	}
	if off < 0 {
		r.err = fmt.Errorf("%w: %d", ErrNegativeSeek, off)
		return
	}
	sec := io.NewSectionReader(r.src, off, math.MaxInt64-off)
	if r.br == nil {
		r.br = bufio.NewReaderSize(sec, readBufferSize)
	} else {
		r.br.Reset(sec)
	}
	r.pos = off
}

// Pos returns the absolute offset of the next byte to be read.
func (r *Reader) Pos() int64 { return r.pos }

// Err returns the first error encountered, if any.
func (r *Reader) Err() error { return r.err }

func (r *Reader) fail(err error) {
	if r.err != nil {
		return
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	r.err = fmt.Errorf("stream: read at %d: %w", r.pos, err)
}

// ReadByte implements io.ByteReader.
func (r *Reader) ReadByte() (byte, error) {
	if r.err != nil {
		return 0, r.err
	}
	c, err := r.br.ReadByte()
	if err != nil {
		r.fail(err)
		return 0, r.err
	}
	r.pos++
	return c, nil
}

// Byte reads a single byte.
func (r *Reader) Byte() uint8 {
	c, _ := r.ReadByte()
	return c
}

// Read reads exactly n bytes into a new slice.
func (r *Reader) Read(n int) []byte {
	if r.err != nil || n < 0 {
		return nil
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r.br, out); err != nil {
		r.fail(err)
		return nil
	}
	r.pos += int64(n)
	return out
}

// Be32 reads a big-endian uint32.
func (r *Reader) Be32() uint32 { return buf.U32BE(r.Read(4)) }

// Be64 reads a big-endian uint64.
func (r *Reader) Be64() uint64 { return buf.U64BE(r.Read(8)) }

// PackedNum reads an unsigned LEB128 integer.
func (r *Reader) PackedNum() uint64 {
	if r.err != nil {
		return 0
	}
	v, err := binary.ReadUvarint(r)
	if err != nil {
		r.fail(err)
		return 0
	}
	return v
}

// Writer accumulates encoded values in memory.
type Writer struct {
	b []byte
}

// NewWriter returns a Writer with room for sizeHint bytes.
func NewWriter(sizeHint int) *Writer {
	return &Writer{b: make([]byte, 0, sizeHint)}
}

// PutByte appends a single byte.
func (w *Writer) PutByte(c uint8) { w.b = append(w.b, c) }

// PutBe32 appends a big-endian uint32.
func (w *Writer) PutBe32(v uint32) { w.b = binary.BigEndian.AppendUint32(w.b, v) }

// PutBe64 appends a big-endian uint64.
func (w *Writer) PutBe64(v uint64) { w.b = binary.BigEndian.AppendUint64(w.b, v) }

// PutPackedNum appends an unsigned LEB128 integer.
func (w *Writer) PutPackedNum(v uint64) { w.b = binary.AppendUvarint(w.b, v) }

// Write appends p. It never fails.
func (w *Writer) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

// Bytes returns the encoded data.
func (w *Writer) Bytes() []byte { return w.b }

// Len returns the number of encoded bytes.
func (w *Writer) Len() int { return len(w.b) }
