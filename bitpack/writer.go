// Package bitpack packs unsigned integers of a fixed bit width into a byte
// stream and unpacks them again.
//
// Values are written most significant bit first and bytes follow stream
// order, so a run of 11-bit codes 0x7FF, 0x001 becomes 0xFF 0xE0 0x04 (the
// last byte zero padded on Flush).
package bitpack

import (
	"bytes"
	"io"

	"github.com/icza/bitio"

	"github.com/absfs/zipper/internal/streamio"
)

const (
	// MinWidth is the smallest supported code width in bits.
	MinWidth = 4

	// MaxWidth is the largest supported code width in bits.
	MaxWidth = 32
)

// Errors shared with the other stream packages.
var (
	ErrOutOfRange  = streamio.ErrOutOfRange
	ErrNotReadable = streamio.ErrNotReadable
	ErrNotWritable = streamio.ErrNotWritable
	ErrClosed      = streamio.ErrClosed
)

// Writer packs width-bit values into an underlying io.Writer.
//
// Bits accumulate in a flush unit of width bytes (a whole number of values
// that ends on a byte boundary); a full unit goes to the sink immediately,
// a partial one only on Flush or Close.
type Writer struct {
	out       io.Writer
	unit      bytes.Buffer
	bw        *bitio.Writer
	width     int
	bits      int
	leaveOpen bool
	closed    bool
}

// NewWriter creates a Writer of the given width over w. Unless leaveOpen is
// set, closing the Writer closes w when it is an io.Closer.
func NewWriter(w io.Writer, width int, leaveOpen bool) (*Writer, error) {
	if width < MinWidth || width > MaxWidth {
		return nil, streamio.OutOfRange("width", width, MinWidth, MaxWidth)
	}
	if !streamio.CanWrite(w) {
		return nil, ErrNotWritable
	}

	pw := &Writer{
		out:       w,
		width:     width,
		leaveOpen: leaveOpen,
	}
	pw.unit.Grow(width)
	pw.bw = bitio.NewWriter(&pw.unit)
	return pw, nil
}

// Width returns the code width in bits.
func (w *Writer) Width() int {
	return w.width
}

// Buffered returns the number of bits not yet pushed to the sink.
func (w *Writer) Buffered() int {
	return w.bits
}

// Write appends the low Width bits of v.
func (w *Writer) Write(v uint32) error {
	if w.closed {
		return ErrClosed
	}

	v &= 0xFFFFFFFF >> (32 - w.width)
	if err := w.bw.WriteBits(uint64(v), uint8(w.width)); err != nil {
		return err
	}
	w.bits += w.width

	if w.bits >= w.width*8 {
		return w.push()
	}
	return nil
}

// Flush pushes a partially filled unit, zero padded to a whole byte, to the
// sink. Nothing is written when no bits are pending.
func (w *Writer) Flush() error {
	if w.closed {
		return ErrClosed
	}
	return w.push()
}

// Close flushes pending bits and closes the sink unless the Writer was
// created with leaveOpen. Closing twice is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}

	err := w.push()
	w.closed = true
	if !w.leaveOpen {
		if cerr := streamio.Close(w.out); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (w *Writer) push() error {
	if w.bits == 0 {
		return nil
	}
	if _, err := w.bw.Align(); err != nil {
		return err
	}

	_, err := w.out.Write(w.unit.Bytes())
	w.unit.Reset()
	w.bits = 0
	return err
}
