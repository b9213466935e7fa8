package bitpack

import (
	"errors"
	"io"

	"github.com/icza/bitio"

	"github.com/absfs/zipper/internal/streamio"
)

// Reader unpacks width-bit values written by a Writer.
//
// If the source is not an io.ByteReader it is read through a buffer, so the
// Reader may consume more of it than the values it returns.
type Reader struct {
	br    *bitio.Reader
	width int
}

// NewReader creates a Reader of the given width over r.
func NewReader(r io.Reader, width int) (*Reader, error) {
	if width < MinWidth || width > MaxWidth {
		return nil, streamio.OutOfRange("width", width, MinWidth, MaxWidth)
	}
	if !streamio.CanRead(r) {
		return nil, ErrNotReadable
	}

	return &Reader{
		br:    bitio.NewReader(r),
		width: width,
	}, nil
}

// Width returns the code width in bits.
func (r *Reader) Width() int {
	return r.width
}

// ReadNext returns the next value. It returns io.EOF when the source ends
// before a whole value could be assembled, which covers both a clean end and
// the zero padding that follows the last value.
func (r *Reader) ReadNext() (uint32, error) {
	v, err := r.br.ReadBits(uint8(r.width))
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, io.EOF
		}
		return 0, err
	}
	return uint32(v), nil
}
