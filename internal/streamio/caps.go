package streamio

import (
	"errors"
	"io"
	"log/slog"
)

// Readable streams report whether reads are allowed.
type Readable interface {
	CanRead() bool
}

// Writable streams report whether writes are allowed.
type Writable interface {
	CanWrite() bool
}

// Flusher is implemented by streams with buffered output.
type Flusher interface {
	Flush() error
}

// CanRead reports whether v can serve reads. Values that implement
// io.Reader are readable unless they say otherwise.
func CanRead(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.(io.Reader); !ok {
		return false
	}
	if r, ok := v.(Readable); ok {
		return r.CanRead()
	}
	return true
}

// CanWrite reports whether v accepts writes.
func CanWrite(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.(io.Writer); !ok {
		return false
	}
	if w, ok := v.(Writable); ok {
		return w.CanWrite()
	}
	return true
}

// Flush flushes v if it buffers output.
func Flush(v any) error {
	if f, ok := v.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// Close closes v if it is an io.Closer. A stream that was already closed is
// not an error here.
func Close(v any) error {
	c, ok := v.(io.Closer)
	if !ok {
		return nil
	}
	if err := c.Close(); err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}

// ReadOnly exposes r as an io.ReadWriter whose writes always fail.
func ReadOnly(r io.Reader) io.ReadWriter {
	return readOnly{r}
}

// WriteOnly exposes w as an io.ReadWriter whose reads always fail.
func WriteOnly(w io.Writer) io.ReadWriter {
	return writeOnly{w}
}

type readOnly struct {
	r io.Reader
}

func (s readOnly) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s readOnly) Write(p []byte) (int, error) { return 0, ErrNotWritable }
func (s readOnly) CanRead() bool               { return CanRead(s.r) }
func (s readOnly) CanWrite() bool              { return false }
func (s readOnly) Close() error                { return Close(s.r) }

type writeOnly struct {
	w io.Writer
}

func (s writeOnly) Read(p []byte) (int, error)  { return 0, ErrNotReadable }
func (s writeOnly) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s writeOnly) CanRead() bool               { return false }
func (s writeOnly) CanWrite() bool              { return CanWrite(s.w) }
func (s writeOnly) Flush() error                { return Flush(s.w) }
func (s writeOnly) Close() error                { return Close(s.w) }

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// Logger returns l, or a logger that drops everything when l is nil.
func Logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return discard
	}
	return l
}
