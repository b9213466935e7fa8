// Package streamio holds the plumbing shared by the zipper stream stages:
// the error taxonomy, capability probing of wrapped streams and the block
// buffer pool.
package streamio

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
)

var (
	// Configuration errors, detected at construction.
	ErrOutOfRange  = errors.New("zipper: argument out of range")
	ErrUnknownMode = errors.New("zipper: unknown stream mode")
	ErrNotReadable = errors.New("zipper: stream does not support reading")
	ErrNotWritable = errors.New("zipper: stream does not support writing")

	// Protocol errors.
	ErrCorrupted = errors.New("zipper: corrupted compressed data")
	ErrTruncated = fmt.Errorf("zipper: truncated stream: %w", io.ErrUnexpectedEOF)

	// Misuse.
	ErrClosed           = fmt.Errorf("zipper: %w", fs.ErrClosed)
	ErrInvalidMode      = errors.New("zipper: operation not valid in this stream mode")
	ErrSeekNotSupported = errors.New("zipper: seek not supported for compressed streams")
)

// OutOfRange reports name=value against the inclusive [min, max] range.
func OutOfRange(name string, value, min, max int) error {
	return fmt.Errorf("%w: %s %d not in [%d, %d]", ErrOutOfRange, name, value, min, max)
}

// Corrupted wraps ErrCorrupted with a description of what was malformed.
func Corrupted(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupted, fmt.Sprintf(format, args...))
}
