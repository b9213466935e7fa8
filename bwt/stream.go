package bwt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/absfs/zipper/internal/streamio"
)

// Mode selects the direction of a Stream.
type Mode int

const (
	// Transform buffers written data and writes transformed blocks to the
	// underlying stream.
	Transform Mode = iota

	// Reconstruct reads transformed blocks from the underlying stream and
	// serves the original data.
	Reconstruct
)

func (m Mode) String() string {
	switch m {
	case Transform:
		return "transform"
	case Reconstruct:
		return "reconstruct"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

const (
	// MinBlockSize is the smallest allowed block length.
	MinBlockSize = 1024

	// MaxBlockSize is the largest allowed block length.
	MaxBlockSize = 16384

	// DefaultBlockSize is used when Config.BlockSize is zero.
	DefaultBlockSize = (MinBlockSize + MaxBlockSize) / 2

	// headerSize covers int32 raw length and int32 identity index.
	headerSize = 8
)

// Config holds Stream configuration.
type Config struct {
	// Block length in bytes, between MinBlockSize and MaxBlockSize.
	// Zero selects DefaultBlockSize. Only used by Transform streams.
	BlockSize int

	// Leave the underlying stream open on Close.
	LeaveOpen bool

	// Logger for block diagnostics (default: discard)
	Logger *slog.Logger
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		BlockSize: DefaultBlockSize,
	}
}

// Stream transforms or reconstructs data in independently framed blocks.
//
// Each block goes to the underlying stream as a little-endian int32 raw
// length, an int32 identity index and the transformed payload.
type Stream struct {
	rw        io.ReadWriter
	mode      Mode
	blockSize int
	leaveOpen bool
	logger    *slog.Logger

	// block is the single buffer checked out by this stream. In Transform
	// mode pos is the fill level; in Reconstruct mode bytes [pos:end] are
	// still to be served.
	block []byte
	pos   int
	end   int

	blocks int
	eof    bool
	closed bool
}

// NewStream creates a Stream over rw. A nil config selects DefaultConfig.
func NewStream(rw io.ReadWriter, mode Mode, config *Config) (*Stream, error) {
	if config == nil {
		config = DefaultConfig()
	}

	blockSize := config.BlockSize
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	if blockSize < MinBlockSize || blockSize > MaxBlockSize {
		return nil, streamio.OutOfRange("block size", blockSize, MinBlockSize, MaxBlockSize)
	}

	switch mode {
	case Transform:
		if !streamio.CanWrite(rw) {
			return nil, ErrNotWritable
		}
	case Reconstruct:
		if !streamio.CanRead(rw) {
			return nil, ErrNotReadable
		}
	default:
		return nil, fmt.Errorf("%w: %v is neither %v nor %v", ErrUnknownMode, mode, Transform, Reconstruct)
	}

	return &Stream{
		rw:        rw,
		mode:      mode,
		blockSize: blockSize,
		leaveOpen: config.LeaveOpen,
		logger:    streamio.Logger(config.Logger),
	}, nil
}

// Mode returns the direction of the stream.
func (s *Stream) Mode() Mode {
	return s.mode
}

// BlockSize returns the block length used when transforming.
func (s *Stream) BlockSize() int {
	return s.blockSize
}

// CanRead reports whether the stream reconstructs data.
func (s *Stream) CanRead() bool {
	return !s.closed && s.mode == Reconstruct && streamio.CanRead(s.rw)
}

// CanWrite reports whether the stream transforms data.
func (s *Stream) CanWrite() bool {
	return !s.closed && s.mode == Transform && streamio.CanWrite(s.rw)
}

// Write buffers p and writes every completed block.
func (s *Stream) Write(p []byte) (int, error) {
	if err := s.check(Transform); err != nil {
		return 0, err
	}

	n := 0
	for n < len(p) {
		if s.block == nil {
			s.block = streamio.GetBlock(s.blockSize)
			s.pos = 0
		}

		c := copy(s.block[s.pos:], p[n:])
		n += c
		s.pos += c

		if s.pos >= s.blockSize {
			if err := s.writeBlock(); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// Read fills p with reconstructed data. It returns io.EOF once the
// underlying stream ends cleanly at a block boundary.
func (s *Stream) Read(p []byte) (int, error) {
	if err := s.check(Reconstruct); err != nil {
		return 0, err
	}

	n := 0
	for n < len(p) {
		if s.block == nil {
			if s.eof {
				break
			}
			if err := s.readBlock(); err != nil {
				if err == io.EOF {
					s.eof = true
					break
				}
				return n, err
			}
		}

		c := copy(p[n:], s.block[s.pos:s.end])
		n += c
		s.pos += c

		if s.pos >= s.end {
			streamio.PutBlock(s.block)
			s.block = nil
		}
	}

	if n == 0 && s.eof && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Flush writes a pending partial block and flushes the underlying stream.
func (s *Stream) Flush() error {
	if s.closed {
		return ErrClosed
	}
	if s.mode != Transform {
		return nil
	}

	if s.block != nil && s.pos > 0 {
		if err := s.writeBlock(); err != nil {
			return err
		}
	}
	return streamio.Flush(s.rw)
}

// Seek is not supported.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	return 0, ErrSeekNotSupported
}

// Close writes a pending partial block, releases the block buffer and,
// unless LeaveOpen was set, closes the underlying stream. Closing twice is a
// no-op.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}

	var err error
	if s.mode == Transform && s.block != nil && s.pos > 0 {
		err = s.writeBlock()
	}
	if s.block != nil {
		streamio.PutBlock(s.block)
		s.block = nil
	}
	s.closed = true

	if !s.leaveOpen {
		if cerr := streamio.Close(s.rw); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (s *Stream) check(mode Mode) error {
	if s.closed {
		return ErrClosed
	}
	if s.mode != mode {
		return fmt.Errorf("%w: %v stream", ErrInvalidMode, s.mode)
	}
	return nil
}

func (s *Stream) writeBlock() error {
	length := s.pos
	out := streamio.GetBlock(headerSize + length)
	defer streamio.PutBlock(out)

	identity, err := Forward(s.block[:length], out[headerSize:])
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(out[0:4], uint32(length))
	binary.LittleEndian.PutUint32(out[4:8], uint32(identity))

	streamio.PutBlock(s.block)
	s.block = nil
	s.pos = 0

	if _, err := s.rw.Write(out); err != nil {
		return err
	}

	s.logger.Debug("bwt block written", "block", s.blocks, "length", length, "identity", identity)
	s.blocks++
	return nil
}

func (s *Stream) readBlock() error {
	var header [headerSize]byte
	if _, err := io.ReadFull(s.rw, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: bwt block header", ErrTruncated)
		}
		return err
	}

	length := int(int32(binary.LittleEndian.Uint32(header[0:4])))
	identity := int(int32(binary.LittleEndian.Uint32(header[4:8])))
	if length <= 0 || length > MaxBlockSize {
		return streamio.Corrupted("bwt block length %d", length)
	}
	if identity < 0 || identity >= length {
		return streamio.Corrupted("bwt identity index %d for block of %d bytes", identity, length)
	}

	transformed := streamio.GetBlock(length)
	defer streamio.PutBlock(transformed)

	if _, err := io.ReadFull(s.rw, transformed); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: bwt block of %d bytes", ErrTruncated, length)
		}
		return err
	}

	block := streamio.GetBlock(length)
	if err := Inverse(transformed, identity, block); err != nil {
		streamio.PutBlock(block)
		return err
	}

	s.block = block
	s.pos = 0
	s.end = length
	s.logger.Debug("bwt block read", "block", s.blocks, "length", length, "identity", identity)
	s.blocks++
	return nil
}
