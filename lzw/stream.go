package lzw

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/absfs/zipper/internal/streamio"
)

// Mode selects the direction of a Stream.
type Mode int

const (
	// Compress encodes written data to the underlying stream.
	Compress Mode = iota

	// Decompress decodes data read from the underlying stream.
	Decompress
)

func (m Mode) String() string {
	switch m {
	case Compress:
		return "compress"
	case Decompress:
		return "decompress"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Config holds LZW configuration.
type Config struct {
	// Maximum block length in bytes, header included, between MinBlockSize
	// and MaxBlockSize. Zero selects DefaultBlockSize. Only used when
	// compressing.
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

func (c *Config) blockSize() (int, error) {
	if c.BlockSize == 0 {
		return DefaultBlockSize, nil
	}
	if c.BlockSize < MinBlockSize || c.BlockSize > MaxBlockSize {
		return 0, streamio.OutOfRange("block size", c.BlockSize, MinBlockSize, MaxBlockSize)
	}
	return c.BlockSize, nil
}

// Stream is an LZW compressor or decompressor over an underlying stream.
type Stream struct {
	rw        io.ReadWriter
	mode      Mode
	leaveOpen bool

	writer *Writer
	reader *Reader
	closed bool
}

// NewStream creates a Stream over rw. A nil config selects DefaultConfig.
func NewStream(rw io.ReadWriter, mode Mode, config *Config) (*Stream, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if _, err := config.blockSize(); err != nil {
		return nil, err
	}

	s := &Stream{
		rw:        rw,
		mode:      mode,
		leaveOpen: config.LeaveOpen,
	}

	var err error
	switch mode {
	case Compress:
		s.writer, err = NewWriter(rw, config)
	case Decompress:
		s.reader, err = NewReader(rw, config)
	default:
		err = fmt.Errorf("%w: %v is neither %v nor %v", ErrUnknownMode, mode, Compress, Decompress)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Mode returns the direction of the stream.
func (s *Stream) Mode() Mode {
	return s.mode
}

// CanRead reports whether the stream decompresses.
func (s *Stream) CanRead() bool {
	return !s.closed && s.mode == Decompress
}

// CanWrite reports whether the stream compresses.
func (s *Stream) CanWrite() bool {
	return !s.closed && s.mode == Compress
}

// Write compresses p.
func (s *Stream) Write(p []byte) (int, error) {
	if err := s.check(Compress); err != nil {
		return 0, err
	}
	return s.writer.Write(p)
}

// Read decompresses into p.
func (s *Stream) Read(p []byte) (int, error) {
	if err := s.check(Decompress); err != nil {
		return 0, err
	}
	return s.reader.Read(p)
}

// Flush makes everything written so far decodable. It is a no-op when
// decompressing.
func (s *Stream) Flush() error {
	if s.closed {
		return ErrClosed
	}
	if s.mode != Compress {
		return nil
	}
	return s.writer.Flush()
}

// Seek is not supported.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	return 0, ErrSeekNotSupported
}

// Close terminates a compressed stream and, unless LeaveOpen was set,
// closes the underlying stream. Closing twice is a no-op.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.writer != nil {
		err = s.writer.Close()
	}
	if s.reader != nil {
		err = s.reader.Close()
	}

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
