package zipper

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/absfs/zipper/bwt"
	"github.com/absfs/zipper/internal/streamio"
	"github.com/absfs/zipper/lzw"
)

// Mode selects the direction of a Stream.
type Mode int

const (
	// CompressMode writes compressed data to the underlying stream.
	CompressMode Mode = iota

	// DecompressMode reads compressed data from the underlying stream.
	DecompressMode
)

func (m Mode) String() string {
	switch m {
	case CompressMode:
		return "compress"
	case DecompressMode:
		return "decompress"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

const (
	// MinBlockSize is the smallest allowed LZW block length.
	MinBlockSize = lzw.MinBlockSize

	// MaxBlockSize is the largest allowed LZW block length.
	MaxBlockSize = lzw.MaxBlockSize

	// DefaultBlockSize is used when StreamConfig.BlockSize is zero.
	DefaultBlockSize = (MinBlockSize + MaxBlockSize) / 2
)

// StreamConfig holds Stream configuration.
type StreamConfig struct {
	// LZW block length, between MinBlockSize and MaxBlockSize. The BWT
	// block length is scaled to the same relative position in its range.
	// Zero selects DefaultBlockSize.
	BlockSize int

	// Leave the underlying stream open on Close.
	LeaveOpen bool

	// Logger for block diagnostics of both stages (default: discard)
	Logger *slog.Logger
}

// DefaultStreamConfig returns a config with sensible defaults
func DefaultStreamConfig() *StreamConfig {
	return &StreamConfig{
		BlockSize: DefaultBlockSize,
	}
}

// Stream compresses with a BWT stage feeding an LZW stage, or decompresses
// through the same stages in reverse.
type Stream struct {
	rw        io.ReadWriter
	mode      Mode
	leaveOpen bool

	bwt *bwt.Stream
	lzw *lzw.Stream

	closed bool
}

// NewStream creates a Stream over rw. A nil config selects
// DefaultStreamConfig.
func NewStream(rw io.ReadWriter, mode Mode, config *StreamConfig) (*Stream, error) {
	if config == nil {
		config = DefaultStreamConfig()
	}

	blockSize := config.BlockSize
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	if blockSize < MinBlockSize || blockSize > MaxBlockSize {
		return nil, streamio.OutOfRange("block size", blockSize, MinBlockSize, MaxBlockSize)
	}

	var lzwMode lzw.Mode
	var bwtMode bwt.Mode
	switch mode {
	case CompressMode:
		lzwMode, bwtMode = lzw.Compress, bwt.Transform
	case DecompressMode:
		lzwMode, bwtMode = lzw.Decompress, bwt.Reconstruct
	default:
		return nil, fmt.Errorf("%w: %v is neither %v nor %v", ErrUnknownMode, mode, CompressMode, DecompressMode)
	}

	lz, err := lzw.NewStream(rw, lzwMode, &lzw.Config{
		BlockSize: blockSize,
		LeaveOpen: true,
		Logger:    config.Logger,
	})
	if err != nil {
		return nil, err
	}

	bw, err := bwt.NewStream(lz, bwtMode, &bwt.Config{
		BlockSize: BWTBlockSize(blockSize),
		LeaveOpen: true,
		Logger:    config.Logger,
	})
	if err != nil {
		lz.Close()
		return nil, err
	}

	return &Stream{
		rw:        rw,
		mode:      mode,
		leaveOpen: config.LeaveOpen,
		bwt:       bw,
		lzw:       lz,
	}, nil
}

// NewWriter returns a compressing Stream that writes to w.
func NewWriter(w io.Writer, config *StreamConfig) (*Stream, error) {
	return NewStream(streamio.WriteOnly(w), CompressMode, config)
}

// NewReader returns a decompressing Stream that reads from r.
func NewReader(r io.Reader, config *StreamConfig) (*Stream, error) {
	return NewStream(streamio.ReadOnly(r), DecompressMode, config)
}

// BWTBlockSize maps an LZW block length onto the BWT block range by linear
// interpolation.
func BWTBlockSize(blockSize int) int {
	rel := float64(blockSize-MinBlockSize) / float64(MaxBlockSize-MinBlockSize)
	return bwt.MinBlockSize + int(rel*float64(bwt.MaxBlockSize-bwt.MinBlockSize))
}

// Mode returns the direction of the stream.
func (s *Stream) Mode() Mode {
	return s.mode
}

// CanRead reports whether the stream decompresses from a readable source.
func (s *Stream) CanRead() bool {
	return !s.closed && s.mode == DecompressMode && streamio.CanRead(s.rw)
}

// CanWrite reports whether the stream compresses to a writable sink.
func (s *Stream) CanWrite() bool {
	return !s.closed && s.mode == CompressMode && streamio.CanWrite(s.rw)
}

// Write compresses p.
func (s *Stream) Write(p []byte) (int, error) {
	if err := s.check(CompressMode); err != nil {
		return 0, err
	}
	return s.bwt.Write(p)
}

// Read decompresses into p.
func (s *Stream) Read(p []byte) (int, error) {
	if err := s.check(DecompressMode); err != nil {
		return 0, err
	}
	return s.bwt.Read(p)
}

// Flush pushes all buffered data through both stages so that everything
// written so far can be decompressed. It is a no-op when decompressing.
func (s *Stream) Flush() error {
	if s.closed {
		return ErrClosed
	}
	if s.mode != CompressMode {
		return nil
	}
	return s.bwt.Flush()
}

// Seek is not supported.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	return 0, ErrSeekNotSupported
}

// Close closes the BWT stage, then the LZW stage and, unless LeaveOpen was
// set, the underlying stream. Every stage is closed even if an earlier one
// fails; the failures are returned together. Closing twice is a no-op.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var result *multierror.Error
	if err := s.bwt.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("bwt stage: %w", err))
	}
	if err := s.lzw.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("lzw stage: %w", err))
	}
	if !s.leaveOpen {
		if err := streamio.Close(s.rw); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
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

// Compress returns data compressed with the given block size. A zero block
// size selects DefaultBlockSize.
func Compress(data []byte, blockSize int) ([]byte, error) {
	var buf bytes.Buffer
	s, err := NewWriter(&buf, &StreamConfig{BlockSize: blockSize})
	if err != nil {
		return nil, err
	}
	if _, err := s.Write(data); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress returns the data compressed in data.
func Decompress(data []byte) ([]byte, error) {
	s, err := NewReader(bytes.NewReader(data), nil)
	if err != nil {
		return nil, err
	}
	out, err := io.ReadAll(s)
	if cerr := s.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return out, err
}
