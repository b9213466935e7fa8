package zipper

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/absfs/zipper/internal/streamio"
)

// Algorithm names an encoding FS can store files in.
type Algorithm string

const (
	// AlgorithmZipper is the BWT+LZW Stream of this package.
	AlgorithmZipper Algorithm = "zipper"
	// AlgorithmLZW is the LZW stage alone.
	AlgorithmLZW Algorithm = "lzw"

	AlgorithmGzip   Algorithm = "gzip"
	AlgorithmZstd   Algorithm = "zstd"
	AlgorithmLZ4    Algorithm = "lz4"
	AlgorithmBrotli Algorithm = "brotli"
	AlgorithmSnappy Algorithm = "snappy"

	// AlgorithmAuto encodes with both zipper and lzw and stores the smaller
	// result.
	AlgorithmAuto Algorithm = "auto"
)

// Config controls how FS stores files. The zero value of every field except
// Algorithm is usable; New fills in zipper when Algorithm is empty.
type Config struct {
	Algorithm Algorithm

	// Level is passed to gzip [-2,9], zstd [1,22], lz4 [1,9] and
	// brotli [0,11]. Zero picks the library default. Zipper, lzw and snappy
	// have no levels.
	Level int

	// BlockSize is the LZW block length used by zipper and lzw.
	BlockSize int

	// SkipPatterns are regular expressions; matching names are stored raw.
	SkipPatterns []string

	// AutoDetect recognizes compressed files by signature when their name
	// carries no compression extension.
	AutoDetect bool

	// PreserveExtension appends the compression extension (a.txt.zpr)
	// instead of replacing the existing one (a.zpr).
	PreserveExtension bool

	// StripExtension lets files be opened by their logical name.
	StripExtension bool

	// BufferSize is the copy buffer used by ReadFile.
	BufferSize int

	// MinSize stores files smaller than this many bytes raw.
	MinSize int64

	Logger *slog.Logger
}

// DefaultConfig stores every file with zipper at the largest block size and
// resolves logical names transparently.
func DefaultConfig() *Config {
	return &Config{
		Algorithm:         AlgorithmZipper,
		BlockSize:         MaxBlockSize,
		AutoDetect:        true,
		PreserveExtension: true,
		StripExtension:    true,
		BufferSize:        64 << 10,
	}
}

// Stats counts FS activity. Counters are updated atomically; read them
// through GetStats.
type Stats struct {
	// Files closed after a compressed write, a raw write below MinSize,
	// and a decompressing read.
	FilesCompressed   int64
	FilesDecompressed int64
	FilesSkipped      int64

	// Logical bytes read and written through FS.
	BytesRead    int64
	BytesWritten int64

	// Stored bytes written by compressed writes and consumed by
	// decompressing reads.
	BytesCompressed   int64
	BytesDecompressed int64

	// AlgorithmCounts maps Algorithm to *atomic.Int64.
	AlgorithmCounts sync.Map
}

func (s *Stats) GetAlgorithmCount(algo Algorithm) int64 {
	if v, ok := s.AlgorithmCounts.Load(algo); ok {
		return v.(*atomic.Int64).Load()
	}
	return 0
}

func (s *Stats) IncrementAlgorithmCount(algo Algorithm) {
	v, _ := s.AlgorithmCounts.LoadOrStore(algo, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
}

// TotalCompressionRatio is stored over logical bytes across compressed
// writes. Lower is better.
func (s *Stats) TotalCompressionRatio() float64 {
	return ratio(s.BytesCompressed, s.BytesWritten)
}

// TotalDecompressionRatio is logical over stored bytes across decompressing
// reads.
func (s *Stats) TotalDecompressionRatio() float64 {
	return ratio(s.BytesRead, s.BytesDecompressed)
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

var (
	ErrUnsupportedAlgorithm = errors.New("zipper: unsupported compression algorithm")
	ErrInvalidLevel         = errors.New("zipper: invalid compression level")
)

// Stream errors, shared by every package of the module.
var (
	ErrOutOfRange       = streamio.ErrOutOfRange
	ErrUnknownMode      = streamio.ErrUnknownMode
	ErrNotReadable      = streamio.ErrNotReadable
	ErrNotWritable      = streamio.ErrNotWritable
	ErrCorrupted        = streamio.ErrCorrupted
	ErrTruncated        = streamio.ErrTruncated
	ErrClosed           = streamio.ErrClosed
	ErrInvalidMode      = streamio.ErrInvalidMode
	ErrSeekNotSupported = streamio.ErrSeekNotSupported
)
