package zipper

import (
	"compress/gzip"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/absfs/zipper/lzw"
)

// lookupOrder is the order in which stored names are probed on read when
// a logical name has no file of its own.
var lookupOrder = []Algorithm{
	AlgorithmZipper,
	AlgorithmLZW,
	AlgorithmGzip,
	AlgorithmZstd,
	AlgorithmLZ4,
	AlgorithmBrotli,
	AlgorithmSnappy,
}

// storedAlgorithm returns the algorithm whose extension a new file of algo
// is created under.
func storedAlgorithm(algo Algorithm) Algorithm {
	if algo == AlgorithmAuto {
		return AlgorithmZipper
	}
	return algo
}

// validateLevel checks level against the range of algo. Zero always selects
// the algorithm default; algorithms without levels ignore it.
func validateLevel(algo Algorithm, level int) error {
	lo, hi := 0, 0
	switch algo {
	case AlgorithmGzip:
		lo, hi = gzip.HuffmanOnly, gzip.BestCompression
	case AlgorithmZstd:
		lo, hi = 1, 22
	case AlgorithmLZ4:
		lo, hi = 1, 9
	case AlgorithmBrotli:
		lo, hi = brotli.BestSpeed, brotli.BestCompression
	case AlgorithmZipper, AlgorithmLZW, AlgorithmSnappy, AlgorithmAuto:
		return nil // No levels
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algo)
	}
	if level != 0 && (level < lo || level > hi) {
		return fmt.Errorf("%w: %d for %s", ErrInvalidLevel, level, algo)
	}
	return nil
}

// createCompressor creates a compressor for the specified algorithm
func createCompressor(algo Algorithm, w io.Writer, config *Config) (io.WriteCloser, error) {
	switch algo {
	case AlgorithmZipper:
		return NewWriter(w, &StreamConfig{
			BlockSize: config.BlockSize,
			LeaveOpen: true,
			Logger:    config.Logger,
		})
	case AlgorithmLZW:
		return lzw.NewWriter(w, &lzw.Config{
			BlockSize: config.BlockSize,
			LeaveOpen: true,
			Logger:    config.Logger,
		})
	case AlgorithmGzip:
		return createGzipCompressor(w, config.Level)
	case AlgorithmZstd:
		return createZstdCompressor(w, config.Level)
	case AlgorithmLZ4:
		return createLZ4Compressor(w, config.Level)
	case AlgorithmBrotli:
		return createBrotliCompressor(w, config.Level)
	case AlgorithmSnappy:
		return snappy.NewBufferedWriter(w), nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

// createDecompressor creates a decompressor for the specified algorithm
func createDecompressor(algo Algorithm, r io.Reader, config *Config) (io.ReadCloser, error) {
	switch algo {
	case AlgorithmZipper:
		return NewReader(r, &StreamConfig{LeaveOpen: true, Logger: config.Logger})
	case AlgorithmLZW:
		return lzw.NewReader(r, &lzw.Config{LeaveOpen: true, Logger: config.Logger})
	case AlgorithmGzip:
		return gzip.NewReader(r)
	case AlgorithmZstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	case AlgorithmLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case AlgorithmBrotli:
		return io.NopCloser(brotli.NewReader(r)), nil
	case AlgorithmSnappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

func createGzipCompressor(w io.Writer, level int) (io.WriteCloser, error) {
	if level == 0 {
		level = gzip.DefaultCompression
	}
	return gzip.NewWriterLevel(w, level)
}

func createZstdCompressor(w io.Writer, level int) (io.WriteCloser, error) {
	if level == 0 {
		level = 3
	}
	return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
}

func createLZ4Compressor(w io.Writer, level int) (io.WriteCloser, error) {
	zw := lz4.NewWriter(w)
	if level > 0 {
		if err := zw.Apply(lz4.CompressionLevelOption(lz4.CompressionLevel(1 << (8 + level)))); err != nil {
			return nil, err
		}
	}
	return zw, nil
}

func createBrotliCompressor(w io.Writer, level int) (io.WriteCloser, error) {
	if level == 0 {
		level = brotli.DefaultCompression
	}
	return brotli.NewWriterLevel(w, level), nil
}
