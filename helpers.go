package zipper

import (
	"bytes"
	"io"

	"github.com/absfs/absfs"
)

// Names of formats that are already compressed and gain nothing from
// another pass.
const (
	mediaPattern   = `\.(jpg|jpeg|png|gif|webp|mp4|mkv|avi|mov|mp3|flac)$`
	archivePattern = `\.(zip|gz|bz2|xz|7z|rar|zst|lz4|br|sz|zpr|lzw)$`
)

// FastestConfig trades ratio for speed with lz4.
func FastestConfig() *Config {
	config := DefaultConfig()
	config.Algorithm = AlgorithmLZ4
	config.BlockSize = 0
	return config
}

// BestCompressionConfig encodes every file with both zipper and lzw, keeps
// the smaller result and leaves small or already compressed files alone.
func BestCompressionConfig() *Config {
	config := DefaultConfig()
	config.Algorithm = AlgorithmAuto
	config.BufferSize = 128 << 10
	config.MinSize = 1 << 10
	config.SkipPatterns = []string{mediaPattern, archivePattern}
	return config
}

// CompatibleConfig writes gzip, which any tool can read back.
func CompatibleConfig() *Config {
	config := DefaultConfig()
	config.Algorithm = AlgorithmGzip
	config.Level = 6
	config.BlockSize = 0
	config.MinSize = 512
	config.SkipPatterns = []string{mediaPattern, archivePattern}
	return config
}

func NewWithFastestConfig(base absfs.Filer) (*FS, error) {
	return New(base, FastestConfig())
}

func NewWithBestCompression(base absfs.Filer) (*FS, error) {
	return New(base, BestCompressionConfig())
}

// CompressBytes compresses a byte slice using the specified algorithm and
// level. AlgorithmAuto is not accepted; use CompressSmallest.
func CompressBytes(data []byte, algo Algorithm, level int) ([]byte, error) {
	if algo == AlgorithmAuto {
		return nil, ErrUnsupportedAlgorithm
	}
	if err := validateLevel(algo, level); err != nil {
		return nil, err
	}
	return compressBytes(data, algo, &Config{Algorithm: algo, Level: level, BlockSize: MaxBlockSize})
}

func compressBytes(data []byte, algo Algorithm, config *Config) ([]byte, error) {
	var buf bytes.Buffer
	compressor, err := createCompressor(algo, &buf, config)
	if err != nil {
		return nil, err
	}

	if _, err := compressor.Write(data); err != nil {
		compressor.Close()
		return nil, err
	}

	if err := compressor.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecompressBytes decompresses a byte slice using the specified algorithm
func DecompressBytes(data []byte, algo Algorithm) ([]byte, error) {
	decompressor, err := createDecompressor(algo, bytes.NewReader(data), &Config{})
	if err != nil {
		return nil, err
	}
	defer decompressor.Close()

	return io.ReadAll(decompressor)
}

// CompressSmallest encodes data with both zipper and lzw and returns the
// smaller encoding together with the algorithm that produced it. Ties go to
// zipper.
func CompressSmallest(data []byte, config *Config) (Algorithm, []byte, error) {
	if config == nil {
		config = DefaultConfig()
	}

	zipped, err := compressBytes(data, AlgorithmZipper, config)
	if err != nil {
		return "", nil, err
	}
	plain, err := compressBytes(data, AlgorithmLZW, config)
	if err != nil {
		return "", nil, err
	}

	if len(plain) < len(zipped) {
		return AlgorithmLZW, plain, nil
	}
	return AlgorithmZipper, zipped, nil
}

// DetectCompressionAlgorithm reports the format whose signature data
// starts with.
func DetectCompressionAlgorithm(data []byte) (Algorithm, bool) {
	return IsCompressed(data)
}

// GetCompressionRatio returns compressedSize over originalSize: 0.25 means
// the stored form is a quarter of the original. Zero for empty input.
func GetCompressionRatio(originalSize, compressedSize int64) float64 {
	return ratio(compressedSize, originalSize)
}

// GetCompressionPercentage returns the space saved in percent. It is
// negative when the encoding grew the data.
func GetCompressionPercentage(originalSize, compressedSize int64) float64 {
	if originalSize == 0 {
		return 0
	}
	return (1 - GetCompressionRatio(originalSize, compressedSize)) * 100
}
