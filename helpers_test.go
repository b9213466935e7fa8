package zipper

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/xyproto/randomstring"
)

func TestCompressBytes(t *testing.T) {
	data := bytes.Repeat(testText, 10)

	tests := []struct {
		algo  Algorithm
		level int
	}{
		{AlgorithmZipper, 0},
		{AlgorithmLZW, 0},
		{AlgorithmGzip, 0},
		{AlgorithmGzip, 9},
		{AlgorithmZstd, 0},
		{AlgorithmZstd, 19},
		{AlgorithmLZ4, 0},
		{AlgorithmLZ4, 9},
		{AlgorithmBrotli, 0},
		{AlgorithmBrotli, 11},
		{AlgorithmSnappy, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.algo), func(t *testing.T) {
			compressed, err := CompressBytes(data, tt.algo, tt.level)
			if err != nil {
				t.Fatalf("Failed to compress: %v", err)
			}
			if len(compressed) >= len(data) {
				t.Errorf("Compressed size %d is not below %d", len(compressed), len(data))
			}

			decompressed, err := DecompressBytes(compressed, tt.algo)
			if err != nil {
				t.Fatalf("Failed to decompress: %v", err)
			}
			if !bytes.Equal(decompressed, data) {
				t.Fatalf("Round trip mismatch for %s level %d", tt.algo, tt.level)
			}
		})
	}
}

func TestCompressBytesErrors(t *testing.T) {
	tests := []struct {
		name  string
		algo  Algorithm
		level int
		want  error
	}{
		{"auto", AlgorithmAuto, 0, ErrUnsupportedAlgorithm},
		{"unknown", Algorithm("bzip2"), 0, ErrUnsupportedAlgorithm},
		{"gzip level", AlgorithmGzip, 10, ErrInvalidLevel},
		{"zstd level", AlgorithmZstd, 23, ErrInvalidLevel},
		{"lz4 level", AlgorithmLZ4, -1, ErrInvalidLevel},
		{"brotli level", AlgorithmBrotli, 12, ErrInvalidLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CompressBytes(testText, tt.algo, tt.level); !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := DecompressBytes(testText, Algorithm("bzip2")); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("Expected ErrUnsupportedAlgorithm, got %v", err)
	}
}

func TestCompressSmallest(t *testing.T) {
	inputs := map[string][]byte{
		"text":    bytes.Repeat(testText, 50),
		"letters": []byte(randomstring.EnglishFrequencyString(20000)),
		"random":  []byte(randomstring.String(4096)),
		"single":  {'x'},
	}

	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			zipped, err := CompressBytes(data, AlgorithmZipper, 0)
			if err != nil {
				t.Fatalf("Failed to compress with zipper: %v", err)
			}
			plain, err := CompressBytes(data, AlgorithmLZW, 0)
			if err != nil {
				t.Fatalf("Failed to compress with lzw: %v", err)
			}

			wantAlgo, want := AlgorithmZipper, zipped
			if len(plain) < len(zipped) {
				wantAlgo, want = AlgorithmLZW, plain
			}

			algo, got, err := CompressSmallest(data, nil)
			if err != nil {
				t.Fatalf("CompressSmallest failed: %v", err)
			}
			if algo != wantAlgo {
				t.Errorf("Chose %s (zipper %d, lzw %d bytes)", algo, len(zipped), len(plain))
			}
			if !bytes.Equal(got, want) {
				t.Errorf("Returned %d bytes, want the %d byte %s encoding", len(got), len(want), wantAlgo)
			}

			decoded, err := DecompressBytes(got, algo)
			if err != nil {
				t.Fatalf("Failed to decompress: %v", err)
			}
			if !bytes.Equal(decoded, data) {
				t.Fatal("Round trip mismatch")
			}
		})
	}
}

func TestDetectCompressionAlgorithm(t *testing.T) {
	for _, algo := range []Algorithm{AlgorithmGzip, AlgorithmZstd, AlgorithmLZ4, AlgorithmSnappy} {
		compressed, err := CompressBytes(testText, algo, 0)
		if err != nil {
			t.Fatalf("Failed to compress with %s: %v", algo, err)
		}
		got, ok := DetectCompressionAlgorithm(compressed)
		if !ok || got != algo {
			t.Errorf("Detected %q, %v for %s", got, ok, algo)
		}
	}

	for _, algo := range []Algorithm{AlgorithmZipper, AlgorithmLZW} {
		compressed, err := CompressBytes(testText, algo, 0)
		if err != nil {
			t.Fatalf("Failed to compress with %s: %v", algo, err)
		}
		if got, ok := DetectCompressionAlgorithm(compressed); ok {
			t.Errorf("%s output detected as %s", algo, got)
		}
	}

	if _, ok := DetectCompressionAlgorithm(testText); ok {
		t.Error("Plain text detected as compressed")
	}
}

func TestCompressionRatios(t *testing.T) {
	tests := []struct {
		original, compressed int64
		ratio, percentage    float64
	}{
		{100, 25, 0.25, 75},
		{100, 100, 1, 0},
		{200, 300, 1.5, -50},
		{0, 10, 0, 0},
	}

	for _, tt := range tests {
		if got := GetCompressionRatio(tt.original, tt.compressed); math.Abs(got-tt.ratio) > 1e-9 {
			t.Errorf("GetCompressionRatio(%d, %d) = %v, want %v", tt.original, tt.compressed, got, tt.ratio)
		}
		if got := GetCompressionPercentage(tt.original, tt.compressed); math.Abs(got-tt.percentage) > 1e-9 {
			t.Errorf("GetCompressionPercentage(%d, %d) = %v, want %v", tt.original, tt.compressed, got, tt.percentage)
		}
	}
}

func TestPresetConfigs(t *testing.T) {
	presets := map[string]*Config{
		"fastest":    FastestConfig(),
		"best":       BestCompressionConfig(),
		"compatible": CompatibleConfig(),
	}

	data := bytes.Repeat(testText, 30)
	for name, config := range presets {
		t.Run(name, func(t *testing.T) {
			cfs, _ := newTestFS(t, config)
			writeFile(t, cfs, "preset.txt", data)
			if got := readFile(t, cfs, "preset.txt"); !bytes.Equal(got, data) {
				t.Fatal("Round trip mismatch")
			}
			if stats := cfs.GetStats(); stats.FilesCompressed != 1 {
				t.Errorf("Expected 1 compressed file, got %d", stats.FilesCompressed)
			}
		})
	}

	if _, err := NewWithFastestConfig(NewMemFS()); err != nil {
		t.Fatalf("NewWithFastestConfig failed: %v", err)
	}

	cfs, err := NewWithBestCompression(NewMemFS())
	if err != nil {
		t.Fatalf("NewWithBestCompression failed: %v", err)
	}
	writeFile(t, cfs, "photo.jpg", data)
	if _, err := cfs.base.Stat("photo.jpg"); err != nil {
		t.Errorf("Skipped file not stored under its own name: %v", err)
	}
	writeFile(t, cfs, "small.txt", testText)
	if _, err := cfs.base.Stat("small.txt"); err != nil {
		t.Errorf("File below MinSize not stored raw: %v", err)
	}
}
