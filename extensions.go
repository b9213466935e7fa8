package zipper

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
)

// format describes how an algorithm's output is named and recognized. The
// first extension is the one new files get.
type format struct {
	algo       Algorithm
	extensions []string
	magic      []byte
}

// Zipper and lzw streams open with a block header rather than a signature,
// and brotli has none, so they are recognized by extension only.
var formats = []format{
	{algo: AlgorithmZipper, extensions: []string{".zpr", ".zipper"}},
	{algo: AlgorithmLZW, extensions: []string{".lzw"}},
	{algo: AlgorithmGzip, extensions: []string{".gz", ".gzip"}, magic: []byte{0x1f, 0x8b}},
	{algo: AlgorithmZstd, extensions: []string{".zst", ".zstd"}, magic: []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{algo: AlgorithmLZ4, extensions: []string{".lz4"}, magic: []byte{0x04, 0x22, 0x4d, 0x18}},
	{algo: AlgorithmBrotli, extensions: []string{".br"}},
	// Framed stream identifier chunk
	{algo: AlgorithmSnappy, extensions: []string{".sz", ".snappy"}, magic: []byte{0xff, 0x06, 0x00, 0x00, 0x73, 0x4e, 0x61, 0x50}},
}

var (
	extensionOf = map[Algorithm]string{}
	algoOfExt   = map[string]Algorithm{}
	magicOf     = map[Algorithm][]byte{}
)

func init() {
	for _, f := range formats {
		extensionOf[f.algo] = f.extensions[0]
		for _, ext := range f.extensions {
			algoOfExt[ext] = f.algo
		}
		if f.magic != nil {
			magicOf[f.algo] = f.magic
		}
	}
}

// maxMagic is the longest signature in formats
const maxMagic = 8

// GetExtension returns the extension new files of algo are stored under, or
// "" for algorithms without one.
func GetExtension(algo Algorithm) string {
	return extensionOf[algo]
}

// DetectAlgorithmFromExtension reports the algorithm a name's extension
// belongs to.
func DetectAlgorithmFromExtension(name string) (Algorithm, bool) {
	_, algo, ok := StripExtension(name)
	return algo, ok
}

// DetectAlgorithm reads the start of r and reports the signature found
// there. It returns "" and no error when there is none.
func DetectAlgorithm(r io.Reader) (Algorithm, error) {
	head := make([]byte, maxMagic)
	n, err := io.ReadFull(r, head)
	switch err {
	case nil, io.EOF, io.ErrUnexpectedEOF:
	default:
		return "", err
	}

	algo, _ := IsCompressed(head[:n])
	return algo, nil
}

func hasMagic(algo Algorithm) bool {
	_, ok := magicOf[algo]
	return ok
}

// AddExtension returns the stored name for name under algo. With
// preserveOriginal the extension is appended (notes.txt.zpr), otherwise it
// replaces the existing one (notes.zpr).
func AddExtension(name string, algo Algorithm, preserveOriginal bool) string {
	ext := GetExtension(algo)
	switch {
	case ext == "":
		return name
	case preserveOriginal:
		return name + ext
	default:
		return strings.TrimSuffix(name, filepath.Ext(name)) + ext
	}
}

// StripExtension removes a compression extension from name and reports the
// algorithm it named. Matching ignores case.
func StripExtension(name string) (string, Algorithm, bool) {
	ext := filepath.Ext(name)
	algo, ok := algoOfExt[strings.ToLower(ext)]
	if !ok {
		return name, "", false
	}
	return strings.TrimSuffix(name, ext), algo, true
}

// HasCompressionExtension reports whether name ends in a known compression
// extension.
func HasCompressionExtension(name string) bool {
	_, _, ok := StripExtension(name)
	return ok
}

// IsCompressed reports the format whose signature data starts with.
func IsCompressed(data []byte) (Algorithm, bool) {
	for _, f := range formats {
		if f.magic != nil && bytes.HasPrefix(data, f.magic) {
			return f.algo, true
		}
	}
	return "", false
}
