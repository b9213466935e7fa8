// Package zipper is a streaming compressor that runs data through a
// Burrows-Wheeler transform followed by adaptive LZW coding, together with
// a transparent compression wrapper for any absfs.Filer.
//
// # Streams
//
// A Stream compresses everything written to it and decompresses everything
// read from it. Compressed data is a sequence of LZW blocks whose decoded
// content is a sequence of BWT blocks; Flush pushes buffered data through
// both stages so the output written so far can be decompressed on its own.
//
//	var buf bytes.Buffer
//	w, _ := zipper.NewWriter(&buf, nil)
//	w.Write([]byte("ABACABA"))
//	w.Close()
//
//	r, _ := zipper.NewReader(&buf, nil)
//	data, _ := io.ReadAll(r)
//
// The stages are usable on their own through the bwt and lzw packages.
//
// # Filesystem
//
// FS compresses files when they are written and decompresses them when they
// are read:
//
//	cfs, _ := zipper.New(zipper.NewMemFS(), zipper.DefaultConfig())
//
//	f, _ := cfs.Create("data.txt") // stored as data.txt.zpr
//	f.Write([]byte("Hello, compressed world!"))
//	f.Close()
//
//	data, _ := cfs.ReadFile("data.txt")
//
// Besides zipper (.zpr) and lzw (.lzw), FS writes gzip, zstd, lz4, brotli
// and snappy. AlgorithmAuto encodes every file with both zipper and lzw and
// keeps the smaller one under its extension.
//
// Extension handling:
//   - PreserveExtension: true  → file.txt becomes file.txt.zpr
//   - StripExtension: true     → access via "file.txt" (transparent)
//
// Selective compression:
//   - SkipPatterns: Skip files matching regex patterns
//   - MinSize: Store files below the threshold uncompressed
//   - AutoDetect: Detect formats with magic bytes when the name has no
//     compression extension
package zipper
