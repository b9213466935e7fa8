package zipper

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/absfs/absfs"
	"github.com/hashicorp/go-multierror"
)

// compressedFile is an open FS file. Writes collect in memory and are
// encoded into the stored file on Close; reads decode the stored file as
// they go.
type compressedFile struct {
	cfs    *FS
	base   absfs.File
	flag   int
	config Config

	// Logical and stored names
	originalName   string
	compressedName string

	// write side
	writeBuffer    *bytes.Buffer
	writeAlgo      Algorithm
	shouldCompress bool

	// read side
	decompressor io.ReadCloser
	stored       *countingReader
	readAlgo     Algorithm

	bytesRead    int64
	bytesWritten int64
	storedSize   int64
	closed       bool
	mu           sync.Mutex
}

var _ absfs.File = (*compressedFile)(nil)

func newCompressedFile(cfs *FS, base absfs.File, originalName, compressedName string, flag int, algo Algorithm, config Config) (*compressedFile, error) {
	cf := &compressedFile{
		cfs:            cfs,
		base:           base,
		flag:           flag,
		config:         config,
		originalName:   originalName,
		compressedName: compressedName,
		writeAlgo:      algo,
		readAlgo:       algo,
	}

	isCreate := flag&os.O_CREATE != 0
	isWrite := flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE) != 0
	isReadOnly := flag&(os.O_WRONLY|os.O_RDWR) == 0

	cf.shouldCompress = !cfs.shouldSkip(originalName) && algo != ""

	if isWrite && cf.shouldCompress {
		cf.writeBuffer = new(bytes.Buffer)
	}

	if isReadOnly && !isCreate {
		if err := cf.setupDecompressor(); err != nil {
			base.Close()
			return nil, err
		}
	}

	return cf, nil
}

// setupDecompressor picks the decoder for a file opened for reading. Formats
// with a signature are verified against it, so a file stored raw because of
// MinSize reads back as is; zipper, lzw, brotli and snappy have none and the
// extension is trusted.
func (cf *compressedFile) setupDecompressor() error {
	info, err := cf.base.Stat()
	if err == nil && (info.IsDir() || info.Size() == 0) {
		cf.shouldCompress = false
		return nil
	}

	algo := cf.readAlgo
	if algo == "" && !cf.config.AutoDetect {
		return nil
	}

	if algo == "" || hasMagic(algo) {
		magic := make([]byte, 10)
		n, err := io.ReadFull(cf.base, magic)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return err
		}
		if _, err := cf.base.Seek(0, io.SeekStart); err != nil {
			return err
		}

		detected, ok := IsCompressed(magic[:n])
		if !ok {
			cf.shouldCompress = false
			return nil
		}
		algo = detected
	}

	cf.stored = &countingReader{r: cf.base}
	decompressor, err := createDecompressor(algo, cf.stored, &cf.config)
	if err != nil {
		return err
	}
	cf.decompressor = decompressor
	cf.readAlgo = algo
	return nil
}

func (cf *compressedFile) Read(p []byte) (n int, err error) {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if cf.closed {
		return 0, fs.ErrClosed
	}

	if cf.decompressor != nil {
		n, err = cf.decompressor.Read(p)
		if n > 0 {
			cf.bytesRead += int64(n)
			cf.cfs.addBytes(&cf.cfs.stats.BytesRead, int64(n))
			// Report EOF on the following call, as files do
			if err == io.EOF {
				err = nil
			}
		}
		return n, err
	}

	n, err = cf.base.Read(p)
	if n > 0 {
		cf.bytesRead += int64(n)
		cf.cfs.addBytes(&cf.cfs.stats.BytesRead, int64(n))
	}
	return n, err
}

// Write buffers p when the file is compressed on Close.
func (cf *compressedFile) Write(p []byte) (n int, err error) {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if cf.closed {
		return 0, fs.ErrClosed
	}

	if cf.writeBuffer != nil {
		n, err = cf.writeBuffer.Write(p)
		cf.bytesWritten += int64(n)
		return n, err
	}

	n, err = cf.base.Write(p)
	if n > 0 {
		cf.bytesWritten += int64(n)
		cf.cfs.addBytes(&cf.cfs.stats.BytesWritten, int64(n))
	}
	return n, err
}

// Close compresses buffered writes into the stored file and closes it.
// Every step runs even when an earlier one fails; the failures are returned
// together.
func (cf *compressedFile) Close() error {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if cf.closed {
		return nil
	}
	cf.closed = true

	var result *multierror.Error
	renameTo, stale := "", ""

	if cf.writeBuffer != nil {
		bufLen := int64(cf.writeBuffer.Len())

		switch {
		case bufLen == 0:
			// Empty file, nothing to encode
		case bufLen < cf.config.MinSize:
			_, err := io.Copy(cf.base, cf.writeBuffer)
			result = multierror.Append(result, err)
			cf.storedSize = bufLen
			cf.cfs.incrementStat(&cf.cfs.stats.FilesSkipped)
			cf.cfs.addBytes(&cf.cfs.stats.BytesWritten, bufLen)

			// Drop the compression extension so reads do not try to decode
			if cf.compressedName != cf.originalName {
				renameTo = cf.originalName
			}
		default:
			auto := cf.writeAlgo == AlgorithmAuto
			algo, err := cf.encode()
			if err != nil {
				result = multierror.Append(result, err)
				break
			}
			cf.writeAlgo = algo
			cf.cfs.incrementStat(&cf.cfs.stats.FilesCompressed)
			cf.cfs.addBytes(&cf.cfs.stats.BytesWritten, bufLen)
			cf.cfs.addBytes(&cf.cfs.stats.BytesCompressed, cf.storedSize)
			cf.cfs.stats.IncrementAlgorithmCount(algo)

			if name := cf.storedName(algo); name != cf.compressedName {
				renameTo = name
			}
			// A copy under the losing extension would shadow or outlive
			// this one.
			if loser := cf.storedName(otherAuto(algo)); auto && loser != cf.compressedName {
				stale = loser
			}
		}
		cf.writeBuffer = nil
	}

	if cf.decompressor != nil {
		if err := cf.decompressor.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		cf.cfs.incrementStat(&cf.cfs.stats.FilesDecompressed)
		cf.cfs.addBytes(&cf.cfs.stats.BytesDecompressed, cf.stored.n)
		cf.cfs.stats.IncrementAlgorithmCount(cf.readAlgo)
	}

	if err := cf.base.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	// The base file must be closed before it can be renamed
	if renameTo != "" && result.ErrorOrNil() == nil {
		if err := cf.cfs.base.Rename(cf.compressedName, renameTo); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if stale != "" && result.ErrorOrNil() == nil {
		if err := cf.cfs.base.Remove(stale); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

// encode compresses the write buffer into the base file and returns the
// algorithm used.
func (cf *compressedFile) encode() (Algorithm, error) {
	out := &countingWriter{w: cf.base}

	if cf.writeAlgo == AlgorithmAuto {
		algo, data, err := CompressSmallest(cf.writeBuffer.Bytes(), &cf.config)
		if err != nil {
			return "", err
		}
		cf.cfs.logger.Debug("auto encoding chosen",
			"name", cf.originalName,
			"algorithm", algo,
			"size", cf.writeBuffer.Len(),
			"stored", len(data))

		if _, err := out.Write(data); err != nil {
			return "", err
		}
		cf.storedSize = out.n
		return algo, nil
	}

	compressor, err := createCompressor(cf.writeAlgo, out, &cf.config)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(compressor, cf.writeBuffer); err != nil {
		compressor.Close()
		return "", err
	}
	if err := compressor.Close(); err != nil {
		return "", err
	}
	cf.storedSize = out.n
	return cf.writeAlgo, nil
}

// storedName returns the stored name of this file under algo
func (cf *compressedFile) storedName(algo Algorithm) string {
	stripped, _, _ := StripExtension(cf.compressedName)
	return stripped + GetExtension(algo)
}

func otherAuto(algo Algorithm) Algorithm {
	if algo == AlgorithmLZW {
		return AlgorithmZipper
	}
	return AlgorithmLZW
}

// Seek only works on files stored raw.
func (cf *compressedFile) Seek(offset int64, whence int) (int64, error) {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if cf.closed {
		return 0, fs.ErrClosed
	}

	if cf.decompressor != nil || cf.writeBuffer != nil {
		return 0, ErrSeekNotSupported
	}

	return cf.base.Seek(offset, whence)
}

// Stat describes the stored file, not the logical one.
func (cf *compressedFile) Stat() (fs.FileInfo, error) {
	return cf.base.Stat()
}

func (cf *compressedFile) Sync() error {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if cf.closed {
		return fs.ErrClosed
	}

	return cf.base.Sync()
}

// Algorithm returns the compression algorithm in use. For AlgorithmAuto it
// reports the winning encoding once the file is closed.
func (cf *compressedFile) Algorithm() Algorithm {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if cf.decompressor != nil {
		return cf.readAlgo
	}
	if cf.shouldCompress {
		return cf.writeAlgo
	}
	return ""
}

// CompressionRatio returns stored over logical size once a written file
// is closed (0-1, lower is better), and 0 before.
func (cf *compressedFile) CompressionRatio() float64 {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	return GetCompressionRatio(cf.bytesWritten, cf.storedSize)
}

// OriginalSize is the logical byte count read or written so far.
func (cf *compressedFile) OriginalSize() int64 {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if cf.decompressor != nil {
		return cf.bytesRead
	}
	return cf.bytesWritten
}

func (cf *compressedFile) Name() string {
	return cf.originalName
}

func (cf *compressedFile) ReadAt(b []byte, off int64) (n int, err error) {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if cf.closed {
		return 0, fs.ErrClosed
	}
	if cf.decompressor != nil {
		return 0, ErrSeekNotSupported
	}
	return cf.base.ReadAt(b, off)
}

func (cf *compressedFile) WriteAt(b []byte, off int64) (n int, err error) {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if cf.closed {
		return 0, fs.ErrClosed
	}
	if cf.writeBuffer != nil {
		return 0, ErrSeekNotSupported
	}
	return cf.base.WriteAt(b, off)
}

func (cf *compressedFile) WriteString(s string) (n int, err error) {
	return cf.Write([]byte(s))
}

// Truncate(0) discards buffered writes. Other sizes need a raw file.
func (cf *compressedFile) Truncate(size int64) error {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if cf.closed {
		return fs.ErrClosed
	}
	if cf.writeBuffer != nil {
		if size != 0 {
			return ErrSeekNotSupported
		}
		cf.writeBuffer.Reset()
		cf.bytesWritten = 0
		return nil
	}
	if cf.decompressor != nil {
		return ErrSeekNotSupported
	}
	return cf.base.Truncate(size)
}

func (cf *compressedFile) Readdir(n int) ([]os.FileInfo, error) {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if cf.closed {
		return nil, fs.ErrClosed
	}
	return cf.base.Readdir(n)
}

func (cf *compressedFile) Readdirnames(n int) (names []string, err error) {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if cf.closed {
		return nil, fs.ErrClosed
	}
	return cf.base.Readdirnames(n)
}

func (cf *compressedFile) ReadDir(n int) ([]fs.DirEntry, error) {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if cf.closed {
		return nil, fs.ErrClosed
	}
	return cf.base.ReadDir(n)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
