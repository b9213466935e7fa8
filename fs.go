package zipper

import (
	"bytes"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absfs/absfs"

	"github.com/absfs/zipper/internal/streamio"
)

// FS wraps an absfs.Filer and compresses files transparently
type FS struct {
	base   absfs.Filer
	config *Config
	skip   *regexp.Regexp // nil without SkipPatterns
	logger *slog.Logger
	stats  Stats
	mu     sync.RWMutex
}

var _ absfs.Filer = (*FS)(nil)

// New creates a new compressing filesystem wrapper
func New(base absfs.Filer, config *Config) (*FS, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Algorithm == "" {
		config.Algorithm = AlgorithmZipper
	}
	if err := validateLevel(config.Algorithm, config.Level); err != nil {
		return nil, err
	}
	if config.BlockSize != 0 && (config.BlockSize < MinBlockSize || config.BlockSize > MaxBlockSize) {
		return nil, streamio.OutOfRange("block size", config.BlockSize, MinBlockSize, MaxBlockSize)
	}

	var skip *regexp.Regexp
	if len(config.SkipPatterns) > 0 {
		var err error
		skip, err = regexp.Compile("(?:" + strings.Join(config.SkipPatterns, "|") + ")")
		if err != nil {
			return nil, err
		}
	}

	return &FS{
		base:   base,
		config: config,
		skip:   skip,
		logger: streamio.Logger(config.Logger),
	}, nil
}

func (cfs *FS) shouldSkip(name string) bool {
	if cfs.skip == nil {
		return false
	}
	return cfs.skip.MatchString(name)
}

// snapshot returns a copy of the config for one operation
func (cfs *FS) snapshot() Config {
	cfs.mu.RLock()
	defer cfs.mu.RUnlock()
	return *cfs.config
}

// candidates lists the stored names name may live under, in lookup order.
// Both the appended (a.txt.zpr) and the replaced (a.zpr) form are tried,
// the one PreserveExtension produces first.
func (cfs *FS) candidates(name string, config Config) []string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	names := make([]string, 0, 2*(len(lookupOrder)+1))
	for _, algo := range append([]Algorithm{config.Algorithm}, lookupOrder...) {
		ext := GetExtension(algo)
		switch {
		case ext == "":
		case stem == name:
			names = append(names, name+ext)
		case config.PreserveExtension:
			names = append(names, name+ext, stem+ext)
		default:
			names = append(names, stem+ext, name+ext)
		}
	}
	return names
}

func (cfs *FS) Open(name string) (absfs.File, error) {
	return cfs.OpenFile(name, os.O_RDONLY, 0)
}

// OpenFile opens name by its logical name. Writes are stored under the
// extension of the configured algorithm; reads find the stored file by
// extension or, with StripExtension, by probing the known extensions.
func (cfs *FS) OpenFile(name string, flag int, perm fs.FileMode) (absfs.File, error) {
	config := cfs.snapshot()

	actualName := name
	var algo Algorithm
	isCreate := flag&os.O_CREATE != 0
	isWrite := flag&(os.O_WRONLY|os.O_RDWR) != 0

	switch {
	case (isCreate || isWrite) && !cfs.shouldSkip(name):
		// Writes go to the name of the configured algorithm; auto starts out
		// under the zipper extension and is renamed on Close if lzw wins.
		if !HasCompressionExtension(name) {
			algo = config.Algorithm
			actualName = AddExtension(name, storedAlgorithm(algo), config.PreserveExtension)
		}
	case isCreate || isWrite:
	default:
		if detected, ok := DetectAlgorithmFromExtension(name); ok {
			algo = detected
			break
		}
		if !config.StripExtension {
			break
		}
		for _, candidate := range cfs.candidates(name, config) {
			if _, err := cfs.base.Stat(candidate); err == nil {
				actualName = candidate
				algo, _ = DetectAlgorithmFromExtension(candidate)
				break
			}
		}
	}

	baseFile, err := cfs.base.OpenFile(actualName, flag, perm)
	if err != nil {
		return nil, err
	}

	return newCompressedFile(cfs, baseFile, name, actualName, flag, algo, config)
}

func (cfs *FS) Create(name string) (absfs.File, error) {
	return cfs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func (cfs *FS) Mkdir(name string, perm fs.FileMode) error {
	return cfs.base.Mkdir(name, perm)
}

// resolve returns the stored name of name, trying the compression
// extensions when name itself does not exist.
func (cfs *FS) resolve(name string) string {
	config := cfs.snapshot()
	if _, err := cfs.base.Stat(name); err == nil || !config.StripExtension {
		return name
	}
	for _, candidate := range cfs.candidates(name, config) {
		if _, err := cfs.base.Stat(candidate); err == nil {
			return candidate
		}
	}
	return name
}

// Remove removes the stored file behind name.
func (cfs *FS) Remove(name string) error {
	return cfs.base.Remove(cfs.resolve(name))
}

// Rename renames a file, keeping the compression extension of the stored
// name.
func (cfs *FS) Rename(oldpath, newpath string) error {
	stored := cfs.resolve(oldpath)
	if stored != oldpath && !HasCompressionExtension(newpath) {
		ext := filepath.Ext(stored)
		if strings.HasPrefix(stored, oldpath) {
			newpath += ext
		} else {
			newpath = strings.TrimSuffix(newpath, filepath.Ext(newpath)) + ext
		}
	}
	return cfs.base.Rename(stored, newpath)
}

// Stat returns file information of the stored file
func (cfs *FS) Stat(name string) (fs.FileInfo, error) {
	return cfs.base.Stat(cfs.resolve(name))
}

// Chmod changes the mode of the stored file
func (cfs *FS) Chmod(name string, mode fs.FileMode) error {
	return cfs.base.Chmod(cfs.resolve(name), mode)
}

// Chtimes changes the times of the stored file
func (cfs *FS) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return cfs.base.Chtimes(cfs.resolve(name), atime, mtime)
}

// Chown changes the owner of the stored file
func (cfs *FS) Chown(name string, uid, gid int) error {
	return cfs.base.Chown(cfs.resolve(name), uid, gid)
}

// ReadFile reads and decompresses the named file
func (cfs *FS) ReadFile(name string) ([]byte, error) {
	f, err := cfs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := io.CopyBuffer(&buf, f, make([]byte, cfs.bufferSize())); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Sub returns a read-only fs.FS rooted at dir that decompresses on read
func (cfs *FS) Sub(dir string) (fs.FS, error) {
	return absfs.FilerToFS(cfs, dir)
}

// ReadDir reads directory contents, listing compressed files under their
// logical names when StripExtension is set.
func (cfs *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	config := cfs.snapshot()

	entries, err := cfs.base.ReadDir(name)
	if err != nil || !config.StripExtension {
		return entries, err
	}

	result := make([]fs.DirEntry, 0, len(entries))
	seen := make(map[string]bool)
	for _, entry := range entries {
		entryName := entry.Name()
		if stripped, _, ok := StripExtension(entryName); ok && !entry.IsDir() {
			if !seen[stripped] {
				result = append(result, &renamedDirEntry{DirEntry: entry, name: stripped})
				seen[stripped] = true
			}
			continue
		}
		if !seen[entryName] {
			result = append(result, entry)
			seen[entryName] = true
		}
	}
	return result, nil
}

// renamedDirEntry reports a stored entry under its logical name
type renamedDirEntry struct {
	fs.DirEntry
	name string
}

func (e *renamedDirEntry) Name() string {
	return e.name
}

func (cfs *FS) bufferSize() int {
	if size := cfs.snapshot().BufferSize; size > 0 {
		return size
	}
	return 64 * 1024
}

// GetStats returns a snapshot of the counters.
func (cfs *FS) GetStats() *Stats {
	cfs.mu.RLock()
	defer cfs.mu.RUnlock()

	stats := &Stats{
		FilesCompressed:   atomic.LoadInt64(&cfs.stats.FilesCompressed),
		FilesDecompressed: atomic.LoadInt64(&cfs.stats.FilesDecompressed),
		FilesSkipped:      atomic.LoadInt64(&cfs.stats.FilesSkipped),
		BytesRead:         atomic.LoadInt64(&cfs.stats.BytesRead),
		BytesWritten:      atomic.LoadInt64(&cfs.stats.BytesWritten),
		BytesCompressed:   atomic.LoadInt64(&cfs.stats.BytesCompressed),
		BytesDecompressed: atomic.LoadInt64(&cfs.stats.BytesDecompressed),
	}
	cfs.stats.AlgorithmCounts.Range(func(key, value any) bool {
		count := new(atomic.Int64)
		count.Store(value.(*atomic.Int64).Load())
		stats.AlgorithmCounts.Store(key, count)
		return true
	})
	return stats
}

func (cfs *FS) ResetStats() {
	cfs.mu.Lock()
	defer cfs.mu.Unlock()
	atomic.StoreInt64(&cfs.stats.FilesCompressed, 0)
	atomic.StoreInt64(&cfs.stats.FilesDecompressed, 0)
	atomic.StoreInt64(&cfs.stats.FilesSkipped, 0)
	atomic.StoreInt64(&cfs.stats.BytesRead, 0)
	atomic.StoreInt64(&cfs.stats.BytesWritten, 0)
	atomic.StoreInt64(&cfs.stats.BytesCompressed, 0)
	atomic.StoreInt64(&cfs.stats.BytesDecompressed, 0)
	cfs.stats.AlgorithmCounts.Range(func(key, _ any) bool {
		cfs.stats.AlgorithmCounts.Delete(key)
		return true
	})
}

// SetAlgorithm changes the algorithm of files created from now on. The
// current level must be valid for it.
func (cfs *FS) SetAlgorithm(algo Algorithm) error {
	if _, ok := extensionOf[storedAlgorithm(algo)]; !ok {
		return ErrUnsupportedAlgorithm
	}
	cfs.mu.Lock()
	defer cfs.mu.Unlock()
	if err := validateLevel(algo, cfs.config.Level); err != nil {
		return err
	}
	cfs.config.Algorithm = algo
	return nil
}

func (cfs *FS) SetLevel(level int) error {
	cfs.mu.Lock()
	defer cfs.mu.Unlock()
	if err := validateLevel(cfs.config.Algorithm, level); err != nil {
		return err
	}
	cfs.config.Level = level
	return nil
}

func (cfs *FS) incrementStat(counter *int64) {
	atomic.AddInt64(counter, 1)
}

func (cfs *FS) addBytes(counter *int64, n int64) {
	atomic.AddInt64(counter, n)
}
