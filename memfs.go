package zipper

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/absfs/absfs"
)

// normalizePath cleans name into the slash separated, root relative form
// nodes are keyed by. The root is ".".
func normalizePath(name string) string {
	name = path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return "."
	}
	return name
}

type memNode struct {
	data    []byte
	mode    fs.FileMode
	modTime time.Time
}

func (n *memNode) isDir() bool {
	return n.mode.IsDir()
}

// memFS is an in-memory filesystem for tests and examples
type memFS struct {
	nodes map[string]*memNode
	mu    sync.RWMutex
}

var _ absfs.Filer = (*memFS)(nil)

// NewMemFS creates a new in-memory filesystem
func NewMemFS() absfs.Filer {
	return &memFS{
		nodes: map[string]*memNode{
			".": {mode: fs.ModeDir | 0755, modTime: time.Now()},
		},
	}
}

func pathError(op, name string, err error) error {
	return &fs.PathError{Op: op, Path: name, Err: err}
}

// parentDir checks that the directory holding name exists. Callers hold mu.
func (mfs *memFS) parentDir(op, name string) error {
	parent, ok := mfs.nodes[path.Dir(name)]
	if !ok {
		return pathError(op, name, fs.ErrNotExist)
	}
	if !parent.isDir() {
		return pathError(op, name, errors.New("not a directory"))
	}
	return nil
}

// children returns the sorted names of the direct children of dir. Callers
// hold mu.
func (mfs *memFS) children(dir string) []string {
	var names []string
	for name := range mfs.nodes {
		if name != "." && path.Dir(name) == dir {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (mfs *memFS) OpenFile(name string, flag int, perm fs.FileMode) (absfs.File, error) {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	key := normalizePath(name)
	node, exists := mfs.nodes[key]

	switch {
	case exists && flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0:
		return nil, pathError("open", name, fs.ErrExist)
	case !exists && flag&os.O_CREATE == 0:
		return nil, pathError("open", name, fs.ErrNotExist)
	case !exists:
		if err := mfs.parentDir("open", key); err != nil {
			return nil, err
		}
		node = &memNode{mode: perm &^ fs.ModeType, modTime: time.Now()}
		mfs.nodes[key] = node
	}

	writable := flag&(os.O_WRONLY|os.O_RDWR) != 0
	if node.isDir() && writable {
		return nil, pathError("open", name, errors.New("is a directory"))
	}
	if flag&os.O_TRUNC != 0 && writable {
		node.data = nil
		node.modTime = time.Now()
	}

	h := &memHandle{mfs: mfs, name: name, key: key, node: node, flag: flag}
	if flag&os.O_APPEND != 0 {
		h.pos = int64(len(node.data))
	}
	return h, nil
}

func (mfs *memFS) Mkdir(name string, perm fs.FileMode) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	key := normalizePath(name)
	if _, exists := mfs.nodes[key]; exists {
		return pathError("mkdir", name, fs.ErrExist)
	}
	if err := mfs.parentDir("mkdir", key); err != nil {
		return err
	}
	mfs.nodes[key] = &memNode{mode: fs.ModeDir | perm.Perm(), modTime: time.Now()}
	return nil
}

func (mfs *memFS) Remove(name string) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	key := normalizePath(name)
	node, exists := mfs.nodes[key]
	if !exists || key == "." {
		return pathError("remove", name, fs.ErrNotExist)
	}
	if node.isDir() && len(mfs.children(key)) > 0 {
		return pathError("remove", name, errors.New("directory not empty"))
	}
	delete(mfs.nodes, key)
	return nil
}

// Rename moves oldpath to newpath, replacing a file at newpath. Directories
// move with their contents.
func (mfs *memFS) Rename(oldpath, newpath string) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	from, to := normalizePath(oldpath), normalizePath(newpath)
	node, exists := mfs.nodes[from]
	if !exists || from == "." {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: fs.ErrNotExist}
	}
	if from == to {
		return nil
	}
	if target, ok := mfs.nodes[to]; ok && target.isDir() {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: fs.ErrExist}
	}
	if err := mfs.parentDir("rename", to); err != nil {
		return err
	}

	moved := map[string]*memNode{to: node}
	delete(mfs.nodes, from)
	if node.isDir() {
		prefix := from + "/"
		for key, child := range mfs.nodes {
			if strings.HasPrefix(key, prefix) {
				moved[to+"/"+strings.TrimPrefix(key, prefix)] = child
				delete(mfs.nodes, key)
			}
		}
	}
	for key, child := range moved {
		mfs.nodes[key] = child
	}
	return nil
}

func (mfs *memFS) Stat(name string) (fs.FileInfo, error) {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	key := normalizePath(name)
	node, exists := mfs.nodes[key]
	if !exists {
		return nil, pathError("stat", name, fs.ErrNotExist)
	}
	return node.info(key), nil
}

func (mfs *memFS) Chmod(name string, mode fs.FileMode) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	node, exists := mfs.nodes[normalizePath(name)]
	if !exists {
		return pathError("chmod", name, fs.ErrNotExist)
	}
	node.mode = node.mode.Type() | mode.Perm()
	return nil
}

func (mfs *memFS) Chtimes(name string, atime time.Time, mtime time.Time) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	node, exists := mfs.nodes[normalizePath(name)]
	if !exists {
		return pathError("chtimes", name, fs.ErrNotExist)
	}
	node.modTime = mtime
	return nil
}

// Chown only checks that name exists; ownership is not tracked.
func (mfs *memFS) Chown(name string, uid, gid int) error {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	if _, exists := mfs.nodes[normalizePath(name)]; !exists {
		return pathError("chown", name, fs.ErrNotExist)
	}
	return nil
}

func (mfs *memFS) ReadDir(name string) ([]fs.DirEntry, error) {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	key := normalizePath(name)
	node, exists := mfs.nodes[key]
	if !exists {
		return nil, pathError("readdir", name, fs.ErrNotExist)
	}
	if !node.isDir() {
		return nil, pathError("readdir", name, errors.New("not a directory"))
	}

	names := mfs.children(key)
	entries := make([]fs.DirEntry, len(names))
	for i, child := range names {
		entries[i] = fs.FileInfoToDirEntry(mfs.nodes[child].info(child))
	}
	return entries, nil
}

func (mfs *memFS) ReadFile(name string) ([]byte, error) {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	node, exists := mfs.nodes[normalizePath(name)]
	if !exists {
		return nil, pathError("readfile", name, fs.ErrNotExist)
	}
	if node.isDir() {
		return nil, pathError("readfile", name, errors.New("is a directory"))
	}
	return append([]byte(nil), node.data...), nil
}

func (mfs *memFS) Sub(dir string) (fs.FS, error) {
	return absfs.FilerToFS(mfs, dir)
}

// memHandle is an open file or directory of a memFS
type memHandle struct {
	mfs    *memFS
	name   string
	key    string
	node   *memNode
	flag   int
	pos    int64
	dirPos int
	closed bool
}

func (h *memHandle) Name() string {
	return h.name
}

func (h *memHandle) check(op string) error {
	if h.closed {
		return pathError(op, h.name, fs.ErrClosed)
	}
	return nil
}

func (h *memHandle) readable() bool {
	return h.flag&os.O_WRONLY == 0
}

func (h *memHandle) writable() bool {
	return h.flag&(os.O_WRONLY|os.O_RDWR) != 0
}

func (h *memHandle) Read(b []byte) (int, error) {
	n, err := h.ReadAt(b, h.pos)
	h.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (h *memHandle) ReadAt(b []byte, off int64) (int, error) {
	if err := h.check("read"); err != nil {
		return 0, err
	}
	if !h.readable() || h.node.isDir() {
		return 0, pathError("read", h.name, fs.ErrPermission)
	}
	if off < 0 {
		return 0, pathError("read", h.name, fs.ErrInvalid)
	}

	h.mfs.mu.RLock()
	defer h.mfs.mu.RUnlock()

	if off >= int64(len(h.node.data)) {
		return 0, io.EOF
	}
	n := copy(b, h.node.data[off:])
	if n < len(b) {
		return n, io.EOF
	}
	return n, nil
}

func (h *memHandle) Write(b []byte) (int, error) {
	if h.flag&os.O_APPEND != 0 {
		h.mfs.mu.RLock()
		h.pos = int64(len(h.node.data))
		h.mfs.mu.RUnlock()
	}
	n, err := h.WriteAt(b, h.pos)
	h.pos += int64(n)
	return n, err
}

func (h *memHandle) WriteAt(b []byte, off int64) (int, error) {
	if err := h.check("write"); err != nil {
		return 0, err
	}
	if !h.writable() {
		return 0, pathError("write", h.name, fs.ErrPermission)
	}
	if off < 0 {
		return 0, pathError("write", h.name, fs.ErrInvalid)
	}

	h.mfs.mu.Lock()
	defer h.mfs.mu.Unlock()

	if end := off + int64(len(b)); end > int64(len(h.node.data)) {
		grown := make([]byte, end)
		copy(grown, h.node.data)
		h.node.data = grown
	}
	copy(h.node.data[off:], b)
	h.node.modTime = time.Now()
	return len(b), nil
}

func (h *memHandle) WriteString(s string) (int, error) {
	return h.Write([]byte(s))
}

func (h *memHandle) Seek(offset int64, whence int) (int64, error) {
	if err := h.check("seek"); err != nil {
		return 0, err
	}

	h.mfs.mu.RLock()
	size := int64(len(h.node.data))
	h.mfs.mu.RUnlock()

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = h.pos + offset
	case io.SeekEnd:
		pos = size + offset
	default:
		return 0, pathError("seek", h.name, fs.ErrInvalid)
	}
	if pos < 0 {
		return 0, pathError("seek", h.name, fs.ErrInvalid)
	}
	h.pos = pos
	return pos, nil
}

func (h *memHandle) Truncate(size int64) error {
	if err := h.check("truncate"); err != nil {
		return err
	}
	if !h.writable() || size < 0 {
		return pathError("truncate", h.name, fs.ErrInvalid)
	}

	h.mfs.mu.Lock()
	defer h.mfs.mu.Unlock()

	resized := make([]byte, size)
	copy(resized, h.node.data)
	h.node.data = resized
	h.node.modTime = time.Now()
	return nil
}

func (h *memHandle) Close() error {
	if err := h.check("close"); err != nil {
		return err
	}
	h.closed = true
	return nil
}

func (h *memHandle) Sync() error {
	return h.check("sync")
}

func (h *memHandle) Stat() (fs.FileInfo, error) {
	h.mfs.mu.RLock()
	defer h.mfs.mu.RUnlock()
	return h.node.info(h.key), nil
}

// next returns up to n further directory entries of the handle
func (h *memHandle) next(op string, n int) ([]fs.FileInfo, error) {
	if err := h.check(op); err != nil {
		return nil, err
	}
	if !h.node.isDir() {
		return nil, pathError(op, h.name, errors.New("not a directory"))
	}

	h.mfs.mu.RLock()
	names := h.mfs.children(h.key)
	infos := make([]fs.FileInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, h.mfs.nodes[name].info(name))
	}
	h.mfs.mu.RUnlock()

	if h.dirPos > len(infos) {
		h.dirPos = len(infos)
	}
	infos = infos[h.dirPos:]
	if n > 0 {
		if len(infos) == 0 {
			return nil, io.EOF
		}
		infos = infos[:min(n, len(infos))]
	}
	h.dirPos += len(infos)
	return infos, nil
}

func (h *memHandle) Readdir(n int) ([]os.FileInfo, error) {
	return h.next("readdir", n)
}

func (h *memHandle) Readdirnames(n int) ([]string, error) {
	infos, err := h.next("readdirnames", n)
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, err
}

func (h *memHandle) ReadDir(n int) ([]fs.DirEntry, error) {
	infos, err := h.next("readdir", n)
	entries := make([]fs.DirEntry, len(infos))
	for i, info := range infos {
		entries[i] = fs.FileInfoToDirEntry(info)
	}
	return entries, err
}

// info snapshots n as a FileInfo for key. Callers hold mu.
func (n *memNode) info(key string) fs.FileInfo {
	return &memFileInfo{
		name:    path.Base(key),
		size:    int64(len(n.data)),
		mode:    n.mode,
		modTime: n.modTime,
	}
}

type memFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

func (fi *memFileInfo) Name() string       { return fi.name }
func (fi *memFileInfo) Size() int64        { return fi.size }
func (fi *memFileInfo) Mode() fs.FileMode  { return fi.mode }
func (fi *memFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *memFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *memFileInfo) Sys() any           { return nil }
