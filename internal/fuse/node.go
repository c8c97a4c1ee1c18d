// Package fuse exposes an in-memory vfs volume through the kernel FUSE
// interface. It is the host adaptation layer: it owns inode numbering,
// errno translation and attribute packing, while every filesystem
// decision is delegated to internal/vfs.
package fuse

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/radryc/memvfs/internal/vfs"
)

// Node binds one vfs entry into the FUSE inode tree. The entry handle is
// shared with the table, so a cascading rename updates the node's view of
// its own path without any bookkeeping here.
type Node struct {
	fs.Inode

	// Owning volume
	vol *vfs.Filesystem

	// Shared entry handle resolved at lookup/create time
	entry *vfs.Entry

	// Logger for structured logging
	logger *slog.Logger
}

// Ensure Node implements required interfaces
var (
	_ fs.NodeLookuper  = (*Node)(nil)
	_ fs.NodeGetattrer = (*Node)(nil)
	_ fs.NodeSetattrer = (*Node)(nil)
	_ fs.NodeReaddirer = (*Node)(nil)
	_ fs.NodeOpener    = (*Node)(nil)
	_ fs.NodeCreater   = (*Node)(nil)
	_ fs.NodeMkdirer   = (*Node)(nil)
	_ fs.NodeUnlinker  = (*Node)(nil)
	_ fs.NodeRmdirer   = (*Node)(nil)
	_ fs.NodeRenamer   = (*Node)(nil)
	_ fs.NodeStatfser  = (*Node)(nil)
)

// NewRoot creates the FUSE root node for a volume.
func NewRoot(vol *vfs.Filesystem, logger *slog.Logger) (*Node, error) {
	root, err := vol.Open(vfs.RootPath)
	if err != nil {
		return nil, err
	}
	return &Node{vol: vol, entry: root, logger: logger}, nil
}

// toErrno maps the vfs error taxonomy onto syscall errnos.
func toErrno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, vfs.ErrNotFound), errors.Is(err, vfs.ErrParentNotFound):
		return syscall.ENOENT
	case errors.Is(err, vfs.ErrExists):
		return syscall.EEXIST
	case errors.Is(err, vfs.ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, vfs.ErrNotAFile):
		return syscall.EISDIR
	case errors.Is(err, vfs.ErrNotADirectory):
		return syscall.ENOTDIR
	case errors.Is(err, vfs.ErrReadOnly):
		return syscall.EROFS
	case errors.Is(err, vfs.ErrQuotaExceeded):
		return syscall.ENOSPC
	case errors.Is(err, vfs.ErrAccessDenied), errors.Is(err, vfs.ErrSecurityMerge):
		return syscall.EACCES
	default:
		return syscall.EIO
	}
}

// hashPath derives a stable inode number from a path.
func hashPath(path vfs.Path) uint64 {
	h := fnv.New64a()
	h.Write([]byte(path))
	return h.Sum64()
}

// entryMode converts an entry kind and attribute mask to a FUSE mode.
func entryMode(kind vfs.Kind, attributes uint32) uint32 {
	if kind == vfs.KindFolder {
		return 0755 | uint32(syscall.S_IFDIR)
	}
	perm := uint32(0644)
	if attributes&vfs.AttrReadOnly != 0 {
		perm = 0444
	}
	return perm | uint32(syscall.S_IFREG)
}

func fillAttr(entry *vfs.Entry, out *fuse.Attr) {
	info := entry.Info()
	out.Ino = hashPath(entry.Path())
	out.Mode = entryMode(entry.Kind(), info.Attrs.Attributes)
	out.Size = uint64(info.FileSize)
	out.Blocks = uint64(info.AllocationSize) / 512
	out.SetTimes(&info.Attrs.LastAccessTime, &info.Attrs.LastWriteTime, &info.Attrs.ChangeTime)
	out.Nlink = 1
	if entry.Kind() == vfs.KindFolder {
		out.Nlink = 2
	}
}

func (n *Node) newChild(ctx context.Context, entry *vfs.Entry) *fs.Inode {
	mode := uint32(fuse.S_IFREG)
	if entry.Kind() == vfs.KindFolder {
		mode = fuse.S_IFDIR
	}
	child := &Node{vol: n.vol, entry: entry, logger: n.logger}
	return n.NewInode(ctx, child, fs.StableAttr{
		Mode: mode,
		Ino:  hashPath(entry.Path()),
	})
}

// Lookup implements fs.NodeLookuper.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	path := n.entry.Path().Join(name)
	n.logger.Debug("lookup", "path", path)

	entry, err := n.vol.Open(path)
	if err != nil {
		return nil, toErrno(err)
	}
	fillAttr(entry, &out.Attr)
	return n.newChild(ctx, entry), 0
}

// Getattr implements fs.NodeGetattrer.
func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	fillAttr(n.entry, &out.Attr)
	return 0
}

// Setattr implements fs.NodeSetattrer for truncate and timestamp updates.
func (n *Node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	n.logger.Debug("setattr", "path", n.entry.Path(), "valid", in.Valid)

	if in.Valid&fuse.FATTR_SIZE != 0 {
		if err := n.vol.SetSize(n.entry, int64(in.Size), false); err != nil {
			return toErrno(err)
		}
	}

	var info vfs.BasicInfo
	if atime, ok := in.GetATime(); ok {
		info.LastAccessTime = atime
	}
	if mtime, ok := in.GetMTime(); ok {
		info.LastWriteTime = mtime
		info.ChangeTime = mtime
	}
	if info != (vfs.BasicInfo{}) {
		if err := n.vol.SetBasicInfo(n.entry, info); err != nil {
			return toErrno(err)
		}
	}

	fillAttr(n.entry, &out.Attr)
	return 0
}

// Readdir implements fs.NodeReaddirer.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	n.logger.Debug("readdir", "path", n.entry.Path())

	entries, err := n.vol.ListDirectory(n.entry, "")
	if err != nil {
		return nil, toErrno(err)
	}

	dirPath := n.entry.Path()
	dirEntries := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		// The kernel synthesizes dot entries on its own.
		if e.Name == "." || e.Name == ".." {
			continue
		}
		kind := vfs.KindFile
		if e.Info.Attrs.Attributes&vfs.AttrDirectory != 0 {
			kind = vfs.KindFolder
		}
		dirEntries = append(dirEntries, fuse.DirEntry{
			Name: e.Name,
			Mode: entryMode(kind, e.Info.Attrs.Attributes),
			Ino:  hashPath(dirPath.Join(e.Name)),
		})
	}
	return fs.NewListDirStream(dirEntries), 0
}

// Open implements fs.NodeOpener.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if n.entry.Kind() == vfs.KindFolder {
		return nil, 0, syscall.EISDIR
	}
	if flags&uint32(syscall.O_TRUNC) != 0 {
		if err := n.vol.SetSize(n.entry, 0, false); err != nil {
			return nil, 0, toErrno(err)
		}
	}
	appendOnly := flags&uint32(syscall.O_APPEND) != 0
	return &fileHandle{node: n, appendOnly: appendOnly}, fuse.FOPEN_DIRECT_IO, 0
}

// Create implements fs.NodeCreater.
func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	path := n.entry.Path().Join(name)
	n.logger.Debug("create", "path", path, "mode", mode)

	entry, err := n.vol.Create(path, vfs.KindFile, nil, vfs.Attrs{}, 0)
	if err != nil {
		return nil, nil, 0, toErrno(err)
	}
	fillAttr(entry, &out.Attr)
	child := n.newChild(ctx, entry)
	handle := &fileHandle{node: child.Operations().(*Node)}
	return child, handle, fuse.FOPEN_DIRECT_IO, 0
}

// Mkdir implements fs.NodeMkdirer.
func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	path := n.entry.Path().Join(name)
	n.logger.Debug("mkdir", "path", path)

	entry, err := n.vol.Create(path, vfs.KindFolder, nil, vfs.Attrs{}, 0)
	if err != nil {
		return nil, toErrno(err)
	}
	fillAttr(entry, &out.Attr)
	return n.newChild(ctx, entry), 0
}

// Unlink implements fs.NodeUnlinker.
func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	path := n.entry.Path().Join(name)
	n.logger.Debug("unlink", "path", path)
	return toErrno(n.vol.Remove(path))
}

// Rmdir implements fs.NodeRmdirer. The delete intent is pre-flighted so
// a populated directory fails before any state changes.
func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	path := n.entry.Path().Join(name)
	n.logger.Debug("rmdir", "path", path)

	if err := n.vol.CanDelete(path); err != nil {
		return toErrno(err)
	}
	return toErrno(n.vol.Remove(path))
}

// Rename implements fs.NodeRenamer.
func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	parent, ok := newParent.(*Node)
	if !ok {
		return syscall.EXDEV
	}
	oldPath := n.entry.Path().Join(name)
	newPath := parent.entry.Path().Join(newName)
	n.logger.Debug("rename", "from", oldPath, "to", newPath)

	replace := flags&unix.RENAME_NOREPLACE == 0
	return toErrno(n.vol.Rename(oldPath, newPath, replace))
}

// Statfs implements fs.NodeStatfser from the volume capacity counters.
func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	info := n.vol.VolumeInfo()
	out.Bsize = 512
	out.Blocks = info.TotalBytes / 512
	out.Bfree = info.FreeBytes / 512
	out.Bavail = out.Bfree
	out.NameLen = 255
	return 0
}

// fileHandle is the per-open state for a file node.
type fileHandle struct {
	node *Node

	// appendOnly forces every write to the end of the file.
	appendOnly bool
}

// Ensure fileHandle implements required interfaces
var (
	_ fs.FileReader  = (*fileHandle)(nil)
	_ fs.FileWriter  = (*fileHandle)(nil)
	_ fs.FileFlusher = (*fileHandle)(nil)
	_ fs.FileFsyncer = (*fileHandle)(nil)
)

// Read implements fs.FileReader.
func (h *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := h.node.vol.Read(h.node.entry, dest, off)
	if errors.Is(err, vfs.ErrEndOfFile) {
		return fuse.ReadResultData(nil), 0
	}
	if err != nil {
		return nil, toErrno(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

// Write implements fs.FileWriter.
func (h *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	mode := vfs.WriteNormal
	if h.appendOnly {
		mode = vfs.WriteAppend
	}
	n, err := h.node.vol.Write(h.node.entry, data, off, mode)
	if err != nil {
		return 0, toErrno(err)
	}
	return uint32(n), 0
}

// Flush implements fs.FileFlusher. On close-time flush the allocation is
// compacted back to the smallest unit multiple covering the file size.
func (h *fileHandle) Flush(ctx context.Context) syscall.Errno {
	h.node.vol.Cleanup(h.node.entry, vfs.CleanupSetAllocationSize|vfs.CleanupSetLastWriteTime)
	return toErrno(h.node.vol.Flush(h.node.entry))
}

// Fsync implements fs.FileFsyncer. The store is volatile; there is
// nothing to sync.
func (h *fileHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	return toErrno(h.node.vol.Flush(h.node.entry))
}

// AttrTimeout returns the kernel attribute cache duration used by mounts.
func AttrTimeout() time.Duration {
	return time.Second
}
