package fuse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"syscall"
	"testing"

	gofuse "github.com/hanwen/go-fuse/v2/fuse"

	"github.com/radryc/memvfs/internal/vfs"
)

func newTestNode(t *testing.T, opts ...vfs.Option) (*vfs.Filesystem, *Node) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	vol := vfs.New("test", append([]vfs.Option{vfs.WithLogger(logger)}, opts...)...)
	root, err := NewRoot(vol, logger)
	if err != nil {
		t.Fatal(err)
	}
	return vol, root
}

func TestToErrno(t *testing.T) {
	tests := []struct {
		err  error
		want syscall.Errno
	}{
		{nil, 0},
		{vfs.ErrNotFound, syscall.ENOENT},
		{vfs.ErrParentNotFound, syscall.ENOENT},
		{vfs.ErrExists, syscall.EEXIST},
		{vfs.ErrNotEmpty, syscall.ENOTEMPTY},
		{vfs.ErrNotAFile, syscall.EISDIR},
		{vfs.ErrNotADirectory, syscall.ENOTDIR},
		{vfs.ErrReadOnly, syscall.EROFS},
		{vfs.ErrQuotaExceeded, syscall.ENOSPC},
		{vfs.ErrAccessDenied, syscall.EACCES},
		{vfs.ErrSecurityMerge, syscall.EACCES},
		{errors.New("unexpected"), syscall.EIO},
	}

	for _, tc := range tests {
		if got := toErrno(tc.err); got != tc.want {
			t.Errorf("toErrno(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}

	// Wrapped sentinels still map through errors.Is.
	wrapped := fmt.Errorf("create failed: %w", vfs.ErrQuotaExceeded)
	if got := toErrno(wrapped); got != syscall.ENOSPC {
		t.Errorf("wrapped quota error = %v, want ENOSPC", got)
	}
}

func TestEntryMode(t *testing.T) {
	if got := entryMode(vfs.KindFolder, 0); got != 0755|uint32(syscall.S_IFDIR) {
		t.Errorf("folder mode = %o", got)
	}
	if got := entryMode(vfs.KindFile, 0); got != 0644|uint32(syscall.S_IFREG) {
		t.Errorf("file mode = %o", got)
	}
	if got := entryMode(vfs.KindFile, vfs.AttrReadOnly); got != 0444|uint32(syscall.S_IFREG) {
		t.Errorf("read-only file mode = %o", got)
	}
}

func TestHashPathStable(t *testing.T) {
	if hashPath("/a") != hashPath("/a") {
		t.Error("same path hashed differently")
	}
	if hashPath("/a") == hashPath("/b") {
		t.Error("distinct paths collided")
	}
}

func TestFillAttr(t *testing.T) {
	vol, _ := newTestNode(t)
	entry, err := vol.Create("/a.txt", vfs.KindFile, nil, vfs.Attrs{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := vol.Write(entry, make([]byte, 5000), 0, vfs.WriteNormal); err != nil {
		t.Fatal(err)
	}

	var out gofuse.Attr
	fillAttr(entry, &out)
	if out.Size != 5000 {
		t.Errorf("size = %d, want 5000", out.Size)
	}
	if out.Blocks != 8192/512 {
		t.Errorf("blocks = %d, want %d", out.Blocks, 8192/512)
	}
	if out.Mode&uint32(syscall.S_IFREG) == 0 {
		t.Error("mode is not a regular file")
	}
	if out.Nlink != 1 {
		t.Errorf("nlink = %d, want 1", out.Nlink)
	}

	dir, err := vol.Create("/dir", vfs.KindFolder, nil, vfs.Attrs{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	fillAttr(dir, &out)
	if out.Mode&uint32(syscall.S_IFDIR) == 0 {
		t.Error("mode is not a directory")
	}
	if out.Nlink != 2 {
		t.Errorf("dir nlink = %d, want 2", out.Nlink)
	}
}

func TestReaddirSkipsDotEntries(t *testing.T) {
	vol, root := newTestNode(t)
	if _, err := vol.Create("/docs", vfs.KindFolder, nil, vfs.Attrs{}, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := vol.Create("/docs/a.txt", vfs.KindFile, nil, vfs.Attrs{}, 0); err != nil {
		t.Fatal(err)
	}
	dirEntry, err := vol.Open("/docs")
	if err != nil {
		t.Fatal(err)
	}
	dirNode := &Node{vol: vol, entry: dirEntry, logger: root.logger}

	stream, errno := dirNode.Readdir(context.Background())
	if errno != 0 {
		t.Fatalf("readdir errno = %v", errno)
	}
	var names []string
	for stream.HasNext() {
		e, errno := stream.Next()
		if errno != 0 {
			t.Fatalf("next errno = %v", errno)
		}
		names = append(names, e.Name)
	}
	if len(names) != 1 || names[0] != "a.txt" {
		t.Errorf("names = %v, want [a.txt] (dot entries belong to the kernel)", names)
	}
}

func TestFileHandleReadWrite(t *testing.T) {
	vol, root := newTestNode(t)
	entry, err := vol.Create("/a.txt", vfs.KindFile, nil, vfs.Attrs{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	h := &fileHandle{node: &Node{vol: vol, entry: entry, logger: root.logger}}
	ctx := context.Background()

	n, errno := h.Write(ctx, []byte("hello"), 0)
	if errno != 0 || n != 5 {
		t.Fatalf("write = (%d, %v), want (5, 0)", n, errno)
	}

	dest := make([]byte, 5)
	res, errno := h.Read(ctx, dest, 0)
	if errno != 0 {
		t.Fatalf("read errno = %v", errno)
	}
	got, _ := res.Bytes(nil)
	if !bytes.Equal(got, []byte("hello")) {
		t.Errorf("read = %q, want hello", got)
	}

	// Reading at EOF is a zero-byte success, not an error.
	res, errno = h.Read(ctx, dest, 5)
	if errno != 0 {
		t.Fatalf("read at EOF errno = %v", errno)
	}
	if got, _ := res.Bytes(nil); len(got) != 0 {
		t.Errorf("read at EOF = %q, want empty", got)
	}

	if errno := h.Flush(ctx); errno != 0 {
		t.Errorf("flush errno = %v", errno)
	}
	if errno := h.Fsync(ctx, 0); errno != 0 {
		t.Errorf("fsync errno = %v", errno)
	}
}

func TestFileHandleAppendOnly(t *testing.T) {
	vol, root := newTestNode(t)
	entry, err := vol.Create("/a.txt", vfs.KindFile, nil, vfs.Attrs{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	h := &fileHandle{node: &Node{vol: vol, entry: entry, logger: root.logger}, appendOnly: true}
	ctx := context.Background()

	h.Write(ctx, []byte("hello"), 0)
	// The offset is ignored for append handles.
	h.Write(ctx, []byte(" world"), 0)

	if got := entry.Size(); got != 11 {
		t.Errorf("size = %d, want 11", got)
	}
}

func TestWriteOnReadOnlyVolume(t *testing.T) {
	vol, root := newTestNode(t)
	entry, err := vol.Create("/a.txt", vfs.KindFile, nil, vfs.Attrs{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	vol.SetReadOnly(true)

	h := &fileHandle{node: &Node{vol: vol, entry: entry, logger: root.logger}}
	if _, errno := h.Write(context.Background(), []byte("x"), 0); errno != syscall.EROFS {
		t.Errorf("errno = %v, want EROFS", errno)
	}
}
