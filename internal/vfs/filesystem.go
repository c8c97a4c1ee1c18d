package vfs

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// CleanupFlags select the independent post-close actions applied by
// Cleanup. Multiple flags may be combined.
type CleanupFlags uint32

const (
	// CleanupSetAllocationSize compacts the allocation down to the
	// smallest allocation-unit multiple covering the file size.
	CleanupSetAllocationSize CleanupFlags = 1 << iota

	// CleanupSetArchiveBit sets the archive attribute.
	CleanupSetArchiveBit

	// CleanupSetLastAccessTime refreshes the last-access timestamp.
	CleanupSetLastAccessTime

	// CleanupSetLastWriteTime refreshes the last-write timestamp.
	CleanupSetLastWriteTime

	// CleanupSetChangeTime refreshes the change timestamp.
	CleanupSetChangeTime
)

// BasicInfo carries the mutable metadata accepted by SetBasicInfo.
// Zero-valued fields leave the corresponding entry state unchanged.
type BasicInfo struct {
	Attributes     uint32
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
}

// VolumeInfo is the capacity snapshot reported to hosts.
type VolumeInfo struct {
	TotalBytes uint64
	FreeBytes  uint64
	Label      string
	Serial     string
}

// Option configures a Filesystem.
type Option func(*Filesystem)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(f *Filesystem) { f.logger = logger }
}

// WithNodeCapacity caps the number of entries, root included.
func WithNodeCapacity(n uint64) Option {
	return func(f *Filesystem) { f.nodeCapacity = n }
}

// WithReadOnly mounts the volume read-only.
func WithReadOnly(readOnly bool) Option {
	return func(f *Filesystem) { f.readOnly = readOnly }
}

// WithRootSecurity sets the root folder's security blob.
func WithRootSecurity(blob SecurityBlob) Option {
	return func(f *Filesystem) { f.rootSecurity = blob }
}

// WithSecurityMerger installs the externally supplied descriptor merge
// function used by SetSecurity. Without one, SetSecurity replaces the
// stored blob wholesale.
func WithSecurityMerger(m Merger) Option {
	return func(f *Filesystem) { f.merger = m }
}

// WithListFilter installs the directory listing predicate.
func WithListFilter(filter ListFilter) Option {
	return func(f *Filesystem) { f.listFilter = filter }
}

// Filesystem composes the path table, the security merge hook and the
// volume identity into the operation set a host driver calls.
type Filesystem struct {
	table      *Table
	merger     Merger
	listFilter ListFilter
	logger     *slog.Logger
	label      string
	serial     string

	// construction-time knobs
	nodeCapacity uint64
	readOnly     bool
	rootSecurity SecurityBlob
}

// New creates an empty volume containing only the root folder.
func New(label string, opts ...Option) *Filesystem {
	f := &Filesystem{
		logger: slog.Default(),
		label:  label,
		serial: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.table = NewTable(f.nodeCapacity, f.rootSecurity)
	f.table.SetReadOnly(f.readOnly)
	f.logger.Info("volume created",
		"label", label,
		"serial", f.serial,
		"node_capacity", f.table.Counters().NodeCapacity,
		"read_only", f.readOnly)
	return f
}

// Table exposes the underlying path table.
func (f *Filesystem) Table() *Table { return f.table }

// ReadOnly reports the volume mode.
func (f *Filesystem) ReadOnly() bool { return f.table.ReadOnly() }

// SetReadOnly switches the volume mode, as a host does when remounting.
func (f *Filesystem) SetReadOnly(readOnly bool) {
	f.logger.Info("volume mode changed", "read_only", readOnly)
	f.table.SetReadOnly(readOnly)
}

// VolumeInfo reports capacity, label and serial. Free bytes derive from
// the unused node quota.
func (f *Filesystem) VolumeInfo() VolumeInfo {
	c := f.table.Counters()
	return VolumeInfo{
		TotalBytes: c.TotalBytes,
		FreeBytes:  (c.NodeCapacity - c.UsedNodes) * DefaultMaxFileSize,
		Label:      f.label,
		Serial:     f.serial,
	}
}

// SetLabel renames the volume.
func (f *Filesystem) SetLabel(label string) {
	f.logger.Info("volume relabeled", "label", label)
	f.label = label
}

// Create inserts a new folder or file and returns its entry handle.
func (f *Filesystem) Create(path Path, kind Kind, security SecurityBlob, attrs Attrs, allocationSize int64) (*Entry, error) {
	entry, err := f.table.Create(path, kind, security, attrs, allocationSize)
	observe("create", err)
	if err != nil {
		f.logger.Debug("create failed", "path", path, "kind", kind, "error", err)
		return nil, err
	}
	f.logger.Debug("create", "path", path, "kind", kind, "allocation_size", allocationSize)
	return entry, nil
}

// Open returns the entry handle at path without mutating anything.
func (f *Filesystem) Open(path Path) (*Entry, error) {
	entry, err := f.table.Open(path)
	observe("open", err)
	if err != nil {
		f.logger.Debug("open failed", "path", path, "error", err)
		return nil, err
	}
	return entry, nil
}

// Overwrite resets a file opened with truncate semantics: attributes are
// merged or replaced, the allocation is resized to exactly
// allocationSize, and all four timestamps are refreshed.
func (f *Filesystem) Overwrite(entry *Entry, attrs uint32, replaceAttrs bool, allocationSize int64) error {
	if f.table.ReadOnly() {
		return ErrReadOnly
	}
	if entry.Kind() != KindFile {
		return ErrNotAFile
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	attrs |= AttrArchive
	if replaceAttrs {
		entry.attrs.Attributes = attrs
	} else {
		entry.attrs.Attributes |= attrs
	}
	entry.extent.SetAllocationSize(allocationSize)
	entry.attrs.setAllTimes(time.Now())

	f.logger.Debug("overwrite", "path", entry.path, "allocation_size", allocationSize)
	return nil
}

// Cleanup applies the flag-gated post-close actions to a file entry.
// Folder and record entries only honor the timestamp flags.
func (f *Filesystem) Cleanup(entry *Entry, flags CleanupFlags) {
	if f.table.ReadOnly() {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.kind == KindFile {
		if flags&CleanupSetAllocationSize != 0 {
			entry.extent.AdaptAllocationSize(entry.extent.Size())
		}
		if flags&CleanupSetArchiveBit != 0 {
			entry.attrs.Attributes |= AttrArchive
		}
	}
	now := time.Now()
	if flags&CleanupSetLastAccessTime != 0 {
		entry.attrs.LastAccessTime = now
	}
	if flags&CleanupSetLastWriteTime != 0 {
		entry.attrs.LastWriteTime = now
	}
	if flags&CleanupSetChangeTime != 0 {
		entry.attrs.ChangeTime = now
	}
}

// Read copies file content starting at offset into dest and returns the
// transferred count. An offset at or past the logical size is end of
// file. Record entries serve their immutable payload.
func (f *Filesystem) Read(entry *Entry, dest []byte, offset int64) (int, error) {
	entry.mu.RLock()
	defer entry.mu.RUnlock()

	switch entry.kind {
	case KindFile:
		if offset >= entry.extent.Size() {
			observe("read", ErrEndOfFile)
			return 0, ErrEndOfFile
		}
		observe("read", nil)
		return copy(dest, entry.extent.Read(offset, int64(len(dest)))), nil
	case KindRecord:
		if offset >= int64(len(entry.payload)) {
			observe("read", ErrEndOfFile)
			return 0, ErrEndOfFile
		}
		observe("read", nil)
		return copy(dest, entry.payload[offset:]), nil
	}
	observe("read", ErrNotAFile)
	return 0, ErrNotAFile
}

// Write stores data at offset according to mode and returns the
// transferred count. Record entries are immutable.
func (f *Filesystem) Write(entry *Entry, data []byte, offset int64, mode WriteMode) (int, error) {
	if f.table.ReadOnly() {
		return 0, ErrReadOnly
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	switch entry.kind {
	case KindFile:
		n := entry.extent.Write(data, offset, mode)
		entry.attrs.LastWriteTime = time.Now()
		observe("write", nil)
		return int(n), nil
	case KindRecord:
		observe("write", ErrAccessDenied)
		return 0, ErrAccessDenied
	}
	observe("write", ErrNotAFile)
	return 0, ErrNotAFile
}

// SetSize resizes a file: the allocation exactly, or the logical size
// with allocation-unit growth, depending on isAllocationSize.
func (f *Filesystem) SetSize(entry *Entry, newSize int64, isAllocationSize bool) error {
	if f.table.ReadOnly() {
		return ErrReadOnly
	}
	if entry.Kind() != KindFile {
		return ErrNotAFile
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if isAllocationSize {
		entry.extent.SetAllocationSize(newSize)
	} else {
		entry.extent.SetFileSize(newSize)
	}
	entry.attrs.ChangeTime = time.Now()
	return nil
}

// SetBasicInfo updates attributes and timestamps. Zero-valued fields are
// left untouched.
func (f *Filesystem) SetBasicInfo(entry *Entry, info BasicInfo) error {
	if f.table.ReadOnly() {
		return ErrReadOnly
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if info.Attributes != 0 {
		entry.attrs.Attributes = info.Attributes
	}
	if !info.CreationTime.IsZero() {
		entry.attrs.CreationTime = info.CreationTime
	}
	if !info.LastAccessTime.IsZero() {
		entry.attrs.LastAccessTime = info.LastAccessTime
	}
	if !info.LastWriteTime.IsZero() {
		entry.attrs.LastWriteTime = info.LastWriteTime
	}
	if !info.ChangeTime.IsZero() {
		entry.attrs.ChangeTime = info.ChangeTime
	}
	return nil
}

// Rename moves old to new, cascading over the whole subtree.
func (f *Filesystem) Rename(old, new Path, replaceIfExists bool) error {
	err := f.table.Rename(old, new, replaceIfExists)
	observe("rename", err)
	if err != nil {
		f.logger.Debug("rename failed", "from", old, "to", new, "error", err)
		return err
	}
	f.logger.Debug("rename", "from", old, "to", new)
	return nil
}

// CanDelete pre-flights a remove.
func (f *Filesystem) CanDelete(path Path) error {
	if f.table.ReadOnly() {
		return ErrReadOnly
	}
	return f.table.CanDelete(path)
}

// Remove unlinks path. Folders must be empty.
func (f *Filesystem) Remove(path Path) error {
	if f.table.ReadOnly() {
		observe("remove", ErrReadOnly)
		return ErrReadOnly
	}
	err := f.table.Remove(path)
	observe("remove", err)
	if err != nil {
		f.logger.Debug("remove failed", "path", path, "error", err)
		return err
	}
	f.logger.Debug("remove", "path", path)
	return nil
}

// ListDirectory enumerates dir with the volume's listing filter.
func (f *Filesystem) ListDirectory(dir *Entry, marker string) ([]DirEntry, error) {
	entries, err := f.table.ListDirectory(dir, marker, f.listFilter)
	observe("list", err)
	return entries, err
}

// Flush is a no-op: the store is volatile and always consistent.
func (f *Filesystem) Flush(entry *Entry) error { return nil }

// GetSecurity returns a copy of the entry's security blob.
func (f *Filesystem) GetSecurity(entry *Entry) SecurityBlob {
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.security.Clone()
}

// SetSecurity merges a modification blob into the entry's stored blob
// through the host-supplied merge function. Without a merger the blob is
// replaced wholesale.
func (f *Filesystem) SetSecurity(entry *Entry, mask uint32, modification SecurityBlob) error {
	if f.table.ReadOnly() {
		return ErrReadOnly
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if f.merger == nil {
		entry.security = modification.Clone()
		return nil
	}
	merged, err := f.merger(entry.security, mask, modification)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSecurityMerge, err)
	}
	entry.security = merged
	return nil
}
