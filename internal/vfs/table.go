package vfs

import (
	"sync"
	"time"
)

// Volume sizing defaults, matching the nominal geometry the store
// advertises to hosts: a fixed node quota with a per-node size used
// only for capacity reporting.
const (
	DefaultNodeCapacity = 1024
	DefaultMaxFileSize  = 16 << 20
)

// DefaultRootSecurity is the security blob assigned to the root folder
// when the host supplies none. The core treats it as opaque bytes; the
// SDDL text is only a convention shared with Windows-descriptor hosts.
var DefaultRootSecurity = SecurityBlob("O:BAG:BAD:P(A;;FA;;;SY)(A;;FA;;;BA)(A;;FA;;;WD)")

// Counters is the volume usage aggregate consulted by create and remove.
type Counters struct {
	TotalBytes   uint64
	NodeCapacity uint64
	UsedNodes    uint64
}

// Table is the central path-to-entry mapping. One coarse lock (the
// namespace lock) guards the key set, the counters and the read-only
// flag; entry content is guarded by each entry's own lock, so file I/O
// on distinct entries never contends here.
type Table struct {
	mu           sync.RWMutex
	entries      map[Path]*Entry
	readOnly     bool
	nodeCapacity uint64
	maxFileSize  uint64
}

// NewTable creates a table holding only the root folder. A zero
// nodeCapacity falls back to DefaultNodeCapacity.
func NewTable(nodeCapacity uint64, rootSecurity SecurityBlob) *Table {
	if nodeCapacity == 0 {
		nodeCapacity = DefaultNodeCapacity
	}
	if rootSecurity == nil {
		rootSecurity = DefaultRootSecurity
	}
	t := &Table{
		entries:      make(map[Path]*Entry),
		nodeCapacity: nodeCapacity,
		maxFileSize:  DefaultMaxFileSize,
	}
	t.entries[RootPath] = newFolder(RootPath, Attrs{}, rootSecurity, time.Now())
	return t
}

// ReadOnly reports whether mutating operations are rejected.
func (t *Table) ReadOnly() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.readOnly
}

// SetReadOnly toggles the volume between read-write and read-only.
func (t *Table) SetReadOnly(readOnly bool) {
	t.mu.Lock()
	t.readOnly = readOnly
	t.mu.Unlock()
}

// Counters returns a usage snapshot.
func (t *Table) Counters() Counters {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Counters{
		TotalBytes:   t.nodeCapacity * t.maxFileSize,
		NodeCapacity: t.nodeCapacity,
		UsedNodes:    uint64(len(t.entries)),
	}
}

// Len returns the number of entries, root included.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Create inserts a new folder or file entry at path. File entries start
// with an extent of exactly allocationSize zero bytes.
func (t *Table) Create(path Path, kind Kind, security SecurityBlob, attrs Attrs, allocationSize int64) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.readOnly {
		return nil, ErrReadOnly
	}
	if _, ok := t.entries[path]; ok {
		return nil, ErrExists
	}
	if err := t.checkParentLocked(path); err != nil {
		return nil, err
	}
	if uint64(len(t.entries)) >= t.nodeCapacity {
		return nil, ErrQuotaExceeded
	}

	var entry *Entry
	now := time.Now()
	switch kind {
	case KindFolder:
		entry = newFolder(path, attrs, security, now)
	default:
		entry = newFile(path, attrs, security, allocationSize, now)
	}
	t.entries[path] = entry
	return entry, nil
}

// InsertRecord inserts a synthetic read-only record entry at path. Hosts
// use records to expose sidecar metadata next to real files; the listing
// filter decides whether they show up in enumeration.
func (t *Table) InsertRecord(path Path, security SecurityBlob, payload []byte) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[path]; ok {
		return nil, ErrExists
	}
	if err := t.checkParentLocked(path); err != nil {
		return nil, err
	}
	if uint64(len(t.entries)) >= t.nodeCapacity {
		return nil, ErrQuotaExceeded
	}

	entry := newRecord(path, Attrs{}, security, payload, time.Now())
	t.entries[path] = entry
	return entry, nil
}

// checkParentLocked enforces the no-orphan invariant: every non-root
// path's immediate parent must exist and be a folder.
func (t *Table) checkParentLocked(path Path) error {
	if path.IsRoot() {
		return ErrExists
	}
	parent, ok := t.entries[path.Parent()]
	if !ok {
		return ErrParentNotFound
	}
	if parent.Kind() != KindFolder {
		return ErrNotADirectory
	}
	return nil
}

// Open returns the shared entry at path.
func (t *Table) Open(path Path) (*Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.entries[path]
	if !ok {
		return nil, ErrNotFound
	}
	return entry, nil
}

// CanDelete pre-flights a remove without performing it: it fails with
// ErrNotEmpty when path still has direct children. Hosts use it for the
// prepare phase of a prepare/commit delete.
func (t *Table) CanDelete(path Path) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if path.IsRoot() {
		return ErrAccessDenied
	}
	if _, ok := t.entries[path]; !ok {
		return ErrNotFound
	}
	return t.checkEmptyLocked(path)
}

// Remove deletes the entry at path. Folders must be empty; the root is
// never removable.
func (t *Table) Remove(path Path) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if path.IsRoot() {
		return ErrAccessDenied
	}
	if _, ok := t.entries[path]; !ok {
		return ErrNotFound
	}
	if err := t.checkEmptyLocked(path); err != nil {
		return err
	}
	delete(t.entries, path)
	return nil
}

func (t *Table) checkEmptyLocked(path Path) error {
	for candidate := range t.entries {
		if candidate.IsChildOf(path) {
			return ErrNotEmpty
		}
	}
	return nil
}

// Rename moves the entry at old to new, carrying every descendant along.
// A folder at the target is never silently replaced; a file at the
// target is replaced only when replaceIfExists is set. The whole subtree
// moves under the namespace lock, so no caller observes a half-moved
// tree.
func (t *Table) Rename(old, new Path, replaceIfExists bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.readOnly {
		return ErrReadOnly
	}
	if _, ok := t.entries[old]; !ok {
		return ErrNotFound
	}
	if old == new {
		return nil
	}
	if target, ok := t.entries[new]; ok {
		if target.Kind() == KindFolder {
			return ErrAccessDenied
		}
		if !replaceIfExists {
			return ErrExists
		}
		delete(t.entries, new)
	}

	// Collect first, then move: the collection cannot fail, so the move
	// loop below never applies partially.
	moved := make([]Path, 0, 8)
	for candidate := range t.entries {
		if candidate == old || old.IsAncestorOf(candidate) {
			moved = append(moved, candidate)
		}
	}
	for _, oldKey := range moved {
		newKey, _ := oldKey.Rebase(old, new)
		entry := t.entries[oldKey]
		delete(t.entries, oldKey)
		entry.setPath(newKey)
		t.entries[newKey] = entry
	}
	return nil
}
