package vfs

import (
	"sync"
	"time"
)

// Kind discriminates the closed set of entry variants.
type Kind int

const (
	// KindFolder is a directory node.
	KindFolder Kind = iota

	// KindFile is a regular file node backed by an Extent.
	KindFile

	// KindRecord is a synthetic, read-only metadata node a host may expose
	// alongside real files (a sidecar). Records carry an immutable payload
	// and are excluded from directory listings by the host's list filter.
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindFile:
		return "file"
	case KindRecord:
		return "record"
	}
	return "unknown"
}

// Attribute flags carried by every entry.
const (
	AttrReadOnly  uint32 = 0x0001
	AttrHidden    uint32 = 0x0002
	AttrDirectory uint32 = 0x0010
	AttrArchive   uint32 = 0x0020
	AttrNormal    uint32 = 0x0080
)

// recordNominalSize is the fixed size reported for record entries
// regardless of their payload length.
const recordNominalSize = 1024

// Attrs is the per-entry metadata block: an attribute bitmask plus the
// four filesystem timestamps.
type Attrs struct {
	Attributes     uint32
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
}

// setAllTimes stamps every timestamp with now.
func (a *Attrs) setAllTimes(now time.Time) {
	a.CreationTime = now
	a.LastAccessTime = now
	a.LastWriteTime = now
	a.ChangeTime = now
}

// SecurityBlob is an opaque security descriptor. The core never
// interprets its contents; merging is delegated to an external Merger.
type SecurityBlob []byte

// Clone returns an independent copy of the blob.
func (b SecurityBlob) Clone() SecurityBlob {
	if b == nil {
		return nil
	}
	out := make(SecurityBlob, len(b))
	copy(out, b)
	return out
}

// Merger combines a stored security blob with a modification blob. The
// mask selects which parts of the descriptor the modification replaces;
// its semantics belong to the host and are opaque to the core.
type Merger func(current SecurityBlob, mask uint32, modification SecurityBlob) (SecurityBlob, error)

// Info is a point-in-time metadata snapshot of one entry, decoupled from
// the entry's lock. Directory enumeration and the host adapter consume it.
type Info struct {
	Attrs          Attrs
	FileSize       int64
	AllocationSize int64
}

// Entry is one node of the tree: a folder, a file or a synthetic record.
// The Table owns all entries and hands out shared pointers; each entry
// carries its own lock so content I/O on distinct files never contends.
type Entry struct {
	mu sync.RWMutex

	path     Path
	kind     Kind
	security SecurityBlob
	attrs    Attrs

	// extent backs file content; nil unless kind == KindFile.
	extent *Extent

	// payload is the immutable content of a record entry.
	payload []byte
}

func newFolder(path Path, attrs Attrs, security SecurityBlob, now time.Time) *Entry {
	attrs.Attributes |= AttrDirectory
	attrs.setAllTimes(now)
	return &Entry{path: path, kind: KindFolder, security: security, attrs: attrs}
}

func newFile(path Path, attrs Attrs, security SecurityBlob, allocationSize int64, now time.Time) *Entry {
	attrs.Attributes |= AttrArchive
	attrs.setAllTimes(now)
	return &Entry{
		path:     path,
		kind:     KindFile,
		security: security,
		attrs:    attrs,
		extent:   NewExtent(allocationSize),
	}
}

func newRecord(path Path, attrs Attrs, security SecurityBlob, payload []byte, now time.Time) *Entry {
	attrs.Attributes |= AttrHidden
	attrs.setAllTimes(now)
	return &Entry{path: path, kind: KindRecord, security: security, attrs: attrs, payload: payload}
}

// Path returns the entry's current path. It is rewritten in place by
// rename, so two reads may legitimately disagree across a concurrent move.
func (e *Entry) Path() Path {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.path
}

// Kind returns the entry variant. The kind never changes after creation.
func (e *Entry) Kind() Kind { return e.kind }

// Attrs returns a copy of the entry's metadata block.
func (e *Entry) Attrs() Attrs {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.attrs
}

// Info returns a consistent metadata snapshot.
func (e *Entry) Info() Info {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.infoLocked()
}

func (e *Entry) infoLocked() Info {
	info := Info{Attrs: e.attrs}
	switch e.kind {
	case KindFile:
		info.FileSize = e.extent.Size()
		info.AllocationSize = e.extent.AllocationSize()
	case KindRecord:
		info.FileSize = recordNominalSize
		info.AllocationSize = recordNominalSize
	}
	return info
}

// Size returns the logical content size (zero for folders).
func (e *Entry) Size() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.kind == KindFile {
		return e.extent.Size()
	}
	if e.kind == KindRecord {
		return int64(len(e.payload))
	}
	return 0
}

// setPath rewrites the stored path. Caller holds the namespace lock;
// the entry lock still guards against concurrent metadata readers.
func (e *Entry) setPath(p Path) {
	e.mu.Lock()
	e.path = p
	e.mu.Unlock()
}
