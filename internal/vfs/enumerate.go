package vfs

import (
	"sort"
)

// DirEntry is one directory listing element.
type DirEntry struct {
	Name string
	Info Info
}

// ListFilter decides whether a child shows up in directory listings.
// A nil filter keeps everything. Hosts use it to hide sidecar records
// that share a naming convention with their companion files.
type ListFilter func(name string, kind Kind) bool

// ListDirectory enumerates the immediate children of dir in ascending
// lexicographic name order. Non-root directories are prefixed with the
// synthetic "." and ".." entries. When marker is non-empty, only entries
// whose name sorts strictly after the marker are returned, which makes
// the listing resumable at any split point with no duplicates and no
// omissions.
//
// The scan holds the namespace lock throughout so a concurrent rename
// can never yield a half-moved view of the directory.
func (t *Table) ListDirectory(dir *Entry, marker string, filter ListFilter) ([]DirEntry, error) {
	if dir.Kind() != KindFolder {
		return nil, ErrNotADirectory
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	dirPath := dir.Path()
	var out []DirEntry

	if !dirPath.IsRoot() {
		// The parent is guaranteed present: creation enforces it and
		// rename moves whole subtrees.
		parent := t.entries[dirPath.Parent()]
		out = append(out,
			DirEntry{Name: ".", Info: dir.Info()},
			DirEntry{Name: "..", Info: parent.Info()},
		)
	}

	for candidate, entry := range t.entries {
		if !candidate.IsChildOf(dirPath) {
			continue
		}
		name := candidate.Base()
		if filter != nil && !filter(name, entry.Kind()) {
			continue
		}
		out = append(out, DirEntry{Name: name, Info: entry.Info()})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	if marker != "" {
		i := sort.Search(len(out), func(i int) bool { return out[i].Name > marker })
		out = out[i:]
	}
	return out, nil
}
