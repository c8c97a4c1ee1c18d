package vfs

import (
	"errors"
	"testing"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()
	return NewTable(0, nil)
}

func mustCreate(t *testing.T, table *Table, path Path, kind Kind) *Entry {
	t.Helper()
	entry, err := table.Create(path, kind, nil, Attrs{}, 0)
	if err != nil {
		t.Fatalf("Create(%q, %v) failed: %v", path, kind, err)
	}
	return entry
}

func TestTableStartsWithRoot(t *testing.T) {
	table := newTestTable(t)

	root, err := table.Open(RootPath)
	if err != nil {
		t.Fatalf("root missing: %v", err)
	}
	if root.Kind() != KindFolder {
		t.Errorf("root kind = %v, want folder", root.Kind())
	}
	if root.Attrs().Attributes&AttrDirectory == 0 {
		t.Error("root lacks the directory attribute")
	}
	if table.Len() != 1 {
		t.Errorf("entry count = %d, want 1", table.Len())
	}
}

func TestTableCreate(t *testing.T) {
	table := newTestTable(t)

	mustCreate(t, table, "/docs", KindFolder)
	file := mustCreate(t, table, "/docs/a.txt", KindFile)

	if file.Kind() != KindFile {
		t.Errorf("kind = %v, want file", file.Kind())
	}
	if file.Attrs().Attributes&AttrArchive == 0 {
		t.Error("new file lacks the archive attribute")
	}

	if _, err := table.Create("/docs", KindFolder, nil, Attrs{}, 0); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate create: err = %v, want ErrExists", err)
	}
	if _, err := table.Create("/missing/b.txt", KindFile, nil, Attrs{}, 0); !errors.Is(err, ErrParentNotFound) {
		t.Errorf("orphan create: err = %v, want ErrParentNotFound", err)
	}
	if _, err := table.Create("/docs/a.txt/c", KindFile, nil, Attrs{}, 0); !errors.Is(err, ErrNotADirectory) {
		t.Errorf("create under file: err = %v, want ErrNotADirectory", err)
	}
	if _, err := table.Create(RootPath, KindFolder, nil, Attrs{}, 0); !errors.Is(err, ErrExists) {
		t.Errorf("create root: err = %v, want ErrExists", err)
	}
}

func TestTableCreateInitialAllocation(t *testing.T) {
	table := newTestTable(t)

	file, err := table.Create("/a.bin", KindFile, nil, Attrs{}, 10000)
	if err != nil {
		t.Fatal(err)
	}
	info := file.Info()
	if info.AllocationSize != 10000 {
		t.Errorf("allocation = %d, want exactly 10000 (explicit sizes are not rounded)", info.AllocationSize)
	}
	if info.FileSize != 0 {
		t.Errorf("file size = %d, want 0", info.FileSize)
	}
}

func TestTableQuota(t *testing.T) {
	table := NewTable(3, nil) // root + 2

	mustCreate(t, table, "/a", KindFile)
	mustCreate(t, table, "/b", KindFile)

	if _, err := table.Create("/c", KindFile, nil, Attrs{}, 0); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}

	// Removing an entry frees its slot.
	if err := table.Remove("/a"); err != nil {
		t.Fatal(err)
	}
	mustCreate(t, table, "/c", KindFile)

	c := table.Counters()
	if c.UsedNodes != 3 || c.NodeCapacity != 3 {
		t.Errorf("counters = %+v, want 3/3 used", c)
	}
}

func TestTableReadOnly(t *testing.T) {
	table := newTestTable(t)
	mustCreate(t, table, "/a", KindFile)
	table.SetReadOnly(true)

	if _, err := table.Create("/b", KindFile, nil, Attrs{}, 0); !errors.Is(err, ErrReadOnly) {
		t.Errorf("create: err = %v, want ErrReadOnly", err)
	}
	if err := table.Rename("/a", "/b", false); !errors.Is(err, ErrReadOnly) {
		t.Errorf("rename: err = %v, want ErrReadOnly", err)
	}

	// Reads still work.
	if _, err := table.Open("/a"); err != nil {
		t.Errorf("open in read-only mode failed: %v", err)
	}

	table.SetReadOnly(false)
	mustCreate(t, table, "/b", KindFile)
}

func TestTableOpen(t *testing.T) {
	table := newTestTable(t)
	created := mustCreate(t, table, "/a", KindFile)

	opened, err := table.Open("/a")
	if err != nil {
		t.Fatal(err)
	}
	if opened != created {
		t.Error("open returned a different entry than create")
	}
	if _, err := table.Open("/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestTableRemove(t *testing.T) {
	table := newTestTable(t)
	mustCreate(t, table, "/docs", KindFolder)
	mustCreate(t, table, "/docs/a.txt", KindFile)

	if err := table.Remove("/docs"); !errors.Is(err, ErrNotEmpty) {
		t.Errorf("remove populated folder: err = %v, want ErrNotEmpty", err)
	}
	if err := table.CanDelete("/docs"); !errors.Is(err, ErrNotEmpty) {
		t.Errorf("can-delete populated folder: err = %v, want ErrNotEmpty", err)
	}
	if err := table.Remove(RootPath); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("remove root: err = %v, want ErrAccessDenied", err)
	}
	if err := table.Remove("/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("remove missing: err = %v, want ErrNotFound", err)
	}
	if err := table.CanDelete("/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("can-delete missing: err = %v, want ErrNotFound", err)
	}
	if err := table.CanDelete(RootPath); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("can-delete root: err = %v, want ErrAccessDenied", err)
	}

	if err := table.Remove("/docs/a.txt"); err != nil {
		t.Fatal(err)
	}
	if err := table.CanDelete("/docs"); err != nil {
		t.Errorf("can-delete emptied folder: %v", err)
	}
	if err := table.Remove("/docs"); err != nil {
		t.Fatal(err)
	}
	if table.Len() != 1 {
		t.Errorf("entry count = %d, want 1", table.Len())
	}
}

// Emptiness must consider only immediate children, and must not be
// fooled by sibling names sharing a string prefix.
func TestTableCanDeletePrefixSibling(t *testing.T) {
	table := newTestTable(t)
	mustCreate(t, table, "/foo", KindFolder)
	mustCreate(t, table, "/foobar", KindFile)

	if err := table.CanDelete("/foo"); err != nil {
		t.Errorf("can-delete /foo with sibling /foobar: %v", err)
	}
	if err := table.Remove("/foo"); err != nil {
		t.Errorf("remove /foo with sibling /foobar: %v", err)
	}
}

func TestTableRenameFile(t *testing.T) {
	table := newTestTable(t)
	entry := mustCreate(t, table, "/a.txt", KindFile)

	if err := table.Rename("/a.txt", "/b.txt", false); err != nil {
		t.Fatal(err)
	}
	if _, err := table.Open("/a.txt"); !errors.Is(err, ErrNotFound) {
		t.Error("old path still resolves")
	}
	moved, err := table.Open("/b.txt")
	if err != nil {
		t.Fatal(err)
	}
	if moved != entry {
		t.Error("rename produced a different entry")
	}
	if moved.Path() != "/b.txt" {
		t.Errorf("stored path = %q, want /b.txt", moved.Path())
	}
}

func TestTableRenameSubtree(t *testing.T) {
	table := newTestTable(t)
	mustCreate(t, table, "/a", KindFolder)
	mustCreate(t, table, "/a/x", KindFolder)
	mustCreate(t, table, "/a/x/y", KindFile)

	if err := table.Rename("/a", "/b", false); err != nil {
		t.Fatal(err)
	}

	for _, old := range []Path{"/a", "/a/x", "/a/x/y"} {
		if _, err := table.Open(old); !errors.Is(err, ErrNotFound) {
			t.Errorf("old path %q still resolves", old)
		}
	}
	for _, moved := range []Path{"/b", "/b/x", "/b/x/y"} {
		entry, err := table.Open(moved)
		if err != nil {
			t.Errorf("new path %q missing: %v", moved, err)
			continue
		}
		if entry.Path() != moved {
			t.Errorf("stored path = %q, want %q", entry.Path(), moved)
		}
	}
	if table.Len() != 4 {
		t.Errorf("entry count = %d, want 4 (no loss, no duplicates)", table.Len())
	}
}

// A subtree move must not drag along siblings whose names merely share a
// string prefix with the moved folder.
func TestTableRenamePrefixSibling(t *testing.T) {
	table := newTestTable(t)
	mustCreate(t, table, "/foo", KindFolder)
	mustCreate(t, table, "/foo/inner", KindFile)
	mustCreate(t, table, "/foobar", KindFile)

	if err := table.Rename("/foo", "/moved", false); err != nil {
		t.Fatal(err)
	}
	if _, err := table.Open("/foobar"); err != nil {
		t.Errorf("/foobar was dragged along by the rename: %v", err)
	}
	if _, err := table.Open("/moved/inner"); err != nil {
		t.Errorf("/foo/inner did not move: %v", err)
	}
}

func TestTableRenameTargetExists(t *testing.T) {
	table := newTestTable(t)
	mustCreate(t, table, "/src.txt", KindFile)
	mustCreate(t, table, "/file.txt", KindFile)
	mustCreate(t, table, "/dir", KindFolder)

	// A folder target is never replaced, replace flag or not.
	if err := table.Rename("/src.txt", "/dir", true); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("folder target: err = %v, want ErrAccessDenied", err)
	}

	// A file target needs the replace flag.
	if err := table.Rename("/src.txt", "/file.txt", false); !errors.Is(err, ErrExists) {
		t.Errorf("file target without replace: err = %v, want ErrExists", err)
	}
	if err := table.Rename("/src.txt", "/file.txt", true); err != nil {
		t.Fatal(err)
	}
	if _, err := table.Open("/src.txt"); !errors.Is(err, ErrNotFound) {
		t.Error("source still resolves after replacing rename")
	}
	if table.Len() != 3 {
		t.Errorf("entry count = %d, want 3 (replaced target is gone)", table.Len())
	}
}

func TestTableRenameMissingSource(t *testing.T) {
	table := newTestTable(t)
	if err := table.Rename("/missing", "/b", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestTableInsertRecord(t *testing.T) {
	table := newTestTable(t)
	mustCreate(t, table, "/a.txt", KindFile)

	record, err := table.InsertRecord("/a.txt.meta", nil, []byte(`{"synced":true}`))
	if err != nil {
		t.Fatal(err)
	}
	if record.Kind() != KindRecord {
		t.Errorf("kind = %v, want record", record.Kind())
	}
	if record.Attrs().Attributes&AttrHidden == 0 {
		t.Error("record lacks the hidden attribute")
	}
	info := record.Info()
	if info.FileSize != recordNominalSize {
		t.Errorf("reported size = %d, want %d", info.FileSize, recordNominalSize)
	}

	if _, err := table.InsertRecord("/a.txt.meta", nil, nil); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate record: err = %v, want ErrExists", err)
	}
}
