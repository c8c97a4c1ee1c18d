// Package vfs implements an in-memory hierarchical file store: a mutable
// tree of files and folders addressed by absolute path, supporting atomic
// creation, content read/write with three write-extension policies,
// allocation-unit-rounded resizing, cascading subtree rename and
// marker-resumable directory enumeration under concurrent access.
package vfs

import (
	"fmt"
	"strings"
)

// Path is a normalized, case-sensitive absolute path ("/", "/docs/a.txt").
// Paths are value types: two equal Path values denote the same tree node.
type Path string

// RootPath is the fixed sentinel path of the volume root. It always exists
// and can never be removed.
const RootPath = Path("/")

// ParsePath normalizes a slash-separated path into a Path. Empty input,
// relative paths and "." / ".." components are rejected.
func ParsePath(s string) (Path, error) {
	if s == "" || s[0] != '/' {
		return "", fmt.Errorf("path %q is not absolute", s)
	}
	if s == "/" {
		return RootPath, nil
	}
	parts := strings.Split(s[1:], "/")
	for _, part := range parts {
		if part == "" {
			return "", fmt.Errorf("path %q has an empty component", s)
		}
		if part == "." || part == ".." {
			return "", fmt.Errorf("path %q has a relative component", s)
		}
	}
	return Path("/" + strings.Join(parts, "/")), nil
}

// MustParsePath is ParsePath for statically known paths; it panics on
// malformed input.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// IsRoot reports whether p is the volume root.
func (p Path) IsRoot() bool { return p == RootPath }

// Components returns the path components in order. The root has none.
func (p Path) Components() []string {
	if p.IsRoot() {
		return nil
	}
	return strings.Split(string(p[1:]), "/")
}

// Depth returns the number of components.
func (p Path) Depth() int {
	if p.IsRoot() {
		return 0
	}
	return strings.Count(string(p), "/")
}

// Base returns the last component, or "/" for the root.
func (p Path) Base() string {
	if p.IsRoot() {
		return "/"
	}
	i := strings.LastIndexByte(string(p), '/')
	return string(p[i+1:])
}

// Parent returns the immediate parent path. The root is its own parent.
func (p Path) Parent() Path {
	if p.IsRoot() {
		return RootPath
	}
	i := strings.LastIndexByte(string(p), '/')
	if i == 0 {
		return RootPath
	}
	return p[:i]
}

// Join appends one component to p.
func (p Path) Join(name string) Path {
	if p.IsRoot() {
		return Path("/" + name)
	}
	return Path(string(p) + "/" + name)
}

// IsAncestorOf reports whether other lies strictly below p in the tree.
// The match respects component boundaries: "/foo" is an ancestor of
// "/foo/bar" but not of "/foobar".
func (p Path) IsAncestorOf(other Path) bool {
	if p.IsRoot() {
		return !other.IsRoot()
	}
	if len(other) <= len(p) {
		return false
	}
	return strings.HasPrefix(string(other), string(p)) && other[len(p)] == '/'
}

// IsChildOf reports whether p is an immediate child of parent.
func (p Path) IsChildOf(parent Path) bool {
	return !p.IsRoot() && p.Parent() == parent
}

// Rebase rewrites the old ancestor prefix of p to newPrefix. The second
// return value is false when p is neither old itself nor below it.
func (p Path) Rebase(old, newPrefix Path) (Path, bool) {
	if p == old {
		return newPrefix, true
	}
	if !old.IsAncestorOf(p) {
		return p, false
	}
	if old.IsRoot() {
		return newPrefix + p, true
	}
	if newPrefix.IsRoot() {
		return p[len(old):], true
	}
	return newPrefix + p[len(old):], true
}
