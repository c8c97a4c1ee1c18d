package vfs

import "errors"

// Error kinds returned by the core. Callers are expected to match them
// with errors.Is and translate them at the host boundary (see
// internal/fuse for the errno mapping).
var (
	// ErrNotFound is returned when an operation targets a path with no entry.
	ErrNotFound = errors.New("entry not found")

	// ErrExists is returned by create, and by rename without replace, when
	// the target path is already occupied.
	ErrExists = errors.New("entry already exists")

	// ErrParentNotFound is returned by create when the parent path is absent.
	ErrParentNotFound = errors.New("parent directory not found")

	// ErrNotEmpty is returned by remove and can-delete when the target
	// folder still has children.
	ErrNotEmpty = errors.New("directory not empty")

	// ErrNotAFile is returned when a content operation targets a folder.
	ErrNotAFile = errors.New("not a file")

	// ErrNotADirectory is returned when a directory operation targets a file.
	ErrNotADirectory = errors.New("not a directory")

	// ErrReadOnly is returned by any mutating operation while the volume
	// is mounted read-only.
	ErrReadOnly = errors.New("volume is read-only")

	// ErrQuotaExceeded is returned by create when the node capacity is
	// exhausted.
	ErrQuotaExceeded = errors.New("volume node quota exceeded")

	// ErrEndOfFile is returned by read when the offset is at or past the
	// logical file size.
	ErrEndOfFile = errors.New("end of file")

	// ErrAccessDenied is returned when a rename would silently replace a
	// folder, and by writes to synthetic record entries.
	ErrAccessDenied = errors.New("access denied")

	// ErrSecurityMerge wraps failures reported by the externally supplied
	// security descriptor merge function.
	ErrSecurityMerge = errors.New("security descriptor merge failed")
)
