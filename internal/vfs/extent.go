package vfs

// AllocationUnit is the rounding granularity applied when a file's
// allocation grows implicitly (normal or append writes past the current
// allocation, and close-time compaction).
const AllocationUnit = 4096

// WriteMode selects whether and how a write may grow the file.
type WriteMode int

const (
	// WriteNormal writes at the given offset, growing the file first when
	// the write reaches past the current logical size.
	WriteNormal WriteMode = iota

	// WriteAppend forces the offset to the current logical size before
	// performing a normal write.
	WriteAppend

	// WriteConstrained never grows the file: writes at or past the logical
	// size transfer nothing, writes straddling it are truncated.
	WriteConstrained
)

// Extent is a resizable byte buffer backing one file's content. The
// buffer length is the allocation size; the logical file size is tracked
// separately and never exceeds it. The zero value is an empty file.
//
// Extent performs no locking; the owning Entry serializes access.
type Extent struct {
	data []byte
	size int64
}

// NewExtent returns an extent with exactly allocationSize zero bytes of
// backing and a logical size of zero.
func NewExtent(allocationSize int64) *Extent {
	return &Extent{data: make([]byte, allocationSize)}
}

// Size returns the logical file size.
func (e *Extent) Size() int64 { return e.size }

// AllocationSize returns the backing buffer capacity.
func (e *Extent) AllocationSize() int64 { return int64(len(e.data)) }

// SetAllocationSize resizes the backing buffer to exactly n bytes.
// Growth is zero-filled. Shrinking below the logical size clamps the
// logical size to n.
func (e *Extent) SetAllocationSize(n int64) {
	switch {
	case n < int64(len(e.data)):
		e.data = e.data[:n]
	case n > int64(len(e.data)):
		grown := make([]byte, n)
		copy(grown, e.data)
		e.data = grown
	}
	if e.size > n {
		e.size = n
	}
}

// AdaptAllocationSize grows or shrinks the allocation to the smallest
// multiple of AllocationUnit that covers fileSize.
func (e *Extent) AdaptAllocationSize(fileSize int64) {
	units := (fileSize + AllocationUnit - 1) / AllocationUnit
	e.SetAllocationSize(units * AllocationUnit)
}

// SetFileSize changes the logical size. Shrinking zeroes the abandoned
// range so a later extension reads back zeros; the allocation is left
// untouched. Growing past the allocation rounds the allocation up first.
func (e *Extent) SetFileSize(n int64) {
	if n < e.size {
		clear(e.data[n:e.size])
	}
	if n > int64(len(e.data)) {
		e.AdaptAllocationSize(n)
	}
	e.size = n
}

// Read returns the content in [offset, min(size, offset+length)). The
// caller treats an offset at or past the logical size as end-of-file
// before calling.
func (e *Extent) Read(offset, length int64) []byte {
	end := offset + length
	if end > e.size {
		end = e.size
	}
	if offset >= end {
		return nil
	}
	return e.data[offset:end]
}

// Write copies p into the extent at offset according to mode and returns
// the number of bytes transferred.
func (e *Extent) Write(p []byte, offset int64, mode WriteMode) int64 {
	switch mode {
	case WriteAppend:
		offset = e.size
	case WriteConstrained:
		if offset >= e.size {
			return 0
		}
		end := offset + int64(len(p))
		if end > e.size {
			end = e.size
		}
		n := end - offset
		copy(e.data[offset:end], p[:n])
		return n
	}

	end := offset + int64(len(p))
	if end > e.size {
		e.SetFileSize(end)
	}
	copy(e.data[offset:end], p)
	return int64(len(p))
}
