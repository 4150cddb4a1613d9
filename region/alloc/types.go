package alloc

import (
	"fmt"

	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/region/dirty"
)

// OID is the absolute region offset of an object's payload. Zero is null.
type OID uint64

// IsNull reports whether the id names no object.
func (o OID) IsNull() bool { return o == format.NullOID }

func (o OID) String() string {
	if o.IsNull() {
		return "null"
	}
	return fmt.Sprintf("0x%X", uint64(o))
}

// Journal is the transactional write path the allocator mutates media through.
type Journal interface {
	// Active reports whether the journal still accepts writes.
	Active() bool
	// AddRange snapshots [off, off+n) before the caller changes it.
	AddRange(off, n int) error
	// Add records that [off, off+n) was changed.
	dirty.DirtyTracker
}

// Span is a free region of the heap.
type Span struct {
	Off  int // Offset of the cell header
	Size int // Total size including header
}

// Stats describes the heap.
type Stats struct {
	HeapOffset     int
	HeapSize       int
	FreeCells      int
	FreeBytes      int
	LargestFree    int
	AllocatedCells int
	AllocatedBytes int
	AllocCalls     int
	FreeCalls      int
	GrowCalls      int
	GrowBytes      int64
}

// Allocator defines the transactional heap interface used by the
// transaction manager.
type Allocator interface {
	// Alloc reserves a zeroed payload of at least size bytes tagged with typeID.
	Alloc(j Journal, size int, typeID uint32) (OID, error)
	// Free returns the cell holding oid to the heap.
	Free(j Journal, oid OID) error
	// Rebuild discards in-memory state and rescans the heap.
	Rebuild() error
	// Stats returns a summary of the heap.
	Stats() Stats
	// FreeSpans returns every free cell ordered by offset.
	FreeSpans() []Span
	// TypeOf returns the type id stored with a live object.
	TypeOf(oid OID) (uint32, error)
	// SizeOf returns the payload size of a live object.
	SizeOf(oid OID) (int, error)
}
