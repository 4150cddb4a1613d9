package format

import (
	"fmt"

	"github.com/joshuapare/pmemkit/internal/buf"
)

// Cell represents a single allocation (free or in-use) within the heap.
//
// Cell header layout (little-endian):
//
//	Offset  Size  Description
//	0x00    4     Signed size. Negative => allocated, positive => free.
//	              The absolute value includes the 8-byte header.
//	0x04    4     Type id of the object stored in the cell (0 when free).
//	0x08    ...   Payload.
type Cell struct {
	Offset int    // Absolute region offset of the cell header
	Size   int    // Total size including header
	Free   bool   // True when the cell is marked as free
	Type   uint32 // Type id of the stored object
	Data   []byte // Payload bytes (alias of underlying buffer)
}

// OID returns the object id of the cell payload.
func (c Cell) OID() uint64 { return uint64(c.Offset + CellHeaderSize) }

// NextCell decodes the cell at off within the heap [heapStart, heapEnd) and
// returns the cell plus the offset of the following cell. The caller must
// ensure off points to the start of a cell header.
func NextCell(b []byte, heapStart, heapEnd, off int) (Cell, int, error) {
	if off < heapStart || off+CellHeaderSize > heapEnd || heapEnd > len(b) {
		return Cell{}, 0, fmt.Errorf("cell at 0x%X: %w", off, ErrTruncated)
	}
	raw := buf.I32LE(b[off:])
	if raw == 0 {
		return Cell{}, 0, fmt.Errorf("cell at 0x%X: zero length: %w", off, ErrBadCell)
	}
	allocated := raw < 0
	size := int(raw)
	if allocated {
		size = -size
	}
	if size < MinCellSize || size&CellAlignmentMask != 0 {
		return Cell{}, 0, fmt.Errorf("cell at 0x%X: declared size %d: %w", off, size, ErrBadCell)
	}
	next := off + size
	if next > heapEnd {
		return Cell{}, 0, fmt.Errorf("cell at 0x%X: %w", off, ErrTruncated)
	}
	return Cell{
		Offset: off,
		Size:   size,
		Free:   !allocated,
		Type:   buf.U32LE(b[off+CellTypeOffset:]),
		Data:   b[off+CellHeaderSize : next],
	}, next, nil
}

// CellAt decodes the allocated cell whose payload starts at oid.
func CellAt(b []byte, heapStart, heapEnd int, oid uint64) (Cell, error) {
	off := int(oid) - CellHeaderSize
	c, _, err := NextCell(b, heapStart, heapEnd, off)
	if err != nil {
		return Cell{}, err
	}
	if c.Free {
		return Cell{}, fmt.Errorf("cell at 0x%X: %w", off, ErrFreeCell)
	}
	return c, nil
}

// PutCellHeader writes a cell header at off. Allocated cells store a negative size.
func PutCellHeader(b []byte, off int, size int32, allocated bool, typeID uint32) {
	if allocated {
		size = -size
	}
	PutI32(b, off+CellSizeOffset, size)
	PutU32(b, off+CellTypeOffset, typeID)
}
