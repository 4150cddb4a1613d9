package alloc

import (
	"cmp"
	"container/heap"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/internal/logger"
	"github.com/joshuapare/pmemkit/region"
)

// defaultGrowPages is the minimum number of pages added per growth.
const defaultGrowPages = 4

// Options configures a CellAllocator.
type Options struct {
	// SizeClasses selects the size class table. Nil uses DefaultConfig.
	SizeClasses *SizeClassConfig
	// GrowPages is the minimum number of pages added when the heap grows.
	GrowPages int
	// Logger receives growth events. Nil uses the package logger.
	Logger *slog.Logger
}

// CellAllocator is a best-fit allocator over the heap of a region.
//   - one min-heap per size class gives O(log n) best fit
//   - byOff and byEnd index free cells for O(1) neighbour lookup when coalescing
//   - live holds the header offset of every allocated cell
//
// NOT thread-safe.
type CellAllocator struct {
	r     *region.Region
	table *sizeClassTable
	lists []freeCellHeap // numClasses + 1 (last one is the large class)

	byOff map[int]*freeCell
	byEnd map[int]*freeCell
	live  map[int]struct{}

	growPages int
	log       *slog.Logger

	allocCalls int
	freeCalls  int
	growCalls  int
	growBytes  int64

	// Test hook: called with the page count before the heap grows (nil in production)
	onGrow func(pages int)
}

var _ Allocator = (*CellAllocator)(nil)

// New creates an allocator for the heap of r. The heap is not scanned until
// Rebuild runs, so a region that still needs recovery can be wired up first.
func New(r *region.Region, opts Options) *CellAllocator {
	cfg := DefaultConfig
	if opts.SizeClasses != nil {
		cfg = *opts.SizeClasses
	}
	a := &CellAllocator{
		r:         r,
		table:     newSizeClassTable(cfg),
		growPages: opts.GrowPages,
		log:       logger.Or(opts.Logger),
	}
	if a.growPages <= 0 {
		a.growPages = defaultGrowPages
	}
	return a
}

func (a *CellAllocator) bounds() (start, end int) {
	h := a.r.Header()
	return h.HeapOffset(), h.HeapEnd()
}

// Rebuild discards the free lists and rescans every cell of the heap.
func (a *CellAllocator) Rebuild() error {
	a.lists = make([]freeCellHeap, a.table.numClasses+1)
	a.byOff = make(map[int]*freeCell)
	a.byEnd = make(map[int]*freeCell)
	a.live = make(map[int]struct{})

	return a.Walk(func(c format.Cell) error {
		if c.Free {
			a.insert(c.Offset, c.Size)
		} else {
			a.live[c.Offset] = struct{}{}
		}
		return nil
	})
}

// Walk calls fn for every cell of the heap in address order.
func (a *CellAllocator) Walk(fn func(c format.Cell) error) error {
	start, end := a.bounds()
	data := a.r.Bytes()
	if end > len(data) {
		return fmt.Errorf("alloc: heap end 0x%X beyond region size 0x%X: %w", end, len(data), format.ErrTruncated)
	}
	for off := start; off < end; {
		c, next, err := format.NextCell(data, start, end, off)
		if err != nil {
			return fmt.Errorf("alloc: walk: %w", err)
		}
		if err := fn(c); err != nil {
			return err
		}
		off = next
	}
	return nil
}

// cellSize returns the total cell size serving a payload of size bytes.
func cellSize(size int) (int, error) {
	if size <= 0 || size > format.MaxCellSize-format.CellHeaderSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrBadSize, size)
	}
	return max(format.Align8(size+format.CellHeaderSize), format.MinCellSize), nil
}

// Alloc reserves a zeroed payload of at least size bytes tagged with typeID.
// The cell header changes are snapshotted through j before they are written.
func (a *CellAllocator) Alloc(j Journal, size int, typeID uint32) (OID, error) {
	if j == nil || !j.Active() {
		return 0, ErrNoActiveTransaction
	}
	if a.live == nil {
		return 0, ErrNotIndexed
	}
	need, err := cellSize(size)
	if err != nil {
		return 0, err
	}
	a.allocCalls++

	c := a.take(need)
	if c == nil {
		if err := a.grow(j, need); err != nil {
			return 0, err
		}
		if c = a.take(need); c == nil {
			return 0, fmt.Errorf("%w: no cell of %d bytes after growth", ErrGrowFail, need)
		}
	}

	split := c.size-need >= format.MinCellSize
	if err := j.AddRange(c.off, format.CellHeaderSize); err != nil {
		a.insert(c.off, c.size)
		return 0, err
	}
	if split {
		if err := j.AddRange(c.off+need, format.CellHeaderSize); err != nil {
			a.insert(c.off, c.size)
			return 0, err
		}
	} else {
		need = c.size
	}

	data := a.r.Bytes()
	if split {
		rest := c.off + need
		format.PutCellHeader(data, rest, int32(c.size-need), false, format.FreeTypeID)
		j.Add(rest, format.CellHeaderSize)
		a.insert(rest, c.size-need)
	}
	format.PutCellHeader(data, c.off, int32(need), true, typeID)
	// Free payload bytes carry no meaning, so zeroing them needs no snapshot.
	clear(data[c.off+format.CellHeaderSize : c.off+need])
	j.Add(c.off, need)
	a.live[c.off] = struct{}{}

	return OID(c.off + format.CellHeaderSize), nil
}

// Free returns the cell holding oid to the heap, merging it with free
// neighbours on either side.
func (a *CellAllocator) Free(j Journal, oid OID) error {
	if j == nil || !j.Active() {
		return ErrNoActiveTransaction
	}
	if a.live == nil {
		return ErrNotIndexed
	}
	off, err := a.liveCell(oid)
	if err != nil {
		return err
	}
	data := a.r.Bytes()
	size := int(-format.ReadI32(data, off+format.CellSizeOffset))

	start, total := off, size
	next := a.byOff[off+size]
	if next != nil && total+next.size <= format.MaxCellSize {
		total += next.size
	} else {
		next = nil
	}
	prev := a.byEnd[off]
	if prev != nil && total+prev.size <= format.MaxCellSize {
		start = prev.off
		total += prev.size
	} else {
		prev = nil
	}

	if err := j.AddRange(start, format.CellHeaderSize); err != nil {
		return err
	}
	a.freeCalls++

	if next != nil {
		a.remove(next)
	}
	if prev != nil {
		a.remove(prev)
	}
	format.PutCellHeader(data, start, int32(total), false, format.FreeTypeID)
	j.Add(start, format.CellHeaderSize)
	a.insert(start, total)
	delete(a.live, off)
	return nil
}

// grow appends at least need bytes (rounded to whole pages) to the heap and
// records the new heap size in the header.
func (a *CellAllocator) grow(j Journal, need int) error {
	pages := max(format.AlignPage(need)/format.PageSize, a.growPages)
	add := pages * format.PageSize
	heapOff, end := a.bounds()
	newEnd := end + add

	if a.onGrow != nil {
		a.onGrow(pages)
	}

	if err := j.AddRange(format.HeapSizeOffset, format.QWORDSize); err != nil {
		return err
	}
	tail := a.byEnd[end]
	if tail != nil && tail.size+add > format.MaxCellSize {
		tail = nil
	}
	if tail != nil {
		if err := j.AddRange(tail.off, format.CellHeaderSize); err != nil {
			return err
		}
	}

	if missing := int64(newEnd) - a.r.Size(); missing > 0 {
		if err := a.r.Append(missing); err != nil {
			return fmt.Errorf("%w: %w", ErrGrowFail, err)
		}
	}

	data := a.r.Bytes()
	format.PutU64(data, format.HeapSizeOffset, uint64(newEnd-heapOff))
	j.Add(format.HeapSizeOffset, format.QWORDSize)

	off, size := end, add
	if tail != nil {
		a.remove(tail)
		off, size = tail.off, tail.size+add
	}
	format.PutCellHeader(data, off, int32(size), false, format.FreeTypeID)
	j.Add(off, format.CellHeaderSize)
	a.insert(off, size)

	a.growCalls++
	a.growBytes += int64(add)
	a.log.Debug("heap grown", "pages", pages, "heap_size", newEnd-heapOff)
	return nil
}

// liveCell validates oid and returns the offset of its cell header.
func (a *CellAllocator) liveCell(oid OID) (int, error) {
	start, end := a.bounds()
	off := int(oid) - format.CellHeaderSize
	if oid.IsNull() || off < start || off >= end || (off-start)&format.CellAlignmentMask != 0 {
		return 0, fmt.Errorf("%w: %v", ErrBadRef, oid)
	}
	if _, ok := a.live[off]; !ok {
		if a.byOff[off] != nil {
			return 0, fmt.Errorf("%w: %v", ErrDoubleFree, oid)
		}
		return 0, fmt.Errorf("%w: %v is not the start of a live cell", ErrBadRef, oid)
	}
	return off, nil
}

// IsLive reports whether oid names an allocated cell.
func (a *CellAllocator) IsLive(oid OID) bool {
	_, err := a.liveCell(oid)
	return err == nil
}

// TypeOf returns the type id stored with a live object.
func (a *CellAllocator) TypeOf(oid OID) (uint32, error) {
	off, err := a.liveCell(oid)
	if err != nil {
		return 0, err
	}
	return format.ReadU32(a.r.Bytes(), off+format.CellTypeOffset), nil
}

// SizeOf returns the payload size of a live object.
func (a *CellAllocator) SizeOf(oid OID) (int, error) {
	off, err := a.liveCell(oid)
	if err != nil {
		return 0, err
	}
	return int(-format.ReadI32(a.r.Bytes(), off+format.CellSizeOffset)) - format.CellHeaderSize, nil
}

// Payload returns the payload bytes of a live object. The slice is
// invalidated by the next heap growth.
func (a *CellAllocator) Payload(oid OID) ([]byte, error) {
	n, err := a.SizeOf(oid)
	if err != nil {
		return nil, err
	}
	off := int(oid)
	return a.r.Bytes()[off : off+n : off+n], nil
}

// LiveObjects returns the ids of every allocated cell in address order.
func (a *CellAllocator) LiveObjects() []OID {
	offs := slices.Sorted(maps.Keys(a.live))
	out := make([]OID, len(offs))
	for i, off := range offs {
		out[i] = OID(off + format.CellHeaderSize)
	}
	return out
}

// Stats returns a summary of the heap.
func (a *CellAllocator) Stats() Stats {
	start, end := a.bounds()
	st := Stats{
		HeapOffset:     start,
		HeapSize:       end - start,
		AllocatedCells: len(a.live),
		AllocCalls:     a.allocCalls,
		FreeCalls:      a.freeCalls,
		GrowCalls:      a.growCalls,
		GrowBytes:      a.growBytes,
	}
	for _, c := range a.byOff {
		st.FreeCells++
		st.FreeBytes += c.size
		st.LargestFree = max(st.LargestFree, c.size)
	}
	st.AllocatedBytes = st.HeapSize - st.FreeBytes
	return st
}

// FreeSpans returns every free cell ordered by offset.
func (a *CellAllocator) FreeSpans() []Span {
	spans := make([]Span, 0, len(a.byOff))
	for _, c := range a.byOff {
		spans = append(spans, Span{Off: c.off, Size: c.size})
	}
	slices.SortFunc(spans, func(x, y Span) int { return cmp.Compare(x.Off, y.Off) })
	return spans
}

func (a *CellAllocator) insert(off, size int) {
	c := &freeCell{off: off, size: size, sc: a.table.class(int32(size))}
	heap.Push(&a.lists[c.sc], c)
	a.byOff[off] = c
	a.byEnd[c.end()] = c
}

func (a *CellAllocator) remove(c *freeCell) {
	heap.Remove(&a.lists[c.sc], c.heapIndex)
	delete(a.byOff, c.off)
	delete(a.byEnd, c.end())
}

// take removes and returns the best fitting free cell of at least need bytes.
func (a *CellAllocator) take(need int) *freeCell {
	for sc := a.table.class(int32(need)); sc <= a.table.numClasses; sc++ {
		if c := a.lists[sc].takeBestFit(need); c != nil {
			delete(a.byOff, c.off)
			delete(a.byEnd, c.end())
			return c
		}
	}
	return nil
}
