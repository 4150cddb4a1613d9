package alloc

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/region"
)

// memJournal keeps pre-images in memory so tests can roll the heap back
// without the transaction manager.
type memJournal struct {
	r       *region.Region
	active  bool
	entries []memEntry
	dirty   int
	failAt  int // AddRange call number that fails (1-based), 0 = never
	calls   int
}

type memEntry struct {
	off  int
	data []byte
}

var errJournalFull = errors.New("journal full")

func (j *memJournal) Active() bool { return j.active }

func (j *memJournal) AddRange(off, n int) error {
	j.calls++
	if j.failAt != 0 && j.calls == j.failAt {
		return errJournalFull
	}
	j.entries = append(j.entries, memEntry{off: off, data: bytes.Clone(j.r.Bytes()[off : off+n])})
	return nil
}

func (j *memJournal) Add(_, _ int) { j.dirty++ }

// rollback restores every pre-image in reverse order, drops growth and
// rebuilds the allocator.
func (j *memJournal) rollback(t *testing.T, a *CellAllocator) {
	t.Helper()
	data := j.r.Bytes()
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]
		if e.off+len(e.data) <= len(data) {
			copy(data[e.off:], e.data)
		}
	}
	j.entries = nil
	_, err := j.r.TruncateSlack()
	require.NoError(t, err)
	require.NoError(t, a.Rebuild())
}

func newAllocator(t *testing.T, heapSize int) (*CellAllocator, *memJournal) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool.pm")
	require.NoError(t, region.Create(path, "alloc", region.CreateOptions{HeapSize: heapSize, LogSize: format.PageSize}))
	r, err := region.Open(path, "alloc", region.OpenOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	a := New(r, Options{GrowPages: 1})
	require.NoError(t, a.Rebuild())
	return a, &memJournal{r: r, active: true}
}

func TestAllocRequiresActiveJournal(t *testing.T) {
	a, j := newAllocator(t, format.PageSize)

	_, err := a.Alloc(nil, 16, 1)
	require.ErrorIs(t, err, ErrNoActiveTransaction)

	j.active = false
	_, err = a.Alloc(j, 16, 1)
	require.ErrorIs(t, err, ErrNoActiveTransaction)
	require.ErrorIs(t, a.Free(j, OID(a.Stats().HeapOffset+format.CellHeaderSize)), ErrNoActiveTransaction)
	require.Empty(t, j.entries)
}

func TestAllocSplitsAndZeroes(t *testing.T) {
	a, j := newAllocator(t, format.PageSize)
	heapOff := a.Stats().HeapOffset

	// Dirty the payload area so zeroing is observable.
	copy(a.r.Bytes()[heapOff+format.CellHeaderSize:], bytes.Repeat([]byte{0xEE}, 64))

	oid, err := a.Alloc(j, 20, 7)
	require.NoError(t, err)
	require.Equal(t, OID(heapOff+format.CellHeaderSize), oid)

	size, err := a.SizeOf(oid)
	require.NoError(t, err)
	require.Equal(t, 24, size, "20 bytes round up to an 8-aligned payload")

	typ, err := a.TypeOf(oid)
	require.NoError(t, err)
	require.Equal(t, uint32(7), typ)

	payload, err := a.Payload(oid)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 24), payload)

	require.Equal(t, []Span{{Off: heapOff + 32, Size: format.PageSize - 32}}, a.FreeSpans())
	require.Len(t, j.entries, 2, "allocated and remainder headers are snapshotted")

	st := a.Stats()
	require.Equal(t, 1, st.AllocatedCells)
	require.Equal(t, 32, st.AllocatedBytes)
}

func TestAllocBadSize(t *testing.T) {
	a, j := newAllocator(t, format.PageSize)
	_, err := a.Alloc(j, 0, 1)
	require.ErrorIs(t, err, ErrBadSize)
	_, err = a.Alloc(j, format.MaxCellSize, 1)
	require.ErrorIs(t, err, ErrBadSize)
}

func TestAllocTakesWholeCellWhenRemainderTooSmall(t *testing.T) {
	a, j := newAllocator(t, format.PageSize)
	heapOff := a.Stats().HeapOffset

	first, err := a.Alloc(j, format.PageSize-2*format.CellHeaderSize-16, 1)
	require.NoError(t, err)
	require.Equal(t, OID(heapOff+format.CellHeaderSize), first)

	// 24 bytes left: a 16-byte payload would leave an 8-byte sliver.
	second, err := a.Alloc(j, 8, 1)
	require.NoError(t, err)
	size, err := a.SizeOf(second)
	require.NoError(t, err)
	require.Equal(t, 16, size)
	require.Empty(t, a.FreeSpans())
}

func TestFreeCoalescesBothSides(t *testing.T) {
	a, j := newAllocator(t, format.PageSize)
	heapOff := a.Stats().HeapOffset

	x, err := a.Alloc(j, 24, 1)
	require.NoError(t, err)
	y, err := a.Alloc(j, 24, 1)
	require.NoError(t, err)
	z, err := a.Alloc(j, 24, 1)
	require.NoError(t, err)

	require.NoError(t, a.Free(j, x))
	require.NoError(t, a.Free(j, z)) // merges with the trailing free cell
	require.Equal(t, []Span{
		{Off: heapOff, Size: 32},
		{Off: heapOff + 64, Size: format.PageSize - 64},
	}, a.FreeSpans())

	require.NoError(t, a.Free(j, y)) // merges both neighbours
	require.Equal(t, []Span{{Off: heapOff, Size: format.PageSize}}, a.FreeSpans())
	require.Zero(t, a.Stats().AllocatedCells)
}

func TestFreeRejectsBadReferences(t *testing.T) {
	a, j := newAllocator(t, format.PageSize)
	oid, err := a.Alloc(j, 16, 1)
	require.NoError(t, err)

	require.ErrorIs(t, a.Free(j, 0), ErrBadRef)
	require.ErrorIs(t, a.Free(j, oid+8), ErrBadRef, "interior pointer")
	require.ErrorIs(t, a.Free(j, OID(1<<40)), ErrBadRef)

	require.NoError(t, a.Free(j, oid))
	require.ErrorIs(t, a.Free(j, oid), ErrDoubleFree)
	_, err = a.TypeOf(oid)
	require.ErrorIs(t, err, ErrDoubleFree)
	require.False(t, a.IsLive(oid))
}

func TestAllocGrowsHeap(t *testing.T) {
	a, j := newAllocator(t, format.PageSize)
	var grown []int
	a.SetOnGrow(func(pages int) { grown = append(grown, pages) })

	before := a.r.Size()
	oid, err := a.Alloc(j, 3*format.PageSize, 2)
	require.NoError(t, err)
	require.Equal(t, []int{4}, grown, "3 pages + header round up to 4 pages")
	require.Equal(t, before+4*format.PageSize, a.r.Size())

	st := a.Stats()
	require.Equal(t, 5*format.PageSize, st.HeapSize)
	require.Equal(t, int(a.r.Size()), st.HeapOffset+st.HeapSize)
	require.Equal(t, 1, st.GrowCalls)

	// The old trailing free cell was merged into the new space.
	require.Equal(t, OID(st.HeapOffset+format.CellHeaderSize), oid)
}

func TestAllocSnapshotFailureLeavesFreeListIntact(t *testing.T) {
	a, j := newAllocator(t, format.PageSize)
	before := a.FreeSpans()

	j.failAt = 1
	_, err := a.Alloc(j, 64, 1)
	require.ErrorIs(t, err, errJournalFull)
	require.Equal(t, before, a.FreeSpans())
	require.Zero(t, a.Stats().AllocatedCells)
}

func TestRebuildMatchesIncrementalState(t *testing.T) {
	a, j := newAllocator(t, 4*format.PageSize)
	var live []OID
	for i := range 40 {
		oid, err := a.Alloc(j, 8+(i%7)*24, uint32(i%3+1))
		require.NoError(t, err)
		live = append(live, oid)
	}
	for i := 0; i < len(live); i += 3 {
		require.NoError(t, a.Free(j, live[i]))
	}
	spans := a.FreeSpans()
	objects := a.LiveObjects()

	require.NoError(t, a.Rebuild())
	require.Equal(t, spans, a.FreeSpans())
	require.Equal(t, objects, a.LiveObjects())
}

// Aborting N allocations and M frees returns the free list to its exact
// pre-transaction state.
func TestAbortRestoresFreeListExactly(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for round := range 20 {
		a, j := newAllocator(t, 2*format.PageSize)

		// Committed baseline: some live objects with holes between them.
		var live []OID
		for range 30 {
			oid, err := a.Alloc(j, 8+rng.IntN(200), 1)
			require.NoError(t, err)
			live = append(live, oid)
		}
		for i := 0; i < len(live); i += 4 {
			require.NoError(t, a.Free(j, live[i]))
		}
		j.entries = nil
		baseSize := a.r.Size()
		wantSpans := a.FreeSpans()
		wantLive := a.LiveObjects()

		// Transaction: N allocations (possibly growing) and M frees.
		n, m := rng.IntN(40), rng.IntN(8)
		for range n {
			_, err := a.Alloc(j, 8+rng.IntN(1500), 2)
			require.NoError(t, err)
		}
		freed := 0
		for _, oid := range wantLive {
			if freed == m {
				break
			}
			if rng.IntN(2) == 0 {
				require.NoError(t, a.Free(j, oid))
				freed++
			}
		}

		j.rollback(t, a)
		require.Equal(t, baseSize, a.r.Size(), "round %d", round)
		require.Equal(t, wantSpans, a.FreeSpans(), "round %d", round)
		require.Equal(t, wantLive, a.LiveObjects(), "round %d", round)
	}
}

func TestSizeClassTable(t *testing.T) {
	table := newSizeClassTable(ConfigBalanced)
	require.Equal(t, 0, table.class(16))
	require.Equal(t, 0, table.class(31))
	require.Equal(t, 1, table.class(32))
	require.Equal(t, table.numClasses, table.class(1<<20))

	prev := -1
	for size := int32(16); size < 20000; size += 8 {
		sc := table.class(size)
		require.GreaterOrEqual(t, sc, prev, "classes are monotonic")
		prev = sc
	}
	require.Equal(t, "Balanced", table.String())
}

func TestAllocBeforeRebuild(t *testing.T) {
	a, j := newAllocator(t, format.PageSize)
	fresh := New(a.r, Options{})

	_, err := fresh.Alloc(j, 16, 1)
	require.ErrorIs(t, err, ErrNotIndexed)
	require.NoError(t, fresh.Rebuild())
	_, err = fresh.Alloc(j, 16, 1)
	require.NoError(t, err)
}
