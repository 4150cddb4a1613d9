package region

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/pmemkit/internal/format"
)

const testLayout = "test"

// newRegion creates a small region file and opens it:
//
//	0x0000 - 0x0FFF : header
//	0x1000 - 0x1FFF : undo log (one page)
//	0x2000 - 0x2FFF : heap (one free cell)
func newRegion(t *testing.T) *Region {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool.pm")
	require.NoError(t, Create(path, testLayout, CreateOptions{HeapSize: format.PageSize, LogSize: format.PageSize}))
	r, err := Open(path, testLayout, OpenOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestCreateAndOpen(t *testing.T) {
	r := newRegion(t)

	require.Equal(t, int64(3*format.PageSize), r.Size())
	h := r.Header()
	require.Equal(t, testLayout, h.Layout())
	require.True(t, h.IsClean())
	require.True(t, h.ChecksumOK())
	require.True(t, h.DirtyShutdown(), "open marks the region in use")
	require.Equal(t, format.HeaderSize, h.LogOffset())
	require.Equal(t, 2*format.PageSize, h.HeapOffset())
	require.Equal(t, format.PageSize, h.HeapSize())
	require.Zero(t, h.RootOID())

	cell, next, err := format.NextCell(r.Bytes(), h.HeapOffset(), h.HeapEnd(), h.HeapOffset())
	require.NoError(t, err)
	require.True(t, cell.Free)
	require.Equal(t, format.PageSize, cell.Size)
	require.Equal(t, h.HeapEnd(), next)
}

func TestCreateRefusesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.pm")
	require.NoError(t, Create(path, testLayout, DefaultCreateOptions()))
	err := Create(path, testLayout, DefaultCreateOptions())
	require.ErrorIs(t, err, ErrExists)
}

func TestCreateRejectsLongLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.pm")
	long := make([]byte, format.LayoutSize)
	for i := range long {
		long[i] = 'q'
	}
	require.Error(t, Create(path, string(long), DefaultCreateOptions()))
	require.NoFileExists(t, path)
}

func TestOpenLayoutMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.pm")
	require.NoError(t, Create(path, "queue", DefaultCreateOptions()))

	_, err := Open(path, "hashmap", OpenOptions{})
	require.ErrorIs(t, err, ErrLayoutMismatch)
	require.ErrorIs(t, err, ErrOpenFailed)

	var oe *OpenError
	require.True(t, errors.As(err, &oe))
	require.Equal(t, path, oe.Path)
}

func TestOpenFailures(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing"), testLayout, OpenOptions{})
	require.ErrorIs(t, err, ErrOpenFailed)
	require.ErrorIs(t, err, os.ErrNotExist)

	short := filepath.Join(dir, "short")
	require.NoError(t, os.WriteFile(short, []byte("pmrg"), 0o644))
	_, err = Open(short, testLayout, OpenOptions{})
	require.ErrorIs(t, err, format.ErrTruncated)

	garbage := filepath.Join(dir, "garbage")
	require.NoError(t, os.WriteFile(garbage, make([]byte, 3*format.PageSize), 0o644))
	_, err = Open(garbage, testLayout, OpenOptions{})
	require.ErrorIs(t, err, format.ErrSignatureMismatch)
}

func TestOpenRejectsTruncatedHeap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.pm")
	require.NoError(t, Create(path, testLayout, CreateOptions{HeapSize: 2 * format.PageSize}))
	require.NoError(t, os.Truncate(path, int64(format.HeaderSize+format.DefaultLogSize+format.PageSize)))

	_, err := Open(path, testLayout, OpenOptions{})
	require.ErrorIs(t, err, format.ErrTruncated)
}

func TestCloseClearsDirtyFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.pm")
	require.NoError(t, Create(path, testLayout, DefaultCreateOptions()))

	r, err := Open(path, testLayout, OpenOptions{PreFault: true})
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.True(t, r.Closed())
	require.NoError(t, r.Close(), "second close is a no-op")

	st, err := Inspect(path)
	require.NoError(t, err)
	require.False(t, st.DirtyShutdown)
	require.True(t, st.ChecksumOK)
}

func TestAppendAndTruncate(t *testing.T) {
	r := newRegion(t)
	gen := r.Generation()

	require.NoError(t, r.Append(format.PageSize))
	require.Equal(t, int64(4*format.PageSize), r.Size())
	require.Len(t, r.Bytes(), 4*format.PageSize)
	require.NotEqual(t, gen, r.Generation())

	// New bytes are zero and writable.
	tail := r.Bytes()[3*format.PageSize:]
	require.Equal(t, make([]byte, format.PageSize), tail)
	tail[0] = 0xAA

	require.NoError(t, r.Truncate(3*format.PageSize))
	require.Equal(t, int64(3*format.PageSize), r.Size())

	require.Error(t, r.Truncate(5*format.PageSize), "truncate cannot grow")
	require.Error(t, r.Truncate(16), "truncate below header")
	require.NoError(t, r.Append(0))
}

func TestTruncateSlack(t *testing.T) {
	r := newRegion(t)
	require.NoError(t, r.Append(2*format.PageSize))

	slack, err := r.TruncateSlack()
	require.NoError(t, err)
	require.Equal(t, int64(2*format.PageSize), slack)
	require.Equal(t, int64(r.Header().HeapEnd()), r.Size())

	slack, err = r.TruncateSlack()
	require.NoError(t, err)
	require.Zero(t, slack)
}

func TestViewGoesStaleOnRemap(t *testing.T) {
	r := newRegion(t)
	heapOff := r.Header().HeapOffset()

	v, err := r.View(heapOff, 16)
	require.NoError(t, err)
	b, err := v.Bytes()
	require.NoError(t, err)
	require.Len(t, b, 16)
	require.Equal(t, 16, cap(b), "views cannot be extended past their range")

	require.NoError(t, r.Append(format.PageSize))
	require.False(t, v.Valid())
	_, err = v.Bytes()
	require.ErrorIs(t, err, ErrStaleView)

	fresh, err := r.View(heapOff, 16)
	require.NoError(t, err)
	_, err = fresh.Bytes()
	require.NoError(t, err)

	require.NoError(t, r.Close())
	_, err = fresh.Bytes()
	require.ErrorIs(t, err, ErrStaleView)
}

func TestViewBounds(t *testing.T) {
	r := newRegion(t)
	_, err := r.View(int(r.Size())-8, 16)
	require.ErrorIs(t, err, ErrOutOfBounds)
	_, err = r.View(-1, 1)
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func TestSyncPersistsWrites(t *testing.T) {
	r := newRegion(t)
	off := r.Header().HeapOffset() + format.CellHeaderSize
	copy(r.Bytes()[off:], "durable!")
	require.NoError(t, r.Sync(off, 8))
	require.NoError(t, r.SyncFile(true))

	data, err := os.ReadFile(r.Path())
	require.NoError(t, err)
	require.Equal(t, "durable!", string(data[off:off+8]))

	require.ErrorIs(t, r.Sync(int(r.Size()), 8), ErrOutOfBounds)
	require.NoError(t, r.Sync(off, 0))
}

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.pm")
	require.NoError(t, Create(path, "queue", DefaultCreateOptions()))

	st, err := Inspect(path)
	require.NoError(t, err)
	require.Equal(t, "queue", st.Layout)
	require.Equal(t, uint32(format.CurrentMajorVersion), st.Major)
	require.Equal(t, format.DefaultLogSize, st.LogSize)
	require.Equal(t, format.DefaultHeapSize, st.HeapSize)
	require.Zero(t, st.LogEntries)
	require.False(t, st.PendingRecovery)
	require.Zero(t, st.Slack())

	_, err = Inspect(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
