package tx

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/region"
	"github.com/joshuapare/pmemkit/region/alloc"
	"github.com/joshuapare/pmemkit/region/dirty"
	"github.com/joshuapare/pmemkit/region/undo"
)

const testLayout = "txtest"

var errCrash = errors.New("simulated crash")

type stack struct {
	r    *region.Region
	dt   *dirty.Tracker
	log  *undo.Log
	heap *alloc.CellAllocator
	m    *Manager
	rep  RecoveryReport
}

func createRegion(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tx.pm")
	require.NoError(t, region.Create(path, testLayout, region.CreateOptions{
		HeapSize: 2 * format.PageSize,
		LogSize:  format.PageSize,
	}))
	return path
}

func openStack(t *testing.T, path string) *stack {
	t.Helper()
	r, err := region.Open(path, testLayout, region.OpenOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	dt := dirty.NewTracker(r)
	log, err := undo.Attach(r, dt)
	require.NoError(t, err)
	heap := alloc.New(r, alloc.Options{GrowPages: 1})
	m := NewManager(r, dt, log, heap, Options{})
	rep, err := m.Recover(context.Background())
	require.NoError(t, err)
	return &stack{r: r, dt: dt, log: log, heap: heap, m: m, rep: rep}
}

// seed commits one object holding v and returns its id.
func seed(t *testing.T, s *stack, v uint64) alloc.OID {
	t.Helper()
	var oid alloc.OID
	require.NoError(t, s.m.Run(context.Background(), func(t2 *Tx) error {
		var err error
		if oid, err = t2.Alloc(16, 7); err != nil {
			return err
		}
		return t2.PutU64(int(oid), v)
	}))
	return oid
}

func (s *stack) u64(oid alloc.OID) uint64 { return format.ReadU64(s.r.Bytes(), int(oid)) }

func TestCommitSurvivesReopen(t *testing.T) {
	path := createRegion(t)
	s := openStack(t, path)
	oid := seed(t, s, 42)
	require.Equal(t, uint32(1), s.m.Stats().LastSeq)
	require.True(t, s.r.Header().IsClean())
	require.Zero(t, s.log.Count(), "log must be cleared after commit")
	require.NoError(t, s.r.Close())

	s = openStack(t, path)
	require.Zero(t, s.rep.LogEntries)
	require.Equal(t, uint64(42), s.u64(oid))
	require.True(t, s.heap.IsLive(oid))
	require.Equal(t, uint32(1), s.r.Header().SecondarySeq())
}

func TestAbortRestoresEverything(t *testing.T) {
	s := openStack(t, createRegion(t))
	oid := seed(t, s, 1)

	before := bytes.Clone(s.r.Bytes())
	beforeStats := s.heap.Stats()
	beforeSpans := s.heap.FreeSpans()
	beforeLive := s.heap.LiveObjects()
	ctx := context.Background()

	t2, err := s.m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, t2.PutU64(int(oid), 99))
	// Big enough to force the heap to grow.
	_, err = t2.Alloc(3*format.PageSize, 8)
	require.NoError(t, err)
	require.Greater(t, s.r.Size(), int64(len(before)))
	require.NoError(t, t2.Free(oid))
	require.NoError(t, t2.Abort(ctx))

	require.Equal(t, StateAborted, t2.State())
	require.False(t, s.m.InTransaction())
	require.Equal(t, int64(len(before)), s.r.Size())
	heapOff := s.r.Header().HeapOffset()
	require.Equal(t, before[heapOff:], s.r.Bytes()[heapOff:])
	require.Equal(t, beforeStats.FreeBytes, s.heap.Stats().FreeBytes)
	require.Equal(t, beforeSpans, s.heap.FreeSpans())
	require.Equal(t, beforeLive, s.heap.LiveObjects())
	require.Equal(t, uint64(1), s.u64(oid))
	require.True(t, s.r.Header().IsClean())
	require.True(t, s.r.Header().ChecksumOK())
}

func TestNestingRejected(t *testing.T) {
	s := openStack(t, createRegion(t))
	ctx := context.Background()

	t1, err := s.m.Begin(ctx)
	require.NoError(t, err)
	_, err = s.m.Begin(ctx)
	require.ErrorIs(t, err, ErrNesting)
	err = s.m.Run(ctx, func(*Tx) error { return nil })
	require.ErrorIs(t, err, ErrNesting)
	require.NoError(t, t1.Commit(ctx))

	_, err = s.m.Begin(ctx)
	require.NoError(t, err)
}

func TestWritesOutsideTransaction(t *testing.T) {
	s := openStack(t, createRegion(t))
	ctx := context.Background()

	t1, err := s.m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, t1.Commit(ctx))

	require.ErrorIs(t, t1.PutU64(format.HeaderSize+format.LogHeaderSize, 1), ErrNoActiveTransaction)
	_, err = t1.Alloc(16, 1)
	require.ErrorIs(t, err, ErrNoActiveTransaction)
	require.ErrorIs(t, t1.Commit(ctx), ErrNoActiveTransaction)
	require.ErrorIs(t, t1.Abort(ctx), ErrNoActiveTransaction)
	_, err = s.heap.Alloc(nil, 16, 1)
	require.ErrorIs(t, err, ErrNoActiveTransaction)
}

func TestBeginRequiresRecovery(t *testing.T) {
	path := createRegion(t)
	r, err := region.Open(path, testLayout, region.OpenOptions{})
	require.NoError(t, err)
	defer r.Close()

	dt := dirty.NewTracker(r)
	log, err := undo.Attach(r, dt)
	require.NoError(t, err)
	m := NewManager(r, dt, log, alloc.New(r, alloc.Options{}), Options{})

	_, err = m.Begin(context.Background())
	require.ErrorIs(t, err, ErrNotRecovered)
}

func TestRunAbortsOnError(t *testing.T) {
	s := openStack(t, createRegion(t))
	oid := seed(t, s, 5)
	boom := errors.New("boom")

	err := s.m.Run(context.Background(), func(t2 *Tx) error {
		if err := t2.PutU64(int(oid), 6); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, uint64(5), s.u64(oid))
	require.Equal(t, 1, s.m.Stats().Aborted)
}

func TestRunAbortsOnPanic(t *testing.T) {
	s := openStack(t, createRegion(t))
	oid := seed(t, s, 5)

	require.PanicsWithValue(t, "kaboom", func() {
		_ = s.m.Run(context.Background(), func(t2 *Tx) error {
			_ = t2.PutU64(int(oid), 6)
			panic("kaboom")
		})
	})
	require.False(t, s.m.InTransaction())
	require.Equal(t, uint64(5), s.u64(oid))
	require.Zero(t, s.log.Count())
}

func TestRunBodyAbortsItself(t *testing.T) {
	s := openStack(t, createRegion(t))
	ctx := context.Background()
	err := s.m.Run(ctx, func(t2 *Tx) error { return t2.Abort(ctx) })
	require.ErrorIs(t, err, ErrAborted)
}

func TestSnapshotOncePerRange(t *testing.T) {
	s := openStack(t, createRegion(t))
	oid := seed(t, s, 0)
	ctx := context.Background()

	t2, err := s.m.Begin(ctx)
	require.NoError(t, err)
	off := int(oid)
	require.NoError(t, t2.PutU64(off, 1))
	require.NoError(t, t2.PutU64(off, 2))
	require.Equal(t, 1, s.log.Count())

	// Overlapping wider range only logs the uncovered tail.
	require.NoError(t, t2.AddRange(off, 16))
	require.Equal(t, 2, s.log.Count())
	require.Equal(t, 16, t2.Snapshotted())

	entries, err := s.log.Entries()
	require.NoError(t, err)
	require.Equal(t, off+8, entries[1].Off)
	require.Len(t, entries[1].Data, 8)
	require.NoError(t, t2.Abort(ctx))
	require.Equal(t, uint64(0), s.u64(oid))
}

func TestAddRangeRejectsLogArea(t *testing.T) {
	s := openStack(t, createRegion(t))
	ctx := context.Background()
	t2, err := s.m.Begin(ctx)
	require.NoError(t, err)
	defer t2.Abort(ctx)

	h := s.r.Header()
	require.ErrorIs(t, t2.AddRange(h.LogOffset()+8, 8), ErrProtectedRange)
	require.ErrorIs(t, t2.AddRange(h.LogOffset()-4, 8), ErrProtectedRange)
	require.Error(t, t2.AddRange(int(s.r.Size())-4, 8))
	require.NoError(t, t2.AddRange(format.RootOIDOffset, 8))
}

func TestLogFullAbortsRun(t *testing.T) {
	s := openStack(t, createRegion(t))
	oid := seed(t, s, 3)
	big := make([]byte, s.log.Capacity())

	err := s.m.Run(context.Background(), func(t2 *Tx) error {
		if err := t2.PutU64(int(oid), 4); err != nil {
			return err
		}
		return t2.Write(s.r.Header().HeapOffset(), big)
	})
	require.ErrorIs(t, err, undo.ErrLogFull)
	require.Equal(t, uint64(3), s.u64(oid))
}

func TestDeferredFree(t *testing.T) {
	s := openStack(t, createRegion(t))
	a := seed(t, s, 10)
	ctx := context.Background()

	// An aborted free leaves the object alive.
	t1, err := s.m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, t1.Free(a))
	require.True(t, t1.Freed(a))
	require.True(t, s.m.Freed(a))
	require.NoError(t, t1.Abort(ctx))
	require.True(t, s.heap.IsLive(a))
	require.False(t, s.m.Freed(a))

	t2, err := s.m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, t2.Free(a))
	require.ErrorIs(t, t2.Free(a), alloc.ErrDoubleFree)
	require.True(t, s.heap.IsLive(a), "free takes effect at commit")
	b, err := t2.Alloc(16, 7)
	require.NoError(t, err)
	require.NotEqual(t, a, b, "space freed in a transaction is not reused by it")
	require.False(t, t2.Freed(b))
	require.NoError(t, t2.Commit(ctx))

	require.False(t, s.heap.IsLive(a))
	require.True(t, s.heap.IsLive(b))
	_, err = s.heap.TypeOf(a)
	require.Error(t, err)
}

func TestFreeRejectsBadRef(t *testing.T) {
	s := openStack(t, createRegion(t))
	ctx := context.Background()
	t1, err := s.m.Begin(ctx)
	require.NoError(t, err)
	defer t1.Abort(ctx)
	require.ErrorIs(t, t1.Free(alloc.OID(12345)), alloc.ErrBadRef)
}

func TestCommitWithCancelledContextAborts(t *testing.T) {
	s := openStack(t, createRegion(t))
	oid := seed(t, s, 8)

	ctx, cancel := context.WithCancel(context.Background())
	t1, err := s.m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, t1.PutU64(int(oid), 9))
	cancel()

	require.ErrorIs(t, t1.Commit(ctx), context.Canceled)
	require.Equal(t, StateAborted, t1.State())
	require.Equal(t, uint64(8), s.u64(oid))
	require.False(t, s.m.InTransaction())
}

// TestCrashDuringCommit stops a commit at each stage, drops the mapping as a
// dying process would and checks that reopening yields either the old or the
// new state, never a mix.
func TestCrashDuringCommit(t *testing.T) {
	cases := []struct {
		stage     Stage
		committed bool
	}{
		{StageFreesApplied, false},
		{StageDataFlushed, false},
		{StageMarkerWritten, true},
		{StageMarkerDurable, true},
	}
	for _, tc := range cases {
		t.Run(tc.stage.String(), func(t *testing.T) {
			path := createRegion(t)
			s := openStack(t, path)
			keep := seed(t, s, 1)
			victim := seed(t, s, 2)
			sizeBefore := s.r.Size()

			var grown alloc.OID
			s.m.SetOnStage(func(st Stage) error {
				if st == tc.stage {
					return errCrash
				}
				return nil
			})
			err := s.m.Run(context.Background(), func(t2 *Tx) error {
				if err := t2.PutU64(int(keep), 100); err != nil {
					return err
				}
				if err := t2.Free(victim); err != nil {
					return err
				}
				var err error
				grown, err = t2.Alloc(2*format.PageSize, 9)
				return err
			})
			require.ErrorIs(t, err, errCrash)
			require.NoError(t, s.r.Abandon())

			s = openStack(t, path)
			require.True(t, s.r.Header().IsClean())
			require.Zero(t, s.log.Count())
			if tc.committed {
				require.Equal(t, uint64(100), s.u64(keep))
				require.False(t, s.heap.IsLive(victim))
				require.True(t, s.heap.IsLive(grown))
				require.False(t, s.rep.RolledBack())
			} else {
				require.True(t, s.rep.RolledBack())
				require.Equal(t, uint64(1), s.u64(keep))
				require.True(t, s.heap.IsLive(victim))
				require.Equal(t, uint64(2), s.u64(victim))
				require.Equal(t, sizeBefore, s.r.Size(), "growth must be truncated")
				require.False(t, s.heap.IsLive(grown))
			}
		})
	}
}

func TestCrashMidTransactionRollsBack(t *testing.T) {
	path := createRegion(t)
	s := openStack(t, path)
	oid := seed(t, s, 11)

	t1, err := s.m.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, t1.PutU64(int(oid), 12))
	_, err = t1.Alloc(16, 1)
	require.NoError(t, err)
	require.NoError(t, s.r.Abandon())

	s = openStack(t, path)
	require.True(t, s.rep.RolledBack())
	require.Equal(t, uint32(2), s.rep.LogSeq)
	require.Equal(t, uint64(11), s.u64(oid))
	require.Len(t, s.heap.LiveObjects(), 1)
}

func TestRecoverIsIdempotent(t *testing.T) {
	path := createRegion(t)
	s := openStack(t, path)
	oid := seed(t, s, 20)

	t1, err := s.m.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, t1.PutU64(int(oid), 21))
	require.NoError(t, s.r.Abandon())

	// First recovery attempt dies right after replaying, before the log is
	// cleared.
	r, err := region.Open(path, testLayout, region.OpenOptions{})
	require.NoError(t, err)
	log, err := undo.Attach(r, dirty.NewTracker(r))
	require.NoError(t, err)
	n, err := log.Replay()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, r.Abandon())

	s = openStack(t, path)
	require.True(t, s.rep.RolledBack())
	require.Equal(t, uint64(20), s.u64(oid))

	again, err := s.m.Recover(context.Background())
	require.NoError(t, err)
	require.Zero(t, again.LogEntries)
	require.Equal(t, uint64(20), s.u64(oid))
}

func TestRecoverDiscardsCommittedLog(t *testing.T) {
	path := createRegion(t)
	s := openStack(t, path)
	oid := seed(t, s, 30)

	s.m.SetOnStage(func(st Stage) error {
		if st == StageMarkerDurable {
			return errCrash
		}
		return nil
	})
	require.ErrorIs(t, s.m.Run(context.Background(), func(t2 *Tx) error {
		return t2.PutU64(int(oid), 31)
	}), errCrash)
	require.Equal(t, 1, s.log.Count())
	require.NoError(t, s.r.Abandon())

	s = openStack(t, path)
	require.True(t, s.rep.Discarded)
	require.Equal(t, uint64(31), s.u64(oid))
}
