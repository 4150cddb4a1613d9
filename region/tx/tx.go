package tx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/region"
	"github.com/joshuapare/pmemkit/region/alloc"
)

// State is the lifecycle state of a transaction.
type State int

const (
	StateActive State = iota
	StateCommitting
	StateCommitted
	StateAborting
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCommitting:
		return "committing"
	case StateCommitted:
		return "committed"
	case StateAborting:
		return "aborting"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Tx is a running transaction. It implements alloc.Journal.
type Tx struct {
	m         *Manager
	ctx       context.Context
	seq       uint32
	committed uint32 // SecondarySeq when the transaction began
	state     State

	snaps         spanSet
	frees         []alloc.OID
	pendingFree   map[alloc.OID]struct{}
	markerWritten bool
}

var _ alloc.Journal = (*Tx)(nil)

// Seq returns the transaction's sequence number.
func (t *Tx) Seq() uint32 { return t.seq }

// State returns the lifecycle state.
func (t *Tx) State() State { return t.state }

// Active reports whether the transaction still accepts writes.
func (t *Tx) Active() bool { return t.state == StateActive }

// Region returns the region the transaction writes to.
func (t *Tx) Region() *region.Region { return t.m.r }

// Snapshotted returns the number of distinct bytes captured so far.
func (t *Tx) Snapshotted() int { return t.snaps.covered() }

// Add marks [off, off+n) as modified without snapshotting it. Callers must
// have covered the range with AddRange first.
func (t *Tx) Add(off, n int) { t.m.dt.Add(off, n) }

// AddRange snapshots [off, off+n) into the undo log so the range can be
// modified. Bytes already snapshotted by this transaction are skipped; each
// uncovered piece becomes one durable log entry before AddRange returns.
func (t *Tx) AddRange(off, n int) error {
	if !t.Active() {
		return ErrNoActiveTransaction
	}
	if n == 0 {
		return nil
	}
	r := t.m.r
	if err := r.CheckRange(off, n); err != nil {
		return fmt.Errorf("tx: snapshot [0x%X, +%d): %w", off, n, err)
	}
	h := r.Header()
	if logOff := h.LogOffset(); off < logOff+h.LogSize() && off+n > logOff {
		return fmt.Errorf("tx: snapshot [0x%X, +%d): %w", off, n, ErrProtectedRange)
	}

	data := r.Bytes()
	for _, g := range t.snaps.gaps(off, off+n) {
		if err := t.m.log.Append(t.ctx, g.start, data[g.start:g.end]); err != nil {
			return fmt.Errorf("tx: snapshot [0x%X, +%d): %w", g.start, g.end-g.start, err)
		}
		t.snaps.add(g.start, g.end)
		t.m.stats.Snapshots++
		t.m.stats.Snapshotted += g.end - g.start
	}
	return nil
}

// Write snapshots the destination and copies b to off.
func (t *Tx) Write(off int, b []byte) error {
	if err := t.AddRange(off, len(b)); err != nil {
		return err
	}
	copy(t.m.r.Bytes()[off:], b)
	t.m.dt.Add(off, len(b))
	return nil
}

// PutU64 writes a little-endian uint64 at off.
func (t *Tx) PutU64(off int, v uint64) error {
	if err := t.AddRange(off, 8); err != nil {
		return err
	}
	format.PutU64(t.m.r.Bytes(), off, v)
	t.m.dt.Add(off, 8)
	return nil
}

// PutI64 writes a little-endian int64 at off.
func (t *Tx) PutI64(off int, v int64) error { return t.PutU64(off, uint64(v)) }

// PutU32 writes a little-endian uint32 at off.
func (t *Tx) PutU32(off int, v uint32) error {
	if err := t.AddRange(off, 4); err != nil {
		return err
	}
	format.PutU32(t.m.r.Bytes(), off, v)
	t.m.dt.Add(off, 4)
	return nil
}

// Alloc reserves a zeroed object of at least size bytes tagged with typeID.
func (t *Tx) Alloc(size int, typeID uint32) (alloc.OID, error) {
	if !t.Active() {
		return 0, ErrNoActiveTransaction
	}
	return t.m.heap.Alloc(t, size, typeID)
}

// Free schedules oid to be released when the transaction commits. The object
// stays readable until then and its space is not reused by this transaction.
func (t *Tx) Free(oid alloc.OID) error {
	if !t.Active() {
		return ErrNoActiveTransaction
	}
	if _, err := t.m.heap.TypeOf(oid); err != nil {
		return err
	}
	if _, dup := t.pendingFree[oid]; dup {
		return fmt.Errorf("tx: free %s: %w", oid, alloc.ErrDoubleFree)
	}
	if t.pendingFree == nil {
		t.pendingFree = make(map[alloc.OID]struct{})
	}
	t.pendingFree[oid] = struct{}{}
	t.frees = append(t.frees, oid)
	return nil
}

// Freed reports whether oid was freed by this transaction. The object stays
// live until commit but must not be referenced again.
func (t *Tx) Freed(oid alloc.OID) bool {
	_, ok := t.pendingFree[oid]
	return ok
}

// Commit makes every change of the transaction durable.
//
// Commit() sequence:
//  1. Apply deferred frees
//  2. Flush all dirty data ranges
//  3. Set SecondarySeq = PrimarySeq, update timestamp and checksum
//  4. Flush header page and sync per FlushMode
//  5. Clear the undo log
//
// If any step before 4 completes fails, the transaction is aborted and the
// error returned.
func (t *Tx) Commit(ctx context.Context) error {
	if !t.Active() {
		return ErrNoActiveTransaction
	}
	m := t.m

	for _, oid := range t.frees {
		if err := m.heap.Free(t, oid); err != nil {
			return errors.Join(fmt.Errorf("tx: commit: free %s: %w", oid, err), t.abort(ctx))
		}
	}
	t.frees, t.pendingFree = nil, nil
	if err := m.stage(StageFreesApplied); err != nil {
		return err
	}

	t.state = StateCommitting
	if err := m.dt.FlushDataOnly(ctx); err != nil {
		return errors.Join(fmt.Errorf("tx: commit: %w", err), t.abort(ctx))
	}
	if err := m.stage(StageDataFlushed); err != nil {
		return err
	}

	h := m.r.Header()
	h.SetSequences(t.seq, t.seq)
	h.Touch(time.Now())
	h.StampChecksum()
	m.dt.Add(0, format.HeaderSize)
	t.markerWritten = true
	if err := m.stage(StageMarkerWritten); err != nil {
		return err
	}

	if err := m.dt.FlushHeaderAndMeta(ctx, m.mode); err != nil {
		return errors.Join(fmt.Errorf("tx: commit: %w", err), t.abort(ctx))
	}
	if err := m.stage(StageMarkerDurable); err != nil {
		return err
	}

	// The marker is durable; a log left behind is discarded on recovery.
	if err := m.log.Reset(ctx, t.seq); err != nil {
		m.logger.Warn("commit durable but undo log not cleared", "seq", t.seq, "error", err)
	}
	t.finish(StateCommitted)
	m.stats.Committed++
	m.stats.LastSeq = t.seq
	m.logger.Debug("transaction committed", "seq", t.seq, "snapshotted", t.snaps.covered())
	return nil
}

// Abort undoes every change of the transaction. The region is left exactly
// as it was before Begin, including heap growth and allocator state.
func (t *Tx) Abort(ctx context.Context) error {
	if !t.Active() {
		return ErrNoActiveTransaction
	}
	return t.abort(ctx)
}

func (t *Tx) abort(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	m := t.m
	t.state = StateAborting

	if t.markerWritten {
		h := m.r.Header()
		h.SetSequences(t.committed, t.committed)
		h.StampChecksum()
		if err := m.dt.Persist(ctx, 0, format.HeaderSize); err != nil {
			return t.wedge(fmt.Errorf("tx: abort: withdraw commit marker: %w", err))
		}
	}

	n, err := m.rollback(ctx, t.committed)
	if err != nil {
		return t.wedge(fmt.Errorf("tx: abort: %w", err))
	}
	if _, err := m.r.TruncateSlack(); err != nil {
		return t.wedge(fmt.Errorf("tx: abort: %w", err))
	}
	if err := m.heap.Rebuild(); err != nil {
		return t.wedge(fmt.Errorf("tx: abort: %w", err))
	}

	t.finish(StateAborted)
	m.stats.Aborted++
	m.logger.Debug("transaction aborted", "seq", t.seq, "replayed", n)
	return nil
}

// wedge detaches a transaction whose abort failed. The undo log still holds
// its entries, so the manager refuses new work until Recover succeeds.
func (t *Tx) wedge(err error) error {
	t.m.cur = nil
	t.m.recovered = false
	t.m.logger.Error("abort failed, recovery required", "seq", t.seq, "error", err)
	return err
}

func (t *Tx) finish(s State) {
	t.state = s
	t.snaps.reset()
	t.m.cur = nil
}
