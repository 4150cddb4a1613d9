package tx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/internal/logger"
	"github.com/joshuapare/pmemkit/region"
	"github.com/joshuapare/pmemkit/region/alloc"
	"github.com/joshuapare/pmemkit/region/dirty"
	"github.com/joshuapare/pmemkit/region/undo"
)

// Stage names a point inside Commit. Test builds hook these to cut a commit
// short and reopen the region as if the process had died there.
type Stage int

const (
	// StageFreesApplied: deferred frees are on the heap, nothing flushed yet.
	StageFreesApplied Stage = iota
	// StageDataFlushed: every dirty data range is durable, marker not written.
	StageDataFlushed
	// StageMarkerWritten: SecondarySeq updated in memory, header not flushed.
	StageMarkerWritten
	// StageMarkerDurable: header flushed, undo log still populated.
	StageMarkerDurable
)

func (s Stage) String() string {
	switch s {
	case StageFreesApplied:
		return "frees-applied"
	case StageDataFlushed:
		return "data-flushed"
	case StageMarkerWritten:
		return "marker-written"
	case StageMarkerDurable:
		return "marker-durable"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Options configures a Manager.
type Options struct {
	// FlushMode controls the file sync issued after the header flush.
	FlushMode dirty.FlushMode
	// Logger receives lifecycle events. Nil discards them.
	Logger *slog.Logger
}

// Stats counts transaction outcomes since the Manager was created.
type Stats struct {
	Begun       int
	Committed   int
	Aborted     int
	Snapshots   int // undo entries written
	Snapshotted int // bytes captured in undo entries
	LastSeq     uint32
}

// RecoveryReport describes what Recover found and did.
type RecoveryReport struct {
	PrimarySeq   uint32 // header sequences as found on open
	SecondarySeq uint32
	LogSeq       uint32
	LogEntries   int
	Replayed     int   // entries written back
	Discarded    bool  // log belonged to a committed transaction
	SlackBytes   int64 // bytes of abandoned growth truncated
}

// RolledBack reports whether an interrupted transaction was undone.
func (r RecoveryReport) RolledBack() bool { return r.LogEntries > 0 && !r.Discarded }

// Manager coordinates transactions over one region.
type Manager struct {
	r      *region.Region
	dt     dirty.FlushableTracker
	log    *undo.Log
	heap   alloc.Allocator
	mode   dirty.FlushMode
	logger *slog.Logger

	cur       *Tx
	recovered bool
	stats     Stats

	// onStage is called at each Stage of Commit. A non-nil error stops the
	// commit on the spot and is returned unchanged.
	onStage func(Stage) error
}

// NewManager creates a transaction manager. Recover must run before the
// first Begin.
func NewManager(r *region.Region, dt dirty.FlushableTracker, log *undo.Log, heap alloc.Allocator, opts Options) *Manager {
	return &Manager{
		r:      r,
		dt:     dt,
		log:    log,
		heap:   heap,
		mode:   opts.FlushMode,
		logger: logger.Or(opts.Logger),
	}
}

// Region returns the region the manager writes to.
func (m *Manager) Region() *region.Region { return m.r }

// Allocator returns the heap allocator.
func (m *Manager) Allocator() alloc.Allocator { return m.heap }

// InTransaction reports whether a transaction is running.
func (m *Manager) InTransaction() bool { return m.cur != nil }

// Freed reports whether the running transaction has freed oid.
func (m *Manager) Freed(oid alloc.OID) bool { return m.cur != nil && m.cur.Freed(oid) }

// CurrentSequence returns the header's primary sequence number.
func (m *Manager) CurrentSequence() uint32 { return m.r.Header().PrimarySeq() }

// Stats returns a copy of the outcome counters.
func (m *Manager) Stats() Stats { return m.stats }

// Recover brings the region to a consistent state after open. An undo log
// owned by a transaction that never wrote its commit marker is replayed in
// reverse; a log left behind by a committed transaction is discarded. Growth
// past the logical heap end is truncated and the allocator rebuilt.
//
// Recover is idempotent: a crash in the middle of it leaves the log intact
// and the next Recover finishes the job.
func (m *Manager) Recover(ctx context.Context) (RecoveryReport, error) {
	if m.cur != nil {
		return RecoveryReport{}, ErrNesting
	}
	h := m.r.Header()
	rep := RecoveryReport{
		PrimarySeq:   h.PrimarySeq(),
		SecondarySeq: h.SecondarySeq(),
		LogSeq:       m.log.Seq(),
		LogEntries:   m.log.Count(),
	}

	switch {
	case rep.LogEntries > 0 && rep.LogSeq != rep.SecondarySeq:
		n, err := m.rollback(ctx, rep.SecondarySeq)
		if err != nil {
			return rep, fmt.Errorf("tx: recover: %w", err)
		}
		rep.Replayed = n
		m.logger.Warn("rolled back interrupted transaction",
			"path", m.r.Path(), "seq", rep.LogSeq, "entries", rep.LogEntries, "replayed", n)

	case rep.LogEntries > 0:
		rep.Discarded = true
		if err := m.log.Reset(ctx, rep.SecondarySeq); err != nil {
			return rep, fmt.Errorf("tx: recover: %w", err)
		}
		m.logger.Info("discarded undo log of committed transaction", "path", m.r.Path(), "seq", rep.LogSeq)

	case !h.IsClean():
		// Begin ran but nothing was snapshotted before the crash.
		h.SetSequences(rep.SecondarySeq, rep.SecondarySeq)
		h.StampChecksum()
		if err := m.dt.Persist(ctx, 0, format.HeaderSize); err != nil {
			return rep, fmt.Errorf("tx: recover: %w", err)
		}
	}

	slack, err := m.r.TruncateSlack()
	if err != nil {
		return rep, fmt.Errorf("tx: recover: %w", err)
	}
	rep.SlackBytes = slack
	if err := m.heap.Rebuild(); err != nil {
		return rep, fmt.Errorf("tx: recover: %w", err)
	}
	m.recovered = true
	return rep, nil
}

// rollback writes the log's pre-images back, restores the header sequences to
// committed, makes the result durable and clears the log. The log is cleared
// last so an interruption anywhere here is retried by the next Recover.
func (m *Manager) rollback(ctx context.Context, committed uint32) (int, error) {
	n, err := m.log.Replay()
	if err != nil {
		return 0, err
	}
	h := m.r.Header()
	h.SetSequences(committed, committed)
	h.StampChecksum()
	m.dt.Add(0, format.HeaderSize)
	if err := m.dt.FlushDataOnly(ctx); err != nil {
		return n, err
	}
	if err := m.dt.FlushHeaderAndMeta(ctx, m.mode); err != nil {
		return n, err
	}
	if err := m.log.Reset(ctx, committed); err != nil {
		return n, err
	}
	return n, nil
}

// Begin starts a transaction.
//
// Begin() sequence:
//  1. Refuse if another transaction is running
//  2. Claim the undo log for PrimarySeq+1 (durable)
//  3. Write the new PrimarySeq and timestamp to the header
//  4. Mark the header page dirty
func (m *Manager) Begin(ctx context.Context) (*Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.cur != nil {
		return nil, ErrNesting
	}
	if !m.recovered {
		return nil, ErrNotRecovered
	}

	h := m.r.Header()
	committed := h.SecondarySeq()
	seq := committed + 1
	if err := m.log.Reset(ctx, seq); err != nil {
		return nil, fmt.Errorf("tx: begin: %w", err)
	}

	h.SetSequences(seq, committed)
	h.Touch(time.Now())
	h.StampChecksum()
	m.dt.Add(0, format.HeaderSize)

	t := &Tx{m: m, ctx: ctx, seq: seq, committed: committed, state: StateActive}
	m.cur = t
	m.stats.Begun++
	m.logger.Debug("transaction begun", "seq", seq)
	return t, nil
}

// Run executes fn inside a transaction. The transaction commits when fn
// returns nil and aborts when fn returns an error or panics; a panic is
// re-raised once the abort is done.
func (m *Manager) Run(ctx context.Context, fn func(t *Tx) error) error {
	t, err := m.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			if t.state == StateActive {
				if abortErr := t.Abort(ctx); abortErr != nil {
					m.logger.Error("abort after panic failed", "seq", t.seq, "error", abortErr)
				}
			}
			panic(p)
		}
	}()

	if fnErr := fn(t); fnErr != nil {
		if t.state != StateActive {
			return fnErr
		}
		return errors.Join(fnErr, t.Abort(ctx))
	}
	switch t.state {
	case StateAborted:
		return ErrAborted
	case StateCommitted:
		return nil
	}
	return t.Commit(ctx)
}

func (m *Manager) stage(s Stage) error {
	if m.onStage == nil {
		return nil
	}
	return m.onStage(s)
}
