// Package tx provides crash-consistent transactions over a persistent region.
//
// # Overview
//
// A transaction groups writes to the region so that after a crash either all
// of them are visible or none are. Every range is snapshotted into the undo
// log before its first modification inside the transaction; the log entry is
// durable before the caller is allowed to overwrite the bytes.
//
// Transaction lifecycle:
//  1. Begin(): claim the log for a new sequence, bump PrimarySeq
//  2. AddRange()/Write(): snapshot pre-images, modify, mark dirty
//  3. Commit(): flush data, write SecondarySeq = PrimarySeq, flush header,
//     clear the log
//  4. Abort(): replay pre-images in reverse, flush, clear the log
//
// # Sequence Numbers
//
// The header carries two sequence numbers:
//   - PrimarySeq (offset 0x04): bumped in memory at Begin()
//   - SecondarySeq (offset 0x08): the commit marker, written at Commit()
//
// The undo log header records the sequence of the transaction that owns its
// entries. On open, a log holding entries whose sequence differs from
// SecondarySeq belongs to a transaction that never reached its commit marker
// and is replayed. A log whose sequence equals SecondarySeq belongs to a
// committed transaction that crashed before clearing it and is discarded.
//
// # Commit Ordering
//
// Commit() sequence:
//
//	err := tx.Commit(ctx)
//	// 1. Apply deferred frees (still snapshotted)
//	// 2. Flush all dirty data pages
//	// 3. Set SecondarySeq = PrimarySeq, timestamp, checksum
//	// 4. Flush header page and sync the file (per FlushMode)
//	// 5. Clear the undo log
//
// A crash before step 4 completes leaves the previous marker on media and the
// log is replayed. A crash after step 4 leaves a log that is discarded.
//
// # Usage
//
//	mgr := tx.NewManager(r, dt, log, heap, tx.Options{})
//	if _, err := mgr.Recover(ctx); err != nil {
//	    return err
//	}
//	err := mgr.Run(ctx, func(t *tx.Tx) error {
//	    oid, err := t.Alloc(16, typeNode)
//	    if err != nil {
//	        return err
//	    }
//	    return t.PutU64(int(oid), 42)
//	})
//
// Transactions do not nest and a Manager is not safe for concurrent use.
package tx
