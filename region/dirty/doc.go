// Package dirty tracks modified byte ranges of a mapped region and flushes
// them in the order a commit needs.
//
// A commit first flushes every dirty data page with FlushDataOnly, then writes
// the commit marker into the header and flushes the header page with
// FlushHeaderAndMeta. Writing the header last means a crash can never leave a
// durable marker in front of data that is still only in the page cache.
//
// Persist is the unordered escape hatch: it flushes one range immediately and
// is used for the write-ahead undo log and for scalar stores performed outside
// a transaction.
//
// # Usage
//
//	dt := dirty.NewTracker(r)
//	dt.Add(off, n)                                // after each write
//	_ = dt.FlushDataOnly(ctx)                     // data pages
//	_ = dt.FlushHeaderAndMeta(ctx, dirty.FlushAuto) // header + fdatasync
package dirty
