// Package undo implements the write-ahead undo log that lives in the log area
// of a region file.
//
// Before a transaction overwrites a range of the region for the first time,
// the range's current bytes (its pre-image) are appended to the log. Append
// makes the entry durable first and only then bumps the entry count in the log
// header, so a crash can leave an unused tail but never a counted entry that
// is only half written. Every entry carries an xxhash64 of its offset, length
// and pre-image.
//
// Replay writes the pre-images back in reverse append order. Restoring an
// absolute pre-image is idempotent, so replaying an interrupted replay is safe.
//
// The log header also records the sequence number of the transaction that
// owns the entries. The transaction manager compares it with the header's
// commit marker to decide, during recovery, whether the entries belong to a
// committed transaction (discard) or an interrupted one (replay).
package undo
