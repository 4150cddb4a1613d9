// Package alloc manages the heap of a region: a contiguous run of cells, each
// an 8-byte header (signed size, type id) followed by the payload. A negative
// size marks an allocated cell.
//
// CellAllocator keeps the free cells in segregated min-heaps per size class
// for best-fit allocation, splits cells on allocation, coalesces neighbours on
// free, and grows the heap by whole pages through region.Append.
//
// Every byte the allocator changes on media goes through a Journal, normally
// the active transaction. The Journal snapshots the bytes before they change
// and records them dirty afterwards, so allocator metadata is covered by the
// same undo log as the user data it describes. Calling Alloc or Free without
// an active Journal fails with ErrNoActiveTransaction.
//
// The in-memory free lists are derived state. After a transaction aborts, or
// after recovery, the owner calls Rebuild, which rescans the heap; because
// the undo log restored every cell header, the rebuilt lists are exactly the
// lists the allocator had before the transaction began.
package alloc
