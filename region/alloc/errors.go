package alloc

import "errors"

var (
	// ErrNoActiveTransaction indicates Alloc or Free was called without an active journal.
	ErrNoActiveTransaction = errors.New("alloc: no active transaction")

	// ErrBadRef indicates an object id that does not name a live cell.
	ErrBadRef = errors.New("alloc: bad object reference")

	// ErrDoubleFree indicates Free was called on a cell that is already free.
	ErrDoubleFree = errors.New("alloc: cell already free")

	// ErrBadSize indicates a request for zero bytes or more than a cell can hold.
	ErrBadSize = errors.New("alloc: invalid allocation size")

	// ErrNotIndexed indicates the heap has not been scanned by Rebuild yet.
	ErrNotIndexed = errors.New("alloc: heap not indexed")

	// ErrGrowFail indicates that growing the heap failed.
	ErrGrowFail = errors.New("alloc: grow failed")
)
