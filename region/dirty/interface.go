package dirty

import "context"

// DirtyTracker is the minimal interface for components that only report
// modified ranges (allocators, object writers) and never flush themselves.
type DirtyTracker interface {
	// Add marks [off, off+length) as dirty.
	Add(off, length int)
}

// FlushableTracker extends DirtyTracker with the flushes a transaction
// manager orders around its commit marker.
type FlushableTracker interface {
	DirtyTracker

	// FlushDataOnly flushes every dirty range except the header page.
	FlushDataOnly(ctx context.Context) error

	// FlushHeaderAndMeta flushes the header page and syncs the file per mode.
	FlushHeaderAndMeta(ctx context.Context, mode FlushMode) error

	// Persist flushes one range synchronously, outside of the dirty set.
	Persist(ctx context.Context, off, length int) error

	// Reset forgets every tracked range.
	Reset()
}

// Media is what the tracker flushes to. *region.Region implements it.
type Media interface {
	Size() int64
	Sync(off, n int) error
	SyncFile(full bool) error
}
