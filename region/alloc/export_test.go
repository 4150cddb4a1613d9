package alloc

// SetOnGrow installs a hook called with the page count before every growth.
func (a *CellAllocator) SetOnGrow(fn func(pages int)) { a.onGrow = fn }

// NumClasses exposes the number of size classes (excluding the large class).
func (a *CellAllocator) NumClasses() int { return a.table.numClasses }
