package alloc

import "container/heap"

// freeCell is a free cell indexed by the allocator.
type freeCell struct {
	off       int
	size      int
	sc        int
	heapIndex int
}

func (c *freeCell) end() int { return c.off + c.size }

// freeCellHeap is a min-heap keyed on size, then offset, so the top is the
// best fit and ties resolve to the lowest address.
type freeCellHeap []*freeCell

func (h freeCellHeap) Len() int { return len(h) }

func (h freeCellHeap) Less(i, j int) bool {
	if h[i].size != h[j].size {
		return h[i].size < h[j].size
	}
	return h[i].off < h[j].off
}

func (h freeCellHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *freeCellHeap) Push(x any) {
	cell := x.(*freeCell) //nolint:errcheck // heap.Interface contract guarantees type
	cell.heapIndex = len(*h)
	*h = append(*h, cell)
}

func (h *freeCellHeap) Pop() any {
	old := *h
	n := len(old)
	cell := old[n-1]
	old[n-1] = nil
	cell.heapIndex = -1
	*h = old[:n-1]
	return cell
}

// takeBestFit removes and returns the smallest cell of at least need bytes,
// or nil.
func (h *freeCellHeap) takeBestFit(need int) *freeCell {
	if h.Len() == 0 {
		return nil
	}
	if (*h)[0].size >= need {
		return heap.Pop(h).(*freeCell) //nolint:errcheck // heap contains only *freeCell
	}
	best := -1
	for i, c := range *h {
		if c.size < need {
			continue
		}
		if best < 0 || h.Less(i, best) {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	return heap.Remove(h, best).(*freeCell) //nolint:errcheck // heap contains only *freeCell
}
