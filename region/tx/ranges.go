package tx

import "sort"

// span is a half-open byte range [start, end).
type span struct {
	start, end int
}

// spanSet is a sorted set of disjoint, non-adjacent spans.
type spanSet struct {
	spans []span
}

// gaps returns the parts of [start, end) not covered by the set.
func (s *spanSet) gaps(start, end int) []span {
	var out []span
	i := sort.Search(len(s.spans), func(i int) bool { return s.spans[i].end > start })
	cur := start
	for ; i < len(s.spans) && s.spans[i].start < end; i++ {
		if s.spans[i].start > cur {
			out = append(out, span{cur, s.spans[i].start})
		}
		cur = max(cur, s.spans[i].end)
	}
	if cur < end {
		out = append(out, span{cur, end})
	}
	return out
}

// add inserts [start, end), merging it with overlapping or adjacent spans.
func (s *spanSet) add(start, end int) {
	if start >= end {
		return
	}
	i := sort.Search(len(s.spans), func(i int) bool { return s.spans[i].end >= start })
	j := i
	for j < len(s.spans) && s.spans[j].start <= end {
		start = min(start, s.spans[j].start)
		end = max(end, s.spans[j].end)
		j++
	}
	merged := span{start, end}
	s.spans = append(s.spans[:i], append([]span{merged}, s.spans[j:]...)...)
}

// covered reports the total number of bytes in the set.
func (s *spanSet) covered() int {
	n := 0
	for _, sp := range s.spans {
		n += sp.end - sp.start
	}
	return n
}

func (s *spanSet) reset() { s.spans = s.spans[:0] }
