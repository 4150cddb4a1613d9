package dirty

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/joshuapare/pmemkit/internal/format"
)

const (
	// defaultRangeCapacity is the pre-allocated capacity for dirty ranges.
	defaultRangeCapacity = 64

	headerEnd = int64(format.HeaderSize)
)

// FlushMode controls durability guarantees for transaction commits.
type FlushMode int

const (
	// FlushAuto flushes dirty pages and the header, then fdatasync.
	// On macOS it uses F_FULLFSYNC.
	FlushAuto FlushMode = iota

	// FlushDataOnly flushes pages but never syncs the file descriptor.
	// The caller is responsible for syncing later.
	FlushDataOnly

	// FlushFull flushes pages and the header, then forces the drive cache
	// out as well (F_FULLFSYNC on macOS).
	FlushFull
)

func (m FlushMode) String() string {
	switch m {
	case FlushAuto:
		return "auto"
	case FlushDataOnly:
		return "data"
	case FlushFull:
		return "full"
	}
	return fmt.Sprintf("FlushMode(%d)", int(m))
}

// ParseFlushMode maps "auto", "data" and "full" onto a FlushMode.
func ParseFlushMode(s string) (FlushMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FlushAuto, nil
	case "data", "data-only":
		return FlushDataOnly, nil
	case "full":
		return FlushFull, nil
	}
	return FlushAuto, fmt.Errorf("dirty: unknown flush mode %q", s)
}

// Range represents a dirty byte range (absolute file offsets).
type Range struct {
	Off int64
	Len int64
}

// End returns the offset one past the range.
func (r Range) End() int64 { return r.Off + r.Len }

// Tracker accumulates dirty ranges and flushes them efficiently.
//
// NOT thread-safe. Only one goroutine should use it at a time.
type Tracker struct {
	m        Media
	ranges   []Range
	pageSize int64
}

// NewTracker creates a dirty tracker flushing to m.
func NewTracker(m Media) *Tracker {
	return &Tracker{
		m:        m,
		ranges:   make([]Range, 0, defaultRangeCapacity),
		pageSize: format.PageSize,
	}
}

// Add records a dirty range. Ranges are page-aligned and merged at flush time.
func (t *Tracker) Add(off, length int) {
	if length <= 0 {
		return
	}
	t.ranges = append(t.ranges, Range{Off: int64(off), Len: int64(length)})
}

// Len returns the number of ranges recorded since the last flush.
func (t *Tracker) Len() int { return len(t.ranges) }

// FlushDataOnly flushes all dirty ranges except the header page and clears
// them. Ranges past the current end of the media (left by a truncate) are
// dropped.
//
// If ctx is cancelled mid-way some ranges may have been flushed and the
// remaining ones stay tracked.
func (t *Tracker) FlushDataOnly(ctx context.Context) error {
	if len(t.ranges) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	size := t.m.Size()
	for _, r := range t.coalesce() {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := max(r.Off, headerEnd)
		end := min(r.End(), size)
		if start >= end {
			continue
		}
		if err := t.m.Sync(int(start), int(end-start)); err != nil {
			return fmt.Errorf("dirty: flush [0x%X, 0x%X): %w", start, end, err)
		}
	}

	t.ranges = t.ranges[:0]
	return nil
}

// FlushHeaderAndMeta flushes the header page and then, depending on mode,
// syncs the file:
//   - FlushAuto: fdatasync (F_FULLFSYNC on macOS)
//   - FlushDataOnly: no sync
//   - FlushFull: fdatasync + F_FULLFSYNC on macOS
func (t *Tracker) FlushHeaderAndMeta(ctx context.Context, mode FlushMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.m.Sync(0, format.HeaderSize); err != nil {
		return fmt.Errorf("dirty: flush header: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if mode == FlushDataOnly {
		return nil
	}
	full := mode == FlushFull || runtime.GOOS == "darwin"
	if err := t.m.SyncFile(full); err != nil {
		return fmt.Errorf("dirty: sync file: %w", err)
	}
	return nil
}

// Persist flushes [off, off+length) right away without touching the tracked set.
func (t *Tracker) Persist(ctx context.Context, off, length int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if length <= 0 {
		return nil
	}
	if err := t.m.Sync(off, length); err != nil {
		return fmt.Errorf("dirty: persist [0x%X, +%d): %w", off, length, err)
	}
	return nil
}

// Reset clears all tracked ranges.
func (t *Tracker) Reset() {
	t.ranges = t.ranges[:0]
}

// DebugRanges returns a copy of the raw, uncoalesced ranges.
func (t *Tracker) DebugRanges() []Range {
	return slices.Clone(t.ranges)
}

// DebugCoalescedRanges returns the page-aligned, sorted, merged ranges that
// the next flush would write.
func (t *Tracker) DebugCoalescedRanges() []Range {
	return t.coalesce()
}

// coalesce page-aligns all ranges, sorts them, and merges overlapping or
// adjacent ones.
func (t *Tracker) coalesce() []Range {
	if len(t.ranges) == 0 {
		return nil
	}

	aligned := make([]Range, len(t.ranges))
	for i, r := range t.ranges {
		start := (r.Off / t.pageSize) * t.pageSize
		end := r.End()
		if end%t.pageSize != 0 {
			end = ((end / t.pageSize) + 1) * t.pageSize
		}
		aligned[i] = Range{Off: start, Len: end - start}
	}

	slices.SortFunc(aligned, func(a, b Range) int {
		switch {
		case a.Off < b.Off:
			return -1
		case a.Off > b.Off:
			return 1
		}
		return 0
	})

	merged := make([]Range, 0, len(aligned))
	current := aligned[0]
	for _, next := range aligned[1:] {
		if next.Off <= current.End() {
			current.Len = max(current.End(), next.End()) - current.Off
			continue
		}
		merged = append(merged, current)
		current = next
	}
	return append(merged, current)
}
