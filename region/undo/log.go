package undo

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/region"
	"github.com/joshuapare/pmemkit/region/dirty"
)

var (
	// ErrLogFull is returned by Append when the log area cannot hold the entry.
	ErrLogFull = errors.New("undo: log full")
	// ErrCorrupt is returned when a counted entry fails its checksum or bounds check.
	ErrCorrupt = errors.New("undo: corrupt log")
)

// Log is the undo log of an open region.
type Log struct {
	r     *region.Region
	dt    dirty.FlushableTracker
	off   int
	size  int
	seq   uint32
	count uint32
	used  int
}

// Attach binds the log area described by the region header. Entries already
// on media are left alone so recovery can inspect them.
func Attach(r *region.Region, dt dirty.FlushableTracker) (*Log, error) {
	h := r.Header()
	l := &Log{r: r, dt: dt, off: h.LogOffset(), size: h.LogSize()}
	if err := r.CheckRange(l.off, l.size); err != nil {
		return nil, fmt.Errorf("undo: log area: %w", err)
	}
	lh, err := format.ParseLogHeader(l.area())
	if err != nil {
		return nil, fmt.Errorf("undo: %w", err)
	}
	if lh.Used > uint64(l.capacity()) {
		return nil, fmt.Errorf("undo: used %d exceeds capacity %d: %w", lh.Used, l.capacity(), ErrCorrupt)
	}
	l.seq, l.count, l.used = lh.Seq, lh.Count, int(lh.Used)
	return l, nil
}

// area returns the log bytes of the current mapping.
func (l *Log) area() []byte { return l.r.Bytes()[l.off : l.off+l.size] }

func (l *Log) capacity() int { return l.size - format.LogHeaderSize }

// Seq returns the sequence of the transaction that owns the entries.
func (l *Log) Seq() uint32 { return l.seq }

// Count returns the number of durable entries.
func (l *Log) Count() int { return int(l.count) }

// Used returns the number of entry bytes in use.
func (l *Log) Used() int { return l.used }

// Capacity returns the number of bytes available for entries.
func (l *Log) Capacity() int { return l.capacity() }

// Fits reports whether a pre-image of n bytes can still be appended.
func (l *Log) Fits(n int) bool { return l.used+format.LogEntrySize(n) <= l.capacity() }

// Reset durably empties the log and hands it to transaction seq.
func (l *Log) Reset(ctx context.Context, seq uint32) error {
	l.seq, l.count, l.used = seq, 0, 0
	return l.writeHeader(ctx)
}

// Append records pre as the prior contents of [off, off+len(pre)). The entry
// is durable when Append returns, before the caller overwrites the range.
func (l *Log) Append(ctx context.Context, off int, pre []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !l.Fits(len(pre)) {
		return fmt.Errorf("%w: %d byte pre-image, %d of %d bytes used", ErrLogFull, len(pre), l.used, l.capacity())
	}

	pos := format.LogHeaderSize + l.used
	n := putEntry(l.area(), pos, off, pre)
	if err := l.dt.Persist(ctx, l.off+pos, n); err != nil {
		return fmt.Errorf("undo: persist entry: %w", err)
	}

	l.count++
	l.used += n
	if err := l.writeHeader(ctx); err != nil {
		// The entry is on media but not counted; forget it here as well.
		l.count--
		l.used -= n
		return err
	}
	return nil
}

func (l *Log) writeHeader(ctx context.Context) error {
	format.PutLogHeader(l.area(), format.LogHeader{Seq: l.seq, Count: l.count, Used: uint64(l.used)})
	if err := l.dt.Persist(ctx, l.off, format.LogHeaderSize); err != nil {
		return fmt.Errorf("undo: persist log header: %w", err)
	}
	return nil
}

// Entries decodes and verifies the counted entries in append order. The
// returned pre-images alias the mapping.
func (l *Log) Entries() ([]Entry, error) {
	_, entries, err := DecodeArea(l.area())
	return entries, err
}

// Replay writes every pre-image back in reverse append order and marks the
// restored ranges dirty. Entries that lie beyond the end of the region (the
// region was grown and has since been truncated) are skipped. The log itself
// is left intact; call Reset once the restored ranges are durable.
func (l *Log) Replay() (int, error) {
	entries, err := l.Entries()
	if err != nil {
		return 0, err
	}
	data := l.r.Bytes()
	applied := 0
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Off < 0 || e.End() > len(data) {
			continue
		}
		copy(data[e.Off:e.End()], e.Data)
		l.dt.Add(e.Off, len(e.Data))
		applied++
	}
	return applied, nil
}

// Export renders the current log contents for humans.
func (l *Log) Export() string {
	h, entries, err := DecodeArea(l.area())
	if err != nil {
		return fmt.Sprintf("Undo log: %v", err)
	}
	return Format(h, entries)
}
