package region

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joshuapare/pmemkit/internal/buf"
	"github.com/joshuapare/pmemkit/internal/format"
)

// Region is an opened region file, backed by mmap (linux/darwin) or a byte
// slice (others). A Region is not safe for concurrent use.
type Region struct {
	path string
	f    *os.File
	data []byte
	size int64
	gen  uint64
	log  *slog.Logger
}

// Path returns the file the region was opened from.
func (r *Region) Path() string { return r.path }

// Bytes returns the whole mapping. The slice is invalidated by Append,
// Truncate and Close.
func (r *Region) Bytes() []byte { return r.data }

// Size returns the current file size.
func (r *Region) Size() int64 { return r.size }

// Closed reports whether Close has been called.
func (r *Region) Closed() bool { return r == nil || r.data == nil }

// Generation identifies the current mapping. It changes on every remap and on Close.
func (r *Region) Generation() uint64 { return r.gen }

// Header returns a view of the header page of the current mapping.
func (r *Region) Header() Header {
	if r.data == nil {
		return Header{raw: make([]byte, format.HeaderSize)}
	}
	return Header{raw: r.data[:format.HeaderSize]}
}

// Logger returns the logger the region was opened with.
func (r *Region) Logger() *slog.Logger { return r.log }

// CheckRange verifies that [off, off+n) lies inside the mapping.
func (r *Region) CheckRange(off, n int) error {
	if r.data == nil {
		return ErrClosed
	}
	if err := buf.CheckRange(0, len(r.data), off, n); err != nil {
		return fmt.Errorf("region: %v: %w", err, ErrOutOfBounds)
	}
	return nil
}

// View returns a guarded handle on [off, off+n) of the current mapping.
func (r *Region) View(off, n int) (View, error) {
	if err := r.CheckRange(off, n); err != nil {
		return View{}, err
	}
	return View{r: r, gen: r.gen, off: off, n: n}, nil
}

// View is a range of a region that remembers which mapping it came from.
type View struct {
	r   *Region
	gen uint64
	off int
	n   int
}

// Off returns the absolute offset of the view.
func (v View) Off() int { return v.off }

// Len returns the length of the view.
func (v View) Len() int { return v.n }

// Valid reports whether the mapping the view was taken from is still current.
func (v View) Valid() bool {
	return v.r != nil && v.r.data != nil && v.r.gen == v.gen
}

// Bytes returns the viewed bytes, or ErrStaleView if the region was remapped
// or closed since the view was taken.
func (v View) Bytes() ([]byte, error) {
	if !v.Valid() {
		return nil, ErrStaleView
	}
	return v.r.data[v.off : v.off+v.n : v.off+v.n], nil
}

// Append grows the region file by n bytes and remaps it. The new bytes are zero.
func (r *Region) Append(n int64) error {
	if r == nil || r.f == nil {
		return errors.New("region: cannot append to nil or closed region")
	}
	if n <= 0 {
		return nil
	}
	old := r.size
	if err := r.resize(old + n); err != nil {
		return err
	}
	r.gen++
	r.log.Debug("region grown", "path", r.path, "from", old, "to", r.size)
	return nil
}

// Truncate shrinks the region file to newSize bytes and remaps it.
func (r *Region) Truncate(newSize int64) error {
	if r == nil || r.f == nil {
		return errors.New("region: cannot truncate nil or closed region")
	}
	if newSize < int64(format.HeaderSize) {
		return fmt.Errorf("region: truncate size %d too small (minimum %d)", newSize, format.HeaderSize)
	}
	if newSize > r.size {
		return fmt.Errorf(
			"region: truncate cannot grow (current: %d, requested: %d), use Append instead",
			r.size,
			newSize,
		)
	}
	if newSize == r.size {
		return nil
	}
	old := r.size
	if err := r.resize(newSize); err != nil {
		return err
	}
	r.gen++
	r.log.Debug("region truncated", "path", r.path, "from", old, "to", r.size)
	return nil
}

// TruncateSlack drops any bytes past the logical heap end recorded in the
// header. Growth performed by a transaction that later aborted, or that was
// interrupted by a crash, leaves such slack behind.
func (r *Region) TruncateSlack() (int64, error) {
	if r.data == nil {
		return 0, ErrClosed
	}
	end := int64(r.Header().HeapEnd())
	if r.size <= end {
		return 0, nil
	}
	slack := r.size - end
	if err := r.Truncate(end); err != nil {
		return 0, fmt.Errorf("truncate trailing slack: %w", err)
	}
	return slack, nil
}

// Close marks the region as cleanly shut down, flushes the header and
// releases the mapping and the file.
func (r *Region) Close() error {
	if r == nil || r.data == nil {
		return nil
	}
	h := r.Header()
	h.SetFlags(h.Flags() &^ format.FlagDirtyShutdown)
	h.StampChecksum()
	syncErr := r.Sync(0, format.HeaderSize)
	if syncErr == nil {
		syncErr = r.SyncFile(false)
	}
	err := r.release()
	r.gen++
	r.log.Debug("region closed", "path", r.path)
	return errors.Join(syncErr, err)
}

// Abandon releases the mapping and the file without marking a clean shutdown
// and without flushing. Whatever the kernel already holds stays in the file,
// exactly as if the process had died. Tests use it to simulate a crash.
func (r *Region) Abandon() error {
	if r == nil || r.data == nil {
		return nil
	}
	err := r.release()
	r.gen++
	return err
}
