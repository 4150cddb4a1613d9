//go:build linux

package region

import (
	"os"

	"golang.org/x/sys/unix"
)

var pageMask = os.Getpagesize() - 1

// Sync writes [off, off+n) back to the file and waits for completion. The
// range is widened to system page boundaries as msync requires.
func (r *Region) Sync(off, n int) error {
	if r.data == nil {
		return ErrClosed
	}
	if n <= 0 {
		return nil
	}
	if err := r.CheckRange(off, n); err != nil {
		return err
	}
	start := off &^ pageMask
	end := min((off+n+pageMask)&^pageMask, len(r.data))
	return unix.Msync(r.data[start:end], unix.MS_SYNC)
}

// SyncFile issues fdatasync. The full flag only matters on darwin.
func (r *Region) SyncFile(_ bool) error {
	if r.f == nil {
		return ErrClosed
	}
	return unix.Fdatasync(int(r.f.Fd()))
}
