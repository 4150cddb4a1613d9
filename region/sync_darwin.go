//go:build darwin

package region

import (
	"golang.org/x/sys/unix"
)

// Sync writes the mapping back to the file and waits for completion.
//
// On macOS, msync() requires the address to match the original mmap() address,
// so the whole mapping is flushed. The kernel only writes pages that are dirty.
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
	return unix.Msync(r.data, unix.MS_SYNC)
}

// SyncFile issues fsync, or F_FULLFSYNC when full is set so the drive cache
// is flushed as well.
func (r *Region) SyncFile(full bool) error {
	if r.f == nil {
		return ErrClosed
	}
	fd := int(r.f.Fd())
	if full {
		_, err := unix.FcntlInt(uintptr(fd), unix.F_FULLFSYNC, 0)
		return err
	}
	return unix.Fsync(fd)
}
