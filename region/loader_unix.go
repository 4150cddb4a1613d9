//go:build linux || darwin

package region

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/joshuapare/pmemkit/internal/format"
)

// mapFile opens path and mmaps it RW so the region can be mutated in place.
func mapFile(path string) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	sz := st.Size()
	if sz < format.HeaderSize {
		_ = f.Close()
		return nil, fmt.Errorf("file too small for a region header (%d bytes): %w", sz, format.ErrTruncated)
	}

	data, err := mmapRW(f, sz)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	return &Region{f: f, data: data, size: sz}, nil
}

func mmapRW(f *os.File, size int64) ([]byte, error) {
	return syscall.Mmap(
		int(f.Fd()),
		0,
		int(size),
		syscall.PROT_READ|syscall.PROT_WRITE,
		syscall.MAP_SHARED,
	)
}

func (r *Region) release() error {
	var err error
	if r.data != nil {
		err = syscall.Munmap(r.data)
		r.data = nil
	}
	if r.f != nil {
		err = errors.Join(err, r.f.Close())
		r.f = nil
	}
	return err
}

// resize unmaps, changes the file length and maps the file again. On failure
// the old mapping is restored so the region stays usable.
func (r *Region) resize(newSize int64) error {
	if r.data != nil {
		if err := syscall.Munmap(r.data); err != nil {
			return fmt.Errorf("region: failed to unmap before resize: %w", err)
		}
		r.data = nil
	}

	if err := r.f.Truncate(newSize); err != nil {
		r.data, _ = mmapRW(r.f, r.size)
		return fmt.Errorf("region: failed to resize file: %w", err)
	}

	data, err := mmapRW(r.f, newSize)
	if err != nil {
		if newSize > r.size {
			_ = r.f.Truncate(r.size)
		}
		r.data, _ = mmapRW(r.f, r.size)
		return fmt.Errorf("region: failed to remap after resize: %w", err)
	}

	r.data = data
	r.size = newSize
	return nil
}
