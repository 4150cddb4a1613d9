//go:build !linux && !darwin

package region

import (
	"fmt"
	"io"
	"os"

	"github.com/joshuapare/pmemkit/internal/format"
)

// mapFile loads the region into memory on platforms without mmap. Changes
// reach the file only through Sync.
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

	buf := make([]byte, sz)
	if _, err := io.ReadFull(f, buf); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Region{f: f, data: buf, size: sz}, nil
}

func (r *Region) release() error {
	r.data = nil
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// resize changes the file length and swaps in a buffer of the new size.
func (r *Region) resize(newSize int64) error {
	if err := r.f.Truncate(newSize); err != nil {
		return fmt.Errorf("region: failed to resize file: %w", err)
	}
	newData := make([]byte, newSize)
	copy(newData, r.data)
	r.data = newData
	r.size = newSize
	return nil
}
