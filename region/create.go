package region

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joshuapare/pmemkit/internal/format"
)

// Create writes a new region file at path: a header page tagged with layout,
// an empty undo log, and a heap holding a single free cell. It fails with
// ErrExists if the file is already there.
func Create(path, layout string, opts CreateOptions) error {
	if len(layout) > format.MaxLayoutLen {
		return fmt.Errorf("region: layout %q longer than %d bytes", layout, format.MaxLayoutLen)
	}
	opts = opts.normalize()
	if opts.HeapSize > format.MaxCellSize {
		return fmt.Errorf("region: heap size %d exceeds %d", opts.HeapSize, format.MaxCellSize)
	}

	logOff := format.HeaderSize
	heapOff := logOff + opts.LogSize
	total := heapOff + opts.HeapSize
	img := make([]byte, total)

	hdr := format.Header{
		LastWriteNanos: uint64(time.Now().UnixNano()),
		MajorVersion:   format.CurrentMajorVersion,
		MinorVersion:   format.CurrentMinorVersion,
		Layout:         layout,
		LogOffset:      uint64(logOff),
		LogSize:        uint64(opts.LogSize),
		HeapOffset:     uint64(heapOff),
		HeapSize:       uint64(opts.HeapSize),
	}
	if err := format.PutHeader(img, hdr); err != nil {
		return fmt.Errorf("region: create %s: %w", path, err)
	}
	format.PutLogHeader(img[logOff:heapOff], format.LogHeader{})
	format.PutCellHeader(img, heapOff, int32(opts.HeapSize), false, format.FreeTypeID)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, opts.Mode)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("region: create %s: %w", path, ErrExists)
		}
		return fmt.Errorf("region: create %s: %w", path, err)
	}
	if _, err := f.Write(img); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("region: create %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("region: create %s: sync: %w", path, err)
	}
	return f.Close()
}
