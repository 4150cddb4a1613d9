package region

import (
	"log/slog"
	"os"

	"github.com/joshuapare/pmemkit/internal/format"
)

// CreateOptions controls the geometry of a new region file.
type CreateOptions struct {
	// HeapSize is the initial heap size. Rounded up to whole pages.
	HeapSize int
	// LogSize is the capacity of the undo log area, header included.
	// Rounded up to whole pages and never smaller than one page.
	LogSize int
	// Mode is the permission of the created file.
	Mode os.FileMode
}

// DefaultCreateOptions returns the geometry used by the command line tool.
func DefaultCreateOptions() CreateOptions {
	return CreateOptions{
		HeapSize: format.DefaultHeapSize,
		LogSize:  format.DefaultLogSize,
		Mode:     0o644,
	}
}

func (o CreateOptions) normalize() CreateOptions {
	if o.HeapSize <= 0 {
		o.HeapSize = format.DefaultHeapSize
	}
	if o.LogSize <= 0 {
		o.LogSize = format.DefaultLogSize
	}
	if o.Mode == 0 {
		o.Mode = 0o644
	}
	o.HeapSize = format.AlignPage(o.HeapSize)
	o.LogSize = max(format.AlignPage(o.LogSize), format.MinLogSize)
	return o
}

// OpenOptions controls how an existing region is mapped.
type OpenOptions struct {
	// PreFault touches every page after mapping so unreadable media surfaces
	// as an error from Open instead of a fault later on.
	PreFault bool
	// Logger receives growth and shutdown events. Nil uses the package logger.
	Logger *slog.Logger
}
