package region

import (
	"fmt"

	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/internal/logger"
)

// Open maps the region file at path for reading and writing. The stored
// layout tag must equal layout, otherwise the error matches ErrLayoutMismatch.
// Every error returned is an *OpenError.
//
// Open does not recover an interrupted transaction; the transaction manager
// must run recovery before any object in the region is read.
func Open(path, layout string, opts OpenOptions) (*Region, error) {
	r, err := mapFile(path)
	if err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}
	r.path = path
	r.log = logger.Or(opts.Logger)

	if err := r.validate(layout); err != nil {
		_ = r.release()
		return nil, &OpenError{Path: path, Err: err}
	}

	if opts.PreFault {
		if err := ValidateMappedRegion(r.data, r.size); err != nil {
			_ = r.release()
			return nil, &OpenError{Path: path, Err: err}
		}
	}

	h := r.Header()
	if !h.ChecksumOK() {
		r.log.Warn("region header checksum mismatch", "path", path,
			"stored", h.Checksum(), "computed", format.HeaderChecksum(h.Raw()))
	}
	if h.DirtyShutdown() {
		r.log.Info("region was not closed cleanly", "path", path)
	}
	h.SetFlags(h.Flags() | format.FlagDirtyShutdown)
	h.StampChecksum()
	if err := r.Sync(0, format.HeaderSize); err != nil {
		_ = r.release()
		return nil, &OpenError{Path: path, Err: fmt.Errorf("flush header: %w", err)}
	}
	return r, nil
}

func (r *Region) validate(layout string) error {
	if _, err := format.ParseHeader(r.data); err != nil {
		return err
	}
	h := r.Header()
	if err := h.validate(r.size); err != nil {
		return err
	}
	if got := h.Layout(); got != layout {
		return fmt.Errorf("stored %q, requested %q: %w", got, layout, ErrLayoutMismatch)
	}
	return nil
}
