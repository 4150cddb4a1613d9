package region

import (
	"errors"
	"fmt"
)

var (
	// ErrOpenFailed matches every error returned by Open.
	ErrOpenFailed = errors.New("region: open failed")
	// ErrLayoutMismatch is returned when the stored layout tag differs from the requested one.
	ErrLayoutMismatch = errors.New("region: layout mismatch")
	// ErrClosed is returned by operations on a closed region.
	ErrClosed = errors.New("region: closed")
	// ErrStaleView is returned by a View whose mapping was replaced by a remap or close.
	ErrStaleView = errors.New("region: stale view")
	// ErrOutOfBounds is returned when a requested range does not fit the mapping.
	ErrOutOfBounds = errors.New("region: range out of bounds")
	// ErrExists is returned by Create when the target file already exists.
	ErrExists = errors.New("region: file exists")
)

// OpenError describes why a region could not be opened.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("region: open %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// Is reports ErrOpenFailed for every OpenError so callers can match the
// category without knowing the cause.
func (e *OpenError) Is(target error) bool { return target == ErrOpenFailed }
