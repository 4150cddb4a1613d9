//go:build linux

package region

import (
	"errors"
	"fmt"
	"runtime/debug"

	"golang.org/x/sys/unix"
)

// PreFaultPages faults in every page of data so inaccessible media is reported
// as an error rather than a SIGBUS during normal access.
//
// MADV_POPULATE_WRITE (Linux 5.14+) is tried first because it returns EFAULT
// instead of signalling. Older kernels fall back to touching one byte per page
// with SetPanicOnFault armed.
func PreFaultPages(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	err := unix.Madvise(data, unix.MADV_POPULATE_WRITE)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EINVAL) && !errors.Is(err, unix.ENOSYS) {
		return fmt.Errorf("madvise populate failed: %w", err)
	}
	return manualPreFault(data)
}

func manualPreFault(data []byte) (retErr error) {
	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)

	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				retErr = fmt.Errorf("memory access fault during pre-fault: %w", err)
			} else {
				retErr = fmt.Errorf("memory access fault during pre-fault: %v", r)
			}
		}
	}()

	var sink byte
	for i := 0; i < len(data); i += pageMask + 1 {
		sink ^= data[i]
	}
	sink ^= data[len(data)-1]
	_ = sink
	return nil
}

// ValidateMappedRegion checks that the mapping has the expected length and
// that every page of it can be read.
func ValidateMappedRegion(data []byte, expectedSize int64) error {
	if int64(len(data)) != expectedSize {
		return fmt.Errorf("mapped size mismatch: got %d, expected %d", len(data), expectedSize)
	}
	if err := PreFaultPages(data); err != nil {
		return fmt.Errorf("mapped region contains inaccessible pages: %w", err)
	}
	return nil
}
