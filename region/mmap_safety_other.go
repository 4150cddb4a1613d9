//go:build !linux

package region

import "fmt"

// PreFaultPages is a no-op where the pages are not pre-faultable.
func PreFaultPages(_ []byte) error { return nil }

// ValidateMappedRegion checks that the mapping has the expected length.
func ValidateMappedRegion(data []byte, expectedSize int64) error {
	if int64(len(data)) != expectedSize {
		return fmt.Errorf("mapped size mismatch: got %d, expected %d", len(data), expectedSize)
	}
	return nil
}
