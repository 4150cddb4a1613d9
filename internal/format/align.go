package format

// Alignment utilities for region files.
// Cells are 8-byte aligned; the log and heap areas grow in whole pages.

// Align8 returns n aligned up to the next 8-byte boundary.
//
// Example:
//
//	Align8(1)  = 8
//	Align8(8)  = 8
//	Align8(9)  = 16
func Align8(n int) int {
	return (n + CellAlignmentMask) & ^CellAlignmentMask
}

// AlignPage returns n aligned up to the next 4KB (4096-byte) boundary.
//
// Example:
//
//	AlignPage(1)    = 4096
//	AlignPage(4096) = 4096
//	AlignPage(4097) = 8192
func AlignPage(n int) int {
	return (n + PageMask) & ^PageMask
}

// AlignDownPage returns n rounded down to a page boundary.
func AlignDownPage(n int) int {
	return n & ^PageMask
}

// Align8I32 returns n aligned up to the next 8-byte boundary.
// int32 version for use in allocator code.
func Align8I32(n int32) int32 {
	return (n + CellAlignmentMask) & ^CellAlignmentMask
}
