// Package format houses the low-level layout of persistent region files: the
// header page, the undo log area, and the heap of cells. It stays
// allocation-free and independent from the public API so higher-level packages
// can orchestrate the data in a more ergonomic form.
package format

var (
	// RegionSignature is the four-byte signature at the start of every region file.
	// Layout (little-endian):
	//   0x00  'p' 'm' 'r' 'g'
	RegionSignature = []byte{'p', 'm', 'r', 'g'}

	// LogSignature is the four-byte signature at the beginning of the undo log area.
	LogSignature = []byte{'u', 'l', 'o', 'g'}
)

const (
	// HeaderSize is the size of the region header in bytes. The header always
	// occupies exactly one page so it can be flushed on its own.
	HeaderSize = 4096

	// PageSize is the growth and flush granularity of every region area.
	PageSize = 0x1000

	// PageMask is the bitmask used for aligning to page boundaries (PageSize - 1).
	PageMask = PageSize - 1

	// CellHeaderSize is the number of bytes preceding every heap cell payload:
	// a signed size followed by the type id of the object stored in the cell.
	CellHeaderSize = 8

	// CellAlignment is the required alignment of heap cells.
	CellAlignment = 8

	// CellAlignmentMask is the bitmask used for aligning to 8-byte boundaries (CellAlignment - 1).
	CellAlignmentMask = CellAlignment - 1

	// MinCellSize is the smallest legal cell (header plus one 8-byte word).
	MinCellSize = 16

	// MaxCellSize bounds a single cell so sizes always fit the signed header field.
	MaxCellSize = 0x7FFFFFF8

	// DWORDSize is the size of a DWORD (32-bit value) in bytes.
	DWORDSize = 4

	// QWORDSize is the size of a QWORD (64-bit value) in bytes.
	QWORDSize = 8

	// NullOID is the reserved object id meaning "no object".
	NullOID = 0
)

// ============================================================================
// Region Header Constants
// ============================================================================.
const (
	SignatureOffset     = 0x000 // 4
	SignatureSize       = 4
	PrimarySeqOffset    = 0x004 // uint32, bumped when a transaction begins
	SecondarySeqOffset  = 0x008 // uint32, set equal to primary on commit
	TimeStampOffset     = 0x00C // uint64, unix nanoseconds of the last write
	MajorVersionOffset  = 0x014 // uint32
	MinorVersionOffset  = 0x018 // uint32
	FlagsOffset         = 0x01C // uint32
	LayoutOffset        = 0x020 // [64] byte, NUL padded
	LayoutSize          = 64
	RootOIDOffset       = 0x060 // uint64
	RootTypeOffset      = 0x068 // uint32
	RootSizeOffset      = 0x06C // uint32
	LogOffsetOffset     = 0x070 // uint64
	LogSizeOffset       = 0x078 // uint64
	HeapOffsetOffset    = 0x080 // uint64
	HeapSizeOffset      = 0x088 // uint64
	CheckSumOffset      = 0x1FC // uint32 (XOR of first 508 bytes)
	ChecksumRegionLen   = 508
	ChecksumDwords      = 127
	MaxLayoutLen        = LayoutSize - 1
	CurrentMajorVersion = 1
	CurrentMinorVersion = 0
)

// Header flags.
const (
	// FlagDirtyShutdown is set while a region is open for write and cleared on Close.
	FlagDirtyShutdown = 0x00000001
)

// ============================================================================
// Undo Log Constants
// ============================================================================.
const (
	LogHeaderSize      = 0x40
	LogSigOffset       = 0x00 // 4
	LogSeqOffset       = 0x04 // uint32, sequence of the owning transaction
	LogCountOffset     = 0x08 // uint32, number of durable entries
	LogUsedOffset      = 0x10 // uint64, bytes used after the log header
	LogEntryHeaderSize = 0x18
	LogEntryOffOffset  = 0x00 // uint64, absolute region offset of the range
	LogEntryLenOffset  = 0x08 // uint32, length of the pre-image
	LogEntryFlagOffset = 0x0C // uint32
	LogEntrySumOffset  = 0x10 // uint64, xxhash64 of offset, length and pre-image

	// DefaultLogSize is the undo log capacity of newly created regions.
	DefaultLogSize = 64 * 1024

	// MinLogSize is the smallest log area a region can be created with.
	MinLogSize = PageSize
)

// ============================================================================
// Heap Cell Constants
// ============================================================================.
const (
	CellSizeOffset = 0x00 // int32, negative => allocated
	CellTypeOffset = 0x04 // uint32, type id of the stored object

	// FreeTypeID is the type id written into free cells.
	FreeTypeID = 0

	// DefaultHeapSize is the initial heap size of newly created regions.
	DefaultHeapSize = 64 * 1024
)
