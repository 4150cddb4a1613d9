package format

import (
	"bytes"
	"fmt"

	"github.com/joshuapare/pmemkit/internal/buf"
)

// Header captures the region header fields. The diagram below highlights the
// offsets we care about.
//
//	Offset  Size  Description
//	------  ----  ----------------------------------------------------------
//	 0x000   4    'p' 'm' 'r' 'g'
//	 0x004   4    Primary sequence number
//	 0x008   4    Secondary sequence number (commit marker)
//	 0x00C   8    Last write timestamp (unix nanoseconds)
//	 0x014   4    Major version
//	 0x018   4    Minor version
//	 0x01C   4    Flags
//	 0x020  64    Layout tag (NUL padded)
//	 0x060   8    Root object id
//	 0x068   4    Root type id
//	 0x06C   4    Root size
//	 0x070   8    Undo log offset
//	 0x078   8    Undo log size
//	 0x080   8    Heap offset
//	 0x088   8    Heap size
//	 0x1FC   4    Checksum
type Header struct {
	PrimarySequence   uint32
	SecondarySequence uint32
	LastWriteNanos    uint64
	MajorVersion      uint32
	MinorVersion      uint32
	Flags             uint32
	Layout            string
	RootOID           uint64
	RootType          uint32
	RootSize          uint32
	LogOffset         uint64
	LogSize           uint64
	HeapOffset        uint64
	HeapSize          uint64
	Checksum          uint32
}

// ParseHeader validates and extracts the fields of a region header.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("region header: %w", ErrTruncated)
	}
	if !bytes.Equal(b[:SignatureSize], RegionSignature) {
		return Header{}, fmt.Errorf("region header: %w", ErrSignatureMismatch)
	}
	return Header{
		PrimarySequence:   buf.U32LE(b[PrimarySeqOffset:]),
		SecondarySequence: buf.U32LE(b[SecondarySeqOffset:]),
		LastWriteNanos:    buf.U64LE(b[TimeStampOffset:]),
		MajorVersion:      buf.U32LE(b[MajorVersionOffset:]),
		MinorVersion:      buf.U32LE(b[MinorVersionOffset:]),
		Flags:             buf.U32LE(b[FlagsOffset:]),
		Layout:            DecodeLayout(b[LayoutOffset : LayoutOffset+LayoutSize]),
		RootOID:           buf.U64LE(b[RootOIDOffset:]),
		RootType:          buf.U32LE(b[RootTypeOffset:]),
		RootSize:          buf.U32LE(b[RootSizeOffset:]),
		LogOffset:         buf.U64LE(b[LogOffsetOffset:]),
		LogSize:           buf.U64LE(b[LogSizeOffset:]),
		HeapOffset:        buf.U64LE(b[HeapOffsetOffset:]),
		HeapSize:          buf.U64LE(b[HeapSizeOffset:]),
		Checksum:          buf.U32LE(b[CheckSumOffset:]),
	}, nil
}

// PutHeader encodes h into the first HeaderSize bytes of b and stamps the
// checksum. The remainder of the header page is left untouched.
func PutHeader(b []byte, h Header) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("region header: %w", ErrTruncated)
	}
	if len(h.Layout) > MaxLayoutLen {
		return fmt.Errorf("region header: layout %q longer than %d bytes", h.Layout, MaxLayoutLen)
	}
	copy(b[SignatureOffset:], RegionSignature)
	PutU32(b, PrimarySeqOffset, h.PrimarySequence)
	PutU32(b, SecondarySeqOffset, h.SecondarySequence)
	PutU64(b, TimeStampOffset, h.LastWriteNanos)
	PutU32(b, MajorVersionOffset, h.MajorVersion)
	PutU32(b, MinorVersionOffset, h.MinorVersion)
	PutU32(b, FlagsOffset, h.Flags)
	EncodeLayout(b[LayoutOffset:LayoutOffset+LayoutSize], h.Layout)
	PutU64(b, RootOIDOffset, h.RootOID)
	PutU32(b, RootTypeOffset, h.RootType)
	PutU32(b, RootSizeOffset, h.RootSize)
	PutU64(b, LogOffsetOffset, h.LogOffset)
	PutU64(b, LogSizeOffset, h.LogSize)
	PutU64(b, HeapOffsetOffset, h.HeapOffset)
	PutU64(b, HeapSizeOffset, h.HeapSize)
	PutU32(b, CheckSumOffset, HeaderChecksum(b))
	return nil
}

// EncodeLayout writes the layout tag NUL padded into dst.
func EncodeLayout(dst []byte, layout string) {
	clear(dst)
	copy(dst, layout)
}

// DecodeLayout returns the layout tag stored in src, up to the first NUL.
func DecodeLayout(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		return string(src[:i])
	}
	return string(src)
}

// HeaderChecksum computes the header checksum.
//
// The checksum is the XOR of the first 508 bytes (127 dwords) of the header.
// The checksum field itself (at offset 0x1FC) is NOT included. The values
// 0 and 0xFFFFFFFF are reserved and replaced so a zeroed or erased page never
// validates.
func HeaderChecksum(b []byte) uint32 {
	if len(b) < ChecksumRegionLen {
		return 0
	}
	var sum uint32
	for i := range ChecksumDwords {
		sum ^= ReadU32(b, i*DWORDSize)
	}
	switch sum {
	case 0:
		return 1
	case 0xFFFFFFFF:
		return 0xFFFFFFFE
	}
	return sum
}
