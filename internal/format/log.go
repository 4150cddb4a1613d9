package format

import (
	"bytes"
	"fmt"

	"github.com/joshuapare/pmemkit/internal/buf"
)

// LogHeader is the fixed header at the start of the undo log area.
//
//	Offset  Size  Description
//	0x00    4     'u' 'l' 'o' 'g'
//	0x04    4     Sequence of the transaction that owns the entries
//	0x08    4     Number of durable entries
//	0x10    8     Bytes used by entries (after the 64-byte header)
type LogHeader struct {
	Seq   uint32
	Count uint32
	Used  uint64
}

// ParseLogHeader decodes the log header at the start of area.
func ParseLogHeader(area []byte) (LogHeader, error) {
	if len(area) < LogHeaderSize {
		return LogHeader{}, fmt.Errorf("log header: %w", ErrTruncated)
	}
	if !bytes.Equal(area[LogSigOffset:LogSigOffset+SignatureSize], LogSignature) {
		return LogHeader{}, fmt.Errorf("log header: %w", ErrSignatureMismatch)
	}
	return LogHeader{
		Seq:   buf.U32LE(area[LogSeqOffset:]),
		Count: buf.U32LE(area[LogCountOffset:]),
		Used:  buf.U64LE(area[LogUsedOffset:]),
	}, nil
}

// PutLogHeader encodes h at the start of area.
func PutLogHeader(area []byte, h LogHeader) {
	copy(area[LogSigOffset:], LogSignature)
	PutU32(area, LogSeqOffset, h.Seq)
	PutU32(area, LogCountOffset, h.Count)
	PutU64(area, LogUsedOffset, h.Used)
}

// LogEntrySize returns the on-media size of an entry holding n pre-image bytes.
func LogEntrySize(n int) int {
	return LogEntryHeaderSize + Align8(n)
}
