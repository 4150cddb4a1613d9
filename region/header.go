package region

import (
	"fmt"
	"time"

	"github.com/joshuapare/pmemkit/internal/format"
)

// Header is a zero-copy view of the header page. It is only valid until the
// next remap; take a fresh one from Region.Header after Append or Truncate.
type Header struct {
	raw []byte // len == format.HeaderSize
}

// Raw returns the header page bytes.
func (h Header) Raw() []byte { return h.raw }

// PrimarySeq returns the sequence of the most recently started transaction.
func (h Header) PrimarySeq() uint32 { return format.ReadU32(h.raw, format.PrimarySeqOffset) }

// SecondarySeq returns the sequence of the most recently committed transaction.
func (h Header) SecondarySeq() uint32 { return format.ReadU32(h.raw, format.SecondarySeqOffset) }

// IsClean reports whether the last started transaction also committed.
func (h Header) IsClean() bool { return h.PrimarySeq() == h.SecondarySeq() }

// SetSequences writes both sequence numbers.
func (h Header) SetSequences(primary, secondary uint32) {
	format.PutU32(h.raw, format.PrimarySeqOffset, primary)
	format.PutU32(h.raw, format.SecondarySeqOffset, secondary)
}

// LastWrite returns the timestamp written by the last commit.
func (h Header) LastWrite() time.Time {
	return time.Unix(0, int64(format.ReadU64(h.raw, format.TimeStampOffset)))
}

// Touch records t as the last write time.
func (h Header) Touch(t time.Time) {
	format.PutU64(h.raw, format.TimeStampOffset, uint64(t.UnixNano()))
}

// Version returns the major and minor format version.
func (h Header) Version() (major, minor uint32) {
	return format.ReadU32(h.raw, format.MajorVersionOffset), format.ReadU32(h.raw, format.MinorVersionOffset)
}

// Flags returns the header flags.
func (h Header) Flags() uint32 { return format.ReadU32(h.raw, format.FlagsOffset) }

// SetFlags replaces the header flags.
func (h Header) SetFlags(v uint32) { format.PutU32(h.raw, format.FlagsOffset, v) }

// DirtyShutdown reports whether the region was not closed cleanly.
func (h Header) DirtyShutdown() bool { return h.Flags()&format.FlagDirtyShutdown != 0 }

// Layout returns the layout tag.
func (h Header) Layout() string {
	return format.DecodeLayout(h.raw[format.LayoutOffset : format.LayoutOffset+format.LayoutSize])
}

// RootOID returns the object id of the root object, 0 if none was allocated.
func (h Header) RootOID() uint64 { return format.ReadU64(h.raw, format.RootOIDOffset) }

// RootType returns the type id recorded for the root object.
func (h Header) RootType() uint32 { return format.ReadU32(h.raw, format.RootTypeOffset) }

// RootSize returns the payload size recorded for the root object.
func (h Header) RootSize() uint32 { return format.ReadU32(h.raw, format.RootSizeOffset) }

// LogOffset returns the absolute offset of the undo log area.
func (h Header) LogOffset() int { return int(format.ReadU64(h.raw, format.LogOffsetOffset)) }

// LogSize returns the size of the undo log area.
func (h Header) LogSize() int { return int(format.ReadU64(h.raw, format.LogSizeOffset)) }

// HeapOffset returns the absolute offset of the first heap cell.
func (h Header) HeapOffset() int { return int(format.ReadU64(h.raw, format.HeapOffsetOffset)) }

// HeapSize returns the logical size of the heap.
func (h Header) HeapSize() int { return int(format.ReadU64(h.raw, format.HeapSizeOffset)) }

// HeapEnd returns the offset one past the last heap byte.
func (h Header) HeapEnd() int { return h.HeapOffset() + h.HeapSize() }

// Checksum returns the stored header checksum.
func (h Header) Checksum() uint32 { return format.ReadU32(h.raw, format.CheckSumOffset) }

// ChecksumOK reports whether the stored checksum matches the header contents.
func (h Header) ChecksumOK() bool { return h.Checksum() == format.HeaderChecksum(h.raw) }

// StampChecksum recomputes and stores the header checksum.
func (h Header) StampChecksum() {
	format.PutU32(h.raw, format.CheckSumOffset, format.HeaderChecksum(h.raw))
}

// validate checks that the header describes a region that fits in fileSize bytes.
func (h Header) validate(fileSize int64) error {
	if major, _ := h.Version(); major != format.CurrentMajorVersion {
		return fmt.Errorf("version %d: %w", major, format.ErrUnsupported)
	}
	logOff, logSize := h.LogOffset(), h.LogSize()
	heapOff, heapSize := h.HeapOffset(), h.HeapSize()
	switch {
	case logOff != format.HeaderSize:
		return fmt.Errorf("log offset 0x%X, want 0x%X", logOff, format.HeaderSize)
	case logSize < format.MinLogSize || logSize&format.PageMask != 0:
		return fmt.Errorf("log size 0x%X not page aligned", logSize)
	case heapOff != logOff+logSize:
		return fmt.Errorf("heap offset 0x%X does not follow the log", heapOff)
	case heapSize <= 0 || heapSize&format.PageMask != 0:
		return fmt.Errorf("heap size 0x%X not page aligned", heapSize)
	case int64(heapOff+heapSize) > fileSize:
		return fmt.Errorf("heap end 0x%X beyond file size 0x%X: %w", heapOff+heapSize, fileSize, format.ErrTruncated)
	}
	return nil
}
