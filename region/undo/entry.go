package undo

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/OneOfOne/xxhash"

	"github.com/joshuapare/pmemkit/internal/buf"
	"github.com/joshuapare/pmemkit/internal/format"
)

// Entry is one decoded pre-image.
type Entry struct {
	Off  int    // Absolute region offset of the protected range
	Data []byte // Bytes the range held before the first write
}

// End returns the offset one past the protected range.
func (e Entry) End() int { return e.Off + len(e.Data) }

// entrySum hashes the offset, the length and the pre-image of an entry.
func entrySum(off uint64, pre []byte) uint64 {
	var hdr [12]byte
	binary.LittleEndian.PutUint64(hdr[0:8], off)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(pre)))
	h := xxhash.New64()
	h.Write(hdr[:])
	h.Write(pre)
	return h.Sum64()
}

// putEntry encodes an entry at area[pos:] and returns its on-media size.
func putEntry(area []byte, pos, off int, pre []byte) int {
	n := format.LogEntrySize(len(pre))
	format.PutU64(area, pos+format.LogEntryOffOffset, uint64(off))
	format.PutU32(area, pos+format.LogEntryLenOffset, uint32(len(pre)))
	format.PutU32(area, pos+format.LogEntryFlagOffset, 0)
	format.PutU64(area, pos+format.LogEntrySumOffset, entrySum(uint64(off), pre))
	data := area[pos+format.LogEntryHeaderSize : pos+n]
	copy(data, pre)
	clear(data[len(pre):])
	return n
}

// DecodeArea parses the log header and the counted entries of a log area.
// The returned entries alias area.
func DecodeArea(area []byte) (format.LogHeader, []Entry, error) {
	h, err := format.ParseLogHeader(area)
	if err != nil {
		return h, nil, fmt.Errorf("undo: %w", err)
	}
	if h.Used > uint64(len(area)-format.LogHeaderSize) {
		return h, nil, fmt.Errorf("undo: used %d exceeds capacity %d: %w", h.Used, len(area)-format.LogHeaderSize, ErrCorrupt)
	}

	entries := make([]Entry, 0, h.Count)
	pos := format.LogHeaderSize
	end := format.LogHeaderSize + int(h.Used)
	for i := range h.Count {
		if pos+format.LogEntryHeaderSize > end {
			return h, nil, fmt.Errorf("undo: entry %d header past used bytes: %w", i, ErrCorrupt)
		}
		off := format.ReadU64(area, pos+format.LogEntryOffOffset)
		n := int(format.ReadU32(area, pos+format.LogEntryLenOffset))
		size := format.LogEntrySize(n)
		pre, ok := buf.Slice(area[:end], pos+format.LogEntryHeaderSize, n)
		if !ok || pos+size > end {
			return h, nil, fmt.Errorf("undo: entry %d length %d past used bytes: %w", i, n, ErrCorrupt)
		}
		if sum := format.ReadU64(area, pos+format.LogEntrySumOffset); sum != entrySum(off, pre) {
			return h, nil, fmt.Errorf("undo: entry %d at 0x%X checksum mismatch: %w", i, pos, ErrCorrupt)
		}
		entries = append(entries, Entry{Off: int(off), Data: pre})
		pos += size
	}
	return h, entries, nil
}

// Format renders a log header and its entries for humans.
func Format(h format.LogHeader, entries []Entry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("Undo log (seq %d): empty", h.Seq)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Undo log (seq %d): %d entries, %d bytes\n", h.Seq, len(entries), h.Used)
	sb.WriteString(strings.Repeat("=", 80))
	sb.WriteString("\n")

	for i, e := range entries {
		fmt.Fprintf(&sb, "\n[%d]\n", i+1)
		fmt.Fprintf(&sb, "  Offset:   0x%08X\n", e.Off)
		fmt.Fprintf(&sb, "  Size:     %d bytes\n", len(e.Data))
		show := min(len(e.Data), 32)
		fmt.Fprintf(&sb, "  Before:   % X", e.Data[:show])
		if len(e.Data) > 32 {
			sb.WriteString(" ...")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
