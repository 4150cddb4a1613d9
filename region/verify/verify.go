package verify

import (
	"errors"
	"fmt"

	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/region/undo"
)

// ErrInvalid matches every ValidationError.
var ErrInvalid = errors.New("verify: invalid region")

// ValidationError describes one failed check.
type ValidationError struct {
	Type    string
	Message string
	Offset  int
	Details map[string]any
}

func (e *ValidationError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s at offset 0x%X: %s", e.Type, e.Offset, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Is reports whether target is ErrInvalid.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

func invalid(kind string, off int, msg string, args ...any) *ValidationError {
	return &ValidationError{Type: kind, Message: fmt.Sprintf(msg, args...), Offset: off}
}

// AllInvariants validates every structural invariant and returns the first
// error encountered, or nil if all checks pass. A pending transaction is not
// a structural error; use SequenceNumbers for that.
func AllInvariants(data []byte) error {
	for _, check := range structural {
		if err := check(data); err != nil {
			return err
		}
	}
	return nil
}

// All runs every check, including SequenceNumbers, and returns all failures.
func All(data []byte) []error {
	var errs []error
	if err := Header(data); err != nil {
		// Nothing else can be located without a header.
		return []error{err}
	}
	for _, check := range structural[1:] {
		if err := check(data); err != nil {
			errs = append(errs, err)
		}
	}
	if err := SequenceNumbers(data); err != nil {
		errs = append(errs, err)
	}
	return errs
}

var structural = []func([]byte) error{Header, Checksum, Log, Heap, FileSize}

// Header validates the signature, version and the placement of the log and
// heap areas.
func Header(data []byte) error {
	if len(data) < format.HeaderSize {
		return invalid("Header", -1, "file too small: %d bytes (need %d)", len(data), format.HeaderSize)
	}
	h, err := format.ParseHeader(data)
	if err != nil {
		return invalid("Header", format.SignatureOffset, "invalid signature: %q", data[:format.SignatureSize])
	}
	if h.MajorVersion != format.CurrentMajorVersion {
		return invalid("Header", format.MajorVersionOffset,
			"unexpected major version: %d (expected %d)", h.MajorVersion, format.CurrentMajorVersion)
	}
	switch {
	case h.LogOffset != format.HeaderSize:
		return invalid("Header", format.LogOffsetOffset, "log offset 0x%X, expected 0x%X", h.LogOffset, format.HeaderSize)
	case h.LogSize < format.MinLogSize || h.LogSize%format.PageSize != 0:
		return invalid("Header", format.LogSizeOffset, "log size not page aligned: 0x%X", h.LogSize)
	case h.HeapOffset != h.LogOffset+h.LogSize:
		return invalid("Header", format.HeapOffsetOffset, "heap offset 0x%X does not follow the log", h.HeapOffset)
	case h.HeapSize == 0 || h.HeapSize%format.PageSize != 0:
		return invalid("Header", format.HeapSizeOffset, "heap size not page aligned: 0x%X", h.HeapSize)
	case h.HeapOffset+h.HeapSize > uint64(len(data)):
		return invalid("Header", format.HeapSizeOffset,
			"heap extends beyond file: end=0x%X, size=0x%X", h.HeapOffset+h.HeapSize, len(data))
	}
	return nil
}

// Checksum validates the header checksum.
func Checksum(data []byte) error {
	if len(data) < format.HeaderSize {
		return invalid("Checksum", -1, "file too small for header")
	}
	calculated := format.HeaderChecksum(data)
	stored := format.ReadU32(data, format.CheckSumOffset)
	if calculated != stored {
		e := invalid("Checksum", format.CheckSumOffset,
			"checksum mismatch: calculated=0x%08X, stored=0x%08X", calculated, stored)
		e.Details = map[string]any{"calculated": calculated, "stored": stored}
		return e
	}
	return nil
}

// SequenceNumbers checks that primary equals secondary, meaning no
// transaction was in flight when the file was last written.
func SequenceNumbers(data []byte) error {
	if len(data) < format.HeaderSize {
		return invalid("SequenceNumbers", -1, "file too small for header")
	}
	seq1 := format.ReadU32(data, format.PrimarySeqOffset)
	seq2 := format.ReadU32(data, format.SecondarySeqOffset)
	if seq1 != seq2 {
		e := invalid("SequenceNumbers", format.PrimarySeqOffset,
			"sequences mismatch (transaction in flight): Seq1=0x%X, Seq2=0x%X", seq1, seq2)
		e.Details = map[string]any{"primary": seq1, "secondary": seq2}
		return e
	}
	return nil
}

// Log validates the undo log header and every counted entry.
func Log(data []byte) error {
	if err := Header(data); err != nil {
		return err
	}
	off := int(format.ReadU64(data, format.LogOffsetOffset))
	size := int(format.ReadU64(data, format.LogSizeOffset))
	_, entries, err := undo.DecodeArea(data[off : off+size])
	if err != nil {
		return invalid("Log", off, "%v", err)
	}
	for i, e := range entries {
		if e.Off < 0 || (e.Off < off+size && e.End() > off) {
			return invalid("Log", off, "entry %d covers the log itself: [0x%X, 0x%X)", i, e.Off, e.End())
		}
	}
	return nil
}

// Heap walks every cell of the heap and validates that the cells tile it
// exactly and that the root, if any, is a live cell of the recorded type.
func Heap(data []byte) error {
	if err := Header(data); err != nil {
		return err
	}
	start := int(format.ReadU64(data, format.HeapOffsetOffset))
	end := start + int(format.ReadU64(data, format.HeapSizeOffset))

	live := make(map[uint64]uint32)
	pos := start
	for pos < end {
		c, next, err := format.NextCell(data, start, end, pos)
		if err != nil {
			return invalid("Heap", pos, "%v", err)
		}
		if !c.Free {
			live[c.OID()] = c.Type
		} else if c.Type != format.FreeTypeID {
			return invalid("Heap", pos, "free cell carries type %d", c.Type)
		}
		pos = next
	}

	root := format.ReadU64(data, format.RootOIDOffset)
	if root == format.NullOID {
		return nil
	}
	typ, ok := live[root]
	if !ok {
		return invalid("Heap", format.RootOIDOffset, "root 0x%X is not a live cell", root)
	}
	if want := format.ReadU32(data, format.RootTypeOffset); typ != want {
		return invalid("Heap", format.RootTypeOffset, "root cell has type %d, header says %d", typ, want)
	}
	return nil
}

// FileSize validates that the file ends exactly where the heap does.
func FileSize(data []byte) error {
	if err := Header(data); err != nil {
		return err
	}
	expected := int(format.ReadU64(data, format.HeapOffsetOffset) + format.ReadU64(data, format.HeapSizeOffset))
	if len(data) != expected {
		e := invalid("FileSize", -1,
			"file size mismatch: actual=0x%X, expected=0x%X (heap end)", len(data), expected)
		e.Details = map[string]any{"actual": len(data), "expected": expected}
		return e
	}
	return nil
}
