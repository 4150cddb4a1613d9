package verify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/region"
	"github.com/joshuapare/pmemkit/region/dirty"
	"github.com/joshuapare/pmemkit/region/undo"
)

// createValidRegion returns the bytes of a freshly created region.
func createValidRegion(t *testing.T) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "v.pm")
	require.NoError(t, region.Create(path, "verify", region.CreateOptions{
		HeapSize: format.PageSize,
		LogSize:  format.PageSize,
	}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func heapStart(data []byte) int { return int(format.ReadU64(data, format.HeapOffsetOffset)) }

func TestAllInvariants_Valid(t *testing.T) {
	data := createValidRegion(t)
	require.NoError(t, AllInvariants(data))
	require.Empty(t, All(data))
}

func TestHeader_InvalidSignature(t *testing.T) {
	data := createValidRegion(t)
	copy(data, "XXXX")

	err := Header(data)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid signature")
	require.ErrorIs(t, err, ErrInvalid)
	require.Len(t, All(data), 1)
}

func TestHeader_TooSmall(t *testing.T) {
	err := Header(make([]byte, 100))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, -1, ve.Offset)
}

func TestHeader_UnalignedHeap(t *testing.T) {
	data := createValidRegion(t)
	format.PutU64(data, format.HeapSizeOffset, 4097)

	err := Header(data)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not page aligned")
}

func TestChecksum_Mismatch(t *testing.T) {
	data := createValidRegion(t)
	require.NoError(t, Checksum(data))
	format.PutU32(data, format.PrimarySeqOffset, 99)

	err := Checksum(data)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, format.CheckSumOffset, ve.Offset)
	require.Contains(t, ve.Details, "calculated")
}

func TestSequenceNumbers_Mismatch(t *testing.T) {
	data := createValidRegion(t)
	require.NoError(t, SequenceNumbers(data))
	format.PutU32(data, format.PrimarySeqOffset, 2)

	err := SequenceNumbers(data)
	require.Error(t, err)
	require.Contains(t, err.Error(), "transaction in flight")
}

func TestHeap_CorruptCell(t *testing.T) {
	data := createValidRegion(t)
	format.PutI32(data, heapStart(data), 12)

	err := Heap(data)
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, heapStart(data), ve.Offset)
}

func TestHeap_RootNotLive(t *testing.T) {
	data := createValidRegion(t)
	format.PutU64(data, format.RootOIDOffset, uint64(heapStart(data)+format.CellHeaderSize))

	err := Heap(data)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a live cell")
}

func TestFileSize_Slack(t *testing.T) {
	data := createValidRegion(t)
	data = append(data, make([]byte, format.PageSize)...)

	err := FileSize(data)
	require.Error(t, err)
	require.Contains(t, err.Error(), "file size mismatch")
	require.NoError(t, Header(data))
}

func TestLog_PendingEntriesVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.pm")
	require.NoError(t, region.Create(path, "verify", region.CreateOptions{
		HeapSize: format.PageSize,
		LogSize:  format.PageSize,
	}))
	r, err := region.Open(path, "verify", region.OpenOptions{})
	require.NoError(t, err)
	dt := dirty.NewTracker(r)
	log, err := undo.Attach(r, dt)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, log.Reset(ctx, 2))
	off := r.Header().HeapOffset()
	require.NoError(t, log.Append(ctx, off, r.Bytes()[off:off+16]))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, Log(data))

	// Flip a pre-image byte; the entry checksum must catch it.
	logOff := int(format.ReadU64(data, format.LogOffsetOffset))
	data[logOff+format.LogHeaderSize+format.LogEntryHeaderSize] ^= 0xFF
	err = Log(data)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalid))
	require.Contains(t, err.Error(), "checksum mismatch")
}
