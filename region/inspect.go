package region

import (
	"fmt"
	"time"

	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/internal/mmfile"
)

// Stats summarises a region file without opening it for write.
type Stats struct {
	Path          string
	Layout        string
	FileSize      int64
	Major, Minor  uint32
	PrimarySeq    uint32
	SecondarySeq  uint32
	LastWrite     time.Time
	DirtyShutdown bool
	ChecksumOK    bool

	LogOffset  int
	LogSize    int
	LogSeq     uint32
	LogEntries uint32
	LogUsed    uint64
	// PendingRecovery is set when the log holds entries of a transaction that
	// never wrote its commit marker. The next Open will roll them back.
	PendingRecovery bool

	HeapOffset int
	HeapSize   int
	RootOID    uint64
	RootType   uint32
	RootSize   uint32
}

// Slack returns the number of file bytes past the logical heap end.
func (s Stats) Slack() int64 {
	return s.FileSize - int64(s.HeapOffset+s.HeapSize)
}

// Inspect reads the header and log header of the region at path through a
// read-only mapping. No recovery is performed.
func Inspect(path string) (Stats, error) {
	m, err := mmfile.Map(path)
	if err != nil {
		return Stats{}, fmt.Errorf("region: inspect %s: %w", path, err)
	}
	defer m.Close()

	return InspectBytes(path, m.Bytes())
}

// InspectBytes is Inspect over an already loaded region image.
func InspectBytes(path string, b []byte) (Stats, error) {
	hdr, err := format.ParseHeader(b)
	if err != nil {
		return Stats{}, fmt.Errorf("region: inspect %s: %w", path, err)
	}
	st := Stats{
		Path:          path,
		Layout:        hdr.Layout,
		FileSize:      int64(len(b)),
		Major:         hdr.MajorVersion,
		Minor:         hdr.MinorVersion,
		PrimarySeq:    hdr.PrimarySequence,
		SecondarySeq:  hdr.SecondarySequence,
		LastWrite:     time.Unix(0, int64(hdr.LastWriteNanos)),
		DirtyShutdown: hdr.Flags&format.FlagDirtyShutdown != 0,
		ChecksumOK:    hdr.Checksum == format.HeaderChecksum(b),
		LogOffset:     int(hdr.LogOffset),
		LogSize:       int(hdr.LogSize),
		HeapOffset:    int(hdr.HeapOffset),
		HeapSize:      int(hdr.HeapSize),
		RootOID:       hdr.RootOID,
		RootType:      hdr.RootType,
		RootSize:      hdr.RootSize,
	}
	if hdr.LogOffset+hdr.LogSize > uint64(len(b)) {
		return st, fmt.Errorf("region: inspect %s: log area: %w", path, format.ErrTruncated)
	}
	lh, err := format.ParseLogHeader(b[hdr.LogOffset : hdr.LogOffset+hdr.LogSize])
	if err != nil {
		return st, fmt.Errorf("region: inspect %s: %w", path, err)
	}
	st.LogSeq = lh.Seq
	st.LogEntries = lh.Count
	st.LogUsed = lh.Used
	st.PendingRecovery = lh.Count > 0 && lh.Seq != hdr.SecondarySequence
	return st, nil
}
