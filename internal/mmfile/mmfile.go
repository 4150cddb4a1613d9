// Package mmfile provides read-only mappings of region files for inspection
// tools. Writers go through the region package instead, which maps the file
// read-write and owns recovery.
package mmfile

// Mapping is a read-only view of a whole file.
type Mapping struct {
	data    []byte
	release func() error
}

// Bytes returns the mapped contents. The slice is invalid after Close.
func (m *Mapping) Bytes() []byte {
	if m == nil {
		return nil
	}
	return m.data
}

// Len reports the number of mapped bytes.
func (m *Mapping) Len() int { return len(m.Bytes()) }

// Close releases the mapping. Calling Close more than once is a no-op.
func (m *Mapping) Close() error {
	if m == nil || m.release == nil {
		return nil
	}
	release := m.release
	m.release = nil
	m.data = nil
	return release()
}
