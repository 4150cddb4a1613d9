//go:build !linux && !darwin

package region

// Sync writes [off, off+n) of the in-memory buffer to the file.
func (r *Region) Sync(off, n int) error {
	if r.data == nil {
		return ErrClosed
	}
	if n <= 0 {
		return nil
	}
	if err := r.CheckRange(off, n); err != nil {
		return err
	}
	_, err := r.f.WriteAt(r.data[off:off+n], int64(off))
	return err
}

// SyncFile flushes the file to stable storage.
func (r *Region) SyncFile(_ bool) error {
	if r.f == nil {
		return ErrClosed
	}
	return r.f.Sync()
}
