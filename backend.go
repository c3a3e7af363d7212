package mirrorset

// Backend is the storage contract a leg's underlying device must
// satisfy. It mirrors the teacher's interfaces.Backend (ReadAt/WriteAt/
// Size/Close/Flush) so that any io.ReaderAt/io.WriterAt-shaped storage
// — an in-memory RAM disk, a file, a remote blob store — can serve as
// a mirror leg without adapting the engine itself.
type Backend interface {
	// ReadAt reads len(p) bytes starting at byte offset off.
	ReadAt(p []byte, off int64) (n int, err error)

	// WriteAt writes len(p) bytes starting at byte offset off.
	WriteAt(p []byte, off int64) (n int, err error)

	// Size returns the backend's total size in bytes.
	Size() int64

	// Flush persists any buffered writes (MirrorSet.Flush calls this on
	// every alive leg).
	Flush() error

	// Close releases any resources held by the backend.
	Close() error
}

// Discarder is the optional capability a Backend may implement to
// service TRIM/discard requests. A leg whose Backend does not
// implement Discarder is treated exactly like one that returned
// not-supported: discard is best-effort and never degrades the array
// either way (spec.md §4.2).
type Discarder interface {
	Backend

	// Discard hints that the byte range [offset, offset+length) is no
	// longer in use and may be reclaimed by the underlying storage.
	Discard(offset, length int64) error
}
