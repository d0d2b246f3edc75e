package store

import "errors"

// Error kinds surfaced at the store boundary.
//
// All of these are fatal at the library level: there is no partial
// recovery path. Callers should classify with [errors.Is] and, for
// IoError/FormatError/SizeLimit/Locked/Capacity, decide whether to retry,
// recreate the file, or abort the process. CorruptReference indicates a
// caller bug (passing a value that does not belong to this store) and
// should never be retried.
var (
	// ErrIoError wraps open/read/write/truncate/mmap/msync/rename failures.
	ErrIoError = errors.New("store: io error")

	// ErrFormatError indicates a bad magic number or unsupported file version.
	ErrFormatError = errors.New("store: format error")

	// ErrSizeLimit indicates the mapping or an allocation would exceed the
	// configured hard cap.
	ErrSizeLimit = errors.New("store: size limit exceeded")

	// ErrLocked indicates the file is already open for writing, by this
	// process or another.
	ErrLocked = errors.New("store: locked for writing")

	// ErrCorruptReference indicates an attempt to store a value that does
	// not belong to this store (or a scratch value from a different
	// builder). This is a programmer bug.
	ErrCorruptReference = errors.New("store: corrupt reference")

	// ErrCapacity indicates a fixed-capacity structure (the GC delayed
	// list, a scratch record's field count) was exhausted.
	ErrCapacity = errors.New("store: capacity exceeded")

	// ErrClosed indicates an operation was attempted on a closed Store.
	ErrClosed = errors.New("store: closed")
)
