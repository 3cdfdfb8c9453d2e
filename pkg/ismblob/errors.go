package ismblob

import "errors"

// Sentinel errors returned by ismblob operations.
//
// Callers should use [errors.Is] to check error types:
//
//	if errors.Is(err, ismblob.ErrNotFound) {
//	    // create the segment, or wait for its producer
//	}
var (
	// ErrExists indicates that Create found the name already taken.
	//
	// Recovery: open the existing segment instead, or pick another name.
	ErrExists = errors.New("ismblob: segment exists")

	// ErrNotFound indicates the name does not resolve to any object.
	//
	// Either it was never created, or its last handle closed and the
	// segment was destroyed.
	//
	// Recovery: create the segment, or retry once its producer has.
	ErrNotFound = errors.New("ismblob: segment not found")

	// ErrFormat indicates the named object is not a published segment:
	// the magic marker is missing or wrong, the header declares lengths no
	// layout can hold, or the object is shorter than its own layout.
	//
	// Unpublished objects are expected when a creator died before its
	// final header write; foreign files in the namespace look the same.
	//
	// Recovery: remove the object out of band and recreate it.
	ErrFormat = errors.New("ismblob: bad segment format")

	// ErrResource indicates the OS refused a descriptor, memory, or
	// permission request.
	//
	// Recovery: free resources or fix permissions, then retry.
	ErrResource = errors.New("ismblob: resource failure")

	// ErrLock indicates the process-shared lock failed to initialize,
	// acquire, release, or destroy.
	//
	// This is fatal to the operation in progress. A segment whose lock is
	// broken (for example, held by a process that died) cannot be repaired.
	ErrLock = errors.New("ismblob: process-shared lock failure")

	// ErrInvalidInput indicates invalid arguments were provided.
	//
	// Common causes: metadata over [MaxMetadata] bytes, negative data
	// length, a name the namespace cannot represent.
	//
	// This is a programming error.
	ErrInvalidInput = errors.New("ismblob: invalid input")

	// ErrClosed indicates the [Handle] has already been closed.
	//
	// This is a programming error.
	ErrClosed = errors.New("ismblob: handle closed")

	// ErrUnsupported indicates this platform has no shared-memory backend,
	// or is not 64-bit little-endian.
	ErrUnsupported = errors.New("ismblob: unsupported platform")
)
