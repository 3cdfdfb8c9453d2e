// Package ismblob provides named, process-shared memory segments.
//
// A segment is a fixed-size block of memory that unrelated processes reach
// by name. It carries an immutable metadata blob next to the data region
// and keeps a reference count of attached handles inside the segment
// itself. The process that closes the last handle destroys the segment, so
// no external coordinator or cleanup daemon is needed.
//
// # Basic Usage
//
// Producer:
//
//	h, err := ismblob.Create("sensor-frame", ismblob.CreateOptions{
//	    DataLen:  1 << 20,
//	    Metadata: descriptor,
//	})
//	if err != nil {
//	    // [ErrExists] means another producer won the name
//	}
//	defer h.Close()
//	copy(h.Data(), frame)
//
// Consumer:
//
//	h, err := ismblob.Open("sensor-frame")
//	if err != nil {
//	    // [ErrNotFound] until the producer publishes
//	}
//	defer h.Close()
//	frame := h.Data()
//
// Both sides see the same physical memory; writes through one handle are
// visible through every other handle, in this process or any other.
//
// # Lifetime
//
// Create starts the reference count at one. Every successful Open adds
// one, every Close subtracts one, and the Close that reaches zero unmaps,
// unlinks, and destroys the segment exactly once. A segment therefore
// lives precisely as long as its last handle, however many processes are
// involved and in whatever order they detach.
//
// Close is deterministic. Dropping a Handle without closing it leaks the
// attachment until the process exits.
//
// # Concurrency
//
// A Handle is safe for concurrent use by multiple goroutines. The data
// region itself is raw shared memory: ismblob does not order concurrent
// readers and writers of Data, that is the application's protocol to
// define. Metadata is immutable after creation and always safe to read.
//
// Lifecycle operations serialize on a lock inside the segment. A process
// that dies while holding it leaves the lock held forever; there is no
// dead-owner recovery, and peers block on their next lifecycle call.
//
// # Error Handling
//
// Errors fall into three categories:
//
// Expected races ([ErrExists], [ErrNotFound]): another process got there
// first, or nobody has yet. Retry, open instead of create, or back off.
//
// Damaged namespace ([ErrFormat]): the name resolves to something that is
// not a published segment, usually debris from a creator that died before
// publishing. Remove it out of band and recreate.
//
// Environment ([ErrResource], [ErrLock]): the OS refused a resource or a
// process-shared lock failed. Not retryable without operator action.
package ismblob
