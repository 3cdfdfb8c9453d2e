package ismblob

import (
	"fmt"
	"sync"

	"github.com/ismkit/ismblob/internal/shmos"
)

// Handle is one live reference to a named segment, returned by [Create]
// and [Open]. Each handle owns its own descriptor and mapping; the backing
// object, the in-segment lock, and the shared refcount are common to every
// handle on the name, in this process or any other.
//
// A Handle is safe for concurrent use by multiple goroutines. It must be
// closed exactly once by [Handle.Close]; there is no finalizer, a dropped
// handle holds its reference until the process exits.
type Handle struct {
	mu sync.Mutex

	name    string
	creator bool

	backend shmos.Backend
	obj     shmos.Object
	buf     []byte
	lay     layout

	// meta is this process's copy of the metadata blob, taken before the
	// handle went live. It outlives Close.
	meta []byte

	closed bool
}

// Name returns the segment name this handle is attached to.
func (h *Handle) Name() string { return h.name }

// Creator reports whether this handle came from [Create] rather than
// [Open].
func (h *Handle) Creator() bool { return h.creator }

// Size returns the total mapped length of the segment: header, metadata,
// data, and refcount header.
func (h *Handle) Size() int64 { return int64(h.lay.total) }

// Data returns the shared data region. Writes through it are visible to
// every handle on the same name, in any process; no ordering between
// concurrent readers and writers is provided.
//
// The slice aliases the mapping and must not be used after Close. On a
// closed handle Data returns nil.
func (h *Handle) Data() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	return h.lay.data(h.buf)
}

// Metadata returns a copy of the segment's immutable metadata blob,
// byte-identical to what Create received. The copy is private to the
// caller and remains available after Close.
func (h *Handle) Metadata() []byte {
	return append([]byte(nil), h.meta...)
}

// SharedRefcount reads the live-handle count from the segment, under the
// segment lock. Diagnostic only: other processes may attach or detach the
// moment the lock is released, so the value can be stale on return.
//
// Possible errors:
//   - [ErrClosed]: the handle is closed
//   - [ErrLock]: the refcount lock failed
func (h *Handle) SharedRefcount() (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, fmt.Errorf("refcount of %q: %w", h.name, ErrClosed)
	}

	cnt, err := readRefcount(h.backend, h.buf, h.lay)
	if err != nil {
		return 0, fmt.Errorf("refcount of %q: %w", h.name, err)
	}

	return cnt, nil
}

// Close gives back this handle's reference. The closer that brings the
// shared count to zero also destroys the segment: lock destroyed, mapping
// and descriptor released, name unlinked. Exactly one closer does this no
// matter how many race.
//
// Close is idempotent per handle; calls after the first return nil.
// Closing one handle twice is fine, closing one reference through two
// handles is a protocol violation and panics in whichever closer
// underflows the count.
//
// Possible errors:
//   - [ErrLock]: the refcount lock failed; the reference was not given back
//   - [ErrResource]: a teardown or unmap step failed after the reference
//     was given back (best effort, remaining steps still ran)
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	h.closed = true

	return decrementAndMaybeDestroy(h.backend, h.name, h.obj, h.buf, h.lay)
}
