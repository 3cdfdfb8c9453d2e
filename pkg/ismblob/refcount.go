package ismblob

import (
	"fmt"

	"github.com/ismkit/ismblob/internal/shmos"
)

// The shared refcount is a uint64 inside the segment, guarded by the
// in-segment lock. Under that lock it equals the number of live handles
// across all processes, except for the window during create between the
// first increment and publish, when the creator's handle is still being
// built. Loads and stores go through 64-bit atomics so no peer ever
// observes a torn value; the field is 8-aligned by layout construction.

// incrementRefcount adds one reference under the segment lock. Create
// calls it once on the zero-filled counter, taking it to 1; every
// successful open calls it once more.
func incrementRefcount(b shmos.Backend, buf []byte, lay layout) error {
	lockBuf := lay.lockState(buf)

	err := b.LockAcquire(lockBuf)
	if err != nil {
		return fmt.Errorf("acquire refcount lock: %w: %w", ErrLock, err)
	}

	rc := lay.refcount(buf)
	atomicStoreUint64(rc, atomicLoadUint64(rc)+1)

	err = b.LockRelease(lockBuf)
	if err != nil {
		return fmt.Errorf("release refcount lock: %w: %w", ErrLock, err)
	}

	return nil
}

// readRefcount reads the shared counter under the segment lock.
func readRefcount(b shmos.Backend, buf []byte, lay layout) (uint64, error) {
	lockBuf := lay.lockState(buf)

	err := b.LockAcquire(lockBuf)
	if err != nil {
		return 0, fmt.Errorf("acquire refcount lock: %w: %w", ErrLock, err)
	}

	cnt := atomicLoadUint64(lay.refcount(buf))

	err = b.LockRelease(lockBuf)
	if err != nil {
		return 0, fmt.Errorf("release refcount lock: %w: %w", ErrLock, err)
	}

	return cnt, nil
}

// decrementAndMaybeDestroy gives back one reference and, if that was the
// last one, destroys the segment.
//
// The zero transition is captured under the lock, so exactly one closer
// observes it however many race; only that closer runs teardown. The lock
// is destroyed after release: a count of zero means no live handle can
// legitimately be acquiring it for refcount purposes anymore.
//
// Teardown is best effort: every step runs even if an earlier one fails,
// and the first failure is what the caller sees.
func decrementAndMaybeDestroy(b shmos.Backend, name string, obj shmos.Object, buf []byte, lay layout) error {
	lockBuf := lay.lockState(buf)

	err := b.LockAcquire(lockBuf)
	if err != nil {
		return fmt.Errorf("close %q: acquire refcount lock: %w: %w", name, ErrLock, err)
	}

	rc := lay.refcount(buf)

	cnt := atomicLoadUint64(rc)
	if cnt == 0 {
		// A reference was given back twice. The shared counter is now
		// wrong for every process attached to this segment, which no
		// error return can repair.
		_ = b.LockRelease(lockBuf)

		panic(fmt.Sprintf("ismblob: refcount underflow on %q", name))
	}

	cnt--
	atomicStoreUint64(rc, cnt)
	last := cnt == 0

	err = b.LockRelease(lockBuf)
	if err != nil {
		return fmt.Errorf("close %q: release refcount lock: %w: %w", name, ErrLock, err)
	}

	if !last {
		// Others still hold references; give back only what this handle
		// owns privately.
		unmapErr := obj.Unmap(buf)
		closeErr := obj.Close()

		if unmapErr != nil {
			return fmt.Errorf("close %q: unmap: %w: %w", name, ErrResource, unmapErr)
		}

		if closeErr != nil {
			return fmt.Errorf("close %q: close descriptor: %w: %w", name, ErrResource, closeErr)
		}

		return nil
	}

	var firstErr error

	if err := b.LockDestroy(lockBuf); err != nil {
		firstErr = fmt.Errorf("close %q: destroy lock: %w: %w", name, ErrLock, err)
	}

	if err := obj.Unmap(buf); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close %q: unmap: %w: %w", name, ErrResource, err)
	}

	if err := obj.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close %q: close descriptor: %w: %w", name, ErrResource, err)
	}

	if err := b.Unlink(name); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close %q: unlink: %w: %w", name, ErrResource, err)
	}

	return firstErr
}
