package ismblob

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/ismkit/ismblob/internal/shmos"
)

// CreateOptions configures [Create].
type CreateOptions struct {
	// DataLen is the size in bytes of the shared data region.
	//
	// Must be >= 0. May be 0 for a metadata-only segment.
	DataLen int

	// Metadata is copied into the segment at creation time and is
	// immutable afterwards. Every attacher receives a byte-identical
	// copy from [Handle.Metadata].
	//
	// At most [MaxMetadata] bytes. May be nil.
	Metadata []byte

	// Perm sets the permission bits of the named backing object.
	//
	// Zero means 0600 (owner only).
	Perm os.FileMode
}

// hostBackend returns the process-wide backend for package-level calls.
var hostBackend = sync.OnceValues(func() (shmos.Backend, error) {
	return shmos.New()
})

// Create makes a new named segment and returns its first handle, holding
// reference number one. Exactly one concurrent Create for a given name
// succeeds; the rest fail with [ErrExists].
//
// On any failure every resource the call acquired is rolled back: the
// half-built object is unmapped, closed, and unlinked, so a failed Create
// leaves no trace and a later Open of the name reports [ErrNotFound].
//
// Possible errors:
//   - [ErrInvalidInput]: bad name, negative DataLen, oversized Metadata
//   - [ErrExists]: the name is already taken
//   - [ErrResource]: the OS refused a descriptor, sizing, or mapping
//   - [ErrLock]: the in-segment lock could not be initialized
//   - [ErrUnsupported]: no backend on this host
func Create(name string, opts CreateOptions) (*Handle, error) {
	b, err := hostBackend()
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", name, ErrUnsupported)
	}

	return createWith(b, name, opts)
}

// Open attaches to an existing published segment and returns a new handle,
// adding one reference.
//
// Possible errors:
//   - [ErrNotFound]: the name does not resolve (never created, or already
//     destroyed by its last close)
//   - [ErrFormat]: the name resolves to something that is not a published
//     segment
//   - [ErrResource]: the OS refused a descriptor or mapping
//   - [ErrLock]: the refcount lock could not be taken
//   - [ErrUnsupported]: no backend on this host
func Open(name string) (*Handle, error) {
	b, err := hostBackend()
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, ErrUnsupported)
	}

	return openWith(b, name)
}

// createWith runs the create sequence against an explicit backend:
// exclusive create, size, map, lock init, count to one, metadata copy,
// publish. The magic marker lands last, so a crash or failure anywhere
// earlier leaves an unpublished object that Open refuses, and the rollback
// here deletes even that.
func createWith(b shmos.Backend, name string, opts CreateOptions) (*Handle, error) {
	if err := checkPlatform(); err != nil {
		return nil, fmt.Errorf("create %q: %w", name, err)
	}

	lay, layErr := computeLayout(len(opts.Metadata), opts.DataLen, b.LockStateSize())
	if layErr != nil {
		return nil, fmt.Errorf("create %q: %w: %w", name, ErrInvalidInput, layErr)
	}

	perm := opts.Perm
	if perm == 0 {
		perm = 0o600
	}

	obj, err := b.Create(name, perm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("create %q: %w", name, ErrExists)
		}

		if errors.Is(err, fs.ErrInvalid) {
			return nil, fmt.Errorf("create %q: %w: %w", name, ErrInvalidInput, err)
		}

		return nil, fmt.Errorf("create %q: %w: %w", name, ErrResource, err)
	}

	// The name exists from here on. This call created it, so every failure
	// below must also unlink it; an attacher never would.
	err = obj.Truncate(int64(lay.total))
	if err != nil {
		_ = obj.Close()
		_ = b.Unlink(name)

		return nil, fmt.Errorf("create %q: size to %d bytes: %w: %w", name, lay.total, ErrResource, err)
	}

	buf, err := obj.Map(lay.total, true)
	if err != nil {
		_ = obj.Close()
		_ = b.Unlink(name)

		return nil, fmt.Errorf("create %q: map %d bytes: %w: %w", name, lay.total, ErrResource, err)
	}

	err = b.LockInit(lay.lockState(buf))
	if err != nil {
		_ = obj.Unmap(buf)
		_ = obj.Close()
		_ = b.Unlink(name)

		return nil, fmt.Errorf("create %q: init refcount lock: %w: %w", name, ErrLock, err)
	}

	// A fresh object is zero-filled, so the first increment takes the
	// shared counter from 0 to 1.
	err = incrementRefcount(b, buf, lay)
	if err != nil {
		_ = b.LockDestroy(lay.lockState(buf))
		_ = obj.Unmap(buf)
		_ = obj.Close()
		_ = b.Unlink(name)

		return nil, fmt.Errorf("create %q: %w", name, err)
	}

	copy(lay.metadata(buf), opts.Metadata)

	publish(buf, lay)

	return &Handle{
		name:    name,
		creator: true,
		backend: b,
		obj:     obj,
		buf:     buf,
		lay:     lay,
		meta:    append([]byte(nil), opts.Metadata...),
	}, nil
}

// openWith runs the attach sequence against an explicit backend. The
// refcount increment is ordered last: nothing after it can fail, so a
// failed open never has to give back a reference it took, and an attacher
// never unlinks the name.
func openWith(b shmos.Backend, name string) (*Handle, error) {
	if err := checkPlatform(); err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}

	obj, err := b.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %q: %w", name, ErrNotFound)
		}

		if errors.Is(err, fs.ErrInvalid) {
			return nil, fmt.Errorf("open %q: %w: %w", name, ErrInvalidInput, err)
		}

		return nil, fmt.Errorf("open %q: %w: %w", name, ErrResource, err)
	}

	buf, lay, err := mapExisting(b, obj)
	if err != nil {
		_ = obj.Close()

		return nil, fmt.Errorf("open %q: %w", name, err)
	}

	meta := append([]byte(nil), lay.metadata(buf)...)

	err = incrementRefcount(b, buf, lay)
	if err != nil {
		_ = obj.Unmap(buf)
		_ = obj.Close()

		return nil, fmt.Errorf("open %q: %w", name, err)
	}

	return &Handle{
		name:    name,
		backend: b,
		obj:     obj,
		buf:     buf,
		lay:     lay,
		meta:    meta,
	}, nil
}

// mapExisting performs the two-phase mapping of a published object: probe
// the fixed-size header read-only to learn the lengths, then map the full
// computed layout read-write. Two phases because the final length is known
// only from values inside the header itself.
//
// Errors carry no name prefix; callers add their own context.
func mapExisting(b shmos.Backend, obj shmos.Object) ([]byte, layout, error) {
	size, err := obj.Size()
	if err != nil {
		return nil, layout{}, fmt.Errorf("object size: %w: %w", ErrResource, err)
	}

	// Guard the probe: mapping past the last backed page faults on access,
	// and anything shorter than a header cannot be a segment.
	if size < headerSize {
		return nil, layout{}, fmt.Errorf("object holds %d bytes, no room for a header: %w", size, ErrFormat)
	}

	probe, err := obj.Map(headerSize, false)
	if err != nil {
		return nil, layout{}, fmt.Errorf("map header probe: %w: %w", ErrResource, err)
	}

	metaLen, dataLen, decErr := decodeHeader(probe)

	err = obj.Unmap(probe)
	if err != nil {
		return nil, layout{}, fmt.Errorf("unmap header probe: %w: %w", ErrResource, err)
	}

	if decErr != nil {
		return nil, layout{}, fmt.Errorf("%w: %w", ErrFormat, decErr)
	}

	// A published header that computes to no valid layout is damage, not
	// bad input.
	lay, layErr := computeLayout(metaLen, dataLen, b.LockStateSize())
	if layErr != nil {
		return nil, layout{}, fmt.Errorf("%w: %w", ErrFormat, layErr)
	}

	if size < int64(lay.total) {
		return nil, layout{}, fmt.Errorf("object holds %d bytes, layout needs %d: %w", size, lay.total, ErrFormat)
	}

	buf, err := obj.Map(lay.total, true)
	if err != nil {
		return nil, layout{}, fmt.Errorf("map %d bytes: %w: %w", lay.total, ErrResource, err)
	}

	return buf, lay, nil
}
