// Package shmos abstracts the OS shared-memory namespace for testing and
// fault injection.
//
// The main types are:
//   - [Backend]: interface for named shared-memory objects and the
//     process-shared lock primitive
//   - [Object]: interface for one open object (size, map, unmap)
//   - [Real]: production implementation backed by /dev/shm (Linux only)
//   - [Mem]: in-memory implementation whose mappings alias one backing
//     array, so independently opened handles observe each other the way
//     processes sharing physical pages do
//   - [Flaky]: wrapper that fails exactly the N-th backend call and counts
//     every operation, for rollback and leak testing
//
// Lock state lives inside the mapped bytes handed to the Lock* methods, not
// in the Backend: any process (or test goroutine) mapping the same bytes
// contends on the same lock.
package shmos

import (
	"errors"
	"io/fs"
	"os"
	"strings"
)

// ErrUnsupported is returned by [New] on platforms without a shared-memory
// backend. Only Linux is supported.
var ErrUnsupported = errors.New("shmos: no shared-memory backend for this platform")

// Backend is the capability surface for one shared-memory namespace.
//
// Name resolution (Create/Open/Unlink/List) and the lock primitive are
// bundled because both are properties of the host: the namespace decides
// where objects live, the lock decides how unrelated processes mapping the
// same bytes contend.
type Backend interface {
	// Create makes a new named object, exclusively. If the name is already
	// present the error wraps [fs.ErrExist]. The object starts empty; size
	// it with [Object.Truncate] before mapping.
	Create(name string, perm os.FileMode) (Object, error)

	// Open opens an existing named object. If the name is absent the error
	// wraps [fs.ErrNotExist].
	Open(name string) (Object, error)

	// Unlink removes a name. Objects already open and mappings already
	// established stay valid; the backing memory dies with the last of them.
	Unlink(name string) error

	// List returns every name currently present in the namespace, in no
	// particular order. Purely diagnostic.
	List() ([]string, error)

	// LockStateSize is the number of bytes of mapped memory the lock
	// occupies. Constant per backend.
	LockStateSize() int

	// LockInit makes state a released lock. Called once, by whoever
	// allocated the bytes, before any contender can see them.
	LockInit(state []byte) error

	// LockAcquire blocks until it holds the lock. No timeout: a holder that
	// dies mid-hold leaves the lock held forever.
	LockAcquire(state []byte) error

	// LockRelease releases a held lock and wakes one waiter, if any.
	LockRelease(state []byte) error

	// LockDestroy retires a lock that can no longer have contenders.
	LockDestroy(state []byte) error
}

// Object is one open shared-memory object. Closing it does not disturb
// established mappings or other holders of the same name.
type Object interface {
	// Truncate sets the object's size in bytes.
	Truncate(size int64) error

	// Size reports the object's current size in bytes.
	Size() (int64, error)

	// Map maps the first length bytes into this process, read-only or
	// read-write. Multiple maps of one object alias the same memory.
	Map(length int, writable bool) ([]byte, error)

	// Unmap releases a mapping previously returned by Map.
	Unmap(data []byte) error

	// Close releases the descriptor. Mappings survive it.
	Close() error
}

// maxNameLen matches NAME_MAX on the tmpfs that backs /dev/shm.
const maxNameLen = 255

// validateName rejects names the namespace cannot represent. Errors wrap
// [fs.ErrInvalid].
func validateName(name string) error {
	switch {
	case name == "" || name == "." || name == "..":
		return &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	case len(name) > maxNameLen:
		return &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	case strings.ContainsAny(name, "/\x00"):
		return &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	return nil
}
