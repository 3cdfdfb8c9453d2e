package ismblob

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"

	"github.com/ismkit/ismblob/internal/shmos"
)

// Info describes a published segment without attaching to it.
type Info struct {
	// Name is the segment name in the backend namespace.
	Name string

	// MetadataLen is the length of the embedded metadata blob in bytes.
	MetadataLen int

	// DataLen is the length of the data region in bytes.
	DataLen int

	// Size is the total length of the backing object: header, metadata,
	// data, and refcount header.
	Size int64

	// Refcount is the live-handle count at the moment it was read under
	// the segment lock. It can be stale by the time the caller sees it.
	Refcount uint64
}

// Stat inspects a published segment without taking a reference: the
// refcount is read, never changed, so Stat can never keep a segment alive
// or be the close that destroys one.
//
// Possible errors:
//   - [ErrNotFound]: the name does not resolve
//   - [ErrFormat]: the name resolves to something that is not a published
//     segment
//   - [ErrResource], [ErrLock], [ErrUnsupported]
func Stat(name string) (Info, error) {
	b, err := hostBackend()
	if err != nil {
		return Info{}, fmt.Errorf("stat %q: %w", name, ErrUnsupported)
	}

	return statWith(b, name)
}

// List returns the names in the backend namespace that carry a published
// segment header, sorted. Names that vanish mid-probe, cannot be read, or
// hold foreign data are silently skipped: on a shared host the namespace
// contains other programs' objects, and those are not ours to report on.
//
// Possible errors:
//   - [ErrResource]: the namespace itself could not be read
//   - [ErrUnsupported]
func List() ([]string, error) {
	b, err := hostBackend()
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", ErrUnsupported)
	}

	return listWith(b)
}

func statWith(b shmos.Backend, name string) (Info, error) {
	if err := checkPlatform(); err != nil {
		return Info{}, fmt.Errorf("stat %q: %w", name, err)
	}

	obj, err := b.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, fmt.Errorf("stat %q: %w", name, ErrNotFound)
		}

		if errors.Is(err, fs.ErrInvalid) {
			return Info{}, fmt.Errorf("stat %q: %w: %w", name, ErrInvalidInput, err)
		}

		return Info{}, fmt.Errorf("stat %q: %w: %w", name, ErrResource, err)
	}

	// Read-write map despite never writing a payload byte: reading the
	// refcount means taking the in-segment lock, and acquiring writes the
	// lock word.
	buf, lay, err := mapExisting(b, obj)
	if err != nil {
		_ = obj.Close()

		return Info{}, fmt.Errorf("stat %q: %w", name, err)
	}

	cnt, rcErr := readRefcount(b, buf, lay)

	unmapErr := obj.Unmap(buf)
	closeErr := obj.Close()

	if rcErr != nil {
		return Info{}, fmt.Errorf("stat %q: %w", name, rcErr)
	}

	if unmapErr != nil {
		return Info{}, fmt.Errorf("stat %q: unmap: %w: %w", name, ErrResource, unmapErr)
	}

	if closeErr != nil {
		return Info{}, fmt.Errorf("stat %q: close descriptor: %w: %w", name, ErrResource, closeErr)
	}

	return Info{
		Name:        name,
		MetadataLen: lay.metaLen,
		DataLen:     lay.dataLen,
		Size:        int64(lay.total),
		Refcount:    cnt,
	}, nil
}

func listWith(b shmos.Backend) ([]string, error) {
	if err := checkPlatform(); err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}

	names, err := b.List()
	if err != nil {
		return nil, fmt.Errorf("list segments: %w: %w", ErrResource, err)
	}

	var out []string

	for _, name := range names {
		if isPublished(b, name) {
			out = append(out, name)
		}
	}

	slices.Sort(out)

	return out, nil
}

// isPublished reports whether name currently resolves to an object whose
// header carries the segment marker. Probe only, nothing is retained.
func isPublished(b shmos.Backend, name string) bool {
	obj, err := b.Open(name)
	if err != nil {
		return false
	}

	size, err := obj.Size()
	if err != nil || size < headerSize {
		_ = obj.Close()

		return false
	}

	probe, err := obj.Map(headerSize, false)
	if err != nil {
		_ = obj.Close()

		return false
	}

	_, _, decErr := decodeHeader(probe)

	_ = obj.Unmap(probe)
	_ = obj.Close()

	return decErr == nil
}
