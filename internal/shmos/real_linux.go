//go:build linux

package shmos

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// shmDir is the tmpfs mount backing the POSIX shared-memory namespace.
// Objects created here are what shm_open callers in any language see.
const shmDir = "/dev/shm"

// Real is the production backend. Names resolve to files under /dev/shm and
// mappings are MAP_SHARED, so every process mapping a name shares the same
// physical pages.
type Real struct {
	futexLock

	dir string
}

// New returns the shared-memory backend for this host.
func New() (Backend, error) {
	return NewReal(), nil
}

// NewReal returns a [Real] over the standard /dev/shm namespace.
func NewReal() *Real {
	return &Real{dir: shmDir}
}

// NewRealAt returns a [Real] over an alternate directory. Any tmpfs (or
// plain filesystem) works; tests point this at a temp dir to get real mmap
// semantics without touching the host namespace.
func NewRealAt(dir string) *Real {
	return &Real{dir: dir}
}

func (r *Real) Create(name string, perm os.FileMode) (Object, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filepath.Join(r.dir, name), os.O_RDWR|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return nil, err
	}

	return &realObject{f: f}, nil
}

func (r *Real) Open(name string) (Object, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filepath.Join(r.dir, name), os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	return &realObject{f: f}, nil
}

func (r *Real) Unlink(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	return os.Remove(filepath.Join(r.dir, name))
}

func (r *Real) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}

	return names, nil
}

// realObject is an open /dev/shm file.
type realObject struct {
	f *os.File
}

func (o *realObject) Truncate(size int64) error {
	return o.f.Truncate(size)
}

func (o *realObject) Size() (int64, error) {
	info, err := o.f.Stat()
	if err != nil {
		return 0, err
	}

	return info.Size(), nil
}

func (o *realObject) Map(length int, writable bool) ([]byte, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}

	return unix.Mmap(int(o.f.Fd()), 0, length, prot, unix.MAP_SHARED)
}

func (o *realObject) Unmap(data []byte) error {
	return unix.Munmap(data)
}

func (o *realObject) Close() error {
	return o.f.Close()
}

// Compile-time interface checks.
var (
	_ Backend = (*Real)(nil)
	_ Object  = (*realObject)(nil)
)
