//go:build linux

package shmos

import (
	"io/fs"
	"os"
	"sync"
)

// Mem is an in-memory backend for tests. Every Map of an object returns a
// slice over the same backing array, so two handles opened through one Mem
// observe each other's writes exactly as two processes mapping the same
// name do. Unlink follows POSIX: the name goes away, the memory lives until
// nothing references it.
//
// The lock methods are the same futex ops [Real] uses; a futex word on the
// Go heap behaves like one in a mapping.
//
// Truncate replaces the backing array, so it must precede Map, which is the
// order the segment protocol guarantees.
type Mem struct {
	futexLock

	mu      sync.Mutex
	objects map[string]*memObject
}

// NewMem returns an empty in-memory namespace.
func NewMem() *Mem {
	return &Mem{objects: make(map[string]*memObject)}
}

func (m *Mem) Create(name string, _ os.FileMode) (Object, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[name]; ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrExist}
	}

	obj := &memObject{}
	m.objects[name] = obj

	return obj, nil
}

func (m *Mem) Open(name string) (Object, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	return obj, nil
}

func (m *Mem) Unlink(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[name]; !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}

	delete(m.objects, name)

	return nil
}

func (m *Mem) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.objects))
	for name := range m.objects {
		names = append(names, name)
	}

	return names, nil
}

// memObject is one in-memory object. The zero value is an empty object.
type memObject struct {
	mu   sync.Mutex
	data []byte
}

func (o *memObject) Truncate(size int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	grown := make([]byte, size)
	copy(grown, o.data)
	o.data = grown

	return nil
}

func (o *memObject) Size() (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return int64(len(o.data)), nil
}

func (o *memObject) Map(length int, _ bool) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if length > len(o.data) {
		return nil, &fs.PathError{Op: "mmap", Path: "", Err: fs.ErrInvalid}
	}

	return o.data[:length:length], nil
}

func (o *memObject) Unmap(_ []byte) error {
	return nil
}

func (o *memObject) Close() error {
	return nil
}

// Compile-time interface checks.
var (
	_ Backend = (*Mem)(nil)
	_ Object  = (*memObject)(nil)
)
