//go:build linux

package shmos

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"testing"
)

func Test_Real_Create_IsExclusive(t *testing.T) {
	t.Parallel()

	r := NewRealAt(t.TempDir())

	obj, err := r.Create("seg", 0o600)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	defer func() { _ = obj.Close() }()

	_, err = r.Create("seg", 0o600)
	if !errors.Is(err, fs.ErrExist) {
		t.Fatalf("second create: got %v, want fs.ErrExist", err)
	}
}

func Test_Real_Open_WhenNameAbsent(t *testing.T) {
	t.Parallel()

	r := NewRealAt(t.TempDir())

	_, err := r.Open("never-created")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("got %v, want fs.ErrNotExist", err)
	}
}

func Test_Real_Mappings_ShareMemoryAcrossOpens(t *testing.T) {
	t.Parallel()

	r := NewRealAt(t.TempDir())

	creator, err := r.Create("seg", 0o600)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	defer func() { _ = creator.Close() }()

	if err := creator.Truncate(4096); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	size, err := creator.Size()
	if err != nil {
		t.Fatalf("size: %v", err)
	}

	if size != 4096 {
		t.Fatalf("size = %d, want 4096", size)
	}

	bufA, err := creator.Map(4096, true)
	if err != nil {
		t.Fatalf("map: %v", err)
	}

	defer func() { _ = creator.Unmap(bufA) }()

	attacher, err := r.Open("seg")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	defer func() { _ = attacher.Close() }()

	bufB, err := attacher.Map(4096, false)
	if err != nil {
		t.Fatalf("map read-only: %v", err)
	}

	defer func() { _ = attacher.Unmap(bufB) }()

	payload := []byte("visible through the second descriptor")
	copy(bufA, payload)

	if !bytes.Equal(bufB[:len(payload)], payload) {
		t.Fatal("second mapping does not see the first mapping's writes")
	}
}

func Test_Real_Unlink_RemovesTheName(t *testing.T) {
	t.Parallel()

	r := NewRealAt(t.TempDir())

	obj, err := r.Create("seg", 0o600)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	defer func() { _ = obj.Close() }()

	if err := r.Unlink("seg"); err != nil {
		t.Fatalf("unlink: %v", err)
	}

	if _, err := r.Open("seg"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("open after unlink: got %v, want fs.ErrNotExist", err)
	}

	// The open descriptor still answers.
	if _, err := obj.Size(); err != nil {
		t.Fatalf("size after unlink: %v", err)
	}
}

func Test_Real_List_ReturnsRegularFiles(t *testing.T) {
	t.Parallel()

	r := NewRealAt(t.TempDir())

	for _, name := range []string{"one", "two", "three"} {
		obj, err := r.Create(name, 0o600)
		if err != nil {
			t.Fatalf("create %q: %v", name, err)
		}

		_ = obj.Close()
	}

	names, err := r.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	slices.Sort(names)

	want := []string{"one", "three", "two"}
	if !slices.Equal(names, want) {
		t.Fatalf("list = %v, want %v", names, want)
	}
}

func Test_Real_DevShm_Lifecycle(t *testing.T) {
	t.Parallel()

	r := NewReal()
	name := fmt.Sprintf("shmos-test-%d", os.Getpid())

	obj, err := r.Create(name, 0o600)
	if err != nil {
		t.Skipf("cannot create in %s: %v", shmDir, err)
	}

	defer func() {
		_ = obj.Close()
		_ = r.Unlink(name)
	}()

	if err := obj.Truncate(4096); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	buf, err := obj.Map(4096, true)
	if err != nil {
		t.Fatalf("map: %v", err)
	}

	buf[0] = 0x42

	if err := obj.Unmap(buf); err != nil {
		t.Fatalf("unmap: %v", err)
	}
}
