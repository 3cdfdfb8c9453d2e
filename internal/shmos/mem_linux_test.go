//go:build linux

package shmos

import (
	"bytes"
	"errors"
	"io/fs"
	"testing"
)

func Test_Mem_Create_IsExclusive(t *testing.T) {
	t.Parallel()

	m := NewMem()

	if _, err := m.Create("seg", 0o600); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := m.Create("seg", 0o600)
	if !errors.Is(err, fs.ErrExist) {
		t.Fatalf("second create: got %v, want fs.ErrExist", err)
	}
}

func Test_Mem_Open_WhenNameAbsent(t *testing.T) {
	t.Parallel()

	m := NewMem()

	_, err := m.Open("never-created")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("got %v, want fs.ErrNotExist", err)
	}
}

func Test_Mem_Maps_AliasOneArray(t *testing.T) {
	t.Parallel()

	m := NewMem()

	obj, err := m.Create("seg", 0o600)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := obj.Truncate(64); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	first, err := obj.Map(64, true)
	if err != nil {
		t.Fatalf("map: %v", err)
	}

	// A second holder of the same name maps the same memory.
	obj2, err := m.Open("seg")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	second, err := obj2.Map(64, true)
	if err != nil {
		t.Fatalf("map: %v", err)
	}

	copy(first, []byte("written through the first mapping"))

	if !bytes.Equal(first, second) {
		t.Fatal("mappings do not alias the same memory")
	}
}

func Test_Mem_Unlink_KeepsEstablishedMappings(t *testing.T) {
	t.Parallel()

	m := NewMem()

	obj, err := m.Create("seg", 0o600)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := obj.Truncate(16); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	buf, err := obj.Map(16, true)
	if err != nil {
		t.Fatalf("map: %v", err)
	}

	buf[0] = 0xAB

	if err := m.Unlink("seg"); err != nil {
		t.Fatalf("unlink: %v", err)
	}

	// Name is gone...
	if _, err := m.Open("seg"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("open after unlink: got %v, want fs.ErrNotExist", err)
	}

	// ...but the mapping still works, and a new object under the old name
	// is independent memory.
	if buf[0] != 0xAB {
		t.Fatal("mapping died with the name")
	}

	fresh, err := m.Create("seg", 0o600)
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}

	if err := fresh.Truncate(16); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	freshBuf, err := fresh.Map(16, true)
	if err != nil {
		t.Fatalf("map: %v", err)
	}

	if freshBuf[0] == 0xAB {
		t.Fatal("recreated object shares memory with the unlinked one")
	}
}

func Test_Mem_Map_BeyondSize(t *testing.T) {
	t.Parallel()

	m := NewMem()

	obj, err := m.Create("seg", 0o600)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := obj.Truncate(8); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	if _, err := obj.Map(9, true); !errors.Is(err, fs.ErrInvalid) {
		t.Fatalf("got %v, want fs.ErrInvalid", err)
	}
}

func Test_ValidateName_RejectsUnrepresentableNames(t *testing.T) {
	t.Parallel()

	long := make([]byte, maxNameLen+1)
	for i := range long {
		long[i] = 'a'
	}

	for _, name := range []string{"", ".", "..", "a/b", "nul\x00byte", string(long)} {
		if err := validateName(name); !errors.Is(err, fs.ErrInvalid) {
			t.Errorf("validateName(%q): got %v, want fs.ErrInvalid", name, err)
		}
	}

	if err := validateName("perfectly.fine-name_42"); err != nil {
		t.Errorf("validateName rejected a good name: %v", err)
	}
}
