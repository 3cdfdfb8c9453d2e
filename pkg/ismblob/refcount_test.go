//go:build linux

package ismblob

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ismkit/ismblob/internal/shmos"
)

func Test_SharedRefcount_Tracks_Live_Handles_When_Seeded_Random_Ops_Applied(t *testing.T) {
	t.Parallel()

	const ops = 500

	mem := shmos.NewMem()
	rng := rand.New(rand.NewSource(0x15B10B))

	// Every handle here simulates an independent process holding one
	// reference to the same name.
	var live []*Handle

	for i := 0; i < ops; i++ {
		switch {
		case len(live) == 0:
			h, err := createWith(mem, "prop", CreateOptions{DataLen: 32, Metadata: []byte("p")})
			if err != nil {
				t.Fatalf("op %d: create: %v", i, err)
			}

			live = append(live, h)

		case rng.Intn(2) == 0:
			h, err := openWith(mem, "prop")
			if err != nil {
				t.Fatalf("op %d: open: %v", i, err)
			}

			live = append(live, h)

		default:
			victim := rng.Intn(len(live))

			if err := live[victim].Close(); err != nil {
				t.Fatalf("op %d: close: %v", i, err)
			}

			live = append(live[:victim], live[victim+1:]...)
		}

		if len(live) == 0 {
			if _, err := openWith(mem, "prop"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("op %d: open after last close = %v, want ErrNotFound", i, err)
			}

			continue
		}

		cnt, err := live[rng.Intn(len(live))].SharedRefcount()
		if err != nil {
			t.Fatalf("op %d: refcount: %v", i, err)
		}

		if cnt != uint64(len(live)) {
			t.Fatalf("op %d: refcount = %d, live handles = %d", i, cnt, len(live))
		}
	}

	for _, h := range live {
		if err := h.Close(); err != nil {
			t.Fatalf("drain: %v", err)
		}
	}
}

func Test_Exactly_One_Teardown_When_Closers_Race(t *testing.T) {
	t.Parallel()

	const handles = 8

	mem := shmos.NewMem()
	fl := shmos.NewFlaky(mem)

	hs := make([]*Handle, 0, handles)

	creator, err := createWith(fl, "seg", CreateOptions{DataLen: 256})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	hs = append(hs, creator)

	for len(hs) < handles {
		h, err := openWith(fl, "seg")
		if err != nil {
			t.Fatalf("open: %v", err)
		}

		hs = append(hs, h)
	}

	var (
		wg       sync.WaitGroup
		closeErr = make([]error, handles)
	)

	for i, h := range hs {
		wg.Add(1)

		go func() {
			defer wg.Done()

			closeErr[i] = h.Close()
		}()
	}

	wg.Wait()

	for i, err := range closeErr {
		if err != nil {
			t.Errorf("closer %d: %v", i, err)
		}
	}

	st := fl.Stats()

	if st.Unlinks != 1 {
		t.Errorf("unlinks = %d, want 1", st.Unlinks)
	}

	if st.LockDestroys != 1 {
		t.Errorf("lock destroys = %d, want 1", st.LockDestroys)
	}

	if st.Maps != st.Unmaps {
		t.Errorf("maps = %d, unmaps = %d, want equal", st.Maps, st.Unmaps)
	}

	if st.Creates+st.Opens != st.Closes {
		t.Errorf("creates+opens = %d, closes = %d, want equal", st.Creates+st.Opens, st.Closes)
	}

	if _, err := openWith(mem, "seg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("open after teardown = %v, want ErrNotFound", err)
	}
}

func Test_Refcount_Lock_Serializes_Attach_Detach_Churn(t *testing.T) {
	t.Parallel()

	const (
		workers = 8
		rounds  = 200
	)

	mem := shmos.NewMem()

	creator, err := createWith(mem, "churn", CreateOptions{DataLen: 64})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup

	errCh := make(chan error, workers)

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range rounds {
				h, err := openWith(mem, "churn")
				if err != nil {
					errCh <- err

					return
				}

				if err := h.Close(); err != nil {
					errCh <- err

					return
				}
			}
		}()
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Fatalf("worker: %v", err)
	}

	// The creator's reference survived every racing attach/detach cycle.
	cnt, err := creator.SharedRefcount()
	if err != nil {
		t.Fatalf("refcount: %v", err)
	}

	if cnt != 1 {
		t.Errorf("refcount after churn = %d, want 1", cnt)
	}

	if err := creator.Close(); err != nil {
		t.Fatalf("close creator: %v", err)
	}

	if _, err := openWith(mem, "churn"); !errors.Is(err, ErrNotFound) {
		t.Errorf("open after last close = %v, want ErrNotFound", err)
	}
}

func Test_Segment_Lifecycle_Scenario(t *testing.T) {
	t.Parallel()

	mem := shmos.NewMem()

	a, err := createWith(mem, "foo", CreateOptions{DataLen: 1024, Metadata: []byte("m1")})
	require.NoError(t, err, "create foo")

	cnt, err := a.SharedRefcount()
	require.NoError(t, err)
	require.EqualValues(t, 1, cnt, "after create")

	b, err := openWith(mem, "foo")
	require.NoError(t, err, "open foo")
	require.Equal(t, []byte("m1"), b.Metadata())

	cnt, err = b.SharedRefcount()
	require.NoError(t, err)
	require.EqualValues(t, 2, cnt, "after open")

	require.NoError(t, a.Close(), "close A")

	cnt, err = b.SharedRefcount()
	require.NoError(t, err)
	require.EqualValues(t, 1, cnt, "after closing A")

	info, err := statWith(mem, "foo")
	require.NoError(t, err, "segment must outlive its creator")
	require.EqualValues(t, 1024, info.DataLen)

	require.NoError(t, b.Close(), "close B")

	_, err = openWith(mem, "foo")
	require.ErrorIs(t, err, ErrNotFound, "segment must be gone after last close")

	_, err = statWith(mem, "foo")
	require.ErrorIs(t, err, ErrNotFound)

	names, err := mem.List()
	require.NoError(t, err)
	require.Empty(t, names, "namespace must be clean")
}
