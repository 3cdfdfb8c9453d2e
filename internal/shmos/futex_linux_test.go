//go:build linux

package shmos

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func Test_FutexLock_AcquireRelease_Uncontended(t *testing.T) {
	t.Parallel()

	var l futexLock

	state := make([]byte, l.LockStateSize())

	if err := l.LockInit(state); err != nil {
		t.Fatalf("LockInit: %v", err)
	}

	if err := l.LockAcquire(state); err != nil {
		t.Fatalf("LockAcquire: %v", err)
	}

	if err := l.LockRelease(state); err != nil {
		t.Fatalf("LockRelease: %v", err)
	}

	// A released lock must be acquirable again.
	if err := l.LockAcquire(state); err != nil {
		t.Fatalf("LockAcquire after release: %v", err)
	}

	if err := l.LockRelease(state); err != nil {
		t.Fatalf("LockRelease: %v", err)
	}
}

func Test_FutexLock_Init_ClearsStaleState(t *testing.T) {
	t.Parallel()

	var l futexLock

	state := make([]byte, l.LockStateSize())
	for i := range state {
		state[i] = 0xFF
	}

	if err := l.LockInit(state); err != nil {
		t.Fatalf("LockInit: %v", err)
	}

	// Init over garbage must yield a free lock.
	if err := l.LockAcquire(state); err != nil {
		t.Fatalf("LockAcquire: %v", err)
	}

	if err := l.LockRelease(state); err != nil {
		t.Fatalf("LockRelease: %v", err)
	}
}

func Test_FutexLock_MutualExclusion_UnderContention(t *testing.T) {
	t.Parallel()

	const (
		goroutines = 16
		iterations = 2000
	)

	var l futexLock

	state := make([]byte, l.LockStateSize())
	if err := l.LockInit(state); err != nil {
		t.Fatalf("LockInit: %v", err)
	}

	// Plain (non-atomic) increments: only mutual exclusion makes the final
	// count come out right, and the race detector sees any overlap.
	var (
		counter  int
		inside   atomic.Int32
		overlaps atomic.Int32
		wg       sync.WaitGroup
	)

	for range goroutines {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range iterations {
				if err := l.LockAcquire(state); err != nil {
					t.Errorf("LockAcquire: %v", err)

					return
				}

				if inside.Add(1) != 1 {
					overlaps.Add(1)
				}

				counter++

				inside.Add(-1)

				if err := l.LockRelease(state); err != nil {
					t.Errorf("LockRelease: %v", err)

					return
				}
			}
		}()
	}

	wg.Wait()

	if overlaps.Load() != 0 {
		t.Fatalf("critical section entered concurrently %d times", overlaps.Load())
	}

	if counter != goroutines*iterations {
		t.Fatalf("counter = %d, want %d", counter, goroutines*iterations)
	}
}

func Test_FutexLock_Release_WakesBlockedAcquirer(t *testing.T) {
	t.Parallel()

	var l futexLock

	state := make([]byte, l.LockStateSize())
	if err := l.LockInit(state); err != nil {
		t.Fatalf("LockInit: %v", err)
	}

	if err := l.LockAcquire(state); err != nil {
		t.Fatalf("LockAcquire: %v", err)
	}

	acquired := make(chan error, 1)

	go func() {
		acquired <- l.LockAcquire(state)
	}()

	// The second acquirer must be blocked, so the channel stays empty until
	// the holder releases.
	time.Sleep(50 * time.Millisecond)

	select {
	case err := <-acquired:
		t.Fatalf("second acquire returned while lock held: %v", err)
	default:
	}

	if err := l.LockRelease(state); err != nil {
		t.Fatalf("LockRelease: %v", err)
	}

	if err := <-acquired; err != nil {
		t.Fatalf("blocked acquire: %v", err)
	}

	if err := l.LockRelease(state); err != nil {
		t.Fatalf("LockRelease by woken acquirer: %v", err)
	}
}
