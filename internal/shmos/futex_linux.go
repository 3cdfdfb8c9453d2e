//go:build linux

package shmos

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// The process-shared lock is a futex-backed mutex. The lock word holds one
// of three states; contenders sleep in the kernel keyed on the word's
// physical address, which is why the same protocol works across unrelated
// address spaces mapping the same pages.
const (
	mutexUnlocked  = 0
	mutexLocked    = 1 // held, no waiters
	mutexContended = 2 // held, at least one waiter may be asleep

	// lockStateSize is the futex word plus padding. Padding it to 8 keeps
	// whatever follows the lock in a shared layout 8-aligned.
	lockStateSize = 8
)

// futexLock implements the Backend Lock* methods on a futex word at the
// start of the state bytes. It is embedded by [Real] and [Mem]; the futex
// syscall operates on any memory, mapped or heap.
type futexLock struct{}

func (futexLock) LockStateSize() int { return lockStateSize }

func (futexLock) LockInit(state []byte) error {
	atomic.StoreUint32(futexWord(state), mutexUnlocked)

	return nil
}

func (futexLock) LockAcquire(state []byte) error {
	word := futexWord(state)

	if atomic.CompareAndSwapUint32(word, mutexUnlocked, mutexLocked) {
		return nil
	}

	// Slow path: advertise contention, then sleep until the swap that marks
	// the word contended observes it was free. Taking the lock via that swap
	// leaves the word contended even with no waiters; the release then
	// issues one spurious wake, which is harmless.
	c := atomic.LoadUint32(word)
	if c != mutexContended {
		c = atomic.SwapUint32(word, mutexContended)
	}

	for c != mutexUnlocked {
		if err := futexWait(word, mutexContended); err != nil {
			return fmt.Errorf("futex wait: %w", err)
		}

		c = atomic.SwapUint32(word, mutexContended)
	}

	return nil
}

func (futexLock) LockRelease(state []byte) error {
	word := futexWord(state)

	// Dropping from locked straight to unlocked needs no wake; dropping
	// from contended must wake one sleeper.
	if atomic.AddUint32(word, ^uint32(0)) != mutexUnlocked {
		atomic.StoreUint32(word, mutexUnlocked)

		if err := futexWake(word, 1); err != nil {
			return fmt.Errorf("futex wake: %w", err)
		}
	}

	return nil
}

func (futexLock) LockDestroy(state []byte) error {
	// A futex has no kernel-side identity to retire; clearing the word is
	// all destruction means here.
	atomic.StoreUint32(futexWord(state), mutexUnlocked)

	return nil
}

// futexWord returns the lock word at the start of state.
//
// SAFETY: state is the lock-state region of a mapping. Mappings are
// page-aligned and callers place the region at an 8-aligned offset, so
// &state[0] satisfies the 4-byte alignment required by 32-bit atomics and
// by FUTEX_WAIT.
func futexWord(state []byte) *uint32 {
	_ = state[3] // bounds check hint

	return (*uint32)(unsafe.Pointer(&state[0]))
}

// futexWait sleeps until the word no longer holds val, a wake arrives, or
// the kernel refuses. Returning nil only means "recheck the word".
func futexWait(word *uint32, val uint32) error {
	for {
		_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
			uintptr(unsafe.Pointer(word)), uintptr(unix.FUTEX_WAIT), uintptr(val), 0, 0, 0)

		switch errno {
		case 0:
			return nil
		case unix.EAGAIN:
			// Word changed before we slept.
			return nil
		case unix.EINTR:
			continue
		default:
			return errno
		}
	}
}

func futexWake(word *uint32, n uint32) error {
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(word)), uintptr(unix.FUTEX_WAKE), uintptr(n), 0, 0, 0)
	if errno != 0 {
		return errno
	}

	return nil
}
