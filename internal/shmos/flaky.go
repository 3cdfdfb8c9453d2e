package shmos

import (
	"errors"
	"os"
	"sync"
)

// errInjected is the default fault planted by [Flaky.FailAt].
var errInjected = errors.New("shmos: injected fault")

// InjectedError marks an error as intentionally injected by [Flaky].
//
// It wraps the underlying error so errors.Is/As continue to work.
type InjectedError struct {
	Err error
}

// Error returns the underlying error's message.
func (e *InjectedError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *InjectedError) Unwrap() error {
	return e.Err
}

// IsInjected reports whether err (or any wrapped error) came from [Flaky].
// Returns false if err is nil.
func IsInjected(err error) bool {
	var injected *InjectedError

	return errors.As(err, &injected)
}

// Stats counts backend calls by operation.
//
// The resource pairs are what rollback tests balance: every Create/Open
// needs a Close, every successful Map an Unmap, and a clean namespace ends
// with Creates == Unlinks.
type Stats struct {
	Creates   int64
	Opens     int64
	Unlinks   int64
	Lists     int64
	Truncates int64
	Sizes     int64
	Maps      int64
	Unmaps    int64
	Closes    int64

	LockInits    int64
	LockAcquires int64
	LockReleases int64
	LockDestroys int64
}

// Calls returns the total number of counted calls.
func (s Stats) Calls() int64 {
	return s.Creates + s.Opens + s.Unlinks + s.Lists +
		s.Truncates + s.Sizes + s.Maps + s.Unmaps + s.Closes +
		s.LockInits + s.LockAcquires + s.LockReleases + s.LockDestroys
}

// Flaky wraps a [Backend], counts every call, and can fail exactly one of
// them. Sweeping the failure point across an operation's whole call
// sequence is how the rollback paths get exercised deterministically.
//
// LockStateSize is a pure size query and is neither counted nor failed.
type Flaky struct {
	inner Backend

	mu      sync.Mutex
	stats   Stats
	calls   int64
	failAt  int64
	failErr error
}

// NewFlaky wraps inner.
func NewFlaky(inner Backend) *Flaky {
	return &Flaky{inner: inner}
}

// FailAt arranges for the n-th counted call (1-based, from construction) to
// fail with err wrapped in [InjectedError]. A nil err plants a generic
// fault; n <= 0 disarms.
func (f *Flaky) FailAt(n int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err == nil {
		err = errInjected
	}

	f.failAt = n
	f.failErr = err
}

// Stats returns a snapshot of the per-operation call counts.
func (f *Flaky) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.stats
}

// step counts one call and returns the planted fault if this is the one.
func (f *Flaky) step(counter *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	*counter++

	if f.failAt > 0 && f.calls == f.failAt {
		return &InjectedError{Err: f.failErr}
	}

	return nil
}

func (f *Flaky) Create(name string, perm os.FileMode) (Object, error) {
	if err := f.step(&f.stats.Creates); err != nil {
		return nil, err
	}

	obj, err := f.inner.Create(name, perm)
	if err != nil {
		return nil, err
	}

	return &flakyObject{f: f, inner: obj}, nil
}

func (f *Flaky) Open(name string) (Object, error) {
	if err := f.step(&f.stats.Opens); err != nil {
		return nil, err
	}

	obj, err := f.inner.Open(name)
	if err != nil {
		return nil, err
	}

	return &flakyObject{f: f, inner: obj}, nil
}

func (f *Flaky) Unlink(name string) error {
	if err := f.step(&f.stats.Unlinks); err != nil {
		return err
	}

	return f.inner.Unlink(name)
}

func (f *Flaky) List() ([]string, error) {
	if err := f.step(&f.stats.Lists); err != nil {
		return nil, err
	}

	return f.inner.List()
}

func (f *Flaky) LockStateSize() int {
	return f.inner.LockStateSize()
}

func (f *Flaky) LockInit(state []byte) error {
	if err := f.step(&f.stats.LockInits); err != nil {
		return err
	}

	return f.inner.LockInit(state)
}

func (f *Flaky) LockAcquire(state []byte) error {
	if err := f.step(&f.stats.LockAcquires); err != nil {
		return err
	}

	return f.inner.LockAcquire(state)
}

func (f *Flaky) LockRelease(state []byte) error {
	if err := f.step(&f.stats.LockReleases); err != nil {
		return err
	}

	return f.inner.LockRelease(state)
}

func (f *Flaky) LockDestroy(state []byte) error {
	if err := f.step(&f.stats.LockDestroys); err != nil {
		return err
	}

	return f.inner.LockDestroy(state)
}

// flakyObject routes object calls through the owning Flaky's counter.
type flakyObject struct {
	f     *Flaky
	inner Object
}

func (o *flakyObject) Truncate(size int64) error {
	if err := o.f.step(&o.f.stats.Truncates); err != nil {
		return err
	}

	return o.inner.Truncate(size)
}

func (o *flakyObject) Size() (int64, error) {
	if err := o.f.step(&o.f.stats.Sizes); err != nil {
		return 0, err
	}

	return o.inner.Size()
}

func (o *flakyObject) Map(length int, writable bool) ([]byte, error) {
	if err := o.f.step(&o.f.stats.Maps); err != nil {
		return nil, err
	}

	return o.inner.Map(length, writable)
}

func (o *flakyObject) Unmap(data []byte) error {
	if err := o.f.step(&o.f.stats.Unmaps); err != nil {
		return err
	}

	return o.inner.Unmap(data)
}

func (o *flakyObject) Close() error {
	if err := o.f.step(&o.f.stats.Closes); err != nil {
		return err
	}

	return o.inner.Close()
}

// Compile-time interface checks.
var (
	_ Backend = (*Flaky)(nil)
	_ Object  = (*flakyObject)(nil)
)
