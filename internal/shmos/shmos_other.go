//go:build !linux

package shmos

// New returns the shared-memory backend for this host.
//
// Only Linux has one; every other platform gets [ErrUnsupported].
func New() (Backend, error) {
	return nil, ErrUnsupported
}
