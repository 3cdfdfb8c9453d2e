package ndview

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/ismkit/ismblob/pkg/ismblob"
)

// ViewOptions configures [New].
type ViewOptions struct {
	// Perm is the file mode of the backing object. Zero means owner
	// read-write only (0o600).
	Perm os.FileMode
}

// Array is a typed view over one segment handle. It adds shape and element
// arithmetic on top of the handle's raw byte surface; lifetime (refcount,
// close, destroy-on-last-release) is the handle's.
type Array struct {
	h     *ismblob.Handle
	descr Descr
}

// New creates a named segment sized for the described array and publishes
// the encoded descr as its metadata. The data region starts zeroed.
//
// Possible errors:
//   - [ErrDescr]: the descr is not well formed
//   - [ismblob.ErrExists]: the name is already taken
//   - [ismblob.ErrInvalidInput]: the name is not usable
//   - [ismblob.ErrResource], [ismblob.ErrLock], [ismblob.ErrUnsupported]
func New(name string, d Descr, opts ViewOptions) (*Array, error) {
	meta, err := EncodeDescr(d)
	if err != nil {
		return nil, err
	}

	h, err := ismblob.Create(name, ismblob.CreateOptions{
		DataLen:  d.ByteLen(),
		Metadata: meta,
		Perm:     opts.Perm,
	})
	if err != nil {
		return nil, err
	}

	return &Array{h: h, descr: d.clone()}, nil
}

// Open attaches to an existing segment and reconstructs the view its
// creator described. The segment's data region must be exactly as long as
// the decoded descr calls for.
//
// Possible errors:
//   - [ErrDescr]: the metadata is not an encoded descr, or the descr does
//     not fit the segment
//   - [ismblob.ErrNotFound]: no segment has this name
//   - [ismblob.ErrFormat], [ismblob.ErrResource], [ismblob.ErrLock],
//     [ismblob.ErrUnsupported]
func Open(name string) (*Array, error) {
	h, err := ismblob.Open(name)
	if err != nil {
		return nil, err
	}

	d, err := DecodeDescr(h.Metadata())
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("open %q: %w", name, err)
	}

	if want, got := d.ByteLen(), len(h.Data()); want != got {
		_ = h.Close()
		return nil, fmt.Errorf("open %q: %w: descr wants %d data bytes, segment has %d",
			name, ErrDescr, want, got)
	}

	return &Array{h: h, descr: d}, nil
}

// Name returns the segment name the array is backed by.
func (a *Array) Name() string { return a.h.Name() }

// Bytes returns the raw data region, aliasing the shared memory. Nil after
// Close.
func (a *Array) Bytes() []byte { return a.h.Data() }

// Descr returns a copy of the array's description.
func (a *Array) Descr() Descr { return a.descr.clone() }

// Elements returns the number of elements in the array.
func (a *Array) Elements() int { return a.descr.Elements() }

// ItemSize returns the element width in bytes.
func (a *Array) ItemSize() int { return a.descr.ItemSize() }

// Strides returns the byte distance between adjacent elements along each
// axis.
func (a *Array) Strides() []int { return a.descr.Strides() }

// Offset returns the byte offset into [Array.Bytes] of the element at the
// given indices.
//
// Possible errors:
//   - [ErrIndex]: wrong number of indices, or an index outside its axis
func (a *Array) Offset(indices ...int) (int, error) {
	return a.descr.Offset(indices...)
}

// Close releases the array's reference on the segment. See
// [ismblob.Handle.Close].
func (a *Array) Close() error { return a.h.Close() }

// Element enumerates the Go types addressable through [DataOf]. The set
// mirrors the dtype table.
type Element interface {
	bool | int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 |
		float32 | float64
}

// DataOf returns the array's data region as a []T aliasing the shared
// memory: writes through the slice are visible to every process attached
// to the segment. T must correspond to the array's dtype and the region
// must be aligned for it; regions written by [New] always are, because the
// encoded descr pads the metadata to a multiple of 8. A zero-element array
// yields a nil slice.
//
// Element order in the slice is the segment's storage order. For OrderC
// the last axis varies fastest, for OrderF the first; use [Array.Offset]
// and [Array.Bytes] when positional access has to respect strides.
//
// Possible errors:
//   - [ErrType]: T does not match the dtype, or the region is misaligned
//   - [ismblob.ErrClosed]: the array is closed
func DataOf[T Element](a *Array) ([]T, error) {
	region := a.h.Data()
	if region == nil {
		return nil, fmt.Errorf("view %q: %w", a.h.Name(), ismblob.ErrClosed)
	}

	if want := dtypeOf[T](); want != a.descr.DType {
		return nil, fmt.Errorf("view %q: %w: array holds %s, not %s",
			a.h.Name(), ErrType, a.descr.DType, want)
	}

	n := a.descr.Elements()
	if n == 0 {
		return nil, nil
	}

	p := unsafe.Pointer(&region[0])
	if align := unsafe.Alignof(*new(T)); uintptr(p)%align != 0 {
		return nil, fmt.Errorf("view %q: %w: data region is not %d-aligned",
			a.h.Name(), ErrType, align)
	}

	// SAFETY: the region is a single mapping of n*sizeof(T) bytes (Open
	// checked the length against the descr) and p is aligned for T.
	return unsafe.Slice((*T)(p), n), nil
}

// dtypeOf maps a Go element type to its dtype string.
func dtypeOf[T Element]() string {
	switch any(*new(T)).(type) {
	case bool:
		return DTypeBool
	case int8:
		return DTypeInt8
	case uint8:
		return DTypeUint8
	case int16:
		return DTypeInt16
	case uint16:
		return DTypeUint16
	case int32:
		return DTypeInt32
	case uint32:
		return DTypeUint32
	case int64:
		return DTypeInt64
	case uint64:
		return DTypeUint64
	case float32:
		return DTypeFloat32
	case float64:
		return DTypeFloat64
	default:
		return ""
	}
}
