package ndview

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// Sentinel errors returned by this package. Failures of the underlying
// segment pass through untouched and match the ismblob sentinels.
var (
	// ErrDescr reports a missing, malformed, or inconsistent array
	// description: metadata that does not decode as the JSON triple, an
	// unknown dtype or order, a negative dimension, or a shape whose byte
	// length does not match the segment's data region.
	ErrDescr = errors.New("ndview: bad array description")

	// ErrType reports that the requested element type cannot view the
	// array: the dtype differs from the type's, or the data region is not
	// aligned for it.
	ErrType = errors.New("ndview: element type cannot view array")

	// ErrIndex reports indices outside the array's shape.
	ErrIndex = errors.New("ndview: index out of range")
)

// Memory orders. OrderC is row-major (the last axis varies fastest),
// OrderF is column-major (the first axis varies fastest).
const (
	OrderC Order = "C"
	OrderF Order = "F"
)

// Order is the memory order of an array, OrderC or OrderF.
type Order string

// DType strings follow the array-interface typestr convention: a byte-order
// mark ("<" little-endian, "|" none), a kind letter (b bool, i signed
// integer, u unsigned integer, f float), and the item size in bytes.
// Big-endian dtypes are not representable; segments are little-endian by
// construction.
const (
	DTypeBool    = "|b1"
	DTypeInt8    = "|i1"
	DTypeUint8   = "|u1"
	DTypeInt16   = "<i2"
	DTypeUint16  = "<u2"
	DTypeInt32   = "<i4"
	DTypeUint32  = "<u4"
	DTypeInt64   = "<i8"
	DTypeUint64  = "<u8"
	DTypeFloat32 = "<f4"
	DTypeFloat64 = "<f8"
)

// itemSizes maps every supported dtype to its element width in bytes.
var itemSizes = map[string]int{
	DTypeBool:    1,
	DTypeInt8:    1,
	DTypeUint8:   1,
	DTypeInt16:   2,
	DTypeUint16:  2,
	DTypeInt32:   4,
	DTypeUint32:  4,
	DTypeInt64:   8,
	DTypeUint64:  8,
	DTypeFloat32: 4,
	DTypeFloat64: 8,
}

// Descr describes the element type, dimensions, and memory order of the
// array stored in a segment's data region.
//
// An empty Shape describes a scalar (one element). A dimension of zero
// describes an empty array.
type Descr struct {
	DType string
	Shape []int
	Order Order
}

// Validate reports whether the descr is well formed: known dtype, known
// order, no negative dimension, and a total byte length that fits in int.
//
// The other Descr methods assume a validated receiver.
//
// Possible errors:
//   - [ErrDescr]: the descr is not well formed
func (d Descr) Validate() error {
	if _, ok := itemSizes[d.DType]; !ok {
		return fmt.Errorf("%w: unknown dtype %q", ErrDescr, d.DType)
	}

	if d.Order != OrderC && d.Order != OrderF {
		return fmt.Errorf("%w: unknown order %q", ErrDescr, d.Order)
	}

	for i, dim := range d.Shape {
		if dim < 0 {
			return fmt.Errorf("%w: axis %d has negative size %d", ErrDescr, i, dim)
		}
	}

	if _, ok := d.byteLen(); !ok {
		return fmt.Errorf("%w: shape %v overflows the address space", ErrDescr, d.Shape)
	}

	return nil
}

// ItemSize returns the element width in bytes, or zero for an unknown
// dtype.
func (d Descr) ItemSize() int { return itemSizes[d.DType] }

// Elements returns the number of elements the shape describes: the product
// of its dimensions, one for an empty shape.
func (d Descr) Elements() int {
	n := 1
	for _, dim := range d.Shape {
		n *= dim
	}

	return n
}

// ByteLen returns the data region length the descr calls for.
func (d Descr) ByteLen() int {
	n, _ := d.byteLen()
	return n
}

// byteLen multiplies item size by every dimension, reporting overflow.
func (d Descr) byteLen() (int, bool) {
	n := d.ItemSize()
	for _, dim := range d.Shape {
		var ok bool
		if n, ok = checkedMul(n, dim); !ok {
			return 0, false
		}
	}

	return n, true
}

// checkedMul returns a*b and whether the product stayed in range.
// Both operands must be non-negative.
func checkedMul(a, b int) (int, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}

	p := a * b
	if p/b != a {
		return 0, false
	}

	return p, true
}

// Strides returns the byte distance between adjacent elements along each
// axis, following the descr's memory order.
func (d Descr) Strides() []int {
	strides := make([]int, len(d.Shape))
	acc := d.ItemSize()

	if d.Order == OrderF {
		for i := 0; i < len(d.Shape); i++ {
			strides[i] = acc
			acc *= d.Shape[i]
		}

		return strides
	}

	for i := len(d.Shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= d.Shape[i]
	}

	return strides
}

// Offset returns the byte offset of the element at the given indices,
// one index per axis.
//
// Possible errors:
//   - [ErrIndex]: wrong number of indices, or an index outside its axis
func (d Descr) Offset(indices ...int) (int, error) {
	if len(indices) != len(d.Shape) {
		return 0, fmt.Errorf("%w: got %d indices for %d axes", ErrIndex, len(indices), len(d.Shape))
	}

	strides := d.Strides()
	off := 0

	for i, idx := range indices {
		if idx < 0 || idx >= d.Shape[i] {
			return 0, fmt.Errorf("%w: axis %d index %d, size %d", ErrIndex, i, idx, d.Shape[i])
		}

		off += idx * strides[i]
	}

	return off, nil
}

// EncodeDescr renders d as the JSON triple [dtype, shape, order], padded
// with trailing spaces to a multiple of 8 bytes. The padding keeps a data
// region placed directly after the encoded form 8-aligned, which [DataOf]
// relies on for the wider element types.
//
// Possible errors:
//   - [ErrDescr]: the descr is not well formed
func EncodeDescr(d Descr) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	shape := d.Shape
	if shape == nil {
		// Encode a scalar shape as [], not null.
		shape = []int{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // keep "<f8" literal, not "\u003cf8"

	if err := enc.Encode([]any{d.DType, shape, d.Order}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDescr, err)
	}

	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	if rem := len(out) % 8; rem != 0 {
		out = append(out, bytes.Repeat([]byte{' '}, 8-rem)...)
	}

	return out, nil
}

// DecodeDescr parses an encoded descr and validates it. Trailing space
// padding is tolerated, so the raw metadata blob of a segment written by
// [New] decodes as is.
//
// Possible errors:
//   - [ErrDescr]: the bytes are not a well-formed encoded descr
func DecodeDescr(enc []byte) (Descr, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(bytes.TrimRight(enc, " "), &raw); err != nil {
		return Descr{}, fmt.Errorf("%w: %w", ErrDescr, err)
	}

	if len(raw) != 3 {
		return Descr{}, fmt.Errorf("%w: want 3 fields, got %d", ErrDescr, len(raw))
	}

	var d Descr

	if err := json.Unmarshal(raw[0], &d.DType); err != nil {
		return Descr{}, fmt.Errorf("%w: dtype: %w", ErrDescr, err)
	}

	if err := json.Unmarshal(raw[1], &d.Shape); err != nil {
		return Descr{}, fmt.Errorf("%w: shape: %w", ErrDescr, err)
	}

	if err := json.Unmarshal(raw[2], &d.Order); err != nil {
		return Descr{}, fmt.Errorf("%w: order: %w", ErrDescr, err)
	}

	if err := d.Validate(); err != nil {
		return Descr{}, err
	}

	return d, nil
}

// clone returns a copy that shares no memory with the receiver.
func (d Descr) clone() Descr {
	d.Shape = slices.Clone(d.Shape)
	return d
}
