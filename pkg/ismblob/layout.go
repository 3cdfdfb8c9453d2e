package ismblob

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// isLittleEndian is true if the CPU uses little-endian byte order.
// Computed once at package init time.
var isLittleEndian = func() bool {
	var x uint32 = 0x04030201

	return *(*byte)(unsafe.Pointer(&x)) == 0x01
}()

// is64Bit is true if the architecture has 64-bit pointers.
// Required for atomic 64-bit operations across processes.
var is64Bit = unsafe.Sizeof(uintptr(0)) >= 8

// checkPlatform rejects hosts the segment format cannot run on. Header
// fields are little-endian and the refcount needs 64-bit atomics, so a
// big-endian or 32-bit process would corrupt segments for every peer.
func checkPlatform() error {
	if !isLittleEndian || !is64Bit {
		return ErrUnsupported
	}

	return nil
}

// Segment format constants.
const (
	// Magic marker bytes. Written last during creation; a mapped object
	// without them is unpublished or foreign.
	magic0 = 0xF0
	magic1 = 0x0A

	// Fixed header size in bytes.
	headerSize = 16

	// Size of the shared refcount field.
	refcountSize = 8
)

// MaxMetadata is the largest metadata blob a segment can carry, fixed by
// the 16-bit length field in the header.
const MaxMetadata = 1<<16 - 1

// Header field offsets (bytes from segment start).
const (
	offMagic   = 0x00 // [2]byte, 0xF0 0x0A
	offMetaLen = 0x02 // uint16, metadata length
	// 0x04-0x07 reserved, zero (fresh objects are zero-filled)
	offDataLen = 0x08 // uint64, data region length
)

// Safe integer conversion constants.
const (
	maxInt = int(^uint(0) >> 1)
)

// layout holds the computed offsets of every region in a segment. It is
// derived purely from the metadata length, the data length, and the
// backend's lock state size, so every process mapping the same name
// computes the same layout.
type layout struct {
	metaLen int
	dataLen int

	metaOff int // metadata region start (== headerSize)
	dataOff int // data region start
	lockOff int // lock state start, 8-aligned
	refOff  int // refcount field start, 8-aligned
	total   int // full mapped length
}

// computeLayout derives a segment layout. Errors are plain and carry no
// sentinel: create reports them as invalid input, open as a format
// problem, since a header declaring an impossible layout is damage.
func computeLayout(metaLen, dataLen, lockSize int) (layout, error) {
	if metaLen < 0 || metaLen > MaxMetadata {
		return layout{}, fmt.Errorf("metadata length %d outside [0, %d]", metaLen, MaxMetadata)
	}

	if dataLen < 0 {
		return layout{}, fmt.Errorf("data length %d is negative", dataLen)
	}

	if lockSize <= 0 {
		return layout{}, fmt.Errorf("lock state size %d is not positive", lockSize)
	}

	// Compute in uint64 so a giant dataLen cannot wrap int.
	body := align8U64(uint64(headerSize) + uint64(metaLen) + uint64(dataLen))
	lockRegion := align8U64(uint64(lockSize))
	total := body + lockRegion + refcountSize

	if total > uint64(maxInt) {
		return layout{}, fmt.Errorf("segment size %d exceeds addressable memory", total)
	}

	return layout{
		metaLen: metaLen,
		dataLen: dataLen,
		metaOff: headerSize,
		dataOff: headerSize + metaLen,
		lockOff: int(body),
		refOff:  int(body + lockRegion),
		total:   int(total),
	}, nil
}

// align8U64 rounds x up to the next multiple of 8.
func align8U64(x uint64) uint64 {
	return (x + 7) &^ 7
}

// metadata returns the metadata region of a mapped segment.
func (l layout) metadata(buf []byte) []byte {
	return buf[l.metaOff : l.metaOff+l.metaLen : l.metaOff+l.metaLen]
}

// data returns the data region of a mapped segment, capped so user code
// cannot reslice into the refcount header.
func (l layout) data(buf []byte) []byte {
	return buf[l.dataOff : l.dataOff+l.dataLen : l.dataOff+l.dataLen]
}

// lockState returns the lock state region of a mapped segment.
func (l layout) lockState(buf []byte) []byte {
	return buf[l.lockOff:l.refOff:l.refOff]
}

// refcount returns the refcount field of a mapped segment.
func (l layout) refcount(buf []byte) []byte {
	return buf[l.refOff : l.refOff+refcountSize : l.refOff+refcountSize]
}

// headerWord packs the magic marker and metadata length into the
// little-endian uint32 occupying the first four header bytes. Storing it
// as one word lets the marker and length become visible together.
func headerWord(metaLen int) uint32 {
	return uint32(magic0) | uint32(magic1)<<8 | uint32(metaLen)<<16
}

// publish makes a fully initialized segment visible to openers.
//
// The data length lands first, then a single atomic store writes the
// magic marker and metadata length together. A concurrent prober either
// misses the marker entirely or observes a complete header.
func publish(buf []byte, l layout) {
	atomicStoreUint64(buf[offDataLen:], uint64(l.dataLen))
	atomicStoreUint32(buf[offMagic:], headerWord(l.metaLen))
}

// decodeHeader reads the published header fields from a mapping that
// covers at least headerSize bytes. The magic word is loaded atomically,
// so probing an object mid-publish is safe: the marker is either absent
// or the whole header is valid.
func decodeHeader(buf []byte) (metaLen, dataLen int, err error) {
	word := atomicLoadUint32(buf[offMagic:])
	if byte(word) != magic0 || byte(word>>8) != magic1 {
		return 0, 0, fmt.Errorf("segment marker absent (leading bytes %#02x %#02x)", byte(word), byte(word>>8))
	}

	metaLen = int(word >> 16)

	raw := atomicLoadUint64(buf[offDataLen:])
	if raw > uint64(maxInt) {
		return 0, 0, fmt.Errorf("declared data length %d exceeds addressable memory", raw)
	}

	return metaLen, int(raw), nil
}

// atomicLoadUint32 performs an atomic 32-bit load from a 4-byte-aligned
// position in the buffer.
//
// Preconditions:
//   - buf must be at least 4 bytes
//   - &buf[0] must be 4-byte aligned
//
// Header fields sit at 8-aligned offsets inside mappings that start
// page-aligned, and the in-memory test backend hands out heap arrays,
// which Go aligns to at least 8 bytes.
func atomicLoadUint32(buf []byte) uint32 {
	// Bounds check.
	_ = buf[3]

	// SAFETY: alignment per the preconditions above.
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&buf[0])))
}

// atomicStoreUint32 performs an atomic 32-bit store to a 4-byte-aligned
// position in the buffer. Same preconditions as atomicLoadUint32.
func atomicStoreUint32(buf []byte, val uint32) {
	// Bounds check.
	_ = buf[3]

	// SAFETY: alignment per atomicLoadUint32.
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&buf[0])), val)
}

// atomicLoadUint64 performs an atomic 64-bit load from an 8-byte-aligned
// position in the buffer. Used for the data length field and the shared
// refcount, both of which peers in other processes read concurrently.
//
// Preconditions:
//   - buf must be at least 8 bytes
//   - &buf[0] must be 8-byte aligned (the layout keeps the data length
//     and refcount fields at 8-aligned offsets)
func atomicLoadUint64(buf []byte) uint64 {
	// Bounds check.
	_ = buf[7]

	// SAFETY: alignment per the preconditions above.
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&buf[0])))
}

// atomicStoreUint64 performs an atomic 64-bit store to an 8-byte-aligned
// position in the buffer. Same preconditions as atomicLoadUint64.
func atomicStoreUint64(buf []byte, val uint64) {
	// Bounds check.
	_ = buf[7]

	// SAFETY: alignment per atomicLoadUint64.
	atomic.StoreUint64((*uint64)(unsafe.Pointer(&buf[0])), val)
}
