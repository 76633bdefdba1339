package storage

import (
	"encoding/binary"
	"math"
)

// Fixed-width reads and writes. Page header counters and offsets and
// cell pointer arrays are little-endian; interior child pointers, the
// header's rightmost_child/next_leaf field, IEEE-754 doubles, and
// fixed-width integer values inside a cell are big-endian. Every
// varint, including an interior cell's separator key, uses the
// little-endian 7-bit-continuation scheme below.

func getUint16LE(buf []byte) uint16 { return binary.LittleEndian.Uint16(buf) }
func putUint16LE(buf []byte, v uint16) { binary.LittleEndian.PutUint16(buf, v) }

func getUint32LE(buf []byte) uint32 { return binary.LittleEndian.Uint32(buf) }
func putUint32LE(buf []byte, v uint32) { binary.LittleEndian.PutUint32(buf, v) }

func getUint32BE(buf []byte) uint32 { return binary.BigEndian.Uint32(buf) }
func putUint32BE(buf []byte, v uint32) { binary.BigEndian.PutUint32(buf, v) }

func getFloat64BE(buf []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(buf))
}

func putFloat64BE(buf []byte, f float64) {
	binary.BigEndian.PutUint64(buf, math.Float64bits(f))
}

// signedWidths is the ascending set of byte widths the cell codec may
// select among for an integer serial type (spec.md §4.3's serial code
// table: widths 1, 2, 3, 4, 6, 8).
var signedWidths = [...]int{1, 2, 3, 4, 6, 8}

// fitsSignedWidth reports whether v fits in a two's-complement integer
// of the given byte width.
func fitsSignedWidth(v int64, width int) bool {
	bits := uint(width * 8)
	if bits >= 64 {
		return true
	}
	lo := -(int64(1) << (bits - 1))
	hi := int64(1)<<(bits-1) - 1
	return v >= lo && v <= hi
}

// smallestSignedWidth returns the narrowest width in signedWidths that
// can hold v.
func smallestSignedWidth(v int64) int {
	for _, w := range signedWidths {
		if fitsSignedWidth(v, w) {
			return w
		}
	}
	return 8
}

// putSignedWidth writes v into buf's first width bytes as a big-endian
// two's-complement integer of that width (truncating any sign-extension
// bits beyond the stored width).
func putSignedWidth(buf []byte, v int64, width int) {
	uv := uint64(v)
	for i := width - 1; i >= 0; i-- {
		buf[i] = byte(uv)
		uv >>= 8
	}
}

// getSignedWidth reads width big-endian bytes from buf and sign-extends
// from the most significant bit of the stored width.
func getSignedWidth(buf []byte, width int) int64 {
	var uv uint64
	for i := 0; i < width; i++ {
		uv = uv<<8 | uint64(buf[i])
	}
	// Sign-extend: if the top bit of the stored width is set, fill the
	// remaining high bits with ones.
	bits := uint(width * 8)
	if bits < 64 && uv&(uint64(1)<<(bits-1)) != 0 {
		uv |= ^uint64(0) << bits
	}
	return int64(uv)
}

// maxVarintLen is the longest a varint may legally be: 9 bytes covers
// all values up to 2^64-1 under the 7-bit-continuation scheme (8 bytes
// of 7 payload bits plus a final byte carrying the remaining 8 bits).
const maxVarintLen = 9

// putVarint encodes v using the little-endian 7-bit-continuation
// varint scheme (spec.md §4.1) into buf, returning the number of bytes
// written. buf must have at least maxVarintLen bytes of room.
func putVarint(buf []byte, v uint64) int {
	n := 0
	for n < maxVarintLen-1 && v >= 0x80 {
		buf[n] = byte(v) | 0x80
		v >>= 7
		n++
	}
	// Final byte: either v already fit in 7 bits, or this is the 9th
	// byte and v's remaining 8 bits (64 - 8*7) fit exactly.
	buf[n] = byte(v)
	n++
	return n
}

// varintSize returns the number of bytes putVarint would emit for v,
// without writing anything.
func varintSize(v uint64) int {
	n := 1
	for n < maxVarintLen && v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// getVarint decodes a varint starting at buf[0], returning the decoded
// value, the number of bytes consumed, and false if the buffer runs out
// before a terminating byte or the varint exceeds maxVarintLen bytes.
func getVarint(buf []byte) (uint64, int, bool) {
	var v uint64
	for i := 0; i < maxVarintLen; i++ {
		if i >= len(buf) {
			return 0, 0, false
		}
		b := buf[i]
		if i == maxVarintLen-1 {
			// Final allowed byte: no continuation bit, full 8 bits of
			// payload (this is what lets a 9-byte varint reach 2^64-1).
			v |= uint64(b) << (7 * i)
			return v, i + 1, true
		}
		v |= uint64(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return v, i + 1, true
		}
	}
	return 0, 0, false
}
