package storage

import "bytes"

// HeaderMagic identifies a magni database file: the first 13 bytes of
// the 100-byte database header that precedes page 1's b-tree header
// (spec.md §3.4, §6.1).
const HeaderMagic = "MAGNI_DB_v1.0"

// DatabaseHeaderSize is the fixed size of the header that precedes
// page 1's b-tree header.
const DatabaseHeaderSize = 100

// DatabaseHeader is the fixed-format preamble written once, at file
// creation, into the first 100 bytes of page 1.
type DatabaseHeader struct {
	PageSize      uint32
	PageCount     uint32
	SchemaVersion uint32
}

// EncodeHeader writes h into the first DatabaseHeaderSize bytes of
// buf, which must be at least that long: 13 bytes of magic, then
// page_size/page_count/schema_version as u32 LE, then 75 reserved
// zero bytes (spec.md §6.1).
func EncodeHeader(buf []byte, h DatabaseHeader) {
	for i := range buf[:DatabaseHeaderSize] {
		buf[i] = 0
	}
	copy(buf[0:13], []byte(HeaderMagic))
	putUint32LE(buf[13:17], h.PageSize)
	putUint32LE(buf[17:21], h.PageCount)
	putUint32LE(buf[21:25], h.SchemaVersion)
}

// DecodeHeader reads a DatabaseHeader from the first
// DatabaseHeaderSize bytes of buf, failing if the magic does not
// match.
func DecodeHeader(buf []byte) (DatabaseHeader, error) {
	if len(buf) < DatabaseHeaderSize {
		return DatabaseHeader{}, newErr("decode_header", KindInvalidPageHeader, 1, nil)
	}
	if !bytes.Equal(buf[0:13], []byte(HeaderMagic)) {
		return DatabaseHeader{}, newErr("decode_header", KindInvalidPageHeader, 1, nil)
	}
	return DatabaseHeader{
		PageSize:      getUint32LE(buf[13:17]),
		PageCount:     getUint32LE(buf[17:21]),
		SchemaVersion: getUint32LE(buf[21:25]),
	}, nil
}
