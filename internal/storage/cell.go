package storage

// Ownership tags whether a Cell's text/blob Values point into bytes the
// Cell itself allocated (and must free on Destroy) or into a pinned
// page buffer it merely borrows (spec.md §4.4's ownership distinction).
type Ownership int

const (
	// Owned cells carry their own copies of every text/blob byte slice
	// and are safe to keep across a page being unpinned or evicted.
	Owned Ownership = iota
	// Borrowed cells hold Values whose Bytes slices alias a page's
	// Data buffer directly; they are only valid while that page stays
	// pinned, and Destroy does not free anything.
	Borrowed
)

// Allocator supplies the byte buffers an owned Cell's deserialize path
// copies into. The default, DefaultAllocator, just calls make(); tests
// or callers tracking memory use can substitute their own.
type Allocator interface {
	AllocBytes(n int) []byte
}

type defaultAllocator struct{}

func (defaultAllocator) AllocBytes(n int) []byte { return make([]byte, n) }

// DefaultAllocator is the Allocator used when none is supplied.
var DefaultAllocator Allocator = defaultAllocator{}

// Cell is one row's on-disk record, decoded into Go-native Values
// (spec.md §4.4). RowID is the cell's key in the owning leaf's
// rowid-ordered key space.
type Cell struct {
	RowID     int64
	Values    []Value
	Ownership Ownership
}

// Destroy releases any bytes this Cell owns. It is a no-op for
// Borrowed cells, and safe to call more than once.
func (c *Cell) Destroy() {
	if c == nil || c.Ownership != Owned {
		return
	}
	for i := range c.Values {
		c.Values[i].Bytes = nil
	}
	c.Values = nil
}

// serialCode and its paired width for every Value this cell carries,
// per spec.md §4.3's table: 0 NULL; 1-4/5/6 signed int widths
// 1/2/3/4/6/8; 7 BE float64; 8/9 integer literals 0/1; even>=12 blob
// (length derived as code/2-6... actually code = 2*len+12); odd>=13
// text (code = 2*len+13).
func valueSerialCode(v Value) (code uint64, width int) {
	switch v.Type {
	case TypeNull:
		return 0, 0
	case TypeInt:
		if v.Int == 0 {
			return 8, 0
		}
		if v.Int == 1 {
			return 9, 0
		}
		w := smallestSignedWidth(v.Int)
		for i, ww := range signedWidths {
			if ww == w {
				return uint64(i + 1), w
			}
		}
		return 6, 8
	case TypeReal:
		return 7, 8
	case TypeBlob:
		return uint64(2*len(v.Bytes) + 12), len(v.Bytes)
	case TypeText:
		return uint64(2*len(v.Bytes) + 13), len(v.Bytes)
	default:
		return 0, 0
	}
}

// innerSize returns the byte length of everything a serialized cell
// carries *after* the outer payload_size varint: the rowid varint, a
// header-length varint, one serial-code varint per value, then the
// payload bytes for every non-inline value in order (spec.md §3.5's
// `payload_bytes` layout).
func (c *Cell) innerSize() int {
	size := varintSize(uint64(c.RowID))

	headerLen := 0
	payload := 0
	for _, v := range c.Values {
		code, width := valueSerialCode(v)
		headerLen += varintSize(code)
		switch v.Type {
		case TypeInt:
			if v.Int != 0 && v.Int != 1 {
				payload += width
			}
		case TypeReal:
			payload += 8
		case TypeText, TypeBlob:
			payload += width
		}
	}

	hdrSizeField := varintSize(uint64(headerLen))
	size += hdrSizeField + headerLen + payload
	return size
}

// CalculateSize returns the exact number of bytes Serialize would write
// for this cell, including the leading payload_size varint itself
// (spec.md §4.3's calculate_size).
func (c *Cell) CalculateSize() int {
	inner := c.innerSize()
	return varintSize(uint64(inner)) + inner
}

// Serialize writes this cell's payload_size prefix, rowid, header, and
// payload into buf, returning the number of bytes written. buf must be
// at least CalculateSize() bytes. Returns a SerializationFailed error
// if any value carries an unsupported type tag.
func (c *Cell) Serialize(buf []byte) (int, error) {
	off := putVarint(buf, uint64(c.innerSize()))
	off += putVarint(buf[off:], uint64(c.RowID))

	codes := make([]uint64, len(c.Values))
	widths := make([]int, len(c.Values))
	headerLen := 0
	for i, v := range c.Values {
		code, width := valueSerialCode(v)
		codes[i] = code
		widths[i] = width
		headerLen += varintSize(code)
	}

	off += putVarint(buf[off:], uint64(headerLen))
	for _, code := range codes {
		off += putVarint(buf[off:], code)
	}

	for i, v := range c.Values {
		switch v.Type {
		case TypeNull:
		case TypeInt:
			if v.Int != 0 && v.Int != 1 {
				putSignedWidth(buf[off:], v.Int, widths[i])
				off += widths[i]
			}
		case TypeReal:
			putFloat64BE(buf[off:off+8], v.Real)
			off += 8
		case TypeText, TypeBlob:
			copy(buf[off:off+widths[i]], v.Bytes)
			off += widths[i]
		default:
			return 0, newErr("serialize", KindSerializationFailed, 0, nil)
		}
	}

	return off, nil
}

// GetRowID decodes only the rowid of the cell starting at buf[offset],
// skipping over the leading payload_size varint without touching the
// header or value array (spec.md §4.3's get_rowid probe).
func GetRowID(buf []byte, offset int) (int64, error) {
	_, n, ok := getVarint(buf[offset:])
	if !ok {
		return 0, newErr("get_rowid", KindCellDeserializeFailed, 0, nil)
	}
	rowidRaw, _, ok := getVarint(buf[offset+n:])
	if !ok {
		return 0, newErr("get_rowid", KindCellDeserializeFailed, 0, nil)
	}
	return int64(rowidRaw), nil
}

// GetSize decodes only the leading payload_size varint of the cell
// starting at buf[offset] and returns the cell's total on-disk size
// (the varint's own width plus the payload_size it encodes), without
// touching the rowid, header, or value array (spec.md §4.3's get_size
// probe).
func GetSize(buf []byte, offset int) (int, error) {
	payloadSize, n, ok := getVarint(buf[offset:])
	if !ok {
		return 0, newErr("get_size", KindCellDeserializeFailed, 0, nil)
	}
	return n + int(payloadSize), nil
}

// DeserializeCell decodes a cell starting at buf[0]. If owned is true,
// text/blob Values get copies made via alloc (the Cell is safe to keep
// after the backing page is unpinned); otherwise the Values alias buf
// directly and the Cell must not outlive the page's pin.
func DeserializeCell(buf []byte, owned bool, alloc Allocator) (*Cell, int, error) {
	if alloc == nil {
		alloc = DefaultAllocator
	}

	_, n, ok := getVarint(buf)
	if !ok {
		return nil, 0, newErr("deserialize", KindCellDeserializeFailed, 0, nil)
	}
	off := n

	rowidRaw, n, ok := getVarint(buf[off:])
	if !ok {
		return nil, 0, newErr("deserialize", KindCellDeserializeFailed, 0, nil)
	}
	off += n
	rowid := int64(rowidRaw)

	headerLen, n, ok := getVarint(buf[off:])
	if !ok {
		return nil, 0, newErr("deserialize", KindCellDeserializeFailed, 0, nil)
	}
	off += n
	hdrEnd := off + int(headerLen)
	if hdrEnd > len(buf) {
		return nil, 0, newErr("deserialize", KindCellDeserializeFailed, 0, nil)
	}

	var codes []uint64
	for off < hdrEnd {
		code, n, ok := getVarint(buf[off:])
		if !ok {
			return nil, 0, newErr("deserialize", KindCellDeserializeFailed, 0, nil)
		}
		codes = append(codes, code)
		off += n
	}

	values := make([]Value, len(codes))
	payloadOff := hdrEnd
	for i, code := range codes {
		switch {
		case code == 0:
			values[i] = NullValue()
		case code >= 1 && code <= 6:
			width := signedWidths[code-1]
			if payloadOff+width > len(buf) {
				return nil, 0, newErr("deserialize", KindCellDeserializeFailed, 0, nil)
			}
			values[i] = IntValue(getSignedWidth(buf[payloadOff:], width))
			payloadOff += width
		case code == 7:
			if payloadOff+8 > len(buf) {
				return nil, 0, newErr("deserialize", KindCellDeserializeFailed, 0, nil)
			}
			values[i] = RealValue(getFloat64BE(buf[payloadOff : payloadOff+8]))
			payloadOff += 8
		case code == 8:
			values[i] = IntValue(0)
		case code == 9:
			values[i] = IntValue(1)
		case code == 10 || code == 11:
			return nil, 0, newErr("deserialize", KindCellDeserializeFailed, 0, nil)
		case code%2 == 0:
			length := int(code/2 - 6)
			if payloadOff+length > len(buf) {
				return nil, 0, newErr("deserialize", KindCellDeserializeFailed, 0, nil)
			}
			values[i] = BlobValue(cellBytes(buf[payloadOff:payloadOff+length], owned, alloc))
			payloadOff += length
		default:
			length := int((code - 13) / 2)
			if payloadOff+length > len(buf) {
				return nil, 0, newErr("deserialize", KindCellDeserializeFailed, 0, nil)
			}
			values[i] = Value{
				Type:  TypeText,
				Bytes: cellBytes(buf[payloadOff:payloadOff+length], owned, alloc),
			}
			payloadOff += length
		}
	}

	ownership := Borrowed
	if owned {
		ownership = Owned
	}
	return &Cell{RowID: rowid, Values: values, Ownership: ownership}, payloadOff, nil
}

func cellBytes(src []byte, owned bool, alloc Allocator) []byte {
	if !owned {
		return src
	}
	dst := alloc.AllocBytes(len(src))
	copy(dst, src)
	return dst
}

// Validate checks that this cell's values match cols, delegating to
// ValidateValues (spec.md §4.4's validate operation).
func (c *Cell) Validate(cols []Column) error {
	return ValidateValues(c.Values, cols)
}
