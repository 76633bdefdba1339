package storage

// PageType discriminates a b-tree page's role. The numeric values match
// spec.md §3.5, chosen to mirror SQLite's own page-type bytes.
type PageType byte

const (
	PageTypeInterior PageType = 5
	PageTypeLeaf     PageType = 13
)

func (t PageType) String() string {
	switch t {
	case PageTypeInterior:
		return "INTERIOR"
	case PageTypeLeaf:
		return "LEAF"
	default:
		return "UNKNOWN"
	}
}

// commonHeaderSize is the shared 8-byte prefix every b-tree page header
// carries (spec.md §3.5); extraHeaderSize is the 4-byte type-specific
// extension (rightmost_child_page or next_leaf_page) that follows it.
const (
	commonHeaderSize = 8
	extraHeaderSize  = 4
	cellPointerSize  = 2
)

// Page is a single fixed-size buffer from the database file, plus the
// bookkeeping the pager needs to decide when it may be evicted
// (spec.md §3.4).
type Page struct {
	Num      uint32
	Data     []byte
	Dirty    bool
	PinCount uint32
}

// headerOffset returns where a page's b-tree header begins: byte 100
// for page 1, to leave room for the 100-byte database header ahead of
// it (spec.md §3.4, §6.1); byte 0 for every other page.
func headerOffset(pageNum uint32) int {
	if pageNum == 1 {
		return 100
	}
	return 0
}

// newPage zero-initializes a fresh page of the given type, ready to
// accept cells: no cells yet, and the cell content region starts at
// the very end of the page and grows downward as cells are added.
func newPage(num uint32, typ PageType, pageSize int) *Page {
	p := &Page{Num: num, Data: make([]byte, pageSize), Dirty: true}
	p.setType(typ)
	p.setCellCount(0)
	p.setCellContentOffset(pageSize)
	p.setFragmentedBytes(0)
	p.setFirstFreeblock(0)
	switch typ {
	case PageTypeInterior:
		p.setRightmostChild(0)
	case PageTypeLeaf:
		p.setNextLeaf(0)
	}
	return p
}

func (p *Page) off() int { return headerOffset(p.Num) }

func (p *Page) Type() PageType { return PageType(p.Data[p.off()]) }

func (p *Page) setType(t PageType) { p.Data[p.off()] = byte(t) }

func (p *Page) setFirstFreeblock(v uint16) { putUint16LE(p.Data[p.off()+1:p.off()+3], v) }

func (p *Page) CellCount() int { return int(getUint16LE(p.Data[p.off()+3 : p.off()+5])) }

func (p *Page) setCellCount(n int) { putUint16LE(p.Data[p.off()+3:p.off()+5], uint16(n)) }

func (p *Page) CellContentOffset() int { return int(getUint16LE(p.Data[p.off()+5 : p.off()+7])) }

func (p *Page) setCellContentOffset(v int) { putUint16LE(p.Data[p.off()+5:p.off()+7], uint16(v)) }

func (p *Page) FragmentedBytes() int { return int(p.Data[p.off()+7]) }

// setFragmentedBytes caps its argument at 255: the field is a single
// byte and the accounting is advisory only (spec.md §4.4.5, §9).
func (p *Page) setFragmentedBytes(v int) {
	if v > 255 {
		v = 255
	}
	if v < 0 {
		v = 0
	}
	p.Data[p.off()+7] = byte(v)
}

func (p *Page) addFragmentedBytes(delta int) {
	p.setFragmentedBytes(p.FragmentedBytes() + delta)
}

func (p *Page) extOff() int { return p.off() + commonHeaderSize }

// RightmostChild is only meaningful on an interior page.
func (p *Page) RightmostChild() uint32 { return getUint32BE(p.Data[p.extOff() : p.extOff()+4]) }

func (p *Page) setRightmostChild(v uint32) { putUint32BE(p.Data[p.extOff():p.extOff()+4], v) }

// NextLeaf is only meaningful on a leaf page; 0 means "no next leaf".
func (p *Page) NextLeaf() uint32 { return getUint32BE(p.Data[p.extOff() : p.extOff()+4]) }

func (p *Page) setNextLeaf(v uint32) { putUint32BE(p.Data[p.extOff():p.extOff()+4], v) }

// headerEnd is the first byte after the header and its type-specific
// extension — where the cell pointer array begins.
func (p *Page) headerEnd() int { return p.extOff() + extraHeaderSize }

func (p *Page) pointerOffset(i int) int { return p.headerEnd() + i*cellPointerSize }

// CellPointer returns the byte offset (from the start of Data) of the
// i-th cell, 0 <= i < CellCount().
func (p *Page) CellPointer(i int) int {
	o := p.pointerOffset(i)
	return int(getUint16LE(p.Data[o : o+2]))
}

func (p *Page) setCellPointer(i int, offset int) {
	o := p.pointerOffset(i)
	putUint16LE(p.Data[o:o+2], uint16(offset))
}

// freeSpace is the number of unallocated bytes between the end of the
// (possibly hypothetical, +1) pointer array and the start of the cell
// content region — spec.md §3.6 invariant 1 restated as a quantity.
func (p *Page) freeSpace(extraPointers int) int {
	used := p.headerEnd() + cellPointerSize*(p.CellCount()+extraPointers)
	return p.CellContentOffset() - used
}

// fits reports whether a new cell of cellSize bytes can be added
// without violating spec.md §3.6 invariant 1.
func (p *Page) fits(cellSize int) bool {
	return p.freeSpace(1) >= cellSize
}
