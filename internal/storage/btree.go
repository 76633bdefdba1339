package storage

// Tree is a disk-resident B+tree keyed on int64 rowids, rooted at a
// fixed page number within a Pager (spec.md §5). Every table and the
// schema catalog are each one Tree; they share nothing but the Pager
// that backs them.
type Tree struct {
	pager           *Pager
	root            uint32
	checkDuplicates bool
}

// NewTree wraps an existing root page. The caller is responsible for
// having already materialized that page as a leaf via the pager (e.g.
// GetOrAllocatePage) before any table rows exist. Insert rejects
// duplicate rowids by default; see SetCheckDuplicates.
func NewTree(pager *Pager, root uint32) *Tree {
	return &Tree{pager: pager, root: root, checkDuplicates: true}
}

// SetCheckDuplicates controls whether Insert fails with
// DuplicateRowid when the target rowid already exists (spec.md
// §4.4.4's configurable check_duplicates, scenario S6). It defaults
// to true.
func (t *Tree) SetCheckDuplicates(check bool) {
	t.checkDuplicates = check
}

// RootPage returns the tree's current root page number. This can
// change across an Insert that grows the tree by one level.
func (t *Tree) RootPage() uint32 { return t.root }

// Find locates the leaf cell with the given rowid, returning
// (cell, true, nil) on a hit, (nil, false, nil) on a clean miss, or a
// non-nil error on corruption.
func (t *Tree) Find(rowid int64) (*Cell, bool, error) {
	leaf, idx, found, err := t.findLeaf(rowid)
	if err != nil {
		return nil, false, err
	}
	defer t.pager.UnpinPage(leaf.Num)
	if !found {
		return nil, false, nil
	}
	cell, _, err := DeserializeCell(leaf.Data[leaf.CellPointer(idx):], true, nil)
	if err != nil {
		return nil, false, err
	}
	return cell, true, nil
}

// findLeaf descends from the root to the leaf that would contain
// rowid, pinning and returning that leaf plus the index within it
// where rowid is (or would be inserted).
func (t *Tree) findLeaf(rowid int64) (*Page, int, bool, error) {
	pageNum := t.root
	for {
		pg, err := t.pager.GetPage(pageNum)
		if err != nil {
			return nil, 0, false, err
		}
		if pg.Type() == PageTypeLeaf {
			idx, found, err := searchLeaf(pg, rowid)
			if err != nil {
				t.pager.UnpinPage(pg.Num)
				return nil, 0, false, err
			}
			return pg, idx, found, nil
		}

		child, err := interiorChildFor(pg, rowid)
		t.pager.UnpinPage(pg.Num)
		if err != nil {
			return nil, 0, false, err
		}
		pageNum = child
	}
}

// searchLeaf binary-searches a leaf's cells by rowid, returning the
// index of the matching cell (found=true) or the insertion point
// (found=false, 0 <= idx <= CellCount()).
func searchLeaf(pg *Page, rowid int64) (idx int, found bool, err error) {
	n := pg.CellCount()
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		rid, e := peekRowid(pg.Data[pg.CellPointer(mid):])
		if e != nil {
			return 0, false, e
		}
		if rid < rowid {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < n {
		rid, e := peekRowid(pg.Data[pg.CellPointer(lo):])
		if e != nil {
			return 0, false, e
		}
		if rid == rowid {
			return lo, true, nil
		}
	}
	return lo, false, nil
}

func peekRowid(buf []byte) (int64, error) {
	rowid, err := GetRowID(buf, 0)
	if err != nil {
		return 0, err
	}
	return rowid, nil
}

// interiorChildFor returns the child page to descend into for rowid,
// using the interior page's separator cells: each cell stores a
// (left_child, separator_key) pair meaning "rowids <= separator_key
// live at or below left_child"; anything greater than every separator
// lives under RightmostChild (spec.md §3.5, §4.4.4).
func interiorChildFor(pg *Page, rowid int64) (uint32, error) {
	n := pg.CellCount()
	for i := 0; i < n; i++ {
		child, key, err := readInteriorCell(pg, i)
		if err != nil {
			return 0, err
		}
		if rowid <= key {
			return child, nil
		}
	}
	return pg.RightmostChild(), nil
}

// readInteriorCell decodes the i-th separator cell of an interior
// page: a big-endian uint32 child page number followed by a varint
// separator key.
func readInteriorCell(pg *Page, i int) (child uint32, key int64, err error) {
	off := pg.CellPointer(i)
	buf := pg.Data[off:]
	if len(buf) < 4 {
		return 0, 0, newErr("read_interior_cell", KindInvalidCellPointer, int(pg.Num), nil)
	}
	child = getUint32BE(buf[:4])
	raw, _, ok := getVarint(buf[4:])
	if !ok {
		return 0, 0, newErr("read_interior_cell", KindInvalidCellPointer, int(pg.Num), nil)
	}
	return child, int64(raw), nil
}

func interiorCellSize(key int64) int {
	return 4 + varintSize(uint64(key))
}

func writeInteriorCell(buf []byte, child uint32, key int64) int {
	putUint32BE(buf[:4], child)
	return 4 + putVarint(buf[4:], uint64(key))
}

// Insert adds cell to the tree, splitting leaves and interior nodes
// and growing the root as needed (spec.md §5's insert algorithm).
// Inserting a rowid that already exists fails with DuplicateRowid
// unless the check was turned off with SetCheckDuplicates(false).
func (t *Tree) Insert(cell *Cell) error {
	path, err := t.descendWithPath(cell.RowID)
	if err != nil {
		return err
	}
	defer path.unpinAll(t.pager)

	leaf := path.leaf
	idx, found, err := searchLeaf(leaf, cell.RowID)
	if err != nil {
		return err
	}
	if found && t.checkDuplicates {
		return newErr("insert", KindDuplicateRowid, int(leaf.Num), nil)
	}

	size := cell.CalculateSize()
	buf := make([]byte, size)
	if _, err := cell.Serialize(buf); err != nil {
		return err
	}

	if leaf.fits(size) {
		insertCellInPage(leaf, idx, buf)
		t.pager.MarkDirty(leaf.Num)
		return nil
	}

	return t.splitAndInsert(path, idx, buf)
}

// insertCellInPage writes cellBytes into the cell-content region and
// splices a new pointer into the pointer array at position idx,
// shifting cells at idx and beyond up by one slot.
func insertCellInPage(pg *Page, idx int, cellBytes []byte) {
	newOffset := pg.CellContentOffset() - len(cellBytes)
	copy(pg.Data[newOffset:newOffset+len(cellBytes)], cellBytes)
	pg.setCellContentOffset(newOffset)

	n := pg.CellCount()
	for i := n; i > idx; i-- {
		pg.setCellPointer(i, pg.CellPointer(i-1))
	}
	pg.setCellPointer(idx, newOffset)
	pg.setCellCount(n + 1)
}

// descentPath records the chain of interior pages walked to reach a
// leaf, each with the index of the child pointer that was followed,
// so a split can patch the parent without a second descent.
type descentPath struct {
	interiors []*Page
	childIdx  []int
	leaf      *Page
}

func (d *descentPath) unpinAll(p *Pager) {
	for _, pg := range d.interiors {
		p.UnpinPage(pg.Num)
	}
	p.UnpinPage(d.leaf.Num)
}

func (t *Tree) descendWithPath(rowid int64) (*descentPath, error) {
	path := &descentPath{}
	pageNum := t.root
	for {
		pg, err := t.pager.GetPage(pageNum)
		if err != nil {
			path.unpinAll(t.pager)
			return nil, err
		}
		if pg.Type() == PageTypeLeaf {
			path.leaf = pg
			return path, nil
		}

		n := pg.CellCount()
		childIdx := n
		next := pg.RightmostChild()
		for i := 0; i < n; i++ {
			child, key, err := readInteriorCell(pg, i)
			if err != nil {
				t.pager.UnpinPage(pg.Num)
				path.unpinAll(t.pager)
				return nil, err
			}
			if rowid <= key {
				childIdx = i
				next = child
				break
			}
		}
		path.interiors = append(path.interiors, pg)
		path.childIdx = append(path.childIdx, childIdx)
		pageNum = next
	}
}

// splitAndInsert handles the case where the target leaf has no room:
// split the leaf in two, insert into whichever half the new cell
// belongs in, then propagate a separator — the new right page's
// minimum key minus one, the largest rowid the left half may hold —
// up through the path's interior pages, splitting them in turn if
// they are also full.
func (t *Tree) splitAndInsert(path *descentPath, idx int, cellBytes []byte) error {
	leaf := path.leaf

	rightLeaf, err := t.pager.AllocatePage(PageTypeLeaf)
	if err != nil {
		return err
	}
	defer t.pager.UnpinPage(rightLeaf.Num)

	// The n old cells plus the new one are divided so the left half
	// ends up with (n+1)/2 of them; splitPoint counts the old cells the
	// left half keeps.
	splitPoint := (leaf.CellCount() + 1) / 2
	toLeft := idx < splitPoint
	if toLeft {
		splitPoint--
	}

	moveLeafCellsTo(leaf, rightLeaf, splitPoint)
	rightLeaf.setNextLeaf(leaf.NextLeaf())
	leaf.setNextLeaf(rightLeaf.Num)
	t.pager.MarkDirty(leaf.Num)
	t.pager.MarkDirty(rightLeaf.Num)

	target := leaf
	insertIdx := idx
	if !toLeft {
		target = rightLeaf
		insertIdx = idx - splitPoint
	}
	if !target.fits(len(cellBytes)) {
		return newErr("insert", KindPageFull, int(target.Num), nil)
	}
	insertCellInPage(target, insertIdx, cellBytes)
	t.pager.MarkDirty(target.Num)

	rightMinKey, err := leafFirstRowid(rightLeaf)
	if err != nil {
		return err
	}

	return t.propagateSplit(path, leaf.Num, rightMinKey-1, rightLeaf.Num)
}

// moveLeafCellsTo moves the cells at [splitPoint, CellCount()) of src
// into dst (which starts empty), compacting src down to just the
// cells that remain. Both pages are rewritten from scratch for
// simplicity, since a split already touches every remaining cell.
func moveLeafCellsTo(src, dst *Page, splitPoint int) {
	n := src.CellCount()
	moving := make([][]byte, 0, n-splitPoint)
	keeping := make([][]byte, 0, splitPoint)
	for i := 0; i < n; i++ {
		cellStart := src.CellPointer(i)
		cellEnd := nextCellBoundary(src, i)
		data := append([]byte(nil), src.Data[cellStart:cellEnd]...)
		if i < splitPoint {
			keeping = append(keeping, data)
		} else {
			moving = append(moving, data)
		}
	}

	rebuildLeaf(src, keeping)
	rebuildLeaf(dst, moving)
}

// nextCellBoundary returns the end offset of cell i: the start offset
// of the cell immediately preceding it in storage order, or the page
// size if i's cell is the one closest to the page's end. Cells are
// packed from the end of the page backward in allocation order, but
// pointer order is by rowid — so the boundary is found by scanning all
// pointers for the closest offset greater than cell i's.
func nextCellBoundary(pg *Page, i int) int {
	start := pg.CellPointer(i)
	best := len(pg.Data)
	n := pg.CellCount()
	for j := 0; j < n; j++ {
		o := pg.CellPointer(j)
		if o > start && o < best {
			best = o
		}
	}
	return best
}

func rebuildLeaf(pg *Page, cells [][]byte) {
	typ := pg.Type()
	nextLeaf := pg.NextLeaf()
	pageSize := len(pg.Data)
	for i := pg.off(); i < pageSize; i++ {
		pg.Data[i] = 0
	}
	pg.setType(typ)
	pg.setFirstFreeblock(0)
	pg.setCellCount(0)
	pg.setCellContentOffset(pageSize)
	pg.setFragmentedBytes(0)
	pg.setNextLeaf(nextLeaf)

	for i, c := range cells {
		insertCellInPage(pg, i, c)
	}
}

func leafFirstRowid(pg *Page) (int64, error) {
	if pg.CellCount() == 0 {
		return 0, newErr("leaf_first_rowid", KindCellNotFound, int(pg.Num), nil)
	}
	rid, err := peekRowid(pg.Data[pg.CellPointer(0):])
	return rid, err
}

// propagateSplit inserts a (leftChild, separatorKey) cell pointing at
// leftChild into the lowest interior page on path, with rightChild
// becoming (or staying) the next pointer in sequence; if that
// interior page is itself full, it splits too, and the process
// repeats one level up. If path has no interior pages at all, the page
// that just split (a leaf, or an interior page one level up the
// recursion) was the root, and the tree grows by one level.
func (t *Tree) propagateSplit(path *descentPath, leftChild uint32, sepKey int64, rightChild uint32) error {
	if len(path.interiors) == 0 {
		return t.growRoot(leftChild, sepKey, rightChild)
	}

	level := len(path.interiors) - 1
	parent := path.interiors[level]
	childIdx := path.childIdx[level]

	cellSize := interiorCellSize(sepKey)
	buf := make([]byte, cellSize)
	writeInteriorCell(buf, leftChild, sepKey)

	if parent.fits(cellSize) {
		wasRightmost := childIdx == parent.CellCount() && parent.RightmostChild() == leftChild
		insertCellInPage(parent, childIdx, buf)
		if wasRightmost {
			parent.setRightmostChild(rightChild)
		} else {
			patchChildPointer(parent, childIdx+1, rightChild)
		}
		t.pager.MarkDirty(parent.Num)
		return nil
	}

	return t.splitInterior(path, level, leftChild, sepKey, rightChild)
}

// patchChildPointer overwrites the child pointer of the cell at index
// idx (or RightmostChild if idx is past the last cell) without
// touching its separator key.
func patchChildPointer(pg *Page, idx int, child uint32) {
	if idx >= pg.CellCount() {
		pg.setRightmostChild(child)
		return
	}
	off := pg.CellPointer(idx)
	putUint32BE(pg.Data[off:off+4], child)
}

// splitInterior splits a full interior page into two, promoting its
// middle separator key up to the next level via propagateSplit.
func (t *Tree) splitInterior(path *descentPath, level int, leftChild uint32, sepKey int64, rightChild uint32) error {
	parent := path.interiors[level]
	childIdx := path.childIdx[level]

	n := parent.CellCount()
	entries := make([]interiorEntry, 0, n+1)
	for i := 0; i < n; i++ {
		c, k, err := readInteriorCell(parent, i)
		if err != nil {
			return err
		}
		entries = append(entries, interiorEntry{c, k})
	}
	entries = append(entries[:childIdx], append([]interiorEntry{{leftChild, sepKey}}, entries[childIdx:]...)...)
	if childIdx < len(entries)-1 {
		entries[childIdx+1].child = rightChild
	}
	oldRightmost := parent.RightmostChild()
	if childIdx == n {
		oldRightmost = rightChild
	}

	mid := len(entries) / 2
	promoted := entries[mid]

	newRight, err := t.pager.AllocatePage(PageTypeInterior)
	if err != nil {
		return err
	}
	defer t.pager.UnpinPage(newRight.Num)

	rebuildInterior(parent, entries[:mid], promoted.child)
	rebuildInterior(newRight, entries[mid+1:], oldRightmost)
	t.pager.MarkDirty(parent.Num)
	t.pager.MarkDirty(newRight.Num)

	return t.propagateSplit(&descentPath{interiors: path.interiors[:level], childIdx: path.childIdx[:level]},
		parent.Num, promoted.key, newRight.Num)
}

// interiorEntry is a (child page, separator key) pair used while
// rebuilding an interior page's cells during a split.
type interiorEntry struct {
	child uint32
	key   int64
}

func rebuildInterior(pg *Page, entries []interiorEntry, rightmost uint32) {
	pageSize := len(pg.Data)
	for i := pg.off(); i < pageSize; i++ {
		pg.Data[i] = 0
	}
	pg.setType(PageTypeInterior)
	pg.setFirstFreeblock(0)
	pg.setCellCount(0)
	pg.setCellContentOffset(pageSize)
	pg.setFragmentedBytes(0)
	pg.setRightmostChild(rightmost)

	for i, e := range entries {
		size := interiorCellSize(e.key)
		buf := make([]byte, size)
		writeInteriorCell(buf, e.child, e.key)
		insertCellInPage(pg, i, buf)
	}
}

// growRoot is called when the current root (a leaf or an interior
// page) has just split and has no parent: a new interior root page is
// allocated, and the tree's root pointer is updated in place. The
// caller (Database) is responsible for persisting the new root page
// number wherever it is recorded outside the tree itself (e.g. the
// schema catalog row).
func (t *Tree) growRoot(leftChild uint32, sepKey int64, rightChild uint32) error {
	newRoot, err := t.pager.AllocatePage(PageTypeInterior)
	if err != nil {
		return err
	}
	defer t.pager.UnpinPage(newRoot.Num)
	size := interiorCellSize(sepKey)
	buf := make([]byte, size)
	writeInteriorCell(buf, leftChild, sepKey)
	insertCellInPage(newRoot, 0, buf)
	newRoot.setRightmostChild(rightChild)
	t.pager.MarkDirty(newRoot.Num)
	t.root = newRoot.Num
	return nil
}

// Delete removes the cell with the given rowid, compacting the
// pointer array but performing no rebalancing — an intentionally
// sparse-tolerant tree (spec.md §5's delete algorithm, §9).
func (t *Tree) Delete(rowid int64) error {
	leaf, idx, found, err := t.findLeaf(rowid)
	if err != nil {
		return err
	}
	defer t.pager.UnpinPage(leaf.Num)
	if !found {
		return newErr("delete", KindCellNotFound, int(leaf.Num), nil)
	}

	cellStart := leaf.CellPointer(idx)
	cellEnd := nextCellBoundary(leaf, idx)
	if cellStart == leaf.CellContentOffset() {
		leaf.setCellContentOffset(cellEnd)
	} else {
		leaf.addFragmentedBytes(cellEnd - cellStart)
	}

	n := leaf.CellCount()
	for i := idx; i < n-1; i++ {
		leaf.setCellPointer(i, leaf.CellPointer(i+1))
	}
	leaf.setCellCount(n - 1)
	t.pager.MarkDirty(leaf.Num)
	return nil
}

// NextRowid returns one past the largest rowid currently stored in
// the tree, or 1 if the tree is empty — the default auto-increment
// source spec.md §6.2 describes.
func (t *Tree) NextRowid() (int64, error) {
	leaf, err := t.rightmostLeaf()
	if err != nil {
		return 0, err
	}
	defer t.pager.UnpinPage(leaf.Num)
	n := leaf.CellCount()
	if n == 0 {
		return 1, nil
	}
	rid, err := peekRowid(leaf.Data[leaf.CellPointer(n-1):])
	if err != nil {
		return 0, err
	}
	return rid + 1, nil
}

func (t *Tree) rightmostLeaf() (*Page, error) {
	pageNum := t.root
	for {
		pg, err := t.pager.GetPage(pageNum)
		if err != nil {
			return nil, err
		}
		if pg.Type() == PageTypeLeaf {
			return pg, nil
		}
		next := pg.RightmostChild()
		t.pager.UnpinPage(pg.Num)
		pageNum = next
	}
}

// CountRows walks every leaf via the linked-leaf chain and sums cell
// counts — an O(leaves) operation, not O(1) (spec.md §6.2).
func (t *Tree) CountRows() (int, error) {
	leftmost, err := t.leftmostLeaf()
	if err != nil {
		return 0, err
	}

	count := 0
	pageNum := leftmost
	for pageNum != 0 {
		pg, err := t.pager.GetPage(pageNum)
		if err != nil {
			return 0, err
		}
		count += pg.CellCount()
		next := pg.NextLeaf()
		t.pager.UnpinPage(pg.Num)
		pageNum = next
	}
	return count, nil
}

func (t *Tree) leftmostLeaf() (uint32, error) {
	pageNum := t.root
	for {
		pg, err := t.pager.GetPage(pageNum)
		if err != nil {
			return 0, err
		}
		if pg.Type() == PageTypeLeaf {
			t.pager.UnpinPage(pg.Num)
			return pg.Num, nil
		}
		var firstChild uint32
		if pg.CellCount() > 0 {
			firstChild, _, err = readInteriorCell(pg, 0)
		} else {
			firstChild = pg.RightmostChild()
		}
		t.pager.UnpinPage(pg.Num)
		if err != nil {
			return 0, err
		}
		pageNum = firstChild
	}
}
