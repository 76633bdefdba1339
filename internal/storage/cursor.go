package storage

// Cursor walks a Tree's leaves in ascending rowid order, following
// the linked-leaf chain rather than re-descending from the root on
// every step (spec.md §5's cursor behavior). A cursor pins exactly
// the leaf it currently sits on; Close releases that pin.
type Cursor struct {
	tree      *Tree
	page      *Page
	cellIndex int
	done      bool
}

// Start positions a new cursor at the first cell of the tree's
// leftmost leaf. If the tree has no rows, the cursor starts done.
func (t *Tree) Start() (*Cursor, error) {
	leafNum, err := t.leftmostLeaf()
	if err != nil {
		return nil, err
	}
	pg, err := t.pager.GetPage(leafNum)
	if err != nil {
		return nil, err
	}

	c := &Cursor{tree: t, page: pg, cellIndex: 0}
	c.skipEmptyLeaves()
	return c, nil
}

// skipEmptyLeaves advances across zero-cell leaves (possible after
// Delete empties one) until a non-empty leaf or the end of the chain
// is reached.
func (c *Cursor) skipEmptyLeaves() {
	for !c.done && c.page.CellCount() == 0 {
		next := c.page.NextLeaf()
		c.tree.pager.UnpinPage(c.page.Num)
		if next == 0 {
			c.page = nil
			c.done = true
			return
		}
		pg, err := c.tree.pager.GetPage(next)
		if err != nil {
			c.page = nil
			c.done = true
			return
		}
		c.page = pg
		c.cellIndex = 0
	}
}

// Valid reports whether the cursor currently sits on a cell.
func (c *Cursor) Valid() bool { return !c.done }

// GetCell decodes the cell the cursor currently sits on. owned
// controls whether the returned Cell's text/blob Values are copied
// out (safe past Close) or borrow the pinned page's buffer directly.
func (c *Cursor) GetCell(owned bool) (*Cell, error) {
	if c.done {
		return nil, newErr("cursor.get_cell", KindCellNotFound, 0, nil)
	}
	off := c.page.CellPointer(c.cellIndex)
	cell, _, err := DeserializeCell(c.page.Data[off:], owned, nil)
	return cell, err
}

// Advance moves the cursor to the next cell, crossing into the next
// leaf via NextLeaf as needed. It returns false once the chain is
// exhausted.
func (c *Cursor) Advance() (bool, error) {
	if c.done {
		return false, nil
	}
	c.cellIndex++
	if c.cellIndex < c.page.CellCount() {
		return true, nil
	}

	next := c.page.NextLeaf()
	c.tree.pager.UnpinPage(c.page.Num)
	if next == 0 {
		c.page = nil
		c.done = true
		return false, nil
	}

	pg, err := c.tree.pager.GetPage(next)
	if err != nil {
		c.page = nil
		c.done = true
		return false, err
	}
	c.page = pg
	c.cellIndex = 0
	c.skipEmptyLeaves()
	return !c.done, nil
}

// Close releases the pin on whatever leaf the cursor currently holds.
// Safe to call on an already-exhausted or already-closed cursor.
func (c *Cursor) Close() {
	if c.page != nil {
		c.tree.pager.UnpinPage(c.page.Num)
		c.page = nil
	}
	c.done = true
}
