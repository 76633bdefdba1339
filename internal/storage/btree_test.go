package storage

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestTree(t *testing.T, maxCachePages int) (*Pager, *Tree) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tree.db")
	p, err := Open(path, 256, maxCachePages, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	root, err := p.AllocatePage(PageTypeLeaf)
	require.NoError(t, err)
	p.MarkDirty(root.Num)
	p.UnpinPage(root.Num)

	return p, NewTree(p, root.Num)
}

func insertInt(t *testing.T, tree *Tree, rowid int64, v int64) {
	t.Helper()
	err := tree.Insert(&Cell{RowID: rowid, Values: []Value{IntValue(v)}})
	require.NoError(t, err)
}

func TestTreeFindOnEmptyTree(t *testing.T) {
	_, tree := newTestTree(t, 32)
	_, found, err := tree.Find(1)
	require.NoError(t, err)
	require.False(t, found)
}

func TestTreeInsertAndFind(t *testing.T) {
	_, tree := newTestTree(t, 32)
	insertInt(t, tree, 1, 100)
	insertInt(t, tree, 2, 200)
	insertInt(t, tree, 3, 300)

	cell, found, err := tree.Find(2)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(200), cell.Values[0].Int)
}

func TestTreeInsertDuplicateRowidFails(t *testing.T) {
	_, tree := newTestTree(t, 32)
	insertInt(t, tree, 1, 100)
	err := tree.Insert(&Cell{RowID: 1, Values: []Value{IntValue(999)}})
	require.Error(t, err)
	require.True(t, Is(err, KindDuplicateRowid))
}

func TestTreeInsertManyForcesLeafSplit(t *testing.T) {
	p, tree := newTestTree(t, 256)
	const n = 200
	for i := int64(0); i < n; i++ {
		insertInt(t, tree, i, i*10)
	}
	require.Greater(t, p.PageCount(), 1, "expected at least one split to have occurred")

	for i := int64(0); i < n; i++ {
		cell, found, err := tree.Find(i)
		require.NoError(t, err)
		require.True(t, found, "rowid %d should be found", i)
		require.Equal(t, i*10, cell.Values[0].Int)
	}
	require.NoError(t, Verify(tree))
}

func TestTreeInsertManyForcesInteriorSplit(t *testing.T) {
	p, tree := newTestTree(t, 512)
	const n = 2000
	for i := int64(0); i < n; i++ {
		insertInt(t, tree, i, i)
	}
	require.Greater(t, p.PageCount(), 10)
	require.NoError(t, Verify(tree))

	count, err := tree.CountRows()
	require.NoError(t, err)
	require.Equal(t, n, count)
}

func TestTreeInsertDuplicateRowidSucceedsWhenCheckDisabled(t *testing.T) {
	_, tree := newTestTree(t, 32)
	tree.SetCheckDuplicates(false)

	insertInt(t, tree, 10, 1)
	err := tree.Insert(&Cell{RowID: 10, Values: []Value{IntValue(2)}})
	require.NoError(t, err)
}

func TestTreeDeleteOfTailCellRaisesCellContentOffset(t *testing.T) {
	p, tree := newTestTree(t, 32)
	insertInt(t, tree, 1, 10)
	insertInt(t, tree, 2, 20)

	leaf, err := p.GetPage(tree.RootPage())
	require.NoError(t, err)
	offsetBefore := leaf.CellContentOffset()
	fragBefore := leaf.FragmentedBytes()
	p.UnpinPage(leaf.Num)

	require.NoError(t, tree.Delete(2))

	leaf, err = p.GetPage(tree.RootPage())
	require.NoError(t, err)
	defer p.UnpinPage(leaf.Num)
	require.Greater(t, leaf.CellContentOffset(), offsetBefore, "tail-cell delete should reclaim space by raising cell_content_offset")
	require.Equal(t, fragBefore, leaf.FragmentedBytes(), "tail-cell delete should not add fragmentation")
}

func TestTreeDeleteRemovesCell(t *testing.T) {
	_, tree := newTestTree(t, 32)
	insertInt(t, tree, 1, 10)
	insertInt(t, tree, 2, 20)

	require.NoError(t, tree.Delete(1))
	_, found, err := tree.Find(1)
	require.NoError(t, err)
	require.False(t, found)

	cell, found, err := tree.Find(2)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(20), cell.Values[0].Int)
}

func TestTreeDeleteMissingRowidFails(t *testing.T) {
	_, tree := newTestTree(t, 32)
	err := tree.Delete(99)
	require.Error(t, err)
	require.True(t, Is(err, KindCellNotFound))
}

func TestTreeNextRowid(t *testing.T) {
	_, tree := newTestTree(t, 32)
	n, err := tree.NextRowid()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	insertInt(t, tree, 1, 1)
	insertInt(t, tree, 2, 1)
	n, err = tree.NextRowid()
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func TestTreeCountRowsAfterSplits(t *testing.T) {
	_, tree := newTestTree(t, 512)
	const n = 500
	for i := int64(0); i < n; i++ {
		insertInt(t, tree, i, i)
	}
	count, err := tree.CountRows()
	require.NoError(t, err)
	require.Equal(t, n, count)
}

func TestTreeInsertOutOfOrderMaintainsSortedLeaves(t *testing.T) {
	_, tree := newTestTree(t, 512)
	ids := []int64{50, 10, 90, 30, 70, 20, 80, 40, 60, 5}
	for _, id := range ids {
		insertInt(t, tree, id, id)
	}
	require.NoError(t, Verify(tree))

	cur, err := tree.Start()
	require.NoError(t, err)
	defer cur.Close()

	var prev int64 = -1
	for cur.Valid() {
		cell, err := cur.GetCell(true)
		require.NoError(t, err)
		require.Greater(t, cell.RowID, prev)
		prev = cell.RowID
		if ok, err := cur.Advance(); err != nil {
			require.NoError(t, err)
		} else if !ok {
			break
		}
	}
}

func TestTreeTextValuesSurviveSplits(t *testing.T) {
	_, tree := newTestTree(t, 512)
	const n = 100
	for i := int64(0); i < n; i++ {
		err := tree.Insert(&Cell{
			RowID:  i,
			Values: []Value{TextValue(fmt.Sprintf("row-%04d", i))},
		})
		require.NoError(t, err)
	}
	for i := int64(0); i < n; i++ {
		cell, found, err := tree.Find(i)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, fmt.Sprintf("row-%04d", i), cell.Values[0].Text())
	}
}
