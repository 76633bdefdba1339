package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCursorOverEmptyTree(t *testing.T) {
	_, tree := newTestTree(t, 32)
	cur, err := tree.Start()
	require.NoError(t, err)
	defer cur.Close()
	require.False(t, cur.Valid())
}

func TestCursorAdvancesThroughSingleLeaf(t *testing.T) {
	_, tree := newTestTree(t, 32)
	insertInt(t, tree, 1, 10)
	insertInt(t, tree, 2, 20)
	insertInt(t, tree, 3, 30)

	cur, err := tree.Start()
	require.NoError(t, err)
	defer cur.Close()

	var got []int64
	for cur.Valid() {
		cell, err := cur.GetCell(true)
		require.NoError(t, err)
		got = append(got, cell.Values[0].Int)
		if ok, err := cur.Advance(); err != nil || !ok {
			require.NoError(t, err)
			break
		}
	}
	require.Equal(t, []int64{10, 20, 30}, got)
}

func TestCursorCrossesLeafBoundary(t *testing.T) {
	_, tree := newTestTree(t, 512)
	const n = 300
	for i := int64(0); i < n; i++ {
		insertInt(t, tree, i, i)
	}

	cur, err := tree.Start()
	require.NoError(t, err)
	defer cur.Close()

	count := int64(0)
	for cur.Valid() {
		cell, err := cur.GetCell(true)
		require.NoError(t, err)
		require.Equal(t, count, cell.RowID)
		count++
		if ok, err := cur.Advance(); err != nil || !ok {
			require.NoError(t, err)
			break
		}
	}
	require.Equal(t, int64(n), count)
}

func TestCursorCloseIsIdempotent(t *testing.T) {
	_, tree := newTestTree(t, 32)
	insertInt(t, tree, 1, 1)
	cur, err := tree.Start()
	require.NoError(t, err)
	cur.Close()
	cur.Close()
	require.False(t, cur.Valid())
}
