package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPageLeafHeader(t *testing.T) {
	pg := newPage(2, PageTypeLeaf, 4096)
	assert.Equal(t, PageTypeLeaf, pg.Type())
	assert.Equal(t, 0, pg.CellCount())
	assert.Equal(t, 4096, pg.CellContentOffset())
	assert.Equal(t, 0, pg.FragmentedBytes())
	assert.Equal(t, uint32(0), pg.NextLeaf())
}

func TestNewPageInteriorHeader(t *testing.T) {
	pg := newPage(3, PageTypeInterior, 4096)
	assert.Equal(t, PageTypeInterior, pg.Type())
	assert.Equal(t, uint32(0), pg.RightmostChild())
}

func TestPage1HeaderOffset(t *testing.T) {
	pg := newPage(1, PageTypeLeaf, 4096)
	assert.Equal(t, 100, pg.off())
	assert.Equal(t, 4096, pg.CellContentOffset())

	other := newPage(2, PageTypeLeaf, 4096)
	assert.Equal(t, 0, other.off())
}

func TestCellPointerArray(t *testing.T) {
	pg := newPage(2, PageTypeLeaf, 4096)
	pg.setCellCount(2)
	pg.setCellPointer(0, 4000)
	pg.setCellPointer(1, 3900)
	assert.Equal(t, 4000, pg.CellPointer(0))
	assert.Equal(t, 3900, pg.CellPointer(1))
}

func TestFragmentedBytesSaturatesAt255(t *testing.T) {
	pg := newPage(2, PageTypeLeaf, 4096)
	pg.setFragmentedBytes(200)
	pg.addFragmentedBytes(100)
	assert.Equal(t, 255, pg.FragmentedBytes())
}

func TestPageFits(t *testing.T) {
	pg := newPage(2, PageTypeLeaf, 64)
	require.True(t, pg.fits(10))
	pg.setCellContentOffset(20)
	pg.setCellCount(0)
	assert.False(t, pg.fits(100))
}
