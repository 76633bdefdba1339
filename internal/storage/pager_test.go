package storage

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func openTestPager(t *testing.T, maxCachePages int) *Pager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	p, err := Open(path, 256, maxCachePages, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestAllocateAndGetPage(t *testing.T) {
	p := openTestPager(t, 16)

	pg, err := p.AllocatePage(PageTypeLeaf)
	require.NoError(t, err)
	require.Equal(t, uint32(1), pg.Num)
	p.MarkDirty(pg.Num)
	p.UnpinPage(pg.Num)

	require.NoError(t, p.FlushAll())

	got, err := p.GetPage(1)
	require.NoError(t, err)
	require.Equal(t, PageTypeLeaf, got.Type())
	p.UnpinPage(got.Num)
}

func TestGetPageCacheIdentity(t *testing.T) {
	p := openTestPager(t, 16)
	pg, err := p.AllocatePage(PageTypeLeaf)
	require.NoError(t, err)
	p.UnpinPage(pg.Num)

	a, err := p.GetPage(pg.Num)
	require.NoError(t, err)
	b, err := p.GetPage(pg.Num)
	require.NoError(t, err)
	require.Same(t, a, b)
	p.UnpinPage(pg.Num)
	p.UnpinPage(pg.Num)
}

func TestGetPageOutOfRangeFails(t *testing.T) {
	p := openTestPager(t, 16)
	_, err := p.GetPage(5)
	require.Error(t, err)
	require.True(t, Is(err, KindPageNotFound))
}

func TestEvictionSkipsPinnedAndDirty(t *testing.T) {
	p := openTestPager(t, 2)

	p1, err := p.AllocatePage(PageTypeLeaf)
	require.NoError(t, err)
	p.MarkDirty(p1.Num)

	p2, err := p.AllocatePage(PageTypeLeaf)
	require.NoError(t, err)
	p.MarkDirty(p2.Num)
	p.UnpinPage(p2.Num)

	// p1 is pinned and p2 is unpinned but dirty; a third allocation
	// must skip p1, flush p2 and evict it rather than failing outright.
	p3, err := p.AllocatePage(PageTypeLeaf)
	require.NoError(t, err)
	p.UnpinPage(p1.Num)
	p.UnpinPage(p3.Num)
}

func TestCacheFullWhenEverythingPinned(t *testing.T) {
	p := openTestPager(t, 1)

	p1, err := p.AllocatePage(PageTypeLeaf)
	require.NoError(t, err)
	defer p.UnpinPage(p1.Num)

	_, err = p.AllocatePage(PageTypeLeaf)
	require.Error(t, err)
	require.True(t, Is(err, KindCacheFull))
}

func TestClosePanicsWithPinnedPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	p, err := Open(path, 256, 16, testLogger())
	require.NoError(t, err)

	_, err = p.AllocatePage(PageTypeLeaf)
	require.NoError(t, err)

	require.Panics(t, func() { _ = p.Close() })
}

func TestFlushAllPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	p, err := Open(path, 256, 16, testLogger())
	require.NoError(t, err)

	pg, err := p.AllocatePage(PageTypeLeaf)
	require.NoError(t, err)
	pg.Data[pg.off()+1] = 0x42
	p.MarkDirty(pg.Num)
	p.UnpinPage(pg.Num)
	require.NoError(t, p.SyncFile())
	require.NoError(t, p.Close())

	p2, err := Open(path, 256, 16, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p2.Close() })

	got, err := p2.GetPage(1)
	require.NoError(t, err)
	require.Equal(t, byte(0x42), got.Data[got.off()+1])
	p2.UnpinPage(got.Num)
}
