package schema

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/kraytos17/magni/internal/storage"
)

func openTestCatalog(t *testing.T) (*storage.Pager, *Catalog) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.db")
	pager, err := storage.Open(path, 512, 64, logrus.StandardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pager.Close() })

	_, err = pager.GetOrAllocatePage(CatalogRootPage, storage.PageTypeLeaf)
	require.NoError(t, err)
	pager.UnpinPage(CatalogRootPage)

	return pager, Open(pager, logrus.StandardLogger())
}

func sampleColumns() []storage.Column {
	return []storage.Column{
		{Name: "id", Type: storage.ColInteger, NotNull: true, PK: true},
		{Name: "name", Type: storage.ColText, NotNull: true},
	}
}

func TestAddAndFindTable(t *testing.T) {
	_, cat := openTestCatalog(t)

	def, err := cat.AddTable("users", "CREATE TABLE users (id INTEGER, name TEXT)", sampleColumns())
	require.NoError(t, err)
	require.NotZero(t, def.RootPage)

	found, ok, err := cat.FindTable("users")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, def.RootPage, found.RootPage)
	require.Len(t, found.Columns, 2)
	require.Equal(t, "id", found.Columns[0].Name)
	require.True(t, found.Columns[0].PK)
	require.Equal(t, "name", found.Columns[1].Name)
}

func TestAddDuplicateTableFails(t *testing.T) {
	_, cat := openTestCatalog(t)
	_, err := cat.AddTable("users", "sql", sampleColumns())
	require.NoError(t, err)

	_, err = cat.AddTable("users", "sql", sampleColumns())
	require.Error(t, err)
	require.True(t, storage.Is(err, storage.KindDuplicateRowid))
}

func TestTableExists(t *testing.T) {
	_, cat := openTestCatalog(t)
	ok, err := cat.TableExists("missing")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = cat.AddTable("t1", "sql", sampleColumns())
	require.NoError(t, err)

	ok, err = cat.TableExists("t1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestListTables(t *testing.T) {
	_, cat := openTestCatalog(t)
	names := []string{"alpha", "beta", "gamma"}
	for _, n := range names {
		_, err := cat.AddTable(n, "sql", sampleColumns())
		require.NoError(t, err)
	}

	defs, err := cat.ListTables()
	require.NoError(t, err)
	require.Len(t, defs, len(names))

	seen := map[string]bool{}
	for _, d := range defs {
		seen[d.Name] = true
	}
	for _, n := range names {
		require.True(t, seen[n], "expected %s in listing", n)
	}
}

func TestDropTable(t *testing.T) {
	_, cat := openTestCatalog(t)
	_, err := cat.AddTable("gone", "sql", sampleColumns())
	require.NoError(t, err)

	require.NoError(t, cat.DropTable("gone"))

	ok, err := cat.TableExists("gone")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetTableMissingFails(t *testing.T) {
	_, cat := openTestCatalog(t)
	_, err := cat.GetTable("nope")
	require.Error(t, err)
	require.True(t, storage.Is(err, storage.KindCellNotFound))
}

func TestUpdateRootPageRewritesCatalogRow(t *testing.T) {
	_, cat := openTestCatalog(t)
	def, err := cat.AddTable("t", "sql", sampleColumns())
	require.NoError(t, err)
	oldRoot := def.RootPage

	require.NoError(t, cat.UpdateRootPage("t", oldRoot+1))

	found, ok, err := cat.FindTable("t")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, oldRoot+1, found.RootPage)
	require.Equal(t, def.SQL, found.SQL)
	require.Equal(t, def.Columns, found.Columns)
}

func TestUpdateRootPageMissingTableFails(t *testing.T) {
	_, cat := openTestCatalog(t)
	err := cat.UpdateRootPage("nope", 5)
	require.Error(t, err)
	require.True(t, storage.Is(err, storage.KindCellNotFound))
}

func TestColumnsBlobRoundTrip(t *testing.T) {
	cols := []storage.Column{
		{Name: "a", Type: storage.ColInteger, NotNull: true, PK: true},
		{Name: "b", Type: storage.ColReal},
		{Name: "c", Type: storage.ColBlob, NotNull: true},
	}
	blob := encodeColumnsBlob(cols)
	decoded, err := decodeColumnsBlob(blob)
	require.NoError(t, err)
	require.Equal(t, cols, decoded)
}
