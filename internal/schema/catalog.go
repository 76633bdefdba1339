// Package schema implements the reserved schema catalog that
// describes every table in a magni database: a B+tree, rooted at a
// fixed page, whose rows are table descriptors rather than user data
// (spec.md §4.5). It mirrors the SQLite sqlite_master convention the
// teacher's own pager doc comments describe.
package schema

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/sirupsen/logrus"

	"github.com/kraytos17/magni/internal/storage"
)

// CatalogRootPage is the fixed page number the schema tree is rooted
// at. Page 1 doubles as the database header page (spec.md §3.4) and
// the schema tree's root leaf.
const CatalogRootPage = 1

// Row layout: type, name, tbl_name, rootpage, sql, columns_blob.
var catalogColumns = []storage.Column{
	{Name: "type", Type: storage.ColText, NotNull: true},
	{Name: "name", Type: storage.ColText, NotNull: true},
	{Name: "tbl_name", Type: storage.ColText, NotNull: true},
	{Name: "rootpage", Type: storage.ColInteger, NotNull: true},
	{Name: "sql", Type: storage.ColText, NotNull: true},
	{Name: "columns_blob", Type: storage.ColBlob, NotNull: true},
}

const catalogEntryType = "table"

// TableDefinition describes one table known to the catalog.
type TableDefinition struct {
	Name     string
	RootPage uint32
	SQL      string
	Columns  []storage.Column
}

// Catalog is the schema tree plus the pager it and every table tree
// share. It is the single source of truth for which tables exist and
// where their root pages are.
type Catalog struct {
	tree  *storage.Tree
	pager *storage.Pager
	log   logrus.FieldLogger
}

// Open wraps the schema tree rooted at CatalogRootPage. The caller
// must have already materialized that page (e.g. via
// Pager.GetOrAllocatePage(CatalogRootPage, storage.PageTypeLeaf)).
func Open(pager *storage.Pager, log logrus.FieldLogger) *Catalog {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Catalog{
		tree:  storage.NewTree(pager, CatalogRootPage),
		pager: pager,
		log:   log,
	}
}

// tableRowid derives a table's catalog rowid from its name by FNV-1a
// hashing, masked to 63 bits so it fits a non-negative int64 (spec.md
// §4.5's "the catalog's own rowid is not auto-incremented; it is
// derived from the table name").
func tableRowid(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}

// AddTable validates cols and inserts a new catalog row for name,
// allocating a fresh root leaf for the table's own tree. It fails
// with storage.KindDuplicateRowid if a table by this name (or one
// that hashes to the same rowid) already exists.
func (c *Catalog) AddTable(name, createSQL string, cols []storage.Column) (*TableDefinition, error) {
	if err := storage.ValidateColumns(cols); err != nil {
		return nil, err
	}
	if exists, err := c.TableExists(name); err != nil {
		return nil, err
	} else if exists {
		return nil, &storage.Error{Kind: storage.KindDuplicateRowid, Op: "add_table"}
	}

	rootPage, err := c.pager.AllocatePage(storage.PageTypeLeaf)
	if err != nil {
		return nil, err
	}
	c.pager.UnpinPage(rootPage.Num)

	if err := c.insertRow(name, createSQL, cols, rootPage.Num); err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{"table": name, "root_page": rootPage.Num}).Info("schema: table added")
	return &TableDefinition{Name: name, RootPage: rootPage.Num, SQL: createSQL, Columns: cols}, nil
}

func (c *Catalog) insertRow(name, createSQL string, cols []storage.Column, rootPage uint32) error {
	blob := encodeColumnsBlob(cols)
	cell := &storage.Cell{
		RowID: tableRowid(name),
		Values: []storage.Value{
			storage.TextValue(catalogEntryType),
			storage.TextValue(name),
			storage.TextValue(name),
			storage.IntValue(int64(rootPage)),
			storage.TextValue(createSQL),
			storage.BlobValue(blob),
		},
	}
	return c.tree.Insert(cell)
}

// UpdateRootPage rewrites name's catalog row with a new root page
// number, leaving its SQL text and columns untouched. A table's root
// page changes whenever its tree grows a new level via a root split
// (spec.md §4.4.7); callers that insert rows must call this whenever
// the table's Tree.RootPage() no longer matches what was last
// recorded here.
func (c *Catalog) UpdateRootPage(name string, newRoot uint32) error {
	def, found, err := c.FindTable(name)
	if err != nil {
		return err
	}
	if !found {
		return &storage.Error{Kind: storage.KindCellNotFound, Op: "update_root_page"}
	}
	if def.RootPage == newRoot {
		return nil
	}

	if err := c.tree.Delete(tableRowid(name)); err != nil {
		return err
	}
	if err := c.insertRow(name, def.SQL, def.Columns, newRoot); err != nil {
		return err
	}

	c.log.WithFields(logrus.Fields{"table": name, "root_page": newRoot}).Debug("schema: root page updated")
	return nil
}

// FindTable returns the table definition for name, or found=false if
// no such table is registered.
func (c *Catalog) FindTable(name string) (def *TableDefinition, found bool, err error) {
	cell, found, err := c.tree.Find(tableRowid(name))
	if err != nil || !found {
		return nil, found, err
	}
	def, err = definitionFromCell(cell)
	return def, def != nil, err
}

// GetTable is FindTable, returning an error instead of found=false
// when the table does not exist.
func (c *Catalog) GetTable(name string) (*TableDefinition, error) {
	def, found, err := c.FindTable(name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &storage.Error{Kind: storage.KindCellNotFound, Op: "get_table"}
	}
	return def, nil
}

// TableExists reports whether name is registered.
func (c *Catalog) TableExists(name string) (bool, error) {
	_, found, err := c.FindTable(name)
	return found, err
}

// ListTables returns every registered table definition, in catalog
// rowid order (not name order — the hash-derived rowid gives no
// lexical guarantee).
func (c *Catalog) ListTables() ([]*TableDefinition, error) {
	cursor, err := c.tree.Start()
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var defs []*TableDefinition
	for cursor.Valid() {
		cell, err := cursor.GetCell(true)
		if err != nil {
			return nil, err
		}
		def, err := definitionFromCell(cell)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)

		if ok, err := cursor.Advance(); err != nil {
			return nil, err
		} else if !ok {
			break
		}
	}
	return defs, nil
}

// DropTable removes name's catalog row. It does not reclaim the
// table's own tree pages — spec.md's B+tree delete is intentionally
// non-rebalancing and carries no page-reclamation story (§9).
func (c *Catalog) DropTable(name string) error {
	if err := c.tree.Delete(tableRowid(name)); err != nil {
		return err
	}
	c.log.WithField("table", name).Info("schema: table dropped")
	return nil
}

func definitionFromCell(cell *storage.Cell) (*TableDefinition, error) {
	if len(cell.Values) != len(catalogColumns) {
		return nil, &storage.Error{Kind: storage.KindCellDeserializeFailed, Op: "definition_from_cell"}
	}
	name := cell.Values[1].Text()
	rootPage := cell.Values[3].Int
	sql := cell.Values[4].Text()
	cols, err := decodeColumnsBlob(cell.Values[5].Bytes)
	if err != nil {
		return nil, err
	}
	return &TableDefinition{
		Name:     name,
		RootPage: uint32(rootPage),
		SQL:      sql,
		Columns:  cols,
	}, nil
}

// columns_blob layout (spec.md §4.5): u32 count, then per column a
// u32 name length, the name bytes, a column-type byte, and a flags
// byte (bit 0 = NOT NULL, bit 1 = PRIMARY KEY). All integers are
// little-endian.
const (
	flagNotNull = 1 << 0
	flagPK      = 1 << 1
)

func encodeColumnsBlob(cols []storage.Column) []byte {
	size := 4
	for _, c := range cols {
		size += 4 + len(c.Name) + 2
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(cols)))
	off := 4
	for _, c := range cols {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(c.Name)))
		off += 4
		copy(buf[off:off+len(c.Name)], c.Name)
		off += len(c.Name)
		buf[off] = byte(c.Type)
		off++
		var flags byte
		if c.NotNull {
			flags |= flagNotNull
		}
		if c.PK {
			flags |= flagPK
		}
		buf[off] = flags
		off++
	}
	return buf
}

func decodeColumnsBlob(buf []byte) ([]storage.Column, error) {
	if len(buf) < 4 {
		return nil, &storage.Error{Kind: storage.KindCellDeserializeFailed, Op: "decode_columns_blob"}
	}
	count := int(binary.LittleEndian.Uint32(buf[0:4]))
	off := 4
	cols := make([]storage.Column, count)
	for i := 0; i < count; i++ {
		if off+4 > len(buf) {
			return nil, &storage.Error{Kind: storage.KindCellDeserializeFailed, Op: "decode_columns_blob"}
		}
		nameLen := int(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
		if off+nameLen+2 > len(buf) {
			return nil, &storage.Error{Kind: storage.KindCellDeserializeFailed, Op: "decode_columns_blob"}
		}
		name := string(buf[off : off+nameLen])
		off += nameLen
		typ := storage.ColumnType(buf[off])
		off++
		flags := buf[off]
		off++
		cols[i] = storage.Column{
			Name:    name,
			Type:    typ,
			NotNull: flags&flagNotNull != 0,
			PK:      flags&flagPK != 0,
		}
	}
	return cols, nil
}
