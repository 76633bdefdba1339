// Package magni implements a single-file, embedded relational storage
// engine: a byte codec, a bounded page cache, a cell codec, a
// disk-resident B+tree, and a schema catalog layered over them.
package magni

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kraytos17/magni/internal/schema"
	"github.com/kraytos17/magni/internal/storage"
)

const schemaVersion = 1

// Database is the top-level handle for an open magni file: the
// pager, the schema catalog rooted at page 1, and the config it was
// opened with.
type Database struct {
	pager   *storage.Pager
	catalog *schema.Catalog
	cfg     Config
	log     logrus.FieldLogger
}

// Open opens (creating if necessary) the database file at path. A
// brand-new file gets the 100-byte database header and an empty
// schema tree materialized at page 1; an existing file's header is
// validated against cfg.PageSize.
func Open(path string, cfg Config, log logrus.FieldLogger) (*Database, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	pager, err := storage.Open(path, cfg.PageSize, cfg.MaxCachePages, log)
	if err != nil {
		return nil, err
	}

	// isNew is decided from the raw file length, not Pager.PageCount:
	// PageCount divides by the configured page size, which for an
	// existing file opened with the wrong size would silently produce
	// a bogus count instead of surfacing the mismatch below.
	isNew := pager.FileSize() == 0

	if !isNew {
		raw, err := pager.ReadRaw(0, storage.DatabaseHeaderSize)
		if err != nil {
			pager.Close()
			return nil, err
		}
		hdr, err := storage.DecodeHeader(raw)
		if err != nil {
			pager.Close()
			return nil, err
		}
		if int(hdr.PageSize) != cfg.PageSize {
			pager.Close()
			return nil, fmt.Errorf("magni: page size mismatch: file has %d, config has %d", hdr.PageSize, cfg.PageSize)
		}
	}

	page1, err := pager.GetOrAllocatePage(schema.CatalogRootPage, storage.PageTypeLeaf)
	if err != nil {
		pager.Close()
		return nil, err
	}
	if isNew {
		storage.EncodeHeader(page1.Data, storage.DatabaseHeader{
			PageSize:      uint32(cfg.PageSize),
			PageCount:     1,
			SchemaVersion: schemaVersion,
		})
		pager.MarkDirty(page1.Num)
		if err := pager.SyncFile(); err != nil {
			pager.UnpinPage(page1.Num)
			pager.Close()
			return nil, err
		}
	}
	pager.UnpinPage(page1.Num)

	return &Database{
		pager:   pager,
		catalog: schema.Open(pager, log),
		cfg:     cfg,
		log:     log,
	}, nil
}

// Close flushes and closes the underlying file.
func (d *Database) Close() error {
	return d.pager.Close()
}

// CreateTable registers a new table with the given columns, backed
// by a freshly allocated tree root.
func (d *Database) CreateTable(name, createSQL string, cols []storage.Column) (*schema.TableDefinition, error) {
	return d.catalog.AddTable(name, createSQL, cols)
}

// DropTable removes a table's catalog entry.
func (d *Database) DropTable(name string) error {
	return d.catalog.DropTable(name)
}

// ListTables returns every registered table's definition.
func (d *Database) ListTables() ([]*schema.TableDefinition, error) {
	return d.catalog.ListTables()
}

// Table returns a handle for reading and writing name's rows. It
// fails if name is not a registered table.
func (d *Database) Table(name string) (*Table, error) {
	def, err := d.catalog.GetTable(name)
	if err != nil {
		return nil, err
	}
	tree := storage.NewTree(d.pager, def.RootPage)
	tree.SetCheckDuplicates(d.cfg.CheckDuplicates)
	return &Table{
		db:   d,
		def:  def,
		tree: tree,
	}, nil
}

// Table is a handle for one table's rows, layered over its own
// B+tree (spec.md §6.2).
type Table struct {
	db   *Database
	def  *schema.TableDefinition
	tree *storage.Tree
}

// Columns returns the table's column definitions.
func (t *Table) Columns() []storage.Column { return t.def.Columns }

// Insert validates values against the table's columns and inserts a
// new row. If values has no explicit rowid column, callers should
// obtain one from NextRowid. If the insert grows the tree by a level,
// the catalog's recorded root page is updated to match.
func (t *Table) Insert(rowid int64, values []storage.Value) error {
	if err := storage.ValidateValues(values, t.def.Columns); err != nil {
		return err
	}
	if err := t.tree.Insert(&storage.Cell{RowID: rowid, Values: values, Ownership: storage.Owned}); err != nil {
		return err
	}
	if newRoot := t.tree.RootPage(); newRoot != t.def.RootPage {
		if err := t.db.catalog.UpdateRootPage(t.def.Name, newRoot); err != nil {
			return err
		}
		t.def.RootPage = newRoot
	}
	return nil
}

// NextRowid returns the next auto-increment rowid for this table.
func (t *Table) NextRowid() (int64, error) {
	return t.tree.NextRowid()
}

// Get returns the row with the given rowid, if any.
func (t *Table) Get(rowid int64) (*storage.Cell, bool, error) {
	return t.tree.Find(rowid)
}

// Delete removes the row with the given rowid.
func (t *Table) Delete(rowid int64) error {
	return t.tree.Delete(rowid)
}

// CountRows returns the table's current row count.
func (t *Table) CountRows() (int, error) {
	return t.tree.CountRows()
}

// Scan returns a cursor positioned at the table's first row in
// ascending rowid order. The caller must Close it.
func (t *Table) Scan() (*storage.Cursor, error) {
	return t.tree.Start()
}
