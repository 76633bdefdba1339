package storage

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultPageSize is the page size magni uses unless a Config
// overrides it (spec.md §3.4).
const DefaultPageSize = 4096

// Pager is a bounded page cache over a block-addressed file, with
// pin/dirty/evict discipline (spec.md §4.2). All public methods are
// safe for concurrent use; the pager serializes them behind a single
// mutex, matching spec.md §5's single-writer model.
type Pager struct {
	mu            sync.Mutex
	file          *os.File
	fileLen       int64
	pageSize      int
	maxCachePages int
	cache         map[uint32]*Page
	log           logrus.FieldLogger
}

// Open opens or creates path for read/write and records its current
// length. It does not touch the file's contents — initializing the
// database header and the schema tree's root page is the caller's
// job (spec.md §6.1), performed via GetOrAllocatePage once the pager
// is open.
func Open(path string, pageSize, maxCachePages int, log logrus.FieldLogger) (*Pager, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if maxCachePages <= 0 {
		maxCachePages = 256
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, newErr("open", KindFileOpenFailed, 0, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, newErr("open", KindFileOpenFailed, 0, err)
	}

	return &Pager{
		file:          f,
		fileLen:       info.Size(),
		pageSize:      pageSize,
		maxCachePages: maxCachePages,
		cache:         make(map[uint32]*Page),
		log:           log,
	}, nil
}

// PageSize returns the fixed page size this pager was opened with.
func (p *Pager) PageSize() int { return p.pageSize }

// PageCount returns the total number of pages currently in the file.
func (p *Pager) PageCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pageCountLocked()
}

func (p *Pager) pageCountLocked() int {
	return int(p.fileLen / int64(p.pageSize))
}

// FileSize returns the raw file length in bytes, independent of the
// configured page size — callers validating a file's stored page
// size (where PageCount's pageSize-dependent arithmetic would be
// unreliable) should check this instead.
func (p *Pager) FileSize() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fileLen
}

// ReadRaw reads n bytes at file offset off directly from disk,
// bypassing the page cache and the configured page size entirely.
// It exists for reading the database header before the page size it
// specifies has been confirmed to match the pager's own.
func (p *Pager) ReadRaw(off int64, n int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	buf := make([]byte, n)
	read, err := p.file.ReadAt(buf, off)
	if err != nil {
		return nil, newErr("read_raw", KindIoError, 0, err)
	}
	if read != n {
		return nil, newErr("read_raw", KindIoError, 0, nil)
	}
	return buf, nil
}

// Close flushes every dirty page, fsyncs, and closes the file. It
// panics if any page is still pinned — a caller holding a pin across
// Close is a programming error, not a recoverable one (spec.md §4.2).
func (p *Pager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pg := range p.cache {
		if pg.PinCount > 0 {
			panic("storage: Close called with page still pinned")
		}
	}

	if err := p.flushAllLocked(); err != nil {
		return err
	}
	if err := p.file.Sync(); err != nil {
		return newErr("close", KindIoError, 0, err)
	}
	if err := p.file.Close(); err != nil {
		return newErr("close", KindIoError, 0, err)
	}
	p.cache = make(map[uint32]*Page)
	return nil
}

// GetPage returns the page numbered n, pinning it. Pages already in
// cache are returned directly (the identity property spec.md §8 item
// 5 requires); otherwise a slot is made available per the eviction
// policy in §4.2.1 and the page is read from disk.
func (p *Pager) GetPage(n uint32) (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getPageLocked(n)
}

func (p *Pager) getPageLocked(n uint32) (*Page, error) {
	if pg, ok := p.cache[n]; ok {
		pg.PinCount++
		return pg, nil
	}

	if n < 1 || int64(n) > int64(p.pageCountLocked()) {
		return nil, newErr("get_page", KindPageNotFound, int(n), nil)
	}

	if err := p.ensureSlotLocked(); err != nil {
		return nil, err
	}

	buf := make([]byte, p.pageSize)
	off := int64(n-1) * int64(p.pageSize)
	read, err := p.file.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, newErr("get_page", KindIoError, int(n), err)
	}
	if read != p.pageSize {
		return nil, newErr("get_page", KindIoError, int(n), io.ErrUnexpectedEOF)
	}

	pg := &Page{Num: n, Data: buf, Dirty: false, PinCount: 1}
	p.cache[n] = pg
	return pg, nil
}

// AllocatePage extends the file logically by one page and returns a
// dirty, pinned page initialized as an empty page of type typ (zeroed
// apart from its b-tree header). The actual write to disk is
// deferred until a flush (spec.md §4.2).
func (p *Pager) AllocatePage(typ PageType) (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocatePageLocked(typ)
}

func (p *Pager) allocatePageLocked(typ PageType) (*Page, error) {
	if err := p.ensureSlotLocked(); err != nil {
		return nil, err
	}

	n := uint32(p.pageCountLocked() + 1)
	pg := newPage(n, typ, p.pageSize)
	pg.PinCount = 1
	p.fileLen += int64(p.pageSize)
	p.cache[n] = pg

	p.log.WithFields(logrus.Fields{"page": n, "type": typ}).Debug("storage: allocated page")
	return pg, nil
}

// GetOrAllocatePage returns page n if it already exists, or allocates
// it if n is exactly the next page the file would grow to. Any other
// n fails with InvalidPageNum — it would leave a gap.
func (p *Pager) GetOrAllocatePage(n uint32, typ PageType) (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := p.pageCountLocked()
	if int64(n) <= int64(count) {
		return p.getPageLocked(n)
	}
	if int(n) == count+1 {
		return p.allocatePageLocked(typ)
	}
	return nil, newErr("get_or_allocate_page", KindInvalidPageNum, int(n), nil)
}

// UnpinPage decrements n's pin count, clamped at zero.
func (p *Pager) UnpinPage(n uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pg, ok := p.cache[n]; ok && pg.PinCount > 0 {
		pg.PinCount--
	}
}

// MarkDirty marks page n dirty so it is written back on the next
// flush.
func (p *Pager) MarkDirty(n uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pg, ok := p.cache[n]; ok {
		pg.Dirty = true
	}
}

// FlushPage writes page n to its file offset if dirty, and clears the
// dirty flag on success.
func (p *Pager) FlushPage(n uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pg, ok := p.cache[n]
	if !ok {
		return nil
	}
	return p.flushPageLocked(pg)
}

func (p *Pager) flushPageLocked(pg *Page) error {
	if !pg.Dirty {
		return nil
	}
	off := int64(pg.Num-1) * int64(p.pageSize)
	n, err := p.file.WriteAt(pg.Data, off)
	if err != nil {
		return newErr("flush_page", KindIoError, int(pg.Num), err)
	}
	if n != len(pg.Data) {
		return newErr("flush_page", KindShortWrite, int(pg.Num), nil)
	}
	pg.Dirty = false
	return nil
}

// FlushAll writes every dirty cached page to its file offset.
func (p *Pager) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushAllLocked()
}

func (p *Pager) flushAllLocked() error {
	for _, pg := range p.cache {
		if err := p.flushPageLocked(pg); err != nil {
			return err
		}
	}
	return nil
}

// SyncFile flushes every dirty page and then fsyncs the underlying
// file, guaranteeing durability on success (spec.md §5).
func (p *Pager) SyncFile() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.flushAllLocked(); err != nil {
		return err
	}
	if err := p.file.Sync(); err != nil {
		return newErr("sync_file", KindIoError, 0, err)
	}
	return nil
}

// ensureSlotLocked guarantees room in the cache for one more page,
// implementing the eviction policy of spec.md §4.2.1: evict any
// unpinned, clean page; if none, flush to clean up unpinned dirty
// pages and retry; if every cached page is pinned, fail with
// CacheFull. The scan order is unspecified by spec.md; this pager
// walks the cache map in whatever order Go's map iteration gives.
func (p *Pager) ensureSlotLocked() error {
	if len(p.cache) < p.maxCachePages {
		return nil
	}

	if n, ok := p.findEvictableLocked(); ok {
		p.log.WithField("page", n).Debug("storage: evicting page")
		delete(p.cache, n)
		return nil
	}

	if err := p.flushAllLocked(); err != nil {
		return err
	}

	if n, ok := p.findEvictableLocked(); ok {
		p.log.WithField("page", n).Debug("storage: evicting page")
		delete(p.cache, n)
		return nil
	}

	p.log.WithField("cache_size", len(p.cache)).Warn("storage: cache full, every page pinned")
	return newErr("get_page", KindCacheFull, 0, nil)
}

func (p *Pager) findEvictableLocked() (uint32, bool) {
	for n, pg := range p.cache {
		if pg.PinCount == 0 && !pg.Dirty {
			return n, true
		}
	}
	return 0, false
}
