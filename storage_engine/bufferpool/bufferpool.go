package bufferpool

import (
	diskmanager "PageKit/storage_engine/disk_manager"
	"PageKit/storage_engine/page"
	"PageKit/types"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

/*
This file is the main file of the bufferpool
The buffer pool works on LRU based caching mechanism
and holds access to disk manager for flushing the pages in the cache onto the disk
similarly if page not found in the cache, disk manager loads the page from the disk and adds in the cache for future access

Pages are identified by globalPageID (see disk_manager).
*/

var (
	ErrAllPinned       = errors.New("all pages are pinned")
	ErrPageNotResident = errors.New("page not in buffer pool")
)

// flushParallelism bounds concurrent page writes in FlushAllPages.
const flushParallelism = 8

// NewBufferPool creates a new buffer pool with the given capacity
func NewBufferPool(capacity int, diskManager *diskmanager.DiskManager, logger *slog.Logger) *BufferPool {
	if logger == nil {
		logger = slog.Default()
	}
	return &BufferPool{
		pages:       make(map[int64]*page.Page, capacity),
		capacity:    capacity,
		diskManager: diskManager,
		accessOrder: make([]int64, 0, capacity),
		logger:      logger.With("component", "bufferpool"),
	}
}

// FetchPage retrieves a page from the buffer pool, loading from disk if necessary
// Returns the page with pin count incremented
func (bp *BufferPool) FetchPage(pageID int64) (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if pg, exists := bp.pages[pageID]; exists {
		bp.hits++
		bp.updateAccessOrder(pageID)
		pg.Lock()
		pg.PinCount++
		pg.Unlock()
		bp.logger.Debug("hit", "page_id", pageID, "pin_count", pg.PinCount)
		return pg, nil
	}

	bp.misses++
	bp.logger.Debug("miss, loading from disk", "page_id", pageID)

	pg, err := bp.diskManager.ReadPage(pageID)
	if err != nil {
		return nil, fmt.Errorf("failed to read page %d from disk: %w", pageID, err)
	}
	pg.PageType = types.PageTypeHeapData

	if err := bp.addPage(pg); err != nil {
		return nil, fmt.Errorf("failed to add page to buffer pool: %w", err)
	}

	pg.Lock()
	pg.PinCount++
	pg.Unlock()

	return pg, nil
}

// NewPage asks the DiskManager for the next page ID of fileID, builds a
// zeroed frame for it entirely in RAM, marks it dirty so it will eventually
// be flushed, and returns it pinned.
func (bp *BufferPool) NewPage(fileID uint32, pageType types.PageType) (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	// Make room before allocating so a full pool does not leak a page id.
	if len(bp.pages) >= bp.capacity {
		if err := bp.evictLRU(); err != nil {
			return nil, fmt.Errorf("failed to allocate page: %w", err)
		}
	}

	pageID, err := bp.diskManager.AllocatePage(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate page: %w", err)
	}

	pg := page.New(pageID, fileID, pageType)
	pg.IsDirty = true
	pg.PinCount = 1

	if err := bp.addPage(pg); err != nil {
		return nil, fmt.Errorf("failed to add new page to buffer pool: %w", err)
	}

	bp.logger.Debug("new page", "page_id", pageID, "file_id", fileID, "page_type", pageType.String())
	return pg, nil
}

// UnpinPage decrements the pin count for a page
func (bp *BufferPool) UnpinPage(pageID int64, isDirty bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	pg, exists := bp.pages[pageID]
	if !exists {
		return fmt.Errorf("unpin page %d: %w", pageID, ErrPageNotResident)
	}

	pg.Lock()
	defer pg.Unlock()

	if pg.PinCount > 0 {
		pg.PinCount--
	}
	if isDirty {
		pg.IsDirty = true
	}

	return nil
}

// FlushPage writes a specific page to disk if dirty
func (bp *BufferPool) FlushPage(pageID int64) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	pg, exists := bp.pages[pageID]
	if !exists {
		return fmt.Errorf("flush page %d: %w", pageID, ErrPageNotResident)
	}

	return bp.flush(pg)
}

// FlushAllPages writes all dirty pages to disk. Pages are written
// concurrently; each write holds only its own frame's lock.
func (bp *BufferPool) FlushAllPages() error {
	return bp.flushWhere(func(*page.Page) bool { return true })
}

// FlushFilePages writes the dirty pages of one file and leaves other files'
// frames alone.
func (bp *BufferPool) FlushFilePages(fileID uint32) error {
	return bp.flushWhere(func(pg *page.Page) bool { return pg.FileID == fileID })
}

func (bp *BufferPool) flushWhere(match func(*page.Page) bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(flushParallelism)

	flushed := 0
	for _, pg := range bp.pages {
		if !match(pg) {
			continue
		}
		pg.RLock()
		dirty := pg.IsDirty
		pg.RUnlock()
		if !dirty {
			continue
		}
		flushed++
		g.Go(func() error {
			return bp.flush(pg)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	bp.logger.Debug("flushed pages", "pool_size", len(bp.pages), "flushed", flushed)
	return nil
}

// DeletePage removes a page from the buffer pool without writing it.
func (bp *BufferPool) DeletePage(pageID int64) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	pg, exists := bp.pages[pageID]
	if !exists {
		return nil
	}

	pg.RLock()
	pinned := pg.PinCount > 0
	pg.RUnlock()
	if pinned {
		return fmt.Errorf("cannot delete pinned page %d", pageID)
	}

	delete(bp.pages, pageID)
	bp.removeFromAccessOrder(pageID)
	return nil
}

// flush writes pg if dirty. Caller holds bp.mu.
func (bp *BufferPool) flush(pg *page.Page) error {
	pg.Lock()
	defer pg.Unlock()

	if !pg.IsDirty {
		return nil
	}
	if err := bp.diskManager.WritePage(pg); err != nil {
		return fmt.Errorf("failed to flush page %d: %w", pg.ID, err)
	}
	pg.IsDirty = false
	return nil
}

// addPage adds a page to the buffer pool, evicting if necessary
// Assumes lock is already held
func (bp *BufferPool) addPage(pg *page.Page) error {
	if _, exists := bp.pages[pg.ID]; exists {
		bp.updateAccessOrder(pg.ID)
		return nil
	}

	if len(bp.pages) >= bp.capacity {
		if err := bp.evictLRU(); err != nil {
			return fmt.Errorf("failed to evict page: %w", err)
		}
	}

	bp.pages[pg.ID] = pg
	bp.updateAccessOrder(pg.ID)
	return nil
}

// evictLRU evicts the least recently used unpinned page, flushing it first
// if dirty. Assumes lock is already held
func (bp *BufferPool) evictLRU() error {
	for _, pageID := range bp.accessOrder {
		pg := bp.pages[pageID]

		pg.RLock()
		pinned := pg.PinCount > 0
		pg.RUnlock()
		if pinned {
			continue
		}

		if err := bp.flush(pg); err != nil {
			return fmt.Errorf("failed to write page %d during eviction: %w", pageID, err)
		}

		bp.logger.Debug("evict", "page_id", pageID)
		delete(bp.pages, pageID)
		bp.removeFromAccessOrder(pageID)
		return nil
	}

	return fmt.Errorf("cannot evict from pool of %d: %w", bp.capacity, ErrAllPinned)
}

// updateAccessOrder moves a page to the end of access order (most recently used)
// Assumes lock is already held
func (bp *BufferPool) updateAccessOrder(pageID int64) {
	bp.removeFromAccessOrder(pageID)
	bp.accessOrder = append(bp.accessOrder, pageID)
}

func (bp *BufferPool) removeFromAccessOrder(pageID int64) {
	for i, id := range bp.accessOrder {
		if id == pageID {
			bp.accessOrder = append(bp.accessOrder[:i], bp.accessOrder[i+1:]...)
			return
		}
	}
}
