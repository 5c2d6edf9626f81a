package heapfile

import (
	"PageKit/storage_engine/bufferpool"
	diskmanager "PageKit/storage_engine/disk_manager"
	"PageKit/storage_engine/page"
	"PageKit/types"
	"log/slog"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
)

// pagePool is the part of the buffer pool a heap file uses.
// *bufferpool.BufferPool implements it.
type pagePool interface {
	FetchPage(pageID int64) (*page.Page, error)
	NewPage(fileID uint32, pageType types.PageType) (*page.Page, error)
	UnpinPage(pageID int64, isDirty bool) error
	FlushFilePages(fileID uint32) error
}

// HeapFile is one file of heap pages chained through their prev/next links.
// Page 0 is the head; new pages are appended at the tail.
type HeapFile struct {
	fileID      uint32
	name        string
	filePath    string
	diskManager *diskmanager.DiskManager
	bufferPool  pagePool
	// hints maps local page number -> last observed AvailableSpace. A missing
	// or stale hint only costs a page fetch; the page header is authoritative.
	hints  *ristretto.Cache[uint32, uint32]
	logger *slog.Logger
	mu     sync.RWMutex
}

// HeapFileManager manages all heap files
type HeapFileManager struct {
	baseDir     string
	files       map[uint32]*HeapFile
	diskManager *diskmanager.DiskManager
	bufferPool  *bufferpool.BufferPool
	hintEntries int64
	logger      *slog.Logger
	mu          sync.RWMutex
}
