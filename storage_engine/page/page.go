package page

import (
	"PageKit/types"
	"sync"
)

const PageSize = types.PageSize

/*
Page is one buffer-pool frame.
The bufferpool owns the frame for its lifetime; callers borrow it between
FetchPage/NewPage and UnpinPage, and the pin is the only thing that keeps the
frame from being evicted or recycled.

The frame does not know the byte layout of Data. Heap pages are interpreted by
/PageKit/storage_engine/access/heappage, which overlays its header and slot
directory on Data without copying it.
*/

type Page struct {
	ID       int64
	FileID   uint32
	Data     []byte
	IsDirty  bool
	PinCount int32
	PageType types.PageType
	mu       sync.RWMutex
}

// New returns an unpinned, zeroed frame.
func New(pageID int64, fileID uint32, pageType types.PageType) *Page {
	return &Page{
		ID:       pageID,
		FileID:   fileID,
		Data:     make([]byte, PageSize),
		PageType: pageType,
	}
}

func (p *Page) Lock() {
	p.mu.Lock()
}

func (p *Page) Unlock() {
	p.mu.Unlock()
}

func (p *Page) RLock() {
	p.mu.RLock()
}

func (p *Page) RUnlock() {
	p.mu.RUnlock()
}
