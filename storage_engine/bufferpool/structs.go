package bufferpool

import (
	diskmanager "PageKit/storage_engine/disk_manager"
	"PageKit/storage_engine/page"
	"log/slog"
	"sync"
)

// ############################################# BUFFER POOL #############################################

// BufferPool caches page frames in memory with LRU eviction.
// A frame with PinCount > 0 is never evicted, which is what lets heap pages
// be mutated in place without any locking inside the page layer.
type BufferPool struct {
	pages       map[int64]*page.Page // pageID -> Page
	capacity    int
	diskManager *diskmanager.DiskManager
	accessOrder []int64 // LRU tracking: most recently used at end
	hits        uint64
	misses      uint64
	logger      *slog.Logger
	mu          sync.Mutex
}

// BufferPoolStats is a point-in-time snapshot of the pool.
type BufferPoolStats struct {
	TotalPages  int
	PinnedPages int
	DirtyPages  int
	Capacity    int
	HitRate     float64
}
