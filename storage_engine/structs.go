package storageengine

import (
	"PageKit/storage_engine/access/heapfile"
	"PageKit/storage_engine/bufferpool"
	diskmanager "PageKit/storage_engine/disk_manager"
	"log/slog"
)

type StorageEngine struct {
	BufferPool  *bufferpool.BufferPool
	DiskManager *diskmanager.DiskManager
	HeapManager *heapfile.HeapFileManager

	BaseDir string
	logger  *slog.Logger
	closed  bool
}

// Config holds everything NewStorageEngine needs. Zero fields fall back to
// DefaultConfig values.
type Config struct {
	BaseDir            string
	BufferPoolCapacity int
	// FreeSpaceCacheSize bounds the free-space hints kept per heap file.
	FreeSpaceCacheSize int64
	Logger             *slog.Logger
}
