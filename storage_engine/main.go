package storageengine

import (
	"PageKit/storage_engine/access/heapfile"
	"PageKit/storage_engine/bufferpool"
	diskmanager "PageKit/storage_engine/disk_manager"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

/*
The main file of storage engine, it wires the disk manager, the buffer pool and
the heap file manager together. Every heap file opened through the engine
shares one buffer pool.
*/

const (
	DefaultBaseDir            = "pagekit_data"
	DefaultBufferPoolCapacity = 64
)

func DefaultConfig() Config {
	return Config{
		BaseDir:            DefaultBaseDir,
		BufferPoolCapacity: DefaultBufferPoolCapacity,
		FreeSpaceCacheSize: heapfile.DefaultHintEntries,
		Logger:             slog.Default(),
	}
}

func NewStorageEngine(cfg Config) (*StorageEngine, error) {
	def := DefaultConfig()
	if cfg.BaseDir == "" {
		cfg.BaseDir = def.BaseDir
	}
	if cfg.BufferPoolCapacity <= 0 {
		cfg.BufferPoolCapacity = def.BufferPoolCapacity
	}
	if cfg.FreeSpaceCacheSize <= 0 {
		cfg.FreeSpaceCacheSize = def.FreeSpaceCacheSize
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}

	if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base dir: %w", err)
	}

	dm := diskmanager.NewDiskManager(cfg.Logger)
	bp := bufferpool.NewBufferPool(cfg.BufferPoolCapacity, dm, cfg.Logger)
	hfm := heapfile.NewHeapFileManager(cfg.BaseDir, dm, bp, cfg.FreeSpaceCacheSize, cfg.Logger)

	se := &StorageEngine{
		BufferPool:  bp,
		DiskManager: dm,
		HeapManager: hfm,
		BaseDir:     cfg.BaseDir,
		logger:      cfg.Logger.With("component", "storage"),
	}
	se.logger.Info("storage engine ready", "base_dir", cfg.BaseDir, "pool_capacity", cfg.BufferPoolCapacity)
	return se, nil
}

// OpenHeapFile loads the heap file if it exists on disk and creates it otherwise.
func (se *StorageEngine) OpenHeapFile(name string, fileID uint32) (*heapfile.HeapFile, error) {
	if se.closed {
		return nil, errors.New("storage engine is closed")
	}
	path := heapfile.HeapFilePath(se.BaseDir, name, fileID)
	if _, err := os.Stat(path); err == nil {
		return se.HeapManager.LoadHeapFile(name, fileID)
	}
	return se.HeapManager.CreateHeapFile(name, fileID)
}

// Close flushes every dirty page and closes all files. Calling it twice is a no-op.
func (se *StorageEngine) Close() error {
	if se.closed {
		return nil
	}
	se.closed = true

	err := errors.Join(se.HeapManager.CloseAll(), se.DiskManager.CloseAll())
	stats := se.BufferPool.GetStats()
	se.logger.Info("storage engine closed", "hit_rate", stats.HitRate)
	return err
}
