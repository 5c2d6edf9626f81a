package heapfile

import (
	"PageKit/storage_engine/access/heappage"
	"PageKit/storage_engine/bufferpool"
	diskmanager "PageKit/storage_engine/disk_manager"
	"PageKit/types"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgraph-io/ristretto/v2"
)

/*
This file is the start of the heapfile manager
It is responsible for creating heap files, which is ultimately the
initialization of their first heap page, and for reopening them.

The manager knows the Disk Manager for file level operations (OpenFileWithID,
CloseFile) and the Buffer Pool for every page it touches.
*/

const DefaultHintEntries = 1 << 14

// NewHeapFileManager creates a new heap file manager. hintEntries bounds the
// free-space hint cache of each heap file.
func NewHeapFileManager(baseDir string, diskManager *diskmanager.DiskManager, bufferPool *bufferpool.BufferPool, hintEntries int64, logger *slog.Logger) *HeapFileManager {
	if logger == nil {
		logger = slog.Default()
	}
	if hintEntries <= 0 {
		hintEntries = DefaultHintEntries
	}
	return &HeapFileManager{
		baseDir:     baseDir,
		files:       make(map[uint32]*HeapFile),
		diskManager: diskManager,
		bufferPool:  bufferPool,
		hintEntries: hintEntries,
		logger:      logger.With("component", "heapfile"),
	}
}

// HeapFilePath is where a heap file lives under baseDir.
func HeapFilePath(baseDir, name string, fileID uint32) string {
	return filepath.Join(baseDir, fmt.Sprintf("%s_%d.heap", name, fileID))
}

// Chain of command this function drives:
//  1. DiskManager.OpenFileWithID → creates the OS file
//  2. BufferPool.NewPage         → allocates page 0 (RAM only, dirty)
//  3. HeapPage.Initialize        → writes an empty header into the frame
//  4. BufferPool.UnpinPage       → the pool may flush it when it needs space
func (hfm *HeapFileManager) CreateHeapFile(name string, fileID uint32) (*HeapFile, error) {
	hfm.mu.Lock()
	defer hfm.mu.Unlock()

	if _, exists := hfm.files[fileID]; exists {
		return nil, fmt.Errorf("heap file %d already open", fileID)
	}

	heapPath := HeapFilePath(hfm.baseDir, name, fileID)
	if _, err := os.Stat(heapPath); err == nil {
		return nil, fmt.Errorf("heap file %s already exists", heapPath)
	}
	if err := os.MkdirAll(hfm.baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create heap directory: %w", err)
	}

	if err := hfm.diskManager.OpenFileWithID(heapPath, fileID); err != nil {
		return nil, fmt.Errorf("failed to create heap file: %w", err)
	}

	pg, err := hfm.bufferPool.NewPage(fileID, types.PageTypeHeapData)
	if err != nil {
		_ = hfm.diskManager.CloseFile(fileID)
		return nil, fmt.Errorf("buffer pool failed to allocate first page: %w", err)
	}
	hp, err := heappage.FromPage(pg)
	if err != nil {
		_ = hfm.bufferPool.UnpinPage(pg.ID, false)
		_ = hfm.diskManager.CloseFile(fileID)
		return nil, err
	}
	hp.Initialize()
	if err := hfm.bufferPool.UnpinPage(pg.ID, true); err != nil {
		_ = hfm.diskManager.CloseFile(fileID)
		return nil, fmt.Errorf("failed to unpin first heap page: %w", err)
	}

	hf, err := hfm.register(name, fileID, heapPath)
	if err != nil {
		return nil, err
	}
	hf.setHint(0, hp.AvailableSpace())

	hfm.logger.Info("created heap file", "name", name, "file_id", fileID, "path", heapPath)
	return hf, nil
}

// LoadHeapFile reopens a heap file written by an earlier run.
func (hfm *HeapFileManager) LoadHeapFile(name string, fileID uint32) (*HeapFile, error) {
	hfm.mu.Lock()
	defer hfm.mu.Unlock()

	if hf, exists := hfm.files[fileID]; exists {
		return hf, nil
	}

	heapPath := HeapFilePath(hfm.baseDir, name, fileID)
	if _, err := os.Stat(heapPath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("heap file %s not found on disk", heapPath)
	}

	if err := hfm.diskManager.OpenFileWithID(heapPath, fileID); err != nil {
		return nil, fmt.Errorf("failed to open heap file: %w", err)
	}
	numPages, err := hfm.diskManager.NumPages(fileID)
	if err != nil {
		return nil, err
	}
	if numPages == 0 {
		_ = hfm.diskManager.CloseFile(fileID)
		return nil, fmt.Errorf("heap file %s has no pages", heapPath)
	}

	hf, err := hfm.register(name, fileID, heapPath)
	if err != nil {
		return nil, err
	}

	hfm.logger.Info("loaded heap file", "name", name, "file_id", fileID, "pages", numPages)
	return hf, nil
}

func (hfm *HeapFileManager) GetHeapFile(fileID uint32) (*HeapFile, error) {
	hfm.mu.RLock()
	hf, exists := hfm.files[fileID]
	hfm.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("heap file %d not found", fileID)
	}
	return hf, nil
}

// CloseAll flushes every dirty page and closes all heap files.
func (hfm *HeapFileManager) CloseAll() error {
	hfm.mu.Lock()
	defer hfm.mu.Unlock()

	var errs []error
	if err := hfm.bufferPool.FlushAllPages(); err != nil {
		errs = append(errs, err)
	}
	for fileID, hf := range hfm.files {
		hf.hints.Close()
		if err := hfm.diskManager.CloseFile(fileID); err != nil {
			errs = append(errs, fmt.Errorf("close heap file %d: %w", fileID, err))
		}
		delete(hfm.files, fileID)
	}
	return errors.Join(errs...)
}

// register builds the HeapFile and its hint cache. Caller holds hfm.mu.
func (hfm *HeapFileManager) register(name string, fileID uint32, heapPath string) (*HeapFile, error) {
	hints, err := ristretto.NewCache(&ristretto.Config[uint32, uint32]{
		NumCounters:        hfm.hintEntries * 10,
		MaxCost:            hfm.hintEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		_ = hfm.diskManager.CloseFile(fileID)
		return nil, fmt.Errorf("failed to create free-space cache: %w", err)
	}

	hf := &HeapFile{
		fileID:      fileID,
		name:        name,
		filePath:    heapPath,
		diskManager: hfm.diskManager,
		bufferPool:  hfm.bufferPool,
		hints:       hints,
		logger:      hfm.logger.With("file_id", fileID),
	}
	hfm.files[fileID] = hf
	return hf, nil
}
