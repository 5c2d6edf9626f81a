package diskmanager

import (
	"PageKit/storage_engine/page"
	"PageKit/types"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

/*
This is main file for disk manager
It owns:
File descriptors (os.File)
Reading/writing raw page images at page-aligned offsets (ReadAt, WriteAt)
Page allocation (tracking NextPageID per file)

Page ID encoding:
globalPageID = int64(fileID) << 32 | localPageNum
The mapping is deterministic, so nothing has to be rebuilt when a file is reopened.

Page bytes are written exactly as the caller left them. The disk manager never
stamps anything into a page image, the heap page layout owns every byte.
*/

var ErrFileNotOpen = errors.New("file not open")

func NewDiskManager(logger *slog.Logger) *DiskManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiskManager{
		files:  make(map[uint32]*FileDescriptor),
		logger: logger.With("component", "disk"),
	}
}

// GlobalPageID combines a file id and a local page number.
func GlobalPageID(fileID uint32, localPageNum int64) int64 {
	return int64(fileID)<<32 | localPageNum
}

// LocalPageNum strips the file id from a global page id.
func LocalPageNum(globalPageID int64) int64 {
	return globalPageID & 0xFFFFFFFF
}

// FileIDOf returns the file id encoded in a global page id.
func FileIDOf(globalPageID int64) uint32 {
	return uint32(globalPageID >> 32)
}

// OpenFileWithID opens or creates filePath under the caller's file id.
func (dm *DiskManager) OpenFileWithID(filePath string, fileID uint32) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if fd, exists := dm.files[fileID]; exists {
		if fd.FilePath == filePath {
			return nil
		}
		return fmt.Errorf("file id %d already used by %s", fileID, fd.FilePath)
	}

	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", filePath, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.Size()%page.PageSize != 0 {
		file.Close()
		return fmt.Errorf("file %s size %d is not a multiple of page size %d", filePath, stat.Size(), page.PageSize)
	}

	dm.files[fileID] = &FileDescriptor{
		FileID:     fileID,
		FilePath:   filePath,
		File:       file,
		NextPageID: stat.Size() / page.PageSize,
	}
	dm.logger.Debug("opened file", "path", filePath, "file_id", fileID, "pages", stat.Size()/page.PageSize)
	return nil
}

// ReadPage reads a page from disk into a fresh, unpinned frame.
func (dm *DiskManager) ReadPage(globalPageID int64) (*page.Page, error) {
	fileID := FileIDOf(globalPageID)
	fd, err := dm.descriptor(fileID)
	if err != nil {
		return nil, err
	}

	fd.mu.RLock()
	defer fd.mu.RUnlock()

	if fd.File == nil {
		return nil, fmt.Errorf("file %d is closed: %w", fileID, ErrFileNotOpen)
	}

	localPageNum := LocalPageNum(globalPageID)
	if localPageNum >= fd.NextPageID {
		return nil, fmt.Errorf("page %d beyond end of file %d (%d pages)", localPageNum, fileID, fd.NextPageID)
	}

	pg := page.New(globalPageID, fileID, types.PageTypeUnknown)
	// An allocated page that was never flushed reads back short (io.EOF); the
	// rest of the frame stays zeroed.
	if _, err := fd.File.ReadAt(pg.Data, localPageNum*page.PageSize); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read page %d from file %d: %w", localPageNum, fileID, err)
	}

	return pg, nil
}

// WritePage writes a page to disk
func (dm *DiskManager) WritePage(pg *page.Page) error {
	fd, err := dm.descriptor(pg.FileID)
	if err != nil {
		return err
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	if fd.File == nil {
		return fmt.Errorf("file %d is closed: %w", pg.FileID, ErrFileNotOpen)
	}

	if len(pg.Data) != page.PageSize {
		return fmt.Errorf("page data size %d does not match page size %d", len(pg.Data), page.PageSize)
	}

	localPageNum := LocalPageNum(pg.ID)
	if _, err := fd.File.WriteAt(pg.Data, localPageNum*page.PageSize); err != nil {
		return fmt.Errorf("failed to write page %d to file %d: %w", localPageNum, pg.FileID, err)
	}

	if localPageNum >= fd.NextPageID {
		fd.NextPageID = localPageNum + 1
	}
	return nil
}

// AllocatePage reserves the next available page ID for a file. It does NOT
// write anything to disk; that is the BufferPool's responsibility when it
// later flushes the dirty page.
func (dm *DiskManager) AllocatePage(fileID uint32) (int64, error) {
	fd, err := dm.descriptor(fileID)
	if err != nil {
		return 0, err
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	if fd.File == nil {
		return 0, fmt.Errorf("file %d is closed: %w", fileID, ErrFileNotOpen)
	}

	localPageNum := fd.NextPageID
	fd.NextPageID++
	return GlobalPageID(fileID, localPageNum), nil
}

// NumPages returns how many pages the file has, allocated but unflushed ones included.
func (dm *DiskManager) NumPages(fileID uint32) (int64, error) {
	fd, err := dm.descriptor(fileID)
	if err != nil {
		return 0, err
	}
	fd.mu.RLock()
	defer fd.mu.RUnlock()
	return fd.NextPageID, nil
}

// SyncFile forces the file's written pages to stable storage.
func (dm *DiskManager) SyncFile(fileID uint32) error {
	fd, err := dm.descriptor(fileID)
	if err != nil {
		return err
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	if fd.File == nil {
		return fmt.Errorf("file %d is closed: %w", fileID, ErrFileNotOpen)
	}
	if err := fd.File.Sync(); err != nil {
		return fmt.Errorf("failed to sync file %d: %w", fileID, err)
	}
	return nil
}

// CloseFile syncs and closes a specific file
func (dm *DiskManager) CloseFile(fileID uint32) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	fd, exists := dm.files[fileID]
	if !exists {
		return fmt.Errorf("file %d: %w", fileID, ErrFileNotOpen)
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	delete(dm.files, fileID)
	if fd.File == nil {
		return nil
	}

	if err := fd.File.Sync(); err != nil {
		fd.File.Close()
		fd.File = nil
		return fmt.Errorf("failed to sync before close: %w", err)
	}
	err := fd.File.Close()
	fd.File = nil
	return err
}

// CloseAll closes all open files
func (dm *DiskManager) CloseAll() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	var errs []error
	for fileID, fd := range dm.files {
		fd.mu.Lock()
		if fd.File != nil {
			if err := fd.File.Sync(); err != nil {
				errs = append(errs, fmt.Errorf("sync file %d: %w", fileID, err))
			}
			if err := fd.File.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close file %d: %w", fileID, err))
			}
			fd.File = nil
		}
		fd.mu.Unlock()
		delete(dm.files, fileID)
	}

	return errors.Join(errs...)
}

func (dm *DiskManager) descriptor(fileID uint32) (*FileDescriptor, error) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	fd, exists := dm.files[fileID]
	if !exists {
		return nil, fmt.Errorf("file %d: %w", fileID, ErrFileNotOpen)
	}
	return fd, nil
}
