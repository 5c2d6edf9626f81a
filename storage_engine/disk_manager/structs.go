package diskmanager

import (
	"log/slog"
	"os"
	"sync"
)

// ############################################# FILE DESCRIPTOR ###########################################

// FileDescriptor represents an open file managed by the disk manager
type FileDescriptor struct {
	FileID     uint32
	FilePath   string
	File       *os.File
	NextPageID int64 // Next available local page number within this file
	mu         sync.RWMutex
}

// ############################################# DISK MANAGER #############################################

// DiskManager manages all disk I/O operations and file handles
type DiskManager struct {
	files  map[uint32]*FileDescriptor // fileID -> file descriptor
	logger *slog.Logger
	mu     sync.RWMutex
}
