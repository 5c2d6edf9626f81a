package heapfile

import (
	"PageKit/storage_engine/access/heappage"
	diskmanager "PageKit/storage_engine/disk_manager"
	"PageKit/storage_engine/page"
	"PageKit/types"
	"errors"
	"fmt"
	"io"
)

var (
	ErrRecordTooLarge = errors.New("record exceeds maximum record size")
	ErrWrongFile      = errors.New("row pointer belongs to another file")
	ErrPageOutOfRange = errors.New("page number out of range")
)

func (hf *HeapFile) FileID() uint32 {
	return hf.fileID
}

func (hf *HeapFile) Name() string {
	return hf.name
}

func (hf *HeapFile) Path() string {
	return hf.filePath
}

// NumPages returns how many pages the file's chain holds.
func (hf *HeapFile) NumPages() (int64, error) {
	return hf.diskManager.NumPages(hf.fileID)
}

// InsertRecord stores data on the first page with room for it, appending a
// new page to the chain when none has.
func (hf *HeapFile) InsertRecord(data []byte) (types.RowPointer, error) {
	if err := checkRecordSize(data); err != nil {
		return types.RowPointer{}, err
	}

	hf.mu.Lock()
	defer hf.mu.Unlock()
	return hf.insertRecord(data)
}

// GetRecord returns a copy of the record ptr addresses.
func (hf *HeapFile) GetRecord(ptr types.RowPointer) ([]byte, error) {
	if err := hf.checkPointer(ptr); err != nil {
		return nil, err
	}

	hf.mu.RLock()
	defer hf.mu.RUnlock()

	pg, hp, err := hf.pinPage(ptr.PageNumber)
	if err != nil {
		return nil, err
	}
	defer hf.bufferPool.UnpinPage(pg.ID, false)

	pg.RLock()
	defer pg.RUnlock()
	return hp.Lookup(ptr.SlotID)
}

// UpdateRecord replaces the record at ptr. When its page cannot hold the new
// bytes the record moves to another page and the returned pointer differs
// from ptr. On error the record is still at ptr, unchanged.
func (hf *HeapFile) UpdateRecord(ptr types.RowPointer, data []byte) (types.RowPointer, error) {
	if err := checkRecordSize(data); err != nil {
		return types.RowPointer{}, err
	}
	if err := hf.checkPointer(ptr); err != nil {
		return types.RowPointer{}, err
	}

	hf.mu.Lock()
	defer hf.mu.Unlock()

	err := hf.withPage(ptr.PageNumber, func(hp *heappage.HeapPage) error {
		return hp.Update(ptr.SlotID, data)
	})
	if err == nil {
		return ptr, nil
	}
	if !errors.Is(err, heappage.ErrInsufficientSpace) {
		return types.RowPointer{}, err
	}

	// Relocate: the new copy lands first so a failure leaves the old one intact.
	moved, err := hf.insertRecord(data)
	if err != nil {
		return types.RowPointer{}, fmt.Errorf("relocate record %s: %w", ptr, err)
	}
	if err := hf.withPage(ptr.PageNumber, func(hp *heappage.HeapPage) error {
		return hp.Delete(ptr.SlotID)
	}); err != nil {
		// Drop the new copy so the record stays only at ptr.
		if undoErr := hf.withPage(moved.PageNumber, func(hp *heappage.HeapPage) error {
			return hp.Delete(moved.SlotID)
		}); undoErr != nil {
			hf.logger.Error("relocation rollback failed, record has two copies",
				"from", ptr.String(), "to", moved.String(), "error", undoErr)
			return types.RowPointer{}, fmt.Errorf("remove relocated record %s (copy left at %s): %w",
				ptr, moved, errors.Join(err, undoErr))
		}
		return types.RowPointer{}, fmt.Errorf("remove relocated record %s: %w", ptr, err)
	}

	hf.logger.Debug("record relocated", "from", ptr.String(), "to", moved.String())
	return moved, nil
}

// DeleteRecord removes the record at ptr.
func (hf *HeapFile) DeleteRecord(ptr types.RowPointer) error {
	if err := hf.checkPointer(ptr); err != nil {
		return err
	}

	hf.mu.Lock()
	defer hf.mu.Unlock()

	return hf.withPage(ptr.PageNumber, func(hp *heappage.HeapPage) error {
		return hp.Delete(ptr.SlotID)
	})
}

// Scan visits every live record in chain order, page by page and slot by slot
// within a page. data is only valid until fn returns, and fn must not call
// back into the HeapFile. A non-nil error from fn stops the scan and is
// returned as is.
func (hf *HeapFile) Scan(fn func(ptr types.RowPointer, data []byte) error) error {
	hf.mu.RLock()
	defer hf.mu.RUnlock()

	numPages, err := hf.NumPages()
	if err != nil {
		return err
	}

	out := heappage.NewRecord(heappage.MaxRecordSize)
	scanner := heappage.NewScanner(nil)
	visited := int64(0)
	for pageNum := types.PageNum(0); pageNum != types.InvalidPageNum; {
		if visited >= numPages {
			return fmt.Errorf("page chain of file %d does not terminate after %d pages: %w", hf.fileID, visited, heappage.ErrCorruptPage)
		}
		visited++

		next, err := hf.scanPage(pageNum, scanner, out, fn)
		if err != nil {
			return err
		}
		pageNum = next
	}
	return nil
}

func (hf *HeapFile) scanPage(pageNum types.PageNum, scanner *heappage.Scanner, out *heappage.Record, fn func(types.RowPointer, []byte) error) (types.PageNum, error) {
	pg, hp, err := hf.pinPage(pageNum)
	if err != nil {
		return types.InvalidPageNum, err
	}
	defer hf.bufferPool.UnpinPage(pg.ID, false)

	pg.RLock()
	defer pg.RUnlock()

	scanner.Reset(hp)
	for slot := scanner.Next(); slot != types.InvalidSlotID; slot = scanner.Next() {
		if err := hp.Get(slot, out); err != nil {
			return types.InvalidPageNum, fmt.Errorf("page %d: %w", pageNum, err)
		}
		ptr := types.RowPointer{FileID: hf.fileID, PageNumber: pageNum, SlotID: slot}
		if err := fn(ptr, out.Bytes()); err != nil {
			return types.InvalidPageNum, err
		}
	}
	return hp.Next(), nil
}

// DumpPage writes a description of one page of the file to w.
func (hf *HeapFile) DumpPage(w io.Writer, pageNum types.PageNum) error {
	hf.mu.RLock()
	defer hf.mu.RUnlock()

	pg, hp, err := hf.pinPage(pageNum)
	if err != nil {
		return err
	}
	defer hf.bufferPool.UnpinPage(pg.ID, false)

	pg.RLock()
	defer pg.RUnlock()
	return hp.Dump(w)
}

// Flush writes this file's dirty pages and syncs the file. Frames of other
// files sharing the pool are left alone. Holding hf.mu keeps writers out, so
// the image on disk falls between two operations.
func (hf *HeapFile) Flush() error {
	hf.mu.RLock()
	defer hf.mu.RUnlock()

	if err := hf.bufferPool.FlushFilePages(hf.fileID); err != nil {
		return err
	}
	return hf.diskManager.SyncFile(hf.fileID)
}

// insertRecord is InsertRecord without locking. Caller holds hf.mu.
func (hf *HeapFile) insertRecord(data []byte) (types.RowPointer, error) {
	numPages, err := hf.NumPages()
	if err != nil {
		return types.RowPointer{}, err
	}

	need := uint32(len(data))
	for pageNum := types.PageNum(0); int64(pageNum) < numPages; pageNum++ {
		if avail, ok := hf.hint(pageNum); ok && avail < need {
			continue
		}
		ptr, err := hf.tryInsert(pageNum, data)
		if err == nil {
			return ptr, nil
		}
		if !errors.Is(err, heappage.ErrInsufficientSpace) {
			return types.RowPointer{}, err
		}
	}

	pageNum, err := hf.appendPage()
	if err != nil {
		return types.RowPointer{}, err
	}
	return hf.tryInsert(pageNum, data)
}

func (hf *HeapFile) tryInsert(pageNum types.PageNum, data []byte) (types.RowPointer, error) {
	var slot types.SlotID
	err := hf.withPage(pageNum, func(hp *heappage.HeapPage) error {
		var err error
		slot, err = hp.Insert(data)
		return err
	})
	if err != nil {
		return types.RowPointer{}, err
	}
	return types.RowPointer{FileID: hf.fileID, PageNumber: pageNum, SlotID: slot}, nil
}

// appendPage allocates a fresh page and links it after the current tail.
func (hf *HeapFile) appendPage() (types.PageNum, error) {
	numPages, err := hf.NumPages()
	if err != nil {
		return types.InvalidPageNum, err
	}
	tail := types.PageNum(numPages - 1)

	pg, err := hf.bufferPool.NewPage(hf.fileID, types.PageTypeHeapData)
	if err != nil {
		return types.InvalidPageNum, fmt.Errorf("failed to allocate heap page: %w", err)
	}
	pageNum := types.PageNum(diskmanager.LocalPageNum(pg.ID))

	hp, err := heappage.FromPage(pg)
	if err != nil {
		hf.bufferPool.UnpinPage(pg.ID, false)
		return types.InvalidPageNum, err
	}
	pg.Lock()
	hp.Initialize()
	hp.SetPrev(tail)
	avail := hp.AvailableSpace()
	pg.Unlock()
	if err := hf.bufferPool.UnpinPage(pg.ID, true); err != nil {
		return types.InvalidPageNum, err
	}

	if err := hf.withPage(tail, func(tp *heappage.HeapPage) error {
		tp.SetNext(pageNum)
		return nil
	}); err != nil {
		return types.InvalidPageNum, fmt.Errorf("failed to link page %d after %d: %w", pageNum, tail, err)
	}

	hf.setHint(pageNum, avail)
	hf.logger.Debug("appended heap page", "page", pageNum, "prev", tail)
	return pageNum, nil
}

// withPage pins pageNum, runs fn under the page's write lock, refreshes the
// free-space hint and unpins. The page is marked dirty only when fn succeeds.
func (hf *HeapFile) withPage(pageNum types.PageNum, fn func(hp *heappage.HeapPage) error) error {
	pg, hp, err := hf.pinPage(pageNum)
	if err != nil {
		return err
	}

	pg.Lock()
	fnErr := fn(hp)
	avail := hp.AvailableSpace()
	pg.Unlock()

	hf.setHint(pageNum, avail)
	if err := hf.bufferPool.UnpinPage(pg.ID, fnErr == nil); err != nil {
		return errors.Join(fnErr, err)
	}
	return fnErr
}

func (hf *HeapFile) pinPage(pageNum types.PageNum) (*page.Page, *heappage.HeapPage, error) {
	numPages, err := hf.NumPages()
	if err != nil {
		return nil, nil, err
	}
	if int64(pageNum) >= numPages {
		return nil, nil, fmt.Errorf("page %d of file %d (%d pages): %w", pageNum, hf.fileID, numPages, ErrPageOutOfRange)
	}

	pg, err := hf.bufferPool.FetchPage(diskmanager.GlobalPageID(hf.fileID, int64(pageNum)))
	if err != nil {
		return nil, nil, err
	}
	hp, err := heappage.FromPage(pg)
	if err != nil {
		hf.bufferPool.UnpinPage(pg.ID, false)
		return nil, nil, err
	}
	return pg, hp, nil
}

func (hf *HeapFile) hint(pageNum types.PageNum) (uint32, bool) {
	return hf.hints.Get(uint32(pageNum))
}

func (hf *HeapFile) setHint(pageNum types.PageNum, avail uint32) {
	hf.hints.Set(uint32(pageNum), avail, 1)
}

func (hf *HeapFile) checkPointer(ptr types.RowPointer) error {
	if ptr.FileID != hf.fileID {
		return fmt.Errorf("%s in file %d: %w", ptr, hf.fileID, ErrWrongFile)
	}
	return nil
}

func checkRecordSize(data []byte) error {
	if len(data) == 0 {
		return heappage.ErrEmptyPayload
	}
	if len(data) > heappage.MaxRecordSize {
		return fmt.Errorf("%d bytes (max %d): %w", len(data), heappage.MaxRecordSize, ErrRecordTooLarge)
	}
	return nil
}
