package heappage

import (
	"PageKit/storage_engine/page"
	"PageKit/types"
	"encoding/binary"
	"fmt"
)

/*
HeapPage overlays the slotted-page format (see layout.go) on one PageSize
buffer. It owns no memory: the buffer belongs to whoever pinned it, and the
caller must hold that pin for the duration of every call.

Every mutating call validates the header and the target slot first and only
then touches the buffer, so a call that returns an error leaves the page
byte-for-byte unchanged. After every successful call the live records exactly
tile [FreeSpaceEnd, PageSize).
*/
type HeapPage struct {
	data *[types.PageSize]byte
}

// Wrap overlays a HeapPage on buf. buf must be exactly PageSize bytes.
func Wrap(buf []byte) (*HeapPage, error) {
	if len(buf) != types.PageSize {
		return nil, pageErr("Wrap", types.InvalidSlotID, ErrBadPageBuffer,
			"got %d bytes, want %d", len(buf), types.PageSize)
	}
	return &HeapPage{data: (*[types.PageSize]byte)(buf)}, nil
}

// FromPage overlays a HeapPage on a pinned buffer-pool frame.
func FromPage(pg *page.Page) (*HeapPage, error) {
	return Wrap(pg.Data)
}

// ─────────────────────────────────────────────────────────────────────────────
// Initialisation and linkage
// ─────────────────────────────────────────────────────────────────────────────

// Initialize stamps an empty header and zeroes the rest of the page.
//
// After this call:
//   - PrevPage, NextPage == InvalidPageNum
//   - FreeSpaceBegin     == HeaderSize
//   - FreeSpaceEnd       == PageSize
//   - Size, Capacity     == 0
func (hp *HeapPage) Initialize() {
	clear(hp.data[:])
	encodeHeader(hp.data[:], Header{
		PrevPage:       types.InvalidPageNum,
		NextPage:       types.InvalidPageNum,
		FreeSpaceBegin: HeaderSize,
		FreeSpaceEnd:   types.PageSize,
	})
}

func (hp *HeapPage) SetNext(n types.PageNum) {
	binary.LittleEndian.PutUint32(hp.data[hdrOffNextPage:], uint32(n))
}

func (hp *HeapPage) SetPrev(n types.PageNum) {
	binary.LittleEndian.PutUint32(hp.data[hdrOffPrevPage:], uint32(n))
}

func (hp *HeapPage) Next() types.PageNum {
	return types.PageNum(binary.LittleEndian.Uint32(hp.data[hdrOffNextPage:]))
}

func (hp *HeapPage) Prev() types.PageNum {
	return types.PageNum(binary.LittleEndian.Uint32(hp.data[hdrOffPrevPage:]))
}

// ─────────────────────────────────────────────────────────────────────────────
// Free space and counts
// ─────────────────────────────────────────────────────────────────────────────

// AvailableSpace returns how many record bytes the next Insert can take.
//
// This is the gap between the slot directory and the records, minus the cost
// of one new slot entry when every existing slot is live (the insert would
// have to grow the directory). A page can therefore report a non-zero gap in
// Header() and still return 0 here.
//
// The single slot-entry deduction assumes one record per insert; a batched
// insert would need to charge one entry per record that cannot reuse a
// tombstone.
//
// A page whose header fails validation reports 0.
func (hp *HeapPage) AvailableSpace() uint32 {
	h, err := hp.loadHeader()
	if err != nil {
		return 0
	}
	return availableSpace(h)
}

func availableSpace(h Header) uint32 {
	free := h.FreeSpaceEnd - h.FreeSpaceBegin
	if h.Size == h.Capacity {
		if free < SlotEntrySize {
			return 0
		}
		free -= SlotEntrySize
	}
	return free
}

// IsFull reports whether every allocated slot is live. A freshly initialised
// page (no slots at all) is not full.
func (hp *HeapPage) IsFull() bool {
	size, capacity := hp.size(), hp.capacity()
	return size == capacity && size != 0
}

func (hp *HeapPage) IsEmpty() bool {
	return hp.size() == 0
}

// RecordCount returns the number of live records.
func (hp *HeapPage) RecordCount() uint32 {
	return hp.size()
}

// ─────────────────────────────────────────────────────────────────────────────
// Record operations
// ─────────────────────────────────────────────────────────────────────────────

// Insert copies data into the page and returns the slot it now lives in.
// The lowest tombstoned slot is reused before the directory grows.
func (hp *HeapPage) Insert(data []byte) (types.SlotID, error) {
	if len(data) == 0 {
		return types.InvalidSlotID, pageErr("Insert", types.InvalidSlotID, ErrEmptyPayload, "")
	}
	h, err := hp.loadHeader()
	if err != nil {
		return types.InvalidSlotID, err
	}
	if avail := availableSpace(h); len(data) > int(avail) {
		return types.InvalidSlotID, pageErr("Insert", types.InvalidSlotID, ErrInsufficientSpace,
			"need %d bytes, only %d available", len(data), avail)
	}

	slot := hp.firstTombstone(h)
	if slot == h.Capacity {
		h.Capacity++
		h.FreeSpaceBegin += SlotEntrySize
	}
	hp.place(&h, slot, data)
	encodeHeader(hp.data[:], h)

	return types.SlotID(slot), nil
}

// Get copies the record at slot into out and sets out's size.
func (hp *HeapPage) Get(slot types.SlotID, out *Record) error {
	h, err := hp.loadHeader()
	if err != nil {
		return err
	}
	e, err := hp.liveEntry("Get", h, slot)
	if err != nil {
		return err
	}
	if out == nil || out.Capacity() < int(e.Length) {
		capacity := 0
		if out != nil {
			capacity = out.Capacity()
		}
		return pageErr("Get", slot, ErrBufferTooSmall,
			"record is %d bytes, buffer holds %d", e.Length, capacity)
	}
	out.size = copy(out.buf, hp.data[e.Offset:e.Offset+e.Length])
	return nil
}

// Lookup returns a copy of the record at slot.
func (hp *HeapPage) Lookup(slot types.SlotID) ([]byte, error) {
	h, err := hp.loadHeader()
	if err != nil {
		return nil, err
	}
	e, err := hp.liveEntry("Lookup", h, slot)
	if err != nil {
		return nil, err
	}
	out := make([]byte, e.Length)
	copy(out, hp.data[e.Offset:e.Offset+e.Length])
	return out, nil
}

// Delete removes the record at slot, compacts the record area and
// tombstones the slot. Trailing tombstones are then trimmed from the
// directory; a tombstone with a live slot after it stays allocated.
func (hp *HeapPage) Delete(slot types.SlotID) error {
	h, err := hp.loadHeader()
	if err != nil {
		return err
	}
	e, err := hp.liveEntry("Delete", h, slot)
	if err != nil {
		return err
	}

	hp.remove(&h, uint32(slot), e)
	hp.shrinkDirectory(&h)
	encodeHeader(hp.data[:], h)
	return nil
}

// Update replaces the record at slot with data. The slot id does not change
// and the directory neither grows nor shrinks.
//
// Admission treats the old record as already freed:
//
//	AvailableSpace() + oldLength >= len(data)
func (hp *HeapPage) Update(slot types.SlotID, data []byte) error {
	h, err := hp.loadHeader()
	if err != nil {
		return err
	}
	e, err := hp.liveEntry("Update", h, slot)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return pageErr("Update", slot, ErrEmptyPayload, "")
	}
	if avail := uint64(availableSpace(h)) + uint64(e.Length); uint64(len(data)) > avail {
		return pageErr("Update", slot, ErrInsufficientSpace,
			"need %d bytes, only %d available", len(data), avail)
	}

	hp.remove(&h, uint32(slot), e)
	hp.place(&h, uint32(slot), data)
	encodeHeader(hp.data[:], h)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers. None of these validate; callers check first.
// ─────────────────────────────────────────────────────────────────────────────

// place writes data at the record boundary and points slot at it.
func (hp *HeapPage) place(h *Header, slot uint32, data []byte) {
	n := uint32(len(data))
	h.FreeSpaceEnd -= n
	copy(hp.data[h.FreeSpaceEnd:h.FreeSpaceEnd+n], data)
	hp.writeEntry(slot, SlotEntry{Offset: h.FreeSpaceEnd, Length: n})
	h.Size++
}

// remove drops the record e held by slot and closes the gap it leaves.
//
//	before: [ free ][ A ][ B ][ e ][ C ]
//	after:  [ free      ][ A ][ B ][ C ]
//
// Everything between the old boundary and e shifts up by e.Length, so every
// live entry below e.Offset moves by the same amount.
func (hp *HeapPage) remove(h *Header, slot uint32, e SlotEntry) {
	if e.Offset != h.FreeSpaceEnd {
		copy(hp.data[h.FreeSpaceEnd+e.Length:e.Offset+e.Length], hp.data[h.FreeSpaceEnd:e.Offset])
		for i := uint32(0); i < h.Capacity; i++ {
			if i == slot {
				continue
			}
			other := hp.readEntry(i)
			if other.IsValid() && other.Offset < e.Offset {
				other.Offset += e.Length
				hp.writeEntry(i, other)
			}
		}
	}
	clear(hp.data[h.FreeSpaceEnd : h.FreeSpaceEnd+e.Length])
	h.FreeSpaceEnd += e.Length

	hp.writeEntry(slot, tombstone)
	h.Size--
}

// shrinkDirectory releases the run of tombstones at the end of the directory.
func (hp *HeapPage) shrinkDirectory(h *Header) {
	capacity := h.Capacity
	for capacity > 0 && !hp.readEntry(capacity-1).IsValid() {
		capacity--
	}
	if capacity == h.Capacity {
		return
	}
	clear(hp.data[slotByteOffset(capacity):slotByteOffset(h.Capacity)])
	h.FreeSpaceBegin -= (h.Capacity - capacity) * SlotEntrySize
	h.Capacity = capacity
}

// firstTombstone returns the lowest tombstoned slot, or h.Capacity if every
// slot is live.
func (hp *HeapPage) firstTombstone(h Header) uint32 {
	for i := uint32(0); i < h.Capacity; i++ {
		if !hp.readEntry(i).IsValid() {
			return i
		}
	}
	return h.Capacity
}

func (hp *HeapPage) readEntry(i uint32) SlotEntry {
	return decodeSlotEntry(hp.data[slotByteOffset(i):])
}

func (hp *HeapPage) writeEntry(i uint32, e SlotEntry) {
	encodeSlotEntry(hp.data[slotByteOffset(i):], e)
}

func (hp *HeapPage) size() uint32 {
	return binary.LittleEndian.Uint32(hp.data[hdrOffSize:])
}

func (hp *HeapPage) capacity() uint32 {
	return binary.LittleEndian.Uint32(hp.data[hdrOffCapacity:])
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// loadHeader decodes the header and rejects any value that would make a
// later offset computation leave the page.
func (hp *HeapPage) loadHeader() (Header, error) {
	h := decodeHeader(hp.data[:])
	switch {
	case h.Capacity > maxCapacity:
		return h, pageErr("header", types.InvalidSlotID, ErrCorruptPage,
			"capacity %d exceeds %d", h.Capacity, maxCapacity)
	case h.FreeSpaceBegin != uint32(slotByteOffset(h.Capacity)):
		return h, pageErr("header", types.InvalidSlotID, ErrCorruptPage,
			"free_space_begin %d does not match capacity %d", h.FreeSpaceBegin, h.Capacity)
	case h.FreeSpaceBegin > h.FreeSpaceEnd || h.FreeSpaceEnd > types.PageSize:
		return h, pageErr("header", types.InvalidSlotID, ErrCorruptPage,
			"free space [%d, %d) out of order", h.FreeSpaceBegin, h.FreeSpaceEnd)
	case h.Size > h.Capacity:
		return h, pageErr("header", types.InvalidSlotID, ErrCorruptPage,
			"size %d exceeds capacity %d", h.Size, h.Capacity)
	}
	return h, nil
}

// liveEntry returns the entry for slot, failing with ErrInvalidSlotID for an
// out-of-range or tombstoned slot and ErrCorruptPage for an extent that does
// not sit inside the record area.
func (hp *HeapPage) liveEntry(op string, h Header, slot types.SlotID) (SlotEntry, error) {
	if uint32(slot) >= h.Capacity {
		return SlotEntry{}, pageErr(op, slot, ErrInvalidSlotID, "capacity is %d", h.Capacity)
	}
	e := hp.readEntry(uint32(slot))
	if !e.IsValid() {
		return SlotEntry{}, pageErr(op, slot, ErrInvalidSlotID, "slot is a tombstone")
	}
	end := uint64(e.Offset) + uint64(e.Length)
	if e.Length == 0 || e.Offset < h.FreeSpaceEnd || end > types.PageSize {
		return SlotEntry{}, pageErr(op, slot, ErrCorruptPage,
			"extent [%d, %d) outside record area [%d, %d)", e.Offset, end, h.FreeSpaceEnd, types.PageSize)
	}
	return e, nil
}

// Validate checks the header and that the live records exactly tile
// [FreeSpaceEnd, PageSize) with no overlap and no gap.
func (hp *HeapPage) Validate() error {
	h, err := hp.loadHeader()
	if err != nil {
		return err
	}

	// owner[b-FreeSpaceEnd] records which slot covers byte b; slot ids are
	// stored +1 so zero means uncovered.
	owner := make([]uint32, types.PageSize-h.FreeSpaceEnd)
	live := uint32(0)
	for i := uint32(0); i < h.Capacity; i++ {
		e := hp.readEntry(i)
		if !e.IsValid() {
			if e.Length != 0 {
				return pageErr("Validate", types.SlotID(i), ErrCorruptPage,
					"tombstone has length %d", e.Length)
			}
			continue
		}
		if _, err := hp.liveEntry("Validate", h, types.SlotID(i)); err != nil {
			return err
		}
		live++
		for b := e.Offset; b < e.Offset+e.Length; b++ {
			idx := b - h.FreeSpaceEnd
			if owner[idx] != 0 {
				return pageErr("Validate", types.SlotID(i), ErrCorruptPage,
					"overlaps slot %d at byte %d", owner[idx]-1, b)
			}
			owner[idx] = i + 1
		}
	}
	if live != h.Size {
		return pageErr("Validate", types.InvalidSlotID, ErrCorruptPage,
			"%d live slots, header says %d", live, h.Size)
	}
	for idx, o := range owner {
		if o == 0 {
			return pageErr("Validate", types.InvalidSlotID, ErrCorruptPage,
				"gap in record area at byte %d", h.FreeSpaceEnd+uint32(idx))
		}
	}
	return nil
}

func (hp *HeapPage) String() string {
	h := decodeHeader(hp.data[:])
	return fmt.Sprintf("HeapPage{size=%d capacity=%d free=[%d,%d) prev=%d next=%d}",
		h.Size, h.Capacity, h.FreeSpaceBegin, h.FreeSpaceEnd, h.PrevPage, h.NextPage)
}
