package heappage

import "PageKit/types"

// Directory is the read-only view of a slot directory a Scanner needs.
// *HeapPage implements it.
type Directory interface {
	// SlotCapacity returns the number of allocated directory entries.
	SlotCapacity() uint32
	// EntryAt returns entry i, or false if i is past the directory.
	EntryAt(i uint32) (SlotEntry, bool)
}

func (hp *HeapPage) SlotCapacity() uint32 {
	return min(hp.capacity(), maxCapacity)
}

func (hp *HeapPage) EntryAt(i uint32) (SlotEntry, bool) {
	if i >= hp.SlotCapacity() {
		return SlotEntry{}, false
	}
	return hp.readEntry(i), true
}

// Scanner walks a page's live slots in ascending slot order.
// It never writes to the page and holds no pin of its own: the caller keeps
// the page pinned for as long as the Scanner is in use.
type Scanner struct {
	dir  Directory
	cur  uint32
	done bool
}

func NewScanner(dir Directory) *Scanner {
	return &Scanner{dir: dir}
}

// Next returns the next live slot id, or InvalidSlotID once the directory is
// exhausted. After the first InvalidSlotID it keeps returning InvalidSlotID
// until Reset, even if records are inserted behind the cursor.
func (s *Scanner) Next() types.SlotID {
	if s.done || s.dir == nil {
		return types.InvalidSlotID
	}
	for s.cur < s.dir.SlotCapacity() {
		i := s.cur
		s.cur++
		if e, ok := s.dir.EntryAt(i); ok && e.IsValid() {
			return types.SlotID(i)
		}
	}
	s.done = true
	return types.InvalidSlotID
}

// Reset points the scanner at dir (which may be the same page) and rewinds it.
func (s *Scanner) Reset(dir Directory) {
	s.dir = dir
	s.cur = 0
	s.done = false
}
