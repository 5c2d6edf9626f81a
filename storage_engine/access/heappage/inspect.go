package heappage

import (
	"PageKit/types"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
)

/*
Read-only introspection for tests and operators. Nothing here validates the
page or mutates it, and nothing in the record path depends on it.
*/

// Header returns a decoded copy of the page header as stored.
func (hp *HeapPage) Header() Header {
	return decodeHeader(hp.data[:])
}

// SlotEntryAt returns the raw entry for slot, tombstones included.
func (hp *HeapPage) SlotEntryAt(slot types.SlotID) (SlotEntry, error) {
	e, ok := hp.EntryAt(uint32(slot))
	if !ok {
		return SlotEntry{}, pageErr("SlotEntryAt", slot, ErrInvalidSlotID,
			"capacity is %d", hp.SlotCapacity())
	}
	return e, nil
}

// InvalidCount returns the number of tombstoned directory entries.
func (hp *HeapPage) InvalidCount() uint32 {
	n := uint32(0)
	for i := uint32(0); i < hp.SlotCapacity(); i++ {
		if !hp.readEntry(i).IsValid() {
			n++
		}
	}
	return n
}

// Fingerprint hashes the whole page image.
func (hp *HeapPage) Fingerprint() uint64 {
	return xxhash.Sum64(hp.data[:])
}

// Dump writes a human-readable description of the page to w and returns the
// first write error.
func (hp *HeapPage) Dump(w io.Writer) error {
	h := hp.Header()
	var werr error
	p := func(format string, args ...any) {
		if werr == nil {
			_, werr = fmt.Fprintf(w, format, args...)
		}
	}

	p("Heap page (%s) fingerprint=%016x\n", humanize.IBytes(types.PageSize), hp.Fingerprint())
	p("  prev=%s next=%s\n", pageNumString(h.PrevPage), pageNumString(h.NextPage))
	p("  Total number of slots:   %d\n", h.Capacity)
	p("  Number of valid slots:   %d\n", h.Size)
	p("  Number of invalid slots: %d\n", hp.InvalidCount())
	p("  Where free space begins: %d\n", h.FreeSpaceBegin)
	p("  Where free space ends:   %d\n", h.FreeSpaceEnd)
	if h.FreeSpaceEnd >= h.FreeSpaceBegin {
		p("  Free gap: %s, next insert may use %s\n",
			humanize.IBytes(uint64(h.FreeSpaceEnd-h.FreeSpaceBegin)),
			humanize.IBytes(uint64(hp.AvailableSpace())))
	}

	for i := uint32(0); i < hp.SlotCapacity(); i++ {
		e := hp.readEntry(i)
		if !e.IsValid() {
			p("  slot %3d: tombstone\n", i)
			continue
		}
		p("  slot %3d: offset=%d length=%d (%s)\n", i, e.Offset, e.Length, humanize.IBytes(uint64(e.Length)))
	}

	if err := hp.Validate(); err != nil {
		p("  INVALID: %v\n", err)
	}
	return werr
}

func pageNumString(n types.PageNum) string {
	if n == types.InvalidPageNum {
		return "none"
	}
	return fmt.Sprintf("%d", n)
}
