package heappage

import (
	"PageKit/types"
	"encoding/binary"
)

/*
Heap page binary layout (all values little-endian):

	Offset  Size  Field
	──────────────────────────────────────────────────────
	0       4     PrevPage        uint32  InvalidPageNum when unlinked
	4       4     NextPage        uint32  InvalidPageNum when unlinked
	8       4     FreeSpaceBegin  uint32  one past the last slot entry
	12      4     FreeSpaceEnd    uint32  first byte of record data
	16      4     Size            uint32  live slots
	20      4     Capacity        uint32  allocated slots (live + tombstone)
	──────────────────────────────────────────────────────
	24            HeaderSize

Slotted-page layout:

	[ header 24B ][ slot dir → ][ free space ][ ← records ]
	0            24             ^             ^            4096
	                            FreeSpaceBegin FreeSpaceEnd

	The slot directory grows FORWARD from HeaderSize.
	Records grow BACKWARD from PageSize and are always packed against it.

A slot entry is 8 bytes: [ Offset uint32 ][ Length uint32 ]

	Offset  absolute byte offset of the record, InvalidOffset for a tombstone.
	Length  byte length of the record, 0 for a tombstone.

Slot i lives at: HeaderSize + i*SlotEntrySize
*/
const (
	hdrOffPrevPage       = 0  // uint32 (4)
	hdrOffNextPage       = 4  // uint32 (4)
	hdrOffFreeSpaceBegin = 8  // uint32 (4)
	hdrOffFreeSpaceEnd   = 12 // uint32 (4)
	hdrOffSize           = 16 // uint32 (4)
	hdrOffCapacity       = 20 // uint32 (4)

	// HeaderSize is the fixed header size in bytes. The slot directory
	// starts right after it.
	HeaderSize = 24

	slotOffOffset = 0 // uint32 (4)
	slotOffLength = 4 // uint32 (4)

	// SlotEntrySize is the byte size of one slot entry: Offset(4) + Length(4).
	SlotEntrySize = 8

	// MaxRecordSize is the largest record an empty page can admit: the header
	// plus exactly one slot entry must still fit.
	MaxRecordSize = types.PageSize - HeaderSize - SlotEntrySize

	// maxCapacity bounds the slot directory so it can never run past the page.
	maxCapacity = (types.PageSize - HeaderSize) / SlotEntrySize
)

// Header is a decoded copy of the page header.
type Header struct {
	PrevPage       types.PageNum
	NextPage       types.PageNum
	FreeSpaceBegin uint32
	FreeSpaceEnd   uint32
	Size           uint32
	Capacity       uint32
}

// SlotEntry is one decoded slot directory entry.
type SlotEntry struct {
	Offset uint32
	Length uint32
}

var tombstone = SlotEntry{Offset: types.InvalidOffset, Length: 0}

// IsValid reports whether the entry points at a live record.
func (e SlotEntry) IsValid() bool {
	return e.Offset != types.InvalidOffset
}

func decodeHeader(b []byte) Header {
	return Header{
		PrevPage:       types.PageNum(binary.LittleEndian.Uint32(b[hdrOffPrevPage:])),
		NextPage:       types.PageNum(binary.LittleEndian.Uint32(b[hdrOffNextPage:])),
		FreeSpaceBegin: binary.LittleEndian.Uint32(b[hdrOffFreeSpaceBegin:]),
		FreeSpaceEnd:   binary.LittleEndian.Uint32(b[hdrOffFreeSpaceEnd:]),
		Size:           binary.LittleEndian.Uint32(b[hdrOffSize:]),
		Capacity:       binary.LittleEndian.Uint32(b[hdrOffCapacity:]),
	}
}

func encodeHeader(b []byte, h Header) {
	binary.LittleEndian.PutUint32(b[hdrOffPrevPage:], uint32(h.PrevPage))
	binary.LittleEndian.PutUint32(b[hdrOffNextPage:], uint32(h.NextPage))
	binary.LittleEndian.PutUint32(b[hdrOffFreeSpaceBegin:], h.FreeSpaceBegin)
	binary.LittleEndian.PutUint32(b[hdrOffFreeSpaceEnd:], h.FreeSpaceEnd)
	binary.LittleEndian.PutUint32(b[hdrOffSize:], h.Size)
	binary.LittleEndian.PutUint32(b[hdrOffCapacity:], h.Capacity)
}

func decodeSlotEntry(b []byte) SlotEntry {
	return SlotEntry{
		Offset: binary.LittleEndian.Uint32(b[slotOffOffset:]),
		Length: binary.LittleEndian.Uint32(b[slotOffLength:]),
	}
}

func encodeSlotEntry(b []byte, e SlotEntry) {
	binary.LittleEndian.PutUint32(b[slotOffOffset:], e.Offset)
	binary.LittleEndian.PutUint32(b[slotOffLength:], e.Length)
}

// slotByteOffset returns the byte offset in the page where slot i begins.
//
//	slot 0: bytes 24–31
//	slot 1: bytes 32–39
//	slot i: HeaderSize + i*SlotEntrySize
func slotByteOffset(i uint32) int {
	return HeaderSize + int(i)*SlotEntrySize
}
