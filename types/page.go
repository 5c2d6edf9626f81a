package types

import "math"

const (
	PageSize = 4096 // 4KB page
)

// PageNum identifies a page inside one heap file.
type PageNum uint32

// SlotID indexes a heap page's slot directory.
type SlotID uint32

const (
	InvalidPageNum PageNum = math.MaxUint32 // no linked page
	InvalidSlotID  SlotID  = math.MaxUint32 // scanner end-of-page
	InvalidOffset  uint32  = math.MaxUint32 // tombstoned slot entry
)

type PageType uint8

const (
	PageTypeUnknown PageType = iota
	PageTypeHeapData
)

func (t PageType) String() string {
	switch t {
	case PageTypeHeapData:
		return "heap"
	default:
		return "unknown"
	}
}
