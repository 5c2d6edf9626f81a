package types

import "fmt"

// RowPointer points to a specific record in a heap file
type RowPointer struct {
	FileID     uint32  `json:"file_id"`
	PageNumber PageNum `json:"page_number"`
	SlotID     SlotID  `json:"slot_id"` // index in the page's slot directory
}

func (rp RowPointer) String() string {
	return fmt.Sprintf("(file=%d page=%d slot=%d)", rp.FileID, rp.PageNumber, rp.SlotID)
}
