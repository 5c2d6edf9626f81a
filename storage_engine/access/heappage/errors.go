package heappage

import (
	"PageKit/types"
	"errors"
	"fmt"
)

var (
	ErrEmptyPayload      = errors.New("empty payload")
	ErrInsufficientSpace = errors.New("insufficient space")
	ErrInvalidSlotID     = errors.New("invalid slot id")
	ErrBufferTooSmall    = errors.New("output buffer too small")
	ErrCorruptPage       = errors.New("corrupt heap page")
	ErrBadPageBuffer     = errors.New("page buffer must be exactly PageSize bytes")
)

// PageError reports which operation failed on which slot. Err is always one
// of the sentinel errors above, so callers match with errors.Is.
type PageError struct {
	Op     string
	Slot   types.SlotID
	Detail string
	Err    error
}

func (e *PageError) Error() string {
	msg := e.Op
	if e.Slot != types.InvalidSlotID {
		msg += fmt.Sprintf(" slot %d", e.Slot)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg + ": " + e.Err.Error()
}

func (e *PageError) Unwrap() error {
	return e.Err
}

func pageErr(op string, slot types.SlotID, err error, format string, args ...any) error {
	return &PageError{
		Op:     op,
		Slot:   slot,
		Detail: fmt.Sprintf(format, args...),
		Err:    err,
	}
}
