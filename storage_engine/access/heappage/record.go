package heappage

import "fmt"

// Record is a variable-length payload with a declared capacity. Get writes
// into a caller-owned Record so scans can reuse one buffer for every slot.
type Record struct {
	buf  []byte
	size int
}

// NewRecord allocates a Record that can hold up to capacity bytes.
func NewRecord(capacity int) *Record {
	return &Record{buf: make([]byte, capacity)}
}

// RecordFrom wraps b without copying; size and capacity are both len(b).
func RecordFrom(b []byte) *Record {
	return &Record{buf: b, size: len(b)}
}

// Bytes returns the first Size() bytes. The slice aliases the Record.
func (r *Record) Bytes() []byte {
	return r.buf[:r.size]
}

func (r *Record) Size() int {
	return r.size
}

// Buffer returns the whole backing buffer, for filling before SetSize.
func (r *Record) Buffer() []byte {
	return r.buf
}

// SetSize declares the first n bytes of the buffer as the payload.
func (r *Record) SetSize(n int) error {
	if n < 0 || n > len(r.buf) {
		return fmt.Errorf("size %d outside capacity %d: %w", n, len(r.buf), ErrBufferTooSmall)
	}
	r.size = n
	return nil
}

func (r *Record) Capacity() int {
	return len(r.buf)
}

// Reset drops the contents but keeps the backing buffer.
func (r *Record) Reset() {
	r.size = 0
}
