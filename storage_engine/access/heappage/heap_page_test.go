package heappage

import (
	"PageKit/storage_engine/page"
	"PageKit/types"
	"bytes"
	"encoding/binary"
	"maps"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPage(t *testing.T) *HeapPage {
	t.Helper()
	hp, err := Wrap(make([]byte, types.PageSize))
	require.NoError(t, err)
	hp.Initialize()
	return hp
}

func fill(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func TestLayoutConstants(t *testing.T) {
	assert.Equal(t, 0, HeaderSize%8, "header must keep 64-bit alignment")
	assert.Equal(t, 0, SlotEntrySize%8, "slot entries must keep 64-bit alignment")
	assert.Equal(t, 4064, MaxRecordSize)
}

func TestWrapRejectsWrongSize(t *testing.T) {
	for _, n := range []int{0, types.PageSize - 1, types.PageSize + 1} {
		_, err := Wrap(make([]byte, n))
		assert.ErrorIs(t, err, ErrBadPageBuffer, "len=%d", n)
	}
}

func TestFromPageSharesFrame(t *testing.T) {
	pg := page.New(7, 1, types.PageTypeHeapData)
	hp, err := FromPage(pg)
	require.NoError(t, err)
	hp.Initialize()

	_, err = hp.Insert([]byte("frame"))
	require.NoError(t, err)
	assert.Equal(t, []byte("frame"), pg.Data[types.PageSize-5:])
}

func TestInitialize(t *testing.T) {
	hp, err := Wrap(fill(0xAB, types.PageSize))
	require.NoError(t, err)
	hp.Initialize()

	assert.Equal(t, Header{
		PrevPage:       types.InvalidPageNum,
		NextPage:       types.InvalidPageNum,
		FreeSpaceBegin: HeaderSize,
		FreeSpaceEnd:   types.PageSize,
	}, hp.Header())
	assert.True(t, hp.IsEmpty())
	assert.False(t, hp.IsFull(), "an empty page is not full")
	assert.Zero(t, hp.RecordCount())
	assert.Equal(t, uint32(MaxRecordSize), hp.AvailableSpace())
	assert.NoError(t, hp.Validate())
}

func TestHeaderByteLayout(t *testing.T) {
	hp := newTestPage(t)
	hp.SetPrev(3)
	hp.SetNext(9)
	_, err := hp.Insert(fill('x', 10))
	require.NoError(t, err)

	raw := hp.data[:HeaderSize+SlotEntrySize]
	le := binary.LittleEndian
	assert.Equal(t, uint32(3), le.Uint32(raw[0:]))
	assert.Equal(t, uint32(9), le.Uint32(raw[4:]))
	assert.Equal(t, uint32(32), le.Uint32(raw[8:]))
	assert.Equal(t, uint32(4086), le.Uint32(raw[12:]))
	assert.Equal(t, uint32(1), le.Uint32(raw[16:]))
	assert.Equal(t, uint32(1), le.Uint32(raw[20:]))
	assert.Equal(t, uint32(4086), le.Uint32(raw[24:]))
	assert.Equal(t, uint32(10), le.Uint32(raw[28:]))
}

func TestLinkage(t *testing.T) {
	hp := newTestPage(t)
	assert.Equal(t, types.InvalidPageNum, hp.Next())
	assert.Equal(t, types.InvalidPageNum, hp.Prev())

	hp.SetNext(12)
	hp.SetPrev(4)
	assert.Equal(t, types.PageNum(12), hp.Next())
	assert.Equal(t, types.PageNum(4), hp.Prev())

	hp.SetNext(types.InvalidPageNum)
	assert.Equal(t, types.InvalidPageNum, hp.Next())
	assert.Equal(t, types.PageNum(4), hp.Prev())
}

func TestInsertDeleteReuseScenario(t *testing.T) {
	hp := newTestPage(t)
	first := fill('a', 10)
	second := fill('b', 13)

	s0, err := hp.Insert(first)
	require.NoError(t, err)
	assert.Equal(t, types.SlotID(0), s0)
	h := hp.Header()
	assert.Equal(t, uint32(types.PageSize-10), h.FreeSpaceEnd)
	assert.Equal(t, uint32(1), h.Capacity)
	assert.Equal(t, uint32(1), h.Size)

	s1, err := hp.Insert(second)
	require.NoError(t, err)
	assert.Equal(t, types.SlotID(1), s1)
	assert.Equal(t, uint32(types.PageSize-23), hp.Header().FreeSpaceEnd)

	require.NoError(t, hp.Delete(s0))
	h = hp.Header()
	assert.Equal(t, uint32(1), h.Size)
	assert.Equal(t, uint32(2), h.Capacity, "slot 1 is live so the directory keeps slot 0")
	assert.Equal(t, uint32(types.PageSize-13), h.FreeSpaceEnd)
	assert.Equal(t, uint32(1), hp.InvalidCount())

	got, err := hp.Lookup(s1)
	require.NoError(t, err)
	assert.Equal(t, second, got)
	e, err := hp.SlotEntryAt(s1)
	require.NoError(t, err)
	assert.Equal(t, SlotEntry{Offset: types.PageSize - 13, Length: 13}, e)

	s2, err := hp.Insert([]byte("reuse"))
	require.NoError(t, err)
	assert.Equal(t, s0, s2, "lowest tombstone is reused")
	assert.Equal(t, uint32(2), hp.Header().Capacity)
	assert.NoError(t, hp.Validate())
}

func TestInsertMaxRecord(t *testing.T) {
	hp := newTestPage(t)

	before := hp.Fingerprint()
	_, err := hp.Insert(fill('x', MaxRecordSize+1))
	assert.ErrorIs(t, err, ErrInsufficientSpace)
	assert.Equal(t, before, hp.Fingerprint())

	slot, err := hp.Insert(fill('x', MaxRecordSize))
	require.NoError(t, err)
	assert.Equal(t, types.SlotID(0), slot)
	assert.Equal(t, hp.Header().FreeSpaceBegin, hp.Header().FreeSpaceEnd)
	assert.Zero(t, hp.AvailableSpace())
	assert.True(t, hp.IsFull())
	assert.NoError(t, hp.Validate())
}

func TestInsertEmptyPayload(t *testing.T) {
	hp := newTestPage(t)
	before := hp.Fingerprint()

	_, err := hp.Insert(nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)
	_, err = hp.Insert([]byte{})
	assert.ErrorIs(t, err, ErrEmptyPayload)
	assert.Equal(t, before, hp.Fingerprint())
}

func TestFillToCapacity(t *testing.T) {
	hp := newTestPage(t)
	rec := fill('r', 100)

	inserted := 0
	for {
		before := hp.Fingerprint()
		_, err := hp.Insert(rec)
		if err != nil {
			require.ErrorIs(t, err, ErrInsufficientSpace)
			assert.Equal(t, before, hp.Fingerprint())
			break
		}
		inserted++
	}

	// each record costs 100 bytes plus an 8-byte slot entry
	assert.Equal(t, (types.PageSize-HeaderSize)/(100+SlotEntrySize), inserted)
	assert.True(t, hp.IsFull())
	assert.Less(t, hp.AvailableSpace(), uint32(100))
	assert.NoError(t, hp.Validate())
}

func TestAvailableSpaceAccounting(t *testing.T) {
	hp := newTestPage(t)
	a, err := hp.Insert(fill('a', 10))
	require.NoError(t, err)
	_, err = hp.Insert(fill('b', 10))
	require.NoError(t, err)

	h := hp.Header()
	assert.Equal(t, h.FreeSpaceEnd-h.FreeSpaceBegin-SlotEntrySize, hp.AvailableSpace(),
		"all slots live: a new entry must be paid for")

	require.NoError(t, hp.Delete(a))
	h = hp.Header()
	assert.Equal(t, h.FreeSpaceEnd-h.FreeSpaceBegin, hp.AvailableSpace(),
		"a tombstone can be reused for free")
}

func TestAvailableSpaceNeverUnderflows(t *testing.T) {
	hp := newTestPage(t)
	// leave a 4 byte gap: smaller than one slot entry
	_, err := hp.Insert(fill('x', MaxRecordSize-4))
	require.NoError(t, err)

	h := hp.Header()
	assert.Equal(t, uint32(4), h.FreeSpaceEnd-h.FreeSpaceBegin)
	assert.Zero(t, hp.AvailableSpace())

	_, err = hp.Insert([]byte{1})
	assert.ErrorIs(t, err, ErrInsufficientSpace)
}

func TestGetErrors(t *testing.T) {
	hp := newTestPage(t)
	slot, err := hp.Insert([]byte("hello world"))
	require.NoError(t, err)

	out := NewRecord(types.PageSize)
	assert.ErrorIs(t, hp.Get(slot+9999, out), ErrInvalidSlotID)
	assert.ErrorIs(t, hp.Get(types.InvalidSlotID, out), ErrInvalidSlotID)

	small := NewRecord(4)
	assert.ErrorIs(t, hp.Get(slot, small), ErrBufferTooSmall)
	assert.Zero(t, small.Size())
	assert.ErrorIs(t, hp.Get(slot, nil), ErrBufferTooSmall)

	exact := NewRecord(len("hello world"))
	require.NoError(t, hp.Get(slot, exact))
	assert.Equal(t, []byte("hello world"), exact.Bytes())

	other, err := hp.Insert([]byte("keep"))
	require.NoError(t, err)
	require.NoError(t, hp.Delete(slot))
	assert.ErrorIs(t, hp.Get(slot, out), ErrInvalidSlotID, "tombstoned slot")
	require.NoError(t, hp.Get(other, out))
	assert.Equal(t, []byte("keep"), out.Bytes())
}

func TestGetReusesRecord(t *testing.T) {
	hp := newTestPage(t)
	long, err := hp.Insert([]byte("a much longer record"))
	require.NoError(t, err)
	short, err := hp.Insert([]byte("tiny"))
	require.NoError(t, err)

	out := NewRecord(64)
	require.NoError(t, hp.Get(long, out))
	assert.Equal(t, 20, out.Size())
	require.NoError(t, hp.Get(short, out))
	assert.Equal(t, []byte("tiny"), out.Bytes())
	assert.Equal(t, 64, out.Capacity())

	out.Reset()
	assert.Empty(t, out.Bytes())
}

func TestDeleteErrors(t *testing.T) {
	hp := newTestPage(t)
	assert.ErrorIs(t, hp.Delete(0), ErrInvalidSlotID, "empty page")

	slot, err := hp.Insert([]byte("x"))
	require.NoError(t, err)
	_, err = hp.Insert([]byte("y"))
	require.NoError(t, err)
	require.NoError(t, hp.Delete(slot))

	before := hp.Fingerprint()
	assert.ErrorIs(t, hp.Delete(slot), ErrInvalidSlotID, "double delete")
	assert.ErrorIs(t, hp.Delete(42), ErrInvalidSlotID)
	assert.Equal(t, before, hp.Fingerprint())
}

func TestDeleteCompactsAndShiftsOffsets(t *testing.T) {
	hp := newTestPage(t)
	recs := [][]byte{fill('a', 5), fill('b', 7), fill('c', 11), fill('d', 3)}
	for _, r := range recs {
		_, err := hp.Insert(r)
		require.NoError(t, err)
	}

	// slot 1 sits in the middle of the record area
	require.NoError(t, hp.Delete(1))
	require.NoError(t, hp.Validate())
	assert.Equal(t, uint32(types.PageSize-5-11-3), hp.Header().FreeSpaceEnd)

	for _, slot := range []types.SlotID{0, 2, 3} {
		got, err := hp.Lookup(slot)
		require.NoError(t, err)
		assert.Equal(t, recs[slot], got)
	}

	// slot 3 sits at the record boundary
	require.NoError(t, hp.Delete(3))
	require.NoError(t, hp.Validate())
	assert.Equal(t, uint32(types.PageSize-5-11), hp.Header().FreeSpaceEnd)
}

func TestDeleteShrinksDirectoryFromTail(t *testing.T) {
	hp := newTestPage(t)
	for i := 0; i < 4; i++ {
		_, err := hp.Insert(fill(byte('a'+i), 8))
		require.NoError(t, err)
	}

	require.NoError(t, hp.Delete(1))
	assert.Equal(t, uint32(4), hp.Header().Capacity, "middle tombstone stays allocated")
	require.NoError(t, hp.Delete(2))
	assert.Equal(t, uint32(4), hp.Header().Capacity)
	assert.Equal(t, uint32(2), hp.InvalidCount())

	require.NoError(t, hp.Delete(3))
	h := hp.Header()
	assert.Equal(t, uint32(1), h.Capacity, "slots 1..3 trimmed together")
	assert.Equal(t, uint32(HeaderSize+SlotEntrySize), h.FreeSpaceBegin)
	assert.Zero(t, hp.InvalidCount())

	require.NoError(t, hp.Delete(0))
	h = hp.Header()
	assert.Zero(t, h.Capacity)
	assert.Equal(t, uint32(HeaderSize), h.FreeSpaceBegin)
	assert.Equal(t, uint32(types.PageSize), h.FreeSpaceEnd)
	assert.True(t, hp.IsEmpty())
	assert.Equal(t, uint32(MaxRecordSize), hp.AvailableSpace())
}

func TestUpdate(t *testing.T) {
	hp := newTestPage(t)
	a, err := hp.Insert([]byte("alpha"))
	require.NoError(t, err)
	b, err := hp.Insert([]byte("bravo"))
	require.NoError(t, err)
	c, err := hp.Insert([]byte("charlie"))
	require.NoError(t, err)

	tests := []struct {
		name string
		slot types.SlotID
		data []byte
	}{
		{"grow middle", b, []byte("bravo-bravo-bravo")},
		{"shrink first", a, []byte("a")},
		{"same size last", c, []byte("CHARLIE")},
		{"grow again", a, fill('z', 300)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capBefore := hp.Header().Capacity
			require.NoError(t, hp.Update(tt.slot, tt.data))
			got, err := hp.Lookup(tt.slot)
			require.NoError(t, err)
			assert.Equal(t, tt.data, got)
			assert.Equal(t, capBefore, hp.Header().Capacity, "update never resizes the directory")
			assert.Equal(t, uint32(3), hp.RecordCount())
			assert.NoError(t, hp.Validate())
		})
	}
}

func TestUpdateErrors(t *testing.T) {
	hp := newTestPage(t)
	slot, err := hp.Insert([]byte("payload"))
	require.NoError(t, err)
	before := hp.Fingerprint()

	assert.ErrorIs(t, hp.Update(slot+10, []byte("x")), ErrInvalidSlotID)
	assert.ErrorIs(t, hp.Update(slot, nil), ErrEmptyPayload)
	assert.ErrorIs(t, hp.Update(slot+10, nil), ErrInvalidSlotID, "slot is checked before payload")
	assert.Equal(t, before, hp.Fingerprint())

	require.NoError(t, hp.Delete(slot))
	assert.ErrorIs(t, hp.Update(slot, []byte("x")), ErrInvalidSlotID)
}

func TestUpdateAdmission(t *testing.T) {
	hp := newTestPage(t)
	for {
		if _, err := hp.Insert(fill('r', 100)); err != nil {
			break
		}
	}
	avail := hp.AvailableSpace()

	before := hp.Fingerprint()
	err := hp.Update(0, fill('u', int(avail)+100+1))
	assert.ErrorIs(t, err, ErrInsufficientSpace)
	assert.Equal(t, before, hp.Fingerprint(), "failed update leaves the page untouched")

	grown := fill('u', int(avail)+100)
	require.NoError(t, hp.Update(0, grown))
	got, err := hp.Lookup(0)
	require.NoError(t, err)
	assert.Equal(t, grown, got)
	assert.Zero(t, hp.AvailableSpace())
	assert.NoError(t, hp.Validate())
}

func TestCorruptHeaderIsReported(t *testing.T) {
	hp := newTestPage(t)
	_, err := hp.Insert([]byte("ok"))
	require.NoError(t, err)

	binary.LittleEndian.PutUint32(hp.data[hdrOffCapacity:], 1<<20)
	before := hp.Fingerprint()

	_, err = hp.Insert([]byte("x"))
	assert.ErrorIs(t, err, ErrCorruptPage)
	assert.ErrorIs(t, hp.Delete(0), ErrCorruptPage)
	assert.ErrorIs(t, hp.Update(0, []byte("y")), ErrCorruptPage)
	assert.ErrorIs(t, hp.Get(0, NewRecord(8)), ErrCorruptPage)
	assert.Zero(t, hp.AvailableSpace())
	assert.ErrorIs(t, hp.Validate(), ErrCorruptPage)
	assert.Equal(t, before, hp.Fingerprint())
}

func TestCorruptSlotExtentIsReported(t *testing.T) {
	hp := newTestPage(t)
	slot, err := hp.Insert([]byte("ok"))
	require.NoError(t, err)

	hp.writeEntry(uint32(slot), SlotEntry{Offset: types.PageSize - 1, Length: 50})
	_, err = hp.Lookup(slot)
	assert.ErrorIs(t, err, ErrCorruptPage)
	assert.ErrorIs(t, hp.Delete(slot), ErrCorruptPage)
}

func TestValidateDetectsOverlap(t *testing.T) {
	hp := newTestPage(t)
	_, err := hp.Insert(fill('a', 10))
	require.NoError(t, err)
	_, err = hp.Insert(fill('b', 10))
	require.NoError(t, err)

	hp.writeEntry(1, SlotEntry{Offset: types.PageSize - 15, Length: 10})
	assert.ErrorIs(t, hp.Validate(), ErrCorruptPage)
}

func TestPageErrorMessage(t *testing.T) {
	hp := newTestPage(t)
	err := hp.Delete(5)

	var pe *PageError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "Delete", pe.Op)
	assert.Equal(t, types.SlotID(5), pe.Slot)
	assert.Equal(t, "Delete slot 5: capacity is 0: invalid slot id", err.Error())
}

// TestRandomOperations drives the page against a map model and checks the
// compaction invariant, slot reuse order and failure atomicity after every
// step, and that a scan (and a rescan after Reset) yields exactly the live
// slots in ascending order.
func TestRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	hp := newTestPage(t)
	model := make(map[types.SlotID][]byte)

	randomPayload := func(maxLen int) []byte {
		b := make([]byte, 1+rng.Intn(maxLen))
		rng.Read(b)
		return b
	}
	randomLive := func() types.SlotID {
		keys := make([]types.SlotID, 0, len(model))
		for k := range model {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		return keys[rng.Intn(len(keys))]
	}
	expectedSlot := func() types.SlotID {
		capacity := hp.Header().Capacity
		for i := uint32(0); i < capacity; i++ {
			if _, ok := model[types.SlotID(i)]; !ok {
				return types.SlotID(i)
			}
		}
		return types.SlotID(capacity)
	}

	for step := 0; step < 5000; step++ {
		op := rng.Intn(10)
		switch {
		case op < 5 || len(model) == 0:
			data := randomPayload(200)
			avail := hp.AvailableSpace()
			want := expectedSlot()
			before := hp.Fingerprint()
			slot, err := hp.Insert(data)
			if len(data) > int(avail) {
				require.ErrorIs(t, err, ErrInsufficientSpace, "step %d", step)
				require.Equal(t, before, hp.Fingerprint(), "step %d", step)
				continue
			}
			require.NoError(t, err, "step %d", step)
			require.Equal(t, want, slot, "step %d", step)
			model[slot] = data

		case op < 8:
			slot := randomLive()
			require.NoError(t, hp.Delete(slot), "step %d", step)
			delete(model, slot)

		default:
			slot := randomLive()
			data := randomPayload(300)
			limit := int(hp.AvailableSpace()) + len(model[slot])
			capBefore := hp.Header().Capacity
			before := hp.Fingerprint()
			err := hp.Update(slot, data)
			if len(data) > limit {
				require.ErrorIs(t, err, ErrInsufficientSpace, "step %d", step)
				require.Equal(t, before, hp.Fingerprint(), "step %d", step)
				continue
			}
			require.NoError(t, err, "step %d", step)
			require.Equal(t, capBefore, hp.Header().Capacity, "step %d", step)
			model[slot] = data
		}

		require.NoError(t, hp.Validate(), "step %d", step)
		require.Equal(t, uint32(len(model)), hp.RecordCount(), "step %d", step)

		if step%10 == 0 {
			want := slices.Sorted(maps.Keys(model))
			scanner := NewScanner(hp)
			for pass := 0; pass < 2; pass++ {
				var got []types.SlotID
				for slot := scanner.Next(); slot != types.InvalidSlotID; slot = scanner.Next() {
					got = append(got, slot)
				}
				require.Equal(t, want, got, "step %d pass %d", step, pass)
				scanner.Reset(hp)
			}
		}

		if step%250 == 0 {
			out := NewRecord(types.PageSize)
			for slot, want := range model {
				require.NoError(t, hp.Get(slot, out))
				require.Equal(t, want, out.Bytes(), "step %d slot %d", step, slot)
			}
		}
	}
}
