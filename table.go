package reactor

import "strings"

// Interest is a set of readiness directions.
type Interest uint32

const (
	// Readable indicates interest in (or the presence of) read readiness.
	Readable Interest = 1 << iota
	// Writable indicates interest in (or the presence of) write readiness.
	Writable
)

// validInterest is the union of every defined direction.
const validInterest = Readable | Writable

// String returns a human-readable representation of the mask.
func (i Interest) String() string {
	if i == 0 {
		return "None"
	}
	var parts []string
	if i&Readable != 0 {
		parts = append(parts, "Readable")
	}
	if i&Writable != 0 {
		parts = append(parts, "Writable")
	}
	if i&^validInterest != 0 {
		parts = append(parts, "Unknown")
	}
	return strings.Join(parts, "|")
}

// Handler is invoked with the ready descriptor and the data stored for it.
// Handlers run synchronously on the goroutine driving the loop and must not
// block. Failures (e.g. a read returning EOF) are the handler's own business,
// typically resolved by removing the descriptor's interest and closing it.
type Handler[C any] func(fd int, data C)

// Registration is the per-descriptor record held by the loop.
//
// Data is shared by both directions: every AddInterest call replaces it,
// including calls that only add the opposite direction.
type Registration[C any] struct {
	Read  Handler[C]
	Write Handler[C]
	Data  C
	Mask  Interest
}

// Active reports whether the record holds any interest. An inactive record is
// logically absent: nothing fires for it.
func (r Registration[C]) Active() bool {
	return r.Mask != 0
}

// table is the fixed-capacity descriptor table, indexed directly by fd.
// It knows nothing about the facility; the loop keeps the two in agreement.
//
// Every setInterest stamps the slot with a new generation, so the loop can
// tell registrations made during a cycle apart from those it waited on.
type table[C any] struct {
	slots  []Registration[C]
	gens   []uint64
	gen    uint64
	active int
}

func newTable[C any](capacity int) *table[C] {
	return &table[C]{
		slots: make([]Registration[C], capacity),
		gens:  make([]uint64, capacity),
	}
}

func (t *table[C]) capacity() int {
	return len(t.slots)
}

func (t *table[C]) inRange(fd int) bool {
	return fd >= 0 && fd < len(t.slots)
}

func (t *table[C]) get(fd int) (Registration[C], error) {
	if !t.inRange(fd) {
		return Registration[C]{}, outOfRange(fd, len(t.slots))
	}
	return t.slots[fd], nil
}

// setInterest merges delta into the mask. The handler replaces the existing
// handler of each direction named by delta; data is always replaced.
func (t *table[C]) setInterest(fd int, delta Interest, handler Handler[C], data C) error {
	if !t.inRange(fd) {
		return outOfRange(fd, len(t.slots))
	}
	slot := &t.slots[fd]
	if slot.Mask == 0 && delta != 0 {
		t.active++
	}
	slot.Mask |= delta
	if delta&Readable != 0 {
		slot.Read = handler
	}
	if delta&Writable != 0 {
		slot.Write = handler
	}
	slot.Data = data
	t.gen++
	t.gens[fd] = t.gen
	return nil
}

// generation returns the stamp of the most recent setInterest.
func (t *table[C]) generation() uint64 {
	return t.gen
}

// changedSince reports whether fd was registered, or had a handler replaced,
// after mark was taken. Out of range descriptors never change.
func (t *table[C]) changedSince(fd int, mark uint64) bool {
	return t.inRange(fd) && t.gens[fd] > mark
}

// clearInterest removes delta from the mask, resetting the slot once the mask
// is empty so that no handler or data is retained.
func (t *table[C]) clearInterest(fd int, delta Interest) error {
	if !t.inRange(fd) {
		return outOfRange(fd, len(t.slots))
	}
	slot := &t.slots[fd]
	if slot.Mask == 0 {
		return nil
	}
	slot.Mask &^= delta
	if delta&Readable != 0 {
		slot.Read = nil
	}
	if delta&Writable != 0 {
		slot.Write = nil
	}
	if slot.Mask == 0 {
		*slot = Registration[C]{}
		t.active--
	}
	return nil
}

// reset drops every registration, used when the loop is released.
func (t *table[C]) reset() {
	t.slots = nil
	t.gens = nil
	t.active = 0
}
