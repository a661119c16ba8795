// Package window implements the sender's ring of in-flight segments:
// spec.md §3 "Ring window" and §4.2. It is a fixed-capacity circular FIFO of
// already-built wire records, not a byte-stream buffer — each slot holds one
// whole segment (header+payload) plus its payload length, mirroring
// original_source/window.c's array-of-segments design rather than the
// teacher package's byte-oriented ring.Ring or ringTx (those buffer a
// contiguous byte stream and slice it into segments on demand; this
// protocol's segments are already independently sized and built before
// they're offered, so a record ring is the simpler, correct fit).
package window

import "errors"

var errFull = errors.New("window: offer on full window")
var errEmpty = errors.New("window: deleteHead on empty window")

// Record is one in-flight segment: its full wire bytes (header+payload) and
// the payload length, per spec.md §3.
type Record struct {
	Wire       []byte
	PayloadLen int
}

// Window is a fixed-capacity circular FIFO of Records, holding the
// segments sent but not yet acknowledged. Invariants (spec.md §3):
//
//	0 <= len <= cap
//	endIdx == (startIdx + len) mod cap
//	records appear in transmission order starting at startIdx
//
//	|  acked (gone)  |   in-flight: startIdx .. endIdx-1 (wrapping)  |  free  |
type Window struct {
	arr      []Record
	startIdx int
	endIdx   int
	length   int
}

// New returns an empty window with the given capacity, which must be >= 1
// (spec.md §3: capacity = floor(userWindowBytes/576), must be >= 1).
func New(capacity int) *Window {
	if capacity < 1 {
		panic("window: capacity must be >= 1")
	}
	return &Window{arr: make([]Record, capacity)}
}

// Cap returns the window's fixed capacity.
func (w *Window) Cap() int { return len(w.arr) }

// Len returns the number of in-flight records.
func (w *Window) Len() int { return w.length }

// IsEmpty reports whether the window holds no in-flight records.
func (w *Window) IsEmpty() bool { return w.length == 0 }

// IsFull reports whether the window is at capacity.
func (w *Window) IsFull() bool { return w.length == len(w.arr) }

// Next returns (i+1) mod cap, used to iterate from startIdx towards endIdx.
func (w *Window) Next(i int) int {
	i++
	if i == len(w.arr) {
		return 0
	}
	return i
}

// Offer inserts rec at the tail. Precondition: !IsFull(); callers must check
// before offering, per spec.md §4.2 (the window itself only guards with an
// error rather than silently dropping, which would hide a caller bug).
func (w *Window) Offer(rec Record) error {
	if w.IsFull() {
		return errFull
	}
	w.arr[w.endIdx] = rec
	w.endIdx = w.Next(w.endIdx)
	w.length++
	return nil
}

// DeleteHead removes and returns the oldest in-flight record. Precondition:
// !IsEmpty().
func (w *Window) DeleteHead() (Record, error) {
	if w.IsEmpty() {
		return Record{}, errEmpty
	}
	rec := w.arr[w.startIdx]
	w.arr[w.startIdx] = Record{} // drop the reference so the GC can reclaim it.
	w.startIdx = w.Next(w.startIdx)
	w.length--
	return rec, nil
}

// Head returns the oldest in-flight record without removing it. Precondition:
// !IsEmpty().
func (w *Window) Head() (Record, error) {
	if w.IsEmpty() {
		return Record{}, errEmpty
	}
	return w.arr[w.startIdx], nil
}

// Each calls fn once per in-flight record, in transmission order
// (startIdx forward to endIdx, exclusive), for bulk retransmission
// (spec.md §4.4 ESTAB_SENDING timeout branch: "retransmit every segment in
// the window in order").
func (w *Window) Each(fn func(Record)) {
	i := w.startIdx
	for n := 0; n < w.length; n++ {
		fn(w.arr[i])
		i = w.Next(i)
	}
}
