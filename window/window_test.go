package window

import "testing"

func rec(n int) Record { return Record{Wire: []byte{byte(n)}, PayloadLen: n} }

func TestOfferAndDeleteHeadFIFO(t *testing.T) {
	w := New(3)
	if !w.IsEmpty() || w.IsFull() {
		t.Fatal("fresh window must be empty and not full")
	}
	for i := 1; i <= 3; i++ {
		if err := w.Offer(rec(i)); err != nil {
			t.Fatalf("offer %d: %v", i, err)
		}
	}
	if !w.IsFull() {
		t.Fatal("expected window to be full after 3 offers on capacity 3")
	}
	if err := w.Offer(rec(4)); err == nil {
		t.Fatal("expected offer on full window to error")
	}
	for i := 1; i <= 3; i++ {
		got, err := w.DeleteHead()
		if err != nil {
			t.Fatalf("deleteHead %d: %v", i, err)
		}
		if got.PayloadLen != i {
			t.Fatalf("expected FIFO order, got %d want %d", got.PayloadLen, i)
		}
	}
	if !w.IsEmpty() {
		t.Fatal("expected window to be empty after draining all records")
	}
	if _, err := w.DeleteHead(); err == nil {
		t.Fatal("expected deleteHead on empty window to error")
	}
}

func TestWrapsAroundCapacity(t *testing.T) {
	w := New(2)
	w.Offer(rec(1))
	w.Offer(rec(2))
	w.DeleteHead()
	// startIdx is now 1 and endIdx has wrapped to 0; the next offer must
	// land in slot 0.
	if err := w.Offer(rec(3)); err != nil {
		t.Fatalf("offer after wraparound: %v", err)
	}
	if w.Len() != 2 {
		t.Fatalf("expected len 2 after wraparound offer, got %d", w.Len())
	}
	got, _ := w.DeleteHead()
	if got.PayloadLen != 2 {
		t.Fatalf("expected record 2 first, got %d", got.PayloadLen)
	}
	got, _ = w.DeleteHead()
	if got.PayloadLen != 3 {
		t.Fatalf("expected record 3 second, got %d", got.PayloadLen)
	}
}

// TestInvariantHoldsThroughoutOpSequence exercises offer/deleteHead in a
// fixed sequence and checks endIdx == (startIdx+len) mod cap after every
// mutation, per the window's P3 invariant.
func TestInvariantHoldsThroughoutOpSequence(t *testing.T) {
	w := New(4)
	ops := []bool{true, true, true, false, true, false, false, true, true, false, false, false}
	n := 0
	for _, isOffer := range ops {
		if isOffer {
			if w.IsFull() {
				continue
			}
			w.Offer(rec(n))
			n++
		} else {
			if w.IsEmpty() {
				continue
			}
			w.DeleteHead()
		}
		wantEnd := (w.startIdx + w.length) % w.Cap()
		if w.endIdx != wantEnd {
			t.Fatalf("invariant violated: endIdx=%d want %d (start=%d len=%d cap=%d)",
				w.endIdx, wantEnd, w.startIdx, w.length, w.Cap())
		}
	}
}

func TestEachVisitsInTransmissionOrder(t *testing.T) {
	w := New(4)
	w.Offer(rec(10))
	w.Offer(rec(20))
	w.Offer(rec(30))
	w.DeleteHead() // drop 10, startIdx advances
	w.Offer(rec(40))

	var got []int
	w.Each(func(r Record) { got = append(got, r.PayloadLen) })
	want := []int{20, 30, 40}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected New(0) to panic")
		}
	}()
	New(0)
}
