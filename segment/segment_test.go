package segment

import "testing"

func TestBuildIsValid(t *testing.T) {
	payload := []byte("hello, world")
	buf := make([]byte, HeaderLen+len(payload))
	frm := Build(buf, 1024, 2048, 2, 578, 0, payload)
	if !frm.Valid() {
		t.Fatal("expected freshly built segment to validate")
	}
	if frm.SourcePort() != 1024 || frm.DestinationPort() != 2048 {
		t.Fatal("port fields did not round-trip")
	}
	if frm.Seq() != 2 || frm.Ack() != 578 {
		t.Fatal("seq/ack fields did not round-trip")
	}
	if frm.DataOffset() != dataOffsetWord {
		t.Fatal("data offset must always be 0x50")
	}
	if frm.Window() != 0 || frm.UrgentPtr() != 0 {
		t.Fatal("rcvWindow and urgentPtr must always be zero")
	}
	if string(frm.Payload()) != string(payload) {
		t.Fatal("payload did not round-trip")
	}
}

func TestCorruptionInvalidates(t *testing.T) {
	buf := make([]byte, HeaderLen)
	frm := Build(buf, 1, 1, 0, 0, FlagSYN, nil)
	if !frm.Valid() {
		t.Fatal("expected built segment to validate")
	}
	buf[5] ^= 0xFF // flip every bit of one seqNum byte
	if frm.Valid() {
		t.Fatal("expected corrupted segment to fail validation")
	}
}

func TestFlagsRoundTrip(t *testing.T) {
	cases := []Flags{0, FlagSYN, FlagSYN | FlagACK, FlagACK, FlagFIN, FlagFIN | FlagACK}
	for _, flags := range cases {
		buf := make([]byte, HeaderLen)
		frm := Build(buf, 1, 1, 0, 0, flags, nil)
		if frm.Flags() != flags {
			t.Fatalf("flags %v did not round-trip, got %v", flags, frm.Flags())
		}
		if !frm.Valid() {
			t.Fatalf("segment with flags %v should validate", flags)
		}
	}
}

func TestFlagsMasksUnknownBits(t *testing.T) {
	f := Flags(0xFF)
	if f.Mask() != (FlagFIN | FlagSYN | FlagACK) {
		t.Fatalf("expected mask to keep only FIN|SYN|ACK, got %v", f.Mask())
	}
}

func TestValueAddWraps(t *testing.T) {
	var v Value = 0xFFFFFFFE
	v = v.Add(4)
	if v != 2 {
		t.Fatalf("expected wraparound to 2, got %d", v)
	}
}

func TestParseRejectsShortBuffer(t *testing.T) {
	_, ok := Parse(make([]byte, HeaderLen-1))
	if ok {
		t.Fatal("expected short buffer to be rejected")
	}
}
