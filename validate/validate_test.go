package validate

import "testing"

func TestPortAccepts(t *testing.T) {
	p, err := Port("1024")
	if err != nil || p != 1024 {
		t.Fatalf("expected 1024 to validate, got %d, %v", p, err)
	}
	p, err = Port("65535")
	if err != nil || p != 65535 {
		t.Fatalf("expected 65535 to validate, got %d, %v", p, err)
	}
}

func TestPortRejects(t *testing.T) {
	cases := []string{"", "abc", "1023", "65536", "-1", "80", "1024a", " 1024"}
	for _, c := range cases {
		if _, err := Port(c); err == nil {
			t.Fatalf("expected %q to be rejected", c)
		}
	}
}

func TestIPv4Accepts(t *testing.T) {
	got, err := IPv4("192.168.1.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [4]byte{192, 168, 1, 1}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestIPv4Rejects(t *testing.T) {
	cases := []string{"", "1.2.3", "1.2.3.4.5", "1.2.3.256", "a.b.c.d", "1..3.4", "1.2.3.-1"}
	for _, c := range cases {
		if _, err := IPv4(c); err == nil {
			t.Fatalf("expected %q to be rejected", c)
		}
	}
}

func TestWindowCapacity(t *testing.T) {
	cap, err := WindowCapacity("576")
	if err != nil || cap != 1 {
		t.Fatalf("expected capacity 1 for 576 bytes, got %d, %v", cap, err)
	}
	cap, err = WindowCapacity("2000")
	if err != nil || cap != 3 {
		t.Fatalf("expected capacity 3 for 2000 bytes, got %d, %v", cap, err)
	}
	if _, err := WindowCapacity("575"); err == nil {
		t.Fatal("expected 575 (< one segment) to be rejected")
	}
	if _, err := WindowCapacity("abc"); err == nil {
		t.Fatal("expected non-numeric window size to be rejected")
	}
}
