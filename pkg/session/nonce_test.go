package session

import "testing"

func TestNonceIncrement(t *testing.T) {
	var n Nonce
	n.Increment()
	if n[4] != 1 || n[5] != 0 {
		t.Fatalf("after 1 increment: %x", n)
	}

	n.Reset()
	for i := 0; i < 256; i++ {
		n.Increment()
	}
	if n[4] != 0 || n[5] != 1 {
		t.Errorf("after 256 increments: byte4=%d byte5=%d, want 0 1", n[4], n[5])
	}
	for i, b := range n {
		if i != 4 && i != 5 && b != 0 {
			t.Errorf("byte %d = %d, want 0", i, b)
		}
	}
}

func TestNonceCarryStopsAtByte5(t *testing.T) {
	var n Nonce
	n[4], n[5] = 0xFF, 0xFF
	n.Increment()
	if n != (Nonce{}) {
		t.Errorf("expected wrap to zero, got %x", n)
	}
}

func TestNonceBytes(t *testing.T) {
	var n Nonce
	n.Increment()
	b := n.Bytes()
	if len(b) != 12 {
		t.Fatalf("expected 12 bytes, got %d", len(b))
	}
	b[0] = 0xAA
	if n[0] != 0xAA {
		t.Error("Bytes should alias the nonce")
	}
}
