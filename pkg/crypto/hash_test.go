package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestSHA512(t *testing.T) {
	// FIPS 180-2 "abc" vector
	want, _ := hex.DecodeString("ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a" +
		"2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f")

	got := SHA512([]byte("abc"))
	if !bytes.Equal(got[:], want) {
		t.Errorf("SHA512(abc) = %x", got)
	}
	if !bytes.Equal(SHA512Slice([]byte("abc")), want) {
		t.Error("SHA512Slice mismatch")
	}

	h := NewSHA512()
	h.Write([]byte("a"))
	h.Write([]byte("bc"))
	if !bytes.Equal(h.Sum(nil), want) {
		t.Error("incremental hash mismatch")
	}
}
