package session

import "github.com/backkem/hap/pkg/crypto"

// Nonce is a 12-byte frame counter. Bytes 4 and 5 hold the count, little
// endian; every other byte stays zero.
type Nonce [crypto.NonceSize]byte

// Increment advances the counter by one. The carry moves from byte 4 into
// byte 5 and goes no further.
func (n *Nonce) Increment() {
	n[4]++
	if n[4] == 0 {
		n[5]++
	}
}

// Reset zeroes the counter.
func (n *Nonce) Reset() {
	*n = Nonce{}
}

// Bytes returns the nonce as a slice suitable for the AEAD.
func (n *Nonce) Bytes() []byte {
	return n[:]
}
