// Package crypto provides the primitives the HomeKit pairing protocol
// combines: SHA-512, HKDF-SHA512, ChaCha20-Poly1305, X25519 and Ed25519.
package crypto

import (
	"crypto/sha512"
	"hash"
)

// SHA512Size is the SHA-512 digest length in bytes.
const SHA512Size = sha512.Size

// SHA512 computes the SHA-512 hash of message.
func SHA512(message []byte) [SHA512Size]byte {
	return sha512.Sum512(message)
}

// SHA512Slice computes the SHA-512 hash and returns it as a slice.
func SHA512Slice(message []byte) []byte {
	h := sha512.Sum512(message)
	return h[:]
}

// NewSHA512 returns a new hash.Hash computing SHA-512 incrementally.
func NewSHA512() hash.Hash {
	return sha512.New()
}
