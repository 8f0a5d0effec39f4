package crypto

import (
	"crypto/cipher"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// TagSize is the Poly1305 authentication tag length.
const TagSize = chacha20poly1305.Overhead

var (
	// ErrInvalidKeySize is returned when an AEAD key is not 32 bytes.
	ErrInvalidKeySize = errors.New("crypto: invalid key size")

	// ErrInvalidNonceSize is returned when an AEAD nonce is not 12 bytes.
	ErrInvalidNonceSize = errors.New("crypto: invalid nonce size")

	// ErrDecryption is returned when authentication of a ciphertext fails.
	ErrDecryption = errors.New("crypto: message authentication failed")
)

// Seal encrypts plaintext with ChaCha20-Poly1305 and appends the tag.
func Seal(key, nonce, plaintext, aad []byte) ([]byte, error) {
	aead, err := newAEAD(key, nonce)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// Open authenticates and decrypts ciphertext (which includes the tag).
func Open(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	aead, err := newAEAD(key, nonce)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < TagSize {
		return nil, ErrDecryption
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

func newAEAD(key, nonce []byte) (cipher.AEAD, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKeySize
	}
	if len(nonce) != chacha20poly1305.NonceSize {
		return nil, ErrInvalidNonceSize
	}
	return chacha20poly1305.New(key)
}
