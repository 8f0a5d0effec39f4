package crypto

import (
	"crypto/ed25519"
	"crypto/subtle"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"
)

// Key sizes.
const (
	X25519KeySize      = curve25519.PointSize
	Ed25519PublicSize  = ed25519.PublicKeySize
	Ed25519PrivateSize = ed25519.PrivateKeySize
	Ed25519SeedSize    = ed25519.SeedSize
	SignatureSize      = ed25519.SignatureSize
)

var (
	// ErrInvalidPublicKey is returned for a peer key of the wrong length.
	ErrInvalidPublicKey = errors.New("crypto: invalid public key")

	// ErrLowOrderPoint is returned when X25519 yields the all-zero secret.
	ErrLowOrderPoint = errors.New("crypto: low order point")
)

// GenerateX25519 creates an ephemeral Curve25519 keypair from rand.
func GenerateX25519(rand io.Reader) (pub, priv []byte, err error) {
	priv = make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(rand, priv); err != nil {
		return nil, nil, err
	}
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

// X25519SharedSecret computes the Diffie-Hellman secret of priv and
// peerPub.
func X25519SharedSecret(priv, peerPub []byte) ([]byte, error) {
	if len(peerPub) != X25519KeySize {
		return nil, ErrInvalidPublicKey
	}
	secret, err := curve25519.X25519(priv, peerPub)
	if err != nil {
		return nil, ErrLowOrderPoint
	}
	var zero [X25519KeySize]byte
	if subtle.ConstantTimeCompare(secret, zero[:]) == 1 {
		return nil, ErrLowOrderPoint
	}
	return secret, nil
}

// GenerateSigningKey creates a long-term Ed25519 keypair from rand.
func GenerateSigningKey(rand io.Reader) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand)
}

// Sign signs message with an Ed25519 private key.
func Sign(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}

// Verify checks an Ed25519 signature. Keys and signatures of the wrong
// length fail verification.
func Verify(pub, message, sig []byte) bool {
	if len(pub) != Ed25519PublicSize || len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, sig)
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
