// Package controller keeps the set of paired controllers (iOS devices and
// hubs) an accessory trusts.
//
// Each controller is identified by a 36-byte pairing identifier and holds a
// 32-byte Ed25519 long-term public key. Admin controllers may add and
// remove other pairings. The registry is persisted through a
// storage.BlobStore under the "CONTROLLERS" key.
package controller

import (
	"bytes"
	"errors"
	"fmt"
)

const (
	// IDSize is the length of a pairing identifier.
	IDSize = 36

	// PublicKeySize is the length of an Ed25519 long-term public key.
	PublicKeySize = 32

	// DefaultMaxControllers is the default registry capacity.
	DefaultMaxControllers = 16
)

// Registry errors.
var (
	// ErrTableFull is returned when the registry is at capacity.
	ErrTableFull = errors.New("controller: table full")

	// ErrPublicKeyMismatch is returned when adding a known identifier with
	// a different long-term public key.
	ErrPublicKeyMismatch = errors.New("controller: public key mismatch")

	// ErrInvalidID is returned for an identifier that is not IDSize bytes.
	ErrInvalidID = errors.New("controller: invalid identifier")

	// ErrInvalidPublicKey is returned for a key that is not PublicKeySize
	// bytes.
	ErrInvalidPublicKey = errors.New("controller: invalid public key")
)

// Controller is one paired controller.
type Controller struct {
	ID        string `cbor:"1,keyasint"`
	PublicKey []byte `cbor:"2,keyasint"`
	Admin     bool   `cbor:"3,keyasint"`
}

// Validate checks identifier and key lengths.
func (c *Controller) Validate() error {
	if len(c.ID) != IDSize {
		return ErrInvalidID
	}
	if len(c.PublicKey) != PublicKeySize {
		return ErrInvalidPublicKey
	}
	return nil
}

// Permissions returns the TLV permissions byte: 1 for admin, 0 otherwise.
func (c *Controller) Permissions() byte {
	if c.Admin {
		return 1
	}
	return 0
}

// MatchesPublicKey reports whether pk equals the stored key.
func (c *Controller) MatchesPublicKey(pk []byte) bool {
	return bytes.Equal(c.PublicKey, pk)
}

// Clone returns a deep copy.
func (c *Controller) Clone() Controller {
	out := *c
	out.PublicKey = append([]byte(nil), c.PublicKey...)
	return out
}

// String returns a short description.
func (c Controller) String() string {
	role := "user"
	if c.Admin {
		role = "admin"
	}
	return fmt.Sprintf("%s(%s)", c.ID, role)
}
