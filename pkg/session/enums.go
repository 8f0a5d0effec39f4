// Package session holds the per-connection security context of a HomeKit
// accessory link.
//
// A Session starts in plaintext. Once pair-verify succeeds it is
// established: two directional ChaCha20-Poly1305 keys are derived from the
// verify shared secret and every subsequent message travels in frames of at
// most 1024 bytes:
//
//	[length:2 LE][ciphertext:length][tag:16]
//
// The 2-byte length is the AEAD additional data. Each direction keeps its
// own 12-byte nonce; only bytes 4 and 5 count frames.
//
// The package also provides the connection table used to tear down every
// connection of a controller when its pairing is removed.
package session

// Role selects which derived key protects which direction.
type Role int

const (
	// RoleAccessory reads with the controller-to-accessory key and writes
	// with the accessory-to-controller key.
	RoleAccessory Role = iota

	// RoleController is the mirror image, used by the pairing client.
	RoleController
)

// String returns a human-readable name for the role.
func (r Role) String() string {
	switch r {
	case RoleAccessory:
		return "Accessory"
	case RoleController:
		return "Controller"
	default:
		return "Unknown"
	}
}

// IsValid reports whether r is a defined role.
func (r Role) IsValid() bool {
	return r == RoleAccessory || r == RoleController
}
