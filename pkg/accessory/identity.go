package accessory

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/backkem/hap/pkg/crypto"
	"github.com/backkem/hap/pkg/crypto/srp"
	"github.com/backkem/hap/pkg/discovery"
	"github.com/backkem/hap/pkg/storage"
)

// identityRecord is the persisted long-term identity.
type identityRecord struct {
	DeviceID string `cbor:"1,keyasint"`
	Seed     []byte `cbor:"2,keyasint"` // Ed25519 private key seed
}

// verifierRecord is the persisted SRP verifier for the setup code.
type verifierRecord struct {
	Salt     []byte `cbor:"1,keyasint"`
	Verifier []byte `cbor:"2,keyasint"`
}

// identity is the accessory's pairing identifier and Ed25519 key pair.
// It has its own lock because pairing handlers call it while holding
// theirs.
type identity struct {
	mu       sync.RWMutex
	deviceID string
	pub      ed25519.PublicKey
	priv     ed25519.PrivateKey
}

func (id *identity) DeviceID() string {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.deviceID
}

func (id *identity) PublicKey() ed25519.PublicKey {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.pub
}

func (id *identity) Sign(message []byte) []byte {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return crypto.Sign(id.priv, message)
}

func (id *identity) set(rec identityRecord) {
	priv := ed25519.NewKeyFromSeed(rec.Seed)
	id.mu.Lock()
	defer id.mu.Unlock()
	crypto.Zero(id.priv)
	id.deviceID = rec.DeviceID
	id.priv = priv
	id.pub = priv.Public().(ed25519.PublicKey)
}

// newIdentityRecord draws a fresh device ID and key pair.
func newIdentityRecord(r io.Reader) (identityRecord, error) {
	var mac [6]byte
	if _, err := io.ReadFull(r, mac[:]); err != nil {
		return identityRecord{}, err
	}
	_, priv, err := crypto.GenerateSigningKey(r)
	if err != nil {
		return identityRecord{}, err
	}
	rec := identityRecord{
		DeviceID: fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5]),
		Seed:     append([]byte(nil), priv.Seed()...),
	}
	crypto.Zero(priv)
	return rec, nil
}

// loadIdentity reads the persisted identity, creating and persisting a
// new one if none exists.
func loadIdentity(store storage.BlobStore, r io.Reader) (identityRecord, bool, error) {
	var rec identityRecord
	err := storage.Load(store, storage.KeyAccessory, &rec)
	switch {
	case err == nil:
		if !discovery.ValidDeviceID(rec.DeviceID) || len(rec.Seed) != ed25519.SeedSize {
			return identityRecord{}, false, fmt.Errorf("%w: %s", ErrCorruptState, storage.KeyAccessory)
		}
		return rec, false, nil
	case errors.Is(err, storage.ErrNotFound):
	default:
		return identityRecord{}, false, err
	}

	rec, err = newIdentityRecord(r)
	if err != nil {
		return identityRecord{}, false, err
	}
	if err := storage.Save(store, storage.KeyAccessory, &rec); err != nil {
		return identityRecord{}, false, err
	}
	return rec, true, nil
}

// loadVerifier reads the persisted verifier. A missing verifier, or one
// that does not match code, is replaced.
func loadVerifier(store storage.BlobStore, r io.Reader, code string) (verifierRecord, bool, error) {
	var rec verifierRecord
	err := storage.Load(store, storage.KeyVerifyData, &rec)
	switch {
	case err == nil:
		if len(rec.Salt) == srp.SaltSize && bytes.Equal(srp.CreateVerifier(code, rec.Salt), rec.Verifier) {
			return rec, false, nil
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		return verifierRecord{}, false, err
	}

	rec, err = newVerifierRecord(r, code)
	if err != nil {
		return verifierRecord{}, false, err
	}
	if err := storage.Save(store, storage.KeyVerifyData, &rec); err != nil {
		return verifierRecord{}, false, err
	}
	return rec, true, nil
}

func newVerifierRecord(r io.Reader, code string) (verifierRecord, error) {
	salt, v, err := srp.NewVerifier(r, code)
	if err != nil {
		return verifierRecord{}, err
	}
	return verifierRecord{Salt: salt, Verifier: v}, nil
}

// loadConfigNumber returns the stored c# value, or initial if none was
// stored.
func loadConfigNumber(store storage.BlobStore, initial uint16) (uint16, error) {
	var n uint16
	err := storage.Load(store, storage.KeyConfigNum, &n)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return initial, nil
	case err != nil:
		return 0, err
	case n == 0:
		return initial, nil
	}
	return n, nil
}

// loadSetupID returns want if set, else the persisted setup ID, else a
// new random one. Whatever is returned is persisted.
func loadSetupID(store storage.BlobStore, r io.Reader, want string) (string, error) {
	var stored string
	err := storage.Load(store, storage.KeySetupID, &stored)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}
	if err == nil && ValidateSetupID(stored) != nil {
		stored = ""
	}

	id := want
	if id == "" {
		id = stored
	}
	if id == "" {
		if id, err = GenerateSetupID(r); err != nil {
			return "", err
		}
	}
	if id != stored {
		if err := storage.Save(store, storage.KeySetupID, id); err != nil {
			return "", err
		}
	}
	return id, nil
}
