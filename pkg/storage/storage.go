// Package storage provides the key/value blob store that holds an
// accessory's long-lived state: its identity, setup verifier and paired
// controllers.
//
// Writes are staged by Set and Erase and made durable by Commit. Callers
// that need a value to survive a crash must Commit before acting on it.
package storage

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Well-known keys.
const (
	KeyAccessory   = "ACCESSORY"
	KeyVerifyData  = "VERIFYDATA"
	KeyControllers = "CONTROLLERS"
	KeySetupID     = "SETUPID"
	KeyConfigNum   = "CONFIGNUMBER"
)

var (
	// ErrNotFound is returned by Get for a missing key.
	ErrNotFound = errors.New("storage: key not found")

	// ErrWriteFailed is returned by MemoryStore when write failures are
	// being simulated.
	ErrWriteFailed = errors.New("storage: write failed")
)

// BlobStore abstracts persistent storage of opaque values.
//
// All methods must be safe for concurrent use.
type BlobStore interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Set stages a value.
	Set(key string, value []byte) error

	// Erase stages the removal of key. Erasing a missing key is not an
	// error.
	Erase(key string) error

	// Commit makes staged changes durable.
	Commit() error
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsEmpty,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes v as deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Load reads key and decodes it into v.
func Load(s BlobStore, key string, v any) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := Unmarshal(data, v); err != nil {
		return fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return nil
}

// Save encodes v, stores it under key and commits.
func Save(s BlobStore, key string, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}
	if err := s.Set(key, data); err != nil {
		return err
	}
	return s.Commit()
}
