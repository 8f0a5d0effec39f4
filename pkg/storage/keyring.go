package storage

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the keyring service name used when none is
// configured.
const DefaultKeyringService = "hap-accessory"

// KeyringStore keeps each key as a separate entry in the OS keyring.
// Values are base64 encoded. Writes are immediate; Commit does nothing.
type KeyringStore struct {
	service string
}

// NewKeyringStore returns a store under the given keyring service.
func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringStore{service: service}
}

// Service returns the keyring service name.
func (k *KeyringStore) Service() string {
	return k.service
}

// Get reads and decodes an entry.
func (k *KeyringStore) Get(key string) ([]byte, error) {
	s, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("storage: keyring %s invalid base64: %w", key, err)
	}
	return b, nil
}

// Set encodes and writes an entry.
func (k *KeyringStore) Set(key string, value []byte) error {
	return keyring.Set(k.service, key, base64.StdEncoding.EncodeToString(value))
}

// Erase deletes an entry. A missing entry is not an error.
func (k *KeyringStore) Erase(key string) error {
	err := keyring.Delete(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// Commit is a no-op.
func (k *KeyringStore) Commit() error {
	return nil
}
