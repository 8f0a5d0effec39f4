package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps all keys in a single CBOR-encoded file.
//
// Set and Erase stage changes in memory; Commit rewrites the file through
// a temporary file and a rename so a crash never leaves it half written.
type FileStore struct {
	mu     sync.Mutex
	path   string
	data   map[string][]byte
	staged map[string][]byte // nil value means erase
}

// OpenFileStore loads path, or starts empty if the file does not exist.
func OpenFileStore(path string) (*FileStore, error) {
	f := &FileStore{
		path:   path,
		data:   make(map[string][]byte),
		staged: make(map[string][]byte),
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := Unmarshal(raw, &f.data); err != nil {
			return nil, fmt.Errorf("storage: decode %s: %w", path, err)
		}
	}
	return f, nil
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.path
}

// Get returns the staged value if there is one, else the committed one.
func (f *FileStore) Get(key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if v, ok := f.staged[key]; ok {
		if v == nil {
			return nil, ErrNotFound
		}
		return clone(v), nil
	}
	v, ok := f.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

// Set stages a value.
func (f *FileStore) Set(key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staged[key] = clone(value)
	return nil
}

// Erase stages a removal.
func (f *FileStore) Erase(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staged[key] = nil
	return nil
}

// Commit writes the merged state to disk. On failure staged changes are
// kept so a later Commit can retry.
func (f *FileStore) Commit() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.staged) == 0 {
		return nil
	}

	next := make(map[string][]byte, len(f.data)+len(f.staged))
	for k, v := range f.data {
		next[k] = v
	}
	for k, v := range f.staged {
		if v == nil {
			delete(next, k)
		} else {
			next[k] = v
		}
	}

	raw, err := Marshal(next)
	if err != nil {
		return err
	}
	if err := writeAtomic(f.path, raw); err != nil {
		return err
	}

	f.data = next
	f.staged = make(map[string][]byte)
	return nil
}

func writeAtomic(path string, raw []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
