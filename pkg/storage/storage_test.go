package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

// exerciseStore runs the common BlobStore contract.
func exerciseStore(t *testing.T, s BlobStore) {
	t.Helper()

	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(KeyVerifyData, []byte{1, 2, 3}))
	require.NoError(t, s.Commit())

	got, err := s.Get(KeyVerifyData)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	// Returned values are copies.
	got[0] = 9
	again, err := s.Get(KeyVerifyData)
	require.NoError(t, err)
	assert.Equal(t, byte(1), again[0])

	require.NoError(t, s.Erase(KeyVerifyData))
	require.NoError(t, s.Erase("never-set"))
	require.NoError(t, s.Commit())
	_, err = s.Get(KeyVerifyData)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)
	assert.Equal(t, 2, s.Commits())

	t.Run("FailWrites", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Set("a", []byte("x")))
		s.FailWrites(true)
		assert.ErrorIs(t, s.Set("a", []byte("y")), ErrWriteFailed)
		assert.ErrorIs(t, s.Erase("a"), ErrWriteFailed)
		assert.ErrorIs(t, s.Commit(), ErrWriteFailed)

		got, err := s.Get("a")
		require.NoError(t, err)
		assert.Equal(t, []byte("x"), got)

		s.FailWrites(false)
		assert.NoError(t, s.Set("a", []byte("y")))
	})
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.cbor")

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	exerciseStore(t, s)

	t.Run("staged until commit", func(t *testing.T) {
		require.NoError(t, s.Set(KeyAccessory, []byte("identity")))

		reopened, err := OpenFileStore(path)
		require.NoError(t, err)
		_, err = reopened.Get(KeyAccessory)
		assert.ErrorIs(t, err, ErrNotFound, "uncommitted value must not be on disk")

		require.NoError(t, s.Commit())
		reopened, err = OpenFileStore(path)
		require.NoError(t, err)
		got, err := reopened.Get(KeyAccessory)
		require.NoError(t, err)
		assert.Equal(t, []byte("identity"), got)
	})

	t.Run("file mode", func(t *testing.T) {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})

	t.Run("staged erase hides value", func(t *testing.T) {
		require.NoError(t, s.Erase(KeyAccessory))
		_, err := s.Get(KeyAccessory)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("corrupt file", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.cbor")
		require.NoError(t, os.WriteFile(bad, []byte{0xFF, 0x00}, 0600))
		_, err := OpenFileStore(bad)
		assert.Error(t, err)
	})
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	s := NewKeyringStore("")
	assert.Equal(t, DefaultKeyringService, s.Service())
	exerciseStore(t, s)

	t.Run("invalid base64", func(t *testing.T) {
		require.NoError(t, keyring.Set(s.Service(), "junk", "not base64!"))
		_, err := s.Get("junk")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestSaveLoad(t *testing.T) {
	type record struct {
		Salt     []byte `cbor:"1,keyasint"`
		Verifier []byte `cbor:"2,keyasint"`
	}

	s := NewMemoryStore()
	in := record{Salt: []byte{1, 2}, Verifier: []byte{3, 4, 5}}
	require.NoError(t, Save(s, KeyVerifyData, in))

	var out record
	require.NoError(t, Load(s, KeyVerifyData, &out))
	assert.Equal(t, in, out)

	assert.ErrorIs(t, Load(s, KeyAccessory, &out), ErrNotFound)

	require.NoError(t, s.Set(KeyAccessory, []byte{0xFF}))
	assert.Error(t, Load(s, KeyAccessory, &out))
}
