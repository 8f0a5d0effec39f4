package crypto

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"testing"
)

// rfc5869 is a direct transcription of HKDF used as an independent oracle.
func rfc5869(ikm, salt, info []byte, length int) []byte {
	if len(salt) == 0 {
		salt = make([]byte, sha512.Size)
	}
	ext := hmac.New(sha512.New, salt)
	ext.Write(ikm)
	prk := ext.Sum(nil)

	var out, prev []byte
	for i := byte(1); len(out) < length; i++ {
		m := hmac.New(sha512.New, prk)
		m.Write(prev)
		m.Write(info)
		m.Write([]byte{i})
		prev = m.Sum(nil)
		out = append(out, prev...)
	}
	return out[:length]
}

func TestHKDFSHA512(t *testing.T) {
	ikm := bytes.Repeat([]byte{0x0b}, 64)
	salt := []byte("Pair-Setup-Encrypt-Salt")
	info := []byte("Pair-Setup-Encrypt-Info")

	for _, length := range []int{16, 32, 64, 100} {
		got, err := HKDFSHA512(ikm, salt, info, length)
		if err != nil {
			t.Fatalf("HKDFSHA512 failed: %v", err)
		}
		if want := rfc5869(ikm, salt, info, length); !bytes.Equal(got, want) {
			t.Errorf("length %d: got %x, want %x", length, got, want)
		}
	}
}

func TestKDFContexts(t *testing.T) {
	secret := bytes.Repeat([]byte{0x42}, 64)

	contexts := []KDFContext{
		PairSetupEncrypt,
		PairSetupControllerSign,
		PairSetupAccessorySign,
		PairVerifyEncrypt,
		ControlRead,
		ControlWrite,
	}

	seen := make(map[string]bool)
	for _, c := range contexts {
		key, err := c.Derive(secret)
		if err != nil {
			t.Fatalf("Derive(%s) failed: %v", c.Info, err)
		}
		if len(key) != KeySize {
			t.Errorf("%s: expected %d bytes, got %d", c.Info, KeySize, len(key))
		}
		if seen[string(key)] {
			t.Errorf("%s: key collides with another context", c.Info)
		}
		seen[string(key)] = true

		want := rfc5869(secret, []byte(c.Salt), []byte(c.Info), KeySize)
		if !bytes.Equal(key, want) {
			t.Errorf("%s: derived key mismatch", c.Info)
		}
	}

	if ControlRead.Salt != ControlWrite.Salt {
		t.Error("control keys must share the Control-Salt")
	}
}
