package crypto

import (
	"crypto/sha512"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of every key derived during pairing.
const KeySize = 32

// KDFContext is a fixed HKDF salt/info pair.
type KDFContext struct {
	Salt string
	Info string
}

// HKDF contexts used by pair-setup, pair-verify and the control channel.
var (
	PairSetupEncrypt = KDFContext{
		Salt: "Pair-Setup-Encrypt-Salt",
		Info: "Pair-Setup-Encrypt-Info",
	}
	PairSetupControllerSign = KDFContext{
		Salt: "Pair-Setup-Controller-Sign-Salt",
		Info: "Pair-Setup-Controller-Sign-Info",
	}
	PairSetupAccessorySign = KDFContext{
		Salt: "Pair-Setup-Accessory-Sign-Salt",
		Info: "Pair-Setup-Accessory-Sign-Info",
	}
	PairVerifyEncrypt = KDFContext{
		Salt: "Pair-Verify-Encrypt-Salt",
		Info: "Pair-Verify-Encrypt-Info",
	}

	// ControlRead keys traffic sent by the accessory (controller reads).
	ControlRead = KDFContext{
		Salt: "Control-Salt",
		Info: "Control-Read-Encryption-Key",
	}

	// ControlWrite keys traffic sent by the controller (controller writes).
	ControlWrite = KDFContext{
		Salt: "Control-Salt",
		Info: "Control-Write-Encryption-Key",
	}
)

// Derive returns a KeySize-byte key for secret under this context.
func (c KDFContext) Derive(secret []byte) ([]byte, error) {
	return HKDFSHA512(secret, []byte(c.Salt), []byte(c.Info), KeySize)
}

// HKDFSHA512 derives key material using HKDF-SHA512 (RFC 5869).
//
// Parameters:
//   - inputKey: Input keying material (IKM)
//   - salt: Optional salt value
//   - info: Optional context/application-specific info
//   - length: Number of bytes to derive
func HKDFSHA512(inputKey, salt, info []byte, length int) ([]byte, error) {
	reader := hkdf.New(sha512.New, inputKey, salt, info)
	result := make([]byte, length)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, err
	}
	return result, nil
}
