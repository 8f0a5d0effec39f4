package pairing

import (
	"crypto/ed25519"

	"github.com/backkem/hap/pkg/controller"
	"github.com/backkem/hap/pkg/tlv8"
)

// Registry is the set of paired controllers. *controller.Registry
// satisfies it.
type Registry interface {
	Find(id string) (controller.Controller, bool)
	Add(id string, publicKey []byte, admin bool) error
	Unregister(id string) (finish func(), err error)
	CountAdmins() int
	List() []controller.Controller
}

// Identity is the accessory's long-term identity.
type Identity interface {
	// DeviceID returns the "XX:XX:XX:XX:XX:XX" pairing identifier.
	DeviceID() string

	// PublicKey returns the Ed25519 long-term public key.
	PublicKey() ed25519.PublicKey

	// Sign signs message with the long-term private key.
	Sign(message []byte) []byte
}

// VerifierSource supplies the SRP salt and verifier for the setup code.
type VerifierSource interface {
	SetupVerifier() (salt, verifier []byte, err error)
}

// Notifier is told when the accessory becomes paired.
type Notifier interface {
	Paired(paired bool)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(paired bool)

// Paired calls f.
func (f NotifierFunc) Paired(paired bool) {
	f(paired)
}

// Deferred is work the transport runs after the response has been
// written.
type Deferred func()

// parseRequest decodes body and extracts its one-byte State. A State
// outside M1..M6 is returned as is; handlers answer it with a TLV error.
func parseRequest(body []byte) (*tlv8.Container, State, error) {
	c, err := tlv8.Decode(body)
	if err != nil {
		return nil, 0, ErrMalformed
	}
	b, ok := c.GetByte(tlv8.TagState)
	if !ok {
		return nil, 0, ErrMalformed
	}
	return c, State(b), nil
}

func stateResponse(state State) *tlv8.Container {
	return tlv8.New().SetByte(tlv8.TagState, byte(state))
}

func errorResponse(state State, code ErrorCode) []byte {
	return stateResponse(state).SetByte(tlv8.TagError, byte(code)).Encode()
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
