// Package srp implements the SRP6a password-authenticated key exchange used
// by HomeKit pair-setup.
//
// The group is the RFC 5054 3072-bit prime with generator 5 and SHA-512 as
// the hash. The username is fixed to "Pair-Setup" and the password is the
// accessory setup code in "XXX-XX-XXX" form.
//
// Protocol flow:
//
//	Controller                          Accessory
//	    |                                    |
//	    |--------- M1 (start) ------------->|  Server.CreatePublicKey
//	    |<-------- M2 (salt, B) ------------|
//	    |                                    |
//	    |--------- M3 (A, M1) ------------->|  Server.CreateSessionKey
//	    |                                    |  Server.VerifyClientProof
//	    |<-------- M4 (M2) -----------------|  Server.CreateServerProof
//	    |                                    |
//	  both sides now share K (64 bytes)
//
// Secret intermediates are zeroed as soon as the step that needs them
// returns. Call Release once the exchange is over.
package srp

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"io"
	"math/big"
	"sync"

	"github.com/backkem/hap/pkg/crypto"
)

const (
	// Identity is the fixed SRP username.
	Identity = "Pair-Setup"

	// SaltSize is the length of the random salt.
	SaltSize = 16

	// PrivateKeySize is the length of the ephemeral secret exponent.
	PrivateKeySize = 32

	// ProofSize is the length of M1 and M2.
	ProofSize = crypto.SHA512Size

	// SessionKeySize is the length of K.
	SessionKeySize = crypto.SHA512Size
)

var (
	ErrInvalidPublicKey = errors.New("srp: invalid public key")
	ErrInvalidSalt      = errors.New("srp: invalid salt")
	ErrInvalidVerifier  = errors.New("srp: invalid verifier")
	ErrInvalidState     = errors.New("srp: invalid state")
	ErrProofNotVerified = errors.New("srp: client proof not verified")
)

type serverState int

const (
	serverInit serverState = iota
	serverPublicKey
	serverSessionKey
	serverVerified
	serverReleased
)

// CreateVerifier returns v = g^x mod N padded to GroupSize bytes.
func CreateVerifier(password string, salt []byte) []byte {
	x := computeX(password, salt)
	v := new(big.Int).Exp(groupG, x, groupN)
	defer zeroInt(x, v)
	return pad(v)
}

// NewVerifier draws a fresh salt from r and returns it with the matching
// verifier. A nil reader uses crypto/rand.
func NewVerifier(r io.Reader, password string) (salt, verifier []byte, err error) {
	if r == nil {
		r = rand.Reader
	}
	salt = make([]byte, SaltSize)
	if _, err := io.ReadFull(r, salt); err != nil {
		return nil, nil, err
	}
	return salt, CreateVerifier(password, salt), nil
}

// Server is the accessory side of one SRP exchange.
type Server struct {
	mu    sync.Mutex
	rand  io.Reader
	state serverState

	salt []byte
	v    *big.Int
	b    *big.Int
	pubB *big.Int
	pubA *big.Int
	key  []byte
	m1   []byte
}

// NewServer prepares an exchange for the stored salt and verifier.
func NewServer(salt, verifier []byte) (*Server, error) {
	if len(salt) != SaltSize {
		return nil, ErrInvalidSalt
	}
	if len(verifier) == 0 || len(verifier) > GroupSize {
		return nil, ErrInvalidVerifier
	}
	s := &Server{
		rand: rand.Reader,
		salt: append([]byte(nil), salt...),
		v:    new(big.Int).SetBytes(verifier),
	}
	return s, nil
}

// SetRandom replaces the random source. Only for tests.
func (s *Server) SetRandom(r io.Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rand = r
}

// Salt returns the salt the server was built with.
func (s *Server) Salt() []byte {
	return s.salt
}

// CreatePublicKey generates b and returns B = (k*v + g^b) mod N, padded.
func (s *Server) CreatePublicKey() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != serverInit {
		return nil, ErrInvalidState
	}

	buf := make([]byte, PrivateKeySize)
	defer crypto.Zero(buf)
	if _, err := io.ReadFull(s.rand, buf); err != nil {
		return nil, err
	}
	s.b = new(big.Int).SetBytes(buf)

	kv := new(big.Int).Mul(multiplier, s.v)
	gb := new(big.Int).Exp(groupG, s.b, groupN)
	defer zeroInt(kv, gb)

	s.pubB = new(big.Int).Add(kv, gb)
	s.pubB.Mod(s.pubB, groupN)

	s.state = serverPublicKey
	return pad(s.pubB), nil
}

// CreateSessionKey consumes the client public key A and derives K.
func (s *Server) CreateSessionKey(A []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != serverPublicKey {
		return ErrInvalidState
	}
	if len(A) == 0 || len(A) > GroupSize {
		return ErrInvalidPublicKey
	}

	a := new(big.Int).SetBytes(A)
	check := new(big.Int).Mod(a, groupN)
	if check.Sign() == 0 {
		return ErrInvalidPublicKey
	}

	uh := hash(pad(a), pad(s.pubB))
	defer crypto.Zero(uh)
	u := new(big.Int).SetBytes(uh)

	vu := new(big.Int).Exp(s.v, u, groupN)
	avu := new(big.Int).Mul(a, vu)
	avu.Mod(avu, groupN)
	S := new(big.Int).Exp(avu, s.b, groupN)
	defer zeroInt(u, vu, avu, S, check)

	sBytes := pad(S)
	defer crypto.Zero(sBytes)

	s.pubA = a
	s.key = hash(sBytes)
	s.state = serverSessionKey
	return nil
}

// VerifyClientProof checks M1 in constant time. A failed check leaves the
// server unusable.
func (s *Server) VerifyClientProof(m1 []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != serverSessionKey {
		return false
	}
	expected := clientProof(s.salt, s.pubA, s.pubB, s.key)
	if len(m1) != len(expected) || subtle.ConstantTimeCompare(expected, m1) != 1 {
		crypto.Zero(expected)
		s.release()
		return false
	}
	s.m1 = expected
	s.state = serverVerified
	return true
}

// CreateServerProof returns M2 = H(PAD(A) || M1 || K).
func (s *Server) CreateServerProof() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != serverVerified {
		return nil, ErrProofNotVerified
	}
	return serverProof(s.pubA, s.m1, s.key), nil
}

// SessionKey returns a copy of K once the client proof has been verified.
func (s *Server) SessionKey() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != serverVerified {
		return nil, ErrProofNotVerified
	}
	return append([]byte(nil), s.key...), nil
}

// Release zeroes every secret the server holds.
func (s *Server) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release()
}

func (s *Server) release() {
	zeroInt(s.b, s.v, s.pubA, s.pubB)
	crypto.Zero(s.key)
	crypto.Zero(s.m1)
	s.b, s.pubA, s.pubB, s.key, s.m1 = nil, nil, nil, nil, nil
	s.state = serverReleased
}
