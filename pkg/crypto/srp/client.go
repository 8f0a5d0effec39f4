package srp

import (
	"crypto/rand"
	"crypto/subtle"
	"io"
	"math/big"

	"github.com/backkem/hap/pkg/crypto"
)

// Client is the controller side of an SRP exchange.
type Client struct {
	rand     io.Reader
	password string

	salt []byte
	pubA *big.Int
	pubB *big.Int
	key  []byte
	m1   []byte
}

// NewClient returns a client for the given setup code.
func NewClient(password string) *Client {
	return &Client{rand: rand.Reader, password: password}
}

// SetRandom replaces the random source. Only for tests.
func (c *Client) SetRandom(r io.Reader) {
	c.rand = r
}

// ComputeKey consumes the server's salt and B, derives K and M1, and
// returns the padded client public key A.
func (c *Client) ComputeKey(salt, B []byte) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, ErrInvalidSalt
	}
	if len(B) == 0 || len(B) > GroupSize {
		return nil, ErrInvalidPublicKey
	}
	bPub := new(big.Int).SetBytes(B)
	if new(big.Int).Mod(bPub, groupN).Sign() == 0 {
		return nil, ErrInvalidPublicKey
	}

	buf := make([]byte, PrivateKeySize)
	defer crypto.Zero(buf)
	if _, err := io.ReadFull(c.rand, buf); err != nil {
		return nil, err
	}
	a := new(big.Int).SetBytes(buf)
	A := new(big.Int).Exp(groupG, a, groupN)

	uh := hash(pad(A), pad(bPub))
	u := new(big.Int).SetBytes(uh)
	x := computeX(c.password, salt)

	// S = (B - k*g^x) ^ (a + u*x) mod N
	gx := new(big.Int).Exp(groupG, x, groupN)
	kgx := new(big.Int).Mul(multiplier, gx)
	base := new(big.Int).Sub(bPub, kgx)
	base.Mod(base, groupN)
	exp := new(big.Int).Mul(u, x)
	exp.Add(exp, a)
	S := new(big.Int).Exp(base, exp, groupN)
	defer zeroInt(a, u, x, gx, kgx, base, exp, S)

	sBytes := pad(S)
	defer crypto.Zero(sBytes)

	c.salt = append([]byte(nil), salt...)
	c.pubA = A
	c.pubB = bPub
	c.key = hash(sBytes)
	c.m1 = clientProof(c.salt, A, bPub, c.key)
	return pad(A), nil
}

// Proof returns M1.
func (c *Client) Proof() []byte {
	return c.m1
}

// VerifyServerProof checks M2 in constant time.
func (c *Client) VerifyServerProof(m2 []byte) bool {
	if c.key == nil {
		return false
	}
	expected := serverProof(c.pubA, c.m1, c.key)
	return len(m2) == len(expected) && subtle.ConstantTimeCompare(expected, m2) == 1
}

// SessionKey returns K.
func (c *Client) SessionKey() []byte {
	return c.key
}
