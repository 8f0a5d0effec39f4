package srp

import (
	"math/big"
	"strings"

	"github.com/backkem/hap/pkg/crypto"
)

// Group parameters: the RFC 5054 3072-bit safe prime with generator 5.
const (
	// GroupSize is the byte length of N; PAD() widens values to this size.
	GroupSize = 384

	// Generator is g.
	Generator = 5
)

var groupN = mustHex(strings.Join([]string{
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74",
	"020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F1437",
	"4FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED",
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF05",
	"98DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB",
	"9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B",
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF695581718",
	"3995497CEA956AE515D2261898FA051015728E5A8AAAC42DAD33170D04507A33",
	"A85521ABDF1CBA64ECFB850458DBEF0A8AEA71575D060C7DB3970F85A6E1E4C7",
	"ABF5AE8CDB0933D71E8C94E04A25619DCEE3D2261AD2EE6BF12FFA06D98A0864",
	"D87602733EC86A64521F2B18177B200CBBE117577A615D6C770988C0BAD946E2",
	"08E24FA074E5AB3143DB5BFCE0FD108E4B82D120A93AD2CAFFFFFFFFFFFFFFFF",
}, ""))

var groupG = big.NewInt(Generator)

// multiplier is k = H(N || PAD(g)).
var multiplier = new(big.Int).SetBytes(hash(pad(groupN), pad(groupG)))

// proofPrefix is H(N) xor H(g). H(g) hashes the single generator byte.
var proofPrefix = func() []byte {
	hN := hash(pad(groupN))
	hg := hash([]byte{Generator})
	out := make([]byte, len(hN))
	for i := range out {
		out[i] = hN[i] ^ hg[i]
	}
	return out
}()

// identityHash is H(I).
var identityHash = hash([]byte(Identity))

func mustHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("srp: bad group constant")
	}
	return n
}

func hash(parts ...[]byte) []byte {
	h := crypto.NewSHA512()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// pad writes x big-endian into GroupSize bytes.
func pad(x *big.Int) []byte {
	b := make([]byte, GroupSize)
	return x.FillBytes(b)
}

// zeroInt wipes the words backing x before resetting it.
func zeroInt(xs ...*big.Int) {
	for _, x := range xs {
		if x == nil {
			continue
		}
		words := x.Bits()
		for i := range words {
			words[i] = 0
		}
		x.SetInt64(0)
	}
}

// computeX returns x = H(s || H(I ":" P)).
func computeX(password string, salt []byte) *big.Int {
	inner := hash([]byte(Identity), []byte(":"), []byte(password))
	defer crypto.Zero(inner)
	outer := hash(salt, inner)
	defer crypto.Zero(outer)
	return new(big.Int).SetBytes(outer)
}

// clientProof computes M1 = H(H(N) xor H(g) || H(I) || s || A || B || K)
// with A and B in their minimal encoding.
func clientProof(salt []byte, A, B *big.Int, K []byte) []byte {
	return hash(proofPrefix, identityHash, salt, A.Bytes(), B.Bytes(), K)
}

// serverProof computes M2 = H(PAD(A) || M1 || K).
func serverProof(A *big.Int, m1, K []byte) []byte {
	return hash(pad(A), m1, K)
}
