package pairing

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/backkem/hap/pkg/controller"
	"github.com/backkem/hap/pkg/crypto/srp"
	"github.com/backkem/hap/pkg/session"
	"github.com/backkem/hap/pkg/storage"
	"github.com/backkem/hap/pkg/tlv8"
)

const testSetupCode = "031-45-154"

type testIdentity struct {
	id   string
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newTestIdentity(t *testing.T) *testIdentity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	return &testIdentity{id: "1A:2B:3C:4D:5E:6F", pub: pub, priv: priv}
}

func (i *testIdentity) DeviceID() string             { return i.id }
func (i *testIdentity) PublicKey() ed25519.PublicKey { return i.pub }
func (i *testIdentity) Sign(m []byte) []byte         { return ed25519.Sign(i.priv, m) }

type testVerifier struct {
	salt, verifier []byte
	err            error
}

func (v *testVerifier) SetupVerifier() ([]byte, []byte, error) {
	return v.salt, v.verifier, v.err
}

// accessory wires the three handlers to a registry and connection table
// the way the accessory package does.
type accessory struct {
	t        *testing.T
	identity *testIdentity
	store    *storage.MemoryStore
	registry *controller.Registry
	table    *session.Table
	setup    *Setup
	verify   *Verify
	pairings *Pairings
	paired   []bool
}

func newAccessory(t *testing.T, maxControllers int) *accessory {
	t.Helper()
	a := &accessory{
		t:        t,
		identity: newTestIdentity(t),
		store:    storage.NewMemoryStore(),
		table:    session.NewTable(16),
	}

	reg, err := controller.NewRegistry(controller.Config{
		MaxControllers: maxControllers,
		Store:          a.store,
		TearDown:       func(id string) { a.table.TearDown(id) },
		OnUnpaired:     func() { a.paired = append(a.paired, false) },
	})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	a.registry = reg

	salt, v, err := srp.NewVerifier(nil, testSetupCode)
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}
	a.setup, err = NewSetup(SetupConfig{
		Identity: a.identity,
		Verifier: &testVerifier{salt: salt, verifier: v},
		Registry: reg,
		Notifier: NotifierFunc(func(p bool) { a.paired = append(a.paired, p) }),
	})
	if err != nil {
		t.Fatalf("NewSetup failed: %v", err)
	}
	a.verify, err = NewVerify(VerifyConfig{Identity: a.identity, Registry: reg})
	if err != nil {
		t.Fatalf("NewVerify failed: %v", err)
	}
	a.pairings, err = NewPairings(PairingsConfig{Registry: reg})
	if err != nil {
		t.Fatalf("NewPairings failed: %v", err)
	}
	return a
}

func (a *accessory) open() *session.Session {
	a.t.Helper()
	s, err := a.table.Open("test", nil)
	if err != nil {
		a.t.Fatalf("Open failed: %v", err)
	}
	return s
}

func (a *accessory) handle(sess *session.Session, path string, body []byte) ([]byte, error) {
	switch path {
	case PathPairSetup:
		return a.setup.Handle(sess, body)
	case PathPairVerify:
		return a.verify.Handle(sess, body)
	case PathPairings:
		resp, deferred, err := a.pairings.Handle(sess, body)
		if deferred != nil {
			defer deferred()
		}
		return resp, err
	}
	return nil, errors.New("unknown path")
}

// transport binds a client to one accessory-side session.
func (a *accessory) transport(sess *session.Session) RoundTripper {
	return RoundTripperFunc(func(path string, body []byte) ([]byte, error) {
		return a.handle(sess, path, body)
	})
}

func (a *accessory) newClient(sess *session.Session) *Client {
	a.t.Helper()
	c, err := NewClient(ClientConfig{Transport: a.transport(sess)})
	if err != nil {
		a.t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

// pairedAdmin runs pair-setup and pair-verify and returns the verified
// client and its session.
func (a *accessory) pairedAdmin() (*Client, *session.Session) {
	a.t.Helper()
	sess := a.open()
	c := a.newClient(sess)
	if _, err := c.PairSetup(testSetupCode); err != nil {
		a.t.Fatalf("PairSetup failed: %v", err)
	}
	if _, err := c.PairVerify(); err != nil {
		a.t.Fatalf("PairVerify failed: %v", err)
	}
	return c, sess
}

func decodeResponse(t *testing.T, body []byte) (State, ErrorCode, *tlv8.Container) {
	t.Helper()
	c, err := tlv8.Decode(body)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	state, ok := c.GetByte(tlv8.TagState)
	if !ok {
		t.Fatal("response has no State")
	}
	code, _ := c.GetByte(tlv8.TagError)
	return State(state), ErrorCode(code), c
}

func expectError(t *testing.T, body []byte, wantState State, wantCode ErrorCode) {
	t.Helper()
	state, code, _ := decodeResponse(t, body)
	if state != wantState || code != wantCode {
		t.Errorf("expected %s/%s, got %s/%s", wantState, wantCode, state, code)
	}
}

func m1Body() []byte {
	return tlv8.New().SetByte(tlv8.TagState, 1).SetByte(tlv8.TagMethod, 0).Encode()
}
