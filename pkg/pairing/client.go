package pairing

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"strings"

	"github.com/backkem/hap/pkg/controller"
	"github.com/backkem/hap/pkg/crypto"
	"github.com/backkem/hap/pkg/crypto/srp"
	"github.com/backkem/hap/pkg/tlv8"
	"github.com/google/uuid"
)

// RoundTripper sends one pairing request body to path and returns the
// response body.
type RoundTripper interface {
	RoundTrip(path string, body []byte) ([]byte, error)
}

// RoundTripperFunc adapts a function to RoundTripper.
type RoundTripperFunc func(path string, body []byte) ([]byte, error)

// RoundTrip calls f.
func (f RoundTripperFunc) RoundTrip(path string, body []byte) ([]byte, error) {
	return f(path, body)
}

// ClientConfig configures a controller.
type ClientConfig struct {
	// ID is the controller's pairing identifier. Default: a random
	// uppercase UUID.
	ID string

	// PrivateKey is the controller's long-term key. Default: generated.
	PrivateKey ed25519.PrivateKey

	// Transport carries requests to the accessory. Required.
	Transport RoundTripper

	// Random source. Default: crypto/rand.
	Random io.Reader
}

// AccessoryInfo is what a controller remembers about a paired accessory.
type AccessoryInfo struct {
	ID        string
	PublicKey ed25519.PublicKey
}

// VerifyResult is the outcome of a successful pair-verify.
type VerifyResult struct {
	AccessoryID  string
	SharedSecret []byte
}

// Client is the controller side of pairing.
type Client struct {
	id        string
	pub       ed25519.PublicKey
	priv      ed25519.PrivateKey
	transport RoundTripper
	rand      io.Reader
	accessory *AccessoryInfo
}

// NewClient creates a controller.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Transport == nil {
		return nil, ErrInvalidConfig
	}
	c := &Client{
		id:        config.ID,
		priv:      config.PrivateKey,
		transport: config.Transport,
		rand:      config.Random,
	}
	if c.rand == nil {
		c.rand = rand.Reader
	}
	if c.id == "" {
		c.id = NewControllerID()
	}
	if len(c.id) != controller.IDSize {
		return nil, controller.ErrInvalidID
	}
	if c.priv == nil {
		pub, priv, err := crypto.GenerateSigningKey(c.rand)
		if err != nil {
			return nil, err
		}
		c.pub, c.priv = pub, priv
	} else {
		c.pub = c.priv.Public().(ed25519.PublicKey)
	}
	return c, nil
}

// NewControllerID returns a random 36-byte pairing identifier.
func NewControllerID() string {
	return strings.ToUpper(uuid.NewString())
}

// ID returns the controller's pairing identifier.
func (c *Client) ID() string {
	return c.id
}

// PublicKey returns the controller's long-term public key.
func (c *Client) PublicKey() ed25519.PublicKey {
	return c.pub
}

// Accessory returns the accessory learned by PairSetup or set with
// SetAccessory, or nil.
func (c *Client) Accessory() *AccessoryInfo {
	return c.accessory
}

// SetAccessory records an accessory paired elsewhere, for instance when
// this controller was added by an admin.
func (c *Client) SetAccessory(info AccessoryInfo) {
	c.accessory = &info
}

// SetTransport replaces the transport.
func (c *Client) SetTransport(t RoundTripper) {
	c.transport = t
}

func (c *Client) exchange(path string, req *tlv8.Container, want State) (*tlv8.Container, error) {
	body, err := c.transport.RoundTrip(path, req.Encode())
	if err != nil {
		return nil, err
	}
	resp, err := tlv8.Decode(body)
	if err != nil {
		return nil, ErrUnexpectedResponse
	}
	state, ok := resp.GetByte(tlv8.TagState)
	if !ok || State(state) != want {
		return nil, ErrUnexpectedResponse
	}
	if code, ok := resp.GetByte(tlv8.TagError); ok {
		return nil, &ProtocolError{State: want, Code: ErrorCode(code)}
	}
	return resp, nil
}

// PairSetup pairs with an unpaired accessory using its setup code.
func (c *Client) PairSetup(setupCode string) (*AccessoryInfo, error) {
	m2, err := c.exchange(PathPairSetup, stateResponse(StateM1).
		SetByte(tlv8.TagMethod, byte(MethodPairSetup)), StateM2)
	if err != nil {
		return nil, err
	}
	salt, _ := m2.Get(tlv8.TagSalt)
	B, _ := m2.Get(tlv8.TagPublicKey)

	client := srp.NewClient(setupCode)
	client.SetRandom(c.rand)
	A, err := client.ComputeKey(salt, B)
	if err != nil {
		return nil, ErrUnexpectedResponse
	}

	m4, err := c.exchange(PathPairSetup, stateResponse(StateM3).
		Set(tlv8.TagPublicKey, A).
		Set(tlv8.TagProof, client.Proof()), StateM4)
	if err != nil {
		return nil, err
	}
	proof, _ := m4.Get(tlv8.TagProof)
	if !client.VerifyServerProof(proof) {
		return nil, ErrAccessoryAuthentication
	}

	key := client.SessionKey()
	encKey, err := crypto.PairSetupEncrypt.Derive(key)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(encKey)
	controllerX, err := crypto.PairSetupControllerSign.Derive(key)
	if err != nil {
		return nil, err
	}
	sig := crypto.Sign(c.priv, concat(controllerX, []byte(c.id), c.pub))
	crypto.Zero(controllerX)

	sub := tlv8.New().
		Set(tlv8.TagIdentifier, []byte(c.id)).
		Set(tlv8.TagPublicKey, c.pub).
		Set(tlv8.TagSignature, sig).
		Encode()
	sealed, err := crypto.Seal(encKey, crypto.PairingNonce(crypto.NoncePSMsg05), sub, nil)
	if err != nil {
		return nil, err
	}

	m6, err := c.exchange(PathPairSetup, stateResponse(StateM5).
		Set(tlv8.TagEncryptedData, sealed), StateM6)
	if err != nil {
		return nil, err
	}
	enc, _ := m6.Get(tlv8.TagEncryptedData)
	plain, err := crypto.Open(encKey, crypto.PairingNonce(crypto.NoncePSMsg06), enc, nil)
	if err != nil {
		return nil, ErrAccessoryAuthentication
	}
	accSub, err := tlv8.Decode(plain)
	if err != nil {
		return nil, ErrUnexpectedResponse
	}
	accID, _ := accSub.Get(tlv8.TagIdentifier)
	accPub, _ := accSub.Get(tlv8.TagPublicKey)
	accSig, _ := accSub.Get(tlv8.TagSignature)

	accessoryX, err := crypto.PairSetupAccessorySign.Derive(key)
	if err != nil {
		return nil, err
	}
	ok := crypto.Verify(accPub, concat(accessoryX, accID, accPub), accSig)
	crypto.Zero(accessoryX)
	if !ok {
		return nil, ErrAccessoryAuthentication
	}

	c.accessory = &AccessoryInfo{ID: string(accID), PublicKey: ed25519.PublicKey(accPub)}
	return c.accessory, nil
}

// PairVerify authenticates against a paired accessory. The caller derives
// session keys from the returned shared secret.
func (c *Client) PairVerify() (*VerifyResult, error) {
	if c.accessory == nil {
		return nil, ErrNoAccessory
	}

	ctrlPub, ctrlPriv, err := crypto.GenerateX25519(c.rand)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(ctrlPriv)

	m2, err := c.exchange(PathPairVerify, stateResponse(StateM1).
		Set(tlv8.TagPublicKey, ctrlPub), StateM2)
	if err != nil {
		return nil, err
	}
	accPub, _ := m2.Get(tlv8.TagPublicKey)
	enc, _ := m2.Get(tlv8.TagEncryptedData)

	shared, err := crypto.X25519SharedSecret(ctrlPriv, accPub)
	if err != nil {
		return nil, ErrAccessoryAuthentication
	}
	key, err := crypto.PairVerifyEncrypt.Derive(shared)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(key)

	plain, err := crypto.Open(key, crypto.PairingNonce(crypto.NoncePVMsg02), enc, nil)
	if err != nil {
		return nil, ErrAccessoryAuthentication
	}
	sub, err := tlv8.Decode(plain)
	if err != nil {
		return nil, ErrUnexpectedResponse
	}
	accID, _ := sub.Get(tlv8.TagIdentifier)
	accSig, _ := sub.Get(tlv8.TagSignature)
	if !bytes.Equal(accID, []byte(c.accessory.ID)) {
		return nil, ErrAccessoryAuthentication
	}
	if !crypto.Verify(c.accessory.PublicKey, concat(accPub, accID, ctrlPub), accSig) {
		return nil, ErrAccessoryAuthentication
	}

	sig := crypto.Sign(c.priv, concat(ctrlPub, []byte(c.id), accPub))
	reply := tlv8.New().
		Set(tlv8.TagIdentifier, []byte(c.id)).
		Set(tlv8.TagSignature, sig).
		Encode()
	sealed, err := crypto.Seal(key, crypto.PairingNonce(crypto.NoncePVMsg03), reply, nil)
	if err != nil {
		return nil, err
	}
	if _, err := c.exchange(PathPairVerify, stateResponse(StateM3).
		Set(tlv8.TagEncryptedData, sealed), StateM4); err != nil {
		return nil, err
	}

	return &VerifyResult{AccessoryID: string(accID), SharedSecret: shared}, nil
}

// AddPairing registers another controller. Requires a verified admin
// connection.
func (c *Client) AddPairing(id string, publicKey []byte, admin bool) error {
	perms := PermissionUser
	if admin {
		perms = PermissionAdmin
	}
	_, err := c.exchange(PathPairings, stateResponse(StateM1).
		SetByte(tlv8.TagMethod, byte(MethodAddPairing)).
		Set(tlv8.TagIdentifier, []byte(id)).
		Set(tlv8.TagPublicKey, publicKey).
		SetByte(tlv8.TagPermissions, perms), StateM2)
	return err
}

// RemovePairing removes a controller. Removing this controller's own
// pairing closes its connections once the reply has been sent.
func (c *Client) RemovePairing(id string) error {
	_, err := c.exchange(PathPairings, stateResponse(StateM1).
		SetByte(tlv8.TagMethod, byte(MethodRemovePairing)).
		Set(tlv8.TagIdentifier, []byte(id)), StateM2)
	return err
}

// ListPairings returns the accessory's controllers.
func (c *Client) ListPairings() ([]controller.Controller, error) {
	resp, err := c.exchange(PathPairings, stateResponse(StateM1).
		SetByte(tlv8.TagMethod, byte(MethodListPairings)), StateM2)
	if err != nil {
		return nil, err
	}

	var out []controller.Controller
	for _, g := range resp.Groups() {
		id, ok := g.Get(tlv8.TagIdentifier)
		if !ok {
			continue
		}
		pk, _ := g.Get(tlv8.TagPublicKey)
		perms, _ := g.GetByte(tlv8.TagPermissions)
		out = append(out, controller.Controller{
			ID:        string(id),
			PublicKey: pk,
			Admin:     perms&PermissionAdmin != 0,
		})
	}
	return out, nil
}
