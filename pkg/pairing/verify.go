package pairing

import (
	"crypto/rand"
	"io"

	"github.com/backkem/hap/pkg/controller"
	"github.com/backkem/hap/pkg/crypto"
	"github.com/backkem/hap/pkg/session"
	"github.com/backkem/hap/pkg/tlv8"
	"github.com/pion/logging"
)

// VerifyConfig configures the pair-verify handler.
type VerifyConfig struct {
	Identity Identity
	Registry Registry

	// Random source for ephemeral keys. Default: crypto/rand.
	Random io.Reader

	// LoggerFactory for creating loggers. Optional.
	LoggerFactory logging.LoggerFactory
}

// Verify runs pair-verify. Its state lives on each connection's session,
// so any number of connections may verify concurrently.
type Verify struct {
	identity Identity
	registry Registry
	rand     io.Reader
	log      logging.LeveledLogger
}

// NewVerify creates a pair-verify handler.
func NewVerify(config VerifyConfig) (*Verify, error) {
	if config.Identity == nil || config.Registry == nil {
		return nil, ErrInvalidConfig
	}
	v := &Verify{
		identity: config.Identity,
		registry: config.Registry,
		rand:     config.Random,
	}
	if v.rand == nil {
		v.rand = rand.Reader
	}
	if config.LoggerFactory != nil {
		v.log = config.LoggerFactory.NewLogger("pairing")
	}
	return v, nil
}

// Handle processes one pair-verify request. After a successful M3 the
// session is established; the M4 reply is still sent in plaintext.
func (v *Verify) Handle(sess *session.Session, body []byte) ([]byte, error) {
	req, state, err := parseRequest(body)
	if err != nil {
		return nil, err
	}
	if v.log != nil {
		v.log.Tracef("pair-verify %s from %d: %s", state, sess.ID(), req)
	}

	if v.registry.CountAdmins() == 0 {
		return v.fail(sess, state, ErrorUnknown, "not paired"), nil
	}

	switch state {
	case StateM1:
		return v.handleM1(sess, req), nil
	case StateM3:
		return v.handleM3(sess, req), nil
	default:
		return v.fail(sess, state, ErrorUnknown, "unexpected state"), nil
	}
}

func (v *Verify) fail(sess *session.Session, state State, code ErrorCode, reason string) []byte {
	if v.log != nil {
		v.log.Warnf("pair-verify %s from %d rejected (%s): %s", state, sess.ID(), code, reason)
	}
	sess.ClearVerifyState()
	return errorResponse(state.Next(), code)
}

func (v *Verify) handleM1(sess *session.Session, req *tlv8.Container) []byte {
	ctrlPub, _ := req.Get(tlv8.TagPublicKey)
	if len(ctrlPub) != crypto.X25519KeySize {
		return v.fail(sess, StateM1, ErrorUnknown, "bad controller public key")
	}

	accPub, accPriv, err := crypto.GenerateX25519(v.rand)
	if err != nil {
		return v.fail(sess, StateM1, ErrorUnknown, err.Error())
	}
	state := &session.VerifyState{
		AccessoryPublic:  accPub,
		AccessoryPrivate: accPriv,
		ControllerPublic: append([]byte(nil), ctrlPub...),
	}
	state.SharedSecret, err = crypto.X25519SharedSecret(accPriv, ctrlPub)
	if err != nil {
		state.Zero()
		return v.fail(sess, StateM1, ErrorUnknown, err.Error())
	}
	state.SessionKey, err = crypto.PairVerifyEncrypt.Derive(state.SharedSecret)
	if err != nil {
		state.Zero()
		return v.fail(sess, StateM1, ErrorUnknown, err.Error())
	}

	accID := []byte(v.identity.DeviceID())
	sig := v.identity.Sign(concat(accPub, accID, ctrlPub))
	sub := tlv8.New().
		Set(tlv8.TagIdentifier, accID).
		Set(tlv8.TagSignature, sig).
		Encode()
	sealed, err := crypto.Seal(state.SessionKey, crypto.PairingNonce(crypto.NoncePVMsg02), sub, nil)
	if err != nil {
		state.Zero()
		return v.fail(sess, StateM1, ErrorUnknown, err.Error())
	}

	sess.SetVerifyState(state)
	return stateResponse(StateM2).
		Set(tlv8.TagPublicKey, accPub).
		Set(tlv8.TagEncryptedData, sealed).
		Encode()
}

func (v *Verify) handleM3(sess *session.Session, req *tlv8.Container) []byte {
	state := sess.VerifyState()
	if state == nil {
		return v.fail(sess, StateM3, ErrorUnknown, "M3 without M1")
	}

	enc, ok := req.Get(tlv8.TagEncryptedData)
	if !ok {
		return v.fail(sess, StateM3, ErrorUnknown, "missing encrypted data")
	}
	plain, err := crypto.Open(state.SessionKey, crypto.PairingNonce(crypto.NoncePVMsg03), enc, nil)
	if err != nil {
		return v.fail(sess, StateM3, ErrorAuthentication, "decrypt M3")
	}
	sub, err := tlv8.Decode(plain)
	if err != nil {
		return v.fail(sess, StateM3, ErrorUnknown, "decode M3 sub-TLV")
	}

	id, _ := sub.Get(tlv8.TagIdentifier)
	sig, _ := sub.Get(tlv8.TagSignature)
	if len(id) != controller.IDSize || len(sig) != crypto.SignatureSize {
		return v.fail(sess, StateM3, ErrorUnknown, "bad controller credentials")
	}

	ctrl, found := v.registry.Find(string(id))
	if !found {
		return v.fail(sess, StateM3, ErrorAuthentication, "unknown controller")
	}
	info := concat(state.ControllerPublic, id, state.AccessoryPublic)
	if !crypto.Verify(ctrl.PublicKey, info, sig) {
		return v.fail(sess, StateM3, ErrorAuthentication, "controller signature")
	}

	if err := sess.Establish(ctrl.ID, ctrl.Admin, state.SharedSecret); err != nil {
		return v.fail(sess, StateM3, ErrorUnknown, err.Error())
	}
	sess.ClearVerifyState()

	if v.log != nil {
		v.log.Infof("connection %d verified as %s", sess.ID(), ctrl)
	}
	return stateResponse(StateM4).Encode()
}
