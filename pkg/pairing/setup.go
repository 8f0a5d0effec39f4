package pairing

import (
	"crypto/rand"
	"errors"
	"io"
	"sync"

	"github.com/backkem/hap/pkg/controller"
	"github.com/backkem/hap/pkg/crypto"
	"github.com/backkem/hap/pkg/crypto/srp"
	"github.com/backkem/hap/pkg/session"
	"github.com/backkem/hap/pkg/tlv8"
	"github.com/pion/logging"
)

// SetupConfig configures the pair-setup handler.
type SetupConfig struct {
	Identity Identity
	Verifier VerifierSource
	Registry Registry

	// Notifier is told when pair-setup completes. Optional.
	Notifier Notifier

	// Random source for SRP. Default: crypto/rand.
	Random io.Reader

	// LoggerFactory for creating loggers. Optional.
	LoggerFactory logging.LoggerFactory
}

// Setup runs pair-setup. Only one attempt may be pending at a time: the
// first connection whose M1 is accepted owns the attempt until it
// completes, fails or the connection goes away. Other connections are
// answered with Busy meanwhile.
type Setup struct {
	mu sync.Mutex

	identity Identity
	verifier VerifierSource
	registry Registry
	notifier Notifier
	rand     io.Reader
	log      logging.LeveledLogger

	owner  *session.Session
	expect State
	srp    *srp.Server
	key    []byte // SRP session key K
	encKey []byte // Pair-Setup-Encrypt key
}

// NewSetup creates a pair-setup handler.
func NewSetup(config SetupConfig) (*Setup, error) {
	if config.Identity == nil || config.Verifier == nil || config.Registry == nil {
		return nil, ErrInvalidConfig
	}
	s := &Setup{
		identity: config.Identity,
		verifier: config.Verifier,
		registry: config.Registry,
		notifier: config.Notifier,
		rand:     config.Random,
		expect:   StateM1,
	}
	if s.rand == nil {
		s.rand = rand.Reader
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("pairing")
	}
	return s, nil
}

// SetRandom replaces the random source. Only for tests.
func (s *Setup) SetRandom(r io.Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rand = r
}

// InProgress reports whether an attempt is pending.
func (s *Setup) InProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner != nil
}

// Release abandons the pending attempt if conn owns it. Call when a
// connection closes.
func (s *Setup) Release(conn *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != nil && s.owner == conn {
		if s.log != nil {
			s.log.Debugf("pair-setup owner %d went away", conn.ID())
		}
		s.reset()
	}
}

// Handle processes one pair-setup request from conn and returns the TLV
// response.
func (s *Setup) Handle(conn *session.Session, body []byte) ([]byte, error) {
	req, state, err := parseRequest(body)
	if err != nil {
		return nil, err
	}

	resp, paired := s.handle(conn, req, state)
	if paired && s.notifier != nil {
		s.notifier.Paired(true)
	}
	return resp, nil
}

func (s *Setup) handle(conn *session.Session, req *tlv8.Container, state State) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.log != nil {
		s.log.Tracef("pair-setup %s from %d: %s", state, conn.ID(), req)
	}

	if s.registry.CountAdmins() > 0 {
		return s.fail(state, ErrorUnavailable, "already paired", false), false
	}
	if s.owner != nil && s.owner != conn {
		return s.fail(state, ErrorBusy, "attempt owned by another connection", false), false
	}
	if state != s.expect {
		// Answered at the reply number of the message that was due.
		return s.fail(s.expect, ErrorUnknown, "got "+state.String(), true), false
	}

	switch state {
	case StateM1:
		return s.handleM1(conn, req), false
	case StateM3:
		return s.handleM3(req), false
	default:
		return s.handleM5(req)
	}
}

// fail builds an error response, optionally abandoning the attempt.
// Caller holds s.mu.
func (s *Setup) fail(state State, code ErrorCode, reason string, reset bool) []byte {
	if s.log != nil {
		s.log.Warnf("pair-setup %s rejected (%s): %s", state, code, reason)
	}
	if reset {
		s.reset()
	}
	return errorResponse(state.Next(), code)
}

func (s *Setup) handleM1(conn *session.Session, req *tlv8.Container) []byte {
	method, ok := req.GetByte(tlv8.TagMethod)
	if !ok || Method(method) != MethodPairSetup {
		return s.fail(StateM1, ErrorUnavailable, "unsupported method", true)
	}

	salt, verifier, err := s.verifier.SetupVerifier()
	if err != nil {
		if s.log != nil {
			s.log.Errorf("load setup verifier: %v", err)
		}
		return s.fail(StateM1, ErrorUnknown, "no verifier", true)
	}
	server, err := srp.NewServer(salt, verifier)
	if err != nil {
		return s.fail(StateM1, ErrorUnknown, err.Error(), true)
	}
	server.SetRandom(s.rand)
	B, err := server.CreatePublicKey()
	if err != nil {
		server.Release()
		return s.fail(StateM1, ErrorUnknown, err.Error(), true)
	}

	s.owner = conn
	s.srp = server
	s.expect = StateM3
	if s.log != nil {
		s.log.Debugf("pair-setup started by connection %d", conn.ID())
	}

	return stateResponse(StateM2).
		Set(tlv8.TagPublicKey, B).
		Set(tlv8.TagSalt, salt).
		Encode()
}

func (s *Setup) handleM3(req *tlv8.Container) []byte {
	A, okA := req.Get(tlv8.TagPublicKey)
	proof, okP := req.Get(tlv8.TagProof)
	if !okA || !okP {
		return s.fail(StateM3, ErrorUnknown, "missing public key or proof", true)
	}

	if err := s.srp.CreateSessionKey(A); err != nil {
		return s.fail(StateM3, ErrorAuthentication, err.Error(), true)
	}
	if !s.srp.VerifyClientProof(proof) {
		return s.fail(StateM3, ErrorAuthentication, "bad setup code", true)
	}
	m2, err := s.srp.CreateServerProof()
	if err != nil {
		return s.fail(StateM3, ErrorUnknown, err.Error(), true)
	}
	key, err := s.srp.SessionKey()
	if err != nil {
		return s.fail(StateM3, ErrorUnknown, err.Error(), true)
	}
	encKey, err := crypto.PairSetupEncrypt.Derive(key)
	if err != nil {
		crypto.Zero(key)
		return s.fail(StateM3, ErrorUnknown, err.Error(), true)
	}

	s.srp.Release()
	s.srp = nil
	s.key = key
	s.encKey = encKey
	s.expect = StateM5

	return stateResponse(StateM4).Set(tlv8.TagProof, m2).Encode()
}

func (s *Setup) handleM5(req *tlv8.Container) ([]byte, bool) {
	enc, ok := req.Get(tlv8.TagEncryptedData)
	if !ok {
		return s.fail(StateM5, ErrorUnknown, "missing encrypted data", true), false
	}
	plain, err := crypto.Open(s.encKey, crypto.PairingNonce(crypto.NoncePSMsg05), enc, nil)
	if err != nil {
		return s.fail(StateM5, ErrorAuthentication, "decrypt M5", true), false
	}
	sub, err := tlv8.Decode(plain)
	crypto.Zero(plain)
	if err != nil {
		return s.fail(StateM5, ErrorUnknown, "decode M5 sub-TLV", true), false
	}

	id, _ := sub.Get(tlv8.TagIdentifier)
	ltpk, _ := sub.Get(tlv8.TagPublicKey)
	sig, _ := sub.Get(tlv8.TagSignature)
	if len(id) != controller.IDSize || len(ltpk) != controller.PublicKeySize || len(sig) != crypto.SignatureSize {
		return s.fail(StateM5, ErrorUnknown, "bad controller credentials", true), false
	}

	controllerX, err := crypto.PairSetupControllerSign.Derive(s.key)
	if err != nil {
		return s.fail(StateM5, ErrorUnknown, err.Error(), true), false
	}
	info := concat(controllerX, id, ltpk)
	crypto.Zero(controllerX)
	if !crypto.Verify(ltpk, info, sig) {
		return s.fail(StateM5, ErrorAuthentication, "controller signature", true), false
	}

	if err := s.registry.Add(string(id), ltpk, true); err != nil {
		code := ErrorUnknown
		if errors.Is(err, controller.ErrTableFull) {
			code = ErrorMaxPeers
		}
		return s.fail(StateM5, code, err.Error(), true), false
	}

	accessoryX, err := crypto.PairSetupAccessorySign.Derive(s.key)
	if err != nil {
		return s.fail(StateM5, ErrorUnknown, err.Error(), true), false
	}
	accID := []byte(s.identity.DeviceID())
	accPub := s.identity.PublicKey()
	accInfo := concat(accessoryX, accID, accPub)
	crypto.Zero(accessoryX)

	reply := tlv8.New().
		Set(tlv8.TagIdentifier, accID).
		Set(tlv8.TagPublicKey, accPub).
		Set(tlv8.TagSignature, s.identity.Sign(accInfo)).
		Encode()
	sealed, err := crypto.Seal(s.encKey, crypto.PairingNonce(crypto.NoncePSMsg06), reply, nil)
	crypto.Zero(reply)
	if err != nil {
		return s.fail(StateM5, ErrorUnknown, err.Error(), true), false
	}

	if s.log != nil {
		s.log.Infof("paired with controller %s", id)
	}
	s.reset()

	return stateResponse(StateM6).Set(tlv8.TagEncryptedData, sealed).Encode(), true
}

// reset abandons the attempt and wipes its secrets. Caller holds s.mu.
func (s *Setup) reset() {
	if s.srp != nil {
		s.srp.Release()
		s.srp = nil
	}
	crypto.Zero(s.key)
	crypto.Zero(s.encKey)
	s.key, s.encKey = nil, nil
	s.owner = nil
	s.expect = StateM1
}
