package session

import (
	"sync"
	"time"

	"github.com/backkem/hap/pkg/crypto"
)

// VerifyState is the ephemeral material of a pair-verify exchange that is
// in flight on a connection.
type VerifyState struct {
	AccessoryPublic  []byte // X25519, 32 bytes
	AccessoryPrivate []byte // X25519, 32 bytes
	ControllerPublic []byte // X25519, 32 bytes
	SharedSecret     []byte
	SessionKey       []byte // Pair-Verify-Encrypt key
}

// Zero wipes every field.
func (v *VerifyState) Zero() {
	if v == nil {
		return
	}
	crypto.Zero(v.AccessoryPublic)
	crypto.Zero(v.AccessoryPrivate)
	crypto.Zero(v.ControllerPublic)
	crypto.Zero(v.SharedSecret)
	crypto.Zero(v.SessionKey)
	*v = VerifyState{}
}

// Session is the security context of one network connection.
//
// Before Establish it carries plaintext pairing traffic only. Establish
// binds it to a verified controller and switches it to framed encryption.
type Session struct {
	id     uint64
	remote string
	role   Role

	verified     bool
	controllerID string
	admin        bool

	readKey    []byte
	writeKey   []byte
	readNonce  Nonce
	writeNonce Nonce

	verify *VerifyState

	created time.Time
	closed  bool
	onClose func()

	mu sync.Mutex
}

// Config describes a new session.
type Config struct {
	ID     uint64
	Remote string
	Role   Role

	// OnClose runs once when the session is closed, typically to drop the
	// underlying connection.
	OnClose func()
}

// New creates a plaintext session.
func New(config Config) (*Session, error) {
	if !config.Role.IsValid() {
		return nil, ErrInvalidRole
	}
	return &Session{
		id:      config.ID,
		remote:  config.Remote,
		role:    config.Role,
		onClose: config.OnClose,
		created: time.Now(),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() uint64 {
	return s.id
}

// Remote returns the peer address.
func (s *Session) Remote() string {
	return s.remote
}

// Role returns the session role.
func (s *Session) Role() Role {
	return s.role
}

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time {
	return s.created
}

// Establish derives the directional keys from the pair-verify shared
// secret, zeroes both nonces and binds the session to the controller.
func (s *Session) Establish(controllerID string, admin bool, sharedSecret []byte) error {
	accessoryToController, err := crypto.ControlRead.Derive(sharedSecret)
	if err != nil {
		return err
	}
	controllerToAccessory, err := crypto.ControlWrite.Derive(sharedSecret)
	if err != nil {
		crypto.Zero(accessoryToController)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		crypto.Zero(accessoryToController)
		crypto.Zero(controllerToAccessory)
		return ErrClosed
	}

	crypto.Zero(s.readKey)
	crypto.Zero(s.writeKey)
	if s.role == RoleAccessory {
		s.readKey, s.writeKey = controllerToAccessory, accessoryToController
	} else {
		s.readKey, s.writeKey = accessoryToController, controllerToAccessory
	}
	s.readNonce.Reset()
	s.writeNonce.Reset()
	s.controllerID = controllerID
	s.admin = admin
	s.verified = true
	return nil
}

// IsVerified reports whether pair-verify completed on this session.
func (s *Session) IsVerified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verified
}

// IsAdmin reports whether the verified controller had admin permission
// when the session was established.
func (s *Session) IsAdmin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verified && s.admin
}

// ControllerID returns the verified controller identifier, or "" if the
// session is not verified.
func (s *Session) ControllerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.verified {
		return ""
	}
	return s.controllerID
}

// SetVerifyState replaces the pending pair-verify material. The previous
// state, if any, is zeroed.
func (s *Session) SetVerifyState(v *VerifyState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verify != nil && s.verify != v {
		s.verify.Zero()
	}
	s.verify = v
}

// VerifyState returns the pending pair-verify material, or nil.
func (s *Session) VerifyState() *VerifyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verify
}

// ClearVerifyState zeroes and drops the pending pair-verify material.
func (s *Session) ClearVerifyState() {
	s.SetVerifyState(nil)
}

// Clear zeroes all secrets and returns the session to plaintext.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
}

func (s *Session) clear() {
	crypto.Zero(s.readKey)
	crypto.Zero(s.writeKey)
	s.readKey, s.writeKey = nil, nil
	s.readNonce.Reset()
	s.writeNonce.Reset()
	s.verify.Zero()
	s.verify = nil
	s.verified = false
	s.controllerID = ""
	s.admin = false
}

// Close clears the session and runs the OnClose hook. Later calls do
// nothing.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.clear()
	hook := s.onClose
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// IsClosed reports whether Close has been called.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
