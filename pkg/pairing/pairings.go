package pairing

import (
	"errors"

	"github.com/backkem/hap/pkg/controller"
	"github.com/backkem/hap/pkg/session"
	"github.com/backkem/hap/pkg/tlv8"
	"github.com/pion/logging"
)

// PairingsConfig configures the pairings management handler.
type PairingsConfig struct {
	Registry Registry

	// LoggerFactory for creating loggers. Optional.
	LoggerFactory logging.LoggerFactory
}

// Pairings handles add, remove and list requests from admin controllers.
type Pairings struct {
	registry Registry
	log      logging.LeveledLogger
}

// NewPairings creates a pairings handler.
func NewPairings(config PairingsConfig) (*Pairings, error) {
	if config.Registry == nil {
		return nil, ErrInvalidConfig
	}
	p := &Pairings{registry: config.Registry}
	if config.LoggerFactory != nil {
		p.log = config.LoggerFactory.NewLogger("pairing")
	}
	return p, nil
}

// Handle processes one pairings request on a verified session. The
// returned Deferred, if not nil, must run after the response is written.
func (p *Pairings) Handle(sess *session.Session, body []byte) ([]byte, Deferred, error) {
	if !sess.IsVerified() {
		return nil, nil, ErrNotVerified
	}
	req, state, err := parseRequest(body)
	if err != nil {
		return nil, nil, err
	}
	if state != StateM1 {
		return nil, nil, ErrMalformed
	}
	m, ok := req.GetByte(tlv8.TagMethod)
	if !ok {
		return nil, nil, ErrMalformed
	}
	method := Method(m)
	switch method {
	case MethodAddPairing, MethodRemovePairing, MethodListPairings:
	default:
		return nil, nil, ErrMalformed
	}

	caller, found := p.registry.Find(sess.ControllerID())
	if !found || !caller.Admin {
		return p.fail(method, ErrorAuthentication, "caller is not an admin"), nil, nil
	}

	switch method {
	case MethodAddPairing:
		return p.add(req), nil, nil
	case MethodRemovePairing:
		return p.remove(req)
	default:
		return p.list(), nil, nil
	}
}

func (p *Pairings) fail(method Method, code ErrorCode, reason string) []byte {
	if p.log != nil {
		p.log.Warnf("%s rejected (%s): %s", method, code, reason)
	}
	return errorResponse(StateM2, code)
}

func (p *Pairings) add(req *tlv8.Container) []byte {
	id, _ := req.Get(tlv8.TagIdentifier)
	pk, _ := req.Get(tlv8.TagPublicKey)
	perms, ok := req.GetByte(tlv8.TagPermissions)
	if len(id) != controller.IDSize || len(pk) != controller.PublicKeySize || !ok {
		return p.fail(MethodAddPairing, ErrorUnknown, "bad pairing parameters")
	}

	if err := p.registry.Add(string(id), pk, perms&PermissionAdmin != 0); err != nil {
		code := ErrorUnknown
		if errors.Is(err, controller.ErrTableFull) {
			code = ErrorMaxPeers
		}
		return p.fail(MethodAddPairing, code, err.Error())
	}
	if p.log != nil {
		p.log.Infof("added pairing %s (permissions %d)", id, perms)
	}
	return stateResponse(StateM2).Encode()
}

func (p *Pairings) remove(req *tlv8.Container) ([]byte, Deferred, error) {
	id, _ := req.Get(tlv8.TagIdentifier)
	if len(id) != controller.IDSize {
		return p.fail(MethodRemovePairing, ErrorUnknown, "bad identifier"), nil, nil
	}

	// The deletion is stored before answering; connections close after
	// the answer is on the wire.
	finish, err := p.registry.Unregister(string(id))
	if err != nil {
		return p.fail(MethodRemovePairing, ErrorUnknown, err.Error()), nil, nil
	}
	if p.log != nil {
		p.log.Infof("removed pairing %s", id)
	}
	return stateResponse(StateM2).Encode(), Deferred(finish), nil
}

func (p *Pairings) list() []byte {
	resp := stateResponse(StateM2)
	for i, c := range p.registry.List() {
		if i > 0 {
			resp.AddSeparator()
		}
		resp.SetByte(tlv8.TagPermissions, c.Permissions())
		resp.Set(tlv8.TagIdentifier, []byte(c.ID))
		resp.Set(tlv8.TagPublicKey, c.PublicKey)
	}
	return resp.Encode()
}
