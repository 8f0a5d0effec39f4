package accessory

import (
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/session"
)

// OpenSession registers a new connection. onClose runs once when the
// session is closed by the accessory, e.g. because its controller was
// removed; the transport should drop the connection then.
func (a *Accessory) OpenSession(remote string, onClose func()) (*session.Session, error) {
	if !a.State().IsRunning() {
		return nil, ErrNotStarted
	}
	s, err := a.table.Open(remote, onClose)
	if err != nil {
		if a.log != nil {
			a.log.Warnf("refusing connection from %s: %v", remote, err)
		}
		return nil, err
	}
	if a.log != nil {
		a.log.Debugf("connection %d from %s", s.ID(), remote)
	}
	return s, nil
}

// CloseSession forgets a connection. A pair-setup attempt it owned is
// abandoned.
func (a *Accessory) CloseSession(s *session.Session) {
	a.setup.Release(s)
	a.table.Remove(s.ID())
	s.Close()
	if a.log != nil {
		a.log.Debugf("connection %d closed", s.ID())
	}
}

// HandlePairSetup processes a pair-setup request body.
func (a *Accessory) HandlePairSetup(conn *session.Session, body []byte) ([]byte, error) {
	return a.setup.Handle(conn, body)
}

// HandlePairVerify processes a pair-verify request body.
func (a *Accessory) HandlePairVerify(conn *session.Session, body []byte) ([]byte, error) {
	return a.verify.Handle(conn, body)
}

// HandlePairings processes a pairings request body. A non-nil Deferred
// must run after the response has been written.
func (a *Accessory) HandlePairings(conn *session.Session, body []byte) ([]byte, pairing.Deferred, error) {
	return a.pairings.Handle(conn, body)
}

// EncryptOutbound frames and encrypts a response on a verified
// connection.
func (a *Accessory) EncryptOutbound(conn *session.Session, header, body []byte) ([]byte, error) {
	return session.EncryptOutbound(conn, header, body)
}

// DecryptInbound decrypts and reassembles complete frames from a verified
// connection.
func (a *Accessory) DecryptInbound(conn *session.Session, data []byte) ([]byte, error) {
	return session.DecryptInbound(conn, data)
}

// IsVerified reports whether conn completed pair-verify.
func (a *Accessory) IsVerified(conn *session.Session) bool {
	return conn.IsVerified()
}

// IsAdmin reports whether conn is verified as a controller that currently
// holds admin permission.
func (a *Accessory) IsAdmin(conn *session.Session) bool {
	if !conn.IsVerified() {
		return false
	}
	c, ok := a.registry.Find(conn.ControllerID())
	return ok && c.Admin
}
