package transport

import (
	"net/http"

	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/session"
)

// Handler is the accessory side of a connection. *accessory.Accessory
// satisfies it.
type Handler interface {
	// OpenSession registers a connection. onClose runs when the accessory
	// closes the session, e.g. because its controller was removed.
	OpenSession(remote string, onClose func()) (*session.Session, error)

	// CloseSession forgets a connection after it dropped.
	CloseSession(s *session.Session)

	HandlePairSetup(conn *session.Session, body []byte) ([]byte, error)
	HandlePairVerify(conn *session.Session, body []byte) ([]byte, error)
	HandlePairings(conn *session.Session, body []byte) ([]byte, pairing.Deferred, error)

	// EncryptOutbound frames a response on a verified connection.
	EncryptOutbound(conn *session.Session, header, body []byte) ([]byte, error)
}

// AppHandler serves non-pairing requests on verified connections. It
// returns the status code, content type and body of the reply.
type AppHandler func(conn *session.Session, req *http.Request) (status int, contentType string, body []byte)
