package transport

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/session"
)

// ClientConn is a controller's connection to an accessory. It implements
// pairing.RoundTripper and switches to encrypted frames once Secure is
// called with a pair-verify result.
type ClientConn struct {
	conn net.Conn
	host string

	mu   sync.Mutex
	br   *bufio.Reader
	sess *session.Session
}

var _ pairing.RoundTripper = (*ClientConn)(nil)

// Dial connects to an accessory at addr ("host:port").
func Dial(ctx context.Context, addr string) (*ClientConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewClientConn(conn), nil
}

// NewClientConn wraps an established connection.
func NewClientConn(conn net.Conn) *ClientConn {
	return &ClientConn{
		conn: conn,
		host: conn.RemoteAddr().String(),
		br:   bufio.NewReader(conn),
	}
}

// RoundTrip posts a pairing body to path. A reply other than 200 is
// returned as a *StatusError.
func (c *ClientConn) RoundTrip(path string, body []byte) ([]byte, error) {
	status, out, err := c.Do(http.MethodPost, path, ContentType, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &StatusError{Code: status}
	}
	return out, nil
}

// Do sends one request and reads its reply.
func (c *ClientConn) Do(method, path, contentType string, body []byte) (int, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	header := method + " " + path + " HTTP/1.1\r\nHost: " + c.host + "\r\n"
	if contentType != "" {
		header += "Content-Type: " + contentType + "\r\n"
	}
	header += "Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n"

	var wire []byte
	if c.sess != nil {
		var err error
		wire, err = session.EncryptOutbound(c.sess, []byte(header), body)
		if err != nil {
			return 0, nil, err
		}
	} else {
		wire = append([]byte(header), body...)
	}
	if _, err := c.conn.Write(wire); err != nil {
		return 0, nil, err
	}

	resp, err := http.ReadResponse(c.br, nil)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, out, nil
}

// Secure switches the connection to encrypted frames keyed from a
// successful pair-verify.
func (c *ClientConn) Secure(result *pairing.VerifyResult) error {
	if result == nil || len(result.SharedSecret) == 0 {
		return ErrNotSecured
	}
	sess, err := session.New(session.Config{
		Remote: c.host,
		Role:   session.RoleController,
	})
	if err != nil {
		return err
	}
	if err := sess.Establish(result.AccessoryID, false, result.SharedSecret); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.br.Buffered() > 0 {
		sess.Close()
		return ErrUnexpectedData
	}
	c.sess = sess
	c.br = bufio.NewReader(session.NewReader(sess, c.conn))
	return nil
}

// IsSecured reports whether Secure has been called.
func (c *ClientConn) IsSecured() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// Close closes the connection.
func (c *ClientConn) Close() error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
	return c.conn.Close()
}
