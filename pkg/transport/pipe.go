package transport

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// PipeAddr implements net.Addr for pipe endpoints.
type PipeAddr struct {
	ID   int // Connection number, 0 for the listener
	Side int // 0 accessory, 1 controller
}

// Network returns "pipe".
func (a PipeAddr) Network() string { return "pipe" }

// String returns a string representation of the address.
func (a PipeAddr) String() string { return fmt.Sprintf("pipe:%d:%d", a.ID, a.Side) }

// PipeListener is an in-memory net.Listener. Dial hands the accessory end
// of a fresh net.Pipe to Accept and returns the controller end.
//
// Use it for tests that exercise the server without real network I/O.
type PipeListener struct {
	connCh  chan net.Conn
	closeCh chan struct{}

	mu     sync.Mutex
	closed bool
	next   int
}

// NewPipeListener creates an open listener.
func NewPipeListener() *PipeListener {
	return &PipeListener{
		connCh:  make(chan net.Conn),
		closeCh: make(chan struct{}),
	}
}

// Accept waits for the next Dial.
func (l *PipeListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.connCh:
		return conn, nil
	case <-l.closeCh:
		return nil, &net.OpError{Op: "accept", Net: "pipe", Addr: l.Addr(), Err: net.ErrClosed}
	}
}

// Close closes the listener. Connections already accepted stay open.
func (l *PipeListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	close(l.closeCh)
	return nil
}

// Addr returns the listener's network address.
func (l *PipeListener) Addr() net.Addr {
	return PipeAddr{}
}

// Dial connects to the listener. It blocks until the connection is
// accepted or the listener is closed.
func (l *PipeListener) Dial() (net.Conn, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, &net.OpError{Op: "dial", Net: "pipe", Addr: l.Addr(), Err: net.ErrClosed}
	}
	l.next++
	id := l.next
	l.mu.Unlock()

	server, client := net.Pipe()
	accessory := &PipeConn{conn: server, localAddr: PipeAddr{ID: id}, remoteAddr: PipeAddr{ID: id, Side: 1}}
	controller := &PipeConn{conn: client, localAddr: PipeAddr{ID: id, Side: 1}, remoteAddr: PipeAddr{ID: id}}

	select {
	case l.connCh <- accessory:
		return controller, nil
	case <-l.closeCh:
		server.Close()
		client.Close()
		return nil, &net.OpError{Op: "dial", Net: "pipe", Addr: l.Addr(), Err: net.ErrClosed}
	}
}

// Verify PipeListener implements net.Listener.
var _ net.Listener = (*PipeListener)(nil)

// PipeConn wraps a net.Conn with pipe-specific addresses.
type PipeConn struct {
	conn       net.Conn
	localAddr  PipeAddr
	remoteAddr PipeAddr
}

// Read reads data from the connection.
func (c *PipeConn) Read(b []byte) (n int, err error) {
	return c.conn.Read(b)
}

// Write writes data to the connection.
func (c *PipeConn) Write(b []byte) (n int, err error) {
	return c.conn.Write(b)
}

// Close closes the connection.
func (c *PipeConn) Close() error {
	return c.conn.Close()
}

// LocalAddr returns the local network address.
func (c *PipeConn) LocalAddr() net.Addr {
	return c.localAddr
}

// RemoteAddr returns the remote network address.
func (c *PipeConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// SetDeadline sets the read and write deadlines.
func (c *PipeConn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline sets the read deadline.
func (c *PipeConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline.
func (c *PipeConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// Verify PipeConn implements net.Conn.
var _ net.Conn = (*PipeConn)(nil)
