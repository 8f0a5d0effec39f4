package transport

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/session"
	"github.com/pion/logging"
)

const (
	// DefaultMaxMessageSize bounds one request, headers included.
	DefaultMaxMessageSize = 8192

	// DefaultReadTimeout bounds the wait for a request on a connection
	// that has not completed pair-verify.
	DefaultReadTimeout = 30 * time.Second

	// DefaultWriteTimeout bounds writing one response.
	DefaultWriteTimeout = 10 * time.Second
)

// Server accepts controller connections over TCP and serves the HTTP-like
// pairing envelope on them. Each connection is handled by its own
// goroutine, one request at a time.
type Server struct {
	listener net.Listener
	handler  Handler
	app      AppHandler
	maxSize  int
	readTO   time.Duration
	writeTO  time.Duration
	closeCh  chan struct{}
	wg       sync.WaitGroup
	log      logging.LeveledLogger

	// Connection tracking
	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	mu      sync.RWMutex
	started bool
	closed  bool
}

// Config configures the server.
type Config struct {
	// Listener is an optional pre-existing Listener to use.
	// If nil, a new listener will be created using ListenAddr.
	Listener net.Listener

	// ListenAddr is the address to listen on (e.g., ":51827").
	// Ignored if Listener is provided.
	ListenAddr string

	// Accessory handles the pairing requests. Required.
	Accessory Handler

	// MaxMessageSize bounds one request (default: 8192).
	MaxMessageSize int

	// ReadTimeout bounds the wait for each request while the connection
	// is not yet verified (default: 30s, negative disables). An idle
	// pair-setup connection is dropped, which frees the setup attempt.
	// Verified connections may stay idle.
	ReadTimeout time.Duration

	// WriteTimeout bounds writing one response (default: 10s, negative
	// disables).
	WriteTimeout time.Duration

	// App serves non-pairing requests on verified connections. If nil
	// they get 404.
	App AppHandler

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewServer creates a server with the given configuration.
func NewServer(config Config) (*Server, error) {
	if config.Accessory == nil {
		return nil, ErrNoHandler
	}

	s := &Server{
		listener: config.Listener,
		handler:  config.Accessory,
		app:      config.App,
		maxSize:  config.MaxMessageSize,
		readTO:   config.ReadTimeout,
		writeTO:  config.WriteTimeout,
		closeCh:  make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}
	if s.maxSize <= 0 {
		s.maxSize = DefaultMaxMessageSize
	}
	if s.readTO == 0 {
		s.readTO = DefaultReadTimeout
	}
	if s.writeTO == 0 {
		s.writeTO = DefaultWriteTimeout
	}

	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("transport")
	}

	if s.listener == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0" // Use ephemeral port
		}

		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		s.listener = listener
	}

	return s, nil
}

// Start begins accepting connections.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	if s.log != nil {
		s.log.Infof("listening on %s", s.listener.Addr())
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop closes the listener and every connection, and waits for the
// connection goroutines to finish.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.mu.Unlock()

	if s.log != nil {
		s.log.Info("stopping")
	}

	close(s.closeCh)
	s.listener.Close()

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// ConnCount returns the number of open connections.
func (s *Server) ConnCount() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// track registers conn for Stop. It fails once the server is stopping.
func (s *Server) track(conn net.Conn) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	select {
	case <-s.closeCh:
		return false
	default:
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
}

// handleConn serves one connection until it fails or closes.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()

	remote := conn.RemoteAddr().String()
	if !s.track(conn) {
		conn.Close()
		return
	}
	defer s.untrack(conn)

	sess, err := s.handler.OpenSession(remote, func() { conn.Close() })
	if err != nil {
		if s.log != nil {
			s.log.Warnf("rejecting %s: %v", remote, err)
		}
		conn.Close()
		return
	}
	defer func() {
		conn.Close()
		s.handler.CloseSession(sess)
	}()

	if s.log != nil {
		s.log.Debugf("connection %d from %s", sess.ID(), remote)
	}

	c := newServerConn(s, conn, sess)
	for {
		if err := c.serve(); err != nil {
			if s.log != nil {
				switch {
				case errors.Is(err, os.ErrDeadlineExceeded):
					s.log.Infof("connection %d from %s timed out", sess.ID(), remote)
				case !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed):
					s.log.Debugf("connection %d: %v", sess.ID(), err)
				}
			}
			return
		}
	}
}

// serverConn is the per-connection request loop state.
type serverConn struct {
	srv       *Server
	conn      net.Conn
	sess      *session.Session
	lim       *limitReader
	br        *bufio.Reader
	encrypted bool
}

func newServerConn(s *Server, conn net.Conn, sess *session.Session) *serverConn {
	lim := &limitReader{r: conn}
	return &serverConn{
		srv:  s,
		conn: conn,
		sess: sess,
		lim:  lim,
		br:   bufio.NewReader(lim),
	}
}

// serve reads one request, answers it and runs any deferred work.
func (c *serverConn) serve() error {
	c.lim.n = int64(c.srv.maxSize)
	if !c.encrypted && c.srv.readTO > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.srv.readTO)); err != nil {
			return err
		}
	}

	req, err := http.ReadRequest(c.br)
	if err != nil {
		return err
	}
	if req.ContentLength > int64(c.srv.maxSize) {
		return ErrMessageTooLarge
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}

	// Encryption state is taken before handling: the pair-verify reply
	// that establishes the session still goes out in plaintext.
	encrypted := c.encrypted

	resp, deferred, fatal := c.dispatch(req, body)
	if err := c.write(resp, encrypted); err != nil {
		return err
	}
	if deferred != nil {
		deferred()
	}
	if fatal != nil {
		return fatal
	}

	if !c.encrypted && c.sess.IsVerified() {
		if c.br.Buffered() > 0 {
			return ErrUnexpectedData
		}
		if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
			return err
		}
		c.lim.r = session.NewReader(c.sess, c.conn)
		c.br.Reset(c.lim)
		c.encrypted = true
		if c.srv.log != nil {
			c.srv.log.Debugf("connection %d encrypted for %s", c.sess.ID(), c.sess.ControllerID())
		}
	}
	return nil
}

// dispatch routes a request. A non-nil error closes the connection after
// the response is written.
func (c *serverConn) dispatch(req *http.Request, body []byte) (response, pairing.Deferred, error) {
	cmd := CommandFor(req.Method, req.URL.Path)
	if c.srv.log != nil {
		c.srv.log.Tracef("connection %d: %s %s (%s, %d bytes)", c.sess.ID(), req.Method, req.URL.Path, cmd, len(body))
	}

	// Pairing paths only exist for pairing bodies.
	if cmd.IsPairing() && !isPairingContent(req.Header.Get("Content-Type")) {
		return statusResponse(http.StatusNotFound), nil, nil
	}

	var (
		out      []byte
		deferred pairing.Deferred
		err      error
	)
	h := c.srv.handler
	switch cmd {
	case CommandPairSetup:
		out, err = h.HandlePairSetup(c.sess, body)
	case CommandPairVerify:
		out, err = h.HandlePairVerify(c.sess, body)
	case CommandPairings:
		out, deferred, err = h.HandlePairings(c.sess, body)
	case CommandApplication:
		return c.application(req, body), nil, nil
	default:
		return statusResponse(http.StatusNotFound), nil, nil
	}

	switch {
	case err == nil:
		return pairingResponse(out), deferred, nil
	case errors.Is(err, pairing.ErrNotVerified):
		return statusResponse(StatusConnectionAuthorizationRequired), nil, nil
	case errors.Is(err, pairing.ErrMalformed):
		return statusResponse(http.StatusBadRequest), nil, err
	default:
		if c.srv.log != nil {
			c.srv.log.Errorf("connection %d: %s: %v", c.sess.ID(), cmd, err)
		}
		return statusResponse(http.StatusInternalServerError), nil, err
	}
}

func (c *serverConn) application(req *http.Request, body []byte) response {
	if !c.sess.IsVerified() {
		return statusResponse(StatusConnectionAuthorizationRequired)
	}
	if c.srv.app == nil {
		return statusResponse(http.StatusNotFound)
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	status, contentType, out := c.srv.app(c.sess, req)
	return response{status: status, contentType: contentType, body: out}
}

func (c *serverConn) write(r response, encrypted bool) error {
	header := r.header()
	var wire []byte
	if encrypted {
		var err error
		wire, err = c.srv.handler.EncryptOutbound(c.sess, header, r.body)
		if err != nil {
			return err
		}
	} else {
		wire = append(header, r.body...)
	}
	if c.srv.writeTO > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.srv.writeTO)); err != nil {
			return err
		}
	}
	_, err := c.conn.Write(wire)
	return err
}

func isPairingContent(v string) bool {
	mt, _, err := mime.ParseMediaType(v)
	return err == nil && mt == ContentType
}

// limitReader fails with ErrMessageTooLarge once n bytes have been read.
// The request loop re-arms it before every request.
type limitReader struct {
	r io.Reader
	n int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.n <= 0 {
		return 0, ErrMessageTooLarge
	}
	if int64(len(p)) > l.n {
		p = p[:l.n]
	}
	n, err := l.r.Read(p)
	l.n -= int64(n)
	return n, err
}
