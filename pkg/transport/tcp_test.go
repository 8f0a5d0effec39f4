package transport

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/backkem/hap/pkg/accessory"
	"github.com/backkem/hap/pkg/discovery"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/session"
	"github.com/backkem/hap/pkg/storage"
	"github.com/backkem/hap/pkg/tlv8"
	"github.com/pion/transport/v3/test"
)

const testSetupCode = "031-45-154"

var _ Handler = (*accessory.Accessory)(nil)

func newTestAccessory(t *testing.T, maxConns int) *accessory.Accessory {
	t.Helper()
	acc, err := accessory.New(accessory.Config{
		Name:              "Test Lamp",
		SetupCode:         testSetupCode,
		MaxConnections:    maxConns,
		Store:             storage.NewMemoryStore(),
		AdvertiserFactory: discovery.NewMockServerFactory(nil),
	})
	if err != nil {
		t.Fatalf("accessory.New() error = %v", err)
	}
	if err := acc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = acc.Stop() })
	return acc
}

// startServer runs a server for acc on l (a loopback TCP listener if nil)
// and stops both at cleanup.
func startServer(t *testing.T, acc *accessory.Accessory, l net.Listener, app AppHandler) *Server {
	t.Helper()
	config := Config{Listener: l, Accessory: acc, App: app}
	if l == nil {
		config.ListenAddr = "127.0.0.1:0"
	}
	srv, err := NewServer(config)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		_ = acc.Stop()
		_ = srv.Stop()
	})
	return srv
}

// eventually polls cond for up to two seconds.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func dial(t *testing.T, srv *Server) *ClientConn {
	t.Helper()
	conn, err := Dial(context.Background(), srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newClient(t *testing.T, conn *ClientConn) *pairing.Client {
	t.Helper()
	c, err := pairing.NewClient(pairing.ClientConfig{Transport: conn})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestNewServer(t *testing.T) {
	t.Run("without handler", func(t *testing.T) {
		_, err := NewServer(Config{ListenAddr: "127.0.0.1:0"})
		if err != ErrNoHandler {
			t.Errorf("NewServer() error = %v, want %v", err, ErrNoHandler)
		}
	})

	t.Run("with injected listener", func(t *testing.T) {
		l := NewPipeListener()
		srv, err := NewServer(Config{Listener: l, Accessory: newTestAccessory(t, 0)})
		if err != nil {
			t.Fatalf("NewServer() error = %v", err)
		}
		if srv.listener != l {
			t.Error("NewServer() did not use injected listener")
		}
		if srv.maxSize != DefaultMaxMessageSize {
			t.Errorf("maxSize = %d, want %d", srv.maxSize, DefaultMaxMessageSize)
		}
		if srv.readTO != DefaultReadTimeout || srv.writeTO != DefaultWriteTimeout {
			t.Errorf("timeouts = %v/%v, want %v/%v", srv.readTO, srv.writeTO, DefaultReadTimeout, DefaultWriteTimeout)
		}
		srv.Stop()
	})
}

func TestServerStartStop(t *testing.T) {
	// Registered first so it runs after every other cleanup.
	t.Cleanup(test.CheckRoutines(t))

	acc := newTestAccessory(t, 0)

	srv, err := NewServer(Config{ListenAddr: "127.0.0.1:0", Accessory: acc})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Errorf("Start() error = %v", err)
	}
	if err := srv.Start(); err != ErrAlreadyStarted {
		t.Errorf("Start() second call error = %v, want %v", err, ErrAlreadyStarted)
	}
	if err := srv.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := srv.Stop(); err != ErrClosed {
		t.Errorf("Stop() second call error = %v, want %v", err, ErrClosed)
	}
	if err := srv.Start(); err != ErrClosed {
		t.Errorf("Start() after Stop error = %v, want %v", err, ErrClosed)
	}
}

func TestServerPairingLifecycle(t *testing.T) {
	t.Cleanup(test.CheckRoutines(t))
	lim := test.TimeOut(20 * time.Second)
	defer lim.Stop()

	acc := newTestAccessory(t, 0)
	app := func(conn *session.Session, req *http.Request) (int, string, []byte) {
		if req.URL.Path != "/accessories" {
			return http.StatusNotFound, "", nil
		}
		return http.StatusOK, "application/hap+json", []byte(`{"accessories":[]}`)
	}
	srv := startServer(t, acc, nil, app)

	conn := dial(t, srv)
	c := newClient(t, conn)

	info, err := c.PairSetup(testSetupCode)
	if err != nil {
		t.Fatalf("PairSetup() error = %v", err)
	}
	if info.ID != acc.DeviceID() {
		t.Errorf("accessory ID = %s, want %s", info.ID, acc.DeviceID())
	}
	if !acc.IsPaired() {
		t.Fatal("accessory should be paired")
	}

	// Still plaintext: management is refused.
	if _, err := c.ListPairings(); !IsStatus(err, StatusConnectionAuthorizationRequired) {
		t.Fatalf("ListPairings() before verify error = %v, want 470", err)
	}

	result, err := c.PairVerify()
	if err != nil {
		t.Fatalf("PairVerify() error = %v", err)
	}
	if conn.IsSecured() {
		t.Fatal("connection should not be secured before Secure()")
	}
	if err := conn.Secure(result); err != nil {
		t.Fatalf("Secure() error = %v", err)
	}
	if !conn.IsSecured() {
		t.Fatal("connection should be secured")
	}

	list, err := c.ListPairings()
	if err != nil {
		t.Fatalf("ListPairings() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != c.ID() || !list[0].Admin {
		t.Errorf("ListPairings() = %+v, want one admin %s", list, c.ID())
	}

	status, body, err := conn.Do(http.MethodGet, "/accessories", "", nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if status != http.StatusOK || !bytes.Contains(body, []byte("accessories")) {
		t.Errorf("GET /accessories = %d %q", status, body)
	}
	status, _, err = conn.Do(http.MethodGet, "/nothing", "", nil)
	if err != nil || status != http.StatusNotFound {
		t.Errorf("GET /nothing = %d, %v, want 404", status, err)
	}

	// Removing ourselves answers first, then drops the connection.
	if err := c.RemovePairing(c.ID()); err != nil {
		t.Fatalf("RemovePairing() error = %v", err)
	}
	eventually(t, func() bool { return !acc.IsPaired() }, "accessory should be unpaired")
	if _, _, err := conn.Do(http.MethodGet, "/accessories", "", nil); err == nil {
		t.Error("connection should be closed after removing the last admin")
	}
}

func TestServerUnverifiedRequests(t *testing.T) {
	lim := test.TimeOut(10 * time.Second)
	defer lim.Stop()

	acc := newTestAccessory(t, 0)
	srv := startServer(t, acc, NewPipeListener(), nil)
	l := srv.listener.(*PipeListener)

	raw, err := l.Dial()
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	conn := NewClientConn(raw)
	defer conn.Close()

	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		want        int
	}{
		{"application before verify", "GET", "/accessories", "", 470},
		{"pairing with GET", "GET", "/pair-setup", ContentType, 404},
		{"wrong content type", "POST", "/pair-setup", "application/json", 404},
		{"pairings before verify", "POST", "/pairings", ContentType, 470},
	}

	body := tlv8.New().SetByte(tlv8.TagState, 1).SetByte(tlv8.TagMethod, byte(pairing.MethodListPairings)).Encode()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _, err := conn.Do(tt.method, tt.path, tt.contentType, body)
			if err != nil {
				t.Fatalf("Do() error = %v", err)
			}
			if status != tt.want {
				t.Errorf("status = %d, want %d", status, tt.want)
			}
		})
	}

	// A malformed pairing body is answered with 400 and ends the
	// connection.
	status, _, err := conn.Do(http.MethodPost, pairing.PathPairSetup, ContentType, []byte{0x06, 0x05})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
	if _, _, err := conn.Do(http.MethodPost, pairing.PathPairSetup, ContentType, body); err == nil {
		t.Error("connection should be closed after a malformed request")
	}
}

func TestServerMessageTooLarge(t *testing.T) {
	lim := test.TimeOut(10 * time.Second)
	defer lim.Stop()

	acc := newTestAccessory(t, 0)
	srv := startServer(t, acc, nil, nil)
	conn := dial(t, srv)

	big := make([]byte, DefaultMaxMessageSize+1)
	if _, _, err := conn.Do(http.MethodPost, pairing.PathPairSetup, ContentType, big); err == nil {
		t.Error("oversized request should close the connection")
	}
}

func TestServerMaxConnections(t *testing.T) {
	lim := test.TimeOut(10 * time.Second)
	defer lim.Stop()

	acc := newTestAccessory(t, 1)
	srv := startServer(t, acc, nil, nil)

	first := dial(t, srv)
	if status, _, err := first.Do(http.MethodGet, "/accessories", "", nil); err != nil || status != 470 {
		t.Fatalf("first connection: %d, %v", status, err)
	}

	second := dial(t, srv)
	if _, _, err := second.Do(http.MethodGet, "/accessories", "", nil); err == nil {
		t.Error("second connection should be refused")
	}

	first.Close()
	eventually(t, func() bool { return acc.Sessions().Count() == 0 }, "first session should be released")

	third := dial(t, srv)
	if status, _, err := third.Do(http.MethodGet, "/accessories", "", nil); err != nil || status != 470 {
		t.Errorf("third connection: %d, %v", status, err)
	}
}

func TestServerSetupSlotReleasedOnClose(t *testing.T) {
	lim := test.TimeOut(20 * time.Second)
	defer lim.Stop()

	acc := newTestAccessory(t, 0)
	srv := startServer(t, acc, nil, nil)

	// Start pair-setup and walk away after M1.
	owner := dial(t, srv)
	m1 := tlv8.New().SetByte(tlv8.TagState, 1).SetByte(tlv8.TagMethod, 0).Encode()
	if _, err := owner.RoundTrip(pairing.PathPairSetup, m1); err != nil {
		t.Fatalf("M1 error = %v", err)
	}

	other := dial(t, srv)
	_, err := newClient(t, other).PairSetup(testSetupCode)
	if !pairing.IsProtocolError(err, pairing.ErrorBusy) {
		t.Fatalf("PairSetup() while owned error = %v, want Busy", err)
	}

	owner.Close()
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err = newClient(t, other).PairSetup(testSetupCode)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("PairSetup() after owner left error = %v", err)
	}
}

func TestServerIdleSetupOwnerTimesOut(t *testing.T) {
	lim := test.TimeOut(20 * time.Second)
	defer lim.Stop()

	acc := newTestAccessory(t, 0)
	l := NewPipeListener()
	srv, err := NewServer(Config{Listener: l, Accessory: acc, ReadTimeout: time.Second})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		_ = acc.Stop()
		_ = srv.Stop()
	})

	pipeConn := func() *ClientConn {
		raw, err := l.Dial()
		if err != nil {
			t.Fatalf("Dial() error = %v", err)
		}
		conn := NewClientConn(raw)
		t.Cleanup(func() { conn.Close() })
		return conn
	}

	// The owner sends M1 and then goes quiet without closing.
	owner := pipeConn()
	m1 := tlv8.New().SetByte(tlv8.TagState, 1).SetByte(tlv8.TagMethod, 0).Encode()
	if _, err := owner.RoundTrip(pairing.PathPairSetup, m1); err != nil {
		t.Fatalf("M1 error = %v", err)
	}

	other := pipeConn()
	_, err = newClient(t, other).PairSetup(testSetupCode)
	if !pairing.IsProtocolError(err, pairing.ErrorBusy) {
		t.Fatalf("PairSetup() while owned error = %v, want Busy", err)
	}

	// Both unverified connections idle past the read timeout.
	eventually(t, func() bool { return srv.ConnCount() == 0 }, "idle connections should be dropped")

	if _, err := newClient(t, pipeConn()).PairSetup(testSetupCode); err != nil {
		t.Fatalf("PairSetup() after owner timed out error = %v", err)
	}
	if !acc.IsPaired() {
		t.Error("accessory should be paired")
	}
	if _, err := owner.RoundTrip(pairing.PathPairSetup, m1); err == nil {
		t.Error("idle owner connection should be closed")
	}
}

func TestServerStopClosesConnections(t *testing.T) {
	t.Cleanup(test.CheckRoutines(t))

	acc := newTestAccessory(t, 0)

	l := NewPipeListener()
	srv, err := NewServer(Config{Listener: l, Accessory: acc})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	raw, err := l.Dial()
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	conn := NewClientConn(raw)
	defer conn.Close()
	if status, _, err := conn.Do(http.MethodGet, "/", "", nil); err != nil || status != 470 {
		t.Fatalf("Do() = %d, %v", status, err)
	}
	if n := srv.ConnCount(); n != 1 {
		t.Errorf("ConnCount() = %d, want 1", n)
	}

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, _, err := conn.Do(http.MethodGet, "/", "", nil); err == nil {
		t.Error("connection should be closed by Stop")
	}
	if _, err := l.Dial(); err == nil {
		t.Error("Dial() after Stop should fail")
	}
}
