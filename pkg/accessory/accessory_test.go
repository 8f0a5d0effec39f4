package accessory

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/backkem/hap/pkg/discovery"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/session"
	"github.com/backkem/hap/pkg/storage"
	"github.com/backkem/hap/pkg/tlv8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCode = "031-45-154"

// recorder captures callbacks.
type recorder struct {
	mu     sync.Mutex
	paired []bool
	states []State
}

func (r *recorder) onPaired(p bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paired = append(r.paired, p)
}

func (r *recorder) onState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) pairedEvents() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.paired...)
}

func (r *recorder) stateEvents() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

type harness struct {
	acc     *Accessory
	store   *storage.MemoryStore
	factory *discovery.MockServerFactory
	rec     *recorder
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		store:   storage.NewMemoryStore(),
		factory: discovery.NewMockServerFactory(nil),
		rec:     &recorder{},
	}
	config := Config{
		Name:              "Test Lamp",
		Category:          discovery.CategoryLightbulb,
		SetupCode:         testCode,
		SetupID:           "1QJ8",
		Store:             h.store,
		AdvertiserFactory: h.factory,
		OnPaired:          h.rec.onPaired,
		OnStateChanged:    h.rec.onState,
	}
	for _, m := range mutate {
		m(&config)
	}
	acc, err := New(config)
	require.NoError(t, err)
	h.acc = acc
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.acc.Start(context.Background()))
	t.Cleanup(func() { _ = h.acc.Stop() })
}

// client returns a controller talking to the accessory over a fresh
// in-process session.
func (h *harness) client(t *testing.T) (*pairing.Client, *session.Session) {
	t.Helper()
	sess, err := h.acc.OpenSession("test", nil)
	require.NoError(t, err)
	c, err := pairing.NewClient(pairing.ClientConfig{Transport: h.transport(sess)})
	require.NoError(t, err)
	return c, sess
}

func (h *harness) transport(sess *session.Session) pairing.RoundTripper {
	return pairing.RoundTripperFunc(func(path string, body []byte) ([]byte, error) {
		switch path {
		case pairing.PathPairSetup:
			return h.acc.HandlePairSetup(sess, body)
		case pairing.PathPairVerify:
			return h.acc.HandlePairVerify(sess, body)
		case pairing.PathPairings:
			resp, deferred, err := h.acc.HandlePairings(sess, body)
			if deferred != nil {
				defer deferred()
			}
			return resp, err
		}
		return nil, errors.New("unknown path")
	})
}

func (h *harness) advertised(t *testing.T) discovery.TXT {
	t.Helper()
	server := h.factory.Last()
	require.NotNil(t, server, "nothing advertised")
	return server.TXT()
}

func TestNew(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, StateInitialized, h.acc.State())
	assert.True(t, discovery.ValidDeviceID(h.acc.DeviceID()))
	assert.Len(t, h.acc.PublicKey(), 32)
	assert.Equal(t, "1QJ8", h.acc.SetupID())
	assert.Equal(t, testCode, h.acc.SetupCode())
	assert.False(t, h.acc.IsPaired())

	for _, key := range []string{storage.KeyAccessory, storage.KeyVerifyData, storage.KeySetupID} {
		_, err := h.store.Get(key)
		assert.NoError(t, err, key)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{Name: "x", SetupCode: testCode})
	assert.ErrorIs(t, err, ErrStorageRequired)

	_, err = New(Config{Name: "x", SetupCode: "123-45-678", Store: storage.NewMemoryStore()})
	assert.ErrorIs(t, err, ErrInvalidSetupCode)
}

func TestNewRestoresState(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	c, _ := h.client(t)
	_, err := c.PairSetup(testCode)
	require.NoError(t, err)
	require.NoError(t, h.acc.Stop())

	again, err := New(Config{
		Name:      "Test Lamp",
		SetupCode: testCode,
		Store:     h.store,
	})
	require.NoError(t, err)

	assert.Equal(t, h.acc.DeviceID(), again.DeviceID())
	assert.True(t, bytes.Equal(h.acc.PublicKey(), again.PublicKey()))
	assert.Equal(t, "1QJ8", again.SetupID(), "setup ID should be loaded")
	assert.True(t, again.IsPaired())
	require.Len(t, again.Controllers(), 1)
	assert.Equal(t, c.ID(), again.Controllers()[0].ID)

	s1, v1, err := h.acc.SetupVerifier()
	require.NoError(t, err)
	s2, v2, err := again.SetupVerifier()
	require.NoError(t, err)
	assert.Equal(t, s1, s2, "verifier should be reused")
	assert.Equal(t, v1, v2)
}

func TestNewReplacesStaleVerifier(t *testing.T) {
	h := newHarness(t)
	salt, _, err := h.acc.SetupVerifier()
	require.NoError(t, err)

	again, err := New(Config{Name: "Test Lamp", SetupCode: "111-22-333", Store: h.store})
	require.NoError(t, err)
	salt2, _, err := again.SetupVerifier()
	require.NoError(t, err)
	assert.NotEqual(t, salt, salt2)
}

func TestNewCorruptIdentity(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, storage.Save(store, storage.KeyAccessory, &identityRecord{DeviceID: "bogus", Seed: []byte{1}}))

	_, err := New(Config{Name: "x", SetupCode: testCode, Store: store})
	assert.ErrorIs(t, err, ErrCorruptState)
}

func TestStartStop(t *testing.T) {
	h := newHarness(t)

	_, err := h.acc.OpenSession("early", nil)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, h.acc.Stop(), ErrNotStarted)

	require.NoError(t, h.acc.Start(context.Background()))
	assert.Equal(t, StateUnpaired, h.acc.State())
	assert.ErrorIs(t, h.acc.Start(context.Background()), ErrAlreadyStarted)

	txt := h.advertised(t)
	assert.Equal(t, h.acc.DeviceID(), txt.DeviceID)
	assert.Equal(t, discovery.StatusNotPaired, txt.StatusFlags)
	assert.Equal(t, discovery.CategoryLightbulb, txt.Category)
	assert.Equal(t, h.acc.SetupHash(), txt.SetupHash)
	assert.Equal(t, "Test Lamp", h.factory.Last().Instance())
	assert.Equal(t, DefaultPort, h.factory.Last().Port())

	sess, err := h.acc.OpenSession("peer", nil)
	require.NoError(t, err)

	require.NoError(t, h.acc.Stop())
	assert.Equal(t, StateStopped, h.acc.State())
	assert.True(t, h.factory.Last().IsShutdown())
	assert.True(t, sess.IsClosed(), "Stop should close connections")
	assert.ErrorIs(t, h.acc.Stop(), ErrAlreadyStopped)
	assert.ErrorIs(t, h.acc.Start(context.Background()), ErrAlreadyStopped)

	assert.Equal(t, []State{StateUnpaired, StateStopped}, h.rec.stateEvents())
}

func TestContextCancelStops(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.acc.Start(ctx))

	cancel()
	assert.Eventually(t, func() bool {
		return h.acc.State() == StateStopped
	}, time.Second, 5*time.Millisecond)
}

func TestMaxConnections(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxConnections = 2 })
	h.start(t)

	a, err := h.acc.OpenSession("a", nil)
	require.NoError(t, err)
	_, err = h.acc.OpenSession("b", nil)
	require.NoError(t, err)
	_, err = h.acc.OpenSession("c", nil)
	assert.ErrorIs(t, err, session.ErrSessionTableFull)

	h.acc.CloseSession(a)
	_, err = h.acc.OpenSession("c", nil)
	assert.NoError(t, err)
}

func TestPairingLifecycle(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	c, sess := h.client(t)
	info, err := c.PairSetup(testCode)
	require.NoError(t, err)
	assert.Equal(t, h.acc.DeviceID(), info.ID)

	assert.True(t, h.acc.IsPaired())
	assert.Equal(t, StatePaired, h.acc.State())
	assert.Equal(t, discovery.StatusFlag(0), h.advertised(t).StatusFlags)
	assert.Equal(t, []bool{true}, h.rec.pairedEvents())

	assert.False(t, h.acc.IsVerified(sess))
	assert.False(t, h.acc.IsAdmin(sess))

	_, err = c.PairVerify()
	require.NoError(t, err)
	assert.True(t, h.acc.IsVerified(sess))
	assert.True(t, h.acc.IsAdmin(sess))

	// Framing round trip with a controller-side session on the same keys.
	frames, err := h.acc.EncryptOutbound(sess, []byte("HTTP/1.1 200 OK\r\n\r\n"), []byte("body"))
	require.NoError(t, err)
	assert.NotEmpty(t, frames)

	// A second pair-setup is refused while paired.
	c2, _ := h.client(t)
	_, err = c2.PairSetup(testCode)
	assert.True(t, pairing.IsProtocolError(err, pairing.ErrorUnavailable), "got %v", err)

	// Adding a user then removing the only admin unpairs the accessory.
	user, err := pairing.NewClient(pairing.ClientConfig{Transport: h.transport(sess)})
	require.NoError(t, err)
	require.NoError(t, c.AddPairing(user.ID(), user.PublicKey(), false))
	assert.Len(t, h.acc.Controllers(), 2)

	require.NoError(t, c.RemovePairing(c.ID()))
	assert.False(t, h.acc.IsPaired())
	assert.Empty(t, h.acc.Controllers())
	assert.True(t, sess.IsClosed())
	assert.Equal(t, StateUnpaired, h.acc.State())
	assert.Equal(t, discovery.StatusNotPaired, h.advertised(t).StatusFlags)
	assert.Equal(t, []bool{true, false}, h.rec.pairedEvents())
	assert.Equal(t, []State{StateUnpaired, StatePaired, StateUnpaired}, h.rec.stateEvents())
}

func TestUnpair(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	c, sess := h.client(t)
	_, err := c.PairSetup(testCode)
	require.NoError(t, err)
	_, err = c.PairVerify()
	require.NoError(t, err)

	require.NoError(t, h.acc.Unpair())
	assert.False(t, h.acc.IsPaired())
	assert.True(t, sess.IsClosed())
	assert.Equal(t, discovery.StatusNotPaired, h.advertised(t).StatusFlags)
	assert.Equal(t, []bool{true, false}, h.rec.pairedEvents())

	_, err = h.store.Get(storage.KeyControllers)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Pairing works again afterwards.
	c2, _ := h.client(t)
	_, err = c2.PairSetup(testCode)
	assert.NoError(t, err)
}

func TestSetSetupCode(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	sess, err := h.acc.OpenSession("owner", nil)
	require.NoError(t, err)
	m1 := tlv8.New().SetByte(tlv8.TagState, 1).SetByte(tlv8.TagMethod, 0).Encode()
	_, err = h.acc.HandlePairSetup(sess, m1)
	require.NoError(t, err)

	assert.ErrorIs(t, h.acc.SetSetupCode("111-22-333"), ErrPairingInProgress)

	h.acc.CloseSession(sess)
	require.NoError(t, h.acc.SetSetupCode("11122333"))
	assert.Equal(t, "111-22-333", h.acc.SetupCode())
	assert.ErrorIs(t, h.acc.SetSetupCode("12345678"), ErrInvalidSetupCode)

	c, _ := h.client(t)
	_, err = c.PairSetup(testCode)
	assert.True(t, pairing.IsProtocolError(err, pairing.ErrorAuthentication), "old code: %v", err)

	c, _ = h.client(t)
	_, err = c.PairSetup("111-22-333")
	assert.NoError(t, err)
}

func TestResetIdentity(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	before := h.acc.DeviceID()
	require.NoError(t, h.acc.ResetIdentity())
	assert.NotEqual(t, before, h.acc.DeviceID())
	assert.Equal(t, h.acc.DeviceID(), h.advertised(t).DeviceID)

	c, _ := h.client(t)
	_, err := c.PairSetup(testCode)
	require.NoError(t, err)
	assert.ErrorIs(t, h.acc.ResetIdentity(), ErrPaired)
}

func TestBumpConfigNumber(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	require.NoError(t, h.acc.BumpConfigNumber())
	assert.Equal(t, uint16(2), h.advertised(t).ConfigNumber)

	h.store.FailWrites(true)
	assert.Error(t, h.acc.BumpConfigNumber())
	assert.Equal(t, uint16(2), h.acc.TXT().ConfigNumber, "failed store must keep the value")
	h.store.FailWrites(false)

	h.acc.config.ConfigNumber = 65535
	require.NoError(t, h.acc.BumpConfigNumber())
	assert.Equal(t, uint16(1), h.acc.TXT().ConfigNumber)
	require.NoError(t, h.acc.BumpConfigNumber())
	require.NoError(t, h.acc.Stop())

	// The stored value wins over the configured initial one.
	again, err := New(Config{
		Name:         "Test Lamp",
		SetupCode:    testCode,
		ConfigNumber: 9,
		Store:        h.store,
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(2), again.TXT().ConfigNumber)
}

func TestConfigNumberFromConfig(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.ConfigNumber = 7 })
	assert.Equal(t, uint16(7), h.acc.TXT().ConfigNumber)
}
