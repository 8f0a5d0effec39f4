package accessory

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/backkem/hap/pkg/controller"
	"github.com/backkem/hap/pkg/discovery"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/session"
	"github.com/backkem/hap/pkg/storage"
	"github.com/pion/logging"
)

// Accessory is a HomeKit accessory's pairing core. It owns the long-term
// identity, the controller registry, the connection table and the three
// pairing handlers, and keeps the mDNS advertisement in step with the
// pairing state.
type Accessory struct {
	config Config
	log    logging.LeveledLogger

	identity *identity
	registry *controller.Registry
	table    *session.Table
	setup    *pairing.Setup
	verify   *pairing.Verify
	pairings *pairing.Pairings

	verifierMu sync.RWMutex
	verifier   verifierRecord

	mu         sync.RWMutex
	state      State
	setupID    string
	advertiser *discovery.Advertiser
	stopCh     chan struct{}
}

// New creates an accessory, loading or creating its persisted state.
// The accessory is created but not started. Call Start() to begin
// advertising and accepting connections.
func New(config Config) (*Accessory, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()
	if config.Random == nil {
		config.Random = rand.Reader
	}

	a := &Accessory{
		config:   config,
		state:    StateInitialized,
		identity: &identity{},
		table:    session.NewTable(config.MaxConnections),
	}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("accessory")
	}

	if err := a.loadState(); err != nil {
		return nil, err
	}
	if err := a.initPairing(); err != nil {
		return nil, err
	}

	return a, nil
}

// loadState loads persisted state from storage.
func (a *Accessory) loadState() error {
	store := a.config.Store

	rec, created, err := loadIdentity(store, a.config.Random)
	if err != nil {
		return fmt.Errorf("accessory: load identity: %w", err)
	}
	a.identity.set(rec)
	if created && a.log != nil {
		a.log.Infof("created accessory identity %s", rec.DeviceID)
	}

	vrec, created, err := loadVerifier(store, a.config.Random, a.config.SetupCode)
	if err != nil {
		return fmt.Errorf("accessory: load verifier: %w", err)
	}
	a.verifier = vrec
	if created && a.log != nil {
		a.log.Debug("created setup verifier")
	}

	a.setupID, err = loadSetupID(store, a.config.Random, a.config.SetupID)
	if err != nil {
		return fmt.Errorf("accessory: load setup ID: %w", err)
	}

	a.config.ConfigNumber, err = loadConfigNumber(store, a.config.ConfigNumber)
	if err != nil {
		return fmt.Errorf("accessory: load config number: %w", err)
	}

	a.registry, err = controller.NewRegistry(controller.Config{
		MaxControllers: a.config.MaxControllers,
		Store:          store,
		TearDown:       a.tearDown,
		OnUnpaired:     func() { a.pairedChanged(false) },
		LoggerFactory:  a.config.LoggerFactory,
	})
	if err != nil {
		return err
	}
	return a.registry.Load()
}

// initPairing creates the pair-setup, pair-verify and pairings handlers.
func (a *Accessory) initPairing() error {
	var err error
	a.setup, err = pairing.NewSetup(pairing.SetupConfig{
		Identity:      a.identity,
		Verifier:      a,
		Registry:      a.registry,
		Notifier:      pairing.NotifierFunc(a.pairedChanged),
		Random:        a.config.Random,
		LoggerFactory: a.config.LoggerFactory,
	})
	if err != nil {
		return err
	}
	a.verify, err = pairing.NewVerify(pairing.VerifyConfig{
		Identity:      a.identity,
		Registry:      a.registry,
		Random:        a.config.Random,
		LoggerFactory: a.config.LoggerFactory,
	})
	if err != nil {
		return err
	}
	a.pairings, err = pairing.NewPairings(pairing.PairingsConfig{
		Registry:      a.registry,
		LoggerFactory: a.config.LoggerFactory,
	})
	return err
}

// Start begins advertising. Cancelling ctx stops the accessory.
func (a *Accessory) Start(ctx context.Context) error {
	a.mu.Lock()

	if !a.state.CanStart() {
		state := a.state
		a.mu.Unlock()
		if state.IsRunning() {
			return ErrAlreadyStarted
		}
		return ErrAlreadyStopped
	}

	adv, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{
		Instance:      a.config.Name,
		Port:          a.config.Port,
		ServerFactory: a.config.AdvertiserFactory,
		LoggerFactory: a.config.LoggerFactory,
	})
	if err != nil {
		a.mu.Unlock()
		return err
	}
	if err := adv.Start(a.txtLocked()); err != nil {
		a.mu.Unlock()
		return err
	}

	a.advertiser = adv
	a.stopCh = make(chan struct{})
	if a.registry.IsPaired() {
		a.state = StatePaired
	} else {
		a.state = StateUnpaired
	}
	state, stopCh := a.state, a.stopCh
	a.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = a.Stop()
		case <-stopCh:
		}
	}()

	if a.log != nil {
		a.log.Infof("accessory %s started, state=%s", a.identity.DeviceID(), state)
	}
	if a.config.OnStateChanged != nil {
		a.config.OnStateChanged(state)
	}
	return nil
}

// Stop withdraws the advertisement and closes every connection.
func (a *Accessory) Stop() error {
	a.mu.Lock()

	if !a.state.CanStop() {
		state := a.state
		a.mu.Unlock()
		if state == StateStopped {
			return ErrAlreadyStopped
		}
		return ErrNotStarted
	}

	a.state = StateStopped
	close(a.stopCh)
	adv := a.advertiser
	a.advertiser = nil
	a.mu.Unlock()

	if adv != nil {
		_ = adv.Close()
	}
	n := a.table.TearDown("")

	if a.log != nil {
		a.log.Infof("accessory stopped, closed %d connections", n)
	}
	if a.config.OnStateChanged != nil {
		a.config.OnStateChanged(StateStopped)
	}
	return nil
}

// State returns the current state.
func (a *Accessory) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// IsPaired reports whether at least one admin controller is paired.
func (a *Accessory) IsPaired() bool {
	return a.registry.IsPaired()
}

// DeviceID returns the accessory pairing identifier.
func (a *Accessory) DeviceID() string {
	return a.identity.DeviceID()
}

// PublicKey returns the accessory's long-term Ed25519 public key.
func (a *Accessory) PublicKey() ed25519.PublicKey {
	return a.identity.PublicKey()
}

// SetupCode returns the current setup code in "XXX-XX-XXX" form.
func (a *Accessory) SetupCode() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config.SetupCode
}

// SetupID returns the setup ID embedded in the setup payload.
func (a *Accessory) SetupID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.setupID
}

// Port returns the configured HAP port.
func (a *Accessory) Port() int {
	return a.config.Port
}

// Controllers returns the paired controllers.
func (a *Accessory) Controllers() []controller.Controller {
	return a.registry.List()
}

// Registry returns the controller registry.
func (a *Accessory) Registry() *controller.Registry {
	return a.registry
}

// Sessions returns the connection table.
func (a *Accessory) Sessions() *session.Table {
	return a.table
}

// LoggerFactory returns the accessory's logger factory.
// Returns nil if no logger factory was configured.
func (a *Accessory) LoggerFactory() logging.LoggerFactory {
	return a.config.LoggerFactory
}

// SetupVerifier returns the SRP salt and verifier of the current setup
// code.
func (a *Accessory) SetupVerifier() (salt, verifier []byte, err error) {
	a.verifierMu.RLock()
	defer a.verifierMu.RUnlock()
	if a.verifier.Salt == nil {
		return nil, nil, ErrCorruptState
	}
	return append([]byte(nil), a.verifier.Salt...), append([]byte(nil), a.verifier.Verifier...), nil
}

// SetSetupCode replaces the setup code and its persisted verifier. It
// fails while a pair-setup attempt is pending.
func (a *Accessory) SetSetupCode(code string) error {
	formatted, err := ParseSetupCode(code)
	if err != nil {
		return err
	}
	if a.setup.InProgress() {
		return ErrPairingInProgress
	}

	rec, err := newVerifierRecord(a.config.Random, formatted)
	if err != nil {
		return err
	}
	if err := storage.Save(a.config.Store, storage.KeyVerifyData, &rec); err != nil {
		return fmt.Errorf("accessory: save verifier: %w", err)
	}

	a.verifierMu.Lock()
	a.verifier = rec
	a.verifierMu.Unlock()

	a.mu.Lock()
	a.config.SetupCode = formatted
	a.mu.Unlock()

	if a.log != nil {
		a.log.Info("setup code changed")
	}
	return nil
}

// ResetIdentity draws a new device ID and key pair. Controllers key their
// pairings on the identity, so this is refused while any is registered.
func (a *Accessory) ResetIdentity() error {
	if a.registry.Count() > 0 {
		return ErrPaired
	}

	rec, err := newIdentityRecord(a.config.Random)
	if err != nil {
		return err
	}
	if err := storage.Save(a.config.Store, storage.KeyAccessory, &rec); err != nil {
		return fmt.Errorf("accessory: save identity: %w", err)
	}
	a.identity.set(rec)

	if a.log != nil {
		a.log.Infof("identity reset, device ID now %s", rec.DeviceID)
	}
	return a.refreshAdvertisement()
}

// Unpair removes every controller and closes every connection.
func (a *Accessory) Unpair() error {
	if err := a.registry.Clear(); err != nil {
		return err
	}
	if a.log != nil {
		a.log.Info("all pairings removed")
	}
	return nil
}

// BumpConfigNumber increments the c# value, wrapping from 65535 to 1,
// stores it and updates the advertisement. Call when the accessory
// database changes.
func (a *Accessory) BumpConfigNumber() error {
	a.mu.Lock()
	next := a.config.ConfigNumber + 1
	if next == 0 {
		next = 1
	}
	if err := storage.Save(a.config.Store, storage.KeyConfigNum, next); err != nil {
		a.mu.Unlock()
		return fmt.Errorf("accessory: store config number: %w", err)
	}
	a.config.ConfigNumber = next
	a.mu.Unlock()

	if a.log != nil {
		a.log.Infof("configuration number is now %d", next)
	}
	return a.refreshAdvertisement()
}

// TXT returns the TXT record the accessory advertises.
func (a *Accessory) TXT() discovery.TXT {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.txtLocked()
}

// txtLocked builds the TXT record. Caller holds a.mu.
func (a *Accessory) txtLocked() discovery.TXT {
	deviceID := a.identity.DeviceID()
	return discovery.TXT{
		ConfigNumber:    a.config.ConfigNumber,
		DeviceID:        deviceID,
		Model:           a.config.Model,
		ProtocolVersion: discovery.DefaultProtocolVersion,
		StateNumber:     discovery.DefaultStateNumber,
		StatusFlags:     statusFlags(a.registry.IsPaired()),
		Category:        a.config.Category,
		SetupHash:       setupHash(a.setupID, deviceID),
	}
}

func statusFlags(paired bool) discovery.StatusFlag {
	if paired {
		return 0
	}
	return discovery.StatusNotPaired
}

// refreshAdvertisement pushes the current TXT record if advertising.
func (a *Accessory) refreshAdvertisement() error {
	a.mu.RLock()
	adv := a.advertiser
	txt := a.txtLocked()
	a.mu.RUnlock()

	if adv == nil {
		return nil
	}
	return adv.Update(txt)
}

// pairedChanged runs when pair-setup completes or the last admin goes.
func (a *Accessory) pairedChanged(paired bool) {
	a.mu.Lock()
	changed := false
	if a.state.IsRunning() {
		next := StateUnpaired
		if paired {
			next = StatePaired
		}
		changed = next != a.state
		a.state = next
	}
	state, adv := a.state, a.advertiser
	a.mu.Unlock()

	if adv != nil {
		if err := adv.UpdateStatus(statusFlags(paired)); err != nil && a.log != nil {
			a.log.Warnf("update status flags: %v", err)
		}
	}
	if a.log != nil {
		a.log.Infof("paired=%v", paired)
	}
	if a.config.OnPaired != nil {
		a.config.OnPaired(paired)
	}
	if changed && a.config.OnStateChanged != nil {
		a.config.OnStateChanged(state)
	}
}

// tearDown is the registry's hook for closing connections. It runs with
// the registry locked.
func (a *Accessory) tearDown(controllerID string) {
	n := a.table.TearDown(controllerID)
	if n > 0 && a.log != nil {
		if controllerID == "" {
			a.log.Debugf("closed all %d connections", n)
		} else {
			a.log.Debugf("closed %d connections of %s", n, controllerID)
		}
	}
}
