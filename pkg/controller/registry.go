package controller

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/backkem/hap/pkg/storage"
	"github.com/pion/logging"
)

// Config configures the registry.
type Config struct {
	// MaxControllers is the registry capacity. Default: 16.
	MaxControllers int

	// Store persists the registry. Required.
	Store storage.BlobStore

	// TearDown closes the connections verified as the given controller,
	// or every connection when the identifier is empty. It runs with the
	// registry locked and must not call back into the registry.
	TearDown func(controllerID string)

	// OnUnpaired is called after the last admin has been removed and the
	// registry cleared.
	OnUnpaired func()

	// LoggerFactory for creating loggers. Optional.
	LoggerFactory logging.LoggerFactory
}

// Registry is the set of paired controllers.
//
// Every mutation is persisted before it becomes visible: if the store
// fails, the in-memory state is left unchanged.
//
// Thread Safety: All methods are safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	controllers []Controller
	config      Config
	log         logging.LeveledLogger
}

// NewRegistry creates an empty registry. Call Load to restore persisted
// controllers.
func NewRegistry(config Config) (*Registry, error) {
	if config.Store == nil {
		return nil, errors.New("controller: store is required")
	}
	if config.MaxControllers <= 0 {
		config.MaxControllers = DefaultMaxControllers
	}
	r := &Registry{config: config}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("controller")
	}
	return r, nil
}

// Load replaces the in-memory registry with the persisted one. A missing
// key yields an empty registry.
func (r *Registry) Load() error {
	var list []Controller
	err := storage.Load(r.config.Store, storage.KeyControllers, &list)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	for i := range list {
		if verr := list[i].Validate(); verr != nil {
			return fmt.Errorf("controller: stored entry %d: %w", i, verr)
		}
	}
	if len(list) > r.config.MaxControllers {
		return fmt.Errorf("controller: %d stored entries exceed capacity %d", len(list), r.config.MaxControllers)
	}

	r.mu.Lock()
	r.controllers = list
	r.mu.Unlock()

	if r.log != nil {
		r.log.Debugf("loaded %d controllers", len(list))
	}
	return nil
}

// Find returns the controller with the given identifier.
func (r *Registry) Find(id string) (Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.index(id); i >= 0 {
		return r.controllers[i].Clone(), true
	}
	return Controller{}, false
}

// Add inserts a controller or updates the admin flag of a known one.
//
// Returns ErrTableFull if the registry is at capacity, and
// ErrPublicKeyMismatch if the identifier is known with another key.
func (r *Registry) Add(id string, publicKey []byte, admin bool) error {
	c := Controller{ID: id, PublicKey: append([]byte(nil), publicKey...), Admin: admin}
	if err := c.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.snapshot()
	if i := r.index(id); i >= 0 {
		if !next[i].MatchesPublicKey(publicKey) {
			return ErrPublicKeyMismatch
		}
		next[i].Admin = admin
	} else {
		if len(next) >= r.config.MaxControllers {
			return ErrTableFull
		}
		next = append(next, c)
	}

	if err := r.persist(next); err != nil {
		return err
	}
	r.controllers = next

	if r.log != nil {
		r.log.Infof("controller %s paired", c)
	}
	return nil
}

// Remove deletes a controller and closes its connections. Removing an
// unknown identifier does nothing.
//
// If no admin remains afterwards, every connection is closed, the
// registry is cleared and OnUnpaired fires.
func (r *Registry) Remove(id string) error {
	finish, err := r.Unregister(id)
	if err != nil {
		return err
	}
	finish()
	return nil
}

// Unregister deletes a controller like Remove but leaves its connections
// open. The deletion is persisted and visible when Unregister returns;
// the returned finish closes the connections and, if no admin remained,
// fires OnUnpaired. finish is never nil. On error nothing changed.
func (r *Registry) Unregister(id string) (finish func(), err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(id)
	if i < 0 {
		return func() {}, nil
	}

	next := make([]Controller, 0, len(r.controllers))
	next = append(next, r.controllers[:i]...)
	next = append(next, r.controllers[i+1:]...)
	unpaired := countAdmins(next) == 0
	if unpaired {
		next = nil
	}

	if err := r.persist(next); err != nil {
		return nil, err
	}
	r.controllers = next
	if r.log != nil {
		r.log.Infof("controller %s removed", id)
		if unpaired {
			r.log.Info("last admin removed, accessory unpaired")
		}
	}

	return func() { r.finishRemoval(id, unpaired) }, nil
}

func (r *Registry) finishRemoval(id string, unpaired bool) {
	r.mu.Lock()
	r.tearDown(id)
	if unpaired {
		r.tearDown("")
	}
	r.mu.Unlock()

	if unpaired && r.config.OnUnpaired != nil {
		r.config.OnUnpaired()
	}
}

// Clear removes every controller and closes every connection. OnUnpaired
// fires if the registry was not already empty.
func (r *Registry) Clear() error {
	r.mu.Lock()

	wasPaired := len(r.controllers) > 0
	if err := r.persist(nil); err != nil {
		r.mu.Unlock()
		return err
	}
	r.controllers = nil
	r.tearDown("")
	r.mu.Unlock()

	if wasPaired && r.config.OnUnpaired != nil {
		r.config.OnUnpaired()
	}
	return nil
}

// CountAdmins returns the number of admin controllers.
func (r *Registry) CountAdmins() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return countAdmins(r.controllers)
}

// IsPaired reports whether at least one admin is registered.
func (r *Registry) IsPaired() bool {
	return r.CountAdmins() > 0
}

// List returns the controllers in insertion order.
//
// The returned slice contains clones - modifications won't affect the registry.
func (r *Registry) List() []Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot()
}

// Count returns the number of controllers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.controllers)
}

// MaxControllers returns the registry capacity.
func (r *Registry) MaxControllers() int {
	return r.config.MaxControllers
}

// String returns a human-readable description of the registry.
func (r *Registry) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Registry(%d/%d)", len(r.controllers), r.config.MaxControllers)
	for _, c := range r.controllers {
		b.WriteString(" ")
		b.WriteString(c.String())
	}
	return b.String()
}

// index returns the position of id, or -1. Caller holds r.mu.
func (r *Registry) index(id string) int {
	for i := range r.controllers {
		if r.controllers[i].ID == id {
			return i
		}
	}
	return -1
}

// snapshot deep-copies the controller list. Caller holds r.mu.
func (r *Registry) snapshot() []Controller {
	out := make([]Controller, len(r.controllers))
	for i := range r.controllers {
		out[i] = r.controllers[i].Clone()
	}
	return out
}

// persist writes list, erasing the key when it is empty.
func (r *Registry) persist(list []Controller) error {
	var err error
	if len(list) == 0 {
		err = r.config.Store.Erase(storage.KeyControllers)
		if err == nil {
			err = r.config.Store.Commit()
		}
	} else {
		err = storage.Save(r.config.Store, storage.KeyControllers, list)
	}
	if err != nil {
		if r.log != nil {
			r.log.Errorf("persist controllers: %v", err)
		}
		return fmt.Errorf("controller: persist: %w", err)
	}
	return nil
}

func (r *Registry) tearDown(id string) {
	if r.config.TearDown != nil {
		r.config.TearDown(id)
	}
}

func countAdmins(list []Controller) int {
	n := 0
	for i := range list {
		if list[i].Admin {
			n++
		}
	}
	return n
}
