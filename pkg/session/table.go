package session

import "sync"

// DefaultMaxSessions is the default maximum number of concurrent
// connections.
const DefaultMaxSessions = 8

// Table tracks the live sessions of an accessory.
//
// Session IDs are allocated sequentially and never reused while the
// process runs.
type Table struct {
	sessions    map[uint64]*Session
	maxSessions int
	nextID      uint64

	mu sync.RWMutex
}

// NewTable creates a new session table.
// maxSessions limits the number of concurrent sessions (0 uses DefaultMaxSessions).
func NewTable(maxSessions int) *Table {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Table{
		sessions:    make(map[uint64]*Session),
		maxSessions: maxSessions,
		nextID:      1,
	}
}

// Open creates an accessory-role session with a fresh ID and adds it.
func (t *Table) Open(remote string, onClose func()) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.sessions) >= t.maxSessions {
		return nil, ErrSessionTableFull
	}
	s, err := New(Config{
		ID:      t.nextID,
		Remote:  remote,
		Role:    RoleAccessory,
		OnClose: onClose,
	})
	if err != nil {
		return nil, err
	}
	t.nextID++
	t.sessions[s.ID()] = s
	return s, nil
}

// Add adds an existing session to the table.
func (t *Table) Add(s *Session) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.sessions) >= t.maxSessions {
		return ErrSessionTableFull
	}
	if _, exists := t.sessions[s.ID()]; exists {
		return ErrDuplicateSession
	}
	t.sessions[s.ID()] = s
	if s.ID() >= t.nextID {
		t.nextID = s.ID() + 1
	}
	return nil
}

// Remove removes a session from the table without closing it.
// No error is returned if the session doesn't exist.
func (t *Table) Remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, id)
}

// Get looks up a session by ID. Returns nil if not found.
func (t *Table) Get(id uint64) *Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessions[id]
}

// ForController returns the sessions verified as the given controller.
func (t *Table) ForController(controllerID string) []*Session {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var result []*Session
	for _, s := range t.sessions {
		if s.ControllerID() == controllerID {
			result = append(result, s)
		}
	}
	return result
}

// TearDown closes every session verified as controllerID, or every
// session when controllerID is empty. Closed sessions are removed.
// Returns the number of sessions closed.
func (t *Table) TearDown(controllerID string) int {
	t.mu.Lock()
	var victims []*Session
	for id, s := range t.sessions {
		if controllerID == "" || s.ControllerID() == controllerID {
			victims = append(victims, s)
			delete(t.sessions, id)
		}
	}
	t.mu.Unlock()

	// Close hooks may block on the network; run them unlocked.
	for _, s := range victims {
		s.Close()
	}
	return len(victims)
}

// Count returns the number of active sessions.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// IsFull returns true if no more sessions can be added.
func (t *Table) IsFull() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions) >= t.maxSessions
}

// MaxSessions returns the maximum number of sessions allowed.
func (t *Table) MaxSessions() int {
	return t.maxSessions
}

// ForEach calls fn for each session in the table.
// The callback should not modify the table.
func (t *Table) ForEach(fn func(*Session) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, s := range t.sessions {
		if !fn(s) {
			return
		}
	}
}
