package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Manager is the registry of live session controllers, keyed by attempt ID.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Controller
	log      zerolog.Logger
}

// NewManager creates an empty session registry.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		sessions: make(map[uuid.UUID]*Controller),
		log:      log.With().Str("component", "session_manager").Logger(),
	}
}

// Put registers a controller for an attempt, replacing any previous one.
// The replaced controller is torn down so its timer goroutine cannot keep
// mutating a disposed session.
func (m *Manager) Put(attemptID uuid.UUID, c *Controller) {
	m.mu.Lock()
	old, existed := m.sessions[attemptID]
	m.sessions[attemptID] = c
	m.mu.Unlock()

	if existed {
		old.Teardown()
	}
}

// Get returns the live controller for an attempt, if any.
func (m *Manager) Get(attemptID uuid.UUID) (*Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.sessions[attemptID]
	return c, ok
}

// Remove tears down and forgets the controller for an attempt. Idempotent.
func (m *Manager) Remove(attemptID uuid.UUID) {
	m.mu.Lock()
	c, ok := m.sessions[attemptID]
	delete(m.sessions, attemptID)
	m.mu.Unlock()

	if ok {
		c.Teardown()
	}
}

// Shutdown tears down every live session, used on server stop.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Controller, 0, len(m.sessions))
	for _, c := range m.sessions {
		sessions = append(sessions, c)
	}
	m.sessions = make(map[uuid.UUID]*Controller)
	m.mu.Unlock()

	for _, c := range sessions {
		c.Teardown()
	}
	m.log.Info().Int("count", len(sessions)).Msg("Live sessions torn down")
}
