package checkout

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Manager keeps at most one checkout session per client. Sessions are
// created on first open and resumed from the durable marker, so a
// reload never restarts a finished checkout.
type Manager struct {
	params    Params
	submitter OrderSubmitter
	markers   ActiveOrderStore
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(params Params, submitter OrderSubmitter, markers ActiveOrderStore, logger *zap.Logger) *Manager {
	return &Manager{
		params:    params,
		submitter: submitter,
		markers:   markers,
		logger:    logger,
		sessions:  make(map[string]*Session),
	}
}

// Open returns the client's session, creating and resuming it if
// needed.
func (m *Manager) Open(ctx context.Context, clientID string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[clientID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	s := NewSession(clientID, m.params, m.submitter, m.markers, m.logger)
	if _, err := s.Resume(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[clientID]; ok {
		return existing, nil
	}
	m.sessions[clientID] = s
	return s, nil
}

// Get returns an already-open session, or nil.
func (m *Manager) Get(clientID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[clientID]
}

// Close discards the client's session and clears the durable marker,
// used when a delivered order is acknowledged.
func (m *Manager) Close(ctx context.Context, clientID string) error {
	m.mu.Lock()
	delete(m.sessions, clientID)
	m.mu.Unlock()
	return m.markers.ClearActiveOrder(ctx, clientID)
}
