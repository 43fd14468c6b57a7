package tracking

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Manager keeps at most one live tracking session per order and tears
// sessions down when the order is finished or the service stops.
type Manager struct {
	orders   OrderSource
	couriers CourierSource
	routes   RouteProvider
	cfg      Config
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(orders OrderSource, couriers CourierSource, routes RouteProvider, cfg Config, logger *zap.Logger) *Manager {
	return &Manager{
		orders:   orders,
		couriers: couriers,
		routes:   routes,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Track returns the session for the order, starting one if needed.
func (m *Manager) Track(ctx context.Context, orderID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[orderID]; ok {
		return s
	}
	s := NewSession(orderID, m.orders, m.couriers, m.routes, m.cfg, m.logger)
	s.Start(ctx)
	m.sessions[orderID] = s
	return s
}

// Stop closes and forgets the order's session, if any.
func (m *Manager) Stop(orderID string) {
	m.mu.Lock()
	s, ok := m.sessions[orderID]
	delete(m.sessions, orderID)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// StopAll tears down every live session, used on shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
