// Package tracking reconciles the storefront's view of an in-flight
// order against the polled remote state. A Session runs two
// independent polling loops (order snapshot, courier fix) and derives
// route requests and camera directives from what they report. The
// client side never advances order status; it only reflects the last
// successful poll.
package tracking

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/deliverydash/pkg/geo"
	"github.com/example/deliverydash/pkg/models"
	"go.uber.org/zap"
)

type OrderSource interface {
	FetchOrder(ctx context.Context, orderID string) (*models.OrderSnapshot, error)
}

type CourierSource interface {
	FetchCourierLocation(ctx context.Context, courierID string) (*models.Coordinates, error)
}

// RouteProvider returns an encoded polyline for the leg between two
// points. Failures are degraded-mode: the map renders without a line.
type RouteProvider interface {
	ComputeRoute(ctx context.Context, origin, destination models.Coordinates) (string, error)
}

type Config struct {
	OrderPollInterval   time.Duration
	CourierPollInterval time.Duration
	// MoveThresholdKm bounds routing calls: courier fixes closer than
	// this to the last one are treated as unchanged.
	MoveThresholdKm float64
}

func DefaultConfig() Config {
	return Config{
		OrderPollInterval:   5 * time.Second,
		CourierPollInterval: 10 * time.Second,
		MoveThresholdKm:     0.01,
	}
}

// State is the client-facing view assembled by the session.
type State struct {
	OrderID  string                `json:"order_id"`
	Snapshot *models.OrderSnapshot `json:"snapshot,omitempty"`
	Courier  *models.Coordinates   `json:"courier,omitempty"`
	Route    string                `json:"route,omitempty"` // encoded polyline
	Progress int                   `json:"progress"`
	Camera   CameraDirective       `json:"camera"`
}

type Session struct {
	orderID  string
	orders   OrderSource
	couriers CourierSource
	routes   RouteProvider
	cfg      Config
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Request generations. Responses are applied only in issue order,
	// so a slow poll that lands after a newer one is discarded.
	orderSeq          uint64
	appliedOrderSeq   uint64
	courierSeq        uint64
	appliedCourierSeq uint64
	routeSeq          uint64
	appliedRouteSeq   uint64

	mu     sync.Mutex
	closed bool
	state  State
}

func NewSession(orderID string, orders OrderSource, couriers CourierSource, routes RouteProvider, cfg Config, logger *zap.Logger) *Session {
	if cfg.OrderPollInterval <= 0 {
		cfg.OrderPollInterval = DefaultConfig().OrderPollInterval
	}
	if cfg.CourierPollInterval <= 0 {
		cfg.CourierPollInterval = DefaultConfig().CourierPollInterval
	}
	if cfg.MoveThresholdKm <= 0 {
		cfg.MoveThresholdKm = DefaultConfig().MoveThresholdKm
	}
	return &Session{
		orderID:  orderID,
		orders:   orders,
		couriers: couriers,
		routes:   routes,
		cfg:      cfg,
		logger:   logger,
		state:    State{OrderID: orderID, Progress: -1, Camera: CameraDirective{Mode: CameraFitBounds, Padding: fitPadding}},
	}
}

// Start launches both polling loops. Each loop polls immediately and
// then on its own interval; a slow response on one never stalls the
// other.
func (s *Session) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.loop(ctx, s.cfg.OrderPollInterval, s.pollOrder)
	go s.loop(ctx, s.cfg.CourierPollInterval, s.pollCourier)
}

// Close cancels the timers and in-flight requests. Responses that
// arrive afterwards are discarded, never applied to stale state.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Session) OrderID() string { return s.orderID }

// State returns a copy of the current reconciled view.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) loop(ctx context.Context, interval time.Duration, poll func(ctx context.Context)) {
	defer s.wg.Done()

	poll(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll(ctx)
		}
	}
}

// pollOrder pulls the order snapshot. Poll failures are logged and
// swallowed; the next tick retries.
func (s *Session) pollOrder(ctx context.Context) {
	seq := atomic.AddUint64(&s.orderSeq, 1)

	snap, err := s.orders.FetchOrder(ctx, s.orderID)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("order poll failed", zap.String("order_id", s.orderID), zap.Error(err))
		}
		return
	}
	s.applySnapshot(ctx, seq, snap)
}

func (s *Session) applySnapshot(ctx context.Context, seq uint64, snap *models.OrderSnapshot) {
	s.mu.Lock()
	if s.closed || seq <= s.appliedOrderSeq {
		s.mu.Unlock()
		return
	}
	s.appliedOrderSeq = seq

	prev := s.state.Snapshot
	s.state.Snapshot = snap

	// Displayed progress never regresses, even if the server briefly
	// reports an earlier status.
	if p := snap.Status.ProgressIndex(); p > s.state.Progress {
		s.state.Progress = p
	}
	s.state.Camera = directiveFor(snap, s.state.Courier)

	changed := prev == nil ||
		prev.Status != snap.Status ||
		!sameCourierRef(prev.CourierID, snap.CourierID) ||
		!sameCoords(prev.Destination, snap.Destination)
	origin, target, want := s.routeEndpoints()
	s.mu.Unlock()

	if changed && want {
		s.fetchRoute(ctx, origin, target)
	}
}

// pollCourier pulls the courier fix once the order has an assigned
// courier.
func (s *Session) pollCourier(ctx context.Context) {
	s.mu.Lock()
	var courierID string
	if s.state.Snapshot != nil && s.state.Snapshot.CourierID != nil {
		courierID = *s.state.Snapshot.CourierID
	}
	s.mu.Unlock()
	if courierID == "" {
		return
	}

	seq := atomic.AddUint64(&s.courierSeq, 1)
	fix, err := s.couriers.FetchCourierLocation(ctx, courierID)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("courier poll failed", zap.String("courier_id", courierID), zap.Error(err))
		}
		return
	}
	if fix == nil {
		return
	}
	s.applyCourier(ctx, seq, fix)
}

func (s *Session) applyCourier(ctx context.Context, seq uint64, fix *models.Coordinates) {
	s.mu.Lock()
	if s.closed || seq <= s.appliedCourierSeq {
		s.mu.Unlock()
		return
	}
	s.appliedCourierSeq = seq

	moved := s.state.Courier == nil ||
		geo.DistanceKm(*s.state.Courier, *fix) >= s.cfg.MoveThresholdKm
	s.state.Courier = fix
	if s.state.Snapshot != nil {
		s.state.Camera = directiveFor(s.state.Snapshot, fix)
	}
	origin, target, want := s.routeEndpoints()
	s.mu.Unlock()

	// A fix within the movement threshold is treated as unchanged and
	// does not trigger a route request.
	if moved && want {
		s.fetchRoute(ctx, origin, target)
	}
}

// routeEndpoints picks the leg to route, mu held. While the order is
// still at the restaurant (pending/accepted) a known courier is routed
// to the restaurant; otherwise the leg runs to the customer, falling
// back to restaurant -> customer when no courier fix exists.
func (s *Session) routeEndpoints() (origin, target models.Coordinates, ok bool) {
	snap := s.state.Snapshot
	if snap == nil {
		return origin, target, false
	}
	courier := s.state.Courier

	if (snap.Status == models.StatusPending || snap.Status == models.StatusAccepted) && courier != nil {
		return *courier, snap.Origin, true
	}
	if snap.Destination == nil {
		return origin, target, false
	}
	if courier != nil {
		return *courier, *snap.Destination, true
	}
	return snap.Origin, *snap.Destination, true
}

func (s *Session) fetchRoute(ctx context.Context, origin, target models.Coordinates) {
	seq := atomic.AddUint64(&s.routeSeq, 1)

	polyline, err := s.routes.ComputeRoute(ctx, origin, target)
	if err != nil {
		// Degraded mode: keep the previous line, the map still renders.
		if ctx.Err() == nil {
			s.logger.Warn("route fetch failed", zap.String("order_id", s.orderID), zap.Error(err))
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq <= s.appliedRouteSeq {
		return
	}
	s.appliedRouteSeq = seq
	s.state.Route = polyline
}

func sameCourierRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameCoords(a, b *models.Coordinates) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
