// Package checkout drives the cart -> details -> confirmation ->
// success flow. A Session owns its state exclusively; persistence and
// identity are collaborator concerns injected through interfaces.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/deliverydash/pkg/geo"
	"github.com/example/deliverydash/pkg/models"
	"github.com/example/deliverydash/pkg/pricing"
	"go.uber.org/zap"
)

type Stage string

const (
	StageCart         Stage = "cart"
	StageDetails      Stage = "details"
	StageConfirmation Stage = "confirmation"
	StageSuccess      Stage = "success"
)

// Validation errors block a stage transition and are surfaced inline;
// they are never retried automatically.
var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrIncompleteDetails = errors.New("delivery details incomplete")
	ErrNotAuthenticated  = errors.New("caller is not authenticated")
	ErrWrongStage        = errors.New("not allowed in current stage")
	ErrSubmitInFlight    = errors.New("submission already in flight")
	ErrInvalidLine       = errors.New("invalid cart line")
)

// OrderSubmitter creates the order. It must not partially commit.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, clientID string, details models.DeliveryDetails, totals models.CartTotals, lines []models.CartLine) (*models.Order, error)
}

// ActiveOrderStore is the durable "active order id" marker used to
// resume a finished checkout after a reload. ActiveOrder returns ""
// when no marker exists.
type ActiveOrderStore interface {
	SetActiveOrder(ctx context.Context, clientID, orderID string) error
	ActiveOrder(ctx context.Context, clientID string) (string, error)
	ClearActiveOrder(ctx context.Context, clientID string) error
}

// Params are the pricing inputs shared by every session.
type Params struct {
	Restaurant models.Coordinates
	BaseFee    float64
	PricePerKm float64

	// SubmitDelay is an optional presentation pause before a successful
	// submission is reported. Zero disables it.
	SubmitDelay time.Duration
}

type Session struct {
	clientID  string
	params    Params
	submitter OrderSubmitter
	markers   ActiveOrderStore
	logger    *zap.Logger

	mu            sync.Mutex
	stage         Stage
	lines         []models.CartLine
	details       models.DeliveryDetails
	authenticated bool
	totals        models.CartTotals
	submitting    bool
	orderID       string
}

func NewSession(clientID string, params Params, submitter OrderSubmitter, markers ActiveOrderStore, logger *zap.Logger) *Session {
	s := &Session{
		clientID:  clientID,
		params:    params,
		submitter: submitter,
		markers:   markers,
		logger:    logger,
		stage:     StageCart,
	}
	s.recompute()
	return s
}

// Resume checks the durable marker and, when an active order exists,
// opens the session at the success stage so the client lands on
// tracking instead of an empty cart. Returns the active order id, or
// "" for a fresh session.
func (s *Session) Resume(ctx context.Context) (string, error) {
	orderID, err := s.markers.ActiveOrder(ctx, s.clientID)
	if err != nil {
		return "", fmt.Errorf("read active order marker: %w", err)
	}
	if orderID == "" {
		return "", nil
	}

	s.mu.Lock()
	s.stage = StageSuccess
	s.orderID = orderID
	s.mu.Unlock()
	return orderID, nil
}

func (s *Session) ClientID() string { return s.clientID }

func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

func (s *Session) OrderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderID
}

// Totals returns the totals computed by the last mutation. They are
// never recomputed lazily, so this is always consistent with the cart.
func (s *Session) Totals() models.CartTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}

func (s *Session) Lines() []models.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *Session) Details() models.DeliveryDetails {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.details
}

// SetAuthenticated records the identity gate decided by the session
// layer. It only matters for the details -> confirmation transition.
func (s *Session) SetAuthenticated(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = ok
}

// AddLine appends a cart line after boundary validation and refreshes
// the totals synchronously.
func (s *Session) AddLine(line models.CartLine) error {
	if err := validateLine(line); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage == StageSuccess {
		return ErrWrongStage
	}
	s.lines = append(s.lines, line)
	s.recompute()
	return nil
}

func (s *Session) RemoveLine(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage == StageSuccess {
		return ErrWrongStage
	}
	if index < 0 || index >= len(s.lines) {
		return fmt.Errorf("%w: line index %d out of range", ErrInvalidLine, index)
	}
	s.lines = append(s.lines[:index], s.lines[index+1:]...)
	s.recompute()
	return nil
}

func (s *Session) SetQuantity(index, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidLine)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage == StageSuccess {
		return ErrWrongStage
	}
	if index < 0 || index >= len(s.lines) {
		return fmt.Errorf("%w: line index %d out of range", ErrInvalidLine, index)
	}
	s.lines[index].Quantity = quantity
	s.recompute()
	return nil
}

// SetDetails replaces the delivery details. Changing the destination
// changes the delivery fee, so totals are refreshed in the same call.
func (s *Session) SetDetails(details models.DeliveryDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage == StageSuccess {
		return ErrWrongStage
	}
	s.details = details
	s.recompute()
	return nil
}

// Next advances one stage if the gate for the current stage holds.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.stage {
	case StageCart:
		if len(s.lines) == 0 {
			return ErrEmptyCart
		}
		s.stage = StageDetails
	case StageDetails:
		if !s.details.Complete() {
			return ErrIncompleteDetails
		}
		if !s.authenticated {
			return ErrNotAuthenticated
		}
		s.stage = StageConfirmation
	default:
		return ErrWrongStage
	}
	return nil
}

// Back moves one stage backward. Always allowed except from success.
func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.stage {
	case StageDetails:
		s.stage = StageCart
	case StageConfirmation:
		s.stage = StageDetails
	default:
		return ErrWrongStage
	}
	return nil
}

// Submit hands the order to the submitter. Exactly one call may be
// outstanding at a time; duplicates are rejected with
// ErrSubmitInFlight while the first is pending. On failure the session
// stays in confirmation and the guard is released so the user can
// retry. On success the active-order marker is written and the session
// reaches its terminal stage.
func (s *Session) Submit(ctx context.Context) (*models.Order, error) {
	s.mu.Lock()
	if s.stage != StageConfirmation {
		s.mu.Unlock()
		return nil, ErrWrongStage
	}
	if s.submitting {
		s.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	if len(s.lines) == 0 {
		s.mu.Unlock()
		return nil, ErrEmptyCart
	}
	s.submitting = true
	details := s.details
	totals := s.totals
	lines := make([]models.CartLine, len(s.lines))
	copy(lines, s.lines)
	s.mu.Unlock()

	order, err := s.submitter.SubmitOrder(ctx, s.clientID, details, totals, lines)
	if err != nil {
		s.mu.Lock()
		s.submitting = false
		s.mu.Unlock()
		return nil, fmt.Errorf("submit order: %w", err)
	}

	if s.params.SubmitDelay > 0 {
		select {
		case <-time.After(s.params.SubmitDelay):
		case <-ctx.Done():
		}
	}

	if err := s.markers.SetActiveOrder(ctx, s.clientID, order.ID); err != nil {
		// The order exists; losing the marker only costs resumability.
		s.logger.Warn("failed to record active order marker",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}

	s.mu.Lock()
	s.submitting = false
	s.stage = StageSuccess
	s.orderID = order.ID
	s.mu.Unlock()

	s.logger.Info("order submitted",
		zap.String("client_id", s.clientID),
		zap.String("order_id", order.ID),
		zap.Float64("total", order.TotalAmount))

	return order, nil
}

// recompute refreshes distance, fee and totals. Callers must hold mu
// (or have exclusive access during construction).
func (s *Session) recompute() {
	restaurant := s.params.Restaurant
	dist := geo.MaybeDistanceKm(&restaurant, s.details.Location)
	fee := geo.DeliveryFee(s.params.BaseFee, dist, s.params.PricePerKm)
	s.totals = pricing.CartTotals(s.lines, dist, fee)
}

func validateLine(line models.CartLine) error {
	if line.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidLine)
	}
	base := make(map[string]bool, len(line.Product.Ingredients))
	for _, ing := range line.Product.Ingredients {
		base[ing.Name] = true
	}
	for _, name := range line.Ingredients {
		if !base[name] {
			return fmt.Errorf("%w: unknown ingredient %q", ErrInvalidLine, name)
		}
	}
	for groupID, selected := range line.Options {
		group := line.Product.Group(groupID)
		if group == nil {
			return fmt.Errorf("%w: unknown option group %q", ErrInvalidLine, groupID)
		}
		known := make(map[string]bool, len(group.Options))
		for _, opt := range group.Options {
			known[opt] = true
		}
		for _, name := range selected {
			if !known[name] {
				return fmt.Errorf("%w: unknown option %q in group %q", ErrInvalidLine, name, groupID)
			}
		}
	}
	return nil
}
