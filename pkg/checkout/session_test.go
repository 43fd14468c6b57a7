package checkout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/deliverydash/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSubmitter struct {
	calls   int32
	err     error
	release chan struct{} // when set, SubmitOrder blocks until closed
}

func (f *fakeSubmitter) SubmitOrder(ctx context.Context, clientID string, details models.DeliveryDetails, totals models.CartTotals, lines []models.CartLine) (*models.Order, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.Order{
		ID:          "order-1",
		ClientID:    clientID,
		Status:      models.StatusPending,
		Subtotal:    totals.Subtotal,
		DeliveryFee: totals.DeliveryFee,
		TotalAmount: totals.Total,
	}, nil
}

type fakeMarkers struct {
	mu      sync.Mutex
	markers map[string]string
	err     error
}

func newFakeMarkers() *fakeMarkers {
	return &fakeMarkers{markers: make(map[string]string)}
}

func (f *fakeMarkers) SetActiveOrder(ctx context.Context, clientID, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.markers[clientID] = orderID
	return nil
}

func (f *fakeMarkers) ActiveOrder(ctx context.Context, clientID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markers[clientID], f.err
}

func (f *fakeMarkers) ClearActiveOrder(ctx context.Context, clientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.markers, clientID)
	return nil
}

func testParams() Params {
	return Params{
		Restaurant: models.Coordinates{Lat: 16.2500, Lng: -92.1300},
		BaseFee:    20,
		PricePerKm: 10,
	}
}

func testLine() models.CartLine {
	return models.CartLine{
		Product: models.Product{
			ID:    "prod-1",
			Name:  "Burger",
			Price: 50,
			OptionGroups: []models.OptionGroup{
				{ID: "toppings", IncludedCount: 1, PricePerExtra: 5, Options: []string{"cheese", "bacon"}},
			},
		},
		Quantity: 1,
		Options:  map[string][]string{"toppings": {"cheese", "bacon"}},
	}
}

func completeDetails() models.DeliveryDetails {
	return models.DeliveryDetails{
		Name:         "Ana Gomez",
		Address:      "Av. Central 12",
		Neighborhood: "Centro",
		PostalCode:   "29200",
		Phone:        "9671234567",
	}
}

func newTestSession(sub OrderSubmitter, markers ActiveOrderStore) *Session {
	return NewSession("client-1", testParams(), sub, markers, zap.NewNop())
}

func TestNextRequiresNonEmptyCart(t *testing.T) {
	s := newTestSession(&fakeSubmitter{}, newFakeMarkers())

	assert.ErrorIs(t, s.Next(), ErrEmptyCart)
	assert.Equal(t, StageCart, s.Stage())

	require.NoError(t, s.AddLine(testLine()))
	require.NoError(t, s.Next())
	assert.Equal(t, StageDetails, s.Stage())
}

func TestNextRequiresCompleteDetailsAndAuth(t *testing.T) {
	s := newTestSession(&fakeSubmitter{}, newFakeMarkers())
	require.NoError(t, s.AddLine(testLine()))
	require.NoError(t, s.Next())

	assert.ErrorIs(t, s.Next(), ErrIncompleteDetails)

	d := completeDetails()
	d.Phone = "12345" // too short
	require.NoError(t, s.SetDetails(d))
	assert.ErrorIs(t, s.Next(), ErrIncompleteDetails)

	require.NoError(t, s.SetDetails(completeDetails()))
	assert.ErrorIs(t, s.Next(), ErrNotAuthenticated)
	assert.Equal(t, StageDetails, s.Stage())

	s.SetAuthenticated(true)
	require.NoError(t, s.Next())
	assert.Equal(t, StageConfirmation, s.Stage())
}

func TestBackIsUnconditional(t *testing.T) {
	s := newTestSession(&fakeSubmitter{}, newFakeMarkers())
	require.NoError(t, s.AddLine(testLine()))
	require.NoError(t, s.SetDetails(completeDetails()))
	s.SetAuthenticated(true)
	require.NoError(t, s.Next())
	require.NoError(t, s.Next())

	require.NoError(t, s.Back())
	assert.Equal(t, StageDetails, s.Stage())
	require.NoError(t, s.Back())
	assert.Equal(t, StageCart, s.Stage())
	assert.ErrorIs(t, s.Back(), ErrWrongStage)
}

func TestAddLineValidation(t *testing.T) {
	s := newTestSession(&fakeSubmitter{}, newFakeMarkers())

	bad := testLine()
	bad.Quantity = 0
	assert.ErrorIs(t, s.AddLine(bad), ErrInvalidLine)

	bad = testLine()
	bad.Options = map[string][]string{"toppings": {"pineapple"}}
	assert.ErrorIs(t, s.AddLine(bad), ErrInvalidLine)

	bad = testLine()
	bad.Ingredients = []string{"not-in-recipe"}
	assert.ErrorIs(t, s.AddLine(bad), ErrInvalidLine)

	assert.Empty(t, s.Lines())
}

func TestTotalsRecomputedOnDestinationChange(t *testing.T) {
	s := newTestSession(&fakeSubmitter{}, newFakeMarkers())
	require.NoError(t, s.AddLine(testLine()))

	// No location picked yet: fee collapses to the base fee.
	totals := s.Totals()
	assert.Nil(t, totals.DistanceKm)
	assert.Equal(t, 20.0, totals.DeliveryFee)

	d := completeDetails()
	d.Location = &models.Coordinates{Lat: 16.2600, Lng: -92.1400}
	require.NoError(t, s.SetDetails(d))

	totals = s.Totals()
	require.NotNil(t, totals.DistanceKm)
	assert.InDelta(t, 1.43, *totals.DistanceKm, 0.1)
	assert.InDelta(t, 34.3, totals.DeliveryFee, 0.1)
	assert.InDelta(t, totals.Subtotal+totals.DeliveryFee, totals.Total, 1e-9)
}

func toConfirmation(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.AddLine(testLine()))
	require.NoError(t, s.SetDetails(completeDetails()))
	s.SetAuthenticated(true)
	require.NoError(t, s.Next())
	require.NoError(t, s.Next())
}

func TestSubmitSingleFlight(t *testing.T) {
	sub := &fakeSubmitter{release: make(chan struct{})}
	s := newTestSession(sub, newFakeMarkers())
	toConfirmation(t, s)

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background())
		done <- err
	}()

	// Wait for the first call to be in flight, then click again.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&sub.calls) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitInFlight)

	close(sub.release)
	require.NoError(t, <-done)

	assert.Equal(t, int32(1), atomic.LoadInt32(&sub.calls))
	assert.Equal(t, StageSuccess, s.Stage())
	assert.Equal(t, "order-1", s.OrderID())
}

func TestSubmitFailureStaysRetryable(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("connection reset")}
	markers := newFakeMarkers()
	s := newTestSession(sub, markers)
	toConfirmation(t, s)

	_, err := s.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, StageConfirmation, s.Stage())
	assert.Empty(t, markers.markers)

	// The guard was released; a manual retry goes through.
	sub.err = nil
	order, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "order-1", order.ID)
	assert.Equal(t, StageSuccess, s.Stage())
	assert.Equal(t, "order-1", markers.markers["client-1"])
}

func TestSubmitOutsideConfirmation(t *testing.T) {
	s := newTestSession(&fakeSubmitter{}, newFakeMarkers())
	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrWrongStage)
}

func TestSubmitSucceedsDespiteMarkerError(t *testing.T) {
	markers := newFakeMarkers()
	markers.err = errors.New("redis down")
	s := newTestSession(&fakeSubmitter{}, markers)
	toConfirmation(t, s)

	order, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "order-1", order.ID)
	assert.Equal(t, StageSuccess, s.Stage())
}

func TestResumeFromMarker(t *testing.T) {
	markers := newFakeMarkers()
	markers.markers["client-1"] = "order-9"

	s := newTestSession(&fakeSubmitter{}, markers)
	orderID, err := s.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "order-9", orderID)
	assert.Equal(t, StageSuccess, s.Stage())
	assert.Equal(t, "order-9", s.OrderID())
}

func TestManagerReturnsSameSession(t *testing.T) {
	m := NewManager(testParams(), &fakeSubmitter{}, newFakeMarkers(), zap.NewNop())

	a, err := m.Open(context.Background(), "client-1")
	require.NoError(t, err)
	b, err := m.Open(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Same(t, a, b)

	other, err := m.Open(context.Background(), "client-2")
	require.NoError(t, err)
	assert.NotSame(t, a, other)
}

func TestManagerCloseClearsMarker(t *testing.T) {
	markers := newFakeMarkers()
	markers.markers["client-1"] = "order-9"
	m := NewManager(testParams(), &fakeSubmitter{}, markers, zap.NewNop())

	s, err := m.Open(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Equal(t, StageSuccess, s.Stage())

	require.NoError(t, m.Close(context.Background(), "client-1"))
	assert.Empty(t, markers.markers)

	fresh, err := m.Open(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Equal(t, StageCart, fresh.Stage())
}
