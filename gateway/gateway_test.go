package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/example/deliverydash/pkg/checkout"
	"github.com/example/deliverydash/pkg/maps"
	"github.com/example/deliverydash/pkg/models"
	"github.com/example/deliverydash/pkg/repository"
	"github.com/example/deliverydash/pkg/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memCatalog struct {
	products map[string]*models.Product
}

func (m *memCatalog) ListProducts(ctx context.Context) ([]*models.Product, error) {
	out := make([]*models.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *memCatalog) Product(ctx context.Context, id string) (*models.Product, error) {
	return m.products[id], nil
}

// memOrders backs the submitter, the admin edge and the tracking
// source with one in-memory table.
type memOrders struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	nextID int
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[string]*models.Order)}
}

func (m *memOrders) SubmitOrder(ctx context.Context, clientID string, details models.DeliveryDetails, totals models.CartTotals, lines []models.CartLine) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(lines) == 0 {
		return nil, repository.ErrNoLines
	}
	m.nextID++
	order := &models.Order{
		ID:          fmt.Sprintf("order-%d", m.nextID),
		ClientID:    clientID,
		Status:      models.StatusPending,
		OriginLat:   16.25,
		OriginLng:   -92.13,
		Subtotal:    totals.Subtotal,
		DeliveryFee: totals.DeliveryFee,
		TotalAmount: totals.Total,
	}
	if details.Location != nil {
		lat, lng := details.Location.Lat, details.Location.Lng
		order.DestLat = &lat
		order.DestLng = &lng
	}
	m.orders[order.ID] = order
	return order, nil
}

func (m *memOrders) Get(ctx context.Context, orderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (m *memOrders) UpdateStatus(ctx context.Context, orderID string, next models.OrderStatus) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if !order.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", repository.ErrIllegalTransition, order.Status, next)
	}
	order.Status = next
	copied := *order
	return &copied, nil
}

func (m *memOrders) AssignCourier(ctx context.Context, orderID, courierID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	order.CourierID = &courierID
	copied := *order
	return &copied, nil
}

func (m *memOrders) FetchOrder(ctx context.Context, orderID string) (*models.OrderSnapshot, error) {
	order, err := m.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	snap := order.Snapshot()
	return &snap, nil
}

type memMarkers struct {
	mu      sync.Mutex
	markers map[string]string
}

func newMemMarkers() *memMarkers { return &memMarkers{markers: make(map[string]string)} }

func (m *memMarkers) SetActiveOrder(ctx context.Context, clientID, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers[clientID] = orderID
	return nil
}

func (m *memMarkers) ActiveOrder(ctx context.Context, clientID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markers[clientID], nil
}

func (m *memMarkers) ClearActiveOrder(ctx context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.markers, clientID)
	return nil
}

type memCouriers struct {
	mu    sync.Mutex
	fixes map[string]models.Coordinates
}

func newMemCouriers() *memCouriers { return &memCouriers{fixes: make(map[string]models.Coordinates)} }

func (m *memCouriers) SetCourierLocation(ctx context.Context, courierID string, fix models.Coordinates) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixes[courierID] = fix
	return nil
}

func (m *memCouriers) FetchCourierLocation(ctx context.Context, courierID string) (*models.Coordinates, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fix, ok := m.fixes[courierID]
	if !ok {
		return nil, nil
	}
	return &fix, nil
}

type fakeGeocoder struct {
	place *maps.Place
	err   error
}

func (f *fakeGeocoder) ReverseGeocode(ctx context.Context, location models.Coordinates) (*maps.Place, error) {
	return f.place, f.err
}

type noRoutes struct{}

func (noRoutes) ComputeRoute(ctx context.Context, origin, destination models.Coordinates) (string, error) {
	return "stub-polyline", nil
}

type env struct {
	gw       *Gateway
	orders   *memOrders
	markers  *memMarkers
	geocoder *fakeGeocoder
}

func newEnv(t *testing.T) *env {
	t.Helper()

	catalog := &memCatalog{products: map[string]*models.Product{
		"prod-1": {
			ID:    "prod-1",
			Name:  "Burger",
			Price: 50,
			OptionGroups: []models.OptionGroup{
				{ID: "toppings", IncludedCount: 1, PricePerExtra: 5, Options: []string{"cheese", "bacon"}},
			},
			Available: true,
		},
	}}
	orders := newMemOrders()
	markers := newMemMarkers()
	couriers := newMemCouriers()
	geocoder := &fakeGeocoder{}

	params := checkout.Params{
		Restaurant: models.Coordinates{Lat: 16.25, Lng: -92.13},
		BaseFee:    20,
		PricePerKm: 10,
	}
	checkouts := checkout.NewManager(params, orders, markers, zap.NewNop())
	trackers := tracking.NewManager(orders, couriers, noRoutes{}, tracking.DefaultConfig(), zap.NewNop())
	t.Cleanup(trackers.StopAll)

	gw := NewGateway(context.Background(), checkouts, trackers, catalog, orders, couriers, geocoder, zap.NewNop())
	return &env{gw: gw, orders: orders, markers: markers, geocoder: geocoder}
}

func (e *env) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.gw.Handler().ServeHTTP(rec, req)
	return rec
}

func authed() map[string]string {
	return map[string]string{"Authorization": "Bearer test-token"}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckoutHappyPath(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/checkout", map[string]string{"client_id": "client-1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cart", decodeBody(t, rec)["stage"])

	// Empty cart cannot advance.
	rec = e.do(t, http.MethodPost, "/api/v1/checkout/client-1/next", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/checkout/client-1/lines", map[string]any{
		"product_id": "prod-1",
		"quantity":   2,
		"options":    map[string][]string{"toppings": {"cheese", "bacon"}},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	totals := decodeBody(t, rec)["totals"].(map[string]any)
	assert.Equal(t, 110.0, totals["subtotal"])
	assert.Equal(t, 20.0, totals["delivery_fee"])

	rec = e.do(t, http.MethodPost, "/api/v1/checkout/client-1/next", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "details", decodeBody(t, rec)["stage"])

	rec = e.do(t, http.MethodPut, "/api/v1/checkout/client-1/details", map[string]any{
		"name":         "Ana Gomez",
		"address":      "Av. Central 12",
		"neighborhood": "Centro",
		"postal_code":  "29200",
		"phone":        "9671234567",
		"location":     map[string]float64{"lat": 16.26, "lng": -92.14},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	totals = decodeBody(t, rec)["totals"].(map[string]any)
	assert.InDelta(t, 34.3, totals["delivery_fee"].(float64), 0.1)

	// The identity gate blocks anonymous confirmation.
	rec = e.do(t, http.MethodPost, "/api/v1/checkout/client-1/next", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/checkout/client-1/next", nil, authed())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "confirmation", decodeBody(t, rec)["stage"])

	rec = e.do(t, http.MethodPost, "/api/v1/checkout/client-1/submit", nil, authed())
	require.Equal(t, http.StatusCreated, rec.Code)
	order := decodeBody(t, rec)["order"].(map[string]any)
	assert.Equal(t, "order-1", order["id"])
	assert.Equal(t, "order-1", e.markers.markers["client-1"])

	// Terminal stage: a second submit is a conflict, not a new order.
	rec = e.do(t, http.MethodPost, "/api/v1/checkout/client-1/submit", nil, authed())
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, e.orders.orders, 1)
}

func TestCheckoutResumesAfterReload(t *testing.T) {
	e := newEnv(t)
	e.markers.markers["client-1"] = "order-7"
	e.orders.orders["order-7"] = &models.Order{ID: "order-7", ClientID: "client-1", Status: models.StatusOnWay}

	rec := e.do(t, http.MethodPost, "/api/v1/checkout", map[string]string{"client_id": "client-1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "success", body["stage"])
	assert.Equal(t, "order-7", body["order_id"])
}

func TestAddLineUnknownProduct(t *testing.T) {
	e := newEnv(t)
	e.do(t, http.MethodPost, "/api/v1/checkout", map[string]string{"client_id": "client-1"}, nil)

	rec := e.do(t, http.MethodPost, "/api/v1/checkout/client-1/lines", map[string]any{
		"product_id": "prod-404",
		"quantity":   1,
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPickLocationAppliesGeocode(t *testing.T) {
	e := newEnv(t)
	e.geocoder.place = &maps.Place{Address: "Av. Central", Neighborhood: "Centro"}
	e.do(t, http.MethodPost, "/api/v1/checkout", map[string]string{"client_id": "client-1"}, nil)

	e.do(t, http.MethodPut, "/api/v1/checkout/client-1/details", map[string]any{
		"name":        "Ana Gomez",
		"phone":       "9671234567",
		"postal_code": "99999",
	}, nil)

	rec := e.do(t, http.MethodPost, "/api/v1/checkout/client-1/location",
		map[string]float64{"lat": 16.26, "lng": -92.14}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	details := decodeBody(t, rec)["details"].(map[string]any)
	assert.Equal(t, "Av. Central", details["address"])
	assert.Equal(t, "Centro", details["neighborhood"])
	// The stale postal code does not survive the new location.
	assert.Equal(t, "", details["postal_code"])
	assert.Equal(t, "Ana Gomez", details["name"])
}

func TestOrderStatusEdge(t *testing.T) {
	e := newEnv(t)
	e.orders.orders["order-1"] = &models.Order{ID: "order-1", ClientID: "client-1", Status: models.StatusPending}

	rec := e.do(t, http.MethodPut, "/api/v1/orders/order-1/status",
		map[string]string{"status": "accepted"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Regressions are rejected; the state machine only moves forward.
	rec = e.do(t, http.MethodPut, "/api/v1/orders/order-1/status",
		map[string]string{"status": "pending"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPut, "/api/v1/orders/order-404/status",
		map[string]string{"status": "accepted"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrackingEndpoint(t *testing.T) {
	e := newEnv(t)
	e.orders.orders["order-1"] = &models.Order{
		ID: "order-1", ClientID: "client-1", Status: models.StatusAccepted,
		OriginLat: 16.25, OriginLng: -92.13,
	}

	rec := e.do(t, http.MethodGet, "/api/v1/orders/order-1/tracking", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "order-1", decodeBody(t, rec)["order_id"])

	rec = e.do(t, http.MethodGet, "/api/v1/orders/order-404/tracking", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFinishOrder(t *testing.T) {
	e := newEnv(t)
	e.markers.markers["client-1"] = "order-1"
	e.orders.orders["order-1"] = &models.Order{ID: "order-1", ClientID: "client-1", Status: models.StatusOnWay}

	rec := e.do(t, http.MethodPost, "/api/v1/orders/order-1/finish", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	e.orders.orders["order-1"].Status = models.StatusDelivered
	rec = e.do(t, http.MethodPost, "/api/v1/orders/order-1/finish", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, e.markers.markers)
}

func TestReportCourierLocation(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPut, "/api/v1/couriers/courier-1/location",
		map[string]float64{"lat": 16.255, "lng": -92.135}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
