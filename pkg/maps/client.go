// Package maps wraps the external routing and reverse-geocoding
// providers. Both are best-effort collaborators: a failed call degrades
// the experience (no route line, raw coordinates in the address form)
// but is never fatal.
package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/example/deliverydash/pkg/models"
	"go.uber.org/zap"
)

type Client struct {
	routeBaseURL   string
	geocodeBaseURL string
	httpClient     *http.Client
	logger         *zap.Logger
}

func NewClient(routeBaseURL, geocodeBaseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		routeBaseURL:   routeBaseURL,
		geocodeBaseURL: geocodeBaseURL,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logger,
	}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry string `json:"geometry"`
	} `json:"routes"`
}

// ComputeRoute asks the OSRM-style provider for a driving route and
// returns its encoded polyline.
func (c *Client) ComputeRoute(ctx context.Context, origin, destination models.Coordinates) (string, error) {
	endpoint := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full",
		c.routeBaseURL, origin.Lng, origin.Lat, destination.Lng, destination.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build route request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("route request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("route request: unexpected status %d", resp.StatusCode)
	}

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode route response: %w", err)
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return "", fmt.Errorf("route request: provider returned code %q", body.Code)
	}
	return body.Routes[0].Geometry, nil
}

// Place is a reverse-geocoding hit. Empty fields mean the provider had
// no value for that component.
type Place struct {
	Address      string `json:"address"`
	Neighborhood string `json:"neighborhood"`
	PostalCode   string `json:"postal_code"`
	City         string `json:"city"`
}

// Apply writes the place into delivery details. Every geocoded field is
// overwritten, empty or not: a new location invalidates the old
// neighborhood and postal code, so absent values clear rather than
// silently retain.
func (p Place) Apply(d models.DeliveryDetails, location models.Coordinates) models.DeliveryDetails {
	d.Address = p.Address
	d.Neighborhood = p.Neighborhood
	d.PostalCode = p.PostalCode
	d.Location = &location
	return d
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		Road          string `json:"road"`
		Neighbourhood string `json:"neighbourhood"`
		Suburb        string `json:"suburb"`
		Postcode      string `json:"postcode"`
		City          string `json:"city"`
		Town          string `json:"town"`
	} `json:"address"`
}

// ReverseGeocode resolves a map pick into address components. A miss
// returns (nil, nil); the caller falls back to raw coordinates.
func (c *Client) ReverseGeocode(ctx context.Context, location models.Coordinates) (*Place, error) {
	endpoint := fmt.Sprintf("%s/reverse?format=jsonv2&lat=%s&lon=%s",
		c.geocodeBaseURL,
		url.QueryEscape(fmt.Sprintf("%f", location.Lat)),
		url.QueryEscape(fmt.Sprintf("%f", location.Lng)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build geocode request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode request: unexpected status %d", resp.StatusCode)
	}

	var body nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}

	place := &Place{
		Address:      body.Address.Road,
		Neighborhood: body.Address.Neighbourhood,
		PostalCode:   body.Address.Postcode,
		City:         body.Address.City,
	}
	if place.Address == "" {
		place.Address = body.DisplayName
	}
	if place.Neighborhood == "" {
		place.Neighborhood = body.Address.Suburb
	}
	if place.City == "" {
		place.City = body.Address.Town
	}
	return place, nil
}
