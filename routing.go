package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// RouteClient estimates driving distance via a hosted distance-matrix API,
// falling back to great-circle distance whenever the service is not
// configured, unreachable or reports a non-OK status for the pair.
// DistanceKm never returns an error: callers always get a usable number.
type RouteClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewRouteClient(baseURL, apiKey string, logger *zap.Logger) *RouteClient {
	return &RouteClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type distanceMatrixResponse struct {
	Status string `json:"status"`
	Rows   []struct {
		Elements []struct {
			Status   string `json:"status"`
			Distance struct {
				Value int `json:"value"` // meters
			} `json:"distance"`
		} `json:"elements"`
	} `json:"rows"`
}

// DistanceKm returns the road distance between origin and destination in km.
// Both points must already be normalized; callers with a missing point must
// use distanceUnknownKm instead of calling here.
func (c *RouteClient) DistanceKm(ctx context.Context, origin, dest GeoPoint) float64 {
	if c == nil || c.apiKey == "" {
		return haversine(origin, dest)
	}

	km, err := c.routedDistanceKm(ctx, origin, dest)
	if err != nil {
		c.logger.Debug("routing service unavailable, using great-circle distance",
			zap.Error(err))
		return haversine(origin, dest)
	}
	return km
}

func (c *RouteClient) routedDistanceKm(ctx context.Context, origin, dest GeoPoint) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return 0, err
	}

	q := url.Values{}
	q.Set("origins", fmt.Sprintf("%f,%f", origin.Lat, origin.Lng))
	q.Set("destinations", fmt.Sprintf("%f,%f", dest.Lat, dest.Lng))
	q.Set("mode", "driving")
	q.Set("units", "metric")
	q.Set("key", c.apiKey)
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("bad status: %s", resp.Status)
	}

	var matrix distanceMatrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&matrix); err != nil {
		return 0, err
	}

	if matrix.Status != "OK" || len(matrix.Rows) == 0 || len(matrix.Rows[0].Elements) == 0 {
		return 0, fmt.Errorf("matrix status: %s", matrix.Status)
	}
	element := matrix.Rows[0].Elements[0]
	if element.Status != "OK" || element.Distance.Value <= 0 {
		return 0, fmt.Errorf("element status: %s", element.Status)
	}

	return float64(element.Distance.Value) / 1000, nil
}
