package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestDistanceKmUsesRoutingService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mode") != "driving" {
			t.Errorf("expected driving mode, got %q", r.URL.Query().Get("mode"))
		}
		fmt.Fprint(w, `{"status":"OK","rows":[{"elements":[{"status":"OK","distance":{"value":12500}}]}]}`)
	}))
	defer srv.Close()

	c := NewRouteClient(srv.URL, "test-key", zap.NewNop())
	d := c.DistanceKm(context.Background(), GeoPoint{Lat: 59.4, Lng: 24.7}, GeoPoint{Lat: 59.5, Lng: 24.8})
	if d != 12.5 {
		t.Errorf("expected 12.5 km, got %v", d)
	}
}

func TestDistanceKmFallsBackToHaversine(t *testing.T) {
	origin := GeoPoint{Lat: 59.437, Lng: 24.7536}
	dest := GeoPoint{Lat: 58.378, Lng: 26.729}
	want := haversine(origin, dest)

	t.Run("no api key", func(t *testing.T) {
		c := NewRouteClient("http://example.invalid", "", zap.NewNop())
		if d := c.DistanceKm(context.Background(), origin, dest); d != want {
			t.Errorf("expected haversine %v, got %v", want, d)
		}
	})

	t.Run("service error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		c := NewRouteClient(srv.URL, "test-key", zap.NewNop())
		if d := c.DistanceKm(context.Background(), origin, dest); math.Abs(d-want) > 1e-9 {
			t.Errorf("expected haversine %v, got %v", want, d)
		}
	})

	t.Run("element not found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"status":"OK","rows":[{"elements":[{"status":"NOT_FOUND"}]}]}`)
		}))
		defer srv.Close()

		c := NewRouteClient(srv.URL, "test-key", zap.NewNop())
		if d := c.DistanceKm(context.Background(), origin, dest); math.Abs(d-want) > 1e-9 {
			t.Errorf("expected haversine %v, got %v", want, d)
		}
	})
}
