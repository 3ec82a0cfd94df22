package main

import (
	"encoding/json"
	"math"
)

// GeoPoint is the one canonical coordinate shape used past the ingress
// boundary. Raw payloads arrive in several shapes and are normalized once.
type GeoPoint struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	AccuracyM float64 `json:"accuracy,omitempty"`
}

// distanceUnknownKm is the sentinel for "distance unavailable". Anything
// downstream treats it as "do not score by distance".
const distanceUnknownKm = 999999

// normalizeGeoPoint accepts the two raw coordinate shapes clients send
// ({lat,lng} and {latitude,longitude}) and returns the canonical GeoPoint.
// Unparseable or out-of-range input yields nil rather than an error: a bad
// location means "no location", never a failed request.
func normalizeGeoPoint(raw json.RawMessage) *GeoPoint {
	if len(raw) == 0 {
		return nil
	}

	var shape struct {
		Lat       *float64 `json:"lat"`
		Lng       *float64 `json:"lng"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Accuracy  float64  `json:"accuracy"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil
	}

	lat, lng := shape.Lat, shape.Lng
	if lat == nil || lng == nil {
		lat, lng = shape.Latitude, shape.Longitude
	}
	if lat == nil || lng == nil {
		return nil
	}

	p := GeoPoint{Lat: *lat, Lng: *lng, AccuracyM: shape.Accuracy}
	if !p.valid() {
		return nil
	}
	return &p
}

func (p GeoPoint) valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// haversine returns the great-circle distance between two points in km.
func haversine(a, b GeoPoint) float64 {
	const earthRadiusKm = 6371

	dLat := (b.Lat - a.Lat) * (math.Pi / 180)
	dLng := (b.Lng - a.Lng) * (math.Pi / 180)
	lat1 := a.Lat * (math.Pi / 180)
	lat2 := b.Lat * (math.Pi / 180)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLng/2)*math.Sin(dLng/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}
