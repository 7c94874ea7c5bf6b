// Package geo enriches listings with coordinates, commute metrics and
// neighborhood scores using external geocoding and routing services.
package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNotFound means the oracle answered but had no result.
	ErrNotFound = errors.New("geo: not found")
	// ErrUnavailable means the oracle is not configured for this region.
	ErrUnavailable = errors.New("geo: oracle unavailable")
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64
	Lng float64
}

func (p Point) String() string { return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng) }

// Profile is a routing mode.
type Profile string

const (
	ProfileCycling Profile = "cycling"
	ProfileDriving Profile = "driving"
)

// Route is a routing oracle answer.
type Route struct {
	Duration float64 // seconds
	Distance float64 // meters
	Polyline string  // encoded geometry, may be empty
}

// TransitTrip is a transit oracle answer.
type TransitTrip struct {
	Duration  float64 // seconds
	Transfers int
}

// Geocoder resolves free-text addresses.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (Point, error)
}

// Router computes routes for a travel profile.
type Router interface {
	Route(ctx context.Context, from, to Point, profile Profile) (*Route, error)
}

// TransitRouter plans public transport trips.
type TransitRouter interface {
	Transit(ctx context.Context, from, to Point) (*TransitTrip, error)
}

const earthRadiusKm = 6371

// Haversine returns the great-circle distance between a and b in km.
func Haversine(a, b Point) float64 {
	lat1, lat2 := rad(a.Lat), rad(b.Lat)
	dLat, dLng := rad(b.Lat-a.Lat), rad(b.Lng-a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }

// Transit heuristic: average door-to-door speed including waiting, plus a
// fixed walking/waiting overhead.
const (
	transitSpeedKmh       = 25
	transitOverheadMinute = 10
)

// EstimateTransitMinutes approximates a transit duration from a straight-line
// distance.
func EstimateTransitMinutes(km float64) float64 {
	return math.Round(km/transitSpeedKmh*60) + transitOverheadMinute
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
