// Package geo defines the positioning and mapping boundary, plus the great
// circle helpers used to phrase navigation hints.
package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrNotFound is returned when a query matches no place.
var ErrNotFound = errors.New("geo: not found")

// Position is a WGS84 coordinate.
type Position struct {
	Lat, Lng float64
	// Accuracy is the radius in metres, when known.
	Accuracy float64
}

// Valid reports whether p lies within coordinate bounds and is not the
// zero position.
func (p Position) Valid() bool {
	if p.Lat == 0 && p.Lng == 0 {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func (p Position) String() string { return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng) }

// Place is a named location.
type Place struct {
	Name     string
	Address  string
	Position Position
}

// Provider locates the device and resolves places.
type Provider interface {
	// Locate estimates the device position.
	Locate(ctx context.Context) (Position, error)
	// Reverse returns a human readable address for p.
	Reverse(ctx context.Context, p Position) (string, error)
	// Geocode resolves a free text query to a place.
	Geocode(ctx context.Context, query string) (Place, error)
	// Nearby lists notable places within radius metres of p.
	Nearby(ctx context.Context, p Position, radius int) ([]Place, error)
}

const earthRadiusKm = 6371.0088

func rad(d float64) float64 { return d * math.Pi / 180 }

// DistanceKm returns the haversine distance between a and b.
func DistanceKm(a, b Position) float64 {
	dLat := rad(b.Lat - a.Lat)
	dLng := rad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// Bearing returns the initial bearing from a to b in degrees [0, 360).
func Bearing(a, b Position) float64 {
	y := math.Sin(rad(b.Lng-a.Lng)) * math.Cos(rad(b.Lat))
	x := math.Cos(rad(a.Lat))*math.Sin(rad(b.Lat)) -
		math.Sin(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Cos(rad(b.Lng-a.Lng))
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

var compass = [...]string{"north", "north east", "east", "south east", "south", "south west", "west", "north west"}

// Compass names the eight-point direction of a bearing.
func Compass(bearing float64) string {
	i := int(math.Round(math.Mod(bearing+360, 360)/45)) % len(compass)
	return compass[i]
}

// DescribeRoute phrases the distance and direction from a to b.
func DescribeRoute(name string, a, b Position) string {
	km := DistanceKm(a, b)
	dist := fmt.Sprintf("%.1f kilometres", km)
	if km < 1 {
		dist = fmt.Sprintf("%d metres", int(math.Round(km*1000)))
	}
	return fmt.Sprintf("%s is %s to the %s.", name, dist, Compass(Bearing(a, b)))
}
