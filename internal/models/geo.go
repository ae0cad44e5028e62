package models

import (
	"math"

	"github.com/mmcloughlin/geohash"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// Default reference point for distance computations: Taipei Main Station.
const (
	DefaultReferenceLatitude  = 25.0478
	DefaultReferenceLongitude = 121.5170
	DefaultReferenceName      = "Taipei Main Station"
)

// GeohashPrecision is the cell size stored in the archive (~3.7cm cells,
// effectively exact station positions).
const GeohashPrecision = 12

// GeoPoint is a WGS84 coordinate in decimal degrees.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DefaultReferencePoint returns the fixed default reference coordinate.
// Callers that want a different reference pass their own point; there is
// no mutable package-level default.
func DefaultReferencePoint() GeoPoint {
	return GeoPoint{Latitude: DefaultReferenceLatitude, Longitude: DefaultReferenceLongitude}
}

// Validate checks that the point is a usable WGS84 coordinate.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Latitude) || math.IsInf(p.Latitude, 0) || p.Latitude < -90 || p.Latitude > 90 {
		return &ValidationError{Field: "latitude", Value: formatCoord(p.Latitude), Message: "latitude must be a finite value in [-90, 90]"}
	}
	if math.IsNaN(p.Longitude) || math.IsInf(p.Longitude, 0) || p.Longitude < -180 || p.Longitude > 180 {
		return &ValidationError{Field: "longitude", Value: formatCoord(p.Longitude), Message: "longitude must be a finite value in [-180, 180]"}
	}
	return nil
}

// DistanceTo computes the great-circle distance to other in kilometers
// using the haversine formula over a spherical Earth. Good to a fraction
// of a percent, which is fine for ranking; not navigation-grade.
func (p GeoPoint) DistanceTo(other GeoPoint) float64 {
	lat1 := p.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	deltaLat := (other.Latitude - p.Latitude) * math.Pi / 180
	deltaLon := (other.Longitude - p.Longitude) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Asin(math.Sqrt(a))

	return EarthRadiusKm * c
}

// Geohash returns the geohash of the point at the archive precision.
func (p GeoPoint) Geohash() string {
	return geohash.EncodeWithPrecision(p.Latitude, p.Longitude, GeohashPrecision)
}

// RoundKm rounds a distance to 2 decimal places, the storage precision
// for distance_km everywhere in this system.
func RoundKm(km float64) float64 {
	return math.Round(km*100) / 100
}
