package models

import (
	"math"
	"strconv"
	"strings"
)

// NoReading is the sentinel the CWA feed uses for "no reading". It must be
// treated as an absent value by every numeric consumer, never as -99.
const NoReading = "-99"

// Station is one physical observation point at the time the source document
// was produced. Stations are immutable value records: built once per
// pipeline run, never mutated, no identity carried across runs.
type Station struct {
	StationID       string          `json:"station_id"`
	StationName     string          `json:"station_name"`
	Location        Location        `json:"location"`
	ObservationTime string          `json:"observation_time"`
	WeatherElements WeatherElements `json:"weather_elements"`
}

// Location is the administrative and geographic position of a station.
// Latitude/Longitude are set only when a WGS84 coordinate entry was present
// and both sides parsed as finite floats; a record never carries just one
// side of a coordinate.
type Location struct {
	County    string   `json:"county"`
	Town      string   `json:"town"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// HasCoordinates reports whether the station position is usable for
// distance computation.
func (l Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// Point returns the location as a GeoPoint. Only valid when
// HasCoordinates is true.
func (l Location) Point() GeoPoint {
	return GeoPoint{Latitude: *l.Latitude, Longitude: *l.Longitude}
}

// WeatherElements holds the raw reading strings for the fixed element set.
// Values pass through from the source unmodified, including the "-99"
// sentinel; nil means the source omitted the key. Numeric interpretation
// happens only in the *Value accessors.
type WeatherElements struct {
	Temperature   *string `json:"temperature"`
	Humidity      *string `json:"humidity"`
	Pressure      *string `json:"pressure"`
	WindSpeed     *string `json:"wind_speed"`
	WindDirection *string `json:"wind_direction"`
	Weather       *string `json:"weather"`
	Precipitation *string `json:"precipitation"`
}

// TemperatureValue returns the air temperature in °C, or nil when absent,
// sentinel, or not numeric.
func (w WeatherElements) TemperatureValue() *float64 { return numericReading(w.Temperature) }

// HumidityValue returns the relative humidity in %, or nil.
func (w WeatherElements) HumidityValue() *float64 { return numericReading(w.Humidity) }

// PressureValue returns the air pressure in hPa, or nil.
func (w WeatherElements) PressureValue() *float64 { return numericReading(w.Pressure) }

// WindSpeedValue returns the wind speed in m/s, or nil.
func (w WeatherElements) WindSpeedValue() *float64 { return numericReading(w.WindSpeed) }

// WindDirectionValue returns the wind direction in degrees, or nil.
func (w WeatherElements) WindDirectionValue() *float64 { return numericReading(w.WindDirection) }

// PrecipitationValue returns the current precipitation in mm, or nil.
func (w WeatherElements) PrecipitationValue() *float64 { return numericReading(w.Precipitation) }

// numericReading is the single point where reading strings become numbers:
// nil, the "-99" sentinel, non-numeric text, and non-finite values all map
// to nil.
func numericReading(s *string) *float64 {
	if s == nil {
		return nil
	}
	text := strings.TrimSpace(*s)
	if text == "" || text == NoReading {
		return nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// StationWithDistance is a Station annotated with its distance to the
// reference point. The reference is recorded on the record itself so
// archived rows stay auditable when the configured reference changes.
type StationWithDistance struct {
	Station
	DistanceKm     float64  `json:"distance_km"`
	ReferencePoint GeoPoint `json:"reference_point"`
}

// DistanceSummary aggregates a ranked sequence of stations.
//
// Nearest is sorted ascending by distance. Farthest is the tail of that
// same ascending sort, so it is also ascending: its LAST element is the
// overall farthest station. MedianKm is the lower-median, the element at
// index floor(n/2) of the ascending distances, which for even n picks the
// upper of the two middle values rather than averaging them.
type DistanceSummary struct {
	StationCount   int                    `json:"station_count"`
	MinKm          float64                `json:"min_km"`
	MaxKm          float64                `json:"max_km"`
	MeanKm         float64                `json:"mean_km"`
	MedianKm       float64                `json:"median_km"`
	ReferencePoint GeoPoint               `json:"reference_point"`
	Nearest        []*StationWithDistance `json:"nearest"`
	Farthest       []*StationWithDistance `json:"farthest"`
}

// TemperatureSummary aggregates the temperature readings of a station
// sequence. Only readings that pass the sentinel/parse filter participate.
type TemperatureSummary struct {
	ReadingCount   int     `json:"reading_count"`
	MeanC          float64 `json:"mean_c"`
	MaxC           float64 `json:"max_c"`
	MinC           float64 `json:"min_c"`
	HottestStation string  `json:"hottest_station,omitempty"`
	ColdestStation string  `json:"coldest_station,omitempty"`
}

// ValidationError is a permanent data validation failure.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false: validation errors never succeed on retry.
func (e *ValidationError) IsTransient() bool {
	return false
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
