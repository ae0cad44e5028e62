package models

import "time"

// SnapshotRecord is the archived header of one pipeline run. Summary
// columns are NULL (nil) when the run produced no ranked stations.
type SnapshotRecord struct {
	ID           int64     `json:"id" db:"id"`
	TakenAt      time.Time `json:"taken_at" db:"taken_at"`
	RefName      string    `json:"reference_name" db:"reference_name"`
	RefLatitude  float64   `json:"reference_latitude" db:"reference_latitude"`
	RefLongitude float64   `json:"reference_longitude" db:"reference_longitude"`
	TotalRecords int       `json:"total_records" db:"total_records"`
	StationCount int       `json:"station_count" db:"station_count"`
	RankedCount  int       `json:"ranked_count" db:"ranked_count"`
	SkippedCount int       `json:"skipped_count" db:"skipped_count"`
	MinKm        *float64  `json:"min_km,omitempty" db:"min_km"`
	MaxKm        *float64  `json:"max_km,omitempty" db:"max_km"`
	MeanKm       *float64  `json:"mean_km,omitempty" db:"mean_km"`
	MedianKm     *float64  `json:"median_km,omitempty" db:"median_km"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// ReferencePoint returns the reference the snapshot was ranked against.
func (s *SnapshotRecord) ReferencePoint() GeoPoint {
	return GeoPoint{Latitude: s.RefLatitude, Longitude: s.RefLongitude}
}

// StationRow is the station registry row, keyed by the CWA station
// identifier. Coordinates stay NULL for stations that have never reported
// a usable WGS84 position.
type StationRow struct {
	StationID   string    `json:"station_id" db:"station_id"`
	StationName string    `json:"station_name" db:"station_name"`
	County      string    `json:"county" db:"county"`
	Town        string    `json:"town" db:"town"`
	Latitude    *float64  `json:"latitude,omitempty" db:"latitude"`
	Longitude   *float64  `json:"longitude,omitempty" db:"longitude"`
	Geohash     *string   `json:"geohash,omitempty" db:"geohash"`
	FirstSeenAt time.Time `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at" db:"last_seen_at"`
}

// ObservationRow is one archived observation belonging to a snapshot.
// Readings are stored post-sentinel-filter: an element the station did not
// measure is NULL, never -99. Latitude and longitude are joined in from the
// station registry on reads.
type ObservationRow struct {
	ID               int64     `json:"id" db:"id"`
	SnapshotID       int64     `json:"snapshot_id" db:"snapshot_id"`
	StationID        string    `json:"station_id" db:"station_id"`
	StationName      string    `json:"station_name" db:"station_name"`
	County           string    `json:"county" db:"county"`
	Town             string    `json:"town" db:"town"`
	ObsTime          string    `json:"obs_time" db:"obs_time"`
	TemperatureC     *float64  `json:"temperature_c,omitempty" db:"temperature_c"`
	HumidityPct      *float64  `json:"humidity_pct,omitempty" db:"humidity_pct"`
	PressureHpa      *float64  `json:"pressure_hpa,omitempty" db:"pressure_hpa"`
	WindSpeedMs      *float64  `json:"wind_speed_ms,omitempty" db:"wind_speed_ms"`
	WindDirectionDeg *float64  `json:"wind_direction_deg,omitempty" db:"wind_direction_deg"`
	PrecipitationMm  *float64  `json:"precipitation_mm,omitempty" db:"precipitation_mm"`
	Weather          *string   `json:"weather,omitempty" db:"weather"`
	DistanceKm       *float64  `json:"distance_km,omitempty" db:"distance_km"`
	Latitude         *float64  `json:"latitude,omitempty" db:"latitude"`
	Longitude        *float64  `json:"longitude,omitempty" db:"longitude"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// ToStationRow maps a normalized station onto its registry row.
func (st *Station) ToStationRow(seenAt time.Time) *StationRow {
	row := &StationRow{
		StationID:   st.StationID,
		StationName: st.StationName,
		County:      st.Location.County,
		Town:        st.Location.Town,
		FirstSeenAt: seenAt,
		LastSeenAt:  seenAt,
	}

	if st.Location.HasCoordinates() {
		row.Latitude = st.Location.Latitude
		row.Longitude = st.Location.Longitude
		gh := st.Location.Point().Geohash()
		row.Geohash = &gh
	}

	return row
}

// ToObservationRow maps a normalized station, plus its computed distance
// when one exists, onto an archive row.
func (st *Station) ToObservationRow(distanceKm *float64, createdAt time.Time) *ObservationRow {
	we := st.WeatherElements

	return &ObservationRow{
		StationID:        st.StationID,
		StationName:      st.StationName,
		County:           st.Location.County,
		Town:             st.Location.Town,
		ObsTime:          st.ObservationTime,
		TemperatureC:     we.TemperatureValue(),
		HumidityPct:      we.HumidityValue(),
		PressureHpa:      we.PressureValue(),
		WindSpeedMs:      we.WindSpeedValue(),
		WindDirectionDeg: we.WindDirectionValue(),
		PrecipitationMm:  we.PrecipitationValue(),
		Weather:          we.Weather,
		DistanceKm:       distanceKm,
		Latitude:         st.Location.Latitude,
		Longitude:        st.Location.Longitude,
		CreatedAt:        createdAt,
	}
}
