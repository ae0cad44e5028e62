package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"station-insights/internal/models"
	"station-insights/pkg/logging"
	"station-insights/pkg/metrics"
)

// RecordError describes a single raw station entry that could not be
// normalized. One malformed entry never discards the batch; it is skipped
// and reported here instead.
type RecordError struct {
	Index     int
	StationID string
	Err       error
}

func (e *RecordError) Error() string {
	if e.StationID != "" {
		return fmt.Sprintf("station %s (entry %d): %v", e.StationID, e.Index, e.Err)
	}
	return fmt.Sprintf("entry %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// NormalizeResult reports the outcome of normalizing one observation
// document. Every raw entry lands in exactly one of Stations or Skipped,
// so len(Stations)+len(Skipped) == TotalRecords.
type NormalizeResult struct {
	Stations     []*models.Station
	Skipped      []*RecordError
	TotalRecords int
	Duration     time.Duration
}

// StationNormalizer turns raw CWA observation documents into validated
// stations.
type StationNormalizer struct {
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewStationNormalizer creates a new normalizer service
func NewStationNormalizer(logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *StationNormalizer {
	return &StationNormalizer{
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Normalize converts every raw station entry in the document into a
// validated Station, preserving input order. Malformed entries are skipped
// per record and collected in the result. A nil or empty document yields an
// empty result, not an error: shape leniency belongs here, envelope
// validation belongs to the fetch client.
func (s *StationNormalizer) Normalize(ctx context.Context, doc *models.ObservationDocument) *NormalizeResult {
	startTime := time.Now()

	var entries []json.RawMessage
	if doc != nil {
		entries = doc.Records.Station
	}

	result := &NormalizeResult{
		TotalRecords: len(entries),
	}

	s.logger.Info(ctx, "[NORMALIZE_START] Normalizing observation document", logging.Fields{
		"raw_records": result.TotalRecords,
	})

	if result.TotalRecords > 0 {
		result.Stations = make([]*models.Station, 0, result.TotalRecords)
	}

	for i, raw := range entries {
		rawStation, err := models.DecodeRawStation(raw)
		if err != nil {
			recordErr := &RecordError{
				Index:     i,
				StationID: stationIDHint(raw),
				Err:       err,
			}
			result.Skipped = append(result.Skipped, recordErr)

			s.logger.Warn(ctx, "[NORMALIZE_SKIP] Skipping malformed station entry", logging.Fields{
				"index":      i,
				"station_id": recordErr.StationID,
				"error":      err.Error(),
			})
			continue
		}

		result.Stations = append(result.Stations, rawStation.ToStation())
	}

	result.Duration = time.Since(startTime)

	s.metrics.NormalizeDuration.Observe(result.Duration.Seconds())
	s.metrics.RecordNormalized(len(result.Stations))
	s.metrics.RecordSkipped(len(result.Skipped))

	s.logger.Info(ctx, "[NORMALIZE_COMPLETE] Document normalized", logging.Fields{
		"total_records": result.TotalRecords,
		"stations":      len(result.Stations),
		"skipped":       len(result.Skipped),
		"duration_ms":   result.Duration.Milliseconds(),
	})

	return result
}

// stationIDHint recovers the station identifier from a malformed entry for
// log context. Best effort: returns "" when even that much cannot be read.
func stationIDHint(raw json.RawMessage) string {
	var probe struct {
		StationID string `json:"StationId"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.StationID
}
