package services

import (
	"context"
	"fmt"
	"sort"

	"station-insights/internal/models"
	"station-insights/pkg/logging"
	"station-insights/pkg/metrics"
)

const (
	// NearestCount is how many closest stations a summary carries.
	NearestCount = 10
	// FarthestCount is how many of the most distant stations a summary
	// carries.
	FarthestCount = 5
)

// EmptyInputError signals a summary requested over zero usable records.
// Callers distinguish "nothing to summarize" from real failures with
// errors.As.
type EmptyInputError struct {
	Operation string
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("%s: no usable records", e.Operation)
}

// DistanceRanker measures stations against a fixed reference point and
// produces ranked views over the results.
type DistanceRanker struct {
	reference     models.GeoPoint
	referenceName string
	logger        *logging.StructuredLogger
	metrics       *metrics.Collector
}

// NewDistanceRanker creates a new ranker measuring against the named
// reference. models.DefaultReferencePoint() gives the stock Taipei Main
// Station reference.
func NewDistanceRanker(reference models.GeoPoint, referenceName string, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *DistanceRanker {
	if referenceName == "" {
		referenceName = models.DefaultReferenceName
	}
	return &DistanceRanker{
		reference:     reference,
		referenceName: referenceName,
		logger:        logger,
		metrics:       metricsCollector,
	}
}

// Reference returns the point distances are measured from.
func (s *DistanceRanker) Reference() models.GeoPoint {
	return s.reference
}

// ReferenceName returns the human-readable label of the reference point.
func (s *DistanceRanker) ReferenceName() string {
	return s.referenceName
}

// ComputeDistances annotates every station that carries usable coordinates
// with its great-circle distance to the reference, rounded to two decimals.
// Stations without coordinates are excluded, input order is preserved, and
// the input slice is never mutated.
func (s *DistanceRanker) ComputeDistances(ctx context.Context, stations []*models.Station) []*models.StationWithDistance {
	timer := s.metrics.NewTimer(s.metrics.DistanceComputeDuration)

	ranked := make([]*models.StationWithDistance, 0, len(stations))
	excluded := 0

	for _, station := range stations {
		if !station.Location.HasCoordinates() {
			excluded++
			s.logger.Debug(ctx, "[DISTANCE_SKIP] Station lacks usable coordinates", logging.Fields{
				"station_id":   station.StationID,
				"station_name": station.StationName,
			})
			continue
		}

		distance := s.reference.DistanceTo(station.Location.Point())
		ranked = append(ranked, &models.StationWithDistance{
			Station:        *station,
			DistanceKm:     models.RoundKm(distance),
			ReferencePoint: s.reference,
		})
	}

	duration := timer.ObserveDuration()
	s.metrics.DistanceComputationsTotal.Add(float64(len(ranked)))
	if excluded > 0 {
		s.metrics.DistanceExcludedTotal.Add(float64(excluded))
	}

	s.logger.Info(ctx, "[DISTANCE_COMPLETE] Distances computed", logging.Fields{
		"stations":    len(stations),
		"ranked":      len(ranked),
		"excluded":    excluded,
		"ref_lat":     s.reference.Latitude,
		"ref_lon":     s.reference.Longitude,
		"duration_ms": duration.Milliseconds(),
	})

	return ranked
}

// Summarize builds the distance distribution over ranked stations: min,
// max, mean, lower median, the nearest ten and the farthest five. Both
// ranked views come from one stable ascending sort, so Farthest lists the
// five most distant stations in ascending order with the overall farthest
// last. Counts clamp to the available stations. Returns EmptyInputError
// when ranked is empty.
func (s *DistanceRanker) Summarize(ctx context.Context, ranked []*models.StationWithDistance) (*models.DistanceSummary, error) {
	if len(ranked) == 0 {
		return nil, &EmptyInputError{Operation: "distance summary"}
	}

	byDistance := make([]*models.StationWithDistance, len(ranked))
	copy(byDistance, ranked)
	sort.SliceStable(byDistance, func(i, j int) bool {
		return byDistance[i].DistanceKm < byDistance[j].DistanceKm
	})

	var total float64
	for _, station := range byDistance {
		total += station.DistanceKm
	}

	nearestN := NearestCount
	if len(byDistance) < nearestN {
		nearestN = len(byDistance)
	}
	farthestN := FarthestCount
	if len(byDistance) < farthestN {
		farthestN = len(byDistance)
	}

	summary := &models.DistanceSummary{
		StationCount:   len(byDistance),
		MinKm:          byDistance[0].DistanceKm,
		MaxKm:          byDistance[len(byDistance)-1].DistanceKm,
		MeanKm:         total / float64(len(byDistance)),
		MedianKm:       byDistance[len(byDistance)/2].DistanceKm,
		ReferencePoint: s.reference,
		Nearest:        byDistance[:nearestN],
		Farthest:       byDistance[len(byDistance)-farthestN:],
	}

	s.logger.Info(ctx, "[SUMMARY_COMPLETE] Distance summary built", logging.Fields{
		"stations":  summary.StationCount,
		"min_km":    summary.MinKm,
		"max_km":    summary.MaxKm,
		"mean_km":   summary.MeanKm,
		"median_km": summary.MedianKm,
	})

	return summary, nil
}
