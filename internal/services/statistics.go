package services

import (
	"context"

	"station-insights/internal/models"
	"station-insights/pkg/logging"
	"station-insights/pkg/metrics"
)

// StatisticsService aggregates sentinel-filtered readings over normalized
// stations.
type StatisticsService struct {
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewStatisticsService creates a new statistics service
func NewStatisticsService(logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *StatisticsService {
	return &StatisticsService{
		logger:  logger,
		metrics: metricsCollector,
	}
}

// TemperatureStats aggregates the usable temperature readings: count, mean,
// extremes, and the stations that reported them. Stations whose temperature
// is missing or the -99 sentinel contribute nothing. Returns EmptyInputError
// when no station carries a usable reading.
func (s *StatisticsService) TemperatureStats(ctx context.Context, stations []*models.Station) (*models.TemperatureSummary, error) {
	var (
		count   int
		sum     float64
		maxC    float64
		minC    float64
		hottest string
		coldest string
	)

	for _, station := range stations {
		value := station.WeatherElements.TemperatureValue()
		if value == nil {
			continue
		}

		if count == 0 || *value > maxC {
			maxC = *value
			hottest = station.StationName
		}
		if count == 0 || *value < minC {
			minC = *value
			coldest = station.StationName
		}

		sum += *value
		count++
	}

	if count == 0 {
		return nil, &EmptyInputError{Operation: "temperature summary"}
	}

	summary := &models.TemperatureSummary{
		ReadingCount:   count,
		MeanC:          sum / float64(count),
		MaxC:           maxC,
		MinC:           minC,
		HottestStation: hottest,
		ColdestStation: coldest,
	}

	s.logger.Info(ctx, "[TEMP_STATS] Temperature readings aggregated", logging.Fields{
		"readings": summary.ReadingCount,
		"mean_c":   summary.MeanC,
		"max_c":    summary.MaxC,
		"min_c":    summary.MinC,
		"hottest":  summary.HottestStation,
		"coldest":  summary.ColdestStation,
	})

	return summary, nil
}
