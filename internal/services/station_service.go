package services

import (
	"context"

	"station-insights/internal/models"
	"station-insights/internal/repository"
	"station-insights/pkg/logging"
	"station-insights/pkg/metrics"
)

// maxMapStations bounds how many archived observations one map render
// pulls. The CWA network is well under a thousand stations.
const maxMapStations = 10000

// DistanceSummaryView is the persisted-summary payload: the snapshot
// header plus its ranked edges, rebuilt from the archive.
type DistanceSummaryView struct {
	Snapshot *models.SnapshotRecord   `json:"snapshot"`
	Nearest  []*models.ObservationRow `json:"nearest"`
	Farthest []*models.ObservationRow `json:"farthest"`
}

// StationService reads the snapshot archive for the API layer.
type StationService struct {
	repo    repository.SnapshotRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewStationService creates a new station service
func NewStationService(repo repository.SnapshotRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *StationService {
	return &StationService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ListStations pages through the station registry.
func (s *StationService) ListStations(ctx context.Context, filter repository.StationFilter) ([]*models.StationRow, int, error) {
	return s.repo.ListStations(ctx, filter)
}

// GetObservations pages through archived observations.
func (s *StationService) GetObservations(ctx context.Context, filter repository.ObservationFilter) ([]*models.ObservationRow, int, error) {
	return s.repo.GetObservations(ctx, filter)
}

// LatestSnapshot returns the most recent snapshot header.
func (s *StationService) LatestSnapshot(ctx context.Context) (*models.SnapshotRecord, error) {
	return s.repo.LatestSnapshot(ctx)
}

// NearestStations returns the limit closest stations of the latest
// snapshot.
func (s *StationService) NearestStations(ctx context.Context, limit int) ([]*models.ObservationRow, error) {
	snap, err := s.repo.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	return s.repo.NearestStations(ctx, snap.ID, limit)
}

// LatestDistanceSummary rebuilds the ranked views of the latest snapshot.
func (s *StationService) LatestDistanceSummary(ctx context.Context) (*DistanceSummaryView, error) {
	snap, err := s.repo.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	nearest, err := s.repo.NearestStations(ctx, snap.ID, NearestCount)
	if err != nil {
		return nil, err
	}

	farthest, err := s.repo.FarthestStations(ctx, snap.ID, FarthestCount)
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "[SUMMARY_VIEW] Distance summary rebuilt", logging.Fields{
		"snapshot_id": snap.ID,
		"nearest":     len(nearest),
		"farthest":    len(farthest),
	})

	return &DistanceSummaryView{
		Snapshot: snap,
		Nearest:  nearest,
		Farthest: farthest,
	}, nil
}

// LatestTemperatureSummary aggregates the latest snapshot's archived
// readings. Returns EmptyInputError when the snapshot holds no usable
// reading.
func (s *StationService) LatestTemperatureSummary(ctx context.Context) (*models.TemperatureSummary, error) {
	snap, err := s.repo.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	summary, err := s.repo.SnapshotTemperature(ctx, snap.ID)
	if err != nil {
		return nil, err
	}
	if summary.ReadingCount == 0 {
		return nil, &EmptyInputError{Operation: "temperature summary"}
	}

	return summary, nil
}

// MapObservations returns the latest snapshot header together with every
// observation it archived, for map rendering.
func (s *StationService) MapObservations(ctx context.Context) (*models.SnapshotRecord, []*models.ObservationRow, error) {
	snap, err := s.repo.LatestSnapshot(ctx)
	if err != nil {
		return nil, nil, err
	}

	rows, _, err := s.repo.GetObservations(ctx, repository.ObservationFilter{
		SnapshotID: &snap.ID,
		Limit:      maxMapStations,
		Offset:     0,
	})
	if err != nil {
		return nil, nil, err
	}

	return snap, rows, nil
}

// HealthCheck verifies archive connectivity.
func (s *StationService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}
