package services

import (
	"context"
	"errors"
	"time"

	"station-insights/internal/models"
	"station-insights/internal/repository"
	"station-insights/pkg/logging"
	"station-insights/pkg/metrics"
)

// RunOptions selects which sinks run beyond the in-memory transforms.
type RunOptions struct {
	// Document, when non-nil, feeds an offline document through the
	// pipeline instead of fetching from the CWA API.
	Document *models.ObservationDocument

	// ExportJSON writes the station and ranked JSON artifacts.
	ExportJSON bool

	// RenderMap writes the HTML map artifact.
	RenderMap bool

	// ArchiveSnapshot persists the run when a repository is wired.
	ArchiveSnapshot bool
}

// PipelineResult reports one pipeline run end to end. Summary and
// Temperature stay nil when the run produced nothing to aggregate; that is
// a degraded outcome, not a failure.
type PipelineResult struct {
	SnapshotID         int64                      `json:"snapshot_id,omitempty"`
	FetchedRecords     int                        `json:"fetched_records"`
	NormalizedStations int                        `json:"normalized_stations"`
	SkippedRecords     int                        `json:"skipped_records"`
	RankedStations     int                        `json:"ranked_stations"`
	Summary            *models.DistanceSummary    `json:"summary,omitempty"`
	Temperature        *models.TemperatureSummary `json:"temperature,omitempty"`
	ArtifactPaths      []string                   `json:"artifact_paths,omitempty"`
	DurationSeconds    float64                    `json:"duration_seconds"`

	Duration time.Duration  `json:"-"`
	Skipped  []*RecordError `json:"-"`
}

// PipelineService runs the full refresh flow: fetch, normalize, rank,
// summarize, then the optional export, map and archive sinks.
type PipelineService struct {
	client     *CWAClient
	normalizer *StationNormalizer
	ranker     *DistanceRanker
	stats      *StatisticsService
	exporter   *Exporter
	renderer   *MapRenderer
	repo       repository.SnapshotRepository
	logger     *logging.StructuredLogger
	metrics    *metrics.Collector
}

// NewPipelineService creates a new pipeline service. exporter, renderer and
// repo may be nil when the matching sink is never requested.
func NewPipelineService(
	client *CWAClient,
	normalizer *StationNormalizer,
	ranker *DistanceRanker,
	stats *StatisticsService,
	exporter *Exporter,
	renderer *MapRenderer,
	repo repository.SnapshotRepository,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *PipelineService {
	return &PipelineService{
		client:     client,
		normalizer: normalizer,
		ranker:     ranker,
		stats:      stats,
		exporter:   exporter,
		renderer:   renderer,
		repo:       repo,
		logger:     logger,
		metrics:    metricsCollector,
	}
}

// Run executes one pipeline pass. Per-record problems are reported through
// the result and never abort the run; fetch, export and archive failures
// do.
func (s *PipelineService) Run(ctx context.Context, opts RunOptions) (*PipelineResult, error) {
	timer := s.metrics.NewTimer(s.metrics.PipelineDuration)

	s.logger.Info(ctx, "[PIPELINE_START] Starting observation pipeline", logging.Fields{
		"offline": opts.Document != nil,
		"export":  opts.ExportJSON,
		"map":     opts.RenderMap,
		"archive": opts.ArchiveSnapshot,
	})

	doc := opts.Document
	if doc == nil {
		fetched, err := s.client.FetchObservations(ctx)
		if err != nil {
			s.metrics.RecordPipelineRun("fetch_error")
			return nil, err
		}
		doc = fetched
	}

	norm := s.normalizer.Normalize(ctx, doc)
	ranked := s.ranker.ComputeDistances(ctx, norm.Stations)

	result := &PipelineResult{
		FetchedRecords:     norm.TotalRecords,
		NormalizedStations: len(norm.Stations),
		SkippedRecords:     len(norm.Skipped),
		RankedStations:     len(ranked),
		Skipped:            norm.Skipped,
	}

	summary, err := s.ranker.Summarize(ctx, ranked)
	if err != nil {
		var emptyErr *EmptyInputError
		if !errors.As(err, &emptyErr) {
			s.metrics.RecordPipelineRun("summary_error")
			return nil, err
		}
		s.logger.Warn(ctx, "[PIPELINE_DEGRADED] No ranked stations to summarize", logging.Fields{
			"stations": len(norm.Stations),
		})
	} else {
		result.Summary = summary
	}

	temperature, err := s.stats.TemperatureStats(ctx, norm.Stations)
	if err != nil {
		var emptyErr *EmptyInputError
		if !errors.As(err, &emptyErr) {
			s.metrics.RecordPipelineRun("stats_error")
			return nil, err
		}
		s.logger.Warn(ctx, "[PIPELINE_DEGRADED] No usable temperature readings", logging.Fields{
			"stations": len(norm.Stations),
		})
	} else {
		result.Temperature = temperature
	}

	if opts.ExportJSON && s.exporter != nil {
		stationsPath, err := s.exporter.WriteStations(ctx, norm.Stations)
		if err != nil {
			s.metrics.RecordPipelineRun("export_error")
			return nil, err
		}
		rankedPath, err := s.exporter.WriteRanked(ctx, ranked)
		if err != nil {
			s.metrics.RecordPipelineRun("export_error")
			return nil, err
		}
		result.ArtifactPaths = append(result.ArtifactPaths, stationsPath, rankedPath)
	}

	if opts.RenderMap && s.renderer != nil {
		mapPath, err := s.renderer.WriteMap(ctx, ranked, s.ranker.Reference())
		if err != nil {
			s.metrics.RecordPipelineRun("map_error")
			return nil, err
		}
		result.ArtifactPaths = append(result.ArtifactPaths, mapPath)
	}

	if opts.ArchiveSnapshot && s.repo != nil {
		snapshotID, err := s.archive(ctx, norm, ranked, result.Summary)
		if err != nil {
			s.metrics.RecordPipelineRun("archive_error")
			return nil, err
		}
		result.SnapshotID = snapshotID
	}

	result.Duration = timer.ObserveDuration()
	result.DurationSeconds = result.Duration.Seconds()
	s.metrics.RecordPipelineRun("ok")

	s.logger.Info(ctx, "[PIPELINE_COMPLETE] Pipeline finished", logging.Fields{
		"fetched":     result.FetchedRecords,
		"normalized":  result.NormalizedStations,
		"skipped":     result.SkippedRecords,
		"ranked":      result.RankedStations,
		"snapshot_id": result.SnapshotID,
		"artifacts":   len(result.ArtifactPaths),
		"duration_ms": result.Duration.Milliseconds(),
	})

	return result, nil
}

// archive builds the snapshot payload and persists it. Ranked stations are
// the coordinate-bearing subset of stations in input order, so walking both
// in lockstep pairs every station with its distance.
func (s *PipelineService) archive(ctx context.Context, norm *NormalizeResult, ranked []*models.StationWithDistance, summary *models.DistanceSummary) (int64, error) {
	now := time.Now().UTC()
	reference := s.ranker.Reference()

	snap := &models.SnapshotRecord{
		TakenAt:      now,
		RefName:      s.ranker.ReferenceName(),
		RefLatitude:  reference.Latitude,
		RefLongitude: reference.Longitude,
		TotalRecords: norm.TotalRecords,
		StationCount: len(norm.Stations),
		RankedCount:  len(ranked),
		SkippedCount: len(norm.Skipped),
	}

	if summary != nil {
		snap.MinKm = &summary.MinKm
		snap.MaxKm = &summary.MaxKm
		snap.MeanKm = &summary.MeanKm
		snap.MedianKm = &summary.MedianKm
	}

	stationRows := make([]*models.StationRow, 0, len(norm.Stations))
	observationRows := make([]*models.ObservationRow, 0, len(norm.Stations))

	ri := 0
	for _, station := range norm.Stations {
		stationRows = append(stationRows, station.ToStationRow(now))

		var distance *float64
		if station.Location.HasCoordinates() && ri < len(ranked) {
			d := ranked[ri].DistanceKm
			distance = &d
			ri++
		}
		observationRows = append(observationRows, station.ToObservationRow(distance, now))
	}

	return s.repo.SaveSnapshot(ctx, snap, stationRows, observationRows)
}
