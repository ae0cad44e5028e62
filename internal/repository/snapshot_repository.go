package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"station-insights/internal/models"
	"station-insights/pkg/database"
	"station-insights/pkg/logging"
	"station-insights/pkg/metrics"
)

// SnapshotRepository defines the snapshot archive operations
type SnapshotRepository interface {
	// SaveSnapshot archives one pipeline run in a single transaction:
	// the snapshot header, station registry upserts, and the observation
	// rows. Returns the new snapshot id.
	SaveSnapshot(ctx context.Context, snap *models.SnapshotRecord, stations []*models.StationRow, observations []*models.ObservationRow) (int64, error)

	// LatestSnapshot returns the most recent snapshot header.
	LatestSnapshot(ctx context.Context) (*models.SnapshotRecord, error)

	// GetSnapshot returns one snapshot header by id.
	GetSnapshot(ctx context.Context, snapshotID int64) (*models.SnapshotRecord, error)

	// ListStations pages through the station registry.
	ListStations(ctx context.Context, filter StationFilter) ([]*models.StationRow, int, error)

	// GetObservations pages through archived observations ordered by
	// distance, nearest first, stations without a distance last.
	GetObservations(ctx context.Context, filter ObservationFilter) ([]*models.ObservationRow, int, error)

	// NearestStations returns the limit closest stations of a snapshot.
	NearestStations(ctx context.Context, snapshotID int64, limit int) ([]*models.ObservationRow, error)

	// FarthestStations returns the limit most distant stations of a
	// snapshot in ascending order, so the overall farthest comes last.
	FarthestStations(ctx context.Context, snapshotID int64, limit int) ([]*models.ObservationRow, error)

	// SnapshotTemperature aggregates the archived temperature readings of
	// one snapshot. ReadingCount is zero when no usable reading exists.
	SnapshotTemperature(ctx context.Context, snapshotID int64) (*models.TemperatureSummary, error)

	// HealthCheck verifies database connectivity.
	HealthCheck(ctx context.Context) error
}

// StationFilter narrows station registry listings. Nil fields are skipped.
type StationFilter struct {
	County        *string
	GeohashPrefix *string
	Limit         int
	Offset        int
}

// ObservationFilter narrows observation listings. A nil SnapshotID resolves
// to the latest snapshot.
type ObservationFilter struct {
	SnapshotID    *int64
	County        *string
	MaxDistanceKm *float64
	Limit         int
	Offset        int
}

// NotFoundError indicates a requested resource was not found
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// IsTransient returns false as not found errors are permanent
func (e *NotFoundError) IsTransient() bool {
	return false
}

const snapshotSelect = `
	SELECT id, taken_at, reference_name, reference_latitude, reference_longitude,
	       total_records, station_count, ranked_count, skipped_count,
	       min_km, max_km, mean_km, median_km, created_at
	FROM snapshots`

const observationSelect = `
	SELECT o.id, o.snapshot_id, o.station_id, o.station_name, o.county, o.town,
	       o.obs_time, o.temperature_c, o.humidity_pct, o.pressure_hpa,
	       o.wind_speed_ms, o.wind_direction_deg, o.precipitation_mm,
	       o.weather, o.distance_km, s.latitude, s.longitude, o.created_at
	FROM observations o
	LEFT JOIN stations s ON s.station_id = o.station_id`

const insertSnapshotQuery = `
	INSERT INTO snapshots (
		taken_at, reference_name, reference_latitude, reference_longitude,
		total_records, station_count, ranked_count, skipped_count,
		min_km, max_km, mean_km, median_km
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING id`

const upsertStationQuery = `
	INSERT INTO stations (
		station_id, station_name, county, town, latitude, longitude, geohash,
		first_seen_at, last_seen_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (station_id) DO UPDATE SET
		station_name = EXCLUDED.station_name,
		county       = EXCLUDED.county,
		town         = EXCLUDED.town,
		latitude     = COALESCE(EXCLUDED.latitude, stations.latitude),
		longitude    = COALESCE(EXCLUDED.longitude, stations.longitude),
		geohash      = COALESCE(EXCLUDED.geohash, stations.geohash),
		last_seen_at = EXCLUDED.last_seen_at`

const insertObservationQuery = `
	INSERT INTO observations (
		snapshot_id, station_id, station_name, county, town, obs_time,
		temperature_c, humidity_pct, pressure_hpa, wind_speed_ms,
		wind_direction_deg, precipitation_mm, weather, distance_km, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (snapshot_id, station_id) DO NOTHING`

const temperatureStatsQuery = `
	SELECT COUNT(temperature_c) AS reading_count,
	       AVG(temperature_c)   AS mean_c,
	       MAX(temperature_c)   AS max_c,
	       MIN(temperature_c)   AS min_c
	FROM observations
	WHERE snapshot_id = $1`

// postgresSnapshotRepository implements SnapshotRepository using PostgreSQL
type postgresSnapshotRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewSnapshotRepository creates a new PostgreSQL snapshot repository
func NewSnapshotRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) SnapshotRepository {
	return &postgresSnapshotRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// SaveSnapshot archives one run: header insert, station upserts, bulk
// observation insert, all or nothing. Rows without a station identifier
// cannot join the registry and are skipped.
func (r *postgresSnapshotRepository) SaveSnapshot(ctx context.Context, snap *models.SnapshotRecord, stations []*models.StationRow, observations []*models.ObservationRow) (int64, error) {
	startTime := time.Now()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	var snapshotID int64
	err = tx.QueryRowContext(ctx, insertSnapshotQuery,
		snap.TakenAt,
		snap.RefName,
		snap.RefLatitude,
		snap.RefLongitude,
		snap.TotalRecords,
		snap.StationCount,
		snap.RankedCount,
		snap.SkippedCount,
		snap.MinKm,
		snap.MaxKm,
		snap.MeanKm,
		snap.MedianKm,
	).Scan(&snapshotID)
	if err != nil {
		r.metrics.RecordDBError("insert_error")
		return 0, fmt.Errorf("failed to insert snapshot header: %w", err)
	}

	stationStmt, err := tx.PrepareContext(ctx, upsertStationQuery)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare station upsert: %w", err)
	}
	defer stationStmt.Close()

	keyless := 0
	for _, row := range stations {
		if row.StationID == "" {
			keyless++
			continue
		}
		if _, err := stationStmt.ExecContext(ctx,
			row.StationID,
			row.StationName,
			row.County,
			row.Town,
			row.Latitude,
			row.Longitude,
			row.Geohash,
			row.FirstSeenAt,
			row.LastSeenAt,
		); err != nil {
			r.metrics.RecordDBError("insert_error")
			return 0, fmt.Errorf("failed to upsert station %s: %w", row.StationID, err)
		}
	}

	obsStmt, err := tx.PrepareContext(ctx, insertObservationQuery)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare observation insert: %w", err)
	}
	defer obsStmt.Close()

	inserted := 0
	for _, row := range observations {
		if row.StationID == "" {
			continue
		}
		res, err := obsStmt.ExecContext(ctx,
			snapshotID,
			row.StationID,
			row.StationName,
			row.County,
			row.Town,
			row.ObsTime,
			row.TemperatureC,
			row.HumidityPct,
			row.PressureHpa,
			row.WindSpeedMs,
			row.WindDirectionDeg,
			row.PrecipitationMm,
			row.Weather,
			row.DistanceKm,
			row.CreatedAt,
		)
		if err != nil {
			r.metrics.RecordDBError("insert_error")
			return 0, fmt.Errorf("failed to insert observation for station %s: %w", row.StationID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		r.metrics.RecordDBError("transaction_commit_error")
		return 0, fmt.Errorf("failed to commit snapshot: %w", err)
	}

	duration := time.Since(startTime)
	r.metrics.DBQueryDuration.WithLabelValues("save_snapshot").Observe(duration.Seconds())
	r.metrics.SnapshotRecordsTotal.Add(float64(inserted))

	r.logger.Info(ctx, "[ARCHIVE_COMPLETE] Snapshot archived", logging.Fields{
		"snapshot_id":  snapshotID,
		"stations":     len(stations),
		"observations": inserted,
		"keyless":      keyless,
		"duration_ms":  duration.Milliseconds(),
	})

	return snapshotID, nil
}

func (r *postgresSnapshotRepository) LatestSnapshot(ctx context.Context) (*models.SnapshotRecord, error) {
	query := snapshotSelect + " ORDER BY taken_at DESC, id DESC LIMIT 1"

	var snap models.SnapshotRecord
	err := r.db.GetContext(ctx, "latest_snapshot", &snap, query)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "snapshot", ID: "latest"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	return &snap, nil
}

func (r *postgresSnapshotRepository) GetSnapshot(ctx context.Context, snapshotID int64) (*models.SnapshotRecord, error) {
	query := snapshotSelect + " WHERE id = $1"

	var snap models.SnapshotRecord
	err := r.db.GetContext(ctx, "get_snapshot", &snap, query, snapshotID)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "snapshot", ID: strconv.FormatInt(snapshotID, 10)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	return &snap, nil
}

func (r *postgresSnapshotRepository) ListStations(ctx context.Context, filter StationFilter) ([]*models.StationRow, int, error) {
	query := `
		SELECT station_id, station_name, county, town, latitude, longitude,
		       geohash, first_seen_at, last_seen_at
		FROM stations
		WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	if filter.County != nil {
		query += fmt.Sprintf(" AND county = $%d", argIndex)
		args = append(args, *filter.County)
		argIndex++
	}

	if filter.GeohashPrefix != nil {
		query += fmt.Sprintf(" AND geohash LIKE $%d", argIndex)
		args = append(args, *filter.GeohashPrefix+"%")
		argIndex++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS count_query", query)
	var total int
	if err := r.db.GetContext(ctx, "count_stations", &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count stations: %w", err)
	}

	query += " ORDER BY station_id ASC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	stations := []*models.StationRow{}
	if err := r.db.SelectContext(ctx, "list_stations", &stations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list stations: %w", err)
	}

	return stations, total, nil
}

func (r *postgresSnapshotRepository) GetObservations(ctx context.Context, filter ObservationFilter) ([]*models.ObservationRow, int, error) {
	snapshotID, err := r.resolveSnapshotID(ctx, filter.SnapshotID)
	if err != nil {
		return nil, 0, err
	}

	query := observationSelect + " WHERE o.snapshot_id = $1"
	args := []interface{}{snapshotID}
	argIndex := 2

	if filter.County != nil {
		query += fmt.Sprintf(" AND o.county = $%d", argIndex)
		args = append(args, *filter.County)
		argIndex++
	}

	if filter.MaxDistanceKm != nil {
		query += fmt.Sprintf(" AND o.distance_km <= $%d", argIndex)
		args = append(args, *filter.MaxDistanceKm)
		argIndex++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS count_query", query)
	var total int
	if err := r.db.GetContext(ctx, "count_observations", &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count observations: %w", err)
	}

	query += " ORDER BY o.distance_km ASC NULLS LAST, o.station_id ASC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	observations := []*models.ObservationRow{}
	if err := r.db.SelectContext(ctx, "get_observations", &observations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get observations: %w", err)
	}

	return observations, total, nil
}

func (r *postgresSnapshotRepository) NearestStations(ctx context.Context, snapshotID int64, limit int) ([]*models.ObservationRow, error) {
	query := observationSelect + `
	WHERE o.snapshot_id = $1 AND o.distance_km IS NOT NULL
	ORDER BY o.distance_km ASC, o.station_id ASC
	LIMIT $2`

	observations := []*models.ObservationRow{}
	if err := r.db.SelectContext(ctx, "nearest_stations", &observations, query, snapshotID, limit); err != nil {
		return nil, fmt.Errorf("failed to query nearest stations: %w", err)
	}

	return observations, nil
}

func (r *postgresSnapshotRepository) FarthestStations(ctx context.Context, snapshotID int64, limit int) ([]*models.ObservationRow, error) {
	query := observationSelect + `
	WHERE o.snapshot_id = $1 AND o.distance_km IS NOT NULL
	ORDER BY o.distance_km DESC, o.station_id DESC
	LIMIT $2`

	observations := []*models.ObservationRow{}
	if err := r.db.SelectContext(ctx, "farthest_stations", &observations, query, snapshotID, limit); err != nil {
		return nil, fmt.Errorf("failed to query farthest stations: %w", err)
	}

	// Flip to ascending so the list reads like the tail of the full
	// ranking, overall farthest last.
	for i, j := 0, len(observations)-1; i < j; i, j = i+1, j-1 {
		observations[i], observations[j] = observations[j], observations[i]
	}

	return observations, nil
}

func (r *postgresSnapshotRepository) SnapshotTemperature(ctx context.Context, snapshotID int64) (*models.TemperatureSummary, error) {
	var agg struct {
		ReadingCount int      `db:"reading_count"`
		MeanC        *float64 `db:"mean_c"`
		MaxC         *float64 `db:"max_c"`
		MinC         *float64 `db:"min_c"`
	}

	if err := r.db.GetContext(ctx, "temperature_stats", &agg, temperatureStatsQuery, snapshotID); err != nil {
		return nil, fmt.Errorf("failed to aggregate temperatures: %w", err)
	}

	summary := &models.TemperatureSummary{ReadingCount: agg.ReadingCount}
	if agg.ReadingCount == 0 {
		return summary, nil
	}

	summary.MeanC = *agg.MeanC
	summary.MaxC = *agg.MaxC
	summary.MinC = *agg.MinC

	// Extreme stations tie-break on station_id so reruns over the same
	// snapshot name the same stations.
	hottestQuery := `
		SELECT station_name FROM observations
		WHERE snapshot_id = $1 AND temperature_c IS NOT NULL
		ORDER BY temperature_c DESC, station_id ASC
		LIMIT 1`
	if err := r.db.GetContext(ctx, "hottest_station", &summary.HottestStation, hottestQuery, snapshotID); err != nil {
		return nil, fmt.Errorf("failed to find hottest station: %w", err)
	}

	coldestQuery := `
		SELECT station_name FROM observations
		WHERE snapshot_id = $1 AND temperature_c IS NOT NULL
		ORDER BY temperature_c ASC, station_id ASC
		LIMIT 1`
	if err := r.db.GetContext(ctx, "coldest_station", &summary.ColdestStation, coldestQuery, snapshotID); err != nil {
		return nil, fmt.Errorf("failed to find coldest station: %w", err)
	}

	return summary, nil
}

func (r *postgresSnapshotRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// resolveSnapshotID maps a nil filter id to the latest snapshot.
func (r *postgresSnapshotRepository) resolveSnapshotID(ctx context.Context, explicit *int64) (int64, error) {
	if explicit != nil {
		return *explicit, nil
	}

	snap, err := r.LatestSnapshot(ctx)
	if err != nil {
		return 0, err
	}

	return snap.ID, nil
}
