//go:build e2e

package repository

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"station-insights/internal/models"
	"station-insights/pkg/database"
	"station-insights/pkg/logging"
	"station-insights/pkg/metrics"
)

// startPostgres launches a disposable PostgreSQL container, applies the
// schema migration, and returns a connected repository.
func startPostgres(t *testing.T) SnapshotRepository {
	t.Helper()
	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "insights",
			"POSTGRES_PASSWORD": "insights",
			"POSTGRES_DB":       "insights_test",
		},
		// The entrypoint restarts postgres once during init, so the ready
		// line has to appear twice before connections are real.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, nat.Port("5432/tcp"))
	require.NoError(t, err)

	logger := logging.NewStructuredLogger("e2e", "0.0.0", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	m := metrics.NewCollectorWithRegistry("e2e", prometheus.NewRegistry())

	db, err := database.NewPostgresDB(&database.Config{
		Host:            host,
		Port:            port.Int(),
		User:            "insights",
		Password:        "insights",
		Database:        "insights_test",
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	}, logger, m)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	schema, err := os.ReadFile("../../migrations/001_create_schema.up.sql")
	require.NoError(t, err)
	_, err = db.DB().Exec(string(schema))
	require.NoError(t, err)

	return NewSnapshotRepository(db, logger, m)
}

func f64(v float64) *float64 { return &v }

func strp(s string) *string { return &s }

func geohashAt(lat, lon float64) *string {
	gh := models.GeoPoint{Latitude: lat, Longitude: lon}.Geohash()
	return &gh
}

func stationRow(id, name, county, town string, lat, lon *float64, seen time.Time) *models.StationRow {
	row := &models.StationRow{
		StationID:   id,
		StationName: name,
		County:      county,
		Town:        town,
		Latitude:    lat,
		Longitude:   lon,
		FirstSeenAt: seen,
		LastSeenAt:  seen,
	}
	if lat != nil && lon != nil {
		row.Geohash = geohashAt(*lat, *lon)
	}
	return row
}

func obsRow(id, name, county string, temp, distance *float64, createdAt time.Time) *models.ObservationRow {
	return &models.ObservationRow{
		StationID:    id,
		StationName:  name,
		County:       county,
		Town:         "某區",
		ObsTime:      "2024-07-15T14:00:00+08:00",
		TemperatureC: temp,
		Weather:      strp("晴"),
		DistanceKm:   distance,
		CreatedAt:    createdAt,
	}
}

func TestPostgresSnapshotRepository(t *testing.T) {
	repo := startPostgres(t)
	ctx := context.Background()

	t1 := time.Date(2024, 7, 15, 5, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	// First snapshot: two stations, plus a keyless row and a duplicate
	// observation that the save must tolerate.
	snap1ID, err := repo.SaveSnapshot(ctx,
		&models.SnapshotRecord{
			TakenAt:      t1,
			RefName:      models.DefaultReferenceName,
			RefLatitude:  models.DefaultReferenceLatitude,
			RefLongitude: models.DefaultReferenceLongitude,
			TotalRecords: 3,
			StationCount: 2,
			RankedCount:  1,
			SkippedCount: 1,
			MinKm:        f64(1.4),
			MaxKm:        f64(1.4),
			MeanKm:       f64(1.4),
			MedianKm:     f64(1.4),
		},
		[]*models.StationRow{
			stationRow("466920", "臺北", "臺北市", "中正區", f64(25.0394), f64(121.5066), t1),
			stationRow("467490", "玉山", "南投縣", "信義鄉", nil, nil, t1),
			stationRow("", "無編號", "", "", nil, nil, t1),
		},
		[]*models.ObservationRow{
			obsRow("466920", "臺北", "臺北市", f64(33.5), f64(1.4), t1),
			obsRow("466920", "臺北", "臺北市", f64(33.5), f64(1.4), t1),
			obsRow("467490", "玉山", "南投縣", f64(10.2), nil, t1),
			obsRow("", "無編號", "", nil, nil, t1),
		},
	)
	require.NoError(t, err)
	require.Greater(t, snap1ID, int64(0))

	// Second snapshot an hour later: five stations, one without a usable
	// reading and one without a distance.
	snap2ID, err := repo.SaveSnapshot(ctx,
		&models.SnapshotRecord{
			TakenAt:      t2,
			RefName:      models.DefaultReferenceName,
			RefLatitude:  models.DefaultReferenceLatitude,
			RefLongitude: models.DefaultReferenceLongitude,
			TotalRecords: 6,
			StationCount: 5,
			RankedCount:  4,
			SkippedCount: 1,
			MinKm:        f64(1.4),
			MaxKm:        f64(158.3),
			MeanKm:       f64(49.72),
			MedianKm:     f64(29.8),
		},
		[]*models.StationRow{
			stationRow("466920", "臺北", "臺北市", "中正區", f64(25.0394), f64(121.5066), t2),
			stationRow("466880", "板橋", "新北市", "板橋區", f64(24.9976), f64(121.4420), t2),
			stationRow("C0A560", "福山", "新北市", "烏來區", f64(24.7808), f64(121.4935), t2),
			stationRow("467300", "東吉島", "澎湖縣", "望安鄉", f64(23.2572), f64(119.6674), t2),
			stationRow("467490", "玉山", "南投縣", "信義鄉", nil, nil, t2),
		},
		[]*models.ObservationRow{
			obsRow("466920", "臺北", "臺北市", f64(30.1), f64(1.4), t2),
			obsRow("466880", "板橋", "新北市", f64(29.0), f64(9.39), t2),
			obsRow("C0A560", "福山", "新北市", nil, f64(29.8), t2),
			obsRow("467300", "東吉島", "澎湖縣", f64(30.1), f64(158.3), t2),
			obsRow("467490", "玉山", "南投縣", f64(10.2), nil, t2),
		},
	)
	require.NoError(t, err)
	require.Greater(t, snap2ID, snap1ID)

	t.Run("latest snapshot", func(t *testing.T) {
		snap, err := repo.LatestSnapshot(ctx)
		require.NoError(t, err)

		assert.Equal(t, snap2ID, snap.ID)
		assert.True(t, snap.TakenAt.Equal(t2))
		assert.Equal(t, models.DefaultReferenceName, snap.RefName)
		assert.Equal(t, 5, snap.StationCount)
		require.NotNil(t, snap.MedianKm)
		assert.Equal(t, 29.8, *snap.MedianKm)
	})

	t.Run("get snapshot by id", func(t *testing.T) {
		snap, err := repo.GetSnapshot(ctx, snap1ID)
		require.NoError(t, err)
		assert.Equal(t, 3, snap.TotalRecords)
		assert.True(t, snap.TakenAt.Equal(t1))

		_, err = repo.GetSnapshot(ctx, 99999)
		var notFound *NotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "snapshot", notFound.Resource)
	})

	t.Run("keyless and duplicate rows are dropped", func(t *testing.T) {
		one := snap1ID
		rows, total, err := repo.GetObservations(ctx, ObservationFilter{SnapshotID: &one, Limit: 100})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, rows, 2)
	})

	t.Run("list stations", func(t *testing.T) {
		stations, total, err := repo.ListStations(ctx, StationFilter{Limit: 100})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, stations, 5)

		// Ordered by station identifier.
		assert.Equal(t, "466880", stations[0].StationID)
		assert.Equal(t, "466920", stations[1].StationID)
		assert.Equal(t, "C0A560", stations[4].StationID)

		// The registry row carries the geohash for coordinate-bearing
		// stations and NULL for the rest.
		assert.NotNil(t, stations[0].Geohash)
		yushan := stations[3]
		assert.Equal(t, "467490", yushan.StationID)
		assert.Nil(t, yushan.Geohash)
		assert.Nil(t, yushan.Latitude)
	})

	t.Run("list stations with filters", func(t *testing.T) {
		county := "新北市"
		stations, total, err := repo.ListStations(ctx, StationFilter{County: &county, Limit: 100})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, stations, 2)
		assert.Equal(t, "466880", stations[0].StationID)
		assert.Equal(t, "C0A560", stations[1].StationID)

		// Every Taiwan station falls into the ws* geohash cells.
		prefix := "ws"
		_, total, err = repo.ListStations(ctx, StationFilter{GeohashPrefix: &prefix, Limit: 100})
		require.NoError(t, err)
		assert.Equal(t, 4, total)

		prefix = "zz"
		_, total, err = repo.ListStations(ctx, StationFilter{GeohashPrefix: &prefix, Limit: 100})
		require.NoError(t, err)
		assert.Equal(t, 0, total)
	})

	t.Run("list stations pagination", func(t *testing.T) {
		stations, total, err := repo.ListStations(ctx, StationFilter{Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, stations, 2)
		assert.Equal(t, "467300", stations[0].StationID)
		assert.Equal(t, "467490", stations[1].StationID)
	})

	t.Run("observations default to latest snapshot", func(t *testing.T) {
		rows, total, err := repo.GetObservations(ctx, ObservationFilter{Limit: 100})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, rows, 5)

		// Nearest first; the distance-less station sorts last.
		assert.Equal(t, "466920", rows[0].StationID)
		assert.Equal(t, "466880", rows[1].StationID)
		assert.Equal(t, "C0A560", rows[2].StationID)
		assert.Equal(t, "467300", rows[3].StationID)
		assert.Equal(t, "467490", rows[4].StationID)
		assert.Nil(t, rows[4].DistanceKm)

		// Coordinates are joined in from the registry.
		require.NotNil(t, rows[0].Latitude)
		assert.Equal(t, 25.0394, *rows[0].Latitude)
	})

	t.Run("observations with filters", func(t *testing.T) {
		rows, total, err := repo.GetObservations(ctx, ObservationFilter{MaxDistanceKm: f64(30), Limit: 100})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, rows, 3)
		assert.Equal(t, "C0A560", rows[2].StationID)

		county := "新北市"
		rows, total, err = repo.GetObservations(ctx, ObservationFilter{County: &county, Limit: 100})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, rows, 2)

		missing := int64(99999)
		rows, total, err = repo.GetObservations(ctx, ObservationFilter{SnapshotID: &missing, Limit: 100})
		require.NoError(t, err)
		assert.Equal(t, 0, total)
		assert.Empty(t, rows)
	})

	t.Run("nearest stations", func(t *testing.T) {
		rows, err := repo.NearestStations(ctx, snap2ID, 2)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "466920", rows[0].StationID)
		assert.Equal(t, "466880", rows[1].StationID)
	})

	t.Run("farthest stations ascending with farthest last", func(t *testing.T) {
		rows, err := repo.FarthestStations(ctx, snap2ID, 2)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "C0A560", rows[0].StationID)
		assert.Equal(t, "467300", rows[1].StationID)
		require.NotNil(t, rows[1].DistanceKm)
		assert.Equal(t, 158.3, *rows[1].DistanceKm)
	})

	t.Run("snapshot temperature aggregation", func(t *testing.T) {
		summary, err := repo.SnapshotTemperature(ctx, snap2ID)
		require.NoError(t, err)

		assert.Equal(t, 4, summary.ReadingCount)
		assert.InDelta(t, 24.85, summary.MeanC, 1e-9)
		assert.Equal(t, 30.1, summary.MaxC)
		assert.Equal(t, 10.2, summary.MinC)

		// 臺北 and 東吉島 tie at 30.1; the lower station id wins.
		assert.Equal(t, "臺北", summary.HottestStation)
		assert.Equal(t, "玉山", summary.ColdestStation)
	})

	t.Run("health check", func(t *testing.T) {
		require.NoError(t, repo.HealthCheck(ctx))
	})

	// A later save updates the registry in place: name and last_seen move,
	// first_seen and existing coordinates survive a NULL update.
	t3 := t2.Add(time.Hour)
	snap3ID, err := repo.SaveSnapshot(ctx,
		&models.SnapshotRecord{
			TakenAt:      t3,
			RefName:      models.DefaultReferenceName,
			RefLatitude:  models.DefaultReferenceLatitude,
			RefLongitude: models.DefaultReferenceLongitude,
			TotalRecords: 1,
			StationCount: 1,
			RankedCount:  1,
		},
		[]*models.StationRow{
			stationRow("466920", "臺北觀測站", "臺北市", "中正區", nil, nil, t3),
		},
		[]*models.ObservationRow{
			obsRow("466920", "臺北觀測站", "臺北市", nil, f64(1.4), t3),
		},
	)
	require.NoError(t, err)

	t.Run("station registry upsert", func(t *testing.T) {
		stations, _, err := repo.ListStations(ctx, StationFilter{Limit: 100})
		require.NoError(t, err)

		var taipei *models.StationRow
		for _, st := range stations {
			if st.StationID == "466920" {
				taipei = st
			}
		}
		require.NotNil(t, taipei)

		assert.Equal(t, "臺北觀測站", taipei.StationName)
		assert.True(t, taipei.FirstSeenAt.Equal(t1))
		assert.True(t, taipei.LastSeenAt.Equal(t3))
		require.NotNil(t, taipei.Latitude)
		assert.Equal(t, 25.0394, *taipei.Latitude)
		assert.NotNil(t, taipei.Geohash)
	})

	t.Run("snapshot without usable readings", func(t *testing.T) {
		summary, err := repo.SnapshotTemperature(ctx, snap3ID)
		require.NoError(t, err)
		assert.Equal(t, 0, summary.ReadingCount)
		assert.Empty(t, summary.HottestStation)
	})
}
