package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"station-insights/internal/models"
)

func newTestRanker() *DistanceRanker {
	return NewDistanceRanker(models.DefaultReferencePoint(), "", newTestLogger(), newTestMetrics())
}

func TestDistanceRanker_ComputeDistances(t *testing.T) {
	ranker := newTestRanker()
	ctx := context.Background()

	stations := []*models.Station{
		stationAt("466920", "臺北", 25.0394, 121.5066),
		{StationID: "467490", StationName: "玉山"}, // no coordinates
		stationAt("466880", "板橋", 24.9976, 121.4420),
	}

	ranked := ranker.ComputeDistances(ctx, stations)

	require.Len(t, ranked, 2)

	// Input order preserved, coordinate-less station excluded
	assert.Equal(t, "466920", ranked[0].StationID)
	assert.Equal(t, "466880", ranked[1].StationID)

	// Banqiao is roughly 9.4 km from Taipei Main Station
	assert.InDelta(t, 9.39, ranked[1].DistanceKm, 0.05)

	// Distances are stored at two-decimal precision
	for _, station := range ranked {
		assert.Equal(t, models.RoundKm(station.DistanceKm), station.DistanceKm)
	}

	// The reference is recorded on every record
	assert.Equal(t, models.DefaultReferencePoint(), ranked[0].ReferencePoint)
}

func TestDistanceRanker_ComputeDistances_ZeroDistance(t *testing.T) {
	ranker := newTestRanker()

	atReference := stationAt("X", "參考點", models.DefaultReferenceLatitude, models.DefaultReferenceLongitude)
	ranked := ranker.ComputeDistances(context.Background(), []*models.Station{atReference})

	require.Len(t, ranked, 1)
	assert.Equal(t, 0.0, ranked[0].DistanceKm)
}

func TestDistanceRanker_ComputeDistances_DoesNotMutateInput(t *testing.T) {
	ranker := newTestRanker()

	station := stationAt("466920", "臺北", 25.0394, 121.5066)
	ranked := ranker.ComputeDistances(context.Background(), []*models.Station{station})

	require.Len(t, ranked, 1)
	ranked[0].StationName = "changed"
	assert.Equal(t, "臺北", station.StationName)
}

func TestDistanceRanker_ComputeDistances_Deterministic(t *testing.T) {
	ranker := newTestRanker()
	ctx := context.Background()

	stations := []*models.Station{
		stationAt("A", "甲", 25.0394, 121.5066),
		stationAt("B", "乙", 23.9751, 121.6133),
		stationAt("C", "丙", 24.7808, 121.4935),
	}

	first, err := json.Marshal(ranker.ComputeDistances(ctx, stations))
	require.NoError(t, err)
	second, err := json.Marshal(ranker.ComputeDistances(ctx, stations))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDistanceRanker_Summarize(t *testing.T) {
	ranker := newTestRanker()
	ctx := context.Background()

	t.Run("empty input", func(t *testing.T) {
		_, err := ranker.Summarize(ctx, nil)
		require.Error(t, err)

		var emptyErr *EmptyInputError
		require.True(t, errors.As(err, &emptyErr))
		assert.Equal(t, "distance summary", emptyErr.Operation)
	})

	t.Run("lower median for even count", func(t *testing.T) {
		ranked := []*models.StationWithDistance{
			rankedAt("A", 1), rankedAt("B", 2), rankedAt("C", 3), rankedAt("D", 4),
		}

		summary, err := ranker.Summarize(ctx, ranked)
		require.NoError(t, err)

		assert.Equal(t, 3.0, summary.MedianKm)
		assert.Equal(t, 1.0, summary.MinKm)
		assert.Equal(t, 4.0, summary.MaxKm)
		assert.Equal(t, 2.5, summary.MeanKm)
		assert.Equal(t, 4, summary.StationCount)
	})

	t.Run("counts clamp to available stations", func(t *testing.T) {
		ranked := []*models.StationWithDistance{
			rankedAt("A", 5), rankedAt("B", 1), rankedAt("C", 3),
		}

		summary, err := ranker.Summarize(ctx, ranked)
		require.NoError(t, err)

		assert.Len(t, summary.Nearest, 3)
		assert.Len(t, summary.Farthest, 3)
		assert.Equal(t, 3.0, summary.MedianKm)
	})

	t.Run("nearest ten and farthest five", func(t *testing.T) {
		// Unsorted on purpose
		distances := []float64{7, 2, 11, 4, 9, 1, 12, 5, 8, 3, 10, 6}
		ranked := make([]*models.StationWithDistance, len(distances))
		for i, d := range distances {
			ranked[i] = rankedAt(string(rune('A'+i)), d)
		}

		summary, err := ranker.Summarize(ctx, ranked)
		require.NoError(t, err)

		require.Len(t, summary.Nearest, NearestCount)
		for i, station := range summary.Nearest {
			assert.Equal(t, float64(i+1), station.DistanceKm)
		}

		// Farthest is the tail of the same ascending sort: 8..12 with the
		// overall farthest last.
		require.Len(t, summary.Farthest, FarthestCount)
		for i, station := range summary.Farthest {
			assert.Equal(t, float64(i+8), station.DistanceKm)
		}
		assert.Equal(t, summary.MaxKm, summary.Farthest[FarthestCount-1].DistanceKm)
	})

	t.Run("stable order for tied distances", func(t *testing.T) {
		ranked := []*models.StationWithDistance{
			rankedAt("first", 2), rankedAt("second", 2), rankedAt("third", 1),
		}

		summary, err := ranker.Summarize(ctx, ranked)
		require.NoError(t, err)

		assert.Equal(t, "third", summary.Nearest[0].StationID)
		assert.Equal(t, "first", summary.Nearest[1].StationID)
		assert.Equal(t, "second", summary.Nearest[2].StationID)
	})

	t.Run("input slice order is untouched", func(t *testing.T) {
		ranked := []*models.StationWithDistance{
			rankedAt("A", 9), rankedAt("B", 1), rankedAt("C", 5),
		}

		_, err := ranker.Summarize(ctx, ranked)
		require.NoError(t, err)

		assert.Equal(t, "A", ranked[0].StationID)
		assert.Equal(t, "B", ranked[1].StationID)
		assert.Equal(t, "C", ranked[2].StationID)
	})
}

func TestNewDistanceRanker_ReferenceName(t *testing.T) {
	named := NewDistanceRanker(models.GeoPoint{Latitude: 1, Longitude: 2}, "公司門口", newTestLogger(), newTestMetrics())
	assert.Equal(t, "公司門口", named.ReferenceName())

	unnamed := NewDistanceRanker(models.DefaultReferencePoint(), "", newTestLogger(), newTestMetrics())
	assert.Equal(t, models.DefaultReferenceName, unnamed.ReferenceName())
}
