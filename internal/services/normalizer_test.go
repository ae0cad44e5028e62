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

func TestStationNormalizer_Normalize(t *testing.T) {
	normalizer := NewStationNormalizer(newTestLogger(), newTestMetrics())
	ctx := context.Background()

	result := normalizer.Normalize(ctx, sampleDocument())

	assert.Equal(t, 4, result.TotalRecords)
	require.Len(t, result.Stations, 3)
	require.Len(t, result.Skipped, 1)

	// Every entry lands in exactly one bucket
	assert.Equal(t, result.TotalRecords, len(result.Stations)+len(result.Skipped))

	// Input order survives
	assert.Equal(t, "466920", result.Stations[0].StationID)
	assert.Equal(t, "467490", result.Stations[1].StationID)
	assert.Equal(t, "C0A560", result.Stations[2].StationID)

	// First station is complete
	taipei := result.Stations[0]
	assert.Equal(t, "臺北", taipei.StationName)
	assert.Equal(t, "臺北市", taipei.Location.County)
	require.True(t, taipei.Location.HasCoordinates())
	assert.Equal(t, 25.0394, *taipei.Location.Latitude)
	assert.Equal(t, 121.5066, *taipei.Location.Longitude)
	require.NotNil(t, taipei.WeatherElements.TemperatureValue())
	assert.Equal(t, 33.5, *taipei.WeatherElements.TemperatureValue())

	// Second station only carries a TWD67 coordinate
	assert.False(t, result.Stations[1].Location.HasCoordinates())

	// Third station reports the sentinel everywhere
	fushan := result.Stations[2]
	assert.True(t, fushan.Location.HasCoordinates())
	assert.Nil(t, fushan.WeatherElements.TemperatureValue())
	assert.Nil(t, fushan.WeatherElements.HumidityValue())
}

func TestStationNormalizer_SkippedEntry(t *testing.T) {
	normalizer := NewStationNormalizer(newTestLogger(), newTestMetrics())

	result := normalizer.Normalize(context.Background(), sampleDocument())

	require.Len(t, result.Skipped, 1)
	skip := result.Skipped[0]

	assert.Equal(t, 3, skip.Index)
	assert.Equal(t, "BROKEN1", skip.StationID)
	assert.Contains(t, skip.Error(), "station BROKEN1 (entry 3)")
	assert.Error(t, errors.Unwrap(skip))
}

func TestStationNormalizer_EmptyInputs(t *testing.T) {
	normalizer := NewStationNormalizer(newTestLogger(), newTestMetrics())
	ctx := context.Background()

	tests := []struct {
		name string
		doc  *models.ObservationDocument
	}{
		{name: "nil document", doc: nil},
		{name: "empty document", doc: &models.ObservationDocument{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizer.Normalize(ctx, tt.doc)

			assert.Equal(t, 0, result.TotalRecords)
			assert.Empty(t, result.Stations)
			assert.Empty(t, result.Skipped)
		})
	}
}

func TestStationNormalizer_AllEntriesMalformed(t *testing.T) {
	normalizer := NewStationNormalizer(newTestLogger(), newTestMetrics())

	doc := &models.ObservationDocument{}
	doc.Records.Station = []json.RawMessage{
		json.RawMessage(`{"StationId": {"nested": true}}`),
		json.RawMessage(`not even json`),
	}

	result := normalizer.Normalize(context.Background(), doc)

	assert.Equal(t, 2, result.TotalRecords)
	assert.Empty(t, result.Stations)
	require.Len(t, result.Skipped, 2)

	// No identifier hint recoverable from either entry
	assert.Equal(t, "", result.Skipped[0].StationID)
	assert.Contains(t, result.Skipped[0].Error(), "entry 0:")
	assert.Equal(t, 1, result.Skipped[1].Index)
}

func TestRecordError_Format(t *testing.T) {
	withID := &RecordError{Index: 7, StationID: "466920", Err: errors.New("boom")}
	assert.Equal(t, "station 466920 (entry 7): boom", withID.Error())

	withoutID := &RecordError{Index: 2, Err: errors.New("boom")}
	assert.Equal(t, "entry 2: boom", withoutID.Error())
}
