package services

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"station-insights/internal/models"
	"station-insights/pkg/logging"
	"station-insights/pkg/metrics"
)

func newTestLogger() *logging.StructuredLogger {
	logger := logging.NewStructuredLogger("test", "0.0.0", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	return logger
}

// newTestMetrics builds a collector on a private registry so every test can
// construct services without duplicate-registration panics.
func newTestMetrics() *metrics.Collector {
	return metrics.NewCollectorWithRegistry("test", prometheus.NewRegistry())
}

func f64Ptr(v float64) *float64 { return &v }

// stationAt builds a ranked-eligible station with coordinates.
func stationAt(id, name string, lat, lon float64) *models.Station {
	return &models.Station{
		StationID:   id,
		StationName: name,
		Location: models.Location{
			County:    "臺北市",
			Town:      "中正區",
			Latitude:  &lat,
			Longitude: &lon,
		},
	}
}

// withTemperature attaches a raw temperature reading string ("-99" included).
func withTemperature(st *models.Station, reading string) *models.Station {
	st.WeatherElements.Temperature = &reading
	return st
}

// rankedAt builds a bare distance-annotated record for summary tests.
func rankedAt(id string, distanceKm float64) *models.StationWithDistance {
	return &models.StationWithDistance{
		Station:    models.Station{StationID: id, StationName: "站" + id},
		DistanceKm: distanceKm,
	}
}

// sampleDocumentJSON is a four-entry document: one complete station, one
// without a WGS84 coordinate, one with sentinel readings, and one entry that
// fails to decode.
const sampleDocumentJSON = `{
  "success": "true",
  "records": {
    "Station": [
      {
        "StationId": "466920",
        "StationName": "臺北",
        "ObsTime": {"DateTime": "2024-07-15T14:00:00+08:00"},
        "GeoInfo": {
          "Coordinates": [
            {"CoordinateName": "TWD67", "StationLatitude": "25.0377", "StationLongitude": "121.5049"},
            {"CoordinateName": "WGS84", "StationLatitude": "25.0394", "StationLongitude": "121.5066"}
          ],
          "CountyName": "臺北市",
          "TownName": "中正區"
        },
        "WeatherElement": {
          "Weather": "晴",
          "Now": {"Precipitation": "0.0"},
          "WindDirection": "90",
          "WindSpeed": "3.4",
          "AirTemperature": "33.5",
          "RelativeHumidity": "62",
          "AirPressure": "1008.3"
        }
      },
      {
        "StationId": "467490",
        "StationName": "玉山",
        "ObsTime": {"DateTime": "2024-07-15T14:00:00+08:00"},
        "GeoInfo": {
          "Coordinates": [
            {"CoordinateName": "TWD67", "StationLatitude": "23.4876", "StationLongitude": "120.9503"}
          ],
          "CountyName": "南投縣",
          "TownName": "信義鄉"
        },
        "WeatherElement": {
          "Weather": "陰",
          "Now": {"Precipitation": "1.5"},
          "WindDirection": "270",
          "WindSpeed": "8.9",
          "AirTemperature": "10.2",
          "RelativeHumidity": "94",
          "AirPressure": "654.3"
        }
      },
      {
        "StationId": "C0A560",
        "StationName": "福山",
        "ObsTime": {"DateTime": "2024-07-15T14:00:00+08:00"},
        "GeoInfo": {
          "Coordinates": [
            {"CoordinateName": "WGS84", "StationLatitude": "24.7808", "StationLongitude": "121.4935"}
          ],
          "CountyName": "新北市",
          "TownName": "烏來區"
        },
        "WeatherElement": {
          "Weather": "-99",
          "Now": {"Precipitation": "0.5"},
          "WindDirection": "-99",
          "WindSpeed": "-99",
          "AirTemperature": "-99",
          "RelativeHumidity": "-99",
          "AirPressure": "-99"
        }
      },
      {
        "StationId": "BROKEN1",
        "StationName": "壞掉的測站",
        "ObsTime": {"DateTime": "2024-07-15T14:00:00+08:00"},
        "WeatherElement": {
          "AirTemperature": {"value": 25.0}
        }
      }
    ]
  }
}`

func sampleDocument() *models.ObservationDocument {
	doc, err := models.DecodeObservationDocument([]byte(sampleDocumentJSON))
	if err != nil {
		panic(err)
	}
	return doc
}
