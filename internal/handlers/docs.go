package handlers

import (
	"encoding/json"
	"net/http"
)

// OpenAPISpec handles GET /api/v1/openapi.json, returning the OpenAPI 3.0
// description of the station archive API.
func (h *StationHandler) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	numberOrNull := map[string]interface{}{"type": "number", "nullable": true}

	observationSchema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id":                 map[string]string{"type": "integer"},
			"snapshot_id":        map[string]string{"type": "integer"},
			"station_id":         map[string]string{"type": "string"},
			"station_name":       map[string]string{"type": "string"},
			"county":             map[string]string{"type": "string"},
			"town":               map[string]string{"type": "string"},
			"obs_time":           map[string]string{"type": "string"},
			"temperature_c":      numberOrNull,
			"humidity_pct":       numberOrNull,
			"pressure_hpa":       numberOrNull,
			"wind_speed_ms":      numberOrNull,
			"wind_direction_deg": numberOrNull,
			"precipitation_mm":   numberOrNull,
			"weather":            map[string]interface{}{"type": "string", "nullable": true},
			"distance_km":        numberOrNull,
			"latitude":           numberOrNull,
			"longitude":          numberOrNull,
			"created_at":         map[string]string{"type": "string", "format": "date-time"},
		},
	}

	stationSchema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"station_id":    map[string]string{"type": "string"},
			"station_name":  map[string]string{"type": "string"},
			"county":        map[string]string{"type": "string"},
			"town":          map[string]string{"type": "string"},
			"latitude":      numberOrNull,
			"longitude":     numberOrNull,
			"geohash":       map[string]interface{}{"type": "string", "nullable": true},
			"first_seen_at": map[string]string{"type": "string", "format": "date-time"},
			"last_seen_at":  map[string]string{"type": "string", "format": "date-time"},
		},
	}

	snapshotSchema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id":                  map[string]string{"type": "integer"},
			"taken_at":            map[string]string{"type": "string", "format": "date-time"},
			"reference_name":      map[string]string{"type": "string"},
			"reference_latitude":  map[string]string{"type": "number"},
			"reference_longitude": map[string]string{"type": "number"},
			"total_records":       map[string]string{"type": "integer"},
			"station_count":       map[string]string{"type": "integer"},
			"ranked_count":        map[string]string{"type": "integer"},
			"skipped_count":       map[string]string{"type": "integer"},
			"min_km":              numberOrNull,
			"max_km":              numberOrNull,
			"mean_km":             numberOrNull,
			"median_km":           numberOrNull,
			"created_at":          map[string]string{"type": "string", "format": "date-time"},
		},
	}

	paginationSchema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"limit":  map[string]string{"type": "integer"},
			"offset": map[string]string{"type": "integer"},
			"total":  map[string]string{"type": "integer"},
		},
	}

	paginatedResponse := func(items map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"description": "Successful response",
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{
					"schema": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"data":       map[string]interface{}{"type": "array", "items": items},
							"pagination": paginationSchema,
						},
					},
				},
			},
		}
	}

	paginationParams := []map[string]interface{}{
		{
			"name":        "limit",
			"in":          "query",
			"description": "Records per page (default: 100, max: 1000)",
			"required":    false,
			"schema":      map[string]interface{}{"type": "integer", "default": 100},
		},
		{
			"name":        "offset",
			"in":          "query",
			"description": "Records to skip (default: 0)",
			"required":    false,
			"schema":      map[string]interface{}{"type": "integer", "default": 0},
		},
	}

	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Station Insights API",
			"description": "Real-time CWA weather station observations normalized, ranked by distance to a reference point, and archived as snapshots",
			"version":     "1.0.0",
			"contact": map[string]string{
				"name": "Station Insights Team",
			},
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/v1/stations": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "List known stations",
					"description": "Page through the station registry accumulated across snapshots",
					"parameters": append([]map[string]interface{}{
						{
							"name":        "county",
							"in":          "query",
							"description": "Filter by county name",
							"required":    false,
							"schema":      map[string]string{"type": "string"},
						},
						{
							"name":        "geohash_prefix",
							"in":          "query",
							"description": "Filter by geohash prefix",
							"required":    false,
							"schema":      map[string]string{"type": "string"},
						},
					}, paginationParams...),
					"responses": map[string]interface{}{
						"200": paginatedResponse(stationSchema),
					},
				},
			},
			"/api/v1/observations": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "List archived observations",
					"description": "Observations of one snapshot (latest by default), ordered by distance to the reference point",
					"parameters": append([]map[string]interface{}{
						{
							"name":        "snapshot_id",
							"in":          "query",
							"description": "Snapshot to read (default: latest)",
							"required":    false,
							"schema":      map[string]string{"type": "integer"},
						},
						{
							"name":        "county",
							"in":          "query",
							"description": "Filter by county name",
							"required":    false,
							"schema":      map[string]string{"type": "string"},
						},
						{
							"name":        "max_distance",
							"in":          "query",
							"description": "Keep stations within this distance in kilometers",
							"required":    false,
							"schema":      map[string]string{"type": "number"},
						},
					}, paginationParams...),
					"responses": map[string]interface{}{
						"200": paginatedResponse(observationSchema),
						"404": map[string]interface{}{"description": "No snapshot archived yet"},
					},
				},
			},
			"/api/v1/observations/nearest": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Nearest stations",
					"description": "The closest stations of the latest snapshot, nearest first",
					"parameters": []map[string]interface{}{
						{
							"name":        "limit",
							"in":          "query",
							"description": "How many stations to return (default: 10, max: 100)",
							"required":    false,
							"schema":      map[string]interface{}{"type": "integer", "default": 10},
						},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Successful response",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"data":  map[string]interface{}{"type": "array", "items": observationSchema},
											"count": map[string]string{"type": "integer"},
										},
									},
								},
							},
						},
						"404": map[string]interface{}{"description": "No snapshot archived yet"},
					},
				},
			},
			"/api/v1/summary/distance": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Distance summary",
					"description": "Distance distribution of the latest snapshot with the nearest ten and farthest five stations (farthest list ascending, overall farthest last)",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Successful response",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"snapshot": snapshotSchema,
											"nearest":  map[string]interface{}{"type": "array", "items": observationSchema},
											"farthest": map[string]interface{}{"type": "array", "items": observationSchema},
										},
									},
								},
							},
						},
						"404": map[string]interface{}{"description": "No snapshot archived yet"},
					},
				},
			},
			"/api/v1/summary/temperature": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Temperature summary",
					"description": "Aggregates over the usable temperature readings of the latest snapshot",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Successful response",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"reading_count":   map[string]string{"type": "integer"},
											"mean_c":          map[string]string{"type": "number"},
											"max_c":           map[string]string{"type": "number"},
											"min_c":           map[string]string{"type": "number"},
											"hottest_station": map[string]string{"type": "string"},
											"coldest_station": map[string]string{"type": "string"},
										},
									},
								},
							},
						},
						"404": map[string]interface{}{"description": "No snapshot or no usable readings"},
					},
				},
			},
			"/api/v1/refresh": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Run the pipeline",
					"description": "Fetch the live CWA feed, normalize, rank, and archive a new snapshot",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Pipeline result",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"snapshot_id":         map[string]string{"type": "integer"},
											"fetched_records":     map[string]string{"type": "integer"},
											"normalized_stations": map[string]string{"type": "integer"},
											"skipped_records":     map[string]string{"type": "integer"},
											"ranked_stations":     map[string]string{"type": "integer"},
											"duration_seconds":    map[string]string{"type": "number"},
										},
									},
								},
							},
						},
						"502": map[string]interface{}{"description": "Upstream CWA fetch failed"},
					},
				},
			},
			"/map": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Station map",
					"description": "Leaflet map of the latest snapshot with temperature-colored markers and a heat layer",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "HTML page",
							"content": map[string]interface{}{
								"text/html": map[string]interface{}{
									"schema": map[string]string{"type": "string"},
								},
							},
						},
						"404": map[string]interface{}{"description": "No snapshot archived yet"},
					},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Health check",
					"description": "Check if the API and its database are reachable",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "API is healthy",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"status":   map[string]string{"type": "string"},
											"database": map[string]string{"type": "string"},
										},
									},
								},
							},
						},
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Prometheus metrics in text format",
							"content": map[string]interface{}{
								"text/plain": map[string]interface{}{
									"schema": map[string]string{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
