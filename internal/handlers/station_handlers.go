package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"station-insights/internal/repository"
	"station-insights/internal/services"
	"station-insights/pkg/logging"
	"station-insights/pkg/metrics"
)

// StationHandler handles the station archive API endpoints
type StationHandler struct {
	stationService *services.StationService
	pipeline       *services.PipelineService
	logger         *logging.StructuredLogger
	metrics        *metrics.Collector
}

// NewStationHandler creates a new station handler
func NewStationHandler(
	stationService *services.StationService,
	pipeline *services.PipelineService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *StationHandler {
	return &StationHandler{
		stationService: stationService,
		pipeline:       pipeline,
		logger:         logger,
		metrics:        metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Pagination reports the window a list response covers.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// ListStations handles GET /api/v1/stations
func (h *StationHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, offset := parsePagination(r)
	filter := repository.StationFilter{
		Limit:  limit,
		Offset: offset,
	}

	if county := r.URL.Query().Get("county"); county != "" {
		filter.County = &county
	}

	if prefix := r.URL.Query().Get("geohash_prefix"); prefix != "" {
		filter.GeohashPrefix = &prefix
	}

	stations, total, err := h.stationService.ListStations(ctx, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_LIST_STATIONS_ERROR] Failed to list stations", logging.Fields{
			"filter": filter,
		}, err)
		h.sendError(w, r, "failed to list stations", http.StatusInternalServerError)
		return
	}

	response := PaginatedResponse{
		Data:       stations,
		Pagination: Pagination{Limit: limit, Offset: offset, Total: total},
	}

	h.sendJSON(w, response, http.StatusOK)
}

// GetObservations handles GET /api/v1/observations
func (h *StationHandler) GetObservations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, offset := parsePagination(r)
	filter := repository.ObservationFilter{
		Limit:  limit,
		Offset: offset,
	}

	if snapshotIDStr := r.URL.Query().Get("snapshot_id"); snapshotIDStr != "" {
		snapshotID, err := strconv.ParseInt(snapshotIDStr, 10, 64)
		if err != nil || snapshotID <= 0 {
			h.sendError(w, r, "invalid snapshot_id, expected positive integer", http.StatusBadRequest)
			return
		}
		filter.SnapshotID = &snapshotID
	}

	if county := r.URL.Query().Get("county"); county != "" {
		filter.County = &county
	}

	if maxDistanceStr := r.URL.Query().Get("max_distance"); maxDistanceStr != "" {
		maxDistance, err := strconv.ParseFloat(maxDistanceStr, 64)
		if err != nil || maxDistance < 0 {
			h.sendError(w, r, "invalid max_distance, expected non-negative number", http.StatusBadRequest)
			return
		}
		filter.MaxDistanceKm = &maxDistance
	}

	observations, total, err := h.stationService.GetObservations(ctx, filter)
	if err != nil {
		var notFound *repository.NotFoundError
		if errors.As(err, &notFound) {
			h.sendError(w, r, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error(ctx, "[API_GET_OBSERVATIONS_ERROR] Failed to get observations", logging.Fields{
			"filter": filter,
		}, err)
		h.sendError(w, r, "failed to retrieve observations", http.StatusInternalServerError)
		return
	}

	response := PaginatedResponse{
		Data:       observations,
		Pagination: Pagination{Limit: limit, Offset: offset, Total: total},
	}

	h.sendJSON(w, response, http.StatusOK)
}

// NearestStations handles GET /api/v1/observations/nearest
func (h *StationHandler) NearestStations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := services.NearestCount
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	observations, err := h.stationService.NearestStations(ctx, limit)
	if err != nil {
		var notFound *repository.NotFoundError
		if errors.As(err, &notFound) {
			h.sendError(w, r, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error(ctx, "[API_NEAREST_ERROR] Failed to get nearest stations", logging.Fields{
			"limit": limit,
		}, err)
		h.sendError(w, r, "failed to retrieve nearest stations", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, map[string]interface{}{
		"data":  observations,
		"count": len(observations),
	}, http.StatusOK)
}

// DistanceSummary handles GET /api/v1/summary/distance
func (h *StationHandler) DistanceSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	view, err := h.stationService.LatestDistanceSummary(ctx)
	if err != nil {
		var notFound *repository.NotFoundError
		if errors.As(err, &notFound) {
			h.sendError(w, r, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error(ctx, "[API_DISTANCE_SUMMARY_ERROR] Failed to build distance summary", logging.Fields{}, err)
		h.sendError(w, r, "failed to build distance summary", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, view, http.StatusOK)
}

// TemperatureSummary handles GET /api/v1/summary/temperature
func (h *StationHandler) TemperatureSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	summary, err := h.stationService.LatestTemperatureSummary(ctx)
	if err != nil {
		var notFound *repository.NotFoundError
		if errors.As(err, &notFound) {
			h.sendError(w, r, err.Error(), http.StatusNotFound)
			return
		}
		var empty *services.EmptyInputError
		if errors.As(err, &empty) {
			h.sendError(w, r, "no usable temperature readings in latest snapshot", http.StatusNotFound)
			return
		}
		h.logger.Error(ctx, "[API_TEMPERATURE_SUMMARY_ERROR] Failed to aggregate temperatures", logging.Fields{}, err)
		h.sendError(w, r, "failed to aggregate temperatures", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, summary, http.StatusOK)
}

// Refresh handles POST /api/v1/refresh: one fetch-normalize-rank-archive
// pass against the live CWA feed.
func (h *StationHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.pipeline.Run(ctx, services.RunOptions{ArchiveSnapshot: true})
	if err != nil {
		var fetchErr *services.FetchError
		if errors.As(err, &fetchErr) {
			h.logger.Error(ctx, "[API_REFRESH_ERROR] Upstream fetch failed", logging.Fields{}, err)
			h.sendError(w, r, "upstream CWA fetch failed", http.StatusBadGateway)
			return
		}
		h.logger.Error(ctx, "[API_REFRESH_ERROR] Pipeline run failed", logging.Fields{}, err)
		h.sendError(w, r, "refresh failed", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, result, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *StationHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.stationService.HealthCheck(ctx); err != nil {
		h.logger.Error(ctx, "[HEALTH_CHECK_ERROR] Database unreachable", logging.Fields{}, err)
		status["status"] = "degraded"
		status["database"] = "unreachable"
		h.sendJSON(w, status, http.StatusServiceUnavailable)
		return
	}

	status["database"] = "ok"
	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, http.StatusOK)
}

// sendJSON sends a JSON response
func (h *StationHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *StationHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// parsePagination reads limit/offset with the API defaults: limit 100
// capped at 1000, offset 0. Unparseable values keep the defaults.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = 100
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	return limit, offset
}

// RegisterAPIRoutes registers the versioned API endpoints. The caller owns
// the subrouter and any middleware on it.
func (h *StationHandler) RegisterAPIRoutes(api *mux.Router) {
	api.HandleFunc("/stations", h.ListStations).Methods("GET")
	api.HandleFunc("/observations", h.GetObservations).Methods("GET")
	api.HandleFunc("/observations/nearest", h.NearestStations).Methods("GET")
	api.HandleFunc("/summary/distance", h.DistanceSummary).Methods("GET")
	api.HandleFunc("/summary/temperature", h.TemperatureSummary).Methods("GET")
	api.HandleFunc("/refresh", h.Refresh).Methods("POST")
	api.HandleFunc("/openapi.json", h.OpenAPISpec).Methods("GET")
}

// RegisterSiteRoutes registers the unversioned pages.
func (h *StationHandler) RegisterSiteRoutes(router *mux.Router) {
	router.HandleFunc("/map", h.StationMap).Methods("GET")
	router.HandleFunc("/docs", h.SwaggerUI).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}
