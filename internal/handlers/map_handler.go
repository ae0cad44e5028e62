package handlers

import (
	"errors"
	"net/http"

	"station-insights/internal/repository"
	"station-insights/internal/services"
	"station-insights/pkg/logging"
)

// StationMap handles GET /map: the latest snapshot rendered as a Leaflet
// page straight from the archive.
func (h *StationHandler) StationMap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap, rows, err := h.stationService.MapObservations(ctx)
	if err != nil {
		var notFound *repository.NotFoundError
		if errors.As(err, &notFound) {
			h.sendError(w, r, "no snapshot archived yet", http.StatusNotFound)
			return
		}
		h.logger.Error(ctx, "[API_MAP_ERROR] Failed to load snapshot for map", logging.Fields{}, err)
		h.sendError(w, r, "failed to load snapshot", http.StatusInternalServerError)
		return
	}

	data := services.MapDataFromRows(rows, snap.ReferencePoint(), snap.RefName, snap.TakenAt)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := services.RenderHTML(w, data); err != nil {
		// Headers are already out; all we can do is log.
		h.logger.Error(ctx, "[API_MAP_ERROR] Failed to render map", logging.Fields{
			"snapshot_id": snap.ID,
		}, err)
	}
}
