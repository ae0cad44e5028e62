package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"station-insights/internal/models"
	"station-insights/pkg/logging"
	"station-insights/pkg/metrics"
)

// artifactTimestamp is the layout stamped into artifact filenames.
const artifactTimestamp = "20060102_150405"

// Exporter writes pipeline results as pretty-printed JSON artifacts.
// Non-ASCII station names are written verbatim (HTML escaping off) so the
// files round-trip byte-exact.
type Exporter struct {
	outputDir string
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// NewExporter creates a new artifact exporter rooted at outputDir
func NewExporter(outputDir string, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Exporter {
	return &Exporter{
		outputDir: outputDir,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// WriteStations writes the normalized station sequence, in input order, to
// a timestamped station_observations file. Returns the artifact path.
func (e *Exporter) WriteStations(ctx context.Context, stations []*models.Station) (string, error) {
	path := e.artifactPath("station_observations")
	if err := e.writeJSON(path, stations); err != nil {
		return "", err
	}

	e.metrics.RecordExport("stations")
	e.logger.Info(ctx, "[EXPORT_STATIONS] Station artifact written", logging.Fields{
		"path":     path,
		"stations": len(stations),
	})

	return path, nil
}

// WriteRanked writes the distance-annotated station sequence to a
// timestamped stations_with_distance file. Returns the artifact path.
func (e *Exporter) WriteRanked(ctx context.Context, ranked []*models.StationWithDistance) (string, error) {
	path := e.artifactPath("stations_with_distance")
	if err := e.writeJSON(path, ranked); err != nil {
		return "", err
	}

	e.metrics.RecordExport("ranked")
	e.logger.Info(ctx, "[EXPORT_RANKED] Ranked artifact written", logging.Fields{
		"path":     path,
		"stations": len(ranked),
	})

	return path, nil
}

func (e *Exporter) artifactPath(prefix string) string {
	filename := fmt.Sprintf("%s_%s.json", prefix, time.Now().Format(artifactTimestamp))
	return filepath.Join(e.outputDir, filename)
}

func (e *Exporter) writeJSON(path string, payload interface{}) error {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}

	encoder := json.NewEncoder(f)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(payload); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}

	return nil
}
