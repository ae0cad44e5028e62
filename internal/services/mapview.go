package services

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"time"

	"station-insights/internal/models"
	"station-insights/pkg/logging"
	"station-insights/pkg/metrics"
)

// Temperature bands for marker coloring, in degrees Celsius. Below
// coolBandMax is blue, up to warmBandMax is green, above is orange;
// stations without a usable reading are gray.
const (
	coolBandMax = 20.0
	warmBandMax = 28.0
)

// defaultMapZoom frames the whole island.
const defaultMapZoom = 7

// MapMarker is one station circle on the map. Optional readings stay
// pointers so missing values reach the page as JSON null.
type MapMarker struct {
	Lat          float64  `json:"lat"`
	Lon          float64  `json:"lon"`
	Color        string   `json:"color"`
	StationID    string   `json:"station_id"`
	Name         string   `json:"name"`
	County       string   `json:"county"`
	Town         string   `json:"town"`
	TemperatureC *float64 `json:"temperature_c"`
	HumidityPct  *float64 `json:"humidity_pct"`
	WindSpeedMs  *float64 `json:"wind_speed_ms"`
	Weather      *string  `json:"weather"`
	DistanceKm   float64  `json:"distance_km"`
	ObsTime      string   `json:"obs_time"`
}

// HeatPoint is one weighted point of the temperature heat layer. Weight is
// the reading normalized to [0,1] over the rendered range.
type HeatPoint struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Weight float64 `json:"weight"`
}

// MapData is the template payload for one rendered map page.
type MapData struct {
	Title         string
	GeneratedAt   string
	CenterLat     float64
	CenterLon     float64
	Zoom          int
	TotalStations int
	ValidStations int
	ReferenceName string
	Markers       []MapMarker
	HeatPoints    []HeatPoint
}

// MapRenderer renders ranked stations as a self-contained Leaflet HTML page
// with colored circle markers and a temperature heat layer.
type MapRenderer struct {
	outputDir     string
	referenceName string
	logger        *logging.StructuredLogger
	metrics       *metrics.Collector
}

// NewMapRenderer creates a new map renderer writing into outputDir.
// referenceName labels the distance line in marker popups.
func NewMapRenderer(outputDir, referenceName string, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *MapRenderer {
	return &MapRenderer{
		outputDir:     outputDir,
		referenceName: referenceName,
		logger:        logger,
		metrics:       metricsCollector,
	}
}

// BuildMapData assembles the page payload from ranked stations. The map
// centers on the arithmetic mean of the marker coordinates and falls back
// to the reference point when nothing is rendered.
func BuildMapData(ranked []*models.StationWithDistance, reference models.GeoPoint, referenceName string, takenAt time.Time) *MapData {
	markers := make([]MapMarker, 0, len(ranked))

	for _, station := range ranked {
		// Ranked stations always carry coordinates; guard anyway so a
		// hand-built slice cannot panic the renderer.
		if !station.Location.HasCoordinates() {
			continue
		}

		temp := station.WeatherElements.TemperatureValue()
		markers = append(markers, MapMarker{
			Lat:          *station.Location.Latitude,
			Lon:          *station.Location.Longitude,
			Color:        temperatureColor(temp),
			StationID:    station.StationID,
			Name:         station.StationName,
			County:       station.Location.County,
			Town:         station.Location.Town,
			TemperatureC: temp,
			HumidityPct:  station.WeatherElements.HumidityValue(),
			WindSpeedMs:  station.WeatherElements.WindSpeedValue(),
			Weather:      station.WeatherElements.Weather,
			DistanceKm:   station.DistanceKm,
			ObsTime:      station.ObservationTime,
		})
	}

	return assembleMapData(markers, reference, referenceName, takenAt)
}

// MapDataFromRows assembles the page payload from archived observation
// rows, used by the map endpoint to render the latest snapshot. Rows
// without coordinates are skipped.
func MapDataFromRows(rows []*models.ObservationRow, reference models.GeoPoint, referenceName string, takenAt time.Time) *MapData {
	markers := make([]MapMarker, 0, len(rows))

	for _, row := range rows {
		if row.Latitude == nil || row.Longitude == nil {
			continue
		}

		var distance float64
		if row.DistanceKm != nil {
			distance = *row.DistanceKm
		}

		markers = append(markers, MapMarker{
			Lat:          *row.Latitude,
			Lon:          *row.Longitude,
			Color:        temperatureColor(row.TemperatureC),
			StationID:    row.StationID,
			Name:         row.StationName,
			County:       row.County,
			Town:         row.Town,
			TemperatureC: row.TemperatureC,
			HumidityPct:  row.HumidityPct,
			WindSpeedMs:  row.WindSpeedMs,
			Weather:      row.Weather,
			DistanceKm:   distance,
			ObsTime:      row.ObsTime,
		})
	}

	return assembleMapData(markers, reference, referenceName, takenAt)
}

func assembleMapData(markers []MapMarker, reference models.GeoPoint, referenceName string, takenAt time.Time) *MapData {
	if referenceName == "" {
		referenceName = models.DefaultReferenceName
	}

	data := &MapData{
		Title:         "台灣氣象站即時氣溫分布圖",
		GeneratedAt:   takenAt.Format("2006-01-02 15:04:05"),
		Zoom:          defaultMapZoom,
		CenterLat:     reference.Latitude,
		CenterLon:     reference.Longitude,
		TotalStations: len(markers),
		ReferenceName: referenceName,
		Markers:       markers,
	}

	if len(markers) == 0 {
		return data
	}

	var latSum, lonSum float64
	var minTemp, maxTemp float64
	valid := 0

	for _, m := range markers {
		latSum += m.Lat
		lonSum += m.Lon

		if m.TemperatureC == nil {
			continue
		}
		if valid == 0 || *m.TemperatureC < minTemp {
			minTemp = *m.TemperatureC
		}
		if valid == 0 || *m.TemperatureC > maxTemp {
			maxTemp = *m.TemperatureC
		}
		valid++
	}

	data.CenterLat = latSum / float64(len(markers))
	data.CenterLon = lonSum / float64(len(markers))
	data.ValidStations = valid

	if valid == 0 {
		return data
	}

	data.HeatPoints = make([]HeatPoint, 0, valid)
	tempRange := maxTemp - minTemp

	for _, m := range markers {
		if m.TemperatureC == nil {
			continue
		}
		weight := 0.5
		if tempRange > 0 {
			weight = (*m.TemperatureC - minTemp) / tempRange
		}
		data.HeatPoints = append(data.HeatPoints, HeatPoint{
			Lat:    m.Lat,
			Lon:    m.Lon,
			Weight: weight,
		})
	}

	return data
}

// temperatureColor maps a reading to its marker color band.
func temperatureColor(temp *float64) string {
	switch {
	case temp == nil:
		return "gray"
	case *temp < coolBandMax:
		return "blue"
	case *temp <= warmBandMax:
		return "green"
	default:
		return "orange"
	}
}

// RenderHTML writes the map page for data to w.
func RenderHTML(w io.Writer, data *MapData) error {
	if err := mapTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render map: %w", err)
	}
	return nil
}

// WriteMap renders ranked stations into a timestamped station_map HTML
// artifact. Returns the artifact path.
func (m *MapRenderer) WriteMap(ctx context.Context, ranked []*models.StationWithDistance, reference models.GeoPoint) (string, error) {
	data := BuildMapData(ranked, reference, m.referenceName, time.Now())

	if err := os.MkdirAll(m.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	filename := fmt.Sprintf("station_map_%s.html", time.Now().Format(artifactTimestamp))
	path := filepath.Join(m.outputDir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create map artifact: %w", err)
	}

	if err := RenderHTML(f, data); err != nil {
		f.Close()
		return "", err
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write map artifact: %w", err)
	}

	m.metrics.RecordExport("map")
	m.logger.Info(ctx, "[EXPORT_MAP] Map artifact written", logging.Fields{
		"path":      path,
		"markers":   data.TotalStations,
		"with_temp": data.ValidStations,
	})

	return path, nil
}

var mapTemplate = template.Must(template.New("station_map").Parse(mapTemplateHTML))

const mapTemplateHTML = `<!DOCTYPE html>
<html lang="zh-Hant">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<script src="https://unpkg.com/leaflet.heat@0.2.0/dist/leaflet-heat.js"></script>
<style>
html, body { margin: 0; height: 100%; font-family: "Helvetica Neue", Arial, sans-serif; }
#map { height: 100%; }
.map-header {
  position: fixed; top: 10px; left: 50%; transform: translateX(-50%);
  z-index: 1000; background: rgba(255, 255, 255, 0.92); border: 2px solid #555;
  border-radius: 6px; padding: 8px 16px; font-size: 15px; text-align: center;
}
.map-legend {
  position: fixed; bottom: 24px; left: 12px; z-index: 1000;
  background: rgba(255, 255, 255, 0.92); border: 2px solid #555;
  border-radius: 6px; padding: 10px 14px; font-size: 13px; line-height: 1.7;
}
.legend-dot {
  display: inline-block; width: 11px; height: 11px; border-radius: 50%;
  border: 1px solid #000; margin-right: 6px; vertical-align: middle;
}
</style>
</head>
<body>
<div class="map-header">
  <b>{{.Title}}</b><br>
  更新時間: {{.GeneratedAt}} ｜ 有效溫度測站: {{.ValidStations}} / {{.TotalStations}}
</div>
<div id="map"></div>
<div class="map-legend">
  <b>氣溫圖例</b><br>
  <span class="legend-dot" style="background: blue"></span>&lt; 20°C<br>
  <span class="legend-dot" style="background: green"></span>20 – 28°C<br>
  <span class="legend-dot" style="background: orange"></span>&gt; 28°C<br>
  <span class="legend-dot" style="background: gray"></span>無資料
</div>
<script>
var map = L.map('map').setView([{{.CenterLat}}, {{.CenterLon}}], {{.Zoom}});

L.tileLayer('https://tile.openstreetmap.org/{z}/{x}/{y}.png', {
  attribution: '&copy; OpenStreetMap contributors'
}).addTo(map);

var markers = {{.Markers}};
var heatPoints = {{.HeatPoints}};

function esc(v) {
  return String(v == null ? '' : v).replace(/[&<>"']/g, function (ch) {
    return { '&': '&amp;', '<': '&lt;', '>': '&gt;', '"': '&quot;', "'": '&#39;' }[ch];
  });
}

function reading(value, unit) {
  return value == null ? 'N/A' : value + ' ' + unit;
}

markers.forEach(function (m) {
  var popup = '<b>' + esc(m.name) + '</b> (' + esc(m.station_id) + ')<br>' +
    '位置: ' + esc(m.county) + ' ' + esc(m.town) + '<br>' +
    '天氣: ' + esc(m.weather == null ? 'N/A' : m.weather) + '<br>' +
    '氣溫: ' + reading(m.temperature_c, '°C') + '<br>' +
    '相對濕度: ' + reading(m.humidity_pct, '%') + '<br>' +
    '風速: ' + reading(m.wind_speed_ms, 'm/s') + '<br>' +
    '距離{{.ReferenceName}}: ' + m.distance_km + ' km<br>' +
    '觀測時間: ' + esc(m.obs_time);

  L.circleMarker([m.lat, m.lon], {
    radius: 8,
    color: 'black',
    weight: 1,
    fillColor: m.color,
    fillOpacity: 0.7
  }).bindPopup(popup).bindTooltip(esc(m.name)).addTo(map);
});

if (heatPoints.length > 0) {
  L.heatLayer(heatPoints.map(function (p) { return [p.lat, p.lon, p.weight]; }), {
    minOpacity: 0.4,
    radius: 15,
    blur: 10,
    gradient: { 0.0: 'blue', 0.3: 'cyan', 0.5: 'lime', 0.7: 'yellow', 0.9: 'orange', 1.0: 'red' }
  }).addTo(map);
}
</script>
</body>
</html>
`
