package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// WGS84CoordinateName tags the coordinate entry the pipeline reads. The
// feed also carries TWD67/TWD97 entries, which are ignored.
const WGS84CoordinateName = "WGS84"

// TextValue decodes any scalar JSON token (string, number, boolean, null)
// into its textual form. The CWA feed is inconsistent about whether
// readings arrive as numbers or strings, and the sentinel comparison works
// on text, so the raw schema keeps everything textual. Objects and arrays
// fail to decode, which surfaces a malformed entry as a per-record error.
type TextValue string

// UnmarshalJSON implements json.Unmarshaler.
func (t *TextValue) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = TextValue(s)
		return nil
	case '{', '[':
		return fmt.Errorf("cannot decode %s into a scalar value", jsonTypeName(data[0]))
	}
	if string(data) == "null" {
		return nil
	}
	*t = TextValue(data)
	return nil
}

func jsonTypeName(b byte) string {
	if b == '{' {
		return "JSON object"
	}
	return "JSON array"
}

// ObservationDocument is the top-level envelope of the CWA real-time
// observation dataset (O-A0003-001). Message is only populated on failure
// responses.
type ObservationDocument struct {
	Success TextValue          `json:"success"`
	Message TextValue          `json:"message"`
	Records ObservationRecords `json:"records"`
}

// ObservationRecords holds the station list. Entries stay raw so each one
// decodes independently: a single mangled entry must never take down the
// whole document.
type ObservationRecords struct {
	Station []json.RawMessage `json:"Station"`
}

// Succeeded reports whether the envelope carries the success flag. The
// upstream emits the string "true"; a boolean true is accepted the same
// way through TextValue.
func (d *ObservationDocument) Succeeded() bool {
	return string(d.Success) == "true"
}

// StationCount returns the number of raw station entries, zero for a
// missing or empty records block.
func (d *ObservationDocument) StationCount() int {
	if d == nil {
		return 0
	}
	return len(d.Records.Station)
}

// DecodeObservationDocument parses a raw response body into the document
// envelope. Per-station decoding is deferred to DecodeRawStation.
func DecodeObservationDocument(data []byte) (*ObservationDocument, error) {
	var doc ObservationDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode observation document: %w", err)
	}
	return &doc, nil
}

// RawStation mirrors one entry of records.Station as the feed ships it.
type RawStation struct {
	StationID      string            `json:"StationId"`
	StationName    string            `json:"StationName"`
	ObsTime        RawObsTime        `json:"ObsTime"`
	GeoInfo        RawGeoInfo        `json:"GeoInfo"`
	WeatherElement RawWeatherElement `json:"WeatherElement"`
}

// RawObsTime wraps the observation timestamp. The value is opaque to this
// system and passes through unparsed.
type RawObsTime struct {
	DateTime string `json:"DateTime"`
}

// RawGeoInfo carries the administrative names and the coordinate list.
type RawGeoInfo struct {
	Coordinates []RawCoordinate `json:"Coordinates"`
	CountyName  string          `json:"CountyName"`
	TownName    string          `json:"TownName"`
}

// RawCoordinate is one entry of GeoInfo.Coordinates.
type RawCoordinate struct {
	CoordinateName   string    `json:"CoordinateName"`
	StationLatitude  TextValue `json:"StationLatitude"`
	StationLongitude TextValue `json:"StationLongitude"`
}

// RawWeatherElement is the flat element block of a station entry.
// Precipitation lives one level deeper under Now.
type RawWeatherElement struct {
	Weather          TextValue     `json:"Weather"`
	Now              RawNowElement `json:"Now"`
	WindDirection    TextValue     `json:"WindDirection"`
	WindSpeed        TextValue     `json:"WindSpeed"`
	AirTemperature   TextValue     `json:"AirTemperature"`
	RelativeHumidity TextValue     `json:"RelativeHumidity"`
	AirPressure      TextValue     `json:"AirPressure"`
}

// RawNowElement holds the current-conditions sub-object.
type RawNowElement struct {
	Precipitation TextValue `json:"Precipitation"`
}

// DecodeRawStation decodes a single raw entry. A failure here is a
// per-record condition: the caller skips the entry and keeps the batch.
func DecodeRawStation(data json.RawMessage) (*RawStation, error) {
	var rs RawStation
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to decode station entry: %w", err)
	}
	return &rs, nil
}

// ToStation converts a raw entry into the validated Station schema. This is
// the only place raw fields are interpreted; missing fields collapse to
// zero values / nil, never to sentinel strings.
func (r *RawStation) ToStation() *Station {
	st := &Station{
		StationID:       r.StationID,
		StationName:     r.StationName,
		ObservationTime: r.ObsTime.DateTime,
		Location: Location{
			County: r.GeoInfo.CountyName,
			Town:   r.GeoInfo.TownName,
		},
	}

	if lat, lon, ok := r.GeoInfo.wgs84(); ok {
		st.Location.Latitude = &lat
		st.Location.Longitude = &lon
	}

	we := r.WeatherElement
	st.WeatherElements = WeatherElements{
		Temperature:   optionalText(we.AirTemperature),
		Humidity:      optionalText(we.RelativeHumidity),
		Pressure:      optionalText(we.AirPressure),
		WindSpeed:     optionalText(we.WindSpeed),
		WindDirection: optionalText(we.WindDirection),
		Weather:       optionalText(we.Weather),
		Precipitation: optionalText(we.Now.Precipitation),
	}

	return st
}

// wgs84 extracts the position from the first WGS84 coordinate entry. Later
// WGS84 entries are ignored even if the first one is unusable. Both sides
// must parse as finite floats or neither is returned.
func (g *RawGeoInfo) wgs84() (lat, lon float64, ok bool) {
	for _, c := range g.Coordinates {
		if c.CoordinateName != WGS84CoordinateName {
			continue
		}
		lat, ok = parseCoordinate(c.StationLatitude)
		if !ok {
			return 0, 0, false
		}
		lon, ok = parseCoordinate(c.StationLongitude)
		if !ok {
			return 0, 0, false
		}
		return lat, lon, true
	}
	return 0, 0, false
}

func parseCoordinate(t TextValue) (float64, bool) {
	text := strings.TrimSpace(string(t))
	if text == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func optionalText(t TextValue) *string {
	if t == "" {
		return nil
	}
	s := string(t)
	return &s
}
