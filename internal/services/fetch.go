package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"station-insights/internal/models"
	"station-insights/pkg/logging"
	"station-insights/pkg/metrics"
)

// ObservationDatasetID is the CWA open-data dataset carrying real-time
// automatic weather station observations.
const ObservationDatasetID = "O-A0003-001"

// maxErrorBody caps how much of an upstream body is carried into an error
// message.
const maxErrorBody = 512

// FetchError marks an upstream retrieval failure so callers can tell it
// apart from downstream processing errors (API handlers map it to 502).
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// CWAClient fetches observation documents from the CWA open-data platform.
// One attempt per call; retry policy belongs to the caller. The API key is
// sent as a query parameter and is never logged.
type CWAClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.StructuredLogger
	metrics    *metrics.Collector
}

// NewCWAClient creates a new CWA open-data client
func NewCWAClient(baseURL, apiKey string, timeout time.Duration, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *CWAClient {
	return &CWAClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metricsCollector,
	}
}

// FetchObservations retrieves the current observation document and
// validates the envelope: a non-200 status, an undecodable body, or a
// success flag other than "true" all fail the fetch. Every error return is
// a *FetchError.
func (c *CWAClient) FetchObservations(ctx context.Context) (*models.ObservationDocument, error) {
	timer := c.metrics.NewTimer(c.metrics.FetchDuration)

	params := url.Values{}
	params.Set("Authorization", c.apiKey)
	params.Set("format", "JSON")

	requestURL := fmt.Sprintf("%s/api/v1/rest/datastore/%s?%s", c.baseURL, ObservationDatasetID, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		c.metrics.RecordFetch("request_error")
		return nil, &FetchError{Err: fmt.Errorf("failed to build CWA request: %w", err)}
	}

	c.logger.Debug(ctx, "[FETCH_START] Requesting CWA observations", logging.Fields{
		"dataset": ObservationDatasetID,
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = redactQuery(err)
		c.metrics.RecordFetch("network_error")
		c.logger.Error(ctx, "[FETCH_ERROR] CWA request failed", logging.Fields{
			"dataset": ObservationDatasetID,
		}, err)
		return nil, &FetchError{Err: fmt.Errorf("failed to fetch CWA observations: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordFetch("read_error")
		return nil, &FetchError{Err: fmt.Errorf("failed to read CWA response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordFetch(fmt.Sprintf("http_%d", resp.StatusCode))
		c.logger.Error(ctx, "[FETCH_ERROR] CWA returned non-200 status", logging.Fields{
			"dataset": ObservationDatasetID,
			"status":  resp.StatusCode,
		}, nil)
		return nil, &FetchError{Err: fmt.Errorf("CWA API returned status %d: %s", resp.StatusCode, bodyExcerpt(body))}
	}

	doc, err := models.DecodeObservationDocument(body)
	if err != nil {
		c.metrics.RecordFetch("decode_error")
		return nil, &FetchError{Err: err}
	}

	if !doc.Succeeded() {
		c.metrics.RecordFetch("api_error")
		message := string(doc.Message)
		if message == "" {
			message = "unknown error"
		}
		return nil, &FetchError{Err: fmt.Errorf("CWA API reported failure: %s (success=%q)", message, string(doc.Success))}
	}

	duration := timer.ObserveDuration()
	c.metrics.RecordFetch("ok")
	c.metrics.FetchRecordsTotal.Add(float64(doc.StationCount()))

	c.logger.Info(ctx, "[FETCH_COMPLETE] CWA observations fetched", logging.Fields{
		"dataset":     ObservationDatasetID,
		"raw_records": doc.StationCount(),
		"duration_ms": duration.Milliseconds(),
	})

	return doc, nil
}

// bodyExcerpt truncates an upstream body for error messages.
func bodyExcerpt(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}

// redactQuery strips the query string from url.Error values. Transport
// errors quote the full request URL, which carries the API key.
func redactQuery(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if u, parseErr := url.Parse(urlErr.URL); parseErr == nil && u.RawQuery != "" {
			u.RawQuery = ""
			urlErr.URL = u.String()
		}
	}
	return err
}
