// Package mlservice talks to the external ML service that scores readings for
// anomalies and serves node forecasts.
package mlservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/citypulse/internal/domain"
	"github.com/go-resty/resty/v2"
)

// Client implements anomaly.Scorer and forecast.Predictor over HTTP.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for the ML service at baseURL. Every call is
// bounded by timeout and is never retried.
func NewClient(baseURL string, timeout time.Duration) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Client{http: client}
}

// GetClient exposes the underlying HTTP client for transport mocking.
func (c *Client) GetClient() *http.Client {
	return c.http.GetClient()
}

type detectResponse struct {
	IsAnomaly    *bool    `json:"is_anomaly"`
	AnomalyScore *float64 `json:"anomaly_score"`
	Signals      []string `json:"signals"`
	Explanation  string   `json:"explanation"`
}

// Detect posts the reading to /detect. A nil outcome with a nil error means
// the service explicitly declined to decide.
func (c *Client) Detect(ctx context.Context, r domain.Reading) (*domain.AnomalyOutcome, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(r).
		Post("/detect")
	if err != nil {
		return nil, fmt.Errorf("%w: detect: %w", domain.ErrRemoteUnavailable, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: detect: status %d", domain.ErrRemoteUnavailable, resp.StatusCode())
	}

	body := bytes.TrimSpace(resp.Body())
	if bytes.Equal(body, []byte("null")) {
		return nil, nil
	}

	var out detectResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode detect response: %w", domain.ErrRemoteUnavailable, err)
	}
	if out.IsAnomaly == nil {
		return nil, fmt.Errorf("%w: detect response missing is_anomaly", domain.ErrRemoteUnavailable)
	}

	outcome := domain.RemoteOutcome(*out.IsAnomaly, out.AnomalyScore, out.Signals, out.Explanation)
	outcome.Raw = bytes.Clone(body)
	return &outcome, nil
}

// Forecast fetches /forecast, or /forecast/{nodeID} when nodeID is set, and
// returns the payload verbatim.
func (c *Client) Forecast(ctx context.Context, nodeID string, horizonMinutes int) (json.RawMessage, error) {
	path := "/forecast"
	if nodeID != "" {
		path += "/" + url.PathEscape(nodeID)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("horizon", strconv.Itoa(horizonMinutes)).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("%w: forecast: %w", domain.ErrRemoteUnavailable, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("%w: forecast for %q", domain.ErrNotFound, nodeID)
	case !resp.IsSuccess():
		return nil, fmt.Errorf("%w: forecast: status %d", domain.ErrRemoteUnavailable, resp.StatusCode())
	}

	body := bytes.TrimSpace(resp.Body())
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: forecast: invalid JSON payload", domain.ErrRemoteUnavailable)
	}
	return json.RawMessage(bytes.Clone(body)), nil
}
