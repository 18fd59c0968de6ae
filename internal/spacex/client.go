// Package spacex is a thin client for the public launch data API. It fetches
// launches and rockets and submits rocket cost and payload type edits.
package spacex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nzvengeance/launch-shelf/internal/metrics"
	"github.com/nzvengeance/launch-shelf/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://api.spacexdata.com/v3"
	DefaultUserAgent = "LaunchShelf/1.0"
	DefaultRateLimit = 5  // requests per second
	DefaultBurst     = 10 // allow bursts
)

// APIError is returned for any unsuccessful response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string { return e.Message }

// Client is a rate-limited HTTP client for the launch data API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	userAgent   string
}

// NewClient creates a client for baseURL. Non-positive limits use the defaults.
func NewClient(baseURL string, rateLimit float64, burst int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if rateLimit <= 0 {
		rateLimit = DefaultRateLimit
	}
	if burst <= 0 {
		burst = DefaultBurst
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), burst),
		userAgent:   DefaultUserAgent,
	}
}

// FetchLaunchList returns every launch.
func (c *Client) FetchLaunchList(ctx context.Context) ([]models.Launch, error) {
	var launches []models.Launch
	if err := c.do(ctx, "fetch_launches", http.MethodGet, "/launches", nil, &launches); err != nil {
		return nil, err
	}
	log.Debug().Int("count", len(launches)).Msg("fetched launch list")
	return launches, nil
}

// FetchRocket returns one rocket including its cost per launch.
func (c *Client) FetchRocket(ctx context.Context, rocketID string) (models.RocketDetail, error) {
	var rocket models.RocketDetail
	err := c.do(ctx, "fetch_rocket", http.MethodGet, "/rockets/"+url.PathEscape(rocketID), nil, &rocket)
	return rocket, err
}

// EditRocket updates a rocket's cost per launch.
func (c *Client) EditRocket(ctx context.Context, rocketID string, field models.RocketCostField) error {
	return c.edit(ctx, "edit_rocket", "rockets", rocketID, field)
}

// EditPayload updates a payload's type.
func (c *Client) EditPayload(ctx context.Context, payloadID string, field models.PayloadTypeField) error {
	return c.edit(ctx, "edit_payload", "payloads", payloadID, field)
}

// editRequest wraps the edited fields the way the API expects them.
type editRequest struct {
	Field any `json:"field"`
}

func (c *Client) edit(ctx context.Context, op, specifier, id string, field any) error {
	body, err := json.Marshal(editRequest{Field: field})
	if err != nil {
		return fmt.Errorf("encoding %s edit: %w", specifier, err)
	}
	path := fmt.Sprintf("/%s/%s", specifier, url.PathEscape(id))
	return c.do(ctx, op, http.MethodPatch, path, body, nil)
}

// --- HTTP helpers ---

func (c *Client) do(ctx context.Context, op, method, path string, body []byte, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.APIRequestTotal.WithLabelValues(op, metrics.Outcome(err)).Inc()
		metrics.APIRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Debug().Str("method", method).Str("path", path).Msg("launch api request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20)) // 10MB limit
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s response: %w", op, err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} from an error body, falling back to
// the generic "Not found".
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return "Not found"
}
