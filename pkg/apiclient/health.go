package apiclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HealthResponse is the health endpoint response wrapper.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Data      map[string]string `json:"data,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Healthy reports whether the response indicates a healthy service.
func (r *HealthResponse) Healthy() bool {
	return r.Status == "healthy"
}

// Health calls the liveness endpoint.
func (c *Client) Health() (*HealthResponse, error) {
	return c.health("/health")
}

// Ready calls the readiness endpoint.
//
// A not-ready server answers 503 with a health document; that still decodes
// into a HealthResponse (with Healthy() == false) rather than erroring, so
// callers can show the reason.
func (c *Client) Ready() (*HealthResponse, error) {
	return c.health("/health/ready")
}

// health fetches a health document, tolerating non-2xx statuses that carry
// a decodable body.
func (c *Client) health(path string) (*HealthResponse, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var hr HealthResponse
	if err := json.Unmarshal(body, &hr); err != nil || hr.Status == "" {
		return nil, &APIError{
			Status: resp.StatusCode,
			Title:  http.StatusText(resp.StatusCode),
			Detail: string(body),
		}
	}

	return &hr, nil
}
