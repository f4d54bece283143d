package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/EckmanTechLLC/nyx-sub001/internal/motivation"
	"github.com/EckmanTechLLC/nyx-sub001/pkg/config"
)

// OrchestratorClient queries the external orchestrator's signal API. It
// implements motivation.SignalProvider over HTTP.
type OrchestratorClient struct {
	baseURL       string
	authToken     string
	retryAttempts int
	retryDelay    time.Duration
	httpClient    *http.Client
}

// NewOrchestratorClient creates a signal client. Returns nil when no base URL
// is configured, allowing callers to treat a nil *OrchestratorClient as
// "disabled" and fall back to the local activity tracker.
func NewOrchestratorClient(cfg *config.OrchestratorConfig) *OrchestratorClient {
	if cfg == nil || cfg.BaseURL == "" {
		return nil
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retryAttempts := cfg.RetryAttempts
	if retryAttempts <= 0 {
		retryAttempts = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}

	return &OrchestratorClient{
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		authToken:     cfg.AuthToken,
		retryAttempts: retryAttempts,
		retryDelay:    retryDelay,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

type countResponse struct {
	Count int `json:"count"`
}

type workItemsResponse struct {
	WorkItems []motivation.WorkItemSummary `json:"work_items"`
}

type goalsResponse struct {
	Goals []string `json:"goals"`
}

type toolFailuresResponse struct {
	Counts map[string]int `json:"counts"`
}

func (c *OrchestratorClient) FailedWorkItemCount(ctx context.Context, window time.Duration) (int, error) {
	var resp countResponse
	err := c.getJSON(ctx, "/api/v1/signals/work-items/failed/count", windowParams(window, 0), &resp)
	return resp.Count, err
}

func (c *OrchestratorClient) FailedWorkItems(ctx context.Context, window time.Duration, limit int) ([]motivation.WorkItemSummary, error) {
	var resp workItemsResponse
	err := c.getJSON(ctx, "/api/v1/signals/work-items/failed", windowParams(window, limit), &resp)
	return resp.WorkItems, err
}

func (c *OrchestratorClient) LowConfidenceCount(ctx context.Context, window time.Duration) (int, error) {
	var resp countResponse
	err := c.getJSON(ctx, "/api/v1/signals/outputs/low-confidence/count", windowParams(window, 0), &resp)
	return resp.Count, err
}

func (c *OrchestratorClient) ToolFailureCounts(ctx context.Context, window time.Duration) (map[string]int, error) {
	var resp toolFailuresResponse
	err := c.getJSON(ctx, "/api/v1/signals/tools/failures", windowParams(window, 0), &resp)
	return resp.Counts, err
}

func (c *OrchestratorClient) CompletedWorkItemCount(ctx context.Context, window time.Duration) (int, error) {
	var resp countResponse
	err := c.getJSON(ctx, "/api/v1/signals/work-items/completed/count", windowParams(window, 0), &resp)
	return resp.Count, err
}

func (c *OrchestratorClient) CompletedGoals(ctx context.Context, window time.Duration, limit int) ([]string, error) {
	var resp goalsResponse
	err := c.getJSON(ctx, "/api/v1/signals/work-items/completed/goals", windowParams(window, limit), &resp)
	return resp.Goals, err
}

func (c *OrchestratorClient) StaleWorkItems(ctx context.Context, olderThan time.Duration, limit int) ([]motivation.WorkItemSummary, error) {
	var resp workItemsResponse
	err := c.getJSON(ctx, "/api/v1/signals/work-items/stale", windowParams(olderThan, limit), &resp)
	return resp.WorkItems, err
}

func (c *OrchestratorClient) Activity(ctx context.Context, window time.Duration) (motivation.ActivitySnapshot, error) {
	var resp motivation.ActivitySnapshot
	err := c.getJSON(ctx, "/api/v1/signals/activity", windowParams(window, 0), &resp)
	return resp, err
}

// Healthy checks orchestrator reachability.
func (c *OrchestratorClient) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return false
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

func windowParams(window time.Duration, limit int) url.Values {
	params := url.Values{}
	params.Set("window_seconds", strconv.Itoa(int(window.Seconds())))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	return params
}

// getJSON performs a GET with bounded retries and decodes the JSON body into
// out.
func (c *OrchestratorClient) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		if err := c.doGet(ctx, path, params, out); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("orchestrator: exhausted %d retries for %s: %w", c.retryAttempts, path, lastErr)
}

func (c *OrchestratorClient) doGet(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("orchestrator: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("orchestrator: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("orchestrator: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("orchestrator: unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("orchestrator: decode response: %w", err)
	}
	return nil
}
