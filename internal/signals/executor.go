package signals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/EckmanTechLLC/nyx-sub001/pkg/models"
)

// dispatchResponse is the orchestrator's acknowledgement of a new work item.
type dispatchResponse struct {
	WorkItemID string `json:"work_item_id"`
}

// PromptResult is the orchestrator's synchronous execution outcome.
type PromptResult struct {
	Success        bool               `json:"success"`
	OutcomeScore   float64            `json:"outcome_score"`
	QualityMetrics map[string]float64 `json:"quality_metrics,omitempty"`
	Output         string             `json:"output,omitempty"`
}

// Execute submits a motivated task as a new orchestrator work item and
// returns the work item ID. It implements motivation.Executor; the outcome
// arrives later through the completion callback.
func (c *OrchestratorClient) Execute(ctx context.Context, task models.TaskSnapshot) (string, error) {
	var resp dispatchResponse
	err := c.postJSON(ctx, "/api/v1/work-items", map[string]interface{}{
		"source":          "motivation",
		"task_id":         task.TaskID,
		"motivation_type": task.MotivationType,
		"prompt":          task.GeneratedPrompt,
		"priority":        task.TaskPriority,
		"context":         task.Context,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.WorkItemID == "" {
		return "", fmt.Errorf("orchestrator: dispatch returned no work item id for task %s", task.TaskID)
	}
	return resp.WorkItemID, nil
}

// RunPrompt executes a motivated prompt synchronously and returns the
// outcome. Used by the Temporal activity path, where the workflow owns
// completion tracking instead of the callback endpoint.
func (c *OrchestratorClient) RunPrompt(ctx context.Context, task models.TaskSnapshot) (*PromptResult, error) {
	var result PromptResult
	err := c.postJSON(ctx, "/api/v1/agents/execute", map[string]interface{}{
		"task_id":         task.TaskID,
		"motivation_type": task.MotivationType,
		"prompt":          task.GeneratedPrompt,
		"priority":        task.TaskPriority,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *OrchestratorClient) postJSON(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("orchestrator: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("orchestrator: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("orchestrator: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("orchestrator: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("orchestrator: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("orchestrator: decode response: %w", err)
		}
	}
	return nil
}
