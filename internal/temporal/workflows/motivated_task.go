package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/EckmanTechLLC/nyx-sub001/pkg/models"
)

// MotivatedTaskWorkflowInput carries the task snapshot into the workflow.
type MotivatedTaskWorkflowInput struct {
	Task models.TaskSnapshot `json:"task"`
}

// ExecutePromptResult is the outcome of running a motivated prompt.
type ExecutePromptResult struct {
	Success        bool               `json:"success"`
	OutcomeScore   float64            `json:"outcome_score"`
	QualityMetrics map[string]float64 `json:"quality_metrics,omitempty"`
	Output         string             `json:"output,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// MotivatedTaskWorkflow executes one motivated task: run the generated
// prompt, then report the outcome back so the feedback loop can update the
// owning motivation. Reporting retries independently of execution so a
// transient store error never re-runs the prompt.
func MotivatedTaskWorkflow(ctx workflow.Context, input MotivatedTaskWorkflowInput) (*ExecutePromptResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Motivated task workflow started",
		"taskID", input.Task.TaskID, "motivationType", input.Task.MotivationType)

	executeOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 2,
		},
	}

	var result ExecutePromptResult
	err := workflow.ExecuteActivity(
		workflow.WithActivityOptions(ctx, executeOptions),
		"ExecutePromptActivity", input.Task,
	).Get(ctx, &result)
	if err != nil {
		logger.Error("Prompt execution failed", "taskID", input.Task.TaskID, "error", err)
		result = ExecutePromptResult{Success: false, OutcomeScore: 0, Error: err.Error()}
	}

	reportOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 1 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 5 * time.Second,
			MaximumAttempts: 5,
		},
	}
	reportErr := workflow.ExecuteActivity(
		workflow.WithActivityOptions(ctx, reportOptions),
		"ReportOutcomeActivity", ReportOutcomeInput{
			TaskID:       input.Task.TaskID,
			Success:      result.Success,
			OutcomeScore: result.OutcomeScore,
			Metadata: map[string]interface{}{
				"workflow_id": workflow.GetInfo(ctx).WorkflowExecution.ID,
			},
		},
	).Get(ctx, nil)
	if reportErr != nil {
		logger.Error("Outcome reporting failed", "taskID", input.Task.TaskID, "error", reportErr)
		return &result, reportErr
	}

	return &result, nil
}

// ReportOutcomeInput carries an execution outcome to the feedback activity.
type ReportOutcomeInput struct {
	TaskID       string                 `json:"task_id"`
	Success      bool                   `json:"success"`
	OutcomeScore float64                `json:"outcome_score"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}
