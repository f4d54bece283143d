package activities

import (
	"context"
	"fmt"
	"log"

	"github.com/EckmanTechLLC/nyx-sub001/internal/motivation"
	"github.com/EckmanTechLLC/nyx-sub001/internal/signals"
	"github.com/EckmanTechLLC/nyx-sub001/internal/temporal/workflows"
	"github.com/EckmanTechLLC/nyx-sub001/pkg/models"
)

// PromptRunner executes a generated prompt against whatever agent backend is
// wired in and reports how it went.
type PromptRunner interface {
	Run(ctx context.Context, task models.TaskSnapshot) (*workflows.ExecutePromptResult, error)
}

// TaskActivities provides Temporal activities for motivated task execution.
type TaskActivities struct {
	engine  *motivation.Engine
	runner  PromptRunner
	tracker *signals.ActivityTracker
}

// NewTaskActivities creates the activity set. tracker may be nil.
func NewTaskActivities(engine *motivation.Engine, runner PromptRunner, tracker *signals.ActivityTracker) *TaskActivities {
	return &TaskActivities{engine: engine, runner: runner, tracker: tracker}
}

// ExecutePromptActivity runs one motivated prompt through the agent backend.
func (a *TaskActivities) ExecutePromptActivity(ctx context.Context, task models.TaskSnapshot) (*workflows.ExecutePromptResult, error) {
	if a.runner == nil {
		return nil, fmt.Errorf("no prompt runner configured")
	}

	result, err := a.runner.Run(ctx, task)
	if err != nil {
		log.Printf("Prompt execution failed for task %s: %v", task.TaskID, err)
		return nil, err
	}
	return result, nil
}

// ReportOutcomeActivity feeds an execution outcome into the feedback loop.
func (a *TaskActivities) ReportOutcomeActivity(ctx context.Context, input workflows.ReportOutcomeInput) error {
	if a.engine == nil {
		return fmt.Errorf("motivation engine not initialized")
	}

	err := a.engine.ProcessTaskOutcome(ctx, input.TaskID, input.Success, input.OutcomeScore, input.Metadata)
	if err != nil {
		return err
	}

	if a.tracker != nil {
		a.tracker.AgentFinished()
		a.tracker.RecordCompletion(input.TaskID, input.Success)
	}
	return nil
}

// EvaluateMotivationsActivityResult summarizes one engine cycle.
type EvaluateMotivationsActivityResult struct {
	CycleCount int    `json:"cycle_count"`
	Error      string `json:"error,omitempty"`
}

// EvaluateMotivationsActivity runs one evaluation cycle on demand, for
// deployments that drive the engine from a Temporal heartbeat workflow
// instead of the in-process ticker.
func (a *TaskActivities) EvaluateMotivationsActivity(ctx context.Context) (*EvaluateMotivationsActivityResult, error) {
	result := &EvaluateMotivationsActivityResult{}
	if a.engine == nil {
		return result, nil
	}

	if err := a.engine.RunCycle(ctx); err != nil {
		result.Error = err.Error()
		log.Printf("Motivation evaluation cycle failed: %v", err)
	}
	result.CycleCount = a.engine.GetStatus().CycleCount
	return result, nil
}
