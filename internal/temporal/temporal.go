package temporal

import (
	"context"
	"fmt"
	"log"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/EckmanTechLLC/nyx-sub001/internal/temporal/activities"
	"github.com/EckmanTechLLC/nyx-sub001/internal/temporal/workflows"
	"github.com/EckmanTechLLC/nyx-sub001/pkg/config"
	"github.com/EckmanTechLLC/nyx-sub001/pkg/models"
)

// Connect dials the Temporal server.
func Connect(cfg *config.TemporalConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Host,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to temporal at %s: %w", cfg.Host, err)
	}
	return c, nil
}

// Executor starts motivated task workflows. It implements
// motivation.Executor; the returned handle is the workflow ID.
type Executor struct {
	client    client.Client
	taskQueue string
}

// NewExecutor creates a workflow-backed executor.
func NewExecutor(c client.Client, taskQueue string) *Executor {
	return &Executor{client: c, taskQueue: taskQueue}
}

// Execute starts a MotivatedTaskWorkflow for the task and returns its
// workflow ID without waiting for completion. The workflow reports the
// outcome through ReportOutcomeActivity when it finishes.
func (e *Executor) Execute(ctx context.Context, task models.TaskSnapshot) (string, error) {
	workflowID := "motivated-task-" + task.TaskID

	run, err := e.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: e.taskQueue,
	}, workflows.MotivatedTaskWorkflow, workflows.MotivatedTaskWorkflowInput{Task: task})
	if err != nil {
		return "", fmt.Errorf("start workflow for task %s: %w", task.TaskID, err)
	}

	log.Printf("Started workflow %s (run %s) for task %s", workflowID, run.GetRunID(), task.TaskID)
	return workflowID, nil
}

// NewWorker builds a Temporal worker with the motivated task workflow and
// activities registered. The caller runs and stops it.
func NewWorker(c client.Client, taskQueue string, acts *activities.TaskActivities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.MotivatedTaskWorkflow)
	w.RegisterActivity(acts.ExecutePromptActivity)
	w.RegisterActivity(acts.ReportOutcomeActivity)
	w.RegisterActivity(acts.EvaluateMotivationsActivity)
	return w
}
