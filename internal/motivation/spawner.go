package motivation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/EckmanTechLLC/nyx-sub001/pkg/models"
)

// PromptGenerator renders an instruction string for one motivation type. It
// must be a pure function of the context; a returned error triggers the
// generic fallback prompt rather than failing the spawn.
type PromptGenerator func(ctx TaskContext) (string, error)

// ErrNoGenerator reports a motivation type with no registered prompt
// generator. This is a configuration error: the type is skipped, the cycle
// continues.
var ErrNoGenerator = errors.New("no prompt generator registered")

// TaskSpawner converts selected motivation states into persisted tasks.
type TaskSpawner struct {
	db          Storage
	states      *StateManager
	arbitration *ArbitrationEngine
	generators  map[string]PromptGenerator
}

// NewTaskSpawner creates a spawner with the default prompt generators
// registered for the built-in motivation types.
func NewTaskSpawner(db Storage, states *StateManager, arbitration *ArbitrationEngine) *TaskSpawner {
	s := &TaskSpawner{
		db:          db,
		states:      states,
		arbitration: arbitration,
		generators:  make(map[string]PromptGenerator),
	}
	s.RegisterGenerator(TypeResolveUnfinishedTasks, generateResolveUnfinishedPrompt)
	s.RegisterGenerator(TypeRefineLowConfidence, generateRefineConfidencePrompt)
	s.RegisterGenerator(TypeExploreRecentFailure, generateExploreFailurePrompt)
	s.RegisterGenerator(TypeMaximizeCoverage, generateCoveragePrompt)
	s.RegisterGenerator(TypeRevisitOldThoughts, generateRevisitThoughtsPrompt)
	s.RegisterGenerator(TypeIdleExploration, generateIdleExplorationPrompt)
	return s
}

func (s *TaskSpawner) withStorage(db Storage) *TaskSpawner {
	cp := *s
	cp.db = db
	cp.states = s.states.withStorage(db)
	cp.arbitration = s.arbitration.withStorage(db)
	return &cp
}

// RegisterGenerator installs a prompt generator for a motivation type,
// replacing any existing one.
func (s *TaskSpawner) RegisterGenerator(motivationType string, gen PromptGenerator) {
	s.generators[motivationType] = gen
}

// SpawnTask materializes a selected state into a queued task with a rendered
// prompt and a priority derived from the arbitration score.
func (s *TaskSpawner) SpawnTask(ctx context.Context, state *models.MotivationState) (*models.MotivationalTask, error) {
	taskCtx := s.arbitration.EvaluateMotivationContext(ctx, state)

	gen, ok := s.generators[state.MotivationType]
	if !ok {
		log.Printf("No prompt generator for motivation type: %s", state.MotivationType)
		return nil, fmt.Errorf("%w for type %s", ErrNoGenerator, state.MotivationType)
	}

	prompt, err := gen(taskCtx)
	if err != nil || prompt == "" {
		if err != nil {
			log.Printf("Prompt generator for %s failed, using fallback: %v", state.MotivationType, err)
		}
		prompt = fallbackPrompt(state.MotivationType)
	}

	score := s.states.CalculateArbitrationScore(state)
	now := time.Now().UTC()
	task := &models.MotivationalTask{
		ID:                  uuid.NewString(),
		MotivationalStateID: state.ID,
		GeneratedPrompt:     prompt,
		TaskPriority:        math.Min(score, 1.0),
		ArbitrationScore:    score,
		Status:              models.TaskStatusGenerated,
		Context:             taskCtx.ToMap(),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.db.InsertTask(ctx, task); err != nil {
		return nil, fmt.Errorf("spawn task for %s: %w", state.MotivationType, err)
	}

	// Immediately ready for external pickup.
	task.Status = models.TaskStatusQueued
	task.UpdatedAt = time.Now().UTC()
	if err := s.db.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("queue task for %s: %w", state.MotivationType, err)
	}

	log.Printf("Spawned motivated task for %s with priority %.3f", state.MotivationType, task.TaskPriority)
	return task, nil
}

// UpdateTaskStatus advances a task through its lifecycle, stamping the
// transition timestamps and merging any metadata into the task context.
// workItemID, when non-empty, records the external execution handle.
func (s *TaskSpawner) UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus, workItemID string, metadata map[string]interface{}) error {
	task, err := s.db.TaskByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("update task %s: %w", taskID, err)
	}

	now := time.Now().UTC()
	task.Status = status
	switch {
	case status == models.TaskStatusSpawned && task.SpawnedAt == nil:
		task.SpawnedAt = &now
	case status == models.TaskStatusActive && task.StartedAt == nil:
		task.StartedAt = &now
	case status.Terminal() && task.CompletedAt == nil:
		task.CompletedAt = &now
	}
	if workItemID != "" {
		task.WorkItemID = workItemID
	}
	if metadata != nil {
		if task.Context == nil {
			task.Context = make(map[string]interface{})
		}
		for k, v := range metadata {
			task.Context[k] = v
		}
	}
	task.UpdatedAt = now

	if err := s.db.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("update task %s: %w", taskID, err)
	}
	log.Printf("Updated task %s status to %s", taskID, status)
	return nil
}

// PendingTasks returns queued tasks ready for executor pickup, highest
// priority first.
func (s *TaskSpawner) PendingTasks(ctx context.Context, limit int) ([]*models.MotivationalTask, error) {
	return s.db.QueuedTasks(ctx, limit)
}
