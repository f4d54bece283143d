package motivation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/EckmanTechLLC/nyx-sub001/pkg/models"
)

func newSpawnerFixture(t *testing.T) (*memStorage, *TaskSpawner) {
	t.Helper()
	db := newMemStorage()
	states := NewStateManager(db)
	arb := NewArbitrationEngine(db, states, &stubSignals{}, false, 0)
	return db, NewTaskSpawner(db, states, arb)
}

func TestSpawnTask(t *testing.T) {
	db, s := newSpawnerFixture(t)
	ctx := context.Background()

	state := newTestState(TypeIdleExploration)
	state.Urgency = 0.8
	state.Satisfaction = 0.2
	db.InsertState(ctx, state)

	task, err := s.SpawnTask(ctx, state)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if task.Status != models.TaskStatusQueued {
		t.Errorf("status = %s, want queued", task.Status)
	}
	if task.GeneratedPrompt == "" {
		t.Error("expected non-empty prompt")
	}
	if task.MotivationalStateID != state.ID {
		t.Errorf("state id = %s, want %s", task.MotivationalStateID, state.ID)
	}
	// score = 0.8 * 0.8 = 0.64
	if task.TaskPriority != task.ArbitrationScore {
		t.Errorf("priority %v != score %v", task.TaskPriority, task.ArbitrationScore)
	}
	if task.Context["motivation_type"] != TypeIdleExploration {
		t.Errorf("context motivation_type = %v", task.Context["motivation_type"])
	}

	stored, err := db.TaskByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("stored task: %v", err)
	}
	if stored.Status != models.TaskStatusQueued {
		t.Errorf("stored status = %s, want queued", stored.Status)
	}
}

func TestSpawnTaskNoGenerator(t *testing.T) {
	db, s := newSpawnerFixture(t)
	ctx := context.Background()

	state := newTestState("unregistered_drive")
	db.InsertState(ctx, state)

	if _, err := s.SpawnTask(ctx, state); !errors.Is(err, ErrNoGenerator) {
		t.Fatalf("expected ErrNoGenerator, got %v", err)
	}
}

func TestSpawnTaskGeneratorFallback(t *testing.T) {
	db, s := newSpawnerFixture(t)
	ctx := context.Background()

	state := newTestState(TypeMaximizeCoverage)
	db.InsertState(ctx, state)
	s.RegisterGenerator(TypeMaximizeCoverage, func(TaskContext) (string, error) {
		return "", errors.New("template blew up")
	})

	task, err := s.SpawnTask(ctx, state)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if !strings.Contains(task.GeneratedPrompt, "coverage") {
		t.Errorf("expected fallback prompt, got %q", task.GeneratedPrompt)
	}
}

func TestSpawnTaskQueueTransitionError(t *testing.T) {
	db, s := newSpawnerFixture(t)
	ctx := context.Background()

	state := newTestState(TypeIdleExploration)
	db.InsertState(ctx, state)
	db.updateTaskErr = errors.New("write failed")

	// The insert lands but the queued transition fails; the task stays in
	// generated and the spawn reports the error.
	if _, err := s.SpawnTask(ctx, state); !errors.Is(err, db.updateTaskErr) {
		t.Fatalf("expected update error propagated, got %v", err)
	}

	tasks, err := db.QueuedTasks(ctx, 10)
	if err != nil {
		t.Fatalf("queued tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("found %d queued tasks after failed transition, want 0", len(tasks))
	}
}

func TestUpdateTaskStatusTimestamps(t *testing.T) {
	db, s := newSpawnerFixture(t)
	ctx := context.Background()

	state := newTestState(TypeIdleExploration)
	db.InsertState(ctx, state)
	task, err := s.SpawnTask(ctx, state)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	if err := s.UpdateTaskStatus(ctx, task.ID, models.TaskStatusSpawned, "", nil); err != nil {
		t.Fatalf("spawned: %v", err)
	}
	got, _ := db.TaskByID(ctx, task.ID)
	if got.SpawnedAt == nil {
		t.Error("expected SpawnedAt set")
	}

	if err := s.UpdateTaskStatus(ctx, task.ID, models.TaskStatusActive, "wi-7", map[string]interface{}{"k": "v"}); err != nil {
		t.Fatalf("active: %v", err)
	}
	got, _ = db.TaskByID(ctx, task.ID)
	if got.StartedAt == nil {
		t.Error("expected StartedAt set")
	}
	if got.WorkItemID != "wi-7" {
		t.Errorf("work item id = %s, want wi-7", got.WorkItemID)
	}
	if got.Context["k"] != "v" {
		t.Errorf("metadata not merged: %v", got.Context)
	}

	if err := s.UpdateTaskStatus(ctx, task.ID, models.TaskStatusCancelled, "", nil); err != nil {
		t.Fatalf("cancelled: %v", err)
	}
	got, _ = db.TaskByID(ctx, task.ID)
	if got.CompletedAt == nil {
		t.Error("expected CompletedAt set for terminal status")
	}
}

func TestPendingTasksOrdering(t *testing.T) {
	db, s := newSpawnerFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for _, tc := range []struct {
		id       string
		priority float64
	}{
		{"low", 0.2}, {"high", 0.9}, {"mid", 0.5},
	} {
		db.InsertTask(ctx, &models.MotivationalTask{
			ID:           tc.id,
			TaskPriority: tc.priority,
			Status:       models.TaskStatusQueued,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	tasks, err := s.PendingTasks(ctx, 2)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("len = %d, want 2", len(tasks))
	}
	if tasks[0].ID != "high" || tasks[1].ID != "mid" {
		t.Errorf("order = %s, %s; want high, mid", tasks[0].ID, tasks[1].ID)
	}
}
