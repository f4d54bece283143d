package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/EckmanTechLLC/nyx-sub001/internal/motivation"
	"github.com/EckmanTechLLC/nyx-sub001/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	// Nested path exercises the directory creation in Open.
	path := filepath.Join(t.TempDir(), "data", "motivation.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testState(motivationType string) *models.MotivationState {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.MotivationState{
		ID:             "state-" + motivationType,
		MotivationType: motivationType,
		Urgency:        0.4,
		Satisfaction:   0.5,
		DecayRate:      0.02,
		BoostFactor:    1.2,
		MaxUrgency:     0.9,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestStateRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	triggered := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	state := testState("resolve_unfinished_tasks")
	state.SuccessCount = 3
	state.FailureCount = 1
	state.TotalAttempts = 4
	state.SuccessRate = 0.75
	state.LastTriggeredAt = &triggered
	state.TriggerCondition = map[string]interface{}{"type": "failed_tasks", "threshold": float64(1)}
	state.Metadata = map[string]interface{}{"last_boost_amount": 0.6}

	if err := s.InsertState(ctx, state); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.StateByType(ctx, "resolve_unfinished_tasks")
	if err != nil {
		t.Fatalf("state by type: %v", err)
	}
	if got.ID != state.ID || got.Urgency != 0.4 || got.SuccessRate != 0.75 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.LastTriggeredAt == nil || !got.LastTriggeredAt.Equal(triggered) {
		t.Errorf("last triggered = %v, want %v", got.LastTriggeredAt, triggered)
	}
	if got.LastSatisfiedAt != nil {
		t.Errorf("last satisfied = %v, want nil", got.LastSatisfiedAt)
	}
	if got.TriggerCondition["type"] != "failed_tasks" {
		t.Errorf("trigger condition = %v", got.TriggerCondition)
	}
	if got.Metadata["last_boost_amount"] != 0.6 {
		t.Errorf("metadata = %v", got.Metadata)
	}

	byID, err := s.StateByID(ctx, state.ID)
	if err != nil {
		t.Fatalf("state by id: %v", err)
	}
	if byID.MotivationType != state.MotivationType {
		t.Errorf("by id type = %s", byID.MotivationType)
	}
}

func TestDuplicateActiveStateRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertState(ctx, testState("idle_exploration")); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	dup := testState("idle_exploration")
	dup.ID = "state-idle-2"
	if err := s.InsertState(ctx, dup); !errors.Is(err, motivation.ErrDuplicateState) {
		t.Fatalf("expected ErrDuplicateState, got %v", err)
	}

	// Deactivated rows do not collide with the active one.
	inactive := testState("idle_exploration")
	inactive.ID = "state-idle-history"
	inactive.IsActive = false
	if err := s.InsertState(ctx, inactive); err != nil {
		t.Fatalf("inactive insert: %v", err)
	}
}

func TestUpdateStateMissing(t *testing.T) {
	s := openTestStore(t)

	ghost := testState("no_such_drive")
	if err := s.UpdateState(context.Background(), ghost); !errors.Is(err, motivation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStateByTypeIgnoresInactive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	state := testState("maximize_coverage")
	state.IsActive = false
	if err := s.InsertState(ctx, state); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.StateByType(ctx, "maximize_coverage"); !errors.Is(err, motivation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for inactive state, got %v", err)
	}
}

func TestInactiveStateByType(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.InactiveStateByType(ctx, "maximize_coverage"); !errors.Is(err, motivation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound with no rows, got %v", err)
	}

	older := testState("maximize_coverage")
	older.ID = "state-coverage-old"
	older.IsActive = false
	older.UpdatedAt = older.UpdatedAt.Add(-time.Hour)
	if err := s.InsertState(ctx, older); err != nil {
		t.Fatalf("insert older: %v", err)
	}

	newer := testState("maximize_coverage")
	newer.ID = "state-coverage-new"
	newer.IsActive = false
	if err := s.InsertState(ctx, newer); err != nil {
		t.Fatalf("insert newer: %v", err)
	}

	got, err := s.InactiveStateByType(ctx, "maximize_coverage")
	if err != nil {
		t.Fatalf("inactive state by type: %v", err)
	}
	if got.ID != "state-coverage-new" {
		t.Errorf("id = %s, want the most recently updated row", got.ID)
	}
}

func TestActiveStatesOrderedByUrgency(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, tc := range []struct {
		motivationType string
		urgency        float64
	}{
		{"calm", 0.1}, {"urgent", 0.9}, {"middling", 0.5},
	} {
		state := testState(tc.motivationType)
		state.Urgency = tc.urgency
		if err := s.InsertState(ctx, state); err != nil {
			t.Fatalf("insert %s: %v", tc.motivationType, err)
		}
	}

	states, err := s.ActiveStates(ctx)
	if err != nil {
		t.Fatalf("active states: %v", err)
	}
	if len(states) != 3 {
		t.Fatalf("len = %d, want 3", len(states))
	}
	if states[0].MotivationType != "urgent" || states[2].MotivationType != "calm" {
		t.Errorf("order = %s, %s, %s", states[0].MotivationType, states[1].MotivationType, states[2].MotivationType)
	}
}

func testTask(id, stateID string, status models.TaskStatus) *models.MotivationalTask {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.MotivationalTask{
		ID:                  id,
		MotivationalStateID: stateID,
		GeneratedPrompt:     "investigate the failed work items",
		TaskPriority:        0.5,
		ArbitrationScore:    0.5,
		Status:              status,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func TestTaskRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	state := testState("resolve_unfinished_tasks")
	if err := s.InsertState(ctx, state); err != nil {
		t.Fatalf("insert state: %v", err)
	}

	completed := time.Now().UTC().Truncate(time.Millisecond)
	success := true
	score := 0.85
	gain := 0.12
	task := testTask("task-1", state.ID, models.TaskStatusCompleted)
	task.WorkItemID = "wi-9"
	task.CompletedAt = &completed
	task.Success = &success
	task.OutcomeScore = &score
	task.SatisfactionGain = &gain
	task.Context = map[string]interface{}{"motivation_type": "resolve_unfinished_tasks"}

	if err := s.InsertTask(ctx, task); err != nil {
		t.Fatalf("insert task: %v", err)
	}

	got, err := s.TaskByID(ctx, "task-1")
	if err != nil {
		t.Fatalf("task by id: %v", err)
	}
	if got.Status != models.TaskStatusCompleted || got.WorkItemID != "wi-9" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Success == nil || !*got.Success {
		t.Errorf("success = %v, want true", got.Success)
	}
	if got.OutcomeScore == nil || *got.OutcomeScore != 0.85 {
		t.Errorf("outcome score = %v, want 0.85", got.OutcomeScore)
	}
	if got.SpawnedAt != nil {
		t.Errorf("spawned at = %v, want nil", got.SpawnedAt)
	}
	if got.Context["motivation_type"] != "resolve_unfinished_tasks" {
		t.Errorf("context = %v", got.Context)
	}

	byHandle, err := s.TaskByWorkItem(ctx, "wi-9")
	if err != nil {
		t.Fatalf("task by work item: %v", err)
	}
	if byHandle.ID != "task-1" {
		t.Errorf("by handle id = %s, want task-1", byHandle.ID)
	}

	if _, err := s.TaskByWorkItem(ctx, "unknown"); !errors.Is(err, motivation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown handle, got %v", err)
	}
}

func TestInFlightCounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	state := testState("resolve_unfinished_tasks")
	other := testState("idle_exploration")
	s.InsertState(ctx, state)
	s.InsertState(ctx, other)

	s.InsertTask(ctx, testTask("t-queued", state.ID, models.TaskStatusQueued))
	s.InsertTask(ctx, testTask("t-active", state.ID, models.TaskStatusActive))
	s.InsertTask(ctx, testTask("t-done", state.ID, models.TaskStatusCompleted))
	s.InsertTask(ctx, testTask("t-other", other.ID, models.TaskStatusSpawned))

	count, err := s.CountInFlightTasks(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("in-flight count = %d, want 3", count)
	}

	has, err := s.HasInFlightTask(ctx, state.ID)
	if err != nil {
		t.Fatalf("has in-flight: %v", err)
	}
	if !has {
		t.Error("expected in-flight task for state")
	}

	ghost, err := s.HasInFlightTask(ctx, "no-such-state")
	if err != nil {
		t.Fatalf("has in-flight ghost: %v", err)
	}
	if ghost {
		t.Error("expected no in-flight task for unknown state")
	}
}

func TestQueuedTasksOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	state := testState("resolve_unfinished_tasks")
	s.InsertState(ctx, state)

	for _, tc := range []struct {
		id       string
		priority float64
	}{
		{"low", 0.2}, {"high", 0.9}, {"mid", 0.5},
	} {
		task := testTask(tc.id, state.ID, models.TaskStatusQueued)
		task.TaskPriority = tc.priority
		s.InsertTask(ctx, task)
	}
	s.InsertTask(ctx, testTask("done", state.ID, models.TaskStatusCompleted))

	tasks, err := s.QueuedTasks(ctx, 2)
	if err != nil {
		t.Fatalf("queued: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("len = %d, want 2", len(tasks))
	}
	if tasks[0].ID != "high" || tasks[1].ID != "mid" {
		t.Errorf("order = %s, %s; want high, mid", tasks[0].ID, tasks[1].ID)
	}
}

func TestCompletedTasksSince(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	state := testState("resolve_unfinished_tasks")
	s.InsertState(ctx, state)

	recent := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	old := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Millisecond)

	recentTask := testTask("recent", state.ID, models.TaskStatusCompleted)
	recentTask.CompletedAt = &recent
	s.InsertTask(ctx, recentTask)

	oldTask := testTask("old", state.ID, models.TaskStatusFailed)
	oldTask.CompletedAt = &old
	s.InsertTask(ctx, oldTask)

	s.InsertTask(ctx, testTask("open", state.ID, models.TaskStatusActive))

	tasks, err := s.CompletedTasksSince(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("completed since: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "recent" {
		t.Errorf("tasks = %v, want only recent", taskIDs(tasks))
	}
}

func taskIDs(tasks []*models.MotivationalTask) []string {
	ids := make([]string, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}
	return ids
}

func TestInTransactionCommit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.InTransaction(ctx, func(tx motivation.Storage) error {
		if err := tx.InsertState(ctx, testState("idle_exploration")); err != nil {
			return err
		}
		return tx.InsertTask(ctx, testTask("t-1", "state-idle_exploration", models.TaskStatusQueued))
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	if _, err := s.StateByType(ctx, "idle_exploration"); err != nil {
		t.Errorf("committed state not visible: %v", err)
	}
	if _, err := s.TaskByID(ctx, "t-1"); err != nil {
		t.Errorf("committed task not visible: %v", err)
	}
}

func TestInTransactionRollback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.InTransaction(ctx, func(tx motivation.Storage) error {
		if err := tx.InsertState(ctx, testState("idle_exploration")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	// The insert rolled back with the failing function.
	if _, err := s.StateByType(ctx, "idle_exploration"); !errors.Is(err, motivation.ErrNotFound) {
		t.Errorf("expected ErrNotFound after rollback, got %v", err)
	}
}
