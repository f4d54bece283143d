package motivation

import (
	"context"
	"sort"
	"time"

	"github.com/EckmanTechLLC/nyx-sub001/pkg/models"
)

// memStorage is an in-memory Storage/Transactor for tests.
type memStorage struct {
	states map[string]*models.MotivationState
	tasks  map[string]*models.MotivationalTask

	insertStateErr error
	updateStateErr error
	updateTaskErr  error
}

func newMemStorage() *memStorage {
	return &memStorage{
		states: make(map[string]*models.MotivationState),
		tasks:  make(map[string]*models.MotivationalTask),
	}
}

func (m *memStorage) InsertState(_ context.Context, state *models.MotivationState) error {
	if m.insertStateErr != nil {
		return m.insertStateErr
	}
	if state.IsActive {
		for _, s := range m.states {
			if s.IsActive && s.MotivationType == state.MotivationType {
				return ErrDuplicateState
			}
		}
	}
	m.states[state.ID] = state.Clone()
	return nil
}

func (m *memStorage) UpdateState(_ context.Context, state *models.MotivationState) error {
	if m.updateStateErr != nil {
		return m.updateStateErr
	}
	if _, ok := m.states[state.ID]; !ok {
		return ErrNotFound
	}
	m.states[state.ID] = state.Clone()
	return nil
}

func (m *memStorage) StateByID(_ context.Context, id string) (*models.MotivationState, error) {
	state, ok := m.states[id]
	if !ok {
		return nil, ErrNotFound
	}
	return state.Clone(), nil
}

func (m *memStorage) StateByType(_ context.Context, motivationType string) (*models.MotivationState, error) {
	for _, s := range m.states {
		if s.IsActive && s.MotivationType == motivationType {
			return s.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStorage) InactiveStateByType(_ context.Context, motivationType string) (*models.MotivationState, error) {
	var latest *models.MotivationState
	for _, s := range m.states {
		if s.IsActive || s.MotivationType != motivationType {
			continue
		}
		if latest == nil || s.UpdatedAt.After(latest.UpdatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest.Clone(), nil
}

func (m *memStorage) ActiveStates(_ context.Context) ([]*models.MotivationState, error) {
	var out []*models.MotivationState
	for _, s := range m.states {
		if s.IsActive {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Urgency > out[j].Urgency })
	return out, nil
}

func (m *memStorage) InsertTask(_ context.Context, task *models.MotivationalTask) error {
	m.tasks[task.ID] = cloneTask(task)
	return nil
}

func (m *memStorage) UpdateTask(_ context.Context, task *models.MotivationalTask) error {
	if m.updateTaskErr != nil {
		return m.updateTaskErr
	}
	if _, ok := m.tasks[task.ID]; !ok {
		return ErrNotFound
	}
	m.tasks[task.ID] = cloneTask(task)
	return nil
}

func (m *memStorage) TaskByID(_ context.Context, id string) (*models.MotivationalTask, error) {
	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTask(task), nil
}

func (m *memStorage) TaskByWorkItem(_ context.Context, workItemID string) (*models.MotivationalTask, error) {
	for _, t := range m.tasks {
		if t.WorkItemID == workItemID {
			return cloneTask(t), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStorage) HasInFlightTask(_ context.Context, stateID string) (bool, error) {
	for _, t := range m.tasks {
		if t.MotivationalStateID == stateID && t.Status.InFlight() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStorage) CountInFlightTasks(_ context.Context) (int, error) {
	count := 0
	for _, t := range m.tasks {
		if t.Status.InFlight() {
			count++
		}
	}
	return count, nil
}

func (m *memStorage) QueuedTasks(_ context.Context, limit int) ([]*models.MotivationalTask, error) {
	var out []*models.MotivationalTask
	for _, t := range m.tasks {
		if t.Status == models.TaskStatusQueued {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskPriority > out[j].TaskPriority })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStorage) CompletedTasksSince(_ context.Context, since time.Time) ([]*models.MotivationalTask, error) {
	var out []*models.MotivationalTask
	for _, t := range m.tasks {
		if t.CompletedAt != nil && !t.CompletedAt.Before(since) {
			out = append(out, cloneTask(t))
		}
	}
	return out, nil
}

func (m *memStorage) InTransaction(_ context.Context, fn func(Storage) error) error {
	return fn(m)
}

func cloneTask(t *models.MotivationalTask) *models.MotivationalTask {
	cp := *t
	if t.Context != nil {
		cp.Context = make(map[string]interface{}, len(t.Context))
		for k, v := range t.Context {
			cp.Context[k] = v
		}
	}
	return &cp
}

// stubSignals is a canned SignalProvider for tests.
type stubSignals struct {
	failedCount    int
	failedItems    []WorkItemSummary
	lowConfidence  int
	toolFailures   map[string]int
	completedCount int
	completedGoals []string
	staleItems     []WorkItemSummary
	activity       ActivitySnapshot
	err            error
}

func (s *stubSignals) FailedWorkItemCount(context.Context, time.Duration) (int, error) {
	return s.failedCount, s.err
}

func (s *stubSignals) FailedWorkItems(context.Context, time.Duration, int) ([]WorkItemSummary, error) {
	return s.failedItems, s.err
}

func (s *stubSignals) LowConfidenceCount(context.Context, time.Duration) (int, error) {
	return s.lowConfidence, s.err
}

func (s *stubSignals) ToolFailureCounts(context.Context, time.Duration) (map[string]int, error) {
	return s.toolFailures, s.err
}

func (s *stubSignals) CompletedWorkItemCount(context.Context, time.Duration) (int, error) {
	return s.completedCount, s.err
}

func (s *stubSignals) CompletedGoals(context.Context, time.Duration, int) ([]string, error) {
	return s.completedGoals, s.err
}

func (s *stubSignals) StaleWorkItems(context.Context, time.Duration, int) ([]WorkItemSummary, error) {
	return s.staleItems, s.err
}

func (s *stubSignals) Activity(context.Context, time.Duration) (ActivitySnapshot, error) {
	return s.activity, s.err
}
