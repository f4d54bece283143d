package models

import (
	"time"
)

// MotivationState is the persistent record for one internal drive. Exactly one
// active row exists per motivation type; the store enforces this with a
// partial unique index.
type MotivationState struct {
	ID             string `json:"id" db:"id"`
	MotivationType string `json:"motivation_type" db:"motivation_type"`

	// Drive dynamics
	Urgency      float64 `json:"urgency" db:"urgency"`
	Satisfaction float64 `json:"satisfaction" db:"satisfaction"`
	DecayRate    float64 `json:"decay_rate" db:"decay_rate"`
	BoostFactor  float64 `json:"boost_factor" db:"boost_factor"`
	MaxUrgency   float64 `json:"max_urgency" db:"max_urgency"`

	IsActive bool `json:"is_active" db:"is_active"`

	// Reinforcement history
	SuccessCount  int     `json:"success_count" db:"success_count"`
	FailureCount  int     `json:"failure_count" db:"failure_count"`
	TotalAttempts int     `json:"total_attempts" db:"total_attempts"`
	SuccessRate   float64 `json:"success_rate" db:"success_rate"`

	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty" db:"last_triggered_at"`
	LastSatisfiedAt *time.Time `json:"last_satisfied_at,omitempty" db:"last_satisfied_at"`

	// TriggerCondition is consumed by the external signal-detection layer;
	// the engine stores it but does not interpret it.
	TriggerCondition map[string]interface{} `json:"trigger_condition,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy so callers can hand state across goroutine or
// transaction boundaries without sharing mutable maps.
func (s *MotivationState) Clone() *MotivationState {
	cp := *s
	if s.LastTriggeredAt != nil {
		t := *s.LastTriggeredAt
		cp.LastTriggeredAt = &t
	}
	if s.LastSatisfiedAt != nil {
		t := *s.LastSatisfiedAt
		cp.LastSatisfiedAt = &t
	}
	cp.TriggerCondition = copyMap(s.TriggerCondition)
	cp.Metadata = copyMap(s.Metadata)
	return &cp
}

// TaskStatus is the lifecycle state of a spawned motivational task.
type TaskStatus string

const (
	TaskStatusGenerated TaskStatus = "generated"
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusSpawned   TaskStatus = "spawned"
	TaskStatusActive    TaskStatus = "active"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// InFlight reports whether the task still occupies its motivation's single
// execution slot.
func (st TaskStatus) InFlight() bool {
	return st == TaskStatusQueued || st == TaskStatusSpawned || st == TaskStatusActive
}

// Terminal reports whether the task has reached a final status.
func (st TaskStatus) Terminal() bool {
	return st == TaskStatusCompleted || st == TaskStatusFailed || st == TaskStatusCancelled
}

// InFlightStatuses lists the statuses that count against concurrency limits.
func InFlightStatuses() []TaskStatus {
	return []TaskStatus{TaskStatusQueued, TaskStatusSpawned, TaskStatusActive}
}

// MotivationalTask is one spawned attempt to act on a motivation.
type MotivationalTask struct {
	ID                  string `json:"id" db:"id"`
	MotivationalStateID string `json:"motivational_state_id" db:"motivational_state_id"`

	GeneratedPrompt  string     `json:"generated_prompt" db:"generated_prompt"`
	TaskPriority     float64    `json:"task_priority" db:"task_priority"`
	ArbitrationScore float64    `json:"arbitration_score" db:"arbitration_score"`
	Status           TaskStatus `json:"status" db:"status"`

	// WorkItemID is the external executor's tracking handle, assigned once
	// execution begins.
	WorkItemID string `json:"work_item_id,omitempty" db:"work_item_id"`

	SpawnedAt   *time.Time `json:"spawned_at,omitempty" db:"spawned_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	Success          *bool    `json:"success,omitempty" db:"success"`
	OutcomeScore     *float64 `json:"outcome_score,omitempty" db:"outcome_score"`
	SatisfactionGain *float64 `json:"satisfaction_gain,omitempty" db:"satisfaction_gain"`

	Context map[string]interface{} `json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TaskSnapshot is the plain value object handed to the external executor.
// Storage rows never cross that boundary directly.
type TaskSnapshot struct {
	TaskID           string                 `json:"task_id"`
	StateID          string                 `json:"state_id"`
	MotivationType   string                 `json:"motivation_type"`
	GeneratedPrompt  string                 `json:"generated_prompt"`
	TaskPriority     float64                `json:"task_priority"`
	ArbitrationScore float64                `json:"arbitration_score"`
	Status           TaskStatus             `json:"status"`
	WorkItemID       string                 `json:"work_item_id,omitempty"`
	Context          map[string]interface{} `json:"context,omitempty"`
}

// Snapshot extracts an immutable value copy of the task. The motivation type
// is passed explicitly because the task row itself only carries the state ID.
func (t *MotivationalTask) Snapshot(motivationType string) TaskSnapshot {
	return TaskSnapshot{
		TaskID:           t.ID,
		StateID:          t.MotivationalStateID,
		MotivationType:   motivationType,
		GeneratedPrompt:  t.GeneratedPrompt,
		TaskPriority:     t.TaskPriority,
		ArbitrationScore: t.ArbitrationScore,
		Status:           t.Status,
		WorkItemID:       t.WorkItemID,
		Context:          copyMap(t.Context),
	}
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	cp := make(map[string]interface{}, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
