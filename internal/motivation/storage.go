package motivation

import (
	"context"
	"errors"
	"time"

	"github.com/EckmanTechLLC/nyx-sub001/pkg/models"
)

// ErrNotFound is returned by Storage lookups when no row matches.
var ErrNotFound = errors.New("not found")

// ErrDuplicateState is returned when an insert would create a second active
// row for the same motivation type.
var ErrDuplicateState = errors.New("duplicate active motivation state")

// Storage is the persistence contract for motivation states and tasks.
// Implementations must enforce uniqueness of the active row per motivation
// type at write time.
type Storage interface {
	InsertState(ctx context.Context, state *models.MotivationState) error
	UpdateState(ctx context.Context, state *models.MotivationState) error
	StateByID(ctx context.Context, id string) (*models.MotivationState, error)
	// StateByType returns the unique active row for a type, or ErrNotFound.
	StateByType(ctx context.Context, motivationType string) (*models.MotivationState, error)
	// InactiveStateByType returns the most recently deactivated row for a
	// type, or ErrNotFound.
	InactiveStateByType(ctx context.Context, motivationType string) (*models.MotivationState, error)
	// ActiveStates returns active rows ordered by descending urgency.
	ActiveStates(ctx context.Context) ([]*models.MotivationState, error)

	InsertTask(ctx context.Context, task *models.MotivationalTask) error
	UpdateTask(ctx context.Context, task *models.MotivationalTask) error
	TaskByID(ctx context.Context, id string) (*models.MotivationalTask, error)
	// TaskByWorkItem resolves the task tracked under an external execution
	// handle, or ErrNotFound.
	TaskByWorkItem(ctx context.Context, workItemID string) (*models.MotivationalTask, error)
	// HasInFlightTask reports whether the state has a task in queued,
	// spawned or active status.
	HasInFlightTask(ctx context.Context, stateID string) (bool, error)
	CountInFlightTasks(ctx context.Context) (int, error)
	// QueuedTasks returns queued tasks ordered by descending priority.
	QueuedTasks(ctx context.Context, limit int) ([]*models.MotivationalTask, error)
	CompletedTasksSince(ctx context.Context, since time.Time) ([]*models.MotivationalTask, error)
}

// Transactor is a Storage that can scope a group of operations to a single
// all-or-nothing transaction. The engine runs each evaluation cycle inside
// one.
type Transactor interface {
	Storage
	InTransaction(ctx context.Context, fn func(Storage) error) error
}

// WorkItemSummary is a lightweight record describing an external work item.
// The inbound signal interface never returns full payloads.
type WorkItemSummary struct {
	Goal      string    `json:"goal"`
	Status    string    `json:"status"`
	Depth     int       `json:"depth"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActivitySnapshot summarizes current orchestrator activity.
type ActivitySnapshot struct {
	ActiveAgents int `json:"active_agents"`
	RecentEvents int `json:"recent_events"`
}

// SignalProvider is the inbound signal interface: queries against the
// external orchestrator used to decide urgency boosts and to build task
// generation context. Each method returns counts or small bounded lists.
type SignalProvider interface {
	FailedWorkItemCount(ctx context.Context, window time.Duration) (int, error)
	FailedWorkItems(ctx context.Context, window time.Duration, limit int) ([]WorkItemSummary, error)
	LowConfidenceCount(ctx context.Context, window time.Duration) (int, error)
	// ToolFailureCounts returns failure counts in the window grouped by tool.
	ToolFailureCounts(ctx context.Context, window time.Duration) (map[string]int, error)
	CompletedWorkItemCount(ctx context.Context, window time.Duration) (int, error)
	CompletedGoals(ctx context.Context, window time.Duration, limit int) ([]string, error)
	StaleWorkItems(ctx context.Context, olderThan time.Duration, limit int) ([]WorkItemSummary, error)
	Activity(ctx context.Context, window time.Duration) (ActivitySnapshot, error)
}

// Executor is the outbound execution interface: it begins executing a
// generated prompt as an independent unit of work and returns the external
// tracking handle. The outcome arrives later through FeedbackLoop.
type Executor interface {
	Execute(ctx context.Context, task models.TaskSnapshot) (workItemID string, err error)
}

// SystemContext carries runtime conditions that influence cooldown handling
// during arbitration.
type SystemContext struct {
	StartupTime   time.Time
	TestingMode   bool
	ManualTrigger bool
}
