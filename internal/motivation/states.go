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

// StateManager owns the lifecycle of motivation states: initialization,
// decay, boosting, satisfaction tracking and arbitration scoring.
type StateManager struct {
	db       Storage
	defaults map[string]StateDefaults
}

// NewStateManager creates a state manager backed by the given storage.
func NewStateManager(db Storage) *StateManager {
	return &StateManager{
		db:       db,
		defaults: DefaultStates(),
	}
}

// withStorage returns a copy of the manager scoped to a transaction.
func (m *StateManager) withStorage(db Storage) *StateManager {
	cp := *m
	cp.db = db
	return &cp
}

// InitializeDefaultStates ensures one active row exists per default
// motivation type. Existing rows are never overwritten; calling this twice
// creates no duplicates.
func (m *StateManager) InitializeDefaultStates(ctx context.Context) error {
	for motivationType, cfg := range m.defaults {
		_, err := m.db.StateByType(ctx, motivationType)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("check state %s: %w", motivationType, err)
		}

		now := time.Now().UTC()
		state := &models.MotivationState{
			ID:               uuid.NewString(),
			MotivationType:   motivationType,
			Urgency:          cfg.Urgency,
			Satisfaction:     cfg.Satisfaction,
			DecayRate:        cfg.DecayRate,
			BoostFactor:      cfg.BoostFactor,
			MaxUrgency:       cfg.MaxUrgency,
			IsActive:         true,
			TriggerCondition: cfg.TriggerCondition,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := m.db.InsertState(ctx, state); err != nil {
			if errors.Is(err, ErrDuplicateState) {
				// Lost a race with another initializer; the row exists.
				continue
			}
			return fmt.Errorf("create state %s: %w", motivationType, err)
		}
		log.Printf("Created default motivational state: %s", motivationType)
	}
	return nil
}

// GetActiveStates returns all active states ordered by descending urgency.
func (m *StateManager) GetActiveStates(ctx context.Context) ([]*models.MotivationState, error) {
	return m.db.ActiveStates(ctx)
}

// GetStateByType returns the unique active state for a motivation type, or
// ErrNotFound.
func (m *StateManager) GetStateByType(ctx context.Context, motivationType string) (*models.MotivationState, error) {
	return m.db.StateByType(ctx, motivationType)
}

// BoostMotivation raises a motivation's urgency by urgencyIncrease scaled by
// the state's boost factor, capped at its max urgency. A missing state is a
// warning, not an error.
func (m *StateManager) BoostMotivation(ctx context.Context, motivationType string, urgencyIncrease float64, triggerMetadata map[string]interface{}) error {
	state, err := m.db.StateByType(ctx, motivationType)
	if errors.Is(err, ErrNotFound) {
		log.Printf("Cannot boost non-existent motivation: %s", motivationType)
		return nil
	}
	if err != nil {
		return fmt.Errorf("boost %s: %w", motivationType, err)
	}

	boostAmount := urgencyIncrease * state.BoostFactor
	newUrgency := math.Min(state.Urgency+boostAmount, state.MaxUrgency)

	now := time.Now().UTC()
	state.Urgency = newUrgency
	state.LastTriggeredAt = &now
	state.UpdatedAt = now

	if triggerMetadata != nil {
		if state.Metadata == nil {
			state.Metadata = make(map[string]interface{})
		}
		state.Metadata["last_trigger"] = triggerMetadata
		state.Metadata["last_boost_amount"] = boostAmount
	}

	if err := m.db.UpdateState(ctx, state); err != nil {
		return fmt.Errorf("boost %s: %w", motivationType, err)
	}
	return nil
}

// UpdateSatisfaction applies a satisfaction delta (clamped to [0,1]) and
// records the attempt in the success counters.
func (m *StateManager) UpdateSatisfaction(ctx context.Context, motivationType string, delta float64, success bool) error {
	state, err := m.db.StateByType(ctx, motivationType)
	if errors.Is(err, ErrNotFound) {
		log.Printf("Cannot update satisfaction for non-existent motivation: %s", motivationType)
		return nil
	}
	if err != nil {
		return fmt.Errorf("update satisfaction %s: %w", motivationType, err)
	}

	now := time.Now().UTC()
	state.Satisfaction = clamp01(state.Satisfaction + delta)
	state.TotalAttempts++
	if success {
		state.SuccessCount++
	} else {
		state.FailureCount++
	}
	state.SuccessRate = float64(state.SuccessCount) / float64(state.TotalAttempts)
	if delta > 0 {
		state.LastSatisfiedAt = &now
	}
	state.UpdatedAt = now

	if err := m.db.UpdateState(ctx, state); err != nil {
		return fmt.Errorf("update satisfaction %s: %w", motivationType, err)
	}
	return nil
}

// ApplyDecayToAll lowers the urgency of every active state by its decay rate,
// never below zero. Called once at the start of each evaluation cycle.
func (m *StateManager) ApplyDecayToAll(ctx context.Context) error {
	states, err := m.db.ActiveStates(ctx)
	if err != nil {
		return fmt.Errorf("apply decay: %w", err)
	}

	for _, state := range states {
		if state.Urgency <= 0 {
			continue
		}
		state.Urgency = math.Max(0, state.Urgency-state.DecayRate)
		state.UpdatedAt = time.Now().UTC()
		if err := m.db.UpdateState(ctx, state); err != nil {
			return fmt.Errorf("decay %s: %w", state.MotivationType, err)
		}
	}
	return nil
}

// CalculateArbitrationScore computes the composite priority of a state:
// urgency scaled by inverse satisfaction, historical success and dormancy
// time, clamped to [0,1].
func (m *StateManager) CalculateArbitrationScore(state *models.MotivationState) float64 {
	inverseSatisfaction := 1.0 - state.Satisfaction

	// Untested motivations are not penalized for an empty track record.
	successRateFactor := 1.0
	if state.TotalAttempts >= 3 {
		successRateFactor = math.Max(0.5, state.SuccessRate)
	}

	timeFactor := 1.0
	if state.LastTriggeredAt != nil {
		hoursSince := time.Since(*state.LastTriggeredAt).Hours()
		timeFactor = math.Min(1.5, 1.0+(hoursSince/24.0)*0.5)
	}

	score := state.Urgency * inverseSatisfaction * successRateFactor * timeFactor
	return clamp01(score)
}

// Deactivate removes a state from arbitration without deleting it.
func (m *StateManager) Deactivate(ctx context.Context, motivationType string) error {
	state, err := m.db.StateByType(ctx, motivationType)
	if err != nil {
		return fmt.Errorf("deactivate %s: %w", motivationType, err)
	}
	state.IsActive = false
	state.UpdatedAt = time.Now().UTC()
	if err := m.db.UpdateState(ctx, state); err != nil {
		return fmt.Errorf("deactivate %s: %w", motivationType, err)
	}
	log.Printf("Deactivated motivational state: %s", motivationType)
	return nil
}

// Reactivate restores the most recently deactivated state for a type. The
// store's unique index rejects it with ErrDuplicateState if an active row
// already exists for the type.
func (m *StateManager) Reactivate(ctx context.Context, motivationType string) error {
	state, err := m.db.InactiveStateByType(ctx, motivationType)
	if err != nil {
		return fmt.Errorf("reactivate %s: %w", motivationType, err)
	}
	state.IsActive = true
	state.UpdatedAt = time.Now().UTC()
	if err := m.db.UpdateState(ctx, state); err != nil {
		return fmt.Errorf("reactivate %s: %w", motivationType, err)
	}
	log.Printf("Reactivated motivational state: %s", motivationType)
	return nil
}

// StateSummary is a read-only diagnostic view of one state.
type StateSummary struct {
	MotivationType   string     `json:"motivation_type"`
	Urgency          float64    `json:"urgency"`
	Satisfaction     float64    `json:"satisfaction"`
	ArbitrationScore float64    `json:"arbitration_score"`
	SuccessRate      float64    `json:"success_rate"`
	TotalAttempts    int        `json:"total_attempts"`
	LastTriggeredAt  *time.Time `json:"last_triggered_at,omitempty"`
	LastSatisfiedAt  *time.Time `json:"last_satisfied_at,omitempty"`
}

// Summary is the diagnostic snapshot of all active states.
type Summary struct {
	TotalActiveStates int            `json:"total_active_states"`
	States            []StateSummary `json:"states"`
}

// MotivationSummary builds the diagnostic snapshot used by the API. It is
// observational only and sits outside the decision path.
func (m *StateManager) MotivationSummary(ctx context.Context) (*Summary, error) {
	states, err := m.db.ActiveStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("motivation summary: %w", err)
	}

	summary := &Summary{
		TotalActiveStates: len(states),
		States:            make([]StateSummary, 0, len(states)),
	}
	for _, state := range states {
		summary.States = append(summary.States, StateSummary{
			MotivationType:   state.MotivationType,
			Urgency:          round3(state.Urgency),
			Satisfaction:     round3(state.Satisfaction),
			ArbitrationScore: round3(m.CalculateArbitrationScore(state)),
			SuccessRate:      round3(state.SuccessRate),
			TotalAttempts:    state.TotalAttempts,
			LastTriggeredAt:  state.LastTriggeredAt,
			LastSatisfiedAt:  state.LastSatisfiedAt,
		})
	}
	return summary, nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
