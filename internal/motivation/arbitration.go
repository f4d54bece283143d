package motivation

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/EckmanTechLLC/nyx-sub001/pkg/models"
)

// ArbitrationEngine selects which competing motivations become tasks each
// cycle, based on score, eligibility and category diversity.
type ArbitrationEngine struct {
	db            Storage
	states        *StateManager
	signals       SignalProvider
	fastIteration bool
	gracePeriod   time.Duration
}

// NewArbitrationEngine creates an arbitration engine. fastIteration selects
// the short cooldown table; gracePeriod is the post-startup window during
// which cooldowns run at a quarter of their normal duration.
func NewArbitrationEngine(db Storage, states *StateManager, signals SignalProvider, fastIteration bool, gracePeriod time.Duration) *ArbitrationEngine {
	return &ArbitrationEngine{
		db:            db,
		states:        states,
		signals:       signals,
		fastIteration: fastIteration,
		gracePeriod:   gracePeriod,
	}
}

func (e *ArbitrationEngine) withStorage(db Storage) *ArbitrationEngine {
	cp := *e
	cp.db = db
	cp.states = e.states.withStorage(db)
	return &cp
}

type scoredState struct {
	state *models.MotivationState
	score float64
}

// ArbitrateGoals selects up to maxTasks motivations to convert into tasks.
// Any internal failure degrades to an empty selection so a transient error
// costs one cycle of autonomous action, never the scheduler.
func (e *ArbitrationEngine) ArbitrateGoals(ctx context.Context, maxTasks int, minThreshold float64, sysCtx SystemContext) []*models.MotivationState {
	activeStates, err := e.states.GetActiveStates(ctx)
	if err != nil {
		log.Printf("Error fetching active states for arbitration: %v", err)
		return nil
	}
	if len(activeStates) == 0 {
		return nil
	}

	candidates := make([]scoredState, 0, len(activeStates))
	for _, state := range activeStates {
		score := e.states.CalculateArbitrationScore(state)
		if score < minThreshold {
			continue
		}
		eligible, err := e.isEligibleForSpawning(ctx, state, sysCtx)
		if err != nil {
			log.Printf("Error checking eligibility for %s: %v", state.MotivationType, err)
			continue
		}
		if eligible {
			candidates = append(candidates, scoredState{state: state, score: score})
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	selected := e.applySelectionLogic(candidates, maxTasks)
	log.Printf("Arbitrated %d motivations from %d candidates", len(selected), len(candidates))
	return selected
}

// isEligibleForSpawning gates a candidate on in-flight tasks, cooldowns and
// chronic failure.
func (e *ArbitrationEngine) isEligibleForSpawning(ctx context.Context, state *models.MotivationState, sysCtx SystemContext) (bool, error) {
	// At most one in-flight task per motivation type.
	inFlight, err := e.db.HasInFlightTask(ctx, state.ID)
	if err != nil {
		return false, err
	}
	if inFlight {
		return false, nil
	}

	if e.cooldownApplies(sysCtx) && state.LastTriggeredAt != nil {
		cooldown := e.effectiveCooldown(state.MotivationType, sysCtx)
		if time.Since(*state.LastTriggeredAt) < cooldown {
			return false, nil
		}
	}

	// Chronically failing motivations are throttled, never deactivated;
	// they become eligible again once feedback lifts the success rate.
	if state.TotalAttempts >= 5 && state.SuccessRate < 0.1 {
		return false, nil
	}

	return true, nil
}

// cooldownApplies reports whether the cooldown check runs at all. Testing
// mode and manual triggers skip it entirely; the startup grace period does
// not — it shortens the cooldown instead (see effectiveCooldown).
func (e *ArbitrationEngine) cooldownApplies(sysCtx SystemContext) bool {
	if sysCtx.TestingMode || sysCtx.ManualTrigger {
		return false
	}
	return true
}

func (e *ArbitrationEngine) inGracePeriod(sysCtx SystemContext) bool {
	if sysCtx.StartupTime.IsZero() || e.gracePeriod <= 0 {
		return false
	}
	return time.Since(sysCtx.StartupTime) < e.gracePeriod
}

// effectiveCooldown returns the per-type cooldown, reduced to a quarter of
// its normal duration inside the startup grace period.
func (e *ArbitrationEngine) effectiveCooldown(motivationType string, sysCtx SystemContext) time.Duration {
	base := CooldownFor(motivationType, e.fastIteration)
	if e.inGracePeriod(sysCtx) {
		return base / 4
	}
	return base
}

// applySelectionLogic fills up to maxTasks slots with three ordered
// priorities: high-urgency candidates first, then category diversity, then
// highest remaining score.
func (e *ArbitrationEngine) applySelectionLogic(candidates []scoredState, maxTasks int) []*models.MotivationState {
	selected := make([]*models.MotivationState, 0, maxTasks)
	chosen := make(map[string]bool)

	// Priority 1: high urgency, in score order.
	for _, c := range candidates {
		if len(selected) >= maxTasks {
			return selected
		}
		if c.state.Urgency > 0.7 {
			selected = append(selected, c.state)
			chosen[c.state.ID] = true
		}
	}

	// Priority 2: category diversity. A same-category candidate still gets
	// a slot when its score exceeds 0.8.
	categorySelected := make(map[Category]bool)
	for _, s := range selected {
		categorySelected[CategoryFor(s.MotivationType)] = true
	}
	for _, c := range candidates {
		if len(selected) >= maxTasks {
			return selected
		}
		if chosen[c.state.ID] {
			continue
		}
		category := CategoryFor(c.state.MotivationType)
		if !categorySelected[category] || c.score > 0.8 {
			selected = append(selected, c.state)
			chosen[c.state.ID] = true
			categorySelected[category] = true
		}
	}

	// Priority 3: fill remaining slots by score.
	for _, c := range candidates {
		if len(selected) >= maxTasks {
			break
		}
		if chosen[c.state.ID] {
			continue
		}
		selected = append(selected, c.state)
		chosen[c.state.ID] = true
	}

	return selected
}

// TaskContext is the payload handed to prompt generators.
type TaskContext struct {
	MotivationType      string                 `json:"motivation_type"`
	CurrentUrgency      float64                `json:"current_urgency"`
	CurrentSatisfaction float64                `json:"current_satisfaction"`
	SuccessRate         float64                `json:"success_rate"`
	TotalAttempts       int                    `json:"total_attempts"`
	TriggerCondition    map[string]interface{} `json:"trigger_condition,omitempty"`
	LastTriggeredAt     *time.Time             `json:"last_triggered_at,omitempty"`
	System              SystemSignals          `json:"system"`
}

// SystemSignals carries the type-specific external context consulted during
// prompt generation. Only the fields relevant to the motivation type are
// populated; a gatherer failure leaves them empty rather than failing the
// spawn.
type SystemSignals struct {
	FailedWorkItems []WorkItemSummary `json:"failed_work_items,omitempty"`
	LowConfidence   int               `json:"low_confidence_count,omitempty"`
	ToolFailures    map[string]int    `json:"tool_failures,omitempty"`
	RecentGoals     []string          `json:"recent_goals,omitempty"`
	StaleWorkItems  []WorkItemSummary `json:"stale_work_items,omitempty"`
	Activity        *ActivitySnapshot `json:"activity,omitempty"`
	GatherError     string            `json:"gather_error,omitempty"`
}

// ToMap flattens the context for storage in the task row.
func (c *TaskContext) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"motivation_type":      c.MotivationType,
		"current_urgency":      c.CurrentUrgency,
		"current_satisfaction": c.CurrentSatisfaction,
		"success_rate":         c.SuccessRate,
		"total_attempts":       c.TotalAttempts,
	}
	if c.TriggerCondition != nil {
		m["trigger_condition"] = c.TriggerCondition
	}
	if c.LastTriggeredAt != nil {
		m["last_triggered_at"] = c.LastTriggeredAt.UTC().Format(time.RFC3339)
	}
	return m
}

// EvaluateMotivationContext builds the generation-time context for a state,
// dispatching to the per-type signal queries. Errors in a gatherer are
// isolated: the context comes back partial, not absent.
func (e *ArbitrationEngine) EvaluateMotivationContext(ctx context.Context, state *models.MotivationState) TaskContext {
	tc := TaskContext{
		MotivationType:      state.MotivationType,
		CurrentUrgency:      state.Urgency,
		CurrentSatisfaction: state.Satisfaction,
		SuccessRate:         state.SuccessRate,
		TotalAttempts:       state.TotalAttempts,
		TriggerCondition:    state.TriggerCondition,
		LastTriggeredAt:     state.LastTriggeredAt,
	}
	if e.signals == nil {
		return tc
	}

	var err error
	switch state.MotivationType {
	case TypeResolveUnfinishedTasks:
		tc.System.FailedWorkItems, err = e.signals.FailedWorkItems(ctx, 24*time.Hour, 5)
	case TypeRefineLowConfidence:
		tc.System.LowConfidence, err = e.signals.LowConfidenceCount(ctx, 6*time.Hour)
	case TypeExploreRecentFailure:
		tc.System.ToolFailures, err = e.signals.ToolFailureCounts(ctx, time.Hour)
	case TypeMaximizeCoverage:
		tc.System.RecentGoals, err = e.signals.CompletedGoals(ctx, 12*time.Hour, 10)
	case TypeRevisitOldThoughts:
		tc.System.StaleWorkItems, err = e.signals.StaleWorkItems(ctx, 48*time.Hour, 3)
	case TypeIdleExploration:
		var snap ActivitySnapshot
		snap, err = e.signals.Activity(ctx, 30*time.Minute)
		if err == nil {
			tc.System.Activity = &snap
		}
	}
	if err != nil {
		log.Printf("Error gathering context for %s: %v", state.MotivationType, err)
		tc.System.GatherError = err.Error()
	}
	return tc
}
