package motivation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/EckmanTechLLC/nyx-sub001/pkg/models"
)

// OutcomeClass buckets a task outcome for satisfaction lookup.
type OutcomeClass string

const (
	OutcomeSuccess OutcomeClass = "success"
	OutcomePartial OutcomeClass = "partial"
	OutcomeFailure OutcomeClass = "failure"
)

// ClassifyOutcome maps success flag and outcome score to an outcome class.
func ClassifyOutcome(success bool, outcomeScore float64) OutcomeClass {
	switch {
	case success && outcomeScore >= 0.7:
		return OutcomeSuccess
	case success && outcomeScore >= 0.3:
		return OutcomePartial
	default:
		return OutcomeFailure
	}
}

// FeedbackLoop closes the reinforcement cycle: task outcomes update the
// owning state's satisfaction, boost factor and decay rate.
type FeedbackLoop struct {
	db     Storage
	states *StateManager
}

// NewFeedbackLoop creates a feedback loop backed by the given storage.
func NewFeedbackLoop(db Storage, states *StateManager) *FeedbackLoop {
	return &FeedbackLoop{db: db, states: states}
}

func (f *FeedbackLoop) withStorage(db Storage) *FeedbackLoop {
	cp := *f
	cp.db = db
	cp.states = f.states.withStorage(db)
	return &cp
}

// ProcessOutcome records a completed task's outcome, updates the owning
// state's satisfaction and applies reinforcement adjustments. A missing task
// or state is a data-integrity error: the call fails and nothing is written,
// so callers may retry later.
func (f *FeedbackLoop) ProcessOutcome(ctx context.Context, taskID string, success bool, outcomeScore float64, metadata map[string]interface{}) error {
	outcomeScore = clamp01(outcomeScore)

	task, err := f.db.TaskByID(ctx, taskID)
	if errors.Is(err, ErrNotFound) {
		log.Printf("Motivational task %s not found", taskID)
		return fmt.Errorf("process outcome: task %s: %w", taskID, err)
	}
	if err != nil {
		return fmt.Errorf("process outcome: load task %s: %w", taskID, err)
	}

	state, err := f.db.StateByID(ctx, task.MotivationalStateID)
	if errors.Is(err, ErrNotFound) {
		log.Printf("Motivational state for task %s not found", taskID)
		return fmt.Errorf("process outcome: state for task %s: %w", taskID, err)
	}
	if err != nil {
		return fmt.Errorf("process outcome: load state for task %s: %w", taskID, err)
	}

	class := ClassifyOutcome(success, outcomeScore)
	change := satisfactionChange(state, task, success, outcomeScore, class)

	if err := f.finalizeTask(ctx, task, success, outcomeScore, change, class, metadata); err != nil {
		return err
	}
	if err := f.states.UpdateSatisfaction(ctx, state.MotivationType, change, success); err != nil {
		return err
	}
	if err := f.applyReinforcement(ctx, state.MotivationType, success, outcomeScore); err != nil {
		return err
	}

	log.Printf("Processed outcome for %s: success=%v, score=%.2f, satisfaction_change=%+.3f",
		state.MotivationType, success, outcomeScore, change)
	return nil
}

// satisfactionChange computes the final satisfaction delta:
// base delta scaled by outcome quality, task priority and the urgency that
// drove the task, with diminishing returns above 0.8 satisfaction.
func satisfactionChange(state *models.MotivationState, task *models.MotivationalTask, success bool, outcomeScore float64, class OutcomeClass) float64 {
	deltas := DeltasFor(state.MotivationType)

	var base float64
	switch class {
	case OutcomeSuccess:
		base = deltas.Success
	case OutcomePartial:
		base = deltas.Partial
	default:
		base = deltas.Failure
	}

	scoreModifier := outcomeScore
	if !success {
		scoreModifier = 1.0 - outcomeScore
	}
	priorityModifier := task.TaskPriority
	urgencyFactor := 0.5 + 0.5*state.Urgency

	final := base * scoreModifier * priorityModifier * urgencyFactor

	if state.Satisfaction > 0.8 && final > 0 {
		final *= 0.5
	}
	return final
}

func (f *FeedbackLoop) finalizeTask(ctx context.Context, task *models.MotivationalTask, success bool, outcomeScore, satisfactionGain float64, class OutcomeClass, metadata map[string]interface{}) error {
	now := time.Now().UTC()
	task.Success = &success
	task.OutcomeScore = &outcomeScore
	task.SatisfactionGain = &satisfactionGain
	if success {
		task.Status = models.TaskStatusCompleted
	} else {
		task.Status = models.TaskStatusFailed
	}
	task.CompletedAt = &now
	task.UpdatedAt = now

	if task.Context == nil {
		task.Context = make(map[string]interface{})
	}
	for k, v := range metadata {
		task.Context[k] = v
	}
	task.Context["outcome_processed_at"] = now.Format(time.RFC3339)
	task.Context["outcome_category"] = string(class)

	if err := f.db.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("finalize task %s: %w", task.ID, err)
	}
	return nil
}

// applyReinforcement adjusts boost_factor and decay_rate from the outcome.
func (f *FeedbackLoop) applyReinforcement(ctx context.Context, motivationType string, success bool, outcomeScore float64) error {
	// Reload: UpdateSatisfaction already changed the counters this outcome
	// should be judged against.
	state, err := f.db.StateByType(ctx, motivationType)
	if err != nil {
		return fmt.Errorf("reinforce %s: %w", motivationType, err)
	}

	newBoost := state.BoostFactor
	if success && outcomeScore >= 0.7 {
		newBoost = math.Min(2.0, state.BoostFactor+0.05)
	} else if !success || outcomeScore < 0.3 {
		newBoost = math.Max(0.5, state.BoostFactor-0.1)
	}

	newDecay := state.DecayRate
	if state.SuccessRate > 0.7 && success {
		newDecay = math.Max(0.005, state.DecayRate-0.005)
	} else if state.SuccessRate < 0.3 {
		newDecay = math.Min(0.2, state.DecayRate+0.01)
	}

	if newBoost == state.BoostFactor && newDecay == state.DecayRate {
		return nil
	}

	state.BoostFactor = newBoost
	state.DecayRate = newDecay
	state.UpdatedAt = time.Now().UTC()
	if err := f.db.UpdateState(ctx, state); err != nil {
		return fmt.Errorf("reinforce %s: %w", motivationType, err)
	}
	return nil
}

// ProcessWorkItemCompletion resolves an external execution handle back to its
// task and processes the outcome. Work items that were not motivation-spawned
// are ignored.
func (f *FeedbackLoop) ProcessWorkItemCompletion(ctx context.Context, workItemID string, success bool, qualityMetrics map[string]float64) error {
	task, err := f.db.TaskByWorkItem(ctx, workItemID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("work item completion %s: %w", workItemID, err)
	}

	outcomeScore := outcomeScoreFromCompletion(success, qualityMetrics)
	metadata := map[string]interface{}{
		"work_item_id": workItemID,
	}
	if len(qualityMetrics) > 0 {
		metadata["quality_metrics"] = qualityMetrics
	}
	return f.ProcessOutcome(ctx, task.ID, success, outcomeScore, metadata)
}

func outcomeScoreFromCompletion(success bool, qualityMetrics map[string]float64) float64 {
	base := 0.2
	if success {
		base = 0.8
	}
	if len(qualityMetrics) > 0 {
		sum := 0.0
		for _, v := range qualityMetrics {
			sum += v
		}
		base = (base + sum/float64(len(qualityMetrics))) / 2
	}
	return clamp01(base)
}

// TypeFeedbackStats aggregates outcomes for one motivation type.
type TypeFeedbackStats struct {
	Count               int     `json:"count"`
	Successes           int     `json:"successes"`
	SuccessRate         float64 `json:"success_rate"`
	AvgOutcomeScore     float64 `json:"avg_outcome_score"`
	AvgSatisfactionGain float64 `json:"avg_satisfaction_gain"`
}

// FeedbackSummary aggregates recent outcomes for observability.
type FeedbackSummary struct {
	PeriodDays      int                          `json:"period_days"`
	TotalTasks      int                          `json:"total_tasks"`
	SuccessfulTasks int                          `json:"successful_tasks"`
	SuccessRate     float64                      `json:"success_rate"`
	ByMotivation    map[string]TypeFeedbackStats `json:"by_motivation_type"`
}

// Summary aggregates outcome statistics over the trailing number of days.
func (f *FeedbackLoop) Summary(ctx context.Context, days int) (*FeedbackSummary, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	tasks, err := f.db.CompletedTasksSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("feedback summary: %w", err)
	}

	summary := &FeedbackSummary{
		PeriodDays:   days,
		TotalTasks:   len(tasks),
		ByMotivation: make(map[string]TypeFeedbackStats),
	}

	for _, task := range tasks {
		motivationType := "unknown"
		if state, err := f.db.StateByID(ctx, task.MotivationalStateID); err == nil {
			motivationType = state.MotivationType
		}

		stats := summary.ByMotivation[motivationType]
		stats.Count++
		if task.Success != nil && *task.Success {
			stats.Successes++
			summary.SuccessfulTasks++
		}
		if task.OutcomeScore != nil {
			stats.AvgOutcomeScore += (*task.OutcomeScore - stats.AvgOutcomeScore) / float64(stats.Count)
		}
		if task.SatisfactionGain != nil {
			stats.AvgSatisfactionGain += (*task.SatisfactionGain - stats.AvgSatisfactionGain) / float64(stats.Count)
		}
		summary.ByMotivation[motivationType] = stats
	}

	for motivationType, stats := range summary.ByMotivation {
		if stats.Count > 0 {
			stats.SuccessRate = float64(stats.Successes) / float64(stats.Count)
		}
		summary.ByMotivation[motivationType] = stats
	}
	if summary.TotalTasks > 0 {
		summary.SuccessRate = float64(summary.SuccessfulTasks) / float64(summary.TotalTasks)
	}
	return summary, nil
}
