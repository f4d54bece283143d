package motivation

import (
	"time"
)

// Default motivation types. The model supports arbitrary string keys; these
// are the drives installed by InitializeDefaultStates.
const (
	TypeResolveUnfinishedTasks = "resolve_unfinished_tasks"
	TypeRefineLowConfidence    = "refine_low_confidence"
	TypeExploreRecentFailure   = "explore_recent_failure"
	TypeMaximizeCoverage       = "maximize_coverage"
	TypeRevisitOldThoughts     = "revisit_old_thoughts"
	TypeIdleExploration        = "idle_exploration"
)

// Category is the coarse grouping used for diversity during selection.
type Category string

const (
	CategoryRemedial    Category = "remedial"
	CategoryQuality     Category = "quality"
	CategoryExploratory Category = "exploratory"
	CategoryMaintenance Category = "maintenance"
	CategoryUnknown     Category = "unknown"
)

// StateDefaults holds the initial parameters for one motivation type.
type StateDefaults struct {
	Urgency          float64
	Satisfaction     float64
	DecayRate        float64
	BoostFactor      float64
	MaxUrgency       float64
	TriggerCondition map[string]interface{}
}

// DefaultStates returns the configuration of the built-in drives.
func DefaultStates() map[string]StateDefaults {
	return map[string]StateDefaults{
		TypeResolveUnfinishedTasks: {
			Urgency:      0.0,
			Satisfaction: 0.5,
			DecayRate:    0.02,
			BoostFactor:  1.2,
			MaxUrgency:   0.9,
			TriggerCondition: map[string]interface{}{
				"type":              "failed_tasks",
				"threshold":         1,
				"time_window_hours": 24,
			},
		},
		TypeRefineLowConfidence: {
			Urgency:      0.0,
			Satisfaction: 0.7,
			DecayRate:    0.05,
			BoostFactor:  1.1,
			MaxUrgency:   1.0,
			TriggerCondition: map[string]interface{}{
				"type":              "low_confidence_output",
				"keywords":          []string{"low confidence", "uncertain", "not sure"},
				"time_window_hours": 6,
			},
		},
		TypeExploreRecentFailure: {
			Urgency:      0.0,
			Satisfaction: 0.4,
			DecayRate:    0.1,
			BoostFactor:  1.3,
			MaxUrgency:   0.85,
			TriggerCondition: map[string]interface{}{
				"type":              "tool_failures",
				"threshold":         3,
				"time_window_hours": 1,
			},
		},
		TypeMaximizeCoverage: {
			Urgency:      0.1,
			Satisfaction: 0.6,
			DecayRate:    0.01,
			BoostFactor:  1.0,
			MaxUrgency:   1.0,
			TriggerCondition: map[string]interface{}{
				"type":                       "low_activity",
				"successful_tasks_threshold": 3,
				"time_window_hours":          12,
			},
		},
		TypeRevisitOldThoughts: {
			Urgency:      0.05,
			Satisfaction: 0.8,
			DecayRate:    0.03,
			BoostFactor:  1.1,
			MaxUrgency:   1.0,
			TriggerCondition: map[string]interface{}{
				"type":               "old_thoughts",
				"age_threshold_hours": 48,
				"status_filter":      []string{"pending", "in_progress"},
			},
		},
		TypeIdleExploration: {
			Urgency:      0.0,
			Satisfaction: 0.9,
			DecayRate:    0.02,
			BoostFactor:  1.5,
			MaxUrgency:   1.0,
			TriggerCondition: map[string]interface{}{
				"type":                "low_system_activity",
				"max_active_agents":   1,
				"max_recent_activity": 2,
				"time_window_minutes": 30,
			},
		},
	}
}

// CategoryFor maps a motivation type to its diversity category.
func CategoryFor(motivationType string) Category {
	switch motivationType {
	case TypeResolveUnfinishedTasks, TypeExploreRecentFailure:
		return CategoryRemedial
	case TypeRefineLowConfidence:
		return CategoryQuality
	case TypeMaximizeCoverage, TypeIdleExploration:
		return CategoryExploratory
	case TypeRevisitOldThoughts:
		return CategoryMaintenance
	default:
		return CategoryUnknown
	}
}

const (
	defaultProductionCooldown = 15 * time.Minute
	defaultFastCooldown       = 10 * time.Second
)

var productionCooldowns = map[string]time.Duration{
	TypeResolveUnfinishedTasks: 15 * time.Minute,
	TypeRefineLowConfidence:    10 * time.Minute,
	TypeExploreRecentFailure:   5 * time.Minute,
	TypeMaximizeCoverage:       time.Hour,
	TypeRevisitOldThoughts:     2 * time.Hour,
	TypeIdleExploration:        30 * time.Minute,
}

var fastIterationCooldowns = map[string]time.Duration{
	TypeResolveUnfinishedTasks: 10 * time.Second,
	TypeRefineLowConfidence:    5 * time.Second,
	TypeExploreRecentFailure:   3 * time.Second,
	TypeMaximizeCoverage:       15 * time.Second,
	TypeRevisitOldThoughts:     20 * time.Second,
	TypeIdleExploration:        8 * time.Second,
}

// CooldownFor returns the base cooldown before the same motivation may spawn
// another task. FastIteration selects the short table used in test
// environments.
func CooldownFor(motivationType string, fastIteration bool) time.Duration {
	if fastIteration {
		if d, ok := fastIterationCooldowns[motivationType]; ok {
			return d
		}
		return defaultFastCooldown
	}
	if d, ok := productionCooldowns[motivationType]; ok {
		return d
	}
	return defaultProductionCooldown
}

// SatisfactionDeltas holds the base satisfaction changes per outcome class.
type SatisfactionDeltas struct {
	Success float64
	Partial float64
	Failure float64
}

var satisfactionAdjustments = map[string]SatisfactionDeltas{
	TypeResolveUnfinishedTasks: {Success: 0.3, Partial: 0.1, Failure: -0.1},
	TypeRefineLowConfidence:    {Success: 0.25, Partial: 0.15, Failure: -0.05},
	TypeExploreRecentFailure:   {Success: 0.4, Partial: 0.2, Failure: -0.15},
	TypeMaximizeCoverage:       {Success: 0.2, Partial: 0.1, Failure: -0.05},
	TypeRevisitOldThoughts:     {Success: 0.35, Partial: 0.15, Failure: -0.1},
	TypeIdleExploration:        {Success: 0.15, Partial: 0.08, Failure: -0.02},
}

// DeltasFor returns the satisfaction adjustment table for a motivation type,
// falling back to moderate values for unknown types.
func DeltasFor(motivationType string) SatisfactionDeltas {
	if d, ok := satisfactionAdjustments[motivationType]; ok {
		return d
	}
	return SatisfactionDeltas{Success: 0.2, Partial: 0.1, Failure: -0.1}
}
