package signals

import (
	"context"
	"sync"
	"time"

	"github.com/EckmanTechLLC/nyx-sub001/internal/motivation"
)

// retentionWindow bounds how long the tracker keeps raw events. 48 hours
// covers the widest query window any motivation uses.
const retentionWindow = 48 * time.Hour

type trackedEvent struct {
	at      time.Time
	goal    string
	status  string
	success bool
	tool    string
}

// ActivityTracker is the local fallback SignalProvider used when no
// orchestrator is configured. It only sees what this process reports to it,
// so counts are a lower bound on real system activity.
type ActivityTracker struct {
	mu           sync.RWMutex
	activeAgents int
	completions  []trackedEvent
	toolFailures []trackedEvent
	events       []time.Time
}

// NewActivityTracker creates an empty tracker.
func NewActivityTracker() *ActivityTracker {
	return &ActivityTracker{}
}

// RecordCompletion notes a finished unit of work.
func (t *ActivityTracker) RecordCompletion(goal string, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UTC()
	status := "failed"
	if success {
		status = "completed"
	}
	t.completions = append(t.completions, trackedEvent{at: now, goal: goal, status: status, success: success})
	t.events = append(t.events, now)
	t.pruneLocked(now)
}

// RecordToolFailure notes one failed tool execution.
func (t *ActivityTracker) RecordToolFailure(tool string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UTC()
	t.toolFailures = append(t.toolFailures, trackedEvent{at: now, tool: tool})
	t.events = append(t.events, now)
	t.pruneLocked(now)
}

// RecordEvent notes generic activity for idle detection.
func (t *ActivityTracker) RecordEvent() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UTC()
	t.events = append(t.events, now)
	t.pruneLocked(now)
}

// AgentStarted and AgentFinished track concurrent executions.
func (t *ActivityTracker) AgentStarted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activeAgents++
}

func (t *ActivityTracker) AgentFinished() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.activeAgents > 0 {
		t.activeAgents--
	}
}

func (t *ActivityTracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retentionWindow)
	t.completions = pruneEvents(t.completions, cutoff)
	t.toolFailures = pruneEvents(t.toolFailures, cutoff)

	kept := t.events[:0]
	for _, at := range t.events {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	t.events = kept
}

func pruneEvents(events []trackedEvent, cutoff time.Time) []trackedEvent {
	kept := events[:0]
	for _, e := range events {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	return kept
}

func (t *ActivityTracker) FailedWorkItemCount(ctx context.Context, window time.Duration) (int, error) {
	items, err := t.FailedWorkItems(ctx, window, 0)
	return len(items), err
}

func (t *ActivityTracker) FailedWorkItems(_ context.Context, window time.Duration, limit int) ([]motivation.WorkItemSummary, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cutoff := time.Now().UTC().Add(-window)

	var items []motivation.WorkItemSummary
	// Newest first, matching the orchestrator API ordering.
	for i := len(t.completions) - 1; i >= 0; i-- {
		e := t.completions[i]
		if !e.at.After(cutoff) || e.success {
			continue
		}
		items = append(items, motivation.WorkItemSummary{
			Goal:      e.goal,
			Status:    e.status,
			UpdatedAt: e.at,
		})
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	return items, nil
}

// LowConfidenceCount always reports zero: confidence scoring needs the
// orchestrator's output metadata, which the local tracker never sees.
func (t *ActivityTracker) LowConfidenceCount(context.Context, time.Duration) (int, error) {
	return 0, nil
}

func (t *ActivityTracker) ToolFailureCounts(_ context.Context, window time.Duration) (map[string]int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cutoff := time.Now().UTC().Add(-window)

	counts := make(map[string]int)
	for _, e := range t.toolFailures {
		if e.at.After(cutoff) {
			counts[e.tool]++
		}
	}
	return counts, nil
}

func (t *ActivityTracker) CompletedWorkItemCount(_ context.Context, window time.Duration) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cutoff := time.Now().UTC().Add(-window)

	count := 0
	for _, e := range t.completions {
		if e.at.After(cutoff) && e.success {
			count++
		}
	}
	return count, nil
}

func (t *ActivityTracker) CompletedGoals(_ context.Context, window time.Duration, limit int) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cutoff := time.Now().UTC().Add(-window)

	var goals []string
	for i := len(t.completions) - 1; i >= 0; i-- {
		e := t.completions[i]
		if !e.at.After(cutoff) || !e.success {
			continue
		}
		goals = append(goals, e.goal)
		if limit > 0 && len(goals) >= limit {
			break
		}
	}
	return goals, nil
}

// StaleWorkItems always reports none: the local tracker only records
// terminal outcomes, never long-pending work.
func (t *ActivityTracker) StaleWorkItems(context.Context, time.Duration, int) ([]motivation.WorkItemSummary, error) {
	return nil, nil
}

func (t *ActivityTracker) Activity(_ context.Context, window time.Duration) (motivation.ActivitySnapshot, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cutoff := time.Now().UTC().Add(-window)

	recent := 0
	for _, at := range t.events {
		if at.After(cutoff) {
			recent++
		}
	}
	return motivation.ActivitySnapshot{
		ActiveAgents: t.activeAgents,
		RecentEvents: recent,
	}, nil
}
