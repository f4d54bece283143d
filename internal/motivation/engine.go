package motivation

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// EngineConfig holds the scheduler knobs.
type EngineConfig struct {
	EvaluationInterval          time.Duration
	MaxConcurrentMotivatedTasks int
	MinArbitrationThreshold     float64
	FastIteration               bool
	StartupGracePeriod          time.Duration
}

// DefaultEngineConfig returns production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		EvaluationInterval:          30 * time.Second,
		MaxConcurrentMotivatedTasks: 3,
		MinArbitrationThreshold:     0.3,
		StartupGracePeriod:          30 * time.Minute,
	}
}

// maxBackoff caps the sleep after a failed evaluation cycle.
const maxBackoff = 5 * time.Minute

// Engine is the periodic evaluator tying the motivation components together:
// decay, signal-driven boosts, arbitration, spawning and feedback. A single
// engine instance is the only writer to its store; concurrent schedulers are
// unsupported.
type Engine struct {
	store    Transactor
	states   *StateManager
	arb      *ArbitrationEngine
	spawner  *TaskSpawner
	feedback *FeedbackLoop
	signals  SignalProvider
	config   EngineConfig

	mu          sync.RWMutex
	running     bool
	stopCh      chan struct{}
	startupTime time.Time
	cycleCount  int
}

// NewEngine wires an engine from explicitly constructed components. No
// package-level singletons: the caller owns every dependency.
func NewEngine(store Transactor, states *StateManager, arb *ArbitrationEngine, spawner *TaskSpawner, feedback *FeedbackLoop, signals SignalProvider, config EngineConfig) *Engine {
	if config.EvaluationInterval <= 0 {
		config.EvaluationInterval = 30 * time.Second
	}
	if config.MaxConcurrentMotivatedTasks <= 0 {
		config.MaxConcurrentMotivatedTasks = 3
	}
	return &Engine{
		store:    store,
		states:   states,
		arb:      arb,
		spawner:  spawner,
		feedback: feedback,
		signals:  signals,
		config:   config,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the evaluation loop until the context is cancelled or Stop is
// called. Cycles never overlap: the next sleep begins only after the previous
// cycle's transaction has committed or rolled back.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("motivation engine already running")
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.startupTime = time.Now().UTC()
	e.mu.Unlock()

	log.Printf("Motivation engine started with interval %v", e.config.EvaluationInterval)

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	for {
		sleep := e.config.EvaluationInterval
		if err := e.RunCycle(ctx); err != nil {
			log.Printf("Error in motivation evaluation cycle: %v", err)
			sleep = e.config.EvaluationInterval * 2
			if sleep > maxBackoff {
				sleep = maxBackoff
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stopCh:
			return nil
		case <-time.After(sleep):
		}
	}
}

// Stop requests a graceful stop. The in-flight cycle finishes first.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		close(e.stopCh)
	}
}

// IsRunning reports whether the evaluation loop is active.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// RunCycle executes one evaluation cycle as a single transaction:
// decay, then boosts, then arbitration, then spawning. The ordering matters —
// decay lowers urgency before this cycle's boosts raise it again. On error
// the whole cycle rolls back.
func (e *Engine) RunCycle(ctx context.Context) error {
	start := time.Now()

	err := e.store.InTransaction(ctx, func(tx Storage) error {
		states := e.states.withStorage(tx)
		arb := e.arb.withStorage(tx)
		spawner := e.spawner.withStorage(tx)

		if err := states.ApplyDecayToAll(ctx); err != nil {
			return err
		}

		e.runSignalChecks(ctx, states)

		inFlight, err := tx.CountInFlightTasks(ctx)
		if err != nil {
			return fmt.Errorf("count in-flight tasks: %w", err)
		}
		if inFlight >= e.config.MaxConcurrentMotivatedTasks {
			return nil
		}

		sysCtx := SystemContext{
			StartupTime: e.startupTime,
			TestingMode: e.config.FastIteration,
		}
		selected := arb.ArbitrateGoals(ctx, e.config.MaxConcurrentMotivatedTasks, e.config.MinArbitrationThreshold, sysCtx)
		if len(selected) == 0 {
			return nil
		}

		spawned := 0
		for _, state := range selected {
			if _, err := spawner.SpawnTask(ctx, state); err != nil {
				// One failed spawn must not abort the others.
				log.Printf("Failed to spawn task for motivation %s: %v", state.MotivationType, err)
				continue
			}
			spawned++
		}
		if spawned > 0 {
			log.Printf("Motivation cycle spawned %d tasks in %v", spawned, time.Since(start).Round(time.Millisecond))
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.cycleCount++
	e.mu.Unlock()
	return nil
}

// boostRule describes one independent signal check. Checks must not depend
// on each other's side effects within a cycle.
type boostRule struct {
	motivationType string
	check          func(ctx context.Context) (float64, map[string]interface{}, error)
}

// runSignalChecks evaluates the external trigger conditions and boosts the
// matching motivations. Each check is isolated: one failing query cannot
// block the rest.
func (e *Engine) runSignalChecks(ctx context.Context, states *StateManager) {
	if e.signals == nil {
		return
	}

	for _, rule := range e.boostRules() {
		boost, metadata, err := rule.check(ctx)
		if err != nil {
			log.Printf("Error checking %s trigger: %v", rule.motivationType, err)
			continue
		}
		if boost <= 0 {
			continue
		}
		if err := states.BoostMotivation(ctx, rule.motivationType, boost, metadata); err != nil {
			log.Printf("Error boosting %s: %v", rule.motivationType, err)
		}
	}
}

func (e *Engine) boostRules() []boostRule {
	return []boostRule{
		{TypeResolveUnfinishedTasks, func(ctx context.Context) (float64, map[string]interface{}, error) {
			count, err := e.signals.FailedWorkItemCount(ctx, 24*time.Hour)
			if err != nil || count == 0 {
				return 0, nil, err
			}
			boost := minFloat(0.1*float64(count), 0.5)
			return boost, map[string]interface{}{"failed_tasks_24h": count}, nil
		}},
		{TypeRefineLowConfidence, func(ctx context.Context) (float64, map[string]interface{}, error) {
			count, err := e.signals.LowConfidenceCount(ctx, 6*time.Hour)
			if err != nil || count == 0 {
				return 0, nil, err
			}
			boost := minFloat(0.05*float64(count), 0.3)
			return boost, map[string]interface{}{"low_confidence_outputs_6h": count}, nil
		}},
		{TypeExploreRecentFailure, func(ctx context.Context) (float64, map[string]interface{}, error) {
			counts, err := e.signals.ToolFailureCounts(ctx, time.Hour)
			if err != nil {
				return 0, nil, err
			}
			// Only tools with clustered failures count.
			clustered := make(map[string]interface{})
			for tool, n := range counts {
				if n >= 3 {
					clustered[tool] = n
				}
			}
			if len(clustered) == 0 {
				return 0, nil, nil
			}
			boost := minFloat(0.1*float64(len(clustered)), 0.4)
			return boost, map[string]interface{}{"failed_tools": clustered}, nil
		}},
		{TypeMaximizeCoverage, func(ctx context.Context) (float64, map[string]interface{}, error) {
			count, err := e.signals.CompletedWorkItemCount(ctx, 12*time.Hour)
			if err != nil {
				return 0, nil, err
			}
			if count >= 3 {
				return 0, nil, nil
			}
			return 0.2, map[string]interface{}{"successful_tasks_12h": count}, nil
		}},
		{TypeRevisitOldThoughts, func(ctx context.Context) (float64, map[string]interface{}, error) {
			stale, err := e.signals.StaleWorkItems(ctx, 48*time.Hour, 50)
			if err != nil || len(stale) == 0 {
				return 0, nil, err
			}
			boost := minFloat(0.05*float64(len(stale)), 0.25)
			return boost, map[string]interface{}{"old_thoughts_count": len(stale)}, nil
		}},
		{TypeIdleExploration, func(ctx context.Context) (float64, map[string]interface{}, error) {
			snap, err := e.signals.Activity(ctx, 30*time.Minute)
			if err != nil {
				return 0, nil, err
			}
			if snap.ActiveAgents > 1 || snap.RecentEvents > 2 {
				return 0, nil, nil
			}
			return 0.3, map[string]interface{}{
				"active_agents":         snap.ActiveAgents,
				"recent_activity_30min": snap.RecentEvents,
			}, nil
		}},
	}
}

// ProcessTaskOutcome feeds a completed task's outcome through the feedback
// loop inside its own transaction.
func (e *Engine) ProcessTaskOutcome(ctx context.Context, taskID string, success bool, outcomeScore float64, metadata map[string]interface{}) error {
	return e.store.InTransaction(ctx, func(tx Storage) error {
		return e.feedback.withStorage(tx).ProcessOutcome(ctx, taskID, success, outcomeScore, metadata)
	})
}

// ProcessWorkItemCompletion resolves an execution handle to its task and
// processes the outcome transactionally.
func (e *Engine) ProcessWorkItemCompletion(ctx context.Context, workItemID string, success bool, qualityMetrics map[string]float64) error {
	return e.store.InTransaction(ctx, func(tx Storage) error {
		return e.feedback.withStorage(tx).ProcessWorkItemCompletion(ctx, workItemID, success, qualityMetrics)
	})
}

// ManualBoost applies an operator-requested urgency boost outside the
// evaluation loop.
func (e *Engine) ManualBoost(ctx context.Context, motivationType string, urgencyIncrease float64, metadata map[string]interface{}) error {
	return e.store.InTransaction(ctx, func(tx Storage) error {
		return e.states.withStorage(tx).BoostMotivation(ctx, motivationType, urgencyIncrease, metadata)
	})
}

// Status is the engine's diagnostic snapshot.
type Status struct {
	Running                 bool          `json:"running"`
	EvaluationInterval      time.Duration `json:"evaluation_interval"`
	MaxConcurrentTasks      int           `json:"max_concurrent_tasks"`
	MinArbitrationThreshold float64       `json:"min_arbitration_threshold"`
	FastIteration           bool          `json:"fast_iteration"`
	StartupTime             time.Time     `json:"startup_time"`
	CycleCount              int           `json:"cycle_count"`
}

// GetStatus returns the engine's current status.
func (e *Engine) GetStatus() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{
		Running:                 e.running,
		EvaluationInterval:      e.config.EvaluationInterval,
		MaxConcurrentTasks:      e.config.MaxConcurrentMotivatedTasks,
		MinArbitrationThreshold: e.config.MinArbitrationThreshold,
		FastIteration:           e.config.FastIteration,
		StartupTime:             e.startupTime,
		CycleCount:              e.cycleCount,
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
