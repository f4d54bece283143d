package integration

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/EckmanTechLLC/nyx-sub001/internal/motivation"
	"github.com/EckmanTechLLC/nyx-sub001/internal/observability"
	"github.com/EckmanTechLLC/nyx-sub001/internal/signals"
	"github.com/EckmanTechLLC/nyx-sub001/pkg/models"
)

// Poller moves queued motivational tasks to the external executor. It is the
// only component that talks to both the task store and the execution backend,
// keeping the motivation engine free of execution concerns.
type Poller struct {
	db       motivation.Storage
	spawner  *motivation.TaskSpawner
	executor motivation.Executor
	tracker  *signals.ActivityTracker
	interval time.Duration
	batch    int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewPoller creates a poller. tracker may be nil when a remote orchestrator
// provides activity signals instead.
func NewPoller(db motivation.Storage, spawner *motivation.TaskSpawner, executor motivation.Executor, tracker *signals.ActivityTracker, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Poller{
		db:       db,
		spawner:  spawner,
		executor: executor,
		tracker:  tracker,
		interval: interval,
		batch:    5,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the polling loop until the context is cancelled or Stop is
// called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("task poller already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	log.Printf("Task poller started with interval %v", p.interval)

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.pollOnce(ctx); err != nil {
				log.Printf("Error polling for queued tasks: %v", err)
			}
		}
	}
}

// Stop requests a graceful stop.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		close(p.stopCh)
	}
}

// pollOnce dispatches up to one batch of queued tasks. Each task is handled
// independently so one executor failure cannot stall the queue.
func (p *Poller) pollOnce(ctx context.Context) error {
	tasks, err := p.spawner.PendingTasks(ctx, p.batch)
	if err != nil {
		return err
	}

	for _, task := range tasks {
		if err := p.dispatch(ctx, task); err != nil {
			log.Printf("Failed to dispatch task %s: %v", task.ID, err)
		}
	}
	return nil
}

// dispatch hands one task to the executor. The status transitions are
// queued -> spawned -> active; an executor error sends the task to failed so
// it stops occupying its motivation's execution slot.
func (p *Poller) dispatch(ctx context.Context, task *models.MotivationalTask) error {
	state, err := p.db.StateByID(ctx, task.MotivationalStateID)
	if err != nil {
		return fmt.Errorf("load state for task %s: %w", task.ID, err)
	}

	if err := p.spawner.UpdateTaskStatus(ctx, task.ID, models.TaskStatusSpawned, "", nil); err != nil {
		return err
	}

	workItemID, err := p.executor.Execute(ctx, task.Snapshot(state.MotivationType))
	if err != nil {
		observability.Error("poller.dispatch_failed", map[string]interface{}{
			"task_id":         task.ID,
			"motivation_type": state.MotivationType,
		}, err)
		markErr := p.spawner.UpdateTaskStatus(ctx, task.ID, models.TaskStatusFailed, "", map[string]interface{}{
			"dispatch_error": err.Error(),
		})
		if markErr != nil {
			log.Printf("Failed to mark task %s failed after dispatch error: %v", task.ID, markErr)
		}
		return fmt.Errorf("execute task %s: %w", task.ID, err)
	}

	if err := p.spawner.UpdateTaskStatus(ctx, task.ID, models.TaskStatusActive, workItemID, nil); err != nil {
		return err
	}

	if p.tracker != nil {
		p.tracker.AgentStarted()
		p.tracker.RecordEvent()
	}
	observability.Info("poller.task_dispatched", map[string]interface{}{
		"task_id":         task.ID,
		"work_item_id":    workItemID,
		"motivation_type": state.MotivationType,
	})
	return nil
}
