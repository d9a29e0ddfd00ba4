package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sumitrevolt/flasharb/internal/domain"
	"github.com/sumitrevolt/flasharb/internal/metrics"
	"github.com/sumitrevolt/flasharb/internal/notify"
)

// DispatcherConfig holds assignment-loop parameters.
type DispatcherConfig struct {
	AssignInterval   time.Duration // delay between queue polls and requeue retries
	HealthInterval   time.Duration // worker-health sweep interval
	CleanupInterval  time.Duration
	TaskRetention    time.Duration // terminal tasks older than this are purged
	StarvationAlerts int           // warn after this many consecutive no-worker requeues
}

// Dispatcher owns the task queue: it is the only component that dequeues and
// assigns. Assignments are announced on the signal bus channel
// "tasks:<worker>"; workers report progress back through the task API.
type Dispatcher struct {
	cfg      DispatcherConfig
	queue    *Queue
	registry *Registry
	store    domain.TaskStore
	bus      domain.SignalBus
	metrics  *metrics.Registry
	notifier *notify.Notifier
	logger   *slog.Logger

	noWorkerStreak map[domain.TaskType]int
}

// NewDispatcher creates a Dispatcher. Store, bus, metrics, and notifier may
// be nil in tests.
func NewDispatcher(
	cfg DispatcherConfig,
	queue *Queue,
	registry *Registry,
	store domain.TaskStore,
	bus domain.SignalBus,
	m *metrics.Registry,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		cfg:            cfg,
		queue:          queue,
		registry:       registry,
		store:          store,
		bus:            bus,
		metrics:        m,
		notifier:       notifier,
		logger:         logger.With(slog.String("component", "dispatcher")),
		noWorkerStreak: make(map[domain.TaskType]int),
	}
}

// Submit enqueues a new task and returns its id immediately.
func (d *Dispatcher) Submit(ctx context.Context, taskType domain.TaskType, payload map[string]string, priority int, targetWorkers []string) (string, error) {
	if priority < domain.PriorityLow {
		priority = domain.PriorityLow
	}
	if priority > domain.PriorityCritical {
		priority = domain.PriorityCritical
	}
	task := domain.WorkerTask{
		ID:            uuid.New().String(),
		Type:          taskType,
		Payload:       payload,
		Priority:      priority,
		TargetWorkers: targetWorkers,
		Status:        domain.TaskPending,
		CreatedAt:     time.Now().UTC(),
	}

	if d.store != nil {
		if err := d.store.Create(ctx, task); err != nil {
			return "", fmt.Errorf("dispatch: create task: %w", err)
		}
	}
	d.queue.Push(task)
	d.appendEvent(ctx, "task_submitted", task)
	if d.metrics != nil {
		d.metrics.TasksSubmitted.WithLabelValues(string(taskType)).Inc()
		d.metrics.TaskQueueDepth.Set(float64(d.queue.Len()))
	}

	d.logger.Debug("task submitted",
		slog.String("task_id", task.ID),
		slog.String("type", string(taskType)),
		slog.Int("priority", priority),
	)
	return task.ID, nil
}

// RunAssignment is the assignment loop: pop the highest-priority pending
// task, hand it to the best eligible worker, or requeue it one priority
// level lower when nobody can take it. Blocks until ctx cancels.
func (d *Dispatcher) RunAssignment(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.AssignInterval)
	defer ticker.Stop()

	d.logger.Info("assignment loop started")
	defer d.logger.Info("assignment loop stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.assignPending(ctx)
		}
	}
}

// assignPending drains the queue once. Tasks with no eligible worker are
// collected and re-pushed after the sweep so the loop terminates.
func (d *Dispatcher) assignPending(ctx context.Context) {
	var requeue []domain.WorkerTask
	for {
		task, ok := d.queue.Pop()
		if !ok {
			break
		}
		worker, ok := d.registry.PickWorker(task)
		if !ok {
			d.handleNoWorker(ctx, &task)
			requeue = append(requeue, task)
			continue
		}
		d.assign(ctx, task, worker)
	}
	for _, task := range requeue {
		d.queue.Push(task)
	}
	if d.metrics != nil {
		d.metrics.TaskQueueDepth.Set(float64(d.queue.Len()))
	}
}

func (d *Dispatcher) assign(ctx context.Context, task domain.WorkerTask, worker domain.WorkerInfo) {
	task.Worker = worker.Name
	task.Status = domain.TaskAssigned
	task.AssignedAt = time.Now().UTC()
	d.noWorkerStreak[task.Type] = 0

	if d.store != nil {
		if err := d.store.Update(ctx, task); err != nil {
			d.logger.Error("persist assignment failed",
				slog.String("task_id", task.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if d.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":    "task_assigned",
			"task_id":  task.ID,
			"type":     task.Type,
			"priority": task.Priority,
			"payload":  task.Payload,
		})
		if err := d.bus.Publish(ctx, "tasks:"+worker.Name, evt); err != nil {
			d.logger.Warn("publish assignment failed",
				slog.String("task_id", task.ID),
				slog.String("worker", worker.Name),
				slog.String("error", err.Error()),
			)
		}
	}
	d.appendEvent(ctx, "task_assigned", task)

	d.logger.Info("task assigned",
		slog.String("task_id", task.ID),
		slog.String("type", string(task.Type)),
		slog.String("worker", worker.Name),
		slog.Float64("worker_load", worker.Load),
	)
}

// handleNoWorker demotes a stranded task one priority level (floored) and
// raises a warning once the shortage recurs beyond the threshold.
func (d *Dispatcher) handleNoWorker(ctx context.Context, task *domain.WorkerTask) {
	if task.Priority > domain.PriorityLow {
		task.Priority--
	}
	d.noWorkerStreak[task.Type]++

	streak := d.noWorkerStreak[task.Type]
	d.logger.Debug("no eligible worker, task requeued",
		slog.String("task_id", task.ID),
		slog.String("type", string(task.Type)),
		slog.Int("priority", task.Priority),
		slog.Int("streak", streak),
	)
	if d.cfg.StarvationAlerts > 0 && streak == d.cfg.StarvationAlerts {
		d.logger.Warn("recurring worker shortage",
			slog.String("type", string(task.Type)),
			slog.Int("streak", streak),
		)
		if d.notifier != nil {
			_ = d.notifier.Notify(ctx, "worker_unavailable", "Worker shortage",
				fmt.Sprintf("No eligible worker for %s tasks after %d attempts.", task.Type, streak))
		}
	}
}

// UpdateStatus applies a worker-reported status change to a task.
func (d *Dispatcher) UpdateStatus(ctx context.Context, taskID string, status domain.TaskStatus) error {
	if d.store == nil {
		return nil
	}
	task, err := d.store.GetByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("dispatch: get task %s: %w", taskID, err)
	}
	if task.Status.Terminal() {
		return fmt.Errorf("dispatch: task %s already %s: %w", taskID, task.Status, domain.ErrInvalidTransition)
	}
	task.Status = status
	if status.Terminal() {
		task.CompletedAt = time.Now().UTC()
	}
	if err := d.store.Update(ctx, task); err != nil {
		return fmt.Errorf("dispatch: update task %s: %w", taskID, err)
	}
	d.appendEvent(ctx, "task_"+string(status), task)
	return nil
}

// appendEvent records a task lifecycle event on the durable stream so the
// recent task history survives pub/sub subscribers coming and going.
func (d *Dispatcher) appendEvent(ctx context.Context, event string, task domain.WorkerTask) {
	if d.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]any{
		"event":    event,
		"task_id":  task.ID,
		"type":     task.Type,
		"status":   task.Status,
		"worker":   task.Worker,
		"priority": task.Priority,
	})
	if err := d.bus.StreamAppend(ctx, domain.TaskEventStream, evt); err != nil {
		d.logger.Warn("append task event failed",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()),
		)
	}
}

// RunHealthSweep periodically flags in-flight tasks whose assigned worker
// went stale. Tasks are flagged for operator review, never silently
// reassigned. Also refreshes the healthy-worker gauge.
func (d *Dispatcher) RunHealthSweep(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.HealthInterval)
	defer ticker.Stop()

	d.logger.Info("health sweep started")
	defer d.logger.Info("health sweep stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.sweep(ctx)
		}
	}
}

func (d *Dispatcher) sweep(ctx context.Context) {
	healthy := d.registry.HealthyCount()
	if d.metrics != nil {
		d.metrics.WorkersHealthy.Set(float64(healthy))
	}
	if d.store == nil {
		return
	}

	now := time.Now().UTC()
	for _, status := range []domain.TaskStatus{domain.TaskAssigned, domain.TaskInProgress} {
		tasks, err := d.store.ListByStatus(ctx, status, domain.ListOpts{Limit: 500})
		if err != nil {
			d.logger.Error("list in-flight tasks failed", slog.String("error", err.Error()))
			continue
		}
		for _, task := range tasks {
			if task.Flagged || task.Worker == "" {
				continue
			}
			worker, ok := d.registry.Get(task.Worker)
			if ok && worker.Healthy(now, d.registry.timeout) {
				continue
			}
			task.Flagged = true
			if err := d.store.Update(ctx, task); err != nil {
				d.logger.Error("flag task failed",
					slog.String("task_id", task.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			d.logger.Warn("in-flight task flagged, assigned worker unhealthy",
				slog.String("task_id", task.ID),
				slog.String("worker", task.Worker),
			)
		}
	}
}

// RunCleanup purges terminal tasks older than the retention window. An
// optional archiver callback (cold storage) runs before each purge. Blocks
// until ctx cancels.
func (d *Dispatcher) RunCleanup(ctx context.Context, archive func(context.Context, time.Time) error) error {
	ticker := time.NewTicker(d.cfg.CleanupInterval)
	defer ticker.Stop()

	d.logger.Info("cleanup loop started")
	defer d.logger.Info("cleanup loop stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if d.store == nil {
				continue
			}
			cutoff := time.Now().UTC().Add(-d.cfg.TaskRetention)
			if archive != nil {
				if err := archive(ctx, cutoff); err != nil {
					d.logger.Error("archive before purge failed", slog.String("error", err.Error()))
					continue // keep rows until the archive succeeds
				}
			}
			n, err := d.store.DeleteTerminalBefore(ctx, cutoff)
			if err != nil {
				d.logger.Error("purge terminal tasks failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				d.logger.Info("terminal tasks purged", slog.Int64("count", n))
			}
		}
	}
}
