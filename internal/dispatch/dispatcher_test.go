package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTaskStore is an in-memory TaskStore.
type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[string]domain.WorkerTask
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[string]domain.WorkerTask)}
}

func (f *fakeTaskStore) Create(_ context.Context, task domain.WorkerTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[task.ID]; ok {
		return domain.ErrAlreadyExists
	}
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeTaskStore) Update(_ context.Context, task domain.WorkerTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[task.ID]; !ok {
		return domain.ErrNotFound
	}
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeTaskStore) GetByID(_ context.Context, id string) (domain.WorkerTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return domain.WorkerTask{}, domain.ErrNotFound
	}
	return task, nil
}

func (f *fakeTaskStore) ListByStatus(_ context.Context, status domain.TaskStatus, _ domain.ListOpts) ([]domain.WorkerTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.WorkerTask
	for _, task := range f.tasks {
		if task.Status == status {
			out = append(out, task)
		}
	}
	return out, nil
}

func (f *fakeTaskStore) ListTerminalBefore(_ context.Context, cutoff time.Time, _ int) ([]domain.WorkerTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.WorkerTask
	for _, task := range f.tasks {
		if task.Status.Terminal() && task.CompletedAt.Before(cutoff) {
			out = append(out, task)
		}
	}
	return out, nil
}

func (f *fakeTaskStore) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, task := range f.tasks {
		if task.Status.Terminal() && task.CompletedAt.Before(cutoff) {
			delete(f.tasks, id)
			n++
		}
	}
	return n, nil
}

// fakeBus records published channels and durable stream events.
type fakeBus struct {
	domain.SignalBus
	mu       sync.Mutex
	channels []string
	streamed []string // "<stream>:<event>"
}

func (f *fakeBus) Publish(_ context.Context, channel string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	return nil
}

func (f *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var evt struct {
		Event string `json:"event"`
	}
	_ = json.Unmarshal(payload, &evt)
	f.streamed = append(f.streamed, stream+":"+evt.Event)
	return nil
}

func testDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		AssignInterval:   time.Millisecond,
		HealthInterval:   time.Millisecond,
		CleanupInterval:  time.Millisecond,
		TaskRetention:    72 * time.Hour,
		StarvationAlerts: 10,
	}
}

func TestDispatcher_Submit(t *testing.T) {
	ctx := context.Background()
	store := newFakeTaskStore()
	queue := NewQueue()
	registry, _ := newTestRegistry()
	d := NewDispatcher(testDispatcherConfig(), queue, registry, store, nil, nil, nil, testLogger())

	t.Run("persists and enqueues", func(t *testing.T) {
		id, err := d.Submit(ctx, domain.TaskExecute, map[string]string{"opp_id": "opp-1"}, domain.PriorityHigh, nil)
		require.NoError(t, err)
		require.NotEmpty(t, id)

		stored, err := store.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskPending, stored.Status)
		assert.Equal(t, "opp-1", stored.Payload["opp_id"])
		assert.Equal(t, 1, queue.Len())
		queue.Pop()
	})

	t.Run("clamps out-of-range priorities", func(t *testing.T) {
		id, err := d.Submit(ctx, domain.TaskMonitor, nil, 99, nil)
		require.NoError(t, err)
		stored, _ := store.GetByID(ctx, id)
		assert.Equal(t, domain.PriorityCritical, stored.Priority)

		id, err = d.Submit(ctx, domain.TaskMonitor, nil, -3, nil)
		require.NoError(t, err)
		stored, _ = store.GetByID(ctx, id)
		assert.Equal(t, domain.PriorityLow, stored.Priority)
	})
}

func TestDispatcher_Assignment(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns to the best worker and announces it", func(t *testing.T) {
		store := newFakeTaskStore()
		queue := NewQueue()
		registry, _ := newTestRegistry()
		bus := &fakeBus{}
		d := NewDispatcher(testDispatcherConfig(), queue, registry, store, bus, nil, nil, testLogger())

		registry.Heartbeat("busy", []domain.TaskType{domain.TaskExecute}, 0.8, 0.9)
		registry.Heartbeat("idle", []domain.TaskType{domain.TaskExecute}, 0.1, 0.9)

		id, err := d.Submit(ctx, domain.TaskExecute, nil, domain.PriorityHigh, nil)
		require.NoError(t, err)

		d.assignPending(ctx)

		stored, err := store.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskAssigned, stored.Status)
		assert.Equal(t, "idle", stored.Worker)
		assert.False(t, stored.AssignedAt.IsZero())
		assert.Equal(t, []string{"tasks:idle"}, bus.channels)
		assert.Zero(t, queue.Len())
	})

	t.Run("demotes stranded tasks one level with a floor", func(t *testing.T) {
		queue := NewQueue()
		registry, _ := newTestRegistry() // no workers at all
		d := NewDispatcher(testDispatcherConfig(), queue, registry, nil, nil, nil, nil, testLogger())

		queue.Push(domain.WorkerTask{ID: "t1", Type: domain.TaskExecute, Priority: domain.PriorityNormal, Status: domain.TaskPending})

		d.assignPending(ctx)
		task, ok := queue.Pop()
		require.True(t, ok)
		assert.Equal(t, domain.PriorityLow, task.Priority)
		queue.Push(task)

		// already at the floor, stays there
		d.assignPending(ctx)
		task, ok = queue.Pop()
		require.True(t, ok)
		assert.Equal(t, domain.PriorityLow, task.Priority)
	})
}

func TestDispatcher_TaskEvents(t *testing.T) {
	ctx := context.Background()
	store := newFakeTaskStore()
	queue := NewQueue()
	registry, _ := newTestRegistry()
	bus := &fakeBus{}
	d := NewDispatcher(testDispatcherConfig(), queue, registry, store, bus, nil, nil, testLogger())

	registry.Heartbeat("w1", []domain.TaskType{domain.TaskExecute}, 0.1, 0.9)

	id, err := d.Submit(ctx, domain.TaskExecute, nil, domain.PriorityNormal, nil)
	require.NoError(t, err)
	d.assignPending(ctx)
	require.NoError(t, d.UpdateStatus(ctx, id, domain.TaskCompleted))

	assert.Equal(t, []string{
		domain.TaskEventStream + ":task_submitted",
		domain.TaskEventStream + ":task_assigned",
		domain.TaskEventStream + ":task_completed",
	}, bus.streamed)
}

func TestDispatcher_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	store := newFakeTaskStore()
	queue := NewQueue()
	registry, _ := newTestRegistry()
	d := NewDispatcher(testDispatcherConfig(), queue, registry, store, nil, nil, nil, testLogger())

	id, err := d.Submit(ctx, domain.TaskExecute, nil, domain.PriorityNormal, nil)
	require.NoError(t, err)

	t.Run("progress and completion", func(t *testing.T) {
		require.NoError(t, d.UpdateStatus(ctx, id, domain.TaskInProgress))
		require.NoError(t, d.UpdateStatus(ctx, id, domain.TaskCompleted))
		stored, _ := store.GetByID(ctx, id)
		assert.Equal(t, domain.TaskCompleted, stored.Status)
		assert.False(t, stored.CompletedAt.IsZero())
	})

	t.Run("terminal tasks cannot move again", func(t *testing.T) {
		err := d.UpdateStatus(ctx, id, domain.TaskInProgress)
		require.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("unknown task id", func(t *testing.T) {
		err := d.UpdateStatus(ctx, "no-such-task", domain.TaskCompleted)
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestDispatcher_SweepFlagsStaleWorkers(t *testing.T) {
	ctx := context.Background()
	store := newFakeTaskStore()
	queue := NewQueue()
	// the sweep compares heartbeats against wall-clock time, so the
	// registry clock must be anchored there too
	clk := &testClock{t: time.Now().UTC()}
	registry := NewRegistry(30*time.Second, clk.Now)
	d := NewDispatcher(testDispatcherConfig(), queue, registry, store, nil, nil, nil, testLogger())

	registry.Heartbeat("ghost", []domain.TaskType{domain.TaskExecute}, 0.1, 0.9)
	id, err := d.Submit(ctx, domain.TaskExecute, nil, domain.PriorityNormal, nil)
	require.NoError(t, err)
	d.assignPending(ctx)

	stored, _ := store.GetByID(ctx, id)
	require.Equal(t, "ghost", stored.Worker)

	t.Run("healthy worker leaves the task alone", func(t *testing.T) {
		d.sweep(ctx)
		stored, _ := store.GetByID(ctx, id)
		assert.False(t, stored.Flagged)
	})

	t.Run("stale worker flags the task without reassigning", func(t *testing.T) {
		clk.Advance(-time.Minute)
		registry.Heartbeat("ghost", nil, 0.1, 0.9) // backdated: last contact a minute ago
		d.sweep(ctx)
		stored, _ := store.GetByID(ctx, id)
		assert.True(t, stored.Flagged)
		assert.Equal(t, "ghost", stored.Worker, "flagging must not reassign")
		assert.Equal(t, domain.TaskAssigned, stored.Status)
	})

	t.Run("sweep is idempotent on flagged tasks", func(t *testing.T) {
		d.sweep(ctx)
		stored, _ := store.GetByID(ctx, id)
		assert.True(t, stored.Flagged)
	})
}
