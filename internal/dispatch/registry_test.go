package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestRegistry() (*Registry, *testClock) {
	clk := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewRegistry(30*time.Second, clk.Now), clk
}

func TestRegistry_Heartbeat(t *testing.T) {
	r, _ := newTestRegistry()

	t.Run("registers on first contact", func(t *testing.T) {
		r.Heartbeat("alpha", []domain.TaskType{domain.TaskExecute}, 0.2, 0.9)
		w, ok := r.Get("alpha")
		require.True(t, ok)
		assert.Equal(t, []domain.TaskType{domain.TaskExecute}, w.Capabilities)
		assert.Equal(t, 0.2, w.Load)
	})

	t.Run("keeps capabilities when a heartbeat omits them", func(t *testing.T) {
		r.Heartbeat("alpha", nil, 0.5, 0.9)
		w, _ := r.Get("alpha")
		assert.Equal(t, []domain.TaskType{domain.TaskExecute}, w.Capabilities)
		assert.Equal(t, 0.5, w.Load)
	})

	t.Run("clamps load and health", func(t *testing.T) {
		r.Heartbeat("beta", []domain.TaskType{domain.TaskDetect}, 1.7, -0.3)
		w, _ := r.Get("beta")
		assert.Equal(t, 1.0, w.Load)
		assert.Equal(t, 0.0, w.HealthScore)
	})
}

func TestRegistry_HealthyCount(t *testing.T) {
	r, clk := newTestRegistry()
	r.Heartbeat("alpha", []domain.TaskType{domain.TaskExecute}, 0.2, 0.9)
	r.Heartbeat("beta", []domain.TaskType{domain.TaskDetect}, 0.1, 0.9)
	assert.Equal(t, 2, r.HealthyCount())

	clk.Advance(20 * time.Second)
	r.Heartbeat("alpha", nil, 0.2, 0.9)
	clk.Advance(15 * time.Second) // beta is now 35s stale, alpha 15s
	assert.Equal(t, 1, r.HealthyCount())
}

func TestRegistry_PickWorker(t *testing.T) {
	execTask := domain.WorkerTask{ID: "t1", Type: domain.TaskExecute}

	t.Run("prefers the least loaded capable worker", func(t *testing.T) {
		r, _ := newTestRegistry()
		r.Heartbeat("busy", []domain.TaskType{domain.TaskExecute}, 0.8, 0.9)
		r.Heartbeat("idle", []domain.TaskType{domain.TaskExecute}, 0.1, 0.9)
		r.Heartbeat("wrong", []domain.TaskType{domain.TaskMonitor}, 0.0, 1.0)

		w, ok := r.PickWorker(execTask)
		require.True(t, ok)
		assert.Equal(t, "idle", w.Name)
	})

	t.Run("breaks load ties on health then name", func(t *testing.T) {
		r, _ := newTestRegistry()
		r.Heartbeat("frail", []domain.TaskType{domain.TaskExecute}, 0.3, 0.5)
		r.Heartbeat("fit", []domain.TaskType{domain.TaskExecute}, 0.3, 0.9)
		w, ok := r.PickWorker(execTask)
		require.True(t, ok)
		assert.Equal(t, "fit", w.Name)

		r.Heartbeat("fit2", []domain.TaskType{domain.TaskExecute}, 0.3, 0.9)
		w, ok = r.PickWorker(execTask)
		require.True(t, ok)
		assert.Equal(t, "fit", w.Name, "equal load and health fall back to name order")
	})

	t.Run("honors the target worker set", func(t *testing.T) {
		r, _ := newTestRegistry()
		r.Heartbeat("idle", []domain.TaskType{domain.TaskExecute}, 0.1, 0.9)
		r.Heartbeat("wanted", []domain.TaskType{domain.TaskExecute}, 0.9, 0.9)

		targeted := execTask
		targeted.TargetWorkers = []string{"wanted"}
		w, ok := r.PickWorker(targeted)
		require.True(t, ok)
		assert.Equal(t, "wanted", w.Name)
	})

	t.Run("skips stale workers", func(t *testing.T) {
		r, clk := newTestRegistry()
		r.Heartbeat("gone", []domain.TaskType{domain.TaskExecute}, 0.1, 0.9)
		clk.Advance(time.Minute)
		_, ok := r.PickWorker(execTask)
		assert.False(t, ok)
	})
}
