package dispatch

import (
	"sort"
	"sync"
	"time"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

// Registry tracks the worker pool. Heartbeats update it; the dispatcher
// reads it during assignment. It is an explicit struct passed into its
// consumers, not ambient global state.
type Registry struct {
	timeout time.Duration
	now     func() time.Time

	mu      sync.RWMutex
	workers map[string]domain.WorkerInfo
}

// NewRegistry creates a Registry with the given heartbeat timeout. The now
// function is injectable for tests; pass nil for time.Now.
func NewRegistry(timeout time.Duration, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		timeout: timeout,
		now:     now,
		workers: make(map[string]domain.WorkerInfo),
	}
}

// Heartbeat records a worker's heartbeat. Unknown workers are registered on
// first contact; capabilities are updated when provided, otherwise the
// previously advertised set is kept. Load and health are clamped to [0,1].
func (r *Registry) Heartbeat(name string, capabilities []domain.TaskType, load, health float64) {
	now := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[name]
	if !ok {
		w = domain.WorkerInfo{Name: name}
	}
	if len(capabilities) > 0 {
		w.Capabilities = capabilities
	}
	w.LastHeartbeat = now
	w.Load = clamp01(load)
	w.HealthScore = clamp01(health)
	r.workers[name] = w
}

// Get returns a worker by name.
func (r *Registry) Get(name string) (domain.WorkerInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[name]
	return w, ok
}

// List returns every known worker, ordered by name for stable output.
func (r *Registry) List() []domain.WorkerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.WorkerInfo, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// HealthyCount returns how many workers have a fresh heartbeat.
func (r *Registry) HealthyCount() int {
	now := r.now().UTC()

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, w := range r.workers {
		if w.Healthy(now, r.timeout) {
			n++
		}
	}
	return n
}

// PickWorker selects the best eligible worker for a task: healthy, capable
// of the task type, within the target set when one is given; least loaded
// first, ties broken by highest health score, then by name for determinism.
// ok is false when no worker qualifies.
func (r *Registry) PickWorker(task domain.WorkerTask) (domain.WorkerInfo, bool) {
	now := r.now().UTC()

	targets := make(map[string]bool, len(task.TargetWorkers))
	for _, t := range task.TargetWorkers {
		targets[t] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var best domain.WorkerInfo
	found := false
	for _, w := range r.workers {
		if !w.Healthy(now, r.timeout) {
			continue
		}
		if !w.CanRun(task.Type) {
			continue
		}
		if len(targets) > 0 && !targets[w.Name] {
			continue
		}
		if !found || better(w, best) {
			best = w
			found = true
		}
	}
	return best, found
}

func better(a, b domain.WorkerInfo) bool {
	if a.Load != b.Load {
		return a.Load < b.Load
	}
	if a.HealthScore != b.HealthScore {
		return a.HealthScore > b.HealthScore
	}
	return a.Name < b.Name
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
