package domain

import "time"

// TaskStatus tracks a worker task through its lifecycle.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// TaskType names the kind of work a task carries.
type TaskType string

const (
	TaskDetect  TaskType = "detect"
	TaskExecute TaskType = "execute"
	TaskMonitor TaskType = "monitor"
)

// Task priorities. Higher values are dequeued first; tasks that cannot be
// assigned are requeued one level lower.
const (
	PriorityLow      = 0
	PriorityNormal   = 1
	PriorityHigh     = 2
	PriorityCritical = 3
)

// WorkerTask is one unit of work flowing through the task distribution
// layer. Created on submission; mutated only by the dispatcher and the
// assigned worker; retained for a bounded history window then purged.
type WorkerTask struct {
	ID            string
	Type          TaskType
	Payload       map[string]string
	Priority      int
	TargetWorkers []string // empty means any capability-matching worker
	Worker        string   // assigned worker name, empty until assignment
	Status        TaskStatus
	Flagged       bool // set when the assigned worker went unhealthy mid-flight
	CreatedAt     time.Time
	AssignedAt    time.Time
	CompletedAt   time.Time
}

// WorkerInfo is the registry's view of one worker service. Updated by
// heartbeats; a worker is unhealthy once its heartbeat age exceeds the
// configured timeout.
type WorkerInfo struct {
	Name          string
	Capabilities  []TaskType
	LastHeartbeat time.Time
	Load          float64 // 0 idle .. 1 saturated
	HealthScore   float64 // in [0,1], self-reported
}

// Healthy reports whether the worker's heartbeat is fresh at now.
func (w WorkerInfo) Healthy(now time.Time, timeout time.Duration) bool {
	return !w.LastHeartbeat.IsZero() && now.Sub(w.LastHeartbeat) <= timeout
}

// CanRun reports whether the worker advertises the capability for t.
func (w WorkerInfo) CanRun(t TaskType) bool {
	for _, c := range w.Capabilities {
		if c == t {
			return true
		}
	}
	return false
}
