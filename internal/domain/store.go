package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ExecutionStore persists the append-only execution-history log.
type ExecutionStore interface {
	Append(ctx context.Context, res ExecutionResult) error
	ListRecent(ctx context.Context, limit int) ([]ExecutionResult, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]ExecutionResult, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Aggregates(ctx context.Context) (EngineMetrics, error)
}

// OpportunityStore archives opportunities once they reach a terminal status.
type OpportunityStore interface {
	Insert(ctx context.Context, opp ArbitrageOpportunity) error
	UpdateStatus(ctx context.Context, id string, status OpportunityStatus) error
	GetByID(ctx context.Context, id string) (ArbitrageOpportunity, error)
	ListRecent(ctx context.Context, limit int) ([]ArbitrageOpportunity, error)
}

// RiskStateStore persists the singleton risk state across restarts.
type RiskStateStore interface {
	Load(ctx context.Context) (RiskState, error)
	Save(ctx context.Context, state RiskState) error
}

// TaskStore persists worker task history for a bounded retention window.
type TaskStore interface {
	Create(ctx context.Context, task WorkerTask) error
	Update(ctx context.Context, task WorkerTask) error
	GetByID(ctx context.Context, id string) (WorkerTask, error)
	ListByStatus(ctx context.Context, status TaskStatus, opts ListOpts) ([]WorkerTask, error)
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]WorkerTask, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
