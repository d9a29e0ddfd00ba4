package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

// TaskStore implements domain.TaskStore.
type TaskStore struct {
	pool *pgxpool.Pool
}

// NewTaskStore creates a new TaskStore.
func NewTaskStore(pool *pgxpool.Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

const selectTask = `
	SELECT id, task_type, payload, priority, target_workers, worker,
	       status, flagged, created_at, assigned_at, completed_at
	FROM worker_tasks`

// Create inserts a new task row.
func (s *TaskStore) Create(ctx context.Context, task domain.WorkerTask) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO worker_tasks (id, task_type, payload, priority, target_workers, worker, status, flagged, created_at, assigned_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		task.ID, string(task.Type), task.Payload, task.Priority, task.TargetWorkers,
		task.Worker, string(task.Status), task.Flagged, task.CreatedAt,
		nullableTime(task.AssignedAt), nullableTime(task.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: create task: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of an existing task.
func (s *TaskStore) Update(ctx context.Context, task domain.WorkerTask) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE worker_tasks
		SET priority = $2, worker = $3, status = $4, flagged = $5,
		    assigned_at = $6, completed_at = $7
		WHERE id = $1`,
		task.ID, task.Priority, task.Worker, string(task.Status), task.Flagged,
		nullableTime(task.AssignedAt), nullableTime(task.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID fetches a single task.
func (s *TaskStore) GetByID(ctx context.Context, id string) (domain.WorkerTask, error) {
	row := s.pool.QueryRow(ctx, selectTask+` WHERE id = $1`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WorkerTask{}, domain.ErrNotFound
		}
		return domain.WorkerTask{}, fmt.Errorf("postgres: get task: %w", err)
	}
	return task, nil
}

// ListByStatus returns tasks in the given status, oldest first.
func (s *TaskStore) ListByStatus(ctx context.Context, status domain.TaskStatus, opts domain.ListOpts) ([]domain.WorkerTask, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, selectTask+` WHERE status = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3`,
		string(status), limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tasks by status: %w", err)
	}
	return collectTasks(rows)
}

// ListTerminalBefore returns completed, failed and cancelled tasks older
// than the cutoff, for archival.
func (s *TaskStore) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.WorkerTask, error) {
	rows, err := s.pool.Query(ctx, selectTask+`
		WHERE status IN ('completed', 'failed', 'cancelled') AND completed_at < $1
		ORDER BY completed_at ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal tasks: %w", err)
	}
	return collectTasks(rows)
}

// DeleteTerminalBefore purges archived terminal tasks older than the cutoff.
func (s *TaskStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM worker_tasks
		WHERE status IN ('completed', 'failed', 'cancelled') AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete terminal tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectTasks(rows pgx.Rows) ([]domain.WorkerTask, error) {
	defer rows.Close()
	var tasks []domain.WorkerTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate tasks: %w", err)
	}
	return tasks, nil
}

func scanTask(row pgx.Row) (domain.WorkerTask, error) {
	var (
		task        domain.WorkerTask
		taskType    string
		status      string
		assignedAt  *time.Time
		completedAt *time.Time
	)
	err := row.Scan(
		&task.ID, &taskType, &task.Payload, &task.Priority, &task.TargetWorkers,
		&task.Worker, &status, &task.Flagged, &task.CreatedAt, &assignedAt, &completedAt,
	)
	if err != nil {
		return domain.WorkerTask{}, err
	}
	task.Type = domain.TaskType(taskType)
	task.Status = domain.TaskStatus(status)
	if assignedAt != nil {
		task.AssignedAt = *assignedAt
	}
	if completedAt != nil {
		task.CompletedAt = *completedAt
	}
	return task, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ domain.TaskStore = (*TaskStore)(nil)
