package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

// archiveBatch bounds how many rows a single archive pass pulls from the
// store. Remaining rows are picked up on the next cleanup cycle.
const archiveBatch = 5000

// TaskArchiveStore is the read surface the archiver needs for tasks.
type TaskArchiveStore interface {
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.WorkerTask, error)
}

// ExecutionArchiveStore is the read surface the archiver needs for
// execution results.
type ExecutionArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ExecutionResult, error)
}

// Archiver serializes aged rows to JSONL and uploads them to cold storage
// before the primary store purges them. Deletion is not performed here; the
// caller purges only after the archive upload succeeds.
type Archiver struct {
	writer     domain.BlobWriter
	tasks      TaskArchiveStore
	executions ExecutionArchiveStore
	logger     *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(writer domain.BlobWriter, tasks TaskArchiveStore, executions ExecutionArchiveStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:     writer,
		tasks:      tasks,
		executions: executions,
		logger:     logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveTasks uploads terminal tasks older than the cutoff as a JSONL
// object and returns the number of rows archived.
func (a *Archiver) ArchiveTasks(ctx context.Context, cutoff time.Time) (int64, error) {
	tasks, err := a.tasks.ListTerminalBefore(ctx, cutoff, archiveBatch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive tasks query: %w", err)
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(tasks)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive tasks marshal: %w", err)
	}

	key := archiveKey("tasks", cutoff)
	if err := a.writer.Put(ctx, key, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive tasks upload: %w", err)
	}

	a.logger.Info("archived tasks",
		slog.String("key", key),
		slog.Int("count", len(tasks)))
	return int64(len(tasks)), nil
}

// ArchiveExecutions uploads execution results older than the cutoff as a
// JSONL object and returns the number of rows archived.
func (a *Archiver) ArchiveExecutions(ctx context.Context, cutoff time.Time) (int64, error) {
	results, err := a.executions.ListBefore(ctx, cutoff, archiveBatch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions query: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(results)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions marshal: %w", err)
	}

	key := archiveKey("executions", cutoff)
	if err := a.writer.Put(ctx, key, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive executions upload: %w", err)
	}

	a.logger.Info("archived executions",
		slog.String("key", key),
		slog.Int("count", len(results)))
	return int64(len(results)), nil
}

// archiveKey partitions archive objects by the cutoff's year-month plus the
// cutoff timestamp so successive passes never overwrite each other.
//
//	archive/tasks/2026-08/20260830T120000Z.jsonl
func archiveKey(kind string, cutoff time.Time) string {
	return fmt.Sprintf("archive/%s/%s/%s.jsonl",
		kind, cutoff.UTC().Format("2006-01"), cutoff.UTC().Format("20060102T150405Z"))
}

// marshalJSONL serializes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
