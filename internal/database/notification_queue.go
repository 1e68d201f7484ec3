package database

import (
	"context"
	"fmt"
	"time"

	"hallbook/internal/models"
)

const queueColumns = `id, task_type, booking_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

func (db *DB) CreateQueueTask(ctx context.Context, task *models.QueueTask) error {
	query := `INSERT INTO notification_queue (task_type, booking_id, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		task.TaskType,
		task.BookingID,
		task.Payload,
		task.Status,
		task.RetryCount,
		task.LastError,
		now,
		task.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create queue task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now

	return nil
}

func (db *DB) scanQueueTasks(ctx context.Context, query string, args ...any) ([]models.QueueTask, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.QueueTask
	for rows.Next() {
		var t models.QueueTask
		err := rows.Scan(
			&t.ID, &t.TaskType, &t.BookingID, &t.Payload, &t.Status, &t.RetryCount, &t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// GetPendingQueueTasks returns pending tasks and retries that are due.
func (db *DB) GetPendingQueueTasks(ctx context.Context, limit int) ([]models.QueueTask, error) {
	query := `SELECT ` + queueColumns + ` FROM notification_queue
              WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC, id ASC LIMIT ?`
	tasks, err := db.scanQueueTasks(ctx, query, models.TaskStatusPending, models.TaskStatusRetry, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending queue tasks: %w", err)
	}
	return tasks, nil
}

func (db *DB) GetQueueTask(ctx context.Context, id int64) (*models.QueueTask, error) {
	tasks, err := db.scanQueueTasks(ctx, `SELECT `+queueColumns+` FROM notification_queue WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue task: %w", err)
	}
	if len(tasks) == 0 {
		return nil, ErrTaskNotFound
	}
	return &tasks[0], nil
}

func (db *DB) UpdateQueueTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now()

	var lastErr *string
	if errMsg != "" {
		lastErr = &errMsg
	}

	switch status {
	case models.TaskStatusRetry:
		query = `UPDATE notification_queue SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, lastErr, nextRetryAt, id}
	case models.TaskStatusCompleted, models.TaskStatusFailed:
		query = `UPDATE notification_queue SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []interface{}{status, lastErr, nextRetryAt, &now, id}
	default:
		query = `UPDATE notification_queue SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, lastErr, nextRetryAt, id}
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update queue task status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (db *DB) GetFailedQueueTasks(ctx context.Context) ([]models.QueueTask, error) {
	query := `SELECT ` + queueColumns + ` FROM notification_queue WHERE status = ? ORDER BY created_at DESC, id DESC`
	tasks, err := db.scanQueueTasks(ctx, query, models.TaskStatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed queue tasks: %w", err)
	}
	return tasks, nil
}
