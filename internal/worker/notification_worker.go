package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"hallbook/internal/domain"
	"hallbook/internal/events"
	"hallbook/internal/metrics"
	"hallbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskNotify = "notify"
	TaskAudit  = "audit"
)

// TaskStore persists queue tasks and audit entries.
type TaskStore interface {
	CreateQueueTask(ctx context.Context, task *models.QueueTask) error
	GetQueueTask(ctx context.Context, id int64) (*models.QueueTask, error)
	GetPendingQueueTasks(ctx context.Context, limit int) ([]models.QueueTask, error)
	UpdateQueueTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	CreateAuditEntry(ctx context.Context, entry *models.AuditEntry) error
}

// Task describes a unit of background work about one booking.
type Task struct {
	Type         string
	BookingID    int64
	Notification *models.Notification
	Audit        *models.AuditEntry
}

// taskPayload is persisted in QueueTask.Payload as JSON.
type taskPayload struct {
	BookingID    int64                `json:"booking_id"`
	Notification *models.Notification `json:"notification,omitempty"`
	Audit        *models.AuditEntry   `json:"audit,omitempty"`
}

// Options tune a NotificationWorker; zero values fall back to defaults.
type Options struct {
	NotifyEnabled bool
	QueueKey      string
	PollInterval  time.Duration
	BatchSize     int
}

// NotificationWorker consumes notification_queue tasks: it records audit
// entries and delivers notifications through a Notifier. Failures are
// retried with backoff and finally dead-lettered; they never touch the
// booking itself.
type NotificationWorker struct {
	store         TaskStore
	notifier      domain.Notifier
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.QueueTask
	notifyEnabled bool
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewNotificationWorker builds a worker with sane defaults. redisClient may be nil.
func NewNotificationWorker(
	store TaskStore,
	notifier domain.Notifier,
	redisClient *redis.Client,
	retry RetryPolicy,
	opts Options,
	logger *zerolog.Logger,
) *NotificationWorker {
	retry = retry.withDefaults()
	if opts.QueueKey == "" {
		opts.QueueKey = "hallbook:notifications"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &NotificationWorker{
		store:         store,
		notifier:      notifier,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.QueueTask, models.WorkerQueueSize),
		notifyEnabled: opts.NotifyEnabled,
		redisQueueKey: opts.QueueKey,
		deadLetterKey: opts.QueueKey + ":deadletter",
		pollInterval:  opts.PollInterval,
		batchSize:     opts.BatchSize,
		logger:        logger,
	}
}

// HandleEvent turns a booking event into an audit task and, when enabled,
// a notification task. It is meant to be subscribed to the event bus.
func (w *NotificationWorker) HandleEvent(event *events.Event) error {
	payload, err := event.Decode()
	if err != nil {
		return fmt.Errorf("decode event %s: %w", event.ID, err)
	}

	ctx := context.Background()
	details := payload.Status
	if payload.Comment != "" {
		details += ": " + payload.Comment
	}
	audit := &models.AuditEntry{
		BookingID: payload.BookingID,
		Action:    event.Type,
		Actor:     payload.ChangedBy,
		Details:   details,
		CreatedAt: event.CreatedAt,
	}
	if err := w.EnqueueTask(ctx, Task{Type: TaskAudit, BookingID: payload.BookingID, Audit: audit}); err != nil {
		return err
	}

	if !w.notifyEnabled {
		return nil
	}
	n, ok := buildNotification(event.Type, payload)
	if !ok {
		return nil
	}
	return w.EnqueueTask(ctx, Task{Type: TaskNotify, BookingID: payload.BookingID, Notification: &n})
}

// EnqueueTask persists task to DB and schedules it via redis or in-memory queue.
func (w *NotificationWorker) EnqueueTask(ctx context.Context, task Task) error {
	if task.Type == "" {
		return errors.New("task type is required")
	}
	if task.BookingID == 0 {
		return errors.New("booking id is required")
	}

	payloadBytes, err := json.Marshal(taskPayload{
		BookingID:    task.BookingID,
		Notification: task.Notification,
		Audit:        task.Audit,
	})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	queued := models.QueueTask{
		TaskType:  task.Type,
		BookingID: task.BookingID,
		Payload:   string(payloadBytes),
		Status:    models.TaskStatusPending,
	}
	if err := w.store.CreateQueueTask(ctx, &queued); err != nil {
		return fmt.Errorf("persist queue task: %w", err)
	}

	// Try redis first for durability.
	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, &queued); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", queued.ID).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	// Fallback to in-memory queue if redis missing or failed.
	select {
	case w.queue <- queued:
	default:
		w.logger.Warn().Int64("task_id", queued.ID).Msg("in-memory queue full, task left to polling")
	}

	return nil
}

// Start launches main loop; stops when ctx is done.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("notification worker started")
	defer w.logger.Info().Msg("notification worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.store.GetPendingQueueTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending tasks")
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *NotificationWorker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *NotificationWorker) tryLocalQueue() (models.QueueTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.QueueTask{}, false
	}
}

func (w *NotificationWorker) tryRedis(ctx context.Context) (models.QueueTask, bool) {
	if w.redis == nil {
		return models.QueueTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Error().Err(err).Msg("redis BRPOP error")
			w.sleep(ctx)
		}
		return models.QueueTask{}, false
	}
	if len(res) != 2 {
		return models.QueueTask{}, false
	}
	var task models.QueueTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.QueueTask{}, false
	}
	return task, true
}

// processTask skips tasks already finished through another path (a task
// can sit both in a queue and in the pending poll).
func (w *NotificationWorker) processTask(ctx context.Context, task *models.QueueTask) {
	if task.ID != 0 {
		current, err := w.store.GetQueueTask(ctx, task.ID)
		if err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("reload task")
			return
		}
		if current.Status == models.TaskStatusCompleted || current.Status == models.TaskStatusFailed {
			return
		}
		task = current
	}

	payload, err := w.decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleTask(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.store.UpdateQueueTaskStatus(ctx, task.ID, models.TaskStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
	}
	metrics.IncNotification("sent")
}

func (w *NotificationWorker) handleTask(ctx context.Context, taskType string, payload taskPayload) error {
	switch taskType {
	case TaskAudit:
		if payload.Audit == nil {
			return errors.New("audit payload missing")
		}
		return w.store.CreateAuditEntry(ctx, payload.Audit)
	case TaskNotify:
		if payload.Notification == nil || strings.TrimSpace(payload.Notification.To) == "" {
			return errors.New("notification payload missing")
		}
		if w.notifier == nil {
			return errors.New("notifier is not configured")
		}
		return w.notifier.Notify(ctx, *payload.Notification)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *NotificationWorker) retryOrFail(ctx context.Context, task *models.QueueTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := w.retryPolicy.NextAttemptAt(attempt, time.Now())
	if err := w.store.UpdateQueueTaskStatus(ctx, task.ID, models.TaskStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", nextTime).Msg("task failed, will retry")
	metrics.IncNotification("retry")
}

func (w *NotificationWorker) failTask(ctx context.Context, task *models.QueueTask, cause error) {
	if err := w.store.UpdateQueueTaskStatus(ctx, task.ID, models.TaskStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("type", task.TaskType).Msg("task dead-lettered")
	metrics.IncNotification("dead")
	if w.redis != nil {
		if err := w.pushRedis(ctx, w.deadLetterKey, task); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
		}
	}
}

func (w *NotificationWorker) decodePayload(raw string) (taskPayload, error) {
	var payload taskPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (w *NotificationWorker) pushRedis(ctx context.Context, key string, task *models.QueueTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}
