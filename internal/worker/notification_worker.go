package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tripdesk/internal/domain"
	"tripdesk/internal/events"
	"tripdesk/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	redisQueueKey = "notifications:queue"
	deadLetterKey = "notifications:deadletter"
)

// taskTypes maps lifecycle events to the notification they trigger.
var taskTypes = map[string]string{
	events.EventPaymentCaptured: models.TaskNotifyCaptured,
	events.EventPaymentFailed:   models.TaskNotifyFailed,
	events.EventPaymentRefunded: models.TaskNotifyRefunded,
	events.EventPaymentDegraded: models.TaskNotifyDegraded,
}

// NotificationWorker is an outbox: tasks are persisted first, then delivered
// from the in-memory queue, the redis list or by polling the table.
type NotificationWorker struct {
	repo         domain.OutboxRepository
	notifier     domain.Notifier
	redis        *redis.Client
	retryPolicy  RetryPolicy
	queue        chan models.NotificationTask
	pollInterval time.Duration
	batchSize    int
	logger       *zerolog.Logger
}

// NewNotificationWorker builds a worker with sane defaults. redisClient may be nil.
func NewNotificationWorker(
	repo domain.OutboxRepository,
	notifier domain.Notifier,
	redisClient *redis.Client,
	retry RetryPolicy,
	logger *zerolog.Logger,
) *NotificationWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &NotificationWorker{
		repo:         repo,
		notifier:     notifier,
		redis:        redisClient,
		retryPolicy:  retry.withDefaults(),
		queue:        make(chan models.NotificationTask, 128),
		pollInterval: 2 * time.Second,
		batchSize:    20,
		logger:       logger,
	}
}

// WithPolling overrides the polling cadence.
func (w *NotificationWorker) WithPolling(interval time.Duration, batchSize int) *NotificationWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	if batchSize > 0 {
		w.batchSize = batchSize
	}
	return w
}

// EnqueueTask persists task to DB and schedules it via redis or in-memory queue.
func (w *NotificationWorker) EnqueueTask(ctx context.Context, taskType string, event *models.PaymentEvent) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if event == nil || event.PaymentID == "" {
		return errors.New("payment id is required")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.NotificationTask{
		TaskType:  taskType,
		Kind:      string(event.Kind),
		PaymentID: event.PaymentID,
		Payload:   string(payload),
		Status:    models.TaskStatusPending,
	}
	if err := w.repo.CreateNotificationTask(ctx, &task); err != nil {
		return fmt.Errorf("persist notification task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("in-memory queue full, task left to polling")
	}
	return nil
}

// Handler subscribes the outbox to the event bus.
func (w *NotificationWorker) Handler() events.EventHandler {
	return func(event *events.Event) error {
		taskType, ok := taskTypes[event.Type]
		if !ok {
			return nil
		}
		payload, err := events.DecodePayment(event)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return w.EnqueueTask(ctx, taskType, payload)
	}
}

// Start launches main loop; stops when ctx is done.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("notification worker started")
	defer w.logger.Info().Msg("notification worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.repo.GetPendingNotificationTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending notification tasks")
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

func (w *NotificationWorker) tryLocalQueue() (models.NotificationTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.NotificationTask{}, false
	}
}

func (w *NotificationWorker) tryRedis(ctx context.Context) (models.NotificationTask, bool) {
	if w.redis == nil {
		return models.NotificationTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, redis.Nil) {
			w.logger.Warn().Err(err).Msg("redis BRPOP failed")
		}
		return models.NotificationTask{}, false
	}
	if len(res) != 2 {
		return models.NotificationTask{}, false
	}
	var task models.NotificationTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Warn().Err(err).Msg("decode redis task")
		return models.NotificationTask{}, false
	}
	return task, true
}

func (w *NotificationWorker) processTask(ctx context.Context, task *models.NotificationTask) {
	// Queue copies may be stale once the poller has handled the row.
	if current, err := w.repo.GetNotificationTask(ctx, task.ID); err == nil {
		if current.Status == models.TaskStatusCompleted || current.Status == models.TaskStatusFailed {
			return
		}
		*task = *current
	}

	event, err := decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.notifier.Notify(ctx, task, event); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.repo.UpdateNotificationTaskStatus(ctx, task.ID, models.TaskStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
	}
}

func (w *NotificationWorker) retryOrFail(ctx context.Context, task *models.NotificationTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		w.failTask(ctx, task, cause)
		return
	}

	next := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", next).Msg("notification delivery failed, will retry")
	if err := w.repo.UpdateNotificationTaskStatus(ctx, task.ID, models.TaskStatusRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
}

func (w *NotificationWorker) failTask(ctx context.Context, task *models.NotificationTask, cause error) {
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("payment_id", task.PaymentID).Msg("notification task failed")
	if err := w.repo.UpdateNotificationTaskStatus(ctx, task.ID, models.TaskStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	w.pushDeadLetter(ctx, task)
}

func decodePayload(raw string) (*models.PaymentEvent, error) {
	var event models.PaymentEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (w *NotificationWorker) pushRedis(ctx context.Context, task models.NotificationTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, redisQueueKey, data).Err()
}

func (w *NotificationWorker) pushDeadLetter(ctx context.Context, task *models.NotificationTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}
