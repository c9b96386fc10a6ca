package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"prichal/internal/domain"
	"prichal/internal/events"
	"prichal/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultQueueKey      = "prichal:notifications"
	defaultDeadLetterKey = "prichal:notifications:deadletter"
)

// NotificationWorker consumes notification_outbox tasks and hands them to the notifier.
type NotificationWorker struct {
	repo          domain.NotificationRepository
	notifier      domain.Notifier
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.NotificationTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewNotificationWorker builds a worker with sane defaults.
func NewNotificationWorker(repo domain.NotificationRepository, notifier domain.Notifier, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *NotificationWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &NotificationWorker{
		repo:          repo,
		notifier:      notifier,
		redis:         redisClient,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan models.NotificationTask, 128),
		redisQueueKey: defaultQueueKey,
		deadLetterKey: defaultDeadLetterKey,
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// WithQueueKeys overrides redis list names.
func (w *NotificationWorker) WithQueueKeys(queueKey, deadLetterKey string) *NotificationWorker {
	if queueKey != "" {
		w.redisQueueKey = queueKey
	}
	if deadLetterKey != "" {
		w.deadLetterKey = deadLetterKey
	}
	return w
}

// Subscribe forwards every notifiable event from the bus into the outbox.
func (w *NotificationWorker) Subscribe(bus *events.EventBus) {
	for _, eventType := range events.NotifiableEvents {
		bus.Subscribe(eventType, func(event *events.Event) error {
			return w.Enqueue(context.Background(), event)
		})
	}
}

// Enqueue persists the event to the outbox and schedules it via redis or in-memory queue.
func (w *NotificationWorker) Enqueue(ctx context.Context, event *events.Event) error {
	if event == nil || event.Type == "" {
		return errors.New("event type is required")
	}

	task := models.NotificationTask{
		EventType: event.Type,
		EntityID:  event.EntityID,
		Payload:   string(event.Payload),
		Status:    models.TaskStatusPending,
	}
	if err := w.repo.CreateNotificationTask(ctx, &task); err != nil {
		return fmt.Errorf("persist notification task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("Redis push failed, falling back to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		// Задача останется в outbox и будет подобрана опросом
		w.logger.Warn().Int64("task_id", task.ID).Msg("In-memory queue full, task left to polling")
	}
	return nil
}

// Start launches main loop; stops when ctx is done.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Notification worker started")
	defer w.logger.Info().Msg("Notification worker stopped")

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

		tasks, err := w.repo.GetPendingNotificationTasks(ctx, time.Now(), w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("Failed to fetch pending notification tasks")
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

// FailedTasks lists tasks that exhausted their retries.
func (w *NotificationWorker) FailedTasks(ctx context.Context) ([]models.NotificationTask, error) {
	return w.repo.GetFailedNotificationTasks(ctx)
}

func (w *NotificationWorker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
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
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
			return models.NotificationTask{}, false
		}
		w.logger.Error().Err(err).Msg("Redis BRPOP failed")
		return models.NotificationTask{}, false
	}
	if len(res) != 2 {
		return models.NotificationTask{}, false
	}
	var task models.NotificationTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("Failed to decode redis notification task")
		return models.NotificationTask{}, false
	}
	return task, true
}

func (w *NotificationWorker) processTask(ctx context.Context, task *models.NotificationTask) {
	if !json.Valid([]byte(task.Payload)) {
		w.failTask(ctx, task, errors.New("payload is not valid json"))
		return
	}

	if err := w.notifier.Notify(ctx, task.EventType, []byte(task.Payload)); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.repo.UpdateNotificationTaskStatus(ctx, task.ID, models.TaskStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark notification completed")
		return
	}
	w.logger.Debug().Int64("task_id", task.ID).Str("event", task.EventType).Msg("Notification delivered")
}

func (w *NotificationWorker) retryOrFail(ctx context.Context, task *models.NotificationTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := w.retryPolicy.NextRetryAt(time.Now(), attempt)
	if err := w.repo.UpdateNotificationTaskStatus(ctx, task.ID, models.TaskStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark notification for retry")
		return
	}
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", nextTime).Msg("Notification delivery failed, will retry")
}

func (w *NotificationWorker) failTask(ctx context.Context, task *models.NotificationTask, cause error) {
	if err := w.repo.UpdateNotificationTaskStatus(ctx, task.ID, models.TaskStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark notification failed")
	}
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("event", task.EventType).Msg("Notification moved to dead letter")
	w.pushDeadLetter(ctx, task)
}

func (w *NotificationWorker) pushRedis(ctx context.Context, task models.NotificationTask) error {
	if w.redis == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *NotificationWorker) pushDeadLetter(ctx context.Context, task *models.NotificationTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to encode dead letter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to push dead letter")
	}
}
