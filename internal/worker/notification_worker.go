package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"companion/internal/domain"
	"companion/internal/metrics"
	"companion/internal/models"
	"companion/internal/notify"

	"github.com/rs/zerolog"
)

// Store is the persistence the worker needs.
type Store interface {
	domain.DeliveryTaskRepository
	domain.NotificationRepository
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// NotificationWorker delivers queued notifications. Tasks come from the
// queue first; when it is idle the worker polls the database for pending
// and due retry tasks. Delivery never touches booking state.
type NotificationWorker struct {
	store        Store
	queue        domain.TaskQueue
	deliverer    domain.Deliverer
	retryPolicy  RetryPolicy
	popWait      time.Duration
	pollInterval time.Duration
	batchSize    int
	logger       *zerolog.Logger
	now          func() time.Time
}

func NewNotificationWorker(
	store Store,
	queue domain.TaskQueue,
	deliverer domain.Deliverer,
	retry RetryPolicy,
	logger *zerolog.Logger,
) *NotificationWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &NotificationWorker{
		store:        store,
		queue:        queue,
		deliverer:    deliverer,
		retryPolicy:  retry.withDefaults(),
		popWait:      time.Second,
		pollInterval: 2 * time.Second,
		batchSize:    20,
		logger:       logger,
		now:          time.Now,
	}
}

// Start launches main loop; stops when ctx is done.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Notification worker started")
	defer w.logger.Info().Msg("Notification worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		task, err := w.queue.Pop(ctx, w.popWait)
		if err != nil && ctx.Err() == nil {
			w.logger.Warn().Err(err).Msg("Queue pop failed")
		}
		if task != nil {
			w.processTask(ctx, task)
			continue
		}

		if n := w.pollOnce(ctx); n == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.pollInterval):
			}
		}
	}
}

// pollOnce processes one batch of due tasks from the database.
func (w *NotificationWorker) pollOnce(ctx context.Context) int {
	tasks, err := w.store.GetPendingDeliveryTasks(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("Fetch pending delivery tasks failed")
		}
		return 0
	}
	for i := range tasks {
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks)
}

func (w *NotificationWorker) processTask(ctx context.Context, task *models.DeliveryTask) {
	// задача могла быть уже обработана через опрос базы
	current, err := w.store.GetDeliveryTask(ctx, task.ID)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Load delivery task failed")
		return
	}
	if current.Status == models.TaskStatusCompleted || current.Status == models.TaskStatusFailed {
		return
	}
	if current.NextRetryAt != nil && current.NextRetryAt.After(w.now()) {
		return
	}

	n, err := w.store.GetNotification(ctx, current.NotificationID)
	if err != nil {
		w.fail(ctx, current, fmt.Errorf("load notification: %w", err))
		return
	}
	user, err := w.store.GetUserByID(ctx, n.UserID)
	if err != nil {
		w.retryOrFail(ctx, current, fmt.Errorf("load recipient: %w", err))
		return
	}

	err = w.deliverer.Deliver(ctx, user, n)
	switch {
	case err == nil:
		if err := w.store.MarkNotificationDelivered(ctx, n.ID, w.now()); err != nil {
			w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("Mark delivered failed")
		}
		w.complete(ctx, current, "")
		metrics.IncDelivery("delivered")
	case errors.Is(err, notify.ErrNoChannel):
		w.complete(ctx, current, err.Error())
		metrics.IncDelivery("skipped")
	default:
		w.retryOrFail(ctx, current, err)
	}
}

func (w *NotificationWorker) complete(ctx context.Context, task *models.DeliveryTask, note string) {
	if err := w.store.UpdateDeliveryTaskStatus(ctx, task.ID, models.TaskStatusCompleted, note, nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Mark task completed failed")
	}
}

func (w *NotificationWorker) retryOrFail(ctx context.Context, task *models.DeliveryTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.fail(ctx, task, cause)
		return
	}

	next := w.now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.store.UpdateDeliveryTaskStatus(ctx, task.ID, models.TaskStatusRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Mark task retry failed")
	}
	metrics.IncDelivery("retry")
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", next).Msg("Delivery failed, will retry")
}

func (w *NotificationWorker) fail(ctx context.Context, task *models.DeliveryTask, cause error) {
	if err := w.store.UpdateDeliveryTaskStatus(ctx, task.ID, models.TaskStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Update failed task status")
	}

	msg := cause.Error()
	task.LastError = &msg
	task.Status = models.TaskStatusFailed
	if err := w.queue.DeadLetter(ctx, *task); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Dead letter push failed")
	}
	metrics.IncDelivery("failed")
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Msg("Delivery task dead-lettered")
}
