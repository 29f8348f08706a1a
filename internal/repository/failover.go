package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"companion/internal/domain"
	"companion/internal/models"

	"github.com/rs/zerolog"
)

var ErrQueueFull = errors.New("task queue is full")

const recheckInterval = time.Minute

// FailoverTaskQueue пишет в основную очередь (Redis), а при ее отказе
// переключается на запасную и раз в минуту пробует вернуться.
type FailoverTaskQueue struct {
	primary   domain.TaskQueue
	fallback  domain.TaskQueue
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverTaskQueue(primary, fallback domain.TaskQueue, logger *zerolog.Logger) *FailoverTaskQueue {
	return &FailoverTaskQueue{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// usePrimary сообщает, стоит ли обращаться к основной очереди.
func (q *FailoverTaskQueue) usePrimary() bool {
	if !q.isDown.Load() {
		return true
	}
	return q.now().Sub(time.Unix(0, q.lastCheck.Load())) > recheckInterval
}

func (q *FailoverTaskQueue) markDown(err error) {
	if !q.isDown.Swap(true) {
		q.logger.Error().Err(err).Msg("Primary task queue failed, falling back to memory")
	}
	q.lastCheck.Store(q.now().UnixNano())
}

func (q *FailoverTaskQueue) markUp() {
	if q.isDown.Swap(false) {
		q.logger.Info().Msg("Primary task queue recovered")
	}
}

func (q *FailoverTaskQueue) Push(ctx context.Context, task models.DeliveryTask) error {
	if q.usePrimary() {
		err := q.primary.Push(ctx, task)
		if err == nil {
			q.markUp()
			return nil
		}
		q.markDown(err)
	}
	return q.fallback.Push(ctx, task)
}

func (q *FailoverTaskQueue) Pop(ctx context.Context, wait time.Duration) (*models.DeliveryTask, error) {
	// запасная очередь может хранить задачи, попавшие туда во время отказа
	if t, err := q.fallback.Pop(ctx, 0); t != nil || err != nil {
		return t, err
	}

	if q.usePrimary() {
		t, err := q.primary.Pop(ctx, wait)
		if err == nil {
			q.markUp()
			return t, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		q.markDown(err)
	}
	return q.fallback.Pop(ctx, wait)
}

func (q *FailoverTaskQueue) DeadLetter(ctx context.Context, task models.DeliveryTask) error {
	if q.usePrimary() {
		err := q.primary.DeadLetter(ctx, task)
		if err == nil {
			return nil
		}
		q.markDown(err)
	}
	return q.fallback.DeadLetter(ctx, task)
}

// Degraded reports whether the fallback queue is in use.
func (q *FailoverTaskQueue) Degraded() bool {
	return q.isDown.Load()
}
