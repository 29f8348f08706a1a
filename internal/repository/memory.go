package repository

import (
	"context"
	"sync"
	"time"

	"companion/internal/models"
)

// MemoryTaskQueue is the in-process fallback queue. Tasks dropped when it is
// full stay pending in the database and are picked up by polling.
type MemoryTaskQueue struct {
	queue chan models.DeliveryTask

	mu         sync.Mutex
	deadLetter []models.DeliveryTask
}

func NewMemoryTaskQueue(size int) *MemoryTaskQueue {
	if size <= 0 {
		size = models.WorkerQueueSize
	}
	return &MemoryTaskQueue{queue: make(chan models.DeliveryTask, size)}
}

func (q *MemoryTaskQueue) Push(_ context.Context, task models.DeliveryTask) error {
	select {
	case q.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryTaskQueue) Pop(ctx context.Context, wait time.Duration) (*models.DeliveryTask, error) {
	select {
	case t := <-q.queue:
		return &t, nil
	default:
	}
	if wait <= 0 {
		return nil, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case t := <-q.queue:
		return &t, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryTaskQueue) DeadLetter(_ context.Context, task models.DeliveryTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLetter = append(q.deadLetter, task)
	return nil
}

func (q *MemoryTaskQueue) DeadLetters() []models.DeliveryTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.DeliveryTask(nil), q.deadLetter...)
}

func (q *MemoryTaskQueue) Len() int {
	return len(q.queue)
}
