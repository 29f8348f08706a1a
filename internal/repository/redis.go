package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"companion/internal/config"
	"companion/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultQueueKey      = "notify:queue"
	DefaultDeadLetterKey = "notify:deadletter"
)

// RedisTaskQueue хранит задачи доставки в списке Redis (LPUSH/BRPOP).
type RedisTaskQueue struct {
	client        *redis.Client
	queueKey      string
	deadLetterKey string
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisTaskQueue(client *redis.Client) *RedisTaskQueue {
	return &RedisTaskQueue{
		client:        client,
		queueKey:      DefaultQueueKey,
		deadLetterKey: DefaultDeadLetterKey,
	}
}

func (q *RedisTaskQueue) Push(ctx context.Context, task models.DeliveryTask) error {
	if q.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := q.client.LPush(ctx, q.queueKey, data).Err(); err != nil {
		return fmt.Errorf("failed to push task to redis: %w", err)
	}
	return nil
}

// Pop ждет задачу до wait; (nil, nil) если очередь пуста.
func (q *RedisTaskQueue) Pop(ctx context.Context, wait time.Duration) (*models.DeliveryTask, error) {
	if q.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	// BRPOP принимает таймаут в целых секундах
	if wait < time.Second {
		wait = time.Second
	}
	res, err := q.client.BRPop(ctx, wait, q.queueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop task from redis: %w", err)
	}
	if len(res) != 2 {
		return nil, nil
	}

	var task models.DeliveryTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &task, nil
}

func (q *RedisTaskQueue) DeadLetter(ctx context.Context, task models.DeliveryTask) error {
	if q.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := q.client.LPush(ctx, q.deadLetterKey, data).Err(); err != nil {
		return fmt.Errorf("failed to push dead letter: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
