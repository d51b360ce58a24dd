package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

func queueKey(name string) string {
	return "queue:" + name
}

func processingKey(name string) string {
	return "queue:" + name + ":processing"
}

func resultKey(id string) string {
	return "task:" + id
}

// RedisBroker keeps each queue in a Redis list. Producers LPUSH and consumers
// BRPOPLPUSH into a processing list, so the queue is FIFO and a crashed consumer
// leaves its message behind for Requeue.
type RedisBroker struct {
	client redis.Cmdable
}

func NewRedisBroker(client redis.Cmdable) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Push(ctx context.Context, queue string, payload []byte) error {
	if err := b.client.LPush(ctx, queueKey(queue), payload).Err(); err != nil {
		return fmt.Errorf("redis: LPUSH %s: %w", queueKey(queue), err)
	}
	return nil
}

func (b *RedisBroker) Reserve(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	payload, err := b.client.BRPopLPush(ctx, queueKey(queue), processingKey(queue), timeout).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoMessage
	}
	if err != nil {
		return nil, fmt.Errorf("redis: BRPOPLPUSH %s: %w", queueKey(queue), err)
	}
	return payload, nil
}

func (b *RedisBroker) Ack(ctx context.Context, queue string, payload []byte) error {
	if err := b.client.LRem(ctx, processingKey(queue), 1, payload).Err(); err != nil {
		return fmt.Errorf("redis: LREM %s: %w", processingKey(queue), err)
	}
	return nil
}

func (b *RedisBroker) Requeue(ctx context.Context, queue string) (int, error) {
	moved := 0
	for {
		err := b.client.RPopLPush(ctx, processingKey(queue), queueKey(queue)).Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("redis: RPOPLPUSH %s: %w", processingKey(queue), err)
		}
		moved++
	}
}

// RedisResultStore keeps one JSON document per task, expiring after ttl.
type RedisResultStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisResultStore(client redis.Cmdable, ttl time.Duration) *RedisResultStore {
	return &RedisResultStore{client: client, ttl: ttl}
}

func (s *RedisResultStore) Set(ctx context.Context, result *TaskResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("redis: failed to encode result %s: %w", result.ID, err)
	}
	if err := s.client.Set(ctx, resultKey(result.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis: SET %s: %w", resultKey(result.ID), err)
	}
	return nil
}

func (s *RedisResultStore) Get(ctx context.Context, id string) (*TaskResult, error) {
	raw, err := s.client.Get(ctx, resultKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: GET %s: %w", resultKey(id), err)
	}
	var result TaskResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("redis: failed to decode result %s: %w", id, err)
	}
	return &result, nil
}
