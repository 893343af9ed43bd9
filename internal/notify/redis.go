package notify

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisQueue pushes events onto a Redis list consumed by notification workers.
type RedisQueue struct {
	client *redis.Client
	queue  string
}

// NewRedisQueue creates a RedisQueue writing to the named list.
func NewRedisQueue(client *redis.Client, queue string) *RedisQueue {
	return &RedisQueue{client: client, queue: queue}
}

// Publish enqueues the event.
func (q *RedisQueue) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := q.client.LPush(ctx, q.queue, payload).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", q.queue, err)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (q *RedisQueue) Close() error { return nil }
