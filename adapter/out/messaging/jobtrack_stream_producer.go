// Package messaging provides the Redis Streams job queue.
package messaging

import (
	"context"
	"fmt"
	"time"

	"jobtrack_server/core/domain"
	"jobtrack_server/core/port/out"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Stream names
const (
	StreamSync = "jobtrack:sync"

	// streamMaxLen caps the stream; acknowledged entries are only history.
	streamMaxLen = 10000
)

// RedisProducer implements out.SyncJobPublisher using Redis Streams.
type RedisProducer struct {
	client *redis.Client
}

func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client}
}

// PublishSync queues a sync run for the worker.
func (p *RedisProducer) PublishSync(ctx context.Context, job *domain.SyncJob) error {
	if job.QueuedAt.IsZero() {
		job.QueuedAt = time.Now().UTC()
	}
	return p.publish(ctx, StreamSync, job)
}

func (p *RedisProducer) publish(ctx context.Context, stream string, job any) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]any{"data": string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}
	return nil
}

var _ out.SyncJobPublisher = (*RedisProducer)(nil)
