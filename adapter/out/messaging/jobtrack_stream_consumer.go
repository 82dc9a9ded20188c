package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// JobHandler processes jobs from streams. A nil return acknowledges the entry.
type JobHandler interface {
	Handle(ctx context.Context, stream string, data []byte) error
}

// Consumer reads a Redis Streams consumer group and hands entries to a JobHandler.
// Entries left pending by a crashed consumer are reclaimed after pendingIdleTime
// and moved to dlq:<stream> once they exceed maxRetries deliveries.
type Consumer struct {
	client   *redis.Client
	group    string
	consumer string
	streams  []string
	handler  JobHandler
	log      zerolog.Logger

	pendingCheckInterval time.Duration
	pendingIdleTime      time.Duration
	maxRetries           int
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Group    string
	Consumer string
	Streams  []string
	Handler  JobHandler
	Logger   zerolog.Logger

	PendingCheckInterval time.Duration
	PendingIdleTime      time.Duration
	MaxRetries           int
}

func NewConsumer(client *redis.Client, cfg *ConsumerConfig) *Consumer {
	c := &Consumer{
		client:               client,
		group:                cfg.Group,
		consumer:             cfg.Consumer,
		streams:              cfg.Streams,
		handler:              cfg.Handler,
		log:                  cfg.Logger.With().Str("component", "stream_consumer").Logger(),
		pendingCheckInterval: cfg.PendingCheckInterval,
		pendingIdleTime:      cfg.PendingIdleTime,
		maxRetries:           cfg.MaxRetries,
	}
	if c.pendingCheckInterval == 0 {
		c.pendingCheckInterval = 30 * time.Second
	}
	// A sync run may take up to its run timeout; reclaiming earlier would
	// start a second run of the same job.
	if c.pendingIdleTime == 0 {
		c.pendingIdleTime = 10 * time.Minute
	}
	if c.maxRetries == 0 {
		c.maxRetries = 3
	}
	return c
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if len(c.streams) == 0 {
		return errors.New("consumer has no streams")
	}
	c.log.Info().
		Str("group", c.group).
		Str("consumer", c.consumer).
		Strs("streams", c.streams).
		Msg("starting consumer")

	for _, stream := range c.streams {
		c.ensureGroup(ctx, stream)
	}

	go c.reclaimLoop(ctx)

	backoff := time.Second
	for ctx.Err() == nil {
		batches, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  readGroupStreams(c.streams),
			Count:    readCount,
			Block:    readBlock,
		}).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				continue
			}
			c.log.Error().Err(err).Dur("backoff", backoff).Msg("error reading from streams")
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			continue
		}

		for _, batch := range batches {
			for _, msg := range batch.Messages {
				c.deliver(ctx, batch.Stream, msg)
			}
		}
	}
	return ctx.Err()
}

const (
	readCount    = 10
	readBlock    = 5 * time.Second
	pendingBatch = 100
)

// deliver hands one entry to the handler and acknowledges it on success. A
// failed entry stays pending and is retried by the reclaim loop.
func (c *Consumer) deliver(ctx context.Context, stream string, msg redis.XMessage) {
	log := c.log.With().Str("stream", stream).Str("id", msg.ID).Logger()

	if err := c.processMessage(ctx, stream, msg); err != nil {
		log.Error().Err(err).Msg("error processing message")
		return
	}
	if err := c.client.XAck(ctx, stream, c.group, msg.ID).Err(); err != nil {
		log.Error().Err(err).Msg("error acknowledging message")
	}
}

func (c *Consumer) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pendingCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, stream := range c.streams {
				c.reclaim(ctx, stream)
			}
		}
	}
}

// reclaim takes over entries idle longer than pendingIdleTime. Entries already
// delivered maxRetries times go to the dead letter stream instead.
func (c *Consumer) reclaim(ctx context.Context, stream string) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  c.group,
		Idle:   c.pendingIdleTime,
		Start:  "-",
		End:    "+",
		Count:  pendingBatch,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Error().Err(err).Str("stream", stream).Msg("error listing pending messages")
		}
		return
	}

	retry, exhausted := partitionPending(pending, c.maxRetries)

	for _, id := range exhausted {
		c.log.Warn().Str("stream", stream).Str("id", id).Int("max_retries", c.maxRetries).
			Msg("message exceeded max retries, moving to DLQ")
		if err := c.deadLetter(ctx, stream, id); err != nil {
			c.log.Error().Err(err).Str("id", id).Msg("error moving message to DLQ")
		}
	}

	if len(retry) == 0 {
		return
	}
	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  c.pendingIdleTime,
		Messages: retry,
	}).Result()
	if err != nil {
		c.log.Error().Err(err).Str("stream", stream).Int("count", len(retry)).Msg("error claiming messages")
		return
	}
	for _, msg := range claimed {
		c.log.Info().Str("stream", stream).Str("id", msg.ID).Msg("reprocessing pending message")
		c.deliver(ctx, stream, msg)
	}
}

// partitionPending splits pending entries into ids to claim again and ids that
// have used up their deliveries.
func partitionPending(pending []redis.XPendingExt, maxRetries int) (retry, exhausted []string) {
	for _, p := range pending {
		if int(p.RetryCount) >= maxRetries {
			exhausted = append(exhausted, p.ID)
			continue
		}
		retry = append(retry, p.ID)
	}
	return retry, exhausted
}

func (c *Consumer) ensureGroup(ctx context.Context, stream string) {
	err := c.client.XGroupCreateMkStream(ctx, stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		c.log.Warn().Err(err).Str("stream", stream).Msg("error creating consumer group")
	}
}

// readGroupStreams builds the XREADGROUP stream list: all names, then one ">" per name.
func readGroupStreams(streams []string) []string {
	args := make([]string, len(streams)*2)
	for i, stream := range streams {
		args[i] = stream
		args[len(streams)+i] = ">"
	}
	return args
}

// processMessage unwraps the "data" field written by RedisProducer.
func (c *Consumer) processMessage(ctx context.Context, stream string, msg redis.XMessage) error {
	raw, ok := msg.Values["data"]
	if !ok {
		return errors.New("invalid message format: missing data field")
	}
	data, ok := raw.(string)
	if !ok {
		return fmt.Errorf("invalid message format: data is %T, want string", raw)
	}
	return c.handler.Handle(ctx, stream, []byte(data))
}

// DeadLetterStream names the stream that receives exhausted entries of stream.
func DeadLetterStream(stream string) string {
	return "dlq:" + stream
}

// deadLetter copies the entry to the dead letter stream and acknowledges the
// original in one transaction.
func (c *Consumer) deadLetter(ctx context.Context, stream, id string) error {
	entries, err := c.client.XRange(ctx, stream, id, id).Result()
	if err != nil {
		return fmt.Errorf("read %s from %s: %w", id, stream, err)
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(entries) > 0 {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: DeadLetterStream(stream),
				MaxLen: streamMaxLen,
				Approx: true,
				Values: deadLetterValues(stream, c.group, c.consumer, entries[0], time.Now()),
			})
		}
		// A trimmed entry has nothing left to copy, but must still leave the PEL.
		pipe.XAck(ctx, stream, c.group, id)
		return nil
	})
	return err
}

func deadLetterValues(stream, group, consumer string, entry redis.XMessage, now time.Time) map[string]any {
	values := map[string]any{
		"original_stream": stream,
		"original_id":     entry.ID,
		"failed_at":       now.UTC().Format(time.RFC3339),
		"consumer":        consumer,
		"group":           group,
	}
	for k, v := range entry.Values {
		values["original_"+k] = v
	}
	return values
}
