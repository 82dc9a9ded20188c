package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"jobtrack_server/adapter/in/worker"
	"jobtrack_server/adapter/out/messaging"
	"jobtrack_server/config"
	"jobtrack_server/core/domain"
	"jobtrack_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const consumerGroup = "jobtrack-workers"

// Worker runs queued sync jobs: a Redis Streams consumer feeding the pool.
type Worker struct {
	pool     *worker.Pool
	consumer *messaging.Consumer
	zlog     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(cfg *config.Config, deps *Dependencies) *Worker {
	zlog := logger.Default().Zerolog().With().Str("component", "worker").Logger()

	poolConfig := worker.DefaultPoolConfig()
	if cfg.WorkerMax > 0 {
		poolConfig.Workers = cfg.WorkerMax
	}
	if cfg.WorkerQueueSize > 0 {
		poolConfig.WorkerChanSize = cfg.WorkerQueueSize
	}
	if cfg.WorkerJobTimeout > 0 {
		poolConfig.JobTimeout = cfg.WorkerJobTimeout
	}
	if cfg.WorkerMaxRetries > 0 {
		poolConfig.MaxRetries = cfg.WorkerMaxRetries
	}

	handler := worker.NewHandler(worker.NewSyncProcessor(deps.Orchestrator))
	pool := worker.NewPool(handler, poolConfig, zlog)

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		pool:   pool,
		zlog:   zlog,
		ctx:    ctx,
		cancel: cancel,
	}

	w.consumer = messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
		Group:      consumerGroup,
		Consumer:   cfg.WorkerID,
		Streams:    []string{messaging.StreamSync},
		Handler:    &streamHandler{submit: pool.Submit},
		Logger:     zlog,
		MaxRetries: cfg.ConsumerMaxRetries,
	})

	logger.Info("[Worker] configured: workers=%d, queue=%d, consumer=%s", poolConfig.Workers, poolConfig.WorkerChanSize, cfg.WorkerID)
	return w
}

func (w *Worker) Start() error {
	if err := w.pool.Start(); err != nil {
		return fmt.Errorf("start pool: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.zlog.Info().Str("stream", messaging.StreamSync).Msg("Starting Redis Stream Consumer")
		if err := w.consumer.Run(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.zlog.Error().Err(err).Msg("Redis Stream Consumer error")
		}
	}()
	return nil
}

// Stop stops reading new entries, then drains the pool.
func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
	w.pool.Stop()
}

func (w *Worker) GetMetrics() worker.PoolMetrics {
	return w.pool.GetMetrics()
}

// =============================================================================
// Stream Handler
// =============================================================================

// streamHandler adapts stream entries to pool messages. An entry is
// acknowledged once the pool has accepted it. Submit blocks while the queue
// is full, so the only refusal is a stopped pool; that entry stays pending
// and is reclaimed by another consumer.
type streamHandler struct {
	submit func(*worker.Message) bool
}

var errPoolStopped = errors.New("worker pool is not running")

func (h *streamHandler) Handle(ctx context.Context, stream string, data []byte) error {
	if stream != messaging.StreamSync {
		logger.Warn("[Worker.streamHandler] dropping entry from unknown stream %s", stream)
		return nil
	}

	var job domain.SyncJob
	if err := json.Unmarshal(data, &job); err != nil {
		// Malformed entries can never succeed; acknowledge and drop them.
		logger.WithError(err).Warn("[Worker.streamHandler] dropping malformed sync job")
		return nil
	}

	if !h.submit(worker.NewSyncMessage(&job)) {
		return errPoolStopped
	}
	return nil
}
