// Package worker consumes carrier callback envelopes from RabbitMQ and feeds
// them through the dispatch engine on a bounded goroutine pool.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/renomarket/dispatch-be/internal/dispatch"
	"github.com/renomarket/dispatch-be/internal/queue"
	"github.com/renomarket/dispatch-be/shared/rabbitmq"
)

// Config holds worker configuration
type Config struct {
	Logger         *slog.Logger
	RabbitClient   *rabbitmq.Client
	Engine         *dispatch.Engine
	Concurrency    int
	PrefetchCount  int
	MessageTimeout time.Duration
}

// envelopeMessage pairs a decoded envelope with its delivery tag for ack/nack.
type envelopeMessage struct {
	Envelope    queue.Envelope
	DeliveryTag uint64
}

// Worker consumes the inbound message queue
type Worker struct {
	logger         *slog.Logger
	rabbitClient   *rabbitmq.Client
	engine         *dispatch.Engine
	concurrency    int
	prefetchCount  int
	messageTimeout time.Duration
	workerID       string
	messagesChan   chan *envelopeMessage
	wg             sync.WaitGroup
	stopChan       chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	return &Worker{
		logger:         cfg.Logger,
		rabbitClient:   cfg.RabbitClient,
		engine:         cfg.Engine,
		concurrency:    cfg.Concurrency,
		prefetchCount:  cfg.PrefetchCount,
		messageTimeout: cfg.MessageTimeout,
		workerID:       "dispatch-" + uuid.New().String()[:8],
		messagesChan:   make(chan *envelopeMessage),
		stopChan:       make(chan struct{}),
	}
}

// Start consumes the queue until the context is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting dispatch worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("message_timeout", w.messageTimeout),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping dispatch worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Dispatch worker stopped")
}
