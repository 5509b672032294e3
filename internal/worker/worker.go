// Package worker consumes segment tasks from RabbitMQ and executes them:
// synthesize the segment's image and narration, upload both, and report the
// terminal outcome back to the orchestrator. Deliveries are acknowledged
// manually; only infrastructure failures are requeued.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ruanpiscitelli/midiaapiv1/internal/domain"
	"github.com/Ruanpiscitelli/midiaapiv1/shared/rabbitmq"
)

// Completer receives segment outcomes and answers cancellation queries
type Completer interface {
	OnSegmentComplete(ctx context.Context, jobID string, ordinal int, res domain.SegmentResult) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
}

// SegmentStore is the persistence surface the worker needs. StartSegment
// reports whether the claim was taken and the delivery attempt count so
// far, including this one.
type SegmentStore interface {
	StartSegment(ctx context.Context, jobID string, ordinal int) (bool, int, error)
	UpdateSegmentHeartbeat(ctx context.Context, jobID string, ordinal int) error
}

// Processor turns one segment task into media
type Processor interface {
	Process(ctx context.Context, task *domain.SegmentTask) (domain.SegmentResult, error)
}

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	RabbitClient      *rabbitmq.Client
	Store             SegmentStore
	Completer         Completer
	Processor         Processor
	Concurrency       int
	PrefetchCount     int
	SegmentTimeout    time.Duration
	HeartbeatInterval time.Duration
	// MaxSegmentAttempts bounds deliveries per segment; once exceeded the
	// segment is recorded failed instead of requeued. Zero disables the cap.
	MaxSegmentAttempts int
}

// Worker consumes and executes segment tasks
type Worker struct {
	logger             *slog.Logger
	rabbitClient       *rabbitmq.Client
	store              SegmentStore
	completer          Completer
	processor          Processor
	concurrency        int
	prefetchCount      int
	segmentTimeout     time.Duration
	heartbeatInterval  time.Duration
	maxSegmentAttempts int
	workerID           string
	tasksChan          chan *domain.SegmentTask
	wg                 sync.WaitGroup
	stopChan           chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	return &Worker{
		logger:             cfg.Logger,
		rabbitClient:       cfg.RabbitClient,
		store:              cfg.Store,
		completer:          cfg.Completer,
		processor:          cfg.Processor,
		concurrency:        cfg.Concurrency,
		prefetchCount:      cfg.PrefetchCount,
		segmentTimeout:     cfg.SegmentTimeout,
		heartbeatInterval:  cfg.HeartbeatInterval,
		maxSegmentAttempts: cfg.MaxSegmentAttempts,
		workerID:           "worker-" + uuid.New().String()[:8],
		tasksChan:          make(chan *domain.SegmentTask),
		stopChan:           make(chan struct{}),
	}
}

// Start consumes tasks until the context is canceled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("segment_timeout", w.segmentTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker, waiting for in-flight tasks
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...",
		slog.String("worker_id", w.workerID),
	)
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
