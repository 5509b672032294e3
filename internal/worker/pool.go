package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case task, ok := <-w.tasksChan:
			if !ok {
				return
			}

			err := w.processTask(ctx, task)

			channel := w.rabbitClient.GetChannel()
			if channel == nil {
				w.logger.Error("Failed to get RabbitMQ channel for ACK/NACK",
					slog.String("worker_name", workerName),
					slog.String("job_id", task.JobID),
				)
				continue
			}

			if err != nil {
				requeue := shouldRequeueTask(err)
				w.logger.Error("Segment task failed",
					slog.String("worker_name", workerName),
					slog.String("job_id", task.JobID),
					slog.Int("ordinal", task.Ordinal),
					slog.Bool("requeue", requeue),
					slog.String("error", err.Error()),
				)

				if nackErr := channel.Nack(task.DeliveryTag, false, requeue); nackErr != nil {
					w.logger.Error("Failed to NACK message",
						slog.String("worker_name", workerName),
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			if ackErr := channel.Ack(task.DeliveryTag, false); ackErr != nil {
				w.logger.Error("Failed to ACK message",
					slog.String("worker_name", workerName),
					slog.String("job_id", task.JobID),
					slog.String("error", ackErr.Error()),
				)
			}
		}
	}
}

// shouldRequeueTask reports whether a failed task should be redelivered.
// Only infrastructure failures are; segment-level outcomes are already
// recorded by the time processTask returns nil.
func shouldRequeueTask(err error) bool {
	var retryable *RetryableError
	return errors.As(err, &retryable)
}
