package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ruanpiscitelli/midiaapiv1/internal/domain"
)

// processTask runs one segment task end to end: claim, synthesize, report.
// A nil return means the delivery can be acked - either the work is done or
// the task is moot (duplicate, cancelled job, unknown job). A RetryableError
// means infrastructure got in the way and the delivery should requeue.
func (w *Worker) processTask(ctx context.Context, task *domain.SegmentTask) error {
	w.logger.Info("Processing segment task",
		slog.String("job_id", task.JobID),
		slog.Int("ordinal", task.Ordinal),
		slog.String("worker_id", w.workerID),
	)

	cancelled, err := w.completer.IsCancelled(ctx, task.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			// Job record is gone; the task has nothing to attach to
			w.logger.Warn("Dropping task for unknown job",
				slog.String("job_id", task.JobID),
			)
			return nil
		}
		return NewRetryableError(fmt.Errorf("failed to check job state: %w", err))
	}
	if cancelled {
		w.logger.Info("Skipping segment of cancelled job",
			slog.String("job_id", task.JobID),
			slog.Int("ordinal", task.Ordinal),
		)
		return nil
	}

	claimed, attempts, err := w.store.StartSegment(ctx, task.JobID, task.Ordinal)
	if err != nil {
		return NewRetryableError(fmt.Errorf("failed to claim segment: %w", err))
	}
	if !claimed {
		// Already terminal: this is a redelivered task. The terminal record
		// exists, but the previous report may have died before the job-level
		// finalize check ran, and this delivery is the only retry the
		// substrate gives us - report again so the orchestrator re-evaluates.
		w.logger.Info("Segment already resolved, re-reporting for job evaluation",
			slog.String("job_id", task.JobID),
			slog.Int("ordinal", task.Ordinal),
		)
		if err := w.completer.OnSegmentComplete(ctx, task.JobID, task.Ordinal, domain.SegmentResult{}); err != nil {
			return NewRetryableError(fmt.Errorf("failed to re-report resolved segment: %w", err))
		}
		return nil
	}

	if w.maxSegmentAttempts > 0 && attempts > w.maxSegmentAttempts {
		// Every earlier delivery hit an infrastructure error or timed out;
		// record the segment failed instead of requeueing forever.
		w.logger.Warn("Segment delivery attempts exhausted, recording failure",
			slog.String("job_id", task.JobID),
			slog.Int("ordinal", task.Ordinal),
			slog.Int("attempts", attempts),
		)
		res := domain.SegmentResult{
			Succeeded:    false,
			ErrorMessage: fmt.Sprintf("gave up after %d delivery attempts", attempts),
		}
		if err := w.completer.OnSegmentComplete(ctx, task.JobID, task.Ordinal, res); err != nil {
			return NewRetryableError(fmt.Errorf("failed to report exhausted segment: %w", err))
		}
		return nil
	}

	taskCtx, cancel := context.WithTimeout(ctx, w.segmentTimeout)
	defer cancel()

	heartbeatDone := make(chan struct{})
	go w.sendSegmentHeartbeat(taskCtx, task.JobID, task.Ordinal, heartbeatDone)
	defer close(heartbeatDone)

	result, err := w.processor.Process(taskCtx, task)
	if err != nil {
		// Infrastructure failure: the segment stays running and the
		// redelivered task will claim it again.
		return NewRetryableError(fmt.Errorf("segment processing aborted: %w", err))
	}

	// A cancel may have landed while media was being produced; the result
	// no longer matters and reporting it would only churn the store.
	cancelled, err = w.completer.IsCancelled(ctx, task.JobID)
	if err == nil && cancelled {
		w.logger.Info("Job cancelled during segment processing, discarding result",
			slog.String("job_id", task.JobID),
			slog.Int("ordinal", task.Ordinal),
		)
		return nil
	}

	if err := w.completer.OnSegmentComplete(ctx, task.JobID, task.Ordinal, result); err != nil {
		return NewRetryableError(fmt.Errorf("failed to report segment completion: %w", err))
	}

	w.logger.Info("Segment task finished",
		slog.String("job_id", task.JobID),
		slog.Int("ordinal", task.Ordinal),
		slog.Bool("succeeded", result.Succeeded),
	)

	return nil
}

// sendSegmentHeartbeat periodically refreshes the segment's heartbeat
// timestamp while it is being processed.
func (w *Worker) sendSegmentHeartbeat(ctx context.Context, jobID string, ordinal int, done <-chan struct{}) {
	interval := w.heartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.UpdateSegmentHeartbeat(ctx, jobID, ordinal); err != nil {
				w.logger.Warn("Failed to update segment heartbeat",
					slog.String("job_id", jobID),
					slog.Int("ordinal", ordinal),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
