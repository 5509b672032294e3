package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Ruanpiscitelli/midiaapiv1/internal/domain"
)

// setupConsumer starts consuming from the segment task queue with the
// configured prefetch window.
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	deliveries, err := w.rabbitClient.Consume(w.workerID, w.prefetchCount)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	return deliveries, nil
}

// startMessageDispatcher reads deliveries and hands parsed tasks to the
// worker pool. Malformed messages are nacked without requeue; a
// redelivered copy would be equally malformed.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			task, err := parseSegmentTask(delivery.Body)
			if err != nil {
				w.logger.Error("Discarding malformed segment task",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}
			task.DeliveryTag = delivery.DeliveryTag

			select {
			case w.tasksChan <- task:
				w.logger.Debug("Segment task dispatched to worker pool",
					slog.String("job_id", task.JobID),
					slog.Int("ordinal", task.Ordinal),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching task")
				// Requeue so another consumer picks it up
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}

// parseSegmentTask validates and decodes a task message body
func parseSegmentTask(body []byte) (*domain.SegmentTask, error) {
	var task domain.SegmentTask
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, fmt.Errorf("invalid task JSON: %w", err)
	}

	if _, err := uuid.Parse(task.JobID); err != nil {
		return nil, fmt.Errorf("invalid job_id %q: %w", task.JobID, err)
	}
	if task.Ordinal < 0 {
		return nil, fmt.Errorf("invalid ordinal %d", task.Ordinal)
	}
	if task.ImagePrompt == "" || task.Narration == "" {
		return nil, fmt.Errorf("task is missing segment inputs")
	}

	return &task, nil
}
