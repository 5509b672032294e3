package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Ruanpiscitelli/midiaapiv1/internal/domain"
	"github.com/Ruanpiscitelli/midiaapiv1/shared/rabbitmq"
)

// AMQPDispatcher publishes segment tasks to RabbitMQ. Delivery is
// at-least-once: the broker may redeliver, and consumers detect
// duplicates through the segment's stored state.
type AMQPDispatcher struct {
	client *rabbitmq.Client
	logger *slog.Logger
}

// NewAMQPDispatcher creates a dispatcher on top of an established RabbitMQ client
func NewAMQPDispatcher(client *rabbitmq.Client, logger *slog.Logger) *AMQPDispatcher {
	return &AMQPDispatcher{
		client: client,
		logger: logger,
	}
}

// Dispatch publishes one segment task
func (d *AMQPDispatcher) Dispatch(ctx context.Context, task domain.SegmentTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal segment task: %w", err)
	}

	if err := d.client.Publish(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to dispatch segment task: %w", err)
	}

	d.logger.Debug("Segment task dispatched",
		slog.String("job_id", task.JobID),
		slog.Int("ordinal", task.Ordinal),
	)

	return nil
}
