package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/aws"
)

// QueueNotifier hands events to SQS; the worker performs the fan-out.
type QueueNotifier struct {
	publisher *aws.Publisher
	logger    *zap.Logger
}

func NewQueueNotifier(publisher *aws.Publisher, logger *zap.Logger) *QueueNotifier {
	return &QueueNotifier{
		publisher: publisher,
		logger:    logger.With(zap.String("component", "notifications_queue")),
	}
}

func (q *QueueNotifier) Notify(ctx context.Context, ev Event) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	msgID, err := q.publisher.PublishJSON(ctx, ev, map[string]string{
		"event_id":   ev.EventID,
		"event_type": string(ev.Type),
		"order_id":   ev.OrderID,
	})
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	q.logger.Debug("notification enqueued",
		zap.String("event_id", ev.EventID),
		zap.String("message_id", msgID),
	)
	return nil
}
