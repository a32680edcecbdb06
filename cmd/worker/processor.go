package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/aws"
	"github.com/imrishuroy/storefront-payments/internal/idempotency"
	"github.com/imrishuroy/storefront-payments/internal/notifications"
)

const dedupScope = "notifications.event"

type Broadcaster interface {
	Send(ctx context.Context, ev notifications.Event) (int, error)
}

type IdempotencyStore interface {
	CreateIfNotExists(ctx context.Context, key, orderID string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// Processor fans queued notification events out to admins.
type Processor struct {
	idemp   IdempotencyStore
	fanOut  Broadcaster
	metrics *aws.Metrics
	logger  *zap.Logger
}

func NewProcessor(idemp IdempotencyStore, fanOut Broadcaster, metrics *aws.Metrics, logger *zap.Logger) *Processor {
	return &Processor{
		idemp:   idemp,
		fanOut:  fanOut,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "notifications_worker")),
	}
}

// Handle processes an SQS batch. Failed messages are reported individually
// so only they are redelivered.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("notification event failed", zap.String("message_id", rec.MessageId), zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var ev notifications.Event
	if err := json.Unmarshal([]byte(rec.Body), &ev); err != nil || ev.Type == "" {
		// redelivery cannot fix a malformed body
		p.logger.Error("dropping malformed notification event",
			zap.String("message_id", rec.MessageId),
			zap.String("body", rec.Body),
			zap.Error(err),
		)
		p.metrics.Count(ctx, "NotificationEventDropped", nil)
		return nil
	}
	if ev.EventID == "" {
		ev.EventID = rec.MessageId
	}
	key := idempotency.ScopedKey(dedupScope, ev.EventID)
	log := p.logger.With(zap.String("event_id", ev.EventID), zap.String("order_id", ev.OrderID))

	created, err := p.idemp.CreateIfNotExists(ctx, key, ev.OrderID)
	if err != nil {
		return fmt.Errorf("claim event: %w", err)
	}
	if !created {
		existing, err := p.idemp.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("read event record: %w", err)
		}
		if existing != nil && existing.Status == idempotency.StatusDone {
			log.Info("duplicate notification event skipped")
			return nil
		}
		// IN_PROGRESS: an earlier delivery died mid-way. Record ids derive
		// from the event id, so running again overwrites rather than duplicates.
		log.Warn("resuming notification event left in progress")
	}

	sent, err := p.fanOut.Send(ctx, ev)
	if err != nil {
		if mErr := p.idemp.MarkFailed(ctx, key, err.Error()); mErr != nil {
			log.Warn("failed to release event record", zap.Error(mErr))
		}
		return fmt.Errorf("fan out: %w", err)
	}

	if err := p.idemp.MarkDone(ctx, key, fmt.Sprintf(`{"notificationsSent":%d}`, sent), http.StatusOK); err != nil {
		// notifications exist; a redelivery would only rewrite them
		log.Warn("failed to mark event done", zap.Error(err))
	}
	log.Info("notification event processed", zap.String("type", string(ev.Type)), zap.Int("sent", sent))
	return nil
}
