package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/aws"
	"github.com/imrishuroy/storefront-payments/internal/config"
	"github.com/imrishuroy/storefront-payments/internal/idempotency"
	"github.com/imrishuroy/storefront-payments/internal/logging"
	"github.com/imrishuroy/storefront-payments/internal/notifications"
	"github.com/imrishuroy/storefront-payments/internal/retry"
	"github.com/imrishuroy/storefront-payments/internal/users"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWSRegion, cfg.AWSEndpoint)
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	var metrics *aws.Metrics
	if cfg.MetricsEnabled {
		metrics = aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace, logger)
	}

	retrier := retry.New(retry.Policy{
		Attempts:       cfg.Retry.Attempts,
		BaseDelay:      cfg.Retry.BaseDelay,
		AttemptTimeout: cfg.Retry.AttemptTimeout,
	}, retry.NewReporter(logger, cfg.Retry.ReportInterval))

	fanOut := notifications.NewFanOut(
		users.NewStore(clients.DynamoDB, cfg.UsersTable),
		notifications.NewStore(clients.DynamoDB, cfg.NotificationsTable),
		retrier, metrics, logger,
	)
	p := NewProcessor(idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL), fanOut, metrics, logger)

	// RUN_LOCAL=true processes one event from LOCAL_SQS_BODY and exits.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"event_id":"local-event-1","type":"new_order","order_id":"local-order-1","message":"New order #local-order-1 received"}`
		}
		resp, err := p.Handle(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if err != nil || len(resp.BatchItemFailures) > 0 {
			logger.Fatal("local event failed", zap.Error(err), zap.Int("failures", len(resp.BatchItemFailures)))
		}
		return
	}

	lambda.Start(p.Handle)
}
