package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/aws"
	"github.com/imrishuroy/storefront-payments/internal/config"
	"github.com/imrishuroy/storefront-payments/internal/handlers"
	"github.com/imrishuroy/storefront-payments/internal/idempotency"
	"github.com/imrishuroy/storefront-payments/internal/logging"
	"github.com/imrishuroy/storefront-payments/internal/notifications"
	"github.com/imrishuroy/storefront-payments/internal/orders"
	"github.com/imrishuroy/storefront-payments/internal/payments"
	"github.com/imrishuroy/storefront-payments/internal/retry"
	"github.com/imrishuroy/storefront-payments/internal/users"
	"github.com/imrishuroy/storefront-payments/internal/webhook"
)

func setupRouter(cfg *config.Config, clients *aws.AWSClients, logger *zap.Logger) *gin.Engine {
	var metrics *aws.Metrics
	if cfg.MetricsEnabled {
		metrics = aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace, logger)
	}

	retrier := retry.New(retry.Policy{
		Attempts:       cfg.Retry.Attempts,
		BaseDelay:      cfg.Retry.BaseDelay,
		AttemptTimeout: cfg.Retry.AttemptTimeout,
	}, retry.NewReporter(logger, cfg.Retry.ReportInterval))

	orderStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable)
	userStore := users.NewStore(clients.DynamoDB, cfg.UsersTable)
	notificationStore := notifications.NewStore(clients.DynamoDB, cfg.NotificationsTable)
	fanOut := notifications.NewFanOut(userStore, notificationStore, retrier, metrics, logger)

	// events raised by the webhook and handlers go through the queue when one
	// is configured so a slow fan-out never holds up the response
	var notifier notifications.Notifier = fanOut
	if cfg.NotificationsQueueURL != "" {
		notifier = notifications.NewQueueNotifier(aws.NewPublisher(clients.SQS, cfg.NotificationsQueueURL), logger)
	}

	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}
	var crypto payments.CryptoGateway
	if cfg.NOWPayments.APIKey != "" {
		crypto = payments.NewNOWPaymentsClient(cfg.NOWPayments.BaseURL, cfg.NOWPayments.APIKey, httpClient)
	}
	var card payments.CardProcessor
	if cfg.MoneyMotion.APIKey != "" {
		card = payments.NewMoneyMotionClient(cfg.MoneyMotion.BaseURL, cfg.MoneyMotion.APIKey, httpClient)
	}

	svc := payments.NewService(orderStore, crypto, card, retrier, metrics, logger, payments.Options{
		AppBaseURL:          cfg.AppBaseURL,
		PayPalBusinessEmail: cfg.PayPal.BusinessEmail,
	})

	r := gin.New()
	r.Use(gin.Recovery())

	handlers.RegisterRoutes(r, handlers.Deps{
		Payments:       svc,
		Webhooks:       webhook.NewReconciler(cfg.NOWPayments.WebhookSecret, orderStore, notifier, metrics, logger),
		Broadcaster:    fanOut,
		Notifier:       notifier,
		Orders:         orderStore,
		Notifications:  notificationStore,
		Users:          userStore,
		Idempotency:    idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL),
		IdempotencyTTL: cfg.IdempotencyTTL,
		Metrics:        metrics,
		Logger:         logger,
	})
	return r
}

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	for _, w := range cfg.Warnings() {
		logger.Warn("payment configuration incomplete", zap.String("detail", w))
	}

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWSRegion, cfg.AWSEndpoint)
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	r := setupRouter(cfg, clients, logger)

	// RUN_LOCAL=true serves plain HTTP for development.
	if cfg.RunLocal {
		runLocal(r, cfg.HTTPAddr, logger)
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

func runLocal(r *gin.Engine, addr string, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("running local server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
