package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/aws"
	"github.com/imrishuroy/storefront-payments/internal/idempotency"
	"github.com/imrishuroy/storefront-payments/internal/notifications"
	"github.com/imrishuroy/storefront-payments/internal/orders"
	"github.com/imrishuroy/storefront-payments/internal/payments"
	"github.com/imrishuroy/storefront-payments/internal/users"
	"github.com/imrishuroy/storefront-payments/internal/validation"
	"github.com/imrishuroy/storefront-payments/internal/webhook"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	UserIDHeader         = "X-User-Id"

	defaultWebhookBodyLimit = 1 << 20
)

// PaymentInitiator starts payments for orders.
type PaymentInitiator interface {
	InitiateCrypto(ctx context.Context, req payments.CryptoRequest) (*payments.CryptoIntent, error)
	InitiateCard(ctx context.Context, req payments.CardRequest) (*payments.CardIntent, error)
	InitiateManualPayPal(ctx context.Context, req payments.PayPalRequest) (*payments.ManualIntent, error)
}

// WebhookProcessor applies a signed provider callback.
type WebhookProcessor interface {
	Handle(ctx context.Context, body []byte, signature string) (*webhook.Result, error)
}

// Broadcaster sends one event to every admin and reports how many got it.
type Broadcaster interface {
	Send(ctx context.Context, ev notifications.Event) (int, error)
}

type OrderStore interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	CreateWithIdempotencyTransaction(ctx context.Context, idempotencyTable string, idempotencyItem interface{}, order orders.Order, ttlWindow time.Duration) error
	UpdateStatus(ctx context.Context, orderID string, expectedStatus, newStatus orders.Status) error
	ConfirmManualPayment(ctx context.Context, orderID string) error
}

type NotificationStore interface {
	ListForUser(ctx context.Context, userID string, limit int) ([]notifications.Notification, error)
	MarkRead(ctx context.Context, userID string, ids []string) (int, error)
}

type UserGetter interface {
	Get(ctx context.Context, userID string) (*users.User, error)
}

type IdempotencyStore interface {
	NewRecord(key, orderID string) idempotency.Record
	TableName() string
	CreateIfNotExists(ctx context.Context, key, orderID string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// Deps groups everything the HTTP layer needs. Notifier is used for
// best-effort events raised by handlers; Broadcaster serves the explicit
// admin notification endpoint.
type Deps struct {
	Payments       PaymentInitiator
	Webhooks       WebhookProcessor
	Broadcaster    Broadcaster
	Notifier       notifications.Notifier
	Orders         OrderStore
	Notifications  NotificationStore
	Users          UserGetter
	Idempotency    IdempotencyStore
	IdempotencyTTL time.Duration
	Metrics        *aws.Metrics
	Logger         *zap.Logger

	WebhookBodyLimit int64
}

// RegisterRoutes mounts every API route on r.
func RegisterRoutes(r *gin.Engine, d Deps) {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.WebhookBodyLimit <= 0 {
		d.WebhookBodyLimit = defaultWebhookBodyLimit
	}
	v := validation.New()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	registerOrderRoutes(api, d, v)
	registerPaymentRoutes(api, d, v)
	registerWebhookRoutes(api, d)
	registerNotificationRoutes(api, d, v)

	admin := api.Group("/admin", RequireAdmin(d.Users, d.Logger))
	registerAdminRoutes(admin, d, v)
}
