package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/aws"
	"github.com/imrishuroy/storefront-payments/internal/notifications"
	"github.com/imrishuroy/storefront-payments/internal/orders"
)

var (
	ErrMissingSignature = errors.New("missing signature")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrMissingOrderID   = errors.New("missing order_id")
	ErrOrderNotFound    = errors.New("order not found")
	ErrPersistFailed    = errors.New("failed to update order")
)

// OrderUpdater applies provider callbacks to orders.
type OrderUpdater interface {
	ApplyPaymentUpdate(ctx context.Context, orderID string, update orders.PaymentUpdate) error
}

// Result describes what a delivery did.
type Result struct {
	OrderID       string
	Status        orders.Status
	PaymentStatus string
	// Ignored is set when applying the delivery would move the order
	// backwards, and it was acknowledged without a write.
	Ignored  bool
	Notified bool
}

// Reconciler authenticates NOWPayments callbacks and applies them to orders.
type Reconciler struct {
	secret   string
	store    OrderUpdater
	notifier notifications.Notifier
	metrics  *aws.Metrics
	logger   *zap.Logger
	nowFunc  func() time.Time
}

func NewReconciler(secret string, store OrderUpdater, notifier notifications.Notifier, metrics *aws.Metrics, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		secret:   secret,
		store:    store,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.With(zap.String("component", "webhook_reconciler")),
		nowFunc:  time.Now,
	}
}

// Handle processes one delivery. body must be the raw request bytes; the
// signature covers them, not a re-encoding.
func (r *Reconciler) Handle(ctx context.Context, body []byte, signature string) (*Result, error) {
	if signature == "" {
		r.reject(ctx, "missing_signature")
		return nil, ErrMissingSignature
	}
	if !Verify(r.secret, body, signature) {
		r.reject(ctx, "invalid_signature")
		return nil, ErrInvalidSignature
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		r.reject(ctx, "invalid_payload")
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.OrderID == "" {
		r.reject(ctx, "missing_order_id")
		return nil, ErrMissingOrderID
	}

	status := MapStatus(p.PaymentStatus)
	updatedAt, ok := p.providerTime()
	if !ok {
		updatedAt = r.nowFunc().UTC()
	}

	update := orders.PaymentUpdate{
		Status:        status,
		PaymentStatus: p.PaymentStatus,
		Details: map[string]interface{}{
			"paymentId":     p.PaymentID.String(),
			"payAddress":    p.PayAddress,
			"priceAmount":   nullable(p.PriceAmount),
			"priceCurrency": p.PriceCurrency,
			"payAmount":     nullable(p.PayAmount),
			"payCurrency":   p.PayCurrency,
			"updatedAt":     updatedAt.Format(time.RFC3339Nano),
		},
	}

	log := r.logger.With(
		zap.String("order_id", p.OrderID),
		zap.String("payment_id", p.PaymentID.String()),
		zap.String("payment_status", p.PaymentStatus),
		zap.String("status", string(status)),
	)

	res := &Result{OrderID: p.OrderID, Status: status, PaymentStatus: p.PaymentStatus}

	err := r.store.ApplyPaymentUpdate(ctx, p.OrderID, update)
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		log.Warn("webhook for unknown order")
		r.metrics.Count(ctx, "WebhookRejected", map[string]string{"reason": "order_not_found"})
		return nil, ErrOrderNotFound
	case errors.Is(err, orders.ErrTerminalState), errors.Is(err, orders.ErrStaleUpdate):
		log.Warn("webhook ignored, order already moved on", zap.Error(err))
		r.metrics.Count(ctx, "WebhookIgnored", nil)
		res.Ignored = true
		return res, nil
	case err != nil:
		log.Error("failed to apply webhook", zap.Error(err))
		r.metrics.Count(ctx, "WebhookPersistFailed", nil)
		return nil, fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	log.Info("webhook applied")
	r.metrics.Count(ctx, "WebhookApplied", map[string]string{"status": string(status)})

	if status == orders.StatusPaid {
		res.Notified = r.notifyPaid(ctx, log, p)
	}
	return res, nil
}

// notifyPaid is best-effort: a failure is logged and never fails the delivery.
func (r *Reconciler) notifyPaid(ctx context.Context, log *zap.Logger, p Payload) bool {
	if r.notifier == nil {
		return false
	}
	eventKey := p.PaymentID.String()
	if eventKey == "" {
		eventKey = p.OrderID
	}
	err := r.notifier.Notify(ctx, notifications.Event{
		EventID: fmt.Sprintf("nowpayments:%s:%s", eventKey, p.PaymentStatus),
		Type:    notifications.TypePaymentConfirmed,
		OrderID: p.OrderID,
		Message: fmt.Sprintf("Crypto payment confirmed for order #%s", p.OrderID),
		Metadata: map[string]interface{}{
			"paymentId": p.PaymentID.String(),
			"amount":    nullable(p.PriceAmount),
			"currency":  p.PriceCurrency,
		},
	})
	if err != nil {
		log.Warn("admin notification failed", zap.Error(err))
		return false
	}
	return true
}

func (r *Reconciler) reject(ctx context.Context, reason string) {
	r.logger.Warn("webhook rejected", zap.String("reason", reason))
	r.metrics.Count(ctx, "WebhookRejected", map[string]string{"reason": reason})
}
