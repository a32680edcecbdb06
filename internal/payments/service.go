package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/aws"
	"github.com/imrishuroy/storefront-payments/internal/orders"
	"github.com/imrishuroy/storefront-payments/internal/retry"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrOrderNotPayable = errors.New("order is not awaiting payment")
	ErrPersistFailed   = errors.New("failed to record payment on order")
	ErrNotConfigured   = errors.New("payment method not configured")
)

const qrCodeBase = "https://api.qrserver.com/v1/create-qr-code/?size=200x200&data="

// OrderStore is the part of orders.Store the initiator needs.
type OrderStore interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	ApplyPaymentIntent(ctx context.Context, orderID string, intent orders.PaymentIntent) error
}

// CryptoGateway creates crypto deposits.
type CryptoGateway interface {
	CreatePayment(ctx context.Context, req NOWPaymentRequest) (*NOWPaymentResponse, error)
}

// CardProcessor charges cards.
type CardProcessor interface {
	Charge(ctx context.Context, req MoneyMotionCharge) (*MoneyMotionResponse, error)
}

// Options carries the non-client settings of a Service.
type Options struct {
	AppBaseURL          string
	PayPalBusinessEmail string
}

// Service initiates payments for existing orders.
type Service struct {
	orders  OrderStore
	crypto  CryptoGateway
	card    CardProcessor
	retrier *retry.Retrier
	metrics *aws.Metrics
	logger  *zap.Logger
	opts    Options
	nowFunc func() time.Time
	intn    func(n int) int
}

func NewService(store OrderStore, crypto CryptoGateway, card CardProcessor, retrier *retry.Retrier, metrics *aws.Metrics, logger *zap.Logger, opts Options) *Service {
	opts.AppBaseURL = strings.TrimRight(opts.AppBaseURL, "/")
	return &Service{
		orders:  store,
		crypto:  crypto,
		card:    card,
		retrier: retrier,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "payments")),
		opts:    opts,
		nowFunc: time.Now,
		intn:    rand.IntN,
	}
}

// loadPayable reads the order with retries and checks it can still be paid.
func (s *Service) loadPayable(ctx context.Context, orderID string) (*orders.Order, error) {
	order, err := retry.Value(ctx, s.retrier, "orders.get", func(ctx context.Context) (*orders.Order, error) {
		o, err := s.orders.Get(ctx, orderID)
		if aws.IsPermanent(err) {
			return nil, retry.Permanent(err)
		}
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status != orders.StatusPending {
		return nil, fmt.Errorf("%w: status %s", ErrOrderNotPayable, order.Status)
	}
	return order, nil
}

// InitiateCrypto creates a NOWPayments deposit and records it on the order.
// A failure to record after the provider accepted is logged, not returned.
func (s *Service) InitiateCrypto(ctx context.Context, req CryptoRequest) (*CryptoIntent, error) {
	if s.crypto == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, providerNOWPayments)
	}
	if _, err := s.loadPayable(ctx, req.OrderID); err != nil {
		return nil, err
	}

	currency := currencyOrDefault(req.Currency, DefaultCurrency)
	payCurrency := strings.ToLower(currencyOrDefault(req.CryptoCurrency, DefaultCryptoCurrency))
	orderQuery := url.QueryEscape(req.OrderID)

	resp, err := s.crypto.CreatePayment(ctx, NOWPaymentRequest{
		PriceAmount:      json.Number(req.Amount.String()),
		PriceCurrency:    strings.ToLower(currency),
		PayCurrency:      payCurrency,
		OrderID:          req.OrderID,
		OrderDescription: "Order #" + req.OrderID,
		IPNCallbackURL:   s.opts.AppBaseURL + "/api/webhooks/nowpayments",
		SuccessURL:       s.opts.AppBaseURL + "/checkout/success?order=" + orderQuery,
		CancelURL:        s.opts.AppBaseURL + "/checkout/cancel?order=" + orderQuery,
	})
	if err != nil {
		s.providerFailed(ctx, providerNOWPayments, req.OrderID, err)
		return nil, err
	}

	intent := &CryptoIntent{
		ID:             resp.PaymentID.String(),
		Status:         resp.PaymentStatus,
		PayAddress:     resp.PayAddress,
		PayAmount:      resp.PayAmount,
		CryptoCurrency: payCurrency,
		QRCodeURL:      qrCodeBase + url.QueryEscape(resp.PayAddress),
	}

	s.persist(ctx, req.OrderID, intent, map[string]interface{}{
		"cryptoCurrency": payCurrency,
		"payAddress":     resp.PayAddress,
		"payAmount":      resp.PayAmount.String(),
		"actuallyPaid":   resp.ActuallyPaid.String(),
	})

	s.logger.Info("crypto payment created",
		zap.String("order_id", req.OrderID),
		zap.String("payment_id", intent.ID),
		zap.String("payment_status", intent.Status),
		zap.String("amount", req.Amount.String()),
		zap.String("currency", currency),
		zap.String("crypto_currency", payCurrency),
	)
	s.metrics.Count(ctx, "PaymentIntentCreated", map[string]string{"method": string(orders.MethodNOWPayments)})
	return intent, nil
}

// InitiateCard charges a card through Money Motion. Card data goes to the
// provider only.
func (s *Service) InitiateCard(ctx context.Context, req CardRequest) (*CardIntent, error) {
	if s.card == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, providerMoneyMotion)
	}
	order, err := s.loadPayable(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	currency := currencyOrDefault(req.Currency, DefaultCurrency)
	resp, err := s.card.Charge(ctx, MoneyMotionCharge{
		Amount:    json.Number(req.Amount.String()),
		Currency:  currency,
		OrderID:   req.OrderID,
		PaymentID: GeneratePaymentID(s.nowFunc(), s.intn),
		Card:      req.Card,
		Metadata: map[string]string{
			"orderId": req.OrderID,
			"userId":  order.UserID,
		},
	})
	if err != nil {
		s.providerFailed(ctx, providerMoneyMotion, req.OrderID, err)
		return nil, err
	}

	intent := &CardIntent{
		ID:          resp.PaymentID.String(),
		Status:      resp.Status,
		RedirectURL: resp.RedirectURL,
	}

	s.persist(ctx, req.OrderID, intent, map[string]interface{}{
		"redirectUrl": resp.RedirectURL,
	})

	s.logger.Info("card payment processed",
		zap.String("order_id", req.OrderID),
		zap.String("payment_id", intent.ID),
		zap.String("payment_status", intent.Status),
		zap.String("amount", req.Amount.String()),
		zap.String("currency", currency),
	)
	s.metrics.Count(ctx, "PaymentIntentCreated", map[string]string{"method": string(orders.MethodMoneyMotion)})
	return intent, nil
}

// InitiateManualPayPal records a friends-and-family PayPal payment. Nothing
// is sent to PayPal; an admin confirms receipt later. The order update is
// the only effect, so its failure is returned.
func (s *Service) InitiateManualPayPal(ctx context.Context, req PayPalRequest) (*ManualIntent, error) {
	if s.opts.PayPalBusinessEmail == "" {
		return nil, fmt.Errorf("%w: paypal", ErrNotConfigured)
	}
	if _, err := s.loadPayable(ctx, req.OrderID); err != nil {
		return nil, err
	}

	currency := currencyOrDefault(req.Currency, DefaultCurrency)
	intent := &ManualIntent{
		ID:     GeneratePaymentID(s.nowFunc(), s.intn),
		Status: PaymentStatusManualPending,
		Instructions: PayPalInstructions{
			PayPalEmail: s.opts.PayPalBusinessEmail,
			Amount:      req.Amount,
			Currency:    currency,
			OrderID:     req.OrderID,
			Note:        fmt.Sprintf("Order #%s - Send as Friends & Family", req.OrderID),
		},
	}

	err := s.orders.ApplyPaymentIntent(ctx, req.OrderID, orderIntent(intent, map[string]interface{}{
		"paypalEmail":  req.PayPalEmail,
		"instructions": "Send payment as Friends & Family",
		"amount":       req.Amount.String(),
		"currency":     currency,
	}))
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		return nil, ErrOrderNotFound
	case errors.Is(err, orders.ErrNotPending):
		return nil, fmt.Errorf("%w: %v", ErrOrderNotPayable, err)
	case err != nil:
		s.logger.Error("failed to record paypal payment", zap.String("order_id", req.OrderID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	s.logger.Info("paypal payment recorded",
		zap.String("order_id", req.OrderID),
		zap.String("payment_id", intent.ID),
		zap.String("amount", req.Amount.String()),
		zap.String("currency", currency),
	)
	s.metrics.Count(ctx, "PaymentIntentCreated", map[string]string{"method": string(orders.MethodPayPalFF)})
	return intent, nil
}

// persist records the intent after the provider accepted it. A failure here
// leaves the provider payment without an order record until the webhook arrives.
func (s *Service) persist(ctx context.Context, orderID string, result IntentResult, details map[string]interface{}) {
	if err := s.orders.ApplyPaymentIntent(ctx, orderID, orderIntent(result, details)); err != nil {
		s.logger.Error("failed to record payment on order",
			zap.String("order_id", orderID),
			zap.String("payment_id", result.PaymentID()),
			zap.String("payment_method", string(result.PaymentMethod())),
			zap.Error(err),
		)
		s.metrics.Count(ctx, "PaymentPersistFailed", map[string]string{"method": string(result.PaymentMethod())})
	}
}

func orderIntent(result IntentResult, details map[string]interface{}) orders.PaymentIntent {
	return orders.PaymentIntent{
		Method:        result.PaymentMethod(),
		PaymentID:     result.PaymentID(),
		PaymentStatus: result.PaymentStatus(),
		Details:       details,
	}
}

func (s *Service) providerFailed(ctx context.Context, provider, orderID string, err error) {
	fields := []zap.Field{
		zap.String("provider", provider),
		zap.String("order_id", orderID),
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		fields = append(fields, zap.Int("status_code", perr.StatusCode), zap.Any("response", perr.Body))
	} else {
		fields = append(fields, zap.Error(err))
	}
	s.logger.Error("payment provider call failed", fields...)
	s.metrics.Count(ctx, "PaymentProviderFailed", map[string]string{"provider": provider})
}
