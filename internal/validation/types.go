package validation

import (
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/storefront-payments/internal/orders"
)

// CryptoPaymentRequest is the payload for POST /api/payments/nowpayments
type CryptoPaymentRequest struct {
	OrderID        string          `json:"orderId" validate:"required"`
	Amount         decimal.Decimal `json:"amount"` // number or string, checked by positiveAmount
	Currency       string          `json:"currency,omitempty" validate:"omitempty,alpha,len=3"`
	CryptoCurrency string          `json:"cryptoCurrency,omitempty" validate:"omitempty,alphanum,max=12"`
}

// CardData is forwarded to Money Motion and nowhere else.
type CardData struct {
	Number string `json:"number" validate:"required,min=12,max=19,numeric"`
	Expiry string `json:"expiry" validate:"required"`
	CVV    string `json:"cvv" validate:"required,min=3,max=4,numeric"`
	Name   string `json:"name" validate:"required"`
}

// CardPaymentRequest is the payload for POST /api/payments/money-motion
type CardPaymentRequest struct {
	OrderID  string          `json:"orderId" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty" validate:"omitempty,alpha,len=3"`
	CardData *CardData       `json:"cardData" validate:"required"`
}

// PayPalPaymentRequest is the payload for POST /api/payments/paypal
type PayPalPaymentRequest struct {
	OrderID     string          `json:"orderId" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency,omitempty" validate:"omitempty,alpha,len=3"`
	PayPalEmail string          `json:"paypalEmail" validate:"required,email"`
}

// AdminNotificationRequest is the payload for POST /api/notifications/admin
type AdminNotificationRequest struct {
	Type     string                 `json:"type" validate:"required"`
	OrderID  string                 `json:"orderId" validate:"required"`
	Message  string                 `json:"message" validate:"required"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Address is the shipping address entered at checkout.
type Address struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required,len=2"`
}

// CreateOrderRequest is the payload for POST /api/orders
type CreateOrderRequest struct {
	UserID          string          `json:"userId" validate:"required"`
	ProductID       string          `json:"productId" validate:"required"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency,omitempty" validate:"omitempty,alpha,len=3"`
	ShippingAddress *Address        `json:"shippingAddress,omitempty"`
}

// UpdateOrderStatusRequest is the payload for PATCH /api/admin/orders/:id/status
type UpdateOrderStatusRequest struct {
	From orders.Status `json:"from" validate:"required,order_status"`
	To   orders.Status `json:"to" validate:"required,order_status"`
}

// MarkNotificationsReadRequest is the payload for POST /api/admin/notifications/read
type MarkNotificationsReadRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100,dive,required"`
}

func (r CryptoPaymentRequest) amount() decimal.Decimal { return r.Amount }
func (r CardPaymentRequest) amount() decimal.Decimal   { return r.Amount }
func (r PayPalPaymentRequest) amount() decimal.Decimal { return r.Amount }
func (r CreateOrderRequest) amount() decimal.Decimal   { return r.Amount }
