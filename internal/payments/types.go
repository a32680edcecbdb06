package payments

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/storefront-payments/internal/orders"
)

const (
	DefaultCurrency       = "USD"
	DefaultCryptoCurrency = "btc"

	// PaymentStatusManualPending is stored for PayPal friends-and-family until an admin confirms.
	PaymentStatusManualPending = "pending_manual_confirmation"
)

// ProviderID is a provider-assigned payment id. Providers send it either as
// a JSON number or a string; it is always kept as a string.
type ProviderID string

func (p *ProviderID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*p = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = ProviderID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("payment id: %w", err)
	}
	*p = ProviderID(n.String())
	return nil
}

func (p ProviderID) String() string { return string(p) }

// IntentResult is the outcome of a successful payment initiation. It is one
// of *CryptoIntent, *CardIntent or *ManualIntent.
type IntentResult interface {
	PaymentMethod() orders.PaymentMethod
	PaymentID() string
	PaymentStatus() string
	isIntentResult()
}

// CryptoIntent is a NOWPayments deposit the buyer must fund.
type CryptoIntent struct {
	ID             string
	Status         string
	PayAddress     string
	PayAmount      decimal.Decimal
	CryptoCurrency string
	QRCodeURL      string
}

// CardIntent is a Money Motion charge, possibly awaiting a 3-D Secure redirect.
type CardIntent struct {
	ID          string
	Status      string
	RedirectURL string
}

// ManualIntent is a PayPal friends-and-family transfer the buyer performs by hand.
type ManualIntent struct {
	ID           string
	Status       string
	Instructions PayPalInstructions
}

// PayPalInstructions tell the buyer where and how to send the transfer.
type PayPalInstructions struct {
	PayPalEmail string          `json:"paypalEmail"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	OrderID     string          `json:"orderId"`
	Note        string          `json:"note"`
}

func (*CryptoIntent) PaymentMethod() orders.PaymentMethod { return orders.MethodNOWPayments }
func (*CardIntent) PaymentMethod() orders.PaymentMethod   { return orders.MethodMoneyMotion }
func (*ManualIntent) PaymentMethod() orders.PaymentMethod { return orders.MethodPayPalFF }

func (c *CryptoIntent) PaymentID() string { return c.ID }
func (c *CardIntent) PaymentID() string   { return c.ID }
func (m *ManualIntent) PaymentID() string { return m.ID }

func (c *CryptoIntent) PaymentStatus() string { return c.Status }
func (c *CardIntent) PaymentStatus() string   { return c.Status }
func (m *ManualIntent) PaymentStatus() string { return m.Status }

func (*CryptoIntent) isIntentResult() {}
func (*CardIntent) isIntentResult()   {}
func (*ManualIntent) isIntentResult() {}

// ProviderError is a non-2xx answer from a payment provider. Body is the
// provider's response with secrets removed.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       map[string]interface{}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: payment processing failed (status %d)", e.Provider, e.StatusCode)
}

// CryptoRequest initiates a NOWPayments payment.
type CryptoRequest struct {
	OrderID        string
	Amount         decimal.Decimal
	Currency       string
	CryptoCurrency string
}

// CardData is never persisted or logged.
type CardData struct {
	Number string `json:"number"`
	Expiry string `json:"expiry"`
	CVV    string `json:"cvv"`
	Name   string `json:"name"`
}

// CardRequest initiates a Money Motion charge.
type CardRequest struct {
	OrderID  string
	Amount   decimal.Decimal
	Currency string
	Card     CardData
}

// PayPalRequest records a PayPal friends-and-family payment.
type PayPalRequest struct {
	OrderID     string
	Amount      decimal.Decimal
	Currency    string
	PayPalEmail string
}

func currencyOrDefault(c, def string) string {
	if strings.TrimSpace(c) == "" {
		return def
	}
	return c
}
