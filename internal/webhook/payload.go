package webhook

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/storefront-payments/internal/payments"
)

// Payload is the NOWPayments IPN body.
type Payload struct {
	OrderID       string              `json:"order_id"`
	PaymentID     payments.ProviderID `json:"payment_id"`
	PaymentStatus string              `json:"payment_status"`
	PayAddress    string              `json:"pay_address"`
	PriceAmount   decimal.NullDecimal `json:"price_amount"`
	PriceCurrency string              `json:"price_currency"`
	PayAmount     decimal.NullDecimal `json:"pay_amount"`
	PayCurrency   string              `json:"pay_currency"`
	UpdatedAt     json.RawMessage     `json:"updated_at,omitempty"`
}

// providerTime reads updated_at as epoch millis (number or numeric string)
// or RFC 3339. ok is false when absent or unreadable.
func (p Payload) providerTime() (t time.Time, ok bool) {
	raw := bytes.TrimSpace(p.UpdatedAt)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, false
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, false
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts.UTC(), true
		}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

func nullable(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}
