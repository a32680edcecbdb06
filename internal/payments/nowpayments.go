package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const providerNOWPayments = "nowpayments"

// NOWPaymentRequest is the body of POST {base}/payment.
type NOWPaymentRequest struct {
	PriceAmount      json.Number `json:"price_amount"`
	PriceCurrency    string      `json:"price_currency"`
	PayCurrency      string      `json:"pay_currency"`
	OrderID          string      `json:"order_id"`
	OrderDescription string      `json:"order_description"`
	IPNCallbackURL   string      `json:"ipn_callback_url"`
	SuccessURL       string      `json:"success_url"`
	CancelURL        string      `json:"cancel_url"`
}

// NOWPaymentResponse is the subset of the created payment we use.
type NOWPaymentResponse struct {
	PaymentID     ProviderID      `json:"payment_id"`
	PaymentStatus string          `json:"payment_status"`
	PayAddress    string          `json:"pay_address"`
	PayAmount     decimal.Decimal `json:"pay_amount"`
	PayCurrency   string          `json:"pay_currency"`
	ActuallyPaid  decimal.Decimal `json:"actually_paid"`
}

// NOWPaymentsClient creates crypto payments.
type NOWPaymentsClient struct {
	baseURL string
	apiKey  string
	http    HTTPDoer
}

func NewNOWPaymentsClient(baseURL, apiKey string, doer HTTPDoer) *NOWPaymentsClient {
	return &NOWPaymentsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    doer,
	}
}

func (c *NOWPaymentsClient) CreatePayment(ctx context.Context, req NOWPaymentRequest) (*NOWPaymentResponse, error) {
	var out NOWPaymentResponse
	err := postJSON(ctx, c.http, providerNOWPayments, c.baseURL+"/payment",
		map[string]string{"x-api-key": c.apiKey}, req, &out)
	if err != nil {
		return nil, err
	}
	if out.PaymentID == "" {
		return nil, fmt.Errorf("%s: response without payment_id", providerNOWPayments)
	}
	return &out, nil
}
