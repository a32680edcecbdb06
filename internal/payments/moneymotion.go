package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const providerMoneyMotion = "money_motion"

// MoneyMotionCharge is the body of POST {base}/payments.
type MoneyMotionCharge struct {
	Amount    json.Number       `json:"amount"`
	Currency  string            `json:"currency"`
	OrderID   string            `json:"orderId"`
	PaymentID string            `json:"paymentId"`
	Card      CardData          `json:"card"`
	Metadata  map[string]string `json:"metadata"`
}

type MoneyMotionResponse struct {
	PaymentID   ProviderID `json:"paymentId"`
	Status      string     `json:"status"`
	RedirectURL string     `json:"redirectUrl"`
}

// MoneyMotionClient charges cards.
type MoneyMotionClient struct {
	baseURL string
	apiKey  string
	http    HTTPDoer
}

func NewMoneyMotionClient(baseURL, apiKey string, doer HTTPDoer) *MoneyMotionClient {
	return &MoneyMotionClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    doer,
	}
}

func (c *MoneyMotionClient) Charge(ctx context.Context, req MoneyMotionCharge) (*MoneyMotionResponse, error) {
	var out MoneyMotionResponse
	err := postJSON(ctx, c.http, providerMoneyMotion, c.baseURL+"/payments",
		map[string]string{"Authorization": "Bearer " + c.apiKey}, req, &out)
	if err != nil {
		return nil, err
	}
	if out.PaymentID == "" {
		return nil, fmt.Errorf("%s: response without paymentId", providerMoneyMotion)
	}
	return &out, nil
}
